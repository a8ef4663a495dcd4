package ingest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
)

func TestParseDate_Layouts(t *testing.T) {
	want := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{
		"2024-01-15",
		"2024/01/15",
		"15/01/2024",
		"15-01-2024",
	} {
		got := ParseDate(s)
		assert.True(t, got.Equal(want), "input %q parsed as %v", s, got)
	}
}

func TestParseDate_WithTime(t *testing.T) {
	got := ParseDate("2024-01-15 13:45:00")
	assert.Equal(t, 2024, got.Year())
	assert.Equal(t, 13, got.Hour())
}

func TestParseDate_Unparseable(t *testing.T) {
	assert.True(t, ParseDate("").IsZero())
	assert.True(t, ParseDate("next tuesday").IsZero())
	assert.True(t, ParseDate("15.01.2024").IsZero())
}

func TestNewRowMapper_UnknownSource(t *testing.T) {
	_, err := NewRowMapper("crm_export", []string{"id"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown source")
}

func TestNewRowMapper_MissingIDColumn(t *testing.T) {
	_, err := NewRowMapper(model.SourceLead, []string{"first_name", "phone"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing an id column")
}

func TestRowMapper_LeadRow(t *testing.T) {
	m, err := NewRowMapper(model.SourceLead, []string{"lead_id", "first_name", "last_name", "phone", "created_at"})
	require.NoError(t, err)

	rec, ok := m.Record([]string{"L-1", "Juan", "Pérez", "0991234567", "2024-01-12"})
	require.True(t, ok)
	assert.Equal(t, "L-1", rec.ExternalID)
	assert.Equal(t, model.SourceLead, rec.Source)
	assert.Equal(t, "Juan", rec.FirstName)
	assert.Equal(t, "Pérez", rec.LastName)
	assert.Equal(t, "Juan Pérez", rec.CandidateName())
	assert.Equal(t, "0991234567", rec.Phone)
	assert.True(t, rec.ReferenceDate.Equal(time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)))
}

func TestRowMapper_SpanishHeaders(t *testing.T) {
	m, err := NewRowMapper(model.SourceFieldRegistration, []string{"registro_id", "nombre", "apellido", "celular", "fecha_registro"})
	require.NoError(t, err)

	rec, ok := m.Record([]string{"R-9", "María", "Gutiérrez", "0987654321", "16/01/2024"})
	require.True(t, ok)
	assert.Equal(t, "R-9", rec.ExternalID)
	assert.Equal(t, "María Gutiérrez", rec.CandidateName())
	assert.Equal(t, 16, rec.ReferenceDate.Day())
}

func TestRowMapper_LedgerBeneficiary(t *testing.T) {
	m, err := NewRowMapper(model.SourceLedgerTransaction, []string{"transaction_id", "beneficiary_name", "transaction_date"})
	require.NoError(t, err)

	rec, ok := m.Record([]string{"TX-44", "Carlos Mamani Quispe", "2024-02-03"})
	require.True(t, ok)
	assert.Equal(t, "Carlos Mamani Quispe", rec.FullName)
	assert.Empty(t, rec.Phone)
}

func TestRowMapper_SkipsRowWithoutID(t *testing.T) {
	m, err := NewRowMapper(model.SourceLead, []string{"lead_id", "phone"})
	require.NoError(t, err)

	_, ok := m.Record([]string{"", "0991234567"})
	assert.False(t, ok)
}

func TestRowMapper_ShortRow(t *testing.T) {
	m, err := NewRowMapper(model.SourceLead, []string{"lead_id", "first_name", "phone"})
	require.NoError(t, err)

	// A truncated row leaves the missing attributes absent.
	rec, ok := m.Record([]string{"L-2"})
	require.True(t, ok)
	assert.Empty(t, rec.FirstName)
	assert.Empty(t, rec.Phone)
	assert.True(t, rec.ReferenceDate.IsZero())
}

func TestDriverMapper(t *testing.T) {
	m, err := NewDriverMapper([]string{"driver_id", "full_name", "phone", "hire_date"})
	require.NoError(t, err)

	d, ok := m.Driver([]string{"d-1", "Juan Pérez López", "0991234567", "2024-01-10"})
	require.True(t, ok)
	assert.Equal(t, "d-1", d.DriverID)
	assert.Equal(t, "Juan Pérez López", d.FullName)
	assert.True(t, d.HireDate.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)))
}

func TestDriverMapper_RequiresName(t *testing.T) {
	_, err := NewDriverMapper([]string{"driver_id", "phone"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "missing a name column")
}
