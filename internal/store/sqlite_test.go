package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func seedDrivers(t *testing.T, st *SQLiteStore) {
	t.Helper()
	_, err := st.UpsertDrivers(context.Background(), []model.CanonicalDriver{
		{DriverID: "d-1", FullName: "Juan Pérez López", Phone: "0991234567", HireDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{DriverID: "d-2", FullName: "María Gutiérrez", Phone: "0987654321", HireDate: time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC)},
		{DriverID: "d-3", FullName: "Carlos Mamani Quispe", Phone: "59199123456", HireDate: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
}

// --- Drivers ---

func TestSQLite_UpsertDrivers_AndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedDrivers(t, st)

	d, err := st.GetDriver(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "Juan Pérez López", d.FullName)
	assert.Equal(t, "0991234567", d.Phone)
	assert.True(t, d.HireDate.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)))
}

func TestSQLite_UpsertDrivers_Overwrite(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedDrivers(t, st)

	_, err := st.UpsertDrivers(ctx, []model.CanonicalDriver{
		{DriverID: "d-1", FullName: "Juan Pérez López", Phone: "0999999999", HireDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)

	d, err := st.GetDriver(ctx, "d-1")
	require.NoError(t, err)
	assert.Equal(t, "0999999999", d.Phone)
}

func TestSQLite_GetDriver_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetDriver(context.Background(), "ghost")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_ListDriversByHireDate_Window(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedDrivers(t, st)

	drivers, err := st.ListDriversByHireDate(ctx,
		time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC),
		time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC),
	)
	require.NoError(t, err)
	require.Len(t, drivers, 1)
	assert.Equal(t, "d-2", drivers[0].DriverID)
}

func TestSQLite_ListDriversByHireDate_OpenEnded(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedDrivers(t, st)

	// Zero bounds leave that side of the window open.
	all, err := st.ListDriversByHireDate(ctx, time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	late, err := st.ListDriversByHireDate(ctx, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), time.Time{})
	require.NoError(t, err)
	assert.Len(t, late, 2)
}

// --- External records ---

func TestSQLite_UpsertExternalRecords_AndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertExternalRecords(ctx, []model.ExternalRecord{
		{Source: model.SourceLead, ExternalID: "L-1", FirstName: "Juan", LastName: "Perez",
			Phone: "0991234567", ReferenceDate: time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)},
		{Source: model.SourceLedgerTransaction, ExternalID: "TX-1", FullName: "Maria Gutierrez",
			ReferenceDate: time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	r, err := st.GetExternalRecord(ctx, model.SourceLead, "L-1")
	require.NoError(t, err)
	assert.Equal(t, "Juan", r.FirstName)
	assert.Equal(t, "Juan Perez", r.CandidateName())

	records, err := st.ListExternalRecords(ctx, model.SourceLedgerTransaction)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "TX-1", records[0].ExternalID)
}

func TestSQLite_GetExternalRecord_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	_, err := st.GetExternalRecord(context.Background(), model.SourceLead, "nope")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_ListExternalRecords_AllSources(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertExternalRecords(ctx, []model.ExternalRecord{
		{Source: model.SourceLead, ExternalID: "L-1"},
		{Source: model.SourceFieldRegistration, ExternalID: "F-1"},
	})
	require.NoError(t, err)

	records, err := st.ListExternalRecords(ctx, "")
	require.NoError(t, err)
	assert.Len(t, records, 2)
}

// --- Match results ---

func seedMatchFixture(t *testing.T, st *SQLiteStore) {
	t.Helper()
	seedDrivers(t, st)
	_, err := st.UpsertExternalRecords(context.Background(), []model.ExternalRecord{
		{Source: model.SourceLead, ExternalID: "L-1", FirstName: "Juan", LastName: "Perez",
			Phone: "0991234567", ReferenceDate: time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC)},
		{Source: model.SourceLedgerTransaction, ExternalID: "TX-1", FullName: "Juan Perez Lopez",
			ReferenceDate: time.Date(2024, 1, 20, 0, 0, 0, 0, time.UTC)},
	})
	require.NoError(t, err)
}

func TestSQLite_SaveMatchResults_AndGet(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedMatchFixture(t, st)

	n, err := st.SaveMatchResults(ctx, []model.MatchResult{
		{Source: model.SourceLead, ExternalID: "L-1", DriverID: "d-1", Score: 0.9, DayDiff: 8, MatchedAt: time.Now().UTC()},
		{Source: model.SourceLedgerTransaction, ExternalID: "TX-1", Score: 0, MatchedAt: time.Now().UTC()},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	m, err := st.GetMatchResult(ctx, model.SourceLead, "L-1")
	require.NoError(t, err)
	assert.Equal(t, "d-1", m.DriverID)
	assert.Equal(t, 0.9, m.Score)
	assert.Equal(t, 8, m.DayDiff)

	unmatched, err := st.GetMatchResult(ctx, model.SourceLedgerTransaction, "TX-1")
	require.NoError(t, err)
	assert.False(t, unmatched.Matched())
}

func TestSQLite_SaveMatchResults_PreservesManual(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedMatchFixture(t, st)

	require.NoError(t, st.SetManualMatch(ctx, model.SourceLead, "L-1", "d-2"))

	// An automatic re-run must not displace the pinned assignment.
	n, err := st.SaveMatchResults(ctx, []model.MatchResult{
		{Source: model.SourceLead, ExternalID: "L-1", DriverID: "d-1", Score: 0.8, DayDiff: 8, MatchedAt: time.Now().UTC()},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	m, err := st.GetMatchResult(ctx, model.SourceLead, "L-1")
	require.NoError(t, err)
	assert.Equal(t, "d-2", m.DriverID)
	assert.Equal(t, 1.0, m.Score)
	assert.True(t, m.IsManual)
}

func TestSQLite_SaveMatchResults_PreservesDiscard(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedMatchFixture(t, st)

	_, err := st.SaveMatchResults(ctx, []model.MatchResult{
		{Source: model.SourceLead, ExternalID: "L-1", DriverID: "d-1", Score: 0.9, DayDiff: 8, MatchedAt: time.Now().UTC()},
	})
	require.NoError(t, err)
	require.NoError(t, st.SetDiscarded(ctx, model.SourceLead, "L-1", true))

	_, err = st.SaveMatchResults(ctx, []model.MatchResult{
		{Source: model.SourceLead, ExternalID: "L-1", DriverID: "d-1", Score: 0.7, DayDiff: 8, MatchedAt: time.Now().UTC()},
	})
	require.NoError(t, err)

	m, err := st.GetMatchResult(ctx, model.SourceLead, "L-1")
	require.NoError(t, err)
	assert.True(t, m.IsDiscarded)
	assert.Equal(t, 0.7, m.Score)
}

func TestSQLite_SetManualMatch_ComputesDayDiff(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedMatchFixture(t, st)

	// d-1 hired 2024-01-10, L-1 dated 2024-01-18.
	require.NoError(t, st.SetManualMatch(ctx, model.SourceLead, "L-1", "d-1"))

	m, err := st.GetMatchResult(ctx, model.SourceLead, "L-1")
	require.NoError(t, err)
	assert.Equal(t, "d-1", m.DriverID)
	assert.Equal(t, 1.0, m.Score)
	assert.Equal(t, 8, m.DayDiff)
	assert.True(t, m.IsManual)
}

func TestSQLite_SetManualMatch_DriverNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedMatchFixture(t, st)

	err := st.SetManualMatch(ctx, model.SourceLead, "L-1", "ghost")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_SetManualMatch_RecordNotFound(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedMatchFixture(t, st)

	err := st.SetManualMatch(ctx, model.SourceLead, "L-404", "d-1")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_ClearOverride_AllowsRematch(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedMatchFixture(t, st)

	require.NoError(t, st.SetManualMatch(ctx, model.SourceLead, "L-1", "d-2"))
	require.NoError(t, st.ClearOverride(ctx, model.SourceLead, "L-1"))

	_, err := st.SaveMatchResults(ctx, []model.MatchResult{
		{Source: model.SourceLead, ExternalID: "L-1", DriverID: "d-1", Score: 0.9, DayDiff: 8, MatchedAt: time.Now().UTC()},
	})
	require.NoError(t, err)

	m, err := st.GetMatchResult(ctx, model.SourceLead, "L-1")
	require.NoError(t, err)
	assert.Equal(t, "d-1", m.DriverID)
	assert.False(t, m.IsManual)
}

func TestSQLite_ClearOverride_NotFound(t *testing.T) {
	st := newTestSQLiteStore(t)

	err := st.ClearOverride(context.Background(), model.SourceLead, "nope")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_SetDiscarded_Toggle(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedMatchFixture(t, st)

	_, err := st.SaveMatchResults(ctx, []model.MatchResult{
		{Source: model.SourceLead, ExternalID: "L-1", DriverID: "d-1", Score: 0.9, MatchedAt: time.Now().UTC()},
	})
	require.NoError(t, err)

	require.NoError(t, st.SetDiscarded(ctx, model.SourceLead, "L-1", true))
	m, err := st.GetMatchResult(ctx, model.SourceLead, "L-1")
	require.NoError(t, err)
	assert.True(t, m.IsDiscarded)

	require.NoError(t, st.SetDiscarded(ctx, model.SourceLead, "L-1", false))
	m, err = st.GetMatchResult(ctx, model.SourceLead, "L-1")
	require.NoError(t, err)
	assert.False(t, m.IsDiscarded)
}

func TestSQLite_DeleteMatchResult(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedMatchFixture(t, st)

	_, err := st.SaveMatchResults(ctx, []model.MatchResult{
		{Source: model.SourceLead, ExternalID: "L-1", DriverID: "d-1", Score: 0.9, MatchedAt: time.Now().UTC()},
	})
	require.NoError(t, err)

	require.NoError(t, st.DeleteMatchResult(ctx, model.SourceLead, "L-1"))

	_, err = st.GetMatchResult(ctx, model.SourceLead, "L-1")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))

	err = st.DeleteMatchResult(ctx, model.SourceLead, "L-1")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
}

func TestSQLite_ListMatchResults_Filters(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()
	seedMatchFixture(t, st)

	_, err := st.SaveMatchResults(ctx, []model.MatchResult{
		{Source: model.SourceLead, ExternalID: "L-1", DriverID: "d-1", Score: 0.9, MatchedAt: time.Now().UTC()},
		{Source: model.SourceLedgerTransaction, ExternalID: "TX-1", MatchedAt: time.Now().UTC()},
	})
	require.NoError(t, err)

	bySource, err := st.ListMatchResults(ctx, ResultFilter{Source: model.SourceLead})
	require.NoError(t, err)
	require.Len(t, bySource, 1)
	assert.Equal(t, "L-1", bySource[0].ExternalID)

	byDriver, err := st.ListMatchResults(ctx, ResultFilter{DriverID: "d-1"})
	require.NoError(t, err)
	assert.Len(t, byDriver, 1)

	matched, err := st.ListMatchResults(ctx, ResultFilter{OnlyMatched: true})
	require.NoError(t, err)
	assert.Len(t, matched, 1)

	all, err := st.ListMatchResults(ctx, ResultFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// --- Migrate ---

func TestSQLite_Migrate_Idempotent(t *testing.T) {
	st := newTestSQLiteStore(t)

	// Migrate already ran in newTestSQLiteStore; a second call must not error.
	err := st.Migrate(context.Background())
	require.NoError(t, err)
}
