package store

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	s := &PostgresStore{pool: mock}
	return s, mock
}

// expectBulkUpsert sets up pgxmock expectations for a db.BulkUpsert call:
// Begin -> CREATE TEMP TABLE -> COPY -> INSERT ON CONFLICT -> Commit.
func expectBulkUpsert(m pgxmock.PgxPoolIface, table string, cols []string, n int64) {
	tempTable := fmt.Sprintf("_tmp_upsert_%s", strings.ReplaceAll(table, ".", "_"))
	m.ExpectBegin()
	m.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	m.ExpectCopyFrom(pgx.Identifier{tempTable}, cols).WillReturnResult(n)
	m.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", n))
	m.ExpectCommit()
}

func TestPostgresStore_GetDriver_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT driver_id, full_name, phone, hire_date FROM drivers WHERE driver_id = \$1`).
		WithArgs("nonexistent").
		WillReturnError(pgx.ErrNoRows)

	_, err := s.GetDriver(context.Background(), "nonexistent")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetDriver(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	hired := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT driver_id, full_name, phone, hire_date FROM drivers WHERE driver_id = \$1`).
		WithArgs("d-1").
		WillReturnRows(pgxmock.NewRows([]string{"driver_id", "full_name", "phone", "hire_date"}).
			AddRow("d-1", "Juan Pérez López", "0991234567", &hired))

	d, err := s.GetDriver(context.Background(), "d-1")
	require.NoError(t, err)
	assert.Equal(t, "Juan Pérez López", d.FullName)
	assert.True(t, d.HireDate.Equal(hired))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertDrivers(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM drivers\)`).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))
	expectBulkUpsert(mock, "drivers", driverColumns, 2)

	n, err := s.UpsertDrivers(context.Background(), []model.CanonicalDriver{
		{DriverID: "d-1", FullName: "Juan Pérez", Phone: "0991234567", HireDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{DriverID: "d-2", FullName: "María Gutiérrez", Phone: "0987654321"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertDrivers_InitialLoadUsesCopy(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	// Empty table: straight COPY, no temp table or conflict clause.
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM drivers\)`).
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(false))
	mock.ExpectCopyFrom(pgx.Identifier{"drivers"}, driverColumns).WillReturnResult(2)

	n, err := s.UpsertDrivers(context.Background(), []model.CanonicalDriver{
		{DriverID: "d-1", FullName: "Juan Pérez", Phone: "0991234567", HireDate: time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)},
		{DriverID: "d-2", FullName: "María Gutiérrez", Phone: "0987654321"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SaveMatchResults_GuardsManualRows(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	tempTable := "_tmp_upsert_match_results"
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{tempTable}, matchResultColumns).WillReturnResult(1)
	// The guard must survive into the final INSERT so manual rows stay put.
	mock.ExpectExec(`INSERT INTO "match_results" AS t .* WHERE NOT t\.is_manual`).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.SaveMatchResults(context.Background(), []model.MatchResult{
		{Source: model.SourceLead, ExternalID: "L-1", DriverID: "d-1", Score: 0.9, DayDiff: 3, MatchedAt: time.Now().UTC()},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_GetMatchResult_NullDriver(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	matchedAt := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectQuery(`SELECT source, external_id, driver_id, score, day_diff, is_manual, is_discarded, matched_at`).
		WithArgs("lead", "L-9").
		WillReturnRows(pgxmock.NewRows([]string{"source", "external_id", "driver_id", "score", "day_diff", "is_manual", "is_discarded", "matched_at"}).
			AddRow("lead", "L-9", nil, 0.0, 0, false, false, matchedAt))

	m, err := s.GetMatchResult(context.Background(), model.SourceLead, "L-9")
	require.NoError(t, err)
	assert.False(t, m.Matched())
	assert.Equal(t, "", m.DriverID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetManualMatch(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	hired := time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	ref := time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`SELECT driver_id, full_name, phone, hire_date FROM drivers`).
		WithArgs("d-1").
		WillReturnRows(pgxmock.NewRows([]string{"driver_id", "full_name", "phone", "hire_date"}).
			AddRow("d-1", "Juan Pérez", "0991234567", &hired))
	mock.ExpectQuery(`SELECT source, external_id, first_name, last_name, full_name, phone, reference_date`).
		WithArgs("lead", "L-1").
		WillReturnRows(pgxmock.NewRows([]string{"source", "external_id", "first_name", "last_name", "full_name", "phone", "reference_date"}).
			AddRow("lead", "L-1", "Juan", "Perez", "", "0991234567", &ref))
	mock.ExpectExec(`ON CONFLICT \(source, external_id\) DO UPDATE SET`).
		WithArgs("lead", "L-1", "d-1", 8, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.SetManualMatch(context.Background(), model.SourceLead, "L-1", "d-1")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetManualMatch_DriverNotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`SELECT driver_id, full_name, phone, hire_date FROM drivers`).
		WithArgs("ghost").
		WillReturnError(pgx.ErrNoRows)

	err := s.SetManualMatch(context.Background(), model.SourceLead, "L-1", "ghost")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ClearOverride_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE match_results SET is_manual = FALSE`).
		WithArgs("lead", "L-404").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	err := s.ClearOverride(context.Background(), model.SourceLead, "L-404")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_SetDiscarded(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`UPDATE match_results SET is_discarded = \$1`).
		WithArgs(true, "ledger_transaction", "TX-7").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := s.SetDiscarded(context.Background(), model.SourceLedgerTransaction, "TX-7", true)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_DeleteMatchResult_NotFound(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`DELETE FROM match_results`).
		WithArgs("lead", "L-404").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))

	err := s.DeleteMatchResult(context.Background(), model.SourceLead, "L-404")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ListMatchResults_Filters(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	matchedAt := time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)
	driverID := "d-1"
	mock.ExpectQuery(`SELECT .* FROM match_results WHERE true AND source = \$1 AND driver_id = \$2 AND driver_id IS NOT NULL .* LIMIT \$3`).
		WithArgs("lead", "d-1", 10).
		WillReturnRows(pgxmock.NewRows([]string{"source", "external_id", "driver_id", "score", "day_diff", "is_manual", "is_discarded", "matched_at"}).
			AddRow("lead", "L-1", &driverID, 0.9, 3, false, false, matchedAt))

	results, err := s.ListMatchResults(context.Background(), ResultFilter{
		Source:      model.SourceLead,
		DriverID:    "d-1",
		OnlyMatched: true,
		Limit:       10,
	})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "d-1", results[0].DriverID)
	assert.NoError(t, mock.ExpectationsWereMet())
}
