package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/db"
	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// preparedStatements lists queries to prepare on each new connection for
// faster execution of the most frequently used store operations.
var preparedStatements = map[string]string{
	"get_driver":          `SELECT driver_id, full_name, phone, hire_date FROM drivers WHERE driver_id = $1`,
	"get_external_record": `SELECT source, external_id, first_name, last_name, full_name, phone, reference_date FROM external_records WHERE source = $1 AND external_id = $2`,
	"get_match_result":    `SELECT source, external_id, driver_id, score, day_diff, is_manual, is_discarded, matched_at FROM match_results WHERE source = $1 AND external_id = $2`,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	// Apply pool sizing from config with sensible defaults.
	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	// Prepare frequently-used statements on each new connection.
	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// Pool returns the underlying database pool for use by subsystems that
// need direct query access.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS drivers (
	driver_id TEXT PRIMARY KEY,
	full_name TEXT NOT NULL,
	phone     TEXT NOT NULL DEFAULT '',
	hire_date DATE
);

CREATE INDEX IF NOT EXISTS idx_drivers_hire_date ON drivers(hire_date);
CREATE INDEX IF NOT EXISTS idx_drivers_phone ON drivers(phone);

CREATE TABLE IF NOT EXISTS external_records (
	source         TEXT NOT NULL,
	external_id    TEXT NOT NULL,
	first_name     TEXT NOT NULL DEFAULT '',
	last_name      TEXT NOT NULL DEFAULT '',
	full_name      TEXT NOT NULL DEFAULT '',
	phone          TEXT NOT NULL DEFAULT '',
	reference_date DATE,
	imported_at    TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_external_records_reference_date ON external_records(reference_date);

CREATE TABLE IF NOT EXISTS match_results (
	source       TEXT NOT NULL,
	external_id  TEXT NOT NULL,
	driver_id    TEXT REFERENCES drivers(driver_id),
	score        DOUBLE PRECISION NOT NULL DEFAULT 0,
	day_diff     INTEGER NOT NULL DEFAULT 0,
	is_manual    BOOLEAN NOT NULL DEFAULT FALSE,
	is_discarded BOOLEAN NOT NULL DEFAULT FALSE,
	matched_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_match_results_driver_id ON match_results(driver_id);
CREATE INDEX IF NOT EXISTS idx_match_results_is_manual ON match_results(is_manual);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

var driverColumns = []string{"driver_id", "full_name", "phone", "hire_date"}

// UpsertDrivers loads the canonical driver snapshot. The initial load into
// an empty table takes the plain COPY path; only subsequent refreshes need
// conflict handling.
func (s *PostgresStore) UpsertDrivers(ctx context.Context, drivers []model.CanonicalDriver) (int64, error) {
	rows := make([][]any, 0, len(drivers))
	for _, d := range drivers {
		rows = append(rows, []any{d.DriverID, d.FullName, d.Phone, nullableDate(d.HireDate)})
	}

	var hasDrivers bool
	if err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM drivers)`).Scan(&hasDrivers); err != nil {
		return 0, eris.Wrap(err, "postgres: check drivers")
	}
	if !hasDrivers {
		n, err := db.CopyFrom(ctx, s.pool, "drivers", driverColumns, rows)
		return n, eris.Wrap(err, "postgres: load drivers")
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "drivers",
		Columns:      driverColumns,
		ConflictKeys: []string{"driver_id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert drivers")
}

func (s *PostgresStore) GetDriver(ctx context.Context, driverID string) (*model.CanonicalDriver, error) {
	var d model.CanonicalDriver
	var hireDate *time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT driver_id, full_name, phone, hire_date FROM drivers WHERE driver_id = $1`,
		driverID,
	).Scan(&d.DriverID, &d.FullName, &d.Phone, &hireDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: driver %s", driverID)
		}
		return nil, eris.Wrapf(err, "postgres: get driver %s", driverID)
	}
	if hireDate != nil {
		d.HireDate = *hireDate
	}
	return &d, nil
}

func (s *PostgresStore) ListDriversByHireDate(ctx context.Context, from, to time.Time) ([]model.CanonicalDriver, error) {
	query := `SELECT driver_id, full_name, phone, hire_date FROM drivers WHERE true`
	args := []any{}
	argIdx := 1

	if !from.IsZero() {
		query += fmt.Sprintf(` AND hire_date >= $%d`, argIdx)
		args = append(args, from)
		argIdx++
	}
	if !to.IsZero() {
		query += fmt.Sprintf(` AND hire_date <= $%d`, argIdx)
		args = append(args, to)
		argIdx++
	}
	query += ` ORDER BY hire_date, driver_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list drivers")
	}
	defer rows.Close()

	var drivers []model.CanonicalDriver
	for rows.Next() {
		var d model.CanonicalDriver
		var hireDate *time.Time
		if err := rows.Scan(&d.DriverID, &d.FullName, &d.Phone, &hireDate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan driver")
		}
		if hireDate != nil {
			d.HireDate = *hireDate
		}
		drivers = append(drivers, d)
	}
	return drivers, eris.Wrap(rows.Err(), "postgres: list drivers iterate")
}

var externalRecordColumns = []string{"source", "external_id", "first_name", "last_name", "full_name", "phone", "reference_date"}

func (s *PostgresStore) UpsertExternalRecords(ctx context.Context, records []model.ExternalRecord) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			string(r.Source), r.ExternalID,
			r.FirstName, r.LastName, r.FullName, r.Phone,
			nullableDate(r.ReferenceDate),
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "external_records",
		Columns:      externalRecordColumns,
		ConflictKeys: []string{"source", "external_id"},
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert external records")
}

func (s *PostgresStore) GetExternalRecord(ctx context.Context, source model.Source, externalID string) (*model.ExternalRecord, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT source, external_id, first_name, last_name, full_name, phone, reference_date
		 FROM external_records WHERE source = $1 AND external_id = $2`,
		string(source), externalID,
	)

	var r model.ExternalRecord
	var refDate *time.Time
	err := row.Scan(&r.Source, &r.ExternalID, &r.FirstName, &r.LastName, &r.FullName, &r.Phone, &refDate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: external record %s/%s", source, externalID)
		}
		return nil, eris.Wrapf(err, "postgres: get external record %s/%s", source, externalID)
	}
	if refDate != nil {
		r.ReferenceDate = *refDate
	}
	return &r, nil
}

func (s *PostgresStore) ListExternalRecords(ctx context.Context, source model.Source) ([]model.ExternalRecord, error) {
	query := `SELECT source, external_id, first_name, last_name, full_name, phone, reference_date FROM external_records WHERE true`
	args := []any{}

	if source != "" {
		query += ` AND source = $1`
		args = append(args, string(source))
	}
	query += ` ORDER BY source, external_id`

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list external records")
	}
	defer rows.Close()

	var records []model.ExternalRecord
	for rows.Next() {
		var r model.ExternalRecord
		var refDate *time.Time
		if err := rows.Scan(&r.Source, &r.ExternalID, &r.FirstName, &r.LastName, &r.FullName, &r.Phone, &refDate); err != nil {
			return nil, eris.Wrap(err, "postgres: scan external record")
		}
		if refDate != nil {
			r.ReferenceDate = *refDate
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "postgres: list external records iterate")
}

var matchResultColumns = []string{"source", "external_id", "driver_id", "score", "day_diff", "is_manual", "is_discarded", "matched_at"}

// SaveMatchResults persists a batch of engine verdicts. Rows already marked
// manual are left untouched, so re-running a batch never clobbers an
// analyst's override.
func (s *PostgresStore) SaveMatchResults(ctx context.Context, results []model.MatchResult) (int64, error) {
	rows := make([][]any, 0, len(results))
	for _, m := range results {
		rows = append(rows, []any{
			string(m.Source), m.ExternalID, nullableString(m.DriverID),
			m.Score, m.DayDiff, m.IsManual, m.IsDiscarded, m.MatchedAt,
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "match_results",
		Columns:      matchResultColumns,
		ConflictKeys: []string{"source", "external_id"},
		UpdateCols:   []string{"driver_id", "score", "day_diff", "matched_at"},
		UpdateWhere:  "NOT t.is_manual",
	}, rows)
	return n, eris.Wrap(err, "postgres: save match results")
}

func (s *PostgresStore) GetMatchResult(ctx context.Context, source model.Source, externalID string) (*model.MatchResult, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT source, external_id, driver_id, score, day_diff, is_manual, is_discarded, matched_at
		 FROM match_results WHERE source = $1 AND external_id = $2`,
		string(source), externalID,
	)
	m, err := scanMatchResult(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, eris.Wrapf(ErrNotFound, "postgres: match result %s/%s", source, externalID)
		}
		return nil, eris.Wrapf(err, "postgres: get match result %s/%s", source, externalID)
	}
	return m, nil
}

func (s *PostgresStore) ListMatchResults(ctx context.Context, filter ResultFilter) ([]model.MatchResult, error) {
	query := `SELECT source, external_id, driver_id, score, day_diff, is_manual, is_discarded, matched_at FROM match_results WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Source != "" {
		query += fmt.Sprintf(` AND source = $%d`, argIdx)
		args = append(args, string(filter.Source))
		argIdx++
	}
	if filter.DriverID != "" {
		query += fmt.Sprintf(` AND driver_id = $%d`, argIdx)
		args = append(args, filter.DriverID)
		argIdx++
	}
	if filter.OnlyMatched {
		query += ` AND driver_id IS NOT NULL`
	}
	query += ` ORDER BY source, external_id`

	if filter.Limit > 0 {
		query += fmt.Sprintf(` LIMIT $%d`, argIdx)
		args = append(args, filter.Limit)
		argIdx++
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
		argIdx++
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list match results")
	}
	defer rows.Close()

	var results []model.MatchResult
	for rows.Next() {
		m, err := scanMatchResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan match result")
		}
		results = append(results, *m)
	}
	return results, eris.Wrap(rows.Err(), "postgres: list match results iterate")
}

// SetManualMatch pins a record to a driver with score 1.0. The driver and
// the record must both exist; the resulting row survives automatic
// re-matching until the override is cleared.
func (s *PostgresStore) SetManualMatch(ctx context.Context, source model.Source, externalID, driverID string) error {
	drv, err := s.GetDriver(ctx, driverID)
	if err != nil {
		return err
	}
	rec, err := s.GetExternalRecord(ctx, source, externalID)
	if err != nil {
		return err
	}

	dayDiff := 0
	if !rec.ReferenceDate.IsZero() && !drv.HireDate.IsZero() {
		dayDiff = model.DaysBetween(rec.ReferenceDate, drv.HireDate)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO match_results (source, external_id, driver_id, score, day_diff, is_manual, is_discarded, matched_at)
		 VALUES ($1, $2, $3, 1.0, $4, TRUE, FALSE, $5)
		 ON CONFLICT (source, external_id) DO UPDATE SET
		   driver_id = EXCLUDED.driver_id, score = 1.0, day_diff = EXCLUDED.day_diff,
		   is_manual = TRUE, is_discarded = FALSE, matched_at = EXCLUDED.matched_at`,
		string(source), externalID, driverID, dayDiff, time.Now().UTC(),
	)
	return eris.Wrapf(err, "postgres: set manual match %s/%s", source, externalID)
}

// ClearOverride drops the manual flag so the next automatic run may
// reassign the record. The stored driver and score are kept as-is.
func (s *PostgresStore) ClearOverride(ctx context.Context, source model.Source, externalID string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE match_results SET is_manual = FALSE WHERE source = $1 AND external_id = $2`,
		string(source), externalID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: clear override %s/%s", source, externalID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: match result %s/%s", source, externalID)
	}
	return nil
}

func (s *PostgresStore) SetDiscarded(ctx context.Context, source model.Source, externalID string, discarded bool) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE match_results SET is_discarded = $1 WHERE source = $2 AND external_id = $3`,
		discarded, string(source), externalID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: set discarded %s/%s", source, externalID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: match result %s/%s", source, externalID)
	}
	return nil
}

func (s *PostgresStore) DeleteMatchResult(ctx context.Context, source model.Source, externalID string) error {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM match_results WHERE source = $1 AND external_id = $2`,
		string(source), externalID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete match result %s/%s", source, externalID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "postgres: match result %s/%s", source, externalID)
	}
	return nil
}

// helpers

type scannable interface {
	Scan(dest ...any) error
}

func scanMatchResult(row scannable) (*model.MatchResult, error) {
	var m model.MatchResult
	var driverID *string
	if err := row.Scan(&m.Source, &m.ExternalID, &driverID, &m.Score,
		&m.DayDiff, &m.IsManual, &m.IsDiscarded, &m.MatchedAt); err != nil {
		return nil, err
	}
	if driverID != nil {
		m.DriverID = *driverID
	}
	return &m, nil
}

// nullableDate maps the zero time to SQL NULL so open-ended dates don't
// persist as year 1.
func nullableDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
