package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/gfaxardo/contractor-tracker-sub000/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It is the embedded
// backend for single-operator use; batch upserts run row-by-row inside a
// transaction instead of the COPY path the postgres store takes.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS drivers (
	driver_id TEXT PRIMARY KEY,
	full_name TEXT NOT NULL,
	phone     TEXT NOT NULL DEFAULT '',
	hire_date DATETIME
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
	reference_date DATETIME,
	imported_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_external_records_reference_date ON external_records(reference_date);

CREATE TABLE IF NOT EXISTS match_results (
	source       TEXT NOT NULL,
	external_id  TEXT NOT NULL,
	driver_id    TEXT REFERENCES drivers(driver_id),
	score        REAL NOT NULL DEFAULT 0,
	day_diff     INTEGER NOT NULL DEFAULT 0,
	is_manual    BOOLEAN NOT NULL DEFAULT 0,
	is_discarded BOOLEAN NOT NULL DEFAULT 0,
	matched_at   DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (source, external_id)
);

CREATE INDEX IF NOT EXISTS idx_match_results_driver_id ON match_results(driver_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertDrivers(ctx context.Context, drivers []model.CanonicalDriver) (int64, error) {
	if len(drivers) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO drivers (driver_id, full_name, phone, hire_date) VALUES (?, ?, ?, ?)
		 ON CONFLICT (driver_id) DO UPDATE SET
		   full_name = excluded.full_name, phone = excluded.phone, hire_date = excluded.hire_date`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert drivers")
	}
	defer stmt.Close()

	var n int64
	for _, d := range drivers {
		if _, err := stmt.ExecContext(ctx, d.DriverID, d.FullName, d.Phone, sqliteDate(d.HireDate)); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert driver %s", d.DriverID)
		}
		n++
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit upsert drivers")
}

func (s *SQLiteStore) GetDriver(ctx context.Context, driverID string) (*model.CanonicalDriver, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT driver_id, full_name, phone, hire_date FROM drivers WHERE driver_id = ?`,
		driverID,
	)

	var d model.CanonicalDriver
	var hireDate sql.NullTime
	err := row.Scan(&d.DriverID, &d.FullName, &d.Phone, &hireDate)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: driver %s", driverID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get driver %s", driverID)
	}
	if hireDate.Valid {
		d.HireDate = hireDate.Time
	}
	return &d, nil
}

func (s *SQLiteStore) ListDriversByHireDate(ctx context.Context, from, to time.Time) ([]model.CanonicalDriver, error) {
	query := `SELECT driver_id, full_name, phone, hire_date FROM drivers WHERE 1=1`
	var args []any

	if !from.IsZero() {
		query += ` AND hire_date >= ?`
		args = append(args, from)
	}
	if !to.IsZero() {
		query += ` AND hire_date <= ?`
		args = append(args, to)
	}
	query += ` ORDER BY hire_date, driver_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list drivers")
	}
	defer rows.Close()

	var drivers []model.CanonicalDriver
	for rows.Next() {
		var d model.CanonicalDriver
		var hireDate sql.NullTime
		if err := rows.Scan(&d.DriverID, &d.FullName, &d.Phone, &hireDate); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan driver")
		}
		if hireDate.Valid {
			d.HireDate = hireDate.Time
		}
		drivers = append(drivers, d)
	}
	return drivers, eris.Wrap(rows.Err(), "sqlite: list drivers iterate")
}

func (s *SQLiteStore) UpsertExternalRecords(ctx context.Context, records []model.ExternalRecord) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO external_records (source, external_id, first_name, last_name, full_name, phone, reference_date)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source, external_id) DO UPDATE SET
		   first_name = excluded.first_name, last_name = excluded.last_name,
		   full_name = excluded.full_name, phone = excluded.phone,
		   reference_date = excluded.reference_date`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert external records")
	}
	defer stmt.Close()

	var n int64
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			string(r.Source), r.ExternalID,
			r.FirstName, r.LastName, r.FullName, r.Phone,
			sqliteDate(r.ReferenceDate),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert external record %s/%s", r.Source, r.ExternalID)
		}
		n++
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit upsert external records")
}

func (s *SQLiteStore) GetExternalRecord(ctx context.Context, source model.Source, externalID string) (*model.ExternalRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT source, external_id, first_name, last_name, full_name, phone, reference_date
		 FROM external_records WHERE source = ? AND external_id = ?`,
		string(source), externalID,
	)

	r, err := scanExternalRecord(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: external record %s/%s", source, externalID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get external record %s/%s", source, externalID)
	}
	return r, nil
}

func (s *SQLiteStore) ListExternalRecords(ctx context.Context, source model.Source) ([]model.ExternalRecord, error) {
	query := `SELECT source, external_id, first_name, last_name, full_name, phone, reference_date FROM external_records WHERE 1=1`
	var args []any

	if source != "" {
		query += ` AND source = ?`
		args = append(args, string(source))
	}
	query += ` ORDER BY source, external_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list external records")
	}
	defer rows.Close()

	var records []model.ExternalRecord
	for rows.Next() {
		r, err := scanExternalRecord(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan external record")
		}
		records = append(records, *r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list external records iterate")
}

func (s *SQLiteStore) SaveMatchResults(ctx context.Context, results []model.MatchResult) (int64, error) {
	if len(results) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	// Manual rows win: the conflict guard skips the update entirely when
	// the stored row carries is_manual.
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO match_results (source, external_id, driver_id, score, day_diff, is_manual, is_discarded, matched_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (source, external_id) DO UPDATE SET
		   driver_id = excluded.driver_id, score = excluded.score,
		   day_diff = excluded.day_diff, matched_at = excluded.matched_at
		 WHERE is_manual = 0`,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare save match results")
	}
	defer stmt.Close()

	var n int64
	for _, m := range results {
		res, err := stmt.ExecContext(ctx,
			string(m.Source), m.ExternalID, sqliteString(m.DriverID),
			m.Score, m.DayDiff, m.IsManual, m.IsDiscarded, m.MatchedAt,
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: save match result %s/%s", m.Source, m.ExternalID)
		}
		affected, err := res.RowsAffected()
		if err != nil {
			return 0, eris.Wrap(err, "sqlite: rows affected")
		}
		n += affected
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit save match results")
}

func (s *SQLiteStore) GetMatchResult(ctx context.Context, source model.Source, externalID string) (*model.MatchResult, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT source, external_id, driver_id, score, day_diff, is_manual, is_discarded, matched_at
		 FROM match_results WHERE source = ? AND external_id = ?`,
		string(source), externalID,
	)

	m, err := scanSQLiteMatchResult(row)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: match result %s/%s", source, externalID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get match result %s/%s", source, externalID)
	}
	return m, nil
}

func (s *SQLiteStore) ListMatchResults(ctx context.Context, filter ResultFilter) ([]model.MatchResult, error) {
	query := `SELECT source, external_id, driver_id, score, day_diff, is_manual, is_discarded, matched_at FROM match_results WHERE 1=1`
	var args []any

	if filter.Source != "" {
		query += ` AND source = ?`
		args = append(args, string(filter.Source))
	}
	if filter.DriverID != "" {
		query += ` AND driver_id = ?`
		args = append(args, filter.DriverID)
	}
	if filter.OnlyMatched {
		query += ` AND driver_id IS NOT NULL`
	}
	query += ` ORDER BY source, external_id`

	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list match results")
	}
	defer rows.Close()

	var results []model.MatchResult
	for rows.Next() {
		m, err := scanSQLiteMatchResult(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan match result")
		}
		results = append(results, *m)
	}
	return results, eris.Wrap(rows.Err(), "sqlite: list match results iterate")
}

func (s *SQLiteStore) SetManualMatch(ctx context.Context, source model.Source, externalID, driverID string) error {
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

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO match_results (source, external_id, driver_id, score, day_diff, is_manual, is_discarded, matched_at)
		 VALUES (?, ?, ?, 1.0, ?, 1, 0, ?)
		 ON CONFLICT (source, external_id) DO UPDATE SET
		   driver_id = excluded.driver_id, score = 1.0, day_diff = excluded.day_diff,
		   is_manual = 1, is_discarded = 0, matched_at = excluded.matched_at`,
		string(source), externalID, driverID, dayDiff, time.Now().UTC(),
	)
	return eris.Wrapf(err, "sqlite: set manual match %s/%s", source, externalID)
}

func (s *SQLiteStore) ClearOverride(ctx context.Context, source model.Source, externalID string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE match_results SET is_manual = 0 WHERE source = ? AND external_id = ?`,
		string(source), externalID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: clear override %s/%s", source, externalID)
	}
	return checkRowsAffected(res, "match result", string(source)+"/"+externalID)
}

func (s *SQLiteStore) SetDiscarded(ctx context.Context, source model.Source, externalID string, discarded bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE match_results SET is_discarded = ? WHERE source = ? AND external_id = ?`,
		discarded, string(source), externalID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: set discarded %s/%s", source, externalID)
	}
	return checkRowsAffected(res, "match result", string(source)+"/"+externalID)
}

func (s *SQLiteStore) DeleteMatchResult(ctx context.Context, source model.Source, externalID string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM match_results WHERE source = ? AND external_id = ?`,
		string(source), externalID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: delete match result %s/%s", source, externalID)
	}
	return checkRowsAffected(res, "match result", string(source)+"/"+externalID)
}

// helpers

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
	}
	return nil
}

func scanExternalRecord(row scannable) (*model.ExternalRecord, error) {
	var r model.ExternalRecord
	var refDate sql.NullTime
	if err := row.Scan(&r.Source, &r.ExternalID, &r.FirstName, &r.LastName,
		&r.FullName, &r.Phone, &refDate); err != nil {
		return nil, err
	}
	if refDate.Valid {
		r.ReferenceDate = refDate.Time
	}
	return &r, nil
}

func scanSQLiteMatchResult(row scannable) (*model.MatchResult, error) {
	var m model.MatchResult
	var driverID sql.NullString
	if err := row.Scan(&m.Source, &m.ExternalID, &driverID, &m.Score,
		&m.DayDiff, &m.IsManual, &m.IsDiscarded, &m.MatchedAt); err != nil {
		return nil, err
	}
	if driverID.Valid {
		m.DriverID = driverID.String
	}
	return &m, nil
}

func sqliteDate(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func sqliteString(s string) any {
	if s == "" {
		return nil
	}
	return s
}
