// Package store keeps the history of annual index runs in SQLite.
package store

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/forest-guardian/field-indices-cli/internal/dataset"
	"github.com/forest-guardian/field-indices-cli/internal/field"
	"github.com/forest-guardian/field-indices-cli/internal/indices"
)

var ErrRunNotFound = eris.New("run not found")

type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one execution of the annual pipeline.
type Run struct {
	ID           string
	Status       RunStatus
	StartYear    int
	EndYear      int
	FieldsSource string
	Error        string
	CreatedAt    time.Time
	FinishedAt   *time.Time
	Records      int
}

type RunParams struct {
	StartYear    int
	EndYear      int
	FieldsSource string
}

// SQLiteStore persists runs, their fields and records using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// sqlitePragmas run on every connection the pool opens.
var sqlitePragmas = []string{
	"busy_timeout(5000)",
	"foreign_keys(1)",
	"journal_mode(WAL)",
	"synchronous(NORMAL)",
}

func sqliteDSN(path string) string {
	q := url.Values{}
	for _, pragma := range sqlitePragmas {
		q.Add("_pragma", pragma)
	}
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + q.Encode()
}

// NewSQLite opens a SQLite database at the given path in WAL mode with
// foreign keys enforced on every connection.
func NewSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, eris.Wrapf(err, "sqlite: open %s", path)
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	status        TEXT NOT NULL DEFAULT 'running',
	start_year    INTEGER NOT NULL,
	end_year      INTEGER NOT NULL,
	fields_source TEXT NOT NULL DEFAULT '',
	error         TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT (datetime('now')),
	finished_at   DATETIME
);

CREATE TABLE IF NOT EXISTS fields (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	field_id  TEXT NOT NULL,
	position  INTEGER NOT NULL,
	area_ha   REAL NOT NULL,
	geometry  BLOB NOT NULL,
	PRIMARY KEY (run_id, field_id)
);

CREATE TABLE IF NOT EXISTS records (
	run_id    TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	field_id  TEXT NOT NULL,
	year      INTEGER NOT NULL,
	scenes    INTEGER NOT NULL,
	pixels    INTEGER NOT NULL,
	ndvi_pixels INTEGER NOT NULL DEFAULT 0,
	evi_pixels  INTEGER NOT NULL DEFAULT 0,
	ndwi_pixels INTEGER NOT NULL DEFAULT 0,
	ndvi_mean REAL, ndvi_max REAL, ndvi_min REAL, ndvi_amp REAL,
	evi_mean  REAL, evi_max  REAL, evi_min  REAL, evi_amp  REAL,
	ndwi_mean REAL, ndwi_max REAL, ndwi_min REAL, ndwi_amp REAL,
	PRIMARY KEY (run_id, field_id, year)
);

CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
CREATE INDEX IF NOT EXISTS idx_records_run_id ON records(run_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	// databases created before per-index pixel counts were stored
	for _, idx := range indices.All {
		if err := s.addColumn(ctx, "records", string(idx)+"_pixels", "INTEGER NOT NULL DEFAULT 0"); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteStore) addColumn(ctx context.Context, table, column, decl string) error {
	rows, err := s.db.QueryContext(ctx, `SELECT name FROM pragma_table_info(?)`, table)
	if err != nil {
		return eris.Wrapf(err, "sqlite: columns of %s", table)
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return eris.Wrapf(err, "sqlite: scan columns of %s", table)
		}
		if name == column {
			return nil
		}
	}
	if err := rows.Err(); err != nil {
		return eris.Wrapf(err, "sqlite: columns of %s", table)
	}
	_ = rows.Close()

	_, err = s.db.ExecContext(ctx, `ALTER TABLE `+table+` ADD COLUMN `+column+` `+decl)
	return eris.Wrapf(err, "sqlite: add %s.%s", table, column)
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CreateRun(ctx context.Context, params RunParams) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, status, start_year, end_year, fields_source, created_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, string(RunStatusRunning), params.StartYear, params.EndYear, params.FieldsSource, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &Run{
		ID:           id,
		Status:       RunStatusRunning,
		StartYear:    params.StartYear,
		EndYear:      params.EndYear,
		FieldsSource: params.FieldsSource,
		CreatedAt:    now,
	}, nil
}

// FinishRun marks a run complete, or failed when runErr is not nil.
func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, runErr error) error {
	status, message := RunStatusComplete, ""
	if runErr != nil {
		status, message = RunStatusFailed, runErr.Error()
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		string(status), message, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, runID)
}

// SaveFields stores the run's fields, their order and geometry as EWKB.
func (s *SQLiteStore) SaveFields(ctx context.Context, runID string, fields []field.Field) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin fields")
	}
	defer func() { _ = tx.Rollback() }()

	for i, f := range fields {
		geometry, err := field.EncodeWKB(f)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT OR REPLACE INTO fields (run_id, field_id, position, area_ha, geometry) VALUES (?, ?, ?, ?, ?)`,
			runID, f.ID, i, f.AreaHectares(), geometry,
		)
		if err != nil {
			return eris.Wrapf(err, "sqlite: insert field %s", f.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit fields")
}

func (s *SQLiteStore) Fields(ctx context.Context, runID string) ([]field.Field, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT field_id, geometry FROM fields WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list fields of %s", runID)
	}
	defer func() { _ = rows.Close() }()

	var fields []field.Field
	for rows.Next() {
		var (
			id       string
			geometry []byte
		)
		if err := rows.Scan(&id, &geometry); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan field")
		}
		f, err := field.DecodeWKB(id, geometry)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, eris.Wrap(rows.Err(), "sqlite: list fields iterate")
}

// SaveRecords inserts or replaces records of a run.
func (s *SQLiteStore) SaveRecords(ctx context.Context, runID string, records []dataset.Record) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin records")
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `INSERT OR REPLACE INTO records (
		run_id, field_id, year, scenes, pixels,
		ndvi_pixels, evi_pixels, ndwi_pixels,
		ndvi_mean, ndvi_max, ndvi_min, ndvi_amp,
		evi_mean, evi_max, evi_min, evi_amp,
		ndwi_mean, ndwi_max, ndwi_min, ndwi_amp
	) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare records")
	}
	defer func() { _ = stmt.Close() }()

	for _, r := range records {
		args := []any{runID, r.FieldID, r.Year, r.Scenes, r.Pixels}
		for _, idx := range indices.All {
			args = append(args, r.Summary(idx).Pixels)
		}
		for _, idx := range indices.All {
			summary := r.Summary(idx)
			for _, st := range indices.Stats {
				args = append(args, nullable(summary.Get(st)))
			}
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return eris.Wrapf(err, "sqlite: insert record %s/%d", r.FieldID, r.Year)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit records")
}

// Records returns a run's records ordered by year, then by field order.
func (s *SQLiteStore) Records(ctx context.Context, runID string) ([]dataset.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.field_id, r.year, r.scenes, r.pixels,
			r.ndvi_pixels, r.evi_pixels, r.ndwi_pixels,
			r.ndvi_mean, r.ndvi_max, r.ndvi_min, r.ndvi_amp,
			r.evi_mean, r.evi_max, r.evi_min, r.evi_amp,
			r.ndwi_mean, r.ndwi_max, r.ndwi_min, r.ndwi_amp
		FROM records r
		LEFT JOIN fields f ON f.run_id = r.run_id AND f.field_id = r.field_id
		WHERE r.run_id = ?
		ORDER BY r.year, f.position, r.field_id`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list records of %s", runID)
	}
	defer func() { _ = rows.Close() }()

	var records []dataset.Record
	for rows.Next() {
		var (
			r      dataset.Record
			pixels [3]int
			stats  [12]sql.NullFloat64
		)
		dest := []any{&r.FieldID, &r.Year, &r.Scenes, &r.Pixels}
		for i := range pixels {
			dest = append(dest, &pixels[i])
		}
		for i := range stats {
			dest = append(dest, &stats[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan record")
		}

		r.Indices = make(map[indices.Index]indices.Summary, len(indices.All))
		for i, idx := range indices.All {
			v := stats[i*4 : i*4+4]
			summary := indices.Summary{
				Mean:      fromNullable(v[0]),
				Max:       fromNullable(v[1]),
				Min:       fromNullable(v[2]),
				Amplitude: fromNullable(v[3]),
				Pixels:    pixels[i],
			}
			r.Indices[idx] = summary
		}
		records = append(records, r)
	}
	return records, eris.Wrap(rows.Err(), "sqlite: list records iterate")
}

const runColumns = `r.id, r.status, r.start_year, r.end_year, r.fields_source, r.error, r.created_at, r.finished_at,
	(SELECT COUNT(*) FROM records WHERE run_id = r.id)`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs r WHERE r.id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrRunNotFound, "sqlite: run %s", runID)
	}
	return run, err
}

// LatestRun returns the most recent complete run.
func (s *SQLiteStore) LatestRun(ctx context.Context) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+runColumns+` FROM runs r WHERE r.status = ? ORDER BY r.created_at DESC LIMIT 1`,
		string(RunStatusComplete),
	)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrap(ErrRunNotFound, "sqlite: no complete run")
	}
	return run, err
}

// ListRuns returns the most recent runs first.
func (s *SQLiteStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs r ORDER BY r.created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func checkRowsAffected(res sql.Result, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(ErrRunNotFound, "sqlite: run %s", runID)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var (
		r        Run
		status   string
		finished sql.NullTime
	)
	err := row.Scan(&r.ID, &status, &r.StartYear, &r.EndYear, &r.FieldsSource, &r.Error, &r.CreatedAt, &finished, &r.Records)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}
	r.Status = RunStatus(status)
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return &r, nil
}

// NaN statistics are stored as NULL.
func nullable(v float64) sql.NullFloat64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: v, Valid: true}
}

func fromNullable(v sql.NullFloat64) float64 {
	if !v.Valid {
		return math.NaN()
	}
	return v.Float64
}
