package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	// Pragmas are per connection; one connection also serialises writers.
	db.SetMaxOpenConns(1)
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS run_log (
	id          TEXT PRIMARY KEY,
	script      TEXT NOT NULL,
	task        TEXT NOT NULL,
	status      TEXT NOT NULL,
	error       TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	duration_ms INTEGER
);

CREATE INDEX IF NOT EXISTS idx_run_log_started_at ON run_log(started_at);
CREATE INDEX IF NOT EXISTS idx_run_log_script ON run_log(script);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) StartRun(ctx context.Context, script, task string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Script:    script,
		Task:      task,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_log (id, script, task, status, started_at) VALUES (?, ?, ?, ?, ?)`,
		run.ID, run.Script, run.Task, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: insert run %s/%s", script, task)
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, run *Run, runErr error) error {
	finish(run, runErr)

	res, err := s.db.ExecContext(ctx,
		`UPDATE run_log SET status = ?, error = ?, finished_at = ?, duration_ms = ? WHERE id = ?`,
		string(run.Status), run.Error, *run.FinishedAt, run.Duration.Milliseconds(), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", run.ID)
	}
	return checkRowsAffected(res, "run", run.ID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, script, task, status, error, started_at, finished_at, duration_ms FROM run_log WHERE id = ?`,
		runID,
	)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, script, task, status, error, started_at, finished_at, duration_ms FROM run_log WHERE 1=1`
	var args []any

	if filter.Script != "" {
		query += ` AND script = ?`
		args = append(args, filter.Script)
	}
	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC LIMIT ?`
	args = append(args, listLimit(filter))

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

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

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Errorf("%s not found: %s", entity, id)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRun(row scannable) (*Run, error) {
	var (
		r          Run
		status     string
		finishedAt sql.NullTime
		durationMS sql.NullInt64
	)

	err := row.Scan(&r.ID, &r.Script, &r.Task, &status, &r.Error, &r.StartedAt, &finishedAt, &durationMS)
	if err == sql.ErrNoRows {
		return nil, eris.New("run not found")
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan run")
	}

	r.Status = RunStatus(status)
	if finishedAt.Valid {
		t := finishedAt.Time.UTC()
		r.FinishedAt = &t
	}
	if durationMS.Valid {
		r.Duration = time.Duration(durationMS.Int64) * time.Millisecond
	}
	return &r, nil
}
