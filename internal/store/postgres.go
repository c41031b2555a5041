package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/indicators-cli/internal/db"
)

// PostgresStore implements Store on the indicators.run_log table.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres connects a PostgresStore.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pool, err := db.Connect(ctx, connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: connect")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresWithPool wraps an existing pool. Close leaves the pool open.
func NewPostgresWithPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Pool returns the underlying database pool, shared with the PostGIS writer.
func (s *PostgresStore) Pool() db.Pool {
	return s.pool
}

// Migrate applies the shared indicators migrations, which include run_log.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	return eris.Wrap(db.Migrate(ctx, s.pool), "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) StartRun(ctx context.Context, script, task string) (*Run, error) {
	run := &Run{
		ID:        uuid.New().String(),
		Script:    script,
		Task:      task,
		Status:    RunStatusRunning,
		StartedAt: time.Now().UTC(),
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO indicators.run_log (id, script, task, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Script, run.Task, string(run.Status), run.StartedAt,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: insert run %s/%s", script, task)
	}
	return run, nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, run *Run, runErr error) error {
	finish(run, runErr)

	tag, err := s.pool.Exec(ctx,
		`UPDATE indicators.run_log SET status = $1, error = $2, finished_at = $3, duration_ms = $4 WHERE id = $5`,
		string(run.Status), run.Error, *run.FinishedAt, run.Duration.Milliseconds(), run.ID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", run.ID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("run not found: %s", run.ID)
	}
	return nil
}

const runColumns = `id, script, task, status, error, started_at, finished_at, duration_ms`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+runColumns+` FROM indicators.run_log WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Errorf("postgres: get run: run not found: %s", runID)
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get run")
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM indicators.run_log WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Script != "" {
		query += fmt.Sprintf(` AND script = $%d`, argIdx)
		args = append(args, filter.Script)
		argIdx++
	}
	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += fmt.Sprintf(` ORDER BY started_at DESC LIMIT $%d`, argIdx)
	args = append(args, listLimit(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func scanPgRun(row pgx.Row) (*Run, error) {
	var (
		r          Run
		status     string
		finishedAt *time.Time
		durationMS *int64
	)
	if err := row.Scan(&r.ID, &r.Script, &r.Task, &status, &r.Error, &r.StartedAt, &finishedAt, &durationMS); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	r.FinishedAt = finishedAt
	if durationMS != nil {
		r.Duration = time.Duration(*durationMS) * time.Millisecond
	}
	return &r, nil
}
