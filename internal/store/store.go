// Package store records pipeline task runs: which script ran which task,
// when it started and finished, and how it ended.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// RunStatus is the state of a logged task.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one logged task execution.
type Run struct {
	ID         string        `json:"id"`
	Script     string        `json:"script"`
	Task       string        `json:"task"`
	Status     RunStatus     `json:"status"`
	Error      string        `json:"error,omitempty"`
	StartedAt  time.Time     `json:"started_at"`
	FinishedAt *time.Time    `json:"finished_at,omitempty"`
	Duration   time.Duration `json:"duration"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Script string    `json:"script,omitempty"`
	Status RunStatus `json:"status,omitempty"`
	Limit  int       `json:"limit,omitempty"`
	Offset int       `json:"offset,omitempty"`
}

// Store persists the run log.
type Store interface {
	StartRun(ctx context.Context, script, task string) (*Run, error)
	FinishRun(ctx context.Context, run *Run, runErr error) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	Migrate(ctx context.Context) error
	Close() error
}

// Open connects to the store for the configured driver.
func Open(ctx context.Context, driver, databaseURL string) (Store, error) {
	switch driver {
	case "sqlite":
		return NewSQLite(databaseURL)
	case "postgres":
		return NewPostgres(ctx, databaseURL)
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

// finish fills the completion fields of run.
func finish(run *Run, runErr error) {
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Duration = now.Sub(run.StartedAt)
	run.Status = RunStatusComplete
	run.Error = ""
	if runErr != nil {
		run.Status = RunStatusFailed
		run.Error = runErr.Error()
	}
}

// Track runs fn as a logged task. The task's own error is returned; a failure
// to write the log is only logged.
func Track(ctx context.Context, s Store, script, task string, fn func(context.Context) error) error {
	log := zap.L().With(zap.String("script", script), zap.String("task", task))

	run, err := s.StartRun(ctx, script, task)
	if err != nil {
		log.Warn("store: start run failed", zap.Error(err))
		return fn(ctx)
	}

	runErr := fn(ctx)
	if err := s.FinishRun(ctx, run, runErr); err != nil {
		log.Warn("store: finish run failed", zap.String("run_id", run.ID), zap.Error(err))
	}

	if runErr == nil {
		log.Info("processing completed", zap.Float64("duration_mins", run.Duration.Minutes()))
	}
	return runErr
}

func listLimit(filter RunFilter) int {
	if filter.Limit <= 0 {
		return 100
	}
	return filter.Limit
}
