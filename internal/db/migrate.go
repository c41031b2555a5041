package db

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"io/fs"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// migrationLockKey serialises concurrent Migrate calls across processes.
const migrationLockKey = 4326001

const migrationTableSQL = `
CREATE SCHEMA IF NOT EXISTS indicators;
CREATE TABLE IF NOT EXISTS indicators.schema_migrations (
	filename   TEXT PRIMARY KEY,
	checksum   TEXT NOT NULL,
	applied_at TIMESTAMPTZ NOT NULL DEFAULT now()
);`

type migration struct {
	name     string
	sql      string
	checksum string
}

// Migrate applies the embedded migrations that have not run yet, in file name
// order and in a single transaction. The transaction holds an advisory lock,
// so concurrent callers wait and then see the work already done. A migration
// whose contents changed after it was applied is an error.
func Migrate(ctx context.Context, pool Pool) error {
	pending, err := loadMigrations()
	if err != nil {
		return err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "db: begin migrations")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	// Released by commit or rollback on this connection.
	if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", migrationLockKey); err != nil {
		return eris.Wrap(err, "db: acquire migration advisory lock")
	}
	if _, err := tx.Exec(ctx, migrationTableSQL); err != nil {
		return eris.Wrap(err, "db: ensure migration table")
	}

	applied, err := appliedMigrations(ctx, tx)
	if err != nil {
		return err
	}

	var ran []string
	for _, m := range pending {
		sum, done := applied[m.name]
		if done {
			if sum != m.checksum {
				return eris.Errorf("db: migration %s changed after it was applied", m.name)
			}
			continue
		}
		if _, err := tx.Exec(ctx, m.sql); err != nil {
			return eris.Wrapf(err, "db: apply migration %s", m.name)
		}
		if _, err := tx.Exec(ctx,
			"INSERT INTO indicators.schema_migrations (filename, checksum) VALUES ($1, $2)",
			m.name, m.checksum,
		); err != nil {
			return eris.Wrapf(err, "db: record migration %s", m.name)
		}
		ran = append(ran, m.name)
	}

	if err := tx.Commit(ctx); err != nil {
		return eris.Wrap(err, "db: commit migrations")
	}
	for _, name := range ran {
		zap.L().Info("db: applied migration", zap.String("file", name))
	}
	return nil
}

func loadMigrations() ([]migration, error) {
	names, err := fs.Glob(migrationFS, "migrations/*.sql")
	if err != nil {
		return nil, eris.Wrap(err, "db: list migrations")
	}
	slices.Sort(names)

	out := make([]migration, 0, len(names))
	for _, p := range names {
		data, err := migrationFS.ReadFile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "db: read %s", p)
		}
		sum := sha256.Sum256(data)
		out = append(out, migration{
			name:     p[len("migrations/"):],
			sql:      string(data),
			checksum: hex.EncodeToString(sum[:]),
		})
	}
	return out, nil
}

// appliedMigrations maps applied file names to their recorded checksums.
func appliedMigrations(ctx context.Context, tx pgx.Tx) (map[string]string, error) {
	rows, err := tx.Query(ctx, "SELECT filename, checksum FROM indicators.schema_migrations")
	if err != nil {
		return nil, eris.Wrap(err, "db: query applied migrations")
	}
	sums, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) ([2]string, error) {
		var r [2]string
		err := row.Scan(&r[0], &r[1])
		return r, err
	})
	if err != nil {
		return nil, eris.Wrap(err, "db: scan applied migrations")
	}

	applied := make(map[string]string, len(sums))
	for _, r := range sums {
		applied[r[0]] = r[1]
	}
	return applied, nil
}
