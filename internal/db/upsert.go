package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes how a batch of rows lands in a target table.
type UpsertConfig struct {
	Table   string   // schema-qualified target, e.g. "indicators.hex"
	Columns []string // column order of every row
	Keys    []string // primary key columns
	Touch   string   // timestamp column set to now() when a row is updated
	// Scope, when set, names a column whose staged values define the rows
	// the batch owns: target rows in those scopes missing from the batch are
	// deleted.
	Scope string
}

// UpsertResult counts the rows a staged upsert changed.
type UpsertResult struct {
	Upserted int64
	Pruned   int64
}

func (c UpsertConfig) validate() error {
	if c.Table == "" {
		return eris.New("db: upsert: no table specified")
	}
	if len(c.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(c.Keys) == 0 {
		return eris.New("db: upsert: no key columns specified")
	}
	for _, k := range append(append([]string{}, c.Keys...), c.Scope) {
		if k != "" && !contains(c.Columns, k) {
			return eris.Errorf("db: upsert: column %q is not staged", k)
		}
	}
	return nil
}

// stageTable names the temp table rows are copied into.
func (c UpsertConfig) stageTable() string {
	return "_stage_" + strings.ReplaceAll(c.Table, ".", "_")
}

// insertSQL moves staged rows into the target, updating existing keys.
func (c UpsertConfig) insertSQL() string {
	cols := identList(c.Columns)

	var set []string
	for _, col := range c.Columns {
		if contains(c.Keys, col) {
			continue
		}
		id := pgx.Identifier{col}.Sanitize()
		set = append(set, fmt.Sprintf("%s = EXCLUDED.%s", id, id))
	}
	if c.Touch != "" {
		set = append(set, fmt.Sprintf("%s = now()", pgx.Identifier{c.Touch}.Sanitize()))
	}

	action := "DO NOTHING"
	if len(set) > 0 {
		action = "DO UPDATE SET " + strings.Join(set, ", ")
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		tableIdent(c.Table), cols, cols, pgx.Identifier{c.stageTable()}.Sanitize(), identList(c.Keys), action,
	)
}

// pruneSQL deletes target rows in the staged scopes that the batch no longer
// carries.
func (c UpsertConfig) pruneSQL() string {
	stage := pgx.Identifier{c.stageTable()}.Sanitize()
	scope := pgx.Identifier{c.Scope}.Sanitize()

	match := make([]string, len(c.Keys))
	for i, k := range c.Keys {
		id := pgx.Identifier{k}.Sanitize()
		match[i] = fmt.Sprintf("s.%s = t.%s", id, id)
	}
	return fmt.Sprintf(
		"DELETE FROM %s t WHERE t.%s IN (SELECT DISTINCT %s FROM %s) AND NOT EXISTS (SELECT 1 FROM %s s WHERE %s)",
		tableIdent(c.Table), scope, scope, stage, stage, strings.Join(match, " AND "),
	)
}

// ClearScope deletes every target row whose Scope column equals value. It is
// the prune for a batch that stages no rows at all.
func ClearScope(ctx context.Context, pool Pool, cfg UpsertConfig, value string) (int64, error) {
	if err := cfg.validate(); err != nil {
		return 0, err
	}
	if cfg.Scope == "" {
		return 0, eris.Errorf("db: clear %s: no scope column", cfg.Table)
	}
	sql := fmt.Sprintf("DELETE FROM %s WHERE %s = $1", tableIdent(cfg.Table), pgx.Identifier{cfg.Scope}.Sanitize())
	tag, err := pool.Exec(ctx, sql, value)
	if err != nil {
		return 0, eris.Wrapf(err, "db: clear %s for %s", cfg.Table, value)
	}
	return tag.RowsAffected(), nil
}

// UpsertRows copies rows into a temp table and merges them into the target in
// one transaction: INSERT ... ON CONFLICT, then the optional scope prune.
func UpsertRows(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (UpsertResult, error) {
	var res UpsertResult
	if len(rows) == 0 {
		return res, nil
	}
	if err := cfg.validate(); err != nil {
		return res, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return res, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	createSQL := fmt.Sprintf(
		"CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{cfg.stageTable()}.Sanitize(),
		tableIdent(cfg.Table),
	)
	if _, err := tx.Exec(ctx, createSQL); err != nil {
		return res, eris.Wrapf(err, "db: upsert: create stage for %s", cfg.Table)
	}

	if _, err := tx.CopyFrom(ctx, pgx.Identifier{cfg.stageTable()}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return res, eris.Wrapf(err, "db: upsert: COPY into stage for %s", cfg.Table)
	}

	tag, err := tx.Exec(ctx, cfg.insertSQL())
	if err != nil {
		return res, eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
	}
	res.Upserted = tag.RowsAffected()

	if cfg.Scope != "" {
		tag, err := tx.Exec(ctx, cfg.pruneSQL())
		if err != nil {
			return res, eris.Wrapf(err, "db: upsert: prune %s", cfg.Table)
		}
		res.Pruned = tag.RowsAffected()
	}

	if err := tx.Commit(ctx); err != nil {
		return UpsertResult{}, eris.Wrap(err, "db: upsert: commit tx")
	}
	return res, nil
}

// tableIdent quotes a possibly schema-qualified table name.
func tableIdent(table string) string {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}.Sanitize()
	}
	return pgx.Identifier{table}.Sanitize()
}

func identList(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
