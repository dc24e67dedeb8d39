package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // registers the postgres dialect
	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// UpsertConfig describes a keyed bulk upsert.
type UpsertConfig struct {
	Table   string   // target table, optionally schema-qualified
	Columns []string // column order of every row
	Key     string   // unique column; must be one of Columns
}

func (c UpsertConfig) keyIndex() (int, error) {
	if len(c.Columns) == 0 {
		return 0, eris.New("db: upsert: no columns specified")
	}
	if c.Key == "" {
		return 0, eris.New("db: upsert: no key specified")
	}
	for i, col := range c.Columns {
		if col == c.Key {
			return i, nil
		}
	}
	return 0, eris.Errorf("db: upsert: key %q is not among the columns", c.Key)
}

// BulkUpsert stages rows in a transaction-scoped temp table with COPY, then
// merges them into the target with INSERT ... ON CONFLICT (key) DO UPDATE.
// Rows sharing a key within one call collapse to the last one, matching a
// row-at-a-time upsert.
func BulkUpsert(ctx context.Context, pool Pool, cfg UpsertConfig, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	keyIdx, err := cfg.keyIndex()
	if err != nil {
		return 0, err
	}
	rows = collapseByKey(rows, keyIdx)

	staging := "_upsert_" + strings.ReplaceAll(cfg.Table, ".", "_")
	merge, err := mergeSQL(cfg, staging)
	if err != nil {
		return 0, err
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	create := fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{staging}.Sanitize(), identifier(cfg.Table).Sanitize())
	if _, err := tx.Exec(ctx, create); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: stage %s", cfg.Table)
	}
	if _, err := tx.CopyFrom(ctx, pgx.Identifier{staging}, cfg.Columns, pgx.CopyFromRows(rows)); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: copy %d rows for %s", len(rows), cfg.Table)
	}

	tag, err := tx.Exec(ctx, merge)
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", cfg.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit tx")
	}
	return tag.RowsAffected(), nil
}

// mergeSQL renders the INSERT ... SELECT ... ON CONFLICT statement that
// moves staged rows into the target, overwriting every non-key column.
func mergeSQL(cfg UpsertConfig, staging string) (string, error) {
	cols := make([]any, len(cfg.Columns))
	set := goqu.Record{}
	for i, c := range cfg.Columns {
		cols[i] = c
		if c != cfg.Key {
			set[c] = goqu.L("EXCLUDED." + pgx.Identifier{c}.Sanitize())
		}
	}

	ds := goqu.Dialect("postgres").
		Insert(goqu.I(cfg.Table)).
		Cols(cols...).
		FromQuery(goqu.Dialect("postgres").From(goqu.I(staging)).Select(cols...))
	if len(set) == 0 {
		ds = ds.OnConflict(goqu.DoNothing())
	} else {
		ds = ds.OnConflict(goqu.DoUpdate(pgx.Identifier{cfg.Key}.Sanitize(), set))
	}

	query, _, err := ds.ToSQL()
	if err != nil {
		return "", eris.Wrapf(err, "db: upsert: build merge for %s", cfg.Table)
	}
	return query, nil
}

// collapseByKey keeps the last row for each key, in first-seen key order.
func collapseByKey(rows [][]any, keyIdx int) [][]any {
	pos := make(map[any]int, len(rows))
	out := make([][]any, 0, len(rows))
	for _, r := range rows {
		k := r[keyIdx]
		if i, ok := pos[k]; ok {
			out[i] = r
			continue
		}
		pos[k] = len(out)
		out = append(out, r)
	}
	return out
}

// identifier splits a possibly schema-qualified table name.
func identifier(table string) pgx.Identifier {
	if schema, name, ok := strings.Cut(table, "."); ok {
		return pgx.Identifier{schema, name}
	}
	return pgx.Identifier{table}
}
