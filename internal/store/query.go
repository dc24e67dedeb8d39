package store

import (
	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres" // register dialect
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"  // register dialect
	"github.com/rotisserie/eris"
)

const (
	dialectPostgres = "postgres"
	dialectSQLite   = "sqlite3"
)

var baseColumns = []any{
	"encounter_id",
	"patient_id",
	"encounter_start",
	"encounter_end",
	"notes_blob_path",
	"latest_note_date",
	"data",
}

// snapshotQuery builds the read query for one of the two stores. History
// rows also select their surrogate id and add_date.
func snapshotQuery(dialect, table string, filter SnapshotFilter) (string, []any, error) {
	cols := baseColumns
	order := goqu.C("encounter_id").Asc()
	if table == tableHistory {
		cols = append(append([]any{}, baseColumns...), "id", "add_date")
		order = goqu.C("id").Asc()
	}

	ds := goqu.Dialect(dialect).
		From(table).
		Select(cols...).
		Order(order).
		Prepared(true)

	if len(filter.EncounterIDs) > 0 {
		ds = ds.Where(goqu.C("encounter_id").In(filter.EncounterIDs))
	}

	query, args, err := ds.ToSQL()
	if err != nil {
		return "", nil, eris.Wrapf(err, "store: build %s query", table)
	}
	return query, args, nil
}
