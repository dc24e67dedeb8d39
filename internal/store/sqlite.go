package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/los-review/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. It backs offline
// review of exported encounter snapshots.
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
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS encounters_current (
	encounter_id     TEXT PRIMARY KEY,
	patient_id       TEXT,
	encounter_start  TEXT,
	encounter_end    TEXT,
	notes_blob_path  TEXT,
	latest_note_date TEXT,
	data             TEXT
);

CREATE TABLE IF NOT EXISTS encounters_history (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	encounter_id     TEXT NOT NULL,
	patient_id       TEXT,
	encounter_start  TEXT,
	encounter_end    TEXT,
	notes_blob_path  TEXT,
	latest_note_date TEXT,
	data             TEXT,
	add_date         TEXT NOT NULL DEFAULT (strftime('%Y-%m-%dT%H:%M:%SZ', 'now'))
);

CREATE INDEX IF NOT EXISTS idx_encounters_history_encounter_id ON encounters_history(encounter_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) CurrentSnapshots(ctx context.Context, task string, filter SnapshotFilter) ([]model.Snapshot, error) {
	records, err := s.readRecords(ctx, tableCurrent, filter)
	if err != nil {
		return nil, err
	}
	return toSnapshots(records, task, model.SourceCurrent)
}

func (s *SQLiteStore) HistoricalSnapshots(ctx context.Context, task string, filter SnapshotFilter) ([]model.Snapshot, error) {
	records, err := s.readRecords(ctx, tableHistory, filter)
	if err != nil {
		return nil, err
	}
	return toSnapshots(records, task, model.SourceHistorical)
}

func (s *SQLiteStore) readRecords(ctx context.Context, table string, filter SnapshotFilter) ([]Record, error) {
	query, args, err := snapshotQuery(dialectSQLite, table, filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: query %s", table)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows, table == tableHistory)
		if err != nil {
			return nil, eris.Wrapf(err, "sqlite: scan %s", table)
		}
		records = append(records, r)
	}
	return records, eris.Wrapf(rows.Err(), "sqlite: iterate %s", table)
}

func (s *SQLiteStore) UpsertCurrent(ctx context.Context, records []Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin upsert")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO encounters_current
			(encounter_id, patient_id, encounter_start, encounter_end, notes_blob_path, latest_note_date, data)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(encounter_id) DO UPDATE SET
			patient_id = excluded.patient_id,
			encounter_start = excluded.encounter_start,
			encounter_end = excluded.encounter_end,
			notes_blob_path = excluded.notes_blob_path,
			latest_note_date = excluded.latest_note_date,
			data = excluded.data`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	var n int64
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx,
			r.EncounterID, nullable(r.PatientID), nullable(r.EncounterStart), nullable(r.EncounterEnd),
			nullable(r.NotesBlobPath), nullable(r.LatestNoteDate), jsonValue(r.Data),
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert encounter %s", r.EncounterID)
		}
		n++
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit upsert")
}

func (s *SQLiteStore) AppendHistory(ctx context.Context, records []Record) (int64, error) {
	if len(records) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin append")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO encounters_history
			(encounter_id, patient_id, encounter_start, encounter_end, notes_blob_path, latest_note_date, data, add_date)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare append")
	}
	defer stmt.Close()

	var n int64
	for _, r := range records {
		addDate := r.AddDate
		if addDate == "" {
			addDate = time.Now().UTC().Format(time.RFC3339Nano)
		}
		if _, err := stmt.ExecContext(ctx,
			r.EncounterID, nullable(r.PatientID), nullable(r.EncounterStart), nullable(r.EncounterEnd),
			nullable(r.NotesBlobPath), nullable(r.LatestNoteDate), jsonValue(r.Data), addDate,
		); err != nil {
			return 0, eris.Wrapf(err, "sqlite: append encounter %s", r.EncounterID)
		}
		n++
	}
	return n, eris.Wrap(tx.Commit(), "sqlite: commit append")
}
