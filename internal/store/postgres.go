package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/los-review/internal/db"
	"github.com/sells-group/los-review/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool db.Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresFromPool wraps an existing pool.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS encounters_current (
	encounter_id     TEXT PRIMARY KEY,
	patient_id       TEXT,
	encounter_start  TEXT,
	encounter_end    TEXT,
	notes_blob_path  TEXT,
	latest_note_date TEXT,
	data             JSONB
);

CREATE TABLE IF NOT EXISTS encounters_history (
	id               BIGSERIAL PRIMARY KEY,
	encounter_id     TEXT NOT NULL,
	patient_id       TEXT,
	encounter_start  TEXT,
	encounter_end    TEXT,
	notes_blob_path  TEXT,
	latest_note_date TEXT,
	data             JSONB,
	add_date         TEXT NOT NULL DEFAULT to_char(now() AT TIME ZONE 'utc', 'YYYY-MM-DD"T"HH24:MI:SS"Z"')
);

CREATE INDEX IF NOT EXISTS idx_encounters_history_encounter_id ON encounters_history(encounter_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) CurrentSnapshots(ctx context.Context, task string, filter SnapshotFilter) ([]model.Snapshot, error) {
	records, err := s.readRecords(ctx, tableCurrent, filter)
	if err != nil {
		return nil, err
	}
	return toSnapshots(records, task, model.SourceCurrent)
}

func (s *PostgresStore) HistoricalSnapshots(ctx context.Context, task string, filter SnapshotFilter) ([]model.Snapshot, error) {
	records, err := s.readRecords(ctx, tableHistory, filter)
	if err != nil {
		return nil, err
	}
	return toSnapshots(records, task, model.SourceHistorical)
}

func (s *PostgresStore) readRecords(ctx context.Context, table string, filter SnapshotFilter) ([]Record, error) {
	query, args, err := snapshotQuery(dialectPostgres, table, filter)
	if err != nil {
		return nil, err
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: query %s", table)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		r, err := scanRecord(rows, table == tableHistory)
		if err != nil {
			return nil, eris.Wrapf(err, "postgres: scan %s", table)
		}
		records = append(records, r)
	}
	return records, eris.Wrapf(rows.Err(), "postgres: iterate %s", table)
}

func (s *PostgresStore) UpsertCurrent(ctx context.Context, records []Record) (int64, error) {
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		rows = append(rows, []any{
			r.EncounterID, nullable(r.PatientID), nullable(r.EncounterStart), nullable(r.EncounterEnd),
			nullable(r.NotesBlobPath), nullable(r.LatestNoteDate), jsonValue(r.Data),
		})
	}
	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:   tableCurrent,
		Columns: recordColumns,
		Key:     "encounter_id",
	}, rows)
	return n, eris.Wrap(err, "postgres: upsert current")
}

func (s *PostgresStore) AppendHistory(ctx context.Context, records []Record) (int64, error) {
	cols := append(append([]string{}, recordColumns...), "add_date")
	rows := make([][]any, 0, len(records))
	for _, r := range records {
		addDate := r.AddDate
		if addDate == "" {
			addDate = time.Now().UTC().Format(time.RFC3339Nano)
		}
		rows = append(rows, []any{
			r.EncounterID, nullable(r.PatientID), nullable(r.EncounterStart), nullable(r.EncounterEnd),
			nullable(r.NotesBlobPath), nullable(r.LatestNoteDate), jsonValue(r.Data), addDate,
		})
	}
	n, err := db.CopyFrom(ctx, s.pool, tableHistory, cols, rows)
	return n, eris.Wrap(err, "postgres: append history")
}
