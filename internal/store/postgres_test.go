package store

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/los-review/internal/model"
)

// newMockPostgresStore creates a PostgresStore backed by pgxmock for unit testing.
func newMockPostgresStore(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { mock.Close() })

	return NewPostgresFromPool(mock), mock
}

func strPtr(s string) *string { return &s }

var currentCols = []string{"encounter_id", "patient_id", "encounter_start", "encounter_end", "notes_blob_path", "latest_note_date", "data"}

func TestPostgresStore_CurrentSnapshots(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := mock.NewRows(currentCols).
		AddRow("E1", strPtr("P1"), strPtr("2024-01-05T12:00:00Z"), strPtr("2024-01-10T08:00:00Z"),
			strPtr("notes/E1.csv"), strPtr("2024-01-08T09:00:00Z"),
			[]byte(losDoc("complete", "2024-01-08T11:00:00Z", "today/tomorrow", "longer"))).
		AddRow("E2", (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), []byte(nil))

	mock.ExpectQuery(`SELECT "encounter_id", .* FROM "encounters_current" ORDER BY "encounter_id" ASC`).
		WillReturnRows(rows)

	snaps, err := s.CurrentSnapshots(context.Background(), model.DefaultTask, SnapshotFilter{})
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	assert.Equal(t, "E1", snaps[0].EncounterID)
	assert.True(t, snaps[0].FinalUsable())
	assert.Equal(t, model.LabelFar, snaps[0].Raw.Label)

	assert.Equal(t, "E2", snaps[1].EncounterID)
	assert.Nil(t, snaps[1].End)
	assert.Nil(t, snaps[1].Final)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_HistoricalSnapshots_Filter(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	cols := append(append([]string{}, currentCols...), "id", "add_date")
	rows := mock.NewRows(cols).
		AddRow("E1", strPtr("P1"), (*string)(nil), strPtr("2024-01-10T08:00:00Z"), (*string)(nil),
			strPtr("2024-01-06T09:00:00Z"), []byte(`{}`), int64(7), strPtr("2024-01-06T10:00:00Z"))

	mock.ExpectQuery(`FROM "encounters_history" WHERE \("encounter_id" IN \(\$1\)\) ORDER BY "id" ASC`).
		WithArgs("E1").
		WillReturnRows(rows)

	snaps, err := s.HistoricalSnapshots(context.Background(), model.DefaultTask, SnapshotFilter{EncounterIDs: []string{"E1"}})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.Equal(t, model.SourceHistorical, snaps[0].Source)
	assert.Equal(t, "2024-01-06T10:00:00Z", model.FormatTime(snaps[0].AddDate))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_QueryError(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectQuery(`FROM "encounters_current"`).WillReturnError(fmt.Errorf("connection reset"))

	_, err := s.CurrentSnapshots(context.Background(), model.DefaultTask, SnapshotFilter{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "postgres: query encounters_current")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_ContractViolation(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	rows := mock.NewRows(currentCols).
		AddRow("", (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), (*string)(nil), []byte(nil))
	mock.ExpectQuery(`FROM "encounters_current"`).WillReturnRows(rows)

	_, err := s.CurrentSnapshots(context.Background(), model.DefaultTask, SnapshotFilter{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrContract))
}

func TestPostgresStore_Migrate(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS encounters_current`).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	require.NoError(t, s.Migrate(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_AppendHistory(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectCopyFrom(pgx.Identifier{"encounters_history"},
		[]string{"encounter_id", "patient_id", "encounter_start", "encounter_end", "notes_blob_path", "latest_note_date", "data", "add_date"}).
		WillReturnResult(2)

	n, err := s.AppendHistory(context.Background(), []Record{
		{EncounterID: "E1", AddDate: "2024-01-06T10:00:00Z"},
		{EncounterID: "E1"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStore_UpsertCurrent(t *testing.T) {
	s, mock := newMockPostgresStore(t)

	mock.ExpectBegin()
	mock.ExpectExec(`CREATE TEMP TABLE`).WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_upsert_encounters_current"}, recordColumns).WillReturnResult(1)
	mock.ExpectExec(`INSERT INTO "encounters_current"`).WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	n, err := s.UpsertCurrent(context.Background(), []Record{{EncounterID: "E1", Data: losDoc("complete", "", "", "")}})
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
