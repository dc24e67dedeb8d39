package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/los-review/internal/model"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func losDoc(status, lastProcessed, final, raw string) json.RawMessage {
	return json.RawMessage(`{"length_of_stay": {
		"processing_status": "` + status + `",
		"last_processed": "` + lastProcessed + `",
		"model_version": "gpt-4o",
		"prompt_version": "v3",
		"results": {"final_prediction": {"prediction": "` + final + `", "confidence": 0.9, "attribution": "ambulating, plan home"}},
		"binary_model_results": {"prediction": "` + raw + `", "confidence": [0.2, 0.8]}
	}}`)
}

func TestSQLite_UpsertCurrent_RoundTrip(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertCurrent(ctx, []Record{
		{
			EncounterID:    "E2",
			PatientID:      "P2",
			EncounterStart: "2024-01-01T00:00:00Z",
			EncounterEnd:   "NaT",
			NotesBlobPath:  "notes/E2.csv",
			LatestNoteDate: "2024-01-03T10:00:00Z",
			Data:           losDoc("pending", "", "", ""),
		},
		{
			EncounterID:    "E1",
			PatientID:      "P1",
			EncounterStart: "2024-01-05T12:00:00Z",
			EncounterEnd:   "2024-01-10T08:00:00Z",
			NotesBlobPath:  "notes/E1.csv",
			LatestNoteDate: "2024-01-08T09:00:00Z",
			Data:           losDoc("complete", "2024-01-08T11:00:00Z", "today/tomorrow", "longer"),
		},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	snaps, err := st.CurrentSnapshots(ctx, model.DefaultTask, SnapshotFilter{})
	require.NoError(t, err)
	require.Len(t, snaps, 2)

	// Ordered by encounter_id.
	e1 := snaps[0]
	assert.Equal(t, "E1", e1.EncounterID)
	assert.Equal(t, model.SourceCurrent, e1.Source)
	assert.Equal(t, "P1", e1.PatientID)
	assert.Equal(t, "notes/E1.csv", e1.NotesPath)
	assert.Equal(t, "2024-01-10T08:00:00Z", model.FormatTime(e1.End))
	assert.True(t, e1.FinalUsable())
	assert.True(t, e1.RawUsable())
	assert.Equal(t, model.LabelNear, e1.Final.Label)
	assert.Equal(t, model.LabelFar, e1.Raw.Label)
	assert.Equal(t, "gpt-4ov3", e1.VersionKey())
	assert.Nil(t, e1.AddDate)

	e2 := snaps[1]
	assert.Equal(t, "E2", e2.EncounterID)
	assert.Nil(t, e2.End, "NaT sentinel is missing")
	assert.False(t, e2.FinalUsable())
}

func TestSQLite_UpsertCurrent_Overwrites(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	rec := Record{EncounterID: "E1", EncounterEnd: "2024-01-10T08:00:00Z", Data: losDoc("pending", "", "", "")}
	_, err := st.UpsertCurrent(ctx, []Record{rec})
	require.NoError(t, err)

	rec.Data = losDoc("complete", "2024-01-08T11:00:00Z", "longer", "longer")
	_, err = st.UpsertCurrent(ctx, []Record{rec})
	require.NoError(t, err)

	snaps, err := st.CurrentSnapshots(ctx, model.DefaultTask, SnapshotFilter{})
	require.NoError(t, err)
	require.Len(t, snaps, 1)
	assert.True(t, snaps[0].Complete())
	assert.Equal(t, model.LabelFar, snaps[0].Final.Label)
}

func TestSQLite_AppendHistory(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.AppendHistory(ctx, []Record{
		{EncounterID: "E1", LatestNoteDate: "2024-01-06T09:00:00Z", AddDate: "2024-01-06T10:00:00Z",
			Data: losDoc("complete", "2024-01-06T10:00:00Z", "longer", "longer")},
		{EncounterID: "E1", LatestNoteDate: "2024-01-08T09:00:00Z", AddDate: "2024-01-08T10:00:00Z",
			Data: losDoc("complete", "2024-01-08T10:00:00Z", "today/tomorrow", "longer")},
		{EncounterID: "E3", Data: nil},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	snaps, err := st.HistoricalSnapshots(ctx, model.DefaultTask, SnapshotFilter{})
	require.NoError(t, err)
	require.Len(t, snaps, 3)

	assert.Equal(t, model.SourceHistorical, snaps[0].Source)
	require.NotNil(t, snaps[0].AddDate)
	assert.Equal(t, "2024-01-06T10:00:00Z", model.FormatTime(snaps[0].AddDate))
	assert.Equal(t, "2024-01-08T09:00:00Z", model.FormatTime(snaps[1].LatestNoteDate))

	// Missing document: no predictions, not an error.
	assert.Equal(t, "E3", snaps[2].EncounterID)
	assert.Nil(t, snaps[2].Final)
	assert.NotNil(t, snaps[2].AddDate, "add_date defaults to insertion time")
}

func TestSQLite_Filter(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.AppendHistory(ctx, []Record{{EncounterID: "E1"}, {EncounterID: "E2"}, {EncounterID: "E3"}})
	require.NoError(t, err)

	snaps, err := st.HistoricalSnapshots(ctx, model.DefaultTask, SnapshotFilter{EncounterIDs: []string{"E1", "E3"}})
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, "E1", snaps[0].EncounterID)
	assert.Equal(t, "E3", snaps[1].EncounterID)
}

func TestSQLite_ContractViolation(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	_, err := st.UpsertCurrent(ctx, []Record{{EncounterID: "E1", Data: json.RawMessage(`{"length_of_stay": [1, 2]}`)}})
	require.NoError(t, err)

	_, err = st.CurrentSnapshots(ctx, model.DefaultTask, SnapshotFilter{})
	require.Error(t, err)
	assert.True(t, eris.Is(err, model.ErrContract))
	assert.Contains(t, err.Error(), "encounter E1")
}

func TestSQLite_EmptyInputs(t *testing.T) {
	st := newTestSQLiteStore(t)
	ctx := context.Background()

	n, err := st.UpsertCurrent(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = st.AppendHistory(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, n)

	snaps, err := st.CurrentSnapshots(ctx, model.DefaultTask, SnapshotFilter{})
	require.NoError(t, err)
	assert.Empty(t, snaps)
}
