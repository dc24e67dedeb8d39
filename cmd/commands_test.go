package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/los-review/internal/model"
	"github.com/sells-group/los-review/internal/pipeline"
	"github.com/sells-group/los-review/internal/store"
)

func TestImportFiles_SQLite(t *testing.T) {
	c := testConfig(t)
	st := seededStore(t, c)
	ctx := context.Background()

	current, err := st.CurrentSnapshots(ctx, model.DefaultTask, store.SnapshotFilter{})
	require.NoError(t, err)
	assert.Len(t, current, 2)

	historical, err := st.HistoricalSnapshots(ctx, model.DefaultTask, store.SnapshotFilter{})
	require.NoError(t, err)
	require.Len(t, historical, 1)
	assert.Equal(t, "2024-01-06T11:00:00Z", model.FormatTime(historical[0].AddDate))
}

func TestImportFile_BadLine(t *testing.T) {
	c := testConfig(t)
	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	path := writeTemp(t, "bad.jsonl", "{\"encounter_id\":\"E1\"}\nnot json\n")
	_, _, err = importFiles(context.Background(), st, path, "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

func TestImportFiles_MissingFile(t *testing.T) {
	c := testConfig(t)
	st, err := initStore(context.Background(), c)
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, _, err = importFiles(context.Background(), st, "", filepath.Join(t.TempDir(), "nope.jsonl"))
	assert.Error(t, err)
}

func TestReconcile_EndToEnd(t *testing.T) {
	c := testConfig(t)
	seededStore(t, c)

	env, err := initPipeline(context.Background(), c)
	require.NoError(t, err)
	defer env.Close()

	var out bytes.Buffer
	res, err := reconcile(context.Background(), env.Pipeline, pipeline.ModeDual, "", "csv", &out)
	require.NoError(t, err)
	require.Len(t, res.Rows, 2)

	records, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, model.Columns, records[0])

	// 01-06 note, 4 days out: final FAR matches.
	assert.Equal(t, "longer", records[1][15])
	assert.Equal(t, "true", records[1][16])
	// 01-08 note, 2 days out: final NEAR matches, raw FAR does not.
	assert.Equal(t, "today/tomorrow", records[2][15])
	assert.Equal(t, "true", records[2][16])
	assert.Equal(t, "false", records[2][17])
}

func TestReconcile_WritesXLSXFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "rows.xlsx")
	r := &stubRunner{results: map[pipeline.Mode]*pipeline.Result{
		pipeline.ModeSingle: {RunID: "x", Rows: testRows()},
	}}

	_, err := reconcile(context.Background(), r, pipeline.ModeSingle, path, "xlsx", nil)
	require.NoError(t, err)
	_, err = os.Stat(path)
	assert.NoError(t, err)
}

func TestReconcile_RunError(t *testing.T) {
	_, err := reconcile(context.Background(), &stubRunner{err: eris.New("store down")}, pipeline.ModeSingle, "", "csv", &bytes.Buffer{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store down")
}

func TestWriteRows_UnsupportedFormat(t *testing.T) {
	err := writeRows(testRows(), filepath.Join(t.TempDir(), "rows.parquet"), "parquet", nil)
	assert.Error(t, err)
}

func TestExportAll(t *testing.T) {
	c := testConfig(t)
	seededStore(t, c)

	env, err := initPipeline(context.Background(), c)
	require.NoError(t, err)
	defer env.Close()

	dir := filepath.Join(t.TempDir(), "downloads")
	files, err := exportAll(context.Background(), env.Pipeline, dir, "csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"los_predictions.csv", "los_predictions_dual.csv", "encounters_metadata.csv", "manifest.json"}, files)

	for _, name := range files {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}

	data, err := os.ReadFile(filepath.Join(dir, manifestFile))
	require.NoError(t, err)
	var m pipeline.Manifest
	require.NoError(t, json.Unmarshal(data, &m))
	assert.Equal(t, pipeline.ModeReview, m.Mode)
	assert.NotEmpty(t, m.RunID)

	f, err := os.Open(filepath.Join(dir, encountersFile))
	require.NoError(t, err)
	defer f.Close()
	records, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "E1", records[1][0])
	assert.Equal(t, "5", records[1][4])
}

func TestAnalyze_InputFile(t *testing.T) {
	path := writeTemp(t, "review.csv", "Encounter ID,Note Date,Ground Truth,v1_Validation_Result,v1_Final_Prediction\nE1,2024-01-08,longer,true,longer\n")

	var out bytes.Buffer
	require.NoError(t, analyze(context.Background(), path, "", false, &out))
	assert.Contains(t, out.String(), "Reviews:")
	assert.Contains(t, out.String(), "100.0%")
}

func TestAnalyze_JSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "clinical_validation_denormalized_1.csv"),
		[]byte("Encounter ID,Note Date,v1_Validation_Result\nE1,2024-01-08,no\n"), 0o644))

	var out bytes.Buffer
	require.NoError(t, analyze(context.Background(), "", dir, true, &out))

	var summary map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &summary))
	assert.Equal(t, float64(1), summary["records"])
}

func TestAnalyze_MissingFile(t *testing.T) {
	err := analyze(context.Background(), filepath.Join(t.TempDir(), "none.csv"), "", false, &bytes.Buffer{})
	assert.Error(t, err)
}

func TestInitStore_UnknownDriver(t *testing.T) {
	c := testConfig(t)
	c.Store.Driver = "oracle"
	_, err := initStore(context.Background(), c)
	assert.Error(t, err)
}

func TestInitStore_PostgresNeedsURL(t *testing.T) {
	c := testConfig(t)
	c.Store.Driver = "postgres"
	c.Store.DatabaseURL = ""
	_, err := initStore(context.Background(), c)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database_url")
}
