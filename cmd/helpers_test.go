package main

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/los-review/internal/config"
	"github.com/sells-group/los-review/internal/model"
	"github.com/sells-group/los-review/internal/pipeline"
	"github.com/sells-group/los-review/internal/registry"
	"github.com/sells-group/los-review/internal/store"
)

// stubRunner returns fixed results per mode.
type stubRunner struct {
	results map[pipeline.Mode]*pipeline.Result
	err     error
}

func (s *stubRunner) Run(_ context.Context, mode pipeline.Mode) (*pipeline.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	if res, ok := s.results[mode]; ok {
		return res, nil
	}
	return &pipeline.Result{RunID: "run-" + string(mode), Mode: mode}, nil
}

func testRows() []model.Row {
	note, _ := model.ParseTimestamp("2024-01-08T09:00:00Z")
	end, _ := model.ParseTimestamp("2024-01-10T14:00:00Z")
	return []model.Row{{
		EncounterID:     "E1",
		PatientID:       "P1",
		FinalPrediction: model.LabelNear,
		NoteDate:        note,
		EncounterEnd:    end,
		VersionKey:      "gpt-4ov3",
		GroundTruth:     model.LabelNear,
		FinalMatches:    model.BoolPtr(true),
	}}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.Store.Driver = "sqlite"
	c.Store.DatabaseURL = filepath.Join(t.TempDir(), "los.db")
	c.Task.Key = model.DefaultTask
	c.Registry.Versions = []registry.Version{{ModelVersion: "gpt-4o", PromptVersion: "v3"}}
	c.Review.SampleCap = 50
	c.Review.ThresholdDays = 2
	c.Review.ExclusionTerms = config.DefaultExclusionTerms
	c.Export.Format = "csv"
	return c
}

const (
	currentJSONL = `{"encounter_id":"E1","patient_id":"P1","encounter_start":"2024-01-05T12:00:00Z","encounter_end":"2024-01-10T14:00:00Z","notes_blob_path":"notes/E1.csv","latest_note_date":"2024-01-08T09:00:00Z","data":{"length_of_stay":{"processing_status":"complete","last_processed":"2024-01-08T11:00:00Z","model_version":"gpt-4o","prompt_version":"v3","results":{"final_prediction":{"prediction":"today/tomorrow","confidence":0.9,"attribution":"ambulating"}},"binary_model_results":{"prediction":"longer","confidence":0.7}}}}
{"encounter_id":"E2","patient_id":"P2","encounter_start":"2024-01-07T12:00:00Z","encounter_end":"NaT","latest_note_date":"2024-01-08T09:00:00Z","data":{"length_of_stay":{"processing_status":"pending"}}}
`
	historicalJSONL = `{"encounter_id":"E1","patient_id":"P1","encounter_start":"2024-01-05T12:00:00Z","encounter_end":"2024-01-10T14:00:00Z","notes_blob_path":"notes/E1.csv","latest_note_date":"2024-01-06T09:00:00Z","add_date":"2024-01-06T11:00:00Z","data":{"length_of_stay":{"processing_status":"complete","last_processed":"2024-01-06T11:00:00Z","model_version":"gpt-4o","prompt_version":"v3","results":{"final_prediction":{"prediction":"longer","confidence":0.8,"attribution":"on IV antibiotics"}},"binary_model_results":{"prediction":"longer","confidence":0.6}}}}
`
)

func writeTemp(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// seededStore opens the configured SQLite store and imports the fixtures.
func seededStore(t *testing.T, c *config.Config) store.Store {
	t.Helper()
	ctx := context.Background()
	st, err := initStore(ctx, c)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(ctx))

	_, _, err = importFiles(ctx, st,
		writeTemp(t, "current.jsonl", currentJSONL),
		writeTemp(t, "historical.jsonl", historicalJSONL),
	)
	require.NoError(t, err)
	return st
}

func csvLines(s string) []string {
	return strings.Split(strings.TrimSpace(s), "\n")
}
