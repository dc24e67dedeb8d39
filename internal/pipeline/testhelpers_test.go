package pipeline

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sells-group/los-review/internal/model"
	"github.com/sells-group/los-review/internal/registry"
)

func ts(t *testing.T, s string) *time.Time {
	t.Helper()
	v, ok := model.ParseTimestamp(s)
	require.True(t, ok, "bad timestamp %q", s)
	return &v
}

// snap builds a complete snapshot for encounter id with both families set.
func snap(t *testing.T, id, note, end, lastProcessed string, final, raw model.Label) model.Snapshot {
	t.Helper()
	s := model.Snapshot{
		Source: model.SourceCurrent,
		Encounter: model.Encounter{
			EncounterID: id,
			PatientID:   "P-" + id,
			Start:       ts(t, "2024-01-01T08:00:00Z"),
			NotesPath:   "notes/" + id,
		},
		ProcessingStatus: model.ProcessingStatusComplete,
		ModelVersion:     "gpt-4o",
		PromptVersion:    "v3",
	}
	if note != "" {
		s.LatestNoteDate = ts(t, note)
	}
	if end != "" {
		s.End = ts(t, end)
	}
	if lastProcessed != "" {
		s.LastProcessed = ts(t, lastProcessed)
	}
	if final != model.LabelUnknown {
		s.Final = &model.FinalPrediction{Label: final, Confidence: "0.9", Attribution: "stable, plan home"}
	}
	if raw != model.LabelUnknown {
		s.Raw = &model.RawPrediction{Label: raw, Confidence: "[0.3, 0.7]"}
	}
	return s
}

func defaultRegistry() *registry.VersionRegistry {
	return registry.NewVersionRegistry([]registry.Version{
		{ModelVersion: "gpt-4o", PromptVersion: "v3", Kind: registry.KindFinal},
		{ModelVersion: "gpt-4o", PromptVersion: "v4", Kind: registry.KindFinal},
	})
}

func defaultReconciler() *Reconciler {
	return NewReconciler(defaultRegistry(), Options{
		ThresholdDays:  DefaultThresholdDays,
		SampleCap:      DefaultSampleCap,
		ExclusionTerms: []string{"newborn", "neonate"},
	})
}
