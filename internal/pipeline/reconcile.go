package pipeline

import (
	"sort"

	"go.uber.org/zap"

	"github.com/sells-group/los-review/internal/model"
	"github.com/sells-group/los-review/internal/registry"
)

// Options configures labeling and review sampling.
type Options struct {
	ThresholdDays  int
	SampleCap      int
	ExclusionTerms []string
}

// Reconciler joins deduplicated prediction families and labels them.
type Reconciler struct {
	registry *registry.VersionRegistry
	guard    *Guardrail
	opts     Options
}

// NewReconciler creates a Reconciler admitting only registered final versions.
func NewReconciler(reg *registry.VersionRegistry, opts Options) *Reconciler {
	return &Reconciler{
		registry: reg,
		guard:    NewGuardrail(opts.ExclusionTerms),
		opts:     opts,
	}
}

// finalCandidates returns eligible snapshots whose final family is usable
// and whose version is registered.
func (r *Reconciler) finalCandidates(pool []model.Snapshot, guarded bool) []model.Snapshot {
	var out []model.Snapshot
	var unregistered, guardrailed int
	for i := range pool {
		s := &pool[i]
		if !Eligible(&s.Encounter) || !s.FinalUsable() {
			continue
		}
		if !r.registry.Contains(s.ModelVersion, s.PromptVersion) {
			unregistered++
			continue
		}
		if guarded {
			if _, hit := r.guard.Excludes(s.Final.Attribution); hit {
				guardrailed++
				continue
			}
		}
		out = append(out, *s)
	}
	zap.L().Debug("reconcile: final candidates",
		zap.Int("pool", len(pool)),
		zap.Int("candidates", len(out)),
		zap.Int("unregistered", unregistered),
		zap.Int("guardrailed", guardrailed),
	)
	return out
}

// rawCandidates returns eligible snapshots with a usable raw family.
func rawCandidates(pool []model.Snapshot) []model.Snapshot {
	var out []model.Snapshot
	for i := range pool {
		s := &pool[i]
		if Eligible(&s.Encounter) && s.RawUsable() {
			out = append(out, *s)
		}
	}
	return out
}

// Single returns one row per (encounter, note_date): the latest registered
// final prediction, compared against ground truth. Attribution guardrails
// apply. Raw columns are left empty.
func (r *Reconciler) Single(pool []model.Snapshot) []model.Row {
	winners := Dedup(r.finalCandidates(pool, true), NoteKey)

	rows := make([]model.Row, 0, len(winners))
	for i := range winners {
		rows = append(rows, r.buildRow(&winners[i], nil))
	}
	SortRows(rows)
	return rows
}

// Dual returns one row per (encounter, note_date, version_key) with a usable
// final prediction, left-joined to the latest raw prediction for the same
// (encounter, note_date).
func (r *Reconciler) Dual(pool []model.Snapshot) []model.Row {
	finals := Dedup(r.finalCandidates(pool, false), VersionedKey)
	raws := Dedup(rawCandidates(pool), NoteKey)

	rawByNote := make(map[Key]*model.Snapshot, len(raws))
	for i := range raws {
		rawByNote[NoteKey(&raws[i])] = &raws[i]
	}

	rows := make([]model.Row, 0, len(finals))
	for i := range finals {
		rows = append(rows, r.buildRow(&finals[i], rawByNote[NoteKey(&finals[i])]))
	}
	SortRows(rows)
	return rows
}

// buildRow labels a final winner and attaches the raw winner if present.
// The snapshot must be eligible.
func (r *Reconciler) buildRow(final, raw *model.Snapshot) model.Row {
	noteDate := final.LatestNoteDate.UTC()
	end := final.End.UTC()
	gt := GroundTruth(noteDate, end, r.opts.ThresholdDays)

	row := model.Row{
		EncounterID:         final.EncounterID,
		PatientID:           final.PatientID,
		FinalPrediction:     final.Final.Label,
		FinalConfidence:     final.Final.Confidence,
		Attribution:         final.Final.Attribution,
		PredictionTimestamp: final.LastProcessed,
		NoteDate:            noteDate,
		NotesPath:           final.NotesPath,
		EncounterStart:      final.Start,
		EncounterEnd:        end,
		ModelVersion:        final.ModelVersion,
		PromptVersion:       final.PromptVersion,
		VersionKey:          final.VersionKey(),
		GroundTruth:         gt,
		FinalMatches:        model.BoolPtr(final.Final.Label == gt),
	}
	if raw != nil {
		row.RawPrediction = raw.Raw.Label
		row.RawConfidence = raw.Raw.Confidence
		row.RawMatches = model.BoolPtr(raw.Raw.Label == gt)
	}
	return row
}

// SortRows orders rows by encounter_id, note_date, version_key ascending.
func SortRows(rows []model.Row) {
	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.EncounterID != b.EncounterID {
			return a.EncounterID < b.EncounterID
		}
		if !a.NoteDate.Equal(b.NoteDate) {
			return a.NoteDate.Before(b.NoteDate)
		}
		return a.VersionKey < b.VersionKey
	})
}
