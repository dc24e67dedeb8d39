package pipeline

import (
	"time"

	"github.com/sells-group/los-review/internal/model"
)

// Eligible reports whether a note of an encounter can be labeled: it has been
// discharged, has a note date, and the note strictly precedes discharge.
// Anything else (including sentinel timestamps, which parse as missing) is
// filtered out, never reported as an error.
func Eligible(enc *model.Encounter) bool {
	if enc.End == nil || enc.LatestNoteDate == nil {
		return false
	}
	return enc.LatestNoteDate.Before(*enc.End)
}

// FilterEligible keeps the snapshots whose encounter is eligible.
func FilterEligible(snaps []model.Snapshot) []model.Snapshot {
	out := make([]model.Snapshot, 0, len(snaps))
	for i := range snaps {
		if Eligible(&snaps[i].Encounter) {
			out = append(out, snaps[i])
		}
	}
	return out
}

// ResolveDischarge gives every snapshot of an encounter the same discharge
// time. History rows written before discharge carry no encounter_end, so the
// value comes from the lowest-Seq snapshot that has one: the current-store
// row when it is discharged, else the most recently added history row.
// Start fills in the same way when a snapshot lacks it. The pool must
// already be numbered by AssignSequence; it is updated in place.
func ResolveDischarge(pool []model.Snapshot) []model.Snapshot {
	type discharge struct {
		seq   int
		start *time.Time
		end   *time.Time
	}
	known := make(map[string]discharge)
	for i := range pool {
		s := &pool[i]
		if s.End == nil {
			continue
		}
		if d, ok := known[s.EncounterID]; ok && d.seq <= s.Seq {
			continue
		}
		known[s.EncounterID] = discharge{seq: s.Seq, start: s.Start, end: s.End}
	}

	for i := range pool {
		s := &pool[i]
		d, ok := known[s.EncounterID]
		if !ok {
			continue
		}
		s.End = d.end
		if s.Start == nil {
			s.Start = d.start
		}
	}
	return pool
}
