package pipeline

import (
	"sort"
	"time"

	"github.com/sells-group/los-review/internal/model"
)

// Key groups snapshots for deduplication. NoteDate is always UTC so that
// equal instants compare equal.
type Key struct {
	EncounterID string
	NoteDate    time.Time
	VersionKey  string
}

// Less orders keys by encounter, note date, then version key.
func (k Key) Less(o Key) bool {
	if k.EncounterID != o.EncounterID {
		return k.EncounterID < o.EncounterID
	}
	if !k.NoteDate.Equal(o.NoteDate) {
		return k.NoteDate.Before(o.NoteDate)
	}
	return k.VersionKey < o.VersionKey
}

// KeyFunc derives the group key of a snapshot with a note date.
type KeyFunc func(s *model.Snapshot) Key

// NoteKey groups by (encounter_id, note_date).
func NoteKey(s *model.Snapshot) Key {
	return Key{EncounterID: s.EncounterID, NoteDate: s.LatestNoteDate.UTC()}
}

// VersionedKey groups by (encounter_id, note_date, version_key).
func VersionedKey(s *model.Snapshot) Key {
	return Key{EncounterID: s.EncounterID, NoteDate: s.LatestNoteDate.UTC(), VersionKey: s.VersionKey()}
}

// AssignSequence merges both stores into one candidate pool and numbers it.
// Current rows come first in encounter order, then history rows by add_date
// descending (missing add_date last), keeping read order otherwise. Seq is
// the tie-break for equal last_processed values, so on a tie the current
// record wins, then the most recently inserted history row.
func AssignSequence(current, historical []model.Snapshot) []model.Snapshot {
	cur := append([]model.Snapshot(nil), current...)
	sort.SliceStable(cur, func(i, j int) bool {
		return cur[i].EncounterID < cur[j].EncounterID
	})

	hist := append([]model.Snapshot(nil), historical...)
	sort.SliceStable(hist, func(i, j int) bool {
		a, b := hist[i].AddDate, hist[j].AddDate
		switch {
		case a == nil:
			return false
		case b == nil:
			return true
		default:
			return a.After(*b)
		}
	})

	pool := make([]model.Snapshot, 0, len(cur)+len(hist))
	pool = append(pool, cur...)
	pool = append(pool, hist...)
	for i := range pool {
		pool[i].Seq = i
	}
	return pool
}

// Dedup keeps one snapshot per key: the latest last_processed, ties going to
// the lowest Seq. Snapshots without a note date have no key and are skipped.
// Winners are returned in ascending key order.
func Dedup(snaps []model.Snapshot, key KeyFunc) []model.Snapshot {
	winners := make(map[Key]int, len(snaps))
	for i := range snaps {
		if snaps[i].LatestNoteDate == nil {
			continue
		}
		k := key(&snaps[i])
		if j, ok := winners[k]; !ok || newer(&snaps[i], &snaps[j]) {
			winners[k] = i
		}
	}

	keys := make([]Key, 0, len(winners))
	for k := range winners {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].Less(keys[j]) })

	out := make([]model.Snapshot, 0, len(keys))
	for _, k := range keys {
		out = append(out, snaps[winners[k]])
	}
	return out
}

// newer reports whether a outranks b.
func newer(a, b *model.Snapshot) bool {
	switch {
	case a.LastProcessed == nil && b.LastProcessed == nil:
		return a.Seq < b.Seq
	case a.LastProcessed == nil:
		return false
	case b.LastProcessed == nil:
		return true
	case !a.LastProcessed.Equal(*b.LastProcessed):
		return a.LastProcessed.After(*b.LastProcessed)
	default:
		return a.Seq < b.Seq
	}
}
