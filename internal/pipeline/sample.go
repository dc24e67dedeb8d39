package pipeline

import (
	"github.com/sells-group/los-review/internal/model"
)

// DefaultSampleCap is the number of encounters drawn per ground-truth class.
const DefaultSampleCap = 50

// SampleResult is a balanced review set.
type SampleResult struct {
	// Rows holds every single-family row of each sampled encounter,
	// ordered by encounter_id then note_date.
	Rows []model.Row
	// ByClass lists the sampled encounter ids per ground-truth class in
	// selection order.
	ByClass map[model.Label][]string
}

// Encounters returns the number of distinct sampled encounters.
func (s SampleResult) Encounters() int {
	seen := make(map[string]bool)
	for _, ids := range s.ByClass {
		for _, id := range ids {
			seen[id] = true
		}
	}
	return len(seen)
}

// Sample draws up to capPerClass encounters per ground-truth class from the
// rows whose final prediction matched ground truth, walking rows in
// ascending (encounter_id, note_date) order. The sample selects encounters:
// the result expands each one back to all of its rows.
func Sample(rows []model.Row, capPerClass int) SampleResult {
	res := SampleResult{ByClass: make(map[model.Label][]string)}
	if capPerClass <= 0 || len(rows) == 0 {
		return res
	}

	ordered := append([]model.Row(nil), rows...)
	SortRows(ordered)

	picked := make(map[model.Label]map[string]bool)
	sampled := make(map[string]bool)
	for i := range ordered {
		row := &ordered[i]
		if row.FinalMatches == nil || !*row.FinalMatches {
			continue
		}
		class := picked[row.GroundTruth]
		if class == nil {
			class = make(map[string]bool)
			picked[row.GroundTruth] = class
		}
		if class[row.EncounterID] || len(class) >= capPerClass {
			continue
		}
		class[row.EncounterID] = true
		sampled[row.EncounterID] = true
		res.ByClass[row.GroundTruth] = append(res.ByClass[row.GroundTruth], row.EncounterID)
	}

	for i := range ordered {
		if sampled[ordered[i].EncounterID] {
			res.Rows = append(res.Rows, ordered[i])
		}
	}
	return res
}
