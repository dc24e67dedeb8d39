package pipeline

import (
	"time"

	"github.com/sells-group/los-review/internal/model"
)

// DefaultThresholdDays is the largest whole-day gap still labeled near.
const DefaultThresholdDays = 2

const day = 24 * time.Hour

// DaysBetween returns the whole days from noteDate to end, truncated toward
// zero, the same as date_part('day', end - noteDate).
func DaysBetween(noteDate, end time.Time) int64 {
	return int64(end.Sub(noteDate) / day)
}

// GroundTruth labels a note date against the discharge time.
func GroundTruth(noteDate, end time.Time, thresholdDays int) model.Label {
	if DaysBetween(noteDate, end) <= int64(thresholdDays) {
		return model.LabelNear
	}
	return model.LabelFar
}
