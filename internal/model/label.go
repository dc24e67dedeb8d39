package model

import (
	"strings"
	"time"
)

// Label is a discharge-timing class. Both prediction families and the
// derived ground truth are normalized to this enumeration at ingestion.
type Label string

const (
	LabelUnknown Label = ""
	LabelNear    Label = "today/tomorrow"
	LabelFar     Label = "longer"
)

var labelAliases = map[string]Label{
	"today/tomorrow":    LabelNear,
	"today_tomorrow":    LabelNear,
	"today or tomorrow": LabelNear,
	"near":              LabelNear,
	"longer":            LabelFar,
	"far":               LabelFar,
}

// ParseLabel normalizes a stored label string. Surrounding whitespace and
// JSON quoting are stripped before matching. Unrecognized values map to
// LabelUnknown, which callers treat as a null label.
func ParseLabel(s string) Label {
	s = strings.TrimSpace(s)
	for len(s) >= 2 && s[0] == '"' && s[len(s)-1] == '"' {
		s = strings.TrimSpace(s[1 : len(s)-1])
	}
	return labelAliases[strings.ToLower(s)]
}

// Valid reports whether l is one of the two known classes.
func (l Label) Valid() bool {
	return l == LabelNear || l == LabelFar
}

func (l Label) String() string {
	return string(l)
}

// timestampLayouts are tried in order by ParseTimestamp.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02",
}

// missingTimestamps are sentinel spellings of an absent value.
var missingTimestamps = map[string]bool{
	"":     true,
	"nat":  true,
	"null": true,
	"none": true,
	"nan":  true,
}

// ParseTimestamp parses a stored timestamp. The boolean is false when the
// value is empty, a sentinel such as "NaT", or not a recognizable time.
// Times without a zone are read as UTC.
func ParseTimestamp(s string) (time.Time, bool) {
	s = strings.Trim(strings.TrimSpace(s), `"`)
	if missingTimestamps[strings.ToLower(s)] {
		return time.Time{}, false
	}
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// TimePtr parses s with ParseTimestamp and returns nil when it is missing.
func TimePtr(s string) *time.Time {
	t, ok := ParseTimestamp(s)
	if !ok {
		return nil
	}
	return &t
}

// FormatTime renders t as RFC3339 UTC with sub-second precision when
// present, or "" for nil.
func FormatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}
