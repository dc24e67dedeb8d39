package review

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
)

// Counts tallies verdicts.
type Counts struct {
	Total   int `json:"total"`
	Valid   int `json:"valid"`
	Invalid int `json:"invalid"`
}

// ValidRate is Valid/Total, zero when empty.
func (c Counts) ValidRate() float64 { return rate(c.Valid, c.Total) }

// InvalidRate is Invalid/Total, zero when empty.
func (c Counts) InvalidRate() float64 { return rate(c.Invalid, c.Total) }

// VersionCounts is the verdict tally of one version.
type VersionCounts struct {
	VersionKey string `json:"version_key"`
	Counts
}

// ReasonRow counts invalid reasons for one version.
type ReasonRow struct {
	VersionKey string         `json:"version_key"`
	Reasons    map[string]int `json:"reasons"`
	Total      int            `json:"total"`
}

// Agreement compares predicted class with ground truth for one version.
type Agreement struct {
	VersionKey string `json:"version_key"`
	Total      int    `json:"total"`
	Matches    int    `json:"matches"`
	Mismatches int    `json:"mismatches"`
}

// Rate is Matches/Total, zero when empty.
func (a Agreement) Rate() float64 { return rate(a.Matches, a.Total) }

// Summary is the result of Analyze.
type Summary struct {
	Records        int             `json:"records"`
	Ambiguous      int             `json:"ambiguous"`
	Overall        Counts          `json:"overall"`
	ByVersion      []VersionCounts `json:"by_version"`
	Reasons        []string        `json:"reasons"`
	InvalidReasons []ReasonRow     `json:"invalid_reasons"`
	Agreement      []Agreement     `json:"agreement"`
}

// Analyze summarizes records. Records with an ambiguous verdict are counted
// but excluded from every table. Invalid verdicts without a reason are left
// out of the reason table. Agreement only considers records where both the
// ground truth and predicted class are non-empty after trimming, compared
// case-insensitively.
func Analyze(records []Record) Summary {
	s := Summary{Records: len(records)}

	byVersion := make(map[string]*VersionCounts)
	reasons := make(map[string]*ReasonRow)
	agreement := make(map[string]*Agreement)
	reasonNames := make(map[string]bool)

	for i := range records {
		r := &records[i]
		if r.Valid == nil {
			s.Ambiguous++
			continue
		}

		vc := byVersion[r.VersionKey]
		if vc == nil {
			vc = &VersionCounts{VersionKey: r.VersionKey}
			byVersion[r.VersionKey] = vc
		}
		vc.Total++
		s.Overall.Total++
		if *r.Valid {
			vc.Valid++
			s.Overall.Valid++
		} else {
			vc.Invalid++
			s.Overall.Invalid++
			if reason := strings.TrimSpace(r.InvalidReason); reason != "" {
				rr := reasons[r.VersionKey]
				if rr == nil {
					rr = &ReasonRow{VersionKey: r.VersionKey, Reasons: make(map[string]int)}
					reasons[r.VersionKey] = rr
				}
				rr.Reasons[reason]++
				rr.Total++
				reasonNames[reason] = true
			}
		}

		gt := strings.ToLower(strings.TrimSpace(r.GroundTruth))
		pred := strings.ToLower(strings.TrimSpace(r.PredictedClass))
		if gt == "" || pred == "" {
			continue
		}
		ag := agreement[r.VersionKey]
		if ag == nil {
			ag = &Agreement{VersionKey: r.VersionKey}
			agreement[r.VersionKey] = ag
		}
		ag.Total++
		if gt == pred {
			ag.Matches++
		} else {
			ag.Mismatches++
		}
	}

	for _, k := range sortedKeys(byVersion) {
		s.ByVersion = append(s.ByVersion, *byVersion[k])
	}
	for _, k := range sortedKeys(reasons) {
		s.InvalidReasons = append(s.InvalidReasons, *reasons[k])
	}
	for _, k := range sortedKeys(agreement) {
		s.Agreement = append(s.Agreement, *agreement[k])
	}
	for name := range reasonNames {
		s.Reasons = append(s.Reasons, name)
	}
	sort.Strings(s.Reasons)
	return s
}

// Render writes the summary as text tables.
func (s *Summary) Render(out io.Writer) {
	_, _ = fmt.Fprintf(out, "Records: %d (ambiguous verdicts excluded: %d)\n\n", s.Records, s.Ambiguous)
	if s.Overall.Total == 0 {
		_, _ = fmt.Fprintln(out, "No records with a clear valid/invalid verdict.")
		return
	}

	_, _ = fmt.Fprintln(out, "Overall")
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Reviews:\t%d\n", s.Overall.Total)
	_, _ = fmt.Fprintf(w, "Valid:\t%d\t%s\n", s.Overall.Valid, percent(s.Overall.ValidRate()))
	_, _ = fmt.Fprintf(w, "Invalid:\t%d\t%s\n", s.Overall.Invalid, percent(s.Overall.InvalidRate()))
	_ = w.Flush()

	_, _ = fmt.Fprintln(out, "\nBy version")
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tREVIEWS\tVALID\tINVALID\tVALID_RATE\tINVALID_RATE")
	for _, v := range s.ByVersion {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\t%s\n",
			v.VersionKey, v.Total, v.Valid, v.Invalid, percent(v.ValidRate()), percent(v.InvalidRate()))
	}
	_ = w.Flush()

	_, _ = fmt.Fprintln(out, "\nInvalid reasons")
	if len(s.InvalidReasons) == 0 {
		_, _ = fmt.Fprintln(out, "No invalid attributions with a reason.")
	} else {
		w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintf(w, "VERSION\t%s\tTOTAL\n", strings.Join(s.Reasons, "\t"))
		colTotals := make([]int, len(s.Reasons))
		grand := 0
		for _, rr := range s.InvalidReasons {
			cells := make([]string, len(s.Reasons))
			for j, name := range s.Reasons {
				cells[j] = fmt.Sprint(rr.Reasons[name])
				colTotals[j] += rr.Reasons[name]
			}
			grand += rr.Total
			_, _ = fmt.Fprintf(w, "%s\t%s\t%d\n", rr.VersionKey, strings.Join(cells, "\t"), rr.Total)
		}
		totals := make([]string, len(colTotals))
		for j, n := range colTotals {
			totals[j] = fmt.Sprint(n)
		}
		_, _ = fmt.Fprintf(w, "Total\t%s\t%d\n", strings.Join(totals, "\t"), grand)
		_ = w.Flush()
	}

	_, _ = fmt.Fprintln(out, "\nAgreement with ground truth")
	if len(s.Agreement) == 0 {
		_, _ = fmt.Fprintln(out, "No records with both ground truth and predicted class.")
		return
	}
	w = tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "VERSION\tCOMPARED\tMATCHES\tMISMATCHES\tAGREEMENT")
	for _, a := range s.Agreement {
		_, _ = fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", a.VersionKey, a.Total, a.Matches, a.Mismatches, percent(a.Rate()))
	}
	_ = w.Flush()
}

func rate(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total)
}

func percent(f float64) string {
	return fmt.Sprintf("%.1f%%", f*100)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
