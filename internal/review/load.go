// Package review aggregates reviewer validation exports: clinicians mark
// each attribution valid or invalid per model version, and this package
// reshapes those wide exports and summarizes them.
package review

import (
	"context"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/los-review/internal/fetcher"
)

// Base columns of a reviewer export.
const (
	ColEncounterID = "Encounter ID"
	ColNoteDate    = "Note Date"
	ColGroundTruth = "Ground Truth"
)

// DefaultPattern matches reviewer exports in the export directory.
const DefaultPattern = "clinical_validation_denormalized_*.csv"

// versionColumn splits "<version_key>_<field>" column names.
var versionColumn = regexp.MustCompile(`^(.*?)_(Validation_Result|Invalid_Reason|Comments|Final_Prediction|Raw_Prediction|Final_Confidence|Raw_Confidence|Attribution)$`)

// Record is one reviewer verdict for one version of one exported row.
type Record struct {
	EncounterID    string `json:"encounter_id"`
	NoteDate       string `json:"note_date"`
	GroundTruth    string `json:"ground_truth,omitempty"`
	SourceFile     string `json:"source_file"`
	VersionKey     string `json:"version_key"`
	ValidationRaw  string `json:"validation_raw"`
	Valid          *bool  `json:"valid"`
	InvalidReason  string `json:"invalid_reason,omitempty"`
	Comments       string `json:"comments,omitempty"`
	PredictedClass string `json:"predicted_class,omitempty"`
}

// FindExports lists the reviewer exports in dir, sorted by name.
func FindExports(dir string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(dir, DefaultPattern))
	if err != nil {
		return nil, eris.Wrap(err, "review: glob exports")
	}
	sort.Strings(matches)
	return matches, nil
}

// VersionKeys returns the sorted version keys named by wide columns.
func VersionKeys(header []string) []string {
	seen := make(map[string]bool)
	for _, col := range header {
		if m := versionColumn.FindStringSubmatch(strings.TrimSpace(col)); m != nil {
			seen[m[1]] = true
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// LoadExports reads every file and reshapes it into long records, one per
// (row, version) with a non-empty validation result. Unreadable files and
// files lacking the base or version columns are skipped with a warning.
func LoadExports(ctx context.Context, paths []string) ([]Record, error) {
	var out []Record
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrap(err, "review: load exports")
		}
		log := zap.L().With(zap.String("file", filepath.Base(path)))

		tbl, err := fetcher.ReadTable(ctx, path)
		if err != nil {
			log.Warn("review: skipping unreadable export", zap.Error(err))
			continue
		}
		if !tbl.Has(ColEncounterID) || !tbl.Has(ColNoteDate) {
			log.Warn("review: skipping export without base columns",
				zap.String("required", ColEncounterID+", "+ColNoteDate))
			continue
		}
		if !tbl.Has(ColGroundTruth) {
			log.Warn("review: export has no ground truth column")
		}

		versions := VersionKeys(tbl.Header)
		if len(versions) == 0 {
			log.Warn("review: skipping export without version columns")
			continue
		}

		records := reshape(tbl, versions)
		log.Info("review: loaded export",
			zap.Strings("versions", versions),
			zap.Int("records", len(records)),
		)
		out = append(out, records...)
	}
	return out, nil
}

func reshape(tbl *fetcher.Table, versions []string) []Record {
	source := filepath.Base(tbl.Path)
	var out []Record
	for i := range tbl.Rows {
		for _, vk := range versions {
			raw := tbl.Value(i, vk+"_Validation_Result")
			if strings.TrimSpace(raw) == "" {
				continue
			}
			out = append(out, Record{
				EncounterID:    tbl.Value(i, ColEncounterID),
				NoteDate:       tbl.Value(i, ColNoteDate),
				GroundTruth:    tbl.Value(i, ColGroundTruth),
				SourceFile:     source,
				VersionKey:     vk,
				ValidationRaw:  raw,
				Valid:          NormalizeBool(raw),
				InvalidReason:  tbl.Value(i, vk+"_Invalid_Reason"),
				Comments:       tbl.Value(i, vk+"_Comments"),
				PredictedClass: tbl.Value(i, vk+"_Final_Prediction"),
			})
		}
	}
	return out
}

// NormalizeBool maps reviewer verdict spellings to a boolean. Values it
// cannot interpret return nil.
func NormalizeBool(s string) *bool {
	var b bool
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "1", "yes", "valid":
		b = true
	case "false", "0", "no", "invalid":
		b = false
	default:
		return nil
	}
	return &b
}
