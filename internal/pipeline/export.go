package pipeline

import (
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/los-review/internal/model"
)

// WriteCSV writes rows with the review-tool header.
func WriteCSV(w io.Writer, rows []model.Row) error {
	cw := csv.NewWriter(w)

	if err := cw.Write(model.Columns); err != nil {
		return eris.Wrap(err, "export: write header")
	}
	for i := range rows {
		if err := cw.Write(rows[i].Record()); err != nil {
			return eris.Wrap(err, "export: write row")
		}
	}

	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// createFile opens export destinations. Tests swap it to inject failures.
var createFile = func(path string) (io.WriteCloser, error) {
	return os.Create(path)
}

// writeFile creates path, runs write against it, and reports the first of
// the write and close errors.
func writeFile(path string, write func(io.Writer) error) (err error) {
	f, err := createFile(path)
	if err != nil {
		return eris.Wrapf(err, "export: create %s", path)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = eris.Wrapf(cerr, "export: close %s", path)
		}
	}()
	return write(f)
}

// ExportCSV writes rows to a CSV file.
func ExportCSV(rows []model.Row, outputPath string) error {
	return writeFile(outputPath, func(w io.Writer) error {
		return WriteCSV(w, rows)
	})
}

// ExportXLSX writes rows to the "predictions" sheet of an XLSX file.
func ExportXLSX(rows []model.Row, outputPath string) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, model.Columns)
	for i := range rows {
		records = append(records, rows[i].Record())
	}
	return writeXLSX(outputPath, "predictions", records)
}

func writeXLSX(outputPath, sheetName string, records [][]string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}
	for _, rec := range records {
		row := sheet.AddRow()
		for _, v := range rec {
			row.AddCell().SetString(v)
		}
	}
	return eris.Wrap(f.Save(outputPath), "export: save xlsx")
}

// EncounterSummary is one encounter of an exported row set.
type EncounterSummary struct {
	EncounterID    string
	PatientID      string
	EncounterStart string
	EncounterEnd   string
	LOSDays        *int64
	Predictions    int
	NotesPath      string
}

var encounterColumns = []string{
	"encounter_id",
	"patient_id",
	"encounter_start",
	"encounter_end",
	"los_days",
	"predictions_count",
	"notes_path",
}

// SummarizeEncounters collapses rows to unique encounters, computing the
// length of stay in whole days when the admission time is known.
func SummarizeEncounters(rows []model.Row) []EncounterSummary {
	byID := make(map[string]*EncounterSummary)
	for i := range rows {
		r := &rows[i]
		s, ok := byID[r.EncounterID]
		if !ok {
			end := r.EncounterEnd
			s = &EncounterSummary{
				EncounterID:    r.EncounterID,
				PatientID:      r.PatientID,
				EncounterStart: model.FormatTime(r.EncounterStart),
				EncounterEnd:   model.FormatTime(&end),
				NotesPath:      r.NotesPath,
			}
			if r.EncounterStart != nil {
				days := DaysBetween(*r.EncounterStart, end)
				s.LOSDays = &days
			}
			byID[r.EncounterID] = s
		}
		s.Predictions++
	}

	out := make([]EncounterSummary, 0, len(byID))
	for _, s := range byID {
		out = append(out, *s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EncounterID < out[j].EncounterID })
	return out
}

// ExportEncounters writes encounter summaries to a CSV file.
func ExportEncounters(summaries []EncounterSummary, outputPath string) error {
	return writeFile(outputPath, func(f io.Writer) error {
		return writeEncounters(f, summaries)
	})
}

func writeEncounters(f io.Writer, summaries []EncounterSummary) error {
	w := csv.NewWriter(f)
	if err := w.Write(encounterColumns); err != nil {
		return eris.Wrap(err, "export: write encounters header")
	}
	for _, s := range summaries {
		los := ""
		if s.LOSDays != nil {
			los = strconv.FormatInt(*s.LOSDays, 10)
		}
		if err := w.Write([]string{
			s.EncounterID,
			s.PatientID,
			s.EncounterStart,
			s.EncounterEnd,
			los,
			strconv.Itoa(s.Predictions),
			s.NotesPath,
		}); err != nil {
			return eris.Wrap(err, "export: write encounter")
		}
	}
	w.Flush()
	return eris.Wrap(w.Error(), "export: flush encounters")
}

// Manifest describes the files written by one export.
type Manifest struct {
	RunID       string    `json:"run_id"`
	Mode        Mode      `json:"mode"`
	GeneratedAt time.Time `json:"generated_at"`
	Stats       Stats     `json:"stats"`
	Files       []string  `json:"files"`
}

// NewManifest describes a run result.
func NewManifest(res *Result, files []string) Manifest {
	return Manifest{
		RunID:       res.RunID,
		Mode:        res.Mode,
		GeneratedAt: time.Now().UTC(),
		Stats:       res.Stats,
		Files:       files,
	}
}

// WriteManifest writes the manifest as indented JSON.
func WriteManifest(m Manifest, outputPath string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return eris.Wrap(err, "export: marshal manifest")
	}
	return eris.Wrap(os.WriteFile(outputPath, data, 0o644), "export: write manifest")
}
