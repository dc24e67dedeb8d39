package store

import (
	"encoding/json"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/los-review/internal/model"
)

// Record is one stored encounter row. Timestamps stay as text so sentinel
// values survive until the pipeline parses them.
type Record struct {
	ID             int64           `json:"id,omitempty"`
	EncounterID    string          `json:"encounter_id"`
	PatientID      string          `json:"patient_id"`
	EncounterStart string          `json:"encounter_start"`
	EncounterEnd   string          `json:"encounter_end"`
	NotesBlobPath  string          `json:"notes_blob_path"`
	LatestNoteDate string          `json:"latest_note_date"`
	AddDate        string          `json:"add_date,omitempty"`
	Data           json.RawMessage `json:"data"`
}

// Snapshot converts the record into a typed snapshot for the given task.
// A record without an encounter_id violates the storage contract.
func (r *Record) Snapshot(task string, src model.Source) (model.Snapshot, error) {
	if strings.TrimSpace(r.EncounterID) == "" {
		return model.Snapshot{}, eris.Wrapf(model.ErrContract, "store: %s row %d has no encounter_id", src, r.ID)
	}

	s := model.Snapshot{
		Source: src,
		Encounter: model.Encounter{
			EncounterID:    r.EncounterID,
			PatientID:      r.PatientID,
			Start:          model.TimePtr(r.EncounterStart),
			End:            model.TimePtr(r.EncounterEnd),
			NotesPath:      r.NotesBlobPath,
			LatestNoteDate: model.TimePtr(r.LatestNoteDate),
		},
	}
	if src == model.SourceHistorical {
		s.AddDate = model.TimePtr(r.AddDate)
	}

	doc, err := model.DecodeTaskDocument(r.Data, task)
	if err != nil {
		return model.Snapshot{}, eris.Wrapf(err, "store: encounter %s", r.EncounterID)
	}
	doc.Apply(&s)
	return s, nil
}

// toSnapshots converts records, stopping at the first contract violation.
func toSnapshots(records []Record, task string, src model.Source) ([]model.Snapshot, error) {
	out := make([]model.Snapshot, 0, len(records))
	for i := range records {
		s, err := records[i].Snapshot(task, src)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// recordColumns are the shared insert columns of both stores.
var recordColumns = []string{
	"encounter_id",
	"patient_id",
	"encounter_start",
	"encounter_end",
	"notes_blob_path",
	"latest_note_date",
	"data",
}

type scannable interface {
	Scan(dest ...any) error
}

// scanRecord reads one row selected by snapshotQuery.
func scanRecord(row scannable, history bool) (Record, error) {
	var (
		r                                    Record
		patient, start, end, notes, noteDate *string
		addDate                              *string
		data                                 []byte
	)
	dest := []any{&r.EncounterID, &patient, &start, &end, &notes, &noteDate, &data}
	if history {
		dest = append(dest, &r.ID, &addDate)
	}
	if err := row.Scan(dest...); err != nil {
		return Record{}, err
	}
	r.PatientID = deref(patient)
	r.EncounterStart = deref(start)
	r.EncounterEnd = deref(end)
	r.NotesBlobPath = deref(notes)
	r.LatestNoteDate = deref(noteDate)
	r.AddDate = deref(addDate)
	if len(data) > 0 {
		r.Data = append(json.RawMessage(nil), data...)
	}
	return r, nil
}

// jsonValue returns the document as text, or nil for an absent document.
func jsonValue(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
