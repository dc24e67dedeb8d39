package model

import (
	"bytes"
	"encoding/json"

	"github.com/rotisserie/eris"
)

// DefaultTask is the document key of the length-of-stay prediction tree.
const DefaultTask = "length_of_stay"

// ErrContract marks a record that is missing the fields the pipeline joins on.
// It stops the batch instead of being filtered.
var ErrContract = eris.New("storage contract violation")

// TaskDocument is the per-task prediction tree stored in an encounter document.
// Each prediction family is an optional sub-record.
type TaskDocument struct {
	ProcessingStatus   string         `json:"processing_status"`
	LastProcessed      string         `json:"last_processed"`
	ModelVersion       string         `json:"model_version"`
	PromptVersion      string         `json:"prompt_version"`
	LatestNoteDate     string         `json:"latest_note_date,omitempty"`
	Results            *ResultsDoc    `json:"results,omitempty"`
	BinaryModelResults *PredictionDoc `json:"binary_model_results,omitempty"`
}

// ResultsDoc wraps the final-family prediction.
type ResultsDoc struct {
	FinalPrediction *PredictionDoc `json:"final_prediction,omitempty"`
}

// PredictionDoc is one family's stored output. Values keep their raw JSON
// form because the confidence shape differs between families.
type PredictionDoc struct {
	Prediction  json.RawMessage `json:"prediction,omitempty"`
	Confidence  json.RawMessage `json:"confidence,omitempty"`
	Attribution json.RawMessage `json:"attribution,omitempty"`
}

// DecodeTaskDocument extracts the task subtree from an encounter document.
// A document without the task key yields (nil, nil): the encounter simply
// has no predictions. Malformed JSON is a contract violation.
func DecodeTaskDocument(data []byte, task string) (*TaskDocument, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}
	var tree map[string]json.RawMessage
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, eris.Wrapf(ErrContract, "model: decode document: %v", err)
	}
	sub, ok := tree[task]
	if !ok || isNull(sub) {
		return nil, nil
	}
	var doc TaskDocument
	if err := json.Unmarshal(sub, &doc); err != nil {
		return nil, eris.Wrapf(ErrContract, "model: decode task %q: %v", task, err)
	}
	return &doc, nil
}

// Apply copies the document's fields onto the snapshot. A note date inside
// the document overrides the row-level value.
func (d *TaskDocument) Apply(s *Snapshot) {
	if d == nil {
		return
	}
	s.ProcessingStatus = d.ProcessingStatus
	s.ModelVersion = d.ModelVersion
	s.PromptVersion = d.PromptVersion
	s.LastProcessed = TimePtr(d.LastProcessed)
	if d.LatestNoteDate != "" {
		s.LatestNoteDate = TimePtr(d.LatestNoteDate)
	}
	if d.Results != nil && d.Results.FinalPrediction != nil {
		fp := d.Results.FinalPrediction
		s.Final = &FinalPrediction{
			Label:       ParseLabel(rawText(fp.Prediction)),
			Confidence:  rawText(fp.Confidence),
			Attribution: rawText(fp.Attribution),
		}
	}
	if d.BinaryModelResults != nil {
		s.Raw = &RawPrediction{
			Label:      ParseLabel(rawText(d.BinaryModelResults.Prediction)),
			Confidence: rawText(d.BinaryModelResults.Confidence),
		}
	}
}

// rawText renders a JSON value as plain text: strings are unquoted, null is
// empty, and anything else is compacted.
func rawText(raw json.RawMessage) string {
	if len(raw) == 0 || isNull(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}
