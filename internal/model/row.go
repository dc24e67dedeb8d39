package model

import (
	"strconv"
	"time"
)

// Columns is the ordered output contract consumed by the review tool.
var Columns = []string{
	"encounter_id",
	"patient_id",
	"final_prediction",
	"final_confidence",
	"raw_prediction",
	"raw_confidence",
	"attribution",
	"prediction_timestamp",
	"note_date",
	"notes_path",
	"encounter_start",
	"encounter_end",
	"model_version",
	"prompt_version",
	"version_key",
	"ground_truth",
	"final_prediction_matches_ground_truth",
	"raw_prediction_matches_ground_truth",
}

// Row is one reconciled prediction per (encounter, note date[, version key]).
type Row struct {
	EncounterID         string     `json:"encounter_id"`
	PatientID           string     `json:"patient_id"`
	FinalPrediction     Label      `json:"final_prediction"`
	FinalConfidence     string     `json:"final_confidence"`
	RawPrediction       Label      `json:"raw_prediction"`
	RawConfidence       string     `json:"raw_confidence"`
	Attribution         string     `json:"attribution"`
	PredictionTimestamp *time.Time `json:"prediction_timestamp"`
	NoteDate            time.Time  `json:"note_date"`
	NotesPath           string     `json:"notes_path"`
	EncounterStart      *time.Time `json:"encounter_start"`
	EncounterEnd        time.Time  `json:"encounter_end"`
	ModelVersion        string     `json:"model_version"`
	PromptVersion       string     `json:"prompt_version"`
	VersionKey          string     `json:"version_key"`
	GroundTruth         Label      `json:"ground_truth"`
	FinalMatches        *bool      `json:"final_prediction_matches_ground_truth"`
	RawMatches          *bool      `json:"raw_prediction_matches_ground_truth"`
}

// Record renders the row in Columns order. Nulls are empty strings.
func (r *Row) Record() []string {
	end := r.EncounterEnd
	return []string{
		r.EncounterID,
		r.PatientID,
		r.FinalPrediction.String(),
		r.FinalConfidence,
		r.RawPrediction.String(),
		r.RawConfidence,
		r.Attribution,
		FormatTime(r.PredictionTimestamp),
		r.NoteDate.UTC().Format(time.RFC3339Nano),
		r.NotesPath,
		FormatTime(r.EncounterStart),
		FormatTime(&end),
		r.ModelVersion,
		r.PromptVersion,
		r.VersionKey,
		r.GroundTruth.String(),
		formatBool(r.FinalMatches),
		formatBool(r.RawMatches),
	}
}

// BoolPtr returns a pointer to b.
func BoolPtr(b bool) *bool {
	return &b
}

func formatBool(b *bool) string {
	if b == nil {
		return ""
	}
	return strconv.FormatBool(*b)
}
