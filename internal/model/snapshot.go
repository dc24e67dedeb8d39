package model

import (
	"time"
)

// ProcessingStatusComplete is the only processing status whose predictions are usable.
const ProcessingStatusComplete = "complete"

// Source identifies which record store a snapshot was read from.
type Source string

const (
	SourceCurrent    Source = "current"
	SourceHistorical Source = "historical"
)

// Encounter is one hospital stay as observed by a snapshot.
type Encounter struct {
	EncounterID    string     `json:"encounter_id"`
	PatientID      string     `json:"patient_id"`
	Start          *time.Time `json:"encounter_start,omitempty"`
	End            *time.Time `json:"encounter_end,omitempty"` // nil until discharge
	NotesPath      string     `json:"notes_blob_path"`
	LatestNoteDate *time.Time `json:"latest_note_date,omitempty"`
}

// FinalPrediction is the versioned, attributed prediction family.
type FinalPrediction struct {
	Label       Label  `json:"prediction"`
	Confidence  string `json:"confidence,omitempty"`
	Attribution string `json:"attribution,omitempty"`
}

// RawPrediction is the unversioned binary classifier family.
type RawPrediction struct {
	Label      Label  `json:"prediction"`
	Confidence string `json:"confidence,omitempty"`
}

// Snapshot is a point-in-time record of the model output for an encounter.
type Snapshot struct {
	// Seq is the load sequence number. It breaks ties on LastProcessed.
	Seq     int        `json:"seq"`
	Source  Source     `json:"source"`
	AddDate *time.Time `json:"add_date,omitempty"`

	Encounter

	ProcessingStatus string           `json:"processing_status"`
	ModelVersion     string           `json:"model_version"`
	PromptVersion    string           `json:"prompt_version"`
	LastProcessed    *time.Time       `json:"last_processed,omitempty"`
	Final            *FinalPrediction `json:"final,omitempty"`
	Raw              *RawPrediction   `json:"raw,omitempty"`
}

// VersionKey identifies the model/prompt cohort of the final family.
func (s *Snapshot) VersionKey() string {
	return VersionKey(s.ModelVersion, s.PromptVersion)
}

// VersionKey concatenates a model version and a prompt version.
func VersionKey(modelVersion, promptVersion string) string {
	return modelVersion + promptVersion
}

// Complete reports whether processing finished for this snapshot.
func (s *Snapshot) Complete() bool {
	return s.ProcessingStatus == ProcessingStatusComplete
}

// FinalUsable reports whether the final family can be used.
func (s *Snapshot) FinalUsable() bool {
	return s.Complete() && s.Final != nil && s.Final.Label.Valid()
}

// RawUsable reports whether the raw binary family can be used.
func (s *Snapshot) RawUsable() bool {
	return s.Complete() && s.Raw != nil && s.Raw.Label.Valid()
}
