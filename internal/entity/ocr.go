package entity

import (
	"time"

	"github.com/joseph-ayodele/citizen-docs/constants"
)

// OCRJob is one asynchronous extraction task on the backend.
type OCRJob struct {
	JobID            ID                  `json:"id"`
	DocumentID       ID                  `json:"document_id"`
	Status           constants.JobStatus `json:"-"`
	RawStatus        string              `json:"status"`
	ModelName        string              `json:"model_name,omitempty"`
	ModelVersion     string              `json:"model_version,omitempty"`
	CreatedAt        *time.Time          `json:"created_at,omitempty"`
	FinishedAt       *time.Time          `json:"finished_at,omitempty"`
	AttemptsObserved int                 `json:"-"`
}

// ExtractedField is one raw OCR output unit.
type ExtractedField struct {
	ID              ID      `json:"id,omitempty"`
	JobID           ID      `json:"ocr_job_id,omitempty"`
	FieldName       string  `json:"field_name"`
	RawText         string  `json:"raw_text"`
	ConfidenceScore float64 `json:"confidence_score"`
}

// DisplayRecord maps a human-readable label to its value.
type DisplayRecord map[string]string

// Clone returns an independent copy.
func (r DisplayRecord) Clone() DisplayRecord {
	out := make(DisplayRecord, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
