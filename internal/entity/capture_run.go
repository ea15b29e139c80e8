package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/joseph-ayodele/citizen-docs/constants"
)

// CaptureRun is the local history row of one pipeline invocation.
type CaptureRun struct {
	ID              uuid.UUID          `json:"id"`
	DocumentType    constants.DocType  `json:"document_type"`
	State           constants.RunState `json:"state"`
	FrontDocumentID *string            `json:"front_document_id,omitempty"`
	FrontJobID      *string            `json:"front_job_id,omitempty"`
	BackDocumentID  *string            `json:"back_document_id,omitempty"`
	BackJobID       *string            `json:"back_job_id,omitempty"`
	RecordID        *string            `json:"record_id,omitempty"`
	ErrorCode       *string            `json:"error_code,omitempty"`
	ErrorMessage    *string            `json:"error_message,omitempty"`
	NeedsReview     bool               `json:"needs_review"`
	Fields          DisplayRecord      `json:"fields,omitempty"`
	StartedAt       time.Time          `json:"started_at"`
	FinishedAt      *time.Time         `json:"finished_at,omitempty"`
}

// DocumentIDFor returns the uploaded document id recorded for side.
func (r *CaptureRun) DocumentIDFor(side constants.Side) string {
	p := r.FrontDocumentID
	if side == constants.SideBack {
		p = r.BackDocumentID
	}
	if p == nil {
		return ""
	}
	return *p
}
