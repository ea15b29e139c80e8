package entity

import (
	"time"

	"github.com/joseph-ayodele/citizen-docs/constants"
)

// UploadedDocument is the server-assigned identity of an uploaded image set.
type UploadedDocument struct {
	DocumentID   ID                `json:"document_id"`
	DocumentType constants.DocType `json:"document_type"`
	Status       string            `json:"status,omitempty"`
}

// Document is a stored identity document as the backend returns it.
type Document struct {
	ID           ID                `json:"id"`
	CitizenID    ID                `json:"citizen_id,omitempty"`
	DocumentType constants.DocType `json:"document_type"`
	Status       string            `json:"status,omitempty"`
	IssueDate    string            `json:"issue_date,omitempty"`
	ExpireDate   string            `json:"expire_date,omitempty"`
	FrontImage   string            `json:"front_image,omitempty"`
	BackImage    string            `json:"back_image,omitempty"`
	CreatedAt    *time.Time        `json:"created_at,omitempty"`
}

// PersistedRecord is the normalized payload a save endpoint accepted, plus
// the id it was stored under.
type PersistedRecord struct {
	ID           ID                `json:"id"`
	CitizenID    ID                `json:"citizen_id,omitempty"`
	DocumentID   ID                `json:"document_id"`
	DocumentType constants.DocType `json:"document_type"`
	Fields       map[string]any    `json:"fields"`
}
