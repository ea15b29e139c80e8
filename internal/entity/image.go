package entity

import (
	"time"

	"github.com/joseph-ayodele/citizen-docs/constants"
)

// CapturedImage is a local image acquired for one document side. It is
// consumed once by the upload step.
type CapturedImage struct {
	Side        constants.Side `json:"side"`
	Path        string         `json:"path"`
	Filename    string         `json:"filename"`
	FileExt     string         `json:"file_ext"`
	MimeType    string         `json:"mime_type"`
	Size        int64          `json:"size"`
	Width       int            `json:"width"`
	Height      int            `json:"height"`
	ContentHash []byte         `json:"content_hash,omitempty"`
	CapturedAt  time.Time      `json:"captured_at"`
}
