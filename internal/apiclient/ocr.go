package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

// DispatchOCR starts extraction on an uploaded document and returns at once.
func (c *Client) DispatchOCR(ctx context.Context, documentID string) (entity.OCRJob, error) {
	var out entity.OCRJob
	err := c.sendJSON(ctx, http.MethodPost, resource("ocr/process", documentID), nil, &out, true)
	if err != nil {
		if isNotAuthenticated(err) {
			return entity.OCRJob{}, err
		}
		return entity.OCRJob{}, common.NewKindError(common.CodeOCRDispatchFailed, common.ErrOCRDispatchFailed, ServerMessage(err), err)
	}
	if out.JobID == "" {
		return entity.OCRJob{}, common.NewKindError(common.CodeOCRDispatchFailed, common.ErrOCRDispatchFailed,
			fmt.Sprintf("no job id returned for document %s", documentID), nil)
	}
	if out.DocumentID == "" {
		out.DocumentID = entity.ID(documentID)
	}
	// Whatever the server reports, a freshly dispatched job is treated as pending.
	out.Status = constants.JobStatusPending
	return out, nil
}

// OCRStatus reads the status of a job.
func (c *Client) OCRStatus(ctx context.Context, jobID string) (entity.OCRJob, error) {
	var out entity.OCRJob
	if err := c.sendJSON(ctx, http.MethodGet, resource("ocr/status", jobID), nil, &out, true); err != nil {
		return entity.OCRJob{}, err
	}
	out.Status = constants.ParseJobStatus(out.RawStatus)
	return out, nil
}

// OCRResults returns the extracted fields of a document, in server order.
func (c *Client) OCRResults(ctx context.Context, documentID string) ([]entity.ExtractedField, error) {
	var out []entity.ExtractedField
	err := c.sendJSON(ctx, http.MethodGet, resource("ocr/results", documentID), nil, &out, true)
	return out, err
}
