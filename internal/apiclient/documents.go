package apiclient

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

// UploadDocument uploads the images of one document. Dual-sided types need
// both front and back; a missing side fails with ErrMissingSide before any
// request is made. For single-sided types back is ignored.
func (c *Client) UploadDocument(ctx context.Context, docType constants.DocType, front, back *entity.CapturedImage) (entity.UploadedDocument, error) {
	if front == nil || (docType.DualSided() && back == nil) {
		missing := constants.SideFront
		if front != nil {
			missing = constants.SideBack
		}
		return entity.UploadedDocument{}, common.NewKindError(common.CodeMissingSide, common.ErrMissingSide,
			fmt.Sprintf("%s of the %s is missing", missing, docType), nil)
	}
	parts := []*entity.CapturedImage{front}
	if docType.DualSided() {
		parts = append(parts, back)
	}
	return c.upload(ctx, docType, parts)
}

// UploadSide uploads a single captured side on its own, so each side gets
// its own document id and OCR job.
func (c *Client) UploadSide(ctx context.Context, docType constants.DocType, img *entity.CapturedImage) (entity.UploadedDocument, error) {
	if img == nil {
		return entity.UploadedDocument{}, common.NewKindError(common.CodeMissingSide, common.ErrMissingSide,
			fmt.Sprintf("no image for the %s", docType), nil)
	}
	return c.upload(ctx, docType, []*entity.CapturedImage{img})
}

func (c *Client) upload(ctx context.Context, docType constants.DocType, images []*entity.CapturedImage) (entity.UploadedDocument, error) {
	// Resolve the token before reading files so an anonymous upload does no work.
	if _, err := c.bearer(); err != nil {
		return entity.UploadedDocument{}, err
	}

	body, contentType, err := multipartBody(images)
	if err != nil {
		return entity.UploadedDocument{}, common.NewKindError(common.CodeUploadFailed, common.ErrUploadFailed, err.Error(), err)
	}

	raw, err := c.send(ctx, request{
		method:      http.MethodPost,
		path:        resource("documents/upload", docType.Slug()),
		body:        body,
		contentType: contentType,
		auth:        true,
		client:      c.uploadHTTP,
	})
	if err != nil {
		return entity.UploadedDocument{}, uploadError(err)
	}

	var out entity.UploadedDocument
	if err := decode(raw, &out); err != nil {
		return entity.UploadedDocument{}, common.NewKindError(common.CodeUploadFailed, common.ErrUploadFailed, err.Error(), err)
	}
	if out.DocumentID == "" {
		return entity.UploadedDocument{}, common.NewKindError(common.CodeUploadFailed, common.ErrUploadFailed,
			"upload response carried no document id", nil)
	}
	out.DocumentType = docType
	return out, nil
}

func uploadError(err error) error {
	if isNotAuthenticated(err) {
		return err
	}
	return common.NewKindError(common.CodeUploadFailed, common.ErrUploadFailed, ServerMessage(err), err)
}

// multipartBody buffers every image in memory; card photos are small.
func multipartBody(images []*entity.CapturedImage) (io.Reader, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	for _, img := range images {
		if err := writeImagePart(w, img); err != nil {
			return nil, "", err
		}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("close multipart: %w", err)
	}
	return &buf, w.FormDataContentType(), nil
}

func writeImagePart(w *multipart.Writer, img *entity.CapturedImage) error {
	f, err := os.Open(img.Path)
	if err != nil {
		return fmt.Errorf("open %s image: %w", img.Side, err)
	}
	defer f.Close()

	name := img.Filename
	if name == "" {
		name = filepath.Base(img.Path)
	}
	mime := img.MimeType
	if mime == "" {
		mime = constants.MimeTypeForExt(filepath.Ext(name))
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name=%q; filename=%q`, string(img.Side), name))
	h.Set("Content-Type", mime)
	part, err := w.CreatePart(h)
	if err != nil {
		return fmt.Errorf("create part: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return fmt.Errorf("copy %s image: %w", img.Side, err)
	}
	return nil
}

// SaveResult is what a save endpoint returns.
type SaveResult struct {
	ID        entity.ID `json:"id"`
	CitizenID entity.ID `json:"citizen_id"`
}

// SaveRecord posts a normalized payload to save-{type}-data.
func (c *Client) SaveRecord(ctx context.Context, docType constants.DocType, payload map[string]any) (SaveResult, error) {
	var out SaveResult
	err := c.sendJSON(ctx, http.MethodPost, "documents/save-"+docType.Slug()+"-data", payload, &out, true)
	if err != nil {
		if isNotAuthenticated(err) {
			return SaveResult{}, err
		}
		return SaveResult{}, common.NewKindError(common.CodeSaveFailed, common.ErrSaveFailed, ServerMessage(err), err)
	}
	if out.ID == "" {
		return SaveResult{}, common.NewKindError(common.CodeSaveFailed, common.ErrSaveFailed, "save response carried no record id", nil)
	}
	return out, nil
}

// RecordByCitizen fetches the stored record of docType for a citizen.
func (c *Client) RecordByCitizen(ctx context.Context, docType constants.DocType, citizenID string) (map[string]any, error) {
	var out map[string]any
	err := c.sendJSON(ctx, http.MethodGet, resource("documents", docType.Slug(), citizenID), nil, &out, true)
	return out, err
}

// GetDocument fetches one stored document.
func (c *Client) GetDocument(ctx context.Context, id string) (entity.Document, error) {
	var out entity.Document
	err := c.sendJSON(ctx, http.MethodGet, resource("documents", id), nil, &out, true)
	return out, err
}

// ListDocuments lists the caller's documents.
func (c *Client) ListDocuments(ctx context.Context) ([]entity.Document, error) {
	var out []entity.Document
	err := c.sendJSON(ctx, http.MethodGet, "documents/", nil, &out, true)
	return out, err
}

func (c *Client) DeleteDocument(ctx context.Context, id string) error {
	return c.sendJSON(ctx, http.MethodDelete, resource("documents", id), nil, nil, true)
}

func isNotAuthenticated(err error) bool {
	return errors.Is(err, common.ErrNotAuthenticated)
}
