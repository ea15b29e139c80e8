package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
	"github.com/joseph-ayodele/citizen-docs/internal/fieldmap"
	"github.com/joseph-ayodele/citizen-docs/internal/poll"
)

// OCRBackend is the part of the API client the OCR stage uses.
type OCRBackend interface {
	UploadSide(ctx context.Context, docType constants.DocType, img *entity.CapturedImage) (entity.UploadedDocument, error)
	UploadDocument(ctx context.Context, docType constants.DocType, front, back *entity.CapturedImage) (entity.UploadedDocument, error)
	DispatchOCR(ctx context.Context, documentID string) (entity.OCRJob, error)
	OCRResults(ctx context.Context, documentID string) ([]entity.ExtractedField, error)
	poll.StatusFetcher
}

// OCRStage uploads images, runs the OCR job to completion and maps its fields.
type OCRStage struct {
	Backend OCRBackend
	Poller  *poll.Poller
	Logger  *slog.Logger
}

func NewOCRStage(backend OCRBackend, poller *poll.Poller, logger *slog.Logger) *OCRStage {
	if logger == nil {
		logger = slog.Default()
	}
	if poller == nil {
		poller = poll.New(backend, poll.WithLogger(logger))
	}
	return &OCRStage{Backend: backend, Poller: poller, Logger: logger}
}

// RunSide processes one captured side end to end.
func (s *OCRStage) RunSide(ctx context.Context, docType constants.DocType, img *entity.CapturedImage) (SideResult, error) {
	doc, err := s.Backend.UploadSide(ctx, docType, img)
	if err != nil {
		s.Logger.Error("pipeline.upload.failed", "doc_type", docType, "side", img.Side, "error", err)
		return SideResult{Side: img.Side}, err
	}
	return s.extract(ctx, docType, img.Side, doc)
}

// RunPair uploads front and back together and processes them as one document.
func (s *OCRStage) RunPair(ctx context.Context, docType constants.DocType, front, back *entity.CapturedImage) (SideResult, error) {
	doc, err := s.Backend.UploadDocument(ctx, docType, front, back)
	if err != nil {
		s.Logger.Error("pipeline.upload.failed", "doc_type", docType, "side", "pair", "error", err)
		return SideResult{Side: constants.SideFront}, err
	}
	return s.extract(ctx, docType, constants.SideFront, doc)
}

func (s *OCRStage) extract(ctx context.Context, docType constants.DocType, side constants.Side, doc entity.UploadedDocument) (SideResult, error) {
	start := time.Now()
	res := SideResult{Side: side, Document: doc}
	s.Logger.Info("pipeline.upload.ok", "doc_type", docType, "side", side, "document_id", doc.DocumentID)

	job, err := s.Backend.DispatchOCR(ctx, doc.DocumentID.String())
	if err != nil {
		s.Logger.Error("pipeline.dispatch.failed", "document_id", doc.DocumentID, "error", err)
		return res, err
	}
	res.Job = job

	done, err := s.Poller.Wait(ctx, job.JobID.String())
	if done.JobID != "" {
		res.Job = done
	}
	if err != nil {
		s.Logger.Error("pipeline.poll.failed", "job_id", job.JobID, "attempts", done.AttemptsObserved, "error", err)
		return res, err
	}

	fields, err := s.Backend.OCRResults(ctx, doc.DocumentID.String())
	if err != nil {
		s.Logger.Error("pipeline.results.failed", "document_id", doc.DocumentID, "error", err)
		return res, err
	}
	res.Fields = fields
	res.Record = fieldmap.Map(docType, fields)

	s.Logger.Info("pipeline.side.ok",
		"doc_type", docType,
		"side", side,
		"job_id", job.JobID,
		"fields", len(fields),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return res, nil
}
