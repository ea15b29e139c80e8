package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/apiclient"
	"github.com/joseph-ayodele/citizen-docs/internal/capture"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

// ImageSource produces captured images.
type ImageSource interface {
	Acquire(ctx context.Context, side constants.Side, source capture.Source) (entity.CapturedImage, bool, error)
	Inspect(ctx context.Context, side constants.Side, path string) (entity.CapturedImage, error)
}

// RunRecorder keeps the local history of capture runs.
type RunRecorder interface {
	Create(ctx context.Context, run *entity.CaptureRun) error
	Update(ctx context.Context, run *entity.CaptureRun) error
	Get(ctx context.Context, id uuid.UUID) (*entity.CaptureRun, error)
}

// Outcome is what a finished pipeline invocation produced.
type Outcome struct {
	Run       *entity.CaptureRun
	Record    entity.DisplayRecord
	Saved     apiclient.SaveResult
	Canonical map[string]any
	Dropped   []string
}

// Processor drives a capture run: acquire, upload, OCR and map each side in
// turn, review the merged record, then save it.
type Processor struct {
	Logger        *slog.Logger
	Images        ImageSource
	OCR           *OCRStage
	Submit        *SubmitStage
	Reviewer      Reviewer
	Runs          RunRecorder
	MinConfidence float64
	now           func() time.Time
}

type Option func(*Processor)

func WithReviewer(r Reviewer) Option { return func(p *Processor) { p.Reviewer = r } }

func WithRunRecorder(r RunRecorder) Option { return func(p *Processor) { p.Runs = r } }

// WithMinConfidence flags fields the OCR engine scored below min.
func WithMinConfidence(min float64) Option { return func(p *Processor) { p.MinConfidence = min } }

func NewProcessor(logger *slog.Logger, images ImageSource, ocr *OCRStage, submit *SubmitStage, opts ...Option) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	p := &Processor{
		Logger:   logger,
		Images:   images,
		OCR:      ocr,
		Submit:   submit,
		Reviewer: AcceptAll{},
		Runs:     noopRecorder{},
		now:      time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Scan captures every side of docType from source and saves the result.
// ok=false with a nil error means the user cancelled; nothing is saved.
func (p *Processor) Scan(ctx context.Context, docType constants.DocType, source capture.Source) (Outcome, bool, error) {
	run := NewRun(docType)
	cr, err := p.begin(ctx, run)
	if err != nil {
		return Outcome{}, false, err
	}
	ctx = common.WithRunID(ctx, run.ID.String())
	p.Logger.Info("pipeline.run.start", "run_id", run.ID, "doc_type", docType, "source", source)

	for {
		side, waiting := run.ExpectedSide()
		if !waiting {
			break
		}
		img, ok, err := p.Images.Acquire(ctx, side, source)
		if err != nil {
			return p.fail(ctx, run, cr, constants.RunStateFailed, err)
		}
		if !ok {
			p.cancel(ctx, run, cr, side)
			return Outcome{Run: cr}, false, nil
		}

		res, err := p.OCR.RunSide(ctx, docType, &img)
		note(cr, res)
		if err != nil {
			return p.fail(ctx, run, cr, constants.RunStateFailed, err)
		}
		if err := run.accept(res, p.MinConfidence); err != nil {
			return p.fail(ctx, run, cr, constants.RunStateFailed, err)
		}
		p.save(ctx, cr)
	}
	return p.finish(ctx, run, cr)
}

// ProcessPair runs images already on disk through the pipeline. Dual-sided
// types are uploaded as one front/back document; a missing side fails before
// any request is made. No review step runs unless a Reviewer was configured.
func (p *Processor) ProcessPair(ctx context.Context, docType constants.DocType, frontPath, backPath string) (Outcome, error) {
	run := NewRun(docType)
	cr, err := p.begin(ctx, run)
	if err != nil {
		return Outcome{}, err
	}
	ctx = common.WithRunID(ctx, run.ID.String())
	p.Logger.Info("pipeline.run.start", "run_id", run.ID, "doc_type", docType, "front", frontPath, "back", backPath)

	front, err := p.inspect(ctx, constants.SideFront, frontPath)
	if err != nil {
		out, _, err := p.fail(ctx, run, cr, constants.RunStateFailed, err)
		return out, err
	}
	var back *entity.CapturedImage
	if docType.DualSided() {
		if back, err = p.inspect(ctx, constants.SideBack, backPath); err != nil {
			out, _, err := p.fail(ctx, run, cr, constants.RunStateFailed, err)
			return out, err
		}
	}

	res, err := p.OCR.RunPair(ctx, docType, front, back)
	note(cr, res)
	if err == nil {
		err = run.acceptPair(res, p.MinConfidence)
	}
	if err != nil {
		out, _, err := p.fail(ctx, run, cr, constants.RunStateFailed, err)
		return out, err
	}
	out, ok, err := p.finish(ctx, run, cr)
	if err == nil && !ok {
		err = fmt.Errorf("run %s: %w", run.ID, context.Canceled)
	}
	return out, err
}

// Resubmit saves the record of an orphaned run again, against the documents
// it already uploaded.
func (p *Processor) Resubmit(ctx context.Context, runID uuid.UUID) (Outcome, bool, error) {
	cr, err := p.Runs.Get(ctx, runID)
	if err != nil {
		return Outcome{}, false, err
	}
	if cr.State != constants.RunStateOrphaned {
		return Outcome{Run: cr}, false, common.NewAppError(common.CodeValidation,
			fmt.Sprintf("run %s is %s; only ORPHANED runs can be resubmitted", runID, cr.State), common.ErrInvalidInput)
	}
	run := resumeRun(cr)
	if run.PrimaryDocumentID() == "" {
		return Outcome{Run: cr}, false, common.NewAppError(common.CodeValidation,
			fmt.Sprintf("run %s has no uploaded document", runID), common.ErrInvalidInput)
	}
	cr.ErrorCode, cr.ErrorMessage, cr.FinishedAt = nil, nil, nil
	ctx = common.WithRunID(ctx, run.ID.String())
	p.Logger.Info("pipeline.run.resubmit", "run_id", run.ID, "document_id", run.PrimaryDocumentID())
	return p.finish(ctx, run, cr)
}

// finish reviews and saves a complete run. Failures from here on leave the
// uploads in place and mark the run ORPHANED.
func (p *Processor) finish(ctx context.Context, run *Run, cr *entity.CaptureRun) (Outcome, bool, error) {
	rec := run.Record()
	cr.Fields = rec
	cr.NeedsReview = len(run.NeedsReview()) > 0

	reviewed, ok, err := p.Reviewer.Review(ctx, run.DocType, rec, run.NeedsReview())
	if err != nil {
		return p.fail(ctx, run, cr, constants.RunStateOrphaned, err)
	}
	if !ok {
		p.Logger.Info("pipeline.review.abandoned", "run_id", run.ID)
		cr.State = constants.RunStateOrphaned
		p.save(ctx, cr)
		return Outcome{Run: cr, Record: rec}, false, nil
	}
	run.replaceRecord(reviewed)
	cr.Fields = run.Record()

	sub, err := p.Submit.Run(ctx, run)
	if err != nil {
		out, ok, err := p.fail(ctx, run, cr, constants.RunStateOrphaned, err)
		out.Dropped = sub.Payload.Dropped
		return out, ok, err
	}

	recordID := sub.Saved.ID.String()
	finished := p.now()
	cr.State = constants.RunStateCompleted
	cr.RecordID = &recordID
	cr.FinishedAt = &finished
	p.save(ctx, cr)
	p.Logger.Info("pipeline.run.ok",
		"run_id", run.ID,
		"record_id", recordID,
		"elapsed_ms", finished.Sub(cr.StartedAt).Milliseconds(),
	)
	return Outcome{
		Run:       cr,
		Record:    run.Record(),
		Saved:     sub.Saved,
		Canonical: sub.Canonical,
		Dropped:   sub.Payload.Dropped,
	}, true, nil
}

func (p *Processor) begin(ctx context.Context, run *Run) (*entity.CaptureRun, error) {
	cr := &entity.CaptureRun{
		ID:           run.ID,
		DocumentType: run.DocType,
		State:        constants.RunStateRunning,
		StartedAt:    p.now(),
	}
	if err := p.Runs.Create(ctx, cr); err != nil {
		return nil, fmt.Errorf("record run: %w", err)
	}
	return cr, nil
}

func (p *Processor) inspect(ctx context.Context, side constants.Side, path string) (*entity.CapturedImage, error) {
	if path == "" {
		return nil, common.NewKindError(common.CodeMissingSide, common.ErrMissingSide,
			fmt.Sprintf("no %s image", side), nil)
	}
	img, err := p.Images.Inspect(ctx, side, path)
	if err != nil {
		return nil, err
	}
	return &img, nil
}

// fail records err on the run. Context cancellation is recorded as CANCELLED.
func (p *Processor) fail(ctx context.Context, run *Run, cr *entity.CaptureRun, state constants.RunState, err error) (Outcome, bool, error) {
	if state == constants.RunStateFailed {
		run.fail()
	}
	if errors.Is(err, context.Canceled) {
		state = constants.RunStateCancelled
	}
	code, msg := errorCode(err), common.UserMessage(err)
	finished := p.now()
	cr.State = state
	cr.ErrorCode = &code
	cr.ErrorMessage = &msg
	cr.FinishedAt = &finished
	p.save(ctx, cr)
	p.Logger.Error("pipeline.run.failed", "run_id", run.ID, "state", state, "code", code, "error", err)
	return Outcome{Run: cr, Record: run.Record()}, false, err
}

func (p *Processor) cancel(ctx context.Context, run *Run, cr *entity.CaptureRun, side constants.Side) {
	finished := p.now()
	cr.State = constants.RunStateCancelled
	cr.FinishedAt = &finished
	p.save(ctx, cr)
	p.Logger.Info("pipeline.run.cancelled", "run_id", run.ID, "side", side)
}

// save writes cr even when ctx was cancelled, so the history shows why the
// run stopped.
func (p *Processor) save(ctx context.Context, cr *entity.CaptureRun) {
	if err := p.Runs.Update(context.WithoutCancel(ctx), cr); err != nil {
		p.Logger.Warn("pipeline.run.record_failed", "run_id", cr.ID, "error", err)
	}
}

func note(cr *entity.CaptureRun, res SideResult) {
	doc, job := res.Document.DocumentID.String(), res.Job.JobID.String()
	docPtr, jobPtr := &cr.FrontDocumentID, &cr.FrontJobID
	if res.Side == constants.SideBack {
		docPtr, jobPtr = &cr.BackDocumentID, &cr.BackJobID
	}
	if doc != "" {
		*docPtr = &doc
	}
	if job != "" {
		*jobPtr = &job
	}
}

func errorCode(err error) string {
	var appErr *common.AppError
	var dateErr *common.DateFormatError
	switch {
	case errors.As(err, &appErr) && appErr.Code != "":
		return appErr.Code
	case errors.As(err, &dateErr):
		return common.CodeDateFormat
	case errors.Is(err, context.Canceled):
		return string(constants.RunStateCancelled)
	case errors.Is(err, context.DeadlineExceeded):
		return "DEADLINE_EXCEEDED"
	case errors.Is(err, common.ErrNotAuthenticated):
		return common.CodeNotAuthenticated
	}
	return "INTERNAL"
}

type noopRecorder struct{}

func (noopRecorder) Create(context.Context, *entity.CaptureRun) error { return nil }
func (noopRecorder) Update(context.Context, *entity.CaptureRun) error { return nil }
func (noopRecorder) Get(_ context.Context, id uuid.UUID) (*entity.CaptureRun, error) {
	return nil, common.NewAppError("NOT_FOUND", fmt.Sprintf("run %s not found", id), common.ErrNotFound)
}
