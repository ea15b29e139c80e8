package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/apiclient"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/normalize"
)

// SaveBackend is the part of the API client the submit stage uses.
type SaveBackend interface {
	SaveRecord(ctx context.Context, docType constants.DocType, payload map[string]any) (apiclient.SaveResult, error)
	RecordByCitizen(ctx context.Context, docType constants.DocType, citizenID string) (map[string]any, error)
}

// Submission is the outcome of a successful save.
type Submission struct {
	Payload   normalize.Payload
	Saved     apiclient.SaveResult
	Canonical map[string]any // server copy of the record, nil when not reloaded
}

// SubmitStage normalizes a finished record and saves it.
type SubmitStage struct {
	Backend SaveBackend
	// Reload fetches the stored record back after a save, so callers show
	// what the server kept rather than what was sent.
	Reload bool
	Logger *slog.Logger
}

func NewSubmitStage(backend SaveBackend, reload bool, logger *slog.Logger) *SubmitStage {
	if logger == nil {
		logger = slog.Default()
	}
	return &SubmitStage{Backend: backend, Reload: reload, Logger: logger}
}

// Run submits the merged record of a complete run. A run that is still
// waiting for a side is refused before anything is built or sent.
func (s *SubmitStage) Run(ctx context.Context, run *Run) (Submission, error) {
	if run.State() != Complete {
		missing, _ := run.ExpectedSide()
		return Submission{}, common.NewKindError(common.CodeMissingSide, common.ErrMissingSide,
			fmt.Sprintf("cannot submit run %s: %s side not captured (state %s)", run.ID, missing, run.State()), nil)
	}

	payload, err := normalize.BuildPayload(run.DocType, run.PrimaryDocumentID(), run.Record())
	if err != nil {
		s.Logger.Warn("pipeline.submit.invalid", "run_id", run.ID, "error", err)
		return Submission{}, err
	}
	if len(payload.Dropped) > 0 {
		s.Logger.Info("pipeline.submit.dropped", "run_id", run.ID, "labels", payload.Dropped)
	}

	saved, err := s.Backend.SaveRecord(ctx, run.DocType, payload.Fields)
	if err != nil {
		s.Logger.Error("pipeline.submit.failed", "run_id", run.ID, "document_id", run.PrimaryDocumentID(), "error", err)
		return Submission{Payload: payload}, err
	}
	out := Submission{Payload: payload, Saved: saved}
	s.Logger.Info("pipeline.submit.ok", "run_id", run.ID, "record_id", saved.ID, "citizen_id", saved.CitizenID)

	if s.Reload && saved.CitizenID != "" {
		canonical, err := s.Backend.RecordByCitizen(ctx, run.DocType, saved.CitizenID.String())
		if err != nil {
			// The save went through; a failed reload only loses the server echo.
			s.Logger.Warn("pipeline.submit.reload_failed", "run_id", run.ID, "citizen_id", saved.CitizenID, "error", err)
		} else {
			out.Canonical = canonical
		}
	}
	return out, nil
}
