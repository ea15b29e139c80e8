package pipeline

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
	"github.com/joseph-ayodele/citizen-docs/internal/fieldmap"
)

// CaptureState is where a run stands in the side-by-side capture.
type CaptureState int

const (
	AwaitingFront CaptureState = iota
	AwaitingBack
	Complete
	Failed
)

func (s CaptureState) String() string {
	switch s {
	case AwaitingFront:
		return "awaiting_front"
	case AwaitingBack:
		return "awaiting_back"
	case Complete:
		return "complete"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("CaptureState(%d)", int(s))
}

// SideResult is everything one processed side contributed.
type SideResult struct {
	Side     constants.Side
	Document entity.UploadedDocument
	Job      entity.OCRJob
	Fields   []entity.ExtractedField
	Record   entity.DisplayRecord
}

// Run holds the state of one pipeline invocation. Only the Processor
// transitions it.
type Run struct {
	ID      uuid.UUID
	DocType constants.DocType

	state       CaptureState
	sides       []SideResult
	record      entity.DisplayRecord
	needsReview []string
}

func NewRun(docType constants.DocType) *Run {
	return &Run{
		ID:      uuid.New(),
		DocType: docType,
		state:   AwaitingFront,
		record:  entity.DisplayRecord{},
	}
}

func (r *Run) State() CaptureState { return r.state }

// Record returns a copy of the merged record so far.
func (r *Run) Record() entity.DisplayRecord { return r.record.Clone() }

// Sides returns the processed sides in capture order.
func (r *Run) Sides() []SideResult {
	out := make([]SideResult, len(r.sides))
	copy(out, r.sides)
	return out
}

// NeedsReview lists labels whose OCR confidence was low.
func (r *Run) NeedsReview() []string { return r.needsReview }

// ExpectedSide is the side the run is waiting for.
func (r *Run) ExpectedSide() (constants.Side, bool) {
	switch r.state {
	case AwaitingFront:
		return constants.SideFront, true
	case AwaitingBack:
		return constants.SideBack, true
	}
	return "", false
}

// PrimaryDocumentID is the document the final record is saved against.
func (r *Run) PrimaryDocumentID() string {
	if len(r.sides) == 0 {
		return ""
	}
	return r.sides[0].Document.DocumentID.String()
}

// accept merges a processed side and advances the state. Back entries win
// on label collisions.
func (r *Run) accept(res SideResult, minConfidence float64) error {
	want, ok := r.ExpectedSide()
	if !ok {
		return fmt.Errorf("run %s is %s, not accepting sides", r.ID, r.state)
	}
	if res.Side != want {
		return fmt.Errorf("run %s expects the %s side, got %s", r.ID, want, res.Side)
	}
	r.sides = append(r.sides, res)
	r.record = fieldmap.Merge(r.record, res.Record)
	r.needsReview = mergeLabels(r.needsReview, fieldmap.NeedsReview(r.DocType, res.Fields, minConfidence))

	switch {
	case want == constants.SideFront && r.DocType.DualSided():
		r.state = AwaitingBack
	default:
		r.state = Complete
	}
	return nil
}

// acceptPair takes one result that covers every side at once.
func (r *Run) acceptPair(res SideResult, minConfidence float64) error {
	if r.state != AwaitingFront {
		return fmt.Errorf("run %s is %s, cannot accept a pair", r.ID, r.state)
	}
	r.sides = append(r.sides, res)
	r.record = fieldmap.Merge(r.record, res.Record)
	r.needsReview = mergeLabels(r.needsReview, fieldmap.NeedsReview(r.DocType, res.Fields, minConfidence))
	r.state = Complete
	return nil
}

// replaceRecord installs the reviewed record. Only a complete run can be edited.
func (r *Run) replaceRecord(rec entity.DisplayRecord) {
	if r.state == Complete {
		r.record = rec.Clone()
	}
}

func (r *Run) fail() { r.state = Failed }

func mergeLabels(a, b []string) []string {
	seen := make(map[string]struct{}, len(a)+len(b))
	out := make([]string, 0, len(a)+len(b))
	for _, l := range append(append([]string{}, a...), b...) {
		if _, ok := seen[l]; ok {
			continue
		}
		seen[l] = struct{}{}
		out = append(out, l)
	}
	return out
}

// resumeRun rebuilds a complete Run from a stored capture run so its record
// can be submitted again against the same uploaded documents.
func resumeRun(cr *entity.CaptureRun) *Run {
	r := &Run{
		ID:      cr.ID,
		DocType: cr.DocumentType,
		state:   Complete,
		record:  cr.Fields.Clone(),
	}
	if r.record == nil {
		r.record = entity.DisplayRecord{}
	}
	for _, side := range constants.Sides(cr.DocumentType) {
		id := cr.DocumentIDFor(side)
		if id == "" {
			continue
		}
		r.sides = append(r.sides, SideResult{
			Side:     side,
			Document: entity.UploadedDocument{DocumentID: entity.ID(id), DocumentType: cr.DocumentType},
		})
	}
	return r
}
