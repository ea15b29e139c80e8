package pipeline

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/apiclient"
	"github.com/joseph-ayodele/citizen-docs/internal/apiclient/apitest"
	"github.com/joseph-ayodele/citizen-docs/internal/capture"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
	"github.com/joseph-ayodele/citizen-docs/internal/poll"
)

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type staticToken string

func (s staticToken) Token() (string, bool) { return string(s), s != "" }

type instantClock struct{}

func (instantClock) After(time.Duration) <-chan time.Time {
	ch := make(chan time.Time, 1)
	ch <- time.Time{}
	return ch
}

// fakeImages writes a small file per requested side. Sides listed in cancel
// behave as if the user backed out.
type fakeImages struct {
	dir    string
	cancel map[constants.Side]bool
	err    error
	asked  []constants.Side
}

func (f *fakeImages) image(side constants.Side, path string) entity.CapturedImage {
	return entity.CapturedImage{
		Side:     side,
		Path:     path,
		Filename: filepath.Base(path),
		FileExt:  ".jpg",
		MimeType: "image/jpeg",
		Size:     4,
	}
}

func (f *fakeImages) Acquire(_ context.Context, side constants.Side, _ capture.Source) (entity.CapturedImage, bool, error) {
	f.asked = append(f.asked, side)
	if f.err != nil {
		return entity.CapturedImage{}, false, f.err
	}
	if f.cancel[side] {
		return entity.CapturedImage{}, false, nil
	}
	p := filepath.Join(f.dir, string(side)+".jpg")
	if err := os.WriteFile(p, []byte("jpeg"), 0o644); err != nil {
		return entity.CapturedImage{}, false, err
	}
	return f.image(side, p), true, nil
}

func (f *fakeImages) Inspect(_ context.Context, side constants.Side, path string) (entity.CapturedImage, error) {
	return f.image(side, path), nil
}

type memoryRuns struct {
	mu   sync.Mutex
	runs map[uuid.UUID]entity.CaptureRun
}

func newMemoryRuns() *memoryRuns { return &memoryRuns{runs: map[uuid.UUID]entity.CaptureRun{}} }

func (m *memoryRuns) Create(_ context.Context, r *entity.CaptureRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = *r
	return nil
}

func (m *memoryRuns) Update(_ context.Context, r *entity.CaptureRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[r.ID] = *r
	return nil
}

func (m *memoryRuns) Get(_ context.Context, id uuid.UUID) (*entity.CaptureRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok {
		return nil, fmt.Errorf("run %s: %w", id, common.ErrNotFound)
	}
	return &r, nil
}

type harness struct {
	backend *apitest.Backend
	images  *fakeImages
	runs    *memoryRuns
	proc    *Processor
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	b := apitest.New()
	t.Cleanup(b.Close)
	b.Results[constants.SideFront] = []entity.ExtractedField{
		{FieldName: "name", RawText: "NGUYỄN VĂN A", ConfidenceScore: 0.97},
		{FieldName: "id", RawText: "001234567890", ConfidenceScore: 0.99},
	}
	b.Results[constants.SideBack] = []entity.ExtractedField{
		{FieldName: "expire_date", RawText: "15/03/2035", ConfidenceScore: 0.91},
	}

	logger := quietLogger()
	client := apiclient.NewClient(apiclient.Config{BaseURL: b.URL()}, staticToken(b.Token), logger)
	poller := poll.New(client, poll.WithClock(instantClock{}), poll.WithLogger(logger))
	h := &harness{
		backend: b,
		images:  &fakeImages{dir: t.TempDir(), cancel: map[constants.Side]bool{}},
		runs:    newMemoryRuns(),
	}
	opts = append([]Option{WithRunRecorder(h.runs), WithMinConfidence(0.6)}, opts...)
	h.proc = NewProcessor(logger, h.images,
		NewOCRStage(client, poller, logger),
		NewSubmitStage(client, true, logger),
		opts...)
	return h
}

func TestScan_CCCDFrontAndBackSavesMergedRecord(t *testing.T) {
	h := newHarness(t)

	out, ok, err := h.proc.Scan(context.Background(), constants.DocTypeCCCD, capture.SourceLibrary)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []constants.Side{constants.SideFront, constants.SideBack}, h.images.asked)
	assert.Equal(t, entity.DisplayRecord{
		"Họ và tên":      "NGUYỄN VĂN A",
		"Số CCCD":        "001234567890",
		"Có giá trị đến": "15/03/2035",
	}, out.Record)

	saved := h.backend.Saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "2035-03-15", saved[0]["expire_date"])
	assert.Equal(t, "NGUYỄN VĂN A", saved[0]["name"])
	assert.Equal(t, "001234567890", saved[0]["so_cccd"])

	// Each side is its own upload and job; the record hangs off the front.
	docs := h.backend.Documents()
	require.Len(t, docs, 2)
	assert.Equal(t, []string{"front"}, docs[0].Parts)
	assert.Equal(t, []string{"back"}, docs[1].Parts)
	assert.Equal(t, docs[0].ID, saved[0]["document_id"])
	assert.Equal(t, 2, h.backend.Calls("dispatch"))
	assert.Equal(t, 4, h.backend.Calls("status"))

	require.NotNil(t, out.Canonical)
	assert.Equal(t, "2035-03-15", out.Canonical["expire_date"])

	stored, err := h.runs.Get(context.Background(), out.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStateCompleted, stored.State)
	require.NotNil(t, stored.RecordID)
	assert.Equal(t, "1", *stored.RecordID)
	assert.Equal(t, docs[0].ID, stored.DocumentIDFor(constants.SideFront))
	assert.Equal(t, docs[1].ID, stored.DocumentIDFor(constants.SideBack))
	assert.NotNil(t, stored.FrontJobID)
	assert.NotNil(t, stored.BackJobID)
	assert.False(t, stored.NeedsReview)
	assert.NotNil(t, stored.FinishedAt)
}

func TestScan_BackWinsOnCollision(t *testing.T) {
	h := newHarness(t)
	h.backend.Results[constants.SideBack] = append(h.backend.Results[constants.SideBack],
		entity.ExtractedField{FieldName: "name", RawText: "NGUYỄN VĂN B", ConfidenceScore: 0.9})

	out, ok, err := h.proc.Scan(context.Background(), constants.DocTypeCCCD, capture.SourceLibrary)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "NGUYỄN VĂN B", out.Record["Họ và tên"])
	assert.Equal(t, "NGUYỄN VĂN B", h.backend.Saved()[0]["name"])
}

func TestScan_SingleSidedTypeNeverAsksForBack(t *testing.T) {
	h := newHarness(t)
	h.backend.Results[constants.SideFront] = []entity.ExtractedField{
		{FieldName: "id", RawText: "DN1234567890123", ConfidenceScore: 0.9},
		{FieldName: "name", RawText: "TRẦN THỊ B", ConfidenceScore: 0.9},
		{FieldName: "gender", RawText: "Nữ", ConfidenceScore: 0.9},
		{FieldName: "expire_date", RawText: "31-12-2026", ConfidenceScore: 0.9},
	}

	out, ok, err := h.proc.Scan(context.Background(), constants.DocTypeBHYT, capture.SourceLibrary)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, []constants.Side{constants.SideFront}, h.images.asked)
	assert.Equal(t, 1, h.backend.Calls("upload"))
	saved := h.backend.Saved()
	require.Len(t, saved, 1)
	assert.Equal(t, "FEMALE", saved[0]["gender"])
	assert.Equal(t, "2026-12-31", saved[0]["expire_date"])
	assert.Equal(t, constants.RunStateCompleted, out.Run.State)
}

func TestScan_CancelBackIsSilent(t *testing.T) {
	h := newHarness(t)
	h.images.cancel[constants.SideBack] = true

	out, ok, err := h.proc.Scan(context.Background(), constants.DocTypeCCCD, capture.SourceCamera)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, constants.RunStateCancelled, out.Run.State)
	assert.Equal(t, 1, h.backend.Calls("upload"))
	assert.Zero(t, h.backend.Calls("save"))
}

func TestScan_PermissionDeniedStopsBeforeUpload(t *testing.T) {
	h := newHarness(t)
	h.images.err = common.NewKindError(common.CodePermissionDenied, common.ErrPermissionDenied, "", nil)

	out, ok, err := h.proc.Scan(context.Background(), constants.DocTypeCCCD, capture.SourceCamera)
	require.ErrorIs(t, err, common.ErrPermissionDenied)
	assert.False(t, ok)
	assert.Equal(t, constants.RunStateFailed, out.Run.State)
	assert.Zero(t, h.backend.TotalCalls())
}

func TestScan_OCRTimeoutFailsRunAfterThirtyPolls(t *testing.T) {
	h := newHarness(t)
	h.backend.StatusScript = []string{"PROCESSING"}

	out, ok, err := h.proc.Scan(context.Background(), constants.DocTypeCCCD, capture.SourceLibrary)
	require.ErrorIs(t, err, common.ErrOCRTimeout)
	assert.False(t, ok)
	assert.Equal(t, constants.OCRPollMaxAttempts, h.backend.Calls("status"))
	assert.Equal(t, []constants.Side{constants.SideFront}, h.images.asked)
	assert.Equal(t, constants.RunStateFailed, out.Run.State)
	require.NotNil(t, out.Run.ErrorCode)
	assert.Equal(t, common.CodeOCRTimeout, *out.Run.ErrorCode)
	assert.Zero(t, h.backend.Calls("save"))
}

func TestScan_OCRFailedStatus(t *testing.T) {
	h := newHarness(t)
	h.backend.StatusScript = []string{"QUEUED", "FAILED"}

	_, _, err := h.proc.Scan(context.Background(), constants.DocTypeCCCD, capture.SourceLibrary)
	require.ErrorIs(t, err, common.ErrOCRFailed)
	assert.Equal(t, 2, h.backend.Calls("status"))
}

func TestScan_UploadFailureCarriesServerMessage(t *testing.T) {
	h := newHarness(t)
	h.backend.UploadStatus = 400
	h.backend.Detail = "Invalid file type"

	out, _, err := h.proc.Scan(context.Background(), constants.DocTypeCCCD, capture.SourceLibrary)
	require.ErrorIs(t, err, common.ErrUploadFailed)
	assert.Equal(t, "Invalid file type", common.UserMessage(err))
	assert.Equal(t, constants.RunStateFailed, out.Run.State)
	assert.Zero(t, h.backend.Calls("dispatch"))
}

func TestScan_BadDateIsOrphanedWithoutSaving(t *testing.T) {
	h := newHarness(t)
	h.backend.Results[constants.SideBack] = []entity.ExtractedField{
		{FieldName: "expire_date", RawText: "31/02/2035", ConfidenceScore: 0.9},
	}

	out, ok, err := h.proc.Scan(context.Background(), constants.DocTypeCCCD, capture.SourceLibrary)
	require.ErrorIs(t, err, common.ErrDateFormat)
	assert.False(t, ok)
	assert.Equal(t, constants.RunStateOrphaned, out.Run.State)
	require.NotNil(t, out.Run.ErrorCode)
	assert.Equal(t, common.CodeDateFormat, *out.Run.ErrorCode)
	assert.Zero(t, h.backend.Calls("save"))
}

func TestScan_SaveFailureOrphansThenResubmitReusesDocument(t *testing.T) {
	h := newHarness(t)
	h.backend.SaveStatus = 500
	h.backend.Detail = "database unavailable"

	out, ok, err := h.proc.Scan(context.Background(), constants.DocTypeCCCD, capture.SourceLibrary)
	require.ErrorIs(t, err, common.ErrSaveFailed)
	assert.False(t, ok)
	assert.Equal(t, constants.RunStateOrphaned, out.Run.State)
	frontDoc := out.Run.DocumentIDFor(constants.SideFront)
	require.NotEmpty(t, frontDoc)

	h.backend.SaveStatus = 0
	again, ok, err := h.proc.Resubmit(context.Background(), out.Run.ID)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, constants.RunStateCompleted, again.Run.State)
	assert.Nil(t, again.Run.ErrorCode)

	assert.Equal(t, 2, h.backend.Calls("upload"))
	saved := h.backend.Saved()
	require.Len(t, saved, 1)
	assert.Equal(t, frontDoc, saved[0]["document_id"])
	assert.Equal(t, "2035-03-15", saved[0]["expire_date"])
}

func TestResubmit_RefusesCompletedRun(t *testing.T) {
	h := newHarness(t)
	out, _, err := h.proc.Scan(context.Background(), constants.DocTypeCCCD, capture.SourceLibrary)
	require.NoError(t, err)

	_, _, err = h.proc.Resubmit(context.Background(), out.Run.ID)
	require.ErrorIs(t, err, common.ErrInvalidInput)
	assert.Len(t, h.backend.Saved(), 1)
}

func TestScan_ContextCancelledDuringPollIsRecorded(t *testing.T) {
	h := newHarness(t)
	ctx, cancel := context.WithCancel(context.Background())
	h.proc.OCR.Poller = poll.New(cancelOnFetch{cancel: cancel}, poll.WithClock(instantClock{}))

	out, ok, err := h.proc.Scan(ctx, constants.DocTypeCCCD, capture.SourceLibrary)
	require.ErrorIs(t, err, context.Canceled)
	assert.False(t, ok)
	assert.Equal(t, constants.RunStateCancelled, out.Run.State)

	stored, err := h.runs.Get(context.Background(), out.Run.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStateCancelled, stored.State)
}

// cancelOnFetch cancels the run while the job is still pending.
type cancelOnFetch struct{ cancel context.CancelFunc }

func (c cancelOnFetch) OCRStatus(_ context.Context, jobID string) (entity.OCRJob, error) {
	c.cancel()
	return entity.OCRJob{JobID: entity.ID(jobID), RawStatus: "PROCESSING"}, nil
}

type editingReviewer struct {
	set     map[string]string
	flagged []string
	abandon bool
}

func (e *editingReviewer) Review(_ context.Context, _ constants.DocType, rec entity.DisplayRecord, flagged []string) (entity.DisplayRecord, bool, error) {
	e.flagged = flagged
	if e.abandon {
		return nil, false, nil
	}
	for k, v := range e.set {
		rec[k] = v
	}
	return rec, true, nil
}

func TestScan_ReviewerEditsAreSaved(t *testing.T) {
	rv := &editingReviewer{set: map[string]string{"Quốc tịch": "Việt Nam"}}
	h := newHarness(t, WithReviewer(rv))
	h.backend.Results[constants.SideFront][0].ConfidenceScore = 0.3

	out, ok, err := h.proc.Scan(context.Background(), constants.DocTypeCCCD, capture.SourceLibrary)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"Họ và tên"}, rv.flagged)
	assert.True(t, out.Run.NeedsReview)
	assert.Equal(t, "Việt Nam", h.backend.Saved()[0]["nationality"])
}

func TestScan_ReviewerAbandonLeavesRunOrphaned(t *testing.T) {
	h := newHarness(t, WithReviewer(&editingReviewer{abandon: true}))

	out, ok, err := h.proc.Scan(context.Background(), constants.DocTypeCCCD, capture.SourceLibrary)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, constants.RunStateOrphaned, out.Run.State)
	assert.Zero(t, h.backend.Calls("save"))
}

func TestProcessPair_MissingBackMakesNoRequests(t *testing.T) {
	h := newHarness(t)
	front := filepath.Join(h.images.dir, "card_front.jpg")
	require.NoError(t, os.WriteFile(front, []byte("jpeg"), 0o644))

	out, err := h.proc.ProcessPair(context.Background(), constants.DocTypeCCCD, front, "")
	require.ErrorIs(t, err, common.ErrMissingSide)
	assert.Zero(t, h.backend.TotalCalls())
	assert.Equal(t, constants.RunStateFailed, out.Run.State)
}

func TestProcessPair_UploadsBothSidesTogether(t *testing.T) {
	h := newHarness(t)
	front := filepath.Join(h.images.dir, "card_front.jpg")
	back := filepath.Join(h.images.dir, "card_back.jpg")
	require.NoError(t, os.WriteFile(front, []byte("jpeg"), 0o644))
	require.NoError(t, os.WriteFile(back, []byte("jpeg"), 0o644))

	out, err := h.proc.ProcessPair(context.Background(), constants.DocTypeCCCD, front, back)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStateCompleted, out.Run.State)

	docs := h.backend.Documents()
	require.Len(t, docs, 1)
	assert.Equal(t, []string{"front", "back"}, docs[0].Parts)
	assert.Equal(t, 1, h.backend.Calls("dispatch"))
	assert.Equal(t, "2035-03-15", h.backend.Saved()[0]["expire_date"])
}

func TestSubmitStage_RefusesIncompleteRun(t *testing.T) {
	h := newHarness(t)
	run := NewRun(constants.DocTypeCCCD)
	require.NoError(t, run.accept(SideResult{
		Side:     constants.SideFront,
		Document: entity.UploadedDocument{DocumentID: "7"},
		Record:   entity.DisplayRecord{"Họ và tên": "NGUYỄN VĂN A"},
	}, 0))
	require.Equal(t, AwaitingBack, run.State())

	_, err := h.proc.Submit.Run(context.Background(), run)
	require.ErrorIs(t, err, common.ErrMissingSide)
	assert.Zero(t, h.backend.TotalCalls())
}

func TestRun_Transitions(t *testing.T) {
	run := NewRun(constants.DocTypeCCCD)
	assert.Equal(t, AwaitingFront, run.State())

	err := run.accept(SideResult{Side: constants.SideBack}, 0)
	require.Error(t, err)
	assert.Equal(t, AwaitingFront, run.State())

	require.NoError(t, run.accept(SideResult{
		Side:     constants.SideFront,
		Document: entity.UploadedDocument{DocumentID: "1"},
		Record:   entity.DisplayRecord{"Họ và tên": "A", "Số CCCD": "001234567890"},
	}, 0))
	assert.Equal(t, AwaitingBack, run.State())

	require.NoError(t, run.accept(SideResult{
		Side:     constants.SideBack,
		Document: entity.UploadedDocument{DocumentID: "2"},
		Record:   entity.DisplayRecord{"Họ và tên": "B"},
	}, 0))
	assert.Equal(t, Complete, run.State())
	assert.Equal(t, "B", run.Record()["Họ và tên"])
	assert.Equal(t, "001234567890", run.Record()["Số CCCD"])
	assert.Equal(t, "1", run.PrimaryDocumentID())

	require.Error(t, run.accept(SideResult{Side: constants.SideBack}, 0))
	_, waiting := run.ExpectedSide()
	assert.False(t, waiting)
}

type lines []string

func (l *lines) Prompt(context.Context, string) (string, error) {
	if len(*l) == 0 {
		return "", io.EOF
	}
	a := (*l)[0]
	*l = (*l)[1:]
	return a, nil
}

func TestPromptReviewer(t *testing.T) {
	rec := entity.DisplayRecord{"Số CCCD": "001234567890", "Họ và tên": "NGUYEN VAN A"}

	t.Run("edit by number then save", func(t *testing.T) {
		var out strings.Builder
		in := lines{"2", "NGUYỄN VĂN A", ""}
		got, ok, err := PromptReviewer{Prompter: &in, Out: &out}.Review(context.Background(), constants.DocTypeCCCD, rec, []string{"Họ và tên"})
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "NGUYỄN VĂN A", got["Họ và tên"])
		assert.Equal(t, "NGUYEN VAN A", rec["Họ và tên"])
		assert.Contains(t, out.String(), "* 2. Họ và tên: NGUYEN VAN A")
	})

	t.Run("empty answer keeps the value", func(t *testing.T) {
		var out strings.Builder
		in := lines{"1", "", ""}
		got, ok, err := PromptReviewer{Prompter: &in, Out: &out}.Review(context.Background(), constants.DocTypeCCCD, rec, nil)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "001234567890", got["Số CCCD"])
		assert.Equal(t, rec, got)
	})

	t.Run("dash clears the value", func(t *testing.T) {
		in := lines{"1", "-", ""}
		got, ok, err := PromptReviewer{Prompter: &in, Out: io.Discard}.Review(context.Background(), constants.DocTypeCCCD, rec, nil)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, "", got["Số CCCD"])
		assert.Equal(t, "NGUYEN VAN A", got["Họ và tên"])
	})

	t.Run("bad number is ignored", func(t *testing.T) {
		var out strings.Builder
		in := lines{"9", ""}
		got, ok, err := PromptReviewer{Prompter: &in, Out: &out}.Review(context.Background(), constants.DocTypeCCCD, rec, nil)
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, rec, got)
		assert.Contains(t, out.String(), `no field "9"`)
	})

	t.Run("quit abandons", func(t *testing.T) {
		in := lines{"q"}
		_, ok, err := PromptReviewer{Prompter: &in, Out: io.Discard}.Review(context.Background(), constants.DocTypeCCCD, rec, nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("closed input abandons", func(t *testing.T) {
		var in lines
		_, ok, err := PromptReviewer{Prompter: &in, Out: io.Discard}.Review(context.Background(), constants.DocTypeCCCD, rec, nil)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
