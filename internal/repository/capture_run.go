package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

// RunFilter narrows List. Zero values match everything.
type RunFilter struct {
	State   constants.RunState
	DocType constants.DocType
	Since   time.Time
	Limit   int
}

type CaptureRunRepository interface {
	Create(ctx context.Context, run *entity.CaptureRun) error
	Update(ctx context.Context, run *entity.CaptureRun) error
	Get(ctx context.Context, id uuid.UUID) (*entity.CaptureRun, error)
	List(ctx context.Context, f RunFilter) ([]*entity.CaptureRun, error)
	CountByState(ctx context.Context) (map[constants.RunState]int, error)
}

type captureRunRepo struct {
	db  *DB
	log *slog.Logger
}

func NewCaptureRunRepository(db *DB, log *slog.Logger) CaptureRunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &captureRunRepo{db: db, log: log}
}

const runColumns = `id, document_type, state, front_document_id, front_job_id, back_document_id, back_job_id,
	record_id, error_code, error_message, needs_review, fields, started_at, finished_at`

func (r *captureRunRepo) Create(ctx context.Context, run *entity.CaptureRun) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now()
	}
	fields, err := encodeFields(run.Fields)
	if err != nil {
		return err
	}
	q := r.db.Rebind(`INSERT INTO capture_runs (` + runColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	_, err = r.db.ExecContext(ctx, q,
		run.ID.String(), string(run.DocumentType), string(run.State),
		nullable(run.FrontDocumentID), nullable(run.FrontJobID), nullable(run.BackDocumentID), nullable(run.BackJobID),
		nullable(run.RecordID), nullable(run.ErrorCode), nullable(run.ErrorMessage), run.NeedsReview, fields,
		run.StartedAt.UTC(), utcPtr(run.FinishedAt),
	)
	if err != nil {
		r.log.Error("capture_run create failed", "run_id", run.ID, "err", err)
		return common.NewKindError("DATABASE_ERROR", common.ErrDatabase, "create capture run", err)
	}
	r.log.Debug("capture_run created", "run_id", run.ID, "doc_type", run.DocumentType)
	return nil
}

func (r *captureRunRepo) Update(ctx context.Context, run *entity.CaptureRun) error {
	fields, err := encodeFields(run.Fields)
	if err != nil {
		return err
	}
	q := r.db.Rebind(`UPDATE capture_runs SET
		state = ?, front_document_id = ?, front_job_id = ?, back_document_id = ?, back_job_id = ?,
		record_id = ?, error_code = ?, error_message = ?, needs_review = ?, fields = ?, finished_at = ?
		WHERE id = ?`)
	res, err := r.db.ExecContext(ctx, q,
		string(run.State), nullable(run.FrontDocumentID), nullable(run.FrontJobID), nullable(run.BackDocumentID), nullable(run.BackJobID),
		nullable(run.RecordID), nullable(run.ErrorCode), nullable(run.ErrorMessage), run.NeedsReview, fields, utcPtr(run.FinishedAt),
		run.ID.String(),
	)
	if err != nil {
		r.log.Error("capture_run update failed", "run_id", run.ID, "err", err)
		return common.NewKindError("DATABASE_ERROR", common.ErrDatabase, "update capture run", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return notFound(run.ID)
	}
	r.log.Debug("capture_run updated", "run_id", run.ID, "state", run.State)
	return nil
}

func (r *captureRunRepo) Get(ctx context.Context, id uuid.UUID) (*entity.CaptureRun, error) {
	q := r.db.Rebind(`SELECT ` + runColumns + ` FROM capture_runs WHERE id = ?`)
	run, err := scanRun(r.db.QueryRowContext(ctx, q, id.String()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound(id)
	}
	if err != nil {
		return nil, common.NewKindError("DATABASE_ERROR", common.ErrDatabase, "get capture run", err)
	}
	return run, nil
}

// List returns runs newest first.
func (r *captureRunRepo) List(ctx context.Context, f RunFilter) ([]*entity.CaptureRun, error) {
	var (
		where []string
		args  []any
	)
	if f.State != "" {
		where = append(where, "state = ?")
		args = append(args, string(f.State))
	}
	if f.DocType != "" {
		where = append(where, "document_type = ?")
		args = append(args, string(f.DocType))
	}
	if !f.Since.IsZero() {
		where = append(where, "started_at >= ?")
		args = append(args, f.Since.UTC())
	}
	q := `SELECT ` + runColumns + ` FROM capture_runs`
	if len(where) > 0 {
		q += ` WHERE ` + strings.Join(where, " AND ")
	}
	q += ` ORDER BY started_at DESC`
	if f.Limit > 0 {
		q += fmt.Sprintf(` LIMIT %d`, f.Limit)
	}

	rows, err := r.db.QueryContext(ctx, r.db.Rebind(q), args...)
	if err != nil {
		return nil, common.NewKindError("DATABASE_ERROR", common.ErrDatabase, "list capture runs", err)
	}
	defer rows.Close()

	var out []*entity.CaptureRun
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, common.NewKindError("DATABASE_ERROR", common.ErrDatabase, "scan capture run", err)
		}
		out = append(out, run)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewKindError("DATABASE_ERROR", common.ErrDatabase, "list capture runs", err)
	}
	return out, nil
}

func (r *captureRunRepo) CountByState(ctx context.Context) (map[constants.RunState]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT state, COUNT(*) FROM capture_runs GROUP BY state`)
	if err != nil {
		return nil, common.NewKindError("DATABASE_ERROR", common.ErrDatabase, "count capture runs", err)
	}
	defer rows.Close()

	out := make(map[constants.RunState]int, len(constants.RunStates))
	for rows.Next() {
		var (
			state string
			n     int
		)
		if err := rows.Scan(&state, &n); err != nil {
			return nil, common.NewKindError("DATABASE_ERROR", common.ErrDatabase, "count capture runs", err)
		}
		out[constants.RunState(state)] = n
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*entity.CaptureRun, error) {
	var (
		run                              entity.CaptureRun
		id, docType, state               string
		frontDoc, frontJob, backDoc      sql.NullString
		backJob, recordID, code, message sql.NullString
		fields                           sql.NullString
		finished                         sql.NullTime
	)
	err := row.Scan(&id, &docType, &state, &frontDoc, &frontJob, &backDoc, &backJob,
		&recordID, &code, &message, &run.NeedsReview, &fields, &run.StartedAt, &finished)
	if err != nil {
		return nil, err
	}
	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("run id %q: %w", id, err)
	}
	run.DocumentType = constants.DocType(docType)
	run.State = constants.RunState(state)
	run.FrontDocumentID = strPtr(frontDoc)
	run.FrontJobID = strPtr(frontJob)
	run.BackDocumentID = strPtr(backDoc)
	run.BackJobID = strPtr(backJob)
	run.RecordID = strPtr(recordID)
	run.ErrorCode = strPtr(code)
	run.ErrorMessage = strPtr(message)
	if finished.Valid {
		t := finished.Time
		run.FinishedAt = &t
	}
	if fields.Valid && fields.String != "" {
		if err := json.Unmarshal([]byte(fields.String), &run.Fields); err != nil {
			return nil, fmt.Errorf("run %s fields: %w", id, err)
		}
	}
	return &run, nil
}

func encodeFields(f entity.DisplayRecord) (any, error) {
	if len(f) == 0 {
		return nil, nil
	}
	b, err := json.Marshal(f)
	if err != nil {
		return nil, fmt.Errorf("encode fields: %w", err)
	}
	return string(b), nil
}

func strPtr(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}

func nullable(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func utcPtr(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func notFound(id uuid.UUID) error {
	return common.NewAppError("NOT_FOUND", fmt.Sprintf("capture run %s not found", id), common.ErrNotFound)
}
