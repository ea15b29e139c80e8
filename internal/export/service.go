package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
	"github.com/joseph-ayodele/citizen-docs/internal/fieldmap"
	"github.com/joseph-ayodele/citizen-docs/internal/repository"
)

// RunLister is the part of the run store an export reads.
type RunLister interface {
	List(ctx context.Context, f repository.RunFilter) ([]*entity.CaptureRun, error)
}

// Service produces XLSX bytes for run-history exports.
type Service struct {
	runs   RunLister
	logger *slog.Logger
}

func NewService(runs RunLister, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{runs: runs, logger: logger}
}

const (
	RunsSheet   = "Runs"
	FieldsSheet = "Fields"
)

// ExportRunsXLSX returns a workbook with one row per run matching f and a
// second sheet listing every recognised field of those runs.
func (s *Service) ExportRunsXLSX(ctx context.Context, f repository.RunFilter) ([]byte, error) {
	start := time.Now()

	runs, err := s.runs.List(ctx, f)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}

	x := excelize.NewFile()
	defer func() {
		if err := x.Close(); err != nil {
			s.logger.Warn("export.xlsx.close_failed", "err", err)
		}
	}()
	if err := x.SetSheetName("Sheet1", RunsSheet); err != nil {
		return nil, err
	}
	if _, err := x.NewSheet(FieldsSheet); err != nil {
		return nil, err
	}

	runHeaders := []string{
		"Run ID",
		"Started",
		"Finished",
		"Document Type",
		"State",
		"Front Document",
		"Back Document",
		"Record ID",
		"Needs Review",
		"Error",
	}
	writeRow(x, RunsSheet, 1, toAny(runHeaders))
	writeRow(x, FieldsSheet, 1, []any{"Run ID", "Document Type", "Field", "Value"})

	row, fieldRow := 2, 2
	for _, r := range runs {
		finished := ""
		if r.FinishedAt != nil {
			finished = r.FinishedAt.Local().Format(time.DateTime)
		}
		writeRow(x, RunsSheet, row, []any{
			r.ID.String(),
			r.StartedAt.Local().Format(time.DateTime),
			finished,
			string(r.DocumentType),
			string(r.State),
			r.DocumentIDFor(constants.SideFront),
			r.DocumentIDFor(constants.SideBack),
			deref(r.RecordID),
			yesNo(r.NeedsReview),
			truncate(errorText(r), 140),
		})
		row++

		for _, kv := range fieldmap.Ordered(r.DocumentType, r.Fields) {
			writeRow(x, FieldsSheet, fieldRow, []any{r.ID.String(), string(r.DocumentType), kv.Label, kv.Value})
			fieldRow++
		}
	}

	_ = x.SetColWidth(RunsSheet, "A", "A", 38) // id
	_ = x.SetColWidth(RunsSheet, "B", "C", 20) // times
	_ = x.SetColWidth(RunsSheet, "D", "E", 14)
	_ = x.SetColWidth(RunsSheet, "F", "H", 16)
	_ = x.SetColWidth(RunsSheet, "J", "J", 60) // error
	_ = x.SetColWidth(FieldsSheet, "A", "A", 38)
	_ = x.SetColWidth(FieldsSheet, "C", "D", 30)

	buf, err := x.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(runs),
		"fields", fieldRow-2,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func writeRow(x *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		cell, _ := excelize.CoordinatesToCellName(i+1, row)
		_ = x.SetCellValue(sheet, cell, v)
	}
}

func toAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func errorText(r *entity.CaptureRun) string {
	switch {
	case r.ErrorCode != nil && r.ErrorMessage != nil:
		return *r.ErrorCode + ": " + *r.ErrorMessage
	case r.ErrorMessage != nil:
		return *r.ErrorMessage
	case r.ErrorCode != nil:
		return *r.ErrorCode
	}
	return ""
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func truncate(s string, n int) string {
	r := []rune(s)
	if n <= 0 || len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
