package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/capture"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
	"github.com/joseph-ayodele/citizen-docs/internal/fieldmap"
)

// Reviewer shows the merged record before it is saved. It returns the
// record to submit, or ok=false when the user abandons the submission.
type Reviewer interface {
	Review(ctx context.Context, docType constants.DocType, rec entity.DisplayRecord, flagged []string) (entity.DisplayRecord, bool, error)
}

// AcceptAll submits records unchanged.
type AcceptAll struct{}

func (AcceptAll) Review(_ context.Context, _ constants.DocType, rec entity.DisplayRecord, _ []string) (entity.DisplayRecord, bool, error) {
	return rec, true, nil
}

// PromptReviewer lists the fields and lets the user correct them by number.
type PromptReviewer struct {
	Prompter capture.Prompter
	Out      io.Writer
}

// clearValue is the answer that empties a field in the editor.
const clearValue = "-"

func (p PromptReviewer) Review(ctx context.Context, docType constants.DocType, rec entity.DisplayRecord, flagged []string) (entity.DisplayRecord, bool, error) {
	out := rec.Clone()
	low := make(map[string]bool, len(flagged))
	for _, l := range flagged {
		low[l] = true
	}

	for {
		pairs := fieldmap.Ordered(docType, out)
		fmt.Fprintf(p.Out, "\n%s\n", docType)
		for i, kv := range pairs {
			mark := " "
			if low[kv.Label] {
				mark = "*"
			}
			fmt.Fprintf(p.Out, "%s%2d. %s: %s\n", mark, i+1, kv.Label, kv.Value)
		}
		if len(low) > 0 {
			fmt.Fprintln(p.Out, "* low confidence, please check")
		}

		answer, err := p.Prompter.Prompt(ctx, "Field number to edit, enter to save, q to cancel: ")
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		switch strings.ToLower(answer) {
		case "":
			return out, true, nil
		case "q", "quit", "cancel":
			return nil, false, nil
		}

		n, err := strconv.Atoi(answer)
		if err != nil || n < 1 || n > len(pairs) {
			fmt.Fprintf(p.Out, "no field %q\n", answer)
			continue
		}
		label := pairs[n-1].Label
		value, err := p.Prompter.Prompt(ctx, fmt.Sprintf("%s [%s] (enter keeps, %s clears): ", label, pairs[n-1].Value, clearValue))
		if errors.Is(err, io.EOF) {
			return nil, false, nil
		}
		if err != nil {
			return nil, false, err
		}
		switch value {
		case "":
		case clearValue:
			out[label] = ""
		default:
			out[label] = value
		}
		delete(low, label)
	}
}
