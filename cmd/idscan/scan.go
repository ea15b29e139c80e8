package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/capture"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
	"github.com/joseph-ayodele/citizen-docs/internal/export"
	"github.com/joseph-ayodele/citizen-docs/internal/fieldmap"
	"github.com/joseph-ayodele/citizen-docs/internal/pipeline"
	repo "github.com/joseph-ayodele/citizen-docs/internal/repository"
)

var scanCmd = command{
	summary: "capture a document, extract its fields and save them",
	usage:   "<cccd|bhyt|gplx> [--source camera|library] [--no-review]",
	flags: func(fs *pflag.FlagSet) {
		fs.StringP("source", "s", "library", "camera or library")
		fs.Bool("no-review", false, "save the extracted fields without editing")
		fs.String("camera", "", "directory the camera drops photos in")
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		raw, err := arg(fs, 0, "type")
		if err != nil {
			return err
		}
		docType, ok := constants.ParseDocType(raw)
		if !ok {
			return usagef("unknown document type %q", raw)
		}
		rawSource, _ := fs.GetString("source")
		source, ok := capture.ParseSource(rawSource)
		if !ok {
			return usagef("unknown source %q", rawSource)
		}
		noReview, _ := fs.GetBool("no-review")

		p, err := a.processor(ctx, !noReview)
		if err != nil {
			return err
		}
		out, ok, err := p.Scan(ctx, docType, source)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(a.out, "Cancelled")
			return nil
		}
		printOutcome(a.out, docType, out)
		return nil
	},
}

var resubmitCmd = command{
	summary: "retry saving an orphaned run",
	usage:   "<run-id> [--no-review]",
	flags: func(fs *pflag.FlagSet) {
		fs.Bool("no-review", false, "save the stored fields without editing")
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		raw, err := arg(fs, 0, "run-id")
		if err != nil {
			return err
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return usagef("invalid run id %q", raw)
		}
		noReview, _ := fs.GetBool("no-review")
		p, err := a.processor(ctx, !noReview)
		if err != nil {
			return err
		}
		out, ok, err := p.Resubmit(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(a.out, "Not saved, the run stays orphaned")
			return nil
		}
		printOutcome(a.out, out.Run.DocumentType, out)
		return nil
	},
}

func printOutcome(w io.Writer, docType constants.DocType, out pipeline.Outcome) {
	fmt.Fprintf(w, "Saved %s record %s (run %s)\n", docType, out.Saved.ID, out.Run.ID)
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, f := range fieldmap.Ordered(docType, out.Record) {
		fmt.Fprintf(tw, "  %s\t%s\n", f.Label, f.Value)
	}
	tw.Flush()
	if len(out.Dropped) > 0 {
		fmt.Fprintf(w, "Not saved (no matching field): %s\n", strings.Join(out.Dropped, ", "))
	}
	if len(out.Canonical) > 0 {
		keys := make([]string, 0, len(out.Canonical))
		for k := range out.Canonical {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fmt.Fprintln(w, "Server copy:")
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		for _, k := range keys {
			fmt.Fprintf(tw, "  %s\t%v\n", k, out.Canonical[k])
		}
		tw.Flush()
	}
}

func runFilterFlags(fs *pflag.FlagSet, limit int) {
	fs.String("state", "", "only runs in this state")
	fs.String("type", "", "only runs of this document type")
	fs.Int("limit", limit, "at most this many runs, 0 for all")
}

func runFilter(fs *pflag.FlagSet) (repo.RunFilter, error) {
	var f repo.RunFilter
	if s, _ := fs.GetString("state"); s != "" {
		st, ok := constants.ParseRunState(s)
		if !ok {
			return f, usagef("unknown state %q", s)
		}
		f.State = st
	}
	if t, _ := fs.GetString("type"); t != "" {
		dt, ok := constants.ParseDocType(t)
		if !ok {
			return f, usagef("unknown document type %q", t)
		}
		f.DocType = dt
	}
	f.Limit, _ = fs.GetInt("limit")
	if fs.Lookup("since") != nil {
		if s, _ := fs.GetString("since"); s != "" {
			since, err := time.ParseInLocation(time.DateOnly, s, time.Local)
			if err != nil {
				return f, usagef("--since wants YYYY-MM-DD, got %q", s)
			}
			f.Since = since
		}
	}
	return f, nil
}

var historyCmd = command{
	summary: "list recorded capture runs",
	usage:   "[--state S] [--type T] [--limit N]",
	flags: func(fs *pflag.FlagSet) {
		runFilterFlags(fs, 20)
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		f, err := runFilter(fs)
		if err != nil {
			return err
		}
		runs, err := a.runs(ctx)
		if err != nil {
			return err
		}
		list, err := runs.List(ctx, f)
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(a.out, "No runs")
			return nil
		}
		printRuns(a.out, list)
		return nil
	},
}

func printRuns(w io.Writer, list []*entity.CaptureRun) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTARTED\tTYPE\tSTATE\tRECORD\tERROR")
	for _, r := range list {
		record, errText := "-", ""
		if r.RecordID != nil {
			record = *r.RecordID
		}
		if r.ErrorCode != nil {
			errText = *r.ErrorCode
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n",
			r.ID, r.StartedAt.Local().Format(time.DateTime), r.DocumentType, r.State, record, errText)
	}
	tw.Flush()
}

var exportCmd = command{
	summary: "write run history to an XLSX workbook",
	usage:   "--out FILE [--state S] [--type T] [--since YYYY-MM-DD]",
	flags: func(fs *pflag.FlagSet) {
		fs.StringP("out", "o", "", "destination .xlsx file")
		fs.String("since", "", "only runs started on or after this day")
		runFilterFlags(fs, 0)
	},
	run: func(ctx context.Context, a *app, fs *pflag.FlagSet) error {
		path, _ := fs.GetString("out")
		if path == "" {
			return usagef("--out is required")
		}
		f, err := runFilter(fs)
		if err != nil {
			return err
		}
		runs, err := a.runs(ctx)
		if err != nil {
			return err
		}
		data, err := export.NewService(runs, a.logger).ExportRunsXLSX(ctx, f)
		if err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", path, err)
		}
		fmt.Fprintf(a.out, "Wrote %s\n", path)
		return nil
	},
}
