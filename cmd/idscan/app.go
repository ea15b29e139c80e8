package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/pflag"

	"github.com/joseph-ayodele/citizen-docs/internal/apiclient"
	"github.com/joseph-ayodele/citizen-docs/internal/capture"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/pipeline"
	"github.com/joseph-ayodele/citizen-docs/internal/poll"
	repo "github.com/joseph-ayodele/citizen-docs/internal/repository"
	"github.com/joseph-ayodele/citizen-docs/internal/session"
)

// app is everything a command needs, built once per invocation.
type app struct {
	cfg      *common.Config
	logger   *slog.Logger
	session  *session.Session
	client   *apiclient.Client
	prompter *capture.LinePrompter
	out      io.Writer

	db *repo.DB
}

func newApp(fs *pflag.FlagSet, in io.Reader, out, errOut io.Writer) (*app, error) {
	configPath, _ := fs.GetString("config")
	cfg, err := common.LoadConfig(configPath, fs)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := common.NewLogger(cfg.Log, errOut)
	slog.SetDefault(logger)

	sess, err := session.New(session.NewFileTokenStore(cfg.API.TokenFile), logger)
	if err != nil {
		return nil, err
	}
	client := apiclient.NewClient(apiclient.Config{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout,
		UploadTimeout: cfg.API.UploadTimeout,
	}, sess, logger)

	return &app{
		cfg:      cfg,
		logger:   logger,
		session:  sess,
		client:   client,
		prompter: capture.NewLinePrompter(in, out),
		out:      out,
	}, nil
}

func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

// runs opens the local run store on first use.
func (a *app) runs(ctx context.Context) (repo.CaptureRunRepository, error) {
	if a.db == nil {
		db, err := repo.Open(ctx, repo.Config{
			DSN:             a.cfg.Store.DSN,
			MaxConns:        a.cfg.Store.MaxConns,
			MinConns:        a.cfg.Store.MinConns,
			MaxConnLifetime: a.cfg.Store.MaxConnLifetime,
			MaxConnIdleTime: a.cfg.Store.MaxConnIdleTime,
			DialTimeout:     a.cfg.Store.DialTimeout,
		}, a.logger)
		if err != nil {
			return nil, fmt.Errorf("open run store: %w", err)
		}
		a.db = db
	}
	return repo.NewCaptureRunRepository(a.db, a.logger), nil
}

// processor wires the capture pipeline against the live backend.
func (a *app) processor(ctx context.Context, review bool) (*pipeline.Processor, error) {
	runs, err := a.runs(ctx)
	if err != nil {
		return nil, err
	}
	heic := &capture.HEICConverter{
		Converter: a.cfg.Capture.HeicConverter,
		CacheDir:  a.cfg.Capture.ArtifactCacheDir,
		Runner:    capture.ExecRunner{Logger: a.logger},
		Logger:    a.logger,
	}
	acq := capture.NewAcquirer(capture.PathPermissions{CameraDir: a.cfg.Capture.CameraDir}, a.logger,
		capture.WithPicker(capture.SourceLibrary, capture.LibraryPicker{Prompter: a.prompter}),
		capture.WithPicker(capture.SourceCamera, &capture.CameraPicker{
			Dir:    a.cfg.Capture.CameraDir,
			Logger: a.logger,
			OnReady: func() {
				fmt.Fprintf(a.out, "Waiting for a photo in %s ...\n", a.cfg.Capture.CameraDir)
			},
		}),
		capture.WithHEICConverter(heic),
		capture.WithMaxBytes(a.cfg.Capture.MaxImageBytes),
	)

	opts := []pipeline.Option{
		pipeline.WithRunRecorder(runs),
		pipeline.WithMinConfidence(a.cfg.Review.MinConfidence),
	}
	if review {
		opts = append(opts, pipeline.WithReviewer(pipeline.PromptReviewer{Prompter: a.prompter, Out: a.out}))
	}
	poller := poll.New(a.client, poll.WithLogger(a.logger))
	return pipeline.NewProcessor(a.logger, acq,
		pipeline.NewOCRStage(a.client, poller, a.logger),
		pipeline.NewSubmitStage(a.client, a.cfg.Review.ReloadAfter, a.logger),
		opts...,
	), nil
}

// ask prompts for value unless it was given as a flag.
func (a *app) ask(ctx context.Context, value, prompt string) (string, error) {
	if strings.TrimSpace(value) != "" {
		return value, nil
	}
	return a.prompter.Prompt(ctx, prompt)
}
