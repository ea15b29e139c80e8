package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/apiclient"
	"github.com/joseph-ayodele/citizen-docs/internal/async"
	"github.com/joseph-ayodele/citizen-docs/internal/capture"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/ingest"
	"github.com/joseph-ayodele/citizen-docs/internal/pipeline"
	"github.com/joseph-ayodele/citizen-docs/internal/poll"
	repo "github.com/joseph-ayodele/citizen-docs/internal/repository"
	"github.com/joseph-ayodele/citizen-docs/internal/session"
)

const (
	// inboxService is the health service name tracking the inbox watcher.
	inboxService = "idscand.inbox"
	// A token this close to expiry is refreshed before the inbox starts.
	tokenRefreshWindow = 24 * time.Hour
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, errOut io.Writer) int {
	fs := pflag.NewFlagSet("idscand", pflag.ContinueOnError)
	fs.SetOutput(errOut)
	fs.String("config", "", "path to a YAML config file")
	fs.String("api-url", "", "backend base URL")
	fs.String("token", "", "token file written by `idscan login`")
	fs.String("dsn", "", "run store: sqlite path or postgres:// URL")
	fs.String("inbox", "", "directory to watch for captured images")
	fs.Int("workers", 0, "concurrent pipeline runs")
	fs.String("health", "", "gRPC health listen address")
	fs.String("default-type", "", "document type for files that do not name one")
	fs.String("log-level", "", "debug, info, warn or error")
	fs.String("log-format", "", "text or json")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintf(errOut, "idscand: %v\n", err)
		fs.Usage()
		return 2
	}

	configPath, _ := fs.GetString("config")
	cfg, err := common.LoadConfig(configPath, fs)
	if err != nil {
		fmt.Fprintf(errOut, "idscand: %s\n", common.UserMessage(err))
		return 2
	}
	if err := cfg.ValidateDaemon(); err != nil {
		fmt.Fprintf(errOut, "idscand: %s\n", common.UserMessage(err))
		return 2
	}
	var defaultType constants.DocType
	if cfg.Daemon.DefaultType != "" {
		t, ok := constants.ParseDocType(cfg.Daemon.DefaultType)
		if !ok {
			fmt.Fprintf(errOut, "idscand: unknown default type %q\n", cfg.Daemon.DefaultType)
			return 2
		}
		defaultType = t
	}

	logger := common.NewLogger(cfg.Log, errOut)
	slog.SetDefault(logger)
	if err := serve(ctx, cfg, defaultType, logger); err != nil {
		logger.Error("idscand stopped", "error", err)
		return 1
	}
	return 0
}

func serve(ctx context.Context, cfg *common.Config, defaultType constants.DocType, logger *slog.Logger) error {
	sess, err := session.New(session.NewFileTokenStore(cfg.API.TokenFile), logger)
	if err != nil {
		return err
	}
	if st := sess.State(); st != session.Authenticated {
		return fmt.Errorf("session is %s: run `idscan login` with token file %s", st, cfg.API.TokenFile)
	}

	client := apiclient.NewClient(apiclient.Config{
		BaseURL:       cfg.API.BaseURL,
		Timeout:       cfg.API.Timeout,
		UploadTimeout: cfg.API.UploadTimeout,
	}, sess, logger)
	if sess.ExpiresWithin(tokenRefreshWindow) {
		if err := sess.Refresh(ctx, client); err != nil {
			return fmt.Errorf("refresh token: %w", err)
		}
	}

	db, err := repo.Open(ctx, repo.Config{
		DSN:             cfg.Store.DSN,
		MaxConns:        cfg.Store.MaxConns,
		MinConns:        cfg.Store.MinConns,
		MaxConnLifetime: cfg.Store.MaxConnLifetime,
		MaxConnIdleTime: cfg.Store.MaxConnIdleTime,
		DialTimeout:     cfg.Store.DialTimeout,
	}, logger)
	if err != nil {
		return fmt.Errorf("open run store: %w", err)
	}
	defer db.Close()
	if err := db.HealthCheck(ctx, 5*time.Second); err != nil {
		return fmt.Errorf("run store health: %w", err)
	}
	runs := repo.NewCaptureRunRepository(db, logger)

	acq := capture.NewAcquirer(capture.PathPermissions{}, logger,
		capture.WithHEICConverter(&capture.HEICConverter{
			Converter: cfg.Capture.HeicConverter,
			CacheDir:  cfg.Capture.ArtifactCacheDir,
			Runner:    capture.ExecRunner{Logger: logger},
			Logger:    logger,
		}),
		capture.WithMaxBytes(cfg.Capture.MaxImageBytes),
	)
	processor := pipeline.NewProcessor(logger, acq,
		pipeline.NewOCRStage(client, poll.New(client, poll.WithLogger(logger)), logger),
		pipeline.NewSubmitStage(client, cfg.Review.ReloadAfter, logger),
		pipeline.WithRunRecorder(runs),
		pipeline.WithMinConfidence(cfg.Review.MinConfidence),
	)

	queue := async.NewProcessorQueue(processor, logger,
		async.WithWorkers(cfg.Daemon.Workers),
		async.WithQueueSize(cfg.Daemon.QueueSize),
		async.WithProcessTimeout(cfg.Daemon.ProcessTimeout),
		async.WithOnDone(func(job async.Job, out pipeline.Outcome, err error) {
			if err != nil {
				logger.Warn("idscand.job.failed", "job_id", job.ID, "front", job.FrontPath, "back", job.BackPath,
					"error", common.UserMessage(err))
				return
			}
			logger.Info("idscand.job.saved", "job_id", job.ID, "run_id", out.Run.ID, "record_id", out.Saved.ID,
				"needs_review", out.Run.NeedsReview)
		}),
	)

	inbox := ingest.NewInbox(ingest.InboxConfig{
		Dir:         cfg.Daemon.InboxDir,
		DefaultType: defaultType,
		Debounce:    cfg.Daemon.Debounce,
		PairTimeout: cfg.Daemon.PairTimeout,
		InitialScan: true,
	}, queue, logger)

	lis, err := net.Listen("tcp", cfg.Daemon.HealthAddr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Daemon.HealthAddr, err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(inboxService, grpc_health_v1.HealthCheckResponse_SERVING)

	serveErr := make(chan error, 1)
	go func() { serveErr <- grpcServer.Serve(lis) }()
	logger.Info("idscand listening", "health_addr", lis.Addr().String(), "inbox", cfg.Daemon.InboxDir,
		"workers", cfg.Daemon.Workers)

	inboxErr := make(chan error, 1)
	go func() { inboxErr <- inbox.Run(ctx) }()

	var result error
	select {
	case <-ctx.Done():
		<-inboxErr
	case err := <-inboxErr:
		result = inboxStopped(err)
	case err := <-serveErr:
		result = fmt.Errorf("grpc serve: %w", err)
	}

	logger.Info("shutting down")
	healthServer.SetServingStatus(inboxService, grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.Shutdown()

	drainCtx, cancel := context.WithTimeout(context.Background(), cfg.Daemon.ProcessTimeout+5*time.Second)
	defer cancel()
	queue.Shutdown(drainCtx)
	grpcServer.GracefulStop()
	return result
}

// inboxStopped maps the inbox loop's return onto the daemon's exit error.
// A nil or cancelled return is a clean stop.
func inboxStopped(err error) error {
	if err == nil || errors.Is(err, context.Canceled) {
		return nil
	}
	return fmt.Errorf("inbox: %w", err)
}
