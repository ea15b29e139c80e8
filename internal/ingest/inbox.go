package ingest

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/async"
)

// InboxConfig drives an Inbox.
type InboxConfig struct {
	Dir         string
	DefaultType constants.DocType // used when neither folder nor file name names a type
	Debounce    time.Duration
	// PairTimeout is how long a front waits for its back before it is sent
	// on alone and fails for the missing side.
	PairTimeout time.Duration
	InitialScan bool
}

// Inbox turns files dropped into a directory into pipeline jobs.
type Inbox struct {
	cfg    InboxConfig
	queue  async.Queue
	pairer *Pairer
	logger *slog.Logger
}

func NewInbox(cfg InboxConfig, queue async.Queue, logger *slog.Logger) *Inbox {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PairTimeout <= 0 {
		cfg.PairTimeout = 10 * time.Minute
	}
	return &Inbox{cfg: cfg, queue: queue, pairer: NewPairer(), logger: logger}
}

// Run watches the inbox until ctx is done.
func (in *Inbox) Run(ctx context.Context) error {
	paths, errs, err := StartWatcher(ctx, WatchConfig{
		Roots:       []string{in.cfg.Dir},
		InitialScan: in.cfg.InitialScan,
		Debounce:    in.cfg.Debounce,
	}, in.logger)
	if err != nil {
		return err
	}
	in.logger.Info("inbox.watch.start", "dir", in.cfg.Dir)

	sweep := time.NewTicker(in.cfg.PairTimeout / 2)
	defer sweep.Stop()

	for {
		select {
		case <-ctx.Done():
			in.logger.Info("inbox.watch.stop", "dir", in.cfg.Dir, "pending", in.pairer.Pending())
			return nil
		case p, ok := <-paths:
			if !ok {
				return nil
			}
			if err := in.Handle(ctx, p); err != nil {
				if errors.Is(err, async.ErrQueueClosed) || errors.Is(err, context.Canceled) {
					return nil
				}
				in.logger.Error("inbox.enqueue.failed", "path", p, "error", err)
			}
		case err, ok := <-errs:
			if ok {
				in.logger.Warn("inbox.watch.error", "error", err)
			}
		case <-sweep.C:
			in.Sweep(ctx)
		}
	}
}

// Handle feeds one file into the pairer and enqueues the document once
// every side is present.
func (in *Inbox) Handle(ctx context.Context, path string) error {
	name, ok := ParseName(path, in.cfg.DefaultType)
	if !ok {
		in.logger.Debug("inbox.file.skipped", "path", path)
		return nil
	}
	pair, ready := in.pairer.Add(name)
	if !ready {
		in.logger.Info("inbox.file.waiting", "path", path, "doc_type", name.DocType, "side", name.Side)
		return nil
	}
	return in.enqueue(ctx, pair)
}

// Sweep sends on documents whose other side never arrived.
func (in *Inbox) Sweep(ctx context.Context) {
	for _, pair := range in.pairer.Expire(in.cfg.PairTimeout) {
		in.logger.Warn("inbox.pair.expired", "key", pair.Key, "front", pair.FrontPath, "back", pair.BackPath)
		if err := in.enqueue(ctx, pair); err != nil {
			in.logger.Error("inbox.enqueue.failed", "key", pair.Key, "error", err)
		}
	}
}

func (in *Inbox) enqueue(ctx context.Context, pair Pair) error {
	return in.queue.Enqueue(ctx, async.Job{
		DocType:   pair.DocType,
		FrontPath: pair.FrontPath,
		BackPath:  pair.BackPath,
	})
}
