package poll

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/joseph-ayodele/citizen-docs/constants"
	"github.com/joseph-ayodele/citizen-docs/internal/common"
	"github.com/joseph-ayodele/citizen-docs/internal/entity"
)

const (
	DefaultInterval    = constants.OCRPollInterval
	DefaultMaxAttempts = constants.OCRPollMaxAttempts
)

// StatusFetcher reads the current state of an OCR job.
type StatusFetcher interface {
	OCRStatus(ctx context.Context, jobID string) (entity.OCRJob, error)
}

// Clock abstracts the wait between attempts.
type Clock interface {
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) After(d time.Duration) <-chan time.Time { return time.After(d) }

// RealClock waits on wall time.
var RealClock Clock = realClock{}

// Backoff returns the wait before the given attempt (1-based).
type Backoff interface {
	Delay(attempt int) time.Duration
}

// Fixed waits the same duration before every attempt.
type Fixed time.Duration

func (f Fixed) Delay(int) time.Duration { return time.Duration(f) }

// Exponential grows the wait by Factor per attempt, capped at Max.
type Exponential struct {
	Initial time.Duration
	Max     time.Duration
	Factor  float64
}

func (e Exponential) Delay(attempt int) time.Duration {
	d := float64(e.Initial)
	for i := 1; i < attempt; i++ {
		d *= e.Factor
		if e.Max > 0 && time.Duration(d) >= e.Max {
			return e.Max
		}
	}
	return time.Duration(d)
}

// Poller waits for an OCR job to reach a terminal state.
type Poller struct {
	fetcher     StatusFetcher
	clock       Clock
	backoff     Backoff
	maxAttempts int
	logger      *slog.Logger
}

// Option configures a Poller.
type Option func(*Poller)

func WithClock(c Clock) Option {
	return func(p *Poller) { p.clock = c }
}

func WithBackoff(b Backoff) Option {
	return func(p *Poller) { p.backoff = b }
}

// WithMaxAttempts overrides the attempt cap. Values below 1 are ignored.
func WithMaxAttempts(n int) Option {
	return func(p *Poller) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(p *Poller) { p.logger = l }
}

// New creates a Poller with a fixed one second interval and a 30 attempt cap.
func New(fetcher StatusFetcher, opts ...Option) *Poller {
	p := &Poller{
		fetcher:     fetcher,
		clock:       RealClock,
		backoff:     Fixed(DefaultInterval),
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	return p
}

// Wait sleeps, fetches and repeats until the job is done, failed, or the
// attempt cap is reached. A fetch error ends the wait immediately.
// Cancelling ctx abandons the job; the returned error wraps ctx.Err().
func (p *Poller) Wait(ctx context.Context, jobID string) (entity.OCRJob, error) {
	start := time.Now()
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("ocr.poll.cancelled", "job_id", jobID, "attempts", attempts)
			return entity.OCRJob{JobID: entity.ID(jobID), AttemptsObserved: attempts}, fmt.Errorf("poll job %s: %w", jobID, ctx.Err())
		case <-p.clock.After(p.backoff.Delay(attempts + 1)):
		}
		attempts++

		job, err := p.fetcher.OCRStatus(ctx, jobID)
		if err != nil {
			return entity.OCRJob{JobID: entity.ID(jobID), AttemptsObserved: attempts}, err
		}
		job.Status = constants.ParseJobStatus(job.RawStatus)
		job.AttemptsObserved = attempts
		p.logger.Debug("ocr.poll.attempt", "job_id", jobID, "attempt", attempts, "status", job.RawStatus)

		switch job.Status {
		case constants.JobStatusFailed:
			p.logger.Warn("ocr.poll.failed", "job_id", jobID, "attempts", attempts)
			return job, common.NewKindError(common.CodeOCRFailed, common.ErrOCRFailed,
				fmt.Sprintf("OCR job %s failed", jobID), nil)
		case constants.JobStatusDone:
			p.logger.Info("ocr.poll.done", "job_id", jobID, "attempts", attempts,
				"elapsed_ms", time.Since(start).Milliseconds())
			return job, nil
		}

		if attempts >= p.maxAttempts {
			p.logger.Warn("ocr.poll.timeout", "job_id", jobID, "attempts", attempts)
			return job, common.NewKindError(common.CodeOCRTimeout, common.ErrOCRTimeout,
				fmt.Sprintf("OCR job %s not finished after %d checks", jobID, attempts), nil)
		}
	}
}
