// Package settlement waits for the receiver to attach payment information to
// an uploaded job's manifests.
package settlement

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/printrelay/backend/internal/docstore"
	"github.com/printrelay/backend/internal/faults"
	"github.com/printrelay/backend/internal/manifest"
	"github.com/printrelay/backend/internal/metrics"
	"github.com/printrelay/backend/internal/models"
)

// State of a settlement wait.
type State string

const (
	StateEstimating State = "estimating"
	StatePolling    State = "polling"
	StateSettled    State = "settled"
	StateTimedOut   State = "timed_out"
	StateCancelled  State = "cancelled"
)

// Terminal reports whether s ends the wait.
func (s State) Terminal() bool {
	return s == StateSettled || s == StateTimedOut || s == StateCancelled
}

// Outcome is the result of a wait. Record is the receiver's record when
// Settled and the local estimate otherwise.
type Outcome struct {
	State    State
	Record   models.PaymentRecord
	Estimate models.PaymentRecord
	// FileID is the manifest the record was read from.
	FileID  string
	Reads   int
	Elapsed time.Duration
}

// Options configures a Poller.
type Options struct {
	Collection string
	Interval   time.Duration
	Timeout    time.Duration
}

// DefaultOptions polls every two seconds for two minutes.
func DefaultOptions() Options {
	return Options{
		Collection: "print_jobs",
		Interval:   2 * time.Second,
		Timeout:    120 * time.Second,
	}
}

// Poller re-reads manifests until one carries payinfo or the timeout passes.
type Poller struct {
	store   docstore.Gateway
	opts    Options
	log     *zap.Logger
	metrics *metrics.Metrics

	// OnEstimate receives the local estimate before the first read.
	OnEstimate func(models.PaymentRecord)
	// OnState receives every state transition.
	OnState func(State)
}

// NewPoller returns a Poller. Zero durations take the defaults.
func NewPoller(store docstore.Gateway, opts Options, log *zap.Logger, m *metrics.Metrics) *Poller {
	def := DefaultOptions()
	if opts.Collection == "" {
		opts.Collection = def.Collection
	}
	if opts.Interval <= 0 {
		opts.Interval = def.Interval
	}
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Poller{store: store, opts: opts, log: log, metrics: m}
}

// Options returns the effective configuration.
func (p *Poller) Options() Options { return p.opts }

// WithHooks returns a copy of p with its own hooks.
func (p *Poller) WithHooks(onEstimate func(models.PaymentRecord), onState func(State)) *Poller {
	cp := *p
	cp.OnEstimate = onEstimate
	cp.OnState = onState
	return &cp
}

// Start runs Await in a goroutine. The channel receives exactly one Outcome
// and is then closed. Cancel ctx to stop waiting.
func (p *Poller) Start(ctx context.Context, fileIDs []string, estimate models.PaymentRecord) <-chan Outcome {
	ch := make(chan Outcome, 1)
	go func() {
		defer close(ch)
		ch <- p.Await(ctx, fileIDs, estimate)
	}()
	return ch
}

// Await polls the manifests of fileIDs in order every Interval. The first
// manifest found with payinfo settles the wait. Read errors are logged and
// polling continues. After Timeout the estimate is returned as final.
func (p *Poller) Await(ctx context.Context, fileIDs []string, estimate models.PaymentRecord) Outcome {
	start := time.Now()
	out := Outcome{Estimate: estimate, Record: estimate}

	p.transition(StateEstimating)
	if p.OnEstimate != nil {
		p.OnEstimate(estimate)
	}
	p.transition(StatePolling)

	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		for _, id := range fileIDs {
			if ctx.Err() != nil {
				break
			}
			out.Reads++
			rec, ok := p.read(ctx, id)
			if ok {
				out.State = StateSettled
				out.Record = *rec
				out.FileID = id
				return p.finish(out, start)
			}
		}

		if ctx.Err() != nil {
			out.State = StateCancelled
			return p.finish(out, start)
		}

		elapsed := time.Since(start)
		if elapsed >= p.opts.Timeout {
			out.State = StateTimedOut
			return p.finish(out, start)
		}

		timer.Reset(min(p.opts.Interval, p.opts.Timeout-elapsed))
		select {
		case <-ctx.Done():
			out.State = StateCancelled
			return p.finish(out, start)
		case <-timer.C:
		}
	}
}

func (p *Poller) read(ctx context.Context, fileID string) (*models.PaymentRecord, bool) {
	fields, err := p.store.Get(ctx, p.opts.Collection, manifest.Key(fileID))
	if err != nil {
		if errors.Is(err, faults.ErrNotFound) {
			p.log.Debug("manifest not visible yet", zap.String("file_id", fileID))
		} else if ctx.Err() == nil {
			p.log.Warn("manifest read failed", zap.String("file_id", fileID), zap.Error(err))
		}
		return nil, false
	}
	return manifest.PaymentFrom(fields)
}

func (p *Poller) finish(out Outcome, start time.Time) Outcome {
	out.Elapsed = time.Since(start)
	p.transition(out.State)
	p.metrics.Settlement(string(out.State))
	p.log.Info("settlement finished",
		zap.String("state", string(out.State)),
		zap.String("file_id", out.FileID),
		zap.Float64("amount", out.Record.Amount),
		zap.Int("reads", out.Reads),
		zap.Duration("elapsed", out.Elapsed))
	return out
}

func (p *Poller) transition(s State) {
	if p.OnState != nil {
		p.OnState(s)
	}
}
