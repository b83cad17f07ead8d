package archive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/warp/epr-engine/engine"
	"go.uber.org/zap"
)

// Retrier archives through an inner TraceArchiver and, when an upload
// fails, keeps the calculation in memory and retries it on a ticker until
// it lands or the process stops.
//
// Usage:
//
//	r := archive.NewRetrier(s3Archive, logger)
//	r.Start()
//	defer r.Stop()
type Retrier struct {
	Inner         engine.TraceArchiver
	CheckInterval time.Duration
	// MaxPending bounds the queue; the oldest entry is dropped when full.
	MaxPending int

	logger  *zap.Logger
	pending []*engine.FeeCalculation

	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
	runMu  sync.Mutex
}

var _ engine.TraceArchiver = (*Retrier)(nil)

func NewRetrier(inner engine.TraceArchiver, logger *zap.Logger) *Retrier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Retrier{
		Inner:         inner,
		CheckInterval: time.Minute,
		MaxPending:    1000,
		logger:        logger.Named("archive"),
	}
}

// ArchiveTrace attempts the upload once. A failure is queued for retry and
// still returned so the caller can report it.
func (r *Retrier) ArchiveTrace(ctx context.Context, calc *engine.FeeCalculation) error {
	err := r.Inner.ArchiveTrace(ctx, calc)
	if err == nil || errors.Is(err, ErrAlreadyArchived) {
		return err
	}
	r.enqueue(calc)
	return err
}

// Pending returns the number of calculations awaiting a retry.
func (r *Retrier) Pending() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

func (r *Retrier) Start() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.ticker != nil {
		return
	}
	r.ticker = time.NewTicker(r.CheckInterval)
	r.stop = make(chan struct{})
	r.wg.Add(1)
	go r.run(r.ticker, r.stop)

	r.logger.Info("archive retrier started", zap.Duration("interval", r.CheckInterval))
}

// Stop halts the ticker and makes one last attempt at anything pending.
// Calling it again, or without Start, is a no-op.
func (r *Retrier) Stop() {
	r.mu.Lock()
	if r.ticker == nil {
		r.mu.Unlock()
		return
	}
	r.ticker.Stop()
	close(r.stop)
	r.ticker = nil
	r.mu.Unlock()

	r.wg.Wait()
	r.RetryPending(context.Background())

	if left := r.Pending(); left > 0 {
		r.logger.Warn("archive retrier stopped with pending traces", zap.Int("pending", left))
	} else {
		r.logger.Info("archive retrier stopped")
	}
}

func (r *Retrier) run(ticker *time.Ticker, stop <-chan struct{}) {
	defer r.wg.Done()
	for {
		select {
		case <-ticker.C:
			r.RetryPending(context.Background())
		case <-stop:
			return
		}
	}
}

// RetryPending makes one pass over the queue. Calculations that fail again
// stay queued.
func (r *Retrier) RetryPending(ctx context.Context) (archived int) {
	r.runMu.Lock()
	defer r.runMu.Unlock()

	r.mu.Lock()
	batch := r.pending
	r.pending = nil
	r.mu.Unlock()

	var failed []*engine.FeeCalculation
	for _, calc := range batch {
		err := r.Inner.ArchiveTrace(ctx, calc)
		switch {
		case err == nil:
			archived++
		case errors.Is(err, ErrAlreadyArchived):
			// An earlier attempt succeeded after reporting failure.
		default:
			r.logger.Warn("trace archive retry failed",
				zap.String("calculation_id", string(calc.ID)),
				zap.Error(err))
			failed = append(failed, calc)
		}
	}

	if len(failed) > 0 {
		r.mu.Lock()
		r.pending = append(failed, r.pending...)
		r.trimLocked()
		r.mu.Unlock()
	}
	if archived > 0 {
		r.logger.Info("archived pending traces", zap.Int("count", archived))
	}
	return archived
}

func (r *Retrier) enqueue(calc *engine.FeeCalculation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending = append(r.pending, calc)
	r.trimLocked()
}

func (r *Retrier) trimLocked() {
	if r.MaxPending <= 0 || len(r.pending) <= r.MaxPending {
		return
	}
	drop := len(r.pending) - r.MaxPending
	for _, calc := range r.pending[:drop] {
		r.logger.Error("dropping unarchived trace", zap.String("calculation_id", string(calc.ID)))
	}
	r.pending = append([]*engine.FeeCalculation(nil), r.pending[drop:]...)
}
