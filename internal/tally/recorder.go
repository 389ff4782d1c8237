package tally

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// DefaultFlushInterval is how often buffered pulses are written
const DefaultFlushInterval = 10 * time.Second

// Adder is the write side of Repository
type Adder interface {
	Add(day string, n int64) error
}

// Recorder buffers pulses in memory and writes them out periodically, so
// the dispatch goroutine never waits on the database. Pulses are credited
// to the day on which they are flushed.
type Recorder struct {
	store    Adder
	log      *slog.Logger
	interval time.Duration
	now      func() time.Time

	unflushed atomic.Int64
}

// NewRecorder creates a recorder writing to store every interval
func NewRecorder(store Adder, interval time.Duration, logger *slog.Logger) *Recorder {
	if interval <= 0 {
		interval = DefaultFlushInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Recorder{
		store:    store,
		log:      logger.With("component", "tally"),
		interval: interval,
		now:      time.Now,
	}
}

// OnPulse is an activity handler
func (r *Recorder) OnPulse(uint32) {
	r.unflushed.Add(1)
}

// Pending returns the number of pulses not yet written
func (r *Recorder) Pending() int64 {
	return r.unflushed.Load()
}

// Flush writes buffered pulses. On failure they are put back for the next
// attempt.
func (r *Recorder) Flush() error {
	n := r.unflushed.Swap(0)
	if n == 0 {
		return nil
	}

	day := DayKey(r.now())
	if err := r.store.Add(day, n); err != nil {
		r.unflushed.Add(n)
		return err
	}
	r.log.Debug("flushed pulses", "day", day, "count", n)
	return nil
}

// Run flushes every interval until ctx is done, then flushes once more
func (r *Recorder) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return r.Flush()
		case <-ticker.C:
			if err := r.Flush(); err != nil {
				r.log.Warn("failed to flush pulses", "error", err, "pending", r.Pending())
			}
		}
	}
}
