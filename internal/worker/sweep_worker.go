package worker

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Sweeper evicts idle or expired entries and reports how many were removed.
type Sweeper interface {
	SweepIdle(now time.Time) int
}

// SweeperFunc adapts a plain function, such as (*storage.Memory).Sweep, to Sweeper.
type SweeperFunc func(now time.Time) int

func (f SweeperFunc) SweepIdle(now time.Time) int {
	return f(now)
}

// SweepWorker periodically evicts idle hint workflows and expired in-memory
// store entries.
type SweepWorker struct {
	targets  []Sweeper
	interval time.Duration
	log      zerolog.Logger
}

// NewSweepWorker creates a SweepWorker ticking every interval over targets.
func NewSweepWorker(interval time.Duration, log zerolog.Logger, targets ...Sweeper) *SweepWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweepWorker{
		targets:  targets,
		interval: interval,
		log:      log.With().Str("component", "sweep_worker").Logger(),
	}
}

// Start ticks until ctx is cancelled. Call in a goroutine.
func (w *SweepWorker) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			w.sweep(now)
		}
	}
}

func (w *SweepWorker) sweep(now time.Time) {
	evicted := 0
	for _, t := range w.targets {
		evicted += t.SweepIdle(now)
	}
	if evicted > 0 {
		w.log.Debug().Int("evicted", evicted).Msg("Idle entries evicted")
	}
}
