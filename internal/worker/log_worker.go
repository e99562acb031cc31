package worker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/umtp/assist-gateway/internal/eventlog"
	"github.com/umtp/assist-gateway/internal/metrics"
)

// Sender delivers one interaction event. *eventlog.Logger implements it.
type Sender interface {
	Send(ctx context.Context, p eventlog.Params)
}

// LogWorker runs event log deliveries off the caller's path. Enqueue never
// blocks: callers must not assume ordering or completion relative to later
// actions, and an event is dropped when the queue is full.
type LogWorker struct {
	sender       Sender
	queue        chan logJob
	workers      int
	drainTimeout time.Duration
	log          zerolog.Logger

	mu      sync.RWMutex
	stopped bool
}

type logJob struct {
	ctx    context.Context
	params eventlog.Params
}

// NewLogWorker creates a LogWorker with a bounded queue.
func NewLogWorker(sender Sender, queueSize, workers int, log zerolog.Logger) *LogWorker {
	if queueSize <= 0 {
		queueSize = 64
	}
	if workers <= 0 {
		workers = 1
	}
	return &LogWorker{
		sender:       sender,
		queue:        make(chan logJob, queueSize),
		workers:      workers,
		drainTimeout: 5 * time.Second,
		log:          log.With().Str("component", "log_worker").Logger(),
	}
}

// Enqueue schedules p for delivery and returns immediately. ctx keeps its values
// (trace span) but not its cancellation: the request that produced the event is
// usually finished before delivery starts.
func (w *LogWorker) Enqueue(ctx context.Context, p eventlog.Params) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.stopped {
		metrics.LogDeliveries.WithLabelValues("dropped").Inc()
		return false
	}

	select {
	case w.queue <- logJob{ctx: context.WithoutCancel(ctx), params: p}:
		return true
	default:
		metrics.LogDeliveries.WithLabelValues("dropped").Inc()
		w.log.Warn().Str("event", p.EventName).Msg("Log queue full, event dropped")
		return false
	}
}

// QueueLen reports how many events wait for delivery.
func (w *LogWorker) QueueLen() int {
	return len(w.queue)
}

// Start runs the delivery loop until ctx is cancelled, then drains what is left
// in the queue within the drain timeout. Call in a goroutine.
func (w *LogWorker) Start(ctx context.Context) {
	w.log.Info().Int("workers", w.workers).Msg("Worker started")

	var wg sync.WaitGroup
	for i := 0; i < w.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}
	wg.Wait()

	w.log.Info().Msg("Worker stopping...")
	w.mu.Lock()
	w.stopped = true
	w.mu.Unlock()

	w.drain()
	w.log.Info().Msg("Worker stopped")
}

func (w *LogWorker) loop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-w.queue:
			w.deliver(ctx, job)
		}
	}
}

// deliver sends one job. The delivery is abandoned if the worker itself is
// cancelled mid-flight.
func (w *LogWorker) deliver(workerCtx context.Context, job logJob) {
	ctx, cancel := context.WithCancel(job.ctx)
	defer cancel()
	stop := context.AfterFunc(workerCtx, cancel)
	defer stop()

	w.sender.Send(ctx, job.params)
}

// drain delivers the remaining queued events before shutdown.
func (w *LogWorker) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), w.drainTimeout)
	defer cancel()

	drained := 0
	for {
		select {
		case job := <-w.queue:
			jobCtx, jobCancel := context.WithCancel(job.ctx)
			stop := context.AfterFunc(ctx, jobCancel)
			w.sender.Send(jobCtx, job.params)
			stop()
			jobCancel()
			drained++
		default:
			if drained > 0 {
				w.log.Info().Int("count", drained).Msg("Drained remaining events")
			}
			return
		}
		if ctx.Err() != nil {
			w.log.Warn().Int("left", len(w.queue)).Msg("Drain deadline reached")
			return
		}
	}
}
