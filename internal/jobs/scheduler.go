package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Scheduler pulls jobs from the broker and runs them on per-type worker
// pools. Each job type gets its own bounded concurrency so a burst of
// illustration work cannot starve the narrative or finalize lanes, and
// downstream model rate limits stay respected.
type Scheduler struct {
	broker       *Broker
	deps         Dependencies
	logger       *slog.Logger
	pollInterval time.Duration
	lease        time.Duration

	mu       sync.Mutex
	handlers map[string]registration
}

type registration struct {
	handler     Handler
	concurrency int
}

// SchedulerConfig configures a scheduler.
type SchedulerConfig struct {
	Broker *Broker
	Deps   Dependencies
	Logger *slog.Logger

	// PollInterval is the idle sleep between claim attempts (default 250ms).
	PollInterval time.Duration

	// LeaseDuration is how long a claimed job may sit in running before
	// a reclaim pass returns it to the queue (default 10m). It must
	// exceed the longest handler execution plus its model-call retries.
	LeaseDuration time.Duration
}

// NewScheduler creates a scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	poll := cfg.PollInterval
	if poll <= 0 {
		poll = 250 * time.Millisecond
	}
	lease := cfg.LeaseDuration
	if lease <= 0 {
		lease = 10 * time.Minute
	}
	return &Scheduler{
		broker:       cfg.Broker,
		deps:         cfg.Deps,
		logger:       logger,
		pollInterval: poll,
		lease:        lease,
		handlers:     make(map[string]registration),
	}
}

// Register adds a handler with a bounded worker count for its job type.
func (s *Scheduler) Register(h Handler, concurrency int) {
	if concurrency <= 0 {
		concurrency = 1
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[h.Type()] = registration{handler: h, concurrency: concurrency}
	s.logger.Info("job handler registered", "type", h.Type(), "concurrency", concurrency)
}

// Run starts all worker pools and blocks until ctx is cancelled and the
// in-flight jobs have drained.
func (s *Scheduler) Run(ctx context.Context) {
	s.mu.Lock()
	regs := make([]registration, 0, len(s.handlers))
	for _, r := range s.handlers {
		regs = append(regs, r)
	}
	s.mu.Unlock()

	// Jobs still running in the database were claimed by a process that
	// never got to record an outcome. No worker of this process holds a
	// claim yet, so everything running is reclaimable immediately.
	s.reclaim(ctx, time.Now())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		s.reclaimLoop(ctx)
	}()
	for _, reg := range regs {
		for i := 0; i < reg.concurrency; i++ {
			wg.Add(1)
			go func(h Handler, worker int) {
				defer wg.Done()
				s.workerLoop(ctx, h, worker)
			}(reg.handler, i)
		}
	}
	s.logger.Info("scheduler started", "job_types", len(regs))
	wg.Wait()
	s.logger.Info("scheduler stopped")
}

// reclaimLoop periodically returns jobs whose lease expired to the
// queue, covering workers lost while this process keeps running.
func (s *Scheduler) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(s.lease / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.reclaim(ctx, time.Now().Add(-s.lease))
		}
	}
}

func (s *Scheduler) reclaim(ctx context.Context, cutoff time.Time) {
	requeued, failed, err := s.broker.ReclaimStale(ctx, cutoff)
	if err != nil {
		if ctx.Err() == nil {
			s.logger.Error("reclaiming stale jobs failed", "error", err)
		}
		return
	}
	if requeued > 0 {
		s.logger.Warn("stale jobs returned to queue", "count", requeued)
	}
	// Reclaim can settle a job whose attempts are spent, which is a
	// final failure like any other and gets the same cleanup.
	for _, rec := range failed {
		s.mu.Lock()
		reg, ok := s.handlers[rec.Type]
		s.mu.Unlock()
		if !ok {
			continue
		}
		if eh, isEH := reg.handler.(ExhaustionHandler); isEH {
			eh.OnExhausted(ContextWithDeps(ctx, s.deps), rec.Payload, rec.Error)
		}
	}
}

func (s *Scheduler) workerLoop(ctx context.Context, h Handler, worker int) {
	logger := s.logger.With("type", h.Type(), "worker", worker)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		rec, err := s.broker.Claim(ctx, h.Type())
		if err != nil {
			if err != ErrNoJob && ctx.Err() == nil {
				logger.Error("claim failed", "error", err)
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(s.pollInterval):
			}
			continue
		}

		s.execute(ctx, h, rec, logger)
	}
}

// execute runs one claimed job and records its outcome. Panics in a
// handler fail the job instead of taking the worker down.
func (s *Scheduler) execute(ctx context.Context, h Handler, rec *Record, logger *slog.Logger) {
	start := time.Now()
	execCtx := ContextWithDeps(ctx, s.deps)

	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = Permanent(fmt.Errorf("handler panic: %v", r))
			}
		}()
		return h.Execute(execCtx, rec.Payload)
	}()

	// Outcome bookkeeping must survive a cancelled run context.
	doneCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()

	if err != nil {
		retryable := !IsPermanent(err)
		if failErr := s.broker.Fail(doneCtx, rec.ID, err.Error(), retryable); failErr != nil {
			logger.Error("recording job failure failed", "job_id", rec.ID, "error", failErr)
		}
		if !retryable || rec.Attempts >= rec.MaxAttempts {
			if eh, ok := h.(ExhaustionHandler); ok {
				eh.OnExhausted(ContextWithDeps(doneCtx, s.deps), rec.Payload, err.Error())
			}
		}
		return
	}
	if compErr := s.broker.Complete(doneCtx, rec.ID); compErr != nil {
		logger.Error("recording job completion failed", "job_id", rec.ID, "error", compErr)
		return
	}
	logger.Info("job completed", "job_id", rec.ID, "duration", time.Since(start))
}
