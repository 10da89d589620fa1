package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// cronLogger routes cron's internal logging through zap.
type cronLogger struct {
	s *zap.SugaredLogger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.s.Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.s.Errorw(msg, append(keysAndValues, "error", err)...)
}

// Scheduler runs named periodic jobs. A job never overlaps itself; a tick
// that fires while the previous run is still going is skipped.
type Scheduler struct {
	logger *zap.Logger
	cron   *cron.Cron

	mu      sync.Mutex
	baseCtx context.Context
	entries map[string]scheduledJob
	started bool
}

type scheduledJob struct {
	id    cron.EntryID
	every time.Duration
	job   func(context.Context)
}

// NewScheduler creates a stopped scheduler.
func NewScheduler(logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	cl := cronLogger{s: logger.Sugar()}

	return &Scheduler{
		logger:  logger,
		cron:    cron.New(cron.WithLogger(cl), cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl))),
		baseCtx: context.Background(),
		entries: make(map[string]scheduledJob),
	}
}

func everySpec(d time.Duration) string {
	return fmt.Sprintf("@every %s", d)
}

// Schedule registers job under name to run every interval. Registering an
// existing name replaces the previous job.
func (s *Scheduler) Schedule(name string, every time.Duration, job func(context.Context)) error {
	if every <= 0 {
		return fmt.Errorf("job %s: interval must be positive, got %s", name, every)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.entries[name]; ok {
		s.cron.Remove(existing.id)
	}

	id, err := s.cron.AddFunc(everySpec(every), func() {
		s.mu.Lock()
		ctx := s.baseCtx
		s.mu.Unlock()
		if ctx.Err() != nil {
			return
		}
		job(ctx)
	})
	if err != nil {
		return fmt.Errorf("schedule %s: %w", name, err)
	}

	s.entries[name] = scheduledJob{id: id, every: every, job: job}
	s.logger.Debug("job scheduled", zap.String("job", name), zap.Duration("every", every))
	return nil
}

// Reschedule changes the interval of a registered job. It is a no-op when the
// interval is unchanged.
func (s *Scheduler) Reschedule(name string, every time.Duration) error {
	s.mu.Lock()
	existing, ok := s.entries[name]
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("job %s not scheduled", name)
	}
	if existing.every == every {
		return nil
	}

	s.logger.Info("rescheduling job",
		zap.String("job", name),
		zap.Duration("from", existing.every),
		zap.Duration("to", every),
	)
	return s.Schedule(name, every, existing.job)
}

// Interval returns the interval of a registered job.
func (s *Scheduler) Interval(name string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[name]
	return e.every, ok
}

// Jobs returns the number of registered jobs.
func (s *Scheduler) Jobs() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Start begins firing jobs. Jobs receive ctx and stop firing once it is done.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", s.Jobs()))
}

// Stop halts the scheduler and waits up to timeout for running jobs.
func (s *Scheduler) Stop(timeout time.Duration) {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()

	if !started {
		return
	}

	done := s.cron.Stop()
	select {
	case <-done.Done():
		s.logger.Info("scheduler stopped")
	case <-time.After(timeout):
		s.logger.Warn("scheduler stop timed out with jobs still running", zap.Duration("timeout", timeout))
	}
}
