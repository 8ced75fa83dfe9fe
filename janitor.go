package fscache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DefaultJanitorSchedule runs a purge every ten minutes.
const DefaultJanitorSchedule = "@every 10m"

// cronParser accepts standard five-field specs, six-field specs with
// seconds, and descriptors such as @hourly or @every 5m.
var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Janitor periodically purges a cache on a cron schedule.
// Runs never overlap; a tick that arrives while a purge is running is skipped.
type Janitor struct {
	target   Purger
	schedule string
	logger   *Logger
	timeout  time.Duration
	cron     *cron.Cron

	mu      sync.Mutex
	runs    int
	last    PurgeResult
	lastErr error
	lastRun time.Time
	started bool
}

// JanitorOption configures a Janitor.
type JanitorOption func(*Janitor)

// WithJanitorLogger sets the janitor's logger.
func WithJanitorLogger(logger *Logger) JanitorOption {
	return func(j *Janitor) {
		j.logger = logger
	}
}

// WithJanitorTimeout bounds each purge run. Zero means no timeout.
func WithJanitorTimeout(d time.Duration) JanitorOption {
	return func(j *Janitor) {
		j.timeout = d
	}
}

// NewJanitor creates a janitor for target. An empty schedule selects
// DefaultJanitorSchedule. The janitor does nothing until Start.
func NewJanitor(target Purger, schedule string, opts ...JanitorOption) (*Janitor, error) {
	if target == nil {
		return nil, fmt.Errorf("%w: janitor target cannot be nil", ErrInvalidConfig)
	}
	if schedule == "" {
		schedule = DefaultJanitorSchedule
	}

	j := &Janitor{
		target:   target,
		schedule: schedule,
		logger:   NewNopLogger(),
	}
	for _, opt := range opts {
		opt(j)
	}

	clog := cronLogger{logger: j.logger}
	j.cron = cron.New(
		cron.WithParser(cronParser),
		cron.WithLogger(clog),
		cron.WithChain(cron.Recover(clog), cron.SkipIfStillRunning(clog)),
	)
	if _, err := j.cron.AddFunc(schedule, func() { j.RunNow(context.Background()) }); err != nil {
		return nil, fmt.Errorf("%w: invalid janitor schedule %q: %w", ErrInvalidConfig, schedule, err)
	}

	return j, nil
}

// Start begins running purges on the schedule. Calling Start on a running
// janitor has no effect.
func (j *Janitor) Start() {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.started {
		return
	}
	j.started = true
	j.cron.Start()
	j.logger.Info(context.Background(), "cache janitor started", "schedule", j.schedule)
}

// Stop halts the schedule and waits for a running purge to finish or for ctx
// to be done.
func (j *Janitor) Stop(ctx context.Context) error {
	j.mu.Lock()
	if !j.started {
		j.mu.Unlock()
		return nil
	}
	j.started = false
	j.mu.Unlock()

	done := j.cron.Stop()
	select {
	case <-done.Done():
		j.logger.Info(ctx, "cache janitor stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// RunNow performs one purge synchronously and records its result.
func (j *Janitor) RunNow(ctx context.Context) (PurgeResult, error) {
	if j.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, j.timeout)
		defer cancel()
	}

	res, err := j.target.PurgeReport(ctx)

	j.mu.Lock()
	j.runs++
	j.last = res
	j.lastErr = err
	j.lastRun = time.Now()
	j.mu.Unlock()

	if err != nil {
		j.logger.Warn(ctx, "cache janitor run failed", "error", err.Error(), "removed", res.Removed())
	}
	return res, err
}

// JanitorStatus reports the janitor's most recent run.
type JanitorStatus struct {
	Runs       int
	LastResult PurgeResult
	LastError  error
	LastRun    time.Time
	Next       time.Time
}

// Status returns a snapshot of the janitor's progress.
func (j *Janitor) Status() JanitorStatus {
	j.mu.Lock()
	st := JanitorStatus{
		Runs:       j.runs,
		LastResult: j.last,
		LastError:  j.lastErr,
		LastRun:    j.lastRun,
	}
	j.mu.Unlock()

	if entries := j.cron.Entries(); len(entries) > 0 {
		st.Next = entries[0].Next
	}
	return st
}

// cronLogger adapts Logger to cron.Logger.
type cronLogger struct {
	logger *Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug(context.Background(), "cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	args := append([]any{"error", err.Error()}, keysAndValues...)
	l.logger.Error(context.Background(), "cron: "+msg, args...)
}
