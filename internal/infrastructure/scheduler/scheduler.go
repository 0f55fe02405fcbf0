// Package scheduler runs named ledger jobs on cron schedules.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/refinance/ledger/internal/infrastructure/metrics"
)

var (
	ErrDuplicateJob = errors.New("job already registered")
	ErrUnknownJob   = errors.New("unknown job")
)

// JobFunc is the body of a job.
type JobFunc func(ctx context.Context) error

// Trigger is a parsed cron schedule. The zero Trigger never fires; a job
// registered with it only runs through RunNow.
type Trigger struct {
	spec     string
	schedule cron.Schedule
	location *time.Location
}

// Daily parses an "HH:MM" trigger in loc.
func Daily(hhmm string, loc *time.Location) (Trigger, error) {
	t, err := time.Parse("15:04", hhmm)
	if err != nil {
		return Trigger{}, fmt.Errorf("invalid trigger time %q: %w", hhmm, err)
	}
	if loc == nil {
		loc = time.UTC
	}
	return Cron(fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), loc)
}

// Cron parses a standard five-field cron expression or descriptor such as
// "@hourly". Unless spec carries its own CRON_TZ prefix it is evaluated in loc.
func Cron(spec string, loc *time.Location) (Trigger, error) {
	if loc == nil {
		loc = time.UTC
	}
	if !strings.HasPrefix(spec, "CRON_TZ=") && !strings.HasPrefix(spec, "TZ=") {
		spec = "CRON_TZ=" + loc.String() + " " + spec
	}
	schedule, err := cron.ParseStandard(spec)
	if err != nil {
		return Trigger{}, fmt.Errorf("invalid cron spec %q: %w", spec, err)
	}
	if s, ok := schedule.(*cron.SpecSchedule); ok {
		loc = s.Location
	}
	return Trigger{spec: spec, schedule: schedule, location: loc}, nil
}

// ParseTrigger accepts either "HH:MM" or a cron expression.
func ParseTrigger(value string, loc *time.Location) (Trigger, error) {
	value = strings.TrimSpace(value)
	if !strings.ContainsAny(value, " @") {
		return Daily(value, loc)
	}
	return Cron(value, loc)
}

// Next returns the first firing time strictly after after, or the zero time
// if t never fires.
func (t Trigger) Next(after time.Time) time.Time {
	if t.schedule == nil {
		return time.Time{}
	}
	return t.schedule.Next(after)
}

// Location is the zone the trigger is evaluated in.
func (t Trigger) Location() *time.Location {
	if t.location == nil {
		return time.UTC
	}
	return t.location
}

// IsZero reports whether t never fires.
func (t Trigger) IsZero() bool { return t.schedule == nil }

func (t Trigger) String() string {
	if t.schedule == nil {
		return "manual"
	}
	return t.spec
}

type job struct {
	s       *Scheduler
	name    string
	trigger Trigger
	run     JobFunc
	entry   cron.EntryID
}

// Run implements cron.Job.
func (j *job) Run() {
	// Failures are logged by execute.
	_ = j.s.execute(j.s.runContext(), j)
}

// Scheduler runs registered jobs one at a time.
type Scheduler struct {
	mu      sync.Mutex
	cron    *cron.Cron
	jobs    []*job
	byName  map[string]*job
	ctx     context.Context
	runMu   sync.Mutex
	logger  zerolog.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithMetrics records job runs and durations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock replaces time.Now for job bodies reading Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) { s.now = now }
}

// New creates a Scheduler.
func New(logger zerolog.Logger, opts ...Option) *Scheduler {
	s := &Scheduler{
		byName: make(map[string]*job),
		ctx:    context.Background(),
		logger: logger.With().Str("component", "scheduler").Logger(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	cl := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	return s
}

// Register adds a job.
func (s *Scheduler) Register(name string, trigger Trigger, run JobFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.byName[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateJob, name)
	}
	j := &job{s: s, name: name, trigger: trigger, run: run}
	if !trigger.IsZero() {
		j.entry = s.cron.Schedule(trigger.schedule, j)
	}
	s.jobs = append(s.jobs, j)
	s.byName[name] = j
	return nil
}

// Jobs lists registered job names in registration order.
func (s *Scheduler) Jobs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	names := make([]string, 0, len(s.jobs))
	for _, j := range s.jobs {
		names = append(names, j.name)
	}
	return names
}

// RunNow runs the named job immediately, after any job already running.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	s.mu.Lock()
	j, ok := s.byName[name]
	s.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownJob, name)
	}
	return s.execute(ctx, j)
}

// Start runs jobs at their trigger times until ctx is cancelled, then waits
// for a running job to finish. A failing run is logged and does not affect
// later runs.
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	s.ctx = ctx
	s.mu.Unlock()

	s.cron.Start()
	for _, j := range s.scheduled() {
		s.logger.Info().Str("job", j.name).Str("trigger", j.trigger.String()).
			Time("next_run", s.cron.Entry(j.entry).Next).Msg("job scheduled")
	}
	s.logger.Info().Int("jobs", len(s.Jobs())).Msg("scheduler started")

	<-ctx.Done()
	s.logger.Info().Msg("scheduler shutting down")
	<-s.cron.Stop().Done()
	return ctx.Err()
}

func (s *Scheduler) scheduled() []*job {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*job, 0, len(s.jobs))
	for _, j := range s.jobs {
		if !j.trigger.IsZero() {
			out = append(out, j)
		}
	}
	return out
}

func (s *Scheduler) runContext() context.Context {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctx
}

func (s *Scheduler) execute(ctx context.Context, j *job) (err error) {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	start := time.Now()
	logger := s.logger.With().Str("job", j.name).Logger()
	logger.Info().Msg("job started")

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.name, r)
		}
		elapsed := time.Since(start)
		if s.metrics != nil {
			s.metrics.JobRuns.WithLabelValues(j.name, metrics.Result(err)).Inc()
			s.metrics.JobDuration.WithLabelValues(j.name).Observe(elapsed.Seconds())
		}
		if err != nil {
			logger.Error().Err(err).Dur("duration", elapsed).Msg("job failed")
			return
		}
		logger.Info().Dur("duration", elapsed).Msg("job finished")
	}()

	return j.run(ctx)
}

// Now returns the scheduler's current time.
func (s *Scheduler) Now() time.Time {
	return s.now()
}

// cronLogger routes cron's own messages to zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
