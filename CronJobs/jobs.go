package CronJobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"Workbench/Cache"
	"Workbench/Models"
	"Workbench/Tasks"
)

const DefaultSchedule = "0 0 0 * * *"

// Runner is the part of the carry-forward engine the scheduler drives.
type Runner interface {
	Run(ctx context.Context) (*Tasks.Summary, error)
}

// Notifier is told about every finished run, e.g. a Slack channel.
type Notifier interface {
	NotifyCarryForward(ctx context.Context, trigger Models.RunTrigger, summary *Tasks.Summary, runErr error) error
}

// CarryForwardScheduler runs the carry-forward engine on a cron schedule
// and on demand.
type CarryForwardScheduler struct {
	cronScheduler *cron.Cron
	engine        Runner
	db            *gorm.DB
	cache         Cache.Cache
	notifier      Notifier
	logger        *slog.Logger
	timeout       time.Duration

	mu       sync.Mutex
	schedule string
	jobID    cron.EntryID

	ctx    context.Context
	cancel context.CancelFunc
}

// NewCarryForwardScheduler creates a scheduler firing at schedule in loc.
// timeout bounds manual runs; zero means no bound beyond the caller's
// context.
func NewCarryForwardScheduler(engine Runner, db *gorm.DB, cache Cache.Cache, schedule string, loc *time.Location, timeout time.Duration) *CarryForwardScheduler {
	if schedule == "" {
		schedule = DefaultSchedule
	}
	if loc == nil {
		loc = time.Local
	}
	if cache == nil {
		cache = Cache.Noop{}
	}
	logger := slog.Default().With("job", "carry-forward")
	cronLog := cronLogger{logger: logger}

	ctx, cancel := context.WithCancel(context.Background())
	return &CarryForwardScheduler{
		cronScheduler: cron.New(
			cron.WithSeconds(),
			cron.WithLocation(loc),
			cron.WithLogger(cronLog),
			cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
		),
		engine:   engine,
		db:       db,
		cache:    cache,
		logger:   logger,
		timeout:  timeout,
		schedule: schedule,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start registers the job and starts the cron loop.
func (s *CarryForwardScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cronScheduler.AddFunc(s.schedule, s.runScheduled)
	if err != nil {
		return fmt.Errorf("error scheduling cron job: %w", err)
	}
	s.jobID = id

	s.cronScheduler.Start()
	s.logger.Info("Carry-forward scheduler started", "schedule", s.schedule)
	return nil
}

// Stop halts the cron loop, cancels a scheduled run in flight and waits
// for it to return.
func (s *CarryForwardScheduler) Stop() {
	if s.cronScheduler == nil {
		return
	}
	done := s.cronScheduler.Stop()
	s.cancel()
	<-done.Done()
	s.logger.Info("Carry-forward scheduler stopped")
}

// UpdateSchedule swaps the cron expression, e.g. "0 30 0 * * *" for
// 00:30:00 every day. The old entry is kept if the new one is invalid.
func (s *CarryForwardScheduler) UpdateSchedule(schedule string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, err := s.cronScheduler.AddFunc(schedule, s.runScheduled)
	if err != nil {
		return fmt.Errorf("error updating schedule: %w", err)
	}
	s.cronScheduler.Remove(s.jobID)
	s.jobID = id
	s.schedule = schedule

	s.logger.Info("Carry-forward schedule updated", "schedule", schedule)
	return nil
}

// SetNotifier installs n; call it before Start.
func (s *CarryForwardScheduler) SetNotifier(n Notifier) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.notifier = n
}

func (s *CarryForwardScheduler) Schedule() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schedule
}

// Next is the next planned firing, zero before Start.
func (s *CarryForwardScheduler) Next() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cronScheduler.Entry(s.jobID).Next
}

// RunManual runs the engine for actor right away. The returned summary
// is non-nil whenever the eligible set could be read, even if some
// tasks failed.
func (s *CarryForwardScheduler) RunManual(ctx context.Context, actor Models.SessionUser) (*Tasks.Summary, error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.logger.InfoContext(ctx, "Running manual carry forward", "userId", actor.ID, "companyId", actor.CompanyID)
	summary, err := s.run(ctx, Models.RunTriggerManual, &actor)

	// The caller's own listings are stale too, even if none of their
	// tasks moved: another company's run may have raced this one.
	s.invalidate(context.WithoutCancel(ctx), actor.CompanyID)
	return summary, err
}

func (s *CarryForwardScheduler) runScheduled() {
	s.logger.Info("Running scheduled carry forward")
	if _, err := s.run(s.ctx, Models.RunTriggerScheduled, nil); err != nil {
		s.logger.Error("Error in scheduled carry forward", "error", err)
	}
}

func (s *CarryForwardScheduler) run(ctx context.Context, trigger Models.RunTrigger, actor *Models.SessionUser) (*Tasks.Summary, error) {
	started := time.Now().UTC()
	summary, err := s.engine.Run(ctx)

	// Audit and cache work must survive a cancelled run context.
	after := context.WithoutCancel(ctx)
	s.record(after, trigger, actor, started, summary, err)
	if summary != nil {
		for _, companyID := range summary.CompanyIDs() {
			s.invalidate(after, companyID)
		}
	}
	s.notify(after, trigger, summary, err)
	return summary, err
}

func (s *CarryForwardScheduler) record(ctx context.Context, trigger Models.RunTrigger, actor *Models.SessionUser, started time.Time, summary *Tasks.Summary, runErr error) {
	if s.db == nil {
		return
	}

	run := Models.CarryForwardRun{
		Trigger:    trigger,
		StartedAt:  started,
		FinishedAt: time.Now().UTC(),
		Failures:   datatypes.JSON("[]"),
	}
	if actor != nil {
		run.TriggeredByID = &actor.ID
		run.CompanyID = &actor.CompanyID
	}
	if runErr != nil {
		message := runErr.Error()
		run.Error = &message
	}
	if summary != nil {
		run.CarriedForward = summary.CarriedForward
		run.Skipped = summary.Skipped
		run.Failed = len(summary.Failures)
		if raw, err := json.Marshal(summary.Failures); err == nil {
			run.Failures = datatypes.JSON(raw)
		}
	}

	if err := s.db.WithContext(ctx).Create(&run).Error; err != nil {
		s.logger.ErrorContext(ctx, "Error recording carry-forward run", "error", err)
	}
}

func (s *CarryForwardScheduler) notify(ctx context.Context, trigger Models.RunTrigger, summary *Tasks.Summary, runErr error) {
	s.mu.Lock()
	notifier := s.notifier
	s.mu.Unlock()
	if notifier == nil {
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := notifier.NotifyCarryForward(ctx, trigger, summary, runErr); err != nil {
		s.logger.WarnContext(ctx, "Error sending carry-forward notification", "error", err)
	}
}

func (s *CarryForwardScheduler) invalidate(ctx context.Context, companyID string) {
	if companyID == "" {
		return
	}
	if err := s.cache.DeletePattern(ctx, Cache.CompanyTasksPattern(companyID)); err != nil {
		s.logger.WarnContext(ctx, "Error invalidating task cache", "companyId", companyID, "error", err)
	}
}

// cronLogger routes robfig/cron's own messages through slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error(msg, append([]interface{}{"error", err}, keysAndValues...)...)
}
