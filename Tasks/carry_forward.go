package Tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"Workbench/Models"
)

// CarriedTask describes one task moved onto today.
type CarriedTask struct {
	TaskID          string             `json:"taskId"`
	Title           string             `json:"title"`
	Project         *Models.ProjectRef `json:"project"`
	AssignedTo      *Models.UserRef    `json:"assignedTo"`
	OriginalEndTime time.Time          `json:"originalEndTime"`
	NewStartTime    time.Time          `json:"newStartTime"`
	NewEndTime      time.Time          `json:"newEndTime"`
}

// Summary is the result of one engine run. Tasks and Failures are never
// nil so they always encode as JSON arrays.
type Summary struct {
	CarriedForward int           `json:"carriedForward"`
	Tasks          []CarriedTask `json:"tasks"`
	Failures       []Failure     `json:"failures"`
	Skipped        int           `json:"skipped"`
	RanAt          time.Time     `json:"ranAt"`
}

// Err returns a *PartialBatchError when any task failed, nil otherwise.
func (s *Summary) Err() error {
	if s == nil || len(s.Failures) == 0 {
		return nil
	}
	return &PartialBatchError{Failures: s.Failures}
}

// CompanyIDs lists the distinct companies that had tasks carried.
func (s *Summary) CompanyIDs() []string {
	seen := make(map[string]bool)
	var ids []string
	for _, task := range s.Tasks {
		if task.Project == nil || task.Project.CompanyID == "" || seen[task.Project.CompanyID] {
			continue
		}
		seen[task.Project.CompanyID] = true
		ids = append(ids, task.Project.CompanyID)
	}
	return ids
}

// Engine carries overdue open tasks onto the current day. It is safe to
// run concurrently with itself: every write is conditional on the task
// not being carried forward yet.
type Engine struct {
	store    Store
	logger   *slog.Logger
	location *time.Location
	now      func() time.Time
	workers  int
}

type Option func(*Engine)

// WithLocation sets the zone whose midnight counts as start of day.
func WithLocation(loc *time.Location) Option {
	return func(e *Engine) {
		if loc != nil {
			e.location = loc
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithWorkers bounds how many per-task updates run at once.
func WithWorkers(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.workers = n
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

func NewEngine(store Store, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		logger:   slog.Default(),
		location: time.Local,
		now:      time.Now,
		workers:  1,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type outcome struct {
	carried *CarriedTask
	skipped bool
	err     error
}

// Run performs one sweep over the whole store. The returned error is
// non-nil only when the eligible set could not be read; per-task
// failures are reported in Summary.Failures and by Summary.Err.
func (e *Engine) Run(ctx context.Context) (*Summary, error) {
	now := e.now().In(e.location)

	tasks, err := e.store.FindEligibleIncompleteTasks(ctx, now.UTC())
	if err != nil {
		e.logger.ErrorContext(ctx, "Error carrying forward tasks", "error", err)
		return nil, fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}

	summary := &Summary{
		Tasks:    []CarriedTask{},
		Failures: []Failure{},
		RanAt:    now,
	}
	if len(tasks) == 0 {
		e.logger.InfoContext(ctx, "No incomplete tasks to carry forward")
		return summary, nil
	}

	outcomes := make([]outcome, len(tasks))
	var group errgroup.Group
	group.SetLimit(e.workers)
	for i := range tasks {
		if err := ctx.Err(); err != nil {
			outcomes[i] = outcome{err: err}
			continue
		}
		group.Go(func() error {
			outcomes[i] = e.carry(ctx, tasks[i], now)
			return nil
		})
	}
	_ = group.Wait()

	for i, result := range outcomes {
		task := tasks[i]
		switch {
		case result.skipped:
			summary.Skipped++
		case result.err != nil:
			summary.Failures = append(summary.Failures, Failure{
				TaskID: task.ID,
				Title:  task.Title,
				Error:  result.err.Error(),
			})
			e.logger.ErrorContext(ctx, "Task carry forward failed",
				"taskId", task.ID,
				"title", task.Title,
				"error", result.err,
			)
		default:
			summary.Tasks = append(summary.Tasks, *result.carried)
		}
	}
	summary.CarriedForward = len(summary.Tasks)

	e.logger.InfoContext(ctx, fmt.Sprintf("Successfully carried forward %d tasks", summary.CarriedForward),
		"carriedForward", summary.CarriedForward,
		"skipped", summary.Skipped,
		"failed", len(summary.Failures),
	)
	return summary, nil
}

func (e *Engine) carry(ctx context.Context, task Models.Task, now time.Time) outcome {
	if err := ctx.Err(); err != nil {
		return outcome{err: err}
	}

	update, err := CarryForward(task, now, e.location)
	if err != nil {
		// The store handed back a task that is no longer eligible; treat
		// it like a lost race.
		return outcome{skipped: true}
	}

	updated, err := e.store.UpdateTaskSchedule(ctx, task.ID, update)
	if errors.Is(err, ErrConcurrentCarryForward) {
		e.logger.DebugContext(ctx, "Task changed since it was read, skipping", "taskId", task.ID)
		return outcome{skipped: true}
	}
	if err != nil {
		return outcome{err: err}
	}

	project := task.Project
	if updated.Project != nil {
		project = updated.Project
	}
	assignee := task.AssignedTo
	if updated.AssignedTo != nil {
		assignee = updated.AssignedTo
	}

	carried := &CarriedTask{
		TaskID:          task.ID,
		Title:           task.Title,
		Project:         project.Ref(),
		AssignedTo:      assignee.Ref(),
		OriginalEndTime: task.EndTime,
		NewStartTime:    update.StartTime,
		NewEndTime:      update.EndTime,
	}

	e.logger.InfoContext(ctx, "Task carried forward",
		"taskId", task.ID,
		"title", task.Title,
		"projectId", task.ProjectID,
		"assignedToId", Models.StringValue(task.AssignedToID),
		"originalEndTime", task.EndTime,
		"newStartTime", update.StartTime,
		"newEndTime", update.EndTime,
	)
	return outcome{carried: carried}
}
