package Tasks

import (
	"time"

	"Workbench/Models"
)

// Start moves a PENDING task to IN_PROGRESS on behalf of its assignee.
func Start(task *Models.Task, actorID string, now time.Time) error {
	if !task.IsAssignedTo(actorID) {
		return ErrNotAssignee
	}
	if task.ActualStartTime != nil {
		return &TransitionError{Action: "start", From: string(task.Status), Reason: "task already started"}
	}
	if task.Status != Models.TaskStatusPending {
		return &TransitionError{Action: "start", From: string(task.Status)}
	}

	started := now
	task.Status = Models.TaskStatusInProgress
	task.ActualStartTime = &started
	return nil
}

// Complete closes a PENDING or IN_PROGRESS task. A task that was never
// started gets its scheduled start as actual start so duration maths
// always has both ends.
func Complete(task *Models.Task, actorID string, now time.Time) error {
	if !task.IsAssignedTo(actorID) {
		return ErrNotAssignee
	}
	if !task.Status.Open() {
		return &TransitionError{Action: "complete", From: string(task.Status),
			Reason: "task must be in PENDING or IN_PROGRESS status to complete"}
	}

	completed := now
	if task.ActualStartTime == nil {
		start := task.StartTime
		task.ActualStartTime = &start
	}
	task.Status = Models.TaskStatusCompleted
	task.ActualCompletedTime = &completed
	task.CompletedAt = &completed
	return nil
}

// Review marks a COMPLETED task as REVIEWED. companyID is the company
// owning the task's project.
func Review(task *Models.Task, reviewer Models.SessionUser, companyID string, now time.Time) error {
	if !reviewer.IsManager() || reviewer.CompanyID != companyID {
		return ErrNotManager
	}
	if task.Status != Models.TaskStatusCompleted {
		return &TransitionError{Action: "review", From: string(task.Status), Reason: "task is not completed yet"}
	}

	reviewed := now
	reviewerID := reviewer.ID
	task.Status = Models.TaskStatusReviewed
	task.ReviewedByID = &reviewerID
	task.ReviewedAt = &reviewed
	return nil
}

// IsEligible is the carry-forward predicate: open, past due and never
// carried forward before.
func IsEligible(task Models.Task, now time.Time) bool {
	return task.Status.Open() && task.EndTime.Before(now) && !task.IsCarriedForward
}

// StartOfDay returns local midnight of t's calendar day in loc.
func StartOfDay(t time.Time, loc *time.Location) time.Time {
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// ScheduleUpdate is the write the engine applies to one task.
type ScheduleUpdate struct {
	IsCarriedForward bool
	OriginalDueDate  *time.Time
	StartTime        time.Time
	EndTime          time.Time
}

// CarryForward computes the new schedule for an eligible task: the
// same allocated duration starting at today's midnight. OriginalDueDate
// is only proposed when the task has none yet.
func CarryForward(task Models.Task, now time.Time, loc *time.Location) (ScheduleUpdate, error) {
	if !IsEligible(task, now) {
		reason := "task is not overdue"
		switch {
		case task.IsCarriedForward:
			reason = "task was already carried forward"
		case !task.Status.Open():
			reason = "task is " + string(task.Status)
		}
		return ScheduleUpdate{}, &TransitionError{Action: "carry forward", From: string(task.Status), Reason: reason}
	}

	newStart := StartOfDay(now, loc)
	update := ScheduleUpdate{
		IsCarriedForward: true,
		StartTime:        newStart,
		EndTime:          newStart.Add(task.Duration()),
	}
	if task.OriginalDueDate == nil {
		due := task.EndTime
		update.OriginalDueDate = &due
	}
	return update, nil
}
