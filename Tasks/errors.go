package Tasks

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrStorageUnavailable means the task store could not be reached.
	ErrStorageUnavailable = errors.New("task storage unavailable")

	// ErrConcurrentCarryForward means a conditional schedule update lost
	// to another run that already carried the task forward, or the task
	// was closed since it was read. Callers skip the task; it is not a
	// failure.
	ErrConcurrentCarryForward = errors.New("task already carried forward")

	// ErrInvalidTransition is returned when a task's current state does
	// not allow the requested action.
	ErrInvalidTransition = errors.New("invalid task transition")

	// ErrNotAssignee is returned when someone other than the assignee
	// tries to start or complete a task.
	ErrNotAssignee = errors.New("task is not assigned to this user")

	// ErrNotManager is returned when a review is attempted by a user
	// who is not a manager of the owning company.
	ErrNotManager = errors.New("only a manager of the owning company can review this task")

	// ErrTaskNotFound is returned when the task id matches no row.
	ErrTaskNotFound = errors.New("task not found")

	// ErrPartialBatchFailure matches a *PartialBatchError via errors.Is.
	ErrPartialBatchFailure = errors.New("carry-forward finished with failures")
)

// TransitionError names the action and the status that rejected it.
type TransitionError struct {
	Action string
	From   string
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s task: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("cannot %s task in status %s", e.Action, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// Failure is one task the engine could not carry forward.
type Failure struct {
	TaskID string `json:"taskId"`
	Title  string `json:"title"`
	Error  string `json:"error"`
}

// PartialBatchError reports the failed part of a carry-forward run. The
// successful part is still in the Summary returned next to it.
type PartialBatchError struct {
	Failures []Failure
}

func (e *PartialBatchError) Error() string {
	ids := make([]string, 0, len(e.Failures))
	for _, f := range e.Failures {
		ids = append(ids, f.TaskID)
	}
	return fmt.Sprintf("%d task(s) failed to carry forward: %s", len(e.Failures), strings.Join(ids, ", "))
}

func (e *PartialBatchError) Is(target error) bool {
	return target == ErrPartialBatchFailure
}
