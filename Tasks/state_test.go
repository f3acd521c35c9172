package Tasks

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Workbench/Models"
)

var serverZone = time.FixedZone("Server", 2*60*60)

func strPtr(s string) *string { return &s }

func newTask(status Models.TaskStatus, start, end time.Time) Models.Task {
	return Models.Task{
		Base:         Models.Base{ID: "task-1"},
		Title:        "Write report",
		Type:         Models.TaskTypeFeature,
		Status:       status,
		StartTime:    start,
		EndTime:      end,
		ProjectID:    "project-1",
		CreatedByID:  "manager-1",
		AssignedToID: strPtr("employee-1"),
	}
}

func TestStart(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, serverZone)
	task := newTask(Models.TaskStatusPending, now, now.Add(time.Hour))

	require.NoError(t, Start(&task, "employee-1", now))
	assert.Equal(t, Models.TaskStatusInProgress, task.Status)
	require.NotNil(t, task.ActualStartTime)
	assert.True(t, task.ActualStartTime.Equal(now))
}

func TestStartGuards(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 30, 0, 0, serverZone)

	t.Run("not assignee", func(t *testing.T) {
		task := newTask(Models.TaskStatusPending, now, now.Add(time.Hour))
		assert.ErrorIs(t, Start(&task, "someone-else", now), ErrNotAssignee)
	})

	t.Run("unassigned", func(t *testing.T) {
		task := newTask(Models.TaskStatusPending, now, now.Add(time.Hour))
		task.AssignedToID = nil
		assert.ErrorIs(t, Start(&task, "employee-1", now), ErrNotAssignee)
	})

	t.Run("already started", func(t *testing.T) {
		task := newTask(Models.TaskStatusPending, now, now.Add(time.Hour))
		started := now.Add(-time.Minute)
		task.ActualStartTime = &started
		err := Start(&task, "employee-1", now)
		assert.ErrorIs(t, err, ErrInvalidTransition)
		assert.Contains(t, err.Error(), "already started")
	})

	for _, status := range []Models.TaskStatus{Models.TaskStatusInProgress, Models.TaskStatusCompleted, Models.TaskStatusReviewed} {
		t.Run(string(status), func(t *testing.T) {
			task := newTask(status, now, now.Add(time.Hour))
			assert.ErrorIs(t, Start(&task, "employee-1", now), ErrInvalidTransition)
			assert.Equal(t, status, task.Status)
		})
	}
}

func TestCompleteBackfillsActualStart(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, serverZone)
	now := start.Add(3 * time.Hour)
	task := newTask(Models.TaskStatusPending, start, start.Add(8*time.Hour))

	require.NoError(t, Complete(&task, "employee-1", now))

	assert.Equal(t, Models.TaskStatusCompleted, task.Status)
	require.NotNil(t, task.ActualStartTime)
	assert.True(t, task.ActualStartTime.Equal(start))
	require.NotNil(t, task.ActualCompletedTime)
	assert.True(t, task.ActualCompletedTime.Equal(now))
	require.NotNil(t, task.CompletedAt)
	assert.True(t, task.CompletedAt.Equal(now))
}

func TestCompleteKeepsExplicitStart(t *testing.T) {
	start := time.Date(2026, 3, 10, 9, 0, 0, 0, serverZone)
	task := newTask(Models.TaskStatusPending, start, start.Add(8*time.Hour))
	require.NoError(t, Start(&task, "employee-1", start.Add(time.Hour)))

	require.NoError(t, Complete(&task, "employee-1", start.Add(2*time.Hour)))
	assert.True(t, task.ActualStartTime.Equal(start.Add(time.Hour)))
}

func TestCompleteGuards(t *testing.T) {
	now := time.Date(2026, 3, 10, 9, 0, 0, 0, serverZone)

	task := newTask(Models.TaskStatusPending, now, now.Add(time.Hour))
	assert.ErrorIs(t, Complete(&task, "employee-2", now), ErrNotAssignee)

	for _, status := range []Models.TaskStatus{Models.TaskStatusCompleted, Models.TaskStatusReviewed} {
		task := newTask(status, now, now.Add(time.Hour))
		assert.ErrorIs(t, Complete(&task, "employee-1", now), ErrInvalidTransition)
	}
}

func TestReview(t *testing.T) {
	now := time.Date(2026, 3, 10, 18, 0, 0, 0, serverZone)
	manager := Models.SessionUser{ID: "manager-1", Role: Models.RoleManager, CompanyID: "company-1"}

	task := newTask(Models.TaskStatusCompleted, now.Add(-8*time.Hour), now)
	require.NoError(t, Review(&task, manager, "company-1", now))
	assert.Equal(t, Models.TaskStatusReviewed, task.Status)
	assert.Equal(t, "manager-1", Models.StringValue(task.ReviewedByID))
	assert.True(t, task.ReviewedAt.Equal(now))

	pending := newTask(Models.TaskStatusPending, now, now.Add(time.Hour))
	assert.ErrorIs(t, Review(&pending, manager, "company-1", now), ErrInvalidTransition)

	again := task
	assert.ErrorIs(t, Review(&again, manager, "company-1", now), ErrInvalidTransition)

	other := newTask(Models.TaskStatusCompleted, now, now.Add(time.Hour))
	assert.ErrorIs(t, Review(&other, manager, "company-2", now), ErrNotManager)

	employee := Models.SessionUser{ID: "employee-1", Role: Models.RoleEmployee, CompanyID: "company-1"}
	assert.ErrorIs(t, Review(&other, employee, "company-1", now), ErrNotManager)
}

func TestStartOfDayUsesLocation(t *testing.T) {
	// 23:30 UTC is already the next day two hours east.
	instant := time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)

	got := StartOfDay(instant, serverZone)
	assert.Equal(t, time.Date(2026, 3, 11, 0, 0, 0, 0, serverZone), got)

	assert.Equal(t, time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC), StartOfDay(instant, time.UTC))
}

func TestCarryForwardComputesSchedule(t *testing.T) {
	yesterday := time.Date(2026, 3, 9, 9, 0, 0, 0, serverZone)
	now := time.Date(2026, 3, 10, 10, 15, 0, 0, serverZone)
	task := newTask(Models.TaskStatusInProgress, yesterday, yesterday.Add(8*time.Hour))

	update, err := CarryForward(task, now, serverZone)
	require.NoError(t, err)

	midnight := time.Date(2026, 3, 10, 0, 0, 0, 0, serverZone)
	assert.True(t, update.IsCarriedForward)
	assert.Equal(t, midnight, update.StartTime)
	assert.Equal(t, midnight.Add(8*time.Hour), update.EndTime)
	require.NotNil(t, update.OriginalDueDate)
	assert.True(t, update.OriginalDueDate.Equal(task.EndTime))
}

func TestCarryForwardKeepsExistingOriginalDueDate(t *testing.T) {
	first := time.Date(2026, 3, 1, 17, 0, 0, 0, serverZone)
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, serverZone)
	task := newTask(Models.TaskStatusPending, now.Add(-26*time.Hour), now.Add(-25*time.Hour))
	task.OriginalDueDate = &first

	update, err := CarryForward(task, now, serverZone)
	require.NoError(t, err)
	assert.Nil(t, update.OriginalDueDate)
}

func TestCarryForwardRejectsIneligible(t *testing.T) {
	now := time.Date(2026, 3, 10, 10, 0, 0, 0, serverZone)
	past := now.Add(-48 * time.Hour)

	cases := map[string]Models.Task{
		"completed":        newTask(Models.TaskStatusCompleted, past, past.Add(time.Hour)),
		"reviewed":         newTask(Models.TaskStatusReviewed, past, past.Add(time.Hour)),
		"not overdue":      newTask(Models.TaskStatusPending, now.Add(-time.Hour), now.Add(time.Hour)),
		"ends exactly now": newTask(Models.TaskStatusPending, now.Add(-time.Hour), now),
	}
	carried := newTask(Models.TaskStatusPending, past, past.Add(time.Hour))
	carried.IsCarriedForward = true
	cases["already carried"] = carried

	for name, task := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := CarryForward(task, now, serverZone)
			var transition *TransitionError
			require.True(t, errors.As(err, &transition))
			assert.ErrorIs(t, err, ErrInvalidTransition)
		})
	}
}
