package Tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"Workbench/Models"
)

// Store is what the carry-forward engine needs from persistence.
type Store interface {
	// FindEligibleIncompleteTasks returns every PENDING/IN_PROGRESS task
	// with EndTime before now that was never carried forward, with its
	// project and assignee loaded.
	FindEligibleIncompleteTasks(ctx context.Context, now time.Time) ([]Models.Task, error)

	// UpdateTaskSchedule applies update only while the task is still open
	// and not carried forward. A lost race returns ErrConcurrentCarryForward.
	UpdateTaskSchedule(ctx context.Context, taskID string, update ScheduleUpdate) (Models.Task, error)
}

// CarriedForwardFilter scopes the carried-forward listing to a tenant.
type CarriedForwardFilter struct {
	CompanyID string
	ProjectID string
	Page      int
	Limit     int
}

// Offset converts the 1-based page into a row offset.
func (f CarriedForwardFilter) Offset() int {
	return (f.Page - 1) * f.Limit
}

type CarriedForwardReader interface {
	FindCarriedForwardTasks(ctx context.Context, filter CarriedForwardFilter) ([]Models.Task, int64, error)
}

// GormStore implements Store and CarriedForwardReader on GORM.
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) FindEligibleIncompleteTasks(ctx context.Context, now time.Time) ([]Models.Task, error) {
	var tasks []Models.Task
	err := s.DB.WithContext(ctx).
		Preload("Project").
		Preload("AssignedTo").
		Where("status IN ?", []Models.TaskStatus{Models.TaskStatusPending, Models.TaskStatusInProgress}).
		Where("end_time < ?", now.UTC()).
		Where("is_carried_forward = ?", false).
		Order("end_time ASC").
		Find(&tasks).Error
	if err != nil {
		return nil, fmt.Errorf("querying eligible tasks: %w", err)
	}
	return tasks, nil
}

func (s *GormStore) UpdateTaskSchedule(ctx context.Context, taskID string, update ScheduleUpdate) (Models.Task, error) {
	db := s.DB.WithContext(ctx)

	values := map[string]interface{}{
		"is_carried_forward": update.IsCarriedForward,
		"start_time":         update.StartTime.UTC(),
		"end_time":           update.EndTime.UTC(),
	}
	if update.OriginalDueDate != nil {
		// COALESCE keeps the first missed deadline even if a caller
		// proposes a later one.
		values["original_due_date"] = gorm.Expr("COALESCE(original_due_date, ?)", update.OriginalDueDate.UTC())
	}

	// The write re-checks eligibility: a task closed after the sweep
	// read it is left alone.
	result := db.Model(&Models.Task{}).
		Where("id = ? AND is_carried_forward = ?", taskID, false).
		Where("status IN ?", []Models.TaskStatus{Models.TaskStatusPending, Models.TaskStatusInProgress}).
		Updates(values)
	if result.Error != nil {
		return Models.Task{}, fmt.Errorf("updating schedule of task %s: %w", taskID, result.Error)
	}

	if result.RowsAffected == 0 {
		var count int64
		if err := db.Model(&Models.Task{}).Where("id = ?", taskID).Count(&count).Error; err != nil {
			return Models.Task{}, fmt.Errorf("checking task %s: %w", taskID, err)
		}
		if count == 0 {
			return Models.Task{}, ErrTaskNotFound
		}
		return Models.Task{}, ErrConcurrentCarryForward
	}

	var task Models.Task
	err := db.Preload("Project").Preload("AssignedTo").First(&task, "id = ?", taskID).Error
	if err != nil {
		return Models.Task{}, fmt.Errorf("reloading task %s: %w", taskID, err)
	}
	return task, nil
}

func (s *GormStore) FindCarriedForwardTasks(ctx context.Context, filter CarriedForwardFilter) ([]Models.Task, int64, error) {
	db := s.DB.WithContext(ctx)

	query := db.Model(&Models.Task{}).
		Where("is_carried_forward = ?", true).
		Where("project_id IN (?)", db.Model(&Models.Project{}).Select("id").Where("company_id = ?", filter.CompanyID))
	if filter.ProjectID != "" {
		query = query.Where("project_id = ?", filter.ProjectID)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("counting carried-forward tasks: %w", err)
	}

	var tasks []Models.Task
	err := query.Session(&gorm.Session{}).
		Preload("Project").
		Preload("AssignedTo").
		Preload("CreatedBy").
		Order("updated_at DESC").
		Order("id").
		Limit(filter.Limit).
		Offset(filter.Offset()).
		Find(&tasks).Error
	if err != nil {
		return nil, 0, fmt.Errorf("listing carried-forward tasks: %w", err)
	}
	return tasks, total, nil
}

// SaveTransition persists the fields a state-machine transition touches,
// conditional on the task still being in status from. Losing that race
// is reported as an invalid transition.
func (s *GormStore) SaveTransition(ctx context.Context, task *Models.Task, from Models.TaskStatus) error {
	task.NormalizeTimes()
	result := s.DB.WithContext(ctx).
		Model(&Models.Task{}).
		Where("id = ? AND status = ?", task.ID, from).
		Select("status", "actual_start_time", "actual_completed_time", "completed_at", "reviewed_at", "reviewed_by_id", "updated_at").
		Updates(task)
	if result.Error != nil {
		return fmt.Errorf("saving task %s: %w", task.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return &TransitionError{Action: "update", From: string(from), Reason: "task was modified concurrently"}
	}
	return nil
}

// IsNotFound reports whether err is a missing-row error from the store.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrTaskNotFound) || errors.Is(err, gorm.ErrRecordNotFound)
}
