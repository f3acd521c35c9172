package Models

import (
	"time"

	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "PENDING"
	TaskStatusInProgress TaskStatus = "IN_PROGRESS"
	TaskStatusCompleted  TaskStatus = "COMPLETED"
	TaskStatusReviewed   TaskStatus = "REVIEWED"
)

// Valid reports whether s is one of the four known statuses.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusReviewed:
		return true
	}
	return false
}

// Open reports whether work on the task is still outstanding.
func (s TaskStatus) Open() bool {
	return s == TaskStatusPending || s == TaskStatusInProgress
}

// Done reports whether the task has been delivered (reviewed or not).
func (s TaskStatus) Done() bool {
	return s == TaskStatusCompleted || s == TaskStatusReviewed
}

type TaskType string

const (
	TaskTypeFeature TaskType = "FEATURE"
	TaskTypeBug     TaskType = "BUG"
)

// Task is a unit of work inside a project. StartTime/EndTime is the
// scheduled window; the Actual* fields record execution and are never
// touched by the carry-forward job.
type Task struct {
	Base
	Title       string     `json:"title" gorm:"not null"`
	Description *string    `json:"description"`
	Type        TaskType   `json:"type" gorm:"type:varchar(16);not null"`
	Status      TaskStatus `json:"status" gorm:"type:varchar(16);not null;default:PENDING;index"`

	StartTime           time.Time  `json:"startTime" gorm:"not null"`
	EndTime             time.Time  `json:"endTime" gorm:"not null;index"`
	ActualStartTime     *time.Time `json:"actualStartTime"`
	ActualCompletedTime *time.Time `json:"actualCompletedTime"`

	IsCarriedForward bool       `json:"isCarriedForward" gorm:"not null;default:false;index"`
	OriginalDueDate  *time.Time `json:"originalDueDate"`

	CompletedAt *time.Time `json:"completedAt"`
	ReviewedAt  *time.Time `json:"reviewedAt"`

	ProjectID    string   `json:"projectId" gorm:"type:varchar(36);not null;index"`
	Project      *Project `json:"project,omitempty" gorm:"foreignKey:ProjectID;constraint:OnDelete:CASCADE"`
	CreatedByID  string   `json:"createdById" gorm:"type:varchar(36);not null"`
	CreatedBy    *User    `json:"createdBy,omitempty" gorm:"foreignKey:CreatedByID"`
	AssignedToID *string  `json:"assignedToId" gorm:"type:varchar(36);index"`
	AssignedTo   *User    `json:"assignedTo,omitempty" gorm:"foreignKey:AssignedToID"`
	ReviewedByID *string  `json:"reviewedById" gorm:"type:varchar(36)"`
	ReviewedBy   *User    `json:"reviewedBy,omitempty" gorm:"foreignKey:ReviewedByID"`
}

// Duration is the allocated time of the scheduled window.
func (t Task) Duration() time.Duration {
	return t.EndTime.Sub(t.StartTime)
}

// BeforeSave stores every timestamp as UTC. SQLite keeps times as text,
// so mixed offsets would break end_time comparisons.
func (t *Task) BeforeSave(tx *gorm.DB) error {
	t.NormalizeTimes()
	return nil
}

// NormalizeTimes converts the task's timestamps to UTC in place.
func (t *Task) NormalizeTimes() {
	t.StartTime = t.StartTime.UTC()
	t.EndTime = t.EndTime.UTC()
	for _, ts := range []**time.Time{&t.ActualStartTime, &t.ActualCompletedTime, &t.OriginalDueDate, &t.CompletedAt, &t.ReviewedAt} {
		*ts = UTCPtr(*ts)
	}
}

// UTCPtr returns a UTC copy of an optional timestamp.
func UTCPtr(ts *time.Time) *time.Time {
	if ts == nil {
		return nil
	}
	utc := ts.UTC()
	return &utc
}

// IsAssignedTo reports whether userID is the task's assignee.
func (t Task) IsAssignedTo(userID string) bool {
	return t.AssignedToID != nil && *t.AssignedToID == userID
}
