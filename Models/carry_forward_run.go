package Models

import (
	"time"

	"gorm.io/datatypes"
)

type RunTrigger string

const (
	RunTriggerScheduled RunTrigger = "SCHEDULED"
	RunTriggerManual    RunTrigger = "MANUAL"
)

// CarryForwardRun is the audit row written after every carry-forward
// sweep. It is never read back to decide eligibility.
type CarryForwardRun struct {
	Base
	Trigger        RunTrigger     `json:"trigger" gorm:"type:varchar(16);not null"`
	TriggeredByID  *string        `json:"triggeredById" gorm:"type:varchar(36)"`
	CompanyID      *string        `json:"companyId" gorm:"type:varchar(36);index"`
	StartedAt      time.Time      `json:"startedAt" gorm:"not null;index"`
	FinishedAt     time.Time      `json:"finishedAt" gorm:"not null"`
	CarriedForward int            `json:"carriedForward"`
	Skipped        int            `json:"skipped"`
	Failed         int            `json:"failed"`
	Error          *string        `json:"error"`
	Failures       datatypes.JSON `json:"failures"`
}
