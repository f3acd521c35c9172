package Models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role string

const (
	RoleManager  Role = "MANAGER"
	RoleEmployee Role = "EMPLOYEE"
)

type User struct {
	Base
	Name               string     `json:"name" gorm:"not null"`
	Email              string     `json:"email" gorm:"type:varchar(255);not null;uniqueIndex"`
	Password           string     `json:"-" gorm:"not null"`
	Role               Role       `json:"role" gorm:"type:varchar(16);not null;index"`
	IsActive           bool       `json:"isActive" gorm:"not null;default:false"`
	CompanyID          string     `json:"companyId" gorm:"type:varchar(36);not null;index"`
	TempPassword       *string    `json:"-"`
	TempPasswordExpiry *time.Time `json:"-"`
}

func (u User) IsManager() bool {
	return u.Role == RoleManager
}

func (u User) IsEmployee() bool {
	return u.Role == RoleEmployee
}

// SessionUser is the trimmed user kept in the session cache and in
// request locals.
type SessionUser struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Email     string `json:"email"`
	Role      Role   `json:"role"`
	IsActive  bool   `json:"isActive"`
	CompanyID string `json:"companyId"`
}

func (u User) Session() SessionUser {
	return SessionUser{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Role:      u.Role,
		IsActive:  u.IsActive,
		CompanyID: u.CompanyID,
	}
}

func (s SessionUser) IsManager() bool {
	return s.Role == RoleManager
}

func (s SessionUser) IsEmployee() bool {
	return s.Role == RoleEmployee
}

type ActivityType string

const (
	ActivityLogin  ActivityType = "LOGIN"
	ActivityLogout ActivityType = "LOGOUT"
)

type UserActivity struct {
	ID        string       `json:"id" gorm:"primaryKey;type:varchar(36)"`
	UserID    string       `json:"userId" gorm:"type:varchar(36);not null;index"`
	Type      ActivityType `json:"type" gorm:"type:varchar(16);not null"`
	IPAddress string       `json:"ipAddress"`
	UserAgent string       `json:"userAgent"`
	Timestamp time.Time    `json:"timestamp" gorm:"autoCreateTime;index"`
}

func (a *UserActivity) BeforeCreate(tx *gorm.DB) error {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	return nil
}
