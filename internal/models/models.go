package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

type User struct {
	ID           uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string    `gorm:"size:50;unique;not null"  json:"username"`
	PasswordHash string    `gorm:"not null"                 json:"-"`
	Role         string    `gorm:"size:16;not null"         json:"role"`
	CreatedAt    time.Time `                                json:"createdAt"`
}

type Patient struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"       json:"id"`
	FirstName   string    `gorm:"size:100;not null"              json:"firstName"`
	LastName    string    `gorm:"size:100;not null"              json:"lastName"`
	TCID        string    `gorm:"column:tc_id;size:11;unique;not null" json:"tcId"`
	PhoneNumber string    `gorm:"size:20;not null"               json:"phoneNumber"`
	Department  string    `gorm:"size:100;not null"              json:"department"`
	Complaint   string    `gorm:"type:text;not null"             json:"complaint"`
	CreatedAt   time.Time `gorm:"index"                          json:"createdAt"`
	CreatedBy   uint      `gorm:"index;not null"                 json:"createdBy"`
}

const (
	BackupStatusSuccess = "success"
	BackupStatusError   = "error"
)

type BackupLog struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"  json:"id"`
	Timestamp time.Time `gorm:"autoCreateTime;index"      json:"timestamp"`
	Filename  string    `gorm:"size:255;not null"         json:"filename"`
	Filesize  string    `gorm:"size:50;not null"          json:"filesize"`
	Status    string    `gorm:"size:16;not null"          json:"status"`
	Message   string    `gorm:"type:text;not null"        json:"message"`
}

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobRunning   JobStatus = "running"
	JobSucceeded JobStatus = "succeeded"
	JobFailed    JobStatus = "failed"
)

// Finished reports whether the job reached a terminal state.
func (s JobStatus) Finished() bool {
	return s == JobSucceeded || s == JobFailed
}

type BackupJob struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey"  json:"id"`
	Status      JobStatus  `gorm:"size:16;not null"      json:"status"`
	LogID       *uint      `gorm:"index"                 json:"logId,omitempty"`
	RequestedBy uint       `gorm:"not null"              json:"requestedBy"`
	CreatedAt   time.Time  `                             json:"createdAt"`
	StartedAt   *time.Time `                             json:"startedAt,omitempty"`
	FinishedAt  *time.Time `                             json:"finishedAt,omitempty"`
}

type RevokedToken struct {
	ID        uint      `gorm:"primaryKey"            json:"id"`
	JTI       string    `gorm:"size:64;uniqueIndex;not null" json:"jti"`
	UserID    uint      `gorm:"index;not null"        json:"user_id"`
	ExpiresAt time.Time `gorm:"index;not null"        json:"expires_at"`
}

// Identity is the authenticated caller of a request.
type Identity struct {
	UserID    uint      `json:"id"`
	Username  string    `json:"username"`
	Role      string    `json:"role"`
	JTI       string    `json:"-"`
	ExpiresAt time.Time `json:"-"`
}

func (i Identity) IsAdmin() bool { return i.Role == RoleAdmin }
