package model

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// RetryStatus represents the processing status of a retry task
type RetryStatus string

const (
	RetryStatusPending    RetryStatus = "pending"
	RetryStatusInProgress RetryStatus = "in_progress"
	RetryStatusSucceeded  RetryStatus = "succeeded"
	RetryStatusFailed     RetryStatus = "failed"
)

// Scan implements sql.Scanner interface
func (s *RetryStatus) Scan(src interface{}) error {
	switch v := src.(type) {
	case string:
		*s = RetryStatus(v)
	case []byte:
		*s = RetryStatus(v)
	default:
		*s = RetryStatusPending
	}
	return nil
}

// Value implements driver.Valuer interface
func (s RetryStatus) Value() (driver.Value, error) {
	return string(s), nil
}

// RetryTask is a durable unit of asynchronous work with at-least-once
// delivery semantics. The operation type tag is resolved to a registered
// handler at processing time.
type RetryTask struct {
	ID            string      `gorm:"primaryKey;size:64" json:"id"`
	OperationID   string      `gorm:"not null;size:128;index" json:"operation_id"`
	OperationType string      `gorm:"not null;size:100;index" json:"operation_type"`
	Payload       JSONB       `gorm:"type:jsonb;not null" json:"payload"`
	Metadata      JSONB       `gorm:"type:jsonb" json:"metadata,omitempty"`
	Status        RetryStatus `gorm:"type:retry_status;default:'pending';index" json:"status"`
	RetryCount    int         `gorm:"default:0" json:"retry_count"`
	MaxRetries    int         `gorm:"default:5" json:"max_retries"`
	LastError     *string     `json:"last_error,omitempty"`
	NextAttemptAt time.Time   `gorm:"not null;index" json:"next_attempt_at"`
	StartedAt     *time.Time  `json:"started_at,omitempty"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
	CreatedAt     time.Time   `gorm:"default:now()" json:"created_at"`
	UpdatedAt     time.Time   `gorm:"default:now()" json:"updated_at"`
}

// TableName specifies the table name for GORM
func (RetryTask) TableName() string {
	return "retry_tasks"
}

// JSONB represents a JSONB database type
type JSONB map[string]interface{}

// Value implements driver.Valuer interface
func (j JSONB) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements sql.Scanner interface
func (j *JSONB) Scan(src interface{}) error {
	if src == nil {
		*j = nil
		return nil
	}

	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, j)
	case string:
		return json.Unmarshal([]byte(v), j)
	default:
		*j = make(JSONB)
		return nil
	}
}
