package models

import (
	"time"

	"gorm.io/datatypes"
)

// SyncAction identifies the remote mutation a pending operation represents.
type SyncAction string

const (
	ActionCreate SyncAction = "create"
	ActionUpdate SyncAction = "update"
	ActionDelete SyncAction = "delete"
)

// Valid reports whether the action is one of the supported mutations.
func (a SyncAction) Valid() bool {
	switch a {
	case ActionCreate, ActionUpdate, ActionDelete:
		return true
	default:
		return false
	}
}

// PendingOperation is a local mutation waiting to be applied remotely. IDs are
// monotonic; RetryCount never decreases while the row exists.
type PendingOperation struct {
	ID         uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Action     SyncAction     `gorm:"size:16;not null" json:"action"`
	Table      string         `gorm:"column:entity_table;size:64;index;not null" json:"table"`
	RecordID   string         `gorm:"size:64;index" json:"record_id"`
	Payload    datatypes.JSON `json:"payload"`
	EnqueuedAt time.Time      `gorm:"index;not null" json:"enqueued_at"`
	RetryCount int            `gorm:"not null;default:0" json:"retry_count"`
	LastError  string         `json:"last_error,omitempty"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// DeadLetter keeps an operation that exhausted its retries when dead-lettering is enabled.
type DeadLetter struct {
	ID          uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	OperationID uint64         `gorm:"index;not null" json:"operation_id"`
	Action      SyncAction     `gorm:"size:16;not null" json:"action"`
	Table       string         `gorm:"column:entity_table;size:64;index;not null" json:"table"`
	RecordID    string         `gorm:"size:64;index" json:"record_id"`
	Payload     datatypes.JSON `json:"payload"`
	EnqueuedAt  time.Time      `json:"enqueued_at"`
	RetryCount  int            `json:"retry_count"`
	LastError   string         `json:"last_error"`
	DroppedAt   time.Time      `gorm:"index;not null" json:"dropped_at"`
}
