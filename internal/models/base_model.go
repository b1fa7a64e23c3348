package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// BaseModel provides the identity, audit timestamps, and sync marker shared by every
// entity table. LastSynced is written only by the sync-success path.
type BaseModel struct {
	ID         string     `gorm:"primaryKey;size:64" json:"id"`
	CreatedAt  time.Time  `gorm:"index" json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	LastSynced *time.Time `gorm:"index" json:"last_synced,omitempty"`
}

// BeforeCreate ensures identifiers are generated for records created locally.
func (m *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	return nil
}

// RecordID returns the primary key of the record.
func (m BaseModel) RecordID() string {
	return m.ID
}

// Synced reports whether the record has ever been confirmed by the remote.
func (m BaseModel) Synced() bool {
	return m.LastSynced != nil && !m.LastSynced.IsZero()
}
