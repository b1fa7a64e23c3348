package models

import "time"

// Achievement is a badge earned by a user, optionally verified by the remote.
type Achievement struct {
	BaseModel

	UserID   string     `gorm:"index;size:64;not null" json:"user_id"`
	Kind     string     `gorm:"index;size:64;not null" json:"kind"`
	Title    string     `json:"title"`
	Points   int        `json:"points"`
	Verified bool       `gorm:"index" json:"verified"`
	EarnedAt *time.Time `json:"earned_at,omitempty"`
}
