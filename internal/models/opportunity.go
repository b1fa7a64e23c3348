package models

import (
	"time"

	"gorm.io/datatypes"
)

// Opportunity status values.
const (
	OpportunityOpen   = "open"
	OpportunityClosed = "closed"
	OpportunityDraft  = "draft"
)

// Opportunity is a bounty or collaboration posted to the marketplace.
type Opportunity struct {
	BaseModel

	CreatorID   string         `gorm:"index;size:64;not null" json:"creator_id"`
	Title       string         `gorm:"not null" json:"title"`
	Description string         `json:"description"`
	Status      string         `gorm:"index;size:16;default:open" json:"status"`
	Category    string         `gorm:"index;size:64" json:"category"`
	Reward      string         `json:"reward"`
	ExpiresAt   *time.Time     `json:"expires_at,omitempty"`
	Tags        datatypes.JSON `json:"tags"`
}
