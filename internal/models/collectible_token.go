package models

import "gorm.io/datatypes"

// CollectibleToken is a token owned or listed by a user.
type CollectibleToken struct {
	BaseModel

	OwnerID    string         `gorm:"index;size:64;not null" json:"owner_id"`
	Collection string         `gorm:"index;size:128" json:"collection"`
	TokenID    string         `gorm:"size:128" json:"token_id"`
	Name       string         `json:"name"`
	ImageURL   string         `json:"image_url"`
	Listed     bool           `gorm:"index" json:"listed"`
	PriceWei   string         `json:"price_wei"`
	Metadata   datatypes.JSON `json:"metadata"`
}
