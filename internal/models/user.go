package models

// User is a marketplace account as mirrored on the device.
type User struct {
	BaseModel

	Username      string `gorm:"uniqueIndex;size:128;not null" json:"username"`
	DisplayName   string `json:"display_name"`
	Email         string `gorm:"index;size:255" json:"email"`
	WalletAddress string `gorm:"index;size:128" json:"wallet_address"`
	AvatarURL     string `json:"avatar_url"`
	Bio           string `json:"bio"`
}
