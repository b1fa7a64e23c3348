package models

// Entity table names as created by AutoMigrate.
const (
	TableUsers             = "users"
	TableCollectibleTokens = "collectible_tokens"
	TableOpportunities     = "opportunities"
	TableAchievements      = "achievements"
)

// EntityTables lists every table a pending operation may target.
func EntityTables() []string {
	return []string{TableUsers, TableCollectibleTokens, TableOpportunities, TableAchievements}
}
