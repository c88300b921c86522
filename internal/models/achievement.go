package models

import (
	"time"
)

// Achievement is a badge definition from the catalog.
// UnlockCriteria is stored as-is and never evaluated by the service.
type Achievement struct {
	ID             string         `json:"id"`
	BadgeName      string         `json:"badge_name"`
	Description    string         `json:"description"`
	IconName       string         `json:"icon_name"`
	Category       string         `json:"category"`
	UnlockCriteria map[string]any `json:"unlock_criteria"`
	CreatedAt      time.Time      `json:"created_at"`
}

// UserAchievement marks an achievement as earned by a user
type UserAchievement struct {
	ID            string    `json:"id"`
	UserID        string    `json:"user_id"`
	AchievementID string    `json:"achievement_id"`
	EarnedAt      time.Time `json:"earned_at"`
}
