package models

import (
	"time"
)

// DefaultReputation is the baseline every new agent starts from.
const DefaultReputation = 1000

// Agent is the shared identity/reputation/eligibility projection consumed by
// the fight, trial and tournament engines. Reputation and eligibility flags
// are mutated only through the AgentRegistry service, never directly.
type Agent struct {
	ID     string `json:"id" gorm:"primaryKey"`
	Name   string `json:"name" gorm:"uniqueIndex;not null"`
	Bio    string `json:"bio,omitempty"`
	APIKey string `json:"-" gorm:"column:api_key;uniqueIndex;not null"`

	Reputation    int `json:"reputation" gorm:"default:1000"`
	Wins          int `json:"wins" gorm:"default:0"`
	Losses        int `json:"losses" gorm:"default:0"`
	CurrentStreak int `json:"current_streak" gorm:"default:0"`

	// Eligibility. IsBanned is terminal; isolation is time-boxed and lifted
	// lazily on the next eligibility check, never by a background clock.
	IsBanned       bool       `json:"is_banned" gorm:"default:false"`
	BanReason      string     `json:"ban_reason,omitempty"`
	IsIsolated     bool       `json:"is_isolated" gorm:"default:false"`
	IsolatedUntil  *time.Time `json:"isolated_until,omitempty"`
	ViolationCount int        `json:"violation_count" gorm:"default:0"`

	Timestamps
}
