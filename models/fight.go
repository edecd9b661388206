package models

import (
	"time"
)

// Fight statuses
const (
	FightPending   = "PENDING"
	FightActive    = "ACTIVE"
	FightCompleted = "COMPLETED"
)

// Fight is a two-party, multi-round scored debate. AgentA is always the
// challenger/creator; AgentB joins on accept. PENDING implies AgentB unset;
// ACTIVE implies both sides set and 1 <= CurrentRound <= TotalRounds;
// COMPLETED is terminal with Winner set.
type Fight struct {
	ID           string  `json:"id" gorm:"primaryKey"`
	Topic        string  `json:"topic" gorm:"not null"`
	AgentAID     string  `json:"agent_a_id" gorm:"not null;index"`
	AgentBID     *string `json:"agent_b_id,omitempty" gorm:"index"`
	TotalRounds  int     `json:"total_rounds" gorm:"default:3"`
	CurrentRound int     `json:"current_round" gorm:"default:0"`
	Status       string  `json:"status" gorm:"default:'PENDING';index"`
	WinnerID     *string `json:"winner_id,omitempty"`

	// Back-references resolved by id lookup, never mutual ownership.
	TournamentID   *string `json:"tournament_id,omitempty" gorm:"index"`
	BracketMatchID *string `json:"bracket_match_id,omitempty" gorm:"index"`

	// Optional anchoring reference for the completion record.
	TxHash string `json:"tx_hash,omitempty"`

	AgentA Agent   `json:"agent_a,omitempty" gorm:"foreignKey:AgentAID"`
	AgentB *Agent  `json:"agent_b,omitempty" gorm:"foreignKey:AgentBID"`
	Rounds []Round `json:"rounds,omitempty" gorm:"foreignKey:FightID"`

	Timestamps
}

// Round is one scored exchange within a Fight. It stays open for argument
// submission until both arguments exist, then is scored exactly once and
// becomes immutable (CompletedAt set).
type Round struct {
	ID          string `json:"id" gorm:"primaryKey"`
	FightID     string `json:"fight_id" gorm:"not null;uniqueIndex:idx_fight_round"`
	RoundNumber int    `json:"round_number" gorm:"not null;uniqueIndex:idx_fight_round"`

	ScoreA *float64 `json:"score_a,omitempty"`
	ScoreB *float64 `json:"score_b,omitempty"`

	LogicA    float64 `json:"logic_a"`
	LogicB    float64 `json:"logic_b"`
	EvidenceA float64 `json:"evidence_a"`
	EvidenceB float64 `json:"evidence_b"`
	RebuttalA float64 `json:"rebuttal_a"`
	RebuttalB float64 `json:"rebuttal_b"`
	ClarityA  float64 `json:"clarity_a"`
	ClarityB  float64 `json:"clarity_b"`

	JuryReasoning string     `json:"jury_reasoning,omitempty" gorm:"type:text"`
	CompletedAt   *time.Time `json:"completed_at,omitempty"`

	Arguments []Argument `json:"arguments,omitempty" gorm:"foreignKey:RoundID"`

	Timestamps
}

// Argument is one side's text for one round. The (fight, round, agent)
// uniqueness is enforced at the store so a duplicate submission loses the
// race with a defined rejection instead of a silent overwrite.
type Argument struct {
	ID          string `json:"id" gorm:"primaryKey"`
	FightID     string `json:"fight_id" gorm:"not null;uniqueIndex:idx_fight_round_agent"`
	RoundID     string `json:"round_id" gorm:"not null;index"`
	RoundNumber int    `json:"round_number" gorm:"not null;uniqueIndex:idx_fight_round_agent"`
	AgentID     string `json:"agent_id" gorm:"not null;uniqueIndex:idx_fight_round_agent"`
	Content     string `json:"content" gorm:"type:text;not null"`

	Timestamps
}
