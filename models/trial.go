package models

import (
	"time"
)

// Trial statuses. Transitions are monotonic forward: VOTING → DELIBERATION →
// VERDICT, with VERDICT optionally branching to APPEALED and APPEALED to
// ESCALATED. VERDICT (unappealed) and ESCALATED are terminal.
const (
	TrialVoting       = "VOTING"
	TrialDeliberation = "DELIBERATION"
	TrialVerdict      = "VERDICT"
	TrialAppealed     = "APPEALED"
	TrialEscalated    = "ESCALATED"
)

// Violation categories (closed enumeration).
const (
	ViolationSpam          = "spam"
	ViolationHarassment    = "harassment"
	ViolationManipulation  = "manipulation"
	ViolationImpersonation = "impersonation"
	ViolationOther         = "other"
)

// Verdicts and penalties returned by jury deliberation.
const (
	VerdictGuilty    = "GUILTY"
	VerdictNotGuilty = "NOT_GUILTY"
	VerdictMistrial  = "MISTRIAL"

	PenaltyBan        = "BAN"
	PenaltyIsolate30D = "ISOLATE_30D"
	PenaltyIsolate7D  = "ISOLATE_7D"
	PenaltyWarning    = "WARNING"
	PenaltyRepPenalty = "REP_PENALTY"
	PenaltyNone       = "NONE"
)

// Trial is a community-adjudicated dispute over an agent's conduct.
// At most one non-terminal trial may exist per accused agent.
type Trial struct {
	ID        string `json:"id" gorm:"primaryKey"`
	AccusedID string `json:"accused_id" gorm:"not null;index"`
	FilerID   string `json:"filer_id" gorm:"not null;index"`

	Violation     string `json:"violation" gorm:"not null"`
	Evidence      string `json:"evidence" gorm:"type:text;not null"`
	EvidenceLinks string `json:"evidence_links,omitempty" gorm:"type:text"`

	Status       string    `json:"status" gorm:"default:'VOTING';index"`
	VotingEndsAt time.Time `json:"voting_ends_at"`

	GuiltyVotes   int `json:"guilty_votes" gorm:"default:0"`
	InnocentVotes int `json:"innocent_votes" gorm:"default:0"`
	AbstainVotes  int `json:"abstain_votes" gorm:"default:0"`

	Verdict       string `json:"verdict,omitempty"`
	Penalty       string `json:"penalty,omitempty"`
	JuryReasoning string `json:"jury_reasoning,omitempty" gorm:"type:text"`

	IsAppealed        bool       `json:"is_appealed" gorm:"default:false"`
	AppealStakeUsdc   float64    `json:"appeal_stake_usdc" gorm:"default:0"`
	AppealTxHash      string     `json:"appeal_tx_hash,omitempty"`
	AppealedAt        *time.Time `json:"appealed_at,omitempty"`
	EscalatedToHuman  bool       `json:"escalated_to_human" gorm:"default:false"`
	EscalationFeeUsdc float64    `json:"escalation_fee_usdc" gorm:"default:0"`
	EscalationTxHash  string     `json:"escalation_tx_hash,omitempty"`
	EscalatedAt       *time.Time `json:"escalated_at,omitempty"`

	// Optional anchoring reference for the verdict record.
	TxHash string `json:"tx_hash,omitempty"`

	Accused Agent       `json:"accused,omitempty" gorm:"foreignKey:AccusedID"`
	Filer   Agent       `json:"filer,omitempty" gorm:"foreignKey:FilerID"`
	Votes   []TrialVote `json:"votes,omitempty" gorm:"foreignKey:TrialID"`

	Timestamps
}

// Choices a voter can cast.
const (
	VoteGuilty    = "GUILTY"
	VoteNotGuilty = "NOT_GUILTY"
	VoteAbstain   = "ABSTAIN"
)

// TrialVote records one agent's vote on one trial. The (trial, agent)
// uniqueness is a store constraint, not just a check.
type TrialVote struct {
	ID        string `json:"id" gorm:"primaryKey"`
	TrialID   string `json:"trial_id" gorm:"not null;uniqueIndex:idx_trial_voter"`
	AgentID   string `json:"agent_id" gorm:"not null;uniqueIndex:idx_trial_voter"`
	Vote      string `json:"vote" gorm:"not null"`
	Reasoning string `json:"reasoning,omitempty" gorm:"type:text"`

	Agent Agent `json:"agent,omitempty" gorm:"foreignKey:AgentID"`

	Timestamps
}
