package models

import (
	"time"
)

// Payment types
const (
	PaymentTournamentEntry = "TOURNAMENT_ENTRY"
	PaymentTrialAppeal     = "TRIAL_APPEAL"
	PaymentEscalationFee   = "ESCALATION_FEE"
)

// Payment is the ledger record for a settled stake, fee or entry. Rows are
// only written after the gateway reports settlement. A recorded-but-unsettled
// payment must never survive.
type Payment struct {
	ID         string  `json:"id" gorm:"primaryKey"`
	AgentID    string  `json:"agent_id" gorm:"not null;index"`
	Type       string  `json:"type" gorm:"not null"`
	AmountUsdc float64 `json:"amount_usdc" gorm:"not null"`
	Status     string  `json:"status" gorm:"default:'SETTLED'"`
	TxHash     string  `json:"tx_hash,omitempty"`

	// What the payment gated: a trial or a tournament.
	ReferenceID   string `json:"reference_id" gorm:"index"`
	ReferenceType string `json:"reference_type"`

	SettledAt *time.Time `json:"settled_at,omitempty"`

	Timestamps
}
