package models

// Tournament statuses
const (
	TournamentRegistration = "REGISTRATION"
	TournamentInProgress   = "IN_PROGRESS"
	TournamentCompleted    = "COMPLETED"
)

// Tournament formats
const (
	FormatSingleElim = "SINGLE_ELIM"
	FormatRoundRobin = "ROUND_ROBIN"
)

// Tournament composes many fights into an elimination ladder. EntryCount is a
// counter column guarded with an atomic conditional update so two joins racing
// for the last slot cannot both win; status advances to IN_PROGRESS exactly
// once, the instant entries reach capacity.
type Tournament struct {
	ID          string `json:"id" gorm:"primaryKey"`
	Name        string `json:"name" gorm:"not null"`
	Slug        string `json:"slug" gorm:"index"`
	Topic       string `json:"topic" gorm:"not null"`
	Description string `json:"description,omitempty" gorm:"type:text"`
	Format      string `json:"format" gorm:"default:'SINGLE_ELIM'"`

	MaxEntrants    int     `json:"max_entrants" gorm:"default:8"`
	EntryCount     int     `json:"entry_count" gorm:"default:0"`
	EntryFeeUsdc   float64 `json:"entry_fee_usdc" gorm:"default:0"`
	PrizePoolUsdc  float64 `json:"prize_pool_usdc" gorm:"default:0"`
	RoundsPerMatch int     `json:"rounds_per_match" gorm:"default:3"`

	Status   string  `json:"status" gorm:"default:'REGISTRATION';index"`
	WinnerID *string `json:"winner_id,omitempty"`
	TxHash   string  `json:"tx_hash,omitempty"`

	Entries []TournamentEntry `json:"entries,omitempty" gorm:"foreignKey:TournamentID"`
	Matches []BracketMatch    `json:"matches,omitempty" gorm:"foreignKey:TournamentID"`

	Timestamps
}

// TournamentEntry is one agent's registration. Seed stays nil until bracket
// generation; Eliminated only ever flips false→true.
type TournamentEntry struct {
	ID           string `json:"id" gorm:"primaryKey"`
	TournamentID string `json:"tournament_id" gorm:"not null;uniqueIndex:idx_tournament_agent"`
	AgentID      string `json:"agent_id" gorm:"not null;uniqueIndex:idx_tournament_agent"`
	Seed         *int   `json:"seed,omitempty"`
	Eliminated   bool   `json:"eliminated" gorm:"default:false"`
	EntryTxHash  string `json:"entry_tx_hash,omitempty"`

	Agent Agent `json:"agent,omitempty" gorm:"foreignKey:AgentID"`

	Timestamps
}

// BracketMatch statuses
const (
	MatchPending   = "PENDING"
	MatchBye       = "BYE"
	MatchActive    = "ACTIVE"
	MatchCompleted = "COMPLETED"
)

// BracketMatch is one node of the elimination tree. First-round matches are
// created PENDING with both slots filled, or BYE with exactly one slot filled
// and its occupant pre-declared winner; later rounds start PENDING with both
// slots empty and fill via advancement. The Fight link is by id only; the
// match and the fight never own each other.
type BracketMatch struct {
	ID           string `json:"id" gorm:"primaryKey"`
	TournamentID string `json:"tournament_id" gorm:"not null;uniqueIndex:idx_bracket_slot"`
	BracketRound int    `json:"bracket_round" gorm:"not null;uniqueIndex:idx_bracket_slot"`
	MatchNumber  int    `json:"match_number" gorm:"not null;uniqueIndex:idx_bracket_slot"`

	AgentAID *string `json:"agent_a_id,omitempty"`
	AgentBID *string `json:"agent_b_id,omitempty"`
	WinnerID *string `json:"winner_id,omitempty"`
	FightID  *string `json:"fight_id,omitempty" gorm:"index"`

	Status string `json:"status" gorm:"default:'PENDING'"`

	Timestamps
}
