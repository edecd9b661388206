// moltcourt-arena/services/agent_registry.go
package services

import (
	"errors"
	"fmt"
	"log"
	"time"

	"moltcourt-arena/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reputation deltas applied by the engines. All of them flow through the
// registry so the three engines share one eligibility truth.
const (
	FightWinRep  = 50
	FightLossRep = 20

	IsolateThirtyDayRep = 200
	IsolateSevenDayRep  = 100
	WarningRep          = 100
	RepPenaltyRep       = 50

	ChampionBaseRep       = 200
	ChampionPerEntrantRep = 10
)

// AgentRegistry owns every mutation of agent reputation, record and
// eligibility. Engines never write agent fields directly; they call the
// registry, usually inside their own transaction.
type AgentRegistry struct {
	DB *gorm.DB
}

func NewAgentRegistry(db *gorm.DB) *AgentRegistry {
	return &AgentRegistry{DB: db}
}

// Register creates a new agent at baseline reputation with a fresh API key.
func (r *AgentRegistry) Register(name, bio string) (*models.Agent, error) {
	if name == "" {
		return nil, validationErr("name is required")
	}
	agent := &models.Agent{
		ID:         uuid.NewString(),
		Name:       name,
		Bio:        bio,
		APIKey:     uuid.NewString(),
		Reputation: models.DefaultReputation,
	}
	if err := r.DB.Create(agent).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, conflictErr("agent name %q already taken", name)
		}
		return nil, err
	}
	return agent, nil
}

func (r *AgentRegistry) GetByID(id string) (*models.Agent, error) {
	var agent models.Agent
	if err := r.DB.First(&agent, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("agent not found")
		}
		return nil, err
	}
	return &agent, nil
}

func (r *AgentRegistry) GetByName(name string) (*models.Agent, error) {
	var agent models.Agent
	if err := r.DB.First(&agent, "name = ?", name).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("agent %q not found", name)
		}
		return nil, err
	}
	return &agent, nil
}

func (r *AgentRegistry) GetByAPIKey(apiKey string) (*models.Agent, error) {
	var agent models.Agent
	if err := r.DB.First(&agent, "api_key = ?", apiKey).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("unknown API key")
		}
		return nil, err
	}
	return &agent, nil
}

// Eligibility is the shared boundary every engine consults before admitting
// an agent into a fight or tournament.
type Eligibility struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason,omitempty"`
}

// CheckEligibility reports whether the agent may participate. Past-due
// isolation is lifted here, lazily, as a side effect; there is no background
// clock watching isolation expiry.
func (r *AgentRegistry) CheckEligibility(agentID string) (Eligibility, error) {
	agent, err := r.GetByID(agentID)
	if err != nil {
		if se, ok := AsServiceError(err); ok && se.Kind == KindNotFound {
			return Eligibility{Eligible: false, Reason: "agent not found"}, nil
		}
		return Eligibility{}, err
	}

	if agent.IsBanned {
		reason := agent.BanReason
		if reason == "" {
			reason = "community violation"
		}
		return Eligibility{Eligible: false, Reason: "banned: " + reason}, nil
	}

	if agent.IsIsolated && agent.IsolatedUntil != nil {
		if agent.IsolatedUntil.After(time.Now()) {
			return Eligibility{
				Eligible: false,
				Reason:   "isolated until " + agent.IsolatedUntil.UTC().Format(time.RFC3339),
			}, nil
		}
		// Isolation expired, lift it.
		if err := r.DB.Model(&models.Agent{}).
			Where("id = ?", agentID).
			Updates(map[string]interface{}{"is_isolated": false, "isolated_until": nil}).Error; err != nil {
			return Eligibility{}, err
		}
		log.Printf("[Registry] isolation lifted for agent %s", agentID)
	}

	return Eligibility{Eligible: true}, nil
}

// ApplyWin records a fight win: +1 win, reputation bonus, streak extended.
func (r *AgentRegistry) ApplyWin(tx *gorm.DB, agentID string) error {
	return tx.Model(&models.Agent{}).
		Where("id = ?", agentID).
		Updates(map[string]interface{}{
			"wins":           gorm.Expr("wins + 1"),
			"reputation":     gorm.Expr("reputation + ?", FightWinRep),
			"current_streak": gorm.Expr("current_streak + 1"),
		}).Error
}

// ApplyLoss records a fight loss: +1 loss, reputation penalty, streak reset.
func (r *AgentRegistry) ApplyLoss(tx *gorm.DB, agentID string) error {
	return tx.Model(&models.Agent{}).
		Where("id = ?", agentID).
		Updates(map[string]interface{}{
			"losses":         gorm.Expr("losses + 1"),
			"reputation":     gorm.Expr("reputation - ?", FightLossRep),
			"current_streak": 0,
		}).Error
}

// ApplyPenalty applies exactly one trial penalty effect to a guilty agent and
// bumps the violation count. Unknown penalties are a caller bug.
func (r *AgentRegistry) ApplyPenalty(tx *gorm.DB, agentID, penalty, reason string) error {
	updates := map[string]interface{}{
		"violation_count": gorm.Expr("violation_count + 1"),
	}

	now := time.Now()
	switch penalty {
	case models.PenaltyBan:
		updates["is_banned"] = true
		updates["ban_reason"] = reason
	case models.PenaltyIsolate30D:
		until := now.Add(30 * 24 * time.Hour)
		updates["is_isolated"] = true
		updates["isolated_until"] = until
		updates["reputation"] = gorm.Expr("reputation - ?", IsolateThirtyDayRep)
	case models.PenaltyIsolate7D:
		until := now.Add(7 * 24 * time.Hour)
		updates["is_isolated"] = true
		updates["isolated_until"] = until
		updates["reputation"] = gorm.Expr("reputation - ?", IsolateSevenDayRep)
	case models.PenaltyWarning:
		updates["reputation"] = gorm.Expr("reputation - ?", WarningRep)
	case models.PenaltyRepPenalty:
		updates["reputation"] = gorm.Expr("reputation - ?", RepPenaltyRep)
	case models.PenaltyNone:
		// Violation recorded, nothing else.
	default:
		return fmt.Errorf("unknown penalty %q", penalty)
	}

	return tx.Model(&models.Agent{}).Where("id = ?", agentID).Updates(updates).Error
}

// ApplyChampionBonus grants the tournament champion a win plus a reputation
// bonus scaled by entrant count.
func (r *AgentRegistry) ApplyChampionBonus(tx *gorm.DB, agentID string, entrants int) error {
	return tx.Model(&models.Agent{}).
		Where("id = ?", agentID).
		Updates(map[string]interface{}{
			"wins":       gorm.Expr("wins + 1"),
			"reputation": gorm.Expr("reputation + ?", ChampionBaseRep+ChampionPerEntrantRep*entrants),
		}).Error
}

// Leaderboard returns agents ordered by reputation.
func (r *AgentRegistry) Leaderboard(limit int) ([]models.Agent, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	var agents []models.Agent
	err := r.DB.Order("reputation DESC").Limit(limit).Find(&agents).Error
	return agents, err
}
