// moltcourt-arena/services/trial_service.go
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

// TrialPolicy bounds the filing/voting/verdict protocol.
type TrialPolicy struct {
	VotingWindow       time.Duration
	VoteQuorum         int
	MinVoterReputation int
	MinEvidenceChars   int
	AppealStakeUsdc    float64
	EscalationFeeUsdc  float64
}

func DefaultTrialPolicy() TrialPolicy {
	return TrialPolicy{
		VotingWindow:       24 * time.Hour,
		VoteQuorum:         10,
		MinVoterReputation: 500,
		MinEvidenceChars:   20,
		AppealStakeUsdc:    2.00,
		EscalationFeeUsdc:  5.00,
	}
}

var validViolations = map[string]bool{
	models.ViolationSpam:          true,
	models.ViolationHarassment:    true,
	models.ViolationManipulation:  true,
	models.ViolationImpersonation: true,
	models.ViolationOther:         true,
}

// TrialService owns the filing/voting/verdict/appeal/escalation state machine
// and applies penalties through the agent registry. Deadlines are evaluated
// lazily at vote arrival; the sweep worker closes the gap for trials whose
// deadline passes with no further votes.
type TrialService struct {
	DB       *gorm.DB
	Registry *AgentRegistry
	Jury     Jury
	Gateway  PaymentGateway
	Anchor   Anchor
	Policy   TrialPolicy
}

func NewTrialService(db *gorm.DB, registry *AgentRegistry, jury Jury, gateway PaymentGateway, anchor Anchor) *TrialService {
	return &TrialService{
		DB:       db,
		Registry: registry,
		Jury:     jury,
		Gateway:  gateway,
		Anchor:   anchor,
		Policy:   DefaultTrialPolicy(),
	}
}

// File opens a trial against the named agent and starts the voting window.
// An accused agent can face at most one non-terminal trial at a time.
func (s *TrialService) File(filerID, accusedName, violation, evidence, evidenceLinks string) (*models.Trial, error) {
	if !validViolations[violation] {
		return nil, validationErr("violation must be: spam, harassment, manipulation, impersonation, or other")
	}
	if len(evidence) < s.Policy.MinEvidenceChars {
		return nil, validationErr("evidence must be at least %d characters", s.Policy.MinEvidenceChars)
	}

	accused, err := s.Registry.GetByName(accusedName)
	if err != nil {
		return nil, err
	}
	if accused.ID == filerID {
		return nil, validationErr("cannot file a trial against yourself")
	}

	trial := &models.Trial{
		ID:            uuid.NewString(),
		AccusedID:     accused.ID,
		FilerID:       filerID,
		Violation:     violation,
		Evidence:      evidence,
		EvidenceLinks: evidenceLinks,
		Status:        models.TrialVoting,
		VotingEndsAt:  time.Now().Add(s.Policy.VotingWindow),
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		var active int64
		if err := tx.Model(&models.Trial{}).
			Where("accused_id = ? AND status IN ?", accused.ID,
				[]string{models.TrialVoting, models.TrialDeliberation}).
			Count(&active).Error; err != nil {
			return err
		}
		if active > 0 {
			return conflictErr("an active trial already exists for this agent")
		}
		return tx.Create(trial).Error
	})
	if err != nil {
		return nil, err
	}
	return trial, nil
}

// VoteResult reports the tally after a vote, and the trial outcome when the
// vote tipped it into deliberation.
type VoteResult struct {
	TotalVotes int    `json:"total_votes"`
	Guilty     int    `json:"guilty"`
	NotGuilty  int    `json:"not_guilty"`
	Abstain    int    `json:"abstain"`
	Resolved   bool   `json:"resolved"`
	Verdict    string `json:"verdict,omitempty"`
	Penalty    string `json:"penalty,omitempty"`
	Reasoning  string `json:"reasoning,omitempty"`
}

// Vote records one agent's vote. The vote insert and tally increment commit
// together; quorum (or an elapsed deadline) is observed only here, at vote
// arrival, and the observing vote claims the VOTING→DELIBERATION transition
// atomically before deliberation runs.
func (s *TrialService) Vote(trialID, voterID, choice, reasoning string) (*VoteResult, error) {
	switch choice {
	case models.VoteGuilty, models.VoteNotGuilty, models.VoteAbstain:
	default:
		return nil, validationErr("vote must be GUILTY, NOT_GUILTY, or ABSTAIN")
	}

	trial, err := s.getTrial(trialID)
	if err != nil {
		return nil, err
	}
	if trial.Status != models.TrialVoting {
		return nil, conflictErr("voting period is over")
	}
	if trial.AccusedID == voterID || trial.FilerID == voterID {
		return nil, forbiddenErr("cannot vote on a trial you're involved in")
	}

	voter, err := s.Registry.GetByID(voterID)
	if err != nil {
		return nil, err
	}
	if voter.Reputation < s.Policy.MinVoterReputation {
		return nil, forbiddenErr("minimum %d reputation required to vote", s.Policy.MinVoterReputation)
	}

	tallyColumn := map[string]string{
		models.VoteGuilty:    "guilty_votes",
		models.VoteNotGuilty: "innocent_votes",
		models.VoteAbstain:   "abstain_votes",
	}[choice]

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.TrialVote{
			ID:        uuid.NewString(),
			TrialID:   trialID,
			AgentID:   voterID,
			Vote:      choice,
			Reasoning: reasoning,
		}).Error; err != nil {
			if isUniqueViolation(err) {
				return conflictErr("already voted")
			}
			return err
		}
		res := tx.Model(&models.Trial{}).
			Where("id = ? AND status = ?", trialID, models.TrialVoting).
			Update(tallyColumn, gorm.Expr(tallyColumn+" + 1"))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflictErr("voting period is over")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	trial, err = s.getTrial(trialID)
	if err != nil {
		return nil, err
	}
	result := &VoteResult{
		TotalVotes: trial.GuiltyVotes + trial.InnocentVotes + trial.AbstainVotes,
		Guilty:     trial.GuiltyVotes,
		NotGuilty:  trial.InnocentVotes,
		Abstain:    trial.AbstainVotes,
	}

	deadlinePassed := time.Now().After(trial.VotingEndsAt)
	if result.TotalVotes < s.Policy.VoteQuorum && !deadlinePassed {
		return result, nil
	}

	claimed, err := s.claimDeliberation(trialID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		return result, nil
	}

	verdict, err := s.Deliberate(trialID)
	if err != nil {
		return nil, err
	}
	result.Resolved = true
	result.Verdict = verdict.Verdict
	result.Penalty = verdict.Penalty
	result.Reasoning = verdict.Reasoning
	return result, nil
}

// claimDeliberation performs the exactly-once VOTING→DELIBERATION transition.
func (s *TrialService) claimDeliberation(trialID string) (bool, error) {
	res := s.DB.Model(&models.Trial{}).
		Where("id = ? AND status = ?", trialID, models.TrialVoting).
		Update("status", models.TrialDeliberation)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// Deliberate hands the trial to the jury and applies the verdict. The jury
// call runs outside any transaction; the DELIBERATION→VERDICT transition,
// verdict fields and penalty effects commit together afterwards. A jury
// failure leaves the trial in DELIBERATION for the sweep worker to retry.
func (s *TrialService) Deliberate(trialID string) (*TrialDeliberationResult, error) {
	var trial models.Trial
	err := s.DB.
		Preload("Accused").
		Preload("Filer").
		Preload("Votes").
		Preload("Votes.Agent").
		First(&trial, "id = ?", trialID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("trial not found")
		}
		return nil, err
	}
	if trial.Status != models.TrialDeliberation {
		return nil, conflictErr("trial is not in deliberation")
	}

	votes := make([]VoterDigest, 0, len(trial.Votes))
	for _, v := range trial.Votes {
		votes = append(votes, VoterDigest{
			AgentName:  v.Agent.Name,
			Reputation: v.Agent.Reputation,
			Vote:       v.Vote,
			Reasoning:  v.Reasoning,
		})
	}

	verdict, err := s.Jury.DeliberateTrial(TrialDeliberationInput{
		TrialID:           trial.ID,
		AccusedName:       trial.Accused.Name,
		AccusedReputation: trial.Accused.Reputation,
		AccusedViolations: trial.Accused.ViolationCount,
		FilerName:         trial.Filer.Name,
		Violation:         trial.Violation,
		Evidence:          trial.Evidence,
		EvidenceLinks:     trial.EvidenceLinks,
		GuiltyVotes:       trial.GuiltyVotes,
		InnocentVotes:     trial.InnocentVotes,
		AbstainVotes:      trial.AbstainVotes,
		Votes:             votes,
	})
	if err != nil {
		return nil, collaboratorErr("jury deliberation failed", err)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Trial{}).
			Where("id = ? AND status = ?", trialID, models.TrialDeliberation).
			Updates(map[string]interface{}{
				"status":         models.TrialVerdict,
				"verdict":        verdict.Verdict,
				"penalty":        verdict.Penalty,
				"jury_reasoning": verdict.Reasoning,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflictErr("trial verdict was already recorded")
		}
		if verdict.Verdict != models.VerdictGuilty {
			// A non-guilty verdict never mutates the accused.
			return nil
		}
		reason := fmt.Sprintf("Trial %s: %s", trialID, verdict.Reasoning)
		return s.Registry.ApplyPenalty(tx, trial.AccusedID, verdict.Penalty, reason)
	})
	if err != nil {
		return nil, err
	}

	txHash := s.Anchor.Post(AnchorTrialVerdict, map[string]interface{}{
		"trialId":       trial.ID,
		"accusedId":     trial.AccusedID,
		"accusedName":   trial.Accused.Name,
		"violation":     trial.Violation,
		"verdict":       verdict.Verdict,
		"penalty":       verdict.Penalty,
		"guiltyVotes":   trial.GuiltyVotes,
		"innocentVotes": trial.InnocentVotes,
	})
	if txHash != "" {
		if err := s.DB.Model(&models.Trial{}).Where("id = ?", trialID).
			Update("tx_hash", txHash).Error; err != nil {
			log.Printf("[Trial] failed to record anchor tx for %s: %v", trialID, err)
		}
	}

	return verdict, nil
}

// Appeal moves a VERDICT trial to APPEALED, once, for the accused only, after
// the stake settles through the payment gateway. Settlement happens before
// the transition commits; no recorded-but-unsettled stake can survive.
func (s *TrialService) Appeal(trialID, agentID, paymentAssertion, resource string) (*models.Trial, error) {
	trial, err := s.getTrial(trialID)
	if err != nil {
		return nil, err
	}
	if trial.Status != models.TrialVerdict {
		return nil, conflictErr("trial is not in verdict stage")
	}
	if trial.AccusedID != agentID {
		return nil, forbiddenErr("only the accused can appeal")
	}
	if trial.IsAppealed {
		return nil, conflictErr("already appealed")
	}

	settle, err := s.settle(paymentAssertion, s.Policy.AppealStakeUsdc, resource, "appeal")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Trial{}).
			Where("id = ? AND status = ? AND is_appealed = ?", trialID, models.TrialVerdict, false).
			Updates(map[string]interface{}{
				"status":            models.TrialAppealed,
				"is_appealed":       true,
				"appeal_stake_usdc": s.Policy.AppealStakeUsdc,
				"appeal_tx_hash":    settle.TxHash,
				"appealed_at":       now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflictErr("already appealed")
		}
		return tx.Create(&models.Payment{
			ID:            uuid.NewString(),
			AgentID:       agentID,
			Type:          models.PaymentTrialAppeal,
			AmountUsdc:    s.Policy.AppealStakeUsdc,
			Status:        "SETTLED",
			TxHash:        settle.TxHash,
			ReferenceID:   trialID,
			ReferenceType: "TRIAL",
			SettledAt:     &now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.getTrial(trialID)
}

// Escalate moves an APPEALED trial to ESCALATED, once, for the accused only,
// after the fee settles. Deliberation beyond this point belongs to an
// out-of-band human process; the engine's job ends at recording the state
// and the fee.
func (s *TrialService) Escalate(trialID, agentID, paymentAssertion, resource string) (*models.Trial, error) {
	trial, err := s.getTrial(trialID)
	if err != nil {
		return nil, err
	}
	if trial.Status != models.TrialAppealed {
		return nil, conflictErr("must appeal first")
	}
	if trial.AccusedID != agentID {
		return nil, forbiddenErr("only the accused can escalate")
	}
	if trial.EscalatedToHuman {
		return nil, conflictErr("already escalated")
	}

	settle, err := s.settle(paymentAssertion, s.Policy.EscalationFeeUsdc, resource, "escalation")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Trial{}).
			Where("id = ? AND status = ? AND escalated_to_human = ?", trialID, models.TrialAppealed, false).
			Updates(map[string]interface{}{
				"status":              models.TrialEscalated,
				"escalated_to_human":  true,
				"escalation_fee_usdc": s.Policy.EscalationFeeUsdc,
				"escalation_tx_hash":  settle.TxHash,
				"escalated_at":        now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflictErr("already escalated")
		}
		return tx.Create(&models.Payment{
			ID:            uuid.NewString(),
			AgentID:       agentID,
			Type:          models.PaymentEscalationFee,
			AmountUsdc:    s.Policy.EscalationFeeUsdc,
			Status:        "SETTLED",
			TxHash:        settle.TxHash,
			ReferenceID:   trialID,
			ReferenceType: "TRIAL",
			SettledAt:     &now,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.getTrial(trialID)
}

// settle runs a payment assertion through the gateway and maps the outcome
// into the engine's error taxonomy.
func (s *TrialService) settle(assertion string, amount float64, resource, what string) (*SettleResult, error) {
	if assertion == "" {
		return nil, paymentRequiredErr("payment required to %s", what)
	}
	settle, err := s.Gateway.SettlePayment(assertion, amount, resource)
	if err != nil {
		return nil, collaboratorErr("payment gateway failed", err)
	}
	if !settle.Settled {
		return nil, paymentRequiredErr("payment not settled: %s", settle.ErrorReason)
	}
	return settle, nil
}

// SweepStalled resolves trials the lazy vote-driven clock cannot: VOTING
// trials whose deadline elapsed with no further votes, and DELIBERATION
// trials stranded by an earlier jury failure.
func (s *TrialService) SweepStalled() {
	var expired []models.Trial
	if err := s.DB.Where("status = ? AND voting_ends_at <= ?", models.TrialVoting, time.Now()).
		Find(&expired).Error; err != nil {
		log.Printf("[TrialSweep] query failed: %v", err)
		return
	}
	for _, t := range expired {
		claimed, err := s.claimDeliberation(t.ID)
		if err != nil {
			log.Printf("[TrialSweep] claim failed for %s: %v", t.ID, err)
			continue
		}
		if !claimed {
			continue
		}
		if _, err := s.Deliberate(t.ID); err != nil {
			log.Printf("[TrialSweep] deliberation failed for %s: %v", t.ID, err)
		}
	}

	var stalled []models.Trial
	if err := s.DB.Where("status = ?", models.TrialDeliberation).Find(&stalled).Error; err != nil {
		log.Printf("[TrialSweep] query failed: %v", err)
		return
	}
	for _, t := range stalled {
		if _, err := s.Deliberate(t.ID); err != nil {
			log.Printf("[TrialSweep] retry failed for %s: %v", t.ID, err)
		}
	}
}

// Get returns a trial with participants and votes.
func (s *TrialService) Get(trialID string) (*models.Trial, error) {
	var trial models.Trial
	err := s.DB.
		Preload("Accused").
		Preload("Filer").
		Preload("Votes").
		First(&trial, "id = ?", trialID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("trial not found")
		}
		return nil, err
	}
	return &trial, nil
}

// List returns recent trials, newest first.
func (s *TrialService) List(limit int) ([]models.Trial, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	var trials []models.Trial
	err := s.DB.Preload("Accused").Preload("Filer").
		Order("created_at DESC").Limit(limit).
		Find(&trials).Error
	return trials, err
}

func (s *TrialService) getTrial(trialID string) (*models.Trial, error) {
	var trial models.Trial
	if err := s.DB.First(&trial, "id = ?", trialID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("trial not found")
		}
		return nil, err
	}
	return &trial, nil
}
