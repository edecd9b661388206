// moltcourt-arena/services/fight_service.go
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

// FightPolicy bounds the round-submission protocol. Observed platform
// defaults, configurable rather than hard law.
type FightPolicy struct {
	MinArgumentChars int
	MaxArgumentChars int
	MinRounds        int
	MaxRounds        int
}

func DefaultFightPolicy() FightPolicy {
	return FightPolicy{
		MinArgumentChars: 50,
		MaxArgumentChars: 5000,
		MinRounds:        1,
		MaxRounds:        5,
	}
}

// FightCompletionEvent is emitted after a fight's terminal commit, for the
// tournament engine and the anchoring sink.
type FightCompletionEvent struct {
	FightID        string
	WinnerID       string
	LoserID        string
	TotalScoreA    float64
	TotalScoreB    float64
	TournamentID   *string
	BracketMatchID *string
}

// FightCompletionHandler receives completion events. The tournament engine
// registers itself here to advance brackets.
type FightCompletionHandler interface {
	OnFightComplete(ev FightCompletionEvent) error
}

// FightService owns the round-progression state machine: challenge, accept,
// argument submission, jury scoring and match aggregation.
type FightService struct {
	DB       *gorm.DB
	Registry *AgentRegistry
	Jury     Jury
	Anchor   Anchor
	Policy   FightPolicy

	completionHandlers []FightCompletionHandler
}

func NewFightService(db *gorm.DB, registry *AgentRegistry, jury Jury, anchor Anchor) *FightService {
	return &FightService{
		DB:       db,
		Registry: registry,
		Jury:     jury,
		Anchor:   anchor,
		Policy:   DefaultFightPolicy(),
	}
}

// OnCompletion registers a handler invoked after every fight completion
// commit.
func (s *FightService) OnCompletion(h FightCompletionHandler) {
	s.completionHandlers = append(s.completionHandlers, h)
}

// Open creates a fight challenge in PENDING with only the challenger side
// set.
func (s *FightService) Open(creatorID, topic string, totalRounds int) (*models.Fight, error) {
	if topic == "" {
		return nil, validationErr("topic is required")
	}
	if totalRounds < s.Policy.MinRounds || totalRounds > s.Policy.MaxRounds {
		return nil, validationErr("total_rounds must be between %d and %d", s.Policy.MinRounds, s.Policy.MaxRounds)
	}

	elig, err := s.Registry.CheckEligibility(creatorID)
	if err != nil {
		return nil, err
	}
	if !elig.Eligible {
		return nil, forbiddenErr("not eligible: %s", elig.Reason)
	}

	fight := &models.Fight{
		ID:          uuid.NewString(),
		Topic:       topic,
		AgentAID:    creatorID,
		TotalRounds: totalRounds,
		Status:      models.FightPending,
	}
	if err := s.DB.Create(fight).Error; err != nil {
		return nil, err
	}
	return fight, nil
}

// Accept joins the challenger side, activates the fight and opens Round 1.
// The PENDING→ACTIVE claim is a guarded update so two simultaneous accepts
// cannot both win.
func (s *FightService) Accept(fightID, challengerID string) (*models.Fight, error) {
	fight, err := s.getFight(fightID)
	if err != nil {
		return nil, err
	}
	if fight.Status != models.FightPending {
		return nil, conflictErr("fight is not open for acceptance")
	}
	if fight.AgentAID == challengerID {
		return nil, validationErr("cannot fight yourself")
	}

	elig, err := s.Registry.CheckEligibility(challengerID)
	if err != nil {
		return nil, err
	}
	if !elig.Eligible {
		return nil, forbiddenErr("not eligible: %s", elig.Reason)
	}

	err = s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Fight{}).
			Where("id = ? AND status = ?", fightID, models.FightPending).
			Updates(map[string]interface{}{
				"agent_b_id":    challengerID,
				"status":        models.FightActive,
				"current_round": 1,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflictErr("fight is not open for acceptance")
		}
		return tx.Create(&models.Round{
			ID:          uuid.NewString(),
			FightID:     fightID,
			RoundNumber: 1,
		}).Error
	})
	if err != nil {
		return nil, err
	}
	return s.getFight(fightID)
}

// SubmitResult reports what a submission did: either the round is waiting for
// the opponent, or it was scored, possibly completing the whole fight.
type SubmitResult struct {
	Waiting   bool     `json:"waiting"`
	Round     int      `json:"round"`
	ScoreA    float64  `json:"score_a,omitempty"`
	ScoreB    float64  `json:"score_b,omitempty"`
	Reasoning string   `json:"jury_reasoning,omitempty"`
	NextRound int      `json:"next_round,omitempty"`
	Completed bool     `json:"completed"`
	WinnerID  string   `json:"winner_id,omitempty"`
	TotalA    float64  `json:"total_a,omitempty"`
	TotalB    float64  `json:"total_b,omitempty"`
}

// startBracketFight creates an already-ACTIVE fight for a bracket match with
// both sides fixed and Round 1 open. Called from within the tournament
// engine's transaction once both match slots are filled.
func (s *FightService) startBracketFight(tx *gorm.DB, tournamentID, matchID, topic string, totalRounds int, agentAID, agentBID string) (*models.Fight, error) {
	fight := &models.Fight{
		ID:             uuid.NewString(),
		Topic:          topic,
		AgentAID:       agentAID,
		AgentBID:       &agentBID,
		TotalRounds:    totalRounds,
		CurrentRound:   1,
		Status:         models.FightActive,
		TournamentID:   &tournamentID,
		BracketMatchID: &matchID,
	}
	if err := tx.Create(fight).Error; err != nil {
		return nil, err
	}
	if err := tx.Create(&models.Round{
		ID:          uuid.NewString(),
		FightID:     fight.ID,
		RoundNumber: 1,
	}).Error; err != nil {
		return nil, err
	}
	return fight, nil
}

// SubmitArgument records one side's argument for the current round. The
// second argument of a round triggers jury scoring synchronously: the
// argument is committed first, the jury is called outside any transaction,
// and the scores plus round/fight advancement land in a second atomic commit.
// If the jury fails, the just-stored argument is removed again so no
// fully-argued-but-unscored round survives.
func (s *FightService) SubmitArgument(fightID string, roundNumber int, agentID, content string) (*SubmitResult, error) {
	if len(content) < s.Policy.MinArgumentChars {
		return nil, validationErr("argument must be at least %d characters", s.Policy.MinArgumentChars)
	}
	if len(content) > s.Policy.MaxArgumentChars {
		return nil, validationErr("argument must be under %d characters", s.Policy.MaxArgumentChars)
	}

	fight, err := s.getFight(fightID)
	if err != nil {
		return nil, err
	}
	if fight.Status != models.FightActive {
		return nil, conflictErr("fight is not active")
	}
	if fight.CurrentRound != roundNumber {
		return nil, conflictErr("current round is %d", fight.CurrentRound)
	}
	isA := fight.AgentAID == agentID
	isB := fight.AgentBID != nil && *fight.AgentBID == agentID
	if !isA && !isB {
		return nil, forbiddenErr("not a participant in this fight")
	}

	var round models.Round
	if err := s.DB.First(&round, "fight_id = ? AND round_number = ?", fightID, roundNumber).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("round %d not found", roundNumber)
		}
		return nil, err
	}
	if round.CompletedAt != nil {
		return nil, conflictErr("round %d is already scored", roundNumber)
	}

	arg := &models.Argument{
		ID:          uuid.NewString(),
		FightID:     fightID,
		RoundID:     round.ID,
		RoundNumber: roundNumber,
		AgentID:     agentID,
		Content:     content,
	}
	if err := s.DB.Create(arg).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, conflictErr("already submitted for round %d", roundNumber)
		}
		return nil, err
	}

	var roundArgs []models.Argument
	if err := s.DB.Where("fight_id = ? AND round_number = ?", fightID, roundNumber).
		Find(&roundArgs).Error; err != nil {
		return nil, err
	}
	if len(roundArgs) < 2 {
		return &SubmitResult{Waiting: true, Round: roundNumber}, nil
	}

	scores, err := s.scoreRound(fight, roundNumber, roundArgs)
	if err != nil {
		// Compensate: the round must not sit fully argued yet unscored.
		if delErr := s.DB.Delete(&models.Argument{}, "id = ?", arg.ID).Error; delErr != nil {
			log.Printf("[Fight] failed to roll back argument %s after jury error: %v", arg.ID, delErr)
		}
		return nil, collaboratorErr("jury scoring failed", err)
	}

	return s.applyRoundScores(fight, &round, scores)
}

// scoreRound calls the jury with both arguments and a digest of prior
// completed rounds. Runs outside any transaction.
func (s *FightService) scoreRound(fight *models.Fight, roundNumber int, args []models.Argument) (*RoundScores, error) {
	var argA, argB *models.Argument
	for i := range args {
		switch {
		case args[i].AgentID == fight.AgentAID:
			argA = &args[i]
		case fight.AgentBID != nil && args[i].AgentID == *fight.AgentBID:
			argB = &args[i]
		}
	}
	if argA == nil || argB == nil {
		return nil, fmt.Errorf("round %d missing a side's argument", roundNumber)
	}

	var priorRounds []models.Round
	if err := s.DB.Where("fight_id = ? AND round_number < ? AND completed_at IS NOT NULL", fight.ID, roundNumber).
		Order("round_number ASC").
		Find(&priorRounds).Error; err != nil {
		return nil, err
	}

	prior := make([]PriorRoundDigest, 0, len(priorRounds))
	for _, r := range priorRounds {
		var prevArgs []models.Argument
		if err := s.DB.Where("fight_id = ? AND round_number = ?", fight.ID, r.RoundNumber).
			Find(&prevArgs).Error; err != nil {
			return nil, err
		}
		digest := PriorRoundDigest{RoundNumber: r.RoundNumber}
		if r.ScoreA != nil {
			digest.ScoreA = *r.ScoreA
		}
		if r.ScoreB != nil {
			digest.ScoreB = *r.ScoreB
		}
		for _, pa := range prevArgs {
			excerpt := truncate(pa.Content, 200)
			if pa.AgentID == fight.AgentAID {
				digest.ExcerptA = excerpt
			} else {
				digest.ExcerptB = excerpt
			}
		}
		prior = append(prior, digest)
	}

	agentA, err := s.Registry.GetByID(fight.AgentAID)
	if err != nil {
		return nil, err
	}
	agentB, err := s.Registry.GetByID(*fight.AgentBID)
	if err != nil {
		return nil, err
	}

	return s.Jury.ScoreRound(RoundScoringInput{
		Topic:       fight.Topic,
		RoundNumber: roundNumber,
		AgentAName:  agentA.Name,
		AgentBName:  agentB.Name,
		ArgumentA:   argA.Content,
		ArgumentB:   argB.Content,
		PriorRounds: prior,
	})
}

// applyRoundScores persists the jury result and advances the round/fight in
// one atomic commit. The guarded update on completed_at makes scoring
// exactly-once even if two submitters raced to be "second".
func (s *FightService) applyRoundScores(fight *models.Fight, round *models.Round, scores *RoundScores) (*SubmitResult, error) {
	scoreA := scores.AgentA.Total()
	scoreB := scores.AgentB.Total()
	result := &SubmitResult{
		Round:     round.RoundNumber,
		ScoreA:    scoreA,
		ScoreB:    scoreB,
		Reasoning: scores.Reasoning,
	}

	var event *FightCompletionEvent
	err := s.DB.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&models.Round{}).
			Where("id = ? AND completed_at IS NULL", round.ID).
			Updates(map[string]interface{}{
				"score_a":        scoreA,
				"score_b":        scoreB,
				"logic_a":        scores.AgentA.Logic,
				"logic_b":        scores.AgentB.Logic,
				"evidence_a":     scores.AgentA.Evidence,
				"evidence_b":     scores.AgentB.Evidence,
				"rebuttal_a":     scores.AgentA.Rebuttal,
				"rebuttal_b":     scores.AgentB.Rebuttal,
				"clarity_a":      scores.AgentA.Clarity,
				"clarity_b":      scores.AgentB.Clarity,
				"jury_reasoning": scores.Reasoning,
				"completed_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflictErr("round %d was already scored", round.RoundNumber)
		}

		if round.RoundNumber < fight.TotalRounds {
			if err := tx.Model(&models.Fight{}).
				Where("id = ?", fight.ID).
				Update("current_round", round.RoundNumber+1).Error; err != nil {
				return err
			}
			if err := tx.Create(&models.Round{
				ID:          uuid.NewString(),
				FightID:     fight.ID,
				RoundNumber: round.RoundNumber + 1,
			}).Error; err != nil {
				return err
			}
			result.NextRound = round.RoundNumber + 1
			return nil
		}

		ev, err := s.completeFight(tx, fight)
		if err != nil {
			return err
		}
		event = ev
		result.Completed = true
		result.WinnerID = ev.WinnerID
		result.TotalA = ev.TotalScoreA
		result.TotalB = ev.TotalScoreB
		return nil
	})
	if err != nil {
		return nil, err
	}

	if event != nil {
		s.emitCompletion(fight, *event)
	}
	return result, nil
}

// completeFight aggregates all round scores, picks the winner (ties resolve
// to side A, a deliberate policy) and applies the registry
// deltas. Runs inside the caller's transaction.
func (s *FightService) completeFight(tx *gorm.DB, fight *models.Fight) (*FightCompletionEvent, error) {
	var rounds []models.Round
	if err := tx.Where("fight_id = ?", fight.ID).Find(&rounds).Error; err != nil {
		return nil, err
	}

	var totalA, totalB float64
	for _, r := range rounds {
		if r.ScoreA != nil {
			totalA += *r.ScoreA
		}
		if r.ScoreB != nil {
			totalB += *r.ScoreB
		}
	}

	winnerID := fight.AgentAID
	loserID := *fight.AgentBID
	if totalB > totalA {
		winnerID, loserID = loserID, winnerID
	}

	if err := tx.Model(&models.Fight{}).
		Where("id = ?", fight.ID).
		Updates(map[string]interface{}{
			"status":    models.FightCompleted,
			"winner_id": winnerID,
		}).Error; err != nil {
		return nil, err
	}

	if err := s.Registry.ApplyWin(tx, winnerID); err != nil {
		return nil, err
	}
	if err := s.Registry.ApplyLoss(tx, loserID); err != nil {
		return nil, err
	}

	return &FightCompletionEvent{
		FightID:        fight.ID,
		WinnerID:       winnerID,
		LoserID:        loserID,
		TotalScoreA:    totalA,
		TotalScoreB:    totalB,
		TournamentID:   fight.TournamentID,
		BracketMatchID: fight.BracketMatchID,
	}, nil
}

// emitCompletion anchors the verdict (best-effort) and notifies registered
// handlers after the terminal commit.
func (s *FightService) emitCompletion(fight *models.Fight, ev FightCompletionEvent) {
	agentA, errA := s.Registry.GetByID(fight.AgentAID)
	agentB, errB := s.Registry.GetByID(*fight.AgentBID)
	if errA == nil && errB == nil {
		txHash := s.Anchor.Post(AnchorFightVerdict, map[string]interface{}{
			"fightId":     ev.FightID,
			"topic":       fight.Topic,
			"agentA":      agentA.Name,
			"agentB":      agentB.Name,
			"winnerId":    ev.WinnerID,
			"totalScoreA": ev.TotalScoreA,
			"totalScoreB": ev.TotalScoreB,
			"rounds":      fight.TotalRounds,
		})
		if txHash != "" {
			if err := s.DB.Model(&models.Fight{}).Where("id = ?", ev.FightID).
				Update("tx_hash", txHash).Error; err != nil {
				log.Printf("[Fight] failed to record anchor tx for %s: %v", ev.FightID, err)
			}
		}
	}

	for _, h := range s.completionHandlers {
		if err := h.OnFightComplete(ev); err != nil {
			log.Printf("[Fight] completion handler error for %s: %v", ev.FightID, err)
		}
	}
}

// Get returns a fight with its rounds, arguments and both agents.
func (s *FightService) Get(fightID string) (*models.Fight, error) {
	var fight models.Fight
	err := s.DB.
		Preload("AgentA").
		Preload("AgentB").
		Preload("Rounds", func(db *gorm.DB) *gorm.DB {
			return db.Order("round_number ASC")
		}).
		Preload("Rounds.Arguments").
		First(&fight, "id = ?", fightID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("fight not found")
		}
		return nil, err
	}
	return &fight, nil
}

// ListOpen returns fights waiting for a challenger.
func (s *FightService) ListOpen() ([]models.Fight, error) {
	var fights []models.Fight
	err := s.DB.Preload("AgentA").
		Where("status = ?", models.FightPending).
		Order("created_at DESC").
		Find(&fights).Error
	return fights, err
}

func (s *FightService) getFight(fightID string) (*models.Fight, error) {
	var fight models.Fight
	if err := s.DB.First(&fight, "id = ?", fightID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("fight not found")
		}
		return nil, err
	}
	return &fight, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
