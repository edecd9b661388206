// moltcourt-arena/services/tournament_service.go
package services

import (
	"errors"
	"log"
	"time"

	"moltcourt-arena/models"

	"github.com/google/uuid"
	"github.com/gosimple/slug"
	"gorm.io/gorm"
)

// TournamentPolicy bounds tournament configuration.
type TournamentPolicy struct {
	MinEntrants        int
	MaxEntrants        int
	DefaultEntrants    int
	MinRoundsPerMatch  int
	MaxRoundsPerMatch  int
	DefaultMatchRounds int
}

func DefaultTournamentPolicy() TournamentPolicy {
	return TournamentPolicy{
		MinEntrants:        4,
		MaxEntrants:        32,
		DefaultEntrants:    8,
		MinRoundsPerMatch:  1,
		MaxRoundsPerMatch:  5,
		DefaultMatchRounds: 3,
	}
}

// TournamentService owns seeding, bracket generation and advancement. It
// registers itself as a fight completion handler so bracket fights feed the
// ladder without the fight engine knowing anything about tournaments.
type TournamentService struct {
	DB       *gorm.DB
	Registry *AgentRegistry
	Fights   *FightService
	Gateway  PaymentGateway
	Anchor   Anchor
	Policy   TournamentPolicy
}

func NewTournamentService(db *gorm.DB, registry *AgentRegistry, fights *FightService, gateway PaymentGateway, anchor Anchor) *TournamentService {
	return &TournamentService{
		DB:       db,
		Registry: registry,
		Fights:   fights,
		Gateway:  gateway,
		Anchor:   anchor,
		Policy:   DefaultTournamentPolicy(),
	}
}

// Create opens a tournament in REGISTRATION and enters the creator as its
// first entrant. Out-of-range entrant counts and match rounds clamp to the
// policy bounds rather than erroring.
func (s *TournamentService) Create(creatorID, name, topic, description, format string, maxEntrants, roundsPerMatch int, entryFeeUsdc float64, paymentAssertion, resource string) (*models.Tournament, error) {
	if name == "" {
		return nil, validationErr("name is required")
	}
	if topic == "" {
		return nil, validationErr("topic is required")
	}
	if entryFeeUsdc < 0 {
		return nil, validationErr("entry_fee_usdc cannot be negative")
	}
	switch format {
	case "":
		format = models.FormatSingleElim
	case models.FormatSingleElim:
	case models.FormatRoundRobin:
		return nil, validationErr("round robin brackets are not supported yet")
	default:
		return nil, validationErr("format must be SINGLE_ELIM or ROUND_ROBIN")
	}

	if maxEntrants == 0 {
		maxEntrants = s.Policy.DefaultEntrants
	}
	if maxEntrants < s.Policy.MinEntrants {
		maxEntrants = s.Policy.MinEntrants
	}
	if maxEntrants > s.Policy.MaxEntrants {
		maxEntrants = s.Policy.MaxEntrants
	}
	if roundsPerMatch == 0 {
		roundsPerMatch = s.Policy.DefaultMatchRounds
	}
	if roundsPerMatch < s.Policy.MinRoundsPerMatch {
		roundsPerMatch = s.Policy.MinRoundsPerMatch
	}
	if roundsPerMatch > s.Policy.MaxRoundsPerMatch {
		roundsPerMatch = s.Policy.MaxRoundsPerMatch
	}

	tournament := &models.Tournament{
		ID:             uuid.NewString(),
		Name:           name,
		Slug:           slug.Make(name),
		Topic:          topic,
		Description:    description,
		Format:         format,
		MaxEntrants:    maxEntrants,
		RoundsPerMatch: roundsPerMatch,
		EntryFeeUsdc:   entryFeeUsdc,
		Status:         models.TournamentRegistration,
	}
	if err := s.DB.Create(tournament).Error; err != nil {
		return nil, err
	}

	if _, err := s.Join(tournament.ID, creatorID, paymentAssertion, resource); err != nil {
		return nil, err
	}
	return s.Get(tournament.ID)
}

// Join enters an agent. The entry fee settles through the gateway before
// anything commits; the entry row and the capacity counter commit together,
// with the counter increment guarded so two joins racing for the last slot
// cannot both win. Reaching capacity generates the bracket synchronously.
func (s *TournamentService) Join(tournamentID, agentID, paymentAssertion, resource string) (*models.Tournament, error) {
	tournament, err := s.getTournament(tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.Status != models.TournamentRegistration {
		return nil, conflictErr("registration is closed")
	}

	elig, err := s.Registry.CheckEligibility(agentID)
	if err != nil {
		return nil, err
	}
	if !elig.Eligible {
		return nil, forbiddenErr("not eligible: %s", elig.Reason)
	}

	var entryTxHash string
	if tournament.EntryFeeUsdc > 0 {
		if paymentAssertion == "" {
			return nil, paymentRequiredErr("entry fee of %.2f USDC required", tournament.EntryFeeUsdc)
		}
		settle, err := s.Gateway.SettlePayment(paymentAssertion, tournament.EntryFeeUsdc, resource)
		if err != nil {
			return nil, collaboratorErr("payment gateway failed", err)
		}
		if !settle.Settled {
			return nil, paymentRequiredErr("payment not settled: %s", settle.ErrorReason)
		}
		entryTxHash = settle.TxHash
	}

	now := time.Now()
	err = s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&models.TournamentEntry{
			ID:           uuid.NewString(),
			TournamentID: tournamentID,
			AgentID:      agentID,
			EntryTxHash:  entryTxHash,
		}).Error; err != nil {
			if isUniqueViolation(err) {
				return conflictErr("already entered")
			}
			return err
		}
		res := tx.Model(&models.Tournament{}).
			Where("id = ? AND status = ? AND entry_count < max_entrants",
				tournamentID, models.TournamentRegistration).
			Updates(map[string]interface{}{
				"entry_count":     gorm.Expr("entry_count + 1"),
				"prize_pool_usdc": gorm.Expr("prize_pool_usdc + ?", tournament.EntryFeeUsdc),
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return conflictErr("tournament is full")
		}
		if tournament.EntryFeeUsdc > 0 {
			return tx.Create(&models.Payment{
				ID:            uuid.NewString(),
				AgentID:       agentID,
				Type:          models.PaymentTournamentEntry,
				AmountUsdc:    tournament.EntryFeeUsdc,
				Status:        "SETTLED",
				TxHash:        entryTxHash,
				ReferenceID:   tournamentID,
				ReferenceType: "TOURNAMENT",
				SettledAt:     &now,
			}).Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	tournament, err = s.getTournament(tournamentID)
	if err != nil {
		return nil, err
	}
	if tournament.EntryCount >= tournament.MaxEntrants {
		if err := s.generateBracket(tournamentID); err != nil {
			return nil, err
		}
	}
	return s.Get(tournamentID)
}

// generateBracket seeds entrants by reputation (entry order breaks ties),
// builds the full elimination tree and starts every first-round fight. The
// REGISTRATION to IN_PROGRESS claim is guarded, so concurrent triggers
// generate the bracket exactly once.
func (s *TournamentService) generateBracket(tournamentID string) error {
	return s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.Tournament{}).
			Where("id = ? AND status = ? AND entry_count >= max_entrants",
				tournamentID, models.TournamentRegistration).
			Update("status", models.TournamentInProgress)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			// Someone else is generating, or registration is still open.
			return nil
		}

		var tournament models.Tournament
		if err := tx.First(&tournament, "id = ?", tournamentID).Error; err != nil {
			return err
		}

		var entries []models.TournamentEntry
		if err := tx.Preload("Agent").
			Where("tournament_id = ?", tournamentID).
			Joins("JOIN agents ON agents.id = tournament_entries.agent_id").
			Order("agents.reputation DESC, tournament_entries.created_at ASC").
			Find(&entries).Error; err != nil {
			return err
		}

		bySeed := make(map[int]*models.TournamentEntry, len(entries))
		for i := range entries {
			seed := i + 1
			entries[i].Seed = &seed
			if err := tx.Model(&models.TournamentEntry{}).
				Where("id = ?", entries[i].ID).
				Update("seed", seed).Error; err != nil {
				return err
			}
			bySeed[seed] = &entries[i]
		}

		size := bracketSize(len(entries))
		totalRounds := bracketRounds(size)

		// Later rounds are empty placeholders that fill via advancement.
		for round := 2; round <= totalRounds; round++ {
			for num := 1; num <= matchesInRound(size, round); num++ {
				if err := tx.Create(&models.BracketMatch{
					ID:           uuid.NewString(),
					TournamentID: tournamentID,
					BracketRound: round,
					MatchNumber:  num,
					Status:       models.MatchPending,
				}).Error; err != nil {
					return err
				}
			}
		}

		type byeAdvance struct {
			matchNumber int
			winnerID    string
		}
		var byes []byeAdvance

		for num, pair := range firstRoundPairs(len(entries)) {
			match := &models.BracketMatch{
				ID:           uuid.NewString(),
				TournamentID: tournamentID,
				BracketRound: 1,
				MatchNumber:  num + 1,
			}
			agentA := bySeed[pair.SeedA].AgentID
			match.AgentAID = &agentA
			if pair.SeedB == 0 {
				match.Status = models.MatchBye
				match.WinnerID = &agentA
				byes = append(byes, byeAdvance{matchNumber: num + 1, winnerID: agentA})
			} else {
				agentB := bySeed[pair.SeedB].AgentID
				match.AgentBID = &agentB
				match.Status = models.MatchActive
				fight, err := s.Fights.startBracketFight(tx, tournamentID, match.ID,
					tournament.Topic, tournament.RoundsPerMatch, agentA, agentB)
				if err != nil {
					return err
				}
				match.FightID = &fight.ID
			}
			if err := tx.Create(match).Error; err != nil {
				return err
			}
		}

		for _, bye := range byes {
			if err := s.advanceSlot(tx, &tournament, 1, bye.matchNumber, bye.winnerID, totalRounds); err != nil {
				return err
			}
		}
		return nil
	})
}

// advanceSlot places a winner into the next round's match. Slot placement is
// a fill-if-empty guarded update, so replaying the same advancement is a
// no-op; when the placement fills both slots the match claims ACTIVE and its
// fight starts inside the same transaction. A winner advancing out of the
// final round is the champion.
func (s *TournamentService) advanceSlot(tx *gorm.DB, tournament *models.Tournament, round, matchNumber int, winnerID string, totalRounds int) error {
	if round >= totalRounds {
		return s.completeTournament(tx, tournament, winnerID)
	}

	nextNumber, fillA := nextMatchSlot(matchNumber)
	var next models.BracketMatch
	if err := tx.First(&next, "tournament_id = ? AND bracket_round = ? AND match_number = ?",
		tournament.ID, round+1, nextNumber).Error; err != nil {
		return err
	}

	column := "agent_b_id"
	if fillA {
		column = "agent_a_id"
	}
	if err := tx.Model(&models.BracketMatch{}).
		Where("id = ? AND "+column+" IS NULL", next.ID).
		Update(column, winnerID).Error; err != nil {
		return err
	}

	if err := tx.First(&next, "id = ?", next.ID).Error; err != nil {
		return err
	}
	if next.AgentAID == nil || next.AgentBID == nil {
		return nil
	}

	res := tx.Model(&models.BracketMatch{}).
		Where("id = ? AND status = ?", next.ID, models.MatchPending).
		Update("status", models.MatchActive)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}

	fight, err := s.Fights.startBracketFight(tx, tournament.ID, next.ID,
		tournament.Topic, tournament.RoundsPerMatch, *next.AgentAID, *next.AgentBID)
	if err != nil {
		return err
	}
	return tx.Model(&models.BracketMatch{}).
		Where("id = ?", next.ID).
		Update("fight_id", fight.ID).Error
}

// completeTournament crowns the champion: status flips to COMPLETED exactly
// once and the champion bonus applies in the same commit.
func (s *TournamentService) completeTournament(tx *gorm.DB, tournament *models.Tournament, championID string) error {
	res := tx.Model(&models.Tournament{}).
		Where("id = ? AND status = ?", tournament.ID, models.TournamentInProgress).
		Updates(map[string]interface{}{
			"status":    models.TournamentCompleted,
			"winner_id": championID,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return nil
	}
	return s.Registry.ApplyChampionBonus(tx, championID, tournament.EntryCount)
}

// OnFightComplete implements FightCompletionHandler. A completed bracket
// fight completes its match, eliminates the loser and advances the winner.
// The COMPLETED claim on the match is guarded, so a replayed event is a
// no-op.
func (s *TournamentService) OnFightComplete(ev FightCompletionEvent) error {
	if ev.BracketMatchID == nil || ev.TournamentID == nil {
		return nil
	}

	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", *ev.TournamentID).Error; err != nil {
		return err
	}
	var match models.BracketMatch
	if err := s.DB.First(&match, "id = ?", *ev.BracketMatchID).Error; err != nil {
		return err
	}
	totalRounds := bracketRounds(bracketSize(tournament.EntryCount))

	err := s.DB.Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&models.BracketMatch{}).
			Where("id = ? AND status = ?", match.ID, models.MatchActive).
			Updates(map[string]interface{}{
				"status":    models.MatchCompleted,
				"winner_id": ev.WinnerID,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		if err := tx.Model(&models.TournamentEntry{}).
			Where("tournament_id = ? AND agent_id = ?", tournament.ID, ev.LoserID).
			Update("eliminated", true).Error; err != nil {
			return err
		}
		return s.advanceSlot(tx, &tournament, match.BracketRound, match.MatchNumber, ev.WinnerID, totalRounds)
	})
	if err != nil {
		return err
	}

	s.anchorIfCompleted(tournament.ID)
	return nil
}

// anchorIfCompleted posts the tournament result once the champion is crowned.
// Best-effort, after the terminal commit.
func (s *TournamentService) anchorIfCompleted(tournamentID string) {
	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		return
	}
	if tournament.Status != models.TournamentCompleted || tournament.WinnerID == nil {
		return
	}

	champion, err := s.Registry.GetByID(*tournament.WinnerID)
	if err != nil {
		return
	}
	txHash := s.Anchor.Post(AnchorTournamentResult, map[string]interface{}{
		"tournamentId": tournament.ID,
		"name":         tournament.Name,
		"champion":     champion.Name,
		"championId":   champion.ID,
		"entrants":     tournament.EntryCount,
		"prizePool":    tournament.PrizePoolUsdc,
	})
	if txHash != "" {
		if err := s.DB.Model(&models.Tournament{}).
			Where("id = ? AND (tx_hash IS NULL OR tx_hash = '')", tournament.ID).
			Update("tx_hash", txHash).Error; err != nil {
			log.Printf("[Tournament] failed to record anchor tx for %s: %v", tournament.ID, err)
		}
	}
}

// Get returns a tournament with entries (by seed) and bracket matches in
// ladder order.
func (s *TournamentService) Get(tournamentID string) (*models.Tournament, error) {
	var tournament models.Tournament
	err := s.DB.
		Preload("Entries", func(db *gorm.DB) *gorm.DB {
			return db.Order("seed ASC")
		}).
		Preload("Entries.Agent").
		Preload("Matches", func(db *gorm.DB) *gorm.DB {
			return db.Order("bracket_round ASC, match_number ASC")
		}).
		First(&tournament, "id = ?", tournamentID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("tournament not found")
		}
		return nil, err
	}
	return &tournament, nil
}

// List returns recent tournaments, newest first.
func (s *TournamentService) List(limit int) ([]models.Tournament, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	var tournaments []models.Tournament
	err := s.DB.Order("created_at DESC").Limit(limit).Find(&tournaments).Error
	return tournaments, err
}

func (s *TournamentService) getTournament(tournamentID string) (*models.Tournament, error) {
	var tournament models.Tournament
	if err := s.DB.First(&tournament, "id = ?", tournamentID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, notFoundErr("tournament not found")
		}
		return nil, err
	}
	return &tournament, nil
}
