package services

import (
	"fmt"
	"strings"
	"testing"

	"moltcourt-arena/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func fightFixture(t *testing.T) (*gorm.DB, *AgentRegistry, *stubJury, *FightService, *models.Agent, *models.Agent) {
	t.Helper()
	db := newTestDB(t)
	registry := NewAgentRegistry(db)
	jury := &stubJury{}
	svc := NewFightService(db, registry, jury, NoopAnchor{})
	a := mustRegister(t, registry, "alpha")
	b := mustRegister(t, registry, "beta")
	return db, registry, jury, svc, a, b
}

func validArg(tag string) string {
	return tag + ": " + strings.Repeat("a solid point. ", 10)
}

type recordingHandler struct {
	events []FightCompletionEvent
}

func (h *recordingHandler) OnFightComplete(ev FightCompletionEvent) error {
	h.events = append(h.events, ev)
	return nil
}

func TestFightLifecycleAggregatesAcrossRounds(t *testing.T) {
	_, registry, jury, svc, a, b := fightFixture(t)
	jury.scores = []*RoundScores{
		evenScores(3.75, 3.75), // 15 - 15
		evenScores(2, 1.75),    // 8 - 7
	}
	handler := &recordingHandler{}
	svc.OnCompletion(handler)

	fight, err := svc.Open(a.ID, "tabs vs spaces", 2)
	require.NoError(t, err)
	assert.Equal(t, models.FightPending, fight.Status)

	fight, err = svc.Accept(fight.ID, b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FightActive, fight.Status)
	assert.Equal(t, 1, fight.CurrentRound)

	res, err := svc.SubmitArgument(fight.ID, 1, a.ID, validArg("r1a"))
	require.NoError(t, err)
	assert.True(t, res.Waiting)

	res, err = svc.SubmitArgument(fight.ID, 1, b.ID, validArg("r1b"))
	require.NoError(t, err)
	assert.False(t, res.Waiting)
	assert.Equal(t, 15.0, res.ScoreA)
	assert.Equal(t, 15.0, res.ScoreB)
	assert.Equal(t, 2, res.NextRound)
	assert.False(t, res.Completed)

	res, err = svc.SubmitArgument(fight.ID, 2, b.ID, validArg("r2b"))
	require.NoError(t, err)
	assert.True(t, res.Waiting)

	res, err = svc.SubmitArgument(fight.ID, 2, a.ID, validArg("r2a"))
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, a.ID, res.WinnerID)
	assert.Equal(t, 23.0, res.TotalA)
	assert.Equal(t, 22.0, res.TotalB)

	winner, err := registry.GetByID(a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultReputation+FightWinRep, winner.Reputation)
	assert.Equal(t, 1, winner.Wins)
	assert.Equal(t, 1, winner.CurrentStreak)

	loser, err := registry.GetByID(b.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DefaultReputation-FightLossRep, loser.Reputation)
	assert.Equal(t, 1, loser.Losses)
	assert.Equal(t, 0, loser.CurrentStreak)

	require.Len(t, handler.events, 1)
	assert.Equal(t, fight.ID, handler.events[0].FightID)
	assert.Equal(t, a.ID, handler.events[0].WinnerID)
	assert.Equal(t, b.ID, handler.events[0].LoserID)
}

func TestTieGoesToChallengedSide(t *testing.T) {
	_, _, jury, svc, a, b := fightFixture(t)
	jury.scores = []*RoundScores{evenScores(2.5, 2.5)}

	fight, err := svc.Open(a.ID, "exactly even", 1)
	require.NoError(t, err)
	_, err = svc.Accept(fight.ID, b.ID)
	require.NoError(t, err)

	_, err = svc.SubmitArgument(fight.ID, 1, a.ID, validArg("a"))
	require.NoError(t, err)
	res, err := svc.SubmitArgument(fight.ID, 1, b.ID, validArg("b"))
	require.NoError(t, err)

	assert.True(t, res.Completed)
	assert.Equal(t, a.ID, res.WinnerID)
}

func TestOpenValidation(t *testing.T) {
	_, _, _, svc, a, _ := fightFixture(t)

	_, err := svc.Open(a.ID, "", 3)
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = svc.Open(a.ID, "topic", 0)
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = svc.Open(a.ID, "topic", 6)
	assert.Equal(t, KindValidation, kindOf(t, err))
}

func TestAcceptGuards(t *testing.T) {
	_, registry, _, svc, a, b := fightFixture(t)

	fight, err := svc.Open(a.ID, "topic", 1)
	require.NoError(t, err)

	_, err = svc.Accept(fight.ID, a.ID)
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = svc.Accept(fight.ID, b.ID)
	require.NoError(t, err)

	c := mustRegister(t, registry, "gamma")
	_, err = svc.Accept(fight.ID, c.ID)
	assert.Equal(t, KindConflict, kindOf(t, err))
}

func TestSubmitArgumentGuards(t *testing.T) {
	_, registry, jury, svc, a, b := fightFixture(t)
	jury.scores = []*RoundScores{evenScores(2, 2)}

	fight, err := svc.Open(a.ID, "topic", 2)
	require.NoError(t, err)
	_, err = svc.Accept(fight.ID, b.ID)
	require.NoError(t, err)

	_, err = svc.SubmitArgument(fight.ID, 1, a.ID, "too short")
	assert.Equal(t, KindValidation, kindOf(t, err))

	_, err = svc.SubmitArgument(fight.ID, 1, a.ID, strings.Repeat("x", 5001))
	assert.Equal(t, KindValidation, kindOf(t, err))

	outsider := mustRegister(t, registry, "outsider")
	_, err = svc.SubmitArgument(fight.ID, 1, outsider.ID, validArg("x"))
	assert.Equal(t, KindForbidden, kindOf(t, err))

	_, err = svc.SubmitArgument(fight.ID, 2, a.ID, validArg("x"))
	assert.Equal(t, KindConflict, kindOf(t, err))

	_, err = svc.SubmitArgument(fight.ID, 1, a.ID, validArg("first"))
	require.NoError(t, err)
	_, err = svc.SubmitArgument(fight.ID, 1, a.ID, validArg("again"))
	assert.Equal(t, KindConflict, kindOf(t, err))
}

func TestJuryFailureRollsBackSecondArgument(t *testing.T) {
	db, _, jury, svc, a, b := fightFixture(t)

	fight, err := svc.Open(a.ID, "topic", 1)
	require.NoError(t, err)
	_, err = svc.Accept(fight.ID, b.ID)
	require.NoError(t, err)

	_, err = svc.SubmitArgument(fight.ID, 1, a.ID, validArg("a"))
	require.NoError(t, err)

	jury.scoreErr = fmt.Errorf("jury is down")
	_, err = svc.SubmitArgument(fight.ID, 1, b.ID, validArg("b"))
	assert.Equal(t, KindCollaborator, kindOf(t, err))

	// The failed submission left no trace: one argument, round still open,
	// fight still active.
	var count int64
	require.NoError(t, db.Model(&models.Argument{}).
		Where("fight_id = ?", fight.ID).Count(&count).Error)
	assert.Equal(t, int64(1), count)

	got, err := svc.Get(fight.ID)
	require.NoError(t, err)
	assert.Equal(t, models.FightActive, got.Status)
	require.Len(t, got.Rounds, 1)
	assert.Nil(t, got.Rounds[0].CompletedAt)

	// Once the jury recovers, resubmitting completes the round.
	jury.scoreErr = nil
	jury.scores = []*RoundScores{evenScores(2, 1)}
	res, err := svc.SubmitArgument(fight.ID, 1, b.ID, validArg("b"))
	require.NoError(t, err)
	assert.True(t, res.Completed)
	assert.Equal(t, a.ID, res.WinnerID)
}

func TestBannedAgentCannotOpen(t *testing.T) {
	db, _, _, svc, a, _ := fightFixture(t)
	require.NoError(t, db.Model(&models.Agent{}).Where("id = ?", a.ID).
		Update("is_banned", true).Error)

	_, err := svc.Open(a.ID, "topic", 1)
	assert.Equal(t, KindForbidden, kindOf(t, err))
}
