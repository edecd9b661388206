package services

import (
	"fmt"
	"testing"

	"moltcourt-arena/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func tournamentFixture(t *testing.T) (*gorm.DB, *AgentRegistry, *stubGateway, *FightService, *TournamentService) {
	t.Helper()
	db := newTestDB(t)
	registry := NewAgentRegistry(db)
	jury := &stubJury{}
	gateway := &stubGateway{}
	fights := NewFightService(db, registry, jury, NoopAnchor{})
	svc := NewTournamentService(db, registry, fights, gateway, NoopAnchor{})
	fights.OnCompletion(svc)
	return db, registry, gateway, fights, svc
}

// registerSeeded creates n agents with strictly descending reputation so the
// expected seeding order is the registration order.
func registerSeeded(t *testing.T, db *gorm.DB, registry *AgentRegistry, n int) []*models.Agent {
	t.Helper()
	agents := make([]*models.Agent, 0, n)
	for i := 0; i < n; i++ {
		agent := mustRegister(t, registry, fmt.Sprintf("entrant-%d", i))
		require.NoError(t, db.Model(&models.Agent{}).Where("id = ?", agent.ID).
			Update("reputation", 2000-i*100).Error)
		agent.Reputation = 2000 - i*100
		agents = append(agents, agent)
	}
	return agents
}

func matchAt(t *testing.T, matches []models.BracketMatch, round, number int) *models.BracketMatch {
	t.Helper()
	for i := range matches {
		if matches[i].BracketRound == round && matches[i].MatchNumber == number {
			return &matches[i]
		}
	}
	t.Fatalf("no match at round %d number %d", round, number)
	return nil
}

func TestCreateClampsAndAutoJoins(t *testing.T) {
	db, registry, _, _, svc := tournamentFixture(t)
	creator := registerSeeded(t, db, registry, 1)[0]

	tournament, err := svc.Create(creator.ID, "Winter Open", "great debates", "", "",
		100, 9, 0, "", "")
	require.NoError(t, err)
	assert.Equal(t, 32, tournament.MaxEntrants)
	assert.Equal(t, 5, tournament.RoundsPerMatch)
	assert.Equal(t, "winter-open", tournament.Slug)
	assert.Equal(t, models.TournamentRegistration, tournament.Status)
	assert.Equal(t, 1, tournament.EntryCount)
	require.Len(t, tournament.Entries, 1)
	assert.Equal(t, creator.ID, tournament.Entries[0].AgentID)

	small, err := svc.Create(creator.ID, "Tiny Cup", "topic", "", "", 2, 0, 0, "", "")
	require.NoError(t, err)
	assert.Equal(t, 4, small.MaxEntrants)
	assert.Equal(t, 3, small.RoundsPerMatch)

	_, err = svc.Create(creator.ID, "RR Cup", "topic", "", models.FormatRoundRobin, 4, 1, 0, "", "")
	assert.Equal(t, KindValidation, kindOf(t, err))
}

func TestJoinFillsAndGeneratesBracket(t *testing.T) {
	db, registry, _, _, svc := tournamentFixture(t)
	agents := registerSeeded(t, db, registry, 4)

	tournament, err := svc.Create(agents[0].ID, "Quad Cup", "topic", "", "", 4, 1, 0, "", "")
	require.NoError(t, err)

	_, err = svc.Join(tournament.ID, agents[0].ID, "", "")
	assert.Equal(t, KindConflict, kindOf(t, err), "creator is already entered")

	for _, agent := range agents[1:3] {
		_, err := svc.Join(tournament.ID, agent.ID, "", "")
		require.NoError(t, err)
	}

	got, err := svc.Get(tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentRegistration, got.Status)

	// Fourth entrant fills the field and the bracket generates synchronously.
	got, err = svc.Join(tournament.ID, agents[3].ID, "", "")
	require.NoError(t, err)
	assert.Equal(t, models.TournamentInProgress, got.Status)

	require.Len(t, got.Entries, 4)
	for i, entry := range got.Entries {
		require.NotNil(t, entry.Seed)
		assert.Equal(t, i+1, *entry.Seed)
		assert.Equal(t, agents[i].ID, entry.AgentID, "seeding follows reputation")
	}

	require.Len(t, got.Matches, 3)
	m1 := matchAt(t, got.Matches, 1, 1)
	assert.Equal(t, models.MatchActive, m1.Status)
	assert.Equal(t, agents[0].ID, *m1.AgentAID)
	assert.Equal(t, agents[3].ID, *m1.AgentBID)
	require.NotNil(t, m1.FightID)

	m2 := matchAt(t, got.Matches, 1, 2)
	assert.Equal(t, agents[1].ID, *m2.AgentAID)
	assert.Equal(t, agents[2].ID, *m2.AgentBID)

	final := matchAt(t, got.Matches, 2, 1)
	assert.Equal(t, models.MatchPending, final.Status)
	assert.Nil(t, final.AgentAID)
	assert.Nil(t, final.AgentBID)

	// First-round fights are live with round 1 open.
	var fight models.Fight
	require.NoError(t, db.First(&fight, "id = ?", *m1.FightID).Error)
	assert.Equal(t, models.FightActive, fight.Status)
	assert.Equal(t, 1, fight.TotalRounds)
	assert.Equal(t, tournament.ID, *fight.TournamentID)

	// Registration closed once the bracket exists.
	late := mustRegister(t, registry, "latecomer")
	_, err = svc.Join(tournament.ID, late.ID, "", "")
	assert.Equal(t, KindConflict, kindOf(t, err))
}

func TestBracketByesAdvanceImmediately(t *testing.T) {
	db, registry, _, _, svc := tournamentFixture(t)
	agents := registerSeeded(t, db, registry, 5)

	tournament, err := svc.Create(agents[0].ID, "Five Field", "topic", "", "", 5, 1, 0, "", "")
	require.NoError(t, err)
	for _, agent := range agents[1:] {
		_, err := svc.Join(tournament.ID, agent.ID, "", "")
		require.NoError(t, err)
	}

	got, err := svc.Get(tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentInProgress, got.Status)
	// Bracket of 8: 4 + 2 + 1 matches.
	require.Len(t, got.Matches, 7)

	// Seeds 1-3 drew byes; only 4 vs 5 plays round one.
	for num := 1; num <= 3; num++ {
		bye := matchAt(t, got.Matches, 1, num)
		assert.Equal(t, models.MatchBye, bye.Status)
		require.NotNil(t, bye.WinnerID)
		assert.Equal(t, agents[num-1].ID, *bye.WinnerID)
		assert.Nil(t, bye.FightID)
	}
	played := matchAt(t, got.Matches, 1, 4)
	assert.Equal(t, models.MatchActive, played.Status)
	assert.Equal(t, agents[3].ID, *played.AgentAID)
	assert.Equal(t, agents[4].ID, *played.AgentBID)

	// Byes 1 and 2 feed the same semifinal, so it starts at generation.
	semi1 := matchAt(t, got.Matches, 2, 1)
	assert.Equal(t, models.MatchActive, semi1.Status)
	assert.Equal(t, agents[0].ID, *semi1.AgentAID)
	assert.Equal(t, agents[1].ID, *semi1.AgentBID)
	require.NotNil(t, semi1.FightID)

	// Bye 3 waits in the other semifinal for the 4v5 winner.
	semi2 := matchAt(t, got.Matches, 2, 2)
	assert.Equal(t, models.MatchPending, semi2.Status)
	require.NotNil(t, semi2.AgentAID)
	assert.Equal(t, agents[2].ID, *semi2.AgentAID)
	assert.Nil(t, semi2.AgentBID)
}

// completeMatchFight drives a bracket fight to completion through the fight
// engine with scripted scores.
func completeMatchFight(t *testing.T, jury *stubJury, fights *FightService, match *models.BracketMatch, winnerFirst bool) {
	t.Helper()
	require.NotNil(t, match.FightID)

	axisA, axisB := 2.0, 1.0
	if !winnerFirst {
		axisA, axisB = 1.0, 2.0
	}
	jury.scores = append(jury.scores, evenScores(axisA, axisB))

	_, err := fights.SubmitArgument(*match.FightID, 1, *match.AgentAID, validArg("a"))
	require.NoError(t, err)
	_, err = fights.SubmitArgument(*match.FightID, 1, *match.AgentBID, validArg("b"))
	require.NoError(t, err)
}

func TestLadderRunsToChampion(t *testing.T) {
	db, registry, _, fights, svc := tournamentFixture(t)
	jury := fights.Jury.(*stubJury)
	agents := registerSeeded(t, db, registry, 4)

	tournament, err := svc.Create(agents[0].ID, "Title Run", "topic", "", "", 4, 1, 0, "", "")
	require.NoError(t, err)
	for _, agent := range agents[1:] {
		_, err := svc.Join(tournament.ID, agent.ID, "", "")
		require.NoError(t, err)
	}

	got, err := svc.Get(tournament.ID)
	require.NoError(t, err)

	// Semifinals: seed 1 beats seed 4, seed 3 upsets seed 2.
	completeMatchFight(t, jury, fights, matchAt(t, got.Matches, 1, 1), true)
	completeMatchFight(t, jury, fights, matchAt(t, got.Matches, 1, 2), false)

	got, err = svc.Get(tournament.ID)
	require.NoError(t, err)
	m1 := matchAt(t, got.Matches, 1, 1)
	assert.Equal(t, models.MatchCompleted, m1.Status)
	assert.Equal(t, agents[0].ID, *m1.WinnerID)

	final := matchAt(t, got.Matches, 2, 1)
	assert.Equal(t, models.MatchActive, final.Status)
	assert.Equal(t, agents[0].ID, *final.AgentAID)
	assert.Equal(t, agents[2].ID, *final.AgentBID)

	// Losers are eliminated, winners are not.
	for i, entry := range got.Entries {
		eliminated := i == 1 || i == 3
		assert.Equal(t, eliminated, entry.Eliminated, "entry %d", i)
	}

	repBefore, err := registry.GetByID(agents[0].ID)
	require.NoError(t, err)

	completeMatchFight(t, jury, fights, final, true)

	got, err = svc.Get(tournament.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TournamentCompleted, got.Status)
	require.NotNil(t, got.WinnerID)
	assert.Equal(t, agents[0].ID, *got.WinnerID)

	// Champion bonus on top of the final's fight win.
	champion, err := registry.GetByID(agents[0].ID)
	require.NoError(t, err)
	bonus := ChampionBaseRep + ChampionPerEntrantRep*4
	assert.Equal(t, repBefore.Reputation+FightWinRep+bonus, champion.Reputation)
	assert.Equal(t, repBefore.Wins+2, champion.Wins)
}

func TestAdvanceReplayIsIdempotent(t *testing.T) {
	db, registry, _, fights, svc := tournamentFixture(t)
	jury := fights.Jury.(*stubJury)
	agents := registerSeeded(t, db, registry, 4)

	tournament, err := svc.Create(agents[0].ID, "Replay Cup", "topic", "", "", 4, 1, 0, "", "")
	require.NoError(t, err)
	for _, agent := range agents[1:] {
		_, err := svc.Join(tournament.ID, agent.ID, "", "")
		require.NoError(t, err)
	}

	got, err := svc.Get(tournament.ID)
	require.NoError(t, err)
	m1 := matchAt(t, got.Matches, 1, 1)
	completeMatchFight(t, jury, fights, m1, true)

	// Replaying the completion event must not double-place the winner or
	// spawn another fight.
	require.NoError(t, svc.OnFightComplete(FightCompletionEvent{
		FightID:        *m1.FightID,
		WinnerID:       agents[0].ID,
		LoserID:        agents[3].ID,
		TournamentID:   &tournament.ID,
		BracketMatchID: &m1.ID,
	}))

	got, err = svc.Get(tournament.ID)
	require.NoError(t, err)
	final := matchAt(t, got.Matches, 2, 1)
	require.NotNil(t, final.AgentAID)
	assert.Equal(t, agents[0].ID, *final.AgentAID)
	assert.Nil(t, final.AgentBID)
	assert.Equal(t, models.MatchPending, final.Status)
	assert.Nil(t, final.FightID)

	var fightCount int64
	require.NoError(t, db.Model(&models.Fight{}).
		Where("tournament_id = ?", tournament.ID).Count(&fightCount).Error)
	assert.Equal(t, int64(2), fightCount, "only the two semifinal fights exist")
}

func TestEntryFeeFeedsPrizePool(t *testing.T) {
	db, registry, gateway, _, svc := tournamentFixture(t)
	agents := registerSeeded(t, db, registry, 2)

	tournament, err := svc.Create(agents[0].ID, "Paid Cup", "topic", "", "", 4, 1, 2.50, "assertion", "/tournaments")
	require.NoError(t, err)
	assert.Equal(t, 2.50, tournament.PrizePoolUsdc)
	assert.Equal(t, 1, gateway.settleCalls)

	// No assertion, no entry.
	_, err = svc.Join(tournament.ID, agents[1].ID, "", "/tournaments/join")
	assert.Equal(t, KindPaymentRequired, kindOf(t, err))

	got, err := svc.Join(tournament.ID, agents[1].ID, "assertion", "/tournaments/join")
	require.NoError(t, err)
	assert.Equal(t, 5.00, got.PrizePoolUsdc)

	var payments int64
	require.NoError(t, db.Model(&models.Payment{}).
		Where("reference_id = ? AND type = ?", tournament.ID, models.PaymentTournamentEntry).
		Count(&payments).Error)
	assert.Equal(t, int64(2), payments)
}

func TestIneligibleAgentCannotJoin(t *testing.T) {
	db, registry, _, _, svc := tournamentFixture(t)
	agents := registerSeeded(t, db, registry, 2)

	tournament, err := svc.Create(agents[0].ID, "Gated Cup", "topic", "", "", 4, 1, 0, "", "")
	require.NoError(t, err)

	require.NoError(t, db.Model(&models.Agent{}).Where("id = ?", agents[1].ID).
		Update("is_banned", true).Error)
	_, err = svc.Join(tournament.ID, agents[1].ID, "", "")
	assert.Equal(t, KindForbidden, kindOf(t, err))
}
