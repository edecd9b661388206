package services

import (
	"fmt"
	"testing"

	"moltcourt-arena/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&models.Agent{},
		&models.Fight{},
		&models.Round{},
		&models.Argument{},
		&models.Trial{},
		&models.TrialVote{},
		&models.Tournament{},
		&models.TournamentEntry{},
		&models.BracketMatch{},
		&models.Payment{},
	))
	return db
}

func mustRegister(t *testing.T, registry *AgentRegistry, name string) *models.Agent {
	t.Helper()
	agent, err := registry.Register(name, "")
	require.NoError(t, err)
	return agent
}

// stubJury returns canned scores and verdicts. Scores pop in order, so a test
// can script a whole fight round by round.
type stubJury struct {
	scores     []*RoundScores
	scoreErr   error
	scoreCalls int

	verdict    *TrialDeliberationResult
	verdictErr error
}

func (j *stubJury) ScoreRound(in RoundScoringInput) (*RoundScores, error) {
	j.scoreCalls++
	if j.scoreErr != nil {
		return nil, j.scoreErr
	}
	if len(j.scores) == 0 {
		return nil, fmt.Errorf("stub jury has no scores left")
	}
	next := j.scores[0]
	j.scores = j.scores[1:]
	return next, nil
}

func (j *stubJury) DeliberateTrial(in TrialDeliberationInput) (*TrialDeliberationResult, error) {
	if j.verdictErr != nil {
		return nil, j.verdictErr
	}
	if j.verdict == nil {
		return nil, fmt.Errorf("stub jury has no verdict")
	}
	return j.verdict, nil
}

// evenScores builds a RoundScores where every axis on both sides carries the
// same value, so round totals are 4x the axis values.
func evenScores(axisA, axisB float64) *RoundScores {
	return &RoundScores{
		AgentA:    AxisScores{Logic: axisA, Evidence: axisA, Rebuttal: axisA, Clarity: axisA},
		AgentB:    AxisScores{Logic: axisB, Evidence: axisB, Rebuttal: axisB, Clarity: axisB},
		Reasoning: "stub reasoning",
	}
}

// stubGateway settles everything unless told to fail.
type stubGateway struct {
	failReason  string
	settleCalls int
}

func (g *stubGateway) RequirePayment(amountUsdc float64, resource, description string) PaymentRequirement {
	return PaymentRequirement{
		X402Version: 2,
		Scheme:      "exact",
		Network:     "test",
		Resource:    resource,
		Description: description,
	}
}

func (g *stubGateway) SettlePayment(assertion string, amountUsdc float64, resource string) (*SettleResult, error) {
	g.settleCalls++
	if g.failReason != "" {
		return &SettleResult{Settled: false, ErrorReason: g.failReason}, nil
	}
	return &SettleResult{Settled: true, TxHash: "0xstubsettle"}, nil
}

func kindOf(t *testing.T, err error) ErrorKind {
	t.Helper()
	se, ok := AsServiceError(err)
	require.True(t, ok, "expected a service error, got %v", err)
	return se.Kind
}
