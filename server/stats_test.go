package main

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/decred/slog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x402-arena/server/arena"
	"x402-arena/server/engine"
)

func TestWilsonCI95(t *testing.T) {
	lo, hi := WilsonCI95(0, 0, 0)
	assert.Equal(t, 0.0, lo)
	assert.Equal(t, 1.0, hi)

	lo, hi = WilsonCI95(50, 0, 100)
	assert.InDelta(t, 0.404, lo, 0.001)
	assert.InDelta(t, 0.596, hi, 0.001)

	// ties count half
	tlo, thi := WilsonCI95(40, 20, 100)
	assert.InDelta(t, lo, tlo, 1e-9)
	assert.InDelta(t, hi, thi, 1e-9)
}

func TestBootstrapCI95(t *testing.T) {
	lo, hi := BootstrapCI95(nil, 100, nil)
	assert.Zero(t, lo)
	assert.Zero(t, hi)

	lo, hi = BootstrapCI95([]float64{0.5, 0.5, 0.5}, 200, rand.New(rand.NewSource(1)))
	assert.Equal(t, 0.5, lo)
	assert.Equal(t, 0.5, hi)

	vals := []float64{-1, 1, -1, 1, 0.2, 0.4, -0.3, 0.1}
	lo, hi = BootstrapCI95(vals, 1000, rand.New(rand.NewSource(2)))
	assert.Less(t, lo, 0.05)
	assert.Greater(t, hi, 0.05)
	assert.Less(t, lo, hi)
}

func TestEloFromGame(t *testing.T) {
	e := NewElo(1500, 24)
	dA, dB := e.UpdateFromGame(1000, 20)
	assert.Greater(t, dA, 0.0)
	assert.InDelta(t, -dA, dB, 1e-9)
	assert.Equal(t, 1, e.Games)
	assert.InDelta(t, 3000, e.A+e.B, 1e-9)

	// a heavy favourite gains little from another win
	next, _ := e.UpdateFromGame(1000, 20)
	assert.Less(t, next, dA)

	even := NewElo(1500, 24)
	dA, _ = even.UpdateFromGame(0, 20)
	assert.Zero(t, dA)
}

func TestEloRoundWeightsByPot(t *testing.T) {
	small, big := NewElo(1500, 24), NewElo(1500, 24)
	ds, _ := small.UpdateRound(1, 0, 30, 20, true)
	db, _ := big.UpdateRound(1, 0, 400, 20, true)
	assert.InDelta(t, 12*0.75, ds, 1e-9)
	assert.InDelta(t, 12*3, db, 1e-9)
	assert.Zero(t, big.Games)
}

func testConfig() Config {
	return Config{
		Game: engine.DefaultConfig(),
		Players: [2]PlayerSpec{
			{Meta: engine.PlayerMeta{Name: "Alpha", Model: "a/one"}, Strategy: stratHeuristic},
			{Meta: engine.PlayerMeta{Name: "Beta", Model: "b/two"}, Strategy: stratEquity},
		},
		EnableResearch: true,
		ResearchCost:   50,
		EquityTrials:   40,
		DeckSeed:       7,
		MaxRounds:      25,
		EloStart:       1500,
		EloK:           24,
	}
}

func TestRatingsAccumulate(t *testing.T) {
	r := NewRatings(testConfig(), rand.New(rand.NewSource(1)))
	r.ObserveMove(arena.Move{PlayerID: "agent-1", Action: engine.RaiseAction(20), Research: true})
	r.ObserveMove(arena.Move{PlayerID: "agent-2", Action: engine.CallAction()})
	r.ObserveMove(arena.Move{PlayerID: "agent-2", Action: engine.FoldAction(), Fallback: true})
	r.ObserveMove(arena.Move{PlayerID: "nobody", Action: engine.FoldAction()})
	r.ObserveRound(&engine.GameState{Result: &engine.RoundResult{WinnerID: "agent-1", Amount: 80}})
	r.ObserveRound(&engine.GameState{Result: &engine.RoundResult{WinnerID: "agent-2", Amount: 30, Uncontested: true}})
	r.ObserveRound(&engine.GameState{})
	r.ObserveGame(arena.GameResult{Winner: "agent-1", Stacks: map[string]int{"agent-1": 1400, "agent-2": 600}, Research: map[string]int{"agent-1": 50}})

	sum := r.Summary()
	require.Len(t, sum.Agents, 2)
	a, b := sum.Agents[0], sum.Agents[1]
	assert.Equal(t, "Alpha", a.Name)
	assert.Equal(t, 1, a.Raises)
	assert.Equal(t, 1, a.Research)
	assert.Equal(t, 50, a.ResearchSpent)
	assert.Equal(t, 2, a.Rounds)
	assert.Equal(t, 1, a.ShowdownsWon)
	assert.Equal(t, 1, b.RoundsWon)
	assert.Zero(t, b.ShowdownsWon)
	assert.Equal(t, 1, b.Fallbacks)
	assert.Equal(t, 400, a.NetChips)
	assert.Equal(t, -400, b.NetChips)
	assert.Equal(t, 1, a.GameWins)
	assert.Equal(t, 1, sum.WinsA)
	assert.Equal(t, 1, sum.Elo.Games)
	assert.Greater(t, sum.Elo.A, sum.Elo.B)
	assert.Equal(t, 20, sum.BigBlind)
	assert.InDelta(t, 1000, sum.BBPer100A, 1e-9) // 20bb over 2 rounds
	assert.Equal(t, 1.0, sum.AggressionA)
	assert.InDelta(t, 0.4, sum.MarginA.Low, 1e-9)
}

func TestLoggersShareBackend(t *testing.T) {
	var buf bytes.Buffer
	logs := newLoggers(&buf, slog.LevelInfo)
	logs.Arena.Info("dealt")
	logs.Store.Debug("hidden")
	logs.Ledger.Warnf("short by %d", 5)
	out := buf.String()
	assert.Contains(t, out, "[INF] ARNA: dealt")
	assert.Contains(t, out, "[WRN] LDGR: short by 5")
	assert.NotContains(t, out, "hidden")
	assert.Len(t, logs.all(), 7)
}

func TestSetupLoggingRejectsBadLevel(t *testing.T) {
	_, closer, err := setupLogging(Config{LogLevel: "loud"})
	assert.Error(t, err)
	require.NotNil(t, closer)
	closer()
}
