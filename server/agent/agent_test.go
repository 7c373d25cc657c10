package agent

import (
	"context"
	"errors"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"x402-arena/server/engine"
	"x402-arena/server/llm"
)

type countingResearcher struct{ calls atomic.Int32 }

func (c *countingResearcher) Research(_ context.Context, q string) (string, error) {
	c.calls.Add(1)
	return "Aggressive play wins: raise 3x with position.", nil
}

func mustCards(t *testing.T, ss ...string) []engine.Card {
	t.Helper()
	cs, err := engine.ParseCards(ss...)
	require.NoError(t, err)
	return cs
}

// freshRound returns round 1: agent-1 posts the small blind and is on turn.
func freshRound(seed int64) *engine.GameState {
	rng := rand.New(rand.NewSource(seed))
	s := engine.InitializeGame(engine.PlayerMeta{}, engine.PlayerMeta{}, engine.DefaultConfig(), rng)
	return engine.StartNewRound(s, rng)
}

// riverSpot puts agent-1 on turn at the river facing toCall.
func riverSpot(t *testing.T, hero, villain, board []string, pot, toCall int) *engine.GameState {
	s := freshRound(1)
	s.Stage = engine.River
	s.CommunityCards = mustCards(t, board...)
	s.Players[0].Hand = mustCards(t, hero...)
	s.Players[1].Hand = mustCards(t, villain...)
	s.Players[0].CurrentBet = 0
	s.Players[1].CurrentBet = toCall
	s.CurrentBet = toCall
	s.Pot = pot
	s.CurrentPlayerIndex = 0
	return s
}

func TestStrategiesRejectWrongSeat(t *testing.T) {
	s := freshRound(2)
	strategies := map[string]Strategy{
		"heuristic": NewHeuristic(HeuristicConfig{Rand: rand.New(rand.NewSource(1))}),
		"equity":    NewEquity("", 50, rand.New(rand.NewSource(1)), nil),
		"llm":       NewLLM("gpt-test", 0, nil, nil),
	}
	for name, st := range strategies {
		t.Run(name, func(t *testing.T) {
			_, err := st.Decide(context.Background(), s, "agent-2")
			assert.ErrorIs(t, err, ErrNotYourTurn)
			_, err = st.Decide(context.Background(), s, "agent-9")
			assert.ErrorIs(t, err, ErrUnknownPlayer)
		})
	}
}

func TestHeuristicDecisionsAreLegal(t *testing.T) {
	rng := rand.New(rand.NewSource(77))
	players := map[string]Strategy{
		"agent-1": NewHeuristic(HeuristicConfig{Rand: rand.New(rand.NewSource(1)), EnableResearch: true, Researcher: &countingResearcher{}}),
		"agent-2": NewEquity("", 60, rand.New(rand.NewSource(2)), nil),
	}
	s := engine.StartNewRound(engine.InitializeGame(engine.PlayerMeta{}, engine.PlayerMeta{}, engine.DefaultConfig(), rng), rng)
	for steps := 0; steps < 2000 && !s.GameOver; steps++ {
		if s.Stage == engine.Showdown {
			s = engine.StartNewRound(s, rng)
			continue
		}
		id := s.CurrentPlayer().ID
		d, err := players[id].Decide(context.Background(), s, id)
		require.NoError(t, err)
		require.NoError(t, engine.ValidateAction(s, d.Action), "round %d %s: %+v", s.Round, s.Stage, d.Action)
		s = engine.ProcessAction(s, d.Action)
		require.Equal(t, 2000, s.Chips())
	}
}

func TestHeuristicResearchGate(t *testing.T) {
	base := freshRound(3)
	base.Pot = 400

	src := &countingResearcher{}
	h := NewHeuristic(HeuristicConfig{EnableResearch: true, Researcher: src, Rand: rand.New(rand.NewSource(5))})
	researched := 0
	for i := 0; i < 400; i++ {
		d, err := h.Decide(context.Background(), base, "agent-1")
		require.NoError(t, err)
		if d.Research == nil {
			continue
		}
		researched++
		assert.Equal(t, DefaultResearchCost, d.Research.Cost)
		assert.Contains(t, d.Reasoning, "Research insight: Aggressive play wins")
		assert.Contains(t, d.Reasoning, "[Research: ")
		assert.NotEmpty(t, d.Research.Query)
	}
	assert.InDelta(t, 120, researched, 45)
	assert.Equal(t, int32(researched), src.calls.Load())

	// the table veto, a short stack and a small pot each switch research off
	vetoed := WithResearchAllowed(context.Background(), false)
	short := base.Clone()
	short.Players[0].Tokens = 49
	small := base.Clone()
	small.Pot = 100
	before := src.calls.Load()
	for i := 0; i < 100; i++ {
		_, _ = h.Decide(vetoed, base, "agent-1")
		_, _ = h.Decide(context.Background(), short, "agent-1")
		_, _ = h.Decide(context.Background(), small, "agent-1")
	}
	assert.Equal(t, before, src.calls.Load())
}

func TestHeuristicResearchFallsBackWhenUnavailable(t *testing.T) {
	s := freshRound(3)
	s.Pot = 400
	h := NewHeuristic(HeuristicConfig{EnableResearch: true, Rand: rand.New(rand.NewSource(8))})
	for i := 0; i < 50; i++ {
		d, err := h.Decide(context.Background(), s, "agent-1")
		require.NoError(t, err)
		if d.Research != nil {
			assert.Equal(t, "Research unavailable - proceeding with basic strategy", d.Research.Result)
			return
		}
	}
	t.Fatal("expected at least one research attempt")
}

func TestHeuristicReasoning(t *testing.T) {
	s := riverSpot(t, []string{"A♠", "K♠"}, []string{"2♦", "3♣"}, []string{"Q♠", "J♠", "T♠", "2♥", "3♦"}, 200, 100)
	h := NewHeuristic(HeuristicConfig{Rand: rand.New(rand.NewSource(1))})
	d, err := h.Decide(context.Background(), s, "agent-1")
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(d.Reasoning, "[Using claude-sonnet-4.5] Looking at my hand: A♠ K♠."))
	assert.Contains(t, d.Reasoning, "Community cards on the table: Q♠ J♠ T♠ 2♥ 3♦.")
	assert.Contains(t, d.Reasoning, "Current hand strength: Royal Flush (rank 10/10).")
	assert.Contains(t, d.Reasoning, "Would need to call 100 chips into a pot of 200 chips.")
	assert.Contains(t, d.Reasoning, "Pot odds: 33.3%.")
	assert.Contains(t, d.Reasoning, "Opponent has ")
	assert.Contains(t, d.Reasoning, "They're betting aggressively")
	assert.Contains(t, d.Reasoning, "Strong hand (Royal Flush)")
	assert.Contains(t, []engine.ActionKind{engine.Raise, engine.Call}, d.Action.Kind)
}

func TestHeuristicPreflopStrengthUnknown(t *testing.T) {
	h := NewHeuristic(HeuristicConfig{Rand: rand.New(rand.NewSource(1))})
	d, err := h.Decide(context.Background(), freshRound(4), "agent-1")
	require.NoError(t, err)
	assert.Contains(t, d.Reasoning, "Current hand strength: Unknown (rank 0/10).")
}

func TestEquityStrategy(t *testing.T) {
	nuts := riverSpot(t, []string{"A♠", "K♠"}, []string{"2♦", "3♣"}, []string{"Q♠", "J♠", "T♠", "2♥", "3♦"}, 200, 0)
	e := NewEquity("", 200, rand.New(rand.NewSource(1)), nil)
	d, err := e.Decide(context.Background(), nuts, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Raise, d.Action.Kind)
	assert.Equal(t, 100, d.Action.Amount)
	assert.Contains(t, d.Reasoning, "Equity 100.0%")

	trash := riverSpot(t, []string{"7♣", "2♦"}, []string{"A♥", "A♦"}, []string{"A♠", "K♠", "Q♥", "J♦", "9♣"}, 600, 500)
	d, err = e.Decide(context.Background(), trash, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, engine.Fold, d.Action.Kind)
	assert.Contains(t, d.Reasoning, "pot odds")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = e.Decide(ctx, nuts, "agent-1")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLLMStrategy(t *testing.T) {
	s := freshRound(6) // agent-1 faces 10 more, table bet 20
	fallback := NewHeuristic(HeuristicConfig{Rand: rand.New(rand.NewSource(1))})
	l := NewLLM("openrouter/test-model", 0, fallback, nil)

	var gotUser string
	l.choose = func(_ context.Context, model, _, user string, legal []string, minTo, maxTo int, _ llm.PingOptions) (llm.Choice, error) {
		gotUser = user
		assert.Equal(t, "openrouter/test-model", model)
		assert.Equal(t, []string{"fold", "call", "raise", "all-in"}, legal)
		assert.Equal(t, 40, minTo)
		assert.Equal(t, 1000, maxTo)
		to := 60
		return llm.Choice{Action: "raise", RaiseTo: &to, Comment: "Suited ace, opening up."}, nil
	}
	d, err := l.Decide(context.Background(), s, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, engine.RaiseAction(40), d.Action)
	assert.Equal(t, "[Using openrouter/test-model] Suited ace, opening up.", d.Reasoning)
	assert.Contains(t, gotUser, `"seat":"small_blind"`)
	assert.Contains(t, gotUser, `"to_call":10`)

	l.choose = func(context.Context, string, string, string, []string, int, int, llm.PingOptions) (llm.Choice, error) {
		return llm.Choice{}, errors.New("upstream down")
	}
	d, err = l.Decide(context.Background(), s, "agent-1")
	require.NoError(t, err)
	assert.Contains(t, d.Reasoning, "[Using claude-sonnet-4.5]")

	l.fallback = nil
	_, err = l.Decide(context.Background(), s, "agent-1")
	assert.ErrorContains(t, err, "upstream down")
}

func TestObservationRoundTrip(t *testing.T) {
	s := freshRound(6)
	obs, err := BuildObservation(s, "agent-1")
	require.NoError(t, err)
	assert.Equal(t, 1, obs.Round)
	assert.Equal(t, "pre-flop", obs.Street)
	assert.Len(t, obs.HoleCards, 2)
	assert.Empty(t, obs.Board)
	assert.Equal(t, 30, obs.Pot)
	assert.Equal(t, map[string]int{"hero": 990, "villain": 980}, obs.Stacks)

	to := 20
	assert.Error(t, Validate(obs, ActionOut{Action: "raise", Amount: &to}))
	assert.Error(t, Validate(obs, ActionOut{Action: "raise"}))
	assert.Error(t, Validate(obs, ActionOut{Action: "check"}))
	to = 100
	require.NoError(t, Validate(obs, ActionOut{Action: "raise", Amount: &to}))
	assert.Equal(t, engine.RaiseAction(80), obs.ToAction(ActionOut{Action: "raise", Amount: &to}))
	assert.Equal(t, engine.CallAction(), obs.ToAction(ActionOut{Action: "call"}))
	assert.Equal(t, engine.AllInAction(), obs.ToAction(ActionOut{Action: "all-in"}))
}

func TestPrefixKeepsRunesWhole(t *testing.T) {
	assert.Equal(t, "abc", prefix("abc", 60))
	assert.Equal(t, "Ää€", prefix("Ää€漢字", 3))
	assert.True(t, utf8.ValidString(prefix(strings.Repeat("€", 61), 60)))
	assert.Equal(t, 60, utf8.RuneCountInString(prefix(strings.Repeat("€", 61), 60)))
}

func TestSanitize(t *testing.T) {
	s := freshRound(6)
	assert.Equal(t, engine.CallAction(), sanitize(s, engine.CallAction()))
	assert.Equal(t, engine.FoldAction(), sanitize(s, engine.CheckAction()))

	free := s.Clone()
	free.Players[0].CurrentBet = 20
	assert.Equal(t, engine.CheckAction(), sanitize(free, engine.CallAction()))
	assert.Equal(t, engine.CheckAction(), sanitize(free, engine.FoldAction()))

	shoved := s.Clone()
	shoved.Players[1].IsAllIn = true
	assert.Equal(t, engine.CallAction(), sanitize(shoved, engine.RaiseAction(40)))
}
