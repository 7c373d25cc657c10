package engine

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGame(seed int64) (*GameState, *rand.Rand) {
	rng := rand.New(rand.NewSource(seed))
	return InitializeGame(PlayerMeta{}, PlayerMeta{}, DefaultConfig(), rng), rng
}

// craft builds a mid-round state with fixed hands and board.
func craft(t *testing.T, stage Stage, hole0, hole1, board, deck []string) *GameState {
	t.Helper()
	return &GameState{
		Players: []Player{
			{ID: "agent-1", Name: "A", Tokens: 1000, Hand: mustCards(t, hole0...)},
			{ID: "agent-2", Name: "B", Tokens: 1000, Hand: mustCards(t, hole1...)},
		},
		Deck:           mustCards(t, deck...),
		CommunityCards: mustCards(t, board...),
		Stage:          stage,
		SmallBlind:     10,
		BigBlind:       20,
		DealerIndex:    1,
	}
}

func hasLog(s *GameState, line string) bool {
	for _, l := range s.Logs {
		if strings.TrimSpace(l) == line {
			return true
		}
	}
	return false
}

func TestInitializeGame(t *testing.T) {
	g, _ := newGame(1)
	require.Len(t, g.Players, 2)
	assert.Equal(t, "agent-1", g.Players[0].ID)
	assert.Equal(t, "AI Agent Alpha", g.Players[0].Name)
	assert.Equal(t, "agent-2", g.Players[1].ID)
	assert.Equal(t, "AI Agent Beta", g.Players[1].Name)
	for _, p := range g.Players {
		assert.Equal(t, 1000, p.Tokens)
		assert.Empty(t, p.Hand)
	}
	assert.Equal(t, PreFlop, g.Stage)
	assert.Equal(t, 10, g.SmallBlind)
	assert.Equal(t, 20, g.BigBlind)
	assert.Len(t, g.Deck, 52)
	assert.Equal(t, []string{"Game started!"}, g.Logs)

	named := InitializeGame(PlayerMeta{Name: "Ada", Model: "m1"}, PlayerMeta{Handle: "@b"}, Config{StartingTokens: 500, SmallBlind: 5, BigBlind: 10}, rand.New(rand.NewSource(1)))
	assert.Equal(t, "Ada", named.Players[0].Name)
	assert.Equal(t, "m1", named.Players[0].Model)
	assert.Equal(t, "AI Agent Beta", named.Players[1].Name)
	assert.Equal(t, "@b", named.Players[1].Handle)
	assert.Equal(t, 500, named.Players[1].Tokens)
}

func TestStartNewRoundDealsAndPostsBlinds(t *testing.T) {
	g, rng := newGame(5)
	s := StartNewRound(g, rng)

	// replay the same random stream to recover the deck order
	replay := rand.New(rand.NewSource(5))
	ShuffleDeck(CreateDeck(), replay)
	deck := ShuffleDeck(CreateDeck(), replay)

	assert.Equal(t, 1, s.DealerIndex)
	assert.Equal(t, 1, s.Round)
	assert.Equal(t, []Card{deck[0], deck[2]}, s.Players[0].Hand)
	assert.Equal(t, []Card{deck[1], deck[3]}, s.Players[1].Hand)
	assert.Len(t, s.Deck, 48)

	sb, bb := s.Players[0], s.Players[1]
	assert.Equal(t, 990, sb.Tokens)
	assert.Equal(t, 10, sb.CurrentBet)
	assert.Equal(t, 10, sb.TotalBet)
	assert.Equal(t, 980, bb.Tokens)
	assert.Equal(t, 20, bb.CurrentBet)
	assert.Equal(t, 30, s.Pot)
	assert.Equal(t, 20, s.CurrentBet)
	assert.Equal(t, 0, s.CurrentPlayerIndex)
	assert.True(t, hasLog(s, "AI Agent Alpha posts small blind: 10 x402"))
	assert.True(t, hasLog(s, "AI Agent Beta posts big blind: 20 x402"))

	// input untouched
	assert.Equal(t, 0, g.Pot)
	assert.Empty(t, g.Players[0].Hand)
	assert.Len(t, g.Deck, 52)
}

func TestStartNewRoundRotatesDealer(t *testing.T) {
	g, rng := newGame(2)
	s := StartNewRound(g, rng)
	s = ProcessAction(s, FoldAction())
	s = StartNewRound(s, rng)

	assert.Equal(t, 0, s.DealerIndex)
	assert.Equal(t, 10, s.Players[1].CurrentBet)
	assert.Equal(t, 20, s.Players[0].CurrentBet)
	assert.Equal(t, 1, s.CurrentPlayerIndex)
	assert.Empty(t, s.CommunityCards)
	assert.Nil(t, s.Result)
	assert.Equal(t, "", s.Winner)
}

func TestStartNewRoundOnFinishedGamePanics(t *testing.T) {
	g, rng := newGame(2)
	g.GameOver = true
	assert.Panics(t, func() { StartNewRound(g, rng) })
}

func TestStageSequencing(t *testing.T) {
	g, rng := newGame(11)
	s := StartNewRound(g, rng)
	total := s.Chips()

	steps := []struct {
		action Action
		stage  Stage
		board  int
	}{
		{CallAction(), Flop, 3},
		{CheckAction(), Turn, 4},
		{CheckAction(), River, 5},
		{CheckAction(), Showdown, 5},
	}
	for _, st := range steps {
		s = ProcessAction(s, st.action)
		require.Equal(t, st.stage, s.Stage)
		require.Len(t, s.CommunityCards, st.board)
		require.Equal(t, total, s.Chips())
		for _, p := range s.Players {
			if s.Stage != Showdown {
				assert.Zero(t, p.CurrentBet)
			}
			assert.Equal(t, 20, p.TotalBet)
		}
	}
	require.NotNil(t, s.Result)
	assert.Equal(t, 40, s.Result.Amount)
	assert.Len(t, s.Result.Hands, 2)
	assert.Zero(t, s.Pot)
	assert.NotEmpty(t, s.Winner)
	assert.True(t, hasLog(s, "--- Showdown ---"))
}

func TestRaiseThenCallClosesStreet(t *testing.T) {
	g, rng := newGame(12)
	s := StartNewRound(g, rng)

	s = ProcessAction(s, RaiseAction(40))
	assert.Equal(t, PreFlop, s.Stage)
	assert.Equal(t, 60, s.CurrentBet)
	assert.Equal(t, 940, s.Players[0].Tokens)
	assert.Equal(t, 1, s.CurrentPlayerIndex)
	assert.True(t, hasLog(s, "AI Agent Alpha raises to 60 x402"))

	s = ProcessAction(s, CallAction())
	assert.Equal(t, Flop, s.Stage)
	assert.Equal(t, 120, s.Pot)
	assert.Equal(t, 940, s.Players[1].Tokens)
	assert.Equal(t, 0, s.CurrentPlayerIndex)
	assert.True(t, hasLog(s, "AI Agent Beta calls 40 x402"))
}

func TestBettingRoundComplete(t *testing.T) {
	s := craft(t, Flop, []string{"2♣", "3♦"}, []string{"4♣", "5♦"}, []string{"9♥", "T♥", "J♠"}, nil)

	s.Players[0].CurrentBet, s.Players[1].CurrentBet, s.CurrentBet = 40, 20, 40
	assert.False(t, s.bettingRoundComplete())
	s.Players[1].CurrentBet = 40
	assert.True(t, s.bettingRoundComplete())

	// one seat all-in for more: the other must reach the table bet
	s.Players[0].IsAllIn = true
	s.Players[0].CurrentBet, s.Players[1].CurrentBet, s.CurrentBet = 300, 40, 300
	assert.False(t, s.bettingRoundComplete())
	s.Players[1].CurrentBet = 300
	assert.True(t, s.bettingRoundComplete())

	s.Players[1].IsAllIn = true
	s.Players[1].CurrentBet = 0
	assert.True(t, s.bettingRoundComplete())
}

func TestShortStackCallGoesAllIn(t *testing.T) {
	s := craft(t, Flop,
		[]string{"2♣", "7♦"}, []string{"A♠", "A♥"},
		[]string{"K♠", "K♦", "9♣"}, []string{"3♥", "4♠", "5♦"})
	s.Players[0].Tokens = 30
	s.Players[1].Tokens = 400
	s.Players[1].CurrentBet, s.Players[1].TotalBet = 100, 100
	s.CurrentBet, s.Pot = 100, 100
	total := s.Chips()

	s = ProcessAction(s, CallAction())
	a := s.Players[0]
	assert.True(t, a.IsAllIn)
	assert.Equal(t, 0, a.Tokens)
	assert.Equal(t, 30, a.TotalBet)
	assert.True(t, hasLog(s, "A calls 30 x402 (ALL IN)"))

	// nobody left to bet, so the board runs out
	assert.Equal(t, Showdown, s.Stage)
	assert.Len(t, s.CommunityCards, 5)
	assert.Equal(t, "B", s.Winner)
	assert.Equal(t, 130, s.Result.Amount)
	assert.Equal(t, total, s.Chips())
	assert.True(t, s.GameOver)
}

func TestAllInAndCallRunsOutBoard(t *testing.T) {
	g, rng := newGame(21)
	s := StartNewRound(g, rng)
	s = ProcessAction(s, AllInAction())
	assert.Equal(t, 1000, s.CurrentBet)
	assert.True(t, hasLog(s, "AI Agent Alpha goes ALL IN with 990 x402"))
	assert.Equal(t, []ActionKind{Fold, Call}, LegalActions(s))

	s = ProcessAction(s, CallAction())
	assert.Equal(t, Showdown, s.Stage)
	assert.Len(t, s.CommunityCards, 5)
	assert.Equal(t, 2000, s.Result.Amount)
	assert.Equal(t, 2000, s.Chips())
	assert.True(t, s.GameOver)
}

func TestFoldWinsUncontested(t *testing.T) {
	g, rng := newGame(8)
	s := StartNewRound(g, rng)
	s = ProcessAction(s, FoldAction())

	assert.Equal(t, Showdown, s.Stage)
	assert.Equal(t, "AI Agent Beta", s.Winner)
	require.NotNil(t, s.Result)
	assert.True(t, s.Result.Uncontested)
	assert.Equal(t, 30, s.Result.Amount)
	assert.Equal(t, 990, s.Players[0].Tokens)
	assert.Equal(t, 1010, s.Players[1].Tokens)
	assert.Zero(t, s.Pot)
	assert.False(t, s.GameOver)
	assert.Empty(t, s.CommunityCards)
	assert.True(t, hasLog(s, "AI Agent Beta wins 30 x402 (all others folded)"))
}

func TestZeroStackFoldEndsGame(t *testing.T) {
	s := craft(t, Flop, []string{"2♣", "3♦"}, []string{"4♣", "5♦"}, []string{"9♥", "T♥", "J♠"}, []string{"2♠"})
	s.Players[0].Tokens = 0
	s.Players[1].Tokens = 100
	s.Players[1].CurrentBet = 20
	s.CurrentBet, s.Pot = 20, 60

	s = ProcessAction(s, FoldAction())
	assert.Equal(t, 160, s.Players[1].Tokens)
	assert.True(t, s.GameOver)
	assert.True(t, hasLog(s, "B wins the game!"))
}

func TestTieGoesToFirstSeat(t *testing.T) {
	s := craft(t, River,
		[]string{"2♣", "3♦"}, []string{"4♥", "5♥"},
		[]string{"A♠", "K♠", "Q♠", "J♠", "T♠"}, nil)
	s.Players[0].Tokens, s.Players[1].Tokens = 980, 980
	s.Players[0].TotalBet, s.Players[1].TotalBet = 20, 20
	s.Pot = 40

	s = ProcessAction(s, CheckAction())
	assert.Equal(t, Showdown, s.Stage)
	assert.Equal(t, "A", s.Winner)
	assert.Equal(t, 1020, s.Players[0].Tokens)
	assert.Equal(t, 980, s.Players[1].Tokens)
	assert.Equal(t, s.Result.Hands["agent-1"], s.Result.Hands["agent-2"])
	require.NotEmpty(t, s.Result.Described["agent-1"])
	assert.Equal(t, s.Result.Described["agent-1"], s.Result.Described["agent-2"])
}

func TestShortBlindPutsSeatAllIn(t *testing.T) {
	g, rng := newGame(4)
	g.Players[0].Tokens = 5
	s := StartNewRound(g, rng)

	// seat 0 is the small blind and is all-in for 5; the big blind has
	// nothing left to decide, so the round runs straight to showdown
	assert.True(t, s.Players[0].IsAllIn)
	assert.Equal(t, Showdown, s.Stage)
	assert.Len(t, s.CommunityCards, 5)
	assert.Equal(t, 25, s.Result.Amount)
	assert.Equal(t, 1005, s.Chips())
}

func TestLegalActionsAndValidate(t *testing.T) {
	g, rng := newGame(13)
	s := StartNewRound(g, rng)

	assert.Equal(t, []ActionKind{Fold, Call, Raise, AllIn}, LegalActions(s))
	assert.False(t, CanCheck(s))
	assert.Equal(t, 10, ToCall(s))
	assert.Equal(t, 20, MinRaise(s))
	assert.ErrorIs(t, ValidateAction(s, CheckAction()), ErrIllegalAction)
	assert.ErrorIs(t, ValidateAction(s, RaiseAction(5)), ErrRaiseTooSmall)
	assert.NoError(t, ValidateAction(s, RaiseAction(20)))
	assert.NoError(t, ValidateAction(s, CallAction()))

	s = ProcessAction(s, CallAction())
	assert.Equal(t, []ActionKind{Check, Raise, AllIn}, LegalActions(s))
	assert.True(t, CanCheck(s))
	assert.ErrorIs(t, ValidateAction(s, FoldAction()), ErrIllegalAction)

	s = ProcessAction(s, FoldAction())
	assert.Nil(t, LegalActions(s))
	assert.ErrorIs(t, ValidateAction(s, CheckAction()), ErrNotInPlay)
	assert.Panics(t, func() { ProcessAction(s, CheckAction()) })
}

func TestProcessActionLeavesInputUntouched(t *testing.T) {
	g, rng := newGame(14)
	s := StartNewRound(g, rng)
	before := s.Clone()
	_ = ProcessAction(s, RaiseAction(100))
	assert.Equal(t, before, s)
}

func TestChipConservationRandomPlay(t *testing.T) {
	g, rng := newGame(99)
	total := g.Chips()
	s := g
	for round := 0; round < 300 && !s.GameOver; round++ {
		s = StartNewRound(s, rng)
		require.Equal(t, total, s.Chips())
		for s.Stage != Showdown {
			legal := LegalActions(s)
			require.NotEmpty(t, legal, "stage %s seat %d", s.Stage, s.CurrentPlayerIndex)
			a := Action{Kind: legal[rng.Intn(len(legal))]}
			if a.Kind == Raise {
				a.Amount = MinRaise(s) + rng.Intn(60)
			}
			require.NoError(t, ValidateAction(s, a))
			s = ProcessAction(s, a)
			require.Equal(t, total, s.Chips())
			for _, p := range s.Players {
				require.GreaterOrEqual(t, p.Tokens, 0)
			}
		}
		require.NotNil(t, s.Result)
		require.Zero(t, s.Pot)
	}
}
