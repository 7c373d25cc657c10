package engine

import (
	"errors"
	"fmt"
	"math/rand"
)

var (
	ErrIllegalAction = errors.New("illegal action")
	ErrRaiseTooSmall = errors.New("raise below minimum")
	ErrNotInPlay     = errors.New("no betting in progress")
)

var defaultSeats = [2]struct{ id, name string }{
	{"agent-1", "AI Agent Alpha"},
	{"agent-2", "AI Agent Beta"},
}

func InitializeGame(p1, p2 PlayerMeta, cfg Config, rng *rand.Rand) *GameState {
	if cfg.StartingTokens <= 0 || cfg.SmallBlind <= 0 || cfg.BigBlind < cfg.SmallBlind {
		panic(fmt.Sprintf("engine: bad config %+v", cfg))
	}
	s := &GameState{
		Deck:       ShuffleDeck(CreateDeck(), rng),
		Stage:      PreFlop,
		SmallBlind: cfg.SmallBlind,
		BigBlind:   cfg.BigBlind,
		Logs:       []string{"Game started!"},
	}
	for i, meta := range [2]PlayerMeta{p1, p2} {
		name := meta.Name
		if name == "" {
			name = defaultSeats[i].name
		}
		s.Players = append(s.Players, Player{
			ID:     defaultSeats[i].id,
			Name:   name,
			Tokens: cfg.StartingTokens,
			Hand:   []Card{},
			Handle: meta.Handle,
			Model:  meta.Model,
		})
	}
	return s
}

func StartNewRound(state *GameState, rng *rand.Rand) *GameState {
	if state.GameOver {
		panic("engine: new round on a finished game")
	}
	s := state.Clone()
	n := len(s.Players)

	s.Deck = ShuffleDeck(CreateDeck(), rng)
	s.CommunityCards = nil
	s.Pot = 0
	s.CurrentBet = 0
	s.Stage = PreFlop
	s.Winner = ""
	s.Result = nil
	s.Round++
	for i := range s.Players {
		p := &s.Players[i]
		p.Hand = p.Hand[:0]
		p.Folded = false
		p.CurrentBet = 0
		p.TotalBet = 0
		p.IsAllIn = false
	}

	s.DealerIndex = (s.DealerIndex + 1) % n

	// one card at a time, two passes
	for pass := 0; pass < 2; pass++ {
		for i := range s.Players {
			var dealt []Card
			dealt, s.Deck = DealCards(s.Deck, 1)
			s.Players[i].Hand = append(s.Players[i].Hand, dealt[0])
		}
	}

	sb := (s.DealerIndex + 1) % n
	bb := (s.DealerIndex + 2) % n
	s.logf("\n--- New Round ---")
	s.postBlind(sb, s.SmallBlind, "small")
	s.postBlind(bb, s.BigBlind, "big")
	s.CurrentBet = s.BigBlind
	s.CurrentPlayerIndex = (bb + 1) % n

	// a blind can put a short stack all-in before anyone acts
	if !s.CurrentPlayer().canAct() {
		s.CurrentPlayerIndex = s.nextPlayerIndex(s.CurrentPlayerIndex)
	}
	if s.actors() < 2 && s.bettingRoundComplete() {
		return s.advanceStage()
	}
	return s
}

func (s *GameState) postBlind(idx, amount int, kind string) {
	p := &s.Players[idx]
	paid := s.commit(p, amount)
	s.logf("%s posts %s blind: %d x402", p.Name, kind, paid)
}

// commit moves up to amount from p's stack into the pot and returns what was
// actually paid. Emptying the stack marks the seat all-in.
func (s *GameState) commit(p *Player, amount int) int {
	if amount > p.Tokens {
		amount = p.Tokens
	}
	if amount < 0 {
		amount = 0
	}
	p.Tokens -= amount
	p.CurrentBet += amount
	p.TotalBet += amount
	s.Pot += amount
	if p.Tokens == 0 {
		p.IsAllIn = true
	}
	return amount
}

// ProcessAction applies action for the seat at CurrentPlayerIndex. Payments
// are clamped to the stack; legality is the caller's job (see ValidateAction).
func ProcessAction(state *GameState, action Action) *GameState {
	if state.Stage == Showdown {
		panic("engine: action after showdown")
	}
	s := state.Clone()
	p := s.CurrentPlayer()

	switch action.Kind {
	case Fold:
		p.Folded = true
		s.logf("%s folds", p.Name)

	case Call:
		paid := s.commit(p, s.CurrentBet-p.CurrentBet)
		if p.IsAllIn {
			s.logf("%s calls %d x402 (ALL IN)", p.Name, paid)
		} else {
			s.logf("%s calls %d x402", p.Name, paid)
		}

	case Raise:
		if action.Amount < 0 {
			panic(fmt.Sprintf("engine: negative raise %d", action.Amount))
		}
		paid := s.commit(p, s.CurrentBet-p.CurrentBet+action.Amount)
		s.CurrentBet = p.CurrentBet
		if p.IsAllIn {
			s.logf("%s raises %d x402 (ALL IN)", p.Name, paid)
		} else {
			s.logf("%s raises to %d x402", p.Name, s.CurrentBet)
		}

	case AllIn:
		paid := s.commit(p, p.Tokens)
		p.IsAllIn = true
		if p.CurrentBet > s.CurrentBet {
			s.CurrentBet = p.CurrentBet
		}
		s.logf("%s goes ALL IN with %d x402", p.Name, paid)

	case Check:
		s.logf("%s checks", p.Name)

	default:
		panic(fmt.Sprintf("engine: unknown action %q", action.Kind))
	}

	s.CurrentPlayerIndex = s.nextPlayerIndex(s.CurrentPlayerIndex)

	if s.unfolded() <= 1 {
		return s.determineWinner()
	}
	if s.bettingRoundComplete() {
		return s.advanceStage()
	}
	return s
}

// nextPlayerIndex scans forward from `from` for a seat that can act. If none
// is found within one lap the last candidate is returned.
func (s *GameState) nextPlayerIndex(from int) int {
	n := len(s.Players)
	next := (from + 1) % n
	for i := 0; i < n && !s.Players[next].canAct(); i++ {
		next = (next + 1) % n
	}
	return next
}

func (s *GameState) unfolded() int {
	k := 0
	for _, p := range s.Players {
		if !p.Folded {
			k++
		}
	}
	return k
}

func (s *GameState) actors() int {
	k := 0
	for _, p := range s.Players {
		if p.canAct() {
			k++
		}
	}
	return k
}

func (s *GameState) bettingRoundComplete() bool {
	var active []*Player
	maxBet := 0
	for i := range s.Players {
		p := &s.Players[i]
		if p.CurrentBet > maxBet {
			maxBet = p.CurrentBet
		}
		if p.canAct() {
			active = append(active, p)
		}
	}
	switch len(active) {
	case 0:
		return true
	case 1:
		return active[0].CurrentBet >= s.CurrentBet
	}
	for _, p := range active {
		if p.CurrentBet != maxBet {
			return false
		}
	}
	return true
}

var streetCards = map[Stage]struct {
	next  Stage
	count int
	title string
}{
	PreFlop: {Flop, 3, "Flop"},
	Flop:    {Turn, 1, "Turn"},
	Turn:    {River, 1, "River"},
}

func (s *GameState) advanceStage() *GameState {
	for {
		for i := range s.Players {
			s.Players[i].CurrentBet = 0
		}
		s.CurrentBet = 0

		st, ok := streetCards[s.Stage]
		if !ok {
			return s.determineWinner()
		}
		var dealt []Card
		dealt, s.Deck = DealCards(s.Deck, st.count)
		s.CommunityCards = append(s.CommunityCards, dealt...)
		s.Stage = st.next
		s.logf("\n--- %s ---", st.title)
		s.logf("Community cards: %s", formatCards(s.CommunityCards))

		s.CurrentPlayerIndex = s.nextPlayerIndex(s.DealerIndex)

		// nobody left to bet against: run the board out
		if s.actors() >= 2 {
			return s
		}
	}
}

func (s *GameState) determineWinner() *GameState {
	s.Stage = Showdown
	s.logf("\n--- Showdown ---")

	var live []int
	for i := range s.Players {
		if !s.Players[i].Folded {
			live = append(live, i)
		}
	}

	res := &RoundResult{Amount: s.Pot}
	var winner *Player
	if len(live) == 1 {
		winner = &s.Players[live[0]]
		res.Uncontested = true
		s.logf("%s wins %d x402 (all others folded)", winner.Name, s.Pot)
	} else {
		res.Hands = make(map[string]HandRanking, len(live))
		res.Described = make(map[string]string, len(live))
		var best HandRanking
		for _, i := range live {
			p := &s.Players[i]
			h := EvaluateHand(p.Hand, s.CommunityCards)
			res.Hands[p.ID] = h
			res.Described[p.ID] = Describe(append(append([]Card(nil), p.Hand...), s.CommunityCards...))
			s.logf("%s: %s - %s", p.Name, formatCards(p.Hand), h.Name)
			// strict: an equal hand later in seat order does not take the pot.
			// TODO: split tied pots once chopping is confirmed as the wanted rule.
			if winner == nil || h.Beats(best) {
				best, winner = h, p
			}
		}
		s.logf("\n%s wins %d x402 with %s!", winner.Name, s.Pot, best.Name)
	}

	winner.Tokens += s.Pot
	res.WinnerID, res.WinnerName = winner.ID, winner.Name
	s.Winner = winner.Name
	s.Result = res
	s.Pot = 0

	var left []*Player
	for i := range s.Players {
		if s.Players[i].Tokens > 0 {
			left = append(left, &s.Players[i])
		}
	}
	if len(left) == 1 {
		s.GameOver = true
		s.logf("\n%s wins the game!", left[0].Name)
	}
	return s
}

// CanCheck reports whether the current seat has nothing to call.
func CanCheck(s *GameState) bool {
	p := s.CurrentPlayer()
	return p.CurrentBet == s.CurrentBet
}

// MinRaise is the smallest raise increment, always the big blind.
func MinRaise(s *GameState) int { return s.BigBlind }

func ToCall(s *GameState) int {
	d := s.CurrentBet - s.CurrentPlayer().CurrentBet
	if d < 0 {
		return 0
	}
	return d
}

// LegalActions lists what the current seat may do. It is empty once the round
// is at showdown or the seat can no longer act.
func LegalActions(s *GameState) []ActionKind {
	if s.Stage == Showdown {
		return nil
	}
	p := s.CurrentPlayer()
	if !p.canAct() {
		return nil
	}
	contested := false
	for i := range s.Players {
		if i != s.CurrentPlayerIndex && s.Players[i].canAct() {
			contested = true
		}
	}

	toCall := ToCall(s)
	var out []ActionKind
	if toCall == 0 {
		out = append(out, Check)
	} else {
		out = append(out, Fold, Call)
	}
	if contested && p.Tokens > toCall {
		out = append(out, Raise)
	}
	if p.Tokens > 0 && (contested || p.Tokens < toCall) {
		out = append(out, AllIn)
	}
	return out
}

// ValidateAction checks a against LegalActions and the minimum raise. A raise
// that puts the seat all-in is accepted below the minimum.
func ValidateAction(s *GameState, a Action) error {
	if s.Stage == Showdown {
		return ErrNotInPlay
	}
	legal := LegalActions(s)
	ok := false
	for _, k := range legal {
		if k == a.Kind {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("%w: %q (legal: %v)", ErrIllegalAction, a.Kind, legal)
	}
	if a.Kind == Raise {
		p := s.CurrentPlayer()
		if a.Amount < MinRaise(s) && ToCall(s)+a.Amount < p.Tokens {
			return fmt.Errorf("%w: %d < %d", ErrRaiseTooSmall, a.Amount, MinRaise(s))
		}
	}
	return nil
}
