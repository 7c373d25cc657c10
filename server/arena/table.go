// Package arena drives a heads-up game between two strategies and mirrors
// every chip movement into the token ledger and the mock chain.
package arena

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/decred/slog"

	"x402-arena/server/agent"
	"x402-arena/server/engine"
	"x402-arena/server/ledger"
)

// Settlement is the ledger side of the table. Payments return nil when the
// balance is short; AwardPot never does.
type Settlement interface {
	PayBlind(playerID string, amount int, kind ledger.BlindKind) *ledger.Transaction
	PayBet(playerID string, amount int) *ledger.Transaction
	PayResearchFee(playerID string, amount int) *ledger.Transaction
	AwardPot(playerID string, amount int) *ledger.Transaction
}

// Funder is implemented by settlements that need seats opened up front.
type Funder interface {
	InitializePlayer(playerID string, initial int)
}

// Recorder receives the id of every settled transaction.
type Recorder interface {
	AddTransaction(txID string) *ledger.Block
}

var ErrGameOver = errors.New("game over")

type Seat struct {
	Meta     engine.PlayerMeta
	Strategy agent.Strategy
}

type Config struct {
	Game           engine.Config
	EnableResearch bool
	// ResearchChance is the per-turn probability the table lets an agent
	// consider paid research at all.
	ResearchChance float64
	MaxRounds      int
	ActionDelay    time.Duration
}

func DefaultConfig() Config {
	return Config{
		Game:           engine.DefaultConfig(),
		EnableResearch: true,
		ResearchChance: 0.3,
		MaxRounds:      500,
	}
}

// Move is one entry of the move history.
type Move struct {
	Round      int             `json:"round"`
	Stage      engine.Stage    `json:"stage"`
	PlayerID   string          `json:"player_id"`
	PlayerName string          `json:"player"`
	Action     engine.Action   `json:"action"`
	Display    string          `json:"display"`
	Reasoning  string          `json:"thinking"`
	Research   bool            `json:"research"`
	Fallback   bool            `json:"fallback,omitempty"`
	Txs        []string        `json:"transactions,omitempty"`
	Timestamp  time.Time       `json:"timestamp"`
	Decision   *agent.Decision `json:"-"`
}

// Observer hooks let a front end follow the game. Any may be nil.
type Observer struct {
	RoundStarted func(s *engine.GameState)
	Moved        func(m Move, s *engine.GameState)
	RoundSettled func(s *engine.GameState)
}

// Table owns one game. Reads (State, Moves) are safe from other goroutines
// while a single goroutine plays.
type Table struct {
	cfg    Config
	seats  map[string]agent.Strategy
	settle Settlement
	chain  Recorder
	obs    Observer
	log    slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	mu    sync.RWMutex
	state *engine.GameState
	moves []Move
	fees  map[string]int
}

// New seats the two strategies and funds them in the ledger when it
// supports that. chain may be nil.
func New(cfg Config, seats [2]Seat, settle Settlement, chain Recorder, rng *rand.Rand, log slog.Logger) *Table {
	if log == nil {
		log = slog.Disabled
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if cfg.MaxRounds <= 0 {
		cfg.MaxRounds = DefaultConfig().MaxRounds
	}
	t := &Table{
		cfg:    cfg,
		settle: settle,
		chain:  chain,
		log:    log,
		rng:    rng,
		seats:  map[string]agent.Strategy{},
		fees:   map[string]int{},
	}
	t.state = engine.InitializeGame(seats[0].Meta, seats[1].Meta, cfg.Game, rng)
	for i, p := range t.state.Players {
		t.seats[p.ID] = seats[i].Strategy
		if f, ok := settle.(Funder); ok {
			f.InitializePlayer(p.ID, p.Tokens)
		}
	}
	return t
}

func (t *Table) SetObserver(o Observer) { t.obs = o }

// State returns a copy of the current game state.
func (t *Table) State() *engine.GameState {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.state.Clone()
}

func (t *Table) Moves() []Move {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]Move(nil), t.moves...)
}

// ResearchSpent is what each seat has paid for research this game.
func (t *Table) ResearchSpent() map[string]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[string]int, len(t.fees))
	for k, v := range t.fees {
		out[k] = v
	}
	return out
}

func (t *Table) float() float64 {
	t.rngMu.Lock()
	defer t.rngMu.Unlock()
	return t.rng.Float64()
}

// StartRound deals a new round and posts the blinds to the ledger.
func (t *Table) StartRound() error {
	t.mu.Lock()
	before := t.state
	if before.GameOver {
		t.mu.Unlock()
		return ErrGameOver
	}
	t.rngMu.Lock()
	after := engine.StartNewRound(before, t.rng)
	t.rngMu.Unlock()
	t.state = after
	t.mu.Unlock()

	sb := (after.DealerIndex + 1) % len(after.Players)
	for i, p := range after.Players {
		if p.TotalBet == 0 {
			continue
		}
		kind := ledger.BigBlind
		if i == sb {
			kind = ledger.SmallBlind
		}
		t.record(t.settle.PayBlind(p.ID, p.TotalBet, kind), "blind", p.ID)
	}
	t.log.Infof("round %d: %s deals, pot %d", after.Round, after.Players[after.DealerIndex].Name, after.Pot)
	if t.obs.RoundStarted != nil {
		t.obs.RoundStarted(after.Clone())
	}
	t.settleIfDone(before, after)
	return nil
}

// Step asks the seat on turn for a decision and applies it.
func (t *Table) Step(ctx context.Context) (Move, error) {
	s := t.State()
	if s.Stage == engine.Showdown {
		return Move{}, fmt.Errorf("step at showdown")
	}
	p := s.CurrentPlayer()
	strategy := t.seats[p.ID]

	allow := t.cfg.EnableResearch && t.float() < t.cfg.ResearchChance
	d, err := strategy.Decide(agent.WithResearchAllowed(ctx, allow), s, p.ID)
	if err != nil {
		if ctx.Err() != nil {
			return Move{}, ctx.Err()
		}
		t.log.Warnf("%s: strategy error, falling back: %v", p.Name, err)
		d = agent.Decision{Action: passive(s), Reasoning: "Strategy failed - " + err.Error()}
	}

	fallback := false
	if err := engine.ValidateAction(s, d.Action); err != nil {
		t.log.Warnf("%s: rejected %s: %v", p.Name, d.Action.Kind, err)
		d.Action = passive(s)
		fallback = true
	}

	m := Move{
		Round:      s.Round,
		Stage:      s.Stage,
		PlayerID:   p.ID,
		PlayerName: p.Name,
		Action:     d.Action,
		Display:    display(s, d.Action),
		Reasoning:  d.Reasoning,
		Research:   d.Research != nil,
		Fallback:   fallback,
		Timestamp:  time.Now(),
		Decision:   &d,
	}

	if d.Research != nil {
		if id := t.record(t.settle.PayResearchFee(p.ID, d.Research.Cost), "research fee", p.ID); id != "" {
			m.Txs = append(m.Txs, id)
			t.mu.Lock()
			t.fees[p.ID] += d.Research.Cost
			t.mu.Unlock()
		}
	}

	t.mu.Lock()
	if t.state.Round != s.Round || t.state.CurrentPlayerIndex != s.CurrentPlayerIndex || t.state.Stage != s.Stage {
		t.mu.Unlock()
		return Move{}, fmt.Errorf("table moved while %s was deciding", p.Name)
	}
	before := t.state
	after := engine.ProcessAction(before, d.Action)
	t.state = after
	t.mu.Unlock()

	if paid := after.Players[before.CurrentPlayerIndex].TotalBet - before.Players[before.CurrentPlayerIndex].TotalBet; paid > 0 {
		if id := t.record(t.settle.PayBet(p.ID, paid), "bet", p.ID); id != "" {
			m.Txs = append(m.Txs, id)
		}
	}
	t.log.Debugf("%s %s", p.Name, m.Display)

	t.mu.Lock()
	t.moves = append(t.moves, m)
	t.mu.Unlock()
	if t.obs.Moved != nil {
		t.obs.Moved(m, after.Clone())
	}
	t.settleIfDone(before, after)
	return m, nil
}

// settleIfDone mirrors a fresh pot award into the ledger.
func (t *Table) settleIfDone(before, after *engine.GameState) {
	if after.Stage != engine.Showdown || after.Result == nil {
		return
	}
	if before.Stage == engine.Showdown && before.Round == after.Round {
		return
	}
	res := after.Result
	t.record(t.settle.AwardPot(res.WinnerID, res.Amount), "award", res.WinnerID)
	t.log.Infof("round %d: %s wins %d", after.Round, res.WinnerName, res.Amount)
	if t.obs.RoundSettled != nil {
		t.obs.RoundSettled(after.Clone())
	}
}

// record chains tx and returns its id; a nil tx is a ledger shortfall and is
// only logged.
func (t *Table) record(tx *ledger.Transaction, what, playerID string) string {
	if tx == nil {
		t.log.Warnf("ledger refused %s for %s; game state unaffected", what, playerID)
		return ""
	}
	if t.chain != nil {
		t.chain.AddTransaction(tx.ID)
	}
	return tx.ID
}

// PlayRound plays the current round to showdown, starting one first when the
// previous round is finished.
func (t *Table) PlayRound(ctx context.Context) (*engine.RoundResult, error) {
	s := t.State()
	if s.Round == 0 || s.Stage == engine.Showdown {
		if err := t.StartRound(); err != nil {
			return nil, err
		}
	}
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s = t.State()
		if s.Stage == engine.Showdown {
			return s.Result, nil
		}
		if _, err := t.Step(ctx); err != nil {
			return nil, err
		}
		if t.cfg.ActionDelay > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(t.cfg.ActionDelay):
			}
		}
	}
}

type GameResult struct {
	Winner   string         `json:"winner"`   // player id, empty when capped
	Rounds   int            `json:"rounds"`   // rounds played
	Capped   bool           `json:"capped"`   // stopped at MaxRounds
	Stacks   map[string]int `json:"stacks"`   // final tokens
	Research map[string]int `json:"research"` // fees paid
}

// PlayGame plays rounds until one seat has all the chips or MaxRounds is
// reached. A capped game is won by the bigger stack, if any.
func (t *Table) PlayGame(ctx context.Context) (GameResult, error) {
	for {
		s := t.State()
		if s.GameOver || s.Round >= t.cfg.MaxRounds {
			break
		}
		if _, err := t.PlayRound(ctx); err != nil {
			return GameResult{}, err
		}
	}
	s := t.State()
	res := GameResult{Rounds: s.Round, Capped: !s.GameOver, Stacks: map[string]int{}, Research: t.ResearchSpent()}
	best := -1
	for _, p := range s.Players {
		res.Stacks[p.ID] = p.Tokens
		switch {
		case p.Tokens > best:
			best, res.Winner = p.Tokens, p.ID
		case p.Tokens == best:
			res.Winner = ""
		}
	}
	if res.Capped {
		t.log.Warnf("game capped at %d rounds", s.Round)
	}
	return res, nil
}

// passive is the safe fallback: check when free, otherwise fold.
func passive(s *engine.GameState) engine.Action {
	if engine.CanCheck(s) {
		return engine.CheckAction()
	}
	return engine.FoldAction()
}

func display(s *engine.GameState, a engine.Action) string {
	p := s.CurrentPlayer()
	switch a.Kind {
	case engine.Call:
		return fmt.Sprintf("CALLS %d", min(s.CurrentBet-p.CurrentBet, p.Tokens))
	case engine.Raise:
		return fmt.Sprintf("RAISES TO %d", min(s.CurrentBet+a.Amount, p.CurrentBet+p.Tokens))
	case engine.AllIn:
		return "ALL IN!"
	case engine.Fold:
		return "FOLDS"
	default:
		return "CHECKS"
	}
}
