package agent

import (
	"context"
	"errors"
	"fmt"

	"x402-arena/server/engine"
)

var (
	ErrNotYourTurn   = errors.New("not this player's turn")
	ErrUnknownPlayer = errors.New("player not found")
)

// DefaultModel labels agents that were not given a model.
const DefaultModel = "anthropic/claude-sonnet-4.5"

// Strategy picks an action for playerID, who must be on turn.
type Strategy interface {
	Decide(ctx context.Context, state *engine.GameState, playerID string) (Decision, error)
}

type ResearchResult struct {
	Query  string `json:"query"`
	Result string `json:"result"`
	Cost   int    `json:"cost"`
}

type Decision struct {
	Action    engine.Action   `json:"action"`
	Reasoning string          `json:"reasoning"`
	Research  *ResearchResult `json:"research,omitempty"`
}

type researchKey struct{}

// WithResearchAllowed lets the table veto paid research for one decision.
func WithResearchAllowed(ctx context.Context, allowed bool) context.Context {
	return context.WithValue(ctx, researchKey{}, allowed)
}

func researchAllowed(ctx context.Context) bool {
	v, ok := ctx.Value(researchKey{}).(bool)
	return !ok || v
}

func seat(state *engine.GameState, playerID string) (*engine.Player, error) {
	p := state.Player(playerID)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownPlayer, playerID)
	}
	if state.CurrentPlayer().ID != playerID {
		return nil, fmt.Errorf("%w: %s", ErrNotYourTurn, playerID)
	}
	return p, nil
}

func opponent(state *engine.GameState, playerID string) *engine.Player {
	for i := range state.Players {
		if state.Players[i].ID != playerID {
			return &state.Players[i]
		}
	}
	return nil
}

// Observation is the seat's view of the table sent to model-backed agents.
type Observation struct {
	Round      int            `json:"round"`
	Seat       string         `json:"seat"`       // "small_blind" | "big_blind"
	Street     string         `json:"street"`     // pre-flop|flop|turn|river
	HoleCards  []string       `json:"hole_cards"` // e.g. ["As","Kd"]
	Board      []string       `json:"board"`      // 0..5 cards
	Stacks     map[string]int `json:"stacks"`     // {hero, villain} chips behind
	Blinds     map[string]int `json:"blinds"`     // {sb, bb}
	Pot        int            `json:"pot"`
	ToCall     int            `json:"to_call"`
	Committed  int            `json:"committed"`     // hero's bet this street
	TableBet   int            `json:"table_bet"`     // highest bet this street
	MinRaiseTo int            `json:"min_raise_to"`  // absolute raise-to
	MaxRaiseTo int            `json:"max_raise_to"`  // absolute raise-to (all-in)
	Legal      []string       `json:"legal_actions"` // subset of fold/check/call/raise/all-in
}

type ActionOut struct {
	Action  string `json:"action"`           // fold|check|call|raise|all-in
	Amount  *int   `json:"amount,omitempty"` // raise-to, required if raise
	Comment string `json:"comment,omitempty"`
}

// BuildObservation converts engine state into the view for playerID.
func BuildObservation(state *engine.GameState, playerID string) (Observation, error) {
	p, err := seat(state, playerID)
	if err != nil {
		return Observation{}, err
	}
	o := opponent(state, playerID)

	pos := "big_blind"
	if state.PlayerIndex(playerID) != state.DealerIndex {
		pos = "small_blind"
	}
	legal := []string{}
	for _, k := range engine.LegalActions(state) {
		legal = append(legal, string(k))
	}
	maxTo := p.CurrentBet + p.Tokens
	minTo := state.CurrentBet + engine.MinRaise(state)
	if minTo > maxTo {
		minTo = maxTo
	}
	villain := 0
	if o != nil {
		villain = o.Tokens
	}

	return Observation{
		Round:      state.Round,
		Seat:       pos,
		Street:     string(state.Stage),
		HoleCards:  asciiCards(p.Hand),
		Board:      asciiCards(state.CommunityCards),
		Stacks:     map[string]int{"hero": p.Tokens, "villain": villain},
		Blinds:     map[string]int{"sb": state.SmallBlind, "bb": state.BigBlind},
		Pot:        state.Pot,
		ToCall:     engine.ToCall(state),
		Committed:  p.CurrentBet,
		TableBet:   state.CurrentBet,
		MinRaiseTo: minTo,
		MaxRaiseTo: maxTo,
		Legal:      legal,
	}, nil
}

func asciiCards(cs []engine.Card) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.ASCII()
	}
	return out
}

// Validate the model's action against the observation.
func Validate(o Observation, a ActionOut) error {
	ok := false
	for _, la := range o.Legal {
		if la == a.Action {
			ok = true
			break
		}
	}
	if !ok {
		return fmt.Errorf("illegal action %q (legals: %v)", a.Action, o.Legal)
	}
	if a.Action == string(engine.Raise) {
		if a.Amount == nil {
			return fmt.Errorf("raise requires amount")
		}
		if *a.Amount < o.MinRaiseTo || *a.Amount > o.MaxRaiseTo {
			return fmt.Errorf("raise amount %d out of bounds [%d, %d]", *a.Amount, o.MinRaiseTo, o.MaxRaiseTo)
		}
	}
	return nil
}

// ToAction maps a validated ActionOut onto an engine action. Raise-to becomes
// the increment over the table bet.
func (o Observation) ToAction(a ActionOut) engine.Action {
	switch engine.ActionKind(a.Action) {
	case engine.Raise:
		inc := *a.Amount - o.TableBet
		if inc < 0 {
			inc = 0
		}
		return engine.RaiseAction(inc)
	case engine.Call:
		if o.ToCall == 0 {
			return engine.CheckAction()
		}
		return engine.CallAction()
	default:
		return engine.Action{Kind: engine.ActionKind(a.Action)}
	}
}

// sanitize maps an action that is not legal here onto the closest legal one.
func sanitize(state *engine.GameState, a engine.Action) engine.Action {
	legal := engine.LegalActions(state)
	has := func(k engine.ActionKind) bool {
		for _, l := range legal {
			if l == k {
				return true
			}
		}
		return false
	}
	if has(a.Kind) {
		return a
	}
	if a.Kind != engine.Check {
		if (a.Kind == engine.Raise || a.Kind == engine.AllIn) && has(engine.Call) {
			return engine.CallAction()
		}
		if has(engine.Check) {
			return engine.CheckAction()
		}
	}
	return engine.FoldAction()
}
