package agent

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/decred/slog"

	"x402-arena/server/engine"
)

// Equity plays by Monte Carlo equity against one random hand: it calls when
// equity covers the pot odds and bets for value when well ahead.
type Equity struct {
	model  string
	trials int
	log    slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewEquity(model string, trials int, rng *rand.Rand, log slog.Logger) *Equity {
	if trials <= 0 {
		trials = 500
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if log == nil {
		log = slog.Disabled
	}
	return &Equity{model: model, trials: trials, rng: rng, log: log}
}

func (e *Equity) Decide(ctx context.Context, state *engine.GameState, playerID string) (Decision, error) {
	p, err := seat(state, playerID)
	if err != nil {
		return Decision{}, err
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	e.mu.Lock()
	eq := engine.Equity(p.Hand, state.CommunityCards, e.trials, e.rng.Intn)
	e.mu.Unlock()

	toCall := engine.ToCall(state)
	odds := potOdds(state, p)
	valueBet := func(frac float64) engine.Action {
		amt := int(float64(state.Pot+toCall) * frac)
		if amt < engine.MinRaise(state) {
			amt = engine.MinRaise(state)
		}
		return engine.RaiseAction(amt)
	}

	var a engine.Action
	var why string
	switch {
	case toCall == 0 && eq > 0.65:
		a, why = valueBet(0.5), "ahead, betting half pot"
	case toCall == 0:
		a, why = engine.CheckAction(), "no edge, checking"
	case eq > 0.8:
		a, why = valueBet(0.75), "well ahead, raising"
	case eq >= odds:
		a, why = engine.CallAction(), "price is right, calling"
	default:
		a, why = engine.FoldAction(), "equity below pot odds, folding"
	}
	a = sanitize(state, a)

	label := e.model
	if label == "" {
		label = "equity"
	}
	reason := fmt.Sprintf("[Using %s] Holding %s", label, cardList(p.Hand))
	if len(state.CommunityCards) > 0 {
		reason += " on " + cardList(state.CommunityCards)
	}
	reason += fmt.Sprintf(". Equity %.1f%% over %d run-outs", eq*100, e.trials)
	if toCall > 0 {
		reason += fmt.Sprintf(", pot odds %.1f%%", odds*100)
	}
	reason += ": " + why + "."
	e.log.Tracef("%s equity=%.3f odds=%.3f -> %s", p.Name, eq, odds, a.Kind)
	return Decision{Action: a, Reasoning: reason}, nil
}
