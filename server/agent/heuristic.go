package agent

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"

	"x402-arena/server/engine"
	"x402-arena/server/research"
)

// DefaultResearchCost is what one research lookup costs in x402.
const DefaultResearchCost = 50

type HeuristicConfig struct {
	Model          string
	EnableResearch bool
	ResearchCost   int
	Researcher     research.Researcher
	Rand           *rand.Rand
	Log            slog.Logger
}

// Heuristic is a randomized rule-of-thumb player. It weighs its made hand,
// occasionally pays for research when the hand is marginal and the pot is
// worth it, and explains itself in plain text.
type Heuristic struct {
	model      string
	research   bool
	cost       int
	researcher research.Researcher
	log        slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

func NewHeuristic(cfg HeuristicConfig) *Heuristic {
	h := &Heuristic{
		model:      cfg.Model,
		research:   cfg.EnableResearch,
		cost:       cfg.ResearchCost,
		researcher: cfg.Researcher,
		log:        cfg.Log,
		rng:        cfg.Rand,
	}
	if h.model == "" {
		h.model = DefaultModel
	}
	if h.cost <= 0 {
		h.cost = DefaultResearchCost
	}
	if h.log == nil {
		h.log = slog.Disabled
	}
	if h.rng == nil {
		h.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return h
}

func (h *Heuristic) float() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Float64()
}

func (h *Heuristic) intn(n int) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.rng.Intn(n)
}

// madeHand evaluates the seat's best hand; before the flop it is rank 0.
func madeHand(state *engine.GameState, p *engine.Player) engine.HandRanking {
	if len(state.CommunityCards) == 0 {
		return engine.HandRanking{Rank: 0, Name: "Unknown"}
	}
	return engine.EvaluateHand(p.Hand, state.CommunityCards)
}

func potOdds(state *engine.GameState, p *engine.Player) float64 {
	if state.Pot <= 0 {
		return 0
	}
	toCall := float64(state.CurrentBet - p.CurrentBet)
	return toCall / (float64(state.Pot) + toCall)
}

func (h *Heuristic) Decide(ctx context.Context, state *engine.GameState, playerID string) (Decision, error) {
	p, err := seat(state, playerID)
	if err != nil {
		return Decision{}, err
	}
	hand := madeHand(state, p)
	odds := potOdds(state, p)

	var res *ResearchResult
	if h.shouldResearch(ctx, state, p, hand) {
		q := h.researchQuery(state, p)
		res = &ResearchResult{
			Query:  q,
			Result: research.Lookup(ctx, h.researcher, q, h.log),
			Cost:   h.cost,
		}
		h.log.Debugf("%s researched %q", p.Name, q)
	}

	detail := h.explain(state, p, hand, odds, res)
	d := h.decide(state, p, hand, res)
	d.Action = sanitize(state, d.Action)
	d.Reasoning = detail + " " + d.Reasoning
	return d, nil
}

func (h *Heuristic) shouldResearch(ctx context.Context, state *engine.GameState, p *engine.Player, hand engine.HandRanking) bool {
	return h.research && researchAllowed(ctx) &&
		p.Tokens >= h.cost &&
		state.Pot > 100 &&
		hand.Rank <= engine.RankTwoPair &&
		h.float() > 0.7
}

func (h *Heuristic) researchQuery(state *engine.GameState, p *engine.Player) string {
	queries := [...]string{
		fmt.Sprintf("poker strategy %s with community cards %s", cardList(p.Hand), cardList(state.CommunityCards)),
		"texas holdem pot odds calculation when to fold",
		"poker bluffing strategy optimal frequency",
		"poker hand equity calculator pre-flop odds",
	}
	return queries[h.intn(len(queries))]
}

func cardList(cs []engine.Card) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

func (h *Heuristic) decide(state *engine.GameState, p *engine.Player, hand engine.HandRanking, res *ResearchResult) Decision {
	callAmount := state.CurrentBet - p.CurrentBet
	canAffordCall := p.Tokens >= callAmount
	checkAvailable := engine.CanCheck(state)
	minRaise := engine.MinRaise(state)

	aggressiveness := 0.3 + h.float()*0.4
	if res != nil {
		lower := strings.ToLower(res.Result)
		if strings.Contains(lower, "aggressive") || strings.Contains(lower, "raise") {
			aggressiveness += 0.1
		}
		if strings.Contains(lower, "fold") || strings.Contains(lower, "conservative") {
			aggressiveness -= 0.1
		}
	}
	aggressiveness += (float64(hand.Rank) + h.float()*2) / 10 * 0.3

	r := h.float()
	// aggressiveness shifts the raise thresholds around their neutral point
	push := r + (aggressiveness-0.65)*0.25
	var a engine.Action
	var why string

	switch {
	case hand.Rank >= engine.RankFullHouse:
		switch {
		case push > 0.7 && p.Tokens > callAmount+minRaise:
			amt := int(math.Max(math.Floor(float64(state.Pot)*(0.4+r*0.5)), float64(minRaise)))
			a = engine.RaiseAction(min(amt, p.Tokens-callAmount))
			why = fmt.Sprintf("Strong hand (%s) - raising to %d", hand.Name, amt)
		case canAffordCall:
			a = engine.CallAction()
			why = fmt.Sprintf("Strong hand (%s) - slow playing with a call", hand.Name)
		case checkAvailable:
			a = engine.CheckAction()
			why = fmt.Sprintf("Strong hand (%s) - checking", hand.Name)
		default:
			a = engine.FoldAction()
			why = "Can't afford to continue despite strong hand"
		}

	case hand.Rank >= engine.RankThreeOfAKind:
		switch {
		case push > 0.65 && p.Tokens > callAmount+minRaise:
			a = engine.RaiseAction(minRaise + int(math.Floor(r*float64(state.BigBlind)*2)))
			why = fmt.Sprintf("Medium hand (%s) - raising as a test", hand.Name)
		case canAffordCall && r > 0.3:
			a = engine.CallAction()
			why = fmt.Sprintf("Medium hand (%s) - calling to see more", hand.Name)
		case checkAvailable:
			a = engine.CheckAction()
			why = fmt.Sprintf("Medium hand (%s) - checking", hand.Name)
		case r > 0.6:
			a = engine.FoldAction()
			why = "Medium hand but deciding to fold"
		case canAffordCall && callAmount <= state.BigBlind*2:
			a = engine.CallAction()
			why = "Medium hand - small bet so calling"
		default:
			a = engine.FoldAction()
			why = "Medium hand but folding"
		}

	default:
		switch {
		case checkAvailable:
			a = engine.CheckAction()
			why = fmt.Sprintf("Weak hand (%s) - checking", hand.Name)
		case push > 0.85 && p.Tokens > callAmount+minRaise*3:
			a = engine.RaiseAction(minRaise * 2)
			why = "Weak hand but bluffing with a raise"
		case callAmount <= state.BigBlind && canAffordCall && r > 0.5:
			a = engine.CallAction()
			why = "Weak hand but small bet - calling"
		default:
			a = engine.FoldAction()
			why = fmt.Sprintf("Weak hand (%s) - folding", hand.Name)
		}
	}

	if res != nil {
		why += fmt.Sprintf(" [Research: %s...]", prefix(res.Result, 60))
	}
	return Decision{Action: a, Reasoning: why, Research: res}
}

// prefix keeps the first n runes of s.
func prefix(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

func (h *Heuristic) explain(state *engine.GameState, p *engine.Player, hand engine.HandRanking, odds float64, res *ResearchResult) string {
	var parts []string

	label := h.model
	if i := strings.Index(label, "/"); i >= 0 && i+1 < len(label) {
		label = label[i+1:]
	}
	parts = append(parts, fmt.Sprintf("[Using %s]", label))
	parts = append(parts, fmt.Sprintf("Looking at my hand: %s.", cardList(p.Hand)))
	if len(state.CommunityCards) > 0 {
		parts = append(parts, fmt.Sprintf("Community cards on the table: %s.", cardList(state.CommunityCards)))
	}
	parts = append(parts, fmt.Sprintf("Current hand strength: %s (rank %d/10).", hand.Name, hand.Rank))

	if call := state.CurrentBet - p.CurrentBet; call > 0 {
		parts = append(parts, fmt.Sprintf("Would need to call %d chips into a pot of %d chips.", call, state.Pot))
		parts = append(parts, fmt.Sprintf("Pot odds: %.1f%%.", odds*100))
	}

	if total := p.Tokens + state.Pot; total > 0 {
		ratio := float64(p.Tokens) / float64(total)
		switch {
		case ratio < 0.3:
			parts = append(parts, fmt.Sprintf("My stack is getting short (%d chips), need to be aggressive.", p.Tokens))
		case ratio > 0.7:
			parts = append(parts, fmt.Sprintf("I have a healthy stack (%d chips), can be patient.", p.Tokens))
		}
	}

	if res != nil {
		parts = append(parts, "Research insight: "+res.Result)
	}

	if o := opponent(state, p.ID); o != nil {
		parts = append(parts, fmt.Sprintf("Opponent has %d!", o.Tokens))
		if o.CurrentBet > state.BigBlind*2 {
			parts = append(parts, "They're betting aggressively, might have a strong hand or bluffing.")
		}
	}
	return strings.Join(parts, " ")
}
