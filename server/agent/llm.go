package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/decred/slog"

	"x402-arena/server/engine"
	"x402-arena/server/llm"
)

const systemPrompt = `You are a heads-up no-limit Texas Hold'em player competing for x402 tokens.
You receive the table state as JSON. Reply with one JSON object:
{"action": <one of legal_actions>, "amount": <raise-to when action is "raise", else null>, "comment": <one or two sentences>}.
Amounts are absolute bets for the current street and must lie in [min_raise_to, max_raise_to].`

type chooseFunc func(ctx context.Context, model, system, user string, legal []string, minTo, maxTo int, opts llm.PingOptions) (llm.Choice, error)

// LLM asks a chat-completions model for each action and falls back to
// another strategy when the call fails or the answer is unusable.
type LLM struct {
	model    string
	timeout  time.Duration
	fallback Strategy
	opts     llm.PingOptions
	choose   chooseFunc
	log      slog.Logger
}

func NewLLM(model string, timeout time.Duration, fallback Strategy, log slog.Logger) *LLM {
	if model == "" {
		model = DefaultModel
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	if log == nil {
		log = slog.Disabled
	}
	return &LLM{
		model:    model,
		timeout:  timeout,
		fallback: fallback,
		opts:     llm.EnvPingOptions(),
		choose:   llm.ChooseAction,
		log:      log,
	}
}

func (l *LLM) Decide(ctx context.Context, state *engine.GameState, playerID string) (Decision, error) {
	obs, err := BuildObservation(state, playerID)
	if err != nil {
		return Decision{}, err
	}

	d, err := l.ask(ctx, obs)
	if err == nil {
		return d, nil
	}
	if l.fallback == nil {
		return Decision{}, fmt.Errorf("llm %s: %w", l.model, err)
	}
	l.log.Warnf("llm %s failed, falling back: %v", l.model, err)
	return l.fallback.Decide(ctx, state, playerID)
}

func (l *LLM) ask(ctx context.Context, obs Observation) (Decision, error) {
	user, err := json.Marshal(obs)
	if err != nil {
		return Decision{}, err
	}
	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	c, err := l.choose(ctx, l.model, systemPrompt, string(user), obs.Legal, obs.MinRaiseTo, obs.MaxRaiseTo, l.opts)
	if err != nil {
		return Decision{}, err
	}
	out := ActionOut{Action: c.Action, Amount: c.RaiseTo, Comment: c.Comment}
	if err := Validate(obs, out); err != nil {
		return Decision{}, err
	}

	reason := fmt.Sprintf("[Using %s]", l.model)
	if talk := strings.TrimSpace(out.Comment); talk != "" {
		reason += " " + talk
	}
	return Decision{Action: obs.ToAction(out), Reasoning: reason}, nil
}
