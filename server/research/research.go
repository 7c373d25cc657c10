// Package research is the web-research collaborator agents may pay to consult.
// The in-process source returns canned strategy notes; Client talks to a
// remote /api/research endpoint served by Handler.
package research

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/decred/slog"
)

// Unavailable is what agents see when a lookup fails.
const Unavailable = "Research unavailable - proceeding with basic strategy"

var ErrEmptyQuery = errors.New("empty research query")

type Researcher interface {
	Research(ctx context.Context, query string) (string, error)
}

var cannedResults = [...]string{
	"Aggressive play in poker typically yields 15-20% better results in tournament play. When you have position advantage, raising 3x the big blind is optimal.",
	"Pot odds calculation: If the pot is $100 and you need to call $20, you're getting 5:1 odds. You should call if your hand has better than 16.7% equity.",
	"Bluffing frequency should be around 30-40% of the time in late position with weak holdings to maintain unpredictability and maximize EV.",
	"Pre-flop equity depends heavily on position. Premium pairs (AA, KK, QQ) have 80%+ equity heads-up but decreases with more players.",
	"Conservative fold rates of 70-80% pre-flop are optimal for long-term profitability. Only play top 15-20% of starting hands.",
	"When short-stacked (less than 10 big blinds), push-fold strategy becomes optimal. Calculate all-in equity vs. opponent calling range.",
}

// Canned picks one of a fixed set of strategy notes at random. Delay
// simulates lookup latency and is cut short by ctx.
type Canned struct {
	Delay time.Duration

	mu  sync.Mutex
	rng *rand.Rand
}

func NewCanned(rng *rand.Rand) *Canned {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Canned{rng: rng}
}

func (c *Canned) Research(ctx context.Context, query string) (string, error) {
	if strings.TrimSpace(query) == "" {
		return "", ErrEmptyQuery
	}
	if c.Delay > 0 {
		t := time.NewTimer(c.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	c.mu.Lock()
	i := c.rng.Intn(len(cannedResults))
	c.mu.Unlock()
	return cannedResults[i], nil
}

type request struct {
	Query string `json:"query"`
}

type response struct {
	Result string `json:"result"`
	Query  string `json:"query"`
}

// Client posts queries to a remote research endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	log     slog.Logger
}

func NewClient(baseURL string, log slog.Logger) *Client {
	if log == nil {
		log = slog.Disabled
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		log:     log,
	}
}

func (c *Client) Research(ctx context.Context, query string) (string, error) {
	b, _ := json.Marshal(request{Query: query})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/research", bytes.NewReader(b))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("research request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("research http %d", resp.StatusCode)
	}
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode research response: %w", err)
	}
	return out.Result, nil
}

// Lookup never fails: errors are logged and replaced with Unavailable.
func Lookup(ctx context.Context, r Researcher, query string, log slog.Logger) string {
	if r == nil {
		return Unavailable
	}
	res, err := r.Research(ctx, query)
	if err != nil {
		if log != nil {
			log.Warnf("research %q failed: %v", query, err)
		}
		return Unavailable
	}
	return res
}

// Handler serves POST /api/research from src.
func Handler(src Researcher, log slog.Logger) http.HandlerFunc {
	if log == nil {
		log = slog.Disabled
	}
	return func(w http.ResponseWriter, r *http.Request) {
		var req request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
			return
		}
		res, err := src.Research(r.Context(), req.Query)
		if errors.Is(err, ErrEmptyQuery) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
			return
		}
		if err != nil {
			log.Errorf("research API error: %v", err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Research failed"})
			return
		}
		writeJSON(w, http.StatusOK, response{Result: res, Query: req.Query})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
