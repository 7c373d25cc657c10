package main

import (
	"math"
	"math/rand"
	"sort"
	"sync"

	"x402-arena/server/arena"
	"x402-arena/server/engine"
)

type AgentStats struct {
	Name     string `json:"name"`
	Model    string `json:"model"`
	Strategy string `json:"strategy"`

	Games        int `json:"games"`
	GameWins     int `json:"game_wins"`
	Rounds       int `json:"rounds"`
	RoundsWon    int `json:"rounds_won"`
	ShowdownsWon int `json:"showdowns_won"`

	Folds  int `json:"folds"`
	Checks int `json:"checks"`
	Calls  int `json:"calls"`
	Raises int `json:"raises"`
	AllIns int `json:"all_ins"`

	Research      int `json:"research"`
	ResearchSpent int `json:"research_spent"`
	Fallbacks     int `json:"fallbacks"`
	NetChips      int `json:"net_chips"`
}

// AF is the aggression factor, (raises + all-ins) / calls.
func (s *AgentStats) AF() float64 {
	aggr := s.Raises + s.AllIns
	if s.Calls == 0 {
		return float64(aggr)
	}
	return float64(aggr) / float64(s.Calls)
}

func (s *AgentStats) BBPer100(bb int) float64 {
	if s.Rounds == 0 || bb <= 0 {
		return 0
	}
	return (float64(s.NetChips) / float64(bb)) / (float64(s.Rounds) / 100.0)
}

func (s *AgentStats) addMove(m arena.Move) {
	switch m.Action.Kind {
	case engine.Fold:
		s.Folds++
	case engine.Check:
		s.Checks++
	case engine.Call:
		s.Calls++
	case engine.Raise:
		s.Raises++
	case engine.AllIn:
		s.AllIns++
	}
	if m.Research {
		s.Research++
	}
	if m.Fallback {
		s.Fallbacks++
	}
}

// Ratings accumulates stats and Elo across a series. Seat order is fixed:
// agent-1 is side A.
type Ratings struct {
	mu      sync.Mutex
	bb      int
	start   int
	perRnd  bool
	elo     Elo
	stats   map[string]*AgentStats
	order   []string
	wins    int // games won by agent-1
	ties    int
	games   int
	margins []float64 // agent-1 net / starting tokens, per game
	rng     *rand.Rand
}

func NewRatings(cfg Config, rng *rand.Rand) *Ratings {
	r := &Ratings{
		bb:     cfg.Game.BigBlind,
		start:  cfg.Game.StartingTokens,
		perRnd: cfg.EloPerRound,
		elo:    NewElo(cfg.EloStart, cfg.EloK),
		stats:  map[string]*AgentStats{},
		rng:    rng,
	}
	for i, p := range cfg.Players {
		id := seatID(i)
		r.order = append(r.order, id)
		r.stats[id] = &AgentStats{Name: p.Meta.Name, Model: p.Meta.Model, Strategy: p.Strategy}
	}
	return r
}

func seatID(i int) string {
	if i == 0 {
		return "agent-1"
	}
	return "agent-2"
}

func (r *Ratings) ObserveMove(m arena.Move) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s := r.stats[m.PlayerID]; s != nil {
		s.addMove(m)
	}
}

// ObserveRound counts a settled round and, in per-round mode, moves Elo.
func (r *Ratings) ObserveRound(s *engine.GameState) {
	if s.Result == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range r.order {
		r.stats[id].Rounds++
	}
	if w := r.stats[s.Result.WinnerID]; w != nil {
		w.RoundsWon++
		if !s.Result.Uncontested {
			w.ShowdownsWon++
		}
	}
	if r.perRnd {
		sa, sb := 0.0, 1.0
		if s.Result.WinnerID == r.order[0] {
			sa, sb = 1, 0
		}
		r.elo.UpdateRound(sa, sb, s.Result.Amount, r.bb, true)
	}
}

func (r *Ratings) ObserveGame(res arena.GameResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.order[0]
	for id, st := range r.stats {
		st.Games++
		st.NetChips += res.Stacks[id] - r.start
		st.ResearchSpent += res.Research[id]
		if res.Winner == id {
			st.GameWins++
		}
	}
	r.games++
	switch res.Winner {
	case a:
		r.wins++
	case "":
		r.ties++
	}
	netA := res.Stacks[a] - r.start
	if r.start > 0 {
		r.margins = append(r.margins, float64(netA)/float64(r.start))
	}
	if !r.perRnd {
		r.elo.UpdateFromGame(netA, r.bb)
	}
}

type EloView struct {
	A     float64 `json:"a"`
	B     float64 `json:"b"`
	Games int     `json:"games"`
}

type Interval struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

type RatingsSummary struct {
	Agents      []AgentStats `json:"agents"`
	Elo         EloView      `json:"elo"`
	BigBlind    int          `json:"big_blind"`
	Games       int          `json:"games"`
	WinsA       int          `json:"wins_a"`
	Ties        int          `json:"ties"`
	WinRateA    Interval     `json:"win_rate_a_ci95"`
	MarginA     Interval     `json:"margin_a_ci95"`
	AggressionA float64      `json:"aggression_a"`
	AggressionB float64      `json:"aggression_b"`
	BBPer100A   float64      `json:"bb_per_100_a"`
	BBPer100B   float64      `json:"bb_per_100_b"`
}

func (r *Ratings) Summary() RatingsSummary {
	r.mu.Lock()
	defer r.mu.Unlock()
	sum := RatingsSummary{
		Elo:      EloView{A: r.elo.A, B: r.elo.B, Games: r.elo.Games},
		BigBlind: r.bb,
		Games:    r.games,
		WinsA:    r.wins,
		Ties:     r.ties,
	}
	for _, id := range r.order {
		sum.Agents = append(sum.Agents, *r.stats[id])
	}
	sum.WinRateA.Low, sum.WinRateA.High = WilsonCI95(r.wins, r.ties, r.games)
	sum.MarginA.Low, sum.MarginA.High = BootstrapCI95(r.margins, 1000, r.rng)
	a, b := r.stats[r.order[0]], r.stats[r.order[1]]
	sum.AggressionA, sum.AggressionB = a.AF(), b.AF()
	sum.BBPer100A, sum.BBPer100B = a.BBPer100(r.bb), b.BBPer100(r.bb)
	return sum
}

// WilsonCI95 for a Bernoulli win rate, ties counted as half a win.
func WilsonCI95(wins, ties, total int) (low, hi float64) {
	if total <= 0 {
		return 0, 1
	}
	z := 1.96
	n := float64(total)
	p := (float64(wins) + 0.5*float64(ties)) / n
	den := 1 + (z*z)/n
	center := p + (z*z)/(2*n)
	half := z * math.Sqrt((p*(1-p))/n+(z*z)/(4*n*n))
	return (center - half) / den, (center + half) / den
}

// BootstrapCI95 for the mean of vals (e.g. normalized chip margins).
func BootstrapCI95(vals []float64, B int, rng *rand.Rand) (low, hi float64) {
	n := len(vals)
	if n == 0 || B <= 1 {
		return 0, 0
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	res := make([]float64, B)
	for b := 0; b < B; b++ {
		sum := 0.0
		for i := 0; i < n; i++ {
			sum += vals[rng.Intn(n)]
		}
		res[b] = sum / float64(n)
	}
	sort.Float64s(res)
	l := int(0.025 * float64(B-1))
	h := int(0.975 * float64(B-1))
	return res[l], res[h]
}
