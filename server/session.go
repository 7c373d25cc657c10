package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"x402-arena/server/agent"
	"x402-arena/server/arena"
	"x402-arena/server/engine"
	"x402-arena/server/ledger"
	"x402-arena/server/research"
	"x402-arena/server/store"
)

// GameSummary is one finished game of the series.
type GameSummary struct {
	Number     int    `json:"number"`
	Seed       uint64 `json:"seed"`
	SnapshotID int64  `json:"snapshot_id,omitempty"`
	arena.GameResult
}

// App runs games one after another and exposes the live table, ledger and
// chain to the HTTP layer.
type App struct {
	cfg     Config
	logs    loggers
	store   store.Store
	src     research.Researcher
	ratings *Ratings
	verbose bool

	seedMu sync.Mutex
	seeds  seedStream

	mu     sync.RWMutex
	table  *arena.Table
	tokens *ledger.TokenSystem
	chain  *ledger.Chain
	games  []GameSummary
}

// NewApp wires the collaborators. st may be nil.
func NewApp(cfg Config, logs loggers, st store.Store, verbose bool) *App {
	rng := rand.New(rand.NewSource(int64(cfg.DeckSeed)))
	var src research.Researcher
	if cfg.ResearchURL != "" {
		src = research.NewClient(cfg.ResearchURL, logs.Research)
	} else {
		canned := research.NewCanned(rand.New(rand.NewSource(rng.Int63())))
		canned.Delay = cfg.ResearchDelay
		src = canned
	}
	return &App{
		cfg:     cfg,
		logs:    logs,
		store:   st,
		src:     src,
		ratings: NewRatings(cfg, rand.New(rand.NewSource(rng.Int63()))),
		verbose: verbose,
		seeds:   newSeedStream(cfg.DeckSeed),
		tokens:  ledger.NewTokenSystem(logs.Ledger),
		chain:   ledger.NewChain(logs.Ledger),
	}
}

func (a *App) Researcher() research.Researcher { return a.src }
func (a *App) Ratings() RatingsSummary         { return a.ratings.Summary() }
func (a *App) Store() store.Store              { return a.store }

func (a *App) Ledger() *ledger.TokenSystem {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.tokens
}

func (a *App) Chain() *ledger.Chain {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.chain
}

// State is the live game state, nil before the first game.
func (a *App) State() *engine.GameState {
	a.mu.RLock()
	t := a.table
	a.mu.RUnlock()
	if t == nil {
		return nil
	}
	return t.State()
}

func (a *App) Moves() []arena.Move {
	a.mu.RLock()
	t := a.table
	a.mu.RUnlock()
	if t == nil {
		return nil
	}
	return t.Moves()
}

func (a *App) Games() []GameSummary {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]GameSummary(nil), a.games...)
}

func (a *App) buildStrategy(spec PlayerSpec, rng *rand.Rand) agent.Strategy {
	heuristic := agent.NewHeuristic(agent.HeuristicConfig{
		Model:          spec.Meta.Model,
		EnableResearch: a.cfg.EnableResearch,
		ResearchCost:   a.cfg.ResearchCost,
		Researcher:     a.src,
		Rand:           rng,
		Log:            a.logs.Agent,
	})
	switch spec.Strategy {
	case stratEquity:
		return agent.NewEquity(spec.Meta.Model, a.cfg.EquityTrials, rng, a.logs.Agent)
	case stratLLM:
		return agent.NewLLM(spec.Meta.Model, a.cfg.LLMTimeout, heuristic, a.logs.Agent)
	default:
		return heuristic
	}
}

func (a *App) nextSeed() uint64 {
	a.seedMu.Lock()
	defer a.seedMu.Unlock()
	return a.seeds.next()
}

// PlayGame plays one full game on a fresh table, ledger and chain, then
// persists the ledger and chain when a store is configured.
func (a *App) PlayGame(ctx context.Context) (GameSummary, error) {
	seed := a.nextSeed()
	rng := rand.New(rand.NewSource(int64(seed)))
	var seats [2]arena.Seat
	for i, spec := range a.cfg.Players {
		seats[i] = arena.Seat{
			Meta:     spec.Meta,
			Strategy: a.buildStrategy(spec, rand.New(rand.NewSource(rng.Int63()))),
		}
	}

	tokens := ledger.NewTokenSystem(a.logs.Ledger)
	chain := ledger.NewChain(a.logs.Ledger)
	tbl := arena.New(arena.Config{
		Game:           a.cfg.Game,
		EnableResearch: a.cfg.EnableResearch,
		ResearchChance: arena.DefaultConfig().ResearchChance,
		MaxRounds:      a.cfg.MaxRounds,
		ActionDelay:    a.cfg.ActionDelay,
	}, seats, tokens, chain, rng, a.logs.Arena)
	tbl.SetObserver(a.observer())

	a.mu.Lock()
	a.table, a.tokens, a.chain = tbl, tokens, chain
	n := len(a.games) + 1
	a.mu.Unlock()

	a.logs.Main.Infof("game %d starting (seed %d): %s [%s] vs %s [%s]", n, seed,
		a.cfg.Players[0].Meta.Name, a.cfg.Players[0].Strategy, a.cfg.Players[1].Meta.Name, a.cfg.Players[1].Strategy)
	res, err := tbl.PlayGame(ctx)
	if err != nil {
		return GameSummary{}, fmt.Errorf("game %d: %w", n, err)
	}
	chain.MineBlock()
	a.ratings.ObserveGame(res)

	sum := GameSummary{Number: n, Seed: seed, GameResult: res}
	sum.SnapshotID = a.persist(ctx, tokens, chain)

	a.mu.Lock()
	a.games = append(a.games, sum)
	a.mu.Unlock()
	if a.verbose {
		printGameResult(n, res, tbl.State())
	}
	return sum, nil
}

func (a *App) observer() arena.Observer {
	o := arena.Observer{
		Moved: func(m arena.Move, s *engine.GameState) {
			a.ratings.ObserveMove(m)
			if a.verbose {
				printMove(m, s)
			}
		},
		RoundSettled: func(s *engine.GameState) {
			a.ratings.ObserveRound(s)
			if a.verbose {
				printRoundSettled(s)
			}
		},
	}
	if a.verbose {
		o.RoundStarted = printRoundStart
	}
	return o
}

// RunSeries plays n games. A canceled context ends the series after the
// current action without error.
func (a *App) RunSeries(ctx context.Context, n int) error {
	if n <= 0 {
		n = 1
	}
	for i := 0; i < n; i++ {
		if _, err := a.PlayGame(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				a.logs.Main.Infof("series stopped after %d games", i)
				return nil
			}
			return err
		}
	}
	return nil
}

func (a *App) persist(ctx context.Context, tokens *ledger.TokenSystem, chain *ledger.Chain) int64 {
	if a.store == nil {
		return 0
	}
	// the game context may already be canceled; a shutdown still saves
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	id, err := a.store.SaveSnapshot(ctx, tokens.ExportState())
	if err != nil {
		a.logs.Store.Errorf("save snapshot: %v", err)
	}
	n, err := a.store.SaveBlocks(ctx, chain.Blocks())
	if err != nil {
		a.logs.Store.Errorf("save blocks: %v", err)
	}
	a.logs.Store.Infof("saved snapshot %d and %d new blocks", id, n)
	return id
}

// Restore loads the latest stored ledger snapshot into the current ledger.
func (a *App) Restore(ctx context.Context) error {
	if a.store == nil {
		return nil
	}
	snap, err := a.store.LatestSnapshot(ctx)
	if errors.Is(err, store.ErrNoSnapshot) {
		a.logs.Store.Info("no stored ledger snapshot")
		return nil
	}
	if err != nil {
		return fmt.Errorf("load snapshot: %w", err)
	}
	a.Ledger().ImportState(snap)
	return nil
}
