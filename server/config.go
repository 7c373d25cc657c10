package main

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"x402-arena/server/agent"
	"x402-arena/server/engine"
)

const (
	stratHeuristic = "heuristic"
	stratEquity    = "equity"
	stratLLM       = "llm"
)

// PlayerSpec is one seat as configured from the environment.
type PlayerSpec struct {
	Meta     engine.PlayerMeta
	Strategy string
}

type Config struct {
	Game    engine.Config
	Players [2]PlayerSpec

	EnableResearch bool
	ResearchURL    string
	ResearchCost   int
	ResearchDelay  time.Duration
	EquityTrials   int
	LLMTimeout     time.Duration

	DeckSeed    uint64
	MaxRounds   int
	SeriesGames int
	ActionDelay time.Duration

	Port        string
	DatabaseURL string
	SQLitePath  string
	AutoMigrate bool

	LogLevel    string
	LogFile     string
	LogMaxRolls int
	Debug       bool
	NoColor     bool

	EloStart    float64
	EloK        float64
	EloPerRound bool
}

func loadConfig() (Config, error) {
	cfg := Config{
		Game: engine.Config{
			StartingTokens: atoiDef(os.Getenv("STARTING_TOKENS"), 1000),
			SmallBlind:     atoiDef(os.Getenv("SMALL_BLIND"), 10),
			BigBlind:       atoiDef(os.Getenv("BIG_BLIND"), 20),
		},
		EnableResearch: asBoolDef(os.Getenv("ENABLE_RESEARCH"), true),
		ResearchURL:    strings.TrimSpace(os.Getenv("RESEARCH_URL")),
		ResearchCost:   atoiDef(os.Getenv("RESEARCH_COST"), agent.DefaultResearchCost),
		ResearchDelay:  time.Duration(atoiDef(os.Getenv("RESEARCH_DELAY_MS"), 500)) * time.Millisecond,
		EquityTrials:   atoiDef(os.Getenv("EQUITY_TRIALS"), 500),
		LLMTimeout:     time.Duration(atoiDef(os.Getenv("LLM_TIMEOUT_SECONDS"), 45)) * time.Second,

		DeckSeed:    deckSeedFromEnvOrCrypto(),
		MaxRounds:   atoiDef(os.Getenv("MAX_ROUNDS"), 500),
		SeriesGames: atoiDef(os.Getenv("SERIES_GAMES"), 10),
		ActionDelay: time.Duration(atoiDef(os.Getenv("ACTION_DELAY_MS"), 0)) * time.Millisecond,

		Port:        getenv("PORT", "8080"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
		SQLitePath:  os.Getenv("SQLITE_PATH"),
		AutoMigrate: asBool(os.Getenv("AUTO_MIGRATE")),

		LogLevel:    getenv("LOG_LEVEL", "info"),
		LogFile:     os.Getenv("LOG_FILE"),
		LogMaxRolls: atoiDef(os.Getenv("LOG_MAX_ROLLS"), 3),
		Debug:       asBool(os.Getenv("DEBUG")),
		NoColor:     os.Getenv("NO_COLOR") != "",

		EloStart:    float64(atoiDef(os.Getenv("ELO_START"), 1500)),
		EloK:        float64(atoiDef(os.Getenv("ELO_K"), 24)),
		EloPerRound: asBool(os.Getenv("ELO_PER_ROUND")),
	}
	defaults := [2]string{"AI Agent Alpha", "AI Agent Beta"}
	for i := range cfg.Players {
		n := strconv.Itoa(i + 1)
		cfg.Players[i] = PlayerSpec{
			Meta: engine.PlayerMeta{
				Name:   getenv("PLAYER"+n+"_NAME", defaults[i]),
				Handle: os.Getenv("PLAYER" + n + "_HANDLE"),
				Model:  getenv("PLAYER"+n+"_MODEL", agent.DefaultModel),
			},
			Strategy: strings.ToLower(getenv("PLAYER"+n+"_STRATEGY", stratHeuristic)),
		}
	}
	return cfg, cfg.validate()
}

func (c Config) validate() error {
	g := c.Game
	if g.SmallBlind <= 0 || g.BigBlind < g.SmallBlind {
		return fmt.Errorf("blinds %d/%d: big blind must be at least the small blind", g.SmallBlind, g.BigBlind)
	}
	if g.StartingTokens < g.BigBlind {
		return fmt.Errorf("starting tokens %d below the big blind", g.StartingTokens)
	}
	for i, p := range c.Players {
		switch p.Strategy {
		case stratHeuristic, stratEquity, stratLLM:
		default:
			return fmt.Errorf("PLAYER%d_STRATEGY %q: want heuristic, equity or llm", i+1, p.Strategy)
		}
	}
	return nil
}

func (c Config) usesLLM() bool {
	return c.Players[0].Strategy == stratLLM || c.Players[1].Strategy == stratLLM
}

func mustEnv(keys ...string) error {
	for _, k := range keys {
		if os.Getenv(k) == "" {
			return fmt.Errorf("missing required env var %s; put it in .env (dev) or set it on the host (prod)", k)
		}
	}
	return nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func atoiDef(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return def
	}
	return n
}

func asBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func asBoolDef(s string, def bool) bool {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return asBool(s)
}

// seedStream derives per-game seeds from one base (splitmix64).
type seedStream struct{ state uint64 }

func newSeedStream(base uint64) seedStream { return seedStream{state: base} }

func (s *seedStream) next() uint64 {
	s.state += 0x9E3779B97F4A7C15
	z := s.state
	z ^= z >> 30
	z *= 0xBF58476D1CE4E5B9
	z ^= z >> 27
	z *= 0x94D049BB133111EB
	z ^= z >> 31
	return z
}

func secureBaseSeed() uint64 {
	var b [8]byte
	if _, err := rand.Read(b[:]); err == nil {
		return binary.LittleEndian.Uint64(b[:]) ^ uint64(time.Now().UnixNano()) ^ uint64(os.Getpid())
	}
	return uint64(time.Now().UnixNano()) ^ 0xA5A5A5A5A5A5A5A5
}

func deckSeedFromEnvOrCrypto() uint64 {
	if s := os.Getenv("DECK_SEED"); s != "" {
		if v, err := strconv.ParseInt(s, 10, 64); err == nil {
			return uint64(v)
		}
	}
	return secureBaseSeed()
}
