package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	for _, k := range []string{"STARTING_TOKENS", "SMALL_BLIND", "BIG_BLIND", "PLAYER1_NAME", "PLAYER2_NAME",
		"PLAYER1_STRATEGY", "PLAYER2_STRATEGY", "PLAYER1_MODEL", "PLAYER2_MODEL", "ENABLE_RESEARCH",
		"RESEARCH_COST", "MAX_ROUNDS", "SERIES_GAMES", "ACTION_DELAY_MS", "RESEARCH_DELAY_MS", "PORT", "LOG_LEVEL"} {
		t.Setenv(k, "")
	}
	t.Setenv("DECK_SEED", "42")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 1000, cfg.Game.StartingTokens)
	assert.Equal(t, 10, cfg.Game.SmallBlind)
	assert.Equal(t, 20, cfg.Game.BigBlind)
	assert.Equal(t, "AI Agent Alpha", cfg.Players[0].Meta.Name)
	assert.Equal(t, "AI Agent Beta", cfg.Players[1].Meta.Name)
	assert.Equal(t, "anthropic/claude-sonnet-4.5", cfg.Players[1].Meta.Model)
	assert.Equal(t, stratHeuristic, cfg.Players[0].Strategy)
	assert.True(t, cfg.EnableResearch)
	assert.Equal(t, 50, cfg.ResearchCost)
	assert.Equal(t, uint64(42), cfg.DeckSeed)
	assert.Equal(t, 500, cfg.MaxRounds)
	assert.Equal(t, 10, cfg.SeriesGames)
	assert.Zero(t, cfg.ActionDelay)
	assert.Equal(t, 500*time.Millisecond, cfg.ResearchDelay)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.False(t, cfg.usesLLM())
}

func TestLoadConfigOverrides(t *testing.T) {
	t.Setenv("PLAYER1_STRATEGY", "")
	t.Setenv("STARTING_TOKENS", "500")
	t.Setenv("BIG_BLIND", "40")
	t.Setenv("PLAYER2_STRATEGY", "LLM")
	t.Setenv("PLAYER2_HANDLE", "@beta")
	t.Setenv("ENABLE_RESEARCH", "off")
	t.Setenv("ACTION_DELAY_MS", "250")
	t.Setenv("RESEARCH_DELAY_MS", "0")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 500, cfg.Game.StartingTokens)
	assert.Equal(t, 40, cfg.Game.BigBlind)
	assert.Equal(t, stratLLM, cfg.Players[1].Strategy)
	assert.Equal(t, "@beta", cfg.Players[1].Meta.Handle)
	assert.False(t, cfg.EnableResearch)
	assert.Equal(t, 250*time.Millisecond, cfg.ActionDelay)
	assert.Zero(t, cfg.ResearchDelay)
	assert.True(t, cfg.usesLLM())
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	t.Setenv("PLAYER1_STRATEGY", "gto")
	_, err := loadConfig()
	assert.ErrorContains(t, err, "PLAYER1_STRATEGY")

	t.Setenv("PLAYER1_STRATEGY", "")
	t.Setenv("SMALL_BLIND", "30")
	t.Setenv("BIG_BLIND", "20")
	_, err = loadConfig()
	assert.ErrorContains(t, err, "blinds")
}

func TestEnvHelpers(t *testing.T) {
	assert.Equal(t, 7, atoiDef(" 7 ", 3))
	assert.Equal(t, 3, atoiDef("x", 3))
	assert.Equal(t, 3, atoiDef("", 3))
	assert.True(t, asBool("Yes"))
	assert.False(t, asBool("0"))
	assert.True(t, asBoolDef("", true))
	assert.False(t, asBoolDef("no", true))

	t.Setenv("ARENA_TEST_KEY", "")
	assert.Error(t, mustEnv("ARENA_TEST_KEY"))
	t.Setenv("ARENA_TEST_KEY", "v")
	assert.NoError(t, mustEnv("ARENA_TEST_KEY"))
}

func TestSeedStreamIsDeterministic(t *testing.T) {
	a, b := newSeedStream(9), newSeedStream(9)
	first := a.next()
	assert.Equal(t, first, b.next())
	assert.NotEqual(t, first, a.next())
}

func TestParseArgs(t *testing.T) {
	m, err := parseArgs(nil)
	require.NoError(t, err)
	assert.True(t, m.play)

	m, err = parseArgs([]string{"--series", "--serve"})
	require.NoError(t, err)
	assert.Equal(t, mode{series: true, serve: true}, m)

	_, err = parseArgs([]string{"--duel"})
	assert.Error(t, err)
}
