package main

import "math"

const (
	eloScale      = 400.0
	softMarginBB  = 6.0  // big blinds of margin for a score of ~0.88
	marginBoost   = 0.35 // extra K for lopsided games
	marginBoostBB = 8.0
	kDecayPerGame = 0.01
	potBaseBB     = 2.0
	minPotScale   = 0.5
	maxPotScale   = 3.0
)

// Elo rates agent-1 (A) against agent-2 (B).
type Elo struct {
	A, B  float64
	K     float64
	Games int // games applied through UpdateFromGame
}

func NewElo(start, k float64) Elo { return Elo{A: start, B: start, K: k} }

// expectedA is A's expected score against B.
func (e Elo) expectedA() float64 {
	return 1 / (1 + math.Pow(10, (e.B-e.A)/eloScale))
}

// apply moves both ratings by k times the score surprise. B scores 1-sA.
func (e *Elo) apply(k, sA, sB float64) (dA, dB float64) {
	ea := e.expectedA()
	dA, dB = k*(sA-ea), k*(sB-(1-ea))
	e.A += dA
	e.B += dB
	return dA, dB
}

// UpdateFromGame scores a finished game from A's net chips. The score is
// soft, so a narrow win moves ratings less than a rout, and K shrinks as
// games accumulate.
func (e *Elo) UpdateFromGame(netA, bb int) (dA, dB float64) {
	if bb <= 0 {
		bb = 1
	}
	inBB := float64(netA) / float64(bb)
	sA := 0.5 + 0.5*math.Tanh(inBB/softMarginBB)
	k := e.K * (1 + marginBoost*math.Tanh(math.Abs(inBB)/marginBoostBB)) / (1 + kDecayPerGame*float64(e.Games))
	dA, dB = e.apply(k, sA, 1-sA)
	e.Games++
	return dA, dB
}

// UpdateRound scores a single settled round. With weightByPot, bigger pots
// carry more weight, within [0.5, 3] times K.
func (e *Elo) UpdateRound(sa, sb float64, pot, bb int, weightByPot bool) (dA, dB float64) {
	k := e.K
	if weightByPot && bb > 0 && pot > 0 {
		k *= math.Min(maxPotScale, math.Max(minPotScale, float64(pot)/(potBaseBB*float64(bb))))
	}
	return e.apply(k, sa, sb)
}
