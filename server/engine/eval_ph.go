package engine

import (
	poker "github.com/paulhankin/poker"
)

// Library-backed scoring. Larger score = stronger hand, with full kicker
// resolution. Winner selection stays on EvaluateHand; Strength drives Equity
// and Describe labels showdown hands.

// Convert our engine.Card -> library card.
func toPH(c Card) poker.Card {
	var s poker.Suit
	switch c.Suit {
	case Clubs:
		s = poker.Club
	case Diamonds:
		s = poker.Diamond
	case Hearts:
		s = poker.Heart
	default:
		s = poker.Spade
	}
	// Our ranks: 2..14 (Ace=14). Library: 1..13 (Ace=1).
	v := c.Value()
	if v == 14 {
		v = 1
	}
	card, _ := poker.MakeCard(s, poker.Rank(v))
	return card
}

func toPHSlice(cs []Card) []poker.Card {
	out := make([]poker.Card, len(cs))
	for i, c := range cs {
		out[i] = toPH(c)
	}
	return out
}

// Strength scores 5, 6 or 7 cards. Other sizes score 0.
func Strength(cards []Card) int16 {
	pcs := toPHSlice(cards)
	switch len(pcs) {
	case 7:
		var a7 [7]poker.Card
		copy(a7[:], pcs)
		return poker.Eval7(&a7)
	case 5:
		var a5 [5]poker.Card
		copy(a5[:], pcs)
		return poker.Eval5(&a5)
	case 6:
		return bestOfSix(pcs)
	}
	return 0
}

func bestOfSix(pcs []poker.Card) int16 {
	var best int16 = -1 << 15
	var five [5]poker.Card
	for skip := 0; skip < 6; skip++ {
		k := 0
		for i, c := range pcs {
			if i != skip {
				five[k] = c
				k++
			}
		}
		if s := poker.Eval5(&five); s > best {
			best = s
		}
	}
	return best
}

// Describe returns the library's wording, e.g. "pair of kings". Empty on error.
func Describe(cards []Card) string {
	d, err := poker.Describe(toPHSlice(cards))
	if err != nil {
		return ""
	}
	return d
}

// Equity estimates the share of pots hole wins against one random hand,
// running the board out to five cards. trials <= 0 uses 500.
func Equity(hole, board []Card, trials int, intn func(int) int) float64 {
	if trials <= 0 {
		trials = 500
	}
	used := map[Card]bool{}
	for _, c := range hole {
		used[c] = true
	}
	for _, c := range board {
		used[c] = true
	}
	avail := make([]Card, 0, 52)
	for _, c := range CreateDeck() {
		if !used[c] {
			avail = append(avail, c)
		}
	}
	need := 5 - len(board)
	if need < 0 || len(hole) != 2 {
		return 0
	}

	var win, tie float64
	hero := make([]Card, 7)
	vill := make([]Card, 7)
	pick := make([]Card, len(avail))
	for t := 0; t < trials; t++ {
		// partial Fisher-Yates for the villain's two cards plus the run-out
		copy(pick, avail)
		for i := 0; i < need+2; i++ {
			j := i + intn(len(pick)-i)
			pick[i], pick[j] = pick[j], pick[i]
		}
		copy(hero, hole)
		copy(vill, pick[:2])
		copy(hero[2:], board)
		copy(vill[2:], board)
		copy(hero[2+len(board):], pick[2:2+need])
		copy(vill[2+len(board):], pick[2:2+need])
		h, v := Strength(hero), Strength(vill)
		switch {
		case h > v:
			win++
		case h == v:
			tie++
		}
	}
	return (win + 0.5*tie) / float64(trials)
}
