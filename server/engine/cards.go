package engine

import (
	"fmt"
	"math/rand"
	"strings"
)

type Suit string

const (
	Spades   Suit = "♠"
	Hearts   Suit = "♥"
	Diamonds Suit = "♦"
	Clubs    Suit = "♣"
)

var Suits = [4]Suit{Spades, Hearts, Diamonds, Clubs}

type Rank string

var Ranks = [13]Rank{"2", "3", "4", "5", "6", "7", "8", "9", "T", "J", "Q", "K", "A"}

// Value maps 2..9 literally, T=10 .. A=14. Unknown ranks are 0.
func (r Rank) Value() int {
	switch r {
	case "T":
		return 10
	case "J":
		return 11
	case "Q":
		return 12
	case "K":
		return 13
	case "A":
		return 14
	}
	if len(r) == 1 && r[0] >= '2' && r[0] <= '9' {
		return int(r[0] - '0')
	}
	return 0
}

// Letter is the ASCII suit letter used in prompts ("s", "h", "d", "c").
func (s Suit) Letter() byte {
	switch s {
	case Spades:
		return 's'
	case Hearts:
		return 'h'
	case Diamonds:
		return 'd'
	default:
		return 'c'
	}
}

type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

func (c Card) Value() int     { return c.Rank.Value() }
func (c Card) String() string { return string(c.Rank) + string(c.Suit) }
func (c Card) ASCII() string  { return string(c.Rank) + string(c.Suit.Letter()) }
func (c Card) Valid() bool    { return c.Rank.Value() > 0 && suitValid(c.Suit) }
func suitValid(s Suit) bool   { return s == Spades || s == Hearts || s == Diamonds || s == Clubs }

func formatCards(cs []Card) string {
	parts := make([]string, len(cs))
	for i, c := range cs {
		parts[i] = c.String()
	}
	return strings.Join(parts, " ")
}

// CreateDeck returns the 52 cards in suit-major order.
func CreateDeck() []Card {
	deck := make([]Card, 0, 52)
	for _, s := range Suits {
		for _, r := range Ranks {
			deck = append(deck, Card{Suit: s, Rank: r})
		}
	}
	return deck
}

// ShuffleDeck returns a shuffled copy; deck itself is left as is.
func ShuffleDeck(deck []Card, rng *rand.Rand) []Card {
	out := append([]Card(nil), deck...)
	for i := len(out) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// DealCards takes n cards off the front. Asking for more than the deck holds
// is a caller bug.
func DealCards(deck []Card, n int) (dealt, remaining []Card) {
	if n < 0 || n > len(deck) {
		panic(fmt.Sprintf("engine: deal %d from a deck of %d", n, len(deck)))
	}
	dealt = append([]Card(nil), deck[:n]...)
	remaining = append([]Card(nil), deck[n:]...)
	return dealt, remaining
}

// ParseCard accepts "A♠", "As", "10h" or "td".
func ParseCard(s string) (Card, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Card{}, fmt.Errorf("empty card")
	}
	var rank Rank
	rest := s
	switch {
	case strings.HasPrefix(s, "10"):
		rank, rest = "T", s[2:]
	default:
		rank, rest = Rank(strings.ToUpper(s[:1])), s[1:]
	}
	if rank.Value() == 0 {
		return Card{}, fmt.Errorf("bad rank in %q", s)
	}
	var suit Suit
	switch strings.ToLower(rest) {
	case "♠", "s":
		suit = Spades
	case "♥", "h":
		suit = Hearts
	case "♦", "d":
		suit = Diamonds
	case "♣", "c":
		suit = Clubs
	default:
		return Card{}, fmt.Errorf("bad suit in %q", s)
	}
	return Card{Suit: suit, Rank: rank}, nil
}

func ParseCards(ss ...string) ([]Card, error) {
	out := make([]Card, 0, len(ss))
	for _, s := range ss {
		c, err := ParseCard(s)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}
