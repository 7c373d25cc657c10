package engine

import (
	"fmt"
	"sort"
)

const (
	RankHighCard = iota + 1
	RankOnePair
	RankTwoPair
	RankThreeOfAKind
	RankStraight
	RankFlush
	RankFullHouse
	RankFourOfAKind
	RankStraightFlush
	RankRoyalFlush
)

var rankNames = [...]string{
	RankHighCard:      "High Card",
	RankOnePair:       "One Pair",
	RankTwoPair:       "Two Pair",
	RankThreeOfAKind:  "Three of a Kind",
	RankStraight:      "Straight",
	RankFlush:         "Flush",
	RankFullHouse:     "Full House",
	RankFourOfAKind:   "Four of a Kind",
	RankStraightFlush: "Straight Flush",
	RankRoyalFlush:    "Royal Flush",
}

// Compare orders rankings by (Rank, HighCard). Kickers are not considered.
func Compare(a, b HandRanking) int {
	switch {
	case a.Rank != b.Rank:
		if a.Rank > b.Rank {
			return 1
		}
		return -1
	case a.HighCard > b.HighCard:
		return 1
	case a.HighCard < b.HighCard:
		return -1
	}
	return 0
}

func (h HandRanking) Beats(o HandRanking) bool { return Compare(h, o) > 0 }

// EvaluateHand returns the best ranking over every 5-card subset of
// hole+community. It needs between 5 and 7 cards in total.
func EvaluateHand(hole, community []Card) HandRanking {
	all := make([]Card, 0, len(hole)+len(community))
	all = append(all, hole...)
	all = append(all, community...)
	if len(all) < 5 || len(all) > 7 {
		panic(fmt.Sprintf("engine: evaluate needs 5..7 cards, got %d", len(all)))
	}

	best := HandRanking{}
	var five [5]Card
	var rec func(start, k int)
	rec = func(start, k int) {
		if k == 5 {
			if h := evaluateFive(five); h.Beats(best) {
				best = h
			}
			return
		}
		for i := start; i <= len(all)-(5-k); i++ {
			five[k] = all[i]
			rec(i+1, k+1)
		}
	}
	rec(0, 0)
	return best
}

type rankCount struct{ value, count int }

func evaluateFive(cards [5]Card) HandRanking {
	vals := make([]int, 5)
	for i, c := range cards {
		vals[i] = c.Value()
	}
	sort.Sort(sort.Reverse(sort.IntSlice(vals)))
	high := vals[0]

	counts := map[int]int{}
	for _, v := range vals {
		counts[v]++
	}
	groups := make([]rankCount, 0, len(counts))
	for v, n := range counts {
		groups = append(groups, rankCount{v, n})
	}
	sort.Slice(groups, func(i, j int) bool {
		if groups[i].count != groups[j].count {
			return groups[i].count > groups[j].count
		}
		return groups[i].value > groups[j].value
	})

	flush := true
	for _, c := range cards[1:] {
		if c.Suit != cards[0].Suit {
			flush = false
			break
		}
	}
	straight := isStraight(vals)

	mk := func(rank, hc int) HandRanking { return HandRanking{Rank: rank, Name: rankNames[rank], HighCard: hc} }
	switch {
	case flush && straight && vals[0] == 14 && vals[1] == 13:
		return mk(RankRoyalFlush, high)
	case flush && straight:
		return mk(RankStraightFlush, high)
	case groups[0].count == 4:
		return mk(RankFourOfAKind, groups[0].value)
	case groups[0].count == 3 && groups[1].count == 2:
		return mk(RankFullHouse, groups[0].value)
	case flush:
		return mk(RankFlush, high)
	case straight:
		// the wheel still reports the ace (14)
		return mk(RankStraight, high)
	case groups[0].count == 3:
		return mk(RankThreeOfAKind, groups[0].value)
	case groups[0].count == 2 && groups[1].count == 2:
		return mk(RankTwoPair, groups[0].value)
	case groups[0].count == 2:
		return mk(RankOnePair, groups[0].value)
	}
	return mk(RankHighCard, high)
}

// isStraight expects vals sorted high to low.
func isStraight(vals []int) bool {
	run := true
	for i := 0; i < len(vals)-1; i++ {
		if vals[i]-vals[i+1] != 1 {
			run = false
			break
		}
	}
	if run {
		return true
	}
	return vals[0] == 14 && vals[1] == 5 && vals[2] == 4 && vals[3] == 3 && vals[4] == 2
}
