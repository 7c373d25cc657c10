package engine

import "fmt"

type Stage string

const (
	PreFlop  Stage = "pre-flop"
	Flop     Stage = "flop"
	Turn     Stage = "turn"
	River    Stage = "river"
	Showdown Stage = "showdown"
)

type ActionKind string

const (
	Fold  ActionKind = "fold"
	Call  ActionKind = "call"
	Raise ActionKind = "raise"
	AllIn ActionKind = "all-in"
	Check ActionKind = "check"
)

// Action is what a seat submits. Amount is only read for Raise and is the
// increment on top of the call, not a raise-to.
type Action struct {
	Kind   ActionKind `json:"type"`
	Amount int        `json:"amount,omitempty"`
}

func FoldAction() Action            { return Action{Kind: Fold} }
func CallAction() Action            { return Action{Kind: Call} }
func CheckAction() Action           { return Action{Kind: Check} }
func AllInAction() Action           { return Action{Kind: AllIn} }
func RaiseAction(amount int) Action { return Action{Kind: Raise, Amount: amount} }

type Config struct {
	StartingTokens int `json:"starting_tokens"`
	SmallBlind     int `json:"small_blind"`
	BigBlind       int `json:"big_blind"`
}

func DefaultConfig() Config { return Config{StartingTokens: 1000, SmallBlind: 10, BigBlind: 20} }

// PlayerMeta is the profile a seat is created from. Empty names fall back to
// the seat default.
type PlayerMeta struct {
	Name   string `json:"name,omitempty"`
	Handle string `json:"handle,omitempty"`
	Model  string `json:"model,omitempty"`
}

type Player struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Tokens     int    `json:"tokens"`
	Hand       []Card `json:"hand"`
	Folded     bool   `json:"folded"`
	CurrentBet int    `json:"current_bet"` // this stage
	TotalBet   int    `json:"total_bet"`   // this round
	IsAllIn    bool   `json:"is_all_in"`
	Handle     string `json:"handle,omitempty"`
	Model      string `json:"model,omitempty"`
}

// canAct reports whether the seat still makes decisions this round.
func (p *Player) canAct() bool { return !p.Folded && !p.IsAllIn }

type HandRanking struct {
	Rank     int    `json:"rank"`
	Name     string `json:"name"`
	HighCard int    `json:"high_card"`
}

// RoundResult records how the last round's pot was settled.
type RoundResult struct {
	WinnerID    string                 `json:"winner_id"`
	WinnerName  string                 `json:"winner_name"`
	Amount      int                    `json:"amount"`
	Uncontested bool                   `json:"uncontested"`
	Hands       map[string]HandRanking `json:"hands,omitempty"`
	Described   map[string]string      `json:"described,omitempty"` // library wording, e.g. "pair of kings"
}

type GameState struct {
	Players            []Player     `json:"players"`
	Deck               []Card       `json:"-"`
	CommunityCards     []Card       `json:"community_cards"`
	Pot                int          `json:"pot"`
	CurrentBet         int          `json:"current_bet"`
	DealerIndex        int          `json:"dealer_index"`
	CurrentPlayerIndex int          `json:"current_player_index"`
	Stage              Stage        `json:"stage"`
	SmallBlind         int          `json:"small_blind"`
	BigBlind           int          `json:"big_blind"`
	GameOver           bool         `json:"game_over"`
	Winner             string       `json:"winner,omitempty"`
	Round              int          `json:"round"`
	Result             *RoundResult `json:"result,omitempty"`
	Logs               []string     `json:"logs"`
}

// Clone deep-copies the state so callers can keep the previous snapshot.
func (s *GameState) Clone() *GameState {
	out := *s
	out.Players = make([]Player, len(s.Players))
	for i, p := range s.Players {
		p.Hand = append([]Card(nil), p.Hand...)
		out.Players[i] = p
	}
	out.Deck = append([]Card(nil), s.Deck...)
	out.CommunityCards = append([]Card(nil), s.CommunityCards...)
	out.Logs = append([]string(nil), s.Logs...)
	if s.Result != nil {
		r := *s.Result
		if s.Result.Hands != nil {
			r.Hands = make(map[string]HandRanking, len(s.Result.Hands))
			for k, v := range s.Result.Hands {
				r.Hands[k] = v
			}
		}
		out.Result = &r
	}
	return &out
}

func (s *GameState) CurrentPlayer() *Player { return &s.Players[s.CurrentPlayerIndex] }

// PlayerIndex returns -1 when id is not seated.
func (s *GameState) PlayerIndex(id string) int {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *GameState) Player(id string) *Player {
	if i := s.PlayerIndex(id); i >= 0 {
		return &s.Players[i]
	}
	return nil
}

// Chips is the total of stacks plus the pot; constant within a game.
func (s *GameState) Chips() int {
	n := s.Pot
	for _, p := range s.Players {
		n += p.Tokens
	}
	return n
}

func (s *GameState) logf(format string, args ...any) {
	s.Logs = append(s.Logs, fmt.Sprintf(format, args...))
}
