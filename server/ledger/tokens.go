package ledger

import (
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"
)

type TokenConfig struct {
	TokenName   string `json:"token_name"`
	TokenSymbol string `json:"token_symbol"`
	Decimals    int    `json:"decimals"`
	Network     string `json:"network"`
}

var X402 = TokenConfig{TokenName: "X402 Token", TokenSymbol: "x402", Decimals: 0, Network: "Mock Testnet"}

type TxType string

const (
	TxBlind    TxType = "blind"
	TxBet      TxType = "bet"
	TxResearch TxType = "research"
	TxWin      TxType = "win"
	TxTransfer TxType = "transfer"
)

type BlindKind string

const (
	SmallBlind BlindKind = "small"
	BigBlind   BlindKind = "big"
)

const (
	PotAccount      = "pot"
	ResearchAccount = "research_pool"
)

type Transaction struct {
	ID          string `json:"id"`
	From        string `json:"from"`
	To          string `json:"to"`
	Amount      int    `json:"amount"`
	Type        TxType `json:"type"`
	Timestamp   int64  `json:"timestamp"` // unix ms
	Description string `json:"description"`
}

type Balance struct {
	PlayerID      string `json:"player_id"`
	Balance       int    `json:"balance"`
	TotalWagered  int    `json:"total_wagered"`
	TotalWon      int    `json:"total_won"`
	ResearchSpent int    `json:"research_spent"`
}

type Statistics struct {
	TotalSupply        int `json:"total_supply"`
	TotalWagered       int `json:"total_wagered"`
	TotalResearchSpent int `json:"total_research_spent"`
	TotalTransactions  int `json:"total_transactions"`
	Players            int `json:"players"`
}

// Snapshot is the exported ledger, suitable for persisting and re-importing.
type Snapshot struct {
	Balances     []Balance     `json:"balances"`
	Transactions []Transaction `json:"transactions"`
	Timestamp    int64         `json:"timestamp"`
}

// TokenSystem mirrors chip movements as x402 token transactions. Payments
// fail (return nil) when the balance is short; awards always succeed.
// Safe for concurrent use.
type TokenSystem struct {
	mu       sync.Mutex
	balances map[string]*Balance
	order    []string
	txs      []Transaction
	counter  int

	now func() time.Time
	log slog.Logger
}

func NewTokenSystem(log slog.Logger) *TokenSystem {
	if log == nil {
		log = slog.Disabled
	}
	return &TokenSystem{balances: map[string]*Balance{}, now: time.Now, log: log}
}

// InitializePlayer (re)sets a player's balance and counters.
func (ts *TokenSystem) InitializePlayer(playerID string, initial int) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if _, ok := ts.balances[playerID]; !ok {
		ts.order = append(ts.order, playerID)
	}
	ts.balances[playerID] = &Balance{PlayerID: playerID, Balance: initial}
	ts.log.Debugf("initialized %s with %d %s", playerID, initial, X402.TokenSymbol)
}

func (ts *TokenSystem) Balance(playerID string) int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if b, ok := ts.balances[playerID]; ok {
		return b.Balance
	}
	return 0
}

func (ts *TokenSystem) BalanceDetails(playerID string) (Balance, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	b, ok := ts.balances[playerID]
	if !ok {
		return Balance{}, false
	}
	return *b, true
}

func (ts *TokenSystem) PayBlind(playerID string, amount int, kind BlindKind) *Transaction {
	desc := "Big blind payment"
	if kind == SmallBlind {
		desc = "Small blind payment"
	}
	return ts.debit(playerID, amount, TxBlind, PotAccount, desc)
}

func (ts *TokenSystem) PayBet(playerID string, amount int) *Transaction {
	return ts.debit(playerID, amount, TxBet, PotAccount, "Bet/Raise payment")
}

func (ts *TokenSystem) PayResearchFee(playerID string, amount int) *Transaction {
	return ts.debit(playerID, amount, TxResearch, ResearchAccount, "Web research fee")
}

func (ts *TokenSystem) debit(playerID string, amount int, typ TxType, to, desc string) *Transaction {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	b, ok := ts.balances[playerID]
	if !ok || b.Balance < amount {
		have := 0
		if ok {
			have = b.Balance
		}
		ts.log.Warnf("%s payment of %d refused for %s (balance %d)", typ, amount, playerID, have)
		return nil
	}
	b.Balance -= amount
	if typ == TxResearch {
		b.ResearchSpent += amount
	} else {
		b.TotalWagered += amount
	}
	return ts.record(playerID, to, amount, typ, desc)
}

// AwardPot credits a winner. Unknown players still get a transaction.
func (ts *TokenSystem) AwardPot(playerID string, amount int) *Transaction {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	if b, ok := ts.balances[playerID]; ok {
		b.Balance += amount
		b.TotalWon += amount
	}
	return ts.record(PotAccount, playerID, amount, TxWin, "Pot winnings")
}

// record appends a transaction; callers hold mu.
func (ts *TokenSystem) record(from, to string, amount int, typ TxType, desc string) *Transaction {
	tx := Transaction{
		ID:          fmt.Sprintf("tx_%d", ts.counter),
		From:        from,
		To:          to,
		Amount:      amount,
		Type:        typ,
		Timestamp:   ts.now().UnixMilli(),
		Description: desc,
	}
	ts.counter++
	ts.txs = append(ts.txs, tx)
	ts.log.Debugf("%s %s %s -> %s %d", tx.ID, typ, from, to, amount)
	return &tx
}

func (ts *TokenSystem) Transactions() []Transaction {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return append([]Transaction(nil), ts.txs...)
}

func (ts *TokenSystem) PlayerTransactions(playerID string) []Transaction {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	var out []Transaction
	for _, tx := range ts.txs {
		if tx.From == playerID || tx.To == playerID {
			out = append(out, tx)
		}
	}
	return out
}

// RecentTransactions returns the last n; n <= 0 means 10.
func (ts *TokenSystem) RecentTransactions(n int) []Transaction {
	if n <= 0 {
		n = 10
	}
	ts.mu.Lock()
	defer ts.mu.Unlock()
	start := len(ts.txs) - n
	if start < 0 {
		start = 0
	}
	return append([]Transaction(nil), ts.txs[start:]...)
}

func (ts *TokenSystem) Transaction(id string) (Transaction, bool) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	for _, tx := range ts.txs {
		if tx.ID == id {
			return tx, true
		}
	}
	return Transaction{}, false
}

// TotalSupply is the sum of player balances; chips sitting in a pot or spent
// on research are not counted.
func (ts *TokenSystem) TotalSupply() int {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	return ts.totalSupply()
}

func (ts *TokenSystem) totalSupply() int {
	n := 0
	for _, b := range ts.balances {
		n += b.Balance
	}
	return n
}

func (ts *TokenSystem) Statistics() Statistics {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	st := Statistics{
		TotalSupply:       ts.totalSupply(),
		TotalTransactions: len(ts.txs),
		Players:           len(ts.balances),
	}
	for _, b := range ts.balances {
		st.TotalWagered += b.TotalWagered
		st.TotalResearchSpent += b.ResearchSpent
	}
	return st
}

func (ts *TokenSystem) ExportState() Snapshot {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	snap := Snapshot{
		Transactions: append([]Transaction(nil), ts.txs...),
		Timestamp:    ts.now().UnixMilli(),
	}
	for _, id := range ts.order {
		snap.Balances = append(snap.Balances, *ts.balances[id])
	}
	return snap
}

// ImportState replaces the ledger. The id counter resumes after the imported
// transactions.
func (ts *TokenSystem) ImportState(snap Snapshot) {
	ts.mu.Lock()
	defer ts.mu.Unlock()
	ts.balances = make(map[string]*Balance, len(snap.Balances))
	ts.order = ts.order[:0]
	for _, b := range snap.Balances {
		b := b
		if _, dup := ts.balances[b.PlayerID]; !dup {
			ts.order = append(ts.order, b.PlayerID)
		}
		ts.balances[b.PlayerID] = &b
	}
	ts.txs = append([]Transaction(nil), snap.Transactions...)
	ts.counter = len(ts.txs)
	ts.log.Infof("imported ledger: %d balances, %d transactions", len(ts.balances), len(ts.txs))
}
