package ledger

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/decred/slog"
)

// AutoMineAt is the pending-pool size that triggers a block.
const AutoMineAt = 5

const genesisPrevHash = "0x0"

type Block struct {
	Number       int      `json:"block_number"`
	Timestamp    int64    `json:"timestamp"` // unix ms
	Transactions []string `json:"transactions"`
	PreviousHash string   `json:"previous_hash"`
	Hash         string   `json:"hash"`
}

type ChainInfo struct {
	BlockHeight         int   `json:"block_height"`
	TotalBlocks         int   `json:"total_blocks"`
	PendingTransactions int   `json:"pending_transactions"`
	LatestBlock         Block `json:"latest_block"`
}

// Chain is an in-memory append-only block log over ledger transaction ids.
type Chain struct {
	mu      sync.RWMutex
	blocks  []Block
	pending []string

	now func() time.Time
	log slog.Logger
}

// NewChain creates a chain holding only the genesis block.
func NewChain(log slog.Logger) *Chain {
	if log == nil {
		log = slog.Disabled
	}
	c := &Chain{now: time.Now, log: log}
	genesis := Block{
		Number:       0,
		Timestamp:    c.now().UnixMilli(),
		Transactions: []string{},
		PreviousHash: genesisPrevHash,
	}
	genesis.Hash = calculateHash(genesis)
	c.blocks = append(c.blocks, genesis)
	return c
}

// AddTransaction queues txID and mines once AutoMineAt ids are pending. The
// mined block is returned, or nil when nothing was mined.
func (c *Chain) AddTransaction(txID string) *Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pending = append(c.pending, txID)
	if len(c.pending) >= AutoMineAt {
		return c.mine()
	}
	return nil
}

// MineBlock seals the pending pool. Nil when nothing is pending.
func (c *Chain) MineBlock() *Block {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mine()
}

func (c *Chain) mine() *Block {
	if len(c.pending) == 0 {
		return nil
	}
	last := c.blocks[len(c.blocks)-1]
	b := Block{
		Number:       last.Number + 1,
		Timestamp:    c.now().UnixMilli(),
		Transactions: c.pending,
		PreviousHash: last.Hash,
	}
	b.Hash = calculateHash(b)
	c.blocks = append(c.blocks, b)
	c.pending = nil
	c.log.Infof("mined block %d with %d txs (%s)", b.Number, len(b.Transactions), b.Hash[:18])
	return &b
}

func (c *Chain) Info() ChainInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ChainInfo{
		BlockHeight:         len(c.blocks) - 1,
		TotalBlocks:         len(c.blocks),
		PendingTransactions: len(c.pending),
		LatestBlock:         c.blocks[len(c.blocks)-1],
	}
}

func (c *Chain) Blocks() []Block {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]Block(nil), c.blocks...)
}

// Verify walks the chain checking numbering, linkage and hashes.
func (c *Chain) Verify() error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return VerifyBlocks(c.blocks)
}

func VerifyBlocks(blocks []Block) error {
	if len(blocks) == 0 {
		return fmt.Errorf("empty chain")
	}
	if blocks[0].PreviousHash != genesisPrevHash || blocks[0].Number != 0 {
		return fmt.Errorf("invalid genesis block")
	}
	if h := calculateHash(blocks[0]); h != blocks[0].Hash {
		return fmt.Errorf("genesis hash mismatch")
	}
	for i := 1; i < len(blocks); i++ {
		if err := validateBlock(blocks[i], blocks[i-1]); err != nil {
			return fmt.Errorf("block %d invalid: %w", i, err)
		}
	}
	return nil
}

func validateBlock(current, previous Block) error {
	if current.Number != previous.Number+1 {
		return fmt.Errorf("invalid number: expected %d, got %d", previous.Number+1, current.Number)
	}
	if current.PreviousHash != previous.Hash {
		return fmt.Errorf("invalid previous hash: expected %s, got %s", previous.Hash, current.PreviousHash)
	}
	if expected := calculateHash(current); current.Hash != expected {
		return fmt.Errorf("invalid hash: expected %s, got %s", expected, current.Hash)
	}
	return nil
}

func calculateHash(b Block) string {
	txs, _ := json.Marshal(b.Transactions)
	data := fmt.Sprintf("%d%d%s%s", b.Number, b.Timestamp, b.PreviousHash, txs)
	sum := sha256.Sum256([]byte(data))
	return "0x" + hex.EncodeToString(sum[:])
}
