package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"x402-arena/server/ledger"
)

// ErrNoSnapshot is returned by LatestSnapshot when nothing has been saved yet.
var ErrNoSnapshot = errors.New("store: no ledger snapshot")

// Store persists ledger snapshots and mined chain blocks.
type Store interface {
	SaveSnapshot(ctx context.Context, snap ledger.Snapshot) (int64, error)
	LatestSnapshot(ctx context.Context) (ledger.Snapshot, error)
	// SaveBlocks writes blocks not seen before and reports how many were new.
	SaveBlocks(ctx context.Context, blocks []ledger.Block) (int, error)
	// Blocks returns every stored block in insertion order.
	Blocks(ctx context.Context) ([]ledger.Block, error)
	Ping(ctx context.Context) error
	Close() error
}

// Multi fans writes out to every store. Reads return the newest snapshot any
// store holds.
type Multi []Store

func (m Multi) SaveSnapshot(ctx context.Context, snap ledger.Snapshot) (int64, error) {
	var first int64
	var errs []error
	for i, s := range m {
		id, err := s.SaveSnapshot(ctx, snap)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if i == 0 {
			first = id
		}
	}
	return first, errors.Join(errs...)
}

func (m Multi) LatestSnapshot(ctx context.Context) (ledger.Snapshot, error) {
	var best ledger.Snapshot
	found := false
	for _, s := range m {
		snap, err := s.LatestSnapshot(ctx)
		if errors.Is(err, ErrNoSnapshot) {
			continue
		}
		if err != nil {
			return ledger.Snapshot{}, err
		}
		if !found || snap.Timestamp > best.Timestamp {
			best, found = snap, true
		}
	}
	if !found {
		return ledger.Snapshot{}, ErrNoSnapshot
	}
	return best, nil
}

func (m Multi) SaveBlocks(ctx context.Context, blocks []ledger.Block) (int, error) {
	most := 0
	var errs []error
	for _, s := range m {
		n, err := s.SaveBlocks(ctx, blocks)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		most = max(most, n)
	}
	return most, errors.Join(errs...)
}

func (m Multi) Blocks(ctx context.Context) ([]ledger.Block, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return m[0].Blocks(ctx)
}

func (m Multi) Ping(ctx context.Context) error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Ping(ctx))
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		errs = append(errs, s.Close())
	}
	return errors.Join(errs...)
}

func encodeSnapshot(snap ledger.Snapshot) ([]byte, error) {
	b, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return b, nil
}

func decodeSnapshot(b []byte) (ledger.Snapshot, error) {
	var snap ledger.Snapshot
	if err := json.Unmarshal(b, &snap); err != nil {
		return ledger.Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	return snap, nil
}

func supply(snap ledger.Snapshot) int {
	n := 0
	for _, b := range snap.Balances {
		n += b.Balance
	}
	return n
}

func txList(b ledger.Block) []string {
	if b.Transactions == nil {
		return []string{}
	}
	return b.Transactions
}

// Chains splits stored blocks, oldest first, into one slice per chain. Each
// chain starts at a genesis block.
func Chains(blocks []ledger.Block) [][]ledger.Block {
	var out [][]ledger.Block
	for _, b := range blocks {
		if b.Number == 0 || len(out) == 0 {
			out = append(out, nil)
		}
		out[len(out)-1] = append(out[len(out)-1], b)
	}
	return out
}
