package store

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"x402-arena/server/ledger"
)

//go:embed schema.sql
var schema embed.FS

// DB is the Postgres store.
type DB struct{ *pgxpool.Pool }

func Open(dsn string) (*DB, error) {
	p, err := pgxpool.New(context.Background(), dsn)
	if err != nil {
		return nil, err
	}
	return &DB{p}, nil
}

func (db *DB) Close() error                   { db.Pool.Close(); return nil }
func (db *DB) Ping(ctx context.Context) error { return db.Pool.Ping(ctx) }

func Migrate(ctx context.Context, db *DB) error {
	sqlBytes, err := schema.ReadFile("schema.sql")
	if err != nil {
		return err
	}
	_, err = db.Exec(ctx, string(sqlBytes))
	return err
}

// SaveSnapshot writes the snapshot payload plus its balances and transactions
// in one database transaction and returns the snapshot id.
func (db *DB) SaveSnapshot(ctx context.Context, snap ledger.Snapshot) (int64, error) {
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return 0, err
	}
	tx, err := db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	var id int64
	err = tx.QueryRow(ctx, `
		INSERT INTO ledger_snapshots(snapshot_ms, total_supply, tx_count, payload)
		VALUES ($1,$2,$3,$4)
		RETURNING id
	`, snap.Timestamp, supply(snap), len(snap.Transactions), payload).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}

	batch := &pgx.Batch{}
	for _, b := range snap.Balances {
		batch.Queue(`
			INSERT INTO ledger_balances(snapshot_id, player_id, balance, total_wagered, total_won, research_spent)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, id, b.PlayerID, b.Balance, b.TotalWagered, b.TotalWon, b.ResearchSpent)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return 0, fmt.Errorf("insert balances: %w", err)
	}

	txs := snap.Transactions
	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"ledger_transactions"},
		[]string{"snapshot_id", "tx_id", "from_account", "to_account", "amount", "tx_type", "ts_ms", "description"},
		pgx.CopyFromSlice(len(txs), func(i int) ([]any, error) {
			t := txs[i]
			return []any{id, t.ID, t.From, t.To, t.Amount, string(t.Type), t.Timestamp, t.Description}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy transactions: %w", err)
	}
	return id, tx.Commit(ctx)
}

func (db *DB) LatestSnapshot(ctx context.Context) (ledger.Snapshot, error) {
	var payload []byte
	err := db.QueryRow(ctx, `SELECT payload FROM ledger_snapshots ORDER BY id DESC LIMIT 1`).Scan(&payload)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ledger.Snapshot{}, ErrNoSnapshot
		}
		return ledger.Snapshot{}, err
	}
	return decodeSnapshot(payload)
}

func (db *DB) SaveBlocks(ctx context.Context, blocks []ledger.Block) (int, error) {
	if len(blocks) == 0 {
		return 0, nil
	}
	batch := &pgx.Batch{}
	for _, b := range blocks {
		txs, err := json.Marshal(txList(b))
		if err != nil {
			return 0, err
		}
		batch.Queue(`
			INSERT INTO chain_blocks(hash, block_number, ts_ms, previous_hash, transactions)
			VALUES ($1,$2,$3,$4,$5)
			ON CONFLICT (hash) DO NOTHING
		`, b.Hash, b.Number, b.Timestamp, b.PreviousHash, txs)
	}
	br := db.SendBatch(ctx, batch)
	defer br.Close()
	added := 0
	for range blocks {
		tag, err := br.Exec()
		if err != nil {
			return added, fmt.Errorf("insert block: %w", err)
		}
		added += int(tag.RowsAffected())
	}
	return added, nil
}

func (db *DB) Blocks(ctx context.Context) ([]ledger.Block, error) {
	rows, err := db.Query(ctx, `
		SELECT block_number, ts_ms, previous_hash, hash, transactions
		  FROM chain_blocks
		 ORDER BY seq
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Block
	for rows.Next() {
		var b ledger.Block
		var txs []byte
		if err := rows.Scan(&b.Number, &b.Timestamp, &b.PreviousHash, &b.Hash, &txs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(txs, &b.Transactions); err != nil {
			return nil, fmt.Errorf("block %d transactions: %w", b.Number, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
