package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"x402-arena/server/ledger"
)

// SQLite is the file-backed store.
type SQLite struct {
	*sql.DB
}

// OpenSQLite opens (or creates) the database at path and creates the tables.
func OpenSQLite(path string) (*SQLite, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on&_busy_timeout=5000")
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite tables: %w", err)
	}
	return &SQLite{db}, nil
}

func createTables(db *sql.DB) error {
	stmts := []string{`
		CREATE TABLE IF NOT EXISTS ledger_snapshots (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			taken_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			snapshot_ms INTEGER NOT NULL,
			total_supply INTEGER NOT NULL,
			tx_count INTEGER NOT NULL,
			payload TEXT NOT NULL
		)`, `
		CREATE TABLE IF NOT EXISTS ledger_balances (
			snapshot_id INTEGER NOT NULL,
			player_id TEXT NOT NULL,
			balance INTEGER NOT NULL,
			total_wagered INTEGER NOT NULL DEFAULT 0,
			total_won INTEGER NOT NULL DEFAULT 0,
			research_spent INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (snapshot_id, player_id),
			FOREIGN KEY (snapshot_id) REFERENCES ledger_snapshots(id) ON DELETE CASCADE
		)`, `
		CREATE TABLE IF NOT EXISTS ledger_transactions (
			snapshot_id INTEGER NOT NULL,
			tx_id TEXT NOT NULL,
			from_account TEXT NOT NULL,
			to_account TEXT NOT NULL,
			amount INTEGER NOT NULL,
			tx_type TEXT NOT NULL,
			ts_ms INTEGER NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			PRIMARY KEY (snapshot_id, tx_id),
			FOREIGN KEY (snapshot_id) REFERENCES ledger_snapshots(id) ON DELETE CASCADE
		)`, `
		CREATE TABLE IF NOT EXISTS chain_blocks (
			hash TEXT PRIMARY KEY,
			block_number INTEGER NOT NULL,
			ts_ms INTEGER NOT NULL,
			previous_hash TEXT NOT NULL,
			transactions TEXT NOT NULL DEFAULT '[]',
			saved_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (db *SQLite) Ping(ctx context.Context) error { return db.PingContext(ctx) }

func (db *SQLite) SaveSnapshot(ctx context.Context, snap ledger.Snapshot) (int64, error) {
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return 0, err
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO ledger_snapshots (snapshot_ms, total_supply, tx_count, payload)
		VALUES (?, ?, ?, ?)
	`, snap.Timestamp, supply(snap), len(snap.Transactions), string(payload))
	if err != nil {
		return 0, fmt.Errorf("insert snapshot: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}

	for _, b := range snap.Balances {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO ledger_balances (snapshot_id, player_id, balance, total_wagered, total_won, research_spent)
			VALUES (?, ?, ?, ?, ?, ?)
		`, id, b.PlayerID, b.Balance, b.TotalWagered, b.TotalWon, b.ResearchSpent)
		if err != nil {
			return 0, fmt.Errorf("insert balance %s: %w", b.PlayerID, err)
		}
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ledger_transactions (snapshot_id, tx_id, from_account, to_account, amount, tx_type, ts_ms, description)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()
	for _, t := range snap.Transactions {
		if _, err := stmt.ExecContext(ctx, id, t.ID, t.From, t.To, t.Amount, string(t.Type), t.Timestamp, t.Description); err != nil {
			return 0, fmt.Errorf("insert transaction %s: %w", t.ID, err)
		}
	}
	return id, tx.Commit()
}

func (db *SQLite) LatestSnapshot(ctx context.Context) (ledger.Snapshot, error) {
	var payload string
	err := db.QueryRowContext(ctx, `SELECT payload FROM ledger_snapshots ORDER BY id DESC LIMIT 1`).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return ledger.Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return ledger.Snapshot{}, err
	}
	return decodeSnapshot([]byte(payload))
}

func (db *SQLite) SaveBlocks(ctx context.Context, blocks []ledger.Block) (int, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	added := 0
	for _, b := range blocks {
		txs, err := json.Marshal(txList(b))
		if err != nil {
			return 0, err
		}
		res, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO chain_blocks (hash, block_number, ts_ms, previous_hash, transactions)
			VALUES (?, ?, ?, ?, ?)
		`, b.Hash, b.Number, b.Timestamp, b.PreviousHash, string(txs))
		if err != nil {
			return 0, fmt.Errorf("insert block %d: %w", b.Number, err)
		}
		n, _ := res.RowsAffected()
		added += int(n)
	}
	return added, tx.Commit()
}

func (db *SQLite) Blocks(ctx context.Context) ([]ledger.Block, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT block_number, ts_ms, previous_hash, hash, transactions
		  FROM chain_blocks
		 ORDER BY rowid
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ledger.Block
	for rows.Next() {
		var b ledger.Block
		var txs string
		if err := rows.Scan(&b.Number, &b.Timestamp, &b.PreviousHash, &b.Hash, &txs); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(txs), &b.Transactions); err != nil {
			return nil, fmt.Errorf("block %d transactions: %w", b.Number, err)
		}
		out = append(out, b)
	}
	return out, rows.Err()
}
