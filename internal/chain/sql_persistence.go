package chain

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// SQLPersistence persists blocks to Postgres, one row per block and one
// row per judgment, following the same create-tables-if-absent pattern
// the platform's own audit log uses.
type SQLPersistence struct {
	db *sql.DB
}

// NewSQLPersistence opens (or reuses) a Postgres connection and ensures
// the chain tables exist.
func NewSQLPersistence(databaseURL string) (*SQLPersistence, error) {
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("chain: open database: %w", err)
	}
	if err := createChainTables(db); err != nil {
		return nil, fmt.Errorf("chain: create tables: %w", err)
	}
	return &SQLPersistence{db: db}, nil
}

// NewSQLPersistenceFromDB wraps an already-open *sql.DB (e.g. one backed
// by go-sqlmock in tests) without issuing a CREATE TABLE, leaving table
// setup to the caller/test fixture.
func NewSQLPersistenceFromDB(db *sql.DB) *SQLPersistence {
	return &SQLPersistence{db: db}
}

func createChainTables(db *sql.DB) error {
	_, err := db.Exec(`
	CREATE TABLE IF NOT EXISTS chain_blocks (
		slot BIGINT PRIMARY KEY,
		parent_hash VARCHAR(64) NOT NULL,
		merkle_root VARCHAR(64) NOT NULL,
		producer_id VARCHAR(255) NOT NULL,
		timestamp TIMESTAMP NOT NULL,
		self_hash VARCHAR(64) NOT NULL
	);
	CREATE TABLE IF NOT EXISTS chain_judgments (
		block_slot BIGINT NOT NULL REFERENCES chain_blocks(slot),
		judgment_id VARCHAR(255) NOT NULL,
		hash VARCHAR(64) NOT NULL,
		payload JSONB,
		PRIMARY KEY (block_slot, judgment_id)
	);
	`)
	return err
}

// SaveBlock persists one block and its judgments inside a transaction.
func (p *SQLPersistence) SaveBlock(ctx context.Context, b Block) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO chain_blocks (slot, parent_hash, merkle_root, producer_id, timestamp, self_hash)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		b.Slot, hex.EncodeToString(b.ParentHash[:]), hex.EncodeToString(b.MerkleRoot[:]),
		b.ProducerID, b.Timestamp, hex.EncodeToString(b.SelfHash[:]))
	if err != nil {
		return fmt.Errorf("chain: insert block: %w", err)
	}

	for _, j := range b.Judgments {
		payload, err := json.Marshal(map[string]interface{}{"raw": string(j.Payload)})
		if err != nil {
			return fmt.Errorf("chain: marshal judgment payload: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO chain_judgments (block_slot, judgment_id, hash, payload) VALUES ($1, $2, $3, $4)`,
			b.Slot, j.ID, hex.EncodeToString(j.Hash[:]), payload)
		if err != nil {
			return fmt.Errorf("chain: insert judgment: %w", err)
		}
	}

	return tx.Commit()
}

// LoadBlocks reads blocks with slot >= fromSlot, in slot order.
func (p *SQLPersistence) LoadBlocks(ctx context.Context, fromSlot uint64) ([]Block, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT slot, parent_hash, merkle_root, producer_id, timestamp, self_hash
		 FROM chain_blocks WHERE slot >= $1 ORDER BY slot ASC`, fromSlot)
	if err != nil {
		return nil, fmt.Errorf("chain: query blocks: %w", err)
	}
	defer rows.Close()

	var blocks []Block
	for rows.Next() {
		var b Block
		var parentHex, rootHex, selfHex string
		var ts time.Time
		if err := rows.Scan(&b.Slot, &parentHex, &rootHex, &b.ProducerID, &ts, &selfHex); err != nil {
			return nil, fmt.Errorf("chain: scan block: %w", err)
		}
		b.Timestamp = ts
		if err := decodeHashInto(&b.ParentHash, parentHex); err != nil {
			return nil, err
		}
		if err := decodeHashInto(&b.MerkleRoot, rootHex); err != nil {
			return nil, err
		}
		if err := decodeHashInto(&b.SelfHash, selfHex); err != nil {
			return nil, err
		}

		judgments, err := p.loadJudgments(ctx, b.Slot)
		if err != nil {
			return nil, err
		}
		b.Judgments = judgments
		blocks = append(blocks, b)
	}
	return blocks, rows.Err()
}

func (p *SQLPersistence) loadJudgments(ctx context.Context, slot uint64) ([]JudgmentRef, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT judgment_id, hash FROM chain_judgments WHERE block_slot = $1 ORDER BY judgment_id ASC`, slot)
	if err != nil {
		return nil, fmt.Errorf("chain: query judgments: %w", err)
	}
	defer rows.Close()

	var out []JudgmentRef
	for rows.Next() {
		var j JudgmentRef
		var hashHex string
		if err := rows.Scan(&j.ID, &hashHex); err != nil {
			return nil, fmt.Errorf("chain: scan judgment: %w", err)
		}
		if err := decodeHashInto(&j.Hash, hashHex); err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func decodeHashInto(dst *[32]byte, hexStr string) error {
	b, err := hex.DecodeString(hexStr)
	if err != nil || len(b) != 32 {
		return fmt.Errorf("chain: malformed hash %q", hexStr)
	}
	copy(dst[:], b)
	return nil
}
