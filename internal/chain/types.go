// Package chain implements C4: the append-only, slot-based, Merkle-linked
// Proof-of-Judgment log. Judgments accumulate in a pending batch until a
// slot closes (by size threshold or idle timer — see Store.CloseSlot for
// the precedence rule); closing produces a Block chained to the previous
// one by self-hash and verifiable end to end.
package chain

import "time"

// JudgmentRef is one judgment's canonical record as it enters the chain:
// an opaque identifier plus its content hash. The orchestrator supplies
// the hash; the chain never interprets judgment content.
type JudgmentRef struct {
	ID      string
	Hash    [32]byte
	Payload []byte // canonical serialized judgment, persisted alongside the hash
}

// Block is one closed, hash-linked slot in the chain.
type Block struct {
	Slot       uint64
	ParentHash [32]byte
	MerkleRoot [32]byte
	Judgments  []JudgmentRef
	ProducerID string
	Timestamp  time.Time
	SelfHash   [32]byte
	// Signature is the compact JWS from Options.Signer, empty when
	// signing is disabled.
	Signature string
}

// Status summarizes the chain's current head and pending state.
type Status struct {
	HeadSlot     int64 // -1 if no block has closed yet
	PendingCount int
	BlockCount   int
	ReadOnly     bool // true once an integrity failure has been detected
}

// VerifyError names one integrity break found while walking the chain.
type VerifyError struct {
	Kind string // "parent-mismatch", "merkle-mismatch", "slot-gap"
	Slot uint64
}

// VerifyResult is the outcome of VerifyIntegrity.
type VerifyResult struct {
	Valid  bool
	Errors []VerifyError
}
