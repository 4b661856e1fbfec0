package chain

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Persistence is the contract a backing store (SQL, object storage, or a
// test double) must satisfy; the chain's correctness never depends on a
// specific implementation.
type Persistence interface {
	SaveBlock(ctx context.Context, b Block) error
	LoadBlocks(ctx context.Context, fromSlot uint64) ([]Block, error)
}

// NoopPersistence discards blocks; useful when the chain runs trace-only
// (e.g. after a chain-write-failed alert has been raised upstream).
type NoopPersistence struct{}

func (NoopPersistence) SaveBlock(ctx context.Context, b Block) error { return nil }
func (NoopPersistence) LoadBlocks(ctx context.Context, fromSlot uint64) ([]Block, error) {
	return nil, nil
}

// Options configure slot-closure behavior.
type Options struct {
	SlotJudgmentLimit int           // close when pending count reaches this
	IdleClose         time.Duration // close after this much time with no new append
	ProducerID        string

	// Archiver, if set, mirrors every closed block into cold storage after
	// it persists successfully. A failure here is logged by the caller via
	// the returned error's wrapping and never rolls back the close — the
	// block is already part of the chain regardless of archive outcome.
	Archiver *Archiver
	// Signer, if set, attaches an HMAC signature to every closed block,
	// stored alongside it for later Verify calls. Nil means blocks are
	// unsigned, per ChainSettings.SignBlocks being off by default.
	Signer *Signer
}

// Store is the append-only Proof-of-Judgment chain: exactly one appender
// at a time (guarded by mu), multiple concurrent readers.
type Store struct {
	mu sync.Mutex

	opts        Options
	persistence Persistence

	blocks   []Block
	pending  []JudgmentRef
	seen     map[[32]byte]bool // dedup: canonical judgment hash -> already appended
	readOnly bool

	lastAppend time.Time
}

// New creates a chain store with the given options and persistence
// backend (use NoopPersistence{} for an in-memory-only chain).
func New(opts Options, persistence Persistence) *Store {
	if opts.SlotJudgmentLimit <= 0 {
		opts.SlotJudgmentLimit = 50
	}
	if opts.IdleClose <= 0 {
		opts.IdleClose = 30 * time.Second
	}
	return &Store{
		opts:        opts,
		persistence: persistence,
		seen:        make(map[[32]byte]bool),
	}
}

// AppendJudgment adds a judgment to the pending batch. Appending the same
// judgment twice (same canonical hash) is idempotent: the duplicate is
// merged into the existing pending entry rather than appended again. If
// the slot-closure size threshold is reached, the slot closes
// synchronously before AppendJudgment returns — size takes precedence
// over the idle timer (see CloseSlot doc for the full precedence rule).
// Returns the new pending count (0 if a close just happened).
func (s *Store) AppendJudgment(ctx context.Context, j JudgmentRef) (int, error) {
	s.mu.Lock()
	if s.readOnly {
		s.mu.Unlock()
		return 0, fmt.Errorf("chain: read-only after integrity failure")
	}
	if s.seen[j.Hash] {
		s.mu.Unlock()
		return len(s.pending), nil
	}
	s.seen[j.Hash] = true
	s.pending = append(s.pending, j)
	s.lastAppend = time.Now()
	reachedLimit := len(s.pending) >= s.opts.SlotJudgmentLimit
	s.mu.Unlock()

	if reachedLimit {
		if _, err := s.CloseSlot(ctx); err != nil {
			return 0, err
		}
		return 0, nil
	}

	s.mu.Lock()
	n := len(s.pending)
	s.mu.Unlock()
	return n, nil
}

// CloseSlot closes the current pending batch into a block, whether
// triggered explicitly, by the size threshold in AppendJudgment, or by an
// idle timer elsewhere. Precedence (spec open question, resolved here):
// the size threshold always wins if both conditions are met at once —
// AppendJudgment checks it synchronously on every append, so the idle
// timer only ever fires for slots that never reached the size threshold.
// An explicit close of an empty pending batch produces an empty block
// (merkle root = zero hash) rather than being a no-op; IdleCloseIfDue
// never closes an empty batch.
func (s *Store) CloseSlot(ctx context.Context) (Block, error) {
	s.mu.Lock()
	if s.readOnly {
		s.mu.Unlock()
		return Block{}, fmt.Errorf("chain: read-only after integrity failure")
	}

	var parentHash [32]byte
	slot := uint64(0)
	if n := len(s.blocks); n > 0 {
		parentHash = s.blocks[n-1].SelfHash
		slot = uint64(n)
	}

	judgments := s.pending
	s.pending = nil
	s.seen = make(map[[32]byte]bool)
	now := time.Now()

	root := merkleRoot(judgments)
	self := selfHash(slot, parentHash, root, s.opts.ProducerID, now.UnixMilli(), judgments)

	block := Block{
		Slot:       slot,
		ParentHash: parentHash,
		MerkleRoot: root,
		Judgments:  judgments,
		ProducerID: s.opts.ProducerID,
		Timestamp:  now,
		SelfHash:   self,
	}
	if s.opts.Signer != nil {
		sig, err := s.opts.Signer.Sign(block)
		if err != nil {
			s.mu.Unlock()
			return block, fmt.Errorf("chain: sign block %d: %w", slot, err)
		}
		block.Signature = sig
	}
	s.blocks = append(s.blocks, block)
	s.mu.Unlock()

	if err := s.persistence.SaveBlock(ctx, block); err != nil {
		return block, fmt.Errorf("chain: persist block %d: %w", slot, err)
	}
	if s.opts.Archiver != nil {
		if err := s.opts.Archiver.Archive(ctx, block); err != nil {
			return block, fmt.Errorf("chain: archive block %d: %w", slot, err)
		}
	}
	return block, nil
}

// VerifyIntegrity walks blocks from fromSlot, checking parent-hash
// chaining, slot contiguity, and recomputed Merkle roots. On the first
// call that finds any error, the chain transitions to read-only for
// writes (reads remain available) until an operator calls Reset.
func (s *Store) VerifyIntegrity(fromSlot uint64) VerifyResult {
	s.mu.Lock()
	blocks := append([]Block(nil), s.blocks...)
	s.mu.Unlock()

	result := VerifyResult{Valid: true}
	var prevHash [32]byte
	expectedSlot := fromSlot

	for _, b := range blocks {
		if b.Slot < fromSlot {
			continue
		}
		if b.Slot != expectedSlot {
			result.Errors = append(result.Errors, VerifyError{Kind: "slot-gap", Slot: b.Slot})
		} else if b.Slot > fromSlot && b.ParentHash != prevHash {
			result.Errors = append(result.Errors, VerifyError{Kind: "parent-mismatch", Slot: b.Slot})
		}
		if b.MerkleRoot != merkleRoot(b.Judgments) {
			result.Errors = append(result.Errors, VerifyError{Kind: "merkle-mismatch", Slot: b.Slot})
		}
		prevHash = b.SelfHash
		expectedSlot = b.Slot + 1
	}

	if len(result.Errors) > 0 {
		result.Valid = false
		s.mu.Lock()
		s.readOnly = true
		s.mu.Unlock()
	}
	return result
}

// Reset clears the read-only flag after an operator has addressed an
// integrity failure. It does not repair or alter any block.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.readOnly = false
}

// Status reports the current head, pending count, and block count.
func (s *Store) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	head := int64(-1)
	if len(s.blocks) > 0 {
		head = int64(s.blocks[len(s.blocks)-1].Slot)
	}
	return Status{
		HeadSlot:     head,
		PendingCount: len(s.pending),
		BlockCount:   len(s.blocks),
		ReadOnly:     s.readOnly,
	}
}

// IterBlocks returns blocks with slot in [fromSlot, toSlot] inclusive
// (toSlot < 0 means "through head").
func (s *Store) IterBlocks(fromSlot uint64, toSlot int64) []Block {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Block
	for _, b := range s.blocks {
		if b.Slot < fromSlot {
			continue
		}
		if toSlot >= 0 && int64(b.Slot) > toSlot {
			continue
		}
		out = append(out, b)
	}
	return out
}

// IdleCloseIfDue closes the current slot if it has judgments pending and
// the idle timeout has elapsed since the last append. Intended to be
// driven by an independent scheduled task per the spec's background-loop
// design, not by a timer owned by the store itself.
func (s *Store) IdleCloseIfDue(ctx context.Context) (bool, error) {
	s.mu.Lock()
	due := len(s.pending) > 0 && !s.lastAppend.IsZero() && time.Since(s.lastAppend) >= s.opts.IdleClose
	s.mu.Unlock()
	if !due {
		return false, nil
	}
	_, err := s.CloseSlot(ctx)
	return err == nil, err
}
