package chain

import (
	"context"
	"testing"
	"time"
)

func refFor(id, payload string) JudgmentRef {
	return JudgmentRef{ID: id, Hash: HashPayload([]byte(payload)), Payload: []byte(payload)}
}

func TestAppendJudgmentIsIdempotentOnHash(t *testing.T) {
	s := New(Options{SlotJudgmentLimit: 10, ProducerID: "node-1"}, NoopPersistence{})
	ctx := context.Background()

	r := refFor("j1", "payload-a")
	n1, err := s.AppendJudgment(ctx, r)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	n2, err := s.AppendJudgment(ctx, r)
	if err != nil {
		t.Fatalf("append duplicate: %v", err)
	}
	if n1 != 1 || n2 != 1 {
		t.Fatalf("expected pending count to stay 1, got %d then %d", n1, n2)
	}
}

func TestAppendJudgmentClosesSlotAtSizeThreshold(t *testing.T) {
	s := New(Options{SlotJudgmentLimit: 2, ProducerID: "node-1"}, NoopPersistence{})
	ctx := context.Background()

	if _, err := s.AppendJudgment(ctx, refFor("j1", "a")); err != nil {
		t.Fatalf("append 1: %v", err)
	}
	n, err := s.AppendJudgment(ctx, refFor("j2", "b"))
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if n != 0 {
		t.Fatalf("expected pending reset to 0 after auto-close, got %d", n)
	}

	status := s.Status()
	if status.BlockCount != 1 || status.HeadSlot != 0 {
		t.Fatalf("expected one closed block at slot 0, got %+v", status)
	}
}

func TestCloseSlotEmptyBatchProducesValidBlock(t *testing.T) {
	s := New(Options{SlotJudgmentLimit: 10, ProducerID: "node-1"}, NoopPersistence{})
	ctx := context.Background()

	b, err := s.CloseSlot(ctx)
	if err != nil {
		t.Fatalf("close empty slot: %v", err)
	}
	if b.MerkleRoot != ([32]byte{}) {
		t.Fatalf("expected zero merkle root for empty slot, got %x", b.MerkleRoot)
	}
	if len(b.Judgments) != 0 {
		t.Fatalf("expected no judgments in empty block")
	}
}

func TestCloseSlotSignsBlockWhenSignerConfigured(t *testing.T) {
	signer := NewSigner([]byte("test-key"))
	s := New(Options{SlotJudgmentLimit: 10, ProducerID: "node-1", Signer: signer}, NoopPersistence{})
	ctx := context.Background()

	if _, err := s.AppendJudgment(ctx, refFor("j1", "payload")); err != nil {
		t.Fatalf("append: %v", err)
	}
	b, err := s.CloseSlot(ctx)
	if err != nil {
		t.Fatalf("close slot: %v", err)
	}
	if b.Signature == "" {
		t.Fatal("expected a signature on the closed block")
	}
	if err := signer.Verify(b.Signature, b); err != nil {
		t.Fatalf("expected signature to verify, got %v", err)
	}
}

func TestCloseSlotArchivesBlockWhenArchiverConfigured(t *testing.T) {
	stub := &stubS3{}
	archiver := &Archiver{client: stub, bucket: "chain-archive", prefix: "pojnode/"}
	s := New(Options{SlotJudgmentLimit: 10, ProducerID: "node-1", Archiver: archiver}, NoopPersistence{})
	ctx := context.Background()

	if _, err := s.AppendJudgment(ctx, refFor("j1", "payload")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := s.CloseSlot(ctx); err != nil {
		t.Fatalf("close slot: %v", err)
	}
	if stub.calls != 1 {
		t.Fatalf("expected CloseSlot to archive exactly one block, got %d calls", stub.calls)
	}
}

func TestVerifyIntegrityValidChain(t *testing.T) {
	s := New(Options{SlotJudgmentLimit: 10, ProducerID: "node-1"}, NoopPersistence{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.AppendJudgment(ctx, refFor(string(rune('a'+i)), "payload")); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if _, err := s.CloseSlot(ctx); err != nil {
		t.Fatalf("close slot: %v", err)
	}

	result := s.VerifyIntegrity(0)
	if !result.Valid || len(result.Errors) != 0 {
		t.Fatalf("expected valid chain, got %+v", result)
	}
}

func TestVerifyIntegrityDetectsMerkleMismatch(t *testing.T) {
	s := New(Options{SlotJudgmentLimit: 10, ProducerID: "node-1"}, NoopPersistence{})
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := s.AppendJudgment(ctx, refFor(string(rune('a'+i)), "payload")); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}
	if _, err := s.CloseSlot(ctx); err != nil {
		t.Fatalf("close slot: %v", err)
	}

	// Corrupt block 0's merkle root in place.
	s.mu.Lock()
	s.blocks[0].MerkleRoot[0] ^= 0xFF
	s.mu.Unlock()

	result := s.VerifyIntegrity(0)
	if result.Valid {
		t.Fatalf("expected invalid chain after corruption")
	}
	found := false
	for _, e := range result.Errors {
		if e.Kind == "merkle-mismatch" && e.Slot == 0 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected merkle-mismatch at slot 0, got %+v", result.Errors)
	}

	status := s.Status()
	if !status.ReadOnly {
		t.Fatalf("expected store to become read-only after integrity failure")
	}

	if _, err := s.AppendJudgment(ctx, refFor("x", "y")); err == nil {
		t.Fatalf("expected append to fail while read-only")
	}

	s.Reset()
	if s.Status().ReadOnly {
		t.Fatalf("expected read-only cleared after Reset")
	}
}

func TestIdleCloseIfDueRequiresElapsedTimeout(t *testing.T) {
	// New replaces a zero IdleClose with its 30s default, so use the
	// smallest positive duration.
	s := New(Options{SlotJudgmentLimit: 10, IdleClose: time.Nanosecond, ProducerID: "node-1"}, NoopPersistence{})
	ctx := context.Background()

	closed, err := s.IdleCloseIfDue(ctx)
	if err != nil {
		t.Fatalf("idle close on empty pending: %v", err)
	}
	if closed {
		t.Fatalf("expected no close with nothing pending")
	}

	if _, err := s.AppendJudgment(ctx, refFor("j1", "a")); err != nil {
		t.Fatalf("append: %v", err)
	}
	closed, err = s.IdleCloseIfDue(ctx)
	if err != nil {
		t.Fatalf("idle close: %v", err)
	}
	if !closed {
		t.Fatalf("expected idle close to fire once the 1ns idle duration elapsed")
	}
}

func TestIterBlocksFiltersBySlotRange(t *testing.T) {
	s := New(Options{SlotJudgmentLimit: 1, ProducerID: "node-1"}, NoopPersistence{})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := s.AppendJudgment(ctx, refFor(string(rune('a'+i)), "p")); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	blocks := s.IterBlocks(1, 2)
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks in [1,2], got %d", len(blocks))
	}
	if blocks[0].Slot != 1 || blocks[1].Slot != 2 {
		t.Fatalf("unexpected slots: %+v", blocks)
	}
}
