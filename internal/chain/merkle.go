package chain

import (
	"crypto/sha256"
	"encoding/binary"
)

// merkleRoot hashes judgment hashes pairwise upward, duplicating the last
// leaf when the current level has an odd count, until one root remains.
// An empty judgment set roots to the zero hash.
func merkleRoot(judgments []JudgmentRef) [32]byte {
	if len(judgments) == 0 {
		return [32]byte{}
	}

	level := make([][32]byte, len(judgments))
	for i, j := range judgments {
		level[i] = j.Hash
	}

	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([][32]byte, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next[i/2] = hashPair(level[i], level[i+1])
		}
		level = next
	}
	return level[0]
}

func hashPair(a, b [32]byte) [32]byte {
	buf := make([]byte, 0, 64)
	buf = append(buf, a[:]...)
	buf = append(buf, b[:]...)
	return sha256.Sum256(buf)
}

// selfHash computes H(slot || parent-hash || merkle-root || producer-id ||
// timestamp || judgment-hashes-concat), matching the canonical,
// length-prefixed serialization the persistence format requires so
// self-hash and merkle-root are stable across implementations.
func selfHash(slot uint64, parentHash, merkleRootVal [32]byte, producerID string, timestampMs int64, judgments []JudgmentRef) [32]byte {
	buf := make([]byte, 0, 128+len(judgments)*32)

	var slotBuf [8]byte
	binary.BigEndian.PutUint64(slotBuf[:], slot)
	buf = append(buf, slotBuf[:]...)

	buf = append(buf, parentHash[:]...)
	buf = append(buf, merkleRootVal[:]...)

	buf = appendLengthPrefixed(buf, []byte(producerID))

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(timestampMs))
	buf = append(buf, tsBuf[:]...)

	for _, j := range judgments {
		buf = append(buf, j.Hash[:]...)
	}

	return sha256.Sum256(buf)
}

func appendLengthPrefixed(buf []byte, field []byte) []byte {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(field)))
	buf = append(buf, lenBuf[:]...)
	return append(buf, field...)
}

// HashPayload returns the canonical SHA-256 hash of a judgment payload,
// the value callers supply as JudgmentRef.Hash.
func HashPayload(payload []byte) [32]byte {
	return sha256.Sum256(payload)
}
