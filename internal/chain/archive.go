package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// s3API is the subset of the S3 client Archiver needs, narrowed so tests
// can supply a stub instead of a live client.
type s3API interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Archiver mirrors closed blocks into cold object storage, independent of
// the primary Persistence backend — losing the archive never affects the
// chain's live correctness, only long-term auditability.
type Archiver struct {
	client s3API
	bucket string
	prefix string
}

// NewArchiver builds an Archiver around an S3 client and destination
// bucket/prefix.
func NewArchiver(client *s3.Client, bucket, prefix string) *Archiver {
	return &Archiver{client: client, bucket: bucket, prefix: prefix}
}

type archivedBlock struct {
	Slot       uint64   `json:"slot"`
	ParentHash string   `json:"parent_hash"`
	MerkleRoot string   `json:"merkle_root"`
	SelfHash   string   `json:"self_hash"`
	ProducerID string   `json:"producer_id"`
	Judgments  []string `json:"judgment_ids"`
}

// Archive uploads one block as a JSON object keyed by slot.
func (a *Archiver) Archive(ctx context.Context, b Block) error {
	record := archivedBlock{
		Slot:       b.Slot,
		ParentHash: fmt.Sprintf("%x", b.ParentHash),
		MerkleRoot: fmt.Sprintf("%x", b.MerkleRoot),
		SelfHash:   fmt.Sprintf("%x", b.SelfHash),
		ProducerID: b.ProducerID,
	}
	for _, j := range b.Judgments {
		record.Judgments = append(record.Judgments, j.ID)
	}

	body, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("chain: marshal archive record: %w", err)
	}

	key := fmt.Sprintf("%sslot-%020d.json", a.prefix, b.Slot)
	_, err = a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(a.bucket),
		Key:    aws.String(key),
		Body:   bytes.NewReader(body),
	})
	if err != nil {
		return fmt.Errorf("chain: archive slot %d: %w", b.Slot, err)
	}
	return nil
}
