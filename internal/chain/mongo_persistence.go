package chain

import (
	"context"
	"encoding/hex"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoPersistence is an alternative to SQLPersistence for deployments
// that already run Mongo for everything else — one document per block,
// judgments embedded rather than split across a join table. Grounded on
// the connector's pooled-client construction style (ApplyURI + explicit
// pool bounds) adapted from a generic connector interface to this one
// fixed collection.
type MongoPersistence struct {
	client     *mongo.Client
	collection *mongo.Collection
}

// NewMongoPersistence connects to uri and ensures a unique index on slot.
func NewMongoPersistence(ctx context.Context, uri, database, collection string) (*MongoPersistence, error) {
	clientOpts := options.Client().ApplyURI(uri).
		SetMaxPoolSize(100).
		SetMinPoolSize(10).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOpts)
	if err != nil {
		return nil, fmt.Errorf("chain: mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("chain: mongo ping: %w", err)
	}

	coll := client.Database(database).Collection(collection)
	_, err = coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "slot", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return nil, fmt.Errorf("chain: mongo create index: %w", err)
	}

	return &MongoPersistence{client: client, collection: coll}, nil
}

// mongoJudgment is JudgmentRef's wire shape: hash hex-encoded, payload raw.
type mongoJudgment struct {
	ID      string `bson:"id"`
	Hash    string `bson:"hash"`
	Payload []byte `bson:"payload"`
}

// mongoBlock is Block's wire shape, hashes hex-encoded for readability in
// the Mongo shell the way the SQL backend hex-encodes them for Postgres.
type mongoBlock struct {
	Slot       uint64          `bson:"slot"`
	ParentHash string          `bson:"parent_hash"`
	MerkleRoot string          `bson:"merkle_root"`
	SelfHash   string          `bson:"self_hash"`
	ProducerID string          `bson:"producer_id"`
	Timestamp  time.Time       `bson:"timestamp"`
	Judgments  []mongoJudgment `bson:"judgments"`
}

func toMongoBlock(b Block) mongoBlock {
	judgments := make([]mongoJudgment, len(b.Judgments))
	for i, j := range b.Judgments {
		judgments[i] = mongoJudgment{ID: j.ID, Hash: hex.EncodeToString(j.Hash[:]), Payload: j.Payload}
	}
	return mongoBlock{
		Slot:       b.Slot,
		ParentHash: hex.EncodeToString(b.ParentHash[:]),
		MerkleRoot: hex.EncodeToString(b.MerkleRoot[:]),
		SelfHash:   hex.EncodeToString(b.SelfHash[:]),
		ProducerID: b.ProducerID,
		Timestamp:  b.Timestamp,
		Judgments:  judgments,
	}
}

func fromMongoBlock(m mongoBlock) (Block, error) {
	var b Block
	b.Slot = m.Slot
	b.ProducerID = m.ProducerID
	b.Timestamp = m.Timestamp
	if err := decodeHashInto(&b.ParentHash, m.ParentHash); err != nil {
		return Block{}, err
	}
	if err := decodeHashInto(&b.MerkleRoot, m.MerkleRoot); err != nil {
		return Block{}, err
	}
	if err := decodeHashInto(&b.SelfHash, m.SelfHash); err != nil {
		return Block{}, err
	}
	b.Judgments = make([]JudgmentRef, len(m.Judgments))
	for i, j := range m.Judgments {
		ref := JudgmentRef{ID: j.ID, Payload: j.Payload}
		if err := decodeHashInto(&ref.Hash, j.Hash); err != nil {
			return Block{}, err
		}
		b.Judgments[i] = ref
	}
	return b, nil
}

// SaveBlock upserts one document per block; a retried append for an
// already-saved slot is a no-op replace rather than a duplicate-key error.
func (p *MongoPersistence) SaveBlock(ctx context.Context, b Block) error {
	doc := toMongoBlock(b)
	_, err := p.collection.ReplaceOne(ctx, bson.M{"slot": b.Slot}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("chain: mongo save block: %w", err)
	}
	return nil
}

// LoadBlocks reads blocks with slot >= fromSlot, in slot order.
func (p *MongoPersistence) LoadBlocks(ctx context.Context, fromSlot uint64) ([]Block, error) {
	cursor, err := p.collection.Find(ctx,
		bson.M{"slot": bson.M{"$gte": fromSlot}},
		options.Find().SetSort(bson.D{{Key: "slot", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("chain: mongo find blocks: %w", err)
	}
	defer cursor.Close(ctx)

	var blocks []Block
	for cursor.Next(ctx) {
		var m mongoBlock
		if err := cursor.Decode(&m); err != nil {
			return nil, fmt.Errorf("chain: mongo decode block: %w", err)
		}
		b, err := fromMongoBlock(m)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}
	return blocks, cursor.Err()
}

// Close disconnects the underlying Mongo client.
func (p *MongoPersistence) Close(ctx context.Context) error {
	return p.client.Disconnect(ctx)
}
