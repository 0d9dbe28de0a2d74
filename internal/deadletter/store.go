// Package deadletter archives events the processor gave up on, so they can be
// inspected and replayed by hand.
package deadletter

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Letter is one rejected Kafka message. Topic, Partition and Offset identify
// it uniquely, so archiving the same message twice is a no-op.
type Letter struct {
	ID          string    `bson:"_id"`
	Topic       string    `bson:"topic"`
	Partition   int       `bson:"partition"`
	Offset      int64     `bson:"offset"`
	Key         string    `bson:"key,omitempty"`
	Kind        string    `bson:"kind,omitempty"`
	CartID      string    `bson:"cart_id,omitempty"`
	Payload     string    `bson:"payload"`
	Errors      []string  `bson:"errors"`
	Disposition string    `bson:"disposition"`
	Attempts    int       `bson:"attempts"`
	FailedAt    time.Time `bson:"failed_at"`
	// ReplayedAt is set once the letter has been published again.
	ReplayedAt *time.Time `bson:"replayed_at,omitempty"`
}

var ErrLetterNotFound = errors.New("dead letter not found")

type Archive interface {
	Put(ctx context.Context, letter *Letter) error
}

type Store struct {
	collection *mongo.Collection
}

func NewStore(db *mongo.Database) *Store {
	return &Store{
		collection: db.Collection("dead_letters"),
	}
}

func (s *Store) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "topic", Value: 1},
				{Key: "partition", Value: 1},
				{Key: "offset", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "cart_id", Value: 1}},
		},
		{
			Keys:    bson.D{{Key: "failed_at", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(30 * 24 * 60 * 60), // 30 days TTL
		},
	}

	if _, err := s.collection.Indexes().CreateMany(ctx, indexes); err != nil {
		return errors.Wrap(err, "failed to create indexes")
	}
	return nil
}

func (s *Store) Put(ctx context.Context, letter *Letter) error {
	if letter.ID == "" {
		letter.ID = uuid.NewString()
	}
	if letter.FailedAt.IsZero() {
		letter.FailedAt = time.Now().UTC()
	}

	_, err := s.collection.InsertOne(ctx, letter)
	if mongo.IsDuplicateKeyError(err) {
		return nil
	}
	if err != nil {
		return errors.Wrap(err, "failed to archive dead letter")
	}
	return nil
}

// ByCart returns the letters archived for a cart, oldest first.
func (s *Store) ByCart(ctx context.Context, cartID string) ([]Letter, error) {
	opts := options.Find().SetSort(bson.D{{Key: "failed_at", Value: 1}})
	cursor, err := s.collection.Find(ctx, bson.M{"cart_id": cartID}, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find dead letters")
	}

	letters := []Letter{}
	if err := cursor.All(ctx, &letters); err != nil {
		return nil, errors.Wrap(err, "failed to decode dead letters")
	}
	return letters, nil
}

// Pending returns up to limit letters not replayed yet, oldest first. An empty
// cartID matches every cart.
func (s *Store) Pending(ctx context.Context, cartID string, limit int64) ([]Letter, error) {
	filter := bson.M{"replayed_at": bson.M{"$exists": false}}
	if cartID != "" {
		filter["cart_id"] = cartID
	}
	opts := options.Find().SetSort(bson.D{{Key: "failed_at", Value: 1}}).SetLimit(limit)

	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to find pending dead letters")
	}

	letters := []Letter{}
	if err := cursor.All(ctx, &letters); err != nil {
		return nil, errors.Wrap(err, "failed to decode dead letters")
	}
	return letters, nil
}

func (s *Store) MarkReplayed(ctx context.Context, id string) error {
	res, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id},
		bson.M{"$set": bson.M{"replayed_at": time.Now().UTC()}})
	if err != nil {
		return errors.Wrap(err, "failed to mark dead letter as replayed")
	}
	if res.MatchedCount == 0 {
		return errors.Wrapf(ErrLetterNotFound, "%s", id)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.collection.Database().Client().Ping(ctx, nil)
}

func (s *Store) Close(ctx context.Context) error {
	return s.collection.Database().Client().Disconnect(ctx)
}
