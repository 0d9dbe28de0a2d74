package deadletter

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/cart-processor/internal/events"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type ReplayStore interface {
	Pending(ctx context.Context, cartID string, limit int64) ([]Letter, error)
	MarkReplayed(ctx context.Context, id string) error
}

type Publisher interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// Replayer publishes archived letters back to the topic they came from, for
// use once the cause of the failure has been fixed.
type Replayer struct {
	store     ReplayStore
	writer    Publisher
	batchSize int64
	log       *zap.Logger
}

func NewReplayer(store ReplayStore, log *zap.Logger, brokers ...string) *Replayer {
	w := &kafka.Writer{
		Addr:     kafka.TCP(brokers...),
		Balancer: &kafka.Hash{},
	}
	return newReplayer(store, w, log)
}

func newReplayer(store ReplayStore, writer Publisher, log *zap.Logger) *Replayer {
	return &Replayer{store: store, writer: writer, batchSize: 100, log: log}
}

// Replay republishes every pending letter of cartID, or of all carts when
// cartID is empty, and returns how many were published. A letter is marked
// replayed only after the broker accepted it.
func (r *Replayer) Replay(ctx context.Context, cartID string) (int, error) {
	replayed := 0
	for {
		letters, err := r.store.Pending(ctx, cartID, r.batchSize)
		if err != nil {
			return replayed, err
		}
		if len(letters) == 0 {
			return replayed, nil
		}

		for _, letter := range letters {
			if err := r.writer.WriteMessages(ctx, message(letter)); err != nil {
				return replayed, errors.Wrapf(err, "failed to publish dead letter %s", letter.ID)
			}
			if err := r.store.MarkReplayed(ctx, letter.ID); err != nil {
				return replayed, err
			}
			replayed++
			r.log.Info("dead letter replayed",
				zap.String("dead_letter_id", letter.ID),
				zap.String("topic", letter.Topic),
				zap.String("cart_id", letter.CartID))
		}
	}
}

func (r *Replayer) Close() error {
	if c, ok := r.writer.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}

// message rebuilds the event keyed by its cart so it lands on the cart's
// partition. Undecodable letters have no cart and keep their original key.
func message(letter Letter) kafka.Message {
	key := letter.CartID
	if key == "" {
		key = letter.Key
	}
	m := kafka.Message{
		Topic: letter.Topic,
		Key:   []byte(key),
		Value: []byte(letter.Payload),
	}
	if letter.Kind != "" && letter.Kind != letter.Topic {
		m.Headers = []kafka.Header{{Key: events.KindHeader, Value: []byte(letter.Kind)}}
	}
	return m
}
