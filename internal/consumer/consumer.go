// Package consumer reads cart events from Kafka, hands them to the dispatcher
// and commits each message once its fate is settled: applied, recognised as a
// duplicate, or archived as a dead letter.
package consumer

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fjod/go_cart/cart-processor/internal/deadletter"
	"github.com/fjod/go_cart/cart-processor/internal/events"
	"github.com/fjod/go_cart/cart-processor/internal/processor"
	"github.com/fjod/go_cart/cart-processor/internal/service"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type Config struct {
	Brokers []string
	Topics  []string
	GroupID string
	// MaxAttempts bounds how often a retryable failure is re-run before the
	// event is dead-lettered.
	MaxAttempts  int
	RetryBackoff time.Duration
	// RetryNotFound retries misses, which out-of-order delivery produces,
	// instead of dead-lettering them straight away.
	RetryNotFound bool
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type EventDispatcher interface {
	Dispatch(ctx context.Context, log *zap.Logger, ev events.Event) processor.Outcome
	Redispatch(ctx context.Context, log *zap.Logger, ev events.Event, previous processor.Outcome, retryNotFound bool) processor.Outcome
}

type Consumer struct {
	reader     MessageReader
	dispatcher EventDispatcher
	archive    deadletter.Archive
	cfg        Config
	log        *zap.Logger
}

func NewConsumer(cfg Config, dispatcher EventDispatcher, archive deadletter.Archive, log *zap.Logger) *Consumer {
	if len(cfg.Topics) == 0 {
		for _, k := range events.Kinds {
			cfg.Topics = append(cfg.Topics, string(k))
		}
	}

	sugar := log.Named("kafka").Sugar()
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		GroupID:     cfg.GroupID,
		GroupTopics: cfg.Topics,
		MaxBytes:    10e6, // 10MB
		StartOffset: kafka.FirstOffset,
		ErrorLogger: kafka.LoggerFunc(sugar.Errorf),
	})
	return newConsumer(reader, cfg, dispatcher, archive, log)
}

func newConsumer(reader MessageReader, cfg Config, dispatcher EventDispatcher, archive deadletter.Archive, log *zap.Logger) *Consumer {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Consumer{
		reader:     reader,
		dispatcher: dispatcher,
		archive:    archive,
		cfg:        cfg,
		log:        log,
	}
}

// Run consumes until ctx is cancelled or the reader is closed. It returns an
// error only when a message could neither be applied nor archived; the
// message is left uncommitted so it is redelivered after a restart.
func (c *Consumer) Run(ctx context.Context) error {
	for {
		m, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return nil
			}
			c.log.Error("error fetching message", zap.Error(err))
			if err := sleep(ctx, c.cfg.RetryBackoff); err != nil {
				return nil
			}
			continue
		}

		if err := c.processMessage(ctx, m); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Warn("error closing kafka reader", zap.Error(err))
	}
}

func (c *Consumer) processMessage(ctx context.Context, m kafka.Message) error {
	log := c.log.With(
		zap.String("topic", m.Topic),
		zap.Int("partition", m.Partition),
		zap.Int64("offset", m.Offset),
	)

	kind, ev, err := decodeMessage(m)
	if err != nil {
		log.Error("undecodable event", zap.Error(err))
		letter := newLetter(m, kind, "", service.Reject, 1, err)
		return c.settle(ctx, log, m, letter)
	}
	log = log.With(zap.String("event_kind", string(kind)), zap.String("cart_id", ev.AggregateID()))

	out := c.dispatcher.Dispatch(ctx, log, ev)
	attempts := 1
	verdict := c.verdict(out)
	for verdict == service.Retry && attempts < c.cfg.MaxAttempts {
		if err := sleep(ctx, c.cfg.RetryBackoff*time.Duration(attempts)); err != nil {
			return err
		}
		attempts++
		log.Info("retrying event", zap.Int("attempt", attempts), zap.Error(out.Err()))

		out = c.dispatcher.Redispatch(ctx, log, ev, out, c.cfg.RetryNotFound)
		verdict = c.verdict(out)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	var letter *deadletter.Letter
	switch verdict {
	case service.Ack, service.Benign:
		log.Debug("event processed", zap.Stringer("disposition", verdict), zap.Int("attempts", attempts))
	case service.Retry:
		log.Error("event failed after retries", zap.Int("attempts", attempts), zap.Error(out.Err()))
		letter = newLetter(m, kind, ev.AggregateID(), verdict, attempts, out.Mutation, out.Recalculation)
	case service.Reject:
		log.Error("event rejected", zap.Error(out.Err()))
		letter = newLetter(m, kind, ev.AggregateID(), verdict, attempts, out.Mutation, out.Recalculation)
	}
	return c.settle(ctx, log, m, letter)
}

// verdict folds both step outcomes into one disposition. A retryable step
// outranks a rejected one so that it still gets its retries.
func (c *Consumer) verdict(out processor.Outcome) service.Disposition {
	m := service.Classify(out.Mutation, c.cfg.RetryNotFound)
	r := service.Classify(out.Recalculation, c.cfg.RetryNotFound)
	for _, d := range []service.Disposition{service.Retry, service.Reject, service.Benign} {
		if m == d || r == d {
			return d
		}
	}
	return service.Ack
}

// settle archives the letter, if any, then commits the message.
func (c *Consumer) settle(ctx context.Context, log *zap.Logger, m kafka.Message, letter *deadletter.Letter) error {
	if letter != nil {
		if err := c.archive.Put(ctx, letter); err != nil {
			return errors.Wrapf(err, "dead-letter %s/%d/%d", m.Topic, m.Partition, m.Offset)
		}
		log.Warn("event dead-lettered", zap.String("dead_letter_id", letter.ID))
	}

	if err := c.reader.CommitMessages(ctx, m); err != nil {
		log.Error("error committing message", zap.Error(err))
	}
	return nil
}

func decodeMessage(m kafka.Message) (events.Kind, events.Event, error) {
	kind, err := resolveKind(m)
	if err != nil {
		return "", nil, err
	}
	ev, err := events.Decode(kind, m.Value)
	return kind, ev, err
}

// resolveKind prefers the topic name, which is how the cart API publishes,
// and falls back to the event_type header.
func resolveKind(m kafka.Message) (events.Kind, error) {
	if kind, err := events.ParseKind(m.Topic); err == nil {
		return kind, nil
	}
	for _, h := range m.Headers {
		if h.Key == events.KindHeader {
			return events.ParseKind(string(h.Value))
		}
	}
	return "", errors.Wrapf(events.ErrUnknownKind, "topic %q has no %s header", m.Topic, events.KindHeader)
}

func newLetter(m kafka.Message, kind events.Kind, cartID string, d service.Disposition, attempts int, errs ...error) *deadletter.Letter {
	letter := &deadletter.Letter{
		Topic:       m.Topic,
		Partition:   m.Partition,
		Offset:      m.Offset,
		Key:         string(m.Key),
		Kind:        string(kind),
		CartID:      cartID,
		Payload:     string(m.Value),
		Disposition: d.String(),
		Attempts:    attempts,
	}
	for _, err := range errs {
		if err != nil {
			letter.Errors = append(letter.Errors, err.Error())
		}
	}
	return letter
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
