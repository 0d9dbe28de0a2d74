package consumer

import (
	"context"
	"io"
	"sync"

	"github.com/fjod/go_cart/cart-processor/internal/deadletter"
	"github.com/fjod/go_cart/cart-processor/internal/events"
	"github.com/fjod/go_cart/cart-processor/internal/processor"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// mockReader first fails with fetchErrs, then hands out its messages in
// order, then reports io.EOF.
type mockReader struct {
	m         sync.Mutex
	fetchErrs []error
	messages  []kafka.Message
	committed []int64
	closed    bool
}

func (r *mockReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	r.m.Lock()
	defer r.m.Unlock()
	if err := ctx.Err(); err != nil {
		return kafka.Message{}, err
	}
	if len(r.fetchErrs) > 0 {
		err := r.fetchErrs[0]
		r.fetchErrs = r.fetchErrs[1:]
		return kafka.Message{}, err
	}
	if len(r.messages) == 0 {
		return kafka.Message{}, io.EOF
	}
	m := r.messages[0]
	r.messages = r.messages[1:]
	return m, nil
}

func (r *mockReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.m.Lock()
	defer r.m.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *mockReader) Close() error {
	r.m.Lock()
	defer r.m.Unlock()
	r.closed = true
	return nil
}

// mockDispatcher replays scripted outcomes: dispatches and redispatches are
// consumed one per call; once exhausted every call succeeds.
type mockDispatcher struct {
	dispatches   []processor.Outcome
	redispatches []processor.Outcome
	calls        []string
	seen         []events.Event
	previous     []processor.Outcome
	notFound     []bool
}

func (d *mockDispatcher) Dispatch(_ context.Context, _ *zap.Logger, ev events.Event) processor.Outcome {
	d.calls = append(d.calls, "Dispatch")
	d.seen = append(d.seen, ev)
	if len(d.dispatches) == 0 {
		return processor.Outcome{}
	}
	out := d.dispatches[0]
	d.dispatches = d.dispatches[1:]
	return out
}

func (d *mockDispatcher) Redispatch(_ context.Context, _ *zap.Logger, _ events.Event, previous processor.Outcome, retryNotFound bool) processor.Outcome {
	d.calls = append(d.calls, "Redispatch")
	d.previous = append(d.previous, previous)
	d.notFound = append(d.notFound, retryNotFound)
	if len(d.redispatches) == 0 {
		return processor.Outcome{Recalculated: true}
	}
	out := d.redispatches[0]
	d.redispatches = d.redispatches[1:]
	return out
}

type mockArchive struct {
	m       sync.Mutex
	letters []*deadletter.Letter
	err     error
}

func (a *mockArchive) Put(_ context.Context, letter *deadletter.Letter) error {
	a.m.Lock()
	defer a.m.Unlock()
	if a.err != nil {
		return a.err
	}
	a.letters = append(a.letters, letter)
	return nil
}
