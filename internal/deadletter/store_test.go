package deadletter

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
)

func setupTestStore(t *testing.T) (*Store, func()) {
	ctx := context.Background()

	mongoContainer, err := mongodb.Run(ctx, "mongo:7")
	require.NoError(t, err)

	uri, err := mongoContainer.ConnectionString(ctx)
	require.NoError(t, err)

	db, err := ConnectMongoDB(ctx, uri, "testdb")
	require.NoError(t, err)

	store := NewStore(db)
	require.NoError(t, store.CreateIndexes(ctx))

	cleanup := func() {
		_ = store.Close(ctx)
		if err := mongoContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	}
	return store, cleanup
}

func TestPut_AndFindByCart(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	first := &Letter{
		Topic:       "cart.coupon-added",
		Partition:   0,
		Offset:      7,
		Kind:        "cart.coupon-added",
		CartID:      "c1",
		Payload:     `{"cartId":"c1","couponCode":"EXPIRED"}`,
		Errors:      []string{"coupon is not active"},
		Disposition: "reject",
		Attempts:    1,
		FailedAt:    time.Now().UTC().Add(-time.Minute),
	}
	second := &Letter{
		Topic:       "cart.product-added",
		Offset:      9,
		CartID:      "c1",
		Payload:     `{"cartId":"c1","productId":"p1","quantity":0}`,
		Errors:      []string{"quantity must be at least 1"},
		Disposition: "reject",
		Attempts:    1,
	}

	require.NoError(t, store.Put(ctx, first))
	require.NoError(t, store.Put(ctx, second))
	require.NoError(t, store.Put(ctx, &Letter{Topic: "cart.created", Offset: 1, CartID: "other", Payload: "{}"}))

	assert.NotEmpty(t, first.ID)
	assert.False(t, second.FailedAt.IsZero())

	letters, err := store.ByCart(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, letters, 2)
	assert.Equal(t, int64(7), letters[0].Offset)
	assert.Equal(t, []string{"coupon is not active"}, letters[0].Errors)
	assert.Equal(t, "cart.product-added", letters[1].Topic)
}

func TestPut_SameMessageTwiceIsIgnored(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	letter := func() *Letter {
		return &Letter{Topic: "cart.created", Partition: 2, Offset: 42, CartID: "c2", Payload: "{"}
	}
	require.NoError(t, store.Put(ctx, letter()))
	require.NoError(t, store.Put(ctx, letter()))

	letters, err := store.ByCart(ctx, "c2")
	require.NoError(t, err)
	assert.Len(t, letters, 1)
}

func TestByCart_Empty(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()

	letters, err := store.ByCart(context.Background(), "nobody")
	require.NoError(t, err)
	assert.Empty(t, letters)
	assert.NoError(t, store.Ping(context.Background()))
}

func TestPendingAndMarkReplayed(t *testing.T) {
	store, cleanup := setupTestStore(t)
	defer cleanup()
	ctx := context.Background()

	for i, cartID := range []string{"c1", "c1", "c2"} {
		failedAt := time.Now().UTC().Add(time.Duration(i) * time.Second)
		require.NoError(t, store.Put(ctx, &Letter{Topic: "cart.created", Offset: int64(i), CartID: cartID, Payload: "{}", FailedAt: failedAt}))
	}

	pending, err := store.Pending(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, pending, 3)

	require.NoError(t, store.MarkReplayed(ctx, pending[0].ID))
	assert.ErrorIs(t, store.MarkReplayed(ctx, "missing"), ErrLetterNotFound)

	pending, err = store.Pending(ctx, "c1", 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Nil(t, pending[0].ReplayedAt)

	limited, err := store.Pending(ctx, "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}
