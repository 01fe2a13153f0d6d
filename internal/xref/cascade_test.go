package xref

import (
	"context"
	"errors"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLocker struct {
	mu       sync.Mutex
	failures int
	err      error
	acquired []string
	released int
}

func (l *fakeLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.acquired = append(l.acquired, key)
	if l.failures > 0 {
		l.failures--
		if l.err != nil {
			return nil, l.err
		}
		return nil, ErrLockHeld
	}
	return func() {
		l.mu.Lock()
		l.released++
		l.mu.Unlock()
	}, nil
}

func seededIndex(t *testing.T, store Store) *Index {
	t.Helper()
	ix := NewIndex(store)
	mustUpsert(t, ix,
		xrefOf("4000000000000001", 1, 10),
		xrefOf("4000000000000002", 1, 10),
		xrefOf("4000000000000003", 1, 11),
		xrefOf("4000000000000004", 2, 20),
	)
	return ix
}

func TestCoordinator_CascadeDeleteAccount(t *testing.T) {
	ctx := context.Background()

	t.Run("removes every card of the account", func(t *testing.T) {
		store := newMemStore()
		ix := seededIndex(t, store)
		c := NewCoordinator(ix, nil, DefaultCascadeConfig())

		n, err := c.CascadeDeleteAccount(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, n)

		cards, err := ix.LookupCardsByAccount(10)
		require.NoError(t, err)
		assert.Empty(t, cards)
		for _, card := range []string{"4000000000000001", "4000000000000002"} {
			_, ok, _ := ix.LookupAccountByCard(card)
			assert.False(t, ok, card)
			assert.NotContains(t, store.rows, card)
		}
		assert.Equal(t, 2, ix.Len())
		assert.Equal(t, 1, store.deletes, "one batch")
		require.NoError(t, ix.Verify())
	})

	t.Run("unknown account removes nothing", func(t *testing.T) {
		ix := seededIndex(t, nil)
		c := NewCoordinator(ix, nil, DefaultCascadeConfig())

		n, err := c.CascadeDeleteAccount(ctx, 999)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Equal(t, 4, ix.Len())
	})

	t.Run("invalid account id", func(t *testing.T) {
		c := NewCoordinator(NewIndex(nil), nil, DefaultCascadeConfig())
		_, err := c.CascadeDeleteAccount(ctx, 0)
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("store failure removes nothing", func(t *testing.T) {
		store := newMemStore()
		ix := seededIndex(t, store)
		store.deleteErr = errStoreDown
		c := NewCoordinator(ix, nil, DefaultCascadeConfig())

		_, err := c.CascadeDeleteAccount(ctx, 10)
		assert.ErrorIs(t, err, errStoreDown)

		cards, _ := ix.LookupCardsByAccount(10)
		assert.Len(t, cards, 2)
		assert.Equal(t, 4, ix.Len())
	})

	t.Run("lock contention is retried", func(t *testing.T) {
		ix := seededIndex(t, nil)
		locker := &fakeLocker{failures: 2}
		c := NewCoordinator(ix, locker, CascadeConfig{MaxRetries: 3, BaseDelay: time.Millisecond})

		n, err := c.CascadeDeleteAccount(ctx, 10)
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		assert.Equal(t, []string{"account:10", "account:10", "account:10"}, locker.acquired)
		assert.Equal(t, 1, locker.released)
	})

	t.Run("persistent contention surfaces as conflict", func(t *testing.T) {
		ix := seededIndex(t, nil)
		locker := &fakeLocker{failures: 10}
		c := NewCoordinator(ix, locker, CascadeConfig{MaxRetries: 2, BaseDelay: time.Millisecond})

		_, err := c.CascadeDeleteAccount(ctx, 10)
		assert.ErrorIs(t, err, model.ErrConflict)
		assert.ErrorIs(t, err, ErrLockHeld)
		assert.Len(t, locker.acquired, 3)
		assert.Equal(t, 4, ix.Len())
	})

	t.Run("store conflict is retried", func(t *testing.T) {
		store := newMemStore()
		ix := seededIndex(t, store)
		store.deleteErr = model.NewConflictError("deadlock detected", nil)
		c := NewCoordinator(ix, nil, CascadeConfig{MaxRetries: 1, BaseDelay: time.Millisecond})

		_, err := c.CascadeDeleteAccount(ctx, 10)
		assert.ErrorIs(t, err, model.ErrConflict)
		assert.Equal(t, 2, store.deletes)
	})

	t.Run("lock backend failure is not retried", func(t *testing.T) {
		ix := seededIndex(t, nil)
		backendErr := errors.New("redis unavailable")
		locker := &fakeLocker{failures: 1, err: backendErr}
		c := NewCoordinator(ix, locker, DefaultCascadeConfig())

		_, err := c.CascadeDeleteAccount(ctx, 10)
		assert.ErrorIs(t, err, backendErr)
		assert.Len(t, locker.acquired, 1)
	})

	t.Run("cancelled context", func(t *testing.T) {
		ix := seededIndex(t, nil)
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		c := NewCoordinator(ix, nil, DefaultCascadeConfig())

		_, err := c.CascadeDeleteAccount(cctx, 10)
		assert.ErrorIs(t, err, context.Canceled)
		assert.Equal(t, 4, ix.Len())
	})
}

func TestCoordinator_CascadeDeleteCustomer(t *testing.T) {
	ix := seededIndex(t, newMemStore())
	locker := &fakeLocker{}
	c := NewCoordinator(ix, locker, DefaultCascadeConfig())

	n, err := c.CascadeDeleteCustomer(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"customer:1"}, locker.acquired)

	cards, _ := ix.LookupCardsByCustomer(1)
	assert.Empty(t, cards)
	cards, _ = ix.LookupCardsByAccount(11)
	assert.Empty(t, cards)
	assert.Equal(t, 1, ix.Len())
	require.NoError(t, ix.Verify())
}

func TestCoordinator_ConcurrentCascadeAndUpsert(t *testing.T) {
	ctx := context.Background()
	ix := NewIndex(newMemStore())
	c := NewCoordinator(ix, nil, DefaultCascadeConfig())

	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_, _ = ix.Upsert(ctx, xrefOf(cardNumber(w*1000+i), 1, int64(i%3+1)))
			}
		}(w)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 50; i++ {
			_, _ = c.CascadeDeleteAccount(ctx, int64(i%3+1))
		}
	}()
	wg.Wait()

	require.NoError(t, ix.Verify())
}

func TestCoordinator_ReadersNeverSeePartialCascade(t *testing.T) {
	ctx := context.Background()
	const cards = 40

	for round := 0; round < 20; round++ {
		ix := NewIndex(newMemStore())
		var full []string
		for i := 0; i < cards; i++ {
			card := cardNumber(round*1000 + i)
			mustUpsert(t, ix, xrefOf(card, 2, 10))
			full = append(full, card)
		}
		mustUpsert(t, ix, xrefOf(cardNumber(round*1000+999), 1, 11))
		slices.Sort(full)
		c := NewCoordinator(ix, nil, DefaultCascadeConfig())

		var done atomic.Bool
		var readers sync.WaitGroup
		for rd := 0; rd < 4; rd++ {
			readers.Add(1)
			go func() {
				defer readers.Done()
				for {
					last := done.Load()
					byAccount, err := ix.LookupCardsByAccount(10)
					if !assert.NoError(t, err) {
						return
					}
					byCustomer, err := ix.LookupCardsByCustomer(2)
					if !assert.NoError(t, err) {
						return
					}
					for _, got := range [][]string{byAccount, byCustomer} {
						if len(got) != 0 && !assert.Equal(t, full, got, "cascade observed half applied") {
							return
						}
					}
					if last {
						return
					}
				}
			}()
		}

		n, err := c.CascadeDeleteAccount(ctx, 10)
		done.Store(true)
		readers.Wait()

		require.NoError(t, err)
		assert.Equal(t, cards, n)
		assert.Equal(t, 1, ix.Len())
	}
}
