package xref

import (
	"context"
	"math/rand"
	"sort"
	"sync"
	"testing"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndex_Upsert(t *testing.T) {
	ctx := context.Background()

	t.Run("round trip", func(t *testing.T) {
		ix := NewIndex(nil)
		x := xrefOf("4111111111111111", 123456789, 12345678901)

		stored, err := ix.Upsert(ctx, x)
		require.NoError(t, err)
		assert.Equal(t, x, stored)

		accountID, ok, err := ix.LookupAccountByCard(x.CardNumber)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, x.AccountID, accountID)

		cards, err := ix.LookupCardsByAccount(x.AccountID)
		require.NoError(t, err)
		assert.Contains(t, cards, x.CardNumber)

		cards, err = ix.LookupCardsByCustomer(x.CustomerID)
		require.NoError(t, err)
		assert.Equal(t, []string{x.CardNumber}, cards)
		require.NoError(t, ix.Verify())
	})

	t.Run("15 digit card number is rejected", func(t *testing.T) {
		ix := NewIndex(nil)
		_, err := ix.Upsert(ctx, xrefOf("411111111111111", 1, 1))
		assert.ErrorIs(t, err, model.ErrValidation)
		assert.Equal(t, 0, ix.Len())
	})

	t.Run("invalid fields leave the index untouched", func(t *testing.T) {
		ix := NewIndex(nil)
		mustUpsert(t, ix, xrefOf("4111111111111111", 1, 10))

		for _, x := range []model.CardXref{
			xrefOf("4111111111111111", 0, 20),
			xrefOf("4111111111111111", 1, 0),
			xrefOf("4111111111111111", 1_000_000_000, 20),
			xrefOf("4111111111111111", 1, 100_000_000_000),
			xrefOf("4111-11111111111", 1, 20),
		} {
			_, err := ix.Upsert(ctx, x)
			assert.ErrorIs(t, err, model.ErrValidation, x.String())
		}

		accountID, ok, err := ix.LookupAccountByCard("4111111111111111")
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, int64(10), accountID)
	})

	t.Run("reassignment moves the card between reverse views", func(t *testing.T) {
		ix := NewIndex(nil)
		mustUpsert(t, ix,
			xrefOf("4000000000000001", 1, 10),
			xrefOf("4000000000000002", 1, 10),
		)

		_, err := ix.Upsert(ctx, xrefOf("4000000000000001", 2, 20))
		require.NoError(t, err)

		old, err := ix.LookupCardsByAccount(10)
		require.NoError(t, err)
		assert.Equal(t, []string{"4000000000000002"}, old)

		moved, err := ix.LookupCardsByAccount(20)
		require.NoError(t, err)
		assert.Equal(t, []string{"4000000000000001"}, moved)

		byCustomer, err := ix.LookupCardsByCustomer(2)
		require.NoError(t, err)
		assert.Equal(t, []string{"4000000000000001"}, byCustomer)

		assert.Equal(t, 2, ix.Len())
		require.NoError(t, ix.Verify())
	})

	t.Run("store failure leaves all views unchanged", func(t *testing.T) {
		store := newMemStore()
		ix := NewIndex(store)
		mustUpsert(t, ix, xrefOf("4000000000000001", 1, 10))

		store.saveErr = errStoreDown
		_, err := ix.Upsert(ctx, xrefOf("4000000000000001", 2, 20))
		assert.ErrorIs(t, err, errStoreDown)

		accountID, _, _ := ix.LookupAccountByCard("4000000000000001")
		assert.Equal(t, int64(10), accountID)
		cards, _ := ix.LookupCardsByAccount(20)
		assert.Empty(t, cards)
		require.NoError(t, ix.Verify())
	})

	t.Run("store conflict keeps its kind", func(t *testing.T) {
		store := newMemStore()
		store.saveErr = model.NewConflictError("serialization failure", nil)
		ix := NewIndex(store)

		_, err := ix.Upsert(ctx, xrefOf("4000000000000001", 1, 10))
		assert.ErrorIs(t, err, model.ErrConflict)
		assert.Equal(t, 0, ix.Len())
	})
}

func TestIndex_RemoveByCard(t *testing.T) {
	ctx := context.Background()

	t.Run("removes from all views", func(t *testing.T) {
		store := newMemStore()
		ix := NewIndex(store)
		mustUpsert(t, ix,
			xrefOf("4000000000000001", 1, 10),
			xrefOf("4000000000000002", 1, 10),
		)

		prev, removed, err := ix.RemoveByCard(ctx, "4000000000000001")
		require.NoError(t, err)
		assert.True(t, removed)
		assert.Equal(t, xrefOf("4000000000000001", 1, 10), prev)

		_, ok, err := ix.LookupAccountByCard("4000000000000001")
		require.NoError(t, err)
		assert.False(t, ok)

		cards, _ := ix.LookupCardsByAccount(10)
		assert.Equal(t, []string{"4000000000000002"}, cards)
		cards, _ = ix.LookupCardsByCustomer(1)
		assert.Equal(t, []string{"4000000000000002"}, cards)
		assert.NotContains(t, store.rows, "4000000000000001")
		require.NoError(t, ix.Verify())
	})

	t.Run("absent card is a no-op", func(t *testing.T) {
		store := newMemStore()
		ix := NewIndex(store)

		_, removed, err := ix.RemoveByCard(ctx, "4000000000000009")
		require.NoError(t, err)
		assert.False(t, removed)
		assert.Equal(t, 0, store.deletes)
	})

	t.Run("malformed card number", func(t *testing.T) {
		ix := NewIndex(nil)
		_, _, err := ix.RemoveByCard(ctx, "abc")
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("store failure keeps the entry", func(t *testing.T) {
		store := newMemStore()
		ix := NewIndex(store)
		mustUpsert(t, ix, xrefOf("4000000000000001", 1, 10))
		store.deleteErr = errStoreDown

		_, _, err := ix.RemoveByCard(ctx, "4000000000000001")
		assert.ErrorIs(t, err, errStoreDown)
		assert.Equal(t, 1, ix.Len())
		require.NoError(t, ix.Verify())
	})
}

func TestIndex_Lookups(t *testing.T) {
	ix := NewIndex(nil)

	t.Run("cards are returned in ascending order", func(t *testing.T) {
		mustUpsert(t, ix,
			xrefOf("9000000000000000", 5, 50),
			xrefOf("1000000000000000", 5, 50),
			xrefOf("5000000000000000", 5, 51),
		)
		cards, err := ix.LookupCardsByAccount(50)
		require.NoError(t, err)
		assert.Equal(t, []string{"1000000000000000", "9000000000000000"}, cards)

		cards, err = ix.LookupCardsByCustomer(5)
		require.NoError(t, err)
		assert.Equal(t, []string{"1000000000000000", "5000000000000000", "9000000000000000"}, cards)
	})

	t.Run("unknown account yields an empty list", func(t *testing.T) {
		cards, err := ix.LookupCardsByAccount(77)
		require.NoError(t, err)
		assert.NotNil(t, cards)
		assert.Empty(t, cards)
	})

	t.Run("invalid ids are validation errors", func(t *testing.T) {
		_, err := ix.LookupCardsByAccount(0)
		assert.ErrorIs(t, err, model.ErrValidation)
		_, err = ix.LookupCardsByAccount(-5)
		assert.ErrorIs(t, err, model.ErrValidation)
		_, err = ix.LookupCardsByCustomer(1_000_000_000)
		assert.ErrorIs(t, err, model.ErrValidation)
		_, _, err = ix.LookupAccountByCard("411111111111111")
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("returned slices are copies", func(t *testing.T) {
		cards, err := ix.LookupCardsByAccount(50)
		require.NoError(t, err)
		cards[0] = "0000000000000000"
		again, _ := ix.LookupCardsByAccount(50)
		assert.Equal(t, "1000000000000000", again[0])
	})
}

func TestIndex_Load(t *testing.T) {
	store := newMemStore()
	store.rows["4000000000000001"] = xrefOf("4000000000000001", 1, 10)
	store.rows["4000000000000002"] = xrefOf("4000000000000002", 0, 10)
	store.rows["bad"] = xrefOf("bad", 1, 10)

	ix := NewIndex(store)
	mustUpsert(t, ix, xrefOf("4000000000000003", 3, 30))

	n, err := ix.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, 3, ix.Len())

	x, ok, err := ix.Get("4000000000000002")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(0), x.CustomerID)

	cards, err := ix.LookupCardsByAccount(10)
	require.NoError(t, err)
	assert.Equal(t, []string{"4000000000000001", "4000000000000002"}, cards)

	_, ok, _ = ix.LookupAccountByCard("4000000000000003")
	assert.True(t, ok, "the stored upsert survives because it was written through")
	require.NoError(t, ix.Verify())
}

// For every account X, LookupCardsByAccount(X) is exactly {c | LookupAccountByCard(c) == X}.
func TestIndex_BidirectionalConsistency(t *testing.T) {
	ctx := context.Background()
	ix := NewIndex(newMemStore())
	r := rand.New(rand.NewSource(42))

	for i := 0; i < 2000; i++ {
		card := cardNumber(r.Intn(200))
		switch r.Intn(3) {
		case 0, 1:
			_, err := ix.Upsert(ctx, xrefOf(card, int64(r.Intn(20)+1), int64(r.Intn(15)+1)))
			require.NoError(t, err)
		case 2:
			_, _, err := ix.RemoveByCard(ctx, card)
			require.NoError(t, err)
		}
	}
	require.NoError(t, ix.Verify())

	expected := make(map[int64][]string)
	for _, x := range ix.Snapshot() {
		expected[x.AccountID] = append(expected[x.AccountID], x.CardNumber)
	}
	for accountID := int64(1); accountID <= 15; accountID++ {
		cards, err := ix.LookupCardsByAccount(accountID)
		require.NoError(t, err)
		want := expected[accountID]
		sort.Strings(want)
		if want == nil {
			want = []string{}
		}
		assert.Equal(t, want, cards, "account %d", accountID)
		for _, c := range cards {
			got, ok, err := ix.LookupAccountByCard(c)
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, accountID, got)
		}
	}
}

func TestIndex_ConcurrentMutationsAndReads(t *testing.T) {
	ctx := context.Background()
	ix := NewIndex(newMemStore())

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			r := rand.New(rand.NewSource(int64(w)))
			for i := 0; i < 300; i++ {
				card := cardNumber(r.Intn(100))
				if r.Intn(4) == 0 {
					_, _, _ = ix.RemoveByCard(ctx, card)
					continue
				}
				_, _ = ix.Upsert(ctx, xrefOf(card, int64(r.Intn(5)+1), int64(r.Intn(5)+1)))
			}
		}(w)
	}
	for rd := 0; rd < 4; rd++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 300; i++ {
				cards, err := ix.LookupCardsByAccount(int64(i%5 + 1))
				if err != nil {
					t.Error(err)
					return
				}
				if !sort.StringsAreSorted(cards) {
					t.Error("unsorted reverse view")
					return
				}
			}
		}()
	}
	wg.Wait()

	require.NoError(t, ix.Verify())
}
