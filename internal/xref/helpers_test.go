package xref

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu        sync.Mutex
	rows      map[string]model.CardXref
	saveErr   error
	deleteErr error
	deletes   int
}

func newMemStore() *memStore {
	return &memStore{rows: make(map[string]model.CardXref)}
}

func (s *memStore) SaveXref(ctx context.Context, x model.CardXref) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.rows[x.CardNumber] = x
	return nil
}

func (s *memStore) DeleteXrefs(ctx context.Context, cardNumbers []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deletes++
	if s.deleteErr != nil {
		return s.deleteErr
	}
	for _, c := range cardNumbers {
		delete(s.rows, c)
	}
	return nil
}

func (s *memStore) LoadXrefs(ctx context.Context) ([]model.CardXref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.CardXref, 0, len(s.rows))
	for _, x := range s.rows {
		out = append(out, x)
	}
	return out, nil
}

type idSet map[int64]struct{}

func newIDSet(ids ...int64) idSet {
	s := make(idSet)
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

type fakeResolver struct {
	known idSet
	err   error
	calls int
}

func (r *fakeResolver) ResolveAccounts(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	return r.resolve(ids)
}

func (r *fakeResolver) ResolveCustomers(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	return r.resolve(ids)
}

func (r *fakeResolver) resolve(ids []int64) (map[int64]struct{}, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	out := make(map[int64]struct{})
	for _, id := range ids {
		if _, ok := r.known[id]; ok {
			out[id] = struct{}{}
		}
	}
	return out, nil
}

var errStoreDown = errors.New("store down")

func xrefOf(card string, customerID, accountID int64) model.CardXref {
	return model.CardXref{CardNumber: card, CustomerID: customerID, AccountID: accountID}
}

func cardNumber(i int) string {
	return fmt.Sprintf("4%015d", i)
}

func mustUpsert(t *testing.T, ix *Index, xs ...model.CardXref) {
	t.Helper()
	for _, x := range xs {
		_, err := ix.Upsert(context.Background(), x)
		require.NoError(t, err)
	}
}
