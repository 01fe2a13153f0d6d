package xref

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/logger"
)

var ErrViewsDiverged = errors.New("xref views diverged")

// Store persists the primary relation. Every method runs as one transaction:
// it either fully applies or returns an error and leaves the relation unchanged.
type Store interface {
	SaveXref(ctx context.Context, x model.CardXref) error
	DeleteXrefs(ctx context.Context, cardNumbers []string) error
	LoadXrefs(ctx context.Context) ([]model.CardXref, error)
}

// Index owns the primary relation keyed by card number and its two reverse views.
// All three views change together under mu.
type Index struct {
	mu         sync.RWMutex
	byCard     map[string]model.CardXref
	byAccount  map[int64][]string
	byCustomer map[int64][]string
	ordered    []string
	store      Store
}

// NewIndex returns an empty index. A nil store keeps the index memory-only.
func NewIndex(store Store) *Index {
	return &Index{
		byCard:     make(map[string]model.CardXref),
		byAccount:  make(map[int64][]string),
		byCustomer: make(map[int64][]string),
		store:      store,
	}
}

// Load replaces the content of the index with the store's relation. Rows with a
// malformed card number are skipped; rows whose account or customer id is missing
// are kept so the integrity audit can report them.
func (ix *Index) Load(ctx context.Context) (int, error) {
	if ix.store == nil {
		return 0, nil
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	rows, err := ix.store.LoadXrefs(ctx)
	if err != nil {
		return 0, fmt.Errorf("load xrefs: %w", err)
	}

	fresh := NewIndex(ix.store)
	skipped := 0
	for _, x := range rows {
		if model.ValidateCardNumber(x.CardNumber) != nil {
			skipped++
			continue
		}
		fresh.apply(x)
	}
	if skipped > 0 {
		logger.Warn("xref load skipped malformed rows", "skipped", skipped)
	}

	ix.byCard = fresh.byCard
	ix.byAccount = fresh.byAccount
	ix.byCustomer = fresh.byCustomer
	ix.ordered = fresh.ordered

	return len(fresh.byCard), nil
}

// Upsert stores x, replacing any previous association of its card number.
func (ix *Index) Upsert(ctx context.Context, x model.CardXref) (model.CardXref, error) {
	if err := x.Validate(); err != nil {
		return model.CardXref{}, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	if prev, ok := ix.byCard[x.CardNumber]; ok && prev == x {
		return x, nil
	}
	if ix.store != nil {
		if err := ix.store.SaveXref(ctx, x); err != nil {
			return model.CardXref{}, storeError("save xref", err)
		}
	}
	ix.apply(x)
	return x, nil
}

// RemoveByCard drops the card from all views and returns the association it held.
// It reports whether the card was present.
func (ix *Index) RemoveByCard(ctx context.Context, cardNumber string) (model.CardXref, bool, error) {
	if err := model.ValidateCardNumber(cardNumber); err != nil {
		return model.CardXref{}, false, err
	}

	ix.mu.Lock()
	defer ix.mu.Unlock()

	prev, ok := ix.byCard[cardNumber]
	if !ok {
		return model.CardXref{}, false, nil
	}
	if ix.store != nil {
		if err := ix.store.DeleteXrefs(ctx, []string{cardNumber}); err != nil {
			return model.CardXref{}, false, storeError("delete xref", err)
		}
	}
	ix.drop(cardNumber)
	return prev, true, nil
}

// removeWhere computes the affected card numbers and removes them as one batch
// inside a single critical section and store transaction.
func (ix *Index) removeWhere(ctx context.Context, affected func() []string) (int, error) {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	cards := affected()
	if len(cards) == 0 {
		return 0, nil
	}
	if ix.store != nil {
		if err := ix.store.DeleteXrefs(ctx, cards); err != nil {
			return 0, storeError("delete xref batch", err)
		}
	}
	for _, c := range cards {
		ix.drop(c)
	}
	return len(cards), nil
}

func (ix *Index) LookupAccountByCard(cardNumber string) (int64, bool, error) {
	if err := model.ValidateCardNumber(cardNumber); err != nil {
		return 0, false, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	x, ok := ix.byCard[cardNumber]
	return x.AccountID, ok, nil
}

// Get returns the full association of a card number.
func (ix *Index) Get(cardNumber string) (model.CardXref, bool, error) {
	if err := model.ValidateCardNumber(cardNumber); err != nil {
		return model.CardXref{}, false, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	x, ok := ix.byCard[cardNumber]
	return x, ok, nil
}

func (ix *Index) LookupCardsByAccount(accountID int64) ([]string, error) {
	if err := model.ValidateAccountID(accountID); err != nil {
		return nil, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return cloneKeys(ix.byAccount[accountID]), nil
}

func (ix *Index) LookupCardsByCustomer(customerID int64) ([]string, error) {
	if err := model.ValidateCustomerID(customerID); err != nil {
		return nil, err
	}
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return cloneKeys(ix.byCustomer[customerID]), nil
}

func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.byCard)
}

// Snapshot returns every association in ascending card number order.
func (ix *Index) Snapshot() []model.CardXref {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	out := make([]model.CardXref, 0, len(ix.ordered))
	for _, c := range ix.ordered {
		out = append(out, ix.byCard[c])
	}
	return out
}

// Verify checks that the primary relation and both reverse views agree.
func (ix *Index) Verify() error {
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if len(ix.ordered) != len(ix.byCard) {
		return fmt.Errorf("%w: ordered keys %d, primary %d", ErrViewsDiverged, len(ix.ordered), len(ix.byCard))
	}
	if !slices.IsSorted(ix.ordered) {
		return fmt.Errorf("%w: ordered keys not sorted", ErrViewsDiverged)
	}
	if err := verifyReverse("account", ix.byAccount, ix.byCard, func(x model.CardXref) int64 { return x.AccountID }); err != nil {
		return err
	}
	return verifyReverse("customer", ix.byCustomer, ix.byCard, func(x model.CardXref) int64 { return x.CustomerID })
}

func verifyReverse(name string, view map[int64][]string, primary map[string]model.CardXref, key func(model.CardXref) int64) error {
	total := 0
	for id, cards := range view {
		if len(cards) == 0 {
			return fmt.Errorf("%w: empty %s entry %d", ErrViewsDiverged, name, id)
		}
		if !slices.IsSorted(cards) {
			return fmt.Errorf("%w: %s %d cards not sorted", ErrViewsDiverged, name, id)
		}
		for _, c := range cards {
			x, ok := primary[c]
			if !ok || key(x) != id {
				return fmt.Errorf("%w: card %s listed under %s %d", ErrViewsDiverged, model.MaskCardNumber(c), name, id)
			}
		}
		total += len(cards)
	}
	if total != len(primary) {
		return fmt.Errorf("%w: %s view holds %d cards, primary %d", ErrViewsDiverged, name, total, len(primary))
	}
	return nil
}

// apply and drop must be called with mu held for writing.
func (ix *Index) apply(x model.CardXref) {
	if prev, ok := ix.byCard[x.CardNumber]; ok {
		if prev.AccountID != x.AccountID {
			ix.byAccount[prev.AccountID] = removeKey(ix.byAccount[prev.AccountID], x.CardNumber)
			pruneEmpty(ix.byAccount, prev.AccountID)
			ix.byAccount[x.AccountID] = insertKey(ix.byAccount[x.AccountID], x.CardNumber)
		}
		if prev.CustomerID != x.CustomerID {
			ix.byCustomer[prev.CustomerID] = removeKey(ix.byCustomer[prev.CustomerID], x.CardNumber)
			pruneEmpty(ix.byCustomer, prev.CustomerID)
			ix.byCustomer[x.CustomerID] = insertKey(ix.byCustomer[x.CustomerID], x.CardNumber)
		}
		ix.byCard[x.CardNumber] = x
		return
	}
	ix.byCard[x.CardNumber] = x
	ix.ordered = insertKey(ix.ordered, x.CardNumber)
	ix.byAccount[x.AccountID] = insertKey(ix.byAccount[x.AccountID], x.CardNumber)
	ix.byCustomer[x.CustomerID] = insertKey(ix.byCustomer[x.CustomerID], x.CardNumber)
}

func (ix *Index) drop(cardNumber string) {
	x, ok := ix.byCard[cardNumber]
	if !ok {
		return
	}
	delete(ix.byCard, cardNumber)
	ix.ordered = removeKey(ix.ordered, cardNumber)
	ix.byAccount[x.AccountID] = removeKey(ix.byAccount[x.AccountID], cardNumber)
	pruneEmpty(ix.byAccount, x.AccountID)
	ix.byCustomer[x.CustomerID] = removeKey(ix.byCustomer[x.CustomerID], cardNumber)
	pruneEmpty(ix.byCustomer, x.CustomerID)
}

// Card numbers are fixed-width digit strings, so lexical order is numeric order.
func insertKey(keys []string, key string) []string {
	i, found := slices.BinarySearch(keys, key)
	if found {
		return keys
	}
	return slices.Insert(keys, i, key)
}

func removeKey(keys []string, key string) []string {
	i, found := slices.BinarySearch(keys, key)
	if !found {
		return keys
	}
	return slices.Delete(keys, i, i+1)
}

func pruneEmpty(view map[int64][]string, id int64) {
	if len(view[id]) == 0 {
		delete(view, id)
	}
}

func cloneKeys(keys []string) []string {
	out := make([]string, len(keys))
	copy(out, keys)
	return out
}

func storeError(op string, err error) error {
	if model.KindOf(err) == model.KindConflict {
		return err
	}
	return fmt.Errorf("%s: %w", op, err)
}
