package xref

import (
	"fmt"
	"slices"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
)

type KeySpace int

const (
	KeySpaceCardNumber KeySpace = iota
	KeySpaceAccountID
)

func (k KeySpace) String() string {
	switch k {
	case KeySpaceCardNumber:
		return "card_number"
	case KeySpaceAccountID:
		return "account_id"
	default:
		return "unknown"
	}
}

// ParseKeySpace accepts the String form of a key space.
func ParseKeySpace(s string) (KeySpace, error) {
	switch s {
	case "", "card_number", "cards":
		return KeySpaceCardNumber, nil
	case "account_id", "accounts":
		return KeySpaceAccountID, nil
	}
	return 0, model.NewValidationError("key_space", "unknown key space "+s)
}

// accountKeyWidth matches the legacy 11-digit account key.
const accountKeyWidth = 11

func AccountKey(accountID int64) string {
	return fmt.Sprintf("%0*d", accountKeyWidth, accountID)
}

// Pager reads fixed-size pages through the index's ordered views. Each call works
// on one point-in-time snapshot of the ordering.
type Pager struct {
	index *Index
}

func NewPager(index *Index) *Pager {
	return &Pager{index: index}
}

func (p *Pager) Page(space KeySpace, pageNumber, pageSize int) (model.Page[string], error) {
	if err := model.ValidatePageRequest(pageNumber, pageSize); err != nil {
		return model.Page[string]{}, err
	}
	keys, err := p.keys(space)
	if err != nil {
		return model.Page[string]{}, err
	}
	return paginate(keys, pageNumber, pageSize), nil
}

// ListCards pages the associations matching filter in ascending card number order.
func (p *Pager) ListCards(filter model.CardFilter, pageNumber, pageSize int) (model.Page[model.CardXref], error) {
	if err := model.ValidatePageRequest(pageNumber, pageSize); err != nil {
		return model.Page[model.CardXref]{}, err
	}
	if filter.AccountID != nil {
		if err := model.ValidateAccountID(*filter.AccountID); err != nil {
			return model.Page[model.CardXref]{}, err
		}
	}
	if filter.CardNumber != nil {
		if err := model.ValidateCardNumber(*filter.CardNumber); err != nil {
			return model.Page[model.CardXref]{}, err
		}
	}
	return paginate(p.selectCards(filter), pageNumber, pageSize), nil
}

// Browse positions a cursor like STARTBR and reads PageSize keys forward (READNEXT)
// or backward (READPREV). Items are always returned in ascending order.
func (p *Pager) Browse(space KeySpace, req model.BrowseRequest) (model.BrowsePage, error) {
	if req.PageSize <= 0 {
		return model.BrowsePage{}, model.NewValidationError("size", "must be greater than 0")
	}
	keys, err := p.keys(space)
	if err != nil {
		return model.BrowsePage{}, err
	}

	var from, to int
	switch req.Direction {
	case model.DirectionForward, "":
		i, found := slices.BinarySearch(keys, req.StartKey)
		from = i
		if found && req.SkipStart {
			from = i + 1
		}
		to = min(from+req.PageSize, len(keys))
	case model.DirectionBackward:
		to = len(keys)
		if req.StartKey != "" {
			i, found := slices.BinarySearch(keys, req.StartKey)
			to = i
			if found && !req.SkipStart {
				to = i + 1
			}
		}
		from = max(to-req.PageSize, 0)
	default:
		return model.BrowsePage{}, model.NewValidationError("direction", "must be forward or backward")
	}

	items := make([]string, to-from)
	copy(items, keys[from:to])
	page := model.BrowsePage{
		Items:       items,
		HasNext:     to < len(keys),
		HasPrevious: from > 0,
	}
	if len(items) > 0 {
		page.FirstKey = items[0]
		page.LastKey = items[len(items)-1]
	}
	return page, nil
}

func (p *Pager) keys(space KeySpace) ([]string, error) {
	ix := p.index
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	switch space {
	case KeySpaceCardNumber:
		return cloneKeys(ix.ordered), nil
	case KeySpaceAccountID:
		ids := make([]int64, 0, len(ix.byAccount))
		for id := range ix.byAccount {
			if id > 0 {
				ids = append(ids, id)
			}
		}
		slices.Sort(ids)
		keys := make([]string, len(ids))
		for i, id := range ids {
			keys[i] = AccountKey(id)
		}
		return keys, nil
	}
	return nil, model.NewValidationError("key_space", "unknown key space "+space.String())
}

func (p *Pager) selectCards(filter model.CardFilter) []model.CardXref {
	ix := p.index
	ix.mu.RLock()
	defer ix.mu.RUnlock()

	if filter.CardNumber != nil {
		x, ok := ix.byCard[*filter.CardNumber]
		if !ok || (filter.AccountID != nil && x.AccountID != *filter.AccountID) {
			return []model.CardXref{}
		}
		return []model.CardXref{x}
	}

	cards := ix.ordered
	if filter.AccountID != nil {
		cards = ix.byAccount[*filter.AccountID]
	}
	out := make([]model.CardXref, len(cards))
	for i, c := range cards {
		out[i] = ix.byCard[c]
	}
	return out
}

// paginate slices [pageNumber*pageSize, pageNumber*pageSize+pageSize) out of items,
// clamped to bounds. Inputs are validated by the caller.
func paginate[T any](items []T, pageNumber, pageSize int) model.Page[T] {
	total := len(items)
	start := total
	if pageNumber <= total/pageSize {
		start = pageNumber * pageSize
	}
	end := min(start+pageSize, total)

	hasNext := pageNumber < total/pageSize && (pageNumber+1)*pageSize < total
	page := model.Page[T]{
		Items:         make([]T, end-start),
		PageNumber:    pageNumber,
		PageSize:      pageSize,
		TotalElements: total,
		HasNext:       hasNext,
		HasPrevious:   pageNumber > 0,
		IsFirst:       pageNumber == 0,
		IsLast:        !hasNext,
	}
	copy(page.Items, items[start:end])
	return page
}
