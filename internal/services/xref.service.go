package services

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/xref"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/logger"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/prom"
)

type CrossReferenceIndex interface {
	Upsert(ctx context.Context, x model.CardXref) (model.CardXref, error)
	RemoveByCard(ctx context.Context, cardNumber string) (model.CardXref, bool, error)
	Get(cardNumber string) (model.CardXref, bool, error)
	LookupAccountByCard(cardNumber string) (int64, bool, error)
	LookupCardsByAccount(accountID int64) ([]string, error)
	LookupCardsByCustomer(customerID int64) ([]string, error)
	Len() int
}

type IntegrityValidator interface {
	DetectOrphans(ctx context.Context) ([]model.CardXref, error)
	Audit(ctx context.Context) (model.IntegrityReport, error)
	ValidateLink(cardNumber string, accountID int64) bool
	ValidateAll(ctx context.Context) bool
}

type CascadeCoordinator interface {
	CascadeDeleteAccount(ctx context.Context, accountID int64) (int, error)
	CascadeDeleteCustomer(ctx context.Context, customerID int64) (int, error)
}

type CursorPager interface {
	ListCards(filter model.CardFilter, pageNumber, pageSize int) (model.Page[model.CardXref], error)
	Browse(space xref.KeySpace, req model.BrowseRequest) (model.BrowsePage, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, ev model.XrefEvent) error
}

type XrefServiceConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

func DefaultXrefServiceConfig() XrefServiceConfig {
	return XrefServiceConfig{
		DefaultPageSize: 7,
		MaxPageSize:     100,
	}
}

// XrefService is the use-case layer over the cross-reference engine. It masks
// card numbers in list views and publishes a change event after every committed
// mutation.
type XrefService struct {
	index     CrossReferenceIndex
	validator IntegrityValidator
	cascades  CascadeCoordinator
	pager     CursorPager
	publisher EventPublisher
	config    XrefServiceConfig
}

func NewXrefService(index CrossReferenceIndex, validator IntegrityValidator, cascades CascadeCoordinator, pager CursorPager, publisher EventPublisher, config XrefServiceConfig) *XrefService {
	defaults := DefaultXrefServiceConfig()
	if config.DefaultPageSize <= 0 {
		config.DefaultPageSize = defaults.DefaultPageSize
	}
	if config.MaxPageSize < config.DefaultPageSize {
		config.MaxPageSize = max(defaults.MaxPageSize, config.DefaultPageSize)
	}
	return &XrefService{
		index:     index,
		validator: validator,
		cascades:  cascades,
		pager:     pager,
		publisher: publisher,
		config:    config,
	}
}

func (s *XrefService) FindAccountByCardNumber(ctx context.Context, cardNumber string) (accountID int64, found bool, err error) {
	defer observe("find_account_by_card", time.Now(), &err)
	return s.index.LookupAccountByCard(cardNumber)
}

func (s *XrefService) GetCardXref(ctx context.Context, cardNumber string) (x model.CardXref, found bool, err error) {
	defer observe("get_card", time.Now(), &err)
	return s.index.Get(cardNumber)
}

func (s *XrefService) FindCardsByAccountID(ctx context.Context, accountID int64) (cards []string, err error) {
	defer observe("find_cards_by_account", time.Now(), &err)
	return s.index.LookupCardsByAccount(accountID)
}

func (s *XrefService) FindCardsByCustomerID(ctx context.Context, customerID int64) (cards []string, err error) {
	defer observe("find_cards_by_customer", time.Now(), &err)
	return s.index.LookupCardsByCustomer(customerID)
}

func (s *XrefService) ValidateCardToAccountLink(ctx context.Context, cardNumber string, accountID int64) bool {
	return s.validator.ValidateLink(cardNumber, accountID)
}

func (s *XrefService) LinkCard(ctx context.Context, x model.CardXref) (stored model.CardXref, err error) {
	defer observe("link_card", time.Now(), &err)

	x, err = model.NewCardXref(x.CardNumber, x.CustomerID, x.AccountID)
	if err != nil {
		return model.CardXref{}, err
	}
	stored, err = s.index.Upsert(ctx, x)
	if err != nil {
		return model.CardXref{}, err
	}
	prom.SetXrefEntries(s.index.Len())
	s.publish(ctx, model.XrefEvent{
		Type:       model.EventCardLinked,
		CardNumber: stored.CardNumber,
		AccountID:  stored.AccountID,
		CustomerID: stored.CustomerID,
	})
	return stored, nil
}

func (s *XrefService) UnlinkCard(ctx context.Context, cardNumber string) (removed bool, err error) {
	defer observe("unlink_card", time.Now(), &err)

	prev, removed, err := s.index.RemoveByCard(ctx, cardNumber)
	if err != nil || !removed {
		return removed, err
	}
	prom.SetXrefEntries(s.index.Len())
	s.publish(ctx, model.XrefEvent{
		Type:       model.EventCardUnlinked,
		CardNumber: cardNumber,
		AccountID:  prev.AccountID,
		CustomerID: prev.CustomerID,
		Removed:    1,
	})
	return true, nil
}

func (s *XrefService) CascadeDeleteAccount(ctx context.Context, accountID int64) (n int, err error) {
	defer observe("cascade_account", time.Now(), &err)

	n, err = s.cascades.CascadeDeleteAccount(ctx, accountID)
	if err != nil {
		return 0, err
	}
	prom.AddCascadeRemoved("account", n)
	if n > 0 {
		prom.SetXrefEntries(s.index.Len())
		s.publish(ctx, model.XrefEvent{
			Type:      model.EventAccountCascaded,
			AccountID: accountID,
			Removed:   n,
		})
	}
	return n, nil
}

func (s *XrefService) CascadeDeleteCustomer(ctx context.Context, customerID int64) (n int, err error) {
	defer observe("cascade_customer", time.Now(), &err)

	n, err = s.cascades.CascadeDeleteCustomer(ctx, customerID)
	if err != nil {
		return 0, err
	}
	prom.AddCascadeRemoved("customer", n)
	if n > 0 {
		prom.SetXrefEntries(s.index.Len())
		s.publish(ctx, model.XrefEvent{
			Type:       model.EventCustomerCascaded,
			CustomerID: customerID,
			Removed:    n,
		})
	}
	return n, nil
}

func (s *XrefService) DetectOrphanedRefs(ctx context.Context) (orphans []model.CardXref, err error) {
	defer observe("detect_orphans", time.Now(), &err)
	return s.validator.DetectOrphans(ctx)
}

func (s *XrefService) IntegrityReport(ctx context.Context) (report model.IntegrityReport, err error) {
	defer observe("integrity_report", time.Now(), &err)
	return s.validator.Audit(ctx)
}

func (s *XrefService) ValidateIntegrity(ctx context.Context) bool {
	return s.validator.ValidateAll(ctx)
}

// DefaultPageSize is the size callers use when they do not ask for one.
func (s *XrefService) DefaultPageSize() int {
	return s.config.DefaultPageSize
}

// ListCardsPage returns one page of the card list view.
func (s *XrefService) ListCardsPage(ctx context.Context, req model.CardListRequest) (page model.Page[model.CardSummary], err error) {
	defer observe("list_cards", time.Now(), &err)

	if err = s.checkPage(req.Page, req.Size); err != nil {
		return model.Page[model.CardSummary]{}, err
	}
	filter := model.CardFilter{AccountID: req.AccountID}
	if req.CardNumber != nil {
		card := strings.TrimSpace(*req.CardNumber)
		filter.CardNumber = &card
	}

	xrefs, err := s.pager.ListCards(filter, req.Page, req.Size)
	if err != nil {
		return model.Page[model.CardSummary]{}, err
	}
	return toSummaryPage(xrefs), nil
}

// BrowseCards moves a cursor over card numbers.
func (s *XrefService) BrowseCards(ctx context.Context, req model.BrowseRequest) (model.BrowsePage, error) {
	return s.browse(ctx, "browse_cards", xref.KeySpaceCardNumber, req)
}

// BrowseAccounts moves a cursor over the distinct account keys that own cards.
func (s *XrefService) BrowseAccounts(ctx context.Context, req model.BrowseRequest) (model.BrowsePage, error) {
	return s.browse(ctx, "browse_accounts", xref.KeySpaceAccountID, req)
}

func (s *XrefService) browse(ctx context.Context, op string, space xref.KeySpace, req model.BrowseRequest) (page model.BrowsePage, err error) {
	defer observe(op, time.Now(), &err)

	if err = s.checkPage(0, req.PageSize); err != nil {
		return model.BrowsePage{}, err
	}
	return s.pager.Browse(space, req)
}

// checkPage applies the page rules of the engine plus the configured upper bound on size.
func (s *XrefService) checkPage(pageNumber, size int) error {
	if err := model.ValidatePageRequest(pageNumber, size); err != nil {
		return err
	}
	if size > s.config.MaxPageSize {
		return model.NewValidationError("size", "must not exceed "+strconv.Itoa(s.config.MaxPageSize))
	}
	return nil
}

func (s *XrefService) publish(ctx context.Context, ev model.XrefEvent) {
	if s.publisher == nil {
		return
	}
	if ev.OccurredAt.IsZero() {
		ev.OccurredAt = time.Now().UTC()
	}
	// best effort, the mutation is already committed
	if err := s.publisher.Publish(ctx, ev); err != nil {
		logger.Warn("xref event publish failed", "type", ev.Type, "error", err)
	}
}

func toSummaryPage(p model.Page[model.CardXref]) model.Page[model.CardSummary] {
	items := make([]model.CardSummary, len(p.Items))
	for i, x := range p.Items {
		items[i] = model.CardSummary{
			MaskedCardNumber: model.MaskCardNumber(x.CardNumber),
			AccountID:        x.AccountID,
			CustomerID:       x.CustomerID,
		}
	}
	return model.Page[model.CardSummary]{
		Items:         items,
		PageNumber:    p.PageNumber,
		PageSize:      p.PageSize,
		TotalElements: p.TotalElements,
		HasNext:       p.HasNext,
		HasPrevious:   p.HasPrevious,
		IsFirst:       p.IsFirst,
		IsLast:        p.IsLast,
	}
}

func observe(op string, start time.Time, err *error) {
	result := "ok"
	if *err != nil {
		result = strings.ToLower(model.KindOf(*err).String())
	}
	prom.ObserveXrefOperation(op, result, time.Since(start).Seconds())
}
