package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/xref"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/logger"
	xhttp "github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/http"
	"github.com/fasthttp/router"
)

type XrefService interface {
	GetCardXref(ctx context.Context, cardNumber string) (model.CardXref, bool, error)
	FindAccountByCardNumber(ctx context.Context, cardNumber string) (int64, bool, error)
	FindCardsByAccountID(ctx context.Context, accountID int64) ([]string, error)
	FindCardsByCustomerID(ctx context.Context, customerID int64) ([]string, error)
	ValidateCardToAccountLink(ctx context.Context, cardNumber string, accountID int64) bool
	LinkCard(ctx context.Context, x model.CardXref) (model.CardXref, error)
	UnlinkCard(ctx context.Context, cardNumber string) (bool, error)
	CascadeDeleteAccount(ctx context.Context, accountID int64) (int, error)
	CascadeDeleteCustomer(ctx context.Context, customerID int64) (int, error)
	DetectOrphanedRefs(ctx context.Context) ([]model.CardXref, error)
	IntegrityReport(ctx context.Context) (model.IntegrityReport, error)
	ListCardsPage(ctx context.Context, req model.CardListRequest) (model.Page[model.CardSummary], error)
	BrowseCards(ctx context.Context, req model.BrowseRequest) (model.BrowsePage, error)
	BrowseAccounts(ctx context.Context, req model.BrowseRequest) (model.BrowsePage, error)
	DefaultPageSize() int
}

type XrefHandler struct {
	svc XrefService
}

func RegisterXrefRoutes(e *router.Group, h *XrefHandler) {
	e.GET("/xref/cards/{card}", h.GetCard)
	e.GET("/xref/cards/{card}/account", h.GetAccountByCard)
	e.PUT("/xref/cards/{card}", h.LinkCard)
	e.DELETE("/xref/cards/{card}", h.UnlinkCard)
	e.GET("/xref/accounts/{id}/cards", h.ListCardsByAccount)
	e.GET("/xref/customers/{id}/cards", h.ListCardsByCustomer)
	e.GET("/xref/validate", h.ValidateLink)

	e.DELETE("/accounts/{id}", h.DeleteAccount)
	e.DELETE("/customers/{id}", h.DeleteCustomer)

	e.GET("/integrity", h.GetIntegrityReport)
	e.GET("/integrity/orphans", h.ListOrphans)

	e.GET("/cards", h.ListCards)
	e.GET("/cards/browse", h.BrowseCards)
}

func NewXrefHandler(svc XrefService) *XrefHandler {
	return &XrefHandler{
		svc: svc,
	}
}

type linkCardRequest struct {
	AccountID  int64 `json:"account_id"`
	CustomerID int64 `json:"customer_id"`
}

type accountResponse struct {
	CardNumber string `json:"card_number"`
	AccountID  int64  `json:"account_id"`
}

type cardsResponse struct {
	Cards []string `json:"cards"`
	Total int      `json:"total"`
}

type validateResponse struct {
	Valid bool `json:"valid"`
}

type cascadeResponse struct {
	Removed int `json:"removed"`
}

type orphansResponse struct {
	Items []model.CardXref `json:"items"`
	Total int              `json:"total"`
}

/* --------------------------------- Lookups ---------------------------------- */

func (h *XrefHandler) GetCard(ctx *xhttp.RequestCtx) {
	x, found, err := h.svc.GetCardXref(ctx, param(ctx, "card"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if !found {
		writeError(ctx, xhttp.StatusNotFound, "card not found")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, x)
}

func (h *XrefHandler) GetAccountByCard(ctx *xhttp.RequestCtx) {
	card := param(ctx, "card")
	accountID, found, err := h.svc.FindAccountByCardNumber(ctx, card)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if !found {
		writeError(ctx, xhttp.StatusNotFound, "card not found")
		return
	}
	writeJSON(ctx, xhttp.StatusOK, accountResponse{CardNumber: card, AccountID: accountID})
}

func (h *XrefHandler) ListCardsByAccount(ctx *xhttp.RequestCtx) {
	id, err := paramInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid account id")
		return
	}
	cards, err := h.svc.FindCardsByAccountID(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, cardsResponse{Cards: cards, Total: len(cards)})
}

func (h *XrefHandler) ListCardsByCustomer(ctx *xhttp.RequestCtx) {
	id, err := paramInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid customer id")
		return
	}
	cards, err := h.svc.FindCardsByCustomerID(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, cardsResponse{Cards: cards, Total: len(cards)})
}

func (h *XrefHandler) ValidateLink(ctx *xhttp.RequestCtx) {
	accountID, err := queryInt64(ctx, "account_id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid account_id")
		return
	}
	valid := h.svc.ValidateCardToAccountLink(ctx, query(ctx, "card_number"), accountID)
	writeJSON(ctx, xhttp.StatusOK, validateResponse{Valid: valid})
}

/* -------------------------------- Mutations --------------------------------- */

func (h *XrefHandler) LinkCard(ctx *xhttp.RequestCtx) {
	var req linkCardRequest
	if err := readJSON(ctx, &req); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid JSON: "+err.Error())
		return
	}
	x, err := h.svc.LinkCard(ctx, model.CardXref{
		CardNumber: param(ctx, "card"),
		AccountID:  req.AccountID,
		CustomerID: req.CustomerID,
	})
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, x)
}

func (h *XrefHandler) UnlinkCard(ctx *xhttp.RequestCtx) {
	removed, err := h.svc.UnlinkCard(ctx, param(ctx, "card"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if !removed {
		writeError(ctx, xhttp.StatusNotFound, "card not found")
		return
	}
	ctx.Response.SetStatusCode(xhttp.StatusNoContent)
}

func (h *XrefHandler) DeleteAccount(ctx *xhttp.RequestCtx) {
	id, err := paramInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid account id")
		return
	}
	n, err := h.svc.CascadeDeleteAccount(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, cascadeResponse{Removed: n})
}

func (h *XrefHandler) DeleteCustomer(ctx *xhttp.RequestCtx) {
	id, err := paramInt64(ctx, "id")
	if err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid customer id")
		return
	}
	n, err := h.svc.CascadeDeleteCustomer(ctx, id)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, cascadeResponse{Removed: n})
}

/* -------------------------------- Integrity --------------------------------- */

func (h *XrefHandler) GetIntegrityReport(ctx *xhttp.RequestCtx) {
	report, err := h.svc.IntegrityReport(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, report)
}

func (h *XrefHandler) ListOrphans(ctx *xhttp.RequestCtx) {
	orphans, err := h.svc.DetectOrphanedRefs(ctx)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	if orphans == nil {
		orphans = []model.CardXref{}
	}
	writeJSON(ctx, xhttp.StatusOK, orphansResponse{Items: orphans, Total: len(orphans)})
}

/* --------------------------------- Paging ----------------------------------- */

func (h *XrefHandler) ListCards(ctx *xhttp.RequestCtx) {
	var req model.CardListRequest

	if v := query(ctx, "account_id"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			writeError(ctx, xhttp.StatusBadRequest, "invalid account_id")
			return
		}
		req.AccountID = &id
	}
	if v := query(ctx, "card_number"); v != "" {
		req.CardNumber = &v
	}
	var err error
	if req.Page, _, err = queryInt(ctx, "page"); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid page")
		return
	}
	if req.Size, err = h.pageSize(ctx); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid size")
		return
	}

	page, err := h.svc.ListCardsPage(ctx, req)
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, page)
}

func (h *XrefHandler) BrowseCards(ctx *xhttp.RequestCtx) {
	space, err := xref.ParseKeySpace(query(ctx, "space"))
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	req := model.BrowseRequest{
		StartKey:  query(ctx, "start"),
		Direction: model.DirectionForward,
		SkipStart: ctx.QueryArgs().GetBool("skip_start"),
	}
	if v := query(ctx, "direction"); v != "" {
		req.Direction = model.Direction(v)
	}
	if req.PageSize, err = h.pageSize(ctx); err != nil {
		writeError(ctx, xhttp.StatusBadRequest, "invalid size")
		return
	}

	var page model.BrowsePage
	switch space {
	case xref.KeySpaceAccountID:
		page, err = h.svc.BrowseAccounts(ctx, req)
	default:
		page, err = h.svc.BrowseCards(ctx, req)
	}
	if err != nil {
		writeServiceError(ctx, err)
		return
	}
	writeJSON(ctx, xhttp.StatusOK, page)
}

// pageSize reads the size parameter. An absent size selects the service default,
// an explicit one is passed through for the service to validate.
func (h *XrefHandler) pageSize(ctx *xhttp.RequestCtx) (int, error) {
	size, ok, err := queryInt(ctx, "size")
	if err != nil {
		return 0, err
	}
	if !ok {
		return h.svc.DefaultPageSize(), nil
	}
	return size, nil
}

/* --------------------------------- Helpers ---------------------------------- */

func readJSON(ctx *xhttp.RequestCtx, dst any) error {
	body := ctx.PostBody()
	return json.Unmarshal(body, dst)
}

func writeJSON(ctx *xhttp.RequestCtx, status int, v any) {
	b, _ := json.Marshal(v)
	ctx.Response.Header.Set("Content-Type", "application/json; charset=utf-8")
	ctx.Response.SetStatusCode(status)
	ctx.Response.SetBodyRaw(b)
}

func writeError(ctx *xhttp.RequestCtx, status int, msg string) {
	writeJSON(ctx, status, map[string]string{"error": msg})
}

// writeServiceError maps the error kind to a status code. Unknown errors are
// logged and hidden from the client.
func writeServiceError(ctx *xhttp.RequestCtx, err error) {
	var e *model.Error
	switch {
	case errors.As(err, &e) && e.Kind == model.KindValidation:
		writeJSON(ctx, xhttp.StatusBadRequest, map[string]string{"error": e.Error(), "field": e.Field})
	case errors.Is(err, model.ErrNotFound):
		writeError(ctx, xhttp.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrConflict):
		writeError(ctx, xhttp.StatusConflict, err.Error())
	default:
		logger.Error("request failed", "path", string(ctx.Path()), "error", err)
		writeError(ctx, xhttp.StatusInternalServerError, xhttp.StatusText(xhttp.StatusInternalServerError))
	}
}

func param(ctx *xhttp.RequestCtx, name string) string {
	v, _ := ctx.UserValue(name).(string)
	return v
}

func paramInt64(ctx *xhttp.RequestCtx, name string) (int64, error) {
	return strconv.ParseInt(param(ctx, name), 10, 64)
}

func query(ctx *xhttp.RequestCtx, key string) string {
	return string(ctx.QueryArgs().Peek(key))
}

func queryInt64(ctx *xhttp.RequestCtx, key string) (int64, error) {
	v := query(ctx, key)
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	return strconv.ParseInt(v, 10, 64)
}

// queryInt reports whether the parameter was present. An absent parameter is 0.
func queryInt(ctx *xhttp.RequestCtx, key string) (int, bool, error) {
	if !ctx.QueryArgs().Has(key) {
		return 0, false, nil
	}
	n, err := strconv.Atoi(query(ctx, key))
	return n, true, err
}
