package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
	xhttp "github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/http"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"
)

type MockXrefService struct {
	mock.Mock
}

func (m *MockXrefService) GetCardXref(ctx context.Context, cardNumber string) (model.CardXref, bool, error) {
	args := m.Called(ctx, cardNumber)
	return args.Get(0).(model.CardXref), args.Bool(1), args.Error(2)
}

func (m *MockXrefService) FindAccountByCardNumber(ctx context.Context, cardNumber string) (int64, bool, error) {
	args := m.Called(ctx, cardNumber)
	return args.Get(0).(int64), args.Bool(1), args.Error(2)
}

func (m *MockXrefService) FindCardsByAccountID(ctx context.Context, accountID int64) ([]string, error) {
	args := m.Called(ctx, accountID)
	cards, _ := args.Get(0).([]string)
	return cards, args.Error(1)
}

func (m *MockXrefService) FindCardsByCustomerID(ctx context.Context, customerID int64) ([]string, error) {
	args := m.Called(ctx, customerID)
	cards, _ := args.Get(0).([]string)
	return cards, args.Error(1)
}

func (m *MockXrefService) ValidateCardToAccountLink(ctx context.Context, cardNumber string, accountID int64) bool {
	return m.Called(ctx, cardNumber, accountID).Bool(0)
}

func (m *MockXrefService) LinkCard(ctx context.Context, x model.CardXref) (model.CardXref, error) {
	args := m.Called(ctx, x)
	return args.Get(0).(model.CardXref), args.Error(1)
}

func (m *MockXrefService) UnlinkCard(ctx context.Context, cardNumber string) (bool, error) {
	args := m.Called(ctx, cardNumber)
	return args.Bool(0), args.Error(1)
}

func (m *MockXrefService) CascadeDeleteAccount(ctx context.Context, accountID int64) (int, error) {
	args := m.Called(ctx, accountID)
	return args.Int(0), args.Error(1)
}

func (m *MockXrefService) CascadeDeleteCustomer(ctx context.Context, customerID int64) (int, error) {
	args := m.Called(ctx, customerID)
	return args.Int(0), args.Error(1)
}

func (m *MockXrefService) DetectOrphanedRefs(ctx context.Context) ([]model.CardXref, error) {
	args := m.Called(ctx)
	orphans, _ := args.Get(0).([]model.CardXref)
	return orphans, args.Error(1)
}

func (m *MockXrefService) IntegrityReport(ctx context.Context) (model.IntegrityReport, error) {
	args := m.Called(ctx)
	return args.Get(0).(model.IntegrityReport), args.Error(1)
}

func (m *MockXrefService) ListCardsPage(ctx context.Context, req model.CardListRequest) (model.Page[model.CardSummary], error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.Page[model.CardSummary]), args.Error(1)
}

func (m *MockXrefService) BrowseCards(ctx context.Context, req model.BrowseRequest) (model.BrowsePage, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.BrowsePage), args.Error(1)
}

func (m *MockXrefService) BrowseAccounts(ctx context.Context, req model.BrowseRequest) (model.BrowsePage, error) {
	args := m.Called(ctx, req)
	return args.Get(0).(model.BrowsePage), args.Error(1)
}

func (m *MockXrefService) DefaultPageSize() int {
	return m.Called().Int(0)
}

func setupTestContext(method, path string, body []byte, params map[string]string) *xhttp.RequestCtx {
	ctx := &fasthttp.RequestCtx{}
	ctx.Request.Header.SetMethod(method)
	ctx.Request.SetRequestURI(path)
	if body != nil {
		ctx.Request.SetBody(body)
	}
	for k, v := range params {
		ctx.SetUserValue(k, v)
	}
	return ctx
}

func decodeBody(t *testing.T, ctx *xhttp.RequestCtx, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(ctx.Response.Body(), dst))
}

const card = "4111111111111111"

func TestXrefHandler_GetCard(t *testing.T) {
	t.Run("found", func(t *testing.T) {
		svc := new(MockXrefService)
		x := model.CardXref{CardNumber: card, AccountID: 12345678901, CustomerID: 123456789}
		svc.On("GetCardXref", mock.Anything, card).Return(x, true, nil)

		ctx := setupTestContext("GET", "/api/v1/xref/cards/"+card, nil, map[string]string{"card": card})
		NewXrefHandler(svc).GetCard(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		var got model.CardXref
		decodeBody(t, ctx, &got)
		assert.Equal(t, x, got)
		svc.AssertExpectations(t)
	})

	t.Run("not found", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("GetCardXref", mock.Anything, card).Return(model.CardXref{}, false, nil)

		ctx := setupTestContext("GET", "/api/v1/xref/cards/"+card, nil, map[string]string{"card": card})
		NewXrefHandler(svc).GetCard(ctx)
		assert.Equal(t, 404, ctx.Response.StatusCode())
	})

	t.Run("malformed card number", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("GetCardXref", mock.Anything, "123").
			Return(model.CardXref{}, false, model.NewValidationError("card_number", "must be exactly 16 characters"))

		ctx := setupTestContext("GET", "/api/v1/xref/cards/123", nil, map[string]string{"card": "123"})
		NewXrefHandler(svc).GetCard(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		var response map[string]string
		decodeBody(t, ctx, &response)
		assert.Equal(t, "card_number", response["field"])
		assert.Contains(t, response["error"], "16 characters")
	})
}

func TestXrefHandler_GetAccountByCard(t *testing.T) {
	svc := new(MockXrefService)
	svc.On("FindAccountByCardNumber", mock.Anything, card).Return(int64(12345678901), true, nil)

	ctx := setupTestContext("GET", "/api/v1/xref/cards/"+card+"/account", nil, map[string]string{"card": card})
	NewXrefHandler(svc).GetAccountByCard(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	var got accountResponse
	decodeBody(t, ctx, &got)
	assert.Equal(t, int64(12345678901), got.AccountID)
}

func TestXrefHandler_ListCardsByAccount(t *testing.T) {
	t.Run("cards of the account", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("FindCardsByAccountID", mock.Anything, int64(12345678901)).Return([]string{card, "4111111111111112"}, nil)

		ctx := setupTestContext("GET", "/api/v1/xref/accounts/12345678901/cards", nil, map[string]string{"id": "12345678901"})
		NewXrefHandler(svc).ListCardsByAccount(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		var got cardsResponse
		decodeBody(t, ctx, &got)
		assert.Equal(t, 2, got.Total)
		assert.Equal(t, card, got.Cards[0])
	})

	t.Run("non numeric id", func(t *testing.T) {
		svc := new(MockXrefService)
		ctx := setupTestContext("GET", "/api/v1/xref/accounts/abc/cards", nil, map[string]string{"id": "abc"})
		NewXrefHandler(svc).ListCardsByAccount(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "FindCardsByAccountID", mock.Anything, mock.Anything)
	})
}

func TestXrefHandler_ListCardsByCustomer(t *testing.T) {
	svc := new(MockXrefService)
	svc.On("FindCardsByCustomerID", mock.Anything, int64(7)).Return([]string{}, nil)

	ctx := setupTestContext("GET", "/api/v1/xref/customers/7/cards", nil, map[string]string{"id": "7"})
	NewXrefHandler(svc).ListCardsByCustomer(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	var got cardsResponse
	decodeBody(t, ctx, &got)
	assert.Zero(t, got.Total)
	assert.NotNil(t, got.Cards)
}

func TestXrefHandler_ValidateLink(t *testing.T) {
	svc := new(MockXrefService)
	svc.On("ValidateCardToAccountLink", mock.Anything, card, int64(10)).Return(true)

	ctx := setupTestContext("GET", "/api/v1/xref/validate?card_number="+card+"&account_id=10", nil, nil)
	NewXrefHandler(svc).ValidateLink(ctx)

	assert.Equal(t, 200, ctx.Response.StatusCode())
	var got validateResponse
	decodeBody(t, ctx, &got)
	assert.True(t, got.Valid)

	ctx = setupTestContext("GET", "/api/v1/xref/validate?card_number="+card, nil, nil)
	NewXrefHandler(svc).ValidateLink(ctx)
	assert.Equal(t, 400, ctx.Response.StatusCode())
}

func TestXrefHandler_LinkCard(t *testing.T) {
	t.Run("links the card", func(t *testing.T) {
		svc := new(MockXrefService)
		want := model.CardXref{CardNumber: card, AccountID: 10, CustomerID: 1}
		svc.On("LinkCard", mock.Anything, want).Return(want, nil)

		body, _ := json.Marshal(linkCardRequest{AccountID: 10, CustomerID: 1})
		ctx := setupTestContext("PUT", "/api/v1/xref/cards/"+card, body, map[string]string{"card": card})
		NewXrefHandler(svc).LinkCard(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		var got model.CardXref
		decodeBody(t, ctx, &got)
		assert.Equal(t, want, got)
		svc.AssertExpectations(t)
	})

	t.Run("invalid JSON", func(t *testing.T) {
		svc := new(MockXrefService)
		ctx := setupTestContext("PUT", "/api/v1/xref/cards/"+card, []byte("invalid"), map[string]string{"card": card})
		NewXrefHandler(svc).LinkCard(ctx)

		assert.Equal(t, 400, ctx.Response.StatusCode())
		var response map[string]string
		decodeBody(t, ctx, &response)
		assert.Contains(t, response["error"], "invalid JSON")
	})

	t.Run("conflict", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("LinkCard", mock.Anything, mock.Anything).
			Return(model.CardXref{}, model.NewConflictError("save xref", errors.New("could not serialize access")))

		body, _ := json.Marshal(linkCardRequest{AccountID: 10, CustomerID: 1})
		ctx := setupTestContext("PUT", "/api/v1/xref/cards/"+card, body, map[string]string{"card": card})
		NewXrefHandler(svc).LinkCard(ctx)
		assert.Equal(t, 409, ctx.Response.StatusCode())
	})

	t.Run("store failure is hidden", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("LinkCard", mock.Anything, mock.Anything).
			Return(model.CardXref{}, errors.New("dial tcp 10.0.0.1:5432: connection refused"))

		body, _ := json.Marshal(linkCardRequest{AccountID: 10, CustomerID: 1})
		ctx := setupTestContext("PUT", "/api/v1/xref/cards/"+card, body, map[string]string{"card": card})
		NewXrefHandler(svc).LinkCard(ctx)

		assert.Equal(t, 500, ctx.Response.StatusCode())
		assert.NotContains(t, string(ctx.Response.Body()), "10.0.0.1")
	})
}

func TestXrefHandler_UnlinkCard(t *testing.T) {
	svc := new(MockXrefService)
	svc.On("UnlinkCard", mock.Anything, card).Return(true, nil).Once()
	svc.On("UnlinkCard", mock.Anything, card).Return(false, nil).Once()
	h := NewXrefHandler(svc)

	ctx := setupTestContext("DELETE", "/api/v1/xref/cards/"+card, nil, map[string]string{"card": card})
	h.UnlinkCard(ctx)
	assert.Equal(t, 204, ctx.Response.StatusCode())

	ctx = setupTestContext("DELETE", "/api/v1/xref/cards/"+card, nil, map[string]string{"card": card})
	h.UnlinkCard(ctx)
	assert.Equal(t, 404, ctx.Response.StatusCode())
	svc.AssertExpectations(t)
}

func TestXrefHandler_Cascades(t *testing.T) {
	t.Run("account", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("CascadeDeleteAccount", mock.Anything, int64(10)).Return(2, nil)

		ctx := setupTestContext("DELETE", "/api/v1/accounts/10", nil, map[string]string{"id": "10"})
		NewXrefHandler(svc).DeleteAccount(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		var got cascadeResponse
		decodeBody(t, ctx, &got)
		assert.Equal(t, 2, got.Removed)
	})

	t.Run("customer", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("CascadeDeleteCustomer", mock.Anything, int64(1)).Return(3, nil)

		ctx := setupTestContext("DELETE", "/api/v1/customers/1", nil, map[string]string{"id": "1"})
		NewXrefHandler(svc).DeleteCustomer(ctx)

		var got cascadeResponse
		decodeBody(t, ctx, &got)
		assert.Equal(t, 3, got.Removed)
	})

	t.Run("cascade in progress", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("CascadeDeleteAccount", mock.Anything, int64(10)).Return(0, model.NewConflictError("cascade already running for account:10", nil))

		ctx := setupTestContext("DELETE", "/api/v1/accounts/10", nil, map[string]string{"id": "10"})
		NewXrefHandler(svc).DeleteAccount(ctx)
		assert.Equal(t, 409, ctx.Response.StatusCode())
	})
}

func TestXrefHandler_Integrity(t *testing.T) {
	orphan := model.CardXref{CardNumber: card, AccountID: 99, CustomerID: 1}

	t.Run("report", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("IntegrityReport", mock.Anything).Return(model.IntegrityReport{
			Checked:  4,
			Findings: []model.Finding{{Xref: orphan, Reasons: []model.FindingReason{model.ReasonAccountMissing}}},
		}, nil)

		ctx := setupTestContext("GET", "/api/v1/integrity", nil, nil)
		NewXrefHandler(svc).GetIntegrityReport(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		var got model.IntegrityReport
		decodeBody(t, ctx, &got)
		assert.Equal(t, 4, got.Checked)
		require.Len(t, got.Findings, 1)
		assert.Equal(t, model.ReasonAccountMissing, got.Findings[0].Reasons[0])
	})

	t.Run("orphans", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("DetectOrphanedRefs", mock.Anything).Return(nil, nil).Once()
		svc.On("DetectOrphanedRefs", mock.Anything).Return([]model.CardXref{orphan}, nil).Once()
		h := NewXrefHandler(svc)

		ctx := setupTestContext("GET", "/api/v1/integrity/orphans", nil, nil)
		h.ListOrphans(ctx)
		assert.JSONEq(t, `{"items":[],"total":0}`, string(ctx.Response.Body()))

		ctx = setupTestContext("GET", "/api/v1/integrity/orphans", nil, nil)
		h.ListOrphans(ctx)
		var got orphansResponse
		decodeBody(t, ctx, &got)
		assert.Equal(t, []model.CardXref{orphan}, got.Items)
	})

	t.Run("collaborator failure", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("IntegrityReport", mock.Anything).Return(model.IntegrityReport{}, errors.New("resolve accounts: timeout"))

		ctx := setupTestContext("GET", "/api/v1/integrity", nil, nil)
		NewXrefHandler(svc).GetIntegrityReport(ctx)
		assert.Equal(t, 500, ctx.Response.StatusCode())
	})
}

func TestXrefHandler_ListCards(t *testing.T) {
	t.Run("filters and paging are forwarded", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("ListCardsPage", mock.Anything, mock.MatchedBy(func(req model.CardListRequest) bool {
			return req.AccountID != nil && *req.AccountID == 12345678901 && req.CardNumber == nil && req.Page == 1 && req.Size == 2
		})).Return(model.Page[model.CardSummary]{
			Items:         []model.CardSummary{{MaskedCardNumber: "****-****-****-1113", AccountID: 12345678901, CustomerID: 1}},
			PageNumber:    1,
			PageSize:      2,
			TotalElements: 3,
			HasPrevious:   true,
			IsLast:        true,
		}, nil)

		ctx := setupTestContext("GET", "/api/v1/cards?account_id=12345678901&page=1&size=2", nil, nil)
		NewXrefHandler(svc).ListCards(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		var got model.Page[model.CardSummary]
		decodeBody(t, ctx, &got)
		assert.Equal(t, 3, got.TotalElements)
		assert.True(t, got.IsLast)
		assert.Equal(t, "****-****-****-1113", got.Items[0].MaskedCardNumber)
		svc.AssertExpectations(t)
	})

	t.Run("absent size selects the default", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("DefaultPageSize").Return(7)
		svc.On("ListCardsPage", mock.Anything, model.CardListRequest{Size: 7}).Return(model.Page[model.CardSummary]{Items: []model.CardSummary{}}, nil)

		ctx := setupTestContext("GET", "/api/v1/cards", nil, nil)
		NewXrefHandler(svc).ListCards(ctx)
		assert.Equal(t, 200, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("explicit zero size is rejected", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("ListCardsPage", mock.Anything, model.CardListRequest{Size: 0}).
			Return(model.Page[model.CardSummary]{}, model.NewValidationError("size", "must be greater than 0"))

		ctx := setupTestContext("GET", "/api/v1/cards?size=0", nil, nil)
		NewXrefHandler(svc).ListCards(ctx)
		assert.Equal(t, 400, ctx.Response.StatusCode())
		svc.AssertNotCalled(t, "DefaultPageSize")
		svc.AssertExpectations(t)
	})

	t.Run("bad parameters", func(t *testing.T) {
		for _, uri := range []string{"/api/v1/cards?account_id=x", "/api/v1/cards?page=one", "/api/v1/cards?size=1.5"} {
			svc := new(MockXrefService)
			ctx := setupTestContext("GET", uri, nil, nil)
			NewXrefHandler(svc).ListCards(ctx)
			assert.Equal(t, 400, ctx.Response.StatusCode(), uri)
		}
	})

	t.Run("page size above the maximum", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("ListCardsPage", mock.Anything, mock.Anything).
			Return(model.Page[model.CardSummary]{}, model.NewValidationError("size", "must not exceed 100"))

		ctx := setupTestContext("GET", "/api/v1/cards?size=500", nil, nil)
		NewXrefHandler(svc).ListCards(ctx)
		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}

func TestXrefHandler_BrowseCards(t *testing.T) {
	t.Run("cards", func(t *testing.T) {
		svc := new(MockXrefService)
		want := model.BrowseRequest{StartKey: card, Direction: model.DirectionForward, PageSize: 3, SkipStart: true}
		svc.On("BrowseCards", mock.Anything, want).Return(model.BrowsePage{
			Items:    []string{"4111111111111112"},
			FirstKey: "4111111111111112",
			LastKey:  "4111111111111112",
		}, nil)

		ctx := setupTestContext("GET", "/api/v1/cards/browse?start="+card+"&size=3&skip_start=true", nil, nil)
		NewXrefHandler(svc).BrowseCards(ctx)

		assert.Equal(t, 200, ctx.Response.StatusCode())
		var got model.BrowsePage
		decodeBody(t, ctx, &got)
		assert.Equal(t, "4111111111111112", got.LastKey)
		svc.AssertExpectations(t)
	})

	t.Run("accounts backward", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("DefaultPageSize").Return(7)
		want := model.BrowseRequest{Direction: model.DirectionBackward, PageSize: 7}
		svc.On("BrowseAccounts", mock.Anything, want).Return(model.BrowsePage{Items: []string{"00000000042"}}, nil)

		ctx := setupTestContext("GET", "/api/v1/cards/browse?space=accounts&direction=backward", nil, nil)
		NewXrefHandler(svc).BrowseCards(ctx)
		assert.Equal(t, 200, ctx.Response.StatusCode())
		svc.AssertExpectations(t)
	})

	t.Run("unknown space", func(t *testing.T) {
		svc := new(MockXrefService)
		ctx := setupTestContext("GET", "/api/v1/cards/browse?space=customers", nil, nil)
		NewXrefHandler(svc).BrowseCards(ctx)
		assert.Equal(t, 400, ctx.Response.StatusCode())
	})

	t.Run("invalid direction", func(t *testing.T) {
		svc := new(MockXrefService)
		svc.On("DefaultPageSize").Return(7)
		svc.On("BrowseCards", mock.Anything, mock.Anything).
			Return(model.BrowsePage{}, model.NewValidationError("direction", "must be forward or backward"))

		ctx := setupTestContext("GET", "/api/v1/cards/browse?direction=sideways", nil, nil)
		NewXrefHandler(svc).BrowseCards(ctx)
		assert.Equal(t, 400, ctx.Response.StatusCode())
	})
}
