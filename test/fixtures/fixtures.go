package fixtures

import (
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
)

const (
	AccountPrimary   int64 = 12345678901
	AccountSecondary int64 = 22
	AccountMissing   int64 = 99999999999

	CustomerPrimary   int64 = 123456789
	CustomerSecondary int64 = 2
)

var (
	// three cards of the primary account, deliberately out of key order
	CardPrimary3 = model.CardXref{CardNumber: "4111111111111113", CustomerID: CustomerPrimary, AccountID: AccountPrimary}
	CardPrimary1 = model.CardXref{CardNumber: "4111111111111111", CustomerID: CustomerPrimary, AccountID: AccountPrimary}
	CardPrimary2 = model.CardXref{CardNumber: "4111111111111112", CustomerID: CustomerPrimary, AccountID: AccountPrimary}

	CardSecondary = model.CardXref{CardNumber: "5111111111111111", CustomerID: CustomerSecondary, AccountID: AccountSecondary}
)

func PrimaryAccountCards() []model.CardXref {
	return []model.CardXref{CardPrimary3, CardPrimary1, CardPrimary2}
}

func AllCards() []model.CardXref {
	return append(PrimaryAccountCards(), CardSecondary)
}

func NewTestXref(card string, customerID, accountID int64) model.CardXref {
	return model.CardXref{CardNumber: card, CustomerID: customerID, AccountID: accountID}
}
