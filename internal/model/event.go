package model

import "time"

type XrefEventType string

const (
	EventCardLinked       XrefEventType = "card.linked"
	EventCardUnlinked     XrefEventType = "card.unlinked"
	EventAccountCascaded  XrefEventType = "account.cascaded"
	EventCustomerCascaded XrefEventType = "customer.cascaded"
)

// XrefEvent describes a committed change of the cross-reference relation.
type XrefEvent struct {
	ID         string        `json:"id"`
	Type       XrefEventType `json:"type"`
	CardNumber string        `json:"card_number,omitempty"`
	AccountID  int64         `json:"account_id,omitempty"`
	CustomerID int64         `json:"customer_id,omitempty"`
	Removed    int           `json:"removed,omitempty"`
	OccurredAt time.Time     `json:"occurred_at"`
}
