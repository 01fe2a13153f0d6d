package repository

import (
	"time"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
)

type XrefEntity struct {
	CardNumber string    `db:"card_number" gorm:"primaryKey;column:card_number;type:char(16)"`
	CustomerID int64     `db:"customer_id" gorm:"column:customer_id;not null;default:0;index:idx_card_xref_customer_id"`
	AccountID  int64     `db:"account_id"  gorm:"column:account_id;not null;default:0;index:idx_card_xref_account_id"`
	CreatedAt  time.Time `db:"created_at"  gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `db:"updated_at"  gorm:"column:updated_at;autoUpdateTime"`
}

func (XrefEntity) TableName() string {
	return "card_xref"
}

func toXrefEntity(m model.CardXref) *XrefEntity {
	return &XrefEntity{
		CardNumber: m.CardNumber,
		CustomerID: m.CustomerID,
		AccountID:  m.AccountID,
	}
}

func toXrefModel(e *XrefEntity) model.CardXref {
	return model.CardXref{
		CardNumber: e.CardNumber,
		CustomerID: e.CustomerID,
		AccountID:  e.AccountID,
	}
}

func toXrefModels(entities []*XrefEntity) []model.CardXref {
	models := make([]model.CardXref, len(entities))
	for i, e := range entities {
		models[i] = toXrefModel(e)
	}
	return models
}
