package repository

import (
	"time"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
)

type AccountEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement:false;column:id"`
	Status    string    `db:"status"     gorm:"column:status;type:char(1);not null;default:Y"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (AccountEntity) TableName() string {
	return "account"
}

type CustomerEntity struct {
	ID        int64     `db:"id"         gorm:"primaryKey;autoIncrement:false;column:id"`
	FirstName string    `db:"first_name" gorm:"column:first_name;not null"`
	LastName  string    `db:"last_name"  gorm:"column:last_name;not null"`
	CreatedAt time.Time `db:"created_at" gorm:"column:created_at;autoCreateTime"`
}

func (CustomerEntity) TableName() string {
	return "customer"
}

func toAccountEntity(m *model.Account) *AccountEntity {
	if m == nil {
		return nil
	}
	status := m.Status
	if status == "" {
		status = model.AccountStatusActive
	}
	return &AccountEntity{
		ID:        m.ID,
		Status:    string(status),
		CreatedAt: m.CreatedAt,
	}
}

func toAccountModel(e *AccountEntity) *model.Account {
	if e == nil {
		return nil
	}
	return &model.Account{
		ID:        e.ID,
		Status:    model.AccountStatus(e.Status),
		CreatedAt: e.CreatedAt,
	}
}

func toCustomerEntity(m *model.Customer) *CustomerEntity {
	if m == nil {
		return nil
	}
	return &CustomerEntity{
		ID:        m.ID,
		FirstName: m.FirstName,
		LastName:  m.LastName,
		CreatedAt: m.CreatedAt,
	}
}

func toCustomerModel(e *CustomerEntity) *model.Customer {
	if e == nil {
		return nil
	}
	return &model.Customer{
		ID:        e.ID,
		FirstName: e.FirstName,
		LastName:  e.LastName,
		CreatedAt: e.CreatedAt,
	}
}
