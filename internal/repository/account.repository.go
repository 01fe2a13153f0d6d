package repository

import (
	"context"
	"errors"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/pg"
	"gorm.io/gorm"
)

// resolveChunkSize bounds the IN list of a single resolve query.
const resolveChunkSize = 1000

var (
	ErrAccountNotFound  = errors.New("account not found")
	ErrCustomerNotFound = errors.New("customer not found")
	ErrDuplicateID      = errors.New("id already exists")
)

type AccountRepository struct {
	*pg.DB
}

func NewAccountRepository(db *pg.DB) *AccountRepository {
	return &AccountRepository{
		db,
	}
}

func (r *AccountRepository) Create(ctx context.Context, account *model.Account) error {
	err := r.Write(ctx).Create(toAccountEntity(account)).Error
	if pg.IsUniqueViolation(err) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateID
	}
	return mapStoreError("create account", err)
}

func (r *AccountRepository) Get(ctx context.Context, id int64) (*model.Account, error) {
	var entity AccountEntity
	err := r.Read(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, mapStoreError("get account", err)
	}
	return toAccountModel(&entity), nil
}

func (r *AccountRepository) Delete(ctx context.Context, id int64) error {
	result := r.Write(ctx).Where("id = ?", id).Delete(&AccountEntity{})
	if result.Error != nil {
		return mapStoreError("delete account", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// ResolveAccounts returns the subset of ids that exist. It satisfies xref.AccountResolver.
func (r *AccountRepository) ResolveAccounts(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	return resolveIDs(r.Read(ctx).Model(&AccountEntity{}), ids)
}

type CustomerRepository struct {
	*pg.DB
}

func NewCustomerRepository(db *pg.DB) *CustomerRepository {
	return &CustomerRepository{
		db,
	}
}

func (r *CustomerRepository) Create(ctx context.Context, customer *model.Customer) error {
	err := r.Write(ctx).Create(toCustomerEntity(customer)).Error
	if pg.IsUniqueViolation(err) || errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateID
	}
	return mapStoreError("create customer", err)
}

func (r *CustomerRepository) Get(ctx context.Context, id int64) (*model.Customer, error) {
	var entity CustomerEntity
	err := r.Read(ctx).Where("id = ?", id).First(&entity).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCustomerNotFound
		}
		return nil, mapStoreError("get customer", err)
	}
	return toCustomerModel(&entity), nil
}

func (r *CustomerRepository) Delete(ctx context.Context, id int64) error {
	result := r.Write(ctx).Where("id = ?", id).Delete(&CustomerEntity{})
	if result.Error != nil {
		return mapStoreError("delete customer", result.Error)
	}
	if result.RowsAffected == 0 {
		return ErrCustomerNotFound
	}
	return nil
}

// ResolveCustomers returns the subset of ids that exist. It satisfies xref.CustomerResolver.
func (r *CustomerRepository) ResolveCustomers(ctx context.Context, ids []int64) (map[int64]struct{}, error) {
	return resolveIDs(r.Read(ctx).Model(&CustomerEntity{}), ids)
}

func resolveIDs(q *gorm.DB, ids []int64) (map[int64]struct{}, error) {
	found := make(map[int64]struct{}, len(ids))
	for start := 0; start < len(ids); start += resolveChunkSize {
		end := min(start+resolveChunkSize, len(ids))
		var existing []int64
		err := q.Session(&gorm.Session{}).
			Where("id IN ?", ids[start:end]).
			Pluck("id", &existing).
			Error
		if err != nil {
			return nil, mapStoreError("resolve ids", err)
		}
		for _, id := range existing {
			found[id] = struct{}{}
		}
	}
	return found, nil
}
