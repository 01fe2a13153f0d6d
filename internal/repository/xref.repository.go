package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/internal/model"
	"github.com/blitzedNdun/aws-carddemo-blitzy-sub012/pkg/pg"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// deleteChunkSize bounds the IN list of a single DELETE statement.
const deleteChunkSize = 500

var ErrXrefNotFound = errors.New("xref not found")

// XrefRepository persists the card_xref relation. It satisfies xref.Store.
type XrefRepository struct {
	*pg.DB
}

func NewXrefRepository(db *pg.DB) *XrefRepository {
	return &XrefRepository{
		db,
	}
}

// SaveXref inserts or replaces the association of x.CardNumber.
func (r *XrefRepository) SaveXref(ctx context.Context, x model.CardXref) error {
	err := r.Write(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "card_number"}},
			DoUpdates: clause.AssignmentColumns([]string{"customer_id", "account_id", "updated_at"}),
		}).
		Create(toXrefEntity(x)).
		Error
	return mapStoreError("save xref", err)
}

// DeleteXrefs removes all given card numbers in one transaction.
func (r *XrefRepository) DeleteXrefs(ctx context.Context, cardNumbers []string) error {
	if len(cardNumbers) == 0 {
		return nil
	}
	err := r.WithinTransaction(ctx, func(ctx context.Context) error {
		for start := 0; start < len(cardNumbers); start += deleteChunkSize {
			end := min(start+deleteChunkSize, len(cardNumbers))
			err := r.Write(ctx).
				Where("card_number IN ?", cardNumbers[start:end]).
				Delete(&XrefEntity{}).
				Error
			if err != nil {
				return err
			}
		}
		return nil
	})
	return mapStoreError("delete xrefs", err)
}

// LoadXrefs returns the whole relation ordered by card number.
func (r *XrefRepository) LoadXrefs(ctx context.Context) ([]model.CardXref, error) {
	var entities []*XrefEntity
	err := r.Read(ctx).
		Order("card_number").
		Find(&entities).
		Error
	if err != nil {
		return nil, mapStoreError("load xrefs", err)
	}
	return toXrefModels(entities), nil
}

func (r *XrefRepository) GetXref(ctx context.Context, cardNumber string) (model.CardXref, error) {
	var entity XrefEntity
	err := r.Read(ctx).
		Where("card_number = ?", cardNumber).
		First(&entity).
		Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return model.CardXref{}, ErrXrefNotFound
		}
		return model.CardXref{}, mapStoreError("get xref", err)
	}
	return toXrefModel(&entity), nil
}

func (r *XrefRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	err := r.Read(ctx).Model(&XrefEntity{}).Count(&n).Error
	return n, mapStoreError("count xrefs", err)
}

// mapStoreError tags retryable database conflicts so callers can retry them.
func mapStoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	if pg.IsConflict(err) {
		return model.NewConflictError(op+" conflict", err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
