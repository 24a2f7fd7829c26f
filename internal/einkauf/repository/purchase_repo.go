package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/jmrehder/einkauf2/internal/einkauf/entity"
)

// PurchaseRepository is the single-table store for purchase records.
type PurchaseRepository struct {
	db *gorm.DB
}

func NewPurchaseRepository(db *gorm.DB) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

// FindAll returns every record in natural id order. Callers that need a
// bounded-staleness view go through the record cache instead of calling
// this directly.
func (r *PurchaseRepository) FindAll(ctx context.Context) ([]entity.PurchaseRecord, error) {
	var records []entity.PurchaseRecord
	err := r.db.WithContext(ctx).
		Order("id ASC").
		Find(&records).Error
	return records, err
}

// FindByID returns one record or ErrNotFound.
func (r *PurchaseRepository) FindByID(ctx context.Context, id int64) (*entity.PurchaseRecord, error) {
	var record entity.PurchaseRecord
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &record, nil
}

// Create inserts one record; the store assigns id and creation timestamp.
func (r *PurchaseRepository) Create(ctx context.Context, record *entity.PurchaseRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// UpdateFields overwrites the given columns on one record, identified by
// id. Id and creation timestamp are never part of the update.
func (r *PurchaseRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).
		Model(&entity.PurchaseRecord{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// DeleteByID removes one record. Deleting an id that does not exist is a
// no-op, not an error.
func (r *PurchaseRepository) DeleteByID(ctx context.Context, id int64) error {
	return r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&entity.PurchaseRecord{}).Error
}

// Count returns the number of stored records.
func (r *PurchaseRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&entity.PurchaseRecord{}).
		Count(&total).Error
	return total, err
}
