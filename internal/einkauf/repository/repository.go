package repository

import (
	"errors"

	"gorm.io/gorm"
)

var (
	ErrNotFound = errors.New("record not found")
)

// Repositories bundles the data-access layer.
type Repositories struct {
	Purchase *PurchaseRepository
}

func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		Purchase: NewPurchaseRepository(db),
	}
}
