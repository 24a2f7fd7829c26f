package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/jmrehder/einkauf2/internal/einkauf/cache"
	"github.com/jmrehder/einkauf2/internal/einkauf/entity"
	"github.com/jmrehder/einkauf2/internal/einkauf/repository"
)

// Services bundles the business layer.
type Services struct {
	Purchase *PurchaseService
	Import   *ImportService
	Analysis *AnalysisService
}

func NewServices(repos *repository.Repositories, records *cache.Records, logger *zap.Logger) *Services {
	return &Services{
		Purchase: NewPurchaseService(repos.Purchase, records, logger),
		Import:   NewImportService(repos.Purchase, records, logger),
		Analysis: NewAnalysisService(repos.Purchase, records),
	}
}

// loadRecords serves the full record set through the cache: cache hit
// within the TTL, otherwise one store read that refills the cache.
func loadRecords(ctx context.Context, repo *repository.PurchaseRepository, records *cache.Records) ([]entity.PurchaseRecord, error) {
	if cached, ok := records.Get(); ok {
		return cached, nil
	}
	all, err := repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	records.Put(all)
	return all, nil
}
