package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/jmrehder/einkauf2/internal/einkauf/cache"
	"github.com/jmrehder/einkauf2/internal/einkauf/entity"
	"github.com/jmrehder/einkauf2/internal/einkauf/repository"
)

// ValidationError rejects a manual entry with a field-specific message.
// Nothing is written when validation fails.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// CreatePurchaseInput is one manually entered purchase record.
type CreatePurchaseInput struct {
	MaterialCode   string          `json:"material_code" validate:"required"`
	MaterialText   string          `json:"material_text" validate:"required"`
	Plant          string          `json:"plant" validate:"required"`
	CostCenter     string          `json:"cost_center" validate:"required"`
	CostCenterDesc string          `json:"cost_center_desc" validate:"required"`
	Quantity       decimal.Decimal `json:"quantity"`
	UnitPrice      decimal.Decimal `json:"unit_price"`
	MaterialGroup  string          `json:"material_group" validate:"required"`
	FiscalYear     int             `json:"fiscal_year" validate:"required"`
	FiscalMonth    int             `json:"fiscal_month" validate:"required,min=1,max=12"`
	Supplier       string          `json:"supplier" validate:"required"`
}

// PurchaseService covers manual entry, listing, and deletion.
type PurchaseService struct {
	repo     *repository.PurchaseRepository
	records  *cache.Records
	validate *validator.Validate
	logger   *zap.Logger
}

func NewPurchaseService(repo *repository.PurchaseRepository, records *cache.Records, logger *zap.Logger) *PurchaseService {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &PurchaseService{repo: repo, records: records, validate: v, logger: logger}
}

// Create validates and inserts one record: all string fields non-empty,
// quantity and unit price strictly positive, fiscal month 1-12. The
// stored record comes back with id and creation timestamp assigned.
func (s *PurchaseService) Create(ctx context.Context, in *CreatePurchaseInput) (*entity.PurchaseRecord, error) {
	trimmed := *in
	trimmed.MaterialCode = strings.TrimSpace(in.MaterialCode)
	trimmed.MaterialText = strings.TrimSpace(in.MaterialText)
	trimmed.Plant = strings.TrimSpace(in.Plant)
	trimmed.CostCenter = strings.TrimSpace(in.CostCenter)
	trimmed.CostCenterDesc = strings.TrimSpace(in.CostCenterDesc)
	trimmed.MaterialGroup = strings.TrimSpace(in.MaterialGroup)
	trimmed.Supplier = strings.TrimSpace(in.Supplier)

	if err := s.validateInput(&trimmed); err != nil {
		return nil, err
	}

	record := &entity.PurchaseRecord{
		MaterialCode:   trimmed.MaterialCode,
		MaterialText:   trimmed.MaterialText,
		Plant:          trimmed.Plant,
		CostCenter:     trimmed.CostCenter,
		CostCenterDesc: trimmed.CostCenterDesc,
		Quantity:       trimmed.Quantity,
		UnitPrice:      trimmed.UnitPrice,
		MaterialGroup:  trimmed.MaterialGroup,
		FiscalYear:     trimmed.FiscalYear,
		FiscalMonth:    trimmed.FiscalMonth,
		Supplier:       trimmed.Supplier,
	}
	if err := s.repo.Create(ctx, record); err != nil {
		return nil, fmt.Errorf("insert record: %w", err)
	}
	s.records.Invalidate()

	s.logger.Info("purchase record created",
		zap.Int64("id", record.ID),
		zap.String("material_code", record.MaterialCode),
		zap.String("cost_center", record.CostCenter))
	return record, nil
}

func (s *PurchaseService) validateInput(in *CreatePurchaseInput) error {
	if err := s.validate.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			switch fe.Tag() {
			case "required":
				return &ValidationError{Message: fmt.Sprintf("%s is required", fe.Field())}
			case "min", "max":
				return &ValidationError{Message: fmt.Sprintf("%s must be between 1 and 12", fe.Field())}
			}
			return &ValidationError{Message: fmt.Sprintf("%s is invalid", fe.Field())}
		}
		return err
	}
	if !in.Quantity.IsPositive() {
		return &ValidationError{Message: "quantity must be greater than zero"}
	}
	if !in.UnitPrice.IsPositive() {
		return &ValidationError{Message: "unit_price must be greater than zero"}
	}
	return nil
}

// List returns the full record set through the cache.
func (s *PurchaseService) List(ctx context.Context) ([]entity.PurchaseRecord, error) {
	return loadRecords(ctx, s.repo, s.records)
}

// Page slices the cached record set. Total is the unpaginated count.
func (s *PurchaseService) Page(ctx context.Context, page, pageSize int) ([]entity.PurchaseRecord, int, error) {
	all, err := loadRecords(ctx, s.repo, s.records)
	if err != nil {
		return nil, 0, err
	}
	start := (page - 1) * pageSize
	if start >= len(all) {
		return []entity.PurchaseRecord{}, len(all), nil
	}
	end := start + pageSize
	if end > len(all) {
		end = len(all)
	}
	return all[start:end], len(all), nil
}

// Get returns one record by id, repository.ErrNotFound when absent.
func (s *PurchaseService) Get(ctx context.Context, id int64) (*entity.PurchaseRecord, error) {
	return s.repo.FindByID(ctx, id)
}

// Delete removes one record by id. A nonexistent id is a silent no-op,
// reported as success.
func (s *PurchaseService) Delete(ctx context.Context, id int64) error {
	if err := s.repo.DeleteByID(ctx, id); err != nil {
		return fmt.Errorf("delete record %d: %w", id, err)
	}
	s.records.Invalidate()
	s.logger.Info("purchase record deleted", zap.Int64("id", id))
	return nil
}

// Count returns the stored record count.
func (s *PurchaseService) Count(ctx context.Context) (int64, error) {
	return s.repo.Count(ctx)
}
