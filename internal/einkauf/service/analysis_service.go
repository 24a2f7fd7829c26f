package service

import (
	"context"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/jmrehder/einkauf2/internal/einkauf/cache"
	"github.com/jmrehder/einkauf2/internal/einkauf/entity"
	"github.com/jmrehder/einkauf2/internal/einkauf/repository"
)

// Filters restrict the analyzed record set. Each field is an optional
// set of allowed values; an empty set matches everything for that field,
// and the three fields combine with AND.
type Filters struct {
	CostCenterDescs []string `form:"cost_center_desc" json:"cost_center_descs"`
	MaterialGroups  []string `form:"material_group" json:"material_groups"`
	Suppliers       []string `form:"supplier" json:"suppliers"`
}

// Match reports whether one record passes the filter set.
func (f *Filters) Match(rec *entity.PurchaseRecord) bool {
	return matchSet(f.CostCenterDescs, rec.CostCenterDesc) &&
		matchSet(f.MaterialGroups, rec.MaterialGroup) &&
		matchSet(f.Suppliers, rec.Supplier)
}

func matchSet(allowed []string, value string) bool {
	if len(allowed) == 0 {
		return true
	}
	for _, v := range allowed {
		if v == value {
			return true
		}
	}
	return false
}

// Summary carries the analysis metrics over a filtered record set.
type Summary struct {
	TotalCost    decimal.Decimal `json:"total_cost"`
	ArticleCount int             `json:"article_count"`
	AvgUnitPrice decimal.Decimal `json:"avg_unit_price"`
	RecordCount  int             `json:"record_count"`
}

// FilterRecords returns the records passing the filter set, in input
// order.
func FilterRecords(records []entity.PurchaseRecord, filters Filters) []entity.PurchaseRecord {
	filtered := make([]entity.PurchaseRecord, 0, len(records))
	for i := range records {
		if filters.Match(&records[i]) {
			filtered = append(filtered, records[i])
		}
	}
	return filtered
}

// ComputeSummary computes total cost (Σ unit price × quantity), distinct
// article count, and volume-weighted average unit price (total cost ÷
// Σ quantity, 0 when the quantity sum is 0) over the filtered records.
func ComputeSummary(records []entity.PurchaseRecord, filters Filters) Summary {
	totalCost := decimal.Zero
	quantitySum := decimal.Zero
	articles := make(map[string]struct{})
	count := 0

	for i := range records {
		rec := &records[i]
		if !filters.Match(rec) {
			continue
		}
		count++
		totalCost = totalCost.Add(rec.TotalCost())
		quantitySum = quantitySum.Add(rec.Quantity)
		if rec.MaterialCode != "" {
			articles[rec.MaterialCode] = struct{}{}
		}
	}

	avgPrice := decimal.Zero
	if quantitySum.IsPositive() {
		avgPrice = totalCost.Div(quantitySum)
	}

	return Summary{
		TotalCost:    totalCost,
		ArticleCount: len(articles),
		AvgUnitPrice: avgPrice,
		RecordCount:  count,
	}
}

// FilterOptions lists the selectable values for each filter field:
// sorted distinct non-empty values over the full record set.
type FilterOptions struct {
	CostCenterDescs []string `json:"cost_center_descs"`
	MaterialGroups  []string `json:"material_groups"`
	Suppliers       []string `json:"suppliers"`
}

// ComputeFilterOptions derives the filter options from a record set.
func ComputeFilterOptions(records []entity.PurchaseRecord) FilterOptions {
	return FilterOptions{
		CostCenterDescs: distinctValues(records, func(r *entity.PurchaseRecord) string { return r.CostCenterDesc }),
		MaterialGroups:  distinctValues(records, func(r *entity.PurchaseRecord) string { return r.MaterialGroup }),
		Suppliers:       distinctValues(records, func(r *entity.PurchaseRecord) string { return r.Supplier }),
	}
}

func distinctValues(records []entity.PurchaseRecord, field func(*entity.PurchaseRecord) string) []string {
	seen := make(map[string]struct{})
	values := make([]string, 0)
	for i := range records {
		v := field(&records[i])
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// AnalysisService serves the aggregation view over the cached record
// set.
type AnalysisService struct {
	repo    *repository.PurchaseRepository
	records *cache.Records
}

func NewAnalysisService(repo *repository.PurchaseRepository, records *cache.Records) *AnalysisService {
	return &AnalysisService{repo: repo, records: records}
}

// Summary computes the metrics over the current record set.
func (s *AnalysisService) Summary(ctx context.Context, filters Filters) (*Summary, error) {
	all, err := loadRecords(ctx, s.repo, s.records)
	if err != nil {
		return nil, err
	}
	summary := ComputeSummary(all, filters)
	return &summary, nil
}

// FilteredRecords returns the records passing the filter set.
func (s *AnalysisService) FilteredRecords(ctx context.Context, filters Filters) ([]entity.PurchaseRecord, error) {
	all, err := loadRecords(ctx, s.repo, s.records)
	if err != nil {
		return nil, err
	}
	return FilterRecords(all, filters), nil
}

// FilterOptions returns the selectable filter values.
func (s *AnalysisService) FilterOptions(ctx context.Context) (*FilterOptions, error) {
	all, err := loadRecords(ctx, s.repo, s.records)
	if err != nil {
		return nil, err
	}
	options := ComputeFilterOptions(all)
	return &options, nil
}
