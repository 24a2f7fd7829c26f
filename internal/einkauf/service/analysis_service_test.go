package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/jmrehder/einkauf2/internal/einkauf/cache"
	"github.com/jmrehder/einkauf2/internal/einkauf/entity"
	"github.com/jmrehder/einkauf2/internal/einkauf/repository"
	"github.com/jmrehder/einkauf2/internal/einkauf/testutil"
)

func analysisRecords() []entity.PurchaseRecord {
	return []entity.PurchaseRecord{
		{
			MaterialCode: "A1", CostCenterDesc: "Station 3A", MaterialGroup: "Hygienebedarf",
			Supplier: "Hartmann",
			Quantity: decimal.RequireFromString("10"), UnitPrice: decimal.RequireFromString("2.5"),
		},
		{
			MaterialCode: "B2", CostCenterDesc: "Station 3B", MaterialGroup: "Verbandstoffe",
			Supplier: "Medline",
			Quantity: decimal.RequireFromString("4"), UnitPrice: decimal.RequireFromString("0.5"),
		},
		{
			MaterialCode: "A1", CostCenterDesc: "Station 3A", MaterialGroup: "Hygienebedarf",
			Supplier: "Hartmann",
			Quantity: decimal.RequireFromString("2"), UnitPrice: decimal.RequireFromString("3"),
		},
	}
}

func TestComputeSummary(t *testing.T) {
	s := ComputeSummary(analysisRecords(), Filters{})

	// 10*2.5 + 4*0.5 + 2*3 = 33 over quantity 16.
	if !s.TotalCost.Equal(decimal.RequireFromString("33")) {
		t.Errorf("expected total cost 33, got %s", s.TotalCost)
	}
	if s.ArticleCount != 2 {
		t.Errorf("expected 2 distinct articles, got %d", s.ArticleCount)
	}
	if !s.AvgUnitPrice.Equal(decimal.RequireFromString("2.0625")) {
		t.Errorf("expected volume-weighted average 2.0625, got %s", s.AvgUnitPrice)
	}
	if s.RecordCount != 3 {
		t.Errorf("expected 3 records counted, got %d", s.RecordCount)
	}
}

func TestComputeSummarySkipsEmptyMaterialCode(t *testing.T) {
	records := []entity.PurchaseRecord{
		{MaterialCode: "A1", Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("1")},
		{MaterialCode: "", Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("5")},
	}
	s := ComputeSummary(records, Filters{})

	if s.ArticleCount != 1 {
		t.Errorf("expected empty material code excluded from article count, got %d", s.ArticleCount)
	}
	if !s.TotalCost.Equal(decimal.RequireFromString("6")) {
		t.Errorf("expected cost of both records counted, got %s", s.TotalCost)
	}
}

func TestComputeSummaryZeroQuantitySum(t *testing.T) {
	records := []entity.PurchaseRecord{
		{MaterialCode: "A1", Quantity: decimal.Zero, UnitPrice: decimal.RequireFromString("5")},
	}
	s := ComputeSummary(records, Filters{})

	if !s.AvgUnitPrice.IsZero() {
		t.Errorf("expected average 0 for zero quantity sum, got %s", s.AvgUnitPrice)
	}
}

func TestComputeSummaryEmptySet(t *testing.T) {
	s := ComputeSummary(nil, Filters{})
	if !s.TotalCost.IsZero() || s.ArticleCount != 0 || !s.AvgUnitPrice.IsZero() || s.RecordCount != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
}

func TestFilterRecords(t *testing.T) {
	records := analysisRecords()

	// Fields combine with AND.
	got := FilterRecords(records, Filters{
		CostCenterDescs: []string{"Station 3A"},
		Suppliers:       []string{"Medline"},
	})
	if len(got) != 0 {
		t.Errorf("expected AND across fields to match nothing, got %d", len(got))
	}

	// Values within one field combine with OR.
	got = FilterRecords(records, Filters{
		Suppliers: []string{"Hartmann", "Medline"},
	})
	if len(got) != 3 {
		t.Errorf("expected all records for both suppliers, got %d", len(got))
	}

	got = FilterRecords(records, Filters{
		CostCenterDescs: []string{"Station 3A"},
		MaterialGroups:  []string{"Hygienebedarf"},
		Suppliers:       []string{"Hartmann"},
	})
	if len(got) != 2 {
		t.Errorf("expected 2 matching records, got %d", len(got))
	}

	// Empty filter set matches everything.
	got = FilterRecords(records, Filters{})
	if len(got) != 3 {
		t.Errorf("expected empty filters to match all, got %d", len(got))
	}
}

func TestFilteredSummary(t *testing.T) {
	s := ComputeSummary(analysisRecords(), Filters{Suppliers: []string{"Medline"}})

	if s.RecordCount != 1 {
		t.Errorf("expected 1 record, got %d", s.RecordCount)
	}
	if !s.TotalCost.Equal(decimal.RequireFromString("2")) {
		t.Errorf("expected total cost 2, got %s", s.TotalCost)
	}
	if !s.AvgUnitPrice.Equal(decimal.RequireFromString("0.5")) {
		t.Errorf("expected average 0.5, got %s", s.AvgUnitPrice)
	}
}

func TestComputeFilterOptions(t *testing.T) {
	records := append(analysisRecords(), entity.PurchaseRecord{
		MaterialCode: "C3", CostCenterDesc: "", MaterialGroup: "Hygienebedarf", Supplier: "Braun",
		Quantity: decimal.RequireFromString("1"), UnitPrice: decimal.RequireFromString("1"),
	})

	opts := ComputeFilterOptions(records)

	wantDescs := []string{"Station 3A", "Station 3B"}
	if len(opts.CostCenterDescs) != len(wantDescs) {
		t.Fatalf("expected %v, got %v", wantDescs, opts.CostCenterDescs)
	}
	for i, w := range wantDescs {
		if opts.CostCenterDescs[i] != w {
			t.Errorf("expected sorted distinct descriptions %v, got %v", wantDescs, opts.CostCenterDescs)
			break
		}
	}

	wantSuppliers := []string{"Braun", "Hartmann", "Medline"}
	for i, w := range wantSuppliers {
		if opts.Suppliers[i] != w {
			t.Errorf("expected sorted suppliers %v, got %v", wantSuppliers, opts.Suppliers)
			break
		}
	}

	if len(opts.MaterialGroups) != 2 {
		t.Errorf("expected 2 distinct material groups, got %v", opts.MaterialGroups)
	}
}

// The analysis view reads through the cache: inside the TTL it serves
// the memoized set, after invalidation it refills from the store.
func TestAnalysisServiceReadsThroughCache(t *testing.T) {
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)
	records := cache.NewRecords(time.Minute)
	svc := NewAnalysisService(repos.Purchase, records)

	testutil.SeedPurchase(t, db, "12345678", "100010", 2025, 5, "10", "2.5")

	s, err := svc.Summary(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if s.RecordCount != 1 {
		t.Fatalf("expected 1 record, got %d", s.RecordCount)
	}

	// A write bypassing invalidation stays invisible until the cache is
	// dropped.
	testutil.SeedPurchase(t, db, "87654321", "100020", 2025, 5, "1", "1")

	s, err = svc.Summary(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if s.RecordCount != 1 {
		t.Errorf("expected cached read to miss the new record, got %d", s.RecordCount)
	}

	records.Invalidate()

	s, err = svc.Summary(context.Background(), Filters{})
	if err != nil {
		t.Fatalf("summary failed: %v", err)
	}
	if s.RecordCount != 2 {
		t.Errorf("expected refill to see both records, got %d", s.RecordCount)
	}
}
