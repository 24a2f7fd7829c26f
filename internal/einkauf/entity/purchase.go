package entity

import (
	"time"

	"github.com/shopspring/decimal"
)

// PurchaseRecord is one purchased line item, imported from an SAP CSV
// export or entered manually.
type PurchaseRecord struct {
	ID             int64           `json:"id" gorm:"primaryKey;autoIncrement"`
	MaterialCode   string          `json:"material_code" gorm:"size:50;index"`
	MaterialText   string          `json:"material_text" gorm:"size:200"`
	Plant          string          `json:"plant" gorm:"size:20"`
	CostCenter     string          `json:"cost_center" gorm:"size:20;index"`
	CostCenterDesc string          `json:"cost_center_desc" gorm:"size:200"`
	Quantity       decimal.Decimal `json:"quantity" gorm:"type:numeric"`
	UnitPrice      decimal.Decimal `json:"unit_price" gorm:"type:numeric"`
	MaterialGroup  string          `json:"material_group" gorm:"size:100"`
	FiscalYear     int             `json:"fiscal_year" gorm:"index"`
	FiscalMonth    int             `json:"fiscal_month"`
	Supplier       string          `json:"supplier" gorm:"size:200"`
	CreatedAt      time.Time       `json:"created_at"`
}

func (PurchaseRecord) TableName() string {
	return "purchase_records"
}

// PurchaseKey identifies "the same" purchase line across import batches.
// It is deliberately a comparable struct rather than a joined string, so
// key fields containing any separator character cannot collide.
//
// The key is NOT enforced unique by the store: duplicate keys can coexist
// until an import mode that reconciles against them is used.
type PurchaseKey struct {
	MaterialCode string
	CostCenter   string
	FiscalYear   int
	FiscalMonth  int
}

// Key returns the record's business key.
func (r *PurchaseRecord) Key() PurchaseKey {
	return PurchaseKey{
		MaterialCode: r.MaterialCode,
		CostCenter:   r.CostCenter,
		FiscalYear:   r.FiscalYear,
		FiscalMonth:  r.FiscalMonth,
	}
}

// TotalCost is quantity times unit price for this line.
func (r *PurchaseRecord) TotalCost() decimal.Decimal {
	return r.UnitPrice.Mul(r.Quantity)
}
