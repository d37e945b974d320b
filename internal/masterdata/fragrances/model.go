package fragrances

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fragrance is a compounded, stock-bearing item. CurrentStock and
// LastStockUpdate are owned by the inventory protocol and read-only here.
type Fragrance struct {
	ID               int64           `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	CurrentStock     decimal.Decimal `json:"current_stock"`
	SafetyStockLevel decimal.Decimal `json:"safety_stock_level"`
	CostPerUnit      decimal.Decimal `json:"cost_per_unit"`
	Remarks          string          `json:"remarks"`
	LastStockUpdate  *time.Time      `json:"last_stock_update,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
	Formula          []Component     `json:"formula,omitempty"`
}

// Component is one material share of the formula, expressed per kilogram of
// compounded fragrance.
type Component struct {
	MaterialID   int64           `json:"material_id"`
	MaterialCode string          `json:"material_code,omitempty"`
	MaterialName string          `json:"material_name,omitempty"`
	QtyPerKg     decimal.Decimal `json:"qty_per_kg"`
}
