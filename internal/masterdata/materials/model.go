package materials

import (
	"time"

	"github.com/shopspring/decimal"
)

// Material is a stock-bearing raw material. CurrentStock and LastStockUpdate
// are owned by the inventory protocol and are read-only here.
type Material struct {
	ID               int64           `json:"id"`
	Code             string          `json:"code"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	CurrentStock     decimal.Decimal `json:"current_stock"`
	SafetyStockLevel decimal.Decimal `json:"safety_stock_level"`
	CostPerUnit      decimal.Decimal `json:"cost_per_unit"`
	SupplierID       *int64          `json:"supplier_id,omitempty"`
	Remarks          string          `json:"remarks"`
	LastStockUpdate  *time.Time      `json:"last_stock_update,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}
