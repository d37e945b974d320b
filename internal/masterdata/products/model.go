package products

import (
	"time"

	"github.com/shopspring/decimal"
)

// Product is a finished good. It carries no stock ledger of its own; work
// orders reference it for production runs.
type Product struct {
	ID            int64           `json:"id"`
	Code          string          `json:"code"`
	Name          string          `json:"name"`
	Specification string          `json:"specification"`
	FragranceID   *int64          `json:"fragrance_id,omitempty"`
	FillVolume    decimal.Decimal `json:"fill_volume"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	Remarks       string          `json:"remarks"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
