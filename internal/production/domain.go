package production

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Work order lifecycle statuses.
type Status string

const (
	StatusUnconfirmed Status = "UNCONFIRMED"
	StatusForecast    Status = "FORECAST"
	StatusInProgress  Status = "IN_PROGRESS"
	StatusCompleted   Status = "COMPLETED"
	StatusCancelled   Status = "CANCELLED"
)

// WorkOrder is one production run of a product. Completing it is the only
// transition that consumes stock.
type WorkOrder struct {
	ID              int64            `json:"id"`
	Number          string           `json:"number"`
	ProductID       int64            `json:"product_id"`
	ProductName     string           `json:"product_name,omitempty"`
	Status          Status           `json:"status"`
	TargetQuantity  decimal.Decimal  `json:"target_quantity"`
	ActualQuantity  *decimal.Decimal `json:"actual_quantity,omitempty"`
	FragranceID     *int64           `json:"fragrance_id,omitempty"`
	FragranceDose   decimal.Decimal  `json:"fragrance_dose"`
	Note            string           `json:"note"`
	CreatedBy       int64            `json:"created_by"`
	CompletedBy     *int64           `json:"completed_by,omitempty"`
	CompletedByName string           `json:"completed_by_name,omitempty"`
	CompletedAt     *time.Time       `json:"completed_at,omitempty"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
	Components      []Component      `json:"components,omitempty"`
}

// Component is one planned material consumption. UsedQty, when recorded
// before completion, wins over the scaled planned quantity.
type Component struct {
	ID           int64            `json:"id"`
	WorkOrderID  int64            `json:"work_order_id"`
	MaterialID   int64            `json:"material_id"`
	MaterialCode string           `json:"material_code,omitempty"`
	MaterialName string           `json:"material_name,omitempty"`
	PlannedQty   decimal.Decimal  `json:"planned_qty"`
	UsedQty      *decimal.Decimal `json:"used_qty,omitempty"`
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("production: not found")
	// ErrInvalidState occurs when action violates the status workflow.
	ErrInvalidState = errors.New("production: invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("production: invalid input")
)
