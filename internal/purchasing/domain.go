package purchasing

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/essentia-erp/essentia-erp/internal/inventory"
)

// Purchase order lifecycle statuses.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusOrdered   Status = "ORDERED"
	StatusReceived  Status = "RECEIVED"
	StatusCancelled Status = "CANCELLED"
)

// PurchaseOrder domain model. Receiving is the only transition that touches
// stock and it runs through the inventory protocol.
type PurchaseOrder struct {
	ID             int64      `json:"id"`
	Number         string     `json:"number"`
	SupplierID     int64      `json:"supplier_id"`
	SupplierName   string     `json:"supplier_name,omitempty"`
	Status         Status     `json:"status"`
	ExpectedDate   *time.Time `json:"expected_date,omitempty"`
	Note           string     `json:"note"`
	CreatedBy      int64      `json:"created_by"`
	ReceivedBy     *int64     `json:"received_by,omitempty"`
	ReceivedByName string     `json:"received_by_name,omitempty"`
	ReceivedAt     *time.Time `json:"received_at,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	Lines          []Line     `json:"lines,omitempty"`
}

// Line is one ordered item. ReceivedQty is written at receive time; it may
// differ from Qty when the delivery is short or over.
type Line struct {
	ID          int64              `json:"id"`
	OrderID     int64              `json:"order_id"`
	ItemType    inventory.ItemType `json:"item_type"`
	ItemID      int64              `json:"item_id"`
	ItemCode    string             `json:"item_code,omitempty"`
	ItemName    string             `json:"item_name,omitempty"`
	Qty         decimal.Decimal    `json:"qty"`
	UnitCost    decimal.Decimal    `json:"unit_cost"`
	ReceivedQty *decimal.Decimal   `json:"received_qty,omitempty"`
}

var (
	// ErrNotFound indicates record missing.
	ErrNotFound = errors.New("purchasing: not found")
	// ErrInvalidState occurs when action violates the status workflow.
	ErrInvalidState = errors.New("purchasing: invalid state transition")
	// ErrValidation indicates invalid input.
	ErrValidation = errors.New("purchasing: invalid input")
)
