package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ItemType enumerates the stock-bearing item kinds.
type ItemType string

const (
	// ItemTypeMaterial is a raw material.
	ItemTypeMaterial ItemType = "material"
	// ItemTypeFragrance is a compounded fragrance.
	ItemTypeFragrance ItemType = "fragrance"
)

// Valid reports whether the item type is known.
func (t ItemType) Valid() bool {
	return t == ItemTypeMaterial || t == ItemTypeFragrance
}

// MovementType tags the business cause of a stock delta.
type MovementType string

const (
	// MovementPurchaseInbound is stock received against a purchase order.
	MovementPurchaseInbound MovementType = "purchase_inbound"
	// MovementWorkOrder is stock consumed by a completed work order.
	MovementWorkOrder MovementType = "workorder"
	// MovementManualAdjust is a single-item manual correction.
	MovementManualAdjust MovementType = "manual_adjust"
	// MovementQuickUpdate is a batch stocktake correction.
	MovementQuickUpdate MovementType = "quick_update"
)

// Direction states whether a delta adds to or subtracts from stock.
type Direction string

const (
	DirectionAdd      Direction = "add"
	DirectionSubtract Direction = "subtract"
)

// Item is the stock-bearing view of a material or fragrance document.
// CurrentStock is mutated only through the protocol in this package.
type Item struct {
	ID               int64
	Type             ItemType
	Code             string
	Name             string
	Unit             string
	CurrentStock     decimal.Decimal
	SafetyStockLevel decimal.Decimal
	CostPerUnit      decimal.Decimal
	LastStockUpdate  time.Time
}

// Movement is an immutable single-item stock delta record.
type Movement struct {
	ID        int64
	ItemType  ItemType
	ItemID    int64
	Type      MovementType
	Qty       decimal.Decimal
	RefModule string
	RefID     int64
	Remark    string
	CreatedAt time.Time
}

// RecordLine captures one item's before/after within a record.
type RecordLine struct {
	ItemType  ItemType        `json:"item_type"`
	ItemID    int64           `json:"item_id"`
	ItemCode  string          `json:"item_code"`
	ItemName  string          `json:"item_name"`
	QtyBefore decimal.Decimal `json:"qty_before"`
	QtyChange decimal.Decimal `json:"qty_change"`
	QtyAfter  decimal.Decimal `json:"qty_after"`
}

// Record is the immutable audit batch grouping all line deltas caused by one
// logical operation. Only its remarks may be edited after creation.
type Record struct {
	ID           int64
	Type         MovementType
	Reason       string
	OperatorID   int64
	OperatorName string
	Remarks      string
	RefModule    string
	RefID        int64
	CreatedAt    time.Time
	Lines        []RecordLine
}

// ItemRef is a caller-supplied reference to an item: either a concrete
// document id or a human-readable code.
type ItemRef struct {
	Type ItemType `json:"type"`
	ID   int64    `json:"id,omitempty"`
	Code string   `json:"code,omitempty"`
}

func (r ItemRef) String() string {
	if r.ID != 0 {
		return fmt.Sprintf("%s/%d", r.Type, r.ID)
	}
	return fmt.Sprintf("%s/%s", r.Type, r.Code)
}

// Delta is one resolved stock change to apply.
type Delta struct {
	ItemID    int64
	ItemType  ItemType
	Qty       decimal.Decimal
	Direction Direction
	Reason    string
}

// DocumentRef names the causing document whose status transition triggers
// the stock update. A zero ref means the operation has no causing document
// (manual adjustments, quick updates).
type DocumentRef struct {
	Module string
	ID     int64
}

// IsZero reports whether no causing document is attached.
func (d DocumentRef) IsZero() bool {
	return d.Module == "" || d.ID == 0
}

// Causing document modules understood by the repository.
const (
	RefModulePurchaseOrder = "purchase_order"
	RefModuleWorkOrder     = "work_order"
)

// Policy names the subtraction behavior. Clamping at zero instead of
// rejecting insufficient stock is the default; it is a deliberate
// never-block-production rule, switchable for call sites that want strict
// accounting.
type Policy struct {
	ClampAtZero bool
}

// DefaultPolicy clamps subtractions at zero.
func DefaultPolicy() Policy {
	return Policy{ClampAtZero: true}
}

var (
	// ErrPreconditionFailed signals the causing document is not in the
	// expected status. Never retried automatically.
	ErrPreconditionFailed = errors.New("inventory: document not in expected status")
	// ErrItemNotFound indicates a referenced item does not exist.
	ErrItemNotFound = errors.New("inventory: item not found")
	// ErrInvalidQuantity indicates a non-positive quantity.
	ErrInvalidQuantity = errors.New("inventory: quantity must be positive")
	// ErrInsufficientStock is returned on subtraction only when the clamp
	// policy is disabled.
	ErrInsufficientStock = errors.New("inventory: insufficient stock")
	// ErrRecordNotFound indicates a missing inventory record.
	ErrRecordNotFound = errors.New("inventory: record not found")
)

// UnresolvedError aggregates every item reference that could not be
// resolved, so the caller reports all failures in one response.
type UnresolvedError struct {
	Refs []ItemRef
}

func (e *UnresolvedError) Error() string {
	parts := make([]string, 0, len(e.Refs))
	for _, r := range e.Refs {
		parts = append(parts, r.String())
	}
	return "inventory: unresolved items: " + strings.Join(parts, ", ")
}
