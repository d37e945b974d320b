package purchasing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/essentia-erp/essentia-erp/internal/inventory"
	"github.com/essentia-erp/essentia-erp/internal/shared"
)

// TxRepository describes the purchasing writes available inside one
// transaction. Inventory exposes the stock protocol surface over the same
// transaction so a receive commits order fields and stock atomically.
type TxRepository interface {
	CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error)
	NextNumber(ctx context.Context, date time.Time) (string, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	UpdateOrderHeader(ctx context.Context, po PurchaseOrder) error
	DeleteLines(ctx context.Context, orderID int64) error
	SetStatus(ctx context.Context, orderID int64, status Status) error
	SetLineReceived(ctx context.Context, lineID int64, qty decimal.Decimal) error
	Inventory() inventory.TxRepository
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (PurchaseOrder, error)
	List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error)
	Delete(ctx context.Context, id int64) error
}

// InventoryPort is the stock-update protocol surface purchasing composes
// into its own transactions.
type InventoryPort interface {
	ApplyIn(ctx context.Context, tx inventory.TxRepository, input inventory.ApplyInput) ([]inventory.ItemMutation, error)
	Resolver() *inventory.Resolver
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ListFilter filters purchase order listings.
type ListFilter struct {
	Status     Status
	SupplierID int64
	Search     string
	Page       int
	PerPage    int
}

// Service orchestrates purchase order flows.
type Service struct {
	repo        RepositoryPort
	inventory   InventoryPort
	audit       AuditPort
	idempotency *shared.IdempotencyStore
}

// NewService constructs the purchasing service.
func NewService(repo RepositoryPort, inv InventoryPort, audit AuditPort, idem *shared.IdempotencyStore) *Service {
	return &Service{repo: repo, inventory: inv, audit: audit, idempotency: idem}
}

// LineInput describes one ordered item.
type LineInput struct {
	Ref      inventory.ItemRef
	Qty      decimal.Decimal
	UnitCost decimal.Decimal
}

// CreateInput describes a new purchase order.
type CreateInput struct {
	SupplierID   int64
	ExpectedDate *time.Time
	Note         string
	Operator     shared.Operator
	Lines        []LineInput
}

// Create persists a draft order with its lines. Item references are resolved
// up front so the order always stores concrete item ids.
func (s *Service) Create(ctx context.Context, input CreateInput) (PurchaseOrder, error) {
	if input.SupplierID <= 0 || len(input.Lines) == 0 {
		return PurchaseOrder{}, ErrValidation
	}
	items, err := s.resolveLines(ctx, input.Lines)
	if err != nil {
		return PurchaseOrder{}, err
	}

	po := PurchaseOrder{
		SupplierID:   input.SupplierID,
		Status:       StatusDraft,
		ExpectedDate: input.ExpectedDate,
		Note:         input.Note,
		CreatedBy:    input.Operator.ID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		po.Number = number
		id, err := tx.CreateOrder(ctx, po)
		if err != nil {
			return err
		}
		po.ID = id
		for i, line := range input.Lines {
			l := Line{
				OrderID:  id,
				ItemType: items[i].Type,
				ItemID:   items[i].ID,
				Qty:      inventory.Round3(line.Qty),
				UnitCost: line.UnitCost,
			}
			lineID, err := tx.InsertLine(ctx, l)
			if err != nil {
				return err
			}
			l.ID = lineID
			l.ItemCode = items[i].Code
			l.ItemName = items[i].Name
			po.Lines = append(po.Lines, l)
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.Operator, "po:create", po.ID, map[string]any{"number": po.Number})
	return po, nil
}

// Get loads one order with its lines.
func (s *Service) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	return s.repo.Get(ctx, id)
}

// List returns orders matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	return s.repo.List(ctx, filter)
}

// Update replaces the header and lines of a draft order. Orders past DRAFT
// are immutable apart from their status transitions.
func (s *Service) Update(ctx context.Context, id int64, input CreateInput) (PurchaseOrder, error) {
	if input.SupplierID <= 0 || len(input.Lines) == 0 {
		return PurchaseOrder{}, ErrValidation
	}
	po, err := s.repo.Get(ctx, id)
	if err != nil {
		return PurchaseOrder{}, err
	}
	if po.Status != StatusDraft {
		return PurchaseOrder{}, ErrInvalidState
	}
	items, err := s.resolveLines(ctx, input.Lines)
	if err != nil {
		return PurchaseOrder{}, err
	}

	po.SupplierID = input.SupplierID
	po.ExpectedDate = input.ExpectedDate
	po.Note = input.Note
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateOrderHeader(ctx, po); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		po.Lines = nil
		for i, line := range input.Lines {
			l := Line{
				OrderID:  id,
				ItemType: items[i].Type,
				ItemID:   items[i].ID,
				Qty:      inventory.Round3(line.Qty),
				UnitCost: line.UnitCost,
			}
			lineID, err := tx.InsertLine(ctx, l)
			if err != nil {
				return err
			}
			l.ID = lineID
			l.ItemCode = items[i].Code
			l.ItemName = items[i].Name
			po.Lines = append(po.Lines, l)
		}
		return nil
	})
	if err != nil {
		return PurchaseOrder{}, err
	}
	s.recordAudit(ctx, input.Operator, "po:update", id, map[string]any{"number": po.Number})
	return po, nil
}

// Delete removes a draft order.
func (s *Service) Delete(ctx context.Context, id int64, operator shared.Operator) error {
	po, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if po.Status != StatusDraft {
		return ErrInvalidState
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, operator, "po:delete", id, map[string]any{"number": po.Number})
	return nil
}

// MarkOrdered transitions DRAFT to ORDERED.
func (s *Service) MarkOrdered(ctx context.Context, id int64, operator shared.Operator) error {
	return s.transition(ctx, id, operator, "po:order", StatusOrdered, StatusDraft)
}

// Cancel transitions DRAFT or ORDERED to CANCELLED. A received order cannot
// be cancelled; its stock has already moved.
func (s *Service) Cancel(ctx context.Context, id int64, operator shared.Operator) error {
	return s.transition(ctx, id, operator, "po:cancel", StatusCancelled, StatusDraft, StatusOrdered)
}

func (s *Service) transition(ctx context.Context, id int64, operator shared.Operator, action string, to Status, from ...Status) error {
	po, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	allowed := false
	for _, f := range from {
		if po.Status == f {
			allowed = true
		}
	}
	if !allowed {
		return ErrInvalidState
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.SetStatus(ctx, id, to)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, operator, action, id, map[string]any{"number": po.Number, "status": to})
	return nil
}

// ReceiveInput describes a receive call. Overrides map line ids to actually
// received quantities; lines without an override receive the ordered qty.
type ReceiveInput struct {
	OrderID        int64
	Overrides      map[int64]decimal.Decimal
	Operator       shared.Operator
	IdempotencyKey string
}

// Receive books the delivery: every line's quantity is added to stock, the
// order moves ORDERED to RECEIVED and the receiver is stamped, all in one
// transaction. Strictly all-or-nothing; a repeat call fails the in-transaction
// status re-check and changes nothing.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) ([]inventory.ItemMutation, error) {
	po, err := s.repo.Get(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}
	if len(po.Lines) == 0 {
		return nil, fmt.Errorf("%w: order has no lines", ErrValidation)
	}

	if input.IdempotencyKey != "" && s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, input.IdempotencyKey, "purchasing"); err != nil {
			return nil, err
		}
	}

	deltas := make([]inventory.Delta, 0, len(po.Lines))
	received := make(map[int64]decimal.Decimal, len(po.Lines))
	for _, line := range po.Lines {
		qty := line.Qty
		if override, ok := input.Overrides[line.ID]; ok {
			if override.IsNegative() {
				return nil, fmt.Errorf("%w: received qty must not be negative", ErrValidation)
			}
			qty = inventory.Round3(override)
		}
		received[line.ID] = qty
		if qty.IsZero() {
			continue
		}
		deltas = append(deltas, inventory.Delta{
			ItemID:    line.ItemID,
			ItemType:  line.ItemType,
			Qty:       qty,
			Direction: inventory.DirectionAdd,
		})
	}

	var mutations []inventory.ItemMutation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		mutations, err = s.inventory.ApplyIn(ctx, tx.Inventory(), inventory.ApplyInput{
			Doc:          inventory.DocumentRef{Module: inventory.RefModulePurchaseOrder, ID: po.ID},
			ExpectStatus: []string{string(StatusOrdered)},
			FinalStatus:  string(StatusReceived),
			Type:         inventory.MovementPurchaseInbound,
			Deltas:       deltas,
			Operator:     input.Operator,
			Reason:       fmt.Sprintf("receive %s", po.Number),
		})
		if err != nil {
			return err
		}
		for lineID, qty := range received {
			if err := tx.SetLineReceived(ctx, lineID, qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if input.IdempotencyKey != "" && s.idempotency != nil && !errors.Is(err, shared.ErrIdempotencyConflict) {
			_ = s.idempotency.Delete(ctx, input.IdempotencyKey)
		}
		return nil, err
	}
	s.recordAudit(ctx, input.Operator, "po:receive", po.ID, map[string]any{
		"number": po.Number,
		"items":  len(mutations),
	})
	return mutations, nil
}

func (s *Service) resolveLines(ctx context.Context, lines []LineInput) ([]inventory.Item, error) {
	refs := make([]inventory.ItemRef, 0, len(lines))
	for _, line := range lines {
		if !line.Qty.IsPositive() {
			return nil, fmt.Errorf("%w: line qty must be positive", ErrValidation)
		}
		if line.UnitCost.IsNegative() {
			return nil, fmt.Errorf("%w: unit cost must not be negative", ErrValidation)
		}
		refs = append(refs, line.Ref)
	}
	res, err := s.inventory.Resolver().Resolve(ctx, refs)
	if err != nil {
		return nil, err
	}
	if len(res.Failed) > 0 {
		return nil, &inventory.UnresolvedError{Refs: res.Failed}
	}
	return res.Items, nil
}

func (s *Service) recordAudit(ctx context.Context, operator shared.Operator, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   operator.ID,
		ActorName: operator.Name,
		Action:    action,
		Entity:    "purchase_order",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
	})
}
