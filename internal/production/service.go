package production

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/essentia-erp/essentia-erp/internal/inventory"
	"github.com/essentia-erp/essentia-erp/internal/shared"
)

// TxRepository describes production writes available inside one transaction,
// plus the inventory protocol surface over the same transaction.
type TxRepository interface {
	CreateOrder(ctx context.Context, wo WorkOrder) (int64, error)
	NextNumber(ctx context.Context, date time.Time) (string, error)
	InsertComponent(ctx context.Context, c Component) (int64, error)
	UpdateOrderHeader(ctx context.Context, wo WorkOrder) error
	DeleteComponents(ctx context.Context, orderID int64) error
	SetStatus(ctx context.Context, orderID int64, status Status) error
	SetActualQuantity(ctx context.Context, orderID int64, qty decimal.Decimal) error
	SetComponentUsed(ctx context.Context, componentID int64, qty decimal.Decimal) error
	Inventory() inventory.TxRepository
}

// RepositoryPort describes repository operations used by Service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (WorkOrder, error)
	List(ctx context.Context, filter ListFilter) ([]WorkOrder, int, error)
	Delete(ctx context.Context, id int64) error
}

// InventoryPort is the stock-update protocol surface production composes
// into its own transactions.
type InventoryPort interface {
	ApplyIn(ctx context.Context, tx inventory.TxRepository, input inventory.ApplyInput) ([]inventory.ItemMutation, error)
	Resolver() *inventory.Resolver
}

// AuditPort reused from shared.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// ListFilter filters work order listings.
type ListFilter struct {
	Status    Status
	ProductID int64
	Search    string
	Page      int
	PerPage   int
}

// Service orchestrates work order flows.
type Service struct {
	repo      RepositoryPort
	inventory InventoryPort
	audit     AuditPort
}

// NewService constructs the production service.
func NewService(repo RepositoryPort, inv InventoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, inventory: inv, audit: audit}
}

// ComponentInput describes one planned consumption line.
type ComponentInput struct {
	MaterialRef inventory.ItemRef
	PlannedQty  decimal.Decimal
}

// CreateInput describes a new work order.
type CreateInput struct {
	ProductID      int64
	TargetQuantity decimal.Decimal
	FragranceRef   *inventory.ItemRef
	FragranceDose  decimal.Decimal
	Note           string
	Operator       shared.Operator
	Components     []ComponentInput
}

// Create persists an unconfirmed work order with its component plan.
func (s *Service) Create(ctx context.Context, input CreateInput) (WorkOrder, error) {
	if input.ProductID <= 0 || !input.TargetQuantity.IsPositive() {
		return WorkOrder{}, ErrValidation
	}
	materials, fragranceID, err := s.resolvePlan(ctx, input)
	if err != nil {
		return WorkOrder{}, err
	}

	wo := WorkOrder{
		ProductID:      input.ProductID,
		Status:         StatusUnconfirmed,
		TargetQuantity: inventory.Round3(input.TargetQuantity),
		FragranceID:    fragranceID,
		FragranceDose:  inventory.Round3(input.FragranceDose),
		Note:           input.Note,
		CreatedBy:      input.Operator.ID,
	}
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		number, err := tx.NextNumber(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		wo.Number = number
		id, err := tx.CreateOrder(ctx, wo)
		if err != nil {
			return err
		}
		wo.ID = id
		for i, comp := range input.Components {
			c := Component{
				WorkOrderID: id,
				MaterialID:  materials[i].ID,
				PlannedQty:  inventory.Round3(comp.PlannedQty),
			}
			compID, err := tx.InsertComponent(ctx, c)
			if err != nil {
				return err
			}
			c.ID = compID
			c.MaterialCode = materials[i].Code
			c.MaterialName = materials[i].Name
			wo.Components = append(wo.Components, c)
		}
		return nil
	})
	if err != nil {
		return WorkOrder{}, err
	}
	s.recordAudit(ctx, input.Operator, "wo:create", wo.ID, map[string]any{"number": wo.Number})
	return wo, nil
}

// Get loads one work order with components.
func (s *Service) Get(ctx context.Context, id int64) (WorkOrder, error) {
	return s.repo.Get(ctx, id)
}

// List returns work orders matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]WorkOrder, int, error) {
	return s.repo.List(ctx, filter)
}

// Update replaces the plan of an order that has not consumed stock yet.
func (s *Service) Update(ctx context.Context, id int64, input CreateInput) (WorkOrder, error) {
	if input.ProductID <= 0 || !input.TargetQuantity.IsPositive() {
		return WorkOrder{}, ErrValidation
	}
	wo, err := s.repo.Get(ctx, id)
	if err != nil {
		return WorkOrder{}, err
	}
	if wo.Status != StatusUnconfirmed && wo.Status != StatusForecast {
		return WorkOrder{}, ErrInvalidState
	}
	materials, fragranceID, err := s.resolvePlan(ctx, input)
	if err != nil {
		return WorkOrder{}, err
	}

	wo.ProductID = input.ProductID
	wo.TargetQuantity = inventory.Round3(input.TargetQuantity)
	wo.FragranceID = fragranceID
	wo.FragranceDose = inventory.Round3(input.FragranceDose)
	wo.Note = input.Note
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if err := tx.UpdateOrderHeader(ctx, wo); err != nil {
			return err
		}
		if err := tx.DeleteComponents(ctx, id); err != nil {
			return err
		}
		wo.Components = nil
		for i, comp := range input.Components {
			c := Component{
				WorkOrderID: id,
				MaterialID:  materials[i].ID,
				PlannedQty:  inventory.Round3(comp.PlannedQty),
			}
			compID, err := tx.InsertComponent(ctx, c)
			if err != nil {
				return err
			}
			c.ID = compID
			c.MaterialCode = materials[i].Code
			c.MaterialName = materials[i].Name
			wo.Components = append(wo.Components, c)
		}
		return nil
	})
	if err != nil {
		return WorkOrder{}, err
	}
	s.recordAudit(ctx, input.Operator, "wo:update", id, map[string]any{"number": wo.Number})
	return wo, nil
}

// Delete removes an unconfirmed work order.
func (s *Service) Delete(ctx context.Context, id int64, operator shared.Operator) error {
	wo, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if wo.Status != StatusUnconfirmed {
		return ErrInvalidState
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	s.recordAudit(ctx, operator, "wo:delete", id, map[string]any{"number": wo.Number})
	return nil
}

// Confirm transitions UNCONFIRMED to FORECAST.
func (s *Service) Confirm(ctx context.Context, id int64, operator shared.Operator) error {
	return s.transition(ctx, id, operator, "wo:confirm", StatusForecast, StatusUnconfirmed)
}

// Start transitions FORECAST to IN_PROGRESS.
func (s *Service) Start(ctx context.Context, id int64, operator shared.Operator) error {
	return s.transition(ctx, id, operator, "wo:start", StatusInProgress, StatusForecast)
}

// Cancel aborts any order that has not consumed stock.
func (s *Service) Cancel(ctx context.Context, id int64, operator shared.Operator) error {
	return s.transition(ctx, id, operator, "wo:cancel", StatusCancelled,
		StatusUnconfirmed, StatusForecast, StatusInProgress)
}

func (s *Service) transition(ctx context.Context, id int64, operator shared.Operator, action string, to Status, from ...Status) error {
	wo, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	allowed := false
	for _, f := range from {
		if wo.Status == f {
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
	s.recordAudit(ctx, operator, action, id, map[string]any{"number": wo.Number, "status": to})
	return nil
}

// CompleteInput describes a completion call.
type CompleteInput struct {
	OrderID        int64
	ActualQuantity decimal.Decimal
	UsedOverrides  map[int64]decimal.Decimal
	Operator       shared.Operator
}

// Complete books the production run: each component's consumption is
// subtracted from stock (clamped at zero), the fragrance dose scales with the
// actual quantity, and the order moves to COMPLETED with the completer
// stamped. Strictly all-or-nothing; a repeat call fails the in-transaction
// status re-check.
//
// Consumption per component is the recorded used quantity when present,
// otherwise plannedQty scaled by actualQuantity/targetQuantity.
func (s *Service) Complete(ctx context.Context, input CompleteInput) ([]inventory.ItemMutation, error) {
	if !input.ActualQuantity.IsPositive() {
		return nil, fmt.Errorf("%w: actual quantity must be positive", ErrValidation)
	}
	wo, err := s.repo.Get(ctx, input.OrderID)
	if err != nil {
		return nil, err
	}

	actual := inventory.Round3(input.ActualQuantity)
	scale := decimal.NewFromInt(1)
	if wo.TargetQuantity.IsPositive() {
		scale = actual.Div(wo.TargetQuantity)
	}

	used := make(map[int64]decimal.Decimal, len(wo.Components))
	deltas := make([]inventory.Delta, 0, len(wo.Components)+1)
	for _, comp := range wo.Components {
		qty := inventory.Round3(comp.PlannedQty.Mul(scale))
		if comp.UsedQty != nil {
			qty = inventory.Round3(*comp.UsedQty)
		}
		if override, ok := input.UsedOverrides[comp.ID]; ok {
			if override.IsNegative() {
				return nil, fmt.Errorf("%w: used qty must not be negative", ErrValidation)
			}
			qty = inventory.Round3(override)
		}
		used[comp.ID] = qty
		if qty.IsZero() {
			continue
		}
		deltas = append(deltas, inventory.Delta{
			ItemID:    comp.MaterialID,
			ItemType:  inventory.ItemTypeMaterial,
			Qty:       qty,
			Direction: inventory.DirectionSubtract,
		})
	}
	if wo.FragranceID != nil && wo.FragranceDose.IsPositive() {
		deltas = append(deltas, inventory.Delta{
			ItemID:    *wo.FragranceID,
			ItemType:  inventory.ItemTypeFragrance,
			Qty:       inventory.Round3(wo.FragranceDose.Mul(actual)),
			Direction: inventory.DirectionSubtract,
		})
	}
	if len(deltas) == 0 {
		return nil, fmt.Errorf("%w: work order has nothing to consume", ErrValidation)
	}

	var mutations []inventory.ItemMutation
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		mutations, err = s.inventory.ApplyIn(ctx, tx.Inventory(), inventory.ApplyInput{
			Doc:          inventory.DocumentRef{Module: inventory.RefModuleWorkOrder, ID: wo.ID},
			ExpectStatus: []string{string(StatusForecast), string(StatusInProgress)},
			FinalStatus:  string(StatusCompleted),
			Type:         inventory.MovementWorkOrder,
			Deltas:       deltas,
			Operator:     input.Operator,
			Reason:       fmt.Sprintf("complete %s", wo.Number),
		})
		if err != nil {
			return err
		}
		if err := tx.SetActualQuantity(ctx, wo.ID, actual); err != nil {
			return err
		}
		for compID, qty := range used {
			if err := tx.SetComponentUsed(ctx, compID, qty); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, input.Operator, "wo:complete", wo.ID, map[string]any{
		"number": wo.Number,
		"actual": actual.String(),
		"items":  len(mutations),
	})
	return mutations, nil
}

func (s *Service) resolvePlan(ctx context.Context, input CreateInput) ([]inventory.Item, *int64, error) {
	refs := make([]inventory.ItemRef, 0, len(input.Components)+1)
	for _, comp := range input.Components {
		if !comp.PlannedQty.IsPositive() {
			return nil, nil, fmt.Errorf("%w: planned qty must be positive", ErrValidation)
		}
		ref := comp.MaterialRef
		ref.Type = inventory.ItemTypeMaterial
		refs = append(refs, ref)
	}
	if input.FragranceRef != nil {
		if input.FragranceDose.IsNegative() {
			return nil, nil, fmt.Errorf("%w: fragrance dose must not be negative", ErrValidation)
		}
		ref := *input.FragranceRef
		ref.Type = inventory.ItemTypeFragrance
		refs = append(refs, ref)
	}

	res, err := s.inventory.Resolver().Resolve(ctx, refs)
	if err != nil {
		return nil, nil, err
	}
	if len(res.Failed) > 0 {
		return nil, nil, &inventory.UnresolvedError{Refs: res.Failed}
	}
	materials := res.Items[:len(input.Components)]
	var fragranceID *int64
	if input.FragranceRef != nil {
		id := res.Items[len(res.Items)-1].ID
		fragranceID = &id
	}
	return materials, fragranceID, nil
}

func (s *Service) recordAudit(ctx context.Context, operator shared.Operator, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   operator.ID,
		ActorName: operator.Name,
		Action:    action,
		Entity:    "work_order",
		EntityID:  fmt.Sprintf("%d", entityID),
		Meta:      meta,
	})
}
