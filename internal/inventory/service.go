package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/essentia-erp/essentia-erp/internal/shared"
)

// TxRepository exposes the operations available inside the commit phase.
// The underlying transaction allows no queries, only reads by known id, and
// the protocol issues every read before its first write.
type TxRepository interface {
	GetDocumentStatus(ctx context.Context, module string, id int64) (string, error)
	SetDocumentStatus(ctx context.Context, module string, id int64, status string, op shared.Operator, at time.Time) error
	GetItemForUpdate(ctx context.Context, itemType ItemType, id int64) (Item, error)
	UpdateItemStock(ctx context.Context, itemType ItemType, id int64, newStock decimal.Decimal, at time.Time) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	InsertRecord(ctx context.Context, record Record) (int64, error)
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	ResolveReader
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error)
	ListRecords(ctx context.Context, filter RecordFilter) ([]Record, int, error)
	ListRecordsWithLines(ctx context.Context, filter RecordFilter) ([]Record, error)
	GetRecord(ctx context.Context, id int64) (Record, error)
	UpdateRecordRemarks(ctx context.Context, id int64, remarks string) error
	ListBelowSafetyStock(ctx context.Context) ([]Item, error)
}

// AuditPort abstracts coarse audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MovementFilter filters movement listings.
type MovementFilter struct {
	ItemType ItemType
	ItemID   int64
	Type     MovementType
	Page     int
	PerPage  int
}

// RecordFilter filters record listings.
type RecordFilter struct {
	Type    MovementType
	From    time.Time
	To      time.Time
	Page    int
	PerPage int
}

// Service implements the transactional stock-update protocol. Every stock
// mutation in the system funnels through it.
type Service struct {
	repo     RepositoryPort
	resolver *Resolver
	audit    AuditPort
	policy   Policy
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, policy Policy) *Service {
	return &Service{repo: repo, resolver: NewResolver(repo), audit: audit, policy: policy}
}

// Resolver exposes the resolution pre-pass for callers that accept
// code-based references.
func (s *Service) Resolver() *Resolver {
	return s.resolver
}

// ApplyInput describes one logical stock-update operation.
type ApplyInput struct {
	Doc          DocumentRef
	ExpectStatus []string
	FinalStatus  string
	Type         MovementType
	Deltas       []Delta
	Operator     shared.Operator
	Reason       string
	Remarks      string
}

// ItemMutation reports one item's applied change back to the caller.
type ItemMutation struct {
	ItemID         int64           `json:"item_id"`
	ItemType       ItemType        `json:"item_type"`
	ItemCode       string          `json:"item_code"`
	QuantityChange decimal.Decimal `json:"quantity_change"`
	NewStock       decimal.Decimal `json:"new_stock"`
}

// Apply runs the protocol in its own transaction.
func (s *Service) Apply(ctx context.Context, input ApplyInput) ([]ItemMutation, error) {
	if err := validateApply(input); err != nil {
		return nil, err
	}
	var mutations []ItemMutation
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		mutations, err = s.ApplyIn(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.recordAudit(ctx, input, mutations)
	return mutations, nil
}

// ApplyIn runs the protocol body inside an already-open transaction, letting
// a caller compose its own writes (marking received quantities, stamping
// completion fields) into the same commit. The body performs all reads
// before the first write and is safe to re-run from the top on conflict.
func (s *Service) ApplyIn(ctx context.Context, tx TxRepository, input ApplyInput) ([]ItemMutation, error) {
	if err := validateApply(input); err != nil {
		return nil, err
	}
	now := time.Now().UTC()

	if !input.Doc.IsZero() {
		status, err := tx.GetDocumentStatus(ctx, input.Doc.Module, input.Doc.ID)
		if err != nil {
			return nil, err
		}
		if !statusIn(status, input.ExpectStatus) {
			return nil, fmt.Errorf("%w: %s %d is %q", ErrPreconditionFailed, input.Doc.Module, input.Doc.ID, status)
		}
	}

	// Read phase: every distinct item exactly once. Once a write starts no
	// further read may be issued, so missing items must surface here.
	seen := make(map[deltaKey]bool, len(input.Deltas))
	items := make(map[deltaKey]Item, len(input.Deltas))
	running := make(map[deltaKey]decimal.Decimal, len(input.Deltas))
	var missing []ItemRef
	for _, d := range input.Deltas {
		key := deltaKey{itemType: d.ItemType, itemID: d.ItemID}
		if seen[key] {
			continue
		}
		seen[key] = true
		item, err := tx.GetItemForUpdate(ctx, d.ItemType, d.ItemID)
		if err != nil {
			if errors.Is(err, ErrItemNotFound) {
				missing = append(missing, ItemRef{Type: d.ItemType, ID: d.ItemID})
				continue
			}
			return nil, err
		}
		items[key] = item
		running[key] = Round3(item.CurrentStock)
	}
	if len(missing) > 0 {
		return nil, &UnresolvedError{Refs: missing}
	}

	// Deltas referencing one item chain off its running stock, so each
	// line's before is the previous line's after and the movements sum to
	// the item's total change.
	lines := make([]appliedLine, 0, len(input.Deltas))
	for _, d := range input.Deltas {
		key := deltaKey{itemType: d.ItemType, itemID: d.ItemID}
		item := items[key]
		before := running[key]
		after, change, err := applyDelta(before, d.Qty, d.Direction, s.policy)
		if err != nil {
			return nil, fmt.Errorf("%s %s: %w", d.ItemType, item.Code, err)
		}
		running[key] = after
		if change.IsZero() {
			continue
		}
		lines = append(lines, appliedLine{item: item, before: before, change: change, after: after})
	}

	// Write phase.
	mutations := make([]ItemMutation, 0, len(lines))
	for _, line := range lines {
		if err := tx.UpdateItemStock(ctx, line.item.Type, line.item.ID, line.after, now); err != nil {
			return nil, err
		}
		if _, err := tx.InsertMovement(ctx, buildMovement(line, input.Type, input.Doc, input.Reason, now)); err != nil {
			return nil, err
		}
		mutations = append(mutations, ItemMutation{
			ItemID:         line.item.ID,
			ItemType:       line.item.Type,
			ItemCode:       line.item.Code,
			QuantityChange: line.change,
			NewStock:       line.after,
		})
	}
	if len(lines) > 0 {
		record := buildRecord(lines, input.Type, input.Reason, input.Operator, input.Remarks, input.Doc, now)
		if _, err := tx.InsertRecord(ctx, record); err != nil {
			return nil, err
		}
	}
	if !input.Doc.IsZero() && input.FinalStatus != "" {
		if err := tx.SetDocumentStatus(ctx, input.Doc.Module, input.Doc.ID, input.FinalStatus, input.Operator, now); err != nil {
			return nil, err
		}
	}
	return mutations, nil
}

// AdjustInput describes a single-item manual correction.
type AdjustInput struct {
	Ref       ItemRef
	Qty       decimal.Decimal
	Direction Direction
	Reason    string
	Remarks   string
	Operator  shared.Operator
}

// ManualAdjust applies one strict, all-or-nothing adjustment.
func (s *Service) ManualAdjust(ctx context.Context, input AdjustInput) (ItemMutation, error) {
	if !input.Qty.IsPositive() {
		return ItemMutation{}, ErrInvalidQuantity
	}
	if input.Direction != DirectionAdd && input.Direction != DirectionSubtract {
		return ItemMutation{}, fmt.Errorf("inventory: unknown direction %q", input.Direction)
	}
	res, err := s.resolver.Resolve(ctx, []ItemRef{input.Ref})
	if err != nil {
		return ItemMutation{}, err
	}
	if len(res.Failed) > 0 {
		return ItemMutation{}, &UnresolvedError{Refs: res.Failed}
	}
	item := res.Items[0]
	mutations, err := s.Apply(ctx, ApplyInput{
		Type:     MovementManualAdjust,
		Deltas:   []Delta{{ItemID: item.ID, ItemType: item.Type, Qty: input.Qty, Direction: input.Direction, Reason: input.Reason}},
		Operator: input.Operator,
		Reason:   input.Reason,
		Remarks:  input.Remarks,
	})
	if err != nil {
		return ItemMutation{}, err
	}
	if len(mutations) == 0 {
		// Clamped to a no-op: stock was already zero.
		return ItemMutation{ItemID: item.ID, ItemType: item.Type, ItemCode: item.Code, NewStock: Round3(item.CurrentStock)}, nil
	}
	return mutations[0], nil
}

// QuickLine is one stocktake line: the item and its counted quantity.
type QuickLine struct {
	Ref         ItemRef
	NewQuantity decimal.Decimal
}

// QuickFailure reports one line that could not be applied.
type QuickFailure struct {
	Ref    ItemRef `json:"ref"`
	Reason string  `json:"reason"`
}

// QuickUpdateResult is the mixed outcome of a lenient batch.
type QuickUpdateResult struct {
	Successful []ItemMutation `json:"successful"`
	Failed     []QuickFailure `json:"failed"`
}

// QuickUpdate applies a stocktake batch leniently: each resolvable line is
// committed in its own transaction and failures are reported alongside the
// successes instead of aborting the batch. One record summarizes the lines
// that actually changed stock.
func (s *Service) QuickUpdate(ctx context.Context, lines []QuickLine, operator shared.Operator, remarks string) (QuickUpdateResult, error) {
	var result QuickUpdateResult
	if len(lines) == 0 {
		return result, ErrInvalidQuantity
	}

	refs := make([]ItemRef, 0, len(lines))
	targets := make(map[string]decimal.Decimal, len(lines))
	for _, line := range lines {
		if line.NewQuantity.IsNegative() {
			result.Failed = append(result.Failed, QuickFailure{Ref: line.Ref, Reason: "quantity must not be negative"})
			continue
		}
		refs = append(refs, line.Ref)
		targets[line.Ref.String()] = Round3(line.NewQuantity)
	}
	res, err := s.resolver.Resolve(ctx, refs)
	if err != nil {
		return QuickUpdateResult{}, err
	}
	for _, ref := range res.Failed {
		result.Failed = append(result.Failed, QuickFailure{Ref: ref, Reason: "item not found"})
	}

	now := time.Now().UTC()
	var applied []appliedLine
	for _, item := range res.Items {
		target, ok := lookupTarget(targets, item)
		if !ok {
			continue
		}
		line := appliedLine{}
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			current, err := tx.GetItemForUpdate(ctx, item.Type, item.ID)
			if err != nil {
				return err
			}
			before := Round3(current.CurrentStock)
			change := target.Sub(before)
			line = appliedLine{item: current, before: before, change: change, after: target}
			if change.IsZero() {
				return nil
			}
			if err := tx.UpdateItemStock(ctx, current.Type, current.ID, target, now); err != nil {
				return err
			}
			_, err = tx.InsertMovement(ctx, buildMovement(line, MovementQuickUpdate, DocumentRef{}, "stocktake", now))
			return err
		})
		if err != nil {
			result.Failed = append(result.Failed, QuickFailure{Ref: ItemRef{Type: item.Type, ID: item.ID, Code: item.Code}, Reason: err.Error()})
			continue
		}
		result.Successful = append(result.Successful, ItemMutation{
			ItemID:         line.item.ID,
			ItemType:       line.item.Type,
			ItemCode:       line.item.Code,
			QuantityChange: line.change,
			NewStock:       line.after,
		})
		if !line.change.IsZero() {
			applied = append(applied, line)
		}
	}

	if len(applied) > 0 {
		record := buildRecord(applied, MovementQuickUpdate, "stocktake", operator, remarks, DocumentRef{}, now)
		err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
			_, err := tx.InsertRecord(ctx, record)
			return err
		})
		if err != nil {
			return QuickUpdateResult{}, err
		}
	}
	if s.audit != nil && len(result.Successful) > 0 {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:   operator.ID,
			ActorName: operator.Name,
			Action:    "inventory:quick_update",
			Entity:    "inventory",
			EntityID:  fmt.Sprintf("batch:%d", len(result.Successful)),
			Meta:      map[string]any{"successful": len(result.Successful), "failed": len(result.Failed)},
		})
	}
	return result, nil
}

// ListMovements lists movement rows for an item.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	if !filter.ItemType.Valid() || filter.ItemID == 0 {
		return nil, 0, errors.New("inventory: item type and id required")
	}
	return s.repo.ListMovements(ctx, filter)
}

// ListRecords lists audit records.
func (s *Service) ListRecords(ctx context.Context, filter RecordFilter) ([]Record, int, error) {
	return s.repo.ListRecords(ctx, filter)
}

// ExportRecords loads records with lines in bulk for the CSV export.
func (s *Service) ExportRecords(ctx context.Context, filter RecordFilter) ([]Record, error) {
	return s.repo.ListRecordsWithLines(ctx, filter)
}

// GetRecord fetches one record with its lines.
func (s *Service) GetRecord(ctx context.Context, id int64) (Record, error) {
	return s.repo.GetRecord(ctx, id)
}

// UpdateRecordRemarks is the only permitted mutation of a record.
func (s *Service) UpdateRecordRemarks(ctx context.Context, id int64, remarks string, operator shared.Operator) error {
	if err := s.repo.UpdateRecordRemarks(ctx, id, remarks); err != nil {
		return err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:   operator.ID,
			ActorName: operator.Name,
			Action:    "inventory:record_remarks",
			Entity:    "inventory_record",
			EntityID:  fmt.Sprintf("%d", id),
		})
	}
	return nil
}

// ListBelowSafetyStock lists items under their safety stock level.
func (s *Service) ListBelowSafetyStock(ctx context.Context) ([]Item, error) {
	return s.repo.ListBelowSafetyStock(ctx)
}

func (s *Service) recordAudit(ctx context.Context, input ApplyInput, mutations []ItemMutation) {
	if s.audit == nil {
		return
	}
	entityID := string(input.Type)
	if !input.Doc.IsZero() {
		entityID = fmt.Sprintf("%s:%d", input.Doc.Module, input.Doc.ID)
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:   input.Operator.ID,
		ActorName: input.Operator.Name,
		Action:    fmt.Sprintf("inventory:%s", input.Type),
		Entity:    "inventory",
		EntityID:  entityID,
		Meta:      map[string]any{"items": len(mutations), "reason": input.Reason},
	})
}

// deltaKey identifies one stock-bearing row within a delta set.
type deltaKey struct {
	itemType ItemType
	itemID   int64
}

func validateApply(input ApplyInput) error {
	// An operation whose lines all net to zero still carries its document
	// transition; only documentless operations need at least one delta.
	if len(input.Deltas) == 0 && (input.Doc.IsZero() || input.FinalStatus == "") {
		return fmt.Errorf("%w: at least one delta required", ErrInvalidQuantity)
	}
	for _, d := range input.Deltas {
		if !d.ItemType.Valid() || d.ItemID == 0 {
			return fmt.Errorf("inventory: delta requires item type and id")
		}
		if !d.Qty.IsPositive() {
			return ErrInvalidQuantity
		}
		if d.Direction != DirectionAdd && d.Direction != DirectionSubtract {
			return fmt.Errorf("inventory: unknown direction %q", d.Direction)
		}
	}
	return nil
}

func statusIn(status string, expected []string) bool {
	for _, s := range expected {
		if s == status {
			return true
		}
	}
	return false
}

func lookupTarget(targets map[string]decimal.Decimal, item Item) (decimal.Decimal, bool) {
	if t, ok := targets[ItemRef{Type: item.Type, ID: item.ID}.String()]; ok {
		return t, true
	}
	t, ok := targets[ItemRef{Type: item.Type, Code: item.Code}.String()]
	return t, ok
}
