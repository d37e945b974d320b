package inventory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/essentia-erp/essentia-erp/internal/shared"
)

type memoryRepo struct {
	items          map[string]Item
	docs           map[string]string
	movements      []Movement
	records        []Record
	nextID         int64
	getRecordCalls int
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{items: make(map[string]Item), docs: make(map[string]string)}
}

func itemKey(t ItemType, id int64) string {
	return fmt.Sprintf("%s:%d", t, id)
}

func docKey(module string, id int64) string {
	return fmt.Sprintf("%s:%d", module, id)
}

func (r *memoryRepo) addItem(item Item) {
	r.items[itemKey(item.Type, item.ID)] = item
}

func (r *memoryRepo) GetItem(ctx context.Context, itemType ItemType, id int64) (Item, error) {
	item, ok := r.items[itemKey(itemType, id)]
	if !ok {
		return Item{}, ErrItemNotFound
	}
	return item, nil
}

func (r *memoryRepo) FindItemByCode(ctx context.Context, itemType ItemType, code string) (Item, error) {
	for _, item := range r.items {
		if item.Type == itemType && item.Code == code {
			return item, nil
		}
	}
	return Item{}, ErrItemNotFound
}

func (r *memoryRepo) ListBelowSafetyStock(ctx context.Context) ([]Item, error) {
	var out []Item
	for _, item := range r.items {
		if item.CurrentStock.LessThan(item.SafetyStockLevel) {
			out = append(out, item)
		}
	}
	return out, nil
}

func (r *memoryRepo) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	var out []Movement
	for _, m := range r.movements {
		if m.ItemType == filter.ItemType && m.ItemID == filter.ItemID {
			out = append(out, m)
		}
	}
	return out, len(out), nil
}

func (r *memoryRepo) ListRecords(ctx context.Context, filter RecordFilter) ([]Record, int, error) {
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out, len(out), nil
}

func (r *memoryRepo) ListRecordsWithLines(ctx context.Context, filter RecordFilter) ([]Record, error) {
	out := make([]Record, len(r.records))
	copy(out, r.records)
	return out, nil
}

func (r *memoryRepo) GetRecord(ctx context.Context, id int64) (Record, error) {
	r.getRecordCalls++
	for _, rec := range r.records {
		if rec.ID == id {
			return rec, nil
		}
	}
	return Record{}, ErrRecordNotFound
}

func (r *memoryRepo) UpdateRecordRemarks(ctx context.Context, id int64, remarks string) error {
	for i, rec := range r.records {
		if rec.ID == id {
			r.records[i].Remarks = remarks
			return nil
		}
	}
	return ErrRecordNotFound
}

// memoryTx buffers writes and applies them only when the closure succeeds,
// mirroring the all-or-nothing transaction the real repository provides.
type memoryTx struct {
	repo      *memoryRepo
	stock     map[string]decimal.Decimal
	stockAt   map[string]time.Time
	statuses  map[string]string
	movements []Movement
	records   []Record
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	tx := &memoryTx{
		repo:     r,
		stock:    make(map[string]decimal.Decimal),
		stockAt:  make(map[string]time.Time),
		statuses: make(map[string]string),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for key, qty := range tx.stock {
		item := r.items[key]
		item.CurrentStock = qty
		item.LastStockUpdate = tx.stockAt[key]
		r.items[key] = item
	}
	for key, status := range tx.statuses {
		r.docs[key] = status
	}
	r.movements = append(r.movements, tx.movements...)
	r.records = append(r.records, tx.records...)
	return nil
}

func (tx *memoryTx) GetDocumentStatus(ctx context.Context, module string, id int64) (string, error) {
	status, ok := tx.repo.docs[docKey(module, id)]
	if !ok {
		return "", fmt.Errorf("%w: %s %d", ErrDocumentNotFound, module, id)
	}
	return status, nil
}

func (tx *memoryTx) SetDocumentStatus(ctx context.Context, module string, id int64, status string, op shared.Operator, at time.Time) error {
	tx.statuses[docKey(module, id)] = status
	return nil
}

func (tx *memoryTx) GetItemForUpdate(ctx context.Context, itemType ItemType, id int64) (Item, error) {
	return tx.repo.GetItem(ctx, itemType, id)
}

func (tx *memoryTx) UpdateItemStock(ctx context.Context, itemType ItemType, id int64, newStock decimal.Decimal, at time.Time) error {
	tx.stock[itemKey(itemType, id)] = newStock
	tx.stockAt[itemKey(itemType, id)] = at
	return nil
}

func (tx *memoryTx) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	tx.repo.nextID++
	m.ID = tx.repo.nextID
	tx.movements = append(tx.movements, m)
	return m.ID, nil
}

func (tx *memoryTx) InsertRecord(ctx context.Context, rec Record) (int64, error) {
	tx.repo.nextID++
	rec.ID = tx.repo.nextID
	tx.records = append(tx.records, rec)
	return rec.ID, nil
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestApplyPurchaseInbound(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(Item{ID: 1, Type: ItemTypeMaterial, Code: "MAT0001", Name: "Ethanol", CurrentStock: dec("5")})
	repo.docs[docKey(RefModulePurchaseOrder, 10)] = "ORDERED"
	svc := NewService(repo, nil, DefaultPolicy())

	mutations, err := svc.Apply(context.Background(), ApplyInput{
		Doc:          DocumentRef{Module: RefModulePurchaseOrder, ID: 10},
		ExpectStatus: []string{"ORDERED"},
		FinalStatus:  "RECEIVED",
		Type:         MovementPurchaseInbound,
		Deltas:       []Delta{{ItemID: 1, ItemType: ItemTypeMaterial, Qty: dec("10"), Direction: DirectionAdd}},
		Operator:     shared.Operator{ID: 7, Name: "Lin"},
		Reason:       "receiving",
	})
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	require.True(t, mutations[0].NewStock.Equal(dec("15")))
	require.True(t, mutations[0].QuantityChange.Equal(dec("10")))

	item, err := repo.GetItem(context.Background(), ItemTypeMaterial, 1)
	require.NoError(t, err)
	require.True(t, item.CurrentStock.Equal(dec("15")))
	require.Equal(t, "RECEIVED", repo.docs[docKey(RefModulePurchaseOrder, 10)])
	require.Len(t, repo.movements, 1)
	require.True(t, repo.movements[0].Qty.Equal(dec("10")))
	require.Len(t, repo.records, 1)
	require.Len(t, repo.records[0].Lines, 1)
	require.Equal(t, int64(7), repo.records[0].OperatorID)
}

func TestApplyMissingItemAbortsAll(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(Item{ID: 1, Type: ItemTypeMaterial, Code: "MAT0001", CurrentStock: dec("5")})
	repo.docs[docKey(RefModulePurchaseOrder, 10)] = "ORDERED"
	svc := NewService(repo, nil, DefaultPolicy())

	_, err := svc.Apply(context.Background(), ApplyInput{
		Doc:          DocumentRef{Module: RefModulePurchaseOrder, ID: 10},
		ExpectStatus: []string{"ORDERED"},
		FinalStatus:  "RECEIVED",
		Type:         MovementPurchaseInbound,
		Deltas: []Delta{
			{ItemID: 1, ItemType: ItemTypeMaterial, Qty: dec("10"), Direction: DirectionAdd},
			{ItemID: 99, ItemType: ItemTypeMaterial, Qty: dec("2"), Direction: DirectionAdd},
		},
	})
	var unresolved *UnresolvedError
	require.ErrorAs(t, err, &unresolved)
	require.Len(t, unresolved.Refs, 1)
	require.Equal(t, int64(99), unresolved.Refs[0].ID)

	item, _ := repo.GetItem(context.Background(), ItemTypeMaterial, 1)
	require.True(t, item.CurrentStock.Equal(dec("5")))
	require.Empty(t, repo.movements)
	require.Empty(t, repo.records)
	require.Equal(t, "ORDERED", repo.docs[docKey(RefModulePurchaseOrder, 10)])
}

func TestApplyClampsSubtractionAtZero(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(Item{ID: 3, Type: ItemTypeFragrance, Code: "FRG0001", Name: "Rose Base", CurrentStock: dec("2")})
	repo.docs[docKey(RefModuleWorkOrder, 20)] = "IN_PROGRESS"
	svc := NewService(repo, nil, DefaultPolicy())

	mutations, err := svc.Apply(context.Background(), ApplyInput{
		Doc:          DocumentRef{Module: RefModuleWorkOrder, ID: 20},
		ExpectStatus: []string{"FORECAST", "IN_PROGRESS"},
		FinalStatus:  "COMPLETED",
		Type:         MovementWorkOrder,
		Deltas:       []Delta{{ItemID: 3, ItemType: ItemTypeFragrance, Qty: dec("3"), Direction: DirectionSubtract}},
	})
	require.NoError(t, err)
	require.Len(t, mutations, 1)
	require.True(t, mutations[0].NewStock.IsZero())
	require.True(t, mutations[0].QuantityChange.Equal(dec("-2")))
	require.Len(t, repo.movements, 1)
	require.True(t, repo.movements[0].Qty.Equal(dec("-2")))
	require.Len(t, repo.records, 1)
}

func TestApplyStrictPolicyRejectsShortfall(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(Item{ID: 3, Type: ItemTypeFragrance, Code: "FRG0001", CurrentStock: dec("2")})
	repo.docs[docKey(RefModuleWorkOrder, 20)] = "IN_PROGRESS"
	svc := NewService(repo, nil, Policy{ClampAtZero: false})

	_, err := svc.Apply(context.Background(), ApplyInput{
		Doc:          DocumentRef{Module: RefModuleWorkOrder, ID: 20},
		ExpectStatus: []string{"IN_PROGRESS"},
		FinalStatus:  "COMPLETED",
		Type:         MovementWorkOrder,
		Deltas:       []Delta{{ItemID: 3, ItemType: ItemTypeFragrance, Qty: dec("3"), Direction: DirectionSubtract}},
	})
	require.ErrorIs(t, err, ErrInsufficientStock)
	item, _ := repo.GetItem(context.Background(), ItemTypeFragrance, 3)
	require.True(t, item.CurrentStock.Equal(dec("2")))
	require.Empty(t, repo.movements)
}

func TestApplyPreconditionFailedOnRerun(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(Item{ID: 1, Type: ItemTypeMaterial, Code: "MAT0001", CurrentStock: dec("5")})
	repo.docs[docKey(RefModulePurchaseOrder, 10)] = "ORDERED"
	svc := NewService(repo, nil, DefaultPolicy())

	input := ApplyInput{
		Doc:          DocumentRef{Module: RefModulePurchaseOrder, ID: 10},
		ExpectStatus: []string{"ORDERED"},
		FinalStatus:  "RECEIVED",
		Type:         MovementPurchaseInbound,
		Deltas:       []Delta{{ItemID: 1, ItemType: ItemTypeMaterial, Qty: dec("10"), Direction: DirectionAdd}},
	}
	_, err := svc.Apply(context.Background(), input)
	require.NoError(t, err)

	_, err = svc.Apply(context.Background(), input)
	require.ErrorIs(t, err, ErrPreconditionFailed)

	item, _ := repo.GetItem(context.Background(), ItemTypeMaterial, 1)
	require.True(t, item.CurrentStock.Equal(dec("15")))
	require.Len(t, repo.movements, 1)
	require.Len(t, repo.records, 1)
}

func TestApplyConservation(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(Item{ID: 1, Type: ItemTypeMaterial, Code: "MAT0001", CurrentStock: dec("5.125")})
	repo.addItem(Item{ID: 2, Type: ItemTypeMaterial, Code: "MAT0002", CurrentStock: dec("0.4")})
	repo.docs[docKey(RefModulePurchaseOrder, 10)] = "ORDERED"
	svc := NewService(repo, nil, DefaultPolicy())

	before := map[int64]decimal.Decimal{1: dec("5.125"), 2: dec("0.4")}
	mutations, err := svc.Apply(context.Background(), ApplyInput{
		Doc:          DocumentRef{Module: RefModulePurchaseOrder, ID: 10},
		ExpectStatus: []string{"ORDERED"},
		FinalStatus:  "RECEIVED",
		Type:         MovementPurchaseInbound,
		Deltas: []Delta{
			{ItemID: 1, ItemType: ItemTypeMaterial, Qty: dec("2.0004"), Direction: DirectionAdd},
			{ItemID: 2, ItemType: ItemTypeMaterial, Qty: dec("1.5"), Direction: DirectionAdd},
		},
	})
	require.NoError(t, err)

	var movementSum, stockDiffSum decimal.Decimal
	for _, m := range repo.movements {
		movementSum = movementSum.Add(m.Qty)
	}
	for _, mut := range mutations {
		stockDiffSum = stockDiffSum.Add(mut.NewStock.Sub(Round3(before[mut.ItemID])))
	}
	require.True(t, movementSum.Equal(stockDiffSum))
	require.Len(t, repo.records, 1)
	require.Len(t, repo.records[0].Lines, len(mutations))
	for _, line := range repo.records[0].Lines {
		require.True(t, line.QtyAfter.Equal(line.QtyBefore.Add(line.QtyChange)))
	}
}

func TestApplyCoalescesRepeatedItemRefs(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(Item{ID: 1, Type: ItemTypeMaterial, Code: "MAT0001", Name: "Ethanol", CurrentStock: dec("10")})
	svc := NewService(repo, nil, DefaultPolicy())

	mutations, err := svc.Apply(context.Background(), ApplyInput{
		Type: MovementManualAdjust,
		Deltas: []Delta{
			{ItemID: 1, ItemType: ItemTypeMaterial, Qty: dec("5"), Direction: DirectionAdd},
			{ItemID: 1, ItemType: ItemTypeMaterial, Qty: dec("5"), Direction: DirectionAdd},
		},
		Reason: "recount",
	})
	require.NoError(t, err)
	require.Len(t, mutations, 2)
	require.True(t, mutations[1].NewStock.Equal(dec("20")))

	item, _ := repo.GetItem(context.Background(), ItemTypeMaterial, 1)
	require.True(t, item.CurrentStock.Equal(dec("20")))

	require.Len(t, repo.movements, 2)
	var movementSum decimal.Decimal
	for _, m := range repo.movements {
		movementSum = movementSum.Add(m.Qty)
	}
	require.True(t, movementSum.Equal(dec("10")))

	require.Len(t, repo.records, 1)
	lines := repo.records[0].Lines
	require.Len(t, lines, 2)
	require.True(t, lines[1].QtyBefore.Equal(lines[0].QtyAfter))
	require.True(t, lines[1].QtyAfter.Equal(dec("20")))
}

func TestApplyRepeatedRefsClampOnRunningStock(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(Item{ID: 3, Type: ItemTypeFragrance, Code: "FRG0001", CurrentStock: dec("5")})
	repo.docs[docKey(RefModuleWorkOrder, 20)] = "IN_PROGRESS"
	svc := NewService(repo, nil, DefaultPolicy())

	_, err := svc.Apply(context.Background(), ApplyInput{
		Doc:          DocumentRef{Module: RefModuleWorkOrder, ID: 20},
		ExpectStatus: []string{"IN_PROGRESS"},
		FinalStatus:  "COMPLETED",
		Type:         MovementWorkOrder,
		Deltas: []Delta{
			{ItemID: 3, ItemType: ItemTypeFragrance, Qty: dec("4"), Direction: DirectionSubtract},
			{ItemID: 3, ItemType: ItemTypeFragrance, Qty: dec("4"), Direction: DirectionSubtract},
		},
	})
	require.NoError(t, err)

	item, _ := repo.GetItem(context.Background(), ItemTypeFragrance, 3)
	require.True(t, item.CurrentStock.IsZero())
	require.Len(t, repo.movements, 2)
	require.True(t, repo.movements[0].Qty.Equal(dec("-4")))
	require.True(t, repo.movements[1].Qty.Equal(dec("-1")))
}

func TestApplyEmptyDeltasStillTransitionsDocument(t *testing.T) {
	repo := newMemoryRepo()
	repo.docs[docKey(RefModulePurchaseOrder, 10)] = "ORDERED"
	svc := NewService(repo, nil, DefaultPolicy())

	mutations, err := svc.Apply(context.Background(), ApplyInput{
		Doc:          DocumentRef{Module: RefModulePurchaseOrder, ID: 10},
		ExpectStatus: []string{"ORDERED"},
		FinalStatus:  "RECEIVED",
		Type:         MovementPurchaseInbound,
	})
	require.NoError(t, err)
	require.Empty(t, mutations)
	require.Equal(t, "RECEIVED", repo.docs[docKey(RefModulePurchaseOrder, 10)])
	require.Empty(t, repo.movements)
	require.Empty(t, repo.records)
}

func TestApplyEmptyDeltasWithoutDocumentRejected(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, DefaultPolicy())

	_, err := svc.Apply(context.Background(), ApplyInput{Type: MovementManualAdjust})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestExportRecordsLoadsLinesInBulk(t *testing.T) {
	repo := newMemoryRepo()
	repo.records = []Record{
		{ID: 1, Type: MovementManualAdjust, Lines: []RecordLine{{ItemCode: "MAT0001"}}},
		{ID: 2, Type: MovementQuickUpdate, Lines: []RecordLine{{ItemCode: "FRG0001"}}},
	}
	svc := NewService(repo, nil, DefaultPolicy())

	records, err := svc.ExportRecords(context.Background(), RecordFilter{})
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Len(t, records[0].Lines, 1)
	require.Zero(t, repo.getRecordCalls)
}

func TestManualAdjustRoundingStability(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(Item{ID: 1, Type: ItemTypeMaterial, Code: "MAT0001", CurrentStock: dec("1")})
	svc := NewService(repo, nil, DefaultPolicy())

	for i := 0; i < 3; i++ {
		_, err := svc.ManualAdjust(context.Background(), AdjustInput{
			Ref:       ItemRef{Type: ItemTypeMaterial, ID: 1},
			Qty:       dec("0.0005"),
			Direction: DirectionAdd,
			Reason:    "calibration",
		})
		require.NoError(t, err)
	}
	item, _ := repo.GetItem(context.Background(), ItemTypeMaterial, 1)

	repo2 := newMemoryRepo()
	repo2.addItem(Item{ID: 1, Type: ItemTypeMaterial, Code: "MAT0001", CurrentStock: dec("1")})
	svc2 := NewService(repo2, nil, DefaultPolicy())
	cumulative := Round3(dec("0.0005")).Mul(dec("3"))
	_, err := svc2.ManualAdjust(context.Background(), AdjustInput{
		Ref:       ItemRef{Type: ItemTypeMaterial, ID: 1},
		Qty:       cumulative,
		Direction: DirectionAdd,
		Reason:    "calibration",
	})
	require.NoError(t, err)
	item2, _ := repo2.GetItem(context.Background(), ItemTypeMaterial, 1)
	require.True(t, item.CurrentStock.Equal(item2.CurrentStock))
}

func TestQuickUpdatePartialSuccess(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(Item{ID: 1, Type: ItemTypeMaterial, Code: "MAT0001", Name: "Ethanol", CurrentStock: dec("5")})
	repo.addItem(Item{ID: 2, Type: ItemTypeFragrance, Code: "FRG0001", Name: "Rose Base", CurrentStock: dec("3")})
	svc := NewService(repo, nil, DefaultPolicy())

	result, err := svc.QuickUpdate(context.Background(), []QuickLine{
		{Ref: ItemRef{Type: ItemTypeMaterial, ID: 1}, NewQuantity: dec("8")},
		{Ref: ItemRef{Type: ItemTypeFragrance, Code: "FRG0001"}, NewQuantity: dec("2.5")},
		{Ref: ItemRef{Type: ItemTypeMaterial, ID: 404}, NewQuantity: dec("1")},
	}, shared.Operator{ID: 7, Name: "Lin"}, "stocktake")
	require.NoError(t, err)
	require.Len(t, result.Successful, 2)
	require.Len(t, result.Failed, 1)
	require.Equal(t, int64(404), result.Failed[0].Ref.ID)

	mat, _ := repo.GetItem(context.Background(), ItemTypeMaterial, 1)
	frg, _ := repo.GetItem(context.Background(), ItemTypeFragrance, 2)
	require.True(t, mat.CurrentStock.Equal(dec("8")))
	require.True(t, frg.CurrentStock.Equal(dec("2.5")))
	require.Len(t, repo.records, 1)
	require.Len(t, repo.records[0].Lines, 2)
}

func TestQuickUpdateNoChangesWritesNoRecord(t *testing.T) {
	repo := newMemoryRepo()
	repo.addItem(Item{ID: 1, Type: ItemTypeMaterial, Code: "MAT0001", CurrentStock: dec("5")})
	svc := NewService(repo, nil, DefaultPolicy())

	result, err := svc.QuickUpdate(context.Background(), []QuickLine{
		{Ref: ItemRef{Type: ItemTypeMaterial, ID: 1}, NewQuantity: dec("5")},
	}, shared.Operator{}, "")
	require.NoError(t, err)
	require.Len(t, result.Successful, 1)
	require.True(t, result.Successful[0].QuantityChange.IsZero())
	require.Empty(t, repo.movements)
	require.Empty(t, repo.records)
}
