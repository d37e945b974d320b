package production

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/essentia-erp/essentia-erp/internal/inventory"
	"github.com/essentia-erp/essentia-erp/internal/shared"
)

// world backs both the production repository and the inventory surface so a
// completion runs the real stock-update protocol.
type world struct {
	items     map[string]inventory.Item
	orders    map[int64]WorkOrder
	movements []inventory.Movement
	records   []inventory.Record
	nextID    int64
}

func newWorld() *world {
	return &world{items: make(map[string]inventory.Item), orders: make(map[int64]WorkOrder)}
}

func (w *world) itemKey(t inventory.ItemType, id int64) string {
	return fmt.Sprintf("%s:%d", t, id)
}

func (w *world) addItem(item inventory.Item) {
	w.items[w.itemKey(item.Type, item.ID)] = item
}

func (w *world) GetItem(ctx context.Context, t inventory.ItemType, id int64) (inventory.Item, error) {
	item, ok := w.items[w.itemKey(t, id)]
	if !ok {
		return inventory.Item{}, inventory.ErrItemNotFound
	}
	return item, nil
}

func (w *world) FindItemByCode(ctx context.Context, t inventory.ItemType, code string) (inventory.Item, error) {
	for _, item := range w.items {
		if item.Type == t && item.Code == code {
			return item, nil
		}
	}
	return inventory.Item{}, inventory.ErrItemNotFound
}

func (w *world) WithTx(ctx context.Context, fn func(context.Context, inventory.TxRepository) error) error {
	return fn(ctx, &invTx{world: w})
}

func (w *world) ListMovements(ctx context.Context, f inventory.MovementFilter) ([]inventory.Movement, int, error) {
	return nil, 0, nil
}

func (w *world) ListRecords(ctx context.Context, f inventory.RecordFilter) ([]inventory.Record, int, error) {
	return nil, 0, nil
}

func (w *world) ListRecordsWithLines(ctx context.Context, f inventory.RecordFilter) ([]inventory.Record, error) {
	return nil, nil
}

func (w *world) GetRecord(ctx context.Context, id int64) (inventory.Record, error) {
	return inventory.Record{}, inventory.ErrRecordNotFound
}

func (w *world) UpdateRecordRemarks(ctx context.Context, id int64, remarks string) error {
	return nil
}

func (w *world) ListBelowSafetyStock(ctx context.Context) ([]inventory.Item, error) {
	return nil, nil
}

type invTx struct {
	world *world
}

func (t *invTx) GetDocumentStatus(ctx context.Context, module string, id int64) (string, error) {
	wo, ok := t.world.orders[id]
	if !ok {
		return "", inventory.ErrDocumentNotFound
	}
	return string(wo.Status), nil
}

func (t *invTx) SetDocumentStatus(ctx context.Context, module string, id int64, status string, op shared.Operator, at time.Time) error {
	wo := t.world.orders[id]
	wo.Status = Status(status)
	wo.CompletedBy = &op.ID
	wo.CompletedByName = op.Name
	wo.CompletedAt = &at
	t.world.orders[id] = wo
	return nil
}

func (t *invTx) GetItemForUpdate(ctx context.Context, it inventory.ItemType, id int64) (inventory.Item, error) {
	return t.world.GetItem(ctx, it, id)
}

func (t *invTx) UpdateItemStock(ctx context.Context, it inventory.ItemType, id int64, newStock decimal.Decimal, at time.Time) error {
	key := t.world.itemKey(it, id)
	item := t.world.items[key]
	item.CurrentStock = newStock
	item.LastStockUpdate = at
	t.world.items[key] = item
	return nil
}

func (t *invTx) InsertMovement(ctx context.Context, m inventory.Movement) (int64, error) {
	t.world.nextID++
	m.ID = t.world.nextID
	t.world.movements = append(t.world.movements, m)
	return m.ID, nil
}

func (t *invTx) InsertRecord(ctx context.Context, rec inventory.Record) (int64, error) {
	t.world.nextID++
	rec.ID = t.world.nextID
	t.world.records = append(t.world.records, rec)
	return rec.ID, nil
}

func (w *world) Get(ctx context.Context, id int64) (WorkOrder, error) {
	wo, ok := w.orders[id]
	if !ok {
		return WorkOrder{}, ErrNotFound
	}
	return wo, nil
}

func (w *world) List(ctx context.Context, filter ListFilter) ([]WorkOrder, int, error) {
	var out []WorkOrder
	for _, wo := range w.orders {
		out = append(out, wo)
	}
	return out, len(out), nil
}

func (w *world) Delete(ctx context.Context, id int64) error {
	if _, ok := w.orders[id]; !ok {
		return ErrNotFound
	}
	delete(w.orders, id)
	return nil
}

type woTx struct {
	world *world
}

func (r woRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &woTx{world: r.world})
}

func (t *woTx) CreateOrder(ctx context.Context, wo WorkOrder) (int64, error) {
	t.world.nextID++
	wo.ID = t.world.nextID
	t.world.orders[wo.ID] = wo
	return wo.ID, nil
}

func (t *woTx) NextNumber(ctx context.Context, date time.Time) (string, error) {
	return fmt.Sprintf("WO-%s-%03d", date.Format("20060102"), len(t.world.orders)+1), nil
}

func (t *woTx) InsertComponent(ctx context.Context, c Component) (int64, error) {
	t.world.nextID++
	c.ID = t.world.nextID
	wo := t.world.orders[c.WorkOrderID]
	wo.Components = append(wo.Components, c)
	t.world.orders[c.WorkOrderID] = wo
	return c.ID, nil
}

func (t *woTx) UpdateOrderHeader(ctx context.Context, wo WorkOrder) error {
	existing, ok := t.world.orders[wo.ID]
	if !ok {
		return ErrNotFound
	}
	existing.ProductID = wo.ProductID
	existing.TargetQuantity = wo.TargetQuantity
	existing.FragranceID = wo.FragranceID
	existing.FragranceDose = wo.FragranceDose
	existing.Note = wo.Note
	t.world.orders[wo.ID] = existing
	return nil
}

func (t *woTx) DeleteComponents(ctx context.Context, orderID int64) error {
	wo := t.world.orders[orderID]
	wo.Components = nil
	t.world.orders[orderID] = wo
	return nil
}

func (t *woTx) SetStatus(ctx context.Context, orderID int64, status Status) error {
	wo, ok := t.world.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	wo.Status = status
	t.world.orders[orderID] = wo
	return nil
}

func (t *woTx) SetActualQuantity(ctx context.Context, orderID int64, qty decimal.Decimal) error {
	wo, ok := t.world.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	wo.ActualQuantity = &qty
	t.world.orders[orderID] = wo
	return nil
}

func (t *woTx) SetComponentUsed(ctx context.Context, componentID int64, qty decimal.Decimal) error {
	for id, wo := range t.world.orders {
		for i, c := range wo.Components {
			if c.ID == componentID {
				q := qty
				wo.Components[i].UsedQty = &q
				t.world.orders[id] = wo
				return nil
			}
		}
	}
	return ErrNotFound
}

func (t *woTx) Inventory() inventory.TxRepository {
	return &invTx{world: t.world}
}

type woRepo struct {
	*world
}

func dec(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

func newTestService(w *world) *Service {
	inv := inventory.NewService(w, nil, inventory.DefaultPolicy())
	return NewService(woRepo{w}, inv, nil)
}

func seedWorkOrder(w *world, status Status) WorkOrder {
	w.addItem(inventory.Item{ID: 1, Type: inventory.ItemTypeMaterial, Code: "MAT0001", Name: "Ethanol", CurrentStock: dec("100")})
	w.addItem(inventory.Item{ID: 2, Type: inventory.ItemTypeMaterial, Code: "MAT0002", Name: "Glycerin", CurrentStock: dec("1")})
	w.addItem(inventory.Item{ID: 3, Type: inventory.ItemTypeFragrance, Code: "FRG0001", Name: "Rose Base", CurrentStock: dec("10")})
	fragranceID := int64(3)
	wo := WorkOrder{
		ID: 500, Number: "WO-20260301-001", ProductID: 9, Status: status,
		TargetQuantity: dec("100"),
		FragranceID:    &fragranceID,
		FragranceDose:  dec("0.05"),
		Components: []Component{
			{ID: 51, WorkOrderID: 500, MaterialID: 1, PlannedQty: dec("20")},
			{ID: 52, WorkOrderID: 500, MaterialID: 2, PlannedQty: dec("4")},
		},
	}
	w.orders[wo.ID] = wo
	return wo
}

func TestCompleteConsumesScaledComponents(t *testing.T) {
	w := newWorld()
	seedWorkOrder(w, StatusInProgress)
	svc := newTestService(w)

	// Half the target: planned quantities scale by 0.5, fragrance dose
	// scales with the actual quantity. The glycerin draw of 2 exceeds the
	// single unit on hand and clamps to zero.
	mutations, err := svc.Complete(context.Background(), CompleteInput{
		OrderID:        500,
		ActualQuantity: dec("50"),
		Operator:       shared.Operator{ID: 4, Name: "Wu"},
	})
	require.NoError(t, err)
	require.Len(t, mutations, 3)

	ethanol, _ := w.GetItem(context.Background(), inventory.ItemTypeMaterial, 1)
	glycerin, _ := w.GetItem(context.Background(), inventory.ItemTypeMaterial, 2)
	rose, _ := w.GetItem(context.Background(), inventory.ItemTypeFragrance, 3)
	require.True(t, ethanol.CurrentStock.Equal(dec("90")))
	require.True(t, glycerin.CurrentStock.IsZero())
	require.True(t, rose.CurrentStock.Equal(dec("7.5")))

	wo := w.orders[500]
	require.Equal(t, StatusCompleted, wo.Status)
	require.NotNil(t, wo.ActualQuantity)
	require.True(t, wo.ActualQuantity.Equal(dec("50")))
	require.NotNil(t, wo.CompletedBy)
	require.Equal(t, "Wu", wo.CompletedByName)

	require.Len(t, w.movements, 3)
	for _, m := range w.movements {
		require.True(t, m.Qty.IsNegative())
		require.Equal(t, inventory.MovementWorkOrder, m.Type)
	}
	require.Len(t, w.records, 1)
	require.Len(t, w.records[0].Lines, 3)
}

func TestCompleteHonorsUsedOverrides(t *testing.T) {
	w := newWorld()
	seedWorkOrder(w, StatusForecast)
	svc := newTestService(w)

	_, err := svc.Complete(context.Background(), CompleteInput{
		OrderID:        500,
		ActualQuantity: dec("100"),
		UsedOverrides:  map[int64]decimal.Decimal{51: dec("18.5"), 52: dec("0")},
	})
	require.NoError(t, err)

	ethanol, _ := w.GetItem(context.Background(), inventory.ItemTypeMaterial, 1)
	glycerin, _ := w.GetItem(context.Background(), inventory.ItemTypeMaterial, 2)
	require.True(t, ethanol.CurrentStock.Equal(dec("81.5")))
	require.True(t, glycerin.CurrentStock.Equal(dec("1")))

	wo := w.orders[500]
	require.NotNil(t, wo.Components[0].UsedQty)
	require.True(t, wo.Components[0].UsedQty.Equal(dec("18.5")))
}

func TestCompleteRepeatFailsPrecondition(t *testing.T) {
	w := newWorld()
	seedWorkOrder(w, StatusInProgress)
	svc := newTestService(w)

	_, err := svc.Complete(context.Background(), CompleteInput{OrderID: 500, ActualQuantity: dec("100")})
	require.NoError(t, err)

	_, err = svc.Complete(context.Background(), CompleteInput{OrderID: 500, ActualQuantity: dec("100")})
	require.ErrorIs(t, err, inventory.ErrPreconditionFailed)
	require.Len(t, w.records, 1)
}

func TestCompleteRequiresActiveStatus(t *testing.T) {
	w := newWorld()
	seedWorkOrder(w, StatusUnconfirmed)
	svc := newTestService(w)

	_, err := svc.Complete(context.Background(), CompleteInput{OrderID: 500, ActualQuantity: dec("10")})
	require.ErrorIs(t, err, inventory.ErrPreconditionFailed)
	require.Empty(t, w.movements)
}

func TestStatusWorkflow(t *testing.T) {
	w := newWorld()
	seedWorkOrder(w, StatusUnconfirmed)
	svc := newTestService(w)

	require.NoError(t, svc.Confirm(context.Background(), 500, shared.Operator{}))
	require.Equal(t, StatusForecast, w.orders[500].Status)

	require.NoError(t, svc.Start(context.Background(), 500, shared.Operator{}))
	require.Equal(t, StatusInProgress, w.orders[500].Status)

	err := svc.Confirm(context.Background(), 500, shared.Operator{})
	require.ErrorIs(t, err, ErrInvalidState)

	require.NoError(t, svc.Cancel(context.Background(), 500, shared.Operator{}))
	require.Equal(t, StatusCancelled, w.orders[500].Status)
}

func TestCreateResolvesPlan(t *testing.T) {
	w := newWorld()
	w.addItem(inventory.Item{ID: 1, Type: inventory.ItemTypeMaterial, Code: "MAT0001", Name: "Ethanol"})
	w.addItem(inventory.Item{ID: 3, Type: inventory.ItemTypeFragrance, Code: "FRG0001", Name: "Rose Base"})
	svc := newTestService(w)

	wo, err := svc.Create(context.Background(), CreateInput{
		ProductID:      9,
		TargetQuantity: dec("100"),
		FragranceRef:   &inventory.ItemRef{Type: inventory.ItemTypeFragrance, Code: "FRG0001"},
		FragranceDose:  dec("0.05"),
		Components: []ComponentInput{
			{MaterialRef: inventory.ItemRef{Type: inventory.ItemTypeMaterial, Code: "MAT0001"}, PlannedQty: dec("20")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusUnconfirmed, wo.Status)
	require.Contains(t, wo.Number, "WO-")
	require.NotNil(t, wo.FragranceID)
	require.Equal(t, int64(3), *wo.FragranceID)
	require.Len(t, wo.Components, 1)
	require.Equal(t, int64(1), wo.Components[0].MaterialID)
}
