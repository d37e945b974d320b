package purchasing

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

// world backs both the purchasing repository and the inventory surface so a
// receive is exercised against the real stock-update protocol.
type world struct {
	items     map[string]inventory.Item
	orders    map[int64]PurchaseOrder
	movements []inventory.Movement
	records   []inventory.Record
	nextID    int64
}

func newWorld() *world {
	return &world{items: make(map[string]inventory.Item), orders: make(map[int64]PurchaseOrder)}
}

func (w *world) itemKey(t inventory.ItemType, id int64) string {
	return fmt.Sprintf("%s:%d", t, id)
}

func (w *world) addItem(item inventory.Item) {
	w.items[w.itemKey(item.Type, item.ID)] = item
}

func (w *world) addOrder(po PurchaseOrder) {
	w.orders[po.ID] = po
}

// inventory.RepositoryPort; only the resolver reads are exercised here.

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

// invTx implements inventory.TxRepository over the world.
type invTx struct {
	world *world
}

func (t *invTx) GetDocumentStatus(ctx context.Context, module string, id int64) (string, error) {
	po, ok := t.world.orders[id]
	if !ok {
		return "", inventory.ErrDocumentNotFound
	}
	return string(po.Status), nil
}

func (t *invTx) SetDocumentStatus(ctx context.Context, module string, id int64, status string, op shared.Operator, at time.Time) error {
	po := t.world.orders[id]
	po.Status = Status(status)
	po.ReceivedBy = &op.ID
	po.ReceivedByName = op.Name
	po.ReceivedAt = &at
	t.world.orders[id] = po
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

// purchasing RepositoryPort.

func (w *world) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	po, ok := w.orders[id]
	if !ok {
		return PurchaseOrder{}, ErrNotFound
	}
	return po, nil
}

func (w *world) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	var out []PurchaseOrder
	for _, po := range w.orders {
		out = append(out, po)
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

type poTx struct {
	world *world
}

func (w *world) withPoTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &poTx{world: w})
}

func (t *poTx) CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	t.world.nextID++
	po.ID = t.world.nextID
	t.world.orders[po.ID] = po
	return po.ID, nil
}

func (t *poTx) NextNumber(ctx context.Context, date time.Time) (string, error) {
	return fmt.Sprintf("PO-%s-%03d", date.Format("20060102"), len(t.world.orders)+1), nil
}

func (t *poTx) InsertLine(ctx context.Context, line Line) (int64, error) {
	t.world.nextID++
	line.ID = t.world.nextID
	po := t.world.orders[line.OrderID]
	po.Lines = append(po.Lines, line)
	t.world.orders[line.OrderID] = po
	return line.ID, nil
}

func (t *poTx) UpdateOrderHeader(ctx context.Context, po PurchaseOrder) error {
	existing, ok := t.world.orders[po.ID]
	if !ok {
		return ErrNotFound
	}
	existing.SupplierID = po.SupplierID
	existing.ExpectedDate = po.ExpectedDate
	existing.Note = po.Note
	t.world.orders[po.ID] = existing
	return nil
}

func (t *poTx) DeleteLines(ctx context.Context, orderID int64) error {
	po := t.world.orders[orderID]
	po.Lines = nil
	t.world.orders[orderID] = po
	return nil
}

func (t *poTx) SetStatus(ctx context.Context, orderID int64, status Status) error {
	po, ok := t.world.orders[orderID]
	if !ok {
		return ErrNotFound
	}
	po.Status = status
	t.world.orders[orderID] = po
	return nil
}

func (t *poTx) SetLineReceived(ctx context.Context, lineID int64, qty decimal.Decimal) error {
	for id, po := range t.world.orders {
		for i, line := range po.Lines {
			if line.ID == lineID {
				q := qty
				po.Lines[i].ReceivedQty = &q
				t.world.orders[id] = po
				return nil
			}
		}
	}
	return ErrNotFound
}

func (t *poTx) Inventory() inventory.TxRepository {
	return &invTx{world: t.world}
}

type poRepo struct {
	*world
}

func (r poRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return r.world.withPoTx(ctx, fn)
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
	return NewService(poRepo{w}, inv, nil, nil)
}

func seedOrderedPO(w *world) PurchaseOrder {
	w.addItem(inventory.Item{ID: 1, Type: inventory.ItemTypeMaterial, Code: "MAT0001", Name: "Ethanol", CurrentStock: dec("5")})
	w.addItem(inventory.Item{ID: 2, Type: inventory.ItemTypeFragrance, Code: "FRG0001", Name: "Rose Base", CurrentStock: dec("1")})
	po := PurchaseOrder{
		ID: 100, Number: "PO-20260301-001", SupplierID: 7, Status: StatusOrdered,
		Lines: []Line{
			{ID: 11, OrderID: 100, ItemType: inventory.ItemTypeMaterial, ItemID: 1, Qty: dec("10"), UnitCost: dec("2.5")},
			{ID: 12, OrderID: 100, ItemType: inventory.ItemTypeFragrance, ItemID: 2, Qty: dec("2.5"), UnitCost: dec("40")},
		},
	}
	w.addOrder(po)
	return po
}

func TestReceiveAddsStockAndTransitions(t *testing.T) {
	w := newWorld()
	seedOrderedPO(w)
	svc := newTestService(w)

	mutations, err := svc.Receive(context.Background(), ReceiveInput{
		OrderID:   100,
		Overrides: map[int64]decimal.Decimal{12: dec("2")},
		Operator:  shared.Operator{ID: 3, Name: "Chen"},
	})
	require.NoError(t, err)
	require.Len(t, mutations, 2)

	mat, _ := w.GetItem(context.Background(), inventory.ItemTypeMaterial, 1)
	frg, _ := w.GetItem(context.Background(), inventory.ItemTypeFragrance, 2)
	require.True(t, mat.CurrentStock.Equal(dec("15")))
	require.True(t, frg.CurrentStock.Equal(dec("3")))

	po := w.orders[100]
	require.Equal(t, StatusReceived, po.Status)
	require.NotNil(t, po.ReceivedBy)
	require.Equal(t, int64(3), *po.ReceivedBy)
	require.Equal(t, "Chen", po.ReceivedByName)
	require.NotNil(t, po.Lines[1].ReceivedQty)
	require.True(t, po.Lines[1].ReceivedQty.Equal(dec("2")))

	require.Len(t, w.movements, 2)
	require.Len(t, w.records, 1)
	require.Len(t, w.records[0].Lines, 2)
}

func TestReceiveSameItemOnTwoLines(t *testing.T) {
	w := newWorld()
	w.addItem(inventory.Item{ID: 1, Type: inventory.ItemTypeMaterial, Code: "MAT0001", Name: "Ethanol", CurrentStock: dec("5")})
	w.addOrder(PurchaseOrder{
		ID: 101, Number: "PO-20260301-002", SupplierID: 7, Status: StatusOrdered,
		Lines: []Line{
			{ID: 21, OrderID: 101, ItemType: inventory.ItemTypeMaterial, ItemID: 1, Qty: dec("10")},
			{ID: 22, OrderID: 101, ItemType: inventory.ItemTypeMaterial, ItemID: 1, Qty: dec("4")},
		},
	})
	svc := newTestService(w)

	mutations, err := svc.Receive(context.Background(), ReceiveInput{OrderID: 101})
	require.NoError(t, err)
	require.Len(t, mutations, 2)

	mat, _ := w.GetItem(context.Background(), inventory.ItemTypeMaterial, 1)
	require.True(t, mat.CurrentStock.Equal(dec("19")))

	var sum decimal.Decimal
	for _, m := range w.movements {
		sum = sum.Add(m.Qty)
	}
	require.Len(t, w.movements, 2)
	require.True(t, sum.Equal(dec("14")))
	require.Equal(t, StatusReceived, w.orders[101].Status)
}

func TestReceiveAllZeroOverridesStillTransitions(t *testing.T) {
	w := newWorld()
	seedOrderedPO(w)
	svc := newTestService(w)

	mutations, err := svc.Receive(context.Background(), ReceiveInput{
		OrderID:   100,
		Overrides: map[int64]decimal.Decimal{11: decimal.Zero, 12: decimal.Zero},
		Operator:  shared.Operator{ID: 3, Name: "Chen"},
	})
	require.NoError(t, err)
	require.Empty(t, mutations)

	mat, _ := w.GetItem(context.Background(), inventory.ItemTypeMaterial, 1)
	require.True(t, mat.CurrentStock.Equal(dec("5")))
	require.Equal(t, StatusReceived, w.orders[100].Status)
	require.Empty(t, w.movements)
	require.Empty(t, w.records)
	require.NotNil(t, w.orders[100].Lines[0].ReceivedQty)
	require.True(t, w.orders[100].Lines[0].ReceivedQty.IsZero())
}

func TestReceiveRepeatFailsPrecondition(t *testing.T) {
	w := newWorld()
	seedOrderedPO(w)
	svc := newTestService(w)

	_, err := svc.Receive(context.Background(), ReceiveInput{OrderID: 100})
	require.NoError(t, err)

	_, err = svc.Receive(context.Background(), ReceiveInput{OrderID: 100})
	require.ErrorIs(t, err, inventory.ErrPreconditionFailed)

	mat, _ := w.GetItem(context.Background(), inventory.ItemTypeMaterial, 1)
	require.True(t, mat.CurrentStock.Equal(dec("15")))
	require.Len(t, w.movements, 2)
}

func TestReceiveRequiresOrderedStatus(t *testing.T) {
	w := newWorld()
	po := seedOrderedPO(w)
	po.Status = StatusDraft
	w.addOrder(po)
	svc := newTestService(w)

	_, err := svc.Receive(context.Background(), ReceiveInput{OrderID: 100})
	require.ErrorIs(t, err, inventory.ErrPreconditionFailed)
	require.Empty(t, w.movements)
}

func TestCreateResolvesCodesAndNumbers(t *testing.T) {
	w := newWorld()
	w.addItem(inventory.Item{ID: 1, Type: inventory.ItemTypeMaterial, Code: "MAT0001", Name: "Ethanol"})
	svc := newTestService(w)

	po, err := svc.Create(context.Background(), CreateInput{
		SupplierID: 7,
		Operator:   shared.Operator{ID: 3, Name: "Chen"},
		Lines: []LineInput{
			{Ref: inventory.ItemRef{Type: inventory.ItemTypeMaterial, Code: "MAT0001"}, Qty: dec("10"), UnitCost: dec("2.5")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, StatusDraft, po.Status)
	require.Contains(t, po.Number, "PO-")
	require.Len(t, po.Lines, 1)
	require.Equal(t, int64(1), po.Lines[0].ItemID)
}

func TestCreateRejectsUnknownItem(t *testing.T) {
	w := newWorld()
	svc := newTestService(w)

	_, err := svc.Create(context.Background(), CreateInput{
		SupplierID: 7,
		Lines: []LineInput{
			{Ref: inventory.ItemRef{Type: inventory.ItemTypeMaterial, Code: "MAT9999"}, Qty: dec("1")},
		},
	})
	var unresolved *inventory.UnresolvedError
	require.ErrorAs(t, err, &unresolved)
	require.Empty(t, w.orders)
}

func TestUpdateOnlyDraft(t *testing.T) {
	w := newWorld()
	seedOrderedPO(w)
	svc := newTestService(w)

	_, err := svc.Update(context.Background(), 100, CreateInput{
		SupplierID: 7,
		Lines:      []LineInput{{Ref: inventory.ItemRef{Type: inventory.ItemTypeMaterial, ID: 1}, Qty: dec("1")}},
	})
	require.ErrorIs(t, err, ErrInvalidState)
}

func TestCancelWorkflow(t *testing.T) {
	w := newWorld()
	seedOrderedPO(w)
	svc := newTestService(w)

	require.NoError(t, svc.Cancel(context.Background(), 100, shared.Operator{}))
	require.Equal(t, StatusCancelled, w.orders[100].Status)

	err := svc.Cancel(context.Background(), 100, shared.Operator{})
	require.ErrorIs(t, err, ErrInvalidState)
}
