package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/essentia-erp/essentia-erp/internal/platform/db"
	"github.com/essentia-erp/essentia-erp/internal/shared"
)

// Repository persists inventory data in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction with
// bounded conflict retries.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

// NewTxRepository wraps an already-open transaction so callers can compose
// the protocol with their own writes in one commit.
func NewTxRepository(tx pgx.Tx) TxRepository {
	return &txRepository{tx: tx}
}

const itemColumns = `id, code, name, unit, current_stock, safety_stock_level, cost_per_unit, last_stock_update`

func itemTable(t ItemType) (string, error) {
	switch t {
	case ItemTypeMaterial:
		return "materials", nil
	case ItemTypeFragrance:
		return "fragrances", nil
	default:
		return "", fmt.Errorf("inventory: unknown item type %q", t)
	}
}

// GetItem reads one item outside any transaction.
func (r *Repository) GetItem(ctx context.Context, itemType ItemType, id int64) (Item, error) {
	table, err := itemTable(itemType)
	if err != nil {
		return Item{}, err
	}
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM `+table+` WHERE id = $1`, id)
	return scanItem(row, itemType)
}

// FindItemByCode resolves an item by its human-readable code. Used only in
// the resolution pre-pass, never inside a transaction.
func (r *Repository) FindItemByCode(ctx context.Context, itemType ItemType, code string) (Item, error) {
	table, err := itemTable(itemType)
	if err != nil {
		return Item{}, err
	}
	row := r.pool.QueryRow(ctx, `SELECT `+itemColumns+` FROM `+table+` WHERE code = $1`, code)
	return scanItem(row, itemType)
}

// ListBelowSafetyStock lists items whose stock dropped under the safety
// level, used by the low-stock scan job.
func (r *Repository) ListBelowSafetyStock(ctx context.Context) ([]Item, error) {
	var items []Item
	for _, itemType := range []ItemType{ItemTypeMaterial, ItemTypeFragrance} {
		table, _ := itemTable(itemType)
		rows, err := r.pool.Query(ctx, `SELECT `+itemColumns+` FROM `+table+` WHERE current_stock < safety_stock_level ORDER BY code`)
		if err != nil {
			return nil, err
		}
		for rows.Next() {
			item, err := scanItem(rows, itemType)
			if err != nil {
				rows.Close()
				return nil, err
			}
			items = append(items, item)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return nil, err
		}
	}
	return items, nil
}

// ListMovements lists movement rows, newest first.
func (r *Repository) ListMovements(ctx context.Context, filter MovementFilter) ([]Movement, int, error) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 50
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements WHERE item_type = $1 AND item_id = $2 AND ($3 = '' OR movement_type = $3)`,
		filter.ItemType, filter.ItemID, string(filter.Type)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_type, item_id, movement_type, qty, ref_module, ref_id, remark, created_at
FROM stock_movements
WHERE item_type = $1 AND item_id = $2 AND ($3 = '' OR movement_type = $3)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5`, filter.ItemType, filter.ItemID, string(filter.Type), perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var movements []Movement
	for rows.Next() {
		var m Movement
		if err := rows.Scan(&m.ID, &m.ItemType, &m.ItemID, &m.Type, &m.Qty, &m.RefModule, &m.RefID, &m.Remark, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		movements = append(movements, m)
	}
	return movements, total, rows.Err()
}

// ListRecords lists audit records without lines, newest first.
func (r *Repository) ListRecords(ctx context.Context, filter RecordFilter) ([]Record, int, error) {
	perPage := filter.PerPage
	if perPage <= 0 {
		perPage = 20
	}
	page := filter.Page
	if page <= 0 {
		page = 1
	}
	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM inventory_records
WHERE ($1 = '' OR movement_type = $1)
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at <= $3)`,
		string(filter.Type), nullTime(filter.From), nullTime(filter.To)).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, movement_type, reason, operator_id, operator_name, remarks, ref_module, ref_id, created_at
FROM inventory_records
WHERE ($1 = '' OR movement_type = $1)
  AND ($2::timestamptz IS NULL OR created_at >= $2)
  AND ($3::timestamptz IS NULL OR created_at <= $3)
ORDER BY created_at DESC, id DESC
LIMIT $4 OFFSET $5`, string(filter.Type), nullTime(filter.From), nullTime(filter.To), perPage, (page-1)*perPage)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var records []Record
	for rows.Next() {
		var rec Record
		if err := rows.Scan(&rec.ID, &rec.Type, &rec.Reason, &rec.OperatorID, &rec.OperatorName, &rec.Remarks, &rec.RefModule, &rec.RefID, &rec.CreatedAt); err != nil {
			return nil, 0, err
		}
		records = append(records, rec)
	}
	return records, total, rows.Err()
}

// ListRecordsWithLines lists matching records with their lines attached:
// one query for the record page, one for every line in it.
func (r *Repository) ListRecordsWithLines(ctx context.Context, filter RecordFilter) ([]Record, error) {
	records, _, err := r.ListRecords(ctx, filter)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return records, nil
	}
	ids := make([]int64, len(records))
	index := make(map[int64]int, len(records))
	for i, rec := range records {
		ids[i] = rec.ID
		index[rec.ID] = i
	}
	rows, err := r.pool.Query(ctx, `SELECT record_id, item_type, item_id, item_code, item_name, qty_before, qty_change, qty_after
FROM inventory_record_lines WHERE record_id = ANY($1) ORDER BY record_id, id`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var recordID int64
		var line RecordLine
		if err := rows.Scan(&recordID, &line.ItemType, &line.ItemID, &line.ItemCode, &line.ItemName, &line.QtyBefore, &line.QtyChange, &line.QtyAfter); err != nil {
			return nil, err
		}
		i := index[recordID]
		records[i].Lines = append(records[i].Lines, line)
	}
	return records, rows.Err()
}

// GetRecord fetches one record with lines.
func (r *Repository) GetRecord(ctx context.Context, id int64) (Record, error) {
	var rec Record
	err := r.pool.QueryRow(ctx, `SELECT id, movement_type, reason, operator_id, operator_name, remarks, ref_module, ref_id, created_at
FROM inventory_records WHERE id = $1`, id).
		Scan(&rec.ID, &rec.Type, &rec.Reason, &rec.OperatorID, &rec.OperatorName, &rec.Remarks, &rec.RefModule, &rec.RefID, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrRecordNotFound
		}
		return Record{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT item_type, item_id, item_code, item_name, qty_before, qty_change, qty_after
FROM inventory_record_lines WHERE record_id = $1 ORDER BY id`, id)
	if err != nil {
		return Record{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line RecordLine
		if err := rows.Scan(&line.ItemType, &line.ItemID, &line.ItemCode, &line.ItemName, &line.QtyBefore, &line.QtyChange, &line.QtyAfter); err != nil {
			return Record{}, err
		}
		rec.Lines = append(rec.Lines, line)
	}
	return rec, rows.Err()
}

// UpdateRecordRemarks edits the remarks of an existing record.
func (r *Repository) UpdateRecordRemarks(ctx context.Context, id int64, remarks string) error {
	tag, err := r.pool.Exec(ctx, `UPDATE inventory_records SET remarks = $1 WHERE id = $2`, remarks, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrRecordNotFound
	}
	return nil
}

type txRepository struct {
	tx pgx.Tx
}

// ErrDocumentNotFound indicates the causing document row is missing.
var ErrDocumentNotFound = errors.New("inventory: causing document not found")

func (r *txRepository) GetDocumentStatus(ctx context.Context, module string, id int64) (string, error) {
	table, err := documentTable(module)
	if err != nil {
		return "", err
	}
	var status string
	if err := r.tx.QueryRow(ctx, `SELECT status FROM `+table+` WHERE id = $1 FOR UPDATE`, id).Scan(&status); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", fmt.Errorf("%w: %s %d", ErrDocumentNotFound, module, id)
		}
		return "", err
	}
	return status, nil
}

func (r *txRepository) SetDocumentStatus(ctx context.Context, module string, id int64, status string, op shared.Operator, at time.Time) error {
	switch module {
	case RefModulePurchaseOrder:
		_, err := r.tx.Exec(ctx, `UPDATE purchase_orders SET status = $1, received_by = $2, received_by_name = $3, received_at = $4, updated_at = $4 WHERE id = $5`,
			status, op.ID, op.Name, at, id)
		return err
	case RefModuleWorkOrder:
		_, err := r.tx.Exec(ctx, `UPDATE work_orders SET status = $1, completed_by = $2, completed_by_name = $3, completed_at = $4, updated_at = $4 WHERE id = $5`,
			status, op.ID, op.Name, at, id)
		return err
	default:
		return fmt.Errorf("inventory: unknown document module %q", module)
	}
}

func (r *txRepository) GetItemForUpdate(ctx context.Context, itemType ItemType, id int64) (Item, error) {
	table, err := itemTable(itemType)
	if err != nil {
		return Item{}, err
	}
	row := r.tx.QueryRow(ctx, `SELECT `+itemColumns+` FROM `+table+` WHERE id = $1 FOR UPDATE`, id)
	return scanItem(row, itemType)
}

func (r *txRepository) UpdateItemStock(ctx context.Context, itemType ItemType, id int64, newStock decimal.Decimal, at time.Time) error {
	table, err := itemTable(itemType)
	if err != nil {
		return err
	}
	_, err = r.tx.Exec(ctx, `UPDATE `+table+` SET current_stock = $1, last_stock_update = $2, updated_at = $2 WHERE id = $3`, newStock, at, id)
	return err
}

func (r *txRepository) InsertMovement(ctx context.Context, m Movement) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO stock_movements (item_type, item_id, movement_type, qty, ref_module, ref_id, remark, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		m.ItemType, m.ItemID, m.Type, m.Qty, m.RefModule, m.RefID, m.Remark, m.CreatedAt).Scan(&id)
	return id, err
}

func (r *txRepository) InsertRecord(ctx context.Context, rec Record) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO inventory_records (movement_type, reason, operator_id, operator_name, remarks, ref_module, ref_id, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8) RETURNING id`,
		rec.Type, rec.Reason, rec.OperatorID, rec.OperatorName, rec.Remarks, rec.RefModule, rec.RefID, rec.CreatedAt).Scan(&id)
	if err != nil {
		return 0, err
	}
	for _, line := range rec.Lines {
		_, err := r.tx.Exec(ctx, `INSERT INTO inventory_record_lines (record_id, item_type, item_id, item_code, item_name, qty_before, qty_change, qty_after)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			id, line.ItemType, line.ItemID, line.ItemCode, line.ItemName, line.QtyBefore, line.QtyChange, line.QtyAfter)
		if err != nil {
			return 0, err
		}
	}
	return id, nil
}

func documentTable(module string) (string, error) {
	switch module {
	case RefModulePurchaseOrder:
		return "purchase_orders", nil
	case RefModuleWorkOrder:
		return "work_orders", nil
	default:
		return "", fmt.Errorf("inventory: unknown document module %q", module)
	}
}

func scanItem(row pgx.Row, itemType ItemType) (Item, error) {
	var item Item
	var lastUpdate *time.Time
	err := row.Scan(&item.ID, &item.Code, &item.Name, &item.Unit, &item.CurrentStock, &item.SafetyStockLevel, &item.CostPerUnit, &lastUpdate)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, ErrItemNotFound
		}
		return Item{}, err
	}
	item.Type = itemType
	if lastUpdate != nil {
		item.LastStockUpdate = *lastUpdate
	}
	return item, nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
