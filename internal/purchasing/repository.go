package purchasing

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/essentia-erp/essentia-erp/internal/inventory"
	"github.com/essentia-erp/essentia-erp/internal/platform/db"
)

// Repository is the pgx implementation of RepositoryPort.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the purchasing repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one retryable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const orderColumns = `id, number, supplier_id, status, expected_date, note, created_by,
	received_by, COALESCE(received_by_name, ''), received_at, created_at, updated_at`

// Get loads one order with lines and item display fields.
func (r *Repository) Get(ctx context.Context, id int64) (PurchaseOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM purchase_orders WHERE id = $1`, id)
	po, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return PurchaseOrder{}, ErrNotFound
	}
	if err != nil {
		return PurchaseOrder{}, err
	}
	po.Lines, err = r.loadLines(ctx, id)
	return po, err
}

func (r *Repository) loadLines(ctx context.Context, orderID int64) ([]Line, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.purchase_order_id, l.item_type, l.item_id,
			COALESCE(m.code, f.code, ''), COALESCE(m.name, f.name, ''),
			l.qty, l.unit_cost, l.received_qty
		FROM purchase_order_items l
		LEFT JOIN materials m ON l.item_type = 'material' AND m.id = l.item_id
		LEFT JOIN fragrances f ON l.item_type = 'fragrance' AND f.id = l.item_id
		WHERE l.purchase_order_id = $1
		ORDER BY l.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var l Line
		if err := rows.Scan(&l.ID, &l.OrderID, &l.ItemType, &l.ItemID, &l.ItemCode, &l.ItemName,
			&l.Qty, &l.UnitCost, &l.ReceivedQty); err != nil {
			return nil, err
		}
		lines = append(lines, l)
	}
	return lines, rows.Err()
}

// List returns order headers matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]PurchaseOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0

	if filter.Status != "" {
		argCount++
		where += ` AND status = $` + strconv.Itoa(argCount)
		args = append(args, filter.Status)
	}
	if filter.SupplierID > 0 {
		argCount++
		where += ` AND supplier_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.SupplierID)
	}
	if filter.Search != "" {
		argCount++
		where += ` AND number ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filter.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + orderColumns + ` FROM purchase_orders` + where + ` ORDER BY created_at DESC, id DESC`
	if filter.PerPage > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filter.PerPage)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filter.Page - 1) * filter.PerPage
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var orders []PurchaseOrder
	for rows.Next() {
		po, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, po)
	}
	return orders, total, rows.Err()
}

// Delete removes a draft order and its lines.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE purchase_order_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM purchase_orders WHERE id = $1 AND status = 'DRAFT'`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrNotFound
		}
		return nil
	})
}

type txRepository struct {
	tx pgx.Tx
}

func (t *txRepository) CreateOrder(ctx context.Context, po PurchaseOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_orders
		(number, supplier_id, status, expected_date, note, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, now(), now()) RETURNING id`,
		po.Number, po.SupplierID, po.Status, po.ExpectedDate, po.Note, po.CreatedBy).Scan(&id)
	return id, err
}

// NextNumber issues PO-YYYYMMDD-NNN, counting within the day.
func (t *txRepository) NextNumber(ctx context.Context, date time.Time) (string, error) {
	prefix := "PO-" + date.Format("20060102")
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM purchase_orders WHERE number LIKE $1`, prefix+"-%").Scan(&count)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%03d", prefix, count+1), nil
}

func (t *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO purchase_order_items
		(purchase_order_id, item_type, item_id, qty, unit_cost)
		VALUES ($1, $2, $3, $4, $5) RETURNING id`,
		line.OrderID, line.ItemType, line.ItemID, line.Qty, line.UnitCost).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateOrderHeader(ctx context.Context, po PurchaseOrder) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders
		SET supplier_id = $1, expected_date = $2, note = $3, updated_at = now()
		WHERE id = $4`,
		po.SupplierID, po.ExpectedDate, po.Note, po.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) DeleteLines(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM purchase_order_items WHERE purchase_order_id = $1`, orderID)
	return err
}

func (t *txRepository) SetStatus(ctx context.Context, orderID int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE purchase_orders SET status = $1, updated_at = now() WHERE id = $2`,
		status, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) SetLineReceived(ctx context.Context, lineID int64, qty decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE purchase_order_items SET received_qty = $1 WHERE id = $2`, qty, lineID)
	return err
}

func (t *txRepository) Inventory() inventory.TxRepository {
	return inventory.NewTxRepository(t.tx)
}

func scanOrder(row pgx.Row) (PurchaseOrder, error) {
	var po PurchaseOrder
	err := row.Scan(&po.ID, &po.Number, &po.SupplierID, &po.Status, &po.ExpectedDate, &po.Note,
		&po.CreatedBy, &po.ReceivedBy, &po.ReceivedByName, &po.ReceivedAt, &po.CreatedAt, &po.UpdatedAt)
	return po, err
}
