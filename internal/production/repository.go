package production

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

// NewRepository constructs the production repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx runs fn inside one retryable transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{tx: tx})
	})
}

const orderColumns = `wo.id, wo.number, wo.product_id, COALESCE(p.name, ''), wo.status,
	wo.target_quantity, wo.actual_quantity, wo.fragrance_id, wo.fragrance_dose, wo.note,
	wo.created_by, wo.completed_by, COALESCE(wo.completed_by_name, ''), wo.completed_at,
	wo.created_at, wo.updated_at`

// Get loads one work order with its components.
func (r *Repository) Get(ctx context.Context, id int64) (WorkOrder, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM work_orders wo
		LEFT JOIN products p ON p.id = wo.product_id WHERE wo.id = $1`, id)
	wo, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return WorkOrder{}, ErrNotFound
	}
	if err != nil {
		return WorkOrder{}, err
	}
	wo.Components, err = r.loadComponents(ctx, id)
	return wo, err
}

func (r *Repository) loadComponents(ctx context.Context, orderID int64) ([]Component, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT c.id, c.work_order_id, c.material_id, m.code, m.name, c.planned_qty, c.used_qty
		FROM work_order_components c
		JOIN materials m ON m.id = c.material_id
		WHERE c.work_order_id = $1
		ORDER BY c.id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var components []Component
	for rows.Next() {
		var c Component
		if err := rows.Scan(&c.ID, &c.WorkOrderID, &c.MaterialID, &c.MaterialCode, &c.MaterialName,
			&c.PlannedQty, &c.UsedQty); err != nil {
			return nil, err
		}
		components = append(components, c)
	}
	return components, rows.Err()
}

// List returns work order headers matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]WorkOrder, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0

	if filter.Status != "" {
		argCount++
		where += ` AND wo.status = $` + strconv.Itoa(argCount)
		args = append(args, filter.Status)
	}
	if filter.ProductID > 0 {
		argCount++
		where += ` AND wo.product_id = $` + strconv.Itoa(argCount)
		args = append(args, filter.ProductID)
	}
	if filter.Search != "" {
		argCount++
		where += ` AND wo.number ILIKE $` + strconv.Itoa(argCount)
		args = append(args, "%"+filter.Search+"%")
	}

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM work_orders wo`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + orderColumns + ` FROM work_orders wo
		LEFT JOIN products p ON p.id = wo.product_id` + where + ` ORDER BY wo.created_at DESC, wo.id DESC`
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

	var orders []WorkOrder
	for rows.Next() {
		wo, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		orders = append(orders, wo)
	}
	return orders, total, rows.Err()
}

// Delete removes an unconfirmed work order and its components.
func (r *Repository) Delete(ctx context.Context, id int64) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM work_order_components WHERE work_order_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM work_orders WHERE id = $1 AND status = 'UNCONFIRMED'`, id)
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

func (t *txRepository) CreateOrder(ctx context.Context, wo WorkOrder) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO work_orders
		(number, product_id, status, target_quantity, fragrance_id, fragrance_dose, note, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now(), now()) RETURNING id`,
		wo.Number, wo.ProductID, wo.Status, wo.TargetQuantity, wo.FragranceID,
		wo.FragranceDose, wo.Note, wo.CreatedBy).Scan(&id)
	return id, err
}

// NextNumber issues WO-YYYYMMDD-NNN, counting within the day.
func (t *txRepository) NextNumber(ctx context.Context, date time.Time) (string, error) {
	prefix := "WO-" + date.Format("20060102")
	var count int
	err := t.tx.QueryRow(ctx, `SELECT COUNT(*) FROM work_orders WHERE number LIKE $1`, prefix+"-%").Scan(&count)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%03d", prefix, count+1), nil
}

func (t *txRepository) InsertComponent(ctx context.Context, c Component) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO work_order_components
		(work_order_id, material_id, planned_qty)
		VALUES ($1, $2, $3) RETURNING id`,
		c.WorkOrderID, c.MaterialID, c.PlannedQty).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateOrderHeader(ctx context.Context, wo WorkOrder) error {
	tag, err := t.tx.Exec(ctx, `UPDATE work_orders
		SET product_id = $1, target_quantity = $2, fragrance_id = $3, fragrance_dose = $4,
			note = $5, updated_at = now()
		WHERE id = $6`,
		wo.ProductID, wo.TargetQuantity, wo.FragranceID, wo.FragranceDose, wo.Note, wo.ID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) DeleteComponents(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM work_order_components WHERE work_order_id = $1`, orderID)
	return err
}

func (t *txRepository) SetStatus(ctx context.Context, orderID int64, status Status) error {
	tag, err := t.tx.Exec(ctx, `UPDATE work_orders SET status = $1, updated_at = now() WHERE id = $2`,
		status, orderID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepository) SetActualQuantity(ctx context.Context, orderID int64, qty decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE work_orders SET actual_quantity = $1, updated_at = now() WHERE id = $2`,
		qty, orderID)
	return err
}

func (t *txRepository) SetComponentUsed(ctx context.Context, componentID int64, qty decimal.Decimal) error {
	_, err := t.tx.Exec(ctx, `UPDATE work_order_components SET used_qty = $1 WHERE id = $2`, qty, componentID)
	return err
}

func (t *txRepository) Inventory() inventory.TxRepository {
	return inventory.NewTxRepository(t.tx)
}

func scanOrder(row pgx.Row) (WorkOrder, error) {
	var wo WorkOrder
	err := row.Scan(&wo.ID, &wo.Number, &wo.ProductID, &wo.ProductName, &wo.Status,
		&wo.TargetQuantity, &wo.ActualQuantity, &wo.FragranceID, &wo.FragranceDose, &wo.Note,
		&wo.CreatedBy, &wo.CompletedBy, &wo.CompletedByName, &wo.CompletedAt,
		&wo.CreatedAt, &wo.UpdatedAt)
	return wo, err
}
