package fragrances

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/essentia-erp/essentia-erp/internal/masterdata/shared"
	"github.com/essentia-erp/essentia-erp/internal/platform/db"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Fragrance, int, error)
	Get(ctx context.Context, id int64) (Fragrance, error)
	Create(ctx context.Context, fragrance Fragrance) (Fragrance, error)
	Update(ctx context.Context, id int64, fragrance Fragrance) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

const fragranceColumns = `id, code, name, unit, current_stock, safety_stock_level, cost_per_unit,
	remarks, last_stock_update, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Fragrance, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.BelowSafety {
		where += ` AND current_stock < safety_stock_level`
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM fragrances`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + fragranceColumns + ` FROM fragrances` + where +
		" ORDER BY " + sortOrder(filters.SortBy, filters.SortDir)
	if filters.Limit > 0 {
		argCount++
		query += ` LIMIT $` + strconv.Itoa(argCount)
		args = append(args, filters.Limit)

		argCount++
		query += ` OFFSET $` + strconv.Itoa(argCount)
		offset := (filters.Page - 1) * filters.Limit
		if offset < 0 {
			offset = 0
		}
		args = append(args, offset)
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Fragrance
	for rows.Next() {
		f, err := scanFragrance(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, f)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Fragrance, error) {
	row := r.db.QueryRow(ctx, `SELECT `+fragranceColumns+` FROM fragrances WHERE id = $1`, id)
	f, err := scanFragrance(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Fragrance{}, shared.ErrNotFound
	}
	if err != nil {
		return Fragrance{}, err
	}
	f.Formula, err = r.loadFormula(ctx, id)
	return f, err
}

func (r *repository) loadFormula(ctx context.Context, fragranceID int64) ([]Component, error) {
	rows, err := r.db.Query(ctx, `
		SELECT fc.material_id, m.code, m.name, fc.qty_per_kg
		FROM fragrance_components fc
		JOIN materials m ON m.id = fc.material_id
		WHERE fc.fragrance_id = $1
		ORDER BY m.code`, fragranceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var formula []Component
	for rows.Next() {
		var c Component
		if err := rows.Scan(&c.MaterialID, &c.MaterialCode, &c.MaterialName, &c.QtyPerKg); err != nil {
			return nil, err
		}
		formula = append(formula, c)
	}
	return formula, rows.Err()
}

func (r *repository) Create(ctx context.Context, fragrance Fragrance) (Fragrance, error) {
	err := db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		code, err := shared.NextCode(ctx, tx, "fragrances_code_seq", "FRG")
		if err != nil {
			return err
		}
		now := time.Now().UTC()
		err = tx.QueryRow(ctx, `INSERT INTO fragrances (code, name, unit, current_stock,
			safety_stock_level, cost_per_unit, remarks, created_at, updated_at)
			VALUES ($1, $2, $3, 0, $4, $5, $6, $7, $7) RETURNING id`,
			code, fragrance.Name, fragrance.Unit, fragrance.SafetyStockLevel,
			fragrance.CostPerUnit, fragrance.Remarks, now).Scan(&fragrance.ID)
		if err != nil {
			return err
		}
		fragrance.Code = code
		fragrance.CreatedAt = now
		fragrance.UpdatedAt = now
		return insertFormula(ctx, tx, fragrance.ID, fragrance.Formula)
	})
	if err != nil {
		if isUniqueViolation(err) {
			return Fragrance{}, shared.ErrDuplicate
		}
		return Fragrance{}, err
	}
	return fragrance, nil
}

// Update rewrites the formula wholesale; code, current_stock and
// last_stock_update stay untouched.
func (r *repository) Update(ctx context.Context, id int64, fragrance Fragrance) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `UPDATE fragrances SET name = $1, unit = $2, safety_stock_level = $3,
			cost_per_unit = $4, remarks = $5, updated_at = $6 WHERE id = $7`,
			fragrance.Name, fragrance.Unit, fragrance.SafetyStockLevel,
			fragrance.CostPerUnit, fragrance.Remarks, time.Now().UTC(), id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		if _, err := tx.Exec(ctx, `DELETE FROM fragrance_components WHERE fragrance_id = $1`, id); err != nil {
			return err
		}
		return insertFormula(ctx, tx, id, fragrance.Formula)
	})
}

func insertFormula(ctx context.Context, tx pgx.Tx, fragranceID int64, formula []Component) error {
	for _, c := range formula {
		_, err := tx.Exec(ctx, `INSERT INTO fragrance_components (fragrance_id, material_id, qty_per_kg)
			VALUES ($1, $2, $3)`, fragranceID, c.MaterialID, c.QtyPerKg)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	var inUse bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM purchase_order_items poi
		JOIN purchase_orders po ON po.id = poi.purchase_order_id
		WHERE poi.item_type = 'fragrance' AND poi.item_id = $1 AND po.status IN ('DRAFT', 'ORDERED')
		UNION ALL
		SELECT 1 FROM work_orders wo
		WHERE wo.fragrance_id = $1 AND wo.status IN ('UNCONFIRMED', 'FORECAST', 'IN_PROGRESS'))`, id).Scan(&inUse)
	if err != nil {
		return err
	}
	if inUse {
		return shared.ErrInUse
	}
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM fragrance_components WHERE fragrance_id = $1`, id); err != nil {
			return err
		}
		tag, err := tx.Exec(ctx, `DELETE FROM fragrances WHERE id = $1`, id)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrNotFound
		}
		return nil
	})
}

func scanFragrance(row pgx.Row) (Fragrance, error) {
	var f Fragrance
	err := row.Scan(&f.ID, &f.Code, &f.Name, &f.Unit, &f.CurrentStock, &f.SafetyStockLevel,
		&f.CostPerUnit, &f.Remarks, &f.LastStockUpdate, &f.CreatedAt, &f.UpdatedAt)
	return f, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == shared.SortDesc {
		dir = "DESC"
	}
	switch sortBy {
	case "name":
		return "name " + dir
	case "current_stock":
		return "current_stock " + dir
	case "created_at":
		return "created_at " + dir
	default:
		return "code " + dir
	}
}
