package materials

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/essentia-erp/essentia-erp/internal/masterdata/shared"
)

type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Material, int, error)
	Get(ctx context.Context, id int64) (Material, error)
	Create(ctx context.Context, material Material) (Material, error)
	Update(ctx context.Context, id int64, material Material) error
	Delete(ctx context.Context, id int64) error
}

type repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const materialColumns = `id, code, name, unit, current_stock, safety_stock_level, cost_per_unit,
	supplier_id, remarks, last_stock_update, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Material, int, error) {
	where := ` WHERE 1=1`
	args := []any{}
	argCount := 0

	if filters.Search != "" {
		argCount++
		where += ` AND (name ILIKE $` + strconv.Itoa(argCount) + ` OR code ILIKE $` + strconv.Itoa(argCount) + `)`
		args = append(args, "%"+filters.Search+"%")
	}
	if filters.SupplierID != nil {
		argCount++
		where += ` AND supplier_id = $` + strconv.Itoa(argCount)
		args = append(args, *filters.SupplierID)
	}
	if filters.BelowSafety {
		where += ` AND current_stock < safety_stock_level`
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM materials`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + materialColumns + ` FROM materials` + where +
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

	var list []Material
	for rows.Next() {
		m, err := scanMaterial(rows)
		if err != nil {
			return nil, 0, err
		}
		list = append(list, m)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Material, error) {
	row := r.db.QueryRow(ctx, `SELECT `+materialColumns+` FROM materials WHERE id = $1`, id)
	m, err := scanMaterial(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Material{}, shared.ErrNotFound
	}
	return m, err
}

func (r *repository) Create(ctx context.Context, material Material) (Material, error) {
	code, err := shared.NextCode(ctx, r.db, "materials_code_seq", "MAT")
	if err != nil {
		return Material{}, err
	}
	now := time.Now().UTC()
	query := `INSERT INTO materials (code, name, unit, current_stock, safety_stock_level, cost_per_unit,
		supplier_id, remarks, created_at, updated_at)
		VALUES ($1, $2, $3, 0, $4, $5, $6, $7, $8, $8) RETURNING id`
	err = r.db.QueryRow(ctx, query,
		code, material.Name, material.Unit, material.SafetyStockLevel,
		material.CostPerUnit, material.SupplierID, material.Remarks, now).Scan(&material.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return Material{}, shared.ErrDuplicate
		}
		return Material{}, err
	}
	material.Code = code
	material.CreatedAt = now
	material.UpdatedAt = now
	return material, nil
}

// Update never touches code, current_stock or last_stock_update.
func (r *repository) Update(ctx context.Context, id int64, material Material) error {
	query := `UPDATE materials SET name = $1, unit = $2, safety_stock_level = $3, cost_per_unit = $4,
		supplier_id = $5, remarks = $6, updated_at = $7 WHERE id = $8`
	tag, err := r.db.Exec(ctx, query,
		material.Name, material.Unit, material.SafetyStockLevel, material.CostPerUnit,
		material.SupplierID, material.Remarks, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id int64) error {
	var inUse bool
	err := r.db.QueryRow(ctx, `SELECT EXISTS (
		SELECT 1 FROM purchase_order_items poi
		JOIN purchase_orders po ON po.id = poi.purchase_order_id
		WHERE poi.item_type = 'material' AND poi.item_id = $1 AND po.status IN ('DRAFT', 'ORDERED')
		UNION ALL
		SELECT 1 FROM work_order_components woc
		JOIN work_orders wo ON wo.id = woc.work_order_id
		WHERE woc.material_id = $1 AND wo.status IN ('UNCONFIRMED', 'FORECAST', 'IN_PROGRESS'))`, id).Scan(&inUse)
	if err != nil {
		return err
	}
	if inUse {
		return shared.ErrInUse
	}
	tag, err := r.db.Exec(ctx, `DELETE FROM materials WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func scanMaterial(row pgx.Row) (Material, error) {
	var m Material
	err := row.Scan(&m.ID, &m.Code, &m.Name, &m.Unit, &m.CurrentStock, &m.SafetyStockLevel,
		&m.CostPerUnit, &m.SupplierID, &m.Remarks, &m.LastStockUpdate, &m.CreatedAt, &m.UpdatedAt)
	return m, err
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
