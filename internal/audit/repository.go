package audit

import (
	"context"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// WindowParams selects a filtered page of timeline rows.
type WindowParams struct {
	From   time.Time
	To     time.Time
	Actor  string
	Entity string
	Action string
	Offset int
	Limit  int
}

// Repository provides read access to audit_logs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TimelineWindow returns one page of the timeline, newest first.
func (r *Repository) TimelineWindow(ctx context.Context, params WindowParams) ([]TimelineRow, error) {
	query, args := buildTimelineQuery(params.From, params.To, params.Actor, params.Entity, params.Action)
	query += " ORDER BY occurred_at DESC"
	if params.Limit > 0 {
		args = append(args, params.Limit)
		query += " LIMIT $" + itoa(len(args))
	}
	if params.Offset > 0 {
		args = append(args, params.Offset)
		query += " OFFSET $" + itoa(len(args))
	}
	return r.queryRows(ctx, query, args)
}

// TimelineAll returns the whole filtered timeline, newest first.
func (r *Repository) TimelineAll(ctx context.Context, params WindowParams) ([]TimelineRow, error) {
	query, args := buildTimelineQuery(params.From, params.To, params.Actor, params.Entity, params.Action)
	query += " ORDER BY occurred_at DESC"
	return r.queryRows(ctx, query, args)
}

func (r *Repository) queryRows(ctx context.Context, query string, args []any) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var result []TimelineRow
	for rows.Next() {
		var row TimelineRow
		var metaJSON []byte
		if err := rows.Scan(&row.At, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &metaJSON); err != nil {
			return nil, err
		}
		if len(metaJSON) > 0 {
			_ = json.Unmarshal(metaJSON, &row.Meta)
		}
		result = append(result, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func buildTimelineQuery(from, to time.Time, actor, entity, action string) (string, []any) {
	query := `SELECT occurred_at, actor_name, action, entity, entity_id, meta FROM audit_logs WHERE 1=1`
	args := make([]any, 0, 5)
	if !from.IsZero() {
		args = append(args, from)
		query += " AND occurred_at >= $" + itoa(len(args))
	}
	if !to.IsZero() {
		args = append(args, to)
		query += " AND occurred_at <= $" + itoa(len(args))
	}
	if actor = strings.TrimSpace(actor); actor != "" {
		args = append(args, "%"+actor+"%")
		query += " AND actor_name ILIKE $" + itoa(len(args))
	}
	if entity = strings.TrimSpace(entity); entity != "" {
		args = append(args, entity)
		query += " AND entity = $" + itoa(len(args))
	}
	if action = strings.TrimSpace(action); action != "" {
		args = append(args, action)
		query += " AND action = $" + itoa(len(args))
	}
	return query, args
}

func itoa(n int) string { return strconv.Itoa(n) }
