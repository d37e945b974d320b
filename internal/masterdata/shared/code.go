package shared

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RowQuerier is the minimal query surface NextCode needs; both a pool and an
// open transaction satisfy it.
type RowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NextCode draws the next value from a per-entity Postgres sequence and
// formats it as <prefix> plus a zero-padded four-digit number, e.g. MAT0007.
func NextCode(ctx context.Context, q RowQuerier, sequence, prefix string) (string, error) {
	var n int64
	if err := q.QueryRow(ctx, `SELECT nextval($1)`, sequence).Scan(&n); err != nil {
		return "", fmt.Errorf("next code from %s: %w", sequence, err)
	}
	return fmt.Sprintf("%s%04d", prefix, n), nil
}
