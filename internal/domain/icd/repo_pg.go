package icd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &repoPG{pool: pool} }

func (r *repoPG) Search(ctx context.Context, query string, limit int) ([]Code, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + query + "%"
	rows, err := r.pool.Query(ctx,
		`SELECT code, description
		 FROM reference_icd_codes
		 WHERE code ILIKE $1 OR description ILIKE $1
		 ORDER BY code LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("icd search: %w", err)
	}
	defer rows.Close()
	var results []Code
	for rows.Next() {
		var c Code
		if err := rows.Scan(&c.Code, &c.Description); err != nil {
			return nil, err
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

// PointsTable loads the full HIPPS point reference. Loaded once per session
// and captured in a lookup closure; codes without a row contribute nothing.
func (r *repoPG) PointsTable(ctx context.Context) (map[string]PointEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT code, hipps_points, is_hipps_contributor
		 FROM reference_icd_codes
		 WHERE hipps_points > 0 OR is_hipps_contributor`)
	if err != nil {
		return nil, fmt.Errorf("icd points: %w", err)
	}
	defer rows.Close()
	table := make(map[string]PointEntry)
	for rows.Next() {
		var code string
		var e PointEntry
		if err := rows.Scan(&code, &e.Points, &e.Contributor); err != nil {
			return nil, err
		}
		table[code] = e
	}
	return table, rows.Err()
}

func (r *repoPG) GetByCode(ctx context.Context, code string) (*Code, error) {
	var c Code
	err := r.pool.QueryRow(ctx,
		`SELECT code, description FROM reference_icd_codes WHERE code = $1`, code).
		Scan(&c.Code, &c.Description)
	if err != nil {
		return nil, fmt.Errorf("icd get: %w", err)
	}
	return &c, nil
}
