package icd

import "context"

// Repository looks up ICD-10 reference codes.
type Repository interface {
	Search(ctx context.Context, query string, limit int) ([]Code, error)
	GetByCode(ctx context.Context, code string) (*Code, error)
	PointsTable(ctx context.Context) (map[string]PointEntry, error)
}
