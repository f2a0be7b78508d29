package icd

import (
	"context"
	"fmt"
	"strings"
)

// MinQueryLength is the minimum search string length; shorter queries never
// reach the repository.
const MinQueryLength = 3

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Search validates and runs a reference lookup. An empty result set is a
// non-nil empty slice so the wire shape stays a JSON array.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Code, error) {
	query = strings.TrimSpace(query)
	if len(query) < MinQueryLength {
		return nil, fmt.Errorf("search_string must be at least %d characters", MinQueryLength)
	}
	results, err := s.repo.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}
	if results == nil {
		results = []Code{}
	}
	return results, nil
}

// PointsLookup loads the HIPPS point reference and returns a lookup
// closure. Unknown codes report zero points and no contribution.
func (s *Service) PointsLookup(ctx context.Context) (func(code string) (int, bool), error) {
	table, err := s.repo.PointsTable(ctx)
	if err != nil {
		return nil, err
	}
	return func(code string) (int, bool) {
		e, ok := table[code]
		if !ok {
			return 0, false
		}
		return e.Points, e.Contributor
	}, nil
}
