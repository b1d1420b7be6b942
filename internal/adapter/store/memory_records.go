package store

import (
	"context"
	"slices"
	"sync"

	"auditlens/internal/domain/entity"
)

// MemoryRecordStore serves findings from memory. It evaluates every
// operator natively and backs local runs and tests.
type MemoryRecordStore struct {
	mu       sync.RWMutex
	findings []entity.Finding
}

func NewMemoryRecordStore(findings []entity.Finding) *MemoryRecordStore {
	return &MemoryRecordStore{findings: slices.Clone(findings)}
}

func (s *MemoryRecordStore) Supports(op entity.Operator) bool { return op.Valid() }

func (s *MemoryRecordStore) Query(ctx context.Context, filters []entity.QueryFilter, sort entity.Sort, limit int) ([]entity.Finding, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]entity.Finding, 0, len(s.findings))
	for _, f := range s.findings {
		if entity.MatchesAll(f, filters) {
			out = append(out, f)
		}
	}
	s.mu.RUnlock()

	slices.SortStableFunc(out, func(a, b entity.Finding) int {
		switch {
		case sort.Less(a, b):
			return -1
		case sort.Less(b, a):
			return 1
		}
		return 0
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Upsert replaces findings with matching IDs and appends the rest.
func (s *MemoryRecordStore) Upsert(findings ...entity.Finding) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range findings {
		i := slices.IndexFunc(s.findings, func(x entity.Finding) bool { return x.ID == f.ID })
		if i >= 0 {
			s.findings[i] = f
			continue
		}
		s.findings = append(s.findings, f)
	}
}
