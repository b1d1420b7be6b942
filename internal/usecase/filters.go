package usecase

import (
	"context"
	"fmt"

	"auditlens/internal/domain/entity"
	"auditlens/internal/domain/repository"
)

// BuildQueryFilters translates extracted filters into store predicates.
// Keywords are not turned into predicates; they only drive ranking.
func BuildQueryFilters(f entity.ExtractedFilters) []entity.QueryFilter {
	var out []entity.QueryFilter
	if f.Severity != "" {
		out = append(out, entity.QueryFilter{Field: "severity", Operator: entity.OpEqual, Value: f.Severity})
	}
	if f.Status != "" {
		out = append(out, entity.QueryFilter{Field: "status", Operator: entity.OpEqual, Value: f.Status})
	}
	if f.Year != "" {
		out = append(out, entity.QueryFilter{Field: "year", Operator: entity.OpEqual, Value: f.Year})
	}
	if f.Department != "" {
		out = append(out, entity.QueryFilter{Field: "department", Operator: entity.OpContains, Value: f.Department})
	}
	if f.ProjectType != "" {
		out = append(out, entity.QueryFilter{Field: "project_type", Operator: entity.OpContains, Value: f.ProjectType})
	}
	if dr := f.DateRange; dr != nil {
		if !dr.Start.IsZero() {
			out = append(out, entity.QueryFilter{Field: "identified_at", Operator: entity.OpGreaterEqual, Value: dr.Start})
		}
		if !dr.End.IsZero() {
			out = append(out, entity.QueryFilter{Field: "identified_at", Operator: entity.OpLessEqual, Value: dr.End})
		}
	}
	return out
}

// splitFilters separates the predicates a store evaluates natively from
// those that must run client-side.
func splitFilters(store repository.RecordStore, filters []entity.QueryFilter) (native, remainder []entity.QueryFilter) {
	support, _ := store.(repository.OperatorSupport)
	for _, f := range filters {
		if f.Operator == entity.OpEqual || (support != nil && support.Supports(f.Operator)) {
			native = append(native, f)
			continue
		}
		remainder = append(remainder, f)
	}
	return native, remainder
}

// QueryStore runs filters against store, evaluating unsupported operators
// client-side over a widened fetch of fetchLimit rows.
func QueryStore(ctx context.Context, store repository.RecordStore, filters []entity.QueryFilter, sort entity.Sort, limit, fetchLimit int) ([]entity.Finding, error) {
	for _, f := range filters {
		if !f.Operator.Valid() {
			return nil, fmt.Errorf("%w: unknown operator %q on %s", entity.ErrValidation, f.Operator, f.Field)
		}
	}
	native, remainder := splitFilters(store, filters)
	fetch := limit
	if len(remainder) > 0 && fetchLimit > fetch {
		fetch = fetchLimit
	}

	rows, err := store.Query(ctx, native, sort, fetch)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrDatabase, err)
	}
	rows = ApplyFilters(rows, remainder)
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

// ApplyFilters keeps findings matching every filter.
func ApplyFilters(findings []entity.Finding, filters []entity.QueryFilter) []entity.Finding {
	if len(filters) == 0 {
		return findings
	}
	out := make([]entity.Finding, 0, len(findings))
	for _, f := range findings {
		if entity.MatchesAll(f, filters) {
			out = append(out, f)
		}
	}
	return out
}
