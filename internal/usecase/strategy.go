package usecase

import "auditlens/internal/domain/entity"

// SelectStrategy maps a recognized intent to an execution path. It is pure:
// the same inputs always produce the same strategy.
//
// Keywords force hybrid even without an analysis request, so purely lexical
// searches still get ranked context.
func SelectStrategy(intent entity.RecognizedIntent, filters entity.ExtractedFilters, override entity.QueryType) entity.QueryType {
	if override.Valid() {
		return override
	}
	if len(filters.Keywords) > 0 {
		return entity.QueryHybrid
	}
	if intent.RequiresAnalysis {
		if filters.HasAny() {
			return entity.QueryHybrid
		}
		return entity.QueryComplex
	}
	return entity.QuerySimple
}
