package store

import (
	"strings"
	"testing"
	"time"

	"auditlens/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildFindingQuery(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	sql, args, err := buildFindingQuery([]entity.QueryFilter{
		{Field: "severity", Operator: entity.OpEqual, Value: "Critical"},
		{Field: "department", Operator: entity.OpContains, Value: "R&D_100%"},
		{Field: "identified_at", Operator: entity.OpGreaterEqual, Value: start},
		{Field: "status", Operator: entity.OpIn, Value: []string{"Open", "In Progress"}},
		{Field: "tags", Operator: entity.OpArrayContains, Value: "vendor"},
		{Field: "severity_score", Operator: entity.OpNotEqual, Value: 0.0},
	}, entity.Sort{Field: "severity_score", Descending: true}, 20)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(sql, "SELECT id, code"))
	assert.Contains(t, sql, "WHERE lower(severity) = $1 AND lower(department) LIKE $2 AND identified_at >= $3 AND lower(status) = ANY($4) AND $5 = ANY(tags) AND severity_score <> $6")
	assert.Contains(t, sql, "ORDER BY severity_score DESC, id")
	assert.True(t, strings.HasSuffix(sql, "LIMIT $7"))
	assert.Equal(t, []any{
		"critical",
		`%r&d\_100\%%`,
		start,
		[]string{"open", "in progress"},
		"vendor",
		0.0,
		20,
	}, args)
}

func TestBuildFindingQueryNoFilters(t *testing.T) {
	sql, args, err := buildFindingQuery(nil, entity.Sort{}, 0)
	require.NoError(t, err)
	assert.NotContains(t, sql, "WHERE")
	assert.NotContains(t, sql, "ORDER BY")
	assert.NotContains(t, sql, "LIMIT")
	assert.Empty(t, args)
}

func TestBuildFindingQueryRejectsUnsafeInput(t *testing.T) {
	cases := []struct {
		filters []entity.QueryFilter
		sort    entity.Sort
	}{
		{filters: []entity.QueryFilter{{Field: "1=1; DROP TABLE findings", Operator: entity.OpEqual, Value: "x"}}},
		{filters: []entity.QueryFilter{{Field: "year", Operator: "~", Value: "2024"}}},
		{filters: []entity.QueryFilter{{Field: "tags", Operator: entity.OpEqual, Value: "x"}}},
		{filters: []entity.QueryFilter{{Field: "year", Operator: entity.OpArrayContains, Value: "2024"}}},
		{filters: []entity.QueryFilter{{Field: "status", Operator: entity.OpIn, Value: "Open"}}},
		{filters: []entity.QueryFilter{{Field: "severity_score", Operator: entity.OpContains, Value: "7"}}},
		{sort: entity.Sort{Field: "random()"}},
	}
	for _, c := range cases {
		_, _, err := buildFindingQuery(c.filters, c.sort, 10)
		assert.ErrorIs(t, err, entity.ErrValidation)
	}
}
