package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"auditlens/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func seedFindings() []entity.Finding {
	return []entity.Finding{
		{ID: "a", Department: "IT", Year: "2024", Severity: "High", SeverityScore: 7.5, Tags: []string{"access"}},
		{ID: "b", Department: "Finance", Year: "2024", Severity: "Critical", SeverityScore: 9.0},
		{ID: "c", Department: "Finance", Year: "2023", Severity: "Low", SeverityScore: 2.0, Tags: []string{"vendor", "access"}},
	}
}

func ids(findings []entity.Finding) []string {
	out := make([]string, len(findings))
	for i, f := range findings {
		out[i] = f.ID
	}
	return out
}

func TestMemoryRecordStoreQuery(t *testing.T) {
	s := NewMemoryRecordStore(seedFindings())
	ctx := context.Background()

	rows, err := s.Query(ctx, []entity.QueryFilter{{Field: "department", Operator: entity.OpEqual, Value: "finance"}}, entity.Sort{Field: "severity_score", Descending: true}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"b", "c"}, ids(rows))

	rows, err = s.Query(ctx, []entity.QueryFilter{{Field: "tags", Operator: entity.OpArrayContains, Value: "access"}}, entity.Sort{Field: "id"}, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, ids(rows))

	rows, err = s.Query(ctx, []entity.QueryFilter{{Field: "severity_score", Operator: entity.OpLess, Value: 8}}, entity.Sort{}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "c"}, ids(rows))

	assert.True(t, s.Supports(entity.OpContains))
	assert.False(t, s.Supports("~"))
}

func TestMemoryRecordStoreUpsert(t *testing.T) {
	s := NewMemoryRecordStore(seedFindings())
	s.Upsert(entity.Finding{ID: "a", Department: "HR"}, entity.Finding{ID: "d"})

	rows, err := s.Query(context.Background(), nil, entity.Sort{Field: "id"}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, ids(rows))
	assert.Equal(t, "HR", rows[0].Department)
}

func TestMemoryRecordStoreCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMemoryRecordStore(nil).Query(ctx, nil, entity.Sort{}, 0)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestMemoryIntentCacheExpiry(t *testing.T) {
	c := NewMemoryIntentCache(10, 50*time.Millisecond)
	ctx := context.Background()

	c.Set(ctx, "k", entity.RecognizedIntent{IntentText: "x", Confidence: 0.5}, time.Hour)
	got, ok := c.Get(ctx, "k")
	require.True(t, ok)
	assert.Equal(t, "x", got.IntentText)

	assert.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "k")
		return !ok
	}, time.Second, 10*time.Millisecond)
}

func TestMemoryIntentCacheEviction(t *testing.T) {
	c := NewMemoryIntentCache(8, time.Hour)
	ctx := context.Background()
	for i := range 9 {
		c.Set(ctx, fmt.Sprintf("k%d", i), entity.RecognizedIntent{}, time.Hour)
	}

	assert.Equal(t, 8, c.Len())
	_, ok := c.Get(ctx, "k0")
	assert.False(t, ok)
	_, ok = c.Get(ctx, "k8")
	assert.True(t, ok)
}
