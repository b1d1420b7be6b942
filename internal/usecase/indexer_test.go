package usecase

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"auditlens/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReindexMasksAndStripsPeople(t *testing.T) {
	findings := sampleFindings()
	findings[0].Description = "Reported by jane.doe@corp.example after review."
	index := &fakeIndex{}
	x := NewFindingIndexer(&fakeStore{findings: findings}, index, NewMasker(), testLog)

	n, err := x.Reindex(context.Background(), nil)

	require.NoError(t, err)
	assert.Equal(t, len(findings), n)
	require.Len(t, index.indexed, len(findings))
	for _, f := range index.indexed {
		assert.Empty(t, f.Owner)
		assert.Empty(t, f.OwnerEmail)
		assert.Empty(t, f.Auditor)
	}
	assert.Equal(t, "Reported by [EMAIL_1] after review.", index.indexed[0].Description)
}

func TestReindexBatches(t *testing.T) {
	findings := make([]entity.Finding, indexBatchSize*2+5)
	for i := range findings {
		findings[i] = entity.Finding{ID: fmt.Sprintf("f%03d", i), Year: "2024"}
	}
	index := &fakeIndex{}
	x := NewFindingIndexer(&fakeStore{findings: findings}, index, NewMasker(), testLog)

	n, err := x.Reindex(context.Background(), []entity.QueryFilter{{Field: "year", Operator: entity.OpEqual, Value: "2024"}})

	require.NoError(t, err)
	assert.Equal(t, len(findings), n)
	assert.Len(t, index.indexed, len(findings))
}

func TestReindexErrors(t *testing.T) {
	x := NewFindingIndexer(&fakeStore{findings: sampleFindings()}, nil, NewMasker(), testLog)
	_, err := x.Reindex(context.Background(), nil)
	assert.ErrorIs(t, err, entity.ErrIndexUnavailable)

	x = NewFindingIndexer(&fakeStore{findings: sampleFindings()}, &fakeIndex{err: errors.New("qdrant down")}, NewMasker(), testLog)
	n, err := x.Reindex(context.Background(), nil)
	assert.Error(t, err)
	assert.Zero(t, n)
}
