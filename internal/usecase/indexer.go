package usecase

import (
	"context"
	"fmt"

	"auditlens/internal/domain/entity"
	"auditlens/internal/domain/repository"

	"go.uber.org/zap"
)

const indexBatchSize = 64

// FindingIndexer loads findings from the record store into the semantic
// index. Free text is masked before it leaves the process.
type FindingIndexer struct {
	store  repository.RecordStore
	index  repository.SemanticIndex
	masker *Masker
	log    *zap.Logger
}

func NewFindingIndexer(store repository.RecordStore, index repository.SemanticIndex, masker *Masker, log *zap.Logger) *FindingIndexer {
	return &FindingIndexer{store: store, index: index, masker: masker, log: log.Named("indexer")}
}

// Reindex embeds every finding matching filters and returns the count.
func (x *FindingIndexer) Reindex(ctx context.Context, filters []entity.QueryFilter) (int, error) {
	if x.index == nil {
		return 0, entity.ErrIndexUnavailable
	}
	findings, err := QueryStore(ctx, x.store, filters, entity.Sort{Field: "id"}, 0, 0)
	if err != nil {
		return 0, err
	}

	for start := 0; start < len(findings); start += indexBatchSize {
		end := min(start+indexBatchSize, len(findings))
		batch := make([]entity.Finding, 0, end-start)
		for _, f := range findings[start:end] {
			batch = append(batch, x.maskForIndex(f))
		}
		if err := x.index.Index(ctx, batch); err != nil {
			return start, fmt.Errorf("index batch at %d: %w", start, err)
		}
	}
	x.log.Info("findings indexed", zap.Int("count", len(findings)))
	return len(findings), nil
}

func (x *FindingIndexer) maskForIndex(f entity.Finding) entity.Finding {
	s := x.masker.NewSession()
	f.Title = s.Mask(f.Title)
	f.Description = s.Mask(f.Description)
	f.Recommendation = s.Mask(f.Recommendation)
	f.Owner, f.OwnerEmail, f.Auditor = "", "", ""
	return f
}
