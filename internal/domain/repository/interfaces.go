package repository

import (
	"context"
	"time"

	"auditlens/internal/domain/entity"
)

// RecordStore executes filter queries against the finding collection.
// Stores may support only a subset of operators natively; see
// usecase.ApplyFilters for the client-side remainder.
type RecordStore interface {
	Query(ctx context.Context, filters []entity.QueryFilter, sort entity.Sort, limit int) ([]entity.Finding, error)
}

// OperatorSupport is implemented by stores that evaluate more than
// equality natively. Stores without it receive equality filters only.
type OperatorSupport interface {
	Supports(op entity.Operator) bool
}

type AIProvider interface {
	Complete(ctx context.Context, req entity.CompletionRequest) (*entity.AIResponse, error)
}

// IntentExtractor returns the raw model text for the intent instruction.
type IntentExtractor interface {
	Extract(ctx context.Context, maskedQuery string) (string, error)
}

type Embedder interface {
	CreateEmbedding(ctx context.Context, text string) ([]float32, error)
}

// SemanticIndex scores findings by similarity to a query.
// The returned map is keyed by finding ID with scores in [0,1]. Only
// findings that can satisfy scope are scored.
type SemanticIndex interface {
	Similar(ctx context.Context, query string, scope entity.ExtractedFilters, limit int) (map[string]float32, error)
	Index(ctx context.Context, findings []entity.Finding) error
}

// Pseudonymizer is the remote, session-scoped pseudonym mapping service.
type Pseudonymizer interface {
	Pseudonymize(ctx context.Context, findings []entity.Finding, sessionID string) ([]entity.Finding, int, error)
	Depseudonymize(ctx context.Context, text, sessionID string) (string, error)
}

type TokenLimiter interface {
	CheckLimit(ctx context.Context, userID string) (bool, error)
	Increment(ctx context.Context, userID string, tokens int) error
}

// IntentCache stores recognized intents keyed by a digest of the masked query.
type IntentCache interface {
	Get(ctx context.Context, key string) (entity.RecognizedIntent, bool)
	Set(ctx context.Context, key string, intent entity.RecognizedIntent, ttl time.Duration)
}
