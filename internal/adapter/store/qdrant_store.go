package store

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auditlens/internal/domain/entity"
	"auditlens/internal/domain/repository"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// QdrantStore is the semantic finding index: one vector per finding,
// keyed by a UUID derived from the finding ID.
type QdrantStore struct {
	client         *qdrant.Client
	embedder       repository.Embedder
	collectionName string
	log            *zap.Logger
}

func NewQdrantStore(client *qdrant.Client, embedder repository.Embedder, collectionName string, log *zap.Logger) *QdrantStore {
	return &QdrantStore{
		client:         client,
		embedder:       embedder,
		collectionName: collectionName,
		log:            log.Named("qdrant"),
	}
}

func (s *QdrantStore) InitCollection(ctx context.Context, dim uint64) error {
	_, err := s.client.GetCollectionInfo(ctx, s.collectionName)
	if err != nil {
		st, ok := status.FromError(err)
		if ok && st.Code() == codes.NotFound {
			err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
				CollectionName: s.collectionName,
				VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
					Size:     dim,
					Distance: qdrant.Distance_Cosine,
				}),
			})
			if err != nil {
				return fmt.Errorf("failed to create collection: %w", err)
			}
		} else {
			return err
		}
	}

	// Payload indexes backing scopeFilter.
	indexes := map[string]qdrant.FieldType{
		"department": qdrant.FieldType_FieldTypeText,
		"year":       qdrant.FieldType_FieldTypeKeyword,
		"severity":   qdrant.FieldType_FieldTypeKeyword,
		"indexed_at": qdrant.FieldType_FieldTypeInteger,
	}
	for field, kind := range indexes {
		_, err = s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: s.collectionName,
			FieldName:      field,
			FieldType:      kind.Enum(),
			Wait:           qdrant.PtrOf(true),
		})
		if err != nil {
			s.log.Warn("could not create payload index (might already exist)", zap.String("field", field), zap.Error(err))
		}
	}
	return nil
}

// Similar embeds query and returns the closest findings within scope, with
// scores clamped to [0,1].
func (s *QdrantStore) Similar(ctx context.Context, query string, scope entity.ExtractedFilters, limit int) (map[string]float32, error) {
	vector, err := s.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: embed query: %w", entity.ErrIndexUnavailable, err)
	}
	if limit <= 0 {
		limit = 100
	}

	res, err := s.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: s.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Filter:         scopeFilter(scope),
		Limit:          qdrant.PtrOf(uint64(limit)),
		WithPayload:    qdrant.NewWithPayloadInclude("finding_id"),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrIndexUnavailable, err)
	}

	out := make(map[string]float32, len(res))
	for _, hit := range res {
		id := hit.Payload["finding_id"].GetStringValue()
		if id == "" {
			continue
		}
		out[id] = min(max(hit.Score, 0), 1)
	}
	return out, nil
}

// scopeFilter mirrors the record store predicates the index can answer:
// exact year and severity, department by word. Payload strings are stored
// lower-cased. Returns nil when nothing constrains the search.
func scopeFilter(scope entity.ExtractedFilters) *qdrant.Filter {
	var must []*qdrant.Condition
	if scope.Year != "" {
		must = append(must, qdrant.NewMatch("year", scope.Year))
	}
	if scope.Severity != "" {
		must = append(must, qdrant.NewMatch("severity", strings.ToLower(scope.Severity)))
	}
	if scope.Department != "" {
		must = append(must, qdrant.NewMatchText("department", strings.ToLower(scope.Department)))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// Index embeds and upserts findings.
func (s *QdrantStore) Index(ctx context.Context, findings []entity.Finding) error {
	if len(findings) == 0 {
		return nil
	}
	now := time.Now().Unix()
	points := make([]*qdrant.PointStruct, 0, len(findings))
	for _, f := range findings {
		vector, err := s.embedder.CreateEmbedding(ctx, EmbeddingText(f))
		if err != nil {
			return fmt.Errorf("embed finding %s: %w", f.ID, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewIDUUID(PointID(f.ID)),
			Vectors: qdrant.NewVectors(vector...),
			Payload: qdrant.NewValueMap(map[string]any{
				"finding_id": f.ID,
				"department": strings.ToLower(f.Department),
				"year":       f.Year,
				"severity":   strings.ToLower(f.Severity),
				"indexed_at": now,
			}),
		})
	}

	_, err := s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: s.collectionName,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	return err
}

// PointID derives a stable Qdrant point ID from a finding ID.
func PointID(findingID string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte("finding:"+findingID)).String()
}

// EmbeddingText is the text embedded for a finding. Person fields are left
// out; free text is expected to be masked by the caller.
func EmbeddingText(f entity.Finding) string {
	parts := []string{f.Title, f.Area, f.Department, f.Project, f.ProjectType, f.Description, f.Recommendation}
	var kept []string
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			kept = append(kept, p)
		}
	}
	return strings.Join(kept, "\n")
}
