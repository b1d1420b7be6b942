package client

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Embedder produces finding and query vectors. Only masked text is sent.
type Embedder struct {
	client *genai.Client
	model  string // e.g., "text-embedding-004"
	dims   int32  // must match the qdrant collection size
}

func NewEmbedderFromClient(c *genai.Client, model string, dims int32) *Embedder {
	return &Embedder{
		client: c,
		model:  model,
		dims:   dims,
	}
}

func (e *Embedder) CreateEmbedding(ctx context.Context, text string) ([]float32, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, errors.New("embed: empty text")
	}
	res, err := e.client.Models.EmbedContent(ctx, e.model, genai.Text(text), e.config())
	if err != nil {
		return nil, classifyGenaiError(err)
	}
	if len(res.Embeddings) == 0 || len(res.Embeddings[0].Values) == 0 {
		return nil, fmt.Errorf("embedding model %s returned no vectors", e.model)
	}
	values := res.Embeddings[0].Values
	if e.dims > 0 && len(values) != int(e.dims) {
		return nil, fmt.Errorf("embedding model %s returned %d dimensions, collection expects %d", e.model, len(values), e.dims)
	}
	return values, nil
}

func (e *Embedder) config() *genai.EmbedContentConfig {
	if e.dims <= 0 {
		return nil
	}
	return &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(e.dims)}
}
