package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"auditlens/internal/domain/entity"

	"google.golang.org/genai"
)

// thinkingBudgets maps the caller's effort onto Gemini thinking budgets.
// A zero budget disables thinking.
var thinkingBudgets = map[entity.ThinkingEffort]int32{
	entity.ThinkingNone: 0,
	entity.ThinkingLow:  1024,
	entity.ThinkingHigh: 8192,
}

type GeminiClient struct {
	client *genai.Client
	model  string
}

func NewGeminiClientFromClient(c *genai.Client, model string) *GeminiClient {
	return &GeminiClient{
		client: c,
		model:  model,
	}
}

func (g *GeminiClient) Model() string { return g.model }

func (g *GeminiClient) Complete(ctx context.Context, req entity.CompletionRequest) (*entity.AIResponse, error) {
	start := time.Now()
	result, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.Prompt), completionConfig(req))
	if err != nil {
		return nil, classifyGenaiError(err)
	}

	text := result.Text()
	if text == "" {
		return nil, &entity.TerminalError{Err: fmt.Errorf("model %s returned no text", g.model)}
	}

	resp := &entity.AIResponse{
		Content: text,
		Model:   g.model,
		Latency: time.Since(start).Milliseconds(),
	}
	if result.UsageMetadata != nil {
		resp.TokenCount = int(result.UsageMetadata.TotalTokenCount)
	}
	return resp, nil
}

func completionConfig(req entity.CompletionRequest) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemPrompt != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemPrompt, genai.RoleUser)
	}
	if budget, ok := thinkingBudgets[req.ThinkingEffort]; ok {
		cfg.ThinkingConfig = &genai.ThinkingConfig{ThinkingBudget: genai.Ptr(budget)}
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	return cfg
}

// classifyGenaiError separates quota exhaustion and transient server
// failures from requests that will never succeed.
func classifyGenaiError(err error) error {
	code := 0
	var apiErr genai.APIError
	var apiErrPtr *genai.APIError
	switch {
	case errors.As(err, &apiErr):
		code = apiErr.Code
	case errors.As(err, &apiErrPtr):
		code = apiErrPtr.Code
	default:
		return err
	}

	switch {
	case code == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %w", entity.ErrRateLimitExceeded, err)
	case code >= 500, code == http.StatusRequestTimeout:
		return err
	case code >= 400:
		return &entity.TerminalError{Err: err}
	}
	return err
}
