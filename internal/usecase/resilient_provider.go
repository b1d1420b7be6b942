package usecase

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"auditlens/internal/domain/entity"
	"auditlens/internal/domain/repository"
	"auditlens/internal/metrics"

	"go.uber.org/zap"
)

type ResilientProvider struct {
	primary    repository.AIProvider
	fallback   repository.AIProvider // optional second model, tried once
	maxRetries int
	baseDelay  time.Duration
	timeout    time.Duration
	metrics    *metrics.Collector
	log        *zap.Logger
}

// NewResilientProvider wraps primary with bounded retries and an optional
// fallback model. fallback may be nil.
func NewResilientProvider(primary, fallback repository.AIProvider, m *metrics.Collector, log *zap.Logger) *ResilientProvider {
	return &ResilientProvider{
		primary:    primary,
		fallback:   fallback,
		maxRetries: 2, // 3 attempts on the primary
		baseDelay:  500 * time.Millisecond,
		timeout:    45 * time.Second,
		metrics:    m,
		log:        log.Named("llm"),
	}
}

// Complete never loops: after the primary's retries and one fallback attempt
// it returns an error wrapping entity.ErrAI (and ErrRateLimitExceeded when
// the quota was the cause).
func (r *ResilientProvider) Complete(ctx context.Context, req entity.CompletionRequest) (*entity.AIResponse, error) {
	resCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	resp, err := r.executeWithRetry(resCtx, r.primary, req, "primary")
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, fmt.Errorf("%w: %w", entity.ErrAI, ctx.Err())
	}
	if r.fallback == nil || isTerminal(err) {
		return nil, fmt.Errorf("%w: %w", entity.ErrAI, err)
	}

	r.log.Warn("primary model exhausted, switching to fallback", zap.Error(err))
	// the primary may have spent the whole budget
	fbCtx, fbCancel := context.WithTimeout(ctx, r.timeout)
	defer fbCancel()
	resp, ferr := r.fallback.Complete(fbCtx, req)
	if ferr != nil {
		r.metrics.ModelCall("fallback", "error")
		return nil, fmt.Errorf("%w: both primary and fallback failed: %w", entity.ErrAI, ferr)
	}
	r.metrics.ModelCall("fallback", "ok")

	if resp.Metadata == nil {
		resp.Metadata = make(map[string]any)
	}
	resp.Metadata["fallback_used"] = true
	return resp, nil
}

func (r *ResilientProvider) executeWithRetry(ctx context.Context, p repository.AIProvider, req entity.CompletionRequest, label string) (*entity.AIResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		resp, err := p.Complete(ctx, req)
		if err == nil {
			r.metrics.ModelCall(label, "ok")
			return resp, nil
		}
		r.metrics.ModelCall(label, "error")
		lastErr = err

		if !r.isRetryable(err) || attempt == r.maxRetries {
			break
		}

		wait := r.calculateBackoff(attempt)
		r.log.Debug("retrying model call", zap.String("model", label), zap.Int("attempt", attempt+1), zap.Duration("wait", wait), zap.Error(err))
		select {
		case <-time.After(wait):
			continue
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func isTerminal(err error) bool {
	var te *entity.TerminalError
	return errors.As(err, &te)
}

func (r *ResilientProvider) isRetryable(err error) bool {
	if isTerminal(err) || errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, entity.ErrRateLimitExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	msg := strings.ToLower(err.Error())
	// Rate limits (429) and server errors (5xx)
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "overloaded") ||
		strings.Contains(msg, "unavailable")
}

func (r *ResilientProvider) calculateBackoff(attempt int) time.Duration {
	backoff := float64(r.baseDelay) * float64(int(1)<<attempt)
	jitter := (rand.Float64() * 0.2) * backoff // 20% jitter
	return time.Duration(backoff + jitter)
}
