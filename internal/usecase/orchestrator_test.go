package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"auditlens/internal/domain/entity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	simpleQuery   = "Show all critical findings from 2024"
	complexQuery  = "What are the main risk patterns across all departments?"
	financeQuery  = "analyze risk trends in finance"
	noMatchQuery  = "analyze legal exposure"
	lowSeverityQ  = "list low severity findings"
	badYearQuery  = "findings from the year 24"
	intentSimple  = `{"intent":"critical findings in 2024","confidence":0.9,"requires_analysis":false,"filters":{"severity":"critical","year":2024}}`
	intentComplex = `{"intent":"risk patterns across departments","confidence":0.8,"requires_analysis":true,"filters":{}}`
	intentFinance = `{"intent":"risk trends in the finance department","confidence":0.85,"requires_analysis":true,"filters":{"department":"finance"}}`
)

type harness struct {
	o       *Orchestrator
	store   *fakeStore
	ex      *fakeExtractor
	ai      *fakeAI
	pseudo  *fakePseudonymizer
	limiter *fakeLimiter
	index   *fakeIndex
}

func newHarness(t *testing.T, cfg RouterConfig) *harness {
	t.Helper()
	h := &harness{
		store: &fakeStore{findings: sampleFindings()},
		ex: &fakeExtractor{
			outputs: map[string]string{
				simpleQuery:  intentSimple,
				complexQuery: intentComplex,
				financeQuery: intentFinance,
				noMatchQuery: `{"intent":"legal exposure","confidence":0.7,"requires_analysis":true,"filters":{"department":"Legal"}}`,
				lowSeverityQ: `{"intent":"low severity","confidence":0.9,"filters":{"severity":"low"}}`,
				badYearQuery: `{"intent":"year 24","confidence":0.6,"filters":{"year":"24"}}`,
			},
			def: `{"intent":"general question","confidence":0.5,"requires_analysis":true,"filters":{}}`,
		},
		ai:      &fakeAI{},
		pseudo:  newFakePseudonymizer(),
		limiter: &fakeLimiter{allowed: true, increment: make(chan int, 64)},
		index:   &fakeIndex{},
	}
	masker := NewMasker()
	h.o = NewOrchestrator(OrchestratorDeps{
		Store:     h.store,
		Intents:   NewIntentRecognizer(h.ex, nil, time.Hour, testLog),
		Builder:   NewContextBuilder(h.index, nil, testLog),
		AI:        h.ai,
		Privacy:   NewPrivacyGuard(h.pseudo, masker, nil, testLog),
		Masker:    masker,
		Limiter:   h.limiter,
		Formatter: NewResponseFormatter(testLog),
		Log:       testLog,
	}, cfg)
	return h
}

func TestProcessQuerySimple(t *testing.T) {
	h := newHarness(t, RouterConfig{})

	resp, errResp := h.o.ProcessQuery(context.Background(), simpleQuery, entity.QueryOptions{})

	require.Nil(t, errResp)
	assert.True(t, resp.Success)
	assert.Equal(t, entity.QuerySimple, resp.Type)
	require.Len(t, resp.Records, 1)
	assert.Equal(t, "f1", resp.Records[0].ID)
	assert.Empty(t, resp.Answer)
	assert.Equal(t, 1, resp.Metadata.TotalRecords)
	assert.InDelta(t, 0.9, resp.Metadata.Confidence, 1e-9)
	assert.Equal(t, "Critical", resp.Metadata.ExtractedFilters.Severity)
	assert.NotEmpty(t, resp.Metadata.SessionID)
	assert.Nil(t, resp.Metadata.TokensUsed)
	assert.Zero(t, h.ai.Calls())
}

func TestProcessQueryEmptyResultsNeverCallModel(t *testing.T) {
	for _, q := range []string{lowSeverityQ, noMatchQuery} {
		h := newHarness(t, RouterConfig{})

		resp, errResp := h.o.ProcessQuery(context.Background(), q, entity.QueryOptions{})

		require.Nil(t, errResp, q)
		assert.True(t, resp.Success, q)
		assert.Empty(t, resp.Records, q)
		assert.Empty(t, resp.Answer, q)
		assert.NotEmpty(t, resp.Suggestion, q)
		assert.Zero(t, h.ai.Calls(), q)
	}
}

func TestProcessQueryHybridFinance(t *testing.T) {
	h := newHarness(t, RouterConfig{})
	personRe := regexp.MustCompile(`PERSON_x+`)
	h.ai.reply = func(req entity.CompletionRequest) (*entity.AIResponse, error) {
		return &entity.AIResponse{Content: "Most findings are owned by " + personRe.FindString(req.Prompt) + ".", TokenCount: 42}, nil
	}

	resp, errResp := h.o.ProcessQuery(context.Background(), financeQuery, entity.QueryOptions{SessionID: "sess-1"})

	require.Nil(t, errResp)
	assert.Equal(t, entity.QueryHybrid, resp.Type)
	assert.Len(t, resp.Records, 2)
	assert.Equal(t, "Most findings are owned by Ana Lima.", resp.Answer)
	assert.Equal(t, "sess-1", resp.Metadata.SessionID)
	require.NotNil(t, resp.Metadata.TokensUsed)
	assert.Equal(t, 42, *resp.Metadata.TokensUsed)
	assert.Equal(t, 2, resp.Metadata.RecordsAnalyzed)
	assert.Equal(t, entity.ContextKeyword, resp.Metadata.ContextStrategy)

	require.Equal(t, 1, h.ai.Calls())
	req := h.ai.requests[0]
	assert.NotContains(t, req.Prompt, "Ana Lima")
	assert.Equal(t, "sess-1", req.SessionID)
	assert.Equal(t, entity.ThinkingLow, req.ThinkingEffort)

	select {
	case tokens := <-h.limiter.increment:
		assert.Equal(t, 42, tokens)
	case <-time.After(time.Second):
		t.Fatal("token usage was not recorded")
	}
}

func TestProcessQueryComplex(t *testing.T) {
	h := newHarness(t, RouterConfig{})

	resp, errResp := h.o.ProcessQuery(context.Background(), complexQuery, entity.QueryOptions{ThinkingMode: entity.ThinkingHigh})

	require.Nil(t, errResp)
	assert.Equal(t, entity.QueryComplex, resp.Type)
	assert.Equal(t, "analysis", resp.Answer)
	assert.Len(t, resp.Records, len(sampleFindings()))
	assert.Equal(t, entity.ThinkingHigh, h.ai.requests[0].ThinkingEffort)
	assert.Contains(t, h.ai.requests[0].Prompt, "Context: 4 of 4 matching findings")
}

func TestProcessQueryComplexWithoutCandidates(t *testing.T) {
	h := newHarness(t, RouterConfig{})
	h.store.findings = nil

	resp, errResp := h.o.ProcessQuery(context.Background(), complexQuery, entity.QueryOptions{})

	require.Nil(t, errResp)
	assert.Equal(t, entity.QueryComplex, resp.Type)
	assert.Empty(t, resp.Records)
	assert.Zero(t, h.ai.Calls())
}

func TestProcessQueryForcedStrategy(t *testing.T) {
	h := newHarness(t, RouterConfig{})

	resp, errResp := h.o.ProcessQuery(context.Background(), financeQuery, entity.QueryOptions{ForceQueryType: entity.QuerySimple})
	require.Nil(t, errResp)
	assert.Equal(t, entity.QuerySimple, resp.Type)
	assert.Zero(t, h.ai.Calls())

	_, errResp = h.o.ProcessQuery(context.Background(), financeQuery, entity.QueryOptions{ForceQueryType: "bogus"})
	require.NotNil(t, errResp)
	assert.Equal(t, entity.CodeClassification, errResp.Error.Code)
}

func TestProcessQueryAIErrorReturnsFallbackRecords(t *testing.T) {
	h := newHarness(t, RouterConfig{})
	h.ai.reply = failing(fmt.Errorf("%w: upstream 500", entity.ErrAI))

	resp, errResp := h.o.ProcessQuery(context.Background(), financeQuery, entity.QueryOptions{})

	assert.Nil(t, resp)
	require.NotNil(t, errResp)
	assert.False(t, errResp.Success)
	assert.Equal(t, entity.CodeAI, errResp.Error.Code)
	assert.Len(t, errResp.Error.FallbackRecords, 2)
	assert.Equal(t, "Finance", errResp.Metadata.ExtractedFilters.Department)
}

func TestProcessQueryRateLimited(t *testing.T) {
	h := newHarness(t, RouterConfig{})
	h.limiter.allowed = false

	_, errResp := h.o.ProcessQuery(context.Background(), financeQuery, entity.QueryOptions{})

	require.NotNil(t, errResp)
	assert.Equal(t, entity.CodeRateLimit, errResp.Error.Code)
	assert.Nil(t, errResp.Error.FallbackRecords)
	assert.Zero(t, h.ex.calls)
}

func TestProcessQueryLimiterFailureDegrades(t *testing.T) {
	h := newHarness(t, RouterConfig{})
	h.limiter.err = errors.New("redis down")

	resp, errResp := h.o.ProcessQuery(context.Background(), simpleQuery, entity.QueryOptions{})

	require.Nil(t, errResp)
	assert.True(t, resp.Success)
}

func TestProcessQueryValidationErrors(t *testing.T) {
	h := newHarness(t, RouterConfig{})

	_, errResp := h.o.ProcessQuery(context.Background(), "   ", entity.QueryOptions{})
	require.NotNil(t, errResp)
	assert.Equal(t, entity.CodeValidation, errResp.Error.Code)

	_, errResp = h.o.ProcessQuery(context.Background(), badYearQuery, entity.QueryOptions{})
	require.NotNil(t, errResp)
	assert.Equal(t, entity.CodeValidation, errResp.Error.Code)

	_, errResp = h.o.ProcessQuery(context.Background(), simpleQuery, entity.QueryOptions{ThinkingMode: "max"})
	require.NotNil(t, errResp)
	assert.Equal(t, entity.CodeValidation, errResp.Error.Code)
}

func TestProcessQueryDatabaseError(t *testing.T) {
	h := newHarness(t, RouterConfig{})
	h.store.err = errors.New("connection reset")

	_, errResp := h.o.ProcessQuery(context.Background(), simpleQuery, entity.QueryOptions{})

	require.NotNil(t, errResp)
	assert.Equal(t, entity.CodeDatabase, errResp.Error.Code)
}

func TestProcessQueryMasksBeforeModelCalls(t *testing.T) {
	h := newHarness(t, RouterConfig{Context: ContextOptions{Strategy: entity.ContextSemantic}})
	h.index.sims = map[string]float32{"f3": 0.9, "f1": 0.2}
	query := "analyze everything reported by jane.doe@corp.example"

	resp, errResp := h.o.ProcessQuery(context.Background(), query, entity.QueryOptions{})

	require.Nil(t, errResp)
	assert.Equal(t, entity.QueryComplex, resp.Type)
	assert.Equal(t, "f3", resp.Records[0].ID)
	assert.Equal(t, entity.ContextSemantic, resp.Metadata.ContextStrategy)

	require.Len(t, h.index.queries, 1)
	assert.NotContains(t, h.index.queries[0], "jane.doe@corp.example")
	assert.Contains(t, h.index.queries[0], "[EMAIL_1]")
	assert.NotContains(t, h.ai.requests[0].Prompt, "jane.doe@corp.example")
	assert.Equal(t, 1, h.ex.calls)
}

func TestProcessQueryConcurrentSessionsAreIsolated(t *testing.T) {
	h := newHarness(t, RouterConfig{})
	h.ai.reply = func(req entity.CompletionRequest) (*entity.AIResponse, error) {
		// echo the masked question back so unmasking is observable
		m := regexp.MustCompile(`Question: (.*)`).FindStringSubmatch(req.Prompt)
		return &entity.AIResponse{Content: m[1], TokenCount: 1}, nil
	}

	const n = 20
	var wg sync.WaitGroup
	answers := make([]string, n)
	sessions := make([]string, n)
	for i := range n {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q := fmt.Sprintf("analyze findings for owner%d@corp.example", i)
			resp, errResp := h.o.ProcessQuery(context.Background(), q, entity.QueryOptions{})
			if errResp != nil {
				return
			}
			answers[i] = resp.Answer
			sessions[i] = resp.Metadata.SessionID
		}(i)
	}
	wg.Wait()

	seen := map[string]bool{}
	for i := range n {
		assert.Equal(t, fmt.Sprintf("analyze findings for owner%d@corp.example", i), answers[i])
		assert.False(t, seen[sessions[i]], "session ids are unique")
		seen[sessions[i]] = true
	}
}

func TestProcessQueryMaskedContextFitsBudget(t *testing.T) {
	h := newHarness(t, RouterConfig{Context: ContextOptions{MaxTokens: 400}})
	h.store.findings = nil
	for i := range 10 {
		h.store.findings = append(h.store.findings, entity.Finding{
			ID:          fmt.Sprintf("m%d", i),
			Title:       "Visitor log gaps",
			Department:  "Facilities",
			Year:        "2024",
			Severity:    "Medium",
			Description: "Escalated to Dr. Al Bo at 1 Elm St after the quarterly review of badge access records.",
		})
	}

	resp, errResp := h.o.ProcessQuery(context.Background(), complexQuery, entity.QueryOptions{})

	require.Nil(t, errResp)
	require.Equal(t, 1, h.ai.Calls())
	_, sent, ok := strings.Cut(h.ai.requests[0].Prompt, "most relevant first.\n\n")
	require.True(t, ok)
	assert.LessOrEqual(t, EstimateTokens(sent, DefaultTokenDivisor), 400)
	assert.NotContains(t, sent, "Al Bo")
	assert.NotContains(t, sent, "Elm St")
	assert.Contains(t, sent, "[NAME_1]")
	assert.Contains(t, sent, "[ADDRESS_1]")
	assert.Less(t, resp.Metadata.RecordsAnalyzed, 10)
}

func TestProcessQueryHybridScopesSemanticSearch(t *testing.T) {
	h := newHarness(t, RouterConfig{Context: ContextOptions{Strategy: entity.ContextHybrid}})
	h.index.sims = map[string]float32{"f4": 0.8}

	resp, errResp := h.o.ProcessQuery(context.Background(), financeQuery, entity.QueryOptions{})

	require.Nil(t, errResp)
	assert.Equal(t, entity.QueryHybrid, resp.Type)
	require.Len(t, h.index.scopes, 1)
	assert.Equal(t, "Finance", h.index.scopes[0].Department)
}
