package entity

// QueryType is the execution strategy chosen for a query.
type QueryType string

const (
	QuerySimple  QueryType = "simple"
	QueryComplex QueryType = "complex"
	QueryHybrid  QueryType = "hybrid"
)

func (q QueryType) Valid() bool {
	switch q {
	case QuerySimple, QueryComplex, QueryHybrid:
		return true
	}
	return false
}

// ThinkingEffort is forwarded to the language model.
type ThinkingEffort string

const (
	ThinkingNone ThinkingEffort = "none"
	ThinkingLow  ThinkingEffort = "low"
	ThinkingHigh ThinkingEffort = "high"
)

func (t ThinkingEffort) Valid() bool {
	switch t {
	case ThinkingNone, ThinkingLow, ThinkingHigh:
		return true
	}
	return false
}

// ContextStrategy is the selection policy used by the context builder.
type ContextStrategy string

const (
	ContextKeyword  ContextStrategy = "keyword"
	ContextSemantic ContextStrategy = "semantic"
	ContextHybrid   ContextStrategy = "hybrid"
)

func (c ContextStrategy) Valid() bool {
	switch c {
	case ContextKeyword, ContextSemantic, ContextHybrid:
		return true
	}
	return false
}

// ContextBuildResult is the grounding block assembled for one model call.
type ContextBuildResult struct {
	SelectedRecords  []Finding       `json:"selected_records"`
	ContextText      string          `json:"context_text"`
	EstimatedTokens  int             `json:"estimated_tokens"`
	StrategyUsed     ContextStrategy `json:"strategy_used"`
	AverageRelevance float64         `json:"average_relevance"`
}

// QueryOptions are the caller-supplied knobs of ProcessQuery.
type QueryOptions struct {
	SessionID      string         `json:"session_id,omitempty"`
	Page           int            `json:"page,omitempty"`
	PageSize       int            `json:"page_size,omitempty"`
	ThinkingMode   ThinkingEffort `json:"thinking_mode,omitempty"`
	ForceQueryType QueryType      `json:"force_query_type,omitempty"`
}

// QueryRequest is the HTTP body of POST /v1/query.
type QueryRequest struct {
	Query string `json:"query"`
	QueryOptions
}

// QueryMetadata is attached to every response, successful or not.
type QueryMetadata struct {
	QueryType        QueryType        `json:"query_type,omitempty"`
	ExecutionTimeMs  int64            `json:"execution_time_ms"`
	RecordsAnalyzed  int              `json:"records_analyzed"`
	Confidence       float64          `json:"confidence"`
	ExtractedFilters ExtractedFilters `json:"extracted_filters"`
	TokensUsed       *int             `json:"tokens_used,omitempty"`
	SessionID        string           `json:"session_id,omitempty"`
	Page             int              `json:"page,omitempty"`
	PageSize         int              `json:"page_size,omitempty"`
	TotalRecords     int              `json:"total_records"`
	ContextStrategy  ContextStrategy  `json:"context_strategy,omitempty"`
}

// QueryResponse is the successful result. Type tags which execution path
// produced it; Answer is empty for simple listings.
type QueryResponse struct {
	Success    bool          `json:"success"`
	Type       QueryType     `json:"type"`
	Answer     string        `json:"answer,omitempty"`
	Records    []Finding     `json:"records"`
	Suggestion string        `json:"suggestion,omitempty"`
	Metadata   QueryMetadata `json:"metadata"`
}

// QueryError is the error body of a failed query.
type QueryError struct {
	Code            ErrorCode `json:"code"`
	Message         string    `json:"message"`
	Suggestion      string    `json:"suggestion"`
	FallbackRecords []Finding `json:"fallback_records,omitempty"`
}

type QueryErrorResponse struct {
	Success  bool          `json:"success"`
	Error    QueryError    `json:"error"`
	Metadata QueryMetadata `json:"metadata"`
}

// AIResponse is what a language model call returns.
type AIResponse struct {
	Content    string         `json:"content"`
	Model      string         `json:"model"`
	TokenCount int            `json:"token_count"`
	Latency    int64          `json:"latency_ms"`
	Metadata   map[string]any `json:"metadata"`
}

// CompletionRequest is one call to the language model service.
type CompletionRequest struct {
	Prompt         string
	SystemPrompt   string
	ThinkingEffort ThinkingEffort
	SessionID      string
	JSON           bool
}
