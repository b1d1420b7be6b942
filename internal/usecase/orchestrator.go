package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"auditlens/internal/domain/entity"
	"auditlens/internal/domain/repository"
	"auditlens/internal/metrics"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// RouterConfig holds the tunables of the query pipeline.
type RouterConfig struct {
	Context         ContextOptions
	CandidateLimit  int
	PageSize        int
	DefaultThinking entity.ThinkingEffort
}

// Orchestrator routes a natural-language query to the simple, complex or
// hybrid execution path. It holds only shared, read-only collaborators;
// everything a query mutates is allocated inside ProcessQuery.
type Orchestrator struct {
	store     repository.RecordStore
	intents   *IntentRecognizer
	builder   *ContextBuilder
	ai        repository.AIProvider
	privacy   *PrivacyGuard
	masker    *Masker
	limiter   repository.TokenLimiter
	formatter *ResponseFormatter
	cfg       RouterConfig
	metrics   *metrics.Collector
	log       *zap.Logger
}

type OrchestratorDeps struct {
	Store     repository.RecordStore
	Intents   *IntentRecognizer
	Builder   *ContextBuilder
	AI        repository.AIProvider
	Privacy   *PrivacyGuard
	Masker    *Masker
	Limiter   repository.TokenLimiter // optional
	Formatter *ResponseFormatter
	Metrics   *metrics.Collector
	Log       *zap.Logger
}

func NewOrchestrator(d OrchestratorDeps, cfg RouterConfig) *Orchestrator {
	if cfg.CandidateLimit <= 0 {
		cfg.CandidateLimit = 500
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultMaxResults
	}
	if !cfg.DefaultThinking.Valid() {
		cfg.DefaultThinking = entity.ThinkingLow
	}
	cfg.Context = cfg.Context.withDefaults()
	return &Orchestrator{
		store:     d.Store,
		intents:   d.Intents,
		builder:   d.Builder,
		ai:        d.AI,
		privacy:   d.Privacy,
		masker:    d.Masker,
		limiter:   d.Limiter,
		formatter: d.Formatter,
		cfg:       cfg,
		metrics:   d.Metrics,
		log:       d.Log.Named("router"),
	}
}

var defaultSort = entity.Sort{Field: "severity_score", Descending: true}

// request is the per-query state. It is never shared between queries.
type request struct {
	text      string
	masked    string
	sessionID string
	thinking  entity.ThinkingEffort
	page      Page
	session   *MaskSession
	intent    entity.RecognizedIntent
	filters   entity.ExtractedFilters
	md        entity.QueryMetadata
	log       *zap.Logger
}

// ProcessQuery is the public entry point. Exactly one of the returned
// values is non-nil.
func (o *Orchestrator) ProcessQuery(ctx context.Context, text string, opts entity.QueryOptions) (*entity.QueryResponse, *entity.QueryErrorResponse) {
	start := time.Now()
	req := o.newRequest(text, opts)

	strategy, err := o.prepare(ctx, req, opts)
	if err != nil {
		return nil, o.fail(ctx, req, start, err, nil)
	}
	req.md.QueryType = strategy
	o.metrics.StrategySelected(string(strategy))
	req.log = req.log.With(zap.String("strategy", string(strategy)))
	req.log.Info("query routed",
		zap.Float64("confidence", req.intent.Confidence),
		zap.Bool("requires_analysis", req.intent.RequiresAnalysis),
		zap.Bool("has_filters", req.filters.HasAny()))

	var resp *entity.QueryResponse
	switch strategy {
	case entity.QuerySimple:
		resp, err = o.executeSimple(ctx, req)
	case entity.QueryComplex:
		resp, err = o.executeComplex(ctx, req)
	case entity.QueryHybrid:
		resp, err = o.executeHybrid(ctx, req)
	default:
		err = fmt.Errorf("%w: unknown strategy %q", entity.ErrClassification, strategy)
	}
	if err != nil {
		return nil, o.fail(ctx, req, start, err, o.refetch(req))
	}

	elapsed := time.Since(start)
	o.metrics.ObservePath(string(strategy), elapsed)
	resp.Metadata.ExecutionTimeMs = elapsed.Milliseconds()
	return resp, nil
}

func (o *Orchestrator) newRequest(text string, opts entity.QueryOptions) *request {
	sessionID := opts.SessionID
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	thinking := opts.ThinkingMode
	if thinking == "" {
		thinking = o.cfg.DefaultThinking
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = o.cfg.PageSize
	}
	return &request{
		text:      strings.TrimSpace(text),
		sessionID: sessionID,
		thinking:  thinking,
		page:      Page{Number: opts.Page, Size: pageSize}.normalize(),
		session:   o.masker.NewSession(),
		md:        entity.QueryMetadata{SessionID: sessionID},
		log:       o.log.With(zap.String("session_id", sessionID)),
	}
}

// prepare validates input, masks the query, checks the quota and
// recognizes the intent.
func (o *Orchestrator) prepare(ctx context.Context, req *request, opts entity.QueryOptions) (entity.QueryType, error) {
	if req.text == "" {
		return "", fmt.Errorf("%w: empty query", entity.ErrValidation)
	}
	if opts.ForceQueryType != "" && !opts.ForceQueryType.Valid() {
		return "", fmt.Errorf("%w: unknown strategy %q", entity.ErrClassification, opts.ForceQueryType)
	}
	if !req.thinking.Valid() {
		return "", fmt.Errorf("%w: unknown thinking mode %q", entity.ErrValidation, req.thinking)
	}

	req.masked = req.session.Mask(req.text)

	if o.limiter != nil {
		allowed, err := o.limiter.CheckLimit(ctx, req.sessionID)
		if err != nil {
			req.log.Warn("token limiter unavailable", zap.Error(err))
		} else if !allowed {
			return "", entity.ErrRateLimitExceeded
		}
	}

	intent, err := o.intents.Recognize(ctx, req.masked)
	if err != nil {
		return "", err
	}
	req.intent = intent
	req.filters = unmaskFilters(intent.Filters, req.session)
	req.md.Confidence = intent.Confidence
	req.md.ExtractedFilters = req.filters

	if err := ValidateFilters(req.filters); err != nil {
		return "", err
	}
	return SelectStrategy(intent, req.filters, opts.ForceQueryType), nil
}

func (o *Orchestrator) executeSimple(ctx context.Context, req *request) (*entity.QueryResponse, error) {
	rows, err := QueryStore(ctx, o.store, BuildQueryFilters(req.filters), defaultSort, o.cfg.CandidateLimit, o.cfg.CandidateLimit)
	if err != nil {
		return nil, err
	}
	return o.formatter.FormatSimple(rows, req.md, req.page), nil
}

// executeComplex fetches the broadest permitted candidate set and the
// semantic similarities concurrently, then analyzes.
func (o *Orchestrator) executeComplex(ctx context.Context, req *request) (*entity.QueryResponse, error) {
	var candidates []entity.Finding
	var sims map[string]float32
	opts := o.cfg.Context

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := QueryStore(gctx, o.store, BuildQueryFilters(req.filters), defaultSort, o.cfg.CandidateLimit, o.cfg.CandidateLimit)
		candidates = rows
		return err
	})
	if opts.Strategy != entity.ContextKeyword {
		g.Go(func() error {
			s, err := o.builder.Similarities(gctx, req.masked, req.filters, o.cfg.CandidateLimit)
			if err != nil {
				req.log.Warn("semantic ranking unavailable, using keyword", zap.Error(err))
				return nil
			}
			sims = s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	opts = withSimilarities(opts, sims)

	if len(candidates) == 0 {
		req.md.ContextStrategy = opts.Strategy
		return o.formatter.FormatAnalysis("No audit findings are available to analyze for this question.", nil, req.md), nil
	}

	answer, shown, err := o.analyze(ctx, req, candidates, opts)
	if err != nil {
		return nil, err
	}
	return o.formatter.FormatAnalysis(answer, shown, req.md), nil
}

// executeHybrid filters first and skips the model entirely when nothing
// matches.
func (o *Orchestrator) executeHybrid(ctx context.Context, req *request) (*entity.QueryResponse, error) {
	rows, err := QueryStore(ctx, o.store, BuildQueryFilters(req.filters), defaultSort, o.cfg.CandidateLimit, o.cfg.CandidateLimit)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		req.log.Info("no findings matched, skipping analysis")
		return o.formatter.FormatHybrid(rows, "", req.md, req.page), nil
	}

	opts := o.cfg.Context
	if opts.Strategy != entity.ContextKeyword {
		sims, err := o.builder.Similarities(ctx, req.masked, req.filters, len(rows))
		if err != nil {
			req.log.Warn("semantic ranking unavailable, using keyword", zap.Error(err))
		}
		opts = withSimilarities(opts, sims)
	}

	answer, shown, err := o.analyze(ctx, req, rows, opts)
	if err != nil {
		return nil, err
	}
	req.md.RecordsAnalyzed = len(shown)
	return o.formatter.FormatHybrid(rows, answer, req.md, req.page), nil
}

// maskRecords masks every rendered text field of findings through session.
func maskRecords(findings []entity.Finding, session *MaskSession) []entity.Finding {
	out := make([]entity.Finding, len(findings))
	for i, f := range findings {
		for _, field := range []*string{
			&f.Code, &f.Title, &f.Area, &f.Department, &f.Project, &f.ProjectType,
			&f.Status, &f.Owner, &f.Auditor, &f.Description, &f.Recommendation,
		} {
			*field = session.Mask(*field)
		}
		out[i] = f
	}
	return out
}

// withSimilarities pins the similarity scores, or drops to keyword ranking
// when none are available so the builder never embeds unmasked text.
func withSimilarities(opts ContextOptions, sims map[string]float32) ContextOptions {
	if opts.Strategy == entity.ContextKeyword {
		return opts
	}
	if sims == nil {
		opts.Strategy = entity.ContextKeyword
		return opts
	}
	opts.Similarities = sims
	return opts
}

// analyze builds the context, protects it, calls the model and restores
// the answer. It returns the findings that were actually shown.
func (o *Orchestrator) analyze(ctx context.Context, req *request, candidates []entity.Finding, opts ContextOptions) (string, []entity.Finding, error) {
	built := o.builder.Build(ctx, req.text, candidates, req.filters, opts)
	req.md.ContextStrategy = built.StrategyUsed

	pseudo := o.privacy.PseudonymizeRecords(ctx, built.SelectedRecords, req.sessionID, req.session)
	// rendered after masking so the budget covers the bytes actually sent
	contextText, included := Render(maskRecords(pseudo.Records, req.session), opts.MaxTokens, opts.TokenDivisor)
	shown := built.SelectedRecords[:included]

	prompt := buildAnalysisPrompt(
		req.session.Mask(req.intent.IntentText),
		req.masked,
		contextText,
		len(candidates),
		included,
	)

	resp, err := o.ai.Complete(ctx, entity.CompletionRequest{
		Prompt:         prompt,
		SystemPrompt:   analysisSystemPrompt,
		ThinkingEffort: req.thinking,
		SessionID:      req.sessionID,
	})
	if err != nil {
		return "", nil, err
	}
	o.recordUsage(req, resp.TokenCount)

	answer := req.session.Unmask(resp.Content)
	answer = o.privacy.Depseudonymize(ctx, answer, req.sessionID)

	tokens := resp.TokenCount
	req.md.TokensUsed = &tokens
	req.md.RecordsAnalyzed = len(shown)
	req.log.Debug("analysis complete",
		zap.Int("candidates", len(candidates)),
		zap.Int("shown", len(shown)),
		zap.Int("context_tokens", EstimateTokens(contextText, opts.TokenDivisor)),
		zap.Int("mappings_created", pseudo.MappingsCreated),
		zap.Bool("privacy_degraded", pseudo.Degraded))
	return answer, shown, nil
}

func (o *Orchestrator) recordUsage(req *request, tokens int) {
	if o.limiter == nil || tokens <= 0 {
		return
	}
	go func() {
		// The request context may already be done by the time this runs.
		bgCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := o.limiter.Increment(bgCtx, req.sessionID, tokens); err != nil {
			req.log.Warn("failed to record token usage", zap.Error(err))
		}
	}()
}

// refetch is the AI_ERROR fallback: the plain filtered listing.
func (o *Orchestrator) refetch(req *request) RefetchFunc {
	return func(ctx context.Context) ([]entity.Finding, error) {
		rows, err := QueryStore(ctx, o.store, BuildQueryFilters(req.filters), defaultSort, req.page.Size, o.cfg.CandidateLimit)
		if err != nil {
			return nil, err
		}
		return rows, nil
	}
}

func (o *Orchestrator) fail(ctx context.Context, req *request, start time.Time, err error, refetch RefetchFunc) *entity.QueryErrorResponse {
	req.md.ExecutionTimeMs = time.Since(start).Milliseconds()
	resp := o.formatter.FormatError(ctx, err, req.md, refetch)
	o.metrics.QueryFailed(string(resp.Error.Code))
	req.log.Error("query failed", zap.String("code", string(resp.Error.Code)), zap.Error(err))
	return resp
}

// unmaskFilters restores masked values the model copied into filters.
func unmaskFilters(f entity.ExtractedFilters, s *MaskSession) entity.ExtractedFilters {
	f.Severity = s.Unmask(f.Severity)
	f.Status = s.Unmask(f.Status)
	f.Department = s.Unmask(f.Department)
	f.Year = s.Unmask(f.Year)
	f.ProjectType = s.Unmask(f.ProjectType)
	if len(f.Keywords) == 0 {
		return f
	}
	tokens := s.Tokens()
	kws := make([]string, len(f.Keywords))
	for i, k := range f.Keywords {
		kws[i] = k
		for _, t := range tokens {
			if strings.EqualFold(k, t.Token) {
				kws[i] = strings.ToLower(t.OriginalValue)
				break
			}
		}
	}
	f.Keywords = kws
	return f
}
