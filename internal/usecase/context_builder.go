package usecase

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode"
	"unicode/utf8"

	"auditlens/internal/domain/entity"
	"auditlens/internal/domain/repository"
	"auditlens/internal/metrics"

	"go.uber.org/zap"
)

// Relevance weights. Keyword coverage contributes up to weightKeywords,
// scaled by the fraction of query keywords found.
const (
	weightYear       = 30.0
	weightDepartment = 25.0
	weightProject    = 20.0
	weightKeywords   = 25.0
	maxScore         = weightYear + weightDepartment + weightProject + weightKeywords
)

const (
	DefaultMaxResults   = 20
	DefaultMaxTokens    = 8000
	DefaultTokenDivisor = 4
	// hybrid falls back on semantic recall below this many keyword hits
	defaultMinKeywordHits = 3
)

// ContextOptions bound the context handed to the model.
type ContextOptions struct {
	MaxResults     int
	MaxTokens      int
	Strategy       entity.ContextStrategy
	TokenDivisor   int
	MinKeywordHits int
	// Similarities, when set, are used instead of querying the index.
	Similarities map[string]float32
}

func (o ContextOptions) withDefaults() ContextOptions {
	if o.MaxResults <= 0 {
		o.MaxResults = DefaultMaxResults
	}
	if o.MaxTokens <= 0 {
		o.MaxTokens = DefaultMaxTokens
	}
	if o.TokenDivisor <= 0 {
		o.TokenDivisor = DefaultTokenDivisor
	}
	if o.MinKeywordHits <= 0 {
		o.MinKeywordHits = defaultMinKeywordHits
	}
	if !o.Strategy.Valid() {
		o.Strategy = entity.ContextKeyword
	}
	return o
}

// ContextBuilder selects and serializes the findings a model sees.
type ContextBuilder struct {
	index   repository.SemanticIndex
	metrics *metrics.Collector
	log     *zap.Logger
}

// NewContextBuilder accepts a nil index; semantic and hybrid then run as keyword.
func NewContextBuilder(index repository.SemanticIndex, m *metrics.Collector, log *zap.Logger) *ContextBuilder {
	return &ContextBuilder{index: index, metrics: m, log: log.Named("context")}
}

type scored struct {
	finding entity.Finding
	score   float64
}

// Build ranks candidates, keeps the top MaxResults and renders them within
// MaxTokens. An empty candidate set yields an empty result, never an error.
func (b *ContextBuilder) Build(ctx context.Context, query string, candidates []entity.Finding, filters entity.ExtractedFilters, opts ContextOptions) entity.ContextBuildResult {
	opts = opts.withDefaults()
	if len(candidates) == 0 {
		return entity.ContextBuildResult{StrategyUsed: opts.Strategy, SelectedRecords: []entity.Finding{}}
	}

	keywords := filters.Keywords
	if len(keywords) == 0 {
		keywords = QueryKeywords(query)
	}

	var ranked []scored
	used := opts.Strategy
	switch opts.Strategy {
	case entity.ContextSemantic, entity.ContextHybrid:
		sims, err := opts.Similarities, error(nil)
		if sims == nil {
			sims, err = b.Similarities(ctx, query, filters, len(candidates))
		}
		if err != nil {
			b.log.Warn("semantic ranking unavailable, using keyword", zap.Error(err))
			used = entity.ContextKeyword
			ranked = rankKeyword(candidates, filters, keywords)
			break
		}
		if opts.Strategy == entity.ContextSemantic {
			ranked = rankSemantic(candidates, sims)
		} else {
			ranked = rankHybrid(candidates, filters, keywords, sims, opts.MinKeywordHits)
		}
	default:
		ranked = rankKeyword(candidates, filters, keywords)
	}

	if len(ranked) > opts.MaxResults {
		ranked = ranked[:opts.MaxResults]
	}
	top := make([]entity.Finding, len(ranked))
	for i, r := range ranked {
		top[i] = r.finding
	}

	text, included := Render(top, opts.MaxTokens, opts.TokenDivisor)
	var total float64
	for _, r := range ranked[:included] {
		total += r.score
	}
	avg := 0.0
	if included > 0 {
		avg = total / float64(included) / maxScore
	}

	tokens := EstimateTokens(text, opts.TokenDivisor)
	b.metrics.ContextTokens(tokens)
	return entity.ContextBuildResult{
		SelectedRecords:  top[:included],
		ContextText:      text,
		EstimatedTokens:  tokens,
		StrategyUsed:     used,
		AverageRelevance: avg,
	}
}

// Similarities asks the semantic index for the findings closest to query,
// restricted to those the filters can match.
func (b *ContextBuilder) Similarities(ctx context.Context, query string, filters entity.ExtractedFilters, limit int) (map[string]float32, error) {
	if b.index == nil {
		return nil, entity.ErrIndexUnavailable
	}
	return b.index.Similar(ctx, query, filters, limit)
}

// ScoreFinding sums the independent relevance signals for f.
func ScoreFinding(f entity.Finding, filters entity.ExtractedFilters, keywords []string) float64 {
	var score float64
	if filters.Year != "" && f.Year == filters.Year {
		score += weightYear
	}
	if filters.Department != "" && containsFold(f.Department, filters.Department) {
		score += weightDepartment
	}
	if filters.ProjectType != "" && (containsFold(f.Project, filters.ProjectType) || containsFold(f.ProjectType, filters.ProjectType)) {
		score += weightProject
	}
	if len(keywords) > 0 {
		text := f.SearchableText()
		found := 0
		for _, k := range keywords {
			if k = strings.ToLower(strings.TrimSpace(k)); k != "" && strings.Contains(text, k) {
				found++
			}
		}
		score += weightKeywords * float64(found) / float64(len(keywords))
	}
	return score
}

func rankKeyword(candidates []entity.Finding, filters entity.ExtractedFilters, keywords []string) []scored {
	out := make([]scored, len(candidates))
	for i, f := range candidates {
		out[i] = scored{finding: f, score: ScoreFinding(f, filters, keywords)}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

func rankSemantic(candidates []entity.Finding, sims map[string]float32) []scored {
	out := make([]scored, len(candidates))
	for i, f := range candidates {
		out[i] = scored{finding: f, score: float64(sims[f.ID]) * maxScore}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// rankHybrid blends keyword and similarity scores evenly. With at least
// minHits literal matches only those are kept; below that, every candidate
// stays in the pool so similarity can fill recall.
func rankHybrid(candidates []entity.Finding, filters entity.ExtractedFilters, keywords []string, sims map[string]float32, minHits int) []scored {
	all := make([]scored, 0, len(candidates))
	hits := make([]scored, 0, len(candidates))
	for _, f := range candidates {
		kw := ScoreFinding(f, filters, keywords)
		s := scored{finding: f, score: (kw + float64(sims[f.ID])*maxScore) / 2}
		all = append(all, s)
		if kw > 0 {
			hits = append(hits, s)
		}
	}
	out := all
	if len(hits) >= minHits {
		out = hits
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].score > out[j].score })
	return out
}

// EstimateTokens approximates the token count of text as characters/divisor.
func EstimateTokens(text string, divisor int) int {
	if divisor <= 0 {
		divisor = DefaultTokenDivisor
	}
	n := utf8.RuneCountInString(text)
	return (n + divisor - 1) / divisor
}

// Render serializes findings in order until the next one would push the
// estimate past maxTokens, then appends a notice naming how many were left
// out. It returns the text and the number of findings included.
func Render(findings []entity.Finding, maxTokens, divisor int) (string, int) {
	if divisor <= 0 {
		divisor = DefaultTokenDivisor
	}
	if len(findings) == 0 {
		return "", 0
	}
	reserve := EstimateTokens(truncationNotice(len(findings)), divisor)

	var b strings.Builder
	runes, included := 0, 0
	for i, f := range findings {
		block := formatFinding(i+1, f)
		next := runes + utf8.RuneCountInString(block)
		budget := maxTokens - reserve
		if i == len(findings)-1 {
			budget = maxTokens
		}
		if (next+divisor-1)/divisor > budget {
			break
		}
		b.WriteString(block)
		runes = next
		included++
	}

	if omitted := len(findings) - included; omitted > 0 {
		notice := truncationNotice(omitted)
		if EstimateTokens(b.String()+notice, divisor) <= maxTokens {
			b.WriteString(notice)
		}
	}
	return b.String(), included
}

func truncationNotice(omitted int) string {
	return fmt.Sprintf("\n[... %d more findings omitted to fit the context limit]\n", omitted)
}

func formatFinding(n int, f entity.Finding) string {
	var b strings.Builder
	fmt.Fprintf(&b, "### Finding %d", n)
	if f.Code != "" {
		fmt.Fprintf(&b, " (%s)", f.Code)
	}
	b.WriteString("\n")
	writeField(&b, "Title", f.Title)
	writeField(&b, "Area", f.Area)
	writeField(&b, "Department", f.Department)
	writeField(&b, "Project", f.Project)
	writeField(&b, "Project type", f.ProjectType)
	writeField(&b, "Year", f.Year)
	if f.Severity != "" {
		fmt.Fprintf(&b, "Severity: %s (score %.1f)\n", f.Severity, f.SeverityScore)
	}
	writeField(&b, "Status", f.Status)
	writeField(&b, "Owner", f.Owner)
	writeField(&b, "Auditor", f.Auditor)
	writeField(&b, "Description", f.Description)
	writeField(&b, "Recommendation", f.Recommendation)
	b.WriteString("\n")
	return b.String()
}

func writeField(b *strings.Builder, label, value string) {
	if value == "" {
		return
	}
	fmt.Fprintf(b, "%s: %s\n", label, value)
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "with": true, "are": true, "was": true,
	"what": true, "which": true, "show": true, "list": true, "all": true, "from": true,
	"about": true, "that": true, "this": true, "these": true, "those": true, "have": true,
	"has": true, "how": true, "many": true, "any": true, "findings": true, "finding": true,
	"give": true, "tell": true, "me": true, "our": true, "their": true, "into": true,
}

// QueryKeywords splits a query into lower-cased terms of three or more
// characters, dropping stop words and duplicates.
func QueryKeywords(query string) []string {
	fields := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-'
	})
	seen := make(map[string]bool, len(fields))
	var out []string
	for _, w := range fields {
		if len(w) < 3 || stopWords[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
