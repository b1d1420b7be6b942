package usecase

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"auditlens/internal/domain/entity"
	"auditlens/internal/domain/repository"

	"go.uber.org/zap"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// IntentRecognizer turns a masked query into a RecognizedIntent with one
// model call. Its output is advisory and may be wrong or incomplete.
type IntentRecognizer struct {
	extractor repository.IntentExtractor
	cache     repository.IntentCache
	ttl       time.Duration
	log       *zap.Logger
}

// NewIntentRecognizer accepts a nil cache.
func NewIntentRecognizer(extractor repository.IntentExtractor, cache repository.IntentCache, ttl time.Duration, log *zap.Logger) *IntentRecognizer {
	return &IntentRecognizer{extractor: extractor, cache: cache, ttl: ttl, log: log.Named("intent")}
}

// Recognize fails closed: unparseable output or an unavailable model gives
// a zero-confidence intent with no filters. Only cancellation and rate
// limiting are returned as errors.
func (r *IntentRecognizer) Recognize(ctx context.Context, maskedText string) (entity.RecognizedIntent, error) {
	key := intentCacheKey(maskedText)
	if r.cache != nil {
		if intent, ok := r.cache.Get(ctx, key); ok {
			return intent, nil
		}
	}

	raw, err := r.extractor.Extract(ctx, maskedText)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return entity.RecognizedIntent{}, ctxErr
		}
		if errors.Is(err, entity.ErrRateLimitExceeded) {
			return entity.RecognizedIntent{}, err
		}
		r.log.Warn("intent extraction failed, using empty intent", zap.Error(err))
		return fallbackIntent(maskedText), nil
	}

	intent, err := ParseIntent(raw)
	if err != nil {
		r.log.Warn("unparseable intent output", zap.Error(err), zap.Int("raw_len", len(raw)))
		return fallbackIntent(maskedText), nil
	}
	if intent.IntentText == "" {
		intent.IntentText = maskedText
	}

	if r.cache != nil {
		r.cache.Set(ctx, key, intent, r.ttl)
	}
	return intent, nil
}

func fallbackIntent(text string) entity.RecognizedIntent {
	return entity.RecognizedIntent{IntentText: text}
}

func intentCacheKey(text string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(text))))
	return hex.EncodeToString(sum[:])
}

// wireIntent is the JSON shape the model is instructed to produce. Year is
// loose because models return it both as a string and as a number.
type wireIntent struct {
	Intent           string  `json:"intent"`
	Confidence       float64 `json:"confidence"`
	RequiresAnalysis bool    `json:"requires_analysis"`
	Filters          struct {
		Severity    string   `json:"severity"`
		Status      string   `json:"status"`
		Department  string   `json:"department"`
		Year        any      `json:"year"`
		ProjectType string   `json:"project_type"`
		Keywords    []string `json:"keywords"`
		DateRange   *struct {
			Start string `json:"start"`
			End   string `json:"end"`
		} `json:"date_range"`
	} `json:"filters"`
}

// ParseIntent extracts the first JSON object in raw, tolerating code
// fences and prose around it.
func ParseIntent(raw string) (entity.RecognizedIntent, error) {
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start == -1 || end <= start {
		return entity.RecognizedIntent{}, fmt.Errorf("%w: no JSON object in model output", entity.ErrClassification)
	}

	var w wireIntent
	if err := json.Unmarshal([]byte(raw[start:end+1]), &w); err != nil {
		return entity.RecognizedIntent{}, fmt.Errorf("%w: %v", entity.ErrClassification, err)
	}

	f := entity.ExtractedFilters{
		Severity:    normalizeSeverity(w.Filters.Severity),
		Status:      titleCase(w.Filters.Status),
		Department:  normalizeDepartment(w.Filters.Department),
		Year:        normalizeYear(w.Filters.Year),
		ProjectType: strings.TrimSpace(w.Filters.ProjectType),
		Keywords:    normalizeKeywords(w.Filters.Keywords),
	}
	if dr := w.Filters.DateRange; dr != nil {
		s, sOK := parseDate(dr.Start)
		e, eOK := parseDate(dr.End)
		if sOK || eOK {
			f.DateRange = &entity.DateRange{Start: s, End: e}
		}
	}

	return entity.RecognizedIntent{
		IntentText:       strings.TrimSpace(w.Intent),
		Confidence:       clamp01(w.Confidence),
		Filters:          f,
		RequiresAnalysis: w.RequiresAnalysis,
	}, nil
}

var severities = map[string]string{
	"critical": "Critical",
	"high":     "High",
	"medium":   "Medium",
	"low":      "Low",
}

func normalizeSeverity(s string) string {
	s = strings.TrimSpace(s)
	if v, ok := severities[strings.ToLower(s)]; ok {
		return v
	}
	return s
}

// normalizeDepartment upper-cases acronyms ("it", "hr") and title-cases names.
func normalizeDepartment(s string) string {
	s = strings.TrimSpace(s)
	if n := utf8.RuneCountInString(s); n > 0 && n <= 3 {
		return strings.ToUpper(s)
	}
	return titleCase(s)
}

// titleCase builds a Caser per call; Casers keep state between calls.
func titleCase(s string) string {
	return cases.Title(language.Und).String(strings.Join(strings.Fields(s), " "))
}

func normalizeYear(v any) string {
	switch y := v.(type) {
	case string:
		return strings.TrimSpace(y)
	case float64:
		return strconv.FormatFloat(y, 'f', -1, 64)
	}
	return ""
}

func normalizeKeywords(in []string) []string {
	seen := make(map[string]bool, len(in))
	var out []string
	for _, k := range in {
		k = strings.ToLower(strings.TrimSpace(k))
		if k == "" || seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, k)
	}
	return out
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.DateOnly, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

var yearRe = regexp.MustCompile(`^\d{4}$`)

// ValidateFilters rejects filters the record store cannot evaluate.
func ValidateFilters(f entity.ExtractedFilters) error {
	if f.Year != "" && !yearRe.MatchString(f.Year) {
		return fmt.Errorf("%w: year %q is not a four digit year", entity.ErrValidation, f.Year)
	}
	if f.Severity != "" {
		if _, ok := severities[strings.ToLower(f.Severity)]; !ok {
			return fmt.Errorf("%w: unknown severity %q", entity.ErrValidation, f.Severity)
		}
	}
	if dr := f.DateRange; dr != nil && !dr.Start.IsZero() && !dr.End.IsZero() && dr.End.Before(dr.Start) {
		return fmt.Errorf("%w: date range ends before it starts", entity.ErrValidation)
	}
	return nil
}
