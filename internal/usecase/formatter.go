package usecase

import (
	"context"
	"errors"

	"auditlens/internal/domain/entity"

	"go.uber.org/zap"
)

const emptyResultSuggestion = "No findings matched these filters. Try removing a filter, widening the year or date range, or using a broader department name."

// ResponseFormatter shapes query results. Apart from the single fallback
// re-fetch in FormatError it performs no I/O.
type ResponseFormatter struct {
	log *zap.Logger
}

func NewResponseFormatter(log *zap.Logger) *ResponseFormatter {
	return &ResponseFormatter{log: log.Named("formatter")}
}

// Page is a 1-based slice of a listing.
type Page struct {
	Number int
	Size   int
}

func (p Page) normalize() Page {
	if p.Number < 1 {
		p.Number = 1
	}
	if p.Size < 1 {
		p.Size = DefaultMaxResults
	}
	return p
}

// Paginate returns the page of records. Out-of-range pages are empty.
func Paginate(records []entity.Finding, p Page) []entity.Finding {
	p = p.normalize()
	start := (p.Number - 1) * p.Size
	if start >= len(records) {
		return []entity.Finding{}
	}
	end := min(start+p.Size, len(records))
	return records[start:end]
}

func (f *ResponseFormatter) FormatSimple(records []entity.Finding, md entity.QueryMetadata, page Page) *entity.QueryResponse {
	return f.listing(entity.QuerySimple, "", records, md, page)
}

// FormatAnalysis pairs the model answer with the records it was shown.
func (f *ResponseFormatter) FormatAnalysis(modelText string, records []entity.Finding, md entity.QueryMetadata) *entity.QueryResponse {
	if records == nil {
		records = []entity.Finding{}
	}
	md.QueryType = entity.QueryComplex
	md.RecordsAnalyzed = len(records)
	return &entity.QueryResponse{
		Success:  true,
		Type:     entity.QueryComplex,
		Answer:   modelText,
		Records:  records,
		Metadata: md,
	}
}

// FormatHybrid combines the filtered listing with the model narrative.
// An empty modelText with no records is the skip-on-empty result.
func (f *ResponseFormatter) FormatHybrid(records []entity.Finding, modelText string, md entity.QueryMetadata, page Page) *entity.QueryResponse {
	return f.listing(entity.QueryHybrid, modelText, records, md, page)
}

func (f *ResponseFormatter) listing(t entity.QueryType, answer string, records []entity.Finding, md entity.QueryMetadata, page Page) *entity.QueryResponse {
	page = page.normalize()
	md.QueryType = t
	md.TotalRecords = len(records)
	md.Page = page.Number
	md.PageSize = page.Size
	if md.RecordsAnalyzed == 0 {
		md.RecordsAnalyzed = len(records)
	}

	resp := &entity.QueryResponse{
		Success:  true,
		Type:     t,
		Answer:   answer,
		Records:  Paginate(records, page),
		Metadata: md,
	}
	if len(records) == 0 {
		resp.Suggestion = emptyResultSuggestion
	}
	return resp
}

// ClassifyError maps a pipeline error onto the closed error taxonomy.
// Unrecognized errors are reported as classification failures.
func ClassifyError(err error) entity.ErrorCode {
	switch {
	case errors.Is(err, entity.ErrRateLimitExceeded):
		return entity.CodeRateLimit
	case errors.Is(err, entity.ErrValidation):
		return entity.CodeValidation
	case errors.Is(err, entity.ErrDatabase):
		return entity.CodeDatabase
	case errors.Is(err, entity.ErrAI):
		return entity.CodeAI
	}
	return entity.CodeClassification
}

var errorText = map[entity.ErrorCode]struct{ message, suggestion string }{
	entity.CodeClassification: {
		"The question could not be interpreted.",
		"Rephrase the question, for example \"critical findings in IT for 2024\".",
	},
	entity.CodeDatabase: {
		"The findings database could not be queried.",
		"Try again in a moment. If the problem persists, contact the administrator.",
	},
	entity.CodeAI: {
		"The analysis service is unavailable.",
		"Matching findings are listed below where possible. Try the analysis again later.",
	},
	entity.CodeRateLimit: {
		"The analysis quota has been exhausted.",
		"Wait before sending more analysis questions, or ask for a plain listing.",
	},
	entity.CodeValidation: {
		"The filters in the question are not valid.",
		"Check the year, severity and date range in the question.",
	},
}

// RefetchFunc returns plain filtered records for an AI_ERROR fallback.
type RefetchFunc func(ctx context.Context) ([]entity.Finding, error)

// FormatError builds the error response. For AI_ERROR, refetch is called
// once and its records attached; a failing refetch is ignored.
func (f *ResponseFormatter) FormatError(ctx context.Context, err error, md entity.QueryMetadata, refetch RefetchFunc) *entity.QueryErrorResponse {
	code := ClassifyError(err)
	text := errorText[code]

	resp := &entity.QueryErrorResponse{
		Success: false,
		Error: entity.QueryError{
			Code:       code,
			Message:    text.message,
			Suggestion: text.suggestion,
		},
		Metadata: md,
	}

	if code == entity.CodeAI && refetch != nil {
		records, rerr := refetch(ctx)
		if rerr != nil {
			f.log.Warn("fallback re-fetch failed", zap.Error(rerr))
		} else {
			resp.Error.FallbackRecords = records
			resp.Metadata.RecordsAnalyzed = len(records)
		}
	}
	return resp
}
