package api

import (
	"context"
	"time"

	"auditlens/internal/domain/entity"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// QueryProcessor is satisfied by usecase.Orchestrator.
type QueryProcessor interface {
	ProcessQuery(ctx context.Context, text string, opts entity.QueryOptions) (*entity.QueryResponse, *entity.QueryErrorResponse)
}

// Reindexer is satisfied by usecase.FindingIndexer.
type Reindexer interface {
	Reindex(ctx context.Context, filters []entity.QueryFilter) (int, error)
}

type QueryHandler struct {
	processor QueryProcessor
	indexer   Reindexer
	timeout   time.Duration
	log       *zap.Logger
}

func NewQueryHandler(p QueryProcessor, idx Reindexer, timeout time.Duration, log *zap.Logger) *QueryHandler {
	return &QueryHandler{processor: p, indexer: idx, timeout: timeout, log: log.Named("api")}
}

var statusByCode = map[entity.ErrorCode]int{
	entity.CodeValidation:     fiber.StatusBadRequest,
	entity.CodeClassification: fiber.StatusUnprocessableEntity,
	entity.CodeRateLimit:      fiber.StatusTooManyRequests,
	entity.CodeDatabase:       fiber.StatusServiceUnavailable,
	entity.CodeAI:             fiber.StatusBadGateway,
}

func (h *QueryHandler) HandleQuery(c *fiber.Ctx) error {
	var req entity.QueryRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
	}

	ctx := c.UserContext()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	// The delivery layer maps the business error code to HTTP status codes
	resp, errResp := h.processor.ProcessQuery(ctx, req.Query, req.QueryOptions)
	if errResp != nil {
		c.Set("X-Session-Id", errResp.Metadata.SessionID)
		status, ok := statusByCode[errResp.Error.Code]
		if !ok {
			status = fiber.StatusInternalServerError
		}
		return c.Status(status).JSON(errResp)
	}

	c.Set("X-Session-Id", resp.Metadata.SessionID)
	c.Set("X-Query-Type", string(resp.Type))
	return c.Status(fiber.StatusOK).JSON(resp)
}

type reindexRequest struct {
	Filters []entity.QueryFilter `json:"filters"`
}

func (h *QueryHandler) HandleReindex(c *fiber.Ctx) error {
	var req reindexRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid request body"})
		}
	}
	for _, f := range req.Filters {
		if !f.Operator.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "unknown operator " + string(f.Operator)})
		}
	}

	n, err := h.indexer.Reindex(c.UserContext(), req.Filters)
	if err != nil {
		h.log.Error("reindex failed", zap.Int("indexed", n), zap.Error(err))
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "reindex failed", "indexed": n})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"indexed": n})
}
