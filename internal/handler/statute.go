// Package handler exposes the indexing and retrieval orchestrators over
// HTTP; no auth/authz layer, per the system's non-goals.
package handler

import (
	"github.com/gofiber/fiber/v2"

	"statutelex/internal/apperr"
	"statutelex/internal/common/response"
	"statutelex/internal/pathid"
	"statutelex/internal/retriever"
	"statutelex/internal/svc"
)

// StatuteHandler exposes index_document, index_many, and retrieve.
type StatuteHandler struct {
	svc *svc.ServiceContext
}

// NewStatuteHandler binds a handler to the process service context.
func NewStatuteHandler(sc *svc.ServiceContext) *StatuteHandler {
	return &StatuteHandler{svc: sc}
}

type indexRequest struct {
	Path  string `json:"path"`
	Force bool   `json:"force"`
}

// IndexDocument handles POST /api/documents/index.
func (h *StatuteHandler) IndexDocument(c *fiber.Ctx) error {
	var req indexRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ErrorWithCode(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Path == "" {
		return response.ErrorWithCode(c, fiber.StatusBadRequest, "path is required")
	}

	doc, err := h.svc.Indexer.IndexDocument(c.Context(), req.Path, h.svc.IndexingOptions(req.Force))
	if err != nil {
		return writeAppError(c, err)
	}
	return response.Success(c, doc)
}

type indexManyRequest struct {
	Paths      []string `json:"paths"`
	Force      bool     `json:"force"`
	SkipErrors bool     `json:"skip_errors"`
}

// IndexMany handles POST /api/documents/index_many.
func (h *StatuteHandler) IndexMany(c *fiber.Ctx) error {
	var req indexManyRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ErrorWithCode(c, fiber.StatusBadRequest, "invalid request body")
	}
	if len(req.Paths) == 0 {
		return response.ErrorWithCode(c, fiber.StatusBadRequest, "paths must be non-empty")
	}

	results := h.svc.Indexer.IndexMany(c.Context(), req.Paths, h.svc.IndexingOptions(req.Force), req.SkipErrors)
	return response.Success(c, results)
}

type retrieveRequest struct {
	Query               string   `json:"query"`
	Strategy            string   `json:"strategy"`
	DocumentFilter      []string `json:"document_filter"`
	TopK                int      `json:"top_k"`
	SummaryK            int      `json:"summary_k"`
	DetailsPerSummary   int      `json:"details_per_summary"`
	ContentMaxLength    int      `json:"content_max_length"`
	IncludeAncestors    *bool    `json:"include_ancestors"`
	IncludeSiblings     *bool    `json:"include_siblings"`
}

// Retrieve handles POST /api/retrieve.
func (h *StatuteHandler) Retrieve(c *fiber.Ctx) error {
	var req retrieveRequest
	if err := c.BodyParser(&req); err != nil {
		return response.ErrorWithCode(c, fiber.StatusBadRequest, "invalid request body")
	}
	if req.Query == "" {
		return response.ErrorWithCode(c, fiber.StatusBadRequest, "query is required")
	}

	opts := retriever.DefaultOptions()
	defaults := h.svc.Config.Retrieval
	if defaults.DefaultTopK > 0 {
		opts.TopK = defaults.DefaultTopK
	}
	if defaults.DefaultSummaryK > 0 {
		opts.SummaryK = defaults.DefaultSummaryK
	}
	if defaults.DefaultDetailsPerSum > 0 {
		opts.DetailsPerSummary = defaults.DefaultDetailsPerSum
	}
	if defaults.DefaultContentMaxLength > 0 {
		opts.ContentMaxLength = defaults.DefaultContentMaxLength
	}
	if req.Strategy != "" {
		opts.Strategy = retriever.Strategy(req.Strategy)
	}
	if req.TopK > 0 {
		opts.TopK = req.TopK
	}
	if req.SummaryK > 0 {
		opts.SummaryK = req.SummaryK
	}
	if req.DetailsPerSummary > 0 {
		opts.DetailsPerSummary = req.DetailsPerSummary
	}
	if req.ContentMaxLength > 0 {
		opts.ContentMaxLength = req.ContentMaxLength
	}
	if req.IncludeAncestors != nil {
		opts.IncludeAncestors = *req.IncludeAncestors
	}
	if req.IncludeSiblings != nil {
		opts.IncludeSiblings = *req.IncludeSiblings
	}
	if req.DocumentFilter != nil {
		opts.DocumentFilter = toDocumentIDs(req.DocumentFilter)
	}

	pack, err := h.svc.Retriever.Retrieve(c.Context(), req.Query, opts)
	if err != nil {
		return writeAppError(c, err)
	}
	return response.Success(c, pack)
}

func toDocumentIDs(ids []string) []pathid.DocumentId {
	out := make([]pathid.DocumentId, len(ids))
	for i, id := range ids {
		out[i] = pathid.DocumentId(id)
	}
	return out
}

// writeAppError maps apperr.ErrorCode to an HTTP status.
func writeAppError(c *fiber.Ctx, err error) error {
	code := apperr.Code(err)
	status := fiber.StatusInternalServerError
	switch code {
	case apperr.CodeInvalidInput:
		status = fiber.StatusBadRequest
	case apperr.CodeAlreadyIndexed:
		status = fiber.StatusConflict
	case apperr.CodeInvariantViolation:
		status = fiber.StatusUnprocessableEntity
	case apperr.CodeStoreUnavailable, apperr.CodeEmbeddingFailure:
		status = fiber.StatusServiceUnavailable
	case apperr.CodeCancelled:
		status = fiber.StatusRequestTimeout
	}
	return response.ErrorWithCode(c, status, err.Error())
}
