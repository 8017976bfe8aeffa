package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/osiastedian/syshub/libs/auth"
	"github.com/osiastedian/syshub/libs/portal"
	"github.com/osiastedian/syshub/services/governance/internal/service"
	"github.com/osiastedian/syshub/services/governance/internal/storage"
)

type Governance interface {
	List(ctx context.Context, f portal.ProposalFilter) (portal.ProposalPage, error)
	Get(ctx context.Context, id uuid.UUID) (portal.Proposal, error)
	Create(ctx context.Context, owner uuid.UUID, req portal.CreateProposalRequest) (portal.Proposal, error)
	Submit(ctx context.Context, owner, id uuid.UUID, txid string) (portal.Proposal, error)
	Vote(ctx context.Context, voter, id uuid.UUID, req portal.VoteRequest) (portal.VoteResult, error)
}

type Handler struct {
	svc    Governance
	logger *slog.Logger
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func New(svc Governance, logger *slog.Logger) *Handler {
	return &Handler{svc: svc, logger: logger}
}

func (h *Handler) Register(r *gin.Engine, jwtSecret []byte) {
	r.GET("/proposals", h.List)
	r.GET("/proposals/:id", h.Get)

	authed := r.Group("/proposals", auth.Middleware(jwtSecret))
	authed.POST("", h.Create)
	authed.POST("/:id/submit", h.Submit)
	authed.POST("/:id/vote", h.Vote)
}

func (h *Handler) List(c *gin.Context) {
	f := portal.ProposalFilter{
		Status: c.Query("status"),
		Cursor: c.Query("cursor"),
	}
	if raw := c.Query("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid limit")
			return
		}
		f.Limit = limit
	}

	page, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		h.fail(c, "list proposals failed", err)
		return
	}
	c.JSON(http.StatusOK, page)
}

func (h *Handler) Get(c *gin.Context) {
	id, ok := proposalID(c)
	if !ok {
		return
	}
	p, err := h.svc.Get(c.Request.Context(), id)
	if err != nil {
		h.fail(c, "get proposal failed", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) Create(c *gin.Context) {
	var req portal.CreateProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	owner, ok := userID(c)
	if !ok {
		return
	}

	p, err := h.svc.Create(c.Request.Context(), owner, req)
	if err != nil {
		h.fail(c, "create proposal failed", err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) Submit(c *gin.Context) {
	id, ok := proposalID(c)
	if !ok {
		return
	}
	var req portal.SubmitProposalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	owner, ok := userID(c)
	if !ok {
		return
	}

	p, err := h.svc.Submit(c.Request.Context(), owner, id, req.CollateralTxID)
	if err != nil {
		h.fail(c, "submit proposal failed", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) Vote(c *gin.Context) {
	id, ok := proposalID(c)
	if !ok {
		return
	}
	var req portal.VoteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	voter, ok := userID(c)
	if !ok {
		return
	}

	res, err := h.svc.Vote(c.Request.Context(), voter, id, req)
	if err != nil {
		h.fail(c, "vote failed", err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) fail(c *gin.Context, msg string, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusNotAcceptable, errorResponse{Code: "VALIDATION", Message: "validation failed", Fields: verr.Fields})
	case errors.Is(err, storage.ErrInvalidCursor):
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid cursor")
	case errors.Is(err, storage.ErrNotFound):
		writeError(c, http.StatusNotFound, "NOT_FOUND", "proposal not found")
	case errors.Is(err, service.ErrForbidden):
		writeError(c, http.StatusForbidden, "FORBIDDEN", "forbidden")
	case errors.Is(err, storage.ErrDuplicate):
		writeError(c, http.StatusConflict, "CONFLICT", "proposal name already taken")
	case errors.Is(err, storage.ErrNotDraft), errors.Is(err, service.ErrNotSubmitted):
		writeError(c, http.StatusConflict, "CONFLICT", err.Error())
	default:
		h.logger.Error(msg, "error", err)
		writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
	}
}

func proposalID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid proposal id")
		return uuid.Nil, false
	}
	return id, true
}

func userID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := auth.UserIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
	}
	return id, ok
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}
