package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/osiastedian/syshub/libs/auth"
	"github.com/osiastedian/syshub/libs/portal"
	"github.com/osiastedian/syshub/libs/syscoin"
	"github.com/osiastedian/syshub/services/masternode/internal/storage"
)

const (
	DefaultPerPage = 10
	MaxPerPage     = 100
	maxLabel       = 64
)

type Store interface {
	Search(ctx context.Context, q storage.Query) ([]storage.Masternode, int, error)
	Get(ctx context.Context, txid string, index int) (*storage.Masternode, error)
	Stats(ctx context.Context) (storage.Stats, error)
	Register(ctx context.Context, in storage.NewMasternode) (*storage.Masternode, error)
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]storage.Masternode, error)
}

type Handler struct {
	Store   Store
	Logger  *slog.Logger
	Metrics *Metrics
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type listResponse struct {
	Items []portal.Masternode `json:"items"`
}

func New(store Store, logger *slog.Logger, metrics *Metrics) *Handler {
	return &Handler{Store: store, Logger: logger, Metrics: metrics}
}

func (h *Handler) Register(r *gin.Engine, jwtSecret []byte) {
	r.POST("/masternodes/search", h.Search)
	r.GET("/masternodes/stats", h.Stats)
	r.GET("/masternodes/:txid/:index", h.Status)

	authed := r.Group("/", auth.Middleware(jwtSecret))
	authed.POST("/masternodes", h.RegisterMasternode)
	authed.GET("/user/:id/masternodes", auth.SameUser("id"), h.Owned)
}

// NormalizeQuery clamps paging and resolves the sort key. A missing or
// unknown sort falls back to rank.
func NormalizeQuery(q portal.MasternodeQuery) storage.Query {
	out := storage.Query{
		Search:   strings.TrimSpace(q.Search),
		SortBy:   storage.DefaultSort,
		SortDesc: q.SortDesc,
		Page:     q.Page,
		PerPage:  q.PerPage,
	}
	if _, ok := storage.SortColumn(q.SortBy); ok {
		out.SortBy = strings.ToLower(strings.TrimSpace(q.SortBy))
	}
	if out.Page < 1 {
		out.Page = 1
	}
	switch {
	case out.PerPage <= 0:
		out.PerPage = DefaultPerPage
	case out.PerPage > MaxPerPage:
		out.PerPage = MaxPerPage
	}
	return out
}

func (h *Handler) Search(c *gin.Context) {
	var req portal.MasternodeQuery
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}

	q := NormalizeQuery(req)
	items, total, err := h.Store.Search(c.Request.Context(), q)
	if err != nil {
		h.internalError(c, "masternode search failed", err)
		return
	}

	if h.Metrics != nil {
		h.Metrics.Searches.WithLabelValues(q.SortBy, strconv.FormatBool(q.Search != "")).Inc()
	}

	c.JSON(http.StatusOK, portal.MasternodePage{
		Items:   toResponses(items),
		Total:   total,
		Page:    q.Page,
		PerPage: q.PerPage,
	})
}

func (h *Handler) Status(c *gin.Context) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil || index < 0 {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid collateral index")
		return
	}

	mn, err := h.Store.Get(c.Request.Context(), c.Param("txid"), index)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "masternode not found")
			return
		}
		h.internalError(c, "masternode lookup failed", err)
		return
	}
	c.JSON(http.StatusOK, toResponse(mn))
}

func (h *Handler) Stats(c *gin.Context) {
	stats, err := h.Store.Stats(c.Request.Context())
	if err != nil {
		h.internalError(c, "masternode stats failed", err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *Handler) RegisterMasternode(c *gin.Context) {
	var req portal.RegisterMasternodeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		writeError(c, http.StatusBadRequest, "INVALID_REQUEST", "invalid payload")
		return
	}
	ownerID, ok := auth.UserIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}

	in := storage.NewMasternode{
		CollateralTxID:  strings.ToLower(strings.TrimSpace(req.CollateralTxID)),
		CollateralIndex: req.CollateralIndex,
		Address:         strings.TrimSpace(req.Address),
		IP:              strings.TrimSpace(req.IP),
		Label:           strings.TrimSpace(req.Label),
		OwnerID:         ownerID,
	}
	if fields := validateRegistration(in); len(fields) > 0 {
		h.countRegistration("invalid")
		c.JSON(http.StatusNotAcceptable, errorResponse{Code: "VALIDATION", Message: "validation failed", Fields: fields})
		return
	}

	mn, err := h.Store.Register(c.Request.Context(), in)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			h.countRegistration("duplicate")
			writeError(c, http.StatusConflict, "CONFLICT", "masternode already registered")
			return
		}
		h.internalError(c, "masternode register failed", err)
		return
	}

	h.countRegistration("ok")
	h.Logger.Info("masternode registered", "id", mn.ID, "owner_id", ownerID)
	c.JSON(http.StatusCreated, toResponse(mn))
}

func (h *Handler) Owned(c *gin.Context) {
	ownerID, ok := auth.UserIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return
	}
	items, err := h.Store.ListByOwner(c.Request.Context(), ownerID)
	if err != nil {
		h.internalError(c, "owned masternodes failed", err)
		return
	}
	c.JSON(http.StatusOK, listResponse{Items: toResponses(items)})
}

func validateRegistration(in storage.NewMasternode) map[string]string {
	fields := map[string]string{}
	if !syscoin.ValidTxID(in.CollateralTxID) {
		fields["collateral_txid"] = "must be a 64 character hex transaction id"
	}
	if in.CollateralIndex < 0 {
		fields["collateral_index"] = "must not be negative"
	}
	if !syscoin.ValidAddress(in.Address) {
		fields["address"] = "invalid syscoin address"
	}
	if host, port, err := net.SplitHostPort(in.IP); err != nil || net.ParseIP(host) == nil || port == "" {
		fields["ip"] = "must be ip:port"
	}
	if len(in.Label) > maxLabel {
		fields["label"] = "too long"
	}
	return fields
}

func (h *Handler) countRegistration(result string) {
	if h.Metrics != nil {
		h.Metrics.Registrations.WithLabelValues(result).Inc()
	}
}

func toResponse(mn *storage.Masternode) portal.Masternode {
	return portal.Masternode{
		ID:              mn.ID,
		CollateralTxID:  mn.CollateralTxID,
		CollateralIndex: mn.CollateralIndex,
		Address:         mn.Address,
		IP:              mn.IP,
		Label:           mn.Label,
		Status:          mn.Status,
		Collateral:      mn.Collateral,
		Rank:            mn.Rank,
		LastPaidAt:      mn.LastPaidAt,
		OwnerID:         mn.OwnerID,
		RegisteredAt:    mn.RegisteredAt.UTC(),
	}
}

func toResponses(items []storage.Masternode) []portal.Masternode {
	out := make([]portal.Masternode, 0, len(items))
	for i := range items {
		out = append(out, toResponse(&items[i]))
	}
	return out
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	h.Logger.Error(msg, "error", err)
	writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}
