package handlers

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/osiastedian/syshub/libs/auth"
	"github.com/osiastedian/syshub/libs/challenge"
	"github.com/osiastedian/syshub/libs/kafka"
	"github.com/osiastedian/syshub/libs/portal"
	"github.com/osiastedian/syshub/libs/rate"
	"github.com/osiastedian/syshub/services/user/internal/storage"
)

type Store interface {
	GetUserByID(ctx context.Context, userID uuid.UUID) (*storage.User, error)
	UpdateUser(ctx context.Context, userID uuid.UUID, update storage.UserUpdate) (*storage.User, error)
	DeleteUser(ctx context.Context, userID uuid.UUID, audit storage.AuditLog) (storage.Deletion, error)
	InsertAudit(ctx context.Context, log storage.AuditLog) error
}

type Handler struct {
	Store        Store
	Logger       *slog.Logger
	Secret       []byte
	ReauthMaxAge time.Duration
	Codes        challenge.Store
	Verifier     *challenge.Verifier
	Sender       challenge.Sender
	Publisher    kafka.Publisher
	Now          func() time.Time
}

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// New wires the handler. attempts caps verification-code checks per user and
// should share its redis with the auth service.
func New(store Store, logger *slog.Logger, secret []byte, codes challenge.Store, attempts rate.Limiter, publisher kafka.Publisher) *Handler {
	if publisher == nil {
		publisher = kafka.NewLogPublisher(logger)
	}
	h := &Handler{
		Store:        store,
		Logger:       logger,
		Secret:       secret,
		ReauthMaxAge: 5 * time.Minute,
		Codes:        codes,
		Sender:       challenge.LogSender{Logger: logger},
		Publisher:    publisher,
		Now:          time.Now,
	}
	h.Verifier = &challenge.Verifier{SMS: codes, Attempts: attempts, Now: func() time.Time { return h.Now() }}
	return h
}

func (h *Handler) Register(r *gin.Engine) {
	g := r.Group("/user/:id", auth.Middleware(h.Secret), auth.SameUser("id"))
	g.GET("", h.GetUser)
	g.PUT("", h.UpdateUser)
	g.DELETE("", h.DeleteUser)
	g.GET("/2fa", h.TwoFactorStatus)
	g.POST("/2fa/verify", h.VerifyCode)
	g.POST("/2fa/sms", h.SendSMSCode)
}

func (h *Handler) GetUser(c *gin.Context) {
	user, ok := h.loadUser(c)
	if !ok {
		return
	}
	h.audit(c, user.ID, "read.user")
	c.JSON(http.StatusOK, toResponse(user))
}

// loadUser resolves the route user and writes the error response itself.
func (h *Handler) loadUser(c *gin.Context) (*storage.User, bool) {
	userID, ok := auth.UserIDFromContext(c)
	if !ok {
		writeError(c, http.StatusUnauthorized, "UNAUTHORIZED", "missing user")
		return nil, false
	}

	user, err := h.Store.GetUserByID(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeError(c, http.StatusNotFound, "NOT_FOUND", "user not found")
			return nil, false
		}
		h.internalError(c, "user lookup failed", err)
		return nil, false
	}
	return user, true
}

func (h *Handler) audit(c *gin.Context, userID uuid.UUID, action string) {
	if err := h.Store.InsertAudit(c.Request.Context(), h.auditLog(c, userID, action)); err != nil {
		h.Logger.Error("audit log failed", "error", err, "action", action)
	}
}

func (h *Handler) auditLog(c *gin.Context, userID uuid.UUID, action string) storage.AuditLog {
	return storage.AuditLog{
		ActorID:    userID,
		ActorType:  "user",
		Action:     action,
		EntityType: "user",
		EntityID:   &userID,
		IP:         c.ClientIP(),
		UserAgent:  c.Request.UserAgent(),
	}
}

func (h *Handler) publish(c *gin.Context, topic, key string, build func(kafka.Envelope) any) {
	env, err := kafka.NewEnvelope(topic, 1, c.GetHeader("X-Request-ID"))
	if err == nil {
		_, _, err = h.Publisher.PublishJSON(c.Request.Context(), topic, key, build(env))
	}
	if err != nil {
		h.Logger.Error("event publish failed", "error", err, "topic", topic, "key", key)
	}
}

func toResponse(u *storage.User) portal.User {
	out := portal.User{
		ID:        u.ID,
		Email:     u.Email,
		TwoFA:     portal.TwoFactor{SMS: u.SMSEnabled, GAuth: u.GAuthEnabled},
		CreatedAt: u.CreatedAt.UTC(),
	}
	if u.VotingAddress != nil {
		out.VotingAddress = *u.VotingAddress
	}
	if u.Phone != nil {
		out.Phone = *u.Phone
	}
	return out
}

func (h *Handler) internalError(c *gin.Context, msg string, err error) {
	h.Logger.Error(msg, "error", err)
	writeError(c, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error")
}

// codeCheckFailed answers a Verifier error: 429 while the user is over the
// attempt budget, 500 otherwise.
func (h *Handler) codeCheckFailed(c *gin.Context, err error) {
	var limited *challenge.LimitedError
	if errors.As(err, &limited) {
		if limited.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(limited.RetryAfter.Seconds()))))
		}
		writeError(c, http.StatusTooManyRequests, "RATE_LIMITED", "too many verification attempts")
		return
	}
	h.internalError(c, "code check failed", err)
}

func writeError(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorResponse{Code: code, Message: message})
}

func writeValidation(c *gin.Context, fields map[string]string) {
	c.JSON(http.StatusNotAcceptable, errorResponse{Code: "VALIDATION", Message: "validation failed", Fields: fields})
}

func writeInvalidCode(c *gin.Context) {
	writeError(c, http.StatusNotAcceptable, "INVALID_CODE", "invalid verification code")
}
