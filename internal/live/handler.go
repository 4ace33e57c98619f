package live

import (
	"errors"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rwalker123/draco-sub020/internal/contests"
	"github.com/rwalker123/draco-sub020/internal/middleware"
	"github.com/rwalker123/draco-sub020/internal/models"
	"github.com/rwalker123/draco-sub020/internal/realtime"
	"github.com/rwalker123/draco-sub020/pkg/response"
)

// TicketRequest is the body for POST /contests/:id/live/ticket.
type TicketRequest struct {
	Role string `json:"role" binding:"required"`
}

// ScoreRequest is the body for POST /contests/:id/live/scores.
type ScoreRequest struct {
	SegmentNumber int    `json:"segmentNumber" binding:"required,min=1"`
	Side          string `json:"side" binding:"required"`
	Value         int    `json:"value" binding:"min=0"`
}

// AdvanceRequest is the body for POST /contests/:id/live/advance.
type AdvanceRequest struct {
	SegmentNumber int `json:"segmentNumber" binding:"required,min=1"`
}

// Handler handles live-scoring HTTP endpoints.
type Handler struct {
	service  *Service
	contests *contests.Repository
	hub      *realtime.Hub
	logger   *zap.Logger
}

// NewHandler creates a live-scoring handler.
func NewHandler(service *Service, contestRepo *contests.Repository, hub *realtime.Hub, logger *zap.Logger) *Handler {
	return &Handler{service: service, contests: contestRepo, hub: hub, logger: logger}
}

// contestFromPath resolves :id to a contest; writes the error response and
// returns nil when it cannot.
func (h *Handler) contestFromPath(c *gin.Context) *models.Contest {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid contest id")
		return nil
	}
	contest, err := h.contests.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("contest lookup", zap.Int64("contest_id", id), zap.Error(err))
		response.Internal(c, "contest lookup failed")
		return nil
	}
	if contest == nil {
		response.NotFound(c, "contest not found")
		return nil
	}
	return contest
}

// requireAccount enforces the tenant boundary: the caller's account must own
// the contest.
func (h *Handler) requireAccount(c *gin.Context, contest *models.Contest) bool {
	accountID := c.MustGet(middleware.ContextAccountID).(int64)
	if contest.AccountID != accountID {
		response.Forbidden(c, "contest belongs to another account")
		return false
	}
	return true
}

func (h *Handler) writeServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrNotAuthorized):
		response.Forbidden(c, "not authorized to score this contest")
	case errors.Is(err, ErrAlreadyActive):
		response.Conflict(c, "session already active")
	case errors.Is(err, ErrNoActiveSession):
		response.Conflict(c, "no active session")
	case errors.Is(err, ErrPersistence):
		response.ServiceUnavailable(c, "failed to save final result, retry finalize")
	default:
		h.logger.Error("live scoring call failed", zap.Error(err))
		response.Internal(c, "internal error")
	}
}

// Status handles GET /contests/:id/live/status (authorized).
func (h *Handler) Status(c *gin.Context) {
	contest := h.contestFromPath(c)
	if contest == nil {
		return
	}
	_, active := h.service.GetState(contest.ID)
	response.OK(c, gin.H{
		"hasActiveSession": active,
		"viewerCount":      h.hub.ViewerCount(contest.ID),
	})
}

// Snapshot handles GET /contests/:id/live (public read).
func (h *Handler) Snapshot(c *gin.Context) {
	contest := h.contestFromPath(c)
	if contest == nil {
		return
	}
	sess, ok := h.service.GetState(contest.ID)
	if !ok {
		response.NotFound(c, "no active session")
		return
	}
	response.OK(c, gin.H{"session": sess, "totals": sess.Totals()})
}

// CreateTicket handles POST /contests/:id/live/ticket (authorized).
func (h *Handler) CreateTicket(c *gin.Context) {
	contest := h.contestFromPath(c)
	if contest == nil || !h.requireAccount(c, contest) {
		return
	}
	var req TicketRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "role required")
		return
	}
	role, err := ParseRole(req.Role)
	if err != nil {
		response.BadRequest(c, "role must be scorer or viewer")
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	token, expiresIn, err := h.service.CreateTicket(c.Request.Context(), contest, userID, role)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	response.OK(c, gin.H{"ticket": token, "expiresIn": expiresIn})
}

// consumeTicket validates the ?ticket= query param for a streaming handshake.
// Writes 401 for invalid tickets and 403 for the account boundary, returns
// nil on failure.
func (h *Handler) consumeTicket(c *gin.Context, contest *models.Contest) *TicketClaims {
	token := c.Query("ticket")
	if token == "" {
		response.Unauthorized(c, "ticket required")
		return nil
	}
	claims, err := h.service.ValidateTicket(token, contest.ID)
	if err != nil {
		switch {
		case errors.Is(err, ErrTicketExpired):
			response.Unauthorized(c, "ticket expired")
		case errors.Is(err, ErrTicketContestMismatch):
			response.Unauthorized(c, "ticket not valid for this contest")
		default:
			response.Unauthorized(c, "invalid ticket")
		}
		return nil
	}
	if claims.AccountID != contest.AccountID {
		response.Forbidden(c, "ticket account mismatch")
		return nil
	}
	return claims
}

// Subscribe handles GET /contests/:id/live/subscribe?ticket=... by opening a
// server-sent-events stream. Blocks for the life of the connection.
func (h *Handler) Subscribe(c *gin.Context) {
	contest := h.contestFromPath(c)
	if contest == nil {
		return
	}
	claims := h.consumeTicket(c, contest)
	if claims == nil {
		return
	}
	realtime.ServeSSE(h.hub, h.logger, c, contest.ID, claims.UserID, string(claims.Role))
}

// SubscribeWS handles GET /contests/:id/live/ws?ticket=... by upgrading to a
// WebSocket. Blocks for the life of the connection.
func (h *Handler) SubscribeWS(c *gin.Context) {
	contest := h.contestFromPath(c)
	if contest == nil {
		return
	}
	claims := h.consumeTicket(c, contest)
	if claims == nil {
		return
	}
	realtime.ServeWS(h.hub, h.logger, c, contest.ID, claims.UserID, string(claims.Role))
}

// Start handles POST /contests/:id/live/start.
func (h *Handler) Start(c *gin.Context) {
	contest := h.contestFromPath(c)
	if contest == nil || !h.requireAccount(c, contest) {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	sess, err := h.service.Start(c.Request.Context(), contest, userID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	response.Created(c, sess)
}

// SubmitScore handles POST /contests/:id/live/scores.
func (h *Handler) SubmitScore(c *gin.Context) {
	contest := h.contestFromPath(c)
	if contest == nil || !h.requireAccount(c, contest) {
		return
	}
	var req ScoreRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	sess, err := h.service.SubmitScore(c.Request.Context(), contest, userID, req.SegmentNumber, req.Side, req.Value)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	response.OK(c, gin.H{"session": sess, "totals": sess.Totals()})
}

// Advance handles POST /contests/:id/live/advance.
func (h *Handler) Advance(c *gin.Context) {
	contest := h.contestFromPath(c)
	if contest == nil || !h.requireAccount(c, contest) {
		return
	}
	var req AdvanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	sess, err := h.service.AdvanceSegment(c.Request.Context(), contest, userID, req.SegmentNumber)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	response.OK(c, gin.H{"currentSegment": sess.CurrentSegment})
}

// Finalize handles POST /contests/:id/live/finalize.
func (h *Handler) Finalize(c *gin.Context) {
	contest := h.contestFromPath(c)
	if contest == nil || !h.requireAccount(c, contest) {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	final, err := h.service.Finalize(c.Request.Context(), contest, userID)
	if err != nil {
		h.writeServiceError(c, err)
		return
	}
	response.OK(c, final)
}

// Stop handles POST /contests/:id/live/stop.
func (h *Handler) Stop(c *gin.Context) {
	contest := h.contestFromPath(c)
	if contest == nil || !h.requireAccount(c, contest) {
		return
	}
	userID := c.MustGet(middleware.ContextUserID).(uuid.UUID)

	if err := h.service.Stop(c.Request.Context(), contest, userID); err != nil {
		h.writeServiceError(c, err)
		return
	}
	response.OK(c, gin.H{"contestId": contest.ID, "stopped": true})
}
