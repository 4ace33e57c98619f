package contests

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rwalker123/draco-sub020/internal/middleware"
	"github.com/rwalker123/draco-sub020/internal/models"
	"github.com/rwalker123/draco-sub020/pkg/response"
)

// CreateRequest is the body for POST /contests.
type CreateRequest struct {
	Sport    string     `json:"sport" binding:"required,oneof=baseball golf"`
	Name     string     `json:"name" binding:"required"`
	HomeSide string     `json:"homeSide" binding:"required"`
	AwaySide string     `json:"awaySide" binding:"required"`
	StartsAt *time.Time `json:"startsAt"`
}

// AddScorerRequest is the body for POST /contests/:id/scorers.
type AddScorerRequest struct {
	UserID uuid.UUID `json:"userId" binding:"required"`
}

// Handler handles contest management endpoints.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a contests handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// Create handles POST /contests (admin).
func (h *Handler) Create(c *gin.Context) {
	var req CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request: "+err.Error())
		return
	}
	accountID := c.MustGet(middleware.ContextAccountID).(int64)

	contest := &models.Contest{
		AccountID: accountID,
		Sport:     models.Sport(req.Sport),
		Name:      req.Name,
		HomeSide:  req.HomeSide,
		AwaySide:  req.AwaySide,
	}
	if req.StartsAt != nil {
		contest.StartsAt = *req.StartsAt
	} else {
		contest.StartsAt = time.Now().UTC()
	}
	if err := h.repo.Create(c.Request.Context(), contest); err != nil {
		h.logger.Error("create contest", zap.Error(err))
		response.Internal(c, "failed to create contest")
		return
	}
	response.Created(c, contest)
}

// List handles GET /contests: contests in the caller's account.
func (h *Handler) List(c *gin.Context) {
	accountID := c.MustGet(middleware.ContextAccountID).(int64)
	list, err := h.repo.ListByAccount(c.Request.Context(), accountID)
	if err != nil {
		h.logger.Error("list contests", zap.Error(err))
		response.Internal(c, "failed to list contests")
		return
	}
	response.OK(c, list)
}

// GetByID handles GET /contests/:id.
func (h *Handler) GetByID(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid contest id")
		return
	}
	contest, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get contest", zap.Int64("contest_id", id), zap.Error(err))
		response.Internal(c, "contest lookup failed")
		return
	}
	if contest == nil {
		response.NotFound(c, "contest not found")
		return
	}
	response.OK(c, contest)
}

// AddScorer handles POST /contests/:id/scorers (admin): grants a user
// scoring rights for the contest.
func (h *Handler) AddScorer(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid contest id")
		return
	}
	var req AddScorerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "userId required")
		return
	}
	contest, err := h.repo.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Internal(c, "contest lookup failed")
		return
	}
	if contest == nil {
		response.NotFound(c, "contest not found")
		return
	}
	accountID := c.MustGet(middleware.ContextAccountID).(int64)
	if contest.AccountID != accountID {
		response.Forbidden(c, "contest belongs to another account")
		return
	}
	if err := h.repo.AddScorer(c.Request.Context(), id, req.UserID); err != nil {
		h.logger.Error("add scorer", zap.Int64("contest_id", id), zap.Error(err))
		response.Internal(c, "failed to add scorer")
		return
	}
	response.OK(c, gin.H{"contestId": id, "userId": req.UserID})
}
