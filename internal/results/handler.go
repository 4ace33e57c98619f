package results

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/rwalker123/draco-sub020/pkg/response"
)

// Handler serves finalized contest results.
type Handler struct {
	repo   *Repository
	logger *zap.Logger
}

// NewHandler creates a results handler.
func NewHandler(repo *Repository, logger *zap.Logger) *Handler {
	return &Handler{repo: repo, logger: logger}
}

// GetByContest handles GET /contests/:id/result (public read): the durable
// final result written when the live session was finalized.
func (h *Handler) GetByContest(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid contest id")
		return
	}
	res, err := h.repo.GetByContest(c.Request.Context(), id)
	if err != nil {
		h.logger.Error("get result", zap.Int64("contest_id", id), zap.Error(err))
		response.Internal(c, "result lookup failed")
		return
	}
	if res == nil {
		response.NotFound(c, "no result for contest")
		return
	}
	response.OK(c, res)
}
