package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"house-of-david/backend/internal/service"
	"house-of-david/backend/pkg/response"
)

// StatsHandler 出勤统计 HTTP 处理器
type StatsHandler struct {
	statsSvc service.StatsService
}

// NewStatsHandler 创建 StatsHandler
func NewStatsHandler(statsSvc service.StatsService) *StatsHandler {
	return &StatsHandler{statsSvc: statsSvc}
}

// MyStats 当前用户出勤统计
// GET /api/v1/attendance-sessions/my-stats
func (h *StatsHandler) MyStats(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.statsSvc.MyStats(c.Request.Context(), userID)
	if err != nil {
		h.handleStatsError(c, err)
		return
	}

	response.OK(c, result)
}

// MemberStats 指定会员出勤统计
// GET /api/v1/attendance-sessions/member/:id/stats
func (h *StatsHandler) MemberStats(c *gin.Context) {
	result, err := h.statsSvc.MemberStats(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleStatsError(c, err)
		return
	}

	response.OK(c, result)
}

// OrgStats 全组织出勤统计
// GET /api/v1/attendance-sessions/org-stats
func (h *StatsHandler) OrgStats(c *gin.Context) {
	result, err := h.statsSvc.OrgStats(c.Request.Context())
	if err != nil {
		h.handleStatsError(c, err)
		return
	}

	response.OK(c, result)
}

func (h *StatsHandler) handleStatsError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrMemberNotFound):
		response.NotFound(c, err.Error())
	default:
		response.InternalError(c, err)
	}
}
