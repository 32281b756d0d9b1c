package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"house-of-david/backend/internal/dto"
	"house-of-david/backend/internal/service"
	"house-of-david/backend/pkg/response"
)

// AttendanceHandler 签到会话 HTTP 处理器
type AttendanceHandler struct {
	attendanceSvc service.AttendanceService
}

// NewAttendanceHandler 创建 AttendanceHandler
func NewAttendanceHandler(attendanceSvc service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendanceSvc: attendanceSvc}
}

// ────────────────────── 公开接口 ──────────────────────

// GetActive 获取当前开放的签到会话
// GET /api/v1/attendance-sessions/active
func (h *AttendanceHandler) GetActive(c *gin.Context) {
	result, err := h.attendanceSvc.GetActive(c.Request.Context())
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}
	if result == nil {
		response.OKEmpty(c, "当前没有进行中的签到会话")
		return
	}

	response.OK(c, result)
}

// Sign 签到
// POST /api/v1/attendance-sessions/:id/sign
func (h *AttendanceHandler) Sign(c *gin.Context) {
	var req dto.SignAttendanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.attendanceSvc.Sign(c.Request.Context(), c.Param("id"), &req, c.ClientIP())
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OKWithMessage(c, "签到成功", result)
}

// ────────────────────── 管理端 ──────────────────────

// Open 开启签到会话（自动关闭其他进行中的会话）
// POST /api/v1/attendance-sessions
func (h *AttendanceHandler) Open(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	var req dto.CreateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		bindError(c, err)
		return
	}

	result, err := h.attendanceSvc.Open(c.Request.Context(), &req, userID)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.Created(c, "签到会话已开启", result)
}

// List 签到会话列表
// GET /api/v1/attendance-sessions
func (h *AttendanceHandler) List(c *gin.Context) {
	result, err := h.attendanceSvc.List(c.Request.Context())
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OKList(c, result, len(result))
}

// Get 签到会话详情（含签名）
// GET /api/v1/attendance-sessions/:id
func (h *AttendanceHandler) Get(c *gin.Context) {
	result, err := h.attendanceSvc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, result)
}

// Close 关闭签到会话
// PUT /api/v1/attendance-sessions/:id/close
func (h *AttendanceHandler) Close(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.attendanceSvc.Close(c.Request.Context(), c.Param("id"), userID)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OKWithMessage(c, "签到会话已关闭", result)
}

// Refresh 清空签名并重新计时
// PUT /api/v1/attendance-sessions/:id/refresh
func (h *AttendanceHandler) Refresh(c *gin.Context) {
	result, err := h.attendanceSvc.Refresh(c.Request.Context(), c.Param("id"))
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OKWithMessage(c, "签到会话已刷新", result)
}

// Delete 删除签到会话及其全部签名
// DELETE /api/v1/attendance-sessions/:id
func (h *AttendanceHandler) Delete(c *gin.Context) {
	if err := h.attendanceSvc.Delete(c.Request.Context(), c.Param("id")); err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OKWithMessage(c, "签到会话已删除", nil)
}

func (h *AttendanceHandler) handleAttendanceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrValidation):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrSessionNotFound):
		response.NotFound(c, err.Error())
	case errors.Is(err, service.ErrSessionClosed),
		errors.Is(err, service.ErrSessionNotRefreshable),
		errors.Is(err, service.ErrDuplicateSignature):
		response.BadRequest(c, err.Error())
	case errors.Is(err, service.ErrSessionOpenConflict):
		response.Error(c, http.StatusConflict, err.Error())
	default:
		response.InternalError(c, err)
	}
}

// bindError 请求体解析失败：超限返回 413，其余返回 400
func bindError(c *gin.Context, err error) {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		response.Error(c, http.StatusRequestEntityTooLarge, "请求体过大")
		return
	}
	response.BadRequest(c, "参数校验失败")
}
