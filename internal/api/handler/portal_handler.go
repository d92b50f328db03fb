package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/dto"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/service"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/response"
)

// PortalHandler 学生端 HTTP 处理器
type PortalHandler struct {
	portalSvc service.PortalService
}

// NewPortalHandler 创建 PortalHandler
func NewPortalHandler(portalSvc service.PortalService) *PortalHandler {
	return &PortalHandler{portalSvc: portalSvc}
}

type portalRangeQuery struct {
	From string `form:"from"`
	To   string `form:"to"`
}

// Dashboard 学生本人各班级出勤概况
// GET /api/v1/portal/dashboard
func (h *PortalHandler) Dashboard(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.portalSvc.Dashboard(c.Request.Context(), userID)
	if err != nil {
		h.handlePortalError(c, err)
		return
	}

	response.OK(c, result)
}

// Attendance 学生本人考勤记录
// GET /api/v1/portal/attendance?from=YYYY-MM-DD&to=YYYY-MM-DD&subject=xxx&limit=100
func (h *PortalHandler) Attendance(c *gin.Context) {
	var q dto.PortalAttendanceQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	list, err := h.portalSvc.Attendance(c.Request.Context(), userID, q)
	if err != nil {
		h.handlePortalError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// SubjectAttendance 某科目的逐日考勤
// GET /api/v1/portal/attendance/:subject?from=YYYY-MM-DD&to=YYYY-MM-DD
func (h *PortalHandler) SubjectAttendance(c *gin.Context) {
	var q portalRangeQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.portalSvc.SubjectAttendance(c.Request.Context(), userID, c.Param("subject"), q.From, q.To)
	if err != nil {
		h.handlePortalError(c, err)
		return
	}

	response.OK(c, result)
}

// Profile 学生个人资料
// GET /api/v1/portal/profile
func (h *PortalHandler) Profile(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	result, err := h.portalSvc.Profile(c.Request.Context(), userID)
	if err != nil {
		h.handlePortalError(c, err)
		return
	}

	response.OK(c, result)
}

func (h *PortalHandler) handlePortalError(c *gin.Context, err error) {
	if writeDateError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrUserNotFound):
		response.NotFound(c, 11004, "用户不存在")
	case errors.Is(err, service.ErrPortalProfileNotFound):
		response.NotFound(c, 20001, "未找到学生名册记录")
	case errors.Is(err, service.ErrSubjectNotEnrolled):
		response.NotFound(c, 20002, "未选修该科目")
	default:
		response.InternalError(c)
	}
}
