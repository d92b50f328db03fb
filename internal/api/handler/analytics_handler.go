package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/dto"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/service"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/response"
)

// AnalyticsHandler 出勤统计 HTTP 处理器
type AnalyticsHandler struct {
	analyticsSvc service.AnalyticsService
}

// NewAnalyticsHandler 创建 AnalyticsHandler
func NewAnalyticsHandler(analyticsSvc service.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analyticsSvc: analyticsSvc}
}

// Overview 教师总览（各班级人数、已录入人脸数、今日出勤）
// GET /api/v1/analytics/overview
func (h *AnalyticsHandler) Overview(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	result, err := h.analyticsSvc.Overview(c.Request.Context(), callerID, role)
	if err != nil {
		h.handleAnalyticsError(c, err)
		return
	}

	response.OK(c, result)
}

// Trend 班级出勤趋势
// GET /api/v1/analytics/trend?classroom_id=xxx&days=30
func (h *AnalyticsHandler) Trend(c *gin.Context) {
	var req dto.AnalyticsTrendRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	result, err := h.analyticsSvc.Trend(c.Request.Context(), req.ClassroomID, req.Days, callerID, role)
	if err != nil {
		h.handleAnalyticsError(c, err)
		return
	}

	response.OK(c, result)
}

// Students 班级学生出勤率
// GET /api/v1/analytics/students?classroom_id=xxx
func (h *AnalyticsHandler) Students(c *gin.Context) {
	var req dto.AnalyticsStudentsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	list, err := h.analyticsSvc.Students(c.Request.Context(), req.ClassroomID, callerID, role)
	if err != nil {
		h.handleAnalyticsError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// Heatmap 班级出勤热力图
// GET /api/v1/analytics/heatmap?classroom_id=xxx&days=30|60|90
func (h *AnalyticsHandler) Heatmap(c *gin.Context) {
	var req dto.AnalyticsHeatmapRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败，days 仅支持 30/60/90")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	result, err := h.analyticsSvc.Heatmap(c.Request.Context(), req.ClassroomID, req.Days, callerID, role)
	if err != nil {
		h.handleAnalyticsError(c, err)
		return
	}

	response.OK(c, result)
}

// Classrooms 班级出勤率对比
// GET /api/v1/analytics/classrooms
func (h *AnalyticsHandler) Classrooms(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	list, err := h.analyticsSvc.ClassroomComparison(c.Request.Context(), callerID, role)
	if err != nil {
		h.handleAnalyticsError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

func (h *AnalyticsHandler) handleAnalyticsError(c *gin.Context, err error) {
	if writeClassroomAccessError(c, err) {
		return
	}
	response.InternalError(c)
}
