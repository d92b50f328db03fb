package handler

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/api/middleware"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/dto"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/service"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/response"
)

// AttendanceHandler 考勤模块 HTTP 处理器
type AttendanceHandler struct {
	attendanceSvc service.AttendanceService
}

// NewAttendanceHandler 创建 AttendanceHandler
func NewAttendanceHandler(attendanceSvc service.AttendanceService) *AttendanceHandler {
	return &AttendanceHandler{attendanceSvc: attendanceSvc}
}

// MarkFace 课堂照片识别考勤（multipart：image / classroom_id / date）
// POST /api/v1/attendance/mark-face
func (h *AttendanceHandler) MarkFace(c *gin.Context) {
	var req dto.MarkFaceRequest
	if err := c.ShouldBind(&req); err != nil {
		if middleware.IsBodyTooLarge(err) {
			response.Error(c, http.StatusRequestEntityTooLarge, 10005, "请求体过大")
			return
		}
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	image, _, err := readFormFile(c, "image")
	if err != nil {
		writeUploadError(c, err, 17001, "缺少课堂照片")
		return
	}

	result, err := h.attendanceSvc.MarkFace(c.Request.Context(), &service.MarkFaceInput{
		ClassroomID: req.ClassroomID,
		Date:        req.Date,
		Image:       image,
	}, callerID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, result)
}

// MarkManual 手动批量标记（覆盖已有记录）
// POST /api/v1/attendance/mark
func (h *AttendanceHandler) MarkManual(c *gin.Context) {
	var req dto.ManualMarkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	result, err := h.attendanceSvc.MarkManual(c.Request.Context(), &req, callerID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, result)
}

// Review 复核第 2/3 级匹配
// POST /api/v1/attendance/review
func (h *AttendanceHandler) Review(c *gin.Context) {
	var req dto.ReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	record, err := h.attendanceSvc.Review(c.Request.Context(), &req, callerID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, record)
}

// ListByDate 班级单日考勤
// GET /api/v1/attendance/classroom/:id?date=YYYY-MM-DD
func (h *AttendanceHandler) ListByDate(c *gin.Context) {
	classroomID := c.Param("id")
	if classroomID == "" {
		response.BadRequest(c, 10001, "班级ID不能为空")
		return
	}

	var req dto.AttendanceListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	result, err := h.attendanceSvc.ListByDate(c.Request.Context(), classroomID, req.Date, callerID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, result)
}

// History 班级历史出勤（按日统计）
// GET /api/v1/attendance/classroom/:id/history?days=30
func (h *AttendanceHandler) History(c *gin.Context) {
	classroomID := c.Param("id")
	if classroomID == "" {
		response.BadRequest(c, 10001, "班级ID不能为空")
		return
	}

	var req dto.AttendanceHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	items, err := h.attendanceSvc.History(c.Request.Context(), classroomID, req.Days, callerID, role)
	if err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, gin.H{"list": items})
}

// DeleteRecord 删除单条考勤记录
// DELETE /api/v1/attendance/:id
func (h *AttendanceHandler) DeleteRecord(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "记录ID不能为空")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.attendanceSvc.Delete(c.Request.Context(), id, callerID, role); err != nil {
		h.handleAttendanceError(c, err)
		return
	}

	response.OK(c, nil)
}

// RateLimitStatus 当前用户的识别额度
// GET /api/v1/attendance/rate-limit
func (h *AttendanceHandler) RateLimitStatus(c *gin.Context) {
	userID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	status, err := h.attendanceSvc.RateLimitStatus(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, status)
}

// ResetRateLimit 管理员重置指定用户的识别额度
// DELETE /api/v1/attendance/rate-limit/:user_id
func (h *AttendanceHandler) ResetRateLimit(c *gin.Context) {
	userID := c.Param("user_id")
	if userID == "" {
		response.BadRequest(c, 10001, "用户ID不能为空")
		return
	}

	existed, err := h.attendanceSvc.ResetRateLimit(c.Request.Context(), userID)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, gin.H{"user_id": userID, "reset": existed})
}

// handleAttendanceError 统一处理考勤模块业务错误
func (h *AttendanceHandler) handleAttendanceError(c *gin.Context, err error) {
	var limited *service.RateLimitedError
	if errors.As(err, &limited) {
		writeRateLimited(c, limited)
		return
	}
	if writeClassroomAccessError(c, err) || writeDateError(c, err) {
		return
	}

	switch {
	case errors.Is(err, service.ErrImageRequired):
		response.BadRequest(c, 17001, "缺少课堂照片")
	case errors.Is(err, service.ErrNoFacesDetected):
		response.UnprocessableEntity(c, 17002, "照片中未检测到人脸")
	case errors.Is(err, service.ErrDetectorUnavailable):
		response.BadGateway(c, 17003, "人脸检测服务不可用")
	case errors.Is(err, service.ErrReconcileFailed):
		response.Error(c, http.StatusInternalServerError, 17004, "考勤写入失败，已全部回滚")
	case errors.Is(err, service.ErrAttendanceNotFound):
		response.NotFound(c, 17005, "考勤记录不存在")
	case errors.Is(err, service.ErrStudentNotInClassroom):
		response.BadRequest(c, 17006, "学生不属于该班级")
	default:
		response.InternalError(c)
	}
}

func writeRateLimited(c *gin.Context, e *service.RateLimitedError) {
	retryAfter := int(math.Ceil(e.Result.RetryAfter.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	resetAt := ""
	if !e.Result.ResetAt.IsZero() {
		resetAt = e.Result.ResetAt.UTC().Format(time.RFC3339)
	}

	c.Header("Retry-After", strconv.Itoa(retryAfter))
	response.TooManyRequests(c, 10004, "识别次数已达上限，请稍后再试", dto.RateLimitedResponse{
		RetryAfter: retryAfter,
		ResetAt:    resetAt,
		Limit:      e.Result.Limit,
	})
}
