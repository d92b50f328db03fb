package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/dto"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/service"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/response"
)

// ClassroomHandler 班级模块 HTTP 处理器
type ClassroomHandler struct {
	classroomSvc service.ClassroomService
}

// NewClassroomHandler 创建 ClassroomHandler
func NewClassroomHandler(classroomSvc service.ClassroomService) *ClassroomHandler {
	return &ClassroomHandler{classroomSvc: classroomSvc}
}

// ListClassrooms 班级列表（教师仅见自己的班级）
// GET /api/v1/classrooms
func (h *ClassroomHandler) ListClassrooms(c *gin.Context) {
	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	list, err := h.classroomSvc.List(c.Request.Context(), callerID, role)
	if err != nil {
		response.InternalError(c)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// GetClassroom 班级详情
// GET /api/v1/classrooms/:id
func (h *ClassroomHandler) GetClassroom(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "班级ID不能为空")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	classroom, err := h.classroomSvc.Get(c.Request.Context(), id, callerID, role)
	if err != nil {
		h.handleClassroomError(c, err)
		return
	}

	response.OK(c, classroom)
}

// CreateClassroom 创建班级
// POST /api/v1/classrooms
func (h *ClassroomHandler) CreateClassroom(c *gin.Context) {
	var req dto.CreateClassroomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, ok := MustGetUserID(c)
	if !ok {
		return
	}

	classroom, err := h.classroomSvc.Create(c.Request.Context(), &req, callerID)
	if err != nil {
		h.handleClassroomError(c, err)
		return
	}

	response.Created(c, classroom)
}

// UpdateClassroom 更新班级（乐观锁）
// PUT /api/v1/classrooms/:id
func (h *ClassroomHandler) UpdateClassroom(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "班级ID不能为空")
		return
	}

	var req dto.UpdateClassroomRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	classroom, err := h.classroomSvc.Update(c.Request.Context(), id, &req, callerID, role)
	if err != nil {
		h.handleClassroomError(c, err)
		return
	}

	response.OK(c, classroom)
}

// DeleteClassroom 删除班级（级联删除学生与考勤）
// DELETE /api/v1/classrooms/:id
func (h *ClassroomHandler) DeleteClassroom(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "班级ID不能为空")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.classroomSvc.Delete(c.Request.Context(), id, callerID, role); err != nil {
		h.handleClassroomError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleClassroomError 统一处理班级模块业务错误
func (h *ClassroomHandler) handleClassroomError(c *gin.Context, err error) {
	if writeClassroomAccessError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrClassroomConflict):
		response.Conflict(c, 18003, "班级已被修改，请刷新后重试")
	default:
		response.InternalError(c)
	}
}

// writeClassroomAccessError 班级不存在 / 无权访问的公共映射，已写响应时返回 true
func writeClassroomAccessError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, service.ErrClassroomNotFound):
		response.NotFound(c, 18001, "班级不存在")
	case errors.Is(err, service.ErrClassroomForbidden):
		response.Forbidden(c, 18002, "无权访问该班级")
	default:
		return false
	}
	return true
}

// writeDateError 日期格式 / 区间错误的公共映射，已写响应时返回 true
func writeDateError(c *gin.Context, err error) bool {
	switch {
	case errors.Is(err, service.ErrInvalidDate):
		response.BadRequest(c, 17001, "日期格式错误，应为 YYYY-MM-DD")
	case errors.Is(err, service.ErrInvalidDateRange):
		response.BadRequest(c, 17007, "开始日期不能晚于结束日期")
	default:
		return false
	}
	return true
}
