package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/dto"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/service"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/response"
)

// StudentHandler 学生名册与参考照片 HTTP 处理器
type StudentHandler struct {
	studentSvc service.StudentService
}

// NewStudentHandler 创建 StudentHandler
func NewStudentHandler(studentSvc service.StudentService) *StudentHandler {
	return &StudentHandler{studentSvc: studentSvc}
}

// ListStudents 班级学生列表
// GET /api/v1/classrooms/:id/students
func (h *StudentHandler) ListStudents(c *gin.Context) {
	classroomID := c.Param("id")
	if classroomID == "" {
		response.BadRequest(c, 10001, "班级ID不能为空")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	list, err := h.studentSvc.List(c.Request.Context(), classroomID, callerID, role)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}

	response.OK(c, gin.H{"list": list})
}

// ImportRoster 导入 Excel 名册（表单字段 file）
// POST /api/v1/classrooms/:id/students/import
func (h *StudentHandler) ImportRoster(c *gin.Context) {
	classroomID := c.Param("id")
	if classroomID == "" {
		response.BadRequest(c, 10001, "班级ID不能为空")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	fh, err := c.FormFile("file")
	if err != nil {
		writeUploadError(c, err, 19012, "请上传 Excel 文件")
		return
	}
	f, err := fh.Open()
	if err != nil {
		response.BadRequest(c, 10001, "文件读取失败")
		return
	}
	defer f.Close()

	result, err := h.studentSvc.ImportRoster(c.Request.Context(), classroomID, callerID, role, f)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}

	response.OK(c, result)
}

// UploadPhotos 批量上传参考照片 ZIP（表单字段 file）
// POST /api/v1/classrooms/:id/students/photos
func (h *StudentHandler) UploadPhotos(c *gin.Context) {
	classroomID := c.Param("id")
	if classroomID == "" {
		response.BadRequest(c, 10001, "班级ID不能为空")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	archive, _, err := readFormFile(c, "file")
	if err != nil {
		writeUploadError(c, err, 19008, "请上传 ZIP 文件")
		return
	}

	result, err := h.studentSvc.UploadPhotos(c.Request.Context(), classroomID, callerID, role, archive)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}

	response.OK(c, result)
}

// UploadPhoto 上传单个学生的参考照片（表单字段 photo，append=true 时追加特征）
// POST /api/v1/students/:id/photo
func (h *StudentHandler) UploadPhoto(c *gin.Context) {
	studentID := c.Param("id")
	if studentID == "" {
		response.BadRequest(c, 10001, "学生ID不能为空")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	image, filename, err := readFormFile(c, "photo")
	if err != nil {
		writeUploadError(c, err, 19003, "请上传照片")
		return
	}

	appendEncoding := false
	if v := c.PostForm("append"); v != "" {
		if appendEncoding, err = strconv.ParseBool(v); err != nil {
			response.BadRequest(c, 10001, "append 参数无效")
			return
		}
	}

	result, err := h.studentSvc.UploadPhoto(c.Request.Context(), studentID, callerID, role, image, filename, appendEncoding)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}

	response.OK(c, result)
}

// UpdateStudent 更新学生信息
// PUT /api/v1/students/:id
func (h *StudentHandler) UpdateStudent(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "学生ID不能为空")
		return
	}

	var req dto.UpdateStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, 10001, "参数校验失败")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	student, err := h.studentSvc.Update(c.Request.Context(), id, &req, callerID, role)
	if err != nil {
		h.handleStudentError(c, err)
		return
	}

	response.OK(c, student)
}

// DeleteStudent 删除学生（同时删除参考照片）
// DELETE /api/v1/students/:id
func (h *StudentHandler) DeleteStudent(c *gin.Context) {
	id := c.Param("id")
	if id == "" {
		response.BadRequest(c, 10001, "学生ID不能为空")
		return
	}

	callerID, role, ok := MustGetCaller(c)
	if !ok {
		return
	}

	if err := h.studentSvc.Delete(c.Request.Context(), id, callerID, role); err != nil {
		h.handleStudentError(c, err)
		return
	}

	response.OK(c, nil)
}

// handleStudentError 统一处理学生模块业务错误
func (h *StudentHandler) handleStudentError(c *gin.Context, err error) {
	if writeClassroomAccessError(c, err) {
		return
	}
	switch {
	case errors.Is(err, service.ErrStudentNotFound):
		response.NotFound(c, 19001, "学生不存在")
	case errors.Is(err, service.ErrStudentDuplicate):
		response.Conflict(c, 19002, "同一班级内学号或邮箱重复")
	case errors.Is(err, service.ErrPhotoInvalid):
		response.BadRequest(c, 19003, "照片无法解析")
	case errors.Is(err, service.ErrPhotoQuality):
		// 具体原因（尺寸 / 模糊 / 亮度）放在 details
		response.ErrorWithDetails(c, http.StatusUnprocessableEntity, 19004, "照片质量不合格", err.Error())
	case errors.Is(err, service.ErrPhotoTooLarge):
		response.Error(c, http.StatusRequestEntityTooLarge, 19005, "照片超过大小限制")
	case errors.Is(err, service.ErrNoFaceInPhoto):
		response.UnprocessableEntity(c, 19006, "照片中未检测到人脸")
	case errors.Is(err, service.ErrMultipleFaces):
		response.UnprocessableEntity(c, 19007, "参考照片中只能有一张人脸")
	case errors.Is(err, service.ErrInvalidZip):
		response.BadRequest(c, 19008, "无法解析 ZIP 文件")
	case errors.Is(err, service.ErrRosterInvalid):
		response.BadRequest(c, 19013, "无法解析Excel文件")
	case errors.Is(err, service.ErrRosterNoData):
		response.BadRequest(c, 19009, "Excel文件无数据行（第一行为表头）")
	case errors.Is(err, service.ErrRosterBadHeader):
		response.BadRequest(c, 19010, "Excel表头缺少必要列（name / roll_no / email）")
	case errors.Is(err, service.ErrRosterTooManyRows):
		response.BadRequest(c, 19011, err.Error())
	case errors.Is(err, service.ErrDetectorUnavailable):
		response.BadGateway(c, 17003, "人脸检测服务不可用")
	default:
		response.InternalError(c)
	}
}
