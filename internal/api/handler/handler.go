package handler

import "github.com/KYogeshPandey/snaptick-attendance-system/internal/service"

// Handler 所有 Handler 的聚合入口
type Handler struct {
	Auth       *AuthHandler
	Classroom  *ClassroomHandler
	Student    *StudentHandler
	Attendance *AttendanceHandler
	Export     *ExportHandler
	Analytics  *AnalyticsHandler
	Portal     *PortalHandler
}

// NewHandler 创建 Handler 聚合
func NewHandler(svc *service.Service) *Handler {
	return &Handler{
		Auth:       NewAuthHandler(svc.Auth),
		Classroom:  NewClassroomHandler(svc.Classroom),
		Student:    NewStudentHandler(svc.Student),
		Attendance: NewAttendanceHandler(svc.Attendance),
		Export:     NewExportHandler(svc.Export),
		Analytics:  NewAnalyticsHandler(svc.Analytics),
		Portal:     NewPortalHandler(svc.Portal),
	}
}
