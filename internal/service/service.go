package service

import (
	"go.uber.org/zap"

	"github.com/KYogeshPandey/snaptick-attendance-system/config"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/ratelimit"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/recognition"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/repository"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/imagequality"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/jwt"
)

// Service 所有 Service 的聚合入口
type Service struct {
	Auth       AuthService
	Classroom  ClassroomService
	Student    StudentService
	Attendance AttendanceService
	Export     ExportService
	Analytics  AnalyticsService
	Portal     PortalService
}

// Deps 外部依赖（检测 sidecar、限流器、照片存储、Token 黑名单）
type Deps struct {
	Detector  recognition.Detector
	Limiter   ratelimit.Limiter
	Photos    PhotoStore
	Blacklist TokenBlacklist // 可为 nil（未启用 Redis）
}

// NewService 创建 Service 聚合
func NewService(
	cfg *config.Config,
	repo *repository.Repository,
	jwtMgr *jwt.Manager,
	deps Deps,
	logger *zap.Logger,
) *Service {
	attendanceOpts := AttendanceOptions{Thresholds: cfg.Recognition.Thresholds(), Workers: cfg.Recognition.Workers}
	quality := imagequality.DefaultConfig()

	return &Service{
		Auth:       NewAuthService(cfg, repo, jwtMgr, deps.Blacklist, logger),
		Classroom:  NewClassroomService(repo, logger),
		Student:    NewStudentService(repo, deps.Detector, deps.Photos, quality, cfg.Storage.MaxPhotoBytes, logger),
		Attendance: NewAttendanceService(repo, deps.Detector, deps.Limiter, deps.Photos, attendanceOpts, logger),
		Export:     NewExportService(repo, logger),
		Analytics:  NewAnalyticsService(repo, nil, logger),
		Portal:     NewPortalService(repo, deps.Photos, logger),
	}
}
