package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KYogeshPandey/snaptick-attendance-system/config"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/api/handler"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/api/middleware"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/jwt"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/redis"
)

// Setup 初始化并返回 Gin 路由引擎
// rdb 为 nil 时不启用 Token 黑名单，登录限流退化为进程内令牌桶
func Setup(cfg *config.Config, h *handler.Handler, jwtMgr *jwt.Manager, rdb *redis.Client, logger *zap.Logger) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.MaxMultipartMemory = cfg.Server.MaxBodyBytes

	// ── 全局中间件 ──
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.CORS(cfg.Server.CORS.AllowOrigins))
	r.Use(middleware.BodyLimit(cfg.Server.MaxBodyBytes))

	// ── 健康检查 ──
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// ── 参考照片（复核界面展示） ──
	r.Static(cfg.Storage.PublicPrefix, cfg.Storage.PhotoDir)

	var blacklist middleware.TokenChecker
	if rdb != nil {
		blacklist = rdb
	}

	// ── API v1 ──
	v1 := r.Group("/api/v1")
	{
		// 认证模块（无需认证）
		auth := v1.Group("/auth")
		{
			loginLimit := middleware.RateLimit(rdb, cfg.RateLimit.LoginLimit, cfg.RateLimit.LoginWindow)
			auth.POST("/login", loginLimit, h.Auth.Login)
			auth.POST("/register", loginLimit, h.Auth.Register)
			auth.POST("/refresh", h.Auth.RefreshToken)
		}

		// 需要认证的路由
		authorized := v1.Group("")
		authorized.Use(middleware.JWTAuth(jwtMgr, blacklist))
		{
			authorized.POST("/auth/logout", h.Auth.Logout)
			authorized.GET("/auth/me", h.Auth.GetMe)

			staff := middleware.RoleAuth("teacher", "admin")

			// 班级模块
			classrooms := authorized.Group("/classrooms", staff)
			{
				classrooms.GET("", h.Classroom.ListClassrooms)
				classrooms.POST("", h.Classroom.CreateClassroom)
				classrooms.GET("/:id", h.Classroom.GetClassroom)
				classrooms.PUT("/:id", h.Classroom.UpdateClassroom)
				classrooms.DELETE("/:id", h.Classroom.DeleteClassroom)

				classrooms.GET("/:id/students", h.Student.ListStudents)
				classrooms.POST("/:id/students/import", h.Student.ImportRoster)
				classrooms.POST("/:id/students/photos", h.Student.UploadPhotos)
			}

			// 学生模块
			students := authorized.Group("/students", staff)
			{
				students.POST("/:id/photo", h.Student.UploadPhoto)
				students.PUT("/:id", h.Student.UpdateStudent)
				students.DELETE("/:id", h.Student.DeleteStudent)
			}

			// 考勤模块
			attendance := authorized.Group("/attendance", staff)
			{
				attendance.POST("/mark-face", h.Attendance.MarkFace)
				attendance.POST("/mark", h.Attendance.MarkManual)
				attendance.POST("/review", h.Attendance.Review)
				attendance.GET("/classroom/:id", h.Attendance.ListByDate)
				attendance.GET("/classroom/:id/history", h.Attendance.History)
				attendance.GET("/rate-limit", h.Attendance.RateLimitStatus)
				attendance.DELETE("/rate-limit/:user_id", middleware.RoleAuth("admin"), h.Attendance.ResetRateLimit)
				attendance.DELETE("/:id", h.Attendance.DeleteRecord)
			}

			// 导出模块
			export := authorized.Group("/export", staff)
			{
				export.GET("/attendance", h.Export.ExportAttendance)
			}

			// 统计模块
			analytics := authorized.Group("/analytics", staff)
			{
				analytics.GET("/overview", h.Analytics.Overview)
				analytics.GET("/trend", h.Analytics.Trend)
				analytics.GET("/students", h.Analytics.Students)
				analytics.GET("/heatmap", h.Analytics.Heatmap)
				analytics.GET("/classrooms", h.Analytics.Classrooms)
			}

			// 学生端
			portal := authorized.Group("/portal", middleware.RoleAuth("student"))
			{
				portal.GET("/dashboard", h.Portal.Dashboard)
				portal.GET("/attendance", h.Portal.Attendance)
				portal.GET("/attendance/:subject", h.Portal.SubjectAttendance)
				portal.GET("/profile", h.Portal.Profile)
			}
		}
	}

	return r
}
