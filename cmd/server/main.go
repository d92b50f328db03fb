package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/KYogeshPandey/snaptick-attendance-system/config"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/api/handler"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/api/router"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/detector"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/ratelimit"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/repository"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/service"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/database"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/jwt"
	applogger "github.com/KYogeshPandey/snaptick-attendance-system/pkg/logger"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/redis"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/storage"
)

func main() {
	// 0. 本地开发时从 .env 注入环境变量（文件不存在则忽略）
	_ = godotenv.Load()

	// 1. 加载配置
	cfg, err := config.Load(os.Getenv("SNAPTICK_CONFIG_FILE"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		os.Exit(1)
	}

	// 2. 初始化日志
	logger, err := applogger.NewLogger(&cfg.Log)
	if err != nil {
		fmt.Fprintf(os.Stderr, "初始化日志失败: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("应用启动中...",
		zap.Int("port", cfg.Server.Port),
		zap.String("log_level", cfg.Log.Level),
		zap.Float64("tier1", cfg.Recognition.Tier1Threshold),
		zap.Float64("tier2", cfg.Recognition.Tier2Threshold),
		zap.Float64("tier3", cfg.Recognition.Tier3Threshold),
	)

	// 3. 连接数据库
	db, err := database.NewDB(&cfg.Database, cfg.Log.Level, logger)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}
	logger.Info("数据库连接成功")

	// 3.1 执行数据库迁移
	sqlDB, err := db.DB()
	if err != nil {
		logger.Fatal("获取底层 sql.DB 失败", zap.Error(err))
	}
	if err := database.RunMigrations(sqlDB, logger); err != nil {
		logger.Fatal("数据库迁移失败", zap.Error(err))
	}

	// 4. 连接 Redis（可选：未配置或连接失败时降级为进程内限流，且不启用 Token 黑名单）
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(&cfg.Redis, logger)
		if err != nil {
			logger.Warn("Redis 连接失败，降级运行", zap.Error(err))
			rdb = nil
		}
	}

	// 5. 识别限流器
	var limiter ratelimit.Limiter
	var memLimiter *ratelimit.MemoryLimiter
	if rdb != nil {
		limiter = ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.RecognitionLimit, cfg.RateLimit.RecognitionWindow)
	} else {
		memLimiter = ratelimit.NewMemoryLimiter(cfg.RateLimit.RecognitionLimit, cfg.RateLimit.RecognitionWindow)
		if err := memLimiter.StartSweeper(cfg.RateLimit.SweepInterval, logger); err != nil {
			logger.Fatal("启动限流清理任务失败", zap.Error(err))
		}
		limiter = memLimiter
	}

	// 6. 参考照片存储 + 人脸检测 sidecar
	photos, err := storage.NewLocalStore(cfg.Storage.PhotoDir, cfg.Storage.PublicPrefix)
	if err != nil {
		logger.Fatal("初始化照片存储失败", zap.Error(err))
	}
	det := detector.NewClient(&cfg.Detector, logger)

	// 7. 初始化 JWT 管理器
	jwtMgr := jwt.NewManager(&cfg.Auth)

	// 8. 依赖注入: Repository → Service → Handler
	deps := service.Deps{
		Detector: det,
		Limiter:  limiter,
		Photos:   photos,
	}
	if rdb != nil {
		deps.Blacklist = rdb
	}

	repo := repository.NewRepository(db)
	svc := service.NewService(cfg, repo, jwtMgr, deps, logger)
	h := handler.NewHandler(svc)

	// 9. 初始化路由
	engine := router.Setup(cfg, h, jwtMgr, rdb, logger)

	// 10. 启动 HTTP 服务器（优雅关闭）
	// 识别请求包含 sidecar 调用，写超时需覆盖 detector.timeout
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      engine,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.Detector.Timeout + 30*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("HTTP 服务器已启动", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP 服务器异常", zap.Error(err))
		}
	}()

	// 11. 监听系统信号，优雅关闭
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	logger.Info("收到关闭信号，开始优雅关闭...", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("服务器关闭异常", zap.Error(err))
	}

	if memLimiter != nil {
		memLimiter.Stop()
	}

	// 关闭数据库连接
	closeDB, _ := db.DB()
	if closeDB != nil {
		closeDB.Close()
	}

	// 关闭 Redis 连接
	if rdb != nil {
		rdb.Close()
	}

	logger.Info("服务器已关闭")
}
