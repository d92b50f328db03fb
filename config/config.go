package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/recognition"
)

// Config 应用全局配置结构体
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"db"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Log         LogConfig         `mapstructure:"log"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
	Detector    DetectorConfig    `mapstructure:"detector"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Storage     StorageConfig     `mapstructure:"storage"`
}

// ServerConfig HTTP 服务器配置
type ServerConfig struct {
	Port         int        `mapstructure:"port"`
	BaseURL      string     `mapstructure:"base_url"`
	MaxBodyBytes int64      `mapstructure:"max_body_bytes"`
	CORS         CORSConfig `mapstructure:"cors"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// DatabaseConfig PostgreSQL 数据库配置
type DatabaseConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Name            string `mapstructure:"name"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"sslmode"`
	Timezone        string `mapstructure:"timezone"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`  // 连接最大生命周期（分钟）
	ConnMaxIdleTime int    `mapstructure:"conn_max_idle_time"` // 空闲连接最大存活时间（分钟）
}

// DSN 生成 PostgreSQL 连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s TimeZone=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode, c.Timezone,
	)
}

// RedisConfig Redis 配置（为空地址时不启用）
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig JWT 认证配置
type AuthConfig struct {
	JWTSecret               string        `mapstructure:"jwt_secret"`
	AccessTokenTTL          time.Duration `mapstructure:"access_token_ttl"`
	RefreshTokenTTLDefault  time.Duration `mapstructure:"refresh_token_ttl_default"`
	RefreshTokenTTLRemember time.Duration `mapstructure:"refresh_token_ttl_remember_me"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// RecognitionConfig 人脸匹配分级阈值
// 阈值与所用的 embedding 模型强相关，必须可配置
type RecognitionConfig struct {
	Tier1Threshold float64 `mapstructure:"tier1_threshold"`
	Tier2Threshold float64 `mapstructure:"tier2_threshold"`
	Tier3Threshold float64 `mapstructure:"tier3_threshold"`
	Workers        int     `mapstructure:"workers"` // 0 表示 GOMAXPROCS
}

// Thresholds 转换为匹配分级阈值
func (r RecognitionConfig) Thresholds() recognition.Thresholds {
	return recognition.Thresholds{T1: r.Tier1Threshold, T2: r.Tier2Threshold, T3: r.Tier3Threshold}
}

// DetectorConfig 人脸检测 / 特征提取 sidecar 配置
type DetectorConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	RecognitionLimit  int           `mapstructure:"recognition_limit"`
	RecognitionWindow time.Duration `mapstructure:"recognition_window"`
	SweepInterval     time.Duration `mapstructure:"sweep_interval"`
	LoginLimit        int           `mapstructure:"login_limit"`
	LoginWindow       time.Duration `mapstructure:"login_window"`
}

// StorageConfig 参考照片存储配置
type StorageConfig struct {
	PhotoDir      string `mapstructure:"photo_dir"`
	PublicPrefix  string `mapstructure:"public_prefix"`
	MaxPhotoBytes int64  `mapstructure:"max_photo_bytes"`
}

// Load 从配置文件与环境变量加载配置
// 优先级：环境变量 > 配置文件 > 默认值
func Load(path string) (*Config, error) {
	v := viper.New()

	// ── 默认值 ──
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.base_url", "http://localhost:8080")
	v.SetDefault("server.max_body_bytes", 32<<20)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:5173"})

	v.SetDefault("db.host", "localhost")
	v.SetDefault("db.port", 5432)
	v.SetDefault("db.name", "snaptick")
	v.SetDefault("db.user", "postgres")
	v.SetDefault("db.password", "")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.timezone", "Asia/Kolkata")
	v.SetDefault("db.max_open_conns", 25)
	v.SetDefault("db.max_idle_conns", 10)
	v.SetDefault("db.conn_max_lifetime", 60)
	v.SetDefault("db.conn_max_idle_time", 30)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("auth.jwt_secret", "") // 登记键名，AutomaticEnv 才会在 Unmarshal 时读取 SNAPTICK_AUTH_JWT_SECRET
	v.SetDefault("auth.access_token_ttl", "15m")
	v.SetDefault("auth.refresh_token_ttl_default", "24h")
	v.SetDefault("auth.refresh_token_ttl_remember_me", "168h")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("recognition.tier1_threshold", 0.45)
	v.SetDefault("recognition.tier2_threshold", 0.60)
	v.SetDefault("recognition.tier3_threshold", 0.70)
	v.SetDefault("recognition.workers", 0)

	v.SetDefault("detector.base_url", "http://localhost:8000")
	v.SetDefault("detector.timeout", "30s")

	v.SetDefault("rate_limit.recognition_limit", 80)
	v.SetDefault("rate_limit.recognition_window", "60m")
	v.SetDefault("rate_limit.sweep_interval", "10m")
	v.SetDefault("rate_limit.login_limit", 10)
	v.SetDefault("rate_limit.login_window", "1m")

	v.SetDefault("storage.photo_dir", "./data/photos")
	v.SetDefault("storage.public_prefix", "/photos")
	v.SetDefault("storage.max_photo_bytes", 10<<20)

	// ── 配置文件 ──
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	// ── 环境变量 ──
	v.SetEnvPrefix("SNAPTICK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("读取配置文件失败: %w", err)
		}
		// 配置文件不存在时仅依赖默认值和环境变量
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("解析配置失败: %w", err)
	}

	// ── 关键配置校验 ──
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 不能为空")
	}
	if len(c.Auth.JWTSecret) < 16 {
		return fmt.Errorf("配置校验失败: auth.jwt_secret 长度不能少于 16 字符")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("配置校验失败: server.port 必须在 1-65535 之间")
	}

	if err := c.Recognition.Thresholds().Validate(); err != nil {
		return fmt.Errorf("配置校验失败: recognition %w", err)
	}
	if c.Recognition.Workers < 0 {
		return fmt.Errorf("配置校验失败: recognition.workers 不能为负数")
	}

	if c.RateLimit.RecognitionLimit <= 0 || c.RateLimit.RecognitionWindow <= 0 {
		return fmt.Errorf("配置校验失败: rate_limit.recognition_limit 与 recognition_window 必须为正数")
	}
	return nil
}
