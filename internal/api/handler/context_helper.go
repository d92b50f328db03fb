package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/api/middleware"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/response"
)

// MustGetUserID 从 Gin 上下文中安全提取 user_id。
// 如果 JWT 中间件未正确注入 user_id，返回 false 并写入 401 响应。
// 调用方应在 ok=false 时直接 return。
func MustGetUserID(c *gin.Context) (string, bool) {
	return mustGetString(c, middleware.CtxUserID)
}

// MustGetRole 从 Gin 上下文中安全提取 role。
func MustGetRole(c *gin.Context) (string, bool) {
	return mustGetString(c, middleware.CtxRole)
}

// MustGetCaller 同时提取 user_id 与 role（班级归属校验需要两者）
func MustGetCaller(c *gin.Context) (userID, role string, ok bool) {
	if userID, ok = MustGetUserID(c); !ok {
		return "", "", false
	}
	if role, ok = MustGetRole(c); !ok {
		return "", "", false
	}
	return userID, role, true
}

// GetTokenMeta 提取当前 Access Token 的 jti 与过期时间（登出时写入黑名单）
func GetTokenMeta(c *gin.Context) (jti string, expiresAt time.Time) {
	jti = c.GetString(middleware.CtxTokenID)
	if v, ok := c.Get(middleware.CtxTokenExp); ok {
		expiresAt, _ = v.(time.Time)
	}
	return jti, expiresAt
}

func mustGetString(c *gin.Context, key string) (string, bool) {
	v, exists := c.Get(key)
	if !exists {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	s, ok := v.(string)
	if !ok || s == "" {
		response.Unauthorized(c, 10002, "未认证")
		return "", false
	}
	return s, true
}
