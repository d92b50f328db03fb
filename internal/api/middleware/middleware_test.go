package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KYogeshPandey/snaptick-attendance-system/config"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubChecker struct {
	revoked bool
	err     error
	seen    string
}

func (s *stubChecker) IsBlacklisted(_ context.Context, jti string) (bool, error) {
	s.seen = jti
	return s.revoked, s.err
}

func newJWTManager() *jwt.Manager {
	return jwt.NewManager(&config.AuthConfig{
		JWTSecret:               "middleware-test-secret-0123456789",
		AccessTokenTTL:          15 * time.Minute,
		RefreshTokenTTLDefault:  24 * time.Hour,
		RefreshTokenTTLRemember: 168 * time.Hour,
	})
}

// protectedEngine /p 路由回显上下文中的身份信息
func protectedEngine(mgr *jwt.Manager, checker TokenChecker, roles ...string) *gin.Engine {
	r := gin.New()
	handlers := []gin.HandlerFunc{JWTAuth(mgr, checker)}
	if len(roles) > 0 {
		handlers = append(handlers, RoleAuth(roles...))
	}
	handlers = append(handlers, func(c *gin.Context) {
		_, hasExp := c.Get(CtxTokenExp)
		c.JSON(http.StatusOK, gin.H{
			"user_id": c.GetString(CtxUserID),
			"role":    c.GetString(CtxRole),
			"jti":     c.GetString(CtxTokenID),
			"has_exp": hasExp,
		})
	})
	r.GET("/p", handlers...)
	return r
}

func doGet(r *gin.Engine, path, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ── JWTAuth ──

func TestJWTAuth_ValidToken(t *testing.T) {
	mgr := newJWTManager()
	token, err := mgr.GenerateAccessToken("teacher-1", "teacher")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	checker := &stubChecker{}

	w := doGet(protectedEngine(mgr, checker), "/p", token)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	body := w.Body.String()
	if !strings.Contains(body, `"user_id":"teacher-1"`) || !strings.Contains(body, `"has_exp":true`) {
		t.Errorf("identity not injected: %s", body)
	}
	if checker.seen == "" {
		t.Error("expected blacklist lookup by jti")
	}
}

func TestJWTAuth_MissingHeader(t *testing.T) {
	w := doGet(protectedEngine(newJWTManager(), nil), "/p", "")

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestJWTAuth_RefreshTokenRejected(t *testing.T) {
	mgr := newJWTManager()
	token, _ := mgr.GenerateRefreshToken("teacher-1", "teacher", false)

	w := doGet(protectedEngine(mgr, nil), "/p", token)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for refresh token, got %d", w.Code)
	}
}

func TestJWTAuth_Blacklisted(t *testing.T) {
	mgr := newJWTManager()
	token, _ := mgr.GenerateAccessToken("teacher-1", "teacher")

	w := doGet(protectedEngine(mgr, &stubChecker{revoked: true}), "/p", token)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401 for revoked token, got %d", w.Code)
	}
}

func TestJWTAuth_BlacklistErrorFailsOpen(t *testing.T) {
	mgr := newJWTManager()
	token, _ := mgr.GenerateAccessToken("teacher-1", "teacher")

	w := doGet(protectedEngine(mgr, &stubChecker{err: errors.New("redis down")}), "/p", token)

	if w.Code != http.StatusOK {
		t.Errorf("expected 200 when blacklist lookup fails, got %d", w.Code)
	}
}

// ── RoleAuth ──

func TestRoleAuth(t *testing.T) {
	mgr := newJWTManager()
	tests := []struct {
		role   string
		status int
	}{
		{"teacher", http.StatusOK},
		{"admin", http.StatusOK},
		{"student", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			token, _ := mgr.GenerateAccessToken("u-1", tt.role)

			w := doGet(protectedEngine(mgr, nil, "teacher", "admin"), "/p", token)

			if w.Code != tt.status {
				t.Errorf("expected %d, got %d", tt.status, w.Code)
			}
		})
	}
}

// ── RateLimit（无 Redis 时的进程内令牌桶） ──

func TestRateLimit_LocalFallback(t *testing.T) {
	r := gin.New()
	r.POST("/login", RateLimit(nil, 3, time.Minute), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	codes := make([]int, 0, 4)
	for i := 0; i < 4; i++ {
		req := httptest.NewRequest("POST", "/login", nil)
		req.RemoteAddr = "10.0.0.1:1234"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		codes = append(codes, w.Code)
		if i == 3 && w.Header().Get("Retry-After") != "60" {
			t.Errorf("expected Retry-After 60, got %q", w.Header().Get("Retry-After"))
		}
	}

	want := []int{200, 200, 200, 429}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("request %d: expected %d, got %d", i, want[i], codes[i])
		}
	}

	// 其他 IP 不受影响
	req := httptest.NewRequest("POST", "/login", nil)
	req.RemoteAddr = "10.0.0.2:1234"
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("expected other client to pass, got %d", w.Code)
	}
}

// ── BodyLimit ──

func TestBodyLimit_ContentLength(t *testing.T) {
	r := gin.New()
	r.POST("/upload", BodyLimit(8), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest("POST", "/upload", strings.NewReader("0123456789abcdef"))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	if w.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", w.Code)
	}
}

// ── RequestID ──

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(requestIDKey))
	})

	req := httptest.NewRequest("GET", "/x", nil)
	req.Header.Set(requestIDHeader, "client-trace-1")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Header().Get(requestIDHeader) != "client-trace-1" || w.Body.String() != "client-trace-1" {
		t.Errorf("expected client id to be kept, got header=%q body=%q", w.Header().Get(requestIDHeader), w.Body.String())
	}

	req = httptest.NewRequest("GET", "/x", nil)
	req.Header.Set(requestIDHeader, "bad id with spaces")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if got := w.Header().Get(requestIDHeader); got == "" || got == "bad id with spaces" {
		t.Errorf("expected generated id, got %q", got)
	}
}
