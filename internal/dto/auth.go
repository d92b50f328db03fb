package dto

// ── 认证模块 DTO ──

// LoginRequest 登录请求
type LoginRequest struct {
	Email      string `json:"email"    binding:"required,email"`
	Password   string `json:"password" binding:"required"`
	RememberMe bool   `json:"remember_me"`
}

// RegisterRequest 自助注册请求（教师或学生）
type RegisterRequest struct {
	Name          string `json:"name"           binding:"required,min=2,max=100"`
	Email         string `json:"email"          binding:"required,email"`
	Password      string `json:"password"       binding:"required,min=8,max=64"`
	Role          string `json:"role"           binding:"required,oneof=teacher student"`
	PhoneNumber   string `json:"phone_number"   binding:"omitempty,max=20"`
	SubjectTaught string `json:"subject_taught" binding:"omitempty,max=100"`
}

// RefreshTokenRequest 刷新 Token 请求
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}
