package model

// 用户角色
const (
	RoleTeacher = "teacher"
	RoleStudent = "student"
	RoleAdmin   = "admin"
)

// User 用户表 — 对应 users
type User struct {
	UserID        string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"user_id"`
	Name          string  `gorm:"type:varchar(100);not null"                     json:"name"`
	Email         string  `gorm:"type:varchar(120);not null"                     json:"email"`
	PasswordHash  string  `gorm:"type:varchar(255);not null"                     json:"-"`
	Role          string  `gorm:"type:varchar(20);not null;default:'teacher'"    json:"role"`
	PhoneNumber   *string `gorm:"type:varchar(20)"                               json:"phone_number,omitempty"`
	SubjectTaught *string `gorm:"type:varchar(100)"                              json:"subject_taught,omitempty"`
	SoftDeleteModel
}

// TableName 指定表名
func (User) TableName() string { return "users" }
