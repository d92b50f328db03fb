package dto

// ── 班级模块 DTO ──

// CreateClassroomRequest 创建班级请求
type CreateClassroomRequest struct {
	Name     string `json:"name"     binding:"required,min=1,max=100"`
	Subject  string `json:"subject"  binding:"required,min=1,max=100"`
	Branch   string `json:"branch"   binding:"omitempty,max=50"`
	Section  string `json:"section"  binding:"omitempty,max=10"`
	Semester *int   `json:"semester" binding:"omitempty,min=1,max=8"`
}

// UpdateClassroomRequest 更新班级请求
type UpdateClassroomRequest struct {
	Name     *string `json:"name"     binding:"omitempty,min=1,max=100"`
	Subject  *string `json:"subject"  binding:"omitempty,min=1,max=100"`
	Branch   *string `json:"branch"   binding:"omitempty,max=50"`
	Section  *string `json:"section"  binding:"omitempty,max=10"`
	Semester *int    `json:"semester" binding:"omitempty,min=1,max=8"`
	Version  int     `json:"version"  binding:"required,min=1"`
}

// ClassroomResponse 班级信息响应
type ClassroomResponse struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Subject      string `json:"subject"`
	Branch       string `json:"branch,omitempty"`
	Section      string `json:"section,omitempty"`
	Semester     *int   `json:"semester,omitempty"`
	TeacherID    string `json:"teacher_id"`
	StudentCount int    `json:"student_count"`
	Version      int    `json:"version"`
	CreatedAt    string `json:"created_at"`
}
