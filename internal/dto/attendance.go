package dto

// ── 考勤模块 DTO ──

// MarkFaceRequest 人脸识别考勤请求（multipart，图片字段为 image）
type MarkFaceRequest struct {
	ClassroomID string `form:"classroom_id" binding:"required,uuid"`
	Date        string `form:"date"         binding:"required"`
}

// MarkFaceResponse 人脸识别考勤结果
type MarkFaceResponse struct {
	Summary               MarkFaceSummary       `json:"summary"`
	HighConfidenceMatches []HighConfidenceMatch `json:"high_confidence_matches"`
	UncertainMatches      []UncertainMatch      `json:"uncertain_matches"`
	UnknownFaces          []UnknownFace         `json:"unknown_faces"`
	Gallery               GalleryStats          `json:"gallery"`
	RateLimit             RateLimitInfo         `json:"rate_limit"`
}

// MarkFaceSummary 汇总计数
type MarkFaceSummary struct {
	TotalStudents int `json:"total_students"`
	Present       int `json:"present"`
	Absent        int `json:"absent"`
	UncertainHigh int `json:"uncertain_high"`
	UncertainLow  int `json:"uncertain_low"`
	UnknownFaces  int `json:"unknown_faces"`
	FacesDetected int `json:"faces_detected"`
}

// HighConfidenceMatch 第 1 级自动确认
type HighConfidenceMatch struct {
	StudentID  string  `json:"student_id"`
	Name       string  `json:"name"`
	RollNo     string  `json:"roll_no"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
}

// UncertainMatch 第 2/3 级待复核匹配
type UncertainMatch struct {
	StudentID  string  `json:"student_id"`
	Name       string  `json:"name"`
	RollNo     string  `json:"roll_no"`
	Confidence float64 `json:"confidence"`
	Distance   float64 `json:"distance"`
	Tier       int     `json:"tier"`
	PhotoURL   string  `json:"photo_url,omitempty"`
}

// UnknownFace 未识别人脸，不含身份信息
type UnknownFace struct {
	FaceIndex  int        `json:"face_index"`
	Confidence *float64   `json:"confidence,omitempty"`
	Distance   *float64   `json:"distance,omitempty"`
	BBox       [4]float64 `json:"bbox"`
	Duplicate  bool       `json:"duplicate,omitempty"`
}

// GalleryStats 本次识别使用的特征库统计
type GalleryStats struct {
	Students      int  `json:"students"`
	Entries       int  `json:"entries"`
	Ineligible    int  `json:"ineligible"`
	ParseFailures int  `json:"parse_failures"`
	Empty         bool `json:"empty"`
}

// RateLimitInfo 识别额度
type RateLimitInfo struct {
	Remaining     int    `json:"remaining"`
	Limit         int    `json:"limit"`
	WindowMinutes int    `json:"window_minutes"`
	ResetAt       string `json:"reset_at,omitempty"`
}

// RateLimitedResponse 429 响应数据
type RateLimitedResponse struct {
	RetryAfter int    `json:"retry_after"` // 秒
	ResetAt    string `json:"reset_at"`
	Limit      int    `json:"limit"`
}

// RateLimitStatusResponse 当前额度查询
type RateLimitStatusResponse struct {
	UserID        string `json:"user_id"`
	Count         int    `json:"count"`
	Limit         int    `json:"limit"`
	Remaining     int    `json:"remaining"`
	WindowMinutes int    `json:"window_minutes"`
	ResetAt       string `json:"reset_at,omitempty"`
}

// ManualMarkRequest 手动批量标记
type ManualMarkRequest struct {
	ClassroomID string           `json:"classroom_id" binding:"required,uuid"`
	Date        string           `json:"date"         binding:"required"`
	Attendance  []ManualMarkItem `json:"attendance"   binding:"required,min=1,dive"`
}

// ManualMarkItem 单个学生的手动标记
type ManualMarkItem struct {
	StudentID string `json:"student_id" binding:"required,uuid"`
	Status    string `json:"status"     binding:"required,oneof=present absent"`
}

// ManualMarkResponse 手动标记结果
type ManualMarkResponse struct {
	Marked  int      `json:"marked"`
	Skipped []string `json:"skipped,omitempty"` // 不属于该班级的学生
}

// ReviewRequest 复核第 2/3 级匹配
type ReviewRequest struct {
	ClassroomID string   `json:"classroom_id" binding:"required,uuid"`
	Date        string   `json:"date"         binding:"required"`
	StudentID   string   `json:"student_id"   binding:"required,uuid"`
	Approve     *bool    `json:"approve"      binding:"required"`
	Confidence  *float64 `json:"confidence"   binding:"omitempty,min=0,max=100"`
	Distance    *float64 `json:"distance"     binding:"omitempty,min=0"`
}

// AttendanceListRequest 按日期查询
type AttendanceListRequest struct {
	Date string `form:"date" binding:"required"`
}

// AttendanceHistoryRequest 历史查询
type AttendanceHistoryRequest struct {
	Days int `form:"days" binding:"omitempty,min=1,max=365"`
}

// AttendanceRecordResponse 考勤记录
type AttendanceRecordResponse struct {
	ID          string   `json:"id"`
	StudentID   string   `json:"student_id"`
	StudentName string   `json:"student_name,omitempty"`
	RollNo      string   `json:"roll_no,omitempty"`
	ClassroomID string   `json:"classroom_id"`
	Date        string   `json:"date"`
	Status      string   `json:"status"`
	Confidence  *float64 `json:"confidence,omitempty"`
	Distance    *float64 `json:"distance,omitempty"`
	Source      string   `json:"source"`
	MarkedAt    string   `json:"marked_at"`
}

// AttendanceDayResponse 单日考勤
type AttendanceDayResponse struct {
	ClassroomID string                     `json:"classroom_id"`
	Date        string                     `json:"date"`
	Present     int                        `json:"present"`
	Absent      int                        `json:"absent"`
	Unmarked    int                        `json:"unmarked"`
	Records     []AttendanceRecordResponse `json:"records"`
}

// AttendanceHistoryItem 历史中的单日统计
type AttendanceHistoryItem struct {
	Date    string  `json:"date"`
	Present int64   `json:"present"`
	Absent  int64   `json:"absent"`
	Rate    float64 `json:"rate"`
}

// ExportAttendanceRequest 导出参数
//
// 指定 date 时导出单个班级单日名册（必须同时指定 classroom_id）；
// 否则按 start_date ~ end_date 导出区间明细，classroom_id 为空时导出本人全部班级。
type ExportAttendanceRequest struct {
	ClassroomID string `form:"classroom_id" binding:"omitempty,uuid"`
	Date        string `form:"date"`
	StartDate   string `form:"start_date"`
	EndDate     string `form:"end_date"`
}
