package model

import "time"

// 考勤状态
const (
	AttendancePresent = "present"
	AttendanceAbsent  = "absent"
)

// 考勤来源
const (
	SourceFace    = "face"    // 人脸识别第 1 级自动写入
	SourceManual  = "manual"  // 教师手动标记
	SourceReview  = "review"  // 第 2/3 级匹配经教师确认
	SourceDefault = "default" // 识别时未出现的学生默认缺勤
)

// AttendanceRecord 考勤记录 — 对应 attendance_records
// (student_id, classroom_id, date) 唯一
type AttendanceRecord struct {
	AttendanceID string    `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"attendance_id"`
	StudentID    string    `gorm:"type:uuid;not null"                             json:"student_id"`
	ClassroomID  string    `gorm:"type:uuid;not null"                             json:"classroom_id"`
	Date         time.Time `gorm:"type:date;not null"                             json:"date"`
	Status       string    `gorm:"type:varchar(20);not null"                      json:"status"`
	Confidence   *float64  `gorm:"type:double precision"                          json:"confidence,omitempty"`
	Distance     *float64  `gorm:"type:double precision"                          json:"distance,omitempty"`
	Source       string    `gorm:"type:varchar(20);not null;default:'manual'"     json:"source"`
	MarkedAt     time.Time `gorm:"not null;default:CURRENT_TIMESTAMP"             json:"marked_at"`
	MarkedBy     *string   `gorm:"type:uuid"                                      json:"marked_by,omitempty"`

	// 关联
	Student *Student `gorm:"foreignKey:StudentID;references:StudentID" json:"student,omitempty"`
}

// TableName 指定表名
func (AttendanceRecord) TableName() string { return "attendance_records" }

// DateLayout 考勤日期格式
const DateLayout = "2006-01-02"
