package model

import "gorm.io/datatypes"

// Student 班级名册 — 对应 students
//
// Encodings 保存该学生的参考人脸特征（JSON 数组，元素为等长向量），
// 由参考照片经检测服务生成；为空表示尚未登记。
type Student struct {
	StudentID   string         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"student_id"`
	ClassroomID string         `gorm:"type:uuid;not null;index"                       json:"classroom_id"`
	Name        string         `gorm:"type:varchar(100);not null"                     json:"name"`
	Email       string         `gorm:"type:varchar(120);not null"                     json:"email"`
	RollNo      string         `gorm:"type:varchar(50);not null"                      json:"roll_no"`
	PhotoPath   *string        `gorm:"type:varchar(255)"                              json:"photo_path,omitempty"`
	Encodings   datatypes.JSON `gorm:"type:jsonb"                                     json:"-"`
	UserID      *string        `gorm:"type:uuid"                                      json:"user_id,omitempty"`
	SoftDeleteModel

	// 关联
	Classroom *Classroom `gorm:"foreignKey:ClassroomID;references:ClassroomID" json:"classroom,omitempty"`
}

// TableName 指定表名
func (Student) TableName() string { return "students" }

// HasEncodings 是否已登记人脸特征
func (s *Student) HasEncodings() bool {
	return len(s.Encodings) > 0 && string(s.Encodings) != "null" && string(s.Encodings) != "[]"
}
