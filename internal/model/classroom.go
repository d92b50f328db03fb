package model

// Classroom 班级表 — 对应 classrooms
type Classroom struct {
	ClassroomID string  `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"classroom_id"`
	Name        string  `gorm:"type:varchar(100);not null"                     json:"name"`
	Subject     string  `gorm:"type:varchar(100);not null"                     json:"subject"`
	Branch      *string `gorm:"type:varchar(50)"                               json:"branch,omitempty"`
	Section     *string `gorm:"type:varchar(10)"                               json:"section,omitempty"`
	Semester    *int    `gorm:"type:int"                                       json:"semester,omitempty"`
	TeacherID   string  `gorm:"type:uuid;not null;index"                       json:"teacher_id"`
	VersionedModel

	// 关联
	Teacher *User `gorm:"foreignKey:TeacherID;references:UserID" json:"teacher,omitempty"`
}

// TableName 指定表名
func (Classroom) TableName() string { return "classrooms" }
