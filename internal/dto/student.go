package dto

// ── 学生名册 DTO ──

// UpdateStudentRequest 更新学生信息请求
type UpdateStudentRequest struct {
	Name   *string `json:"name"    binding:"omitempty,min=1,max=100"`
	Email  *string `json:"email"   binding:"omitempty,email"`
	RollNo *string `json:"roll_no" binding:"omitempty,min=1,max=50"`
}

// StudentResponse 学生信息响应
type StudentResponse struct {
	ID           string `json:"id"`
	ClassroomID  string `json:"classroom_id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	RollNo       string `json:"roll_no"`
	PhotoURL     string `json:"photo_url,omitempty"`
	HasEncodings bool   `json:"has_encodings"`
}

// ImportStudentResponse 名册导入结果
type ImportStudentResponse struct {
	Total   int              `json:"total"`
	Created int              `json:"created"`
	Updated int              `json:"updated"`
	Skipped int              `json:"skipped"`
	Errors  []ImportRowError `json:"errors,omitempty"`
}

// ImportRowError 导入错误详情
type ImportRowError struct {
	Row    int    `json:"row"`
	Reason string `json:"reason"`
}

// PhotoUploadResponse 批量照片登记结果
type PhotoUploadResponse struct {
	Uploaded  int            `json:"uploaded"`
	Matched   int            `json:"matched"`
	Encoded   int            `json:"encoded"`
	Failed    int            `json:"failed"`
	Unmatched []string       `json:"unmatched,omitempty"`
	Failures  []PhotoFailure `json:"failures,omitempty"`
}

// PhotoFailure 单张照片登记失败原因
type PhotoFailure struct {
	File   string `json:"file"`
	Reason string `json:"reason"`
}

// SinglePhotoResponse 单张照片登记结果
type SinglePhotoResponse struct {
	StudentID     string  `json:"student_id"`
	PhotoURL      string  `json:"photo_url"`
	EncodingCount int     `json:"encoding_count"`
	Sharpness     float64 `json:"sharpness"`
	Brightness    float64 `json:"brightness"`
}
