package dto

// ── 统计与学生端 DTO ──

// AnalyticsTrendRequest 趋势查询
type AnalyticsTrendRequest struct {
	ClassroomID string `form:"classroom_id" binding:"required,uuid"`
	Days        int    `form:"days"         binding:"omitempty,min=1,max=365"`
}

// AnalyticsHeatmapRequest 出勤热力图查询
type AnalyticsHeatmapRequest struct {
	ClassroomID string `form:"classroom_id" binding:"required,uuid"`
	Days        int    `form:"days"         binding:"omitempty,oneof=30 60 90"`
}

// AnalyticsStudentsRequest 学生统计查询
type AnalyticsStudentsRequest struct {
	ClassroomID string `form:"classroom_id" binding:"required,uuid"`
}

// OverviewResponse 教师总览
type OverviewResponse struct {
	Classrooms   int                 `json:"classrooms"`
	Students     int                 `json:"students"`
	Enrolled     int                 `json:"enrolled"` // 已登记人脸特征
	TodayPresent int64               `json:"today_present"`
	TodayAbsent  int64               `json:"today_absent"`
	PerClassroom []ClassroomOverview `json:"per_classroom"`
}

// ClassroomOverview 单个班级当日情况
type ClassroomOverview struct {
	ClassroomID string `json:"classroom_id"`
	Name        string `json:"name"`
	Students    int    `json:"students"`
	Present     int64  `json:"present"`
	Absent      int64  `json:"absent"`
}

// TrendResponse 出勤趋势
type TrendResponse struct {
	ClassroomID string                  `json:"classroom_id"`
	Days        int                     `json:"days"`
	Points      []AttendanceHistoryItem `json:"points"`
	AverageRate float64                 `json:"average_rate"`
}

// StudentAnalytics 单个学生出勤率
type StudentAnalytics struct {
	StudentID string  `json:"student_id"`
	Name      string  `json:"name"`
	RollNo    string  `json:"roll_no"`
	Present   int64   `json:"present"`
	Total     int64   `json:"total"`
	Rate      float64 `json:"rate"`
	AtRisk    bool    `json:"at_risk"` // 出勤率低于 75%
}

// HeatmapResponse 班级出勤热力图
type HeatmapResponse struct {
	ClassroomID   string        `json:"classroom_id"`
	ClassroomName string        `json:"classroom_name"`
	TotalStudents int           `json:"total_students"`
	Start         string        `json:"start,omitempty"`
	End           string        `json:"end,omitempty"`
	Days          int           `json:"days"`
	Cells         []HeatmapCell `json:"heatmap"`
	Stats         HeatmapStats  `json:"stats"`
}

// HeatmapCell 热力图单日格子；Percentage 以班级人数为分母
type HeatmapCell struct {
	Date        string  `json:"date"`
	Weekday     string  `json:"day_of_week"`
	Present     int64   `json:"present"`
	TotalMarked int64   `json:"total_marked"`
	Percentage  float64 `json:"percentage"`
	Intensity   int     `json:"intensity"` // 0 无记录，1~4 由低到高
}

// HeatmapStats 热力图汇总，仅统计有记录的日期
type HeatmapStats struct {
	TotalDays     int          `json:"total_days"`
	MarkedDays    int          `json:"marked_days"`
	AvgAttendance float64      `json:"avg_attendance"`
	BestDay       *HeatmapCell `json:"best_day"`
	WorstDay      *HeatmapCell `json:"worst_day"`
}

// ClassroomComparison 班级间出勤率对比
type ClassroomComparison struct {
	ClassroomID   string  `json:"classroom_id"`
	Name          string  `json:"name"`
	Subject       string  `json:"subject"`
	Branch        *string `json:"branch,omitempty"`
	Section       *string `json:"section,omitempty"`
	Semester      *int    `json:"semester,omitempty"`
	TotalStudents int     `json:"total_students"`
	TotalRecords  int64   `json:"total_records"`
	Present       int64   `json:"present"`
	Absent        int64   `json:"absent"`
	Rate          float64 `json:"attendance_rate"`
}

// PortalDashboardResponse 学生端首页
type PortalDashboardResponse struct {
	Name        string                `json:"name"`
	Email       string                `json:"email"`
	Classrooms  []PortalClassroomStat `json:"classrooms"`
	OverallRate float64               `json:"overall_rate"`
}

// PortalClassroomStat 学生在某班级的出勤
type PortalClassroomStat struct {
	ClassroomID string  `json:"classroom_id"`
	Name        string  `json:"name"`
	Subject     string  `json:"subject"`
	RollNo      string  `json:"roll_no"`
	Present     int64   `json:"present"`
	Total       int64   `json:"total"`
	Rate        float64 `json:"rate"`
}

// PortalAttendanceQuery 学生端考勤明细查询，日期格式 YYYY-MM-DD
type PortalAttendanceQuery struct {
	From    string `form:"from"`
	To      string `form:"to"`
	Subject string `form:"subject"`
	Limit   int    `form:"limit" binding:"omitempty,min=1,max=500"`
}

// PortalAttendanceItem 学生端考勤明细
type PortalAttendanceItem struct {
	Date          string   `json:"date"`
	ClassroomID   string   `json:"classroom_id"`
	ClassroomName string   `json:"classroom_name"`
	Subject       string   `json:"subject"`
	Status        string   `json:"status"`
	Confidence    *float64 `json:"confidence,omitempty"`
}

// PortalSubjectResponse 学生某科目的逐日考勤
type PortalSubjectResponse struct {
	Subject    string             `json:"subject"`
	Faculty    string             `json:"faculty"`
	Summary    PortalSubjectStats `json:"summary"`
	Attendance []PortalSubjectDay `json:"attendance"`
}

// PortalSubjectStats 科目出勤汇总
type PortalSubjectStats struct {
	Total      int64   `json:"total"`
	Present    int64   `json:"present"`
	Absent     int64   `json:"absent"`
	Percentage float64 `json:"percentage"`
}

// PortalSubjectDay 科目单日考勤
type PortalSubjectDay struct {
	Date          string `json:"date"`
	Weekday       string `json:"day"`
	ClassroomName string `json:"classroom_name"`
	Status        string `json:"status"`
	MarkedAt      string `json:"marked_at"`
}

// PortalProfileResponse 学生个人资料
type PortalProfileResponse struct {
	Name      string  `json:"name"`
	Email     string  `json:"email"`
	RollNo    string  `json:"roll_no"`
	PhotoURL  string  `json:"photo,omitempty"`
	Classroom string  `json:"classroom"`
	Branch    *string `json:"branch,omitempty"`
	Section   *string `json:"section,omitempty"`
	Semester  *int    `json:"semester,omitempty"`
}
