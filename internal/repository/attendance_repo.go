package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/model"
)

// DailyStat 单日出勤统计
type DailyStat struct {
	Date    time.Time `json:"date"`
	Present int64     `json:"present"`
	Absent  int64     `json:"absent"`
}

// StudentStat 单个学生的出勤统计
type StudentStat struct {
	StudentID string `json:"student_id"`
	Present   int64  `json:"present"`
	Total     int64  `json:"total"`
}

// AttendanceFilter 考勤明细查询条件，零值字段不参与过滤
type AttendanceFilter struct {
	ClassroomIDs []string
	From         time.Time
	To           time.Time
	Limit        int
}

// AttendanceRepository 考勤记录数据访问接口
type AttendanceRepository interface {
	// LockClassroomDate 获取 (班级, 日期) 的事务级 advisory 锁，必须在事务内调用
	LockClassroomDate(ctx context.Context, classroomID string, date time.Time) error
	GetByID(ctx context.Context, id string) (*model.AttendanceRecord, error)
	ListByClassroomDate(ctx context.Context, classroomID string, date time.Time) ([]model.AttendanceRecord, error)
	// UpsertPresent 写入出勤；已有记录仅在新置信度更高时覆盖，返回是否发生写入
	UpsertPresent(ctx context.Context, rec *model.AttendanceRecord) (bool, error)
	// InsertAbsent 批量新建缺勤记录，已存在的记录保持不变，返回新建条数
	InsertAbsent(ctx context.Context, recs []model.AttendanceRecord) (int64, error)
	// Upsert 无条件写入（手动标记、复核确认）
	Upsert(ctx context.Context, rec *model.AttendanceRecord) error
	Delete(ctx context.Context, id string) error
	DailyStats(ctx context.Context, classroomID string, from, to time.Time) ([]DailyStat, error)
	StudentStats(ctx context.Context, classroomID string) ([]StudentStat, error)
	// ListByStudents 按学生查询考勤明细，日期倒序
	ListByStudents(ctx context.Context, studentIDs []string, f AttendanceFilter) ([]model.AttendanceRecord, error)
	// ListByClassrooms 按班级查询考勤明细（预加载学生），日期正序
	ListByClassrooms(ctx context.Context, f AttendanceFilter) ([]model.AttendanceRecord, error)
}

type attendanceRepo struct {
	db *gorm.DB
}

// NewAttendanceRepo 创建 AttendanceRepository 实例
func NewAttendanceRepo(db *gorm.DB) AttendanceRepository {
	return &attendanceRepo{db: db}
}

var attendanceConflictColumns = []clause.Column{
	{Name: "student_id"},
	{Name: "classroom_id"},
	{Name: "date"},
}

var attendanceUpdateColumns = []string{"status", "confidence", "distance", "source", "marked_at", "marked_by"}

// LockKey (班级, 日期) 串行化键
func LockKey(classroomID string, date time.Time) string {
	return fmt.Sprintf("attendance:%s:%s", classroomID, date.Format(model.DateLayout))
}

func (r *attendanceRepo) LockClassroomDate(ctx context.Context, classroomID string, date time.Time) error {
	return r.db.WithContext(ctx).
		Exec("SELECT pg_advisory_xact_lock(hashtext(?))", LockKey(classroomID, date)).Error
}

func (r *attendanceRepo) GetByID(ctx context.Context, id string) (*model.AttendanceRecord, error) {
	var rec model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Where("attendance_id = ?", id).
		First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *attendanceRepo) ListByClassroomDate(ctx context.Context, classroomID string, date time.Time) ([]model.AttendanceRecord, error) {
	var recs []model.AttendanceRecord
	err := r.db.WithContext(ctx).
		Preload("Student").
		Where("classroom_id = ? AND date = ?", classroomID, date.Format(model.DateLayout)).
		Find(&recs).Error
	return recs, err
}

func (r *attendanceRepo) UpsertPresent(ctx context.Context, rec *model.AttendanceRecord) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   attendanceConflictColumns,
			DoUpdates: clause.AssignmentColumns(attendanceUpdateColumns),
			Where: clause.Where{Exprs: []clause.Expression{
				gorm.Expr("COALESCE(attendance_records.confidence, 0) < EXCLUDED.confidence"),
			}},
		}).
		Create(rec)
	return result.RowsAffected > 0, result.Error
}

func (r *attendanceRepo) InsertAbsent(ctx context.Context, recs []model.AttendanceRecord) (int64, error) {
	if len(recs) == 0 {
		return 0, nil
	}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: attendanceConflictColumns, DoNothing: true}).
		Create(&recs)
	return result.RowsAffected, result.Error
}

func (r *attendanceRepo) Upsert(ctx context.Context, rec *model.AttendanceRecord) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   attendanceConflictColumns,
			DoUpdates: clause.AssignmentColumns(attendanceUpdateColumns),
		}).
		Create(rec).Error
}

func (r *attendanceRepo) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).
		Where("attendance_id = ?", id).
		Delete(&model.AttendanceRecord{}).Error
}

func (r *attendanceRepo) DailyStats(ctx context.Context, classroomID string, from, to time.Time) ([]DailyStat, error) {
	var stats []DailyStat
	err := r.db.WithContext(ctx).
		Model(&model.AttendanceRecord{}).
		Select("date, "+
			"COUNT(*) FILTER (WHERE status = 'present') AS present, "+
			"COUNT(*) FILTER (WHERE status = 'absent') AS absent").
		Where("classroom_id = ? AND date BETWEEN ? AND ?",
			classroomID, from.Format(model.DateLayout), to.Format(model.DateLayout)).
		Group("date").
		Order("date DESC").
		Scan(&stats).Error
	return stats, err
}

func (r *attendanceRepo) StudentStats(ctx context.Context, classroomID string) ([]StudentStat, error) {
	var stats []StudentStat
	err := r.db.WithContext(ctx).
		Model(&model.AttendanceRecord{}).
		Select("student_id, "+
			"COUNT(*) FILTER (WHERE status = 'present') AS present, "+
			"COUNT(*) AS total").
		Where("classroom_id = ?", classroomID).
		Group("student_id").
		Scan(&stats).Error
	return stats, err
}

func (r *attendanceRepo) ListByStudents(ctx context.Context, studentIDs []string, f AttendanceFilter) ([]model.AttendanceRecord, error) {
	var recs []model.AttendanceRecord
	if len(studentIDs) == 0 {
		return recs, nil
	}
	db := applyAttendanceFilter(r.db.WithContext(ctx).Where("student_id IN ?", studentIDs), f).
		Order("date DESC, marked_at DESC")
	err := db.Find(&recs).Error
	return recs, err
}

func (r *attendanceRepo) ListByClassrooms(ctx context.Context, f AttendanceFilter) ([]model.AttendanceRecord, error) {
	var recs []model.AttendanceRecord
	if len(f.ClassroomIDs) == 0 {
		return recs, nil
	}
	err := applyAttendanceFilter(r.db.WithContext(ctx).Preload("Student"), f).
		Order("date ASC, classroom_id ASC").
		Find(&recs).Error
	return recs, err
}

func applyAttendanceFilter(db *gorm.DB, f AttendanceFilter) *gorm.DB {
	if len(f.ClassroomIDs) > 0 {
		db = db.Where("classroom_id IN ?", f.ClassroomIDs)
	}
	if !f.From.IsZero() {
		db = db.Where("date >= ?", f.From.Format(model.DateLayout))
	}
	if !f.To.IsZero() {
		db = db.Where("date <= ?", f.To.Format(model.DateLayout))
	}
	if f.Limit > 0 {
		db = db.Limit(f.Limit)
	}
	return db
}
