package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/dto"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/model"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/repository"
)

const defaultPortalLimit = 100

// ── 学生端业务错误 ──

var (
	ErrPortalProfileNotFound = errors.New("未找到学生名册记录")
	ErrSubjectNotEnrolled    = errors.New("未选修该科目")
)

// PortalService 学生端接口
type PortalService interface {
	Dashboard(ctx context.Context, userID string) (*dto.PortalDashboardResponse, error)
	Attendance(ctx context.Context, userID string, q dto.PortalAttendanceQuery) ([]dto.PortalAttendanceItem, error)
	// SubjectAttendance 某科目的逐日考勤与汇总，from/to 可为空
	SubjectAttendance(ctx context.Context, userID, subject, from, to string) (*dto.PortalSubjectResponse, error)
	Profile(ctx context.Context, userID string) (*dto.PortalProfileResponse, error)
}

type portalService struct {
	repo   *repository.Repository
	photos PhotoStore
	logger *zap.Logger
}

// NewPortalService 创建 PortalService 实例
func NewPortalService(repo *repository.Repository, photos PhotoStore, logger *zap.Logger) PortalService {
	return &portalService{repo: repo, photos: photos, logger: logger}
}

// ────────────────────── Dashboard ──────────────────────

func (s *portalService) Dashboard(ctx context.Context, userID string) (*dto.PortalDashboardResponse, error) {
	user, students, err := s.loadStudentRecords(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids, _ := indexStudents(students, "")
	records, err := s.repo.Attendance.ListByStudents(ctx, ids, repository.AttendanceFilter{})
	if err != nil {
		s.logger.Error("查询学生考勤失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	type counter struct{ present, total int64 }
	counts := make(map[string]*counter, len(students))
	for _, r := range records {
		c, ok := counts[r.StudentID]
		if !ok {
			c = &counter{}
			counts[r.StudentID] = c
		}
		c.total++
		if r.Status == model.AttendancePresent {
			c.present++
		}
	}

	resp := &dto.PortalDashboardResponse{
		Name:       user.Name,
		Email:      user.Email,
		Classrooms: make([]dto.PortalClassroomStat, 0, len(students)),
	}
	var present, total int64
	for _, st := range students {
		item := dto.PortalClassroomStat{ClassroomID: st.ClassroomID, RollNo: st.RollNo}
		if st.Classroom != nil {
			item.Name = st.Classroom.Name
			item.Subject = st.Classroom.Subject
		}
		if c, ok := counts[st.StudentID]; ok {
			item.Present, item.Total = c.present, c.total
			item.Rate = rate(c.present, c.total)
			present += c.present
			total += c.total
		}
		resp.Classrooms = append(resp.Classrooms, item)
	}
	resp.OverallRate = rate(present, total)
	return resp, nil
}

// ────────────────────── Attendance ──────────────────────

func (s *portalService) Attendance(ctx context.Context, userID string, q dto.PortalAttendanceQuery) ([]dto.PortalAttendanceItem, error) {
	from, to, err := parseDateRange(q.From, q.To)
	if err != nil {
		return nil, err
	}
	_, students, err := s.loadStudentRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	limit := q.Limit
	if limit <= 0 || limit > defaultPortalLimit {
		limit = defaultPortalLimit
	}

	ids, byID := indexStudents(students, q.Subject)
	items := make([]dto.PortalAttendanceItem, 0)
	if len(ids) == 0 {
		return items, nil
	}
	records, err := s.repo.Attendance.ListByStudents(ctx, ids, repository.AttendanceFilter{From: from, To: to, Limit: limit})
	if err != nil {
		s.logger.Error("查询学生考勤失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}

	for _, r := range records {
		item := dto.PortalAttendanceItem{
			Date:        r.Date.Format(model.DateLayout),
			ClassroomID: r.ClassroomID,
			Status:      r.Status,
			Confidence:  r.Confidence,
		}
		if st := byID[r.StudentID]; st != nil && st.Classroom != nil {
			item.ClassroomName = st.Classroom.Name
			item.Subject = st.Classroom.Subject
		}
		items = append(items, item)
	}
	return items, nil
}

// ────────────────────── SubjectAttendance ──────────────────────

func (s *portalService) SubjectAttendance(ctx context.Context, userID, subject, from, to string) (*dto.PortalSubjectResponse, error) {
	start, end, err := parseDateRange(from, to)
	if err != nil {
		return nil, err
	}
	subject = strings.TrimSpace(subject)
	if subject == "" {
		return nil, ErrSubjectNotEnrolled
	}
	_, students, err := s.loadStudentRecords(ctx, userID)
	if err != nil {
		return nil, err
	}

	ids, byID := indexStudents(students, subject)
	if len(ids) == 0 {
		return nil, ErrSubjectNotEnrolled
	}
	records, err := s.repo.Attendance.ListByStudents(ctx, ids, repository.AttendanceFilter{From: start, To: end})
	if err != nil {
		s.logger.Error("查询科目考勤失败", zap.String("user_id", userID), zap.String("subject", subject), zap.Error(err))
		return nil, err
	}

	first := byID[ids[0]].Classroom
	resp := &dto.PortalSubjectResponse{
		Subject:    first.Subject,
		Faculty:    s.facultyName(ctx, first.TeacherID),
		Attendance: make([]dto.PortalSubjectDay, 0, len(records)),
	}
	for _, r := range records {
		day := dto.PortalSubjectDay{
			Date:     r.Date.Format(model.DateLayout),
			Weekday:  r.Date.Weekday().String(),
			Status:   r.Status,
			MarkedAt: r.MarkedAt.Format(time.RFC3339),
		}
		if st := byID[r.StudentID]; st != nil {
			day.ClassroomName = st.Classroom.Name
		}
		resp.Summary.Total++
		if r.Status == model.AttendancePresent {
			resp.Summary.Present++
		}
		resp.Attendance = append(resp.Attendance, day)
	}
	resp.Summary.Absent = resp.Summary.Total - resp.Summary.Present
	resp.Summary.Percentage = rate(resp.Summary.Present, resp.Summary.Total)
	return resp, nil
}

// facultyName 查询任课教师姓名，查询失败不影响主流程
func (s *portalService) facultyName(ctx context.Context, teacherID string) string {
	teacher, err := s.repo.User.GetByID(ctx, teacherID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Warn("查询任课教师失败", zap.String("teacher_id", teacherID), zap.Error(err))
		}
		return ""
	}
	return teacher.Name
}

// ────────────────────── Profile ──────────────────────

func (s *portalService) Profile(ctx context.Context, userID string) (*dto.PortalProfileResponse, error) {
	user, students, err := s.loadStudentRecords(ctx, userID)
	if err != nil {
		return nil, err
	}
	if len(students) == 0 {
		return nil, ErrPortalProfileNotFound
	}

	// 多个班级时以最早登记的名册记录为准
	st := students[0]
	resp := &dto.PortalProfileResponse{
		Name:   user.Name,
		Email:  user.Email,
		RollNo: st.RollNo,
	}
	if st.PhotoPath != nil && s.photos != nil {
		resp.PhotoURL = s.photos.URL(*st.PhotoPath)
	}
	if c := st.Classroom; c != nil {
		resp.Classroom = c.Name
		resp.Branch = c.Branch
		resp.Section = c.Section
		resp.Semester = c.Semester
	}
	return resp, nil
}

// indexStudents 返回学生 ID 列表及索引；subject 非空时只保留该科目的班级
func indexStudents(students []model.Student, subject string) ([]string, map[string]*model.Student) {
	subject = strings.TrimSpace(subject)
	ids := make([]string, 0, len(students))
	byID := make(map[string]*model.Student, len(students))
	for i := range students {
		st := &students[i]
		if subject != "" && (st.Classroom == nil || !strings.EqualFold(st.Classroom.Subject, subject)) {
			continue
		}
		ids = append(ids, st.StudentID)
		byID[st.StudentID] = st
	}
	return ids, byID
}

// loadStudentRecords 查询登录账号关联的学生记录；尚未关联时按邮箱补关联一次
func (s *portalService) loadStudentRecords(ctx context.Context, userID string) (*model.User, []model.Student, error) {
	user, err := s.repo.User.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil, ErrUserNotFound
		}
		s.logger.Error("查询用户失败", zap.String("user_id", userID), zap.Error(err))
		return nil, nil, err
	}

	students, err := s.repo.Student.ListByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("查询学生记录失败", zap.String("user_id", userID), zap.Error(err))
		return nil, nil, err
	}
	if len(students) > 0 {
		return user, students, nil
	}

	linked, err := s.repo.Student.LinkUserByEmail(ctx, user.Email, userID)
	if err != nil {
		s.logger.Error("关联学生记录失败", zap.String("user_id", userID), zap.Error(err))
		return nil, nil, err
	}
	if linked == 0 {
		return user, students, nil
	}
	s.logger.Info("已按邮箱关联学生记录", zap.String("user_id", userID), zap.Int64("count", linked))

	students, err = s.repo.Student.ListByUserID(ctx, userID)
	if err != nil {
		s.logger.Error("查询学生记录失败", zap.String("user_id", userID), zap.Error(err))
		return nil, nil, err
	}
	return user, students, nil
}
