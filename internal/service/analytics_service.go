package service

import (
	"context"
	"math"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/dto"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/model"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/repository"
)

// atRiskRate 出勤率低于该值的学生标记为预警
const atRiskRate = 75.0

// 热力图可选天数
const (
	defaultHeatmapDays = 30
	maxHeatmapDays     = 90
)

// AnalyticsService 教师端统计接口
type AnalyticsService interface {
	Overview(ctx context.Context, callerID, role string) (*dto.OverviewResponse, error)
	Trend(ctx context.Context, classroomID string, days int, callerID, role string) (*dto.TrendResponse, error)
	Students(ctx context.Context, classroomID, callerID, role string) ([]dto.StudentAnalytics, error)
	// Heatmap 最近 30/60/90 天逐日出勤热力图，出勤率以班级人数为分母
	Heatmap(ctx context.Context, classroomID string, days int, callerID, role string) (*dto.HeatmapResponse, error)
	// ClassroomComparison 各班级历史出勤率，按出勤率降序
	ClassroomComparison(ctx context.Context, callerID, role string) ([]dto.ClassroomComparison, error)
}

type analyticsService struct {
	repo   *repository.Repository
	now    func() time.Time
	logger *zap.Logger
}

// NewAnalyticsService 创建 AnalyticsService 实例
func NewAnalyticsService(repo *repository.Repository, now func() time.Time, logger *zap.Logger) AnalyticsService {
	if now == nil {
		now = time.Now
	}
	return &analyticsService{repo: repo, now: now, logger: logger}
}

// ────────────────────── Overview ──────────────────────

func (s *analyticsService) Overview(ctx context.Context, callerID, role string) (*dto.OverviewResponse, error) {
	classrooms, err := listVisibleClassrooms(ctx, s.repo, s.logger, callerID, role)
	if err != nil {
		return nil, err
	}

	today := truncateDate(s.now())
	resp := &dto.OverviewResponse{
		Classrooms:   len(classrooms),
		PerClassroom: make([]dto.ClassroomOverview, 0, len(classrooms)),
	}
	for _, c := range classrooms {
		students, err := s.repo.Student.ListByClassroom(ctx, c.ClassroomID)
		if err != nil {
			s.logger.Error("查询班级名册失败", zap.String("classroom_id", c.ClassroomID), zap.Error(err))
			return nil, err
		}
		stats, err := s.repo.Attendance.DailyStats(ctx, c.ClassroomID, today, today)
		if err != nil {
			s.logger.Error("查询当日考勤失败", zap.String("classroom_id", c.ClassroomID), zap.Error(err))
			return nil, err
		}

		item := dto.ClassroomOverview{ClassroomID: c.ClassroomID, Name: c.Name, Students: len(students)}
		for _, st := range stats {
			item.Present += st.Present
			item.Absent += st.Absent
		}
		for i := range students {
			if students[i].HasEncodings() {
				resp.Enrolled++
			}
		}
		resp.Students += item.Students
		resp.TodayPresent += item.Present
		resp.TodayAbsent += item.Absent
		resp.PerClassroom = append(resp.PerClassroom, item)
	}
	return resp, nil
}

// ────────────────────── Trend ──────────────────────

func (s *analyticsService) Trend(ctx context.Context, classroomID string, days int, callerID, role string) (*dto.TrendResponse, error) {
	if _, err := loadOwnedClassroom(ctx, s.repo, s.logger, classroomID, callerID, role); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = defaultHistoryDays
	}
	to := truncateDate(s.now())
	from := to.AddDate(0, 0, -(days - 1))

	stats, err := s.repo.Attendance.DailyStats(ctx, classroomID, from, to)
	if err != nil {
		s.logger.Error("查询考勤趋势失败", zap.String("classroom_id", classroomID), zap.Error(err))
		return nil, err
	}
	points := toHistoryItems(stats)
	sort.Slice(points, func(i, j int) bool { return points[i].Date < points[j].Date })

	resp := &dto.TrendResponse{ClassroomID: classroomID, Days: days, Points: points}
	if len(points) > 0 {
		var sum float64
		for _, p := range points {
			sum += p.Rate
		}
		resp.AverageRate = math.Round(sum/float64(len(points))*100) / 100
	}
	return resp, nil
}

// ────────────────────── Students ──────────────────────

func (s *analyticsService) Students(ctx context.Context, classroomID, callerID, role string) ([]dto.StudentAnalytics, error) {
	if _, err := loadOwnedClassroom(ctx, s.repo, s.logger, classroomID, callerID, role); err != nil {
		return nil, err
	}
	students, err := s.repo.Student.ListByClassroom(ctx, classroomID)
	if err != nil {
		s.logger.Error("查询班级名册失败", zap.String("classroom_id", classroomID), zap.Error(err))
		return nil, err
	}
	stats, err := s.repo.Attendance.StudentStats(ctx, classroomID)
	if err != nil {
		s.logger.Error("查询学生出勤统计失败", zap.String("classroom_id", classroomID), zap.Error(err))
		return nil, err
	}
	byStudent := make(map[string]repository.StudentStat, len(stats))
	for _, st := range stats {
		byStudent[st.StudentID] = st
	}

	result := make([]dto.StudentAnalytics, 0, len(students))
	for _, st := range students {
		stat := byStudent[st.StudentID]
		r := rate(stat.Present, stat.Total)
		result = append(result, dto.StudentAnalytics{
			StudentID: st.StudentID,
			Name:      st.Name,
			RollNo:    st.RollNo,
			Present:   stat.Present,
			Total:     stat.Total,
			Rate:      r,
			AtRisk:    stat.Total > 0 && r < atRiskRate,
		})
	}
	return result, nil
}

// ────────────────────── Heatmap ──────────────────────

func (s *analyticsService) Heatmap(ctx context.Context, classroomID string, days int, callerID, role string) (*dto.HeatmapResponse, error) {
	classroom, err := loadOwnedClassroom(ctx, s.repo, s.logger, classroomID, callerID, role)
	if err != nil {
		return nil, err
	}
	if days <= 0 || days > maxHeatmapDays {
		days = defaultHeatmapDays
	}
	students, err := s.repo.Student.ListByClassroom(ctx, classroomID)
	if err != nil {
		s.logger.Error("查询班级名册失败", zap.String("classroom_id", classroomID), zap.Error(err))
		return nil, err
	}

	resp := &dto.HeatmapResponse{
		ClassroomID:   classroomID,
		ClassroomName: classroom.Name,
		TotalStudents: len(students),
		Days:          days,
		Cells:         make([]dto.HeatmapCell, 0, days),
	}
	if len(students) == 0 {
		return resp, nil
	}

	to := truncateDate(s.now())
	from := to.AddDate(0, 0, -(days - 1))
	stats, err := s.repo.Attendance.DailyStats(ctx, classroomID, from, to)
	if err != nil {
		s.logger.Error("查询考勤热力图失败", zap.String("classroom_id", classroomID), zap.Error(err))
		return nil, err
	}
	byDay := make(map[string]repository.DailyStat, len(stats))
	for _, st := range stats {
		byDay[st.Date.Format(model.DateLayout)] = st
	}

	resp.Start = from.Format(model.DateLayout)
	resp.End = to.Format(model.DateLayout)
	var sum float64
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		day := d.Format(model.DateLayout)
		cell := dto.HeatmapCell{Date: day, Weekday: d.Weekday().String()[:3]}
		if st, ok := byDay[day]; ok {
			cell.Present = st.Present
			cell.TotalMarked = st.Present + st.Absent
			cell.Percentage = math.Round(float64(st.Present)/float64(len(students))*1000) / 10
			cell.Intensity = heatIntensity(cell.Percentage)
		}
		resp.Cells = append(resp.Cells, cell)
	}

	resp.Stats.TotalDays = len(resp.Cells)
	for i := range resp.Cells {
		cell := &resp.Cells[i]
		if cell.TotalMarked == 0 {
			continue
		}
		resp.Stats.MarkedDays++
		sum += cell.Percentage
		if resp.Stats.BestDay == nil || cell.Percentage > resp.Stats.BestDay.Percentage {
			resp.Stats.BestDay = cell
		}
		if resp.Stats.WorstDay == nil || cell.Percentage < resp.Stats.WorstDay.Percentage {
			resp.Stats.WorstDay = cell
		}
	}
	if resp.Stats.MarkedDays > 0 {
		resp.Stats.AvgAttendance = math.Round(sum/float64(resp.Stats.MarkedDays)*10) / 10
	}
	return resp, nil
}

// heatIntensity 出勤率分档：>=90 为 4，>=70 为 3，>=50 为 2，其余为 1
func heatIntensity(pct float64) int {
	switch {
	case pct >= 90:
		return 4
	case pct >= 70:
		return 3
	case pct >= 50:
		return 2
	default:
		return 1
	}
}

// ────────────────────── ClassroomComparison ──────────────────────

func (s *analyticsService) ClassroomComparison(ctx context.Context, callerID, role string) ([]dto.ClassroomComparison, error) {
	classrooms, err := listVisibleClassrooms(ctx, s.repo, s.logger, callerID, role)
	if err != nil {
		return nil, err
	}

	result := make([]dto.ClassroomComparison, 0, len(classrooms))
	for _, c := range classrooms {
		students, err := s.repo.Student.ListByClassroom(ctx, c.ClassroomID)
		if err != nil {
			s.logger.Error("查询班级名册失败", zap.String("classroom_id", c.ClassroomID), zap.Error(err))
			return nil, err
		}
		stats, err := s.repo.Attendance.StudentStats(ctx, c.ClassroomID)
		if err != nil {
			s.logger.Error("查询学生出勤统计失败", zap.String("classroom_id", c.ClassroomID), zap.Error(err))
			return nil, err
		}

		item := dto.ClassroomComparison{
			ClassroomID:   c.ClassroomID,
			Name:          c.Name,
			Subject:       c.Subject,
			Branch:        c.Branch,
			Section:       c.Section,
			Semester:      c.Semester,
			TotalStudents: len(students),
		}
		for _, st := range stats {
			item.Present += st.Present
			item.TotalRecords += st.Total
		}
		item.Absent = item.TotalRecords - item.Present
		item.Rate = rate(item.Present, item.TotalRecords)
		result = append(result, item)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].Rate > result[j].Rate })
	return result, nil
}
