package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/dto"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/model"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/ratelimit"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/recognition"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/repository"
)

var (
	ErrInvalidDate           = errors.New("日期格式错误，应为 YYYY-MM-DD")
	ErrInvalidDateRange      = errors.New("开始日期不能晚于结束日期")
	ErrImageRequired         = errors.New("缺少课堂照片")
	ErrNoFacesDetected       = errors.New("照片中未检测到人脸")
	ErrDetectorUnavailable   = errors.New("人脸检测服务不可用")
	ErrReconcileFailed       = errors.New("考勤写入失败，已全部回滚")
	ErrRateLimited           = errors.New("识别次数已达上限")
	ErrAttendanceNotFound    = errors.New("考勤记录不存在")
	ErrStudentNotInClassroom = errors.New("学生不属于该班级")
)

// RateLimitedError 限流拒绝，携带重试信息；errors.Is(err, ErrRateLimited) 为 true
type RateLimitedError struct {
	Result ratelimit.Result
}

func (e *RateLimitedError) Error() string { return ErrRateLimited.Error() }

func (e *RateLimitedError) Unwrap() error { return ErrRateLimited }

// MarkFaceInput 人脸识别考勤输入
type MarkFaceInput struct {
	ClassroomID string
	Date        string
	Image       []byte
}

// AttendanceOptions 识别流水线参数
type AttendanceOptions struct {
	Thresholds recognition.Thresholds
	Workers    int              // 人脸评分并发数，0 表示 GOMAXPROCS
	Now        func() time.Time // 测试注入
}

// AttendanceService 考勤业务接口
type AttendanceService interface {
	// MarkFace 课堂照片识别考勤：限流 → 特征库 → 检测 → 评分分级 → 冲突消解 → 事务写入
	MarkFace(ctx context.Context, in *MarkFaceInput, callerID, role string) (*dto.MarkFaceResponse, error)
	MarkManual(ctx context.Context, req *dto.ManualMarkRequest, callerID, role string) (*dto.ManualMarkResponse, error)
	// Review 确认或驳回第 2/3 级匹配
	Review(ctx context.Context, req *dto.ReviewRequest, callerID, role string) (*dto.AttendanceRecordResponse, error)
	ListByDate(ctx context.Context, classroomID, date, callerID, role string) (*dto.AttendanceDayResponse, error)
	History(ctx context.Context, classroomID string, days int, callerID, role string) ([]dto.AttendanceHistoryItem, error)
	Delete(ctx context.Context, id, callerID, role string) error
	RateLimitStatus(ctx context.Context, userID string) (*dto.RateLimitStatusResponse, error)
	ResetRateLimit(ctx context.Context, userID string) (bool, error)
}

type attendanceService struct {
	repo     *repository.Repository
	detector recognition.Detector
	limiter  ratelimit.Limiter
	photos   PhotoStore
	opts     AttendanceOptions
	locks    *keyedMutex
	logger   *zap.Logger
}

// NewAttendanceService 创建 AttendanceService 实例
func NewAttendanceService(
	repo *repository.Repository,
	detector recognition.Detector,
	limiter ratelimit.Limiter,
	photos PhotoStore,
	opts AttendanceOptions,
	logger *zap.Logger,
) AttendanceService {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &attendanceService{
		repo:     repo,
		detector: detector,
		limiter:  limiter,
		photos:   photos,
		opts:     opts,
		locks:    newKeyedMutex(),
		logger:   logger,
	}
}

// ────────────────────── MarkFace ──────────────────────

func (s *attendanceService) MarkFace(ctx context.Context, in *MarkFaceInput, callerID, role string) (*dto.MarkFaceResponse, error) {
	// 1. 输入校验（无副作用）
	if len(in.Image) == 0 {
		return nil, ErrImageRequired
	}
	date, err := parseDate(in.Date)
	if err != nil {
		return nil, err
	}
	if _, err := loadOwnedClassroom(ctx, s.repo, s.logger, in.ClassroomID, callerID, role); err != nil {
		return nil, err
	}

	// 2. 限流：拒绝时不做任何识别工作
	quota, err := s.limiter.Check(ctx, callerID)
	if err != nil {
		s.logger.Warn("限流器不可用，放行本次请求", zap.String("user_id", callerID), zap.Error(err))
		quota = ratelimit.Result{Allowed: true}
	}
	if !quota.Allowed {
		return nil, &RateLimitedError{Result: quota}
	}

	// 3. 名册与特征库
	students, err := s.repo.Student.ListByClassroom(ctx, in.ClassroomID)
	if err != nil {
		s.logger.Error("查询班级名册失败", zap.String("classroom_id", in.ClassroomID), zap.Error(err))
		return nil, err
	}
	roster := make([]recognition.RosterStudent, 0, len(students))
	sources := make([]recognition.GallerySource, 0, len(students))
	for _, st := range students {
		roster = append(roster, recognition.RosterStudent{
			StudentID: st.StudentID,
			Name:      st.Name,
			RollNo:    st.RollNo,
			PhotoPath: derefString(st.PhotoPath),
		})
		sources = append(sources, recognition.GallerySource{StudentID: st.StudentID, Encodings: st.Encodings})
	}

	gallery, report := recognition.BuildGallery(sources)
	for _, pf := range report.ParseFailures {
		s.logger.Warn("学生人脸特征解析失败，已排除", zap.String("student_id", pf.StudentID), zap.Error(pf.Err))
	}

	// 4. 检测（特征库为空时跳过，全部记为缺勤）
	var faces []recognition.DetectedFace
	if gallery.Empty() {
		s.logger.Info("班级特征库为空，跳过识别", zap.String("classroom_id", in.ClassroomID))
	} else {
		faces, err = s.detector.DetectFaces(ctx, in.Image)
		if err != nil {
			s.logger.Error("人脸检测失败", zap.String("classroom_id", in.ClassroomID), zap.Error(err))
			return nil, fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
		}
		if len(faces) == 0 {
			return nil, ErrNoFacesDetected
		}
	}

	// 5. 评分 + 分级 + 全局消解
	candidates := recognition.ScoreFaces(faces, gallery, s.opts.Thresholds, s.opts.Workers)
	decisions := recognition.Resolve(candidates)

	// 6. 同一 (班级, 日期) 串行写入
	var plan recognition.Plan
	err = s.withDateLock(ctx, in.ClassroomID, date, func(tx *repository.Repository) error {
		records, err := tx.Attendance.ListByClassroomDate(ctx, in.ClassroomID, date)
		if err != nil {
			return err
		}
		existing := make(map[string]recognition.ExistingRecord, len(records))
		for _, r := range records {
			existing[r.StudentID] = recognition.ExistingRecord{StudentID: r.StudentID, Status: r.Status, Confidence: r.Confidence}
		}

		plan = recognition.PlanReconciliation(decisions, roster, existing)
		now := s.opts.Now()

		for _, m := range plan.PresentWrites {
			conf, dist := m.Confidence, m.Distance
			if _, err := tx.Attendance.UpsertPresent(ctx, &model.AttendanceRecord{
				StudentID:   m.StudentID,
				ClassroomID: in.ClassroomID,
				Date:        date,
				Status:      model.AttendancePresent,
				Confidence:  &conf,
				Distance:    &dist,
				Source:      model.SourceFace,
				MarkedAt:    now,
				MarkedBy:    &callerID,
			}); err != nil {
				return err
			}
		}

		absent := make([]model.AttendanceRecord, 0, len(plan.AbsentInserts))
		for _, id := range plan.AbsentInserts {
			absent = append(absent, model.AttendanceRecord{
				StudentID:   id,
				ClassroomID: in.ClassroomID,
				Date:        date,
				Status:      model.AttendanceAbsent,
				Source:      model.SourceDefault,
				MarkedAt:    now,
				MarkedBy:    &callerID,
			})
		}
		_, err = tx.Attendance.InsertAbsent(ctx, absent)
		return err
	})
	if err != nil {
		s.logger.Error("考勤写入失败", zap.String("classroom_id", in.ClassroomID), zap.Time("date", date), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrReconcileFailed, err)
	}

	s.logger.Info("人脸识别考勤完成",
		zap.String("classroom_id", in.ClassroomID),
		zap.String("date", date.Format(model.DateLayout)),
		zap.Int("faces", len(faces)),
		zap.Int("present", plan.Summary.Present),
		zap.Int("review", len(plan.Review)),
		zap.Int("unknown", plan.Summary.UnknownFaces),
	)

	return s.toMarkFaceResponse(plan, gallery, report, len(faces), quota), nil
}

// ────────────────────── MarkManual ──────────────────────

func (s *attendanceService) MarkManual(ctx context.Context, req *dto.ManualMarkRequest, callerID, role string) (*dto.ManualMarkResponse, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if _, err := loadOwnedClassroom(ctx, s.repo, s.logger, req.ClassroomID, callerID, role); err != nil {
		return nil, err
	}
	inRoster, err := s.rosterSet(ctx, req.ClassroomID)
	if err != nil {
		return nil, err
	}

	resp := &dto.ManualMarkResponse{}
	err = s.withDateLock(ctx, req.ClassroomID, date, func(tx *repository.Repository) error {
		now := s.opts.Now()
		for _, item := range req.Attendance {
			if !inRoster[item.StudentID] {
				resp.Skipped = append(resp.Skipped, item.StudentID)
				continue
			}
			if err := tx.Attendance.Upsert(ctx, &model.AttendanceRecord{
				StudentID:   item.StudentID,
				ClassroomID: req.ClassroomID,
				Date:        date,
				Status:      item.Status,
				Source:      model.SourceManual,
				MarkedAt:    now,
				MarkedBy:    &callerID,
			}); err != nil {
				return err
			}
			resp.Marked++
		}
		return nil
	})
	if err != nil {
		s.logger.Error("手动考勤写入失败", zap.String("classroom_id", req.ClassroomID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrReconcileFailed, err)
	}
	return resp, nil
}

// ────────────────────── Review ──────────────────────

func (s *attendanceService) Review(ctx context.Context, req *dto.ReviewRequest, callerID, role string) (*dto.AttendanceRecordResponse, error) {
	date, err := parseDate(req.Date)
	if err != nil {
		return nil, err
	}
	if _, err := loadOwnedClassroom(ctx, s.repo, s.logger, req.ClassroomID, callerID, role); err != nil {
		return nil, err
	}
	student, err := s.repo.Student.GetByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		s.logger.Error("查询学生失败", zap.String("student_id", req.StudentID), zap.Error(err))
		return nil, err
	}
	if student.ClassroomID != req.ClassroomID {
		return nil, ErrStudentNotInClassroom
	}

	err = s.withDateLock(ctx, req.ClassroomID, date, func(tx *repository.Repository) error {
		rec := model.AttendanceRecord{
			StudentID:   req.StudentID,
			ClassroomID: req.ClassroomID,
			Date:        date,
			MarkedAt:    s.opts.Now(),
			MarkedBy:    &callerID,
			Source:      model.SourceReview,
		}
		if *req.Approve {
			rec.Status = model.AttendancePresent
			rec.Confidence = req.Confidence
			rec.Distance = req.Distance
			return tx.Attendance.Upsert(ctx, &rec)
		}
		// 驳回：仅在尚无记录时记为缺勤
		rec.Status = model.AttendanceAbsent
		_, err := tx.Attendance.InsertAbsent(ctx, []model.AttendanceRecord{rec})
		return err
	})
	if err != nil {
		s.logger.Error("复核写入失败", zap.String("student_id", req.StudentID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrReconcileFailed, err)
	}

	records, err := s.repo.Attendance.ListByClassroomDate(ctx, req.ClassroomID, date)
	if err != nil {
		s.logger.Error("查询考勤失败", zap.Error(err))
		return nil, err
	}
	for i := range records {
		if records[i].StudentID == req.StudentID {
			return toAttendanceRecordResponse(&records[i], student), nil
		}
	}
	return nil, ErrAttendanceNotFound
}

// ────────────────────── ListByDate ──────────────────────

func (s *attendanceService) ListByDate(ctx context.Context, classroomID, dateStr, callerID, role string) (*dto.AttendanceDayResponse, error) {
	date, err := parseDate(dateStr)
	if err != nil {
		return nil, err
	}
	if _, err := loadOwnedClassroom(ctx, s.repo, s.logger, classroomID, callerID, role); err != nil {
		return nil, err
	}

	students, err := s.repo.Student.ListByClassroom(ctx, classroomID)
	if err != nil {
		s.logger.Error("查询班级名册失败", zap.String("classroom_id", classroomID), zap.Error(err))
		return nil, err
	}
	byID := make(map[string]*model.Student, len(students))
	for i := range students {
		byID[students[i].StudentID] = &students[i]
	}

	records, err := s.repo.Attendance.ListByClassroomDate(ctx, classroomID, date)
	if err != nil {
		s.logger.Error("查询考勤失败", zap.String("classroom_id", classroomID), zap.Error(err))
		return nil, err
	}

	resp := &dto.AttendanceDayResponse{
		ClassroomID: classroomID,
		Date:        date.Format(model.DateLayout),
		Records:     make([]dto.AttendanceRecordResponse, 0, len(records)),
	}
	marked := 0
	for i := range records {
		st, ok := byID[records[i].StudentID]
		if !ok {
			continue // 学生已删除
		}
		marked++
		if records[i].Status == model.AttendancePresent {
			resp.Present++
		} else {
			resp.Absent++
		}
		resp.Records = append(resp.Records, *toAttendanceRecordResponse(&records[i], st))
	}
	resp.Unmarked = len(students) - marked
	return resp, nil
}

// ────────────────────── History ──────────────────────

const defaultHistoryDays = 30

func (s *attendanceService) History(ctx context.Context, classroomID string, days int, callerID, role string) ([]dto.AttendanceHistoryItem, error) {
	if _, err := loadOwnedClassroom(ctx, s.repo, s.logger, classroomID, callerID, role); err != nil {
		return nil, err
	}
	if days <= 0 {
		days = defaultHistoryDays
	}
	to := truncateDate(s.opts.Now())
	from := to.AddDate(0, 0, -(days - 1))

	stats, err := s.repo.Attendance.DailyStats(ctx, classroomID, from, to)
	if err != nil {
		s.logger.Error("查询考勤历史失败", zap.String("classroom_id", classroomID), zap.Error(err))
		return nil, err
	}
	return toHistoryItems(stats), nil
}

// ────────────────────── Delete ──────────────────────

func (s *attendanceService) Delete(ctx context.Context, id, callerID, role string) error {
	rec, err := s.repo.Attendance.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrAttendanceNotFound
		}
		s.logger.Error("查询考勤记录失败", zap.String("id", id), zap.Error(err))
		return err
	}
	if _, err := loadOwnedClassroom(ctx, s.repo, s.logger, rec.ClassroomID, callerID, role); err != nil {
		return err
	}
	if err := s.repo.Attendance.Delete(ctx, id); err != nil {
		s.logger.Error("删除考勤记录失败", zap.String("id", id), zap.Error(err))
		return err
	}
	return nil
}

// ────────────────────── RateLimit ──────────────────────

func (s *attendanceService) RateLimitStatus(ctx context.Context, userID string) (*dto.RateLimitStatusResponse, error) {
	res, err := s.limiter.Status(ctx, userID)
	if err != nil {
		s.logger.Error("查询识别额度失败", zap.String("user_id", userID), zap.Error(err))
		return nil, err
	}
	return &dto.RateLimitStatusResponse{
		UserID:        userID,
		Count:         res.Count,
		Limit:         res.Limit,
		Remaining:     res.Remaining,
		WindowMinutes: int(res.Window.Minutes()),
		ResetAt:       formatResetAt(res.ResetAt),
	}, nil
}

func (s *attendanceService) ResetRateLimit(ctx context.Context, userID string) (bool, error) {
	existed, err := s.limiter.Reset(ctx, userID)
	if err != nil {
		s.logger.Error("重置识别额度失败", zap.String("user_id", userID), zap.Error(err))
		return false, err
	}
	s.logger.Info("识别额度已重置", zap.String("user_id", userID), zap.Bool("existed", existed))
	return existed, nil
}

// ── 内部辅助方法 ──

// withDateLock 在进程内键锁与数据库 advisory 锁保护下执行事务
func (s *attendanceService) withDateLock(ctx context.Context, classroomID string, date time.Time, fn func(tx *repository.Repository) error) error {
	unlock := s.locks.Lock(repository.LockKey(classroomID, date))
	defer unlock()

	tx, err := s.repo.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			if tx != nil {
				tx.Rollback()
			}
			panic(r)
		}
	}()

	txRepo := s.repo.WithTx(tx)
	if err := txRepo.Attendance.LockClassroomDate(ctx, classroomID, date); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		return err
	}
	if err := fn(txRepo); err != nil {
		if tx != nil {
			tx.Rollback()
		}
		return err
	}
	if tx != nil {
		if err := tx.Commit().Error; err != nil {
			return err
		}
	}
	return nil
}

func (s *attendanceService) rosterSet(ctx context.Context, classroomID string) (map[string]bool, error) {
	students, err := s.repo.Student.ListByClassroom(ctx, classroomID)
	if err != nil {
		s.logger.Error("查询班级名册失败", zap.String("classroom_id", classroomID), zap.Error(err))
		return nil, err
	}
	set := make(map[string]bool, len(students))
	for _, st := range students {
		set[st.StudentID] = true
	}
	return set, nil
}

func (s *attendanceService) toMarkFaceResponse(plan recognition.Plan, g *recognition.Gallery, report recognition.GalleryReport, faces int, quota ratelimit.Result) *dto.MarkFaceResponse {
	resp := &dto.MarkFaceResponse{
		Summary: dto.MarkFaceSummary{
			TotalStudents: plan.Summary.TotalStudents,
			Present:       plan.Summary.Present,
			Absent:        plan.Summary.Absent,
			UncertainHigh: plan.Summary.UncertainHigh,
			UncertainLow:  plan.Summary.UncertainLow,
			UnknownFaces:  plan.Summary.UnknownFaces,
			FacesDetected: faces,
		},
		HighConfidenceMatches: make([]dto.HighConfidenceMatch, 0, len(plan.HighConfidence)),
		UncertainMatches:      make([]dto.UncertainMatch, 0, len(plan.Review)),
		UnknownFaces:          make([]dto.UnknownFace, 0, len(plan.Unknown)),
		Gallery: dto.GalleryStats{
			Students:      len(g.Students()),
			Entries:       g.Len(),
			Ineligible:    len(report.Ineligible),
			ParseFailures: len(report.ParseFailures),
			Empty:         g.Empty(),
		},
		RateLimit: dto.RateLimitInfo{
			Remaining:     quota.Remaining,
			Limit:         quota.Limit,
			WindowMinutes: int(quota.Window.Minutes()),
			ResetAt:       formatResetAt(quota.ResetAt),
		},
	}

	for _, m := range plan.HighConfidence {
		resp.HighConfidenceMatches = append(resp.HighConfidenceMatches, dto.HighConfidenceMatch{
			StudentID:  m.StudentID,
			Name:       m.Name,
			RollNo:     m.RollNo,
			Confidence: m.Confidence,
			Distance:   round4(m.Distance),
		})
	}
	for _, r := range plan.Review {
		item := dto.UncertainMatch{
			StudentID:  r.StudentID,
			Name:       r.Name,
			RollNo:     r.RollNo,
			Confidence: r.Confidence,
			Distance:   round4(r.Distance),
			Tier:       int(r.Tier),
		}
		if r.PhotoPath != "" && s.photos != nil {
			item.PhotoURL = s.photos.URL(r.PhotoPath)
		}
		resp.UncertainMatches = append(resp.UncertainMatches, item)
	}
	for _, u := range plan.Unknown {
		item := dto.UnknownFace{
			FaceIndex:  u.FaceIndex,
			Confidence: u.Confidence,
			BBox:       [4]float64{u.BBox.X1, u.BBox.Y1, u.BBox.X2, u.BBox.Y2},
			Duplicate:  u.Duplicate,
		}
		if u.Distance != nil {
			d := round4(*u.Distance)
			item.Distance = &d
		}
		resp.UnknownFaces = append(resp.UnknownFaces, item)
	}
	return resp
}

func toAttendanceRecordResponse(rec *model.AttendanceRecord, st *model.Student) *dto.AttendanceRecordResponse {
	resp := &dto.AttendanceRecordResponse{
		ID:          rec.AttendanceID,
		StudentID:   rec.StudentID,
		ClassroomID: rec.ClassroomID,
		Date:        rec.Date.Format(model.DateLayout),
		Status:      rec.Status,
		Confidence:  rec.Confidence,
		Distance:    rec.Distance,
		Source:      rec.Source,
		MarkedAt:    rec.MarkedAt.Format(time.RFC3339),
	}
	if st != nil {
		resp.StudentName = st.Name
		resp.RollNo = st.RollNo
	}
	return resp
}

func toHistoryItems(stats []repository.DailyStat) []dto.AttendanceHistoryItem {
	items := make([]dto.AttendanceHistoryItem, 0, len(stats))
	for _, st := range stats {
		items = append(items, dto.AttendanceHistoryItem{
			Date:    st.Date.Format(model.DateLayout),
			Present: st.Present,
			Absent:  st.Absent,
			Rate:    rate(st.Present, st.Present+st.Absent),
		})
	}
	return items
}

// parseDate 解析 YYYY-MM-DD，返回 UTC 零点
func parseDate(s string) (time.Time, error) {
	t, err := time.Parse(model.DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, ErrInvalidDate
	}
	return t, nil
}

// parseDateRange 解析可选的起止日期，空串返回零值（不限）
func parseDateRange(from, to string) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error
	if strings.TrimSpace(from) != "" {
		if start, err = parseDate(from); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if strings.TrimSpace(to) != "" {
		if end, err = parseDate(to); err != nil {
			return time.Time{}, time.Time{}, err
		}
	}
	if !start.IsZero() && !end.IsZero() && start.After(end) {
		return time.Time{}, time.Time{}, ErrInvalidDateRange
	}
	return start, end, nil
}

func truncateDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func formatResetAt(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// rate 百分比，保留两位小数
func rate(part, total int64) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*10000) / 100
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
