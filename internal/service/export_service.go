package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/dto"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/model"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/repository"
)

// ── 导出模块业务错误 ──

var (
	ErrExportNoRecords         = errors.New("所选范围暂无考勤记录")
	ErrExportGenerateFail      = errors.New("生成 Excel 文件失败")
	ErrExportClassroomRequired = errors.New("按日导出必须指定班级")
)

// ExportService 导出业务接口
//
// 导出以 bytes.Buffer 返回，由 Handler 层设置 HTTP 响应头后写入 Response
type ExportService interface {
	// ExportAttendance 导出考勤为 Excel：指定 Date 时导出单班单日名册，否则导出日期区间明细
	ExportAttendance(ctx context.Context, req *dto.ExportAttendanceRequest, callerID, role string) (*bytes.Buffer, string, error)
}

type exportService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewExportService 创建 ExportService 实例
func NewExportService(repo *repository.Repository, logger *zap.Logger) ExportService {
	return &exportService{repo: repo, logger: logger}
}

const exportSheet = "Attendance"

func (s *exportService) ExportAttendance(ctx context.Context, req *dto.ExportAttendanceRequest, callerID, role string) (*bytes.Buffer, string, error) {
	if strings.TrimSpace(req.Date) != "" {
		if req.ClassroomID == "" {
			return nil, "", ErrExportClassroomRequired
		}
		return s.exportDay(ctx, req.ClassroomID, req.Date, callerID, role)
	}
	return s.exportRange(ctx, req, callerID, role)
}

// ═══════════════════════════════════════════════════════════
// exportDay — 单班单日名册
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 标题行：班级名称 + 日期
//   - 表头：序号 | 姓名 | 学号 | 状态 | 置信度 | 记录时间
//   - 数据行按学号排序，未记录的学生不导出

var dayHeaders = []string{"Serial No", "Name", "Roll No", "Status", "Confidence", "Marked At"}

func (s *exportService) exportDay(ctx context.Context, classroomID, dateStr, callerID, role string) (*bytes.Buffer, string, error) {
	date, err := parseDate(dateStr)
	if err != nil {
		return nil, "", err
	}
	classroom, err := loadOwnedClassroom(ctx, s.repo, s.logger, classroomID, callerID, role)
	if err != nil {
		return nil, "", err
	}

	// 1. 名册顺序即导出顺序
	students, err := s.repo.Student.ListByClassroom(ctx, classroomID)
	if err != nil {
		s.logger.Error("查询班级名册失败", zap.Error(err))
		return nil, "", err
	}
	records, err := s.repo.Attendance.ListByClassroomDate(ctx, classroomID, date)
	if err != nil {
		s.logger.Error("查询考勤失败", zap.Error(err))
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "", ErrExportNoRecords
	}
	byStudent := make(map[string]*model.AttendanceRecord, len(records))
	for i := range records {
		byStudent[records[i].StudentID] = &records[i]
	}

	// 2. 生成 Excel
	f, headerStyle := newExportFile([]float64{10, 24, 12, 10, 12, 22})
	defer f.Close()

	// 标题行
	dateText := date.Format(model.DateLayout)
	f.SetCellValue(exportSheet, "A1", fmt.Sprintf("%s (%s) - %s", classroom.Name, classroom.Subject, dateText))
	f.MergeCell(exportSheet, "A1", cell(colName(len(dayHeaders)-1), 1))
	f.SetCellStyle(exportSheet, "A1", "A1", headerStyle)
	writeHeaderRow(f, 2, dayHeaders, headerStyle)

	// 数据行
	row := 3
	serial := 1
	for _, st := range students {
		rec, ok := byStudent[st.StudentID]
		if !ok {
			continue
		}
		f.SetCellValue(exportSheet, cell("A", row), serial)
		f.SetCellValue(exportSheet, cell("B", row), st.Name)
		f.SetCellValue(exportSheet, cell("C", row), st.RollNo)
		f.SetCellValue(exportSheet, cell("D", row), rec.Status)
		f.SetCellValue(exportSheet, cell("E", row), formatConfidence(rec.Confidence))
		f.SetCellValue(exportSheet, cell("F", row), rec.MarkedAt.Format(time.DateTime))
		serial++
		row++
	}

	buf, err := s.writeFile(f)
	if err != nil {
		return nil, "", err
	}
	filename := fmt.Sprintf("attendance_%s_%s.xlsx", sanitizeFilename(classroom.Name), dateText)
	return buf, filename, nil
}

// ═══════════════════════════════════════════════════════════
// exportRange — 日期区间明细（可跨班级）
// ═══════════════════════════════════════════════════════════
//
// 输出格式：
//   - 表头：日期 | 姓名 | 学号 | 状态 | 置信度 | 班级
//   - 数据行按 日期 → 班级名称 → 学号 排序
//   - 未指定班级时导出调用者可见的全部班级；起止日期均可省略

var rangeHeaders = []string{"Date", "Student Name", "Roll No", "Status", "Confidence", "Classroom"}

func (s *exportService) exportRange(ctx context.Context, req *dto.ExportAttendanceRequest, callerID, role string) (*bytes.Buffer, string, error) {
	start, end, err := parseDateRange(req.StartDate, req.EndDate)
	if err != nil {
		return nil, "", err
	}

	var classrooms []model.Classroom
	if req.ClassroomID != "" {
		c, err := loadOwnedClassroom(ctx, s.repo, s.logger, req.ClassroomID, callerID, role)
		if err != nil {
			return nil, "", err
		}
		classrooms = []model.Classroom{*c}
	} else if classrooms, err = listVisibleClassrooms(ctx, s.repo, s.logger, callerID, role); err != nil {
		return nil, "", err
	}
	if len(classrooms) == 0 {
		return nil, "", ErrExportNoRecords
	}

	names := make(map[string]string, len(classrooms))
	ids := make([]string, 0, len(classrooms))
	for _, c := range classrooms {
		names[c.ClassroomID] = c.Name
		ids = append(ids, c.ClassroomID)
	}
	records, err := s.repo.Attendance.ListByClassrooms(ctx, repository.AttendanceFilter{ClassroomIDs: ids, From: start, To: end})
	if err != nil {
		s.logger.Error("查询区间考勤失败", zap.Int("classrooms", len(ids)), zap.Error(err))
		return nil, "", err
	}
	if len(records) == 0 {
		return nil, "", ErrExportNoRecords
	}
	sort.SliceStable(records, func(i, j int) bool {
		a, b := &records[i], &records[j]
		if !a.Date.Equal(b.Date) {
			return a.Date.Before(b.Date)
		}
		if names[a.ClassroomID] != names[b.ClassroomID] {
			return names[a.ClassroomID] < names[b.ClassroomID]
		}
		return rollNo(a) < rollNo(b)
	})

	f, headerStyle := newExportFile([]float64{12, 24, 12, 10, 12, 20})
	defer f.Close()
	writeHeaderRow(f, 1, rangeHeaders, headerStyle)

	for i := range records {
		rec := &records[i]
		row := i + 2
		name := "-"
		if rec.Student != nil {
			name = rec.Student.Name
		}
		f.SetCellValue(exportSheet, cell("A", row), rec.Date.Format(model.DateLayout))
		f.SetCellValue(exportSheet, cell("B", row), name)
		f.SetCellValue(exportSheet, cell("C", row), rollNo(rec))
		f.SetCellValue(exportSheet, cell("D", row), strings.ToUpper(rec.Status))
		f.SetCellValue(exportSheet, cell("E", row), formatConfidence(rec.Confidence))
		f.SetCellValue(exportSheet, cell("F", row), names[rec.ClassroomID])
	}

	buf, err := s.writeFile(f)
	if err != nil {
		return nil, "", err
	}

	parts := []string{"attendance", "all"}
	if req.ClassroomID != "" {
		parts[1] = sanitizeFilename(classrooms[0].Name)
	}
	if !start.IsZero() {
		parts = append(parts, start.Format(model.DateLayout))
	}
	if !end.IsZero() {
		parts = append(parts, end.Format(model.DateLayout))
	}
	return buf, strings.Join(parts, "_") + ".xlsx", nil
}

func (s *exportService) writeFile(f *excelize.File) (*bytes.Buffer, error) {
	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		s.logger.Error("写入 Excel 失败", zap.Error(err))
		return nil, ErrExportGenerateFail
	}
	return buf, nil
}

// ── 辅助函数 ──

// newExportFile 创建只含 Attendance 工作表的文件并设置列宽，返回表头样式
func newExportFile(widths []float64) (*excelize.File, int) {
	f := excelize.NewFile()
	idx, _ := f.NewSheet(exportSheet)
	f.SetActiveSheet(idx)
	f.DeleteSheet("Sheet1")

	for i, w := range widths {
		col := colName(i)
		f.SetColWidth(exportSheet, col, col, w)
	}

	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	return f, headerStyle
}

func writeHeaderRow(f *excelize.File, row int, headers []string, style int) {
	for i, h := range headers {
		f.SetCellValue(exportSheet, cell(colName(i), row), h)
	}
	f.SetCellStyle(exportSheet, cell("A", row), cell(colName(len(headers)-1), row), style)
}

func formatConfidence(c *float64) string {
	if c == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *c)
}

func rollNo(rec *model.AttendanceRecord) string {
	if rec.Student == nil {
		return "-"
	}
	return rec.Student.RollNo
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx + 1)
	return name
}

func cell(col string, row int) string {
	return fmt.Sprintf("%s%d", col, row)
}

func sanitizeFilename(s string) string {
	out := []rune(s)
	for i, r := range out {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', ' ':
			out[i] = '_'
		}
	}
	return string(out)
}
