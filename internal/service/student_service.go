package service

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/dto"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/model"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/recognition"
	"github.com/KYogeshPandey/snaptick-attendance-system/internal/repository"
	"github.com/KYogeshPandey/snaptick-attendance-system/pkg/imagequality"
)

var (
	ErrStudentNotFound   = errors.New("学生不存在")
	ErrStudentDuplicate  = errors.New("同一班级内学号或邮箱重复")
	ErrPhotoInvalid      = errors.New("照片无法解析")
	ErrPhotoQuality      = errors.New("照片质量不合格")
	ErrPhotoTooLarge     = errors.New("照片超过大小限制")
	ErrNoFaceInPhoto     = errors.New("照片中未检测到人脸")
	ErrMultipleFaces     = errors.New("参考照片中只能有一张人脸")
	ErrInvalidZip        = errors.New("无法解析 ZIP 文件")
	ErrRosterInvalid     = errors.New("无法解析Excel文件")
	ErrRosterNoData      = errors.New("Excel文件无数据行（第一行为表头）")
	ErrRosterBadHeader   = errors.New("Excel表头缺少必要列（name / roll_no / email）")
	ErrRosterTooManyRows = fmt.Errorf("数据行数超过上限 %d 行", maxRosterRows)
)

const maxRosterRows = 1000

var photoExtensions = map[string]bool{".jpg": true, ".jpeg": true, ".png": true, ".webp": true}

// PhotoStore 参考照片存储
type PhotoStore interface {
	Save(classroomID, ext string, data []byte) (string, error)
	Remove(rel string) error
	URL(rel string) string
}

// StudentService 学生名册与参考照片业务接口
type StudentService interface {
	List(ctx context.Context, classroomID, callerID, role string) ([]dto.StudentResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateStudentRequest, callerID, role string) (*dto.StudentResponse, error)
	Delete(ctx context.Context, id, callerID, role string) error
	// ImportRoster 导入 Excel 名册，按邮箱、学号依次匹配已有学生
	ImportRoster(ctx context.Context, classroomID, callerID, role string, reader io.Reader) (*dto.ImportStudentResponse, error)
	// UploadPhotos 批量登记 ZIP 中的参考照片，文件名匹配学号或姓名
	UploadPhotos(ctx context.Context, classroomID, callerID, role string, archive []byte) (*dto.PhotoUploadResponse, error)
	// UploadPhoto 登记单个学生的参考照片；appendEncoding 为 true 时追加特征而非替换
	UploadPhoto(ctx context.Context, studentID, callerID, role string, image []byte, filename string, appendEncoding bool) (*dto.SinglePhotoResponse, error)
}

type studentService struct {
	repo          *repository.Repository
	detector      recognition.Detector
	photos        PhotoStore
	quality       imagequality.Config
	maxPhotoBytes int64
	logger        *zap.Logger
}

// NewStudentService 创建 StudentService 实例
func NewStudentService(
	repo *repository.Repository,
	detector recognition.Detector,
	photos PhotoStore,
	quality imagequality.Config,
	maxPhotoBytes int64,
	logger *zap.Logger,
) StudentService {
	return &studentService{
		repo:          repo,
		detector:      detector,
		photos:        photos,
		quality:       quality,
		maxPhotoBytes: maxPhotoBytes,
		logger:        logger,
	}
}

// ────────────────────── List ──────────────────────

func (s *studentService) List(ctx context.Context, classroomID, callerID, role string) ([]dto.StudentResponse, error) {
	if _, err := loadOwnedClassroom(ctx, s.repo, s.logger, classroomID, callerID, role); err != nil {
		return nil, err
	}
	students, err := s.repo.Student.ListByClassroom(ctx, classroomID)
	if err != nil {
		s.logger.Error("查询学生列表失败", zap.String("classroom_id", classroomID), zap.Error(err))
		return nil, err
	}

	result := make([]dto.StudentResponse, 0, len(students))
	for i := range students {
		result = append(result, *s.toStudentResponse(&students[i]))
	}
	return result, nil
}

// ────────────────────── Update ──────────────────────

func (s *studentService) Update(ctx context.Context, id string, req *dto.UpdateStudentRequest, callerID, role string) (*dto.StudentResponse, error) {
	student, err := s.loadOwnedStudent(ctx, id, callerID, role)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		student.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		student.Email = normalizeEmail(*req.Email)
	}
	if req.RollNo != nil {
		student.RollNo = strings.TrimSpace(*req.RollNo)
	}
	student.UpdatedBy = &callerID

	if err := s.repo.Student.Update(ctx, student); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrStudentDuplicate
		}
		s.logger.Error("更新学生失败", zap.String("student_id", id), zap.Error(err))
		return nil, err
	}
	return s.toStudentResponse(student), nil
}

// ────────────────────── Delete ──────────────────────

func (s *studentService) Delete(ctx context.Context, id, callerID, role string) error {
	student, err := s.loadOwnedStudent(ctx, id, callerID, role)
	if err != nil {
		return err
	}
	if err := s.repo.Student.Delete(ctx, id, callerID); err != nil {
		s.logger.Error("删除学生失败", zap.String("student_id", id), zap.Error(err))
		return err
	}
	if student.PhotoPath != nil && s.photos != nil {
		if err := s.photos.Remove(*student.PhotoPath); err != nil {
			s.logger.Warn("删除参考照片失败", zap.String("path", *student.PhotoPath), zap.Error(err))
		}
	}
	return nil
}

// ────────────────────── ImportRoster ──────────────────────

type rosterRow struct {
	row    int
	name   string
	rollNo string
	email  string
}

func (s *studentService) ImportRoster(ctx context.Context, classroomID, callerID, role string, reader io.Reader) (*dto.ImportStudentResponse, error) {
	if _, err := loadOwnedClassroom(ctx, s.repo, s.logger, classroomID, callerID, role); err != nil {
		return nil, err
	}

	rows, err := parseRoster(reader)
	if err != nil {
		return nil, err
	}

	resp := &dto.ImportStudentResponse{Total: len(rows)}
	fail := func(row int, reason string) {
		resp.Errors = append(resp.Errors, dto.ImportRowError{Row: row, Reason: reason})
	}

	for _, r := range rows {
		if r.name == "" || r.rollNo == "" || r.email == "" {
			fail(r.row, "必填字段为空")
			continue
		}
		if !strings.Contains(r.email, "@") {
			fail(r.row, fmt.Sprintf("邮箱格式错误: %s", r.email))
			continue
		}

		existing, err := s.findRosterMatch(ctx, classroomID, r)
		if err != nil {
			s.logger.Error("查询学生失败", zap.Int("row", r.row), zap.Error(err))
			return nil, err
		}

		if existing == nil {
			student := &model.Student{
				ClassroomID: classroomID,
				Name:        r.name,
				Email:       r.email,
				RollNo:      r.rollNo,
			}
			student.CreatedBy = &callerID
			if err := s.repo.Student.Create(ctx, student); err != nil {
				if errors.Is(err, gorm.ErrDuplicatedKey) {
					fail(r.row, "学号重复")
					continue
				}
				s.logger.Error("创建学生失败", zap.Int("row", r.row), zap.Error(err))
				return nil, err
			}
			resp.Created++
			continue
		}

		if existing.Name == r.name && existing.RollNo == r.rollNo && existing.Email == r.email {
			resp.Skipped++
			continue
		}
		existing.Name, existing.RollNo, existing.Email = r.name, r.rollNo, r.email
		existing.UpdatedBy = &callerID
		if err := s.repo.Student.Update(ctx, existing); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				fail(r.row, "学号与其他学生冲突")
				continue
			}
			s.logger.Error("更新学生失败", zap.Int("row", r.row), zap.Error(err))
			return nil, err
		}
		resp.Updated++
	}

	s.logger.Info("名册导入完成",
		zap.String("classroom_id", classroomID),
		zap.Int("created", resp.Created),
		zap.Int("updated", resp.Updated),
		zap.Int("skipped", resp.Skipped),
		zap.Int("errors", len(resp.Errors)),
	)
	return resp, nil
}

func (s *studentService) findRosterMatch(ctx context.Context, classroomID string, r rosterRow) (*model.Student, error) {
	student, err := s.repo.Student.GetByEmail(ctx, classroomID, r.email)
	if err == nil {
		return student, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	student, err = s.repo.Student.GetByRollNo(ctx, classroomID, r.rollNo)
	if err == nil {
		return student, nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	return nil, err
}

// parseRoster 解析名册 Excel，表头支持中英文且列序任意
func parseRoster(reader io.Reader) ([]rosterRow, error) {
	f, err := excelize.OpenReader(reader)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRosterInvalid, err)
	}
	defer f.Close()

	excelRows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("读取工作表失败: %w", err)
	}
	if len(excelRows) < 2 {
		return nil, ErrRosterNoData
	}

	col := map[string]int{"name": -1, "roll_no": -1, "email": -1}
	for i, h := range excelRows[0] {
		switch strings.ToLower(strings.TrimSpace(h)) {
		case "name", "student name", "姓名":
			col["name"] = i
		case "roll_no", "roll no", "roll number", "rollno", "学号":
			col["roll_no"] = i
		case "email", "e-mail", "邮箱":
			col["email"] = i
		}
	}
	if col["name"] < 0 || col["roll_no"] < 0 || col["email"] < 0 {
		return nil, ErrRosterBadHeader
	}

	cellAt := func(row []string, idx int) string {
		if idx < len(row) {
			return strings.TrimSpace(row[idx])
		}
		return ""
	}

	var rows []rosterRow
	for i := 1; i < len(excelRows); i++ {
		r := rosterRow{
			row:    i + 1,
			name:   cellAt(excelRows[i], col["name"]),
			rollNo: cellAt(excelRows[i], col["roll_no"]),
			email:  normalizeEmail(cellAt(excelRows[i], col["email"])),
		}
		// 跳过全空行
		if r.name == "" && r.rollNo == "" && r.email == "" {
			continue
		}
		rows = append(rows, r)
	}

	if len(rows) == 0 {
		return nil, ErrRosterNoData
	}
	if len(rows) > maxRosterRows {
		return nil, ErrRosterTooManyRows
	}
	return rows, nil
}

// ────────────────────── UploadPhotos ──────────────────────

func (s *studentService) UploadPhotos(ctx context.Context, classroomID, callerID, role string, archive []byte) (*dto.PhotoUploadResponse, error) {
	if _, err := loadOwnedClassroom(ctx, s.repo, s.logger, classroomID, callerID, role); err != nil {
		return nil, err
	}

	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidZip, err)
	}

	students, err := s.repo.Student.ListByClassroom(ctx, classroomID)
	if err != nil {
		s.logger.Error("查询学生列表失败", zap.String("classroom_id", classroomID), zap.Error(err))
		return nil, err
	}
	byRoll := make(map[string]*model.Student, len(students))
	byName := make(map[string]*model.Student, len(students))
	for i := range students {
		byRoll[strings.ToLower(students[i].RollNo)] = &students[i]
		byName[strings.ToLower(students[i].Name)] = &students[i]
	}

	resp := &dto.PhotoUploadResponse{}
	for _, file := range zr.File {
		base := path.Base(file.Name)
		ext := strings.ToLower(path.Ext(base))
		if file.FileInfo().IsDir() || strings.HasPrefix(base, ".") ||
			strings.HasPrefix(file.Name, "__MACOSX/") || !photoExtensions[ext] {
			continue
		}
		resp.Uploaded++

		key := strings.ToLower(strings.TrimSpace(strings.TrimSuffix(base, path.Ext(base))))
		student, ok := byRoll[key]
		if !ok {
			student, ok = byName[key]
		}
		if !ok {
			resp.Unmatched = append(resp.Unmatched, base)
			continue
		}
		resp.Matched++

		data, err := readZipFile(file, s.maxPhotoBytes)
		if err != nil {
			resp.Failed++
			resp.Failures = append(resp.Failures, dto.PhotoFailure{File: base, Reason: err.Error()})
			continue
		}

		if _, err := s.registerPhoto(ctx, student, data, ext, false); err != nil {
			if errors.Is(err, ErrDetectorUnavailable) {
				return nil, err
			}
			resp.Failed++
			resp.Failures = append(resp.Failures, dto.PhotoFailure{File: base, Reason: err.Error()})
			continue
		}
		resp.Encoded++
	}

	s.logger.Info("参考照片批量登记完成",
		zap.String("classroom_id", classroomID),
		zap.Int("uploaded", resp.Uploaded),
		zap.Int("matched", resp.Matched),
		zap.Int("encoded", resp.Encoded),
		zap.Int("failed", resp.Failed),
	)
	return resp, nil
}

func readZipFile(file *zip.File, limit int64) ([]byte, error) {
	if limit > 0 && file.UncompressedSize64 > uint64(limit) {
		return nil, ErrPhotoTooLarge
	}
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPhotoInvalid, err)
	}
	defer rc.Close()

	var r io.Reader = rc
	if limit > 0 {
		r = io.LimitReader(rc, limit+1)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPhotoInvalid, err)
	}
	if limit > 0 && int64(len(data)) > limit {
		return nil, ErrPhotoTooLarge
	}
	return data, nil
}

// ────────────────────── UploadPhoto ──────────────────────

func (s *studentService) UploadPhoto(ctx context.Context, studentID, callerID, role string, image []byte, filename string, appendEncoding bool) (*dto.SinglePhotoResponse, error) {
	student, err := s.loadOwnedStudent(ctx, studentID, callerID, role)
	if err != nil {
		return nil, err
	}
	if s.maxPhotoBytes > 0 && int64(len(image)) > s.maxPhotoBytes {
		return nil, ErrPhotoTooLarge
	}

	ext := strings.ToLower(path.Ext(filename))
	if !photoExtensions[ext] {
		ext = ".jpg"
	}
	return s.registerPhoto(ctx, student, image, ext, appendEncoding)
}

// registerPhoto 质量检查 → 检测人脸 → 保存照片与特征
func (s *studentService) registerPhoto(ctx context.Context, student *model.Student, image []byte, ext string, appendEncoding bool) (*dto.SinglePhotoResponse, error) {
	report, err := imagequality.Analyze(image, s.quality)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPhotoInvalid, err)
	}
	if !report.OK() {
		return nil, fmt.Errorf("%w: %s", ErrPhotoQuality, strings.Join(report.Issues, ", "))
	}

	faces, err := s.detector.DetectFaces(ctx, image)
	if err != nil {
		s.logger.Error("人脸检测服务调用失败", zap.String("student_id", student.StudentID), zap.Error(err))
		return nil, fmt.Errorf("%w: %v", ErrDetectorUnavailable, err)
	}
	switch {
	case len(faces) == 0:
		return nil, ErrNoFaceInPhoto
	case len(faces) > 1:
		return nil, ErrMultipleFaces
	}

	encodings := []recognition.Embedding{faces[0].Embedding}
	if appendEncoding && student.HasEncodings() {
		existing, err := recognition.ParseEmbeddings(student.Encodings)
		if err != nil {
			s.logger.Warn("已有特征损坏，改为替换", zap.String("student_id", student.StudentID), zap.Error(err))
		} else if len(existing) > 0 && len(existing[0]) == len(faces[0].Embedding) {
			encodings = append(existing, faces[0].Embedding)
		}
	}
	blob, err := recognition.EncodeEmbeddings(encodings)
	if err != nil {
		return nil, err
	}

	rel, err := s.photos.Save(student.ClassroomID, ext, image)
	if err != nil {
		s.logger.Error("保存参考照片失败", zap.String("student_id", student.StudentID), zap.Error(err))
		return nil, err
	}
	if err := s.repo.Student.UpdateEncodings(ctx, student.StudentID, blob, rel); err != nil {
		s.logger.Error("保存人脸特征失败", zap.String("student_id", student.StudentID), zap.Error(err))
		_ = s.photos.Remove(rel)
		return nil, err
	}
	if student.PhotoPath != nil && *student.PhotoPath != rel {
		if err := s.photos.Remove(*student.PhotoPath); err != nil {
			s.logger.Warn("删除旧参考照片失败", zap.String("path", *student.PhotoPath), zap.Error(err))
		}
	}
	student.PhotoPath = &rel
	student.Encodings = datatypes.JSON(blob)

	return &dto.SinglePhotoResponse{
		StudentID:     student.StudentID,
		PhotoURL:      s.photos.URL(rel),
		EncodingCount: len(encodings),
		Sharpness:     report.Sharpness,
		Brightness:    report.Brightness,
	}, nil
}

// ── 内部辅助方法 ──

func (s *studentService) loadOwnedStudent(ctx context.Context, id, callerID, role string) (*model.Student, error) {
	student, err := s.repo.Student.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrStudentNotFound
		}
		s.logger.Error("查询学生失败", zap.String("student_id", id), zap.Error(err))
		return nil, err
	}
	if _, err := loadOwnedClassroom(ctx, s.repo, s.logger, student.ClassroomID, callerID, role); err != nil {
		return nil, err
	}
	return student, nil
}

func (s *studentService) toStudentResponse(st *model.Student) *dto.StudentResponse {
	resp := &dto.StudentResponse{
		ID:           st.StudentID,
		ClassroomID:  st.ClassroomID,
		Name:         st.Name,
		Email:        st.Email,
		RollNo:       st.RollNo,
		HasEncodings: st.HasEncodings(),
	}
	if st.PhotoPath != nil && s.photos != nil {
		resp.PhotoURL = s.photos.URL(*st.PhotoPath)
	}
	return resp
}
