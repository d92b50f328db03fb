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
	pkgerrors "github.com/KYogeshPandey/snaptick-attendance-system/pkg/errors"
)

var (
	ErrClassroomNotFound  = errors.New("班级不存在")
	ErrClassroomForbidden = errors.New("无权访问该班级")
	ErrClassroomConflict  = errors.New("班级已被修改，请刷新后重试")
)

// ClassroomService 班级业务接口
type ClassroomService interface {
	Create(ctx context.Context, req *dto.CreateClassroomRequest, callerID string) (*dto.ClassroomResponse, error)
	List(ctx context.Context, callerID, role string) ([]dto.ClassroomResponse, error)
	Get(ctx context.Context, id, callerID, role string) (*dto.ClassroomResponse, error)
	Update(ctx context.Context, id string, req *dto.UpdateClassroomRequest, callerID, role string) (*dto.ClassroomResponse, error)
	Delete(ctx context.Context, id, callerID, role string) error
}

type classroomService struct {
	repo   *repository.Repository
	logger *zap.Logger
}

// NewClassroomService 创建 ClassroomService 实例
func NewClassroomService(repo *repository.Repository, logger *zap.Logger) ClassroomService {
	return &classroomService{repo: repo, logger: logger}
}

// loadOwnedClassroom 查询班级并校验归属：管理员可访问全部班级，教师仅限自己的班级
func loadOwnedClassroom(ctx context.Context, repo *repository.Repository, logger *zap.Logger, classroomID, callerID, role string) (*model.Classroom, error) {
	classroom, err := repo.Classroom.GetByID(ctx, classroomID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrClassroomNotFound
		}
		logger.Error("查询班级失败", zap.String("classroom_id", classroomID), zap.Error(err))
		return nil, err
	}
	if role != model.RoleAdmin && classroom.TeacherID != callerID {
		return nil, ErrClassroomForbidden
	}
	return classroom, nil
}

// listVisibleClassrooms 管理员返回全部班级，教师返回自己的班级
func listVisibleClassrooms(ctx context.Context, repo *repository.Repository, logger *zap.Logger, callerID, role string) ([]model.Classroom, error) {
	var (
		classrooms []model.Classroom
		err        error
	)
	if role == model.RoleAdmin {
		classrooms, err = repo.Classroom.ListAll(ctx)
	} else {
		classrooms, err = repo.Classroom.ListByTeacher(ctx, callerID)
	}
	if err != nil {
		logger.Error("查询班级列表失败", zap.String("caller_id", callerID), zap.Error(err))
		return nil, err
	}
	return classrooms, nil
}

// ────────────────────── Create ──────────────────────

func (s *classroomService) Create(ctx context.Context, req *dto.CreateClassroomRequest, callerID string) (*dto.ClassroomResponse, error) {
	classroom := &model.Classroom{
		Name:      strings.TrimSpace(req.Name),
		Subject:   strings.TrimSpace(req.Subject),
		Branch:    optionalString(req.Branch),
		Section:   optionalString(req.Section),
		Semester:  req.Semester,
		TeacherID: callerID,
	}
	classroom.CreatedBy = &callerID

	if err := s.repo.Classroom.Create(ctx, classroom); err != nil {
		s.logger.Error("创建班级失败", zap.Error(err))
		return nil, err
	}

	s.logger.Info("班级创建成功", zap.String("classroom_id", classroom.ClassroomID), zap.String("teacher_id", callerID))
	return toClassroomResponse(classroom, 0), nil
}

// ────────────────────── List ──────────────────────

func (s *classroomService) List(ctx context.Context, callerID, role string) ([]dto.ClassroomResponse, error) {
	classrooms, err := listVisibleClassrooms(ctx, s.repo, s.logger, callerID, role)
	if err != nil {
		return nil, err
	}

	result := make([]dto.ClassroomResponse, 0, len(classrooms))
	for i := range classrooms {
		students, err := s.repo.Student.ListByClassroom(ctx, classrooms[i].ClassroomID)
		if err != nil {
			s.logger.Error("查询班级学生失败", zap.String("classroom_id", classrooms[i].ClassroomID), zap.Error(err))
			return nil, err
		}
		result = append(result, *toClassroomResponse(&classrooms[i], len(students)))
	}
	return result, nil
}

// ────────────────────── Get ──────────────────────

func (s *classroomService) Get(ctx context.Context, id, callerID, role string) (*dto.ClassroomResponse, error) {
	classroom, err := loadOwnedClassroom(ctx, s.repo, s.logger, id, callerID, role)
	if err != nil {
		return nil, err
	}
	students, err := s.repo.Student.ListByClassroom(ctx, id)
	if err != nil {
		s.logger.Error("查询班级学生失败", zap.String("classroom_id", id), zap.Error(err))
		return nil, err
	}
	return toClassroomResponse(classroom, len(students)), nil
}

// ────────────────────── Update ──────────────────────

func (s *classroomService) Update(ctx context.Context, id string, req *dto.UpdateClassroomRequest, callerID, role string) (*dto.ClassroomResponse, error) {
	classroom, err := loadOwnedClassroom(ctx, s.repo, s.logger, id, callerID, role)
	if err != nil {
		return nil, err
	}
	if classroom.Version != req.Version {
		return nil, ErrClassroomConflict
	}

	if req.Name != nil {
		classroom.Name = strings.TrimSpace(*req.Name)
	}
	if req.Subject != nil {
		classroom.Subject = strings.TrimSpace(*req.Subject)
	}
	if req.Branch != nil {
		classroom.Branch = optionalString(*req.Branch)
	}
	if req.Section != nil {
		classroom.Section = optionalString(*req.Section)
	}
	if req.Semester != nil {
		classroom.Semester = req.Semester
	}
	classroom.UpdatedBy = &callerID

	if err := s.repo.Classroom.Update(ctx, classroom); err != nil {
		if errors.Is(err, pkgerrors.ErrOptimisticLock) {
			return nil, ErrClassroomConflict
		}
		s.logger.Error("更新班级失败", zap.String("classroom_id", id), zap.Error(err))
		return nil, err
	}

	return s.Get(ctx, id, callerID, role)
}

// ────────────────────── Delete ──────────────────────

func (s *classroomService) Delete(ctx context.Context, id, callerID, role string) error {
	if _, err := loadOwnedClassroom(ctx, s.repo, s.logger, id, callerID, role); err != nil {
		return err
	}
	if err := s.repo.Classroom.Delete(ctx, id, callerID); err != nil {
		s.logger.Error("删除班级失败", zap.String("classroom_id", id), zap.Error(err))
		return err
	}
	return nil
}

// ── 内部辅助方法 ──

func toClassroomResponse(c *model.Classroom, studentCount int) *dto.ClassroomResponse {
	return &dto.ClassroomResponse{
		ID:           c.ClassroomID,
		Name:         c.Name,
		Subject:      c.Subject,
		Branch:       derefString(c.Branch),
		Section:      derefString(c.Section),
		Semester:     c.Semester,
		TeacherID:    c.TeacherID,
		StudentCount: studentCount,
		Version:      c.Version,
		CreatedAt:    c.CreatedAt.Format(time.RFC3339),
	}
}
