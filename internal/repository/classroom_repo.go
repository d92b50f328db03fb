package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/model"
	pkgerrors "github.com/KYogeshPandey/snaptick-attendance-system/pkg/errors"
)

// ClassroomRepository 班级数据访问接口
type ClassroomRepository interface {
	Create(ctx context.Context, classroom *model.Classroom) error
	GetByID(ctx context.Context, id string) (*model.Classroom, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]model.Classroom, error)
	ListAll(ctx context.Context) ([]model.Classroom, error)
	Update(ctx context.Context, classroom *model.Classroom) error
	Delete(ctx context.Context, id string, deletedBy string) error
}

type classroomRepo struct {
	db *gorm.DB
}

// NewClassroomRepo 创建 ClassroomRepository 实例
func NewClassroomRepo(db *gorm.DB) ClassroomRepository {
	return &classroomRepo{db: db}
}

func (r *classroomRepo) Create(ctx context.Context, classroom *model.Classroom) error {
	return r.db.WithContext(ctx).Create(classroom).Error
}

func (r *classroomRepo) GetByID(ctx context.Context, id string) (*model.Classroom, error) {
	var classroom model.Classroom
	err := r.db.WithContext(ctx).
		Where("classroom_id = ?", id).
		First(&classroom).Error
	if err != nil {
		return nil, err
	}
	return &classroom, nil
}

func (r *classroomRepo) ListByTeacher(ctx context.Context, teacherID string) ([]model.Classroom, error) {
	var classrooms []model.Classroom
	err := r.db.WithContext(ctx).
		Where("teacher_id = ?", teacherID).
		Order("created_at DESC").
		Find(&classrooms).Error
	return classrooms, err
}

func (r *classroomRepo) ListAll(ctx context.Context) ([]model.Classroom, error) {
	var classrooms []model.Classroom
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&classrooms).Error
	return classrooms, err
}

// Update 乐观锁更新：version 不匹配时返回 ErrOptimisticLock
func (r *classroomRepo) Update(ctx context.Context, classroom *model.Classroom) error {
	oldVersion := classroom.Version
	result := r.db.WithContext(ctx).
		Model(classroom).
		Where("classroom_id = ? AND version = ?", classroom.ClassroomID, oldVersion).
		Updates(map[string]interface{}{
			"name":       classroom.Name,
			"subject":    classroom.Subject,
			"branch":     classroom.Branch,
			"section":    classroom.Section,
			"semester":   classroom.Semester,
			"updated_by": classroom.UpdatedBy,
			"version":    oldVersion + 1,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return pkgerrors.ErrOptimisticLock
	}
	classroom.Version = oldVersion + 1
	return nil
}

func (r *classroomRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Classroom{}).
		Where("classroom_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}
