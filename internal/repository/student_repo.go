package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/KYogeshPandey/snaptick-attendance-system/internal/model"
)

// StudentRepository 学生名册数据访问接口
type StudentRepository interface {
	Create(ctx context.Context, student *model.Student) error
	GetByID(ctx context.Context, id string) (*model.Student, error)
	GetByRollNo(ctx context.Context, classroomID, rollNo string) (*model.Student, error)
	GetByEmail(ctx context.Context, classroomID, email string) (*model.Student, error)
	// ListByClassroom 按 (roll_no, student_id) 排序，即识别时的特征库顺序
	ListByClassroom(ctx context.Context, classroomID string) ([]model.Student, error)
	ListByUserID(ctx context.Context, userID string) ([]model.Student, error)
	Update(ctx context.Context, student *model.Student) error
	UpdateEncodings(ctx context.Context, id string, encodings []byte, photoPath string) error
	// LinkUserByEmail 将尚未关联登录账号的同邮箱学生记录关联到 userID
	LinkUserByEmail(ctx context.Context, email, userID string) (int64, error)
	Delete(ctx context.Context, id string, deletedBy string) error
}

type studentRepo struct {
	db *gorm.DB
}

// NewStudentRepo 创建 StudentRepository 实例
func NewStudentRepo(db *gorm.DB) StudentRepository {
	return &studentRepo{db: db}
}

func (r *studentRepo) Create(ctx context.Context, student *model.Student) error {
	return r.db.WithContext(ctx).Create(student).Error
}

func (r *studentRepo) GetByID(ctx context.Context, id string) (*model.Student, error) {
	var student model.Student
	err := r.db.WithContext(ctx).
		Where("student_id = ?", id).
		First(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepo) GetByRollNo(ctx context.Context, classroomID, rollNo string) (*model.Student, error) {
	var student model.Student
	err := r.db.WithContext(ctx).
		Where("classroom_id = ? AND roll_no = ?", classroomID, rollNo).
		First(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepo) GetByEmail(ctx context.Context, classroomID, email string) (*model.Student, error) {
	var student model.Student
	err := r.db.WithContext(ctx).
		Where("classroom_id = ? AND LOWER(email) = LOWER(?)", classroomID, email).
		First(&student).Error
	if err != nil {
		return nil, err
	}
	return &student, nil
}

func (r *studentRepo) ListByClassroom(ctx context.Context, classroomID string) ([]model.Student, error) {
	var students []model.Student
	err := r.db.WithContext(ctx).
		Where("classroom_id = ?", classroomID).
		Order("roll_no ASC, student_id ASC").
		Find(&students).Error
	return students, err
}

func (r *studentRepo) ListByUserID(ctx context.Context, userID string) ([]model.Student, error) {
	var students []model.Student
	err := r.db.WithContext(ctx).
		Preload("Classroom").
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Find(&students).Error
	return students, err
}

func (r *studentRepo) Update(ctx context.Context, student *model.Student) error {
	return r.db.WithContext(ctx).Save(student).Error
}

func (r *studentRepo) UpdateEncodings(ctx context.Context, id string, encodings []byte, photoPath string) error {
	return r.db.WithContext(ctx).
		Model(&model.Student{}).
		Where("student_id = ?", id).
		Updates(map[string]interface{}{
			"encodings":  gorm.Expr("?::jsonb", string(encodings)),
			"photo_path": photoPath,
			"updated_at": gorm.Expr("NOW()"),
		}).Error
}

func (r *studentRepo) LinkUserByEmail(ctx context.Context, email, userID string) (int64, error) {
	result := r.db.WithContext(ctx).
		Model(&model.Student{}).
		Where("LOWER(email) = LOWER(?) AND user_id IS NULL", email).
		Update("user_id", userID)
	return result.RowsAffected, result.Error
}

func (r *studentRepo) Delete(ctx context.Context, id string, deletedBy string) error {
	return r.db.WithContext(ctx).
		Model(&model.Student{}).
		Where("student_id = ?", id).
		Updates(map[string]interface{}{
			"deleted_by": deletedBy,
			"deleted_at": gorm.Expr("NOW()"),
		}).Error
}
