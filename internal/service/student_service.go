package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type studentRepository interface {
	List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, int, error)
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ExistsByAdmissionNumber(ctx context.Context, number string, excludeID string) (bool, error)
	Create(ctx context.Context, student *models.Student) error
	Update(ctx context.Context, student *models.Student) error
	UpdateClass(ctx context.Context, id string, classID *string) error
	UpdateStatus(ctx context.Context, student *models.Student) error
}

type classLookup interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// EnrollStudentRequest holds payload for enrolling students.
type EnrollStudentRequest struct {
	AdmissionNumber string     `json:"admission_number" validate:"required,max=32"`
	FirstName       string     `json:"first_name" validate:"required,max=64"`
	LastName        string     `json:"last_name" validate:"max=64"`
	Gender          string     `json:"gender" validate:"omitempty,oneof=M F"`
	BirthDate       *time.Time `json:"birth_date"`
	ClassID         *string    `json:"class_id"`
}

// UpdateStudentRequest holds payload for updating student profile fields.
type UpdateStudentRequest struct {
	AdmissionNumber string     `json:"admission_number" validate:"required,max=32"`
	FirstName       string     `json:"first_name" validate:"required,max=64"`
	LastName        string     `json:"last_name" validate:"max=64"`
	Gender          string     `json:"gender" validate:"omitempty,oneof=M F"`
	BirthDate       *time.Time `json:"birth_date"`
}

// AssignClassRequest moves a student into a class.
type AssignClassRequest struct {
	ClassID string `json:"class_id" validate:"required"`
}

// StudentService handles student use-cases.
type StudentService struct {
	repo      studentRepository
	classes   classLookup
	validator *validator.Validate
	logger    *zap.Logger
}

// NewStudentService constructs the student service.
func NewStudentService(repo studentRepository, classes classLookup, validate *validator.Validate, logger *zap.Logger) *StudentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StudentService{repo: repo, classes: classes, validator: validate, logger: logger}
}

// List returns students and pagination metadata.
func (s *StudentService) List(ctx context.Context, filter models.StudentFilter) ([]models.StudentDetail, *models.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown student status")
	}
	students, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list students")
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return students, pagination, nil
}

// Get returns detailed student information.
func (s *StudentService) Get(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

// Enroll registers a new student with status ENROLLED.
func (s *StudentService) Enroll(ctx context.Context, req EnrollStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	exists, err := s.repo.ExistsByAdmissionNumber(ctx, req.AdmissionNumber, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate admission number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "admission number already used")
	}
	if req.ClassID != nil && *req.ClassID != "" {
		if _, err := s.loadClass(ctx, *req.ClassID); err != nil {
			return nil, err
		}
	} else {
		req.ClassID = nil
	}

	student := &models.Student{
		AdmissionNumber: req.AdmissionNumber,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Gender:          req.Gender,
		BirthDate:       req.BirthDate,
		ClassID:         req.ClassID,
		Status:          models.StudentStatusEnrolled,
		IsActive:        true,
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create student")
	}
	s.logger.Info("student enrolled", zap.String("student_id", student.ID), zap.String("admission_number", student.AdmissionNumber))
	return s.Get(ctx, student.ID)
}

// Update modifies profile fields. Lifecycle flags are never touched here.
func (s *StudentService) Update(ctx context.Context, id string, req UpdateStudentRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid student payload")
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	exists, err := s.repo.ExistsByAdmissionNumber(ctx, req.AdmissionNumber, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to validate admission number")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "admission number already used")
	}

	student := detail.Student
	student.AdmissionNumber = req.AdmissionNumber
	student.FirstName = req.FirstName
	student.LastName = req.LastName
	student.Gender = req.Gender
	student.BirthDate = req.BirthDate
	if err := s.repo.Update(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	detail.Student = student
	return detail, nil
}

// AssignClass places an in-school student into a class.
func (s *StudentService) AssignClass(ctx context.Context, id string, req AssignClassRequest) (*models.StudentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class assignment payload")
	}
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !detail.Status.InSchool() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only enrolled or active students can change class")
	}
	class, err := s.loadClass(ctx, req.ClassID)
	if err != nil {
		return nil, err
	}
	if err := s.repo.UpdateClass(ctx, id, &class.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to assign class")
	}
	detail.ClassID = &class.ID
	detail.ClassName = &class.Name
	grade := class.Grade
	detail.ClassGrade = &grade
	return detail, nil
}

// Activate moves an enrolled student to ACTIVE.
func (s *StudentService) Activate(ctx context.Context, id string) (*models.StudentDetail, error) {
	return s.transition(ctx, id, models.StudentStatusActive, func(student *models.Student) {
		student.IsActive = true
	})
}

// Expel removes a student from billing permanently.
func (s *StudentService) Expel(ctx context.Context, id string) (*models.StudentDetail, error) {
	return s.transition(ctx, id, models.StudentStatusExpelled, func(student *models.Student) {
		student.IsActive = false
	})
}

func (s *StudentService) transition(ctx context.Context, id string, next models.StudentStatus, apply func(*models.Student)) (*models.StudentDetail, error) {
	detail, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !detail.Status.CanTransitionTo(next) {
		return nil, appErrors.Clone(appErrors.ErrStatusTransition, "cannot move student from "+string(detail.Status)+" to "+string(next))
	}
	student := detail.Student
	student.Status = next
	apply(&student)
	if err := s.repo.UpdateStatus(ctx, &student); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student status")
	}
	s.logger.Info("student status changed", zap.String("student_id", id), zap.String("from", string(detail.Status)), zap.String("to", string(next)))
	detail.Student = student
	return detail, nil
}

func (s *StudentService) loadClass(ctx context.Context, id string) (*models.Class, error) {
	class, err := s.classes.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	return class, nil
}
