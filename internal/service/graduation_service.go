package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type graduationStudentRepository interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
	ListGraduationCandidates(ctx context.Context, grade int) ([]models.StudentDetail, error)
	ListGraduatedDebtors(ctx context.Context) ([]models.StudentDetail, error)
	Graduate(ctx context.Context, student *models.Student, vault *models.ArrearsVault) error
	UpdateStatus(ctx context.Context, student *models.Student) error
}

type graduationBalanceSource interface {
	InitializeTermBalance(ctx context.Context, studentID, termID string) (*models.StudentBalance, error)
	ProjectTermBalance(ctx context.Context, studentID, termID string) (*models.StudentBalance, error)
}

type latestBalanceFinder interface {
	FindLatest(ctx context.Context, studentID string) (*models.TermBalance, error)
}

// GraduationConfig tunes the graduation sweep.
type GraduationConfig struct {
	Grade         int
	FreezeDebtors bool
}

// GraduationServiceParams groups constructor dependencies.
type GraduationServiceParams struct {
	Students  graduationStudentRepository
	Terms     termLookup
	Balances  graduationBalanceSource
	Latest    latestBalanceFinder
	Cache     cacheInvalidator
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
	Config    GraduationConfig
}

// GraduationService converts final-grade students to graduates and cleared graduates to alumni.
type GraduationService struct {
	students  graduationStudentRepository
	terms     termLookup
	balances  graduationBalanceSource
	latest    latestBalanceFinder
	cache     cacheInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	cfg       GraduationConfig
	now       func() time.Time
}

// NewGraduationService constructs GraduationService.
func NewGraduationService(params GraduationServiceParams) *GraduationService {
	cfg := params.Config
	if cfg.Grade <= 0 {
		cfg.Grade = 7
	}
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GraduationService{
		students:  params.Students,
		terms:     params.Terms,
		balances:  params.Balances,
		latest:    params.Latest,
		cache:     params.Cache,
		metrics:   params.Metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Graduate runs the sweep for the graduating grade in the final term of a year. Every student is
// written in its own transaction and a failure is reported on that student's outcome only.
func (s *GraduationService) Graduate(ctx context.Context, req dto.GraduationRequest) (*dto.GraduationResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid graduation payload")
	}
	term, err := s.terms.FindByID(ctx, req.TermID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	if !term.IsFinal() {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("graduation runs only in the final term of a year, %s is not", term.Label()))
	}

	freeze := s.cfg.FreezeDebtors
	if req.FreezeDebtors != nil {
		freeze = *req.FreezeDebtors
	}

	candidates, err := s.students.ListGraduationCandidates(ctx, s.cfg.Grade)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list graduation candidates")
	}

	result := &dto.GraduationResult{TermID: term.ID, Grade: s.cfg.Grade, DryRun: req.DryRun, Outcomes: make([]dto.GraduationOutcome, 0, len(candidates))}
	for i := range candidates {
		outcome := s.graduateOne(ctx, &candidates[i], term, req.DryRun, freeze)
		switch {
		case outcome.Error != "":
			result.Failed++
		case outcome.Archived:
			result.Cleared++
		default:
			result.Debtors++
			if outcome.Frozen {
				result.Frozen++
			}
		}
		result.Outcomes = append(result.Outcomes, outcome)
	}

	if !req.DryRun && s.cache != nil {
		_ = s.cache.Invalidate(ctx, arrearsCachePattern)
	}
	s.logger.Info("graduation sweep finished",
		zap.String("term_id", term.ID),
		zap.Bool("dry_run", req.DryRun),
		zap.Int("cleared", result.Cleared),
		zap.Int("debtors", result.Debtors),
		zap.Int("frozen", result.Frozen),
		zap.Int("failed", result.Failed))
	return result, nil
}

func (s *GraduationService) graduateOne(ctx context.Context, candidate *models.StudentDetail, term *models.AcademicTerm, dryRun, freeze bool) dto.GraduationOutcome {
	outcome := dto.GraduationOutcome{
		StudentID:       candidate.ID,
		AdmissionNumber: candidate.AdmissionNumber,
		StudentName:     candidate.FullName(),
		Status:          candidate.Status,
	}

	var (
		balance *models.StudentBalance
		err     error
	)
	if dryRun {
		balance, err = s.balances.ProjectTermBalance(ctx, candidate.ID, term.ID)
	} else {
		balance, err = s.balances.InitializeTermBalance(ctx, candidate.ID, term.ID)
	}
	if err != nil {
		outcome.Error = err.Error()
		s.logger.Warn("graduation balance lookup failed", zap.String("student_id", candidate.ID), zap.Error(err))
		return outcome
	}

	outstanding := balance.Outstanding()
	outcome.Balance = outstanding
	if !candidate.Status.CanTransitionTo(models.StudentStatusGraduated) {
		outcome.Error = "status " + string(candidate.Status) + " cannot graduate"
		return outcome
	}

	graduatedAt := s.now().UTC()
	student := candidate.Student
	student.Status = models.StudentStatusGraduated
	student.IsActive = false
	student.IsArchived = !balance.InDebt()
	student.GraduatedAt = &graduatedAt

	var vault *models.ArrearsVault
	if outstanding.IsPositive() && freeze {
		vault = &models.ArrearsVault{StudentID: student.ID, TermID: term.ID, FixedBalance: outstanding}
	}

	outcome.Status = student.Status
	outcome.Archived = student.IsArchived
	outcome.Frozen = vault != nil
	if dryRun {
		return outcome
	}

	if err := s.students.Graduate(ctx, &student, vault); err != nil {
		outcome.Status = candidate.Status
		outcome.Archived = candidate.IsArchived
		outcome.Frozen = false
		outcome.Error = err.Error()
		s.logger.Error("graduation failed", zap.String("student_id", student.ID), zap.Error(err))
		return outcome
	}
	if vault != nil {
		outcome.VaultID = &vault.ID
	}
	s.metrics.RecordGraduation(student.Status)
	return outcome
}

// SettleIfCleared converts a graduated debtor to ALUMNI once their latest balance is no longer positive.
func (s *GraduationService) SettleIfCleared(ctx context.Context, studentID string) (bool, error) {
	detail, err := s.students.FindByID(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return s.settle(ctx, detail)
}

// SweepCleared re-checks every graduated debtor and converts those whose balance was cleared.
func (s *GraduationService) SweepCleared(ctx context.Context) (*dto.AlumniSweepResult, error) {
	debtors, err := s.students.ListGraduatedDebtors(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list graduated debtors")
	}
	result := &dto.AlumniSweepResult{Checked: len(debtors), Converted: []string{}}
	for i := range debtors {
		converted, err := s.settle(ctx, &debtors[i])
		if err != nil {
			s.logger.Error("alumni conversion failed", zap.String("student_id", debtors[i].ID), zap.Error(err))
			continue
		}
		if converted {
			result.Converted = append(result.Converted, debtors[i].ID)
		}
	}
	return result, nil
}

func (s *GraduationService) settle(ctx context.Context, detail *models.StudentDetail) (bool, error) {
	if detail.Status != models.StudentStatusGraduated || detail.IsArchived {
		return false, nil
	}
	latest, err := s.latest.FindLatest(ctx, detail.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest balance")
	}
	if latest != nil && latest.InDebt() {
		return false, nil
	}

	student := detail.Student
	student.Status = models.StudentStatusAlumni
	student.IsActive = false
	student.IsArchived = true
	if err := s.students.UpdateStatus(ctx, &student); err != nil {
		return false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to convert student to alumni")
	}
	s.metrics.RecordGraduation(models.StudentStatusAlumni)
	s.logger.Info("graduate converted to alumni", zap.String("student_id", student.ID))
	return true, nil
}
