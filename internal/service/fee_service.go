package service

import (
	"context"
	"database/sql"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/pkg/database"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type feeRepository interface {
	ListByTerm(ctx context.Context, termID string) ([]models.TermFee, error)
	FindByTermAndGrade(ctx context.Context, termID string, grade int) (*models.TermFee, error)
	CountPayments(ctx context.Context, termID string, grade int) (int, error)
	Create(ctx context.Context, fee *models.TermFee) error
	UpdateAmount(ctx context.Context, fee *models.TermFee) (int64, error)
}

type gradeBalanceLister interface {
	ListStudentIDsByTermAndGrade(ctx context.Context, termID string, grade int) ([]string, error)
}

type arrearsCarrier interface {
	CarryForward(ctx context.Context, studentID, fromTermID string) error
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context, patterns ...string) error
}

// FeeServiceParams groups constructor dependencies.
type FeeServiceParams struct {
	Fees      feeRepository
	Terms     termLookup
	Balances  gradeBalanceLister
	Carrier   arrearsCarrier
	Cache     cacheInvalidator
	Validator *validator.Validate
	Logger    *zap.Logger
}

// FeeService manages the per-grade fee schedule of each term.
type FeeService struct {
	fees      feeRepository
	terms     termLookup
	balances  gradeBalanceLister
	carrier   arrearsCarrier
	cache     cacheInvalidator
	validator *validator.Validate
	logger    *zap.Logger
}

// NewFeeService constructs FeeService.
func NewFeeService(params FeeServiceParams) *FeeService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeeService{
		fees:      params.Fees,
		terms:     params.Terms,
		balances:  params.Balances,
		carrier:   params.Carrier,
		cache:     params.Cache,
		validator: validate,
		logger:    logger,
	}
}

// List returns the fee schedule of a term.
func (s *FeeService) List(ctx context.Context, termID string) ([]models.TermFee, error) {
	if _, err := s.loadTerm(ctx, termID); err != nil {
		return nil, err
	}
	fees, err := s.fees.ListByTerm(ctx, termID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list fees")
	}
	return fees, nil
}

// Set creates or changes the fee for a grade. Once payments exist for the term and grade the
// amount is locked; otherwise existing balances are re-billed and arrears carried forward.
func (s *FeeService) Set(ctx context.Context, termID string, req dto.SetFeeRequest) (*dto.SetFeeResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid fee payload")
	}
	if req.Amount.IsNegative() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fee amount cannot be negative")
	}
	if !models.WholeCents(req.Amount) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "fee amount cannot have more than two decimal places")
	}
	term, err := s.loadTerm(ctx, termID)
	if err != nil {
		return nil, err
	}

	fee, err := s.fees.FindByTermAndGrade(ctx, term.ID, req.Grade)
	created := false
	switch {
	case err == sql.ErrNoRows:
		fee = &models.TermFee{TermID: term.ID, Grade: req.Grade, Amount: req.Amount}
		created = true
	case err != nil:
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load fee")
	case fee.Amount.Equal(req.Amount):
		return &dto.SetFeeResponse{Fee: *fee}, nil
	}

	payments, err := s.fees.CountPayments(ctx, term.ID, req.Grade)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check fee payments")
	}
	if payments > 0 {
		return nil, appErrors.Clone(appErrors.ErrFeeLocked, "payments already recorded for this term and grade")
	}

	if created {
		if err := s.fees.Create(ctx, fee); err != nil {
			if database.IsUniqueViolation(err) {
				return nil, appErrors.Clone(appErrors.ErrConflict, "fee already configured for grade")
			}
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create fee")
		}
	}
	fee.Amount = req.Amount
	affected, err := s.fees.UpdateAmount(ctx, fee)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update fee")
	}

	if affected > 0 {
		if err := s.carryGrade(ctx, term.ID, req.Grade); err != nil {
			return nil, err
		}
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, arrearsCachePattern)
	}
	s.logger.Info("term fee set",
		zap.String("term_id", term.ID),
		zap.Int("grade", req.Grade),
		zap.String("amount", fee.Amount.StringFixed(2)),
		zap.Int64("balances_affected", affected))
	return &dto.SetFeeResponse{Fee: *fee, Created: created, BalancesAffected: affected}, nil
}

func (s *FeeService) carryGrade(ctx context.Context, termID string, grade int) error {
	if s.balances == nil || s.carrier == nil {
		return nil
	}
	studentIDs, err := s.balances.ListStudentIDsByTermAndGrade(ctx, termID, grade)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list re-billed students")
	}
	for _, id := range studentIDs {
		if err := s.carrier.CarryForward(ctx, id, termID); err != nil {
			return err
		}
	}
	return nil
}

func (s *FeeService) loadTerm(ctx context.Context, id string) (*models.AcademicTerm, error) {
	term, err := s.terms.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}
