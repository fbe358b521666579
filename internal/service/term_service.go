package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type termRepository interface {
	List(ctx context.Context, filter models.TermFilter) ([]models.AcademicTerm, int, error)
	FindByID(ctx context.Context, id string) (*models.AcademicTerm, error)
	FindCurrent(ctx context.Context) (*models.AcademicTerm, error)
	FindByPosition(ctx context.Context, year, termNumber int) (*models.AcademicTerm, error)
	ExistsByPosition(ctx context.Context, year, termNumber int) (bool, error)
	Create(ctx context.Context, term *models.AcademicTerm) error
	SetCurrent(ctx context.Context, id string) error
	Delete(ctx context.Context, id string) error
	CountBalances(ctx context.Context, id string) (int, error)
}

type termBalanceInitializer interface {
	InitializeTerm(ctx context.Context, termID string) (*dto.TermInitializationResult, error)
}

// CreateTermRequest describes payload for creating academic terms.
type CreateTermRequest struct {
	Year       int       `json:"year" validate:"required,min=2000,max=2100"`
	TermNumber int       `json:"term_number" validate:"required,min=1,max=3"`
	StartDate  time.Time `json:"start_date" validate:"required"`
	EndDate    time.Time `json:"end_date" validate:"required"`
}

// TermService orchestrates term workflows.
type TermService struct {
	repo      termRepository
	balances  termBalanceInitializer
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTermService creates a new term service instance.
func NewTermService(repo termRepository, balances termBalanceInitializer, validate *validator.Validate, logger *zap.Logger) *TermService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TermService{repo: repo, balances: balances, validator: validate, logger: logger}
}

// List returns paginated terms.
func (s *TermService) List(ctx context.Context, filter models.TermFilter) ([]models.AcademicTerm, *models.Pagination, error) {
	terms, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list terms")
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	pagination := &models.Pagination{
		Page:       page,
		PageSize:   size,
		TotalCount: total,
	}
	return terms, pagination, nil
}

// Get returns a term by ID.
func (s *TermService) Get(ctx context.Context, id string) (*models.AcademicTerm, error) {
	term, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}

// GetCurrent returns the current term.
func (s *TermService) GetCurrent(ctx context.Context) (*models.AcademicTerm, error) {
	term, err := s.repo.FindCurrent(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "no current term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load current term")
	}
	return term, nil
}

// Previous returns the term immediately before the given one, or nil when it was never created.
func (s *TermService) Previous(ctx context.Context, term *models.AcademicTerm) (*models.AcademicTerm, error) {
	year, number := term.PreviousPosition()
	previous, err := s.repo.FindByPosition(ctx, year, number)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load previous term")
	}
	return previous, nil
}

// Create adds a new term ensuring uniqueness and date validation.
func (s *TermService) Create(ctx context.Context, req CreateTermRequest) (*models.AcademicTerm, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid term payload")
	}
	if !req.StartDate.Before(req.EndDate) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "start_date must be before end_date")
	}

	exists, err := s.repo.ExistsByPosition(ctx, req.Year, req.TermNumber)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check term uniqueness")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "term already exists for year and term number")
	}

	term := &models.AcademicTerm{
		Year:       req.Year,
		TermNumber: req.TermNumber,
		StartDate:  req.StartDate,
		EndDate:    req.EndDate,
	}
	if err := s.repo.Create(ctx, term); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create term")
	}
	return term, nil
}

// Activate marks the term current and opens a balance row for every active student.
func (s *TermService) Activate(ctx context.Context, id string) (*dto.TermActivationResponse, error) {
	term, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.repo.SetCurrent(ctx, term.ID); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to activate term")
	}
	term.IsCurrent = true

	resp := &dto.TermActivationResponse{Term: *term, Balances: dto.TermInitializationResult{TermID: term.ID}}
	if s.balances == nil {
		return resp, nil
	}
	result, err := s.balances.InitializeTerm(ctx, term.ID)
	if err != nil {
		s.logger.Error("failed to initialize balances after activation", zap.String("term_id", term.ID), zap.Error(err))
		return nil, err
	}
	resp.Balances = *result
	return resp, nil
}

// Delete removes a term that is not current and carries no balances.
func (s *TermService) Delete(ctx context.Context, id string) error {
	term, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if term.IsCurrent {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "cannot delete current term")
	}

	count, err := s.repo.CountBalances(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check term dependencies")
	}
	if count > 0 {
		return appErrors.Clone(appErrors.ErrPreconditionFailed, "term has balances recorded")
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete term")
	}
	return nil
}
