package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/internal/repository"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type vaultRepository interface {
	List(ctx context.Context, filter models.VaultFilter) ([]models.ArrearsVault, int, error)
	FindByID(ctx context.Context, id string) (*models.ArrearsVault, error)
	FindByStudent(ctx context.Context, studentID string) (*models.ArrearsVault, error)
	Create(ctx context.Context, vault *models.ArrearsVault) error
	Settle(ctx context.Context, s repository.VaultSettlement) (*models.StudentBalance, error)
	CreateEscrow(ctx context.Context, escrow *models.VaultEscrow) error
	ListEscrows(ctx context.Context, vaultID string) ([]models.VaultEscrow, error)
}

// VaultServiceParams groups constructor dependencies.
type VaultServiceParams struct {
	Vaults    vaultRepository
	Students  studentLookup
	Latest    latestBalanceFinder
	Cache     cacheInvalidator
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// VaultService enforces the exact-amount settlement rule for frozen graduate arrears.
type VaultService struct {
	vaults    vaultRepository
	students  studentLookup
	latest    latestBalanceFinder
	cache     cacheInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewVaultService constructs VaultService.
func NewVaultService(params VaultServiceParams) *VaultService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &VaultService{
		vaults:    params.Vaults,
		students:  params.Students,
		latest:    params.Latest,
		cache:     params.Cache,
		metrics:   params.Metrics,
		validator: validate,
		logger:    logger,
	}
}

// List returns vaults with pagination metadata.
func (s *VaultService) List(ctx context.Context, filter models.VaultFilter) ([]models.ArrearsVault, *models.Pagination, error) {
	if filter.Status != "" && filter.Status != models.VaultStatusFrozen && filter.Status != models.VaultStatusSettled {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "unknown vault status")
	}
	vaults, total, err := s.vaults.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list vaults")
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	return vaults, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a vault by ID.
func (s *VaultService) Get(ctx context.Context, id string) (*models.ArrearsVault, error) {
	vault, err := s.vaults.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "vault not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load vault")
	}
	return vault, nil
}

// GetByStudent returns the vault of a student.
func (s *VaultService) GetByStudent(ctx context.Context, studentID string) (*models.ArrearsVault, error) {
	vault, err := s.vaults.FindByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no vault")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load vault")
	}
	return vault, nil
}

// ListEscrows returns rejected payments held against the vault.
func (s *VaultService) ListEscrows(ctx context.Context, vaultID string) ([]models.VaultEscrow, error) {
	if _, err := s.Get(ctx, vaultID); err != nil {
		return nil, err
	}
	escrows, err := s.vaults.ListEscrows(ctx, vaultID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list escrows")
	}
	return escrows, nil
}

// Freeze snapshots a graduated debtor's latest balance into a new vault.
func (s *VaultService) Freeze(ctx context.Context, req dto.FreezeVaultRequest) (*models.ArrearsVault, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid vault payload")
	}
	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.Status != models.StudentStatusGraduated || student.IsArchived {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "only graduated students with arrears can be frozen")
	}

	latest, err := s.latest.FindLatest(ctx, student.ID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student has no balance to freeze")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest balance")
	}
	if !latest.InDebt() {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student has no outstanding balance to freeze")
	}

	vault := &models.ArrearsVault{StudentID: student.ID, TermID: latest.TermID, FixedBalance: latest.CurrentBalance}
	if err := s.vaults.Create(ctx, vault); err != nil {
		if errors.Is(err, repository.ErrVaultExists) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "student already has a vault")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to freeze arrears")
	}
	s.logger.Info("arrears frozen", zap.String("vault_id", vault.ID), zap.String("student_id", student.ID), zap.String("fixed_balance", vault.FixedBalance.StringFixed(2)))
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, arrearsCachePattern)
	}
	return vault, nil
}

// Pay applies the binary acceptance rule. Only an amount equal to the frozen balance settles the
// vault; any other amount is returned as a rejected result and optionally escrowed.
func (s *VaultService) Pay(ctx context.Context, vaultID string, req dto.VaultPaymentRequest) (*dto.VaultPaymentResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid vault payment payload")
	}
	if !req.Amount.IsPositive() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment amount must be greater than zero")
	}
	if !models.WholeCents(req.Amount) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "payment amount cannot have more than two decimal places")
	}
	if !req.Method.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unsupported payment method")
	}

	vault, err := s.Get(ctx, vaultID)
	if err != nil {
		return nil, err
	}
	if vault.Settled() {
		return nil, appErrors.Clone(appErrors.ErrVaultSettled, "")
	}

	if !vault.Accepts(req.Amount) {
		return s.reject(ctx, vault, req)
	}

	detail, err := s.students.FindByID(ctx, vault.StudentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load vault student")
	}
	if !detail.Status.CanTransitionTo(models.StudentStatusAlumni) {
		return nil, appErrors.Clone(appErrors.ErrStatusTransition, "vault student is not a graduate")
	}
	student := detail.Student
	student.Status = models.StudentStatusAlumni
	student.IsActive = false
	student.IsArchived = true

	payment := &models.Payment{
		StudentID:  vault.StudentID,
		TermID:     vault.TermID,
		Amount:     req.Amount,
		Method:     req.Method,
		Reference:  req.Reference,
		ReceivedBy: req.ReceivedBy,
	}
	balance, err := s.vaults.Settle(ctx, repository.VaultSettlement{Vault: vault, Payment: payment, Student: &student})
	if err != nil {
		if errors.Is(err, repository.ErrVaultNotFrozen) {
			return nil, appErrors.Clone(appErrors.ErrVaultSettled, "")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to settle vault")
	}

	s.metrics.RecordVaultPayment(VaultOutcomeSettled)
	s.metrics.RecordPayment(payment.Method)
	s.metrics.RecordGraduation(models.StudentStatusAlumni)
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, arrearsCachePattern)
	}
	s.logger.Info("vault settled", zap.String("vault_id", vault.ID), zap.String("student_id", vault.StudentID), zap.String("payment_id", payment.ID))

	return &dto.VaultPaymentResult{
		Accepted:      true,
		Vault:         *vault,
		Payment:       payment,
		Balance:       balance,
		StudentStatus: student.Status,
	}, nil
}

func (s *VaultService) reject(ctx context.Context, vault *models.ArrearsVault, req dto.VaultPaymentRequest) (*dto.VaultPaymentResult, error) {
	result := &dto.VaultPaymentResult{
		Accepted: false,
		Reason:   fmt.Sprintf("payment of %s does not equal the frozen balance of %s", req.Amount.StringFixed(2), vault.FixedBalance.StringFixed(2)),
		Vault:    *vault,
	}
	outcome := VaultOutcomeRejected
	if req.Escrow {
		escrow := &models.VaultEscrow{VaultID: vault.ID, Amount: req.Amount, Reference: req.Reference}
		if err := s.vaults.CreateEscrow(ctx, escrow); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to escrow payment")
		}
		result.Escrow = escrow
		outcome = VaultOutcomeEscrowed
	}
	s.metrics.RecordVaultPayment(outcome)
	s.logger.Info("vault payment rejected",
		zap.String("vault_id", vault.ID),
		zap.String("amount", req.Amount.StringFixed(2)),
		zap.Bool("escrowed", req.Escrow))
	return result, nil
}
