package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type paymentRepository interface {
	List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error)
	FindByID(ctx context.Context, id string) (*models.Payment, error)
	CreateAndRecompute(ctx context.Context, payment *models.Payment) (*models.StudentBalance, error)
	VoidAndRecompute(ctx context.Context, payment *models.Payment, reason string) (*models.StudentBalance, error)
}

type paymentBalanceLedger interface {
	GetOrInitialize(ctx context.Context, studentID, termID string) (*models.StudentBalance, error)
	CarryForward(ctx context.Context, studentID, fromTermID string) error
}

type alumniConverter interface {
	SettleIfCleared(ctx context.Context, studentID string) (bool, error)
}

// PaymentServiceParams groups constructor dependencies.
type PaymentServiceParams struct {
	Payments  paymentRepository
	Students  studentLookup
	Vaults    vaultLookup
	Balances  paymentBalanceLedger
	Alumni    alumniConverter
	Cache     cacheInvalidator
	Metrics   *MetricsService
	Validator *validator.Validate
	Logger    *zap.Logger
}

// PaymentService records and reverses payments against term balances.
type PaymentService struct {
	payments  paymentRepository
	students  studentLookup
	vaults    vaultLookup
	balances  paymentBalanceLedger
	alumni    alumniConverter
	cache     cacheInvalidator
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPaymentService constructs PaymentService.
func NewPaymentService(params PaymentServiceParams) *PaymentService {
	validate := params.Validator
	if validate == nil {
		validate = validator.New()
	}
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PaymentService{
		payments:  params.Payments,
		students:  params.Students,
		vaults:    params.Vaults,
		balances:  params.Balances,
		alumni:    params.Alumni,
		cache:     params.Cache,
		metrics:   params.Metrics,
		validator: validate,
		logger:    logger,
	}
}

// List returns payments with pagination metadata.
func (s *PaymentService) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	payments, total, err := s.payments.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	return payments, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a single payment.
func (s *PaymentService) Get(ctx context.Context, id string) (*models.Payment, error) {
	payment, err := s.payments.FindByID(ctx, id)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "payment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load payment")
	}
	return payment, nil
}

// Record posts a payment to the student's term balance and re-aggregates amount_paid.
func (s *PaymentService) Record(ctx context.Context, req dto.RecordPaymentRequest) (*dto.PaymentReceipt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid payment payload")
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

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if student.IsArchived {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "archived students cannot receive payments")
	}
	if err := s.ensureNotVaulted(ctx, student.ID); err != nil {
		return nil, err
	}

	if _, err := s.balances.GetOrInitialize(ctx, student.ID, req.TermID); err != nil {
		return nil, err
	}

	payment := &models.Payment{
		StudentID:  student.ID,
		TermID:     req.TermID,
		Amount:     req.Amount,
		Method:     req.Method,
		Reference:  req.Reference,
		ReceivedBy: req.ReceivedBy,
	}
	if req.PaidAt != nil {
		payment.PaidAt = req.PaidAt.UTC()
	}
	balance, err := s.payments.CreateAndRecompute(ctx, payment)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record payment")
	}
	s.metrics.RecordPayment(payment.Method)
	s.logger.Info("payment recorded",
		zap.String("payment_id", payment.ID),
		zap.String("student_id", student.ID),
		zap.String("term_id", payment.TermID),
		zap.String("amount", payment.Amount.StringFixed(2)),
		zap.String("balance", balance.CurrentBalance.StringFixed(2)))

	receipt := &dto.PaymentReceipt{Payment: *payment, Balance: *balance}
	s.afterLedgerChange(ctx, student.ID, payment.TermID, student, receipt)
	return receipt, nil
}

// Void reverses a payment and re-aggregates the balance it was posted to.
func (s *PaymentService) Void(ctx context.Context, id string, req dto.VoidPaymentRequest) (*dto.PaymentReceipt, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid void payload")
	}
	payment, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if payment.Voided() {
		return nil, appErrors.Clone(appErrors.ErrConflict, "payment already voided")
	}
	if s.vaults != nil {
		vault, err := s.vaults.FindByStudent(ctx, payment.StudentID)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load vault")
		}
		if vault != nil && vault.SettlementPaymentID != nil && *vault.SettlementPaymentID == payment.ID {
			return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "vault settlement payments cannot be voided")
		}
	}

	balance, err := s.payments.VoidAndRecompute(ctx, payment, req.Reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "payment already voided")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to void payment")
	}
	s.metrics.RecordVoid()
	s.logger.Info("payment voided", zap.String("payment_id", payment.ID), zap.String("reason", req.Reason))

	receipt := &dto.PaymentReceipt{Payment: *payment, Balance: *balance}
	s.afterLedgerChange(ctx, payment.StudentID, payment.TermID, nil, receipt)
	return receipt, nil
}

// afterLedgerChange runs the follow-ups of a committed ledger write. Failures are only logged
// since the payment row is already committed.
func (s *PaymentService) afterLedgerChange(ctx context.Context, studentID, termID string, student *models.StudentDetail, receipt *dto.PaymentReceipt) {
	if err := s.balances.CarryForward(ctx, studentID, termID); err != nil {
		s.logger.Error("carry forward failed", zap.String("student_id", studentID), zap.String("term_id", termID), zap.Error(err))
	}
	if student != nil && student.Status == models.StudentStatusGraduated && s.alumni != nil {
		converted, err := s.alumni.SettleIfCleared(ctx, student.ID)
		if err != nil {
			s.logger.Error("alumni conversion failed", zap.String("student_id", student.ID), zap.Error(err))
		}
		receipt.AlumniConverted = converted
	}
	if s.cache != nil {
		_ = s.cache.Invalidate(ctx, arrearsCachePattern)
	}
}

func (s *PaymentService) ensureNotVaulted(ctx context.Context, studentID string) error {
	if s.vaults == nil {
		return nil
	}
	vault, err := s.vaults.FindByStudent(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load vault")
	}
	if !vault.Settled() {
		return appErrors.Clone(appErrors.ErrVaultHeld, "arrears are frozen in the vault; pay the exact vault balance instead")
	}
	return nil
}
