package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/internal/repository"
	"github.com/noah-isme/bursary-api/pkg/database"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type balanceRepository interface {
	FindByStudentAndTerm(ctx context.Context, studentID, termID string) (*models.StudentBalance, error)
	FindLatestBefore(ctx context.Context, studentID string, year, termNumber int) (*models.TermBalance, error)
	FindLatest(ctx context.Context, studentID string) (*models.TermBalance, error)
	ListByStudent(ctx context.Context, studentID string) ([]models.TermBalance, error)
	Create(ctx context.Context, balance *models.StudentBalance) error
	ApplyArrears(ctx context.Context, updates []repository.ArrearsUpdate) error
}

type studentLookup interface {
	FindByID(ctx context.Context, id string) (*models.StudentDetail, error)
}

type billableStudentLister interface {
	ListBillable(ctx context.Context) ([]models.StudentDetail, error)
}

type termLookup interface {
	FindByID(ctx context.Context, id string) (*models.AcademicTerm, error)
}

type feeLookup interface {
	FindByTermAndGrade(ctx context.Context, termID string, grade int) (*models.TermFee, error)
}

type studentPaymentLister interface {
	ListByStudent(ctx context.Context, studentID string) ([]models.Payment, error)
}

type vaultLookup interface {
	FindByStudent(ctx context.Context, studentID string) (*models.ArrearsVault, error)
}

type balanceStudentRepository interface {
	studentLookup
	billableStudentLister
}

// BalanceServiceParams groups constructor dependencies.
type BalanceServiceParams struct {
	Balances balanceRepository
	Students balanceStudentRepository
	Terms    termLookup
	Fees     feeLookup
	Payments studentPaymentLister
	Vaults   vaultLookup
	Metrics  *MetricsService
	Logger   *zap.Logger
}

// BalanceService owns term balance initialization and arrears carry-forward.
type BalanceService struct {
	balances balanceRepository
	students balanceStudentRepository
	terms    termLookup
	fees     feeLookup
	payments studentPaymentLister
	vaults   vaultLookup
	metrics  *MetricsService
	logger   *zap.Logger
}

// NewBalanceService constructs the balance ledger service.
func NewBalanceService(params BalanceServiceParams) *BalanceService {
	logger := params.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BalanceService{
		balances: params.Balances,
		students: params.Students,
		terms:    params.Terms,
		fees:     params.Fees,
		payments: params.Payments,
		vaults:   params.Vaults,
		metrics:  params.Metrics,
		logger:   logger,
	}
}

// InitializeTermBalance returns the student's balance for the term, creating it on first use.
// An existing row is never charged twice. Inactive students get ErrNotBillable.
func (s *BalanceService) InitializeTermBalance(ctx context.Context, studentID, termID string) (*models.StudentBalance, error) {
	student, term, err := s.loadStudentAndTerm(ctx, studentID, termID)
	if err != nil {
		return nil, err
	}
	balance, _, err := s.initialize(ctx, student, term)
	return balance, err
}

// GetOrInitialize resolves the balance a payment should post to. Active students are billed on
// demand; inactive students may only pay into a row that already exists.
func (s *BalanceService) GetOrInitialize(ctx context.Context, studentID, termID string) (*models.StudentBalance, error) {
	student, term, err := s.loadStudentAndTerm(ctx, studentID, termID)
	if err != nil {
		return nil, err
	}
	if student.IsActive {
		balance, _, err := s.initialize(ctx, student, term)
		return balance, err
	}
	balance, err := s.balances.FindByStudentAndTerm(ctx, studentID, termID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotBillable, "inactive student has no balance for this term")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load balance")
	}
	return balance, nil
}

// ProjectTermBalance returns the existing balance or the row that would be created, without writing it.
func (s *BalanceService) ProjectTermBalance(ctx context.Context, studentID, termID string) (*models.StudentBalance, error) {
	student, term, err := s.loadStudentAndTerm(ctx, studentID, termID)
	if err != nil {
		return nil, err
	}
	existing, err := s.balances.FindByStudentAndTerm(ctx, student.ID, term.ID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load balance")
	}
	return s.draft(ctx, student, term)
}

// GetBalance looks up a balance without side effects for inactive students, who fall back to
// their latest existing row.
func (s *BalanceService) GetBalance(ctx context.Context, studentID, termID string) (*models.StudentBalance, error) {
	student, term, err := s.loadStudentAndTerm(ctx, studentID, termID)
	if err != nil {
		return nil, err
	}
	if student.IsActive {
		balance, _, err := s.initialize(ctx, student, term)
		return balance, err
	}
	balance, err := s.balances.FindByStudentAndTerm(ctx, studentID, termID)
	if err == nil {
		return balance, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load balance")
	}
	latest, err := s.balances.FindLatest(ctx, studentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student has no balance history")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load latest balance")
	}
	return &latest.StudentBalance, nil
}

// ListBalances returns every balance row of the student in term order.
func (s *BalanceService) ListBalances(ctx context.Context, studentID string) ([]models.TermBalance, error) {
	if _, err := s.loadStudent(ctx, studentID); err != nil {
		return nil, err
	}
	balances, err := s.balances.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list balances")
	}
	return balances, nil
}

// CalculateArrears returns the current balance of the student's latest row before the term, or zero.
// A negative value is a credit carried into the term.
func (s *BalanceService) CalculateArrears(ctx context.Context, studentID string, term *models.AcademicTerm) (decimal.Decimal, error) {
	previous, err := s.balances.FindLatestBefore(ctx, studentID, term.Year, term.TermNumber)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return decimal.Zero, nil
		}
		return decimal.Zero, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to calculate arrears")
	}
	return previous.CurrentBalance, nil
}

// CarryForward rewrites previous_arrears on every balance after fromTermID so each term
// inherits the closing balance of the one before it.
func (s *BalanceService) CarryForward(ctx context.Context, studentID, fromTermID string) error {
	balances, err := s.balances.ListByStudent(ctx, studentID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load balances")
	}
	from := -1
	for i := range balances {
		if balances[i].TermID == fromTermID {
			from = i
			break
		}
	}
	if from < 0 {
		return nil
	}
	updates := planCarryForward(balances, from)
	if len(updates) == 0 {
		return nil
	}
	if err := s.balances.ApplyArrears(ctx, updates); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to carry arrears forward")
	}
	s.logger.Debug("arrears carried forward", zap.String("student_id", studentID), zap.String("from_term_id", fromTermID), zap.Int("rows", len(updates)))
	return nil
}

// InitializeTerm opens a balance row for every active student in the term.
func (s *BalanceService) InitializeTerm(ctx context.Context, termID string) (*dto.TermInitializationResult, error) {
	term, err := s.loadTerm(ctx, termID)
	if err != nil {
		return nil, err
	}
	students, err := s.students.ListBillable(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list billable students")
	}

	result := &dto.TermInitializationResult{TermID: term.ID}
	for i := range students {
		student := &students[i]
		_, created, err := s.initialize(ctx, student, term)
		switch {
		case err == nil && created:
			result.Created++
		case err == nil:
			result.Existing++
		case isCode(err, appErrors.ErrNotBillable.Code):
			result.Skipped++
		default:
			result.Failed++
			s.logger.Error("initialize term balance", zap.String("student_id", student.ID), zap.String("term_id", term.ID), zap.Error(err))
		}
	}
	s.logger.Info("term balances initialized",
		zap.String("term_id", term.ID),
		zap.Int("created", result.Created),
		zap.Int("existing", result.Existing),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed))
	return result, nil
}

// Statement assembles the student's full ledger.
func (s *BalanceService) Statement(ctx context.Context, studentID string) (*dto.StudentStatement, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, err
	}
	balances, err := s.balances.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list balances")
	}
	payments, err := s.payments.ListByStudent(ctx, studentID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list payments")
	}

	statement := &dto.StudentStatement{Student: *student, Balances: balances, Payments: payments, Outstanding: decimal.Zero}
	if n := len(balances); n > 0 {
		statement.Outstanding = balances[n-1].CurrentBalance
	}
	if s.vaults != nil {
		vault, err := s.vaults.FindByStudent(ctx, studentID)
		switch {
		case err == nil:
			statement.Vault = vault
		case !errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load vault")
		}
	}
	return statement, nil
}

func (s *BalanceService) initialize(ctx context.Context, student *models.StudentDetail, term *models.AcademicTerm) (*models.StudentBalance, bool, error) {
	existing, err := s.balances.FindByStudentAndTerm(ctx, student.ID, term.ID)
	if err == nil {
		return existing, false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load balance")
	}
	if !student.IsActive {
		return nil, false, appErrors.Clone(appErrors.ErrNotBillable, "inactive students receive no new term fees")
	}

	balance, err := s.draft(ctx, student, term)
	if err != nil {
		return nil, false, err
	}
	if err := s.balances.Create(ctx, balance); err != nil {
		if database.IsUniqueViolation(err) {
			existing, findErr := s.balances.FindByStudentAndTerm(ctx, student.ID, term.ID)
			if findErr != nil {
				return nil, false, appErrors.Wrap(findErr, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload balance")
			}
			return existing, false, nil
		}
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create balance")
	}
	s.metrics.RecordBalancesInitialized(1)
	// Rows may already exist for later terms when an earlier term is opened late.
	if err := s.CarryForward(ctx, student.ID, term.ID); err != nil {
		return nil, false, err
	}
	return balance, true, nil
}

func (s *BalanceService) draft(ctx context.Context, student *models.StudentDetail, term *models.AcademicTerm) (*models.StudentBalance, error) {
	arrears, err := s.CalculateArrears(ctx, student.ID, term)
	if err != nil {
		return nil, err
	}
	fee, err := s.termFee(ctx, student, term)
	if err != nil {
		return nil, err
	}
	balance := &models.StudentBalance{
		StudentID:       student.ID,
		TermID:          term.ID,
		Grade:           student.ClassGrade,
		TermFee:         fee,
		PreviousArrears: arrears,
		AmountPaid:      decimal.Zero,
	}
	balance.Refresh()
	return balance, nil
}

func (s *BalanceService) termFee(ctx context.Context, student *models.StudentDetail, term *models.AcademicTerm) (decimal.Decimal, error) {
	if student.ClassGrade == nil {
		s.logger.Warn("student has no class, billing zero fee", zap.String("student_id", student.ID), zap.String("term_id", term.ID))
		return decimal.Zero, nil
	}
	fee, err := s.fees.FindByTermAndGrade(ctx, term.ID, *student.ClassGrade)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn("no fee configured for grade, billing zero fee", zap.String("term_id", term.ID), zap.Int("grade", *student.ClassGrade))
			return decimal.Zero, nil
		}
		return decimal.Zero, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term fee")
	}
	return fee.Amount, nil
}

func (s *BalanceService) loadStudentAndTerm(ctx context.Context, studentID, termID string) (*models.StudentDetail, *models.AcademicTerm, error) {
	student, err := s.loadStudent(ctx, studentID)
	if err != nil {
		return nil, nil, err
	}
	term, err := s.loadTerm(ctx, termID)
	if err != nil {
		return nil, nil, err
	}
	return student, term, nil
}

func (s *BalanceService) loadStudent(ctx context.Context, id string) (*models.StudentDetail, error) {
	student, err := s.students.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	return student, nil
}

func (s *BalanceService) loadTerm(ctx context.Context, id string) (*models.AcademicTerm, error) {
	term, err := s.terms.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}

// planCarryForward walks balances after index from and returns the rows whose
// previous_arrears no longer match the preceding row's closing balance.
func planCarryForward(balances []models.TermBalance, from int) []repository.ArrearsUpdate {
	var updates []repository.ArrearsUpdate
	closing := balances[from].Outstanding()
	for i := from + 1; i < len(balances); i++ {
		row := &balances[i]
		if !row.PreviousArrears.Equal(closing) {
			row.PreviousArrears = closing
			updates = append(updates, repository.ArrearsUpdate{BalanceID: row.ID, PreviousArrears: closing})
		}
		row.Refresh()
		closing = row.Outstanding()
	}
	return updates
}

func isCode(err error, code string) bool {
	var appErr *appErrors.Error
	return errors.As(err, &appErr) && appErr.Code == code
}
