package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bursary-api/internal/models"
)

const balanceColumns = `b.id, b.student_id, b.term_id, b.grade, b.term_fee, b.previous_arrears, b.amount_paid, b.current_balance, b.created_at, b.updated_at`

// ArrearsUpdate rewrites the carried-forward arrears of one balance row.
type ArrearsUpdate struct {
	BalanceID       string
	PreviousArrears decimal.Decimal
}

// BalanceRepository persists the per (student, term) balance ledger.
type BalanceRepository struct {
	db *sqlx.DB
}

// NewBalanceRepository constructs a BalanceRepository.
func NewBalanceRepository(db *sqlx.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// FindByStudentAndTerm loads the balance row for a student in a term.
func (r *BalanceRepository) FindByStudentAndTerm(ctx context.Context, studentID, termID string) (*models.StudentBalance, error) {
	query := `SELECT ` + balanceColumns + ` FROM student_balances b WHERE b.student_id = $1 AND b.term_id = $2`
	var balance models.StudentBalance
	if err := r.db.GetContext(ctx, &balance, query, studentID, termID); err != nil {
		return nil, err
	}
	return &balance, nil
}

// FindLatestBefore returns the student's most recent balance for a term strictly before (year, termNumber).
func (r *BalanceRepository) FindLatestBefore(ctx context.Context, studentID string, year, termNumber int) (*models.TermBalance, error) {
	query := `SELECT ` + balanceColumns + `, t.year, t.term_number
        FROM student_balances b
        JOIN academic_terms t ON t.id = b.term_id
        WHERE b.student_id = $1 AND (t.year < $2 OR (t.year = $2 AND t.term_number < $3))
        ORDER BY t.year DESC, t.term_number DESC LIMIT 1`
	var balance models.TermBalance
	if err := r.db.GetContext(ctx, &balance, query, studentID, year, termNumber); err != nil {
		return nil, err
	}
	return &balance, nil
}

// FindLatest returns the student's most recent balance row.
func (r *BalanceRepository) FindLatest(ctx context.Context, studentID string) (*models.TermBalance, error) {
	query := `SELECT ` + balanceColumns + `, t.year, t.term_number
        FROM student_balances b
        JOIN academic_terms t ON t.id = b.term_id
        WHERE b.student_id = $1
        ORDER BY t.year DESC, t.term_number DESC LIMIT 1`
	var balance models.TermBalance
	if err := r.db.GetContext(ctx, &balance, query, studentID); err != nil {
		return nil, err
	}
	return &balance, nil
}

// ListByStudent returns all balance rows of a student in chronological term order.
func (r *BalanceRepository) ListByStudent(ctx context.Context, studentID string) ([]models.TermBalance, error) {
	query := `SELECT ` + balanceColumns + `, t.year, t.term_number
        FROM student_balances b
        JOIN academic_terms t ON t.id = b.term_id
        WHERE b.student_id = $1
        ORDER BY t.year, t.term_number`
	var balances []models.TermBalance
	if err := r.db.SelectContext(ctx, &balances, query, studentID); err != nil {
		return nil, fmt.Errorf("list student balances: %w", err)
	}
	return balances, nil
}

// ListStudentIDsByTermAndGrade returns the active students whose balance row in the term was billed under the grade.
func (r *BalanceRepository) ListStudentIDsByTermAndGrade(ctx context.Context, termID string, grade int) ([]string, error) {
	const query = `SELECT b.student_id FROM student_balances b
        JOIN students s ON s.id = b.student_id
        WHERE b.term_id = $1 AND b.grade = $2 AND s.is_active = TRUE`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query, termID, grade); err != nil {
		return nil, fmt.Errorf("list term grade balances: %w", err)
	}
	return ids, nil
}

// Create inserts a new balance row. amount_paid starts at zero and current_balance is generated.
func (r *BalanceRepository) Create(ctx context.Context, balance *models.StudentBalance) error {
	if balance.ID == "" {
		balance.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if balance.CreatedAt.IsZero() {
		balance.CreatedAt = now
	}
	balance.UpdatedAt = now
	const query = `INSERT INTO student_balances (id, student_id, term_id, grade, term_fee, previous_arrears, amount_paid, created_at, updated_at)
        VALUES (:id, :student_id, :term_id, :grade, :term_fee, :previous_arrears, :amount_paid, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, balance); err != nil {
		return fmt.Errorf("create student balance: %w", err)
	}
	balance.Refresh()
	return nil
}

// ApplyArrears rewrites previous_arrears for the given rows in a single transaction.
func (r *BalanceRepository) ApplyArrears(ctx context.Context, updates []ArrearsUpdate) (err error) {
	if len(updates) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin arrears tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for _, u := range updates {
		if _, err = tx.ExecContext(ctx, `UPDATE student_balances SET previous_arrears = $2, updated_at = $3 WHERE id = $1`, u.BalanceID, u.PreviousArrears, now); err != nil {
			return fmt.Errorf("apply arrears: %w", err)
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit arrears tx: %w", err)
	}
	return nil
}

// ListArrears returns debtor lines (current_balance > 0) for a term.
func (r *BalanceRepository) ListArrears(ctx context.Context, termID string) ([]models.ArrearsEntry, error) {
	const query = `SELECT b.student_id, s.admission_number, s.first_name || ' ' || s.last_name AS student_name, c.name AS class_name, s.status,
        b.term_fee, b.previous_arrears, b.amount_paid, b.current_balance
        FROM student_balances b
        JOIN students s ON s.id = b.student_id
        LEFT JOIN classes c ON c.id = s.class_id
        WHERE b.term_id = $1 AND b.current_balance > 0
        ORDER BY b.current_balance DESC, s.admission_number`
	var entries []models.ArrearsEntry
	if err := r.db.SelectContext(ctx, &entries, query, termID); err != nil {
		return nil, fmt.Errorf("list arrears: %w", err)
	}
	return entries, nil
}
