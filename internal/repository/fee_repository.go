package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bursary-api/internal/models"
)

// FeeRepository persists per-term, per-grade fee configuration.
type FeeRepository struct {
	db *sqlx.DB
}

// NewFeeRepository constructs a FeeRepository.
func NewFeeRepository(db *sqlx.DB) *FeeRepository {
	return &FeeRepository{db: db}
}

// ListByTerm returns every configured fee for the term ordered by grade.
func (r *FeeRepository) ListByTerm(ctx context.Context, termID string) ([]models.TermFee, error) {
	const query = `SELECT id, term_id, grade, amount, created_at, updated_at FROM term_fees WHERE term_id = $1 ORDER BY grade`
	var fees []models.TermFee
	if err := r.db.SelectContext(ctx, &fees, query, termID); err != nil {
		return nil, fmt.Errorf("list term fees: %w", err)
	}
	return fees, nil
}

// FindByTermAndGrade loads the fee for a grade in a term.
func (r *FeeRepository) FindByTermAndGrade(ctx context.Context, termID string, grade int) (*models.TermFee, error) {
	const query = `SELECT id, term_id, grade, amount, created_at, updated_at FROM term_fees WHERE term_id = $1 AND grade = $2`
	var fee models.TermFee
	if err := r.db.GetContext(ctx, &fee, query, termID, grade); err != nil {
		return nil, err
	}
	return &fee, nil
}

// CountPayments returns the number of live payments made in the term against balances billed under the grade.
func (r *FeeRepository) CountPayments(ctx context.Context, termID string, grade int) (int, error) {
	const query = `SELECT COUNT(*) FROM payments p
        JOIN student_balances b ON b.student_id = p.student_id AND b.term_id = p.term_id
        WHERE p.term_id = $1 AND b.grade = $2 AND p.voided_at IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, termID, grade); err != nil {
		return 0, fmt.Errorf("count fee payments: %w", err)
	}
	return count, nil
}

// Create inserts a new fee row.
func (r *FeeRepository) Create(ctx context.Context, fee *models.TermFee) error {
	if fee.ID == "" {
		fee.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if fee.CreatedAt.IsZero() {
		fee.CreatedAt = now
	}
	fee.UpdatedAt = now
	const query = `INSERT INTO term_fees (id, term_id, grade, amount, created_at, updated_at) VALUES (:id, :term_id, :grade, :amount, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, fee); err != nil {
		return fmt.Errorf("create term fee: %w", err)
	}
	return nil
}

// UpdateAmount changes the fee and propagates it to the balance rows of active students billed
// under that term and grade. Rows of graduated, expelled or alumni students keep their fee.
// It returns the number of balance rows touched.
func (r *FeeRepository) UpdateAmount(ctx context.Context, fee *models.TermFee) (affected int64, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin fee update tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	fee.UpdatedAt = time.Now().UTC()
	if _, err = tx.ExecContext(ctx, `UPDATE term_fees SET amount = $2, updated_at = $3 WHERE id = $1`, fee.ID, fee.Amount, fee.UpdatedAt); err != nil {
		return 0, fmt.Errorf("update term fee: %w", err)
	}

	const syncQuery = `UPDATE student_balances b SET term_fee = $1, updated_at = $2
        FROM students s
        WHERE b.student_id = s.id AND b.term_id = $3 AND b.grade = $4 AND s.is_active = TRUE`
	res, err := tx.ExecContext(ctx, syncQuery, fee.Amount, fee.UpdatedAt, fee.TermID, fee.Grade)
	if err != nil {
		return 0, fmt.Errorf("sync balance fees: %w", err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("sync balance fees rows: %w", err)
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit fee update tx: %w", err)
	}
	return affected, nil
}
