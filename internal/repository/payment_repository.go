package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bursary-api/internal/models"
)

const paymentColumns = `id, student_id, term_id, amount, method, reference, received_by, paid_at, voided_at, void_reason, created_at`

// PaymentRepository persists the append-only payment ledger.
type PaymentRepository struct {
	db *sqlx.DB
}

// NewPaymentRepository constructs a PaymentRepository.
func NewPaymentRepository(db *sqlx.DB) *PaymentRepository {
	return &PaymentRepository{db: db}
}

// List returns payments matching the filter, newest first.
func (r *PaymentRepository) List(ctx context.Context, filter models.PaymentFilter) ([]models.Payment, int, error) {
	base := "FROM payments WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.TermID != "" {
		conditions = append(conditions, fmt.Sprintf("term_id = $%d", len(args)+1))
		args = append(args, filter.TermID)
	}
	if !filter.IncludeVoided {
		conditions = append(conditions, "voided_at IS NULL")
	}
	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size
	query := fmt.Sprintf("SELECT %s %s ORDER BY paid_at DESC, created_at DESC LIMIT %d OFFSET %d", paymentColumns, base, size, offset)

	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list payments: %w", err)
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count payments: %w", err)
	}
	return payments, total, nil
}

// ListByStudent returns every live payment of a student in payment order.
func (r *PaymentRepository) ListByStudent(ctx context.Context, studentID string) ([]models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE student_id = $1 AND voided_at IS NULL ORDER BY paid_at, created_at`
	var payments []models.Payment
	if err := r.db.SelectContext(ctx, &payments, query, studentID); err != nil {
		return nil, fmt.Errorf("list student payments: %w", err)
	}
	return payments, nil
}

// FindByID loads a payment by identifier.
func (r *PaymentRepository) FindByID(ctx context.Context, id string) (*models.Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	var payment models.Payment
	if err := r.db.GetContext(ctx, &payment, query, id); err != nil {
		return nil, err
	}
	return &payment, nil
}

// CreateAndRecompute inserts the payment and overwrites amount_paid on the owning balance
// with the re-aggregated sum of live payments, inside one transaction.
func (r *PaymentRepository) CreateAndRecompute(ctx context.Context, payment *models.Payment) (balance *models.StudentBalance, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin payment tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertPayment(ctx, tx, payment); err != nil {
		return nil, err
	}
	if balance, err = recomputeAmountPaid(ctx, tx, payment.StudentID, payment.TermID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit payment tx: %w", err)
	}
	return balance, nil
}

// VoidAndRecompute marks the payment voided and re-aggregates the owning balance.
func (r *PaymentRepository) VoidAndRecompute(ctx context.Context, payment *models.Payment, reason string) (balance *models.StudentBalance, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin void tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE payments SET voided_at = $2, void_reason = $3 WHERE id = $1 AND voided_at IS NULL`, payment.ID, now, reason)
	if err != nil {
		return nil, fmt.Errorf("void payment: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("void payment rows: %w", err)
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return nil, err
	}
	payment.VoidedAt = &now
	payment.VoidReason = &reason

	if balance, err = recomputeAmountPaid(ctx, tx, payment.StudentID, payment.TermID); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit void tx: %w", err)
	}
	return balance, nil
}

func insertPayment(ctx context.Context, tx *sqlx.Tx, payment *models.Payment) error {
	if payment.ID == "" {
		payment.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if payment.PaidAt.IsZero() {
		payment.PaidAt = now
	}
	payment.CreatedAt = now
	const query = `INSERT INTO payments (id, student_id, term_id, amount, method, reference, received_by, paid_at, created_at)
        VALUES (:id, :student_id, :term_id, :amount, :method, :reference, :received_by, :paid_at, :created_at)`
	if _, err := tx.NamedExecContext(ctx, query, payment); err != nil {
		return fmt.Errorf("create payment: %w", err)
	}
	return nil
}

// recomputeAmountPaid replaces amount_paid with SUM(amount) of live payments, never an increment.
func recomputeAmountPaid(ctx context.Context, tx *sqlx.Tx, studentID, termID string) (*models.StudentBalance, error) {
	const query = `UPDATE student_balances SET amount_paid = (
            SELECT COALESCE(SUM(amount), 0) FROM payments WHERE student_id = $1 AND term_id = $2 AND voided_at IS NULL
        ), updated_at = $3
        WHERE student_id = $1 AND term_id = $2
        RETURNING id, student_id, term_id, grade, term_fee, previous_arrears, amount_paid, current_balance, created_at, updated_at`
	var balance models.StudentBalance
	if err := tx.GetContext(ctx, &balance, query, studentID, termID, time.Now().UTC()); err != nil {
		return nil, fmt.Errorf("recompute amount paid: %w", err)
	}
	return &balance, nil
}
