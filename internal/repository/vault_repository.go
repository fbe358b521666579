package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/pkg/database"
)

const vaultColumns = `id, student_id, term_id, fixed_balance, status, frozen_at, transition_date, settlement_payment_id`

// VaultSettlement bundles everything written when a vault is cleared.
type VaultSettlement struct {
	Vault   *models.ArrearsVault
	Payment *models.Payment
	Student *models.Student
}

// VaultRepository persists arrears vault records and escrowed partial payments.
type VaultRepository struct {
	db *sqlx.DB
}

// NewVaultRepository constructs a VaultRepository.
func NewVaultRepository(db *sqlx.DB) *VaultRepository {
	return &VaultRepository{db: db}
}

// List returns vaults matching the filter.
func (r *VaultRepository) List(ctx context.Context, filter models.VaultFilter) ([]models.ArrearsVault, int, error) {
	base := "FROM arrears_vaults"
	var args []interface{}
	if filter.Status != "" {
		base += " WHERE status = $1"
		args = append(args, filter.Status)
	}
	page, size := models.NormalizePage(filter.Page, filter.PageSize)
	offset := (page - 1) * size
	query := fmt.Sprintf("SELECT %s %s ORDER BY frozen_at DESC LIMIT %d OFFSET %d", vaultColumns, base, size, offset)

	var vaults []models.ArrearsVault
	if err := r.db.SelectContext(ctx, &vaults, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list vaults: %w", err)
	}
	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) "+base, args...); err != nil {
		return nil, 0, fmt.Errorf("count vaults: %w", err)
	}
	return vaults, total, nil
}

// FindByID loads a vault by identifier.
func (r *VaultRepository) FindByID(ctx context.Context, id string) (*models.ArrearsVault, error) {
	query := `SELECT ` + vaultColumns + ` FROM arrears_vaults WHERE id = $1`
	var vault models.ArrearsVault
	if err := r.db.GetContext(ctx, &vault, query, id); err != nil {
		return nil, err
	}
	return &vault, nil
}

// FindByStudent loads the vault of a student.
func (r *VaultRepository) FindByStudent(ctx context.Context, studentID string) (*models.ArrearsVault, error) {
	query := `SELECT ` + vaultColumns + ` FROM arrears_vaults WHERE student_id = $1`
	var vault models.ArrearsVault
	if err := r.db.GetContext(ctx, &vault, query, studentID); err != nil {
		return nil, err
	}
	return &vault, nil
}

// Create freezes a new vault record.
func (r *VaultRepository) Create(ctx context.Context, vault *models.ArrearsVault) error {
	return insertVault(ctx, r.db, vault)
}

// Settle records the settlement payment, re-aggregates the frozen term balance,
// closes the vault and converts the student, all in one transaction.
func (r *VaultRepository) Settle(ctx context.Context, s VaultSettlement) (balance *models.StudentBalance, err error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin vault settlement tx: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = insertPayment(ctx, tx, s.Payment); err != nil {
		return nil, err
	}
	if balance, err = recomputeAmountPaid(ctx, tx, s.Payment.StudentID, s.Payment.TermID); err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `UPDATE arrears_vaults SET status = $2, transition_date = $3, settlement_payment_id = $4 WHERE id = $1 AND status = $5`,
		s.Vault.ID, models.VaultStatusSettled, now, s.Payment.ID, models.VaultStatusFrozen)
	if err != nil {
		return nil, fmt.Errorf("settle vault: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("settle vault rows: %w", err)
	}
	if rows == 0 {
		err = fmt.Errorf("settle vault %s: %w", s.Vault.ID, ErrVaultNotFrozen)
		return nil, err
	}

	if err = updateStudentStatus(ctx, tx, s.Student); err != nil {
		return nil, err
	}
	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit vault settlement tx: %w", err)
	}

	s.Vault.Status = models.VaultStatusSettled
	s.Vault.TransitionDate = &now
	s.Vault.SettlementPaymentID = &s.Payment.ID
	return balance, nil
}

// CreateEscrow records a rejected partial payment against the vault.
func (r *VaultRepository) CreateEscrow(ctx context.Context, escrow *models.VaultEscrow) error {
	if escrow.ID == "" {
		escrow.ID = uuid.NewString()
	}
	if escrow.CreatedAt.IsZero() {
		escrow.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO vault_escrows (id, vault_id, amount, reference, created_at) VALUES (:id, :vault_id, :amount, :reference, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, escrow); err != nil {
		return fmt.Errorf("create vault escrow: %w", err)
	}
	return nil
}

// ListEscrows returns escrowed amounts held against a vault.
func (r *VaultRepository) ListEscrows(ctx context.Context, vaultID string) ([]models.VaultEscrow, error) {
	const query = `SELECT id, vault_id, amount, reference, created_at FROM vault_escrows WHERE vault_id = $1 ORDER BY created_at`
	var escrows []models.VaultEscrow
	if err := r.db.SelectContext(ctx, &escrows, query, vaultID); err != nil {
		return nil, fmt.Errorf("list vault escrows: %w", err)
	}
	return escrows, nil
}

func insertVault(ctx context.Context, exec sqlx.ExtContext, vault *models.ArrearsVault) error {
	if vault.ID == "" {
		vault.ID = uuid.NewString()
	}
	if vault.FrozenAt.IsZero() {
		vault.FrozenAt = time.Now().UTC()
	}
	if vault.Status == "" {
		vault.Status = models.VaultStatusFrozen
	}
	const query = `INSERT INTO arrears_vaults (id, student_id, term_id, fixed_balance, status, frozen_at)
        VALUES (:id, :student_id, :term_id, :fixed_balance, :status, :frozen_at)`
	if _, err := sqlx.NamedExecContext(ctx, exec, query, vault); err != nil {
		if database.IsUniqueViolation(err) {
			return fmt.Errorf("create vault: %w", ErrVaultExists)
		}
		return fmt.Errorf("create vault: %w", err)
	}
	return nil
}
