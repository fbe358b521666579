package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// VaultStatus tracks whether frozen arrears were cleared.
type VaultStatus string

// Vault statuses.
const (
	VaultStatusFrozen  VaultStatus = "FROZEN"
	VaultStatusSettled VaultStatus = "SETTLED"
)

// ArrearsVault freezes a graduated debtor's outstanding balance. FixedBalance never changes.
type ArrearsVault struct {
	ID                  string          `db:"id" json:"id"`
	StudentID           string          `db:"student_id" json:"student_id"`
	TermID              string          `db:"term_id" json:"term_id"`
	FixedBalance        decimal.Decimal `db:"fixed_balance" json:"fixed_balance"`
	Status              VaultStatus     `db:"status" json:"status"`
	FrozenAt            time.Time       `db:"frozen_at" json:"frozen_at"`
	TransitionDate      *time.Time      `db:"transition_date" json:"transition_date,omitempty"`
	SettlementPaymentID *string         `db:"settlement_payment_id" json:"settlement_payment_id,omitempty"`
}

// Settled reports whether the vault has been cleared.
func (v ArrearsVault) Settled() bool {
	return v.Status == VaultStatusSettled
}

// Accepts reports whether amount settles the vault. Only the exact frozen balance is accepted.
func (v ArrearsVault) Accepts(amount decimal.Decimal) bool {
	return !v.Settled() && amount.Equal(v.FixedBalance)
}

// VaultEscrow holds a rejected partial payment without applying it to the frozen balance.
type VaultEscrow struct {
	ID        string          `db:"id" json:"id"`
	VaultID   string          `db:"vault_id" json:"vault_id"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	Reference string          `db:"reference" json:"reference"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
}

// VaultFilter narrows vault listings.
type VaultFilter struct {
	Status   VaultStatus
	Page     int
	PageSize int
}
