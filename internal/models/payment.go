package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// MoneyScale is the number of decimal places money columns are stored with.
const MoneyScale = 2

// WholeCents reports whether the amount is stored without rounding.
func WholeCents(amount decimal.Decimal) bool {
	return amount.Truncate(MoneyScale).Equal(amount)
}

// PaymentMethod describes how money was received.
type PaymentMethod string

// Supported payment methods.
const (
	PaymentMethodCash         PaymentMethod = "CASH"
	PaymentMethodBankTransfer PaymentMethod = "BANK_TRANSFER"
	PaymentMethodMobileMoney  PaymentMethod = "MOBILE_MONEY"
	PaymentMethodCheque       PaymentMethod = "CHEQUE"
)

// Valid reports whether the method is supported.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCash, PaymentMethodBankTransfer, PaymentMethodMobileMoney, PaymentMethodCheque:
		return true
	}
	return false
}

// Payment is an append-only receipt against a student's term balance.
type Payment struct {
	ID         string          `db:"id" json:"id"`
	StudentID  string          `db:"student_id" json:"student_id"`
	TermID     string          `db:"term_id" json:"term_id"`
	Amount     decimal.Decimal `db:"amount" json:"amount"`
	Method     PaymentMethod   `db:"method" json:"method"`
	Reference  string          `db:"reference" json:"reference"`
	ReceivedBy string          `db:"received_by" json:"received_by"`
	PaidAt     time.Time       `db:"paid_at" json:"paid_at"`
	VoidedAt   *time.Time      `db:"voided_at" json:"voided_at,omitempty"`
	VoidReason *string         `db:"void_reason" json:"void_reason,omitempty"`
	CreatedAt  time.Time       `db:"created_at" json:"created_at"`
}

// Voided reports whether the payment was reversed.
func (p Payment) Voided() bool {
	return p.VoidedAt != nil
}

// PaymentFilter narrows payment listings.
type PaymentFilter struct {
	StudentID     string
	TermID        string
	IncludeVoided bool
	Page          int
	PageSize      int
}
