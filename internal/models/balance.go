package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// StudentBalance is the per (student, term) ledger row.
// CurrentBalance is derived by the database as term_fee + previous_arrears - amount_paid.
// Grade is the class grade the row was billed under; nil when the student had no class.
type StudentBalance struct {
	ID              string          `db:"id" json:"id"`
	StudentID       string          `db:"student_id" json:"student_id"`
	TermID          string          `db:"term_id" json:"term_id"`
	Grade           *int            `db:"grade" json:"grade,omitempty"`
	TermFee         decimal.Decimal `db:"term_fee" json:"term_fee"`
	PreviousArrears decimal.Decimal `db:"previous_arrears" json:"previous_arrears"`
	AmountPaid      decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	CurrentBalance  decimal.Decimal `db:"current_balance" json:"current_balance"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time       `db:"updated_at" json:"updated_at"`
}

// Outstanding computes term_fee + previous_arrears - amount_paid. A negative value is a credit.
func (b StudentBalance) Outstanding() decimal.Decimal {
	return b.TermFee.Add(b.PreviousArrears).Sub(b.AmountPaid)
}

// Refresh recomputes CurrentBalance from the stored components.
func (b *StudentBalance) Refresh() {
	b.CurrentBalance = b.Outstanding()
}

// InDebt reports whether money is still owed on the row.
func (b StudentBalance) InDebt() bool {
	return b.Outstanding().IsPositive()
}

// TermBalance joins a balance row with its term ordering columns.
type TermBalance struct {
	StudentBalance
	Year       int `db:"year" json:"year"`
	TermNumber int `db:"term_number" json:"term_number"`
}

// ArrearsEntry is a single debtor line in the arrears report.
type ArrearsEntry struct {
	StudentID       string          `db:"student_id" json:"student_id"`
	AdmissionNumber string          `db:"admission_number" json:"admission_number"`
	StudentName     string          `db:"student_name" json:"student_name"`
	ClassName       *string         `db:"class_name" json:"class_name,omitempty"`
	Status          StudentStatus   `db:"status" json:"status"`
	TermFee         decimal.Decimal `db:"term_fee" json:"term_fee"`
	PreviousArrears decimal.Decimal `db:"previous_arrears" json:"previous_arrears"`
	AmountPaid      decimal.Decimal `db:"amount_paid" json:"amount_paid"`
	CurrentBalance  decimal.Decimal `db:"current_balance" json:"current_balance"`
}
