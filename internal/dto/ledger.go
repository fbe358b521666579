package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/bursary-api/internal/models"
)

// RecordPaymentRequest captures POST /payments payload.
type RecordPaymentRequest struct {
	StudentID  string               `json:"student_id" validate:"required"`
	TermID     string               `json:"term_id" validate:"required"`
	Amount     decimal.Decimal      `json:"amount"`
	Method     models.PaymentMethod `json:"method" validate:"required"`
	Reference  string               `json:"reference" validate:"max=64"`
	ReceivedBy string               `json:"received_by" validate:"max=128"`
	PaidAt     *time.Time           `json:"paid_at,omitempty"`
}

// VoidPaymentRequest captures POST /payments/:id/void payload.
type VoidPaymentRequest struct {
	Reason string `json:"reason" validate:"required,max=255"`
}

// PaymentReceipt is returned after a payment is recorded or voided.
type PaymentReceipt struct {
	Payment         models.Payment        `json:"payment"`
	Balance         models.StudentBalance `json:"balance"`
	AlumniConverted bool                  `json:"alumni_converted"`
}

// TermInitializationResult summarises balance rows opened for a term.
type TermInitializationResult struct {
	TermID   string `json:"term_id"`
	Created  int    `json:"created"`
	Existing int    `json:"existing"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
}

// TermActivationResponse is returned by POST /terms/:id/activate.
type TermActivationResponse struct {
	Term     models.AcademicTerm      `json:"term"`
	Balances TermInitializationResult `json:"balances"`
}

// StudentStatement lists every balance row and live payment of a student.
type StudentStatement struct {
	Student     models.StudentDetail `json:"student"`
	Balances    []models.TermBalance `json:"balances"`
	Payments    []models.Payment     `json:"payments"`
	Outstanding decimal.Decimal      `json:"outstanding"`
	Vault       *models.ArrearsVault `json:"vault,omitempty"`
}

// SetFeeRequest captures PUT /terms/:id/fees payload.
type SetFeeRequest struct {
	Grade  int             `json:"grade" validate:"required,min=1,max=7"`
	Amount decimal.Decimal `json:"amount"`
}

// SetFeeResponse reports the stored fee and how many balances were re-billed.
type SetFeeResponse struct {
	Fee              models.TermFee `json:"fee"`
	Created          bool           `json:"created"`
	BalancesAffected int64          `json:"balances_affected"`
}
