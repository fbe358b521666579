package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/bursary-api/internal/models"
)

// ArrearsReport lists debtors of a term.
type ArrearsReport struct {
	Term             models.AcademicTerm   `json:"term"`
	Debtors          int                   `json:"debtors"`
	TotalOutstanding decimal.Decimal       `json:"total_outstanding"`
	Entries          []models.ArrearsEntry `json:"entries"`
	GeneratedAt      time.Time             `json:"generated_at"`
}
