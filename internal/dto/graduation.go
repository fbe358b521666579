package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bursary-api/internal/models"
)

// GraduationRequest captures POST /graduations payload.
type GraduationRequest struct {
	TermID        string `json:"term_id" validate:"required"`
	DryRun        bool   `json:"dry_run"`
	FreezeDebtors *bool  `json:"freeze_debtors,omitempty"`
}

// GraduationOutcome reports what happened to one candidate.
type GraduationOutcome struct {
	StudentID       string               `json:"student_id"`
	AdmissionNumber string               `json:"admission_number"`
	StudentName     string               `json:"student_name"`
	Balance         decimal.Decimal      `json:"balance"`
	Status          models.StudentStatus `json:"status"`
	Archived        bool                 `json:"archived"`
	Frozen          bool                 `json:"frozen"`
	VaultID         *string              `json:"vault_id,omitempty"`
	Error           string               `json:"error,omitempty"`
}

// GraduationResult aggregates a graduation sweep.
type GraduationResult struct {
	TermID   string              `json:"term_id"`
	Grade    int                 `json:"grade"`
	DryRun   bool                `json:"dry_run"`
	Cleared  int                 `json:"cleared"`
	Debtors  int                 `json:"debtors"`
	Frozen   int                 `json:"frozen"`
	Failed   int                 `json:"failed"`
	Outcomes []GraduationOutcome `json:"outcomes"`
}

// AlumniSweepResult reports graduated debtors converted after clearing their balance.
type AlumniSweepResult struct {
	Checked   int      `json:"checked"`
	Converted []string `json:"converted"`
}
