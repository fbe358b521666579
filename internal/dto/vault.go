package dto

import (
	"github.com/shopspring/decimal"

	"github.com/noah-isme/bursary-api/internal/models"
)

// FreezeVaultRequest captures POST /vaults payload.
type FreezeVaultRequest struct {
	StudentID string `json:"student_id" validate:"required"`
}

// VaultPaymentRequest captures POST /vaults/:id/payments payload.
type VaultPaymentRequest struct {
	Amount     decimal.Decimal      `json:"amount"`
	Method     models.PaymentMethod `json:"method" validate:"required"`
	Reference  string               `json:"reference" validate:"max=64"`
	ReceivedBy string               `json:"received_by" validate:"max=128"`
	Escrow     bool                 `json:"escrow"`
}

// VaultPaymentResult reports whether a vault payment settled the frozen arrears.
// A rejected payment is a normal result, not an error.
type VaultPaymentResult struct {
	Accepted      bool                   `json:"accepted"`
	Reason        string                 `json:"reason,omitempty"`
	Vault         models.ArrearsVault    `json:"vault"`
	Payment       *models.Payment        `json:"payment,omitempty"`
	Balance       *models.StudentBalance `json:"balance,omitempty"`
	Escrow        *models.VaultEscrow    `json:"escrow,omitempty"`
	StudentStatus models.StudentStatus   `json:"student_status,omitempty"`
}
