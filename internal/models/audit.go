package models

import "time"

// AuditAction constants represent money-moving actions to be logged.
const (
	AuditActionPaymentRecord = "PAYMENT_RECORD"
	AuditActionPaymentVoid   = "PAYMENT_VOID"
	AuditActionFeeSet        = "FEE_SET"
	AuditActionGraduate      = "GRADUATE"
	AuditActionVaultFreeze   = "VAULT_FREEZE"
	AuditActionVaultPayment  = "VAULT_PAYMENT"
)

// AuditLog represents an audit trail record.
type AuditLog struct {
	ID         string    `db:"id" json:"id"`
	Action     string    `db:"action" json:"action"`
	Resource   string    `db:"resource" json:"resource"`
	ResourceID *string   `db:"resource_id" json:"resource_id,omitempty"`
	Payload    []byte    `db:"payload" json:"payload,omitempty"`
	IPAddress  string    `db:"ip_address" json:"ip_address"`
	UserAgent  string    `db:"user_agent" json:"user_agent"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}
