package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TermFee is the amount billed to every student of a grade for a term.
type TermFee struct {
	ID        string          `db:"id" json:"id"`
	TermID    string          `db:"term_id" json:"term_id"`
	Grade     int             `db:"grade" json:"grade"`
	Amount    decimal.Decimal `db:"amount" json:"amount"`
	CreatedAt time.Time       `db:"created_at" json:"created_at"`
	UpdatedAt time.Time       `db:"updated_at" json:"updated_at"`
}
