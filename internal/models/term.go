package models

import (
	"fmt"
	"time"
)

// TermsPerYear is the number of academic terms in a school year.
const TermsPerYear = 3

// AcademicTerm models one of the three academic periods of a year.
type AcademicTerm struct {
	ID         string    `db:"id" json:"id"`
	Year       int       `db:"year" json:"year"`
	TermNumber int       `db:"term_number" json:"term_number"`
	StartDate  time.Time `db:"start_date" json:"start_date"`
	EndDate    time.Time `db:"end_date" json:"end_date"`
	IsCurrent  bool      `db:"is_current" json:"is_current"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// Label renders a human readable name such as "2024 Term 2".
func (t AcademicTerm) Label() string {
	return fmt.Sprintf("%d Term %d", t.Year, t.TermNumber)
}

// IsFinal reports whether the term closes the academic year.
func (t AcademicTerm) IsFinal() bool {
	return t.TermNumber == TermsPerYear
}

// PreviousPosition returns the (year, term number) tuple immediately preceding the term.
func (t AcademicTerm) PreviousPosition() (int, int) {
	if t.TermNumber <= 1 {
		return t.Year - 1, TermsPerYear
	}
	return t.Year, t.TermNumber - 1
}

// TermFilter defines filters supported by list endpoints.
type TermFilter struct {
	Year      int
	IsCurrent *bool
	Page      int
	PageSize  int
	SortOrder string
}
