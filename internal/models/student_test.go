package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStudentStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to StudentStatus
		allowed  bool
	}{
		{StudentStatusEnrolled, StudentStatusActive, true},
		{StudentStatusActive, StudentStatusGraduated, true},
		{StudentStatusActive, StudentStatusExpelled, true},
		{StudentStatusGraduated, StudentStatusAlumni, true},
		{StudentStatusGraduated, StudentStatusActive, false},
		{StudentStatusAlumni, StudentStatusGraduated, false},
		{StudentStatusExpelled, StudentStatusActive, false},
		{StudentStatusActive, StudentStatusEnrolled, false},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
}

func TestAcademicTermOrdering(t *testing.T) {
	t1 := AcademicTerm{Year: 2024, TermNumber: 3}
	t2 := AcademicTerm{Year: 2025, TermNumber: 1}
	assert.True(t, t1.IsFinal())
	assert.False(t, t2.IsFinal())

	year, number := t2.PreviousPosition()
	assert.Equal(t, 2024, year)
	assert.Equal(t, 3, number)
	assert.Equal(t, "2025 Term 1", t2.Label())
}
