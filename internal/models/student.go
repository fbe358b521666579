package models

import "time"

// StudentStatus captures where a learner is in the enrollment lifecycle.
type StudentStatus string

// Possible student statuses.
const (
	StudentStatusEnrolled  StudentStatus = "ENROLLED"
	StudentStatusActive    StudentStatus = "ACTIVE"
	StudentStatusGraduated StudentStatus = "GRADUATED"
	StudentStatusExpelled  StudentStatus = "EXPELLED"
	StudentStatusAlumni    StudentStatus = "ALUMNI"
)

var studentTransitions = map[StudentStatus][]StudentStatus{
	StudentStatusEnrolled:  {StudentStatusActive, StudentStatusGraduated, StudentStatusExpelled},
	StudentStatusActive:    {StudentStatusGraduated, StudentStatusExpelled},
	StudentStatusGraduated: {StudentStatusAlumni},
}

// Valid reports whether the status is one of the known values.
func (s StudentStatus) Valid() bool {
	switch s {
	case StudentStatusEnrolled, StudentStatusActive, StudentStatusGraduated, StudentStatusExpelled, StudentStatusAlumni:
		return true
	}
	return false
}

// CanTransitionTo reports whether moving from s to next is allowed. Transitions never go backwards.
func (s StudentStatus) CanTransitionTo(next StudentStatus) bool {
	for _, allowed := range studentTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// InSchool reports whether the status still represents a learner attending classes.
func (s StudentStatus) InSchool() bool {
	return s == StudentStatusEnrolled || s == StudentStatusActive
}

// Student represents a learner registered in the school.
type Student struct {
	ID              string        `db:"id" json:"id"`
	AdmissionNumber string        `db:"admission_number" json:"admission_number"`
	FirstName       string        `db:"first_name" json:"first_name"`
	LastName        string        `db:"last_name" json:"last_name"`
	Gender          string        `db:"gender" json:"gender"`
	BirthDate       *time.Time    `db:"birth_date" json:"birth_date,omitempty"`
	ClassID         *string       `db:"class_id" json:"class_id,omitempty"`
	Status          StudentStatus `db:"status" json:"status"`
	IsActive        bool          `db:"is_active" json:"is_active"`
	IsArchived      bool          `db:"is_archived" json:"is_archived"`
	GraduatedAt     *time.Time    `db:"graduated_at" json:"graduated_at,omitempty"`
	CreatedAt       time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time     `db:"updated_at" json:"updated_at"`
}

// FullName joins first and last name.
func (s Student) FullName() string {
	if s.LastName == "" {
		return s.FirstName
	}
	return s.FirstName + " " + s.LastName
}

// StudentDetail contains the student with current class context.
type StudentDetail struct {
	Student
	ClassName  *string `db:"class_name" json:"class_name,omitempty"`
	ClassGrade *int    `db:"class_grade" json:"class_grade,omitempty"`
}

// StudentFilter encapsulates allowed search parameters for listing students.
type StudentFilter struct {
	Search    string
	ClassID   string
	Grade     int
	Status    StudentStatus
	Active    *bool
	Archived  *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
