package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

func newStudentService(ledger *memLedger) *StudentService {
	return NewStudentService(memStudents{ledger}, memClasses{ledger}, nil, nil)
}

func TestStudentServiceEnroll(t *testing.T) {
	ledger := seedLedger()
	svc := newStudentService(ledger)
	classID := "c3"

	student, err := svc.Enroll(context.Background(), EnrollStudentRequest{
		AdmissionNumber: "ADM-100",
		FirstName:       "Amani",
		LastName:        "Otieno",
		Gender:          "F",
		ClassID:         &classID,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusEnrolled, student.Status)
	assert.True(t, student.IsActive)
	assert.False(t, student.IsArchived)
	require.NotNil(t, student.ClassID)
	assert.Equal(t, "c3", *student.ClassID)
}

func TestStudentServiceEnrollDuplicateAdmission(t *testing.T) {
	ledger := seedLedger()
	ledger.addStudent("s1", "c3", models.StudentStatusActive)
	svc := newStudentService(ledger)

	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{AdmissionNumber: "ADM-s1", FirstName: "Copy"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceEnrollUnknownClass(t *testing.T) {
	svc := newStudentService(seedLedger())
	classID := "nope"
	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{AdmissionNumber: "ADM-1", FirstName: "A", ClassID: &classID})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceEnrollValidation(t *testing.T) {
	svc := newStudentService(seedLedger())
	_, err := svc.Enroll(context.Background(), EnrollStudentRequest{FirstName: "A", Gender: "X"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceUpdateKeepsLifecycle(t *testing.T) {
	ledger := seedLedger()
	ledger.addStudent("s1", "c3", models.StudentStatusActive)
	svc := newStudentService(ledger)

	updated, err := svc.Update(context.Background(), "s1", UpdateStudentRequest{AdmissionNumber: "ADM-s1", FirstName: "Renamed"})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.FirstName)
	assert.Equal(t, models.StudentStatusActive, ledger.students["s1"].Status)
	assert.True(t, ledger.students["s1"].IsActive)
}

func TestStudentServiceAssignClass(t *testing.T) {
	ledger := seedLedger()
	ledger.addStudent("s1", "c3", models.StudentStatusActive)
	ledger.addStudent("s2", "c7", models.StudentStatusGraduated)
	svc := newStudentService(ledger)

	detail, err := svc.AssignClass(context.Background(), "s1", AssignClassRequest{ClassID: "c7"})
	require.NoError(t, err)
	require.NotNil(t, detail.ClassGrade)
	assert.Equal(t, 7, *detail.ClassGrade)
	assert.Equal(t, "c7", *ledger.students["s1"].ClassID)

	_, err = svc.AssignClass(context.Background(), "s2", AssignClassRequest{ClassID: "c3"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceTransitions(t *testing.T) {
	ledger := seedLedger()
	ledger.addStudent("s1", "c3", models.StudentStatusEnrolled)
	ledger.addStudent("s2", "c7", models.StudentStatusAlumni)
	svc := newStudentService(ledger)
	ctx := context.Background()

	active, err := svc.Activate(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusActive, active.Status)

	expelled, err := svc.Expel(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, models.StudentStatusExpelled, expelled.Status)
	assert.False(t, ledger.students["s1"].IsActive)

	_, err = svc.Activate(ctx, "s1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStatusTransition.Code, appErrors.FromError(err).Code)

	_, err = svc.Expel(ctx, "s2")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrStatusTransition.Code, appErrors.FromError(err).Code)
}

func TestStudentServiceListRejectsUnknownStatus(t *testing.T) {
	svc := newStudentService(seedLedger())
	_, _, err := svc.List(context.Background(), models.StudentFilter{Status: "DROPPED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
