package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

func outcomeFor(t *testing.T, result *dto.GraduationResult, studentID string) dto.GraduationOutcome {
	t.Helper()
	for _, outcome := range result.Outcomes {
		if outcome.StudentID == studentID {
			return outcome
		}
	}
	t.Fatalf("no outcome for %s", studentID)
	return dto.GraduationOutcome{}
}

func TestGraduationServiceRejectsNonFinalTerm(t *testing.T) {
	svc := newLedgerServices(seedLedger())
	_, err := svc.graduation.Graduate(context.Background(), dto.GraduationRequest{TermID: "t2"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, appErrors.FromError(err).Message, "2024 Term 2")
}

func TestGraduationServiceSplitsClearedAndDebtors(t *testing.T) {
	ledger := seedLedger()
	ledger.addStudent("s1", "c7", models.StudentStatusActive)
	ledger.addStudent("s2", "c7", models.StudentStatusActive)
	ledger.addStudent("s3", "c3", models.StudentStatusActive)
	svc := newLedgerServices(ledger)
	fixed := time.Date(2024, 11, 29, 8, 0, 0, 0, time.UTC)
	svc.graduation.now = func() time.Time { return fixed }
	ctx := context.Background()

	_, err := svc.payments.Record(ctx, recordReq("s1", "t3", 1500))
	require.NoError(t, err)

	result, err := svc.graduation.Graduate(ctx, dto.GraduationRequest{TermID: "t3"})
	require.NoError(t, err)
	assert.Equal(t, 7, result.Grade)
	assert.Equal(t, 1, result.Cleared)
	assert.Equal(t, 1, result.Debtors)
	assert.Equal(t, 1, result.Frozen)
	assert.Len(t, result.Outcomes, 2)

	cleared := outcomeFor(t, result, "s1")
	assert.True(t, cleared.Archived)
	assert.Nil(t, cleared.VaultID)
	assert.True(t, ledger.students["s1"].IsArchived)
	assert.Equal(t, fixed, *ledger.students["s1"].GraduatedAt)

	debtor := outcomeFor(t, result, "s2")
	assert.False(t, debtor.Archived)
	require.NotNil(t, debtor.VaultID)
	assert.True(t, debtor.Balance.Equal(dec(1500)))
	vault := ledger.vaults[*debtor.VaultID]
	assert.True(t, vault.FixedBalance.Equal(dec(1500)))
	assert.Equal(t, models.VaultStatusFrozen, vault.Status)
	assert.Equal(t, models.StudentStatusGraduated, ledger.students["s2"].Status)
	assert.False(t, ledger.students["s2"].IsActive)

	assert.Equal(t, models.StudentStatusActive, ledger.students["s3"].Status)
}

func TestGraduationServiceDryRunWritesNothing(t *testing.T) {
	ledger := seedLedger()
	ledger.addStudent("s1", "c7", models.StudentStatusActive)
	svc := newLedgerServices(ledger)

	result, err := svc.graduation.Graduate(context.Background(), dto.GraduationRequest{TermID: "t3", DryRun: true})
	require.NoError(t, err)
	assert.True(t, result.DryRun)
	assert.Equal(t, 1, result.Frozen)

	outcome := outcomeFor(t, result, "s1")
	assert.Equal(t, models.StudentStatusGraduated, outcome.Status)
	assert.True(t, outcome.Frozen)
	assert.Nil(t, outcome.VaultID)

	assert.Empty(t, ledger.balances)
	assert.Empty(t, ledger.vaults)
	assert.Equal(t, models.StudentStatusActive, ledger.students["s1"].Status)
}

func TestGraduationServiceSettleIfCleared(t *testing.T) {
	ledger := seedLedger()
	ledger.addStudent("s1", "c7", models.StudentStatusActive)
	svc := newLedgerServices(ledger)
	ctx := context.Background()

	freeze := false
	_, err := svc.graduation.Graduate(ctx, dto.GraduationRequest{TermID: "t3", FreezeDebtors: &freeze})
	require.NoError(t, err)

	converted, err := svc.graduation.SettleIfCleared(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, converted)

	ledger.balance("s1", "t3").AmountPaid = dec(1500)
	converted, err = svc.graduation.SettleIfCleared(ctx, "s1")
	require.NoError(t, err)
	assert.True(t, converted)
	assert.Equal(t, models.StudentStatusAlumni, ledger.students["s1"].Status)

	converted, err = svc.graduation.SettleIfCleared(ctx, "s1")
	require.NoError(t, err)
	assert.False(t, converted)
}

func TestGraduationServiceSweepCleared(t *testing.T) {
	ledger := seedLedger()
	ledger.addStudent("s1", "c7", models.StudentStatusActive)
	ledger.addStudent("s2", "c7", models.StudentStatusActive)
	svc := newLedgerServices(ledger)
	ctx := context.Background()

	freeze := false
	_, err := svc.graduation.Graduate(ctx, dto.GraduationRequest{TermID: "t3", FreezeDebtors: &freeze})
	require.NoError(t, err)
	ledger.balance("s2", "t3").AmountPaid = dec(2000)

	result, err := svc.graduation.SweepCleared(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Checked)
	assert.Equal(t, []string{"s2"}, result.Converted)
	assert.Equal(t, models.StudentStatusGraduated, ledger.students["s1"].Status)
}
