package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

func graduatedDebtor(t *testing.T) (*ledgerServices, *models.ArrearsVault) {
	t.Helper()
	ledger := seedLedger()
	ledger.addStudent("s1", "c7", models.StudentStatusActive)
	svc := newLedgerServices(ledger)
	ctx := context.Background()

	_, err := svc.payments.Record(ctx, recordReq("s1", "t3", 500))
	require.NoError(t, err)
	result, err := svc.graduation.Graduate(ctx, dto.GraduationRequest{TermID: "t3"})
	require.NoError(t, err)
	require.Equal(t, 1, result.Frozen)

	vault, err := svc.vaults.GetByStudent(ctx, "s1")
	require.NoError(t, err)
	require.True(t, vault.FixedBalance.Equal(dec(1000)))
	return svc, vault
}

func vaultReq(amount int64) dto.VaultPaymentRequest {
	return dto.VaultPaymentRequest{Amount: dec(amount), Method: models.PaymentMethodBankTransfer, Reference: "TRX-9"}
}

func TestVaultServiceRejectsPartialPayment(t *testing.T) {
	svc, vault := graduatedDebtor(t)

	result, err := svc.vaults.Pay(context.Background(), vault.ID, vaultReq(400))
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Contains(t, result.Reason, "1000.00")
	assert.Nil(t, result.Payment)
	assert.Nil(t, result.Escrow)

	stored := svc.ledger.vaults[vault.ID]
	assert.True(t, stored.FixedBalance.Equal(dec(1000)))
	assert.Nil(t, stored.TransitionDate)
	assert.Equal(t, models.VaultStatusFrozen, stored.Status)
	assert.Len(t, svc.ledger.payments, 1)
	assert.EqualValues(t, 1, svc.metrics.Snapshot().VaultPaymentsRejected)
}

func TestVaultServiceRejectsOverpayment(t *testing.T) {
	svc, vault := graduatedDebtor(t)

	result, err := svc.vaults.Pay(context.Background(), vault.ID, vaultReq(1200))
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	assert.Equal(t, models.StudentStatusGraduated, svc.ledger.students["s1"].Status)
}

func TestVaultServiceEscrowsRejectedPayment(t *testing.T) {
	svc, vault := graduatedDebtor(t)
	ctx := context.Background()

	req := vaultReq(300)
	req.Escrow = true
	result, err := svc.vaults.Pay(ctx, vault.ID, req)
	require.NoError(t, err)
	assert.False(t, result.Accepted)
	require.NotNil(t, result.Escrow)

	escrows, err := svc.vaults.ListEscrows(ctx, vault.ID)
	require.NoError(t, err)
	require.Len(t, escrows, 1)
	assert.True(t, escrows[0].Amount.Equal(dec(300)))
}

func TestVaultServiceExactPaymentSettles(t *testing.T) {
	svc, vault := graduatedDebtor(t)
	cache := &invalidationRecorder{}
	svc.vaults.cache = cache
	ctx := context.Background()

	result, err := svc.vaults.Pay(ctx, vault.ID, vaultReq(1000))
	require.NoError(t, err)
	assert.True(t, result.Accepted)
	assert.Equal(t, models.VaultStatusSettled, result.Vault.Status)
	require.NotNil(t, result.Vault.TransitionDate)
	require.NotNil(t, result.Payment)
	assert.Equal(t, result.Payment.ID, *result.Vault.SettlementPaymentID)
	assert.True(t, result.Balance.CurrentBalance.IsZero())
	assert.Equal(t, models.StudentStatusAlumni, result.StudentStatus)

	student := svc.ledger.students["s1"]
	assert.Equal(t, models.StudentStatusAlumni, student.Status)
	assert.True(t, student.IsArchived)
	assert.Equal(t, []string{arrearsCachePattern}, cache.patterns)

	_, err = svc.vaults.Pay(ctx, vault.ID, vaultReq(1000))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrVaultSettled.Code, appErrors.FromError(err).Code)

	_, err = svc.payments.Void(ctx, result.Payment.ID, dto.VoidPaymentRequest{Reason: "mistake"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestVaultServicePayValidation(t *testing.T) {
	svc, vault := graduatedDebtor(t)

	_, err := svc.vaults.Pay(context.Background(), vault.ID, vaultReq(0))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	fraction := vaultReq(0)
	fraction.Amount = decimal.RequireFromString("1000.004")
	_, err = svc.vaults.Pay(context.Background(), vault.ID, fraction)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Equal(t, models.VaultStatusFrozen, svc.ledger.vaults[vault.ID].Status)

	_, err = svc.vaults.Pay(context.Background(), "missing", vaultReq(1000))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestVaultServiceFreeze(t *testing.T) {
	ledger := seedLedger()
	ledger.addStudent("s1", "c7", models.StudentStatusActive)
	ledger.addStudent("s2", "c3", models.StudentStatusActive)
	svc := newLedgerServices(ledger)
	ctx := context.Background()

	freeze := false
	_, err := svc.graduation.Graduate(ctx, dto.GraduationRequest{TermID: "t3", FreezeDebtors: &freeze})
	require.NoError(t, err)
	require.Empty(t, ledger.vaults)

	vault, err := svc.vaults.Freeze(ctx, dto.FreezeVaultRequest{StudentID: "s1"})
	require.NoError(t, err)
	assert.True(t, vault.FixedBalance.Equal(dec(1500)))
	assert.Equal(t, "t3", vault.TermID)

	_, err = svc.vaults.Freeze(ctx, dto.FreezeVaultRequest{StudentID: "s1"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)

	_, err = svc.vaults.Freeze(ctx, dto.FreezeVaultRequest{StudentID: "s2"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, appErrors.FromError(err).Code)
}

func TestVaultServiceListRejectsUnknownStatus(t *testing.T) {
	svc := newLedgerServices(seedLedger())
	_, _, err := svc.vaults.List(context.Background(), models.VaultFilter{Status: "MELTED"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}
