package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/middleware"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type fakeVaultSrv struct {
	vault      *models.ArrearsVault
	result     *dto.VaultPaymentResult
	err        error
	lastFilter models.VaultFilter
	lastPay    dto.VaultPaymentRequest
}

func (f *fakeVaultSrv) List(_ context.Context, filter models.VaultFilter) ([]models.ArrearsVault, *models.Pagination, error) {
	f.lastFilter = filter
	return nil, &models.Pagination{Page: 1, PageSize: 20}, f.err
}

func (f *fakeVaultSrv) Get(context.Context, string) (*models.ArrearsVault, error) {
	return f.vault, f.err
}

func (f *fakeVaultSrv) GetByStudent(context.Context, string) (*models.ArrearsVault, error) {
	return f.vault, f.err
}

func (f *fakeVaultSrv) ListEscrows(context.Context, string) ([]models.VaultEscrow, error) {
	return nil, f.err
}

func (f *fakeVaultSrv) Freeze(context.Context, dto.FreezeVaultRequest) (*models.ArrearsVault, error) {
	return f.vault, f.err
}

func (f *fakeVaultSrv) Pay(_ context.Context, _ string, req dto.VaultPaymentRequest) (*dto.VaultPaymentResult, error) {
	f.lastPay = req
	return f.result, f.err
}

func TestVaultHandlerPayRejectedPartial(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewVaultHandler(&fakeVaultSrv{result: &dto.VaultPaymentResult{
		Accepted: false,
		Reason:   "amount must equal the frozen balance",
		Vault:    models.ArrearsVault{ID: "vault-1", Status: models.VaultStatusFrozen},
	}})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Params = gin.Params{{Key: "id", Value: "vault-1"}}
	c.Request = jsonRequest(t, http.MethodPost, "/vaults/vault-1/payments", map[string]interface{}{"amount": "300", "method": "CASH"})

	handler.Pay(c)

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	envelope := decodeEnvelope(t, rec)
	assert.Equal(t, false, envelope.Data["accepted"])
	assert.Equal(t, "vault-1", middleware.AuditResourceID(c))
}

func TestVaultHandlerPaySettles(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeVaultSrv{result: &dto.VaultPaymentResult{
		Accepted:      true,
		Vault:         models.ArrearsVault{ID: "vault-1", Status: models.VaultStatusSettled},
		StudentStatus: models.StudentStatusAlumni,
	}}
	handler := NewVaultHandler(svc)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Params = gin.Params{{Key: "id", Value: "vault-1"}}
	c.Request = jsonRequest(t, http.MethodPost, "/vaults/vault-1/payments", map[string]interface{}{"amount": "1000", "method": "BANK_TRANSFER", "escrow": true})

	handler.Pay(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, svc.lastPay.Escrow)
	assert.True(t, decimal.NewFromInt(1000).Equal(svc.lastPay.Amount))
	assert.Equal(t, string(models.StudentStatusAlumni), decodeEnvelope(t, rec).Data["student_status"])
}

func TestVaultHandlerPaySettledConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewVaultHandler(&fakeVaultSrv{err: appErrors.Clone(appErrors.ErrVaultSettled, "vault already settled")})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Params = gin.Params{{Key: "id", Value: "vault-1"}}
	c.Request = jsonRequest(t, http.MethodPost, "/vaults/vault-1/payments", map[string]interface{}{"amount": "1000", "method": "CASH"})

	handler.Pay(c)

	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, appErrors.ErrVaultSettled.Code, decodeEnvelope(t, rec).Error.Code)
}

func TestVaultHandlerFreezeCreated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewVaultHandler(&fakeVaultSrv{vault: &models.ArrearsVault{ID: "vault-2", Status: models.VaultStatusFrozen}})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = jsonRequest(t, http.MethodPost, "/vaults", map[string]string{"student_id": "stu-9"})

	handler.Freeze(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "vault-2", middleware.AuditResourceID(c))
}

func TestVaultHandlerListUppercasesStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakeVaultSrv{}
	handler := NewVaultHandler(svc)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/vaults?status=frozen", nil)

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, models.VaultStatusFrozen, svc.lastFilter.Status)
}
