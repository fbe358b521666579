package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/middleware"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

type responseEnvelope struct {
	Data       map[string]interface{} `json:"data"`
	Error      *appErrors.Error       `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) responseEnvelope {
	t.Helper()
	var envelope responseEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	return envelope
}

func jsonRequest(t *testing.T, method, target string, body interface{}) *http.Request {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(method, target, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

type fakePaymentSrv struct {
	receipt    *dto.PaymentReceipt
	err        error
	lastFilter models.PaymentFilter
	lastRecord dto.RecordPaymentRequest
	lastVoidID string
}

func (f *fakePaymentSrv) List(_ context.Context, filter models.PaymentFilter) ([]models.Payment, *models.Pagination, error) {
	f.lastFilter = filter
	if f.err != nil {
		return nil, nil, f.err
	}
	return []models.Payment{{ID: "pay-1"}}, &models.Pagination{Page: filter.Page, PageSize: filter.PageSize, TotalCount: 1}, nil
}

func (f *fakePaymentSrv) Get(_ context.Context, id string) (*models.Payment, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.Payment{ID: id}, nil
}

func (f *fakePaymentSrv) Record(_ context.Context, req dto.RecordPaymentRequest) (*dto.PaymentReceipt, error) {
	f.lastRecord = req
	return f.receipt, f.err
}

func (f *fakePaymentSrv) Void(_ context.Context, id string, _ dto.VoidPaymentRequest) (*dto.PaymentReceipt, error) {
	f.lastVoidID = id
	return f.receipt, f.err
}

func TestPaymentHandlerRecordCreated(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakePaymentSrv{receipt: &dto.PaymentReceipt{
		Payment: models.Payment{ID: "pay-7", Amount: decimal.NewFromInt(400)},
		Balance: models.StudentBalance{CurrentBalance: decimal.NewFromInt(600)},
	}}
	handler := NewPaymentHandler(svc)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = jsonRequest(t, http.MethodPost, "/payments", map[string]interface{}{
		"student_id": "stu-1",
		"term_id":    "term-1",
		"amount":     "400",
		"method":     "CASH",
	})

	handler.Record(c)

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, "stu-1", svc.lastRecord.StudentID)
	assert.True(t, decimal.NewFromInt(400).Equal(svc.lastRecord.Amount))
	assert.Equal(t, "pay-7", middleware.AuditResourceID(c))

	envelope := decodeEnvelope(t, rec)
	balance, ok := envelope.Data["balance"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "600", balance["current_balance"])
}

func TestPaymentHandlerRecordRejectsMalformedAmount(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakePaymentSrv{}
	handler := NewPaymentHandler(svc)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = jsonRequest(t, http.MethodPost, "/payments", map[string]interface{}{
		"student_id": "stu-1",
		"amount":     "four hundred",
	})

	handler.Record(c)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, svc.lastRecord.StudentID)
	assert.Equal(t, appErrors.ErrValidation.Code, decodeEnvelope(t, rec).Error.Code)
}

func TestPaymentHandlerRecordPropagatesDomainError(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewPaymentHandler(&fakePaymentSrv{err: appErrors.Clone(appErrors.ErrVaultHeld, "arrears frozen")})

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = jsonRequest(t, http.MethodPost, "/payments", map[string]interface{}{
		"student_id": "stu-1",
		"term_id":    "term-1",
		"amount":     "10",
		"method":     "CASH",
	})

	handler.Record(c)

	assert.Equal(t, http.StatusPreconditionFailed, rec.Code)
	assert.Equal(t, appErrors.ErrVaultHeld.Code, decodeEnvelope(t, rec).Error.Code)
	assert.Empty(t, middleware.AuditResourceID(c))
}

func TestPaymentHandlerVoidUsesPathID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakePaymentSrv{receipt: &dto.PaymentReceipt{Payment: models.Payment{ID: "pay-3"}}}
	handler := NewPaymentHandler(svc)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Params = gin.Params{{Key: "id", Value: "pay-3"}}
	c.Request = jsonRequest(t, http.MethodPost, "/payments/pay-3/void", map[string]string{"reason": "duplicate"})

	handler.Void(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pay-3", svc.lastVoidID)
}

func TestPaymentHandlerListParsesFilters(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &fakePaymentSrv{}
	handler := NewPaymentHandler(svc)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = httptest.NewRequest(http.MethodGet, "/payments?studentId=stu-1&termId=term-2&includeVoided=true&page=2&limit=5", nil)

	handler.List(c)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "stu-1", svc.lastFilter.StudentID)
	assert.Equal(t, "term-2", svc.lastFilter.TermID)
	assert.True(t, svc.lastFilter.IncludeVoided)
	assert.Equal(t, 2, svc.lastFilter.Page)
	assert.Equal(t, 5, svc.lastFilter.PageSize)
}
