package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/middleware"
	"github.com/noah-isme/bursary-api/internal/models"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
	"github.com/noah-isme/bursary-api/pkg/response"
)

type vaultService interface {
	List(ctx context.Context, filter models.VaultFilter) ([]models.ArrearsVault, *models.Pagination, error)
	Get(ctx context.Context, id string) (*models.ArrearsVault, error)
	GetByStudent(ctx context.Context, studentID string) (*models.ArrearsVault, error)
	ListEscrows(ctx context.Context, vaultID string) ([]models.VaultEscrow, error)
	Freeze(ctx context.Context, req dto.FreezeVaultRequest) (*models.ArrearsVault, error)
	Pay(ctx context.Context, vaultID string, req dto.VaultPaymentRequest) (*dto.VaultPaymentResult, error)
}

// VaultHandler exposes the arrears vault.
type VaultHandler struct {
	service vaultService
}

// NewVaultHandler constructs a vault handler.
func NewVaultHandler(svc vaultService) *VaultHandler {
	return &VaultHandler{service: svc}
}

// List godoc
// @Summary List vaults
// @Tags Vaults
// @Produce json
// @Param status query string false "FROZEN or SETTLED"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /vaults [get]
func (h *VaultHandler) List(c *gin.Context) {
	filter := models.VaultFilter{Status: models.VaultStatus(strings.ToUpper(c.Query("status")))}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		filter.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		filter.PageSize = size
	}
	vaults, pagination, err := h.service.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vaults, pagination)
}

// Get godoc
// @Summary Get vault
// @Tags Vaults
// @Produce json
// @Param id path string true "Vault ID"
// @Success 200 {object} response.Envelope
// @Router /vaults/{id} [get]
func (h *VaultHandler) Get(c *gin.Context) {
	vault, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vault, nil)
}

// GetByStudent godoc
// @Summary Get student vault
// @Tags Vaults
// @Produce json
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Router /students/{id}/vault [get]
func (h *VaultHandler) GetByStudent(c *gin.Context) {
	vault, err := h.service.GetByStudent(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, vault, nil)
}

// Freeze godoc
// @Summary Freeze graduate arrears
// @Tags Vaults
// @Accept json
// @Produce json
// @Param payload body dto.FreezeVaultRequest true "Freeze payload"
// @Success 201 {object} response.Envelope
// @Router /vaults [post]
func (h *VaultHandler) Freeze(c *gin.Context) {
	var req dto.FreezeVaultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	vault, err := h.service.Freeze(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResourceID(c, vault.ID)
	response.Created(c, vault)
}

// Pay godoc
// @Summary Pay into vault
// @Description Only an amount equal to the frozen balance settles the vault. Any other amount is rejected with 422 and can be escrowed.
// @Tags Vaults
// @Accept json
// @Produce json
// @Param id path string true "Vault ID"
// @Param payload body dto.VaultPaymentRequest true "Vault payment payload"
// @Success 200 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /vaults/{id}/payments [post]
func (h *VaultHandler) Pay(c *gin.Context) {
	var req dto.VaultPaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	vaultID := c.Param("id")
	result, err := h.service.Pay(c.Request.Context(), vaultID, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetAuditResourceID(c, vaultID)
	if !result.Accepted {
		response.JSON(c, http.StatusUnprocessableEntity, result, nil)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// ListEscrows godoc
// @Summary Vault escrows
// @Tags Vaults
// @Produce json
// @Param id path string true "Vault ID"
// @Success 200 {object} response.Envelope
// @Router /vaults/{id}/escrows [get]
func (h *VaultHandler) ListEscrows(c *gin.Context) {
	escrows, err := h.service.ListEscrows(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, escrows, nil)
}
