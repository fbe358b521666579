package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/middleware"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
	"github.com/noah-isme/bursary-api/pkg/response"
)

type graduationService interface {
	Graduate(ctx context.Context, req dto.GraduationRequest) (*dto.GraduationResult, error)
	SweepCleared(ctx context.Context) (*dto.AlumniSweepResult, error)
}

// GraduationHandler runs the end-of-year graduation sweep.
type GraduationHandler struct {
	service graduationService
}

// NewGraduationHandler constructs a graduation handler.
func NewGraduationHandler(svc graduationService) *GraduationHandler {
	return &GraduationHandler{service: svc}
}

// Graduate godoc
// @Summary Graduate final grade
// @Description Converts final-grade students in the final term. Cleared students are archived, debtors stay visible and may be frozen into the vault.
// @Tags Graduation
// @Accept json
// @Produce json
// @Param payload body dto.GraduationRequest true "Graduation payload"
// @Success 200 {object} response.Envelope
// @Router /graduations [post]
func (h *GraduationHandler) Graduate(c *gin.Context) {
	var req dto.GraduationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	result, err := h.service.Graduate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetMeta(c, "dry_run", result.DryRun)
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// SweepAlumni godoc
// @Summary Convert cleared graduates
// @Tags Graduation
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /graduations/alumni-sweep [post]
func (h *GraduationHandler) SweepAlumni(c *gin.Context) {
	result, err := h.service.SweepCleared(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
