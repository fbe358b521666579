package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/middleware"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
	"github.com/noah-isme/bursary-api/pkg/response"
)

type reportService interface {
	Arrears(ctx context.Context, termID string) (*dto.ArrearsReport, bool, error)
	ArrearsCSV(ctx context.Context, termID string) ([]byte, string, error)
}

// ReportHandler exposes reporting endpoints.
type ReportHandler struct {
	service reportService
}

// NewReportHandler constructs handler.
func NewReportHandler(svc reportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// Arrears godoc
// @Summary Arrears report
// @Description Debtors of a term with totals. Defaults to the current term. format=csv downloads the listing.
// @Tags Reports
// @Produce json
// @Produce text/csv
// @Param termId query string false "Term ID"
// @Param format query string false "json or csv"
// @Success 200 {object} response.Envelope
// @Router /reports/arrears [get]
func (h *ReportHandler) Arrears(c *gin.Context) {
	termID := strings.TrimSpace(c.Query("termId"))
	switch strings.ToLower(c.DefaultQuery("format", "json")) {
	case "json":
	case "csv":
		payload, filename, err := h.service.ArrearsCSV(c.Request.Context(), termID)
		if err != nil {
			response.Error(c, err)
			return
		}
		response.Attachment(c, filename, "text/csv", payload)
		return
	default:
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "format must be json or csv"))
		return
	}

	start := time.Now()
	report, cacheHit, err := h.service.Arrears(c.Request.Context(), termID)
	if err != nil {
		response.Error(c, err)
		return
	}
	middleware.SetCacheHit(c, cacheHit)
	meta := middleware.ExtractMeta(c)
	if meta == nil {
		meta = map[string]interface{}{}
	}
	meta["processing_time_ms"] = time.Since(start).Milliseconds()
	response.JSON(c, http.StatusOK, report, nil, meta)
}
