package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/internal/models"
	"github.com/noah-isme/bursary-api/pkg/export"
	appErrors "github.com/noah-isme/bursary-api/pkg/errors"
)

const (
	arrearsCachePrefix  = "arrears:"
	arrearsCachePattern = arrearsCachePrefix + "*"
)

var arrearsCSVHeaders = []string{"admission_number", "student_name", "class", "status", "term_fee", "previous_arrears", "amount_paid", "current_balance"}

type arrearsLister interface {
	ListArrears(ctx context.Context, termID string) ([]models.ArrearsEntry, error)
}

type reportTermReader interface {
	FindByID(ctx context.Context, id string) (*models.AcademicTerm, error)
	FindCurrent(ctx context.Context) (*models.AcademicTerm, error)
}

type reportCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

// ReportService builds arrears listings for cashiers and exports them.
type ReportService struct {
	balances arrearsLister
	terms    reportTermReader
	cache    reportCache
	csv      csvRenderer
	ttl      time.Duration
	logger   *zap.Logger
}

// NewReportService constructs ReportService.
func NewReportService(balances arrearsLister, terms reportTermReader, cache reportCache, csv csvRenderer, ttl time.Duration, logger *zap.Logger) *ReportService {
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ReportService{balances: balances, terms: terms, cache: cache, csv: csv, ttl: ttl, logger: logger}
}

// Arrears returns the debtors of a term. An empty termID selects the current term.
// The boolean reports whether the payload came from cache.
func (s *ReportService) Arrears(ctx context.Context, termID string) (*dto.ArrearsReport, bool, error) {
	term, err := s.resolveTerm(ctx, termID)
	if err != nil {
		return nil, false, err
	}

	key := arrearsCachePrefix + term.ID
	if s.cache != nil {
		var cached dto.ArrearsReport
		hit, err := s.cache.Get(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("arrears cache read failed", zap.String("key", key), zap.Error(err))
		}
		if hit {
			return &cached, true, nil
		}
	}

	entries, err := s.balances.ListArrears(ctx, term.ID)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list arrears")
	}
	total := decimal.Zero
	for _, entry := range entries {
		total = total.Add(entry.CurrentBalance)
	}
	if entries == nil {
		entries = []models.ArrearsEntry{}
	}
	report := &dto.ArrearsReport{
		Term:             *term,
		Debtors:          len(entries),
		TotalOutstanding: total,
		Entries:          entries,
		GeneratedAt:      time.Now().UTC(),
	}
	if s.cache != nil {
		_ = s.cache.Set(ctx, key, report, s.ttl)
	}
	return report, false, nil
}

// ArrearsCSV renders the arrears report as CSV and proposes a filename.
func (s *ReportService) ArrearsCSV(ctx context.Context, termID string) ([]byte, string, error) {
	report, _, err := s.Arrears(ctx, termID)
	if err != nil {
		return nil, "", err
	}
	rows := make([]map[string]string, 0, len(report.Entries))
	for _, entry := range report.Entries {
		className := ""
		if entry.ClassName != nil {
			className = *entry.ClassName
		}
		rows = append(rows, map[string]string{
			"admission_number": entry.AdmissionNumber,
			"student_name":     entry.StudentName,
			"class":            className,
			"status":           string(entry.Status),
			"term_fee":         entry.TermFee.StringFixed(2),
			"previous_arrears": entry.PreviousArrears.StringFixed(2),
			"amount_paid":      entry.AmountPaid.StringFixed(2),
			"current_balance":  entry.CurrentBalance.StringFixed(2),
		})
	}
	footer := map[string]string{
		"admission_number": "TOTAL",
		"student_name":     fmt.Sprintf("%d debtors", report.Debtors),
		"current_balance":  report.TotalOutstanding.StringFixed(2),
	}
	payload, err := s.csv.Render(export.Dataset{Headers: arrearsCSVHeaders, Rows: rows, Footer: footer})
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render arrears csv")
	}
	filename := fmt.Sprintf("arrears-%d-term-%d.csv", report.Term.Year, report.Term.TermNumber)
	return payload, filename, nil
}

func (s *ReportService) resolveTerm(ctx context.Context, termID string) (*models.AcademicTerm, error) {
	var (
		term *models.AcademicTerm
		err  error
	)
	if termID == "" {
		term, err = s.terms.FindCurrent(ctx)
	} else {
		term, err = s.terms.FindByID(ctx, termID)
	}
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "term not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load term")
	}
	return term, nil
}
