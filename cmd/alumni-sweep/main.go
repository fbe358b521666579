package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/bursary-api/internal/app"
	"github.com/noah-isme/bursary-api/internal/dto"
	"github.com/noah-isme/bursary-api/pkg/config"
	"github.com/noah-isme/bursary-api/pkg/database"
	"github.com/noah-isme/bursary-api/pkg/logger"
)

func main() {
	var (
		termID  string
		dryRun  bool
		freeze  string
		sweep   bool
		timeout time.Duration
	)

	flag.StringVar(&termID, "term", "", "Final term ID to graduate (empty skips graduation)")
	flag.BoolVar(&dryRun, "dry-run", false, "Report outcomes without writing")
	flag.StringVar(&freeze, "freeze", "", "Override debtor freezing: true or false (default from config)")
	flag.BoolVar(&sweep, "sweep", true, "Convert graduated students whose balance is cleared to alumni")
	flag.DurationVar(&timeout, "timeout", 5*time.Minute, "Overall run timeout")
	flag.Parse()

	if termID == "" && !sweep {
		fmt.Fprintln(os.Stderr, "nothing to do: pass -term and/or -sweep")
		os.Exit(2)
	}

	freezeOverride, err := parseFreeze(freeze)
	if err != nil {
		log.Fatalf("invalid -freeze: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close() //nolint:errcheck

	container := app.New(cfg, db, nil, logr)
	graduation := container.Services.Graduation

	report := runReport{}
	if termID != "" {
		result, err := graduation.Graduate(ctx, dto.GraduationRequest{TermID: termID, DryRun: dryRun, FreezeDebtors: freezeOverride})
		if err != nil {
			logr.Fatal("graduation failed", zap.String("term_id", termID), zap.Error(err))
		}
		report.Graduation = result
	}
	if sweep && !dryRun {
		result, err := graduation.SweepCleared(ctx)
		if err != nil {
			logr.Fatal("alumni sweep failed", zap.Error(err))
		}
		report.Sweep = result
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(report); err != nil {
		logr.Fatal("failed to write report", zap.Error(err))
	}

	if report.Graduation != nil && report.Graduation.Failed > 0 {
		os.Exit(1)
	}
}

type runReport struct {
	Graduation *dto.GraduationResult  `json:"graduation,omitempty"`
	Sweep      *dto.AlumniSweepResult `json:"sweep,omitempty"`
}

func parseFreeze(raw string) (*bool, error) {
	switch raw {
	case "":
		return nil, nil
	case "true", "1", "yes":
		v := true
		return &v, nil
	case "false", "0", "no":
		v := false
		return &v, nil
	default:
		return nil, fmt.Errorf("expected true or false, got %q", raw)
	}
}
