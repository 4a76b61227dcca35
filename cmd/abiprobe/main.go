package main

import (
	"context"
	"log"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/tcassar-diss/abiprobe/harness"
	"github.com/tcassar-diss/abiprobe/report"
)

func main() {
	prodLogger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("failed to get logger: %v", err)
	}

	logger := prodLogger.Sugar()

	cfg := harness.DefaultConfig()

	if path := os.Getenv("ABIPROBE_CONFIG"); path != "" {
		cfg, err = harness.LoadConfig(path)
		if err != nil {
			logger.Fatalw("failed to load config", "path", path, "err", err)
		}
	}

	if len(os.Args) > 1 {
		cfg.ProbePath = os.Args[1]
		cfg.Args = os.Args[2:]
	}

	reporter := report.NewJSONReporter(logger)

	h, err := harness.NewHarness(logger, cfg, reporter)
	if err != nil {
		logger.Fatalw("failed to create harness", "err", err)
	}

	verdicts, err := h.RunAll(context.Background())
	if err != nil {
		logger.Fatalw("failed to run probe", "probe", cfg.ProbePath, "err", err)
	}

	if err := os.MkdirAll(filepath.Dir(cfg.StatsPath), 0o777); err != nil {
		logger.Fatalw("failed to create stats directory", "err", err)
	}

	if err := reporter.WriteFile(cfg.StatsPath); err != nil {
		logger.Fatalw("failed to write verdicts", "err", err)
	}

	for _, v := range verdicts {
		if v.Outcome == report.OutcomeConformant {
			continue
		}

		logger.Errorw("kernel is not conformant", "outcome", v.Outcome, "detail", v.Detail)
		os.Exit(1)
	}

	logger.Infow("kernel conformant", "runs", len(verdicts))
}
