// The retrain command runs one retraining cycle and exits. It is meant for
// cron or manual invocation; the same logic is reachable over HTTP through
// the internal jobs endpoint.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tahminlab/matchcast/internal/app"
	"github.com/tahminlab/matchcast/internal/config"
	"github.com/tahminlab/matchcast/internal/platform/logging"
)

func main() {
	trigger := flag.String("trigger", "", "run with this trigger instead of evaluating the automatic ones (scheduled, volume, degradation, manual)")
	force := flag.Bool("force", false, "shorthand for -trigger manual")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger := logging.NewJSON(cfg.LogLevel)
	logging.SetDefault(logger)
	defer logger.Sync()

	application, err := app.New(cfg, logger)
	if err != nil {
		logger.Error("build app", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runTrigger := *trigger
	if runTrigger == "" && *force {
		runTrigger = "manual"
	}
	if runTrigger == "" {
		fired, ok := application.Retrain.ShouldRetrain(ctx)
		if !ok {
			logger.Info("no retrain trigger fired, nothing to do")
			return
		}
		runTrigger = fired
	}

	report, err := application.Retrain.Run(ctx, runTrigger)
	if err != nil {
		logger.Error("retraining failed", "trigger", runTrigger, "error", err)
		os.Exit(1)
	}

	for _, family := range report.Families {
		logger.Info("family result",
			"family", family.Family,
			"version", family.Version,
			"validation_accuracy", family.ValidationAccuracy,
			"activated", family.Activated,
			"rejected", family.Rejected,
			"error", family.Error)
	}
	logger.Info("retraining run finished",
		"run_id", report.RunID, "trigger", report.Trigger, "samples", report.Samples)
}
