package main

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"

	"github.com/innervoice/guide-ai-platform/cmd/mainconfig"
	appconfig "github.com/innervoice/guide-ai-platform/internal/config"
	"github.com/innervoice/guide-ai-platform/internal/observability/metrics"
	"github.com/innervoice/guide-ai-platform/internal/synthesis"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting synthesis worker", "env", cfg.Env, "workers", cfg.SynthesisWorkers)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(context.Background(), cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	queue := synthesis.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.SynthesisQueueURL)

	synthesizer, err := synthesis.NewHTTPSynthesizer(synthesis.Config{
		BaseURL: cfg.TTSBaseURL,
		APIKey:  cfg.TTSAPIKey,
		Timeout: cfg.TTSTimeout,
	})
	if err != nil {
		logger.Error("failed to create synthesizer", "error", err)
		os.Exit(1)
	}

	worker := synthesis.NewWorker(
		queue,
		synthesis.NewItemStore(db),
		synthesizer,
		metrics.NewSynthesisMetrics(nil),
		cfg.SynthesisWorkers,
		logger,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- worker.Run(ctx) }()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down synthesis worker...")
	cancel()

	if err := <-done; err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("synthesis worker exited", "error", err)
		os.Exit(1)
	}
	logger.Info("synthesis worker stopped")
}
