package main

import (
	"context"
	"crypto/tls"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/bedrockruntime"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/innervoice/guide-ai-platform/cmd/mainconfig"
	"github.com/innervoice/guide-ai-platform/internal/agent"
	"github.com/innervoice/guide-ai-platform/internal/api/router"
	appconfig "github.com/innervoice/guide-ai-platform/internal/config"
	"github.com/innervoice/guide-ai-platform/internal/http/handlers"
	httpmiddleware "github.com/innervoice/guide-ai-platform/internal/http/middleware"
	"github.com/innervoice/guide-ai-platform/internal/llm"
	"github.com/innervoice/guide-ai-platform/internal/memory"
	"github.com/innervoice/guide-ai-platform/internal/notify"
	"github.com/innervoice/guide-ai-platform/internal/observability/metrics"
	"github.com/innervoice/guide-ai-platform/internal/pipeline"
	"github.com/innervoice/guide-ai-platform/internal/synthesis"
	"github.com/innervoice/guide-ai-platform/internal/voice"
	"github.com/innervoice/guide-ai-platform/pkg/logging"
)

// voiceDirectory resolves an agent's voice for synthesis dispatch.
type voiceDirectory struct {
	contracts *agent.ContractStore
}

func (d *voiceDirectory) VoiceFor(ctx context.Context, tenantID, agentID string) (*agent.VoiceConfig, error) {
	contract, err := d.contracts.Get(ctx, tenantID, agentID)
	if err != nil {
		return nil, err
	}
	return contract.Voice, nil
}

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()

	logger := logging.New(cfg.LogLevel)
	logger.Info("starting guide-ai-platform API server", "env", cfg.Env, "port", cfg.Port)

	ctx := context.Background()

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to create pgx pool", "error", err)
		os.Exit(1)
	}
	defer pool.Close()

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	redisClient := redis.NewClient(redisOptions)
	defer redisClient.Close()

	awsCfg, err := mainconfig.LoadAWSConfig(ctx, cfg)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}

	// Completion stack: Bedrock primary, Gemini fallback when configured.
	bedrockClient := llm.NewBedrockClient(bedrockruntime.NewFromConfig(awsCfg))
	var completer llm.Client = bedrockClient
	if cfg.GeminiAPIKey != "" {
		gemini, err := llm.NewGeminiClient(ctx, cfg.GeminiAPIKey, cfg.GeminiModelID)
		if err != nil {
			logger.Error("failed to create gemini client", "error", err)
			os.Exit(1)
		}
		completer = llm.NewFallbackClient(bedrockClient, gemini, logger.Logger)
	}

	// Embedding stack: Bedrock primary, OpenAI when configured instead.
	var embedder llm.Embedder
	if cfg.OpenAIAPIKey != "" {
		embedder, err = llm.NewOpenAIEmbedderFromKey(cfg.OpenAIAPIKey, cfg.OpenAIEmbeddingModel)
	} else {
		embedder, err = llm.NewBedrockEmbedder(bedrockruntime.NewFromConfig(awsCfg), cfg.BedrockEmbeddingModelID)
	}
	if err != nil {
		logger.Error("failed to create embedder", "error", err)
		os.Exit(1)
	}

	registry := prometheus.NewRegistry()
	chatMetrics := metrics.NewChatMetrics(registry)
	pipelineMetrics := metrics.NewPipelineMetrics(registry)

	memoryManager := memory.NewManager(redisClient, embedder, logger)
	memoryCache := memory.NewCache(memoryManager, cfg.MemoryHandleCapacity)

	contractStore := agent.NewContractStore(pool)
	threadStore := agent.NewThreadStore(db)
	agentService := agent.NewService(contractStore, threadStore, memoryCache, completer, chatMetrics, logger)

	itemStore := synthesis.NewItemStore(db)
	workerCtx, stopWorker := context.WithCancel(ctx)
	defer stopWorker()

	var queue synthesis.Queue
	if cfg.UseMemoryQueue {
		// Development mode: the queue is in-process, so the worker that
		// drains it has to run inside this binary.
		memQueue := synthesis.NewMemoryQueue(64)
		queue = memQueue
		synthesizer, err := synthesis.NewHTTPSynthesizer(synthesis.Config{
			BaseURL: cfg.TTSBaseURL,
			APIKey:  cfg.TTSAPIKey,
			Timeout: cfg.TTSTimeout,
		})
		if err != nil {
			logger.Error("failed to create synthesizer", "error", err)
			os.Exit(1)
		}
		worker := synthesis.NewWorker(memQueue, itemStore, synthesizer, metrics.NewSynthesisMetrics(registry), cfg.SynthesisWorkers, logger)
		go func() { _ = worker.Run(workerCtx) }()
	} else {
		queue = synthesis.NewSQSQueue(sqs.NewFromConfig(awsCfg), cfg.SynthesisQueueURL)
	}
	dispatcher := synthesis.NewDispatcher(queue, itemStore, &voiceDirectory{contracts: contractStore}, "", logger)

	// Email notifications: SendGrid when configured, SES otherwise, and a
	// log-only sender when neither provider is set up.
	var emailSender notify.Sender
	switch {
	case cfg.EmailProvider == "sendgrid" && cfg.SendGridAPIKey != "" && cfg.SendGridFromEmail != "":
		emailSender = notify.NewSendGridSender(notify.SendGridConfig{
			APIKey:    cfg.SendGridAPIKey,
			FromEmail: cfg.SendGridFromEmail,
			FromName:  cfg.SendGridFromName,
		}, logger)
		logger.Info("sendgrid email sender initialized")
	case cfg.SESFromEmail != "":
		emailSender = notify.NewSESSender(sesv2.NewFromConfig(awsCfg), notify.SESConfig{
			FromEmail: cfg.SESFromEmail,
		}, logger)
		logger.Info("ses email sender initialized")
	default:
		emailSender = notify.NewLogSender(logger)
		logger.Warn("email notifications disabled (no provider configured)")
	}
	notifier := notify.NewService(emailSender, logger)

	// Realtime voice transport; text-only chat sockets when unset.
	var voiceClient *voice.Client
	if cfg.VoiceTransportURL != "" {
		voiceClient, err = voice.NewClient(voice.Config{
			URL:    cfg.VoiceTransportURL,
			APIKey: cfg.TTSAPIKey,
		}, logger)
		if err != nil {
			logger.Error("failed to create voice client", "error", err)
			os.Exit(1)
		}
	}

	runner := pipeline.NewRunner(completer, pipelineMetrics, logger)
	protocolStore := pipeline.NewProtocolStore(pool)
	archiver := pipeline.NewArchiver(s3.NewFromConfig(awsCfg), cfg.ProtocolArchiveBucket, logger)
	runStore := pipeline.NewRunStore(dynamodb.NewFromConfig(awsCfg), cfg.PipelineRunsTable, logger)
	pipelineService := pipeline.NewService(runner, protocolStore, archiver, runStore, dispatcher, logger)

	routerCfg := &router.Config{
		Logger:             logger,
		Agents:             handlers.NewAgentsHandler(agentService, logger),
		Protocols:          handlers.NewProtocolsHandler(agentService, pipelineService, itemStore, notifier, logger),
		ChatSocket:         handlers.NewChatSocketHandler(agentService, voiceClient, logger),
		MetricsHandler:     promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		TenantJWTSecret:    cfg.TenantJWTSecret,
		CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		RateLimit:          httpmiddleware.NewTenantRateLimiter(10, 30),
	}
	r := router.New(routerCfg)

	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}
