package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// Redis (memory records, recent history)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AWS (Bedrock completions/embeddings, SQS dispatch, DynamoDB run store, S3 archive)
	AWSRegion               string
	AWSAccessKeyID          string
	AWSSecretAccessKey      string
	AWSEndpointOverride     string
	BedrockModelID          string
	BedrockEmbeddingModelID string
	SynthesisQueueURL       string
	PipelineRunsTable       string
	ProtocolArchiveBucket   string

	// Fallback providers
	GeminiAPIKey         string
	GeminiModelID        string
	OpenAIAPIKey         string
	OpenAIEmbeddingModel string

	// Text-to-speech collaborator
	TTSBaseURL string
	TTSAPIKey  string
	TTSTimeout time.Duration

	// Realtime audio transport collaborator
	VoiceTransportURL string

	// Email notifications
	EmailProvider     string
	SendGridAPIKey    string
	SendGridFromEmail string
	SendGridFromName  string
	SESFromEmail      string

	// Core tuning
	UseMemoryQueue       bool
	SynthesisWorkers     int
	MemoryHandleCapacity int
	TenantJWTSecret      string
	CORSAllowedOrigins   []string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:               getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:          getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:      getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:     getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		BedrockModelID:          getEnv("BEDROCK_MODEL_ID", ""),
		BedrockEmbeddingModelID: getEnv("BEDROCK_EMBEDDING_MODEL_ID", ""),
		SynthesisQueueURL:       getEnv("SYNTHESIS_QUEUE_URL", ""),
		PipelineRunsTable:       getEnv("PIPELINE_RUNS_TABLE", "pipeline_runs"),
		ProtocolArchiveBucket:   getEnv("PROTOCOL_ARCHIVE_BUCKET", ""),

		GeminiAPIKey:         getEnv("GEMINI_API_KEY", ""),
		GeminiModelID:        getEnv("GEMINI_MODEL_ID", "gemini-2.5-flash"),
		OpenAIAPIKey:         getEnv("OPENAI_API_KEY", ""),
		OpenAIEmbeddingModel: getEnv("OPENAI_EMBEDDING_MODEL", "text-embedding-3-small"),

		TTSBaseURL: getEnv("TTS_BASE_URL", ""),
		TTSAPIKey:  getEnv("TTS_API_KEY", ""),
		TTSTimeout: getEnvAsDuration("TTS_TIMEOUT", 30*time.Second),

		VoiceTransportURL: getEnv("VOICE_TRANSPORT_URL", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "ses"))),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "InnerVoice"),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),

		UseMemoryQueue:       getEnvAsBool("USE_MEMORY_QUEUE", false),
		SynthesisWorkers:     getEnvAsInt("SYNTHESIS_WORKERS", 2),
		MemoryHandleCapacity: getEnvAsInt("MEMORY_HANDLE_CAPACITY", 256),
		TenantJWTSecret:      getEnv("TENANT_JWT_SECRET", ""),
		CORSAllowedOrigins:   getEnvAsList("CORS_ALLOWED_ORIGINS"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, dropping blanks
func getEnvAsList(key string) []string {
	var out []string
	for _, part := range strings.Split(getEnv(key, ""), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
