package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("ENV", "")
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("BEDROCK_MODEL_ID", "")
	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port, got %s", cfg.Port)
	}
	if cfg.Env != "development" {
		t.Fatalf("expected default env, got %s", cfg.Env)
	}
	if cfg.BedrockModelID != "" {
		t.Fatalf("expected default bedrock model empty, got %s", cfg.BedrockModelID)
	}
	if cfg.TTSTimeout != 30*time.Second {
		t.Fatalf("expected default tts timeout, got %s", cfg.TTSTimeout)
	}
	if cfg.SynthesisWorkers != 2 {
		t.Fatalf("expected default synthesis workers, got %d", cfg.SynthesisWorkers)
	}
	if cfg.MemoryHandleCapacity != 256 {
		t.Fatalf("expected default memory handle capacity, got %d", cfg.MemoryHandleCapacity)
	}
	if cfg.EmailProvider != "ses" {
		t.Fatalf("expected default email provider ses, got %s", cfg.EmailProvider)
	}
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("ENV", "production")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://user@host/db")
	t.Setenv("SYNTHESIS_QUEUE_URL", "http://localstack:4566/queue/synthesis")
	t.Setenv("TTS_TIMEOUT", "45s")
	t.Setenv("USE_MEMORY_QUEUE", "true")
	t.Setenv("SYNTHESIS_WORKERS", "4")
	t.Setenv("EMAIL_PROVIDER", "SendGrid")
	cfg := Load()
	if cfg.Port != "9090" {
		t.Fatalf("expected override port, got %s", cfg.Port)
	}
	if cfg.Env != "production" {
		t.Fatalf("expected env override, got %s", cfg.Env)
	}
	if cfg.DatabaseURL != "postgres://user@host/db" {
		t.Fatalf("expected db override, got %s", cfg.DatabaseURL)
	}
	if cfg.SynthesisQueueURL != "http://localstack:4566/queue/synthesis" {
		t.Fatalf("expected queue override, got %s", cfg.SynthesisQueueURL)
	}
	if cfg.TTSTimeout != 45*time.Second {
		t.Fatalf("expected tts timeout override, got %s", cfg.TTSTimeout)
	}
	if !cfg.UseMemoryQueue {
		t.Fatalf("expected memory queue override to be true")
	}
	if cfg.SynthesisWorkers != 4 {
		t.Fatalf("expected synthesis workers override, got %d", cfg.SynthesisWorkers)
	}
	if cfg.EmailProvider != "sendgrid" {
		t.Fatalf("expected normalized email provider, got %s", cfg.EmailProvider)
	}
}

func TestLoadCORSOrigins(t *testing.T) {
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://app.example.com, https://admin.example.com,,")
	cfg := Load()
	if len(cfg.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.CORSAllowedOrigins)
	}
	if cfg.CORSAllowedOrigins[1] != "https://admin.example.com" {
		t.Fatalf("expected trimmed origin, got %q", cfg.CORSAllowedOrigins[1])
	}
}
