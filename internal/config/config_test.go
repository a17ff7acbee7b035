package config

import (
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{"PORT", "SESSION_TTL", "SESSION_SWEEP_INTERVAL", "NATS_URL", "OPENAI_API_KEY", "MAX_UPLOAD_BYTES", "SESSION_STORE"} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 8080 {
		t.Errorf("Port = %d, want 8080", cfg.Port)
	}
	if cfg.SessionTTL != 24*time.Hour {
		t.Errorf("SessionTTL = %v, want 24h", cfg.SessionTTL)
	}
	if cfg.SessionSweepInterval != time.Hour {
		t.Errorf("SessionSweepInterval = %v, want 1h", cfg.SessionSweepInterval)
	}
	if cfg.ShareURLPrefix != "/split-receipt/items?session=" {
		t.Errorf("ShareURLPrefix = %q", cfg.ShareURLPrefix)
	}
	if cfg.NATSURL != "" || cfg.OpenAIAPIKey != "" {
		t.Error("optional integrations should be disabled by default")
	}
	if cfg.SessionStore != "memory" {
		t.Errorf("SessionStore = %q, want memory", cfg.SessionStore)
	}
	if cfg.MaxUploadBytes != 10<<20 {
		t.Errorf("MaxUploadBytes = %d", cfg.MaxUploadBytes)
	}
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("SESSION_TTL", "30m")
	t.Setenv("NATS_URL", "nats://localhost:4222")
	t.Setenv("SESSION_STORE", "sqlite")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Port != 9090 || cfg.SessionTTL != 30*time.Minute || cfg.NATSURL != "nats://localhost:4222" || cfg.SessionStore != "sqlite" {
		t.Errorf("overrides not applied: %+v", cfg)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"PORT", "http"},
		{"SESSION_TTL", "forever"},
		{"SESSION_SWEEP_INTERVAL", "-1h"},
		{"MAX_UPLOAD_BYTES", "0"},
		{"SESSION_STORE", "postgres"},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			if _, err := Load(); err == nil {
				t.Errorf("expected error for %s=%q", tt.key, tt.value)
			}
		})
	}
}
