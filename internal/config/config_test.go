package config

import (
	"testing"
	"time"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
}

func TestEnvFloatValid(t *testing.T) {
	t.Setenv("TEST_FLOAT", "0.75")
	v, err := envFloat("TEST_FLOAT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 0.75 {
		t.Fatalf("expected 0.75, got %f", v)
	}
}

func TestEnvFloatInvalid(t *testing.T) {
	t.Setenv("TEST_FLOAT_BAD", "nope")
	_, err := envFloat("TEST_FLOAT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-float value, got nil")
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
}

func TestLoadFailsOnInvalidEmbeddingDimensions(t *testing.T) {
	t.Setenv("CRT_EMBEDDING_DIMENSIONS", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid CRT_EMBEDDING_DIMENSIONS")
	}
	if !contains(err.Error(), "CRT_EMBEDDING_DIMENSIONS") {
		t.Fatalf("error should mention CRT_EMBEDDING_DIMENSIONS, got: %s", err.Error())
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("CRT_EMBEDDING_DIMENSIONS", "abc")
	t.Setenv("CRT_TRUST_ALPHA", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !contains(got, "CRT_EMBEDDING_DIMENSIONS") {
		t.Fatalf("error should mention CRT_EMBEDDING_DIMENSIONS, got: %s", got)
	}
	if !contains(got, "CRT_TRUST_ALPHA") {
		t.Fatalf("error should mention CRT_TRUST_ALPHA, got: %s", got)
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.EmbeddingDimensions != 384 {
		t.Fatalf("expected default embedding dimensions 384, got %d", cfg.EmbeddingDimensions)
	}
	if cfg.LearnedModelPath != "" {
		t.Fatal("expected empty learned model path by default")
	}
	if cfg.TrustAlpha != 0.6 {
		t.Fatalf("expected default trust alpha 0.6, got %f", cfg.TrustAlpha)
	}
}

func TestValidate_RejectsBadDisclosureThresholds(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.DisclosureRejectBelow = 0.8
	cfg.DisclosureAcceptAbove = 0.2
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate() to reject inverted disclosure thresholds")
	}
}

func TestValidate_RejectsArchiveBeforeFreshness(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.FreshnessWindow = 30 * 24 * time.Hour
	cfg.ArchiveDays = 7 * 24 * time.Hour
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected Validate() to reject archive window shorter than freshness window")
	}
}

func TestLoad_LearnedModelPathValidation(t *testing.T) {
	bogusPath := "/tmp/crt-test-nonexistent-model-file.bin"
	t.Setenv("CRT_LEARNED_MODEL_PATH", bogusPath)

	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail when CRT_LEARNED_MODEL_PATH points to a nonexistent file")
	}
	if !contains(err.Error(), bogusPath) {
		t.Fatalf("error should mention the path %q, got: %s", bogusPath, err.Error())
	}
}

func TestLoad_AllEnvVarsHonored(t *testing.T) {
	t.Setenv("CRT_DATA_DIR", "/tmp/crt-data")
	t.Setenv("CRT_TRUST_ALPHA", "0.8")
	t.Setenv("CRT_RECENCY_HALF_LIFE", "168h")
	t.Setenv("CRT_REFLECT_THRESHOLD", "0.4")
	t.Setenv("CRT_FRESHNESS_WINDOW", "48h")
	t.Setenv("CRT_ARCHIVE_DAYS", "240h")
	t.Setenv("CRT_LOG_LEVEL", "debug")
	t.Setenv("CRT_HIGH_STAKES_SLOTS", "medical, financial")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed, got: %v", err)
	}

	if cfg.DataDir != "/tmp/crt-data" {
		t.Fatalf("expected DataDir %q, got %q", "/tmp/crt-data", cfg.DataDir)
	}
	if cfg.TrustAlpha != 0.8 {
		t.Fatalf("expected TrustAlpha 0.8, got %f", cfg.TrustAlpha)
	}
	if cfg.RecencyHalfLife != 168*time.Hour {
		t.Fatalf("expected RecencyHalfLife 168h, got %s", cfg.RecencyHalfLife)
	}
	if cfg.ReflectThreshold != 0.4 {
		t.Fatalf("expected ReflectThreshold 0.4, got %f", cfg.ReflectThreshold)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("expected LogLevel %q, got %q", "debug", cfg.LogLevel)
	}
	if len(cfg.HighStakesSlots) != 2 {
		t.Fatalf("expected 2 high-stakes slots, got %d", len(cfg.HighStakesSlots))
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && searchSubstring(s, substr)
}

func searchSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
