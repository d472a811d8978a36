package main

import (
	"os"
	"path/filepath"
	"testing"
)

func clearConfigEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"LLM_PROVIDER", "MODEL", "API_URL", "API_KEY", "ANTHROPIC_API_KEY",
		"MAX_WORKERS", "MAX_RETRIES", "REQUEST_TIMEOUT_SECONDS", "CASE_RETRIEVAL_COUNT",
		"OUTPUT_DIR", "DB_PATH", "TEST_FILE", "TRAIN_FILE", "CASE_FILE",
	} {
		t.Setenv(key, "")
	}
}

func writeConfigFile(t *testing.T, content string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("CONFIG_PATH", path)
}

func TestLoadConfigDefaults(t *testing.T) {
	clearConfigEnv(t)
	writeConfigFile(t, "api_key: test-key\n")

	cfg := LoadConfig()
	if cfg.LLMProvider != "openai" {
		t.Errorf("provider = %q, want openai", cfg.LLMProvider)
	}
	if cfg.Model != "qwen/qwen3-32b" {
		t.Errorf("model = %q", cfg.Model)
	}
	if cfg.MaxWorkers != 8 || cfg.MaxRetries != 5 || cfg.RequestTimeout != 90 {
		t.Errorf("worker defaults = %d/%d/%d", cfg.MaxWorkers, cfg.MaxRetries, cfg.RequestTimeout)
	}
	if cfg.CaseRetrieval != 5 {
		t.Errorf("case_retrieval_count = %d, want 5", cfg.CaseRetrieval)
	}
	if cfg.OutputDir != "output" || cfg.DBPath != "./netdiag.db" {
		t.Errorf("paths = %q/%q", cfg.OutputDir, cfg.DBPath)
	}
	if cfg.TestFile != "phase_2_test.csv" {
		t.Errorf("test_file = %q", cfg.TestFile)
	}
}

func TestLoadConfigYAMLValues(t *testing.T) {
	clearConfigEnv(t)
	writeConfigFile(t, `
api_key: yaml-key
model: custom-model
max_workers: 2
request_timeout_seconds: 30
train_file: train.csv
`)

	cfg := LoadConfig()
	if cfg.APIKey != "yaml-key" || cfg.Model != "custom-model" {
		t.Errorf("yaml values not loaded: %+v", cfg)
	}
	if cfg.MaxWorkers != 2 || cfg.RequestTimeout != 30 {
		t.Errorf("yaml ints = %d/%d", cfg.MaxWorkers, cfg.RequestTimeout)
	}
	if cfg.TrainFile != "train.csv" {
		t.Errorf("train_file = %q", cfg.TrainFile)
	}
}

func TestLoadConfigEnvOverridesYAML(t *testing.T) {
	clearConfigEnv(t)
	writeConfigFile(t, "api_key: yaml-key\nmodel: yaml-model\nmax_workers: 2\n")
	t.Setenv("API_KEY", "env-key")
	t.Setenv("MODEL", "env-model")
	t.Setenv("MAX_WORKERS", "3")

	cfg := LoadConfig()
	if cfg.APIKey != "env-key" || cfg.Model != "env-model" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.MaxWorkers != 3 {
		t.Errorf("max_workers = %d, want 3", cfg.MaxWorkers)
	}
}

func TestLoadConfigAnthropicProvider(t *testing.T) {
	clearConfigEnv(t)
	writeConfigFile(t, "llm_provider: anthropic\nanthropic_api_key: ant-key\n")

	cfg := LoadConfig()
	if cfg.LLMProvider != "anthropic" || cfg.AnthropicAPIKey != "ant-key" {
		t.Errorf("anthropic config = %+v", cfg)
	}
}
