package main

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	LLMProvider     string `yaml:"llm_provider"`
	Model           string `yaml:"model"`
	APIURL          string `yaml:"api_url"`
	APIKey          string `yaml:"api_key"`
	AnthropicAPIKey string `yaml:"anthropic_api_key"`

	MaxWorkers     int `yaml:"max_workers"`
	MaxRetries     int `yaml:"max_retries"`
	RequestTimeout int `yaml:"request_timeout_seconds"`
	CaseRetrieval  int `yaml:"case_retrieval_count"`

	OutputDir string `yaml:"output_dir"`
	DBPath    string `yaml:"db_path"`
	TestFile  string `yaml:"test_file"`
	TrainFile string `yaml:"train_file"`
	CaseFile  string `yaml:"case_file"`
}

func LoadConfig() Config {
	var cfg Config

	// Load from config.yaml if it exists
	configPath := "config.yaml"
	if envPath := os.Getenv("CONFIG_PATH"); envPath != "" {
		configPath = envPath
	}
	if data, err := os.ReadFile(configPath); err == nil {
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			log.Fatalf("Error parsing %s: %v", configPath, err)
		}
		log.Printf("Loaded config from %s", configPath)
	}

	// Env vars override YAML values
	envOverride(&cfg.LLMProvider, "LLM_PROVIDER")
	envOverride(&cfg.Model, "MODEL")
	envOverride(&cfg.APIURL, "API_URL")
	envOverride(&cfg.APIKey, "API_KEY")
	envOverride(&cfg.AnthropicAPIKey, "ANTHROPIC_API_KEY")
	envOverrideInt(&cfg.MaxWorkers, "MAX_WORKERS")
	envOverrideInt(&cfg.MaxRetries, "MAX_RETRIES")
	envOverrideInt(&cfg.RequestTimeout, "REQUEST_TIMEOUT_SECONDS")
	envOverrideInt(&cfg.CaseRetrieval, "CASE_RETRIEVAL_COUNT")
	envOverride(&cfg.OutputDir, "OUTPUT_DIR")
	envOverride(&cfg.DBPath, "DB_PATH")
	envOverride(&cfg.TestFile, "TEST_FILE")
	envOverride(&cfg.TrainFile, "TRAIN_FILE")
	envOverride(&cfg.CaseFile, "CASE_FILE")

	// Defaults
	if cfg.LLMProvider == "" {
		cfg.LLMProvider = "openai"
	}
	if cfg.Model == "" {
		cfg.Model = "qwen/qwen3-32b"
	}
	if cfg.APIURL == "" {
		cfg.APIURL = "https://openrouter.ai/api/v1/chat/completions"
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 8
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = 90
	}
	if cfg.CaseRetrieval == 0 {
		cfg.CaseRetrieval = 5
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "output"
	}
	if cfg.DBPath == "" {
		cfg.DBPath = "./netdiag.db"
	}
	if cfg.TestFile == "" {
		cfg.TestFile = "phase_2_test.csv"
	}

	// Validate required fields
	switch cfg.LLMProvider {
	case "openai":
		if cfg.APIKey == "" {
			log.Fatalf("api_key is required when llm_provider=openai")
		}
	case "anthropic":
		if cfg.AnthropicAPIKey == "" {
			log.Fatalf("anthropic_api_key is required when llm_provider=anthropic")
		}
	default:
		log.Fatalf("llm_provider must be 'openai' or 'anthropic', got '%s'", cfg.LLMProvider)
	}

	if cfg.MaxWorkers < 1 {
		log.Fatalf("invalid max_workers '%d': must be >= 1", cfg.MaxWorkers)
	}
	if cfg.MaxRetries < 1 {
		log.Fatalf("invalid max_retries '%d': must be >= 1", cfg.MaxRetries)
	}
	if cfg.RequestTimeout < 1 {
		log.Fatalf("invalid request_timeout_seconds '%d': must be >= 1", cfg.RequestTimeout)
	}
	if cfg.CaseRetrieval < 0 {
		log.Fatalf("invalid case_retrieval_count '%d': must be >= 0", cfg.CaseRetrieval)
	}

	return cfg
}

func envOverride(field *string, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		*field = val
	}
}

func envOverrideInt(field *int, envKey string) {
	if val := os.Getenv(envKey); val != "" {
		parsed, err := strconv.Atoi(val)
		if err != nil {
			log.Fatalf("invalid %s '%s': %v", envKey, val, err)
		}
		*field = parsed
	}
}
