package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

type Config struct {
	LLMProvider    string `yaml:"llm_provider"`
	OpenAIAPIKey   string `yaml:"openai_api_key"`
	OpenAIBaseURL  string `yaml:"openai_base_url"`
	GeminiAPIKey   string `yaml:"gemini_api_key"`
	ChatModel      string `yaml:"chat_model"`
	EmbeddingModel string `yaml:"embedding_model"`
	DatabaseURL    string `yaml:"database_url"`
	HTTPPort       string `yaml:"http_port"`
	LogLevel       string `yaml:"log_level"`
	SessionSecret  string `yaml:"session_secret"`
	IndexPath      string `yaml:"index_path"`
	ManualsDir     string `yaml:"manuals_dir"`
	MaxToolRounds  int    `yaml:"max_tool_rounds"`

	// Upper bound for one chat turn, model and tool calls included.
	TurnTimeoutSeconds int `yaml:"turn_timeout_seconds"`
}

const (
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

var AppConfig Config

// LoadConfig populates AppConfig and exits the process when it is invalid.
func LoadConfig() {
	if err := godotenv.Load(); err != nil { // Load .env file if it exists
		log.Debug("No .env file found, relying on environment variables")
	}

	cfg, err := Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}
	AppConfig = cfg
}

// Load builds a Config from defaults, the optional YAML file at path and the
// environment, in increasing order of precedence.
func Load(path string) (Config, error) {
	cfg := Config{
		LLMProvider:   ProviderOpenAI,
		DatabaseURL:   "customers.db",
		HTTPPort:      "8000",
		LogLevel:      "info",
		IndexPath:     "manual_index.db",
		ManualsDir:    "manuals",
		MaxToolRounds: 6,

		TurnTimeoutSeconds: 90,
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	cfg.LLMProvider = getEnv("LLM_PROVIDER", cfg.LLMProvider)
	cfg.OpenAIAPIKey = getEnv("OPENAI_API_KEY", cfg.OpenAIAPIKey)
	cfg.OpenAIBaseURL = getEnv("OPENAI_BASE_URL", cfg.OpenAIBaseURL)
	cfg.GeminiAPIKey = getEnv("GEMINI_API_KEY", cfg.GeminiAPIKey)
	cfg.ChatModel = getEnv("CHAT_MODEL", cfg.ChatModel)
	cfg.EmbeddingModel = getEnv("EMBEDDING_MODEL", cfg.EmbeddingModel)
	cfg.DatabaseURL = getEnv("DATABASE_URL", cfg.DatabaseURL)
	cfg.HTTPPort = getEnv("HTTP_PORT", cfg.HTTPPort)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.SessionSecret = getEnv("SESSION_SECRET", cfg.SessionSecret)
	cfg.IndexPath = getEnv("INDEX_PATH", cfg.IndexPath)
	cfg.ManualsDir = getEnv("MANUALS_DIR", cfg.ManualsDir)
	cfg.MaxToolRounds = getEnvAsInt("MAX_TOOL_ROUNDS", cfg.MaxToolRounds)
	cfg.TurnTimeoutSeconds = getEnvAsInt("TURN_TIMEOUT_SECONDS", cfg.TurnTimeoutSeconds)

	applyModelDefaults(&cfg)
	return cfg, cfg.Validate()
}

func applyModelDefaults(cfg *Config) {
	switch cfg.LLMProvider {
	case ProviderGemini:
		if cfg.ChatModel == "" {
			cfg.ChatModel = "gemini-1.5-flash-latest"
		}
		if cfg.EmbeddingModel == "" {
			cfg.EmbeddingModel = "text-embedding-004"
		}
	default:
		if cfg.ChatModel == "" {
			cfg.ChatModel = "gpt-4o-mini"
		}
		if cfg.EmbeddingModel == "" {
			cfg.EmbeddingModel = "text-embedding-3-small"
		}
	}
}

// Validate checks the settings every command needs. The session secret is
// checked separately by the server since ingestion does not use it.
func (c Config) Validate() error {
	switch c.LLMProvider {
	case ProviderOpenAI:
		if c.OpenAIAPIKey == "" {
			return errors.New("OPENAI_API_KEY environment variable is required")
		}
	case ProviderGemini:
		if c.GeminiAPIKey == "" {
			return errors.New("GEMINI_API_KEY environment variable is required")
		}
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.MaxToolRounds <= 0 {
		return errors.New("MAX_TOOL_ROUNDS must be positive")
	}
	if c.TurnTimeoutSeconds <= 0 {
		return errors.New("TURN_TIMEOUT_SECONDS must be positive")
	}
	return nil
}

func (c Config) TurnTimeout() time.Duration {
	return time.Duration(c.TurnTimeoutSeconds) * time.Second
}

func getEnv(key string, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}
