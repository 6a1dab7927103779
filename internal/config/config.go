package config

import (
	"fmt"
	"os"
	"strconv"

	"golang.org/x/text/language"

	"github.com/kweilin/lessonforge/pkg/log"
)

// Config holds all application configuration.
// Supports environment variables with sensible defaults.
//
// Environment Variables:
// LLM Configuration:
// - LLM_API_KEY: API key for the LLM provider (required)
// - LLM_API_URL: OpenAI-compatible endpoint URL (default: Gemini's compat endpoint)
// - LLM_MODEL: Model name to use (default: gemini-2.5-flash)
// - LLM_MAX_TOKENS: Maximum tokens for responses (default: 8000)
// - LLM_TEMPERATURE: Temperature for responses (default: 0.3)
// - LLM_TIMEOUT: Request timeout in seconds (default: 120)
// - LLM_SITE_URL: Site URL for HTTP referer header (optional)
// - LLM_APP_NAME: Application name for X-Title header (optional)
//
// Speech Recognition:
// - WHISPER_API_URL: Whisper HTTP API base URL (required)
// - WHISPER_API_TOKEN: Bearer token (optional)
// - WHISPER_MODEL: Model name (default: base)
// - WHISPER_TIMEOUT: Request timeout in seconds (default: 600)
// - WHISPER_RETRIES: Retry budget for transient failures (default: 3)
//
// Pipeline:
// - OUTPUT_DIR: Lesson artifact directory (default: ./app_assets)
// - TEMP_DIR: Download scratch directory (default: ./temp_downloads)
// - BATCH_SIZE: Segments per translation batch (default: 15)
// - BATCH_CONCURRENCY: Concurrent batches in flight (default: 1)
// - TARGET_LANG: BCP 47 tag of the translation target (default: zh-Hant)
// - TARGET_LANG_NAME: Prompt-facing language name (default: Traditional Chinese (Taiwan))
//
// Service:
// - CRON_EXPR: Watchlist scan schedule (default: */30 * * * *)
// - WATCHLIST: Path to the URL watchlist file (default: ./watchlist.txt)
// - WORKER_COUNT: Queue worker goroutines (default: 1)
// - DB_PATH: Job queue sqlite path (default: ./data/lessonforge.db)

type Config struct {
	LLM       LLMConfig       `json:"llm"`
	Whisper   WhisperConfig   `json:"whisper"`
	Pipeline  PipelineConfig  `json:"pipeline"`
	Translate TranslateConfig `json:"translate"`
	Service   ServiceConfig   `json:"service"`
}

// LLMConfig holds the configuration for the LLM client.
// Supports any OpenAI-compatible provider.
type LLMConfig struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

// WhisperConfig holds the configuration for the speech recognition API.
type WhisperConfig struct {
	BaseURL        string `json:"base_url"`
	Token          string `json:"token"`
	Model          string `json:"model"`
	TimeoutSeconds int    `json:"timeout_seconds"`
	Retries        int    `json:"retries"`
}

// PipelineConfig holds directories and batching knobs.
type PipelineConfig struct {
	OutputDir        string `json:"output_dir"`
	TempDir          string `json:"temp_dir"`
	BatchSize        int    `json:"batch_size"`
	BatchConcurrency int    `json:"batch_concurrency"`
}

// TranslateConfig holds the translation target.
type TranslateConfig struct {
	TargetLanguage     language.Tag `json:"target_language"`
	TargetLanguageName string       `json:"target_language_name"`
}

// ServiceConfig holds the daemon configuration.
type ServiceConfig struct {
	CronExpr    string `json:"cron_expr"`
	Watchlist   string `json:"watchlist"`
	WorkerCount int    `json:"worker_count"`
	DBPath      string `json:"db_path"`
}

// Option is a function type for configuring Config
type Option func(*Config)

// NewFromEnv creates a new Config instance with values from environment variables and options
func NewFromEnv(opts ...Option) (*Config, error) {
	config := &Config{
		LLM: LLMConfig{
			APIKey:      getEnvString("LLM_API_KEY", ""),
			APIURL:      getEnvString("LLM_API_URL", "https://generativelanguage.googleapis.com/v1beta/openai"),
			Model:       getEnvString("LLM_MODEL", "gemini-2.5-flash"),
			MaxTokens:   getEnvInt("LLM_MAX_TOKENS", 8000),
			Temperature: getEnvFloat("LLM_TEMPERATURE", 0.3),
			Timeout:     getEnvInt("LLM_TIMEOUT", 120),
			SiteURL:     getEnvString("LLM_SITE_URL", ""),
			AppName:     getEnvString("LLM_APP_NAME", ""),
		},
		Whisper: WhisperConfig{
			BaseURL:        getEnvString("WHISPER_API_URL", ""),
			Token:          getEnvString("WHISPER_API_TOKEN", ""),
			Model:          getEnvString("WHISPER_MODEL", "base"),
			TimeoutSeconds: getEnvInt("WHISPER_TIMEOUT", 600),
			Retries:        getEnvInt("WHISPER_RETRIES", 3),
		},
		Pipeline: PipelineConfig{
			OutputDir:        getEnvString("OUTPUT_DIR", "./app_assets"),
			TempDir:          getEnvString("TEMP_DIR", "./temp_downloads"),
			BatchSize:        getEnvInt("BATCH_SIZE", 15),
			BatchConcurrency: getEnvInt("BATCH_CONCURRENCY", 1),
		},
		Translate: TranslateConfig{
			TargetLanguage:     parseLangTag(getEnvString("TARGET_LANG", "zh-Hant")),
			TargetLanguageName: getEnvString("TARGET_LANG_NAME", "Traditional Chinese (Taiwan)"),
		},
		Service: ServiceConfig{
			CronExpr:    getEnvString("CRON_EXPR", "*/30 * * * *"),
			Watchlist:   getEnvString("WATCHLIST", "./watchlist.txt"),
			WorkerCount: getEnvInt("WORKER_COUNT", 1),
			DBPath:      getEnvString("DB_PATH", "./data/lessonforge.db"),
		},
	}

	// Apply custom options
	for _, opt := range opts {
		opt(config)
	}

	if err := config.validate(); err != nil {
		return nil, err
	}

	log.Info("Config loaded: model=%s target=%s output=%s", config.LLM.Model, config.Translate.TargetLanguage, config.Pipeline.OutputDir)
	return config, nil
}

// validate checks if all required configuration is properly set
func (c *Config) validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("LLM_API_KEY is required")
	}
	if c.Whisper.BaseURL == "" {
		return fmt.Errorf("WHISPER_API_URL is required")
	}
	if c.Pipeline.BatchSize <= 0 {
		return fmt.Errorf("BATCH_SIZE must be positive")
	}
	return nil
}

func parseLangTag(value string) language.Tag {
	tag, err := language.Parse(value)
	if err != nil {
		log.Warn("Invalid TARGET_LANG %q, falling back to zh-Hant: %v", value, err)
		return language.TraditionalChinese
	}
	return tag
}

// getEnvString gets a string value from environment variables with default
func getEnvString(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt gets an integer value from environment variables with default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat gets a float value from environment variables with default
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}
