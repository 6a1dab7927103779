package llm

import (
	"fmt"
)

// Config holds the configuration for the LLM client.
// Works with any OpenAI-compatible provider (Gemini's OpenAI endpoint,
// OpenRouter, OpenAI, etc.).
//
// Environment Variables (resolved by internal/config):
// - LLM_API_KEY: API key for the provider (required)
// - LLM_API_URL: API endpoint URL
// - LLM_MODEL: Model name to use
// - LLM_MAX_TOKENS: Maximum tokens for responses
// - LLM_TEMPERATURE: Temperature for responses
// - LLM_TIMEOUT: Request timeout in seconds
// - LLM_SITE_URL: Site URL for HTTP referer header (optional)
// - LLM_APP_NAME: Application name for X-Title header (optional)
type Config struct {
	APIKey      string  `json:"api_key"`
	APIURL      string  `json:"api_url"`
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Timeout     int     `json:"timeout"`
	SiteURL     string  `json:"site_url"`
	AppName     string  `json:"app_name"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("API key is required")
	}
	if c.APIURL == "" {
		return fmt.Errorf("API URL is required")
	}
	if c.Model == "" {
		return fmt.Errorf("model is required")
	}
	if c.MaxTokens < 1 {
		return fmt.Errorf("max tokens must be greater than 0")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("temperature must be between 0 and 2")
	}
	if c.Timeout < 1 {
		return fmt.Errorf("timeout must be greater than 0")
	}
	return nil
}

// GetHeaders returns the headers for the LLM API request
func (c *Config) GetHeaders() map[string]string {
	headers := map[string]string{
		"Authorization": "Bearer " + c.APIKey,
		"Content-Type":  "application/json",
	}

	if c.SiteURL != "" {
		headers["HTTP-Referer"] = c.SiteURL
	}
	if c.AppName != "" {
		headers["X-Title"] = c.AppName
	}

	return headers
}
