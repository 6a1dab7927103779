package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"
)

// Client is a generic client for OpenAI-compatible chat completion APIs.
// Thread-safe for concurrent use.
type Client struct {
	config     *Config
	httpClient *http.Client
	baseURL    string
}

// NewClient creates a new LLM client with the given configuration
func NewClient(config *Config) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client := &Client{
		config:  config,
		baseURL: config.APIURL,
		httpClient: &http.Client{
			Timeout: time.Duration(config.Timeout) * time.Second,
		},
	}

	return client, nil
}

// ChatCompletion creates a chat completion request to the configured LLM API
func (c *Client) ChatCompletion(ctx context.Context, messages []Message, opts *ChatCompletionOptions) (*ChatResponse, error) {
	if opts == nil {
		opts = NewChatCompletionOptions()
	}

	if opts.SystemPrompt != "" {
		systemMessage := Message{
			Role:    "system",
			Content: opts.SystemPrompt,
		}
		messages = append([]Message{systemMessage}, messages...)
	}

	request := ChatRequest{
		Model:       c.config.Model,
		Messages:    messages,
		MaxTokens:   c.getMaxTokens(opts),
		Temperature: c.getTemperature(opts),
	}

	response, err := c.makeRequest(ctx, "POST", "/chat/completions", request)
	if err != nil {
		return response, fmt.Errorf("chat completion failed: %w", err)
	}

	return response, nil
}

// Complete sends a single user prompt (with an optional system prompt) and
// returns the assistant's response content.
func (c *Client) Complete(ctx context.Context, systemPrompt, prompt string) (string, error) {
	messages := []Message{
		{Role: "user", Content: prompt},
	}

	opts := NewChatCompletionOptions()
	if systemPrompt != "" {
		opts = opts.WithSystemPrompt(systemPrompt)
	}
	opts = opts.WithMaxTokens(c.config.MaxTokens).WithTemperature(c.config.Temperature)

	response, err := c.ChatCompletion(ctx, messages, opts)
	if err != nil {
		return "", err
	}

	if len(response.Choices) == 0 {
		return "", fmt.Errorf("no choices in response")
	}

	return response.Choices[0].Message.Content, nil
}

// makeRequest makes a raw HTTP request to the configured LLM API
func (c *Client) makeRequest(ctx context.Context, method, path string, payload interface{}) (*ChatResponse, error) {
	url := c.baseURL + path

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	headers := c.config.GetHeaders()
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if os.IsTimeout(err) {
			return nil, fmt.Errorf("request timed out: %w", err)
		}
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	responseBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	var chatResponse ChatResponse
	if err := json.Unmarshal(responseBody, &chatResponse); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// Check for API errors
	if chatResponse.Error != nil && chatResponse.Error.Message != "" {
		chatResponse.Error.StatusCode = resp.StatusCode
		return &chatResponse, chatResponse.Error
	}

	// Check HTTP status
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &chatResponse, &Error{
			Message:    string(responseBody),
			Type:       "http_error",
			StatusCode: resp.StatusCode,
		}
	}

	return &chatResponse, nil
}

// getMaxTokens returns the max tokens to use for the request
func (c *Client) getMaxTokens(opts *ChatCompletionOptions) int {
	if opts.MaxTokens > 0 {
		return opts.MaxTokens
	}
	return c.config.MaxTokens
}

// getTemperature returns the temperature to use for the request
func (c *Client) getTemperature(opts *ChatCompletionOptions) float64 {
	if opts.Temperature >= 0 && opts.Temperature <= 2 {
		return opts.Temperature
	}
	return c.config.Temperature
}
