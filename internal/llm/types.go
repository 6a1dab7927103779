package llm

import (
	"fmt"
)

// Message represents a chat message
//
// Role: "system", "user", or "assistant"
// Content: Text content of the message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest represents a chat completion request
// Compatible with OpenAI API format
type ChatRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	MaxTokens   int       `json:"max_tokens,omitempty"`
	Temperature float64   `json:"temperature,omitempty"`
}

// ChatResponse represents a chat completion response
// Compatible with OpenAI API format
type ChatResponse struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`
	Error   *Error   `json:"error,omitempty"`
}

// Choice represents a completion choice
//
// FinishReason values: "stop", "length", "content_filter"
type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason string  `json:"finish_reason"`
}

// Usage represents token usage statistics
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Error represents an API error. StatusCode carries the HTTP status the
// error arrived with so callers can classify auth vs quota failures.
type Error struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Param      string `json:"param,omitempty"`
	Code       string `json:"code,omitempty"`
	StatusCode int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("LLM API Error: %s (type: %s, code: %s, status: %d)", e.Message, e.Type, e.Code, e.StatusCode)
}

// ChatCompletionOptions represents options for chat completion
type ChatCompletionOptions struct {
	SystemPrompt string
	MaxTokens    int
	Temperature  float64
}

// NewChatCompletionOptions creates a new chat completion options with defaults
func NewChatCompletionOptions() *ChatCompletionOptions {
	return &ChatCompletionOptions{
		SystemPrompt: "",
		MaxTokens:    0, // use model default
		Temperature:  0.7,
	}
}

// WithSystemPrompt sets the system prompt
func (o *ChatCompletionOptions) WithSystemPrompt(prompt string) *ChatCompletionOptions {
	o.SystemPrompt = prompt
	return o
}

// WithMaxTokens sets the max tokens
func (o *ChatCompletionOptions) WithMaxTokens(maxTokens int) *ChatCompletionOptions {
	o.MaxTokens = maxTokens
	return o
}

// WithTemperature sets the temperature
func (o *ChatCompletionOptions) WithTemperature(temperature float64) *ChatCompletionOptions {
	o.Temperature = temperature
	return o
}
