// Package provider implements LLM provider abstractions for the
// diagnosis engine. Domain agents, the synthesizer, the critic, and the
// investigation router all consume the Provider interface; the concrete
// implementation is Anthropic. All reasoning calls are bounded by the
// caller's context deadline.
package provider

import (
	"context"
	"encoding/json"
)

// Message represents a conversation message.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Role represents the message sender role.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Response represents the model's response.
type Response struct {
	// Content is the text content of the response
	Content string

	// StopReason indicates why the model stopped generating
	StopReason StopReason

	// Usage contains token usage information
	Usage Usage
}

// StopReason indicates why the model stopped generating.
type StopReason string

const (
	StopReasonEndTurn   StopReason = "end_turn"
	StopReasonMaxTokens StopReason = "max_tokens"
	StopReasonError     StopReason = "error"
)

// Usage contains token usage information.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Provider defines the interface for LLM providers.
type Provider interface {
	// Chat sends messages to the model and returns the complete response.
	Chat(ctx context.Context, systemPrompt string, messages []Message) (*Response, error)

	// Name returns the provider name for logging and display.
	Name() string

	// Model returns the model identifier being used.
	Model() string
}

// Config contains common configuration for providers.
type Config struct {
	// Model is the model identifier (e.g., "claude-sonnet-4-5-20250929")
	Model string

	// MaxTokens is the maximum number of tokens to generate
	MaxTokens int

	// Temperature controls randomness (0.0 = deterministic)
	Temperature float64
}

// DefaultConfig returns sensible defaults for diagnosis workloads.
func DefaultConfig() Config {
	return Config{
		Model:       "claude-sonnet-4-5-20250929",
		MaxTokens:   4096,
		Temperature: 0.0, // Deterministic for incident diagnosis
	}
}

// ChatJSON sends a prompt expecting a strict-JSON reply and unmarshals
// the first {...} block into out. The raw response text is returned for
// logging. An unparsable reply returns an error; callers degrade to an
// empty result of the expected shape per their own contract.
func ChatJSON(ctx context.Context, p Provider, systemPrompt, userPrompt string, out any) (string, error) {
	resp, err := p.Chat(ctx, systemPrompt, []Message{{Role: RoleUser, Content: userPrompt}})
	if err != nil {
		return "", err
	}
	block, err := ExtractJSONBlock(resp.Content)
	if err != nil {
		return resp.Content, err
	}
	if err := json.Unmarshal([]byte(block), out); err != nil {
		return resp.Content, err
	}
	return resp.Content, nil
}
