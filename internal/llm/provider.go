// Package llm abstracts the structured-extraction model providers.
package llm

import (
	"context"
	"fmt"
)

// Role represents the role of a chat message sender.
type Role string

const (
	RoleSystem Role = "system"
	RoleUser   Role = "user"
)

// Message is one chat message.
type Message struct {
	Role    Role
	Content string
}

// CompletionRequest is a provider-neutral completion request. When
// JSONSchema is set the provider must constrain output to that schema.
type CompletionRequest struct {
	Messages    []Message
	MaxTokens   int
	Temperature float64
	JSONSchema  map[string]any
}

// CompletionResponse carries the model output.
type CompletionResponse struct {
	Content      string
	FinishReason string
}

// Provider is the abstraction over model backends.
type Provider interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResponse, error)
	Name() string
}

// Config holds common provider configuration.
type Config struct {
	Provider string
	APIKey   string
	BaseURL  string
	Model    string
}

// New constructs a provider from config.
func New(cfg Config) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		return NewOpenAIProvider(cfg)
	case "anthropic":
		return NewAnthropicProvider(cfg)
	default:
		return nil, fmt.Errorf("unknown llm provider %q", cfg.Provider)
	}
}
