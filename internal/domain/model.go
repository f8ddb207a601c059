package domain

import "context"

// CompletionRequest is a single prompt sent to the model capability.
type CompletionRequest struct {
	Prompt      string
	MaxTokens   int
	Temperature float64
	Stop        []string
}

// CompletionResponse is the raw text the model produced.
type CompletionResponse struct {
	Text  string
	Model string
}

// ModelProvider is the interface for a local language-model backend.
// Callers bound every Complete call with a context deadline; a provider
// must honor cancellation rather than block.
type ModelProvider interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error)
	// Name returns the provider's identifier (e.g., "ollama").
	Name() string
}

// HealthChecker is implemented by providers that can probe their backend.
type HealthChecker interface {
	IsHealthy(ctx context.Context) bool
}
