package llm

import "context"

// Provider defines the interface for structured-generation providers. A
// provider receives a prompt describing the desired JSON shape and returns
// the raw JSON text of the model's reply.
type Provider interface {
	// GenerateJSON issues one structured-generation request and returns the
	// model's JSON output with any markdown fencing stripped.
	GenerateJSON(ctx context.Context, prompt string) (string, error)

	// IsHealthy checks if the provider is healthy and available
	IsHealthy(ctx context.Context) error

	// GetProviderName returns the name of the provider
	GetProviderName() string
}
