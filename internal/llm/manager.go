package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"golang.org/x/time/rate"

	"jobsift/internal/config"
	"jobsift/internal/logging"
	"jobsift/internal/logging/types"
)

// Manager manages the generation provider and its lifecycle. All pipeline
// stages go through the manager, which rate-limits outbound API calls.
type Manager struct {
	config   *config.Config
	factory  *Factory
	provider Provider
	limiter  *rate.Limiter
	logger   types.Logger
	mu       sync.RWMutex
	healthy  bool
}

// NewManager creates a new generation manager instance
func NewManager(cfg *config.Config) *Manager {
	perMin := cfg.LLM.RatePerMin
	if perMin <= 0 {
		perMin = 30
	}

	return &Manager{
		config:  cfg,
		factory: NewFactory(cfg),
		limiter: rate.NewLimiter(rate.Limit(float64(perMin)/60.0), perMin),
		logger:  logging.GetGlobalLogger(),
	}
}

// Start initializes the manager and creates the provider. A failed health
// check is not fatal: the pipeline runs in fallback mode without the
// generation capability.
func (m *Manager) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.logger.Info("Starting generation manager", map[string]interface{}{
		"provider": m.config.LLM.Provider,
	})

	provider, err := m.factory.CreateProvider()
	if err != nil {
		return fmt.Errorf("failed to create generation provider: %w", err)
	}
	m.provider = provider

	if m.config.LLM.APIKey == "" {
		m.logger.Warn("Generation API key not configured - extraction will use deterministic fallbacks", nil)
		m.healthy = false
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), m.config.LLM.Timeout)
	defer cancel()

	if err := m.provider.IsHealthy(ctx); err != nil {
		m.logger.Warn("Generation provider health check failed - extraction will use deterministic fallbacks", map[string]interface{}{
			"error": err.Error(),
		})
		m.healthy = false
	} else {
		m.healthy = true
		m.logger.Info("Generation manager started successfully", map[string]interface{}{
			"provider": m.provider.GetProviderName(),
		})
	}

	return nil
}

// Stop shuts down the manager
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.provider = nil
	m.healthy = false
	return nil
}

// Enabled reports whether the generation capability is available. The
// pipeline checks this before attempting any model call.
func (m *Manager) Enabled() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy && m.provider != nil
}

// GenerateJSON issues one rate-limited structured-generation request with
// the configured per-call timeout.
func (m *Manager) GenerateJSON(ctx context.Context, prompt string) (string, error) {
	m.mu.RLock()
	provider := m.provider
	healthy := m.healthy
	m.mu.RUnlock()

	if provider == nil || !healthy {
		return "", fmt.Errorf("generation capability is not available")
	}

	if err := m.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("rate limiter interrupted: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, m.config.LLM.Timeout)
	defer cancel()

	return provider.GenerateJSON(callCtx, prompt)
}

// GenerateInto issues a structured-generation request and unmarshals the
// JSON reply into out.
func (m *Manager) GenerateInto(ctx context.Context, prompt string, out interface{}) error {
	raw, err := m.GenerateJSON(ctx, prompt)
	if err != nil {
		return err
	}

	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return fmt.Errorf("failed to parse generation response: %w", err)
	}

	return nil
}

// GetProviderName returns the name of the current provider
func (m *Manager) GetProviderName() string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.provider != nil {
		return m.provider.GetProviderName()
	}
	return "none"
}
