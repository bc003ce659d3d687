package pipeline

import "context"

// Outcome carries a usable value together with whether a degradation
// occurred producing it. Extraction, enrichment and resume generation all
// share the "capability failed, deterministic fallback" shape; callers use
// the value either way and record the reason when degraded.
type Outcome[T any] struct {
	Value    T
	Degraded bool
	Reason   string
}

// Ok wraps a value produced by the primary path.
func Ok[T any](v T) Outcome[T] {
	return Outcome[T]{Value: v}
}

// Degraded wraps a fallback value and the reason the primary path failed.
func Degraded[T any](v T, reason string) Outcome[T] {
	return Outcome[T]{Value: v, Degraded: true, Reason: reason}
}

// Generator is the slice of the generation manager the pipeline depends on.
type Generator interface {
	// Enabled reports whether the generation capability is available.
	Enabled() bool

	// GenerateInto issues one structured-generation request and unmarshals
	// the JSON reply into out.
	GenerateInto(ctx context.Context, prompt string, out interface{}) error
}
