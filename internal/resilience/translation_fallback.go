package resilience

import (
	"context"

	"github.com/Paul60209/toolbench/internal/translator"
)

// TranslationFallback implements [translator.Service] with automatic failover
// across multiple translation backends. Each backend has its own circuit
// breaker; when the primary fails or its breaker is open, the next healthy
// fallback is tried.
type TranslationFallback struct {
	group *FallbackGroup[translator.Service]
}

// Compile-time interface assertion.
var _ translator.Service = (*TranslationFallback)(nil)

// NewTranslationFallback creates a [TranslationFallback] with primary as the
// preferred backend.
func NewTranslationFallback(primary translator.Service, primaryName string, cfg FallbackConfig) *TranslationFallback {
	return &TranslationFallback{
		group: NewFallbackGroup(primary, primaryName, cfg),
	}
}

// AddFallback registers an additional translation service as a fallback.
func (f *TranslationFallback) AddFallback(name string, service translator.Service) {
	f.group.AddFallback(name, service)
}

// Translate sends the text to the first healthy backend and returns its
// translation. If the primary fails, subsequent fallbacks are tried.
func (f *TranslationFallback) Translate(ctx context.Context, text, systemInstruction string) (string, error) {
	return ExecuteWithResult(f.group, func(s translator.Service) (string, error) {
		return s.Translate(ctx, text, systemInstruction)
	})
}
