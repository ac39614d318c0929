package translator

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/metric"

	"github.com/Paul60209/toolbench/internal/observe"
	"github.com/Paul60209/toolbench/pkg/provider/llm"
)

// Service is the external text-to-text translation collaborator. One call
// translates one run's text. Implementations may fail; the core always treats
// a failure as "keep the original text".
type Service interface {
	// Translate returns text translated according to systemInstruction.
	Translate(ctx context.Context, text, systemInstruction string) (string, error)
}

// SystemInstruction builds the fixed translation instruction for a language
// pair. The rules keep formatting symbols, whitespace, numbers, dates, and
// proper nouns intact so a translated run can be dropped back into its
// original formatting.
func SystemInstruction(sourceLang, targetLang string) string {
	return fmt.Sprintf(`You are a professional translator. Translate the following text from %s to %s.
Rules:
1. Keep all formatting symbols (like bullet points, numbers) unchanged
2. Keep all special characters unchanged
3. Keep all whitespace and line breaks
4. Only translate the actual text content
5. Maintain the same tone and style
6. Do not add any explanations or notes
7. Keep all numbers and dates unchanged
8. Keep all proper nouns unchanged unless they have standard translations`, sourceLang, targetLang)
}

// LLMService implements [Service] on top of an [llm.Provider].
type LLMService struct {
	provider     llm.Provider
	providerName string
	temperature  float64
	metrics      *observe.Metrics
}

// Ensure LLMService satisfies the Service interface at compile time.
var _ Service = (*LLMService)(nil)

// ServiceOption configures an [LLMService].
type ServiceOption func(*LLMService)

// WithServiceMetrics attaches OTel instruments; every completion records its
// latency and outcome under the given provider name. A nil m disables
// recording.
func WithServiceMetrics(m *observe.Metrics, providerName string) ServiceOption {
	return func(s *LLMService) {
		s.metrics = m
		s.providerName = providerName
	}
}

// NewLLMService creates a Service backed by provider. Temperature is fixed at
// zero: translation wants the most deterministic output the model can give.
func NewLLMService(provider llm.Provider, opts ...ServiceOption) *LLMService {
	s := &LLMService{provider: provider}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Translate implements [Service].
func (s *LLMService) Translate(ctx context.Context, text, systemInstruction string) (string, error) {
	start := time.Now()
	resp, err := s.provider.Complete(ctx, llm.CompletionRequest{
		Messages:     []llm.Message{{Role: "user", Content: text}},
		SystemPrompt: systemInstruction,
		Temperature:  s.temperature,
	})
	switch {
	case err != nil:
		s.record(ctx, start, "error")
		return "", fmt.Errorf("translator: completion failed: %w", err)
	case resp == nil || resp.Content == "":
		s.record(ctx, start, "error")
		return "", fmt.Errorf("translator: empty completion response")
	}
	s.record(ctx, start, "ok")
	return strings.TrimSpace(resp.Content), nil
}

func (s *LLMService) record(ctx context.Context, start time.Time, status string) {
	if s.metrics == nil {
		return
	}
	s.metrics.LLMDuration.Record(ctx, time.Since(start).Seconds(),
		metric.WithAttributes(
			observe.Attr("provider", s.providerName),
			observe.Attr("kind", "translation"),
			observe.Attr("status", status),
		))
	s.metrics.RecordProviderRequest(ctx, s.providerName, "translation", status)
	if status != "ok" {
		s.metrics.RecordProviderError(ctx, s.providerName, "translation")
	}
}
