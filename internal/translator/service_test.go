package translator

import (
	"context"
	"errors"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/Paul60209/toolbench/internal/observe"
	"github.com/Paul60209/toolbench/pkg/provider/llm"
	llmmock "github.com/Paul60209/toolbench/pkg/provider/llm/mock"
)

func TestSystemInstruction(t *testing.T) {
	t.Parallel()

	got := SystemInstruction("English", "Japanese")
	if !strings.Contains(got, "from English to Japanese") {
		t.Errorf("instruction does not name the language pair:\n%s", got)
	}
	for _, rule := range []string{
		"formatting symbols",
		"special characters",
		"whitespace and line breaks",
		"actual text content",
		"tone and style",
		"explanations or notes",
		"numbers and dates",
		"proper nouns",
	} {
		if !strings.Contains(got, rule) {
			t.Errorf("instruction missing rule about %q", rule)
		}
	}
}

func TestLLMService_Translate(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{
		CompleteResponse: &llm.CompletionResponse{Content: "  Guten Tag  "},
	}

	svc := NewLLMService(provider)
	out, err := svc.Translate(context.Background(), "Good day", "instruction text")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if out != "Guten Tag" {
		t.Errorf("Translate = %q, want trimmed %q", out, "Guten Tag")
	}

	if len(provider.CompleteCalls) != 1 {
		t.Fatalf("Complete calls = %d, want 1", len(provider.CompleteCalls))
	}
	req := provider.CompleteCalls[0].Req
	if req.SystemPrompt != "instruction text" {
		t.Errorf("SystemPrompt = %q, want instruction passed through", req.SystemPrompt)
	}
	if len(req.Messages) != 1 || req.Messages[0].Role != "user" || req.Messages[0].Content != "Good day" {
		t.Errorf("Messages = %+v, want single user message with the text", req.Messages)
	}
	if req.Temperature != 0 {
		t.Errorf("Temperature = %v, want 0", req.Temperature)
	}
}

func TestLLMService_ProviderError(t *testing.T) {
	t.Parallel()

	wantErr := errors.New("rate limited")
	provider := &llmmock.Provider{CompleteErr: wantErr}

	svc := NewLLMService(provider)
	if _, err := svc.Translate(context.Background(), "text", "sys"); !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
}

func TestLLMService_RecordsMetrics(t *testing.T) {
	t.Parallel()

	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	ok := NewLLMService(
		&llmmock.Provider{CompleteResponse: &llm.CompletionResponse{Content: "Hallo"}},
		WithServiceMetrics(metrics, "openai"),
	)
	if _, err := ok.Translate(context.Background(), "Hello", "sys"); err != nil {
		t.Fatalf("Translate: %v", err)
	}

	failing := NewLLMService(
		&llmmock.Provider{CompleteErr: errors.New("rate limited")},
		WithServiceMetrics(metrics, "openai"),
	)
	if _, err := failing.Translate(context.Background(), "Hello", "sys"); err == nil {
		t.Fatal("Translate succeeded, want provider error")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	if got := counterTotal(rm, "toolbench.provider.requests"); got != 2 {
		t.Errorf("provider.requests total = %d, want 2", got)
	}
	if got := counterTotal(rm, "toolbench.provider.errors"); got != 1 {
		t.Errorf("provider.errors total = %d, want 1", got)
	}
	if got := histogramCount(rm, "toolbench.llm.duration"); got != 2 {
		t.Errorf("llm.duration data point count = %d, want 2", got)
	}
}

// counterTotal sums all data points of the named Int64 counter.
func counterTotal(rm metricdata.ResourceMetrics, name string) int64 {
	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if sum, ok := m.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range sum.DataPoints {
					total += dp.Value
				}
			}
		}
	}
	return total
}

// histogramCount sums the recorded-value counts of the named histogram.
func histogramCount(rm metricdata.ResourceMetrics, name string) uint64 {
	var count uint64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			if h, ok := m.Data.(metricdata.Histogram[float64]); ok {
				for _, dp := range h.DataPoints {
					count += dp.Count
				}
			}
		}
	}
	return count
}

func TestLLMService_EmptyResponse(t *testing.T) {
	t.Parallel()

	provider := &llmmock.Provider{CompleteResponse: &llm.CompletionResponse{}}

	svc := NewLLMService(provider)
	if _, err := svc.Translate(context.Background(), "text", "sys"); err == nil {
		t.Error("Translate succeeded on empty response, want error")
	}
}
