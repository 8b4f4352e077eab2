package cost

import (
	"context"
	"io"
	"log/slog"
	"testing"
)

type fakeRepo struct {
	pricing []Pricing
	records []Record
}

func (f *fakeRepo) ListPricing(ctx context.Context) ([]Pricing, error) { return f.pricing, nil }
func (f *fakeRepo) RecordCost(ctx context.Context, rec Record) error {
	f.records = append(f.records, rec)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestRecord_Property8_AnthropicNoCache(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{pricing: []Pricing{
		{Provider: "anthropic", ModelID: "claude-3-5-sonnet-20241022", InputPerMillion: 3, OutputPerMillion: 15},
	}}
	rec := NewRecorder(repo, testLogger())

	body := []byte(`{"model":"claude-3-5-sonnet-20241022","usage":{"input_tokens":1000,"output_tokens":500,"cache_read_input_tokens":0}}`)
	rec.Record(context.Background(), "anthropic", "agent-1", body, nil)

	if len(repo.records) != 1 {
		t.Fatalf("expected one cost record, got %d", len(repo.records))
	}
	got := repo.records[0]
	if got.TotalCostUSD != 0.0105 {
		t.Errorf("total_cost = %v, want 0.0105", got.TotalCostUSD)
	}
	if !got.PricingKnown {
		t.Error("expected pricing_known = true")
	}
}

func TestRecord_Property8_OpenAICached(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{pricing: []Pricing{
		{Provider: "openai", ModelID: "gpt-4o", InputPerMillion: 3, OutputPerMillion: 15},
	}}
	rec := NewRecorder(repo, testLogger())

	body := []byte(`{"model":"gpt-4o","usage":{"prompt_tokens":1000,"completion_tokens":0,"prompt_tokens_details":{"cached_tokens":1000}}}`)
	rec.Record(context.Background(), "openai", "agent-1", body, nil)

	if len(repo.records) != 1 {
		t.Fatalf("expected one cost record, got %d", len(repo.records))
	}
	got := repo.records[0]
	if got.InputCostUSD != 0.0015 {
		t.Errorf("input_cost = %v, want 0.0015 (1000/1e6 * 3 * 0.5)", got.InputCostUSD)
	}
}

func TestRecord_ScenarioD_AnthropicWithCache(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{pricing: []Pricing{
		{Provider: "anthropic", ModelID: "claude-3-5-sonnet-20241022", InputPerMillion: 3, OutputPerMillion: 15},
	}}
	rec := NewRecorder(repo, testLogger())

	body := []byte(`{"usage":{"input_tokens":1000,"output_tokens":500,"cache_read_input_tokens":200},"model":"claude-3-5-sonnet-20241022"}`)
	rec.Record(context.Background(), "anthropic", "agent-A", body, nil)

	if len(repo.records) != 1 {
		t.Fatalf("expected one record")
	}
	got := repo.records[0]
	if got.InputTokens != 1000 || got.OutputTokens != 500 || got.InputCachedTokens != 200 {
		t.Errorf("tokens = %+v", got)
	}
	if !got.PricingKnown {
		t.Error("expected pricing_known = true")
	}
}

func TestRecord_ModelIDNormalization(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{pricing: []Pricing{
		{Provider: "openai", ModelID: "gpt-4o", InputPerMillion: 3, OutputPerMillion: 15},
	}}
	rec := NewRecorder(repo, testLogger())

	body := []byte(`{"model":"gpt-4o-2024-11-20","usage":{"prompt_tokens":100,"completion_tokens":50}}`)
	rec.Record(context.Background(), "openai", "agent-1", body, nil)

	if len(repo.records) != 1 || !repo.records[0].PricingKnown {
		t.Fatalf("expected versioned model id to resolve via alias to gpt-4o pricing, got %+v", repo.records)
	}
}

func TestRecord_PricingUnknown_StillRecordsUsage(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	rec := NewRecorder(repo, testLogger())

	body := []byte(`{"model":"some-new-model","usage":{"prompt_tokens":100,"completion_tokens":50}}`)
	rec.Record(context.Background(), "openai", "agent-1", body, nil)

	if len(repo.records) != 1 {
		t.Fatalf("expected usage to still be recorded")
	}
	got := repo.records[0]
	if got.PricingKnown {
		t.Error("expected pricing_known = false")
	}
	if got.TotalCostUSD != 0 {
		t.Errorf("total_cost = %v, want 0", got.TotalCostUSD)
	}
}

func TestRecord_NoTokens_NoOp(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	rec := NewRecorder(repo, testLogger())

	rec.Record(context.Background(), "openai", "agent-1", []byte(`{"id":"resp_1"}`), nil)
	if len(repo.records) != 0 {
		t.Errorf("expected no records for a usage-free body, got %d", len(repo.records))
	}
}

func TestRecord_MalformedBody_NeverPanics(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{}
	rec := NewRecorder(repo, testLogger())

	rec.Record(context.Background(), "openai", "agent-1", []byte(`not json at all`), nil)
	if len(repo.records) != 0 {
		t.Errorf("expected no records for malformed body")
	}
}

func TestRecord_Gemini(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{pricing: []Pricing{
		{Provider: "gemini", ModelID: "gemini-1.5-pro", InputPerMillion: 1.25, OutputPerMillion: 5},
	}}
	rec := NewRecorder(repo, testLogger())

	body := []byte(`{"modelVersion":"gemini-1.5-pro-002","usageMetadata":{"promptTokenCount":200,"candidatesTokenCount":100,"cachedContentTokenCount":0}}`)
	rec.Record(context.Background(), "gemini", "agent-1", body, nil)

	if len(repo.records) != 1 || !repo.records[0].PricingKnown {
		t.Fatalf("expected gemini versioned model to resolve via alias, got %+v", repo.records)
	}
}

func TestRecord_Ollama_NoCacheField(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{pricing: []Pricing{
		{Provider: "ollama", ModelID: "llama3", InputPerMillion: 0, OutputPerMillion: 0},
	}}
	rec := NewRecorder(repo, testLogger())

	body := []byte(`{"model":"llama3","prompt_eval_count":80,"eval_count":40}`)
	rec.Record(context.Background(), "ollama", "agent-1", body, nil)

	if len(repo.records) != 1 {
		t.Fatalf("expected one record")
	}
	if repo.records[0].InputCachedTokens != 0 {
		t.Errorf("ollama has no cache concept, got cached=%d", repo.records[0].InputCachedTokens)
	}
}

func TestRecord_OpenAIResponsesAPIWrapper(t *testing.T) {
	t.Parallel()

	repo := &fakeRepo{pricing: []Pricing{
		{Provider: "openai", ModelID: "gpt-4o", InputPerMillion: 3, OutputPerMillion: 15},
	}}
	rec := NewRecorder(repo, testLogger())

	body := []byte(`{"type":"response.completed","response":{"model":"gpt-4o","usage":{"input_tokens":100,"output_tokens":50}}}`)
	rec.Record(context.Background(), "openai", "agent-1", body, nil)

	if len(repo.records) != 1 || !repo.records[0].PricingKnown {
		t.Fatalf("expected responses-api wrapper to unwrap, got %+v", repo.records)
	}
}
