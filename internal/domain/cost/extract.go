package cost

import "encoding/json"

// usage is recovered from a response body; zero values mean "absent",
// not "zero tokens used" for the purpose of the has-anything-to-record
// check in Recorder.Record.
type usage struct {
	modelID           string
	inputTokens       int
	outputTokens      int
	inputCachedTokens int
}

// extractTokens recovers (model_id, input_tokens, output_tokens,
// input_cached_tokens) from a provider response body. It never panics
// or errors: a malformed body yields a zero usage, the same as an empty
// body (spec.md §4.5).
func extractTokens(body []byte, provider string) usage {
	if len(body) == 0 {
		return usage{}
	}

	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return usage{}
	}

	// OpenAI Responses API SSE event: payload may be wrapped in
	// {"response": {...}}.
	if inner, ok := data["response"].(map[string]interface{}); ok {
		if _, hasModel := inner["model"]; hasModel {
			data = inner
		} else if _, hasUsage := inner["usage"]; hasUsage {
			data = inner
		}
	}

	switch provider {
	case "anthropic":
		return extractAnthropic(data)
	case "gemini":
		return extractGemini(data)
	case "ollama":
		return extractOllama(data)
	default:
		return extractOpenAICompatible(data)
	}
}

func extractAnthropic(data map[string]interface{}) usage {
	u, _ := data["usage"].(map[string]interface{})
	return usage{
		modelID:           asString(data["model"]),
		inputTokens:       asInt(u["input_tokens"]),
		outputTokens:      asInt(u["output_tokens"]),
		inputCachedTokens: asInt(u["cache_read_input_tokens"]),
	}
}

func extractGemini(data map[string]interface{}) usage {
	meta, _ := data["usageMetadata"].(map[string]interface{})
	modelID := asString(data["modelVersion"])
	if modelID == "" {
		modelID = asString(data["model"])
	}
	return usage{
		modelID:           modelID,
		inputTokens:       asInt(meta["promptTokenCount"]),
		outputTokens:      asInt(meta["candidatesTokenCount"]),
		inputCachedTokens: asInt(meta["cachedContentTokenCount"]),
	}
}

func extractOllama(data map[string]interface{}) usage {
	return usage{
		modelID:      asString(data["model"]),
		inputTokens:  asInt(data["prompt_eval_count"]),
		outputTokens: asInt(data["eval_count"]),
	}
}

// extractOpenAICompatible handles openai, groq, mistral, cohere, and any
// unrecognized provider, covering both Chat Completions
// (prompt_tokens/completion_tokens) and the Responses API
// (input_tokens/output_tokens).
func extractOpenAICompatible(data map[string]interface{}) usage {
	u, _ := data["usage"].(map[string]interface{})

	inputTokens := firstNonZero(u["prompt_tokens"], u["input_tokens"])
	outputTokens := firstNonZero(u["completion_tokens"], u["output_tokens"])

	details, ok := u["prompt_tokens_details"].(map[string]interface{})
	if !ok {
		details, _ = u["input_tokens_details"].(map[string]interface{})
	}

	return usage{
		modelID:           asString(data["model"]),
		inputTokens:       inputTokens,
		outputTokens:      outputTokens,
		inputCachedTokens: asInt(details["cached_tokens"]),
	}
}

func firstNonZero(a, b interface{}) int {
	if v := asInt(a); v != 0 {
		return v
	}
	return asInt(b)
}

func asInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	default:
		return 0
	}
}

func asString(v interface{}) string {
	s, _ := v.(string)
	return s
}
