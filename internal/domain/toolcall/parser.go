package toolcall

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
)

// Extract recovers every tool invocation from a model response body.
// It is fail-open: an unrecognized shape, or a body that fails to parse
// as JSON, yields an empty list rather than an error (spec.md §4.4).
func Extract(respBody []byte) []ToolCall {
	var generic map[string]interface{}
	if err := json.Unmarshal(respBody, &generic); err != nil {
		return nil
	}

	if calls := extractOpenAI(generic); calls != nil {
		return calls
	}
	if calls := extractAnthropic(generic); calls != nil {
		return calls
	}
	if call := extractMCP(generic); call != nil {
		return []ToolCall{*call}
	}
	return nil
}

// extractOpenAI recovers choices[*].message.tool_calls[*].function.
func extractOpenAI(body map[string]interface{}) []ToolCall {
	choices, ok := body["choices"].([]interface{})
	if !ok {
		return nil
	}

	var calls []ToolCall
	index := 0
	for _, c := range choices {
		choice, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		message, ok := choice["message"].(map[string]interface{})
		if !ok {
			continue
		}
		toolCalls, ok := message["tool_calls"].([]interface{})
		if !ok {
			continue
		}
		for _, tc := range toolCalls {
			entry, ok := tc.(map[string]interface{})
			if !ok {
				continue
			}
			fn, ok := entry["function"].(map[string]interface{})
			if !ok {
				continue
			}
			name, _ := fn["name"].(string)
			if name == "" {
				continue
			}
			id, _ := entry["id"].(string)
			calls = append(calls, ToolCall{
				FunctionName:   name,
				ArgumentsHash:  hashArguments(fn["arguments"]),
				ProviderFormat: FormatOpenAI,
				ToolCallID:     id,
				Index:          index,
			})
			index++
		}
	}
	return calls
}

// extractAnthropic recovers content[*] entries with type=tool_use.
func extractAnthropic(body map[string]interface{}) []ToolCall {
	content, ok := body["content"].([]interface{})
	if !ok {
		return nil
	}

	var calls []ToolCall
	index := 0
	for _, c := range content {
		block, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		if blockType, _ := block["type"].(string); blockType != "tool_use" {
			continue
		}
		name, _ := block["name"].(string)
		if name == "" {
			continue
		}
		id, _ := block["id"].(string)
		calls = append(calls, ToolCall{
			FunctionName:   name,
			ArgumentsHash:  hashArguments(block["input"]),
			ProviderFormat: FormatAnthropic,
			ToolCallID:     id,
			Index:          index,
		})
		index++
	}
	return calls
}

// extractMCP recognizes a native MCP tools/call JSON-RPC request:
// {"jsonrpc":"2.0", "method":"tools/call", "params":{"name":..., "arguments":...}}
func extractMCP(body map[string]interface{}) *ToolCall {
	if method, _ := body["method"].(string); method != "tools/call" {
		return nil
	}
	params, ok := body["params"].(map[string]interface{})
	if !ok {
		return nil
	}
	name, _ := params["name"].(string)
	if name == "" {
		return nil
	}
	var id string
	switch v := body["id"].(type) {
	case string:
		id = v
	case float64:
		id = formatFloatID(v)
	}
	return &ToolCall{
		FunctionName:   name,
		ArgumentsHash:  hashArguments(params["arguments"]),
		ProviderFormat: FormatMCP,
		ToolCallID:     id,
		Index:          0,
	}
}

func formatFloatID(v float64) string {
	b, _ := json.Marshal(v)
	return string(b)
}

// hashArguments canonicalizes an arguments payload and returns the
// first 16 hex characters of its SHA-256, so OpenAI's string-encoded
// arguments and Anthropic's native object arguments hash identically
// for the same logical call (spec.md §8 property 6).
func hashArguments(raw interface{}) string {
	canonical := canonicalize(raw)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:16]
}

// canonicalize reduces an arguments value to a deterministic JSON
// string: a bare string is parsed as JSON if possible (OpenAI encodes
// arguments as a JSON string), keys are sorted at every object level,
// and anything that fails to parse falls back to its raw form.
func canonicalize(raw interface{}) string {
	switch v := raw.(type) {
	case nil:
		return "null"
	case string:
		var parsed interface{}
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			return v
		}
		return canonicalizeValue(parsed)
	default:
		return canonicalizeValue(v)
	}
}

// canonicalizeValue relies on encoding/json's guarantee that
// map[string]interface{} keys are marshaled in sorted order, so
// semantically identical objects with differently ordered keys produce
// byte-identical output.
func canonicalizeValue(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}
