package llmproxy

import (
	"encoding/json"
	"strings"
)

// extractOutboundText pulls the human-authored text out of a request
// body so it can be scanned before the request reaches the upstream.
// Dialect-specific shapes are unwrapped; anything unrecognized falls
// back to scanning the raw body, so scanning degrades gracefully rather
// than silently skipping unknown shapes.
func extractOutboundText(body []byte, dialect Dialect) string {
	var data map[string]interface{}
	if err := json.Unmarshal(body, &data); err != nil {
		return string(body)
	}

	var parts []string
	switch dialect {
	case DialectGemini:
		parts = append(parts, geminiContents(data)...)
	default:
		parts = append(parts, chatMessages(data)...)
	}

	if len(parts) == 0 {
		return string(body)
	}
	return strings.Join(parts, "\n")
}

// chatMessages covers OpenAI/Anthropic/Ollama-family {"messages":[...]}
// bodies, where each message's "content" is either a string or a list
// of {"type":"text","text":"..."} blocks.
func chatMessages(data map[string]interface{}) []string {
	messages, ok := data["messages"].([]interface{})
	if !ok {
		if prompt, ok := data["prompt"].(string); ok {
			return []string{prompt}
		}
		return nil
	}

	var parts []string
	for _, m := range messages {
		msg, ok := m.(map[string]interface{})
		if !ok {
			continue
		}
		switch content := msg["content"].(type) {
		case string:
			parts = append(parts, content)
		case []interface{}:
			for _, block := range content {
				b, ok := block.(map[string]interface{})
				if !ok {
					continue
				}
				if text, ok := b["text"].(string); ok {
					parts = append(parts, text)
				}
			}
		}
	}
	return parts
}

func geminiContents(data map[string]interface{}) []string {
	contents, ok := data["contents"].([]interface{})
	if !ok {
		return nil
	}
	var parts []string
	for _, c := range contents {
		content, ok := c.(map[string]interface{})
		if !ok {
			continue
		}
		blocks, ok := content["parts"].([]interface{})
		if !ok {
			continue
		}
		for _, pb := range blocks {
			part, ok := pb.(map[string]interface{})
			if !ok {
				continue
			}
			if text, ok := part["text"].(string); ok {
				parts = append(parts, text)
			}
		}
	}
	return parts
}
