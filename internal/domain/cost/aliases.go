package cost

// cacheDiscount is the fraction of the full input rate billed for cached
// tokens, per provider. Providers absent here get no discount (1.0).
var cacheDiscount = map[string]float64{
	"openai":    0.5,
	"anthropic": 0.1,
	"gemini":    0.25,
}

func discountFor(provider string) float64 {
	if d, ok := cacheDiscount[provider]; ok {
		return d
	}
	return 1.0
}

// modelIDAliases maps versioned model identifiers to the canonical key
// used in the pricing table.
var modelIDAliases = map[string]string{
	// OpenAI versioned → canonical
	"gpt-4o-2024-11-20":     "gpt-4o",
	"gpt-4o-2024-08-06":     "gpt-4o",
	"gpt-4o-2024-05-13":     "gpt-4o",
	"gpt-4o-mini-2024-07-18": "gpt-4o-mini",
	"gpt-4-turbo-2024-04-09": "gpt-4-turbo",
	"gpt-4-turbo-preview":   "gpt-4-turbo",
	"gpt-3.5-turbo-0125":    "gpt-3.5-turbo",
	"gpt-3.5-turbo-1106":    "gpt-3.5-turbo",
	"o1-2024-12-17":         "o1",
	"o1-mini-2024-09-12":    "o1-mini",
	"o3-mini-2025-01-31":    "o3-mini",
	// Gemini variants → canonical
	"gemini-2.0-flash-001":  "gemini-2.0-flash",
	"gemini-2.0-flash-exp":  "gemini-2.0-flash",
	"gemini-1.5-pro-001":    "gemini-1.5-pro",
	"gemini-1.5-pro-002":    "gemini-1.5-pro",
	"gemini-1.5-flash-001":  "gemini-1.5-flash",
	"gemini-1.5-flash-002":  "gemini-1.5-flash",
	// Mistral versioned
	"mistral-large-2402": "mistral-large-latest",
	"mistral-large-2407": "mistral-large-latest",
	"mistral-large-2411": "mistral-large-latest",
	"mistral-small-2402": "mistral-small-latest",
	"mistral-small-2409": "mistral-small-latest",
	// Cohere versioned
	"command-r-plus": "command-r-plus-08-2024",
	"command-r":      "command-r-08-2024",
}

func normalizeModelID(modelID string) string {
	if modelID == "" {
		return modelID
	}
	if canonical, ok := modelIDAliases[modelID]; ok {
		return canonical
	}
	return modelID
}
