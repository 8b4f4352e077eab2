package llmproxy

import "fmt"

// Dialect identifies which response shape a provider speaks, for the
// purposes of token-usage extraction and outbound-content scanning.
type Dialect string

const (
	DialectOpenAI    Dialect = "openai"
	DialectAnthropic Dialect = "anthropic"
	DialectGemini    Dialect = "gemini"
	DialectOllama    Dialect = "ollama"
)

// ProviderSpec declares one routable upstream provider. New providers
// are added by appending to this table (spec.md §4.7).
type ProviderSpec struct {
	Prefix             string
	UpstreamBase       string
	AuthHeaderTemplate string // header name to set; value comes from CredentialEnv
	AuthValuePrefix    string // e.g. "Bearer " prepended to the resolved credential
	CredentialEnv      string
	Dialect            Dialect
}

// CredentialEnvVar is the environment variable name a provider's
// credential is resolved from.
func (p ProviderSpec) CredentialEnvVar() string {
	if p.CredentialEnv != "" {
		return p.CredentialEnv
	}
	return fmt.Sprintf("SENTINELWATCH_%s_API_KEY", p.Prefix)
}

// DefaultProviders is the static, minimum-13-provider table spec.md
// §4.7 requires, generalizing the teacher's single-target
// ReverseProxy/UpstreamTarget into a multi-provider router.
var DefaultProviders = []ProviderSpec{
	{Prefix: "openai", UpstreamBase: "https://api.openai.com", AuthHeaderTemplate: "Authorization", AuthValuePrefix: "Bearer ", CredentialEnv: "OPENAI_API_KEY", Dialect: DialectOpenAI},
	{Prefix: "anthropic", UpstreamBase: "https://api.anthropic.com", AuthHeaderTemplate: "x-api-key", CredentialEnv: "ANTHROPIC_API_KEY", Dialect: DialectAnthropic},
	{Prefix: "gemini", UpstreamBase: "https://generativelanguage.googleapis.com", AuthHeaderTemplate: "x-goog-api-key", CredentialEnv: "GEMINI_API_KEY", Dialect: DialectGemini},
	{Prefix: "ollama", UpstreamBase: "http://localhost:11434", AuthHeaderTemplate: "", CredentialEnv: "", Dialect: DialectOllama},
	{Prefix: "groq", UpstreamBase: "https://api.groq.com/openai", AuthHeaderTemplate: "Authorization", AuthValuePrefix: "Bearer ", CredentialEnv: "GROQ_API_KEY", Dialect: DialectOpenAI},
	{Prefix: "openrouter", UpstreamBase: "https://openrouter.ai/api", AuthHeaderTemplate: "Authorization", AuthValuePrefix: "Bearer ", CredentialEnv: "OPENROUTER_API_KEY", Dialect: DialectOpenAI},
	{Prefix: "deepseek", UpstreamBase: "https://api.deepseek.com", AuthHeaderTemplate: "Authorization", AuthValuePrefix: "Bearer ", CredentialEnv: "DEEPSEEK_API_KEY", Dialect: DialectOpenAI},
	{Prefix: "mistral", UpstreamBase: "https://api.mistral.ai", AuthHeaderTemplate: "Authorization", AuthValuePrefix: "Bearer ", CredentialEnv: "MISTRAL_API_KEY", Dialect: DialectOpenAI},
	{Prefix: "azure", UpstreamBase: "https://api.openai.azure.com", AuthHeaderTemplate: "api-key", CredentialEnv: "AZURE_OPENAI_API_KEY", Dialect: DialectOpenAI},
	{Prefix: "together", UpstreamBase: "https://api.together.xyz", AuthHeaderTemplate: "Authorization", AuthValuePrefix: "Bearer ", CredentialEnv: "TOGETHER_API_KEY", Dialect: DialectOpenAI},
	{Prefix: "fireworks", UpstreamBase: "https://api.fireworks.ai/inference", AuthHeaderTemplate: "Authorization", AuthValuePrefix: "Bearer ", CredentialEnv: "FIREWORKS_API_KEY", Dialect: DialectOpenAI},
	{Prefix: "perplexity", UpstreamBase: "https://api.perplexity.ai", AuthHeaderTemplate: "Authorization", AuthValuePrefix: "Bearer ", CredentialEnv: "PERPLEXITY_API_KEY", Dialect: DialectOpenAI},
	{Prefix: "cohere", UpstreamBase: "https://api.cohere.ai", AuthHeaderTemplate: "Authorization", AuthValuePrefix: "Bearer ", CredentialEnv: "COHERE_API_KEY", Dialect: DialectOpenAI},
	{Prefix: "xai", UpstreamBase: "https://api.x.ai", AuthHeaderTemplate: "Authorization", AuthValuePrefix: "Bearer ", CredentialEnv: "XAI_API_KEY", Dialect: DialectOpenAI},
	{Prefix: "moonshot", UpstreamBase: "https://api.moonshot.cn", AuthHeaderTemplate: "Authorization", AuthValuePrefix: "Bearer ", CredentialEnv: "MOONSHOT_API_KEY", Dialect: DialectOpenAI},
	{Prefix: "minimax", UpstreamBase: "https://api.minimax.chat", AuthHeaderTemplate: "Authorization", AuthValuePrefix: "Bearer ", CredentialEnv: "MINIMAX_API_KEY", Dialect: DialectOpenAI},
	{Prefix: "cerebras", UpstreamBase: "https://api.cerebras.ai", AuthHeaderTemplate: "Authorization", AuthValuePrefix: "Bearer ", CredentialEnv: "CEREBRAS_API_KEY", Dialect: DialectOpenAI},
}
