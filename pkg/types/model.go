package types

// Model describes one model a Provider exposes: its capabilities, context
// budget, and list pricing, as surfaced by `clio models` and consulted by
// the orchestrator's budget computation (internal/contextmgr) and tool
// gating (a model with SupportsTools == false never receives a ToolInfo
// list on its completion request).
type Model struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	ProviderID string `json:"providerID"`

	ContextLength   int `json:"contextLength"`
	MaxOutputTokens int `json:"maxOutputTokens"`

	SupportsTools     bool `json:"supportsTools"`
	SupportsVision    bool `json:"supportsVision"`
	SupportsReasoning bool `json:"supportsReasoning"`

	InputPrice  float64 `json:"inputPrice"`
	OutputPrice float64 `json:"outputPrice"`

	Options ModelOptions `json:"options,omitempty"`
}

// ModelOptions carries model-specific feature toggles that don't fit the
// common capability flags above.
type ModelOptions struct {
	PromptCaching  bool `json:"promptCaching,omitempty"`
	ExtendedOutput bool `json:"extendedOutput,omitempty"`
}

// CustomPrompt overrides an agent's system prompt either from a file on
// disk (Type == "file", Value is a path) or an inline string (Type ==
// "inline", Value is the prompt text itself), with template variables
// substituted via {{key}} placeholders.
type CustomPrompt struct {
	Type      string            `json:"type"` // "file" | "inline"
	Value     string            `json:"value"`
	Variables map[string]string `json:"variables,omitempty"`
}
