package types

// Config is the merged configuration consumed by internal/config, assembled
// from global config, project config, OPENCODE_CONFIG overrides, and
// environment variables. The on-disk shape is TypeScript-compatible: both a
// flat ("apiKey") and nested ("options.apiKey") provider style are accepted.
type Config struct {
	// Schema is an editor-support $schema reference, carried through as-is.
	Schema string `json:"$schema,omitempty"`

	// Username identifies the operator in transcripts and shared sessions.
	Username string `json:"username,omitempty"`

	Model      string `json:"model,omitempty"`
	SmallModel string `json:"small_model,omitempty"`

	// Theme and Share are carried for TypeScript config compatibility;
	// CLIO's terminal-UI and sharing surfaces are out of scope (no
	// component reads them back).
	Theme string `json:"theme,omitempty"`
	Share string `json:"share,omitempty"`

	Tools           map[string]bool   `json:"tools,omitempty"`
	Instructions    []string          `json:"instructions,omitempty"`
	PromptVariables map[string]string `json:"promptVariables,omitempty"`

	Provider map[string]ProviderConfig `json:"provider,omitempty"`
	Agent    map[string]AgentConfig    `json:"agent,omitempty"`
	Command  map[string]CommandConfig  `json:"command,omitempty"`
	MCP      map[string]MCPConfig      `json:"mcp,omitempty"`

	Permission *PermissionConfig `json:"permission,omitempty"`

	LSP          *LSPConfig                 `json:"lsp,omitempty"`
	Formatter    map[string]FormatterConfig `json:"formatter,omitempty"`
	Watcher      *WatcherConfig             `json:"watcher,omitempty"`
	Experimental *ExperimentalConfig        `json:"experimental,omitempty"`

	// Redaction, Context, and Broker are CLIO-native additions absent from
	// the TypeScript config shape: the secret redactor's level, the
	// context manager's trim thresholds, and the coordination broker's
	// socket/scheduling defaults.
	Redaction RedactionConfig `json:"redaction,omitempty"`
	Context   ContextConfig   `json:"context,omitempty"`
	Broker    BrokerConfig    `json:"broker,omitempty"`
}

// ProviderConfig holds connection details for an abstracted LLM provider
// driver. Both the flat Go-style APIKey/BaseURL and the nested
// TypeScript-style Options are accepted; Load prefers Options when present.
type ProviderConfig struct {
	APIKey  string `json:"apiKey,omitempty"`
	BaseURL string `json:"baseURL,omitempty"`
	Model   string `json:"model,omitempty"`

	Npm     string           `json:"npm,omitempty"`
	Options *ProviderOptions `json:"options,omitempty"`

	Models map[string]ProviderModelConfig `json:"models,omitempty"`

	Whitelist []string `json:"whitelist,omitempty"`
	Blacklist []string `json:"blacklist,omitempty"`

	Disable bool `json:"disable,omitempty"`
}

// ProviderOptions is the TypeScript-style nested options object.
type ProviderOptions struct {
	APIKey        string `json:"apiKey,omitempty"`
	BaseURL       string `json:"baseURL,omitempty"`
	EnterpriseURL string `json:"enterpriseUrl,omitempty"`
	Timeout       *int   `json:"timeout,omitempty"` // ms, nil = default, 0 = disabled
}

// ProviderModelConfig overrides a single model's capability flags for
// OpenAI-compatible providers whose catalog CLIO cannot introspect.
type ProviderModelConfig struct {
	ID        string `json:"id,omitempty"`
	Reasoning bool   `json:"reasoning,omitempty"`
	ToolCall  bool   `json:"tool_call,omitempty"`
}

// AgentConfig configures a named agent profile.
type AgentConfig struct {
	Model string `json:"model,omitempty"`

	Temperature *float64 `json:"temperature,omitempty"`
	TopP        *float64 `json:"top_p,omitempty"`

	Prompt string          `json:"prompt,omitempty"`
	Tools  map[string]bool `json:"tools,omitempty"`

	Permission *PermissionConfig `json:"permission,omitempty"`

	Description string `json:"description,omitempty"`
	Mode        string `json:"mode,omitempty"` // "subagent"|"primary"|"all"
	Color       string `json:"color,omitempty"`

	Disable bool `json:"disable,omitempty"`
}

// PermissionConfig holds the ask/allow/deny defaults for each permission
// category. Bash is either a single action string or a pattern-to-action
// map, matching the TypeScript shape, so it is kept untyped here and
// resolved by internal/permission at load time.
type PermissionConfig struct {
	Edit        string      `json:"edit,omitempty"`
	Bash        interface{} `json:"bash,omitempty"`
	WebFetch    string      `json:"webfetch,omitempty"`
	ExternalDir string      `json:"external_directory,omitempty"`
	DoomLoop    string      `json:"doom_loop,omitempty"`
}

// CommandConfig describes a custom slash command template.
type CommandConfig struct {
	Template    string `json:"template"`
	Description string `json:"description,omitempty"`
	Agent       string `json:"agent,omitempty"`
	Model       string `json:"model,omitempty"`
	Subtask     bool   `json:"subtask,omitempty"`
}

// MCPConfig describes an external tool plugin server to connect at session
// start.
type MCPConfig struct {
	Type        string            `json:"type,omitempty"` // "local"|"remote"
	Command     []string          `json:"command,omitempty"`
	URL         string            `json:"url,omitempty"`
	Headers     map[string]string `json:"headers,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Enabled     *bool             `json:"enabled,omitempty"`
	Timeout     int               `json:"timeout,omitempty"`
}

// FormatterConfig holds code formatter configuration. CLIO does not ship a
// formatter tool; the field is carried for config-file compatibility only.
type FormatterConfig struct {
	Disabled    bool              `json:"disabled,omitempty"`
	Command     []string          `json:"command,omitempty"`
	Environment map[string]string `json:"environment,omitempty"`
	Extensions  []string          `json:"extensions,omitempty"`
}

// LSPConfig holds LSP server configuration, carried for config-file
// compatibility; CLIO has no LSP client.
type LSPConfig struct {
	Disabled bool              `json:"disabled,omitempty"`
	Servers  map[string]string `json:"servers,omitempty"`
}

// WatcherConfig holds file-watcher ignore globs (internal/config's live
// reload on fsnotify events).
type WatcherConfig struct {
	Ignore []string `json:"ignore,omitempty"`
}

// ExperimentalConfig holds experimental feature flags.
type ExperimentalConfig struct {
	BatchTool bool `json:"batch_tool,omitempty"`
}

// RedactionConfig selects the secret redactor's level.
type RedactionConfig struct {
	Level string `json:"level,omitempty" yaml:"level,omitempty"` // off|pii|api_permissive|standard|strict
}

// ContextConfig overrides the context manager's trim thresholds.
type ContextConfig struct {
	ProactiveThreshold float64 `json:"proactive_threshold,omitempty" yaml:"proactive_threshold,omitempty"` // default 0.58
	KeepLastK          int     `json:"keep_last_k,omitempty" yaml:"keep_last_k,omitempty"`                 // default 8
	HashtagBudget      int     `json:"hashtag_budget,omitempty" yaml:"hashtag_budget,omitempty"`           // default 32000
}

// BrokerConfig configures the coordination broker's local socket and
// scheduling defaults.
type BrokerConfig struct {
	SocketPath     string  `json:"socket_path,omitempty" yaml:"socket_path,omitempty"`
	MaxParallelAPI int     `json:"max_parallel_api,omitempty" yaml:"max_parallel_api,omitempty"`
	TargetQuota    float64 `json:"target_quota,omitempty" yaml:"target_quota,omitempty"` // default 0.80
}
