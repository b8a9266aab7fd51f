package types

// Message is a single entry in a session's transcript: a system/user/
// assistant/tool-role record per spec §3, realized the way the teacher's
// own server persists it — an envelope plus a sequence of typed Parts
// (parts.go) rather than a closed Go interface per variant. A System
// message is Role=="system" with a single TextPart carrying the composed
// prompt; a User message is Role=="user" with TextPart(s) plus any
// resolved hashtag-injection ContextBlocks; an Assistant message is
// Role=="assistant" and its Parts mix TextPart/ReasoningPart content with
// ToolPart tool-call-requests; the paired ToolResult is NOT a separate
// message — it is the same ToolPart transitioning from State.Status
// "pending"/"running" to "completed"/"error", carrying call_id (CallID),
// payload (Output), and structured status (Status/Error) together. This
// keeps exactly one call_id per tool invocation instead of a request/result
// pair that must be reconciled across two messages.
type Message struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	Role      string      `json:"role"` // "system" | "user" | "assistant" | "tool"
	Time      MessageTime `json:"time"`

	// ParentID links a summary/compaction assistant message back to the
	// message it was generated from. Empty for ordinary messages.
	ParentID string `json:"parentID,omitempty"`

	// User-specific fields.
	Agent  string          `json:"agent,omitempty"`
	Model  *ModelRef       `json:"model,omitempty"`
	System *string         `json:"system,omitempty"`
	Tools  map[string]bool `json:"tools,omitempty"`

	// Assistant-specific fields.
	ModelID    string        `json:"modelID,omitempty"`
	ProviderID string        `json:"providerID,omitempty"`
	Mode       string        `json:"mode,omitempty"`
	Finish     *string       `json:"finish,omitempty"`
	Cost       float64       `json:"cost,omitempty"`
	Tokens     *TokenUsage   `json:"tokens,omitempty"`
	Error      *MessageError `json:"error,omitempty"`

	// IsSummary marks an assistant message produced by context compaction
	// rather than the LLM responding to user intent directly.
	IsSummary bool `json:"isSummary,omitempty"`

	// Path records the working-directory/root pair the message was
	// generated under, so tool execution can resolve relative paths
	// without re-deriving them from the session.
	Path *MessagePath `json:"path,omitempty"`
}

// MessagePath carries the working directory context a message was created
// in.
type MessagePath struct {
	Cwd  string `json:"cwd"`
	Root string `json:"root"`
}

// MessageTime contains timestamps for a message.
type MessageTime struct {
	Created int64  `json:"created"`
	Updated *int64 `json:"updated,omitempty"`
}

// ModelRef references a specific model from a provider.
type ModelRef struct {
	ProviderID string `json:"providerID"`
	ModelID    string `json:"modelID"`
}

// TokenUsage contains token usage statistics for a message.
type TokenUsage struct {
	Input     int        `json:"input"`
	Output    int        `json:"output"`
	Reasoning int        `json:"reasoning,omitempty"`
	Cache     CacheUsage `json:"cache,omitempty"`
}

// CacheUsage contains cache hit/write statistics.
type CacheUsage struct {
	Read  int `json:"read"`
	Write int `json:"write"`
}

// MessageError represents an error that occurred during message processing.
// Type is one of the spec's failure kinds surfaced to the user ("max_steps",
// "api", "auth", "output_length", "abort", ...).
type MessageError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ContextBlock is a resolved hashtag-injection attachment (#file:, #folder:,
// #codebase, #selection, #terminalLastCommand) attached to a User message by
// internal/contextmgr before the message is appended to the session.
type ContextBlock struct {
	Source    string `json:"source"` // e.g. "file:main.go", "codebase", "selection"
	Content   string `json:"content"`
	Truncated bool   `json:"truncated"`
}
