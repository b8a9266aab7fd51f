package event

import "github.com/clio-agent/clio/pkg/types"

// SessionCreatedData is published when a session is created.
type SessionCreatedData struct {
	Info *types.Session `json:"info"`
}

// SessionUpdatedData is published when session metadata (title, summary)
// changes.
type SessionUpdatedData struct {
	Info *types.Session `json:"info"`
}

// SessionDeletedData is published when a session is removed.
type SessionDeletedData struct {
	Info *types.Session `json:"info"`
}

// SessionIdleData is published once the orchestrator reaches a terminal
// state for a turn and is no longer driving the session.
type SessionIdleData struct {
	SessionID string `json:"sessionID"`
}

// SessionStatusData reports a coarse busy/idle/error status transition.
type SessionStatusData struct {
	SessionID string `json:"sessionID"`
	Status    string `json:"status"`
}

// SessionCompactedData is published after context-manager compaction
// finishes summarizing older messages.
type SessionCompactedData struct {
	SessionID string `json:"sessionID"`
}

// SessionDiffData carries the session's accumulated file-change summary.
type SessionDiffData struct {
	SessionID string           `json:"sessionID"`
	Diff      []types.FileDiff `json:"diff"`
}

// MessageCreatedData is published when a new message is appended.
type MessageCreatedData struct {
	Info *types.Message `json:"info"`
}

// MessageUpdatedData is published when an existing message changes (for
// example, streamed token counts or a finish reason).
type MessageUpdatedData struct {
	Info *types.Message `json:"info"`
}

// MessageRemovedData is published when a message is deleted.
type MessageRemovedData struct {
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
}

// MessagePartUpdatedData is published for part-level streaming updates
// (text deltas, tool-call progress).
type MessagePartUpdatedData struct {
	Part  types.Part `json:"part"`
	Delta string     `json:"delta,omitempty"`
}

// FileEditedData is published whenever a mutating file tool succeeds.
type FileEditedData struct {
	File string `json:"file"`
}

// PermissionRequiredData is published when the sandbox needs an
// interactive grant decision before a tool call can proceed.
type PermissionRequiredData struct {
	ID             string   `json:"id"`
	SessionID      string   `json:"sessionID"`
	PermissionType string   `json:"permissionType"`
	Pattern        []string `json:"pattern,omitempty"`
	Title          string   `json:"title"`
}

// PermissionResolvedData is published once a pending permission request
// has been granted or rejected.
type PermissionResolvedData struct {
	ID      string `json:"id"`
	Granted bool   `json:"granted"`
}
