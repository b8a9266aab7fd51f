// Package broker implements the single-process coordination server (spec
// §4.4/§6): a local socket server serializing file writes, git commits, and
// outbound LLM requests across worker Orchestrator processes, carrying a
// message bus for worker<->user and worker<->worker communication.
//
// Wire framing is grounded on the teacher's `internal/mcp/transport.go`
// StdioTransport: newline-delimited JSON objects over a stream socket, a
// pending-request map keyed by request ID read by one dedicated reader
// goroutine per connection. Unlike that transport (client-only, HTTP or
// process stdio), this is a bidirectional local socket server where the
// server itself owns authoritative shared state.
package broker

import "encoding/json"

// FrameType enumerates every client->broker and broker->client message type
// named in spec §6 (normative subset).
type FrameType string

const (
	// Client -> Broker
	FrameRegister        FrameType = "register"
	FrameHeartbeat       FrameType = "heartbeat"
	FrameRequestFileLock FrameType = "request_file_lock"
	FrameReleaseFileLock FrameType = "release_file_lock"
	FrameRequestGitLock  FrameType = "request_git_lock"
	FrameReleaseGitLock  FrameType = "release_git_lock"
	FrameRequestAPISlot  FrameType = "request_api_slot"
	FrameReleaseAPISlot  FrameType = "release_api_slot"
	FrameSendMessage     FrameType = "send_message"
	FramePollInbox       FrameType = "poll_inbox"
	FramePollUserInbox   FrameType = "poll_user_inbox"
	FrameAcknowledge     FrameType = "acknowledge_messages"
	FrameGetHistory      FrameType = "get_message_history"
	FrameGetStatus       FrameType = "get_status"

	// Broker -> Client
	FrameAck            FrameType = "ack"
	FrameLockGranted     FrameType = "lock_granted"
	FrameLockDenied      FrameType = "lock_denied"
	FrameGitLockGranted  FrameType = "git_lock_granted"
	FrameGitLockDenied   FrameType = "git_lock_denied"
	FrameAPISlotGranted  FrameType = "api_slot_granted"
	FrameAPISlotWait     FrameType = "api_slot_wait"
	FrameInbox           FrameType = "inbox"
	FrameUserInbox       FrameType = "user_inbox"
	FrameStatus          FrameType = "status"
	FrameError           FrameType = "error"
)

// Frame is the envelope for every message exchanged over the broker socket:
// a newline-delimited JSON object carrying a request id (client-assigned,
// echoed back so responses can be matched without a shared sequence), a
// type discriminator, and a type-specific payload.
type Frame struct {
	ID      int64           `json:"id,omitempty"`
	Type    FrameType       `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// --- Client -> Broker payloads ---

type RegisterPayload struct {
	AgentID string `json:"agent_id"`
	Task    string `json:"task"`
}

type RequestFileLockPayload struct {
	Files []string `json:"files"`
	Mode  LockMode  `json:"mode"`
}

type ReleaseFileLockPayload struct {
	Files []string `json:"files"`
}

type RequestAPISlotPayload struct{}

type ReleaseAPISlotPayload struct {
	Headers map[string]string `json:"headers"`
	Status  int               `json:"status"`
}

type SendMessagePayload struct {
	To      string `json:"to"`
	Type    string `json:"type"`
	Content string `json:"content"`
}

type AcknowledgePayload struct {
	IDs []string `json:"ids,omitempty"`
	All bool     `json:"all,omitempty"`
}

// --- Broker -> Client payloads ---

type AckPayload struct {
	RequestType FrameType `json:"request_type"`
	Success     bool      `json:"success"`
}

type LockGrantedPayload struct {
	LockID LockID   `json:"lock_id"`
	Files  []string `json:"files"`
}

type BlockedFile struct {
	File    string `json:"file"`
	HeldBy  string `json:"held_by"`
}

type LockDeniedPayload struct {
	Blocked []BlockedFile `json:"blocked"`
}

type GitLockGrantedPayload struct {
	LockID LockID `json:"lock_id"`
}

type GitLockDeniedPayload struct {
	HeldBy string `json:"held_by"`
}

type APISlotGrantedPayload struct {
	Delay float64 `json:"delay"`
}

type APISlotWaitPayload struct {
	Delay    float64 `json:"delay"`
	Reason   string  `json:"reason"`
	InFlight int     `json:"in_flight"`
}

type InboxMessage struct {
	From      string `json:"from"`
	Type      string `json:"type"`
	Content   string `json:"content"`
	ID        string `json:"id"`
	Timestamp int64  `json:"timestamp"`
}

type InboxPayload struct {
	Messages []InboxMessage `json:"messages"`
}

type StatusPayload struct {
	Agents       int `json:"agents"`
	FileLocks    int `json:"file_locks"`
	GitLocked    bool `json:"git_locked"`
	APIInFlight  int `json:"api_in_flight"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}
