package types

import "encoding/json"

// Part is one piece of a message's content: plain text, model reasoning, a
// tool call (request and result merged into one record as it transitions
// through State.Status), a file attachment, or a step marker. Parts are
// stored individually (internal/storage keys them under
// ["part", messageID, partID]) so the UI/SDK can stream updates to a single
// part without rewriting the whole message.
type Part interface {
	PartType() string
	PartID() string
	PartSessionID() string
	PartMessageID() string
}

// PartTime holds optional start/end timestamps for a streaming part.
type PartTime struct {
	Start *int64 `json:"start,omitempty"`
	End   *int64 `json:"end,omitempty"`
}

// TextPart carries plain-text content, either user input or assistant
// output.
type TextPart struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID"`
	MessageID string   `json:"messageID"`
	Type      string   `json:"type"` // "text"
	Text      string   `json:"text"`
	Synthetic bool     `json:"synthetic,omitempty"`
	Time      PartTime `json:"time,omitempty"`
}

func (p *TextPart) PartType() string      { return p.Type }
func (p *TextPart) PartID() string        { return p.ID }
func (p *TextPart) PartSessionID() string { return p.SessionID }
func (p *TextPart) PartMessageID() string { return p.MessageID }

// ReasoningPart carries a model's chain-of-thought / extended-thinking
// output, when the provider exposes one.
type ReasoningPart struct {
	ID        string   `json:"id"`
	SessionID string   `json:"sessionID"`
	MessageID string   `json:"messageID"`
	Type      string   `json:"type"` // "reasoning"
	Text      string   `json:"text"`
	Time      PartTime `json:"time,omitempty"`
}

func (p *ReasoningPart) PartType() string      { return p.Type }
func (p *ReasoningPart) PartID() string        { return p.ID }
func (p *ReasoningPart) PartSessionID() string { return p.SessionID }
func (p *ReasoningPart) PartMessageID() string { return p.MessageID }

// ToolTime holds the start/end timestamps of a single tool invocation. Start
// is set the moment the call is dispatched; End is nil until the tool
// finishes (or is abandoned past the per-tool wall clock).
type ToolTime struct {
	Start int64  `json:"start"`
	End   *int64 `json:"end,omitempty"`
}

// ToolState is the lifecycle and result payload of one tool call. It is
// mutated in place as the call progresses — pending, then running, then
// completed or error — rather than represented as a separate "tool result"
// record, so a ToolPart's CallID is the only identifier ever needed to
// correlate request and result.
type ToolState struct {
	Status string         `json:"status"` // pending|running|completed|error
	Input  map[string]any `json:"input,omitempty"`
	Output string         `json:"output,omitempty"`
	Raw    string         `json:"raw,omitempty"`
	Error  string         `json:"error,omitempty"`
	Title  string         `json:"title,omitempty"`
	Time   *ToolTime      `json:"time,omitempty"`
}

// ToolPart is an in-flight or completed tool invocation.
type ToolPart struct {
	ID        string    `json:"id"`
	SessionID string    `json:"sessionID"`
	MessageID string    `json:"messageID"`
	Type      string    `json:"type"` // "tool"
	CallID    string    `json:"callID"`
	Tool      string    `json:"tool"`
	State     ToolState `json:"state"`
}

func (p *ToolPart) PartType() string      { return p.Type }
func (p *ToolPart) PartID() string        { return p.ID }
func (p *ToolPart) PartSessionID() string { return p.SessionID }
func (p *ToolPart) PartMessageID() string { return p.MessageID }

// FilePart references a file attachment (an image, a pasted document) sent
// alongside a user message.
type FilePart struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"` // "file"
	Mime      string `json:"mime"`
	Filename  string `json:"filename,omitempty"`
	URL       string `json:"url"`
}

func (p *FilePart) PartType() string      { return p.Type }
func (p *FilePart) PartID() string        { return p.ID }
func (p *FilePart) PartSessionID() string { return p.SessionID }
func (p *FilePart) PartMessageID() string { return p.MessageID }

// StepStartPart marks the beginning of one orchestrator loop iteration
// (Compose→Await→Dispatch→Feed) within an assistant message.
type StepStartPart struct {
	ID        string `json:"id"`
	SessionID string `json:"sessionID"`
	MessageID string `json:"messageID"`
	Type      string `json:"type"` // "step-start"
}

func (p *StepStartPart) PartType() string      { return p.Type }
func (p *StepStartPart) PartID() string        { return p.ID }
func (p *StepStartPart) PartSessionID() string { return p.SessionID }
func (p *StepStartPart) PartMessageID() string { return p.MessageID }

// StepFinishPart marks the end of one loop iteration, carrying the finish
// reason and the token/cost accounting for that step.
type StepFinishPart struct {
	ID        string      `json:"id"`
	SessionID string      `json:"sessionID"`
	MessageID string      `json:"messageID"`
	Type      string      `json:"type"` // "step-finish"
	Reason    string      `json:"reason"`
	Cost      float64     `json:"cost,omitempty"`
	Tokens    *TokenUsage `json:"tokens,omitempty"`
}

func (p *StepFinishPart) PartType() string      { return p.Type }
func (p *StepFinishPart) PartID() string        { return p.ID }
func (p *StepFinishPart) PartSessionID() string { return p.SessionID }
func (p *StepFinishPart) PartMessageID() string { return p.MessageID }

// RawPart is the wire envelope used to discriminate a Part's concrete type
// before unmarshaling the rest of its fields.
type RawPart struct {
	Type string `json:"type"`
}

// UnmarshalPart decodes a JSON-encoded part into its concrete Part type by
// inspecting the "type" discriminator field, mirroring the pattern
// internal/storage uses to replay a session's transcript from disk.
func UnmarshalPart(data []byte) (Part, error) {
	var raw RawPart
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}

	var part Part
	switch raw.Type {
	case "text":
		part = &TextPart{}
	case "reasoning":
		part = &ReasoningPart{}
	case "tool":
		part = &ToolPart{}
	case "file":
		part = &FilePart{}
	case "step-start":
		part = &StepStartPart{}
	case "step-finish":
		part = &StepFinishPart{}
	default:
		part = &TextPart{}
	}

	if err := json.Unmarshal(data, part); err != nil {
		return nil, err
	}
	return part, nil
}
