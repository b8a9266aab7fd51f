package types

// Session is one conversation thread: its messages live under
// ["message", sessionID] in storage, while the Session record itself holds
// everything needed to list, fork, and share a conversation without
// loading its full transcript (spec §3's Session store, realized in the
// teacher's storage layout as one JSON document per project per session).
type Session struct {
	ID        string `json:"id"`
	ProjectID string `json:"projectID"`
	Directory string `json:"directory"`
	Title     string `json:"title"`
	Version   string `json:"version"`

	// SchemaVersion gates load-time repair (spec §4.5 step 2): a session
	// written by a newer, incompatible store layout is rejected rather than
	// partially loaded. Zero means "written before this field existed",
	// which the loader treats as schema version 1.
	SchemaVersion int `json:"schemaVersion,omitempty"`

	// ParentID links a forked session back to the session it was forked
	// from. Nil for an original session.
	ParentID *string `json:"parentID,omitempty"`

	Summary SessionSummary `json:"summary"`
	Time    SessionTime    `json:"time"`

	Share  *SessionShare  `json:"share,omitempty"`
	Revert *SessionRevert `json:"revert,omitempty"`
}

// SessionSummary accumulates the file-change footprint of a session as
// mutating tools run, plus the running compaction log.
type SessionSummary struct {
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Files     int        `json:"files"`
	Diffs     []FileDiff `json:"diffs,omitempty"`
}

// FileDiff is one file's accumulated change within a session, keyed by its
// path relative to the session's working-directory root. A synthetic
// File == "__compaction__" entry records a context-compaction summary
// rather than an actual file edit.
type FileDiff struct {
	File      string `json:"file"`
	Additions int    `json:"additions"`
	Deletions int    `json:"deletions"`
	Before    string `json:"before"`
	After     string `json:"after"`
}

// SessionTime contains the session's own creation/update timestamps,
// distinct from any individual message's MessageTime.
type SessionTime struct {
	Created int64 `json:"created"`
	Updated int64 `json:"updated"`
}

// SessionShare records that a session has been published read-only at URL.
type SessionShare struct {
	URL string `json:"url"`
}

// SessionRevert marks that the session transcript has been rolled back to
// MessageID (and, if PartID is set, a specific part within that message),
// so the UI can render a "reverted to here" marker without truncating the
// stored history.
type SessionRevert struct {
	MessageID string  `json:"messageID"`
	PartID    *string `json:"partID,omitempty"`
}
