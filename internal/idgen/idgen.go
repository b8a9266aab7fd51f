// Package idgen generates the opaque identifiers defined in pkg/types
// (SessionID, TurnID, MessageID, ToolCallID, AgentID, LockID). All of them
// are ULIDs: lexically sortable by creation time, which keeps session
// transcripts and broker lock tables naturally ordered without a separate
// sequence counter, matching the monotonic-per-session ordering spec §3
// requires of TurnID and MessageID.
package idgen

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/clio-agent/clio/pkg/types"
)

// entropy is a single monotonic-safe source shared by all generators in this
// process. ulid.Monotonic increments a random tail when two IDs are minted
// within the same millisecond, so IDs created back-to-back still sort
// strictly after one another.
var (
	mu      sync.Mutex
	entropy = ulid.Monotonic(rand.Reader, 0)
)

func next() ulid.ULID {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy)
}

// NewSessionID mints a new SessionID.
func NewSessionID() types.SessionID { return types.SessionID(next().String()) }

// NewTurnID mints a new TurnID.
func NewTurnID() types.TurnID { return types.TurnID(next().String()) }

// NewMessageID mints a new MessageID.
func NewMessageID() types.MessageID { return types.MessageID(next().String()) }

// NewToolCallID mints a new ToolCallID.
func NewToolCallID() types.ToolCallID { return types.ToolCallID(next().String()) }

// NewAgentID mints a new AgentID.
func NewAgentID() types.AgentID { return types.AgentID(next().String()) }

// NewLockID mints a new LockID.
func NewLockID() types.LockID { return types.LockID(next().String()) }
