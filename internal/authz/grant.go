package authz

import "sync"

// GrantKind distinguishes a grant that is consumed on first use from one
// that lasts the remainder of the session.
type GrantKind string

const (
	GrantOneTime      GrantKind = "one_time"
	GrantSessionScope GrantKind = "session"
)

// GrantTable holds per-session authorization grants in memory, following
// the teacher's `permission.Checker` approval-map pattern (grounded on
// `internal/permission/checker.go`), generalized from permission *types*
// (bash/edit/webfetch) to the specification's `(session_id, operation_key)`
// grant model.
type GrantTable struct {
	mu           sync.Mutex
	autoApproved map[string]bool
	grants       map[string]map[string]GrantKind // sessionID -> operationKey -> kind
}

// NewGrantTable returns an empty grant table.
func NewGrantTable() *GrantTable {
	return &GrantTable{
		autoApproved: make(map[string]bool),
		grants:       make(map[string]map[string]GrantKind),
	}
}

// SetAutoApprove marks a session as auto-approved: every path check for that
// session short-circuits to Allow.
func (g *GrantTable) SetAutoApprove(sessionID string, enabled bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.autoApproved[sessionID] = enabled
}

// IsAutoApproved reports whether the session has been marked auto-approved.
func (g *GrantTable) IsAutoApproved(sessionID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.autoApproved[sessionID]
}

// Approve records a grant for (sessionID, operationKey).
func (g *GrantTable) Approve(sessionID, operationKey string, kind GrantKind) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.grants[sessionID] == nil {
		g.grants[sessionID] = make(map[string]GrantKind)
	}
	g.grants[sessionID][operationKey] = kind
}

// Consume reports whether a live grant exists for (sessionID, operationKey);
// if the grant is one-time, it is removed so a subsequent call returns false.
func (g *GrantTable) Consume(sessionID, operationKey string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	byKey, ok := g.grants[sessionID]
	if !ok {
		return false
	}
	kind, ok := byKey[operationKey]
	if !ok {
		return false
	}
	if kind == GrantOneTime {
		delete(byKey, operationKey)
	}
	return true
}

// ClearSession drops all grants and auto-approval state for a session, used
// when a session ends or when tests need isolation.
func (g *GrantTable) ClearSession(sessionID string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.autoApproved, sessionID)
	delete(g.grants, sessionID)
}
