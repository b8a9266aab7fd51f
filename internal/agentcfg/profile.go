// Package agentcfg holds per-agent tool-permission profiles: which tools an
// agent may call, and the default authorization action for each
// operation-key pattern it targets. Generalized from the teacher's
// `internal/agent` package, replacing its bespoke wildcard matcher with
// doublestar glob matching throughout (spec's tool pipeline names
// `operation_key` patterns like "write_file:src/**", which doublestar
// matches directly).
package agentcfg

import "github.com/bmatcuk/doublestar/v4"

// Action is the default authorization action a profile assigns to an
// operation-key pattern.
type Action string

const (
	ActionAllow Action = "allow"
	ActionAsk   Action = "ask"
	ActionDeny  Action = "deny"
)

// Mode is the role an agent profile is permitted to play.
type Mode string

const (
	ModePrimary  Mode = "primary"
	ModeSubagent Mode = "subagent"
	ModeAll      Mode = "all"
)

// Profile is one named agent configuration: its allowed tools and the
// default permission action for tool operations it performs.
type Profile struct {
	Name        string
	Description string
	Mode        Mode
	BuiltIn     bool
	Model       string // "" means use the session default

	// Tools maps a tool name (or glob, e.g. "external_*") to whether it is
	// enabled for this profile.
	Tools map[string]bool

	// Permission maps an operation-key glob (e.g. "bash:git push*",
	// "write_file:src/**") to the default action. More specific globs
	// should be listed; Resolve returns the first match in map iteration
	// order is NOT guaranteed, so profiles SHOULD keep one glob per
	// intent rather than relying on precedence between overlapping globs.
	Permission map[string]Action

	// DoomLoopAction overrides what happens when the orchestrator's doom
	// loop detector fires for this agent; defaults to ActionAsk.
	DoomLoopAction Action
}

// ToolEnabled reports whether toolName is enabled for this profile. Exact
// match wins; otherwise the first matching glob key decides; tools default
// to enabled when unmentioned, matching the teacher's "unknown tool is
// allowed" default.
func (p *Profile) ToolEnabled(toolName string) bool {
	if enabled, ok := p.Tools[toolName]; ok {
		return enabled
	}
	for pattern, enabled := range p.Tools {
		if matches(pattern, toolName) {
			return enabled
		}
	}
	return true
}

// Resolve returns the configured action for operationKey, defaulting to ask
// when no glob matches.
func (p *Profile) Resolve(operationKey string) Action {
	for pattern, action := range p.Permission {
		if matches(pattern, operationKey) {
			return action
		}
	}
	return ActionAsk
}

func matches(pattern, s string) bool {
	if pattern == "*" {
		return true
	}
	matched, err := doublestar.Match(pattern, s)
	return err == nil && matched
}

// IsPrimary reports whether the profile may be used to drive a top-level
// turn rather than only as a sub-agent.
func (p *Profile) IsPrimary() bool { return p.Mode == ModePrimary || p.Mode == ModeAll }

// IsSubagent reports whether the profile may be spawned as a sub-agent.
func (p *Profile) IsSubagent() bool { return p.Mode == ModeSubagent || p.Mode == ModeAll }
