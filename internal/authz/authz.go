// Package authz implements the path authorization (sandbox) pipeline stage:
// every tool invocation that touches a filesystem path is resolved relative
// to the session's working directory and checked against the decision
// matrix in the specification before the tool is allowed to run.
package authz

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/clio-agent/clio/internal/logging"
)

// Decision is the outcome of an authorization check.
type Decision string

const (
	Allow                Decision = "allow"
	RequiresAuthorization Decision = "requires_authorization"
)

// Request is the input to Authorizer.Check.
type Request struct {
	Path             string
	WorkingDirectory string
	SessionID        string
	OperationKey     string
	IsUserInitiated  bool
}

// Result carries the decision and, for RequiresAuthorization, the reason the
// caller should surface to the user.
type Result struct {
	Decision Decision
	Reason   string
	Resolved string // the resolved path, always populated
}

// Authorizer implements the sandbox decision matrix from the specification:
// user-initiated operations and auto-approved sessions are always allowed;
// paths at or under the working directory are always allowed; a live grant
// for (session, operation_key) is allowed and consumed if one-time;
// otherwise the caller must request authorization.
type Authorizer struct {
	grants *GrantTable
}

// New constructs an Authorizer backed by a fresh, empty grant table.
func New() *Authorizer {
	return &Authorizer{grants: NewGrantTable()}
}

// Grants exposes the underlying grant table so session setup can mark a
// session as auto-approved, or a headless runner can pre-grant operations.
func (a *Authorizer) Grants() *GrantTable { return a.grants }

// Check resolves req.Path and applies the decision matrix.
func (a *Authorizer) Check(req Request) Result {
	resolved := resolvePath(req.Path, req.WorkingDirectory)

	if req.IsUserInitiated {
		return Result{Decision: Allow, Resolved: resolved}
	}

	if a.grants.IsAutoApproved(req.SessionID) {
		return Result{Decision: Allow, Resolved: resolved}
	}

	if withinDir(resolved, req.WorkingDirectory) {
		return Result{Decision: Allow, Resolved: resolved}
	}

	if a.grants.Consume(req.SessionID, req.OperationKey) {
		return Result{Decision: Allow, Resolved: resolved}
	}

	logging.Debug().
		Str("component", "authz").
		Str("path", resolved).
		Str("operation_key", req.OperationKey).
		Msg("path outside sandbox, authorization required")

	return Result{
		Decision: RequiresAuthorization,
		Resolved: resolved,
		Reason:   "path " + resolved + " is outside the session working directory " + req.WorkingDirectory,
	}
}

// resolvePath expands ~, joins relative paths against the working
// directory, and cleans the result. Unlike the teacher's ResolvePath, this
// never shells out to `realpath`: the unresolved tail (components that do
// not yet exist, e.g. a file about to be created) is carried literally,
// exactly as the specification requires ("carry unresolved tail components
// literally").
func resolvePath(path, workDir string) string {
	if path == "" {
		return filepath.Clean(workDir)
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		if home := homeDir(); home != "" {
			path = filepath.Join(home, strings.TrimPrefix(path, "~"))
		}
	}

	if !filepath.IsAbs(path) {
		path = filepath.Join(workDir, path)
	}

	return canonicalizeExistingPrefix(filepath.Clean(path))
}

// canonicalizeExistingPrefix resolves symlinks on the longest existing
// leading portion of path, then re-appends the non-existent tail unchanged,
// so a symlinked working directory cannot be used to escape the sandbox
// while paths-to-be-created still resolve deterministically.
func canonicalizeExistingPrefix(path string) string {
	if real, err := filepath.EvalSymlinks(path); err == nil {
		return real
	}

	dir, base := filepath.Dir(path), filepath.Base(path)
	if dir == path {
		return path
	}
	return filepath.Join(canonicalizeExistingPrefix(dir), base)
}

func homeDir() string {
	if h, err := os.UserHomeDir(); err == nil && h != "" {
		return h
	}
	if u, err := user.Current(); err == nil {
		return u.HomeDir
	}
	return ""
}

// withinDir is the sandbox-escape-prevention invariant from spec §4.3.3: a
// bare string-prefix check is insufficient ("/ws/conv-1" must not match
// "/ws/conv-1-other"). The resolved path is allowed only if it equals the
// working directory exactly, or has the working directory plus an explicit
// path separator as a prefix.
func withinDir(resolved, workDir string) bool {
	resolved = filepath.Clean(resolved)
	workDir = filepath.Clean(workDir)

	if resolved == workDir {
		return true
	}

	prefix := workDir
	if !strings.HasSuffix(prefix, string(filepath.Separator)) {
		prefix += string(filepath.Separator)
	}
	return strings.HasPrefix(resolved, prefix)
}
