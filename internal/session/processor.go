package session

import (
	"context"
	"fmt"
	"sync"

	"github.com/clio-agent/clio/internal/authz"
	"github.com/clio-agent/clio/internal/contextmgr"
	"github.com/clio-agent/clio/internal/permission"
	"github.com/clio-agent/clio/internal/provider"
	"github.com/clio-agent/clio/internal/redactor"
	"github.com/clio-agent/clio/internal/resultstore"
	"github.com/clio-agent/clio/internal/storage"
	"github.com/clio-agent/clio/internal/tool"
	"github.com/clio-agent/clio/internal/undo"
	"github.com/clio-agent/clio/pkg/types"
)

// Processor handles message processing and the agentic loop.
type Processor struct {
	mu sync.Mutex

	providerRegistry  *provider.Registry
	toolRegistry      *tool.Registry
	storage           *storage.Storage
	permissionChecker *permission.Checker

	// authorizer enforces the path-authorization/sandbox decision matrix
	// (spec §4.3.3) on every tool call that resolves a filesystem path.
	authorizer *authz.Authorizer

	// redactor scrubs secrets from every ToolResult payload before it is
	// appended to the transcript or sent to the LLM (spec §4.3.4).
	redactor *redactor.Redactor

	// tokenEstimator calibrates the context manager's character-to-token
	// ratio per provider/model from actual response usage (spec §4.2).
	tokenEstimator *contextmgr.Estimator
	// reactiveTrimAttempts tracks, per session, how many reactive trim
	// attempts have been made for the current turn (spec §4.2 layer 3).
	reactiveTrimAttempts map[string]int

	// resultStore holds tool payloads too large to inline (spec §4.3.6).
	resultStore *resultstore.Store

	// undoJournals holds one ring-buffered undo journal per session (spec
	// §3/§4.3.5), created lazily on first mutating-tool use.
	undoMu       sync.Mutex
	undoJournals map[string]*undo.Journal

	// Default provider and model to use when not specified
	defaultProviderID string
	defaultModelID    string

	// Active sessions being processed
	sessions map[string]*sessionState
}

// sessionState tracks the state of an active session being processed. It is
// allocated fresh once per call to Processor.Process, so its lifetime is
// exactly one turn — the natural place to track turn-scoped bounds like
// cumulative tool-output bytes (spec §4.1).
type sessionState struct {
	ctx     context.Context
	cancel  context.CancelFunc
	message *types.Message
	parts   []types.Part
	waiters []chan error
	step    int
	retries int

	// partsMu guards parts and message against concurrent tool dispatch
	// (spec §4.1): multiple goroutines may append/update parts and invoke
	// the ProcessCallback for independent tool calls within the same turn.
	partsMu sync.Mutex

	// turnOutputBytes accumulates every tool call's output length within
	// this turn, so externalizeResult can force a result to the result
	// store once the turn's cumulative total crosses MaxTurnOutputBytes,
	// even for an individually small result.
	turnOutputBytes int
}

// ProcessCallback is called with message updates during processing.
type ProcessCallback func(msg *types.Message, parts []types.Part)

// CompactionPart is a synthetic part representing a user-requested (or
// auto-triggered) context compaction, taken by processCompaction. It never
// round-trips through storage as its own part kind, so it lives here rather
// than in pkg/types alongside the persisted part kinds. runLoop does not
// build one: its automatic compaction goes through compactMessages, and
// processCompaction has no caller in this package.
type CompactionPart struct {
	ID        string
	SessionID string
	MessageID string
	Type      string
	Summary   string
	Count     int
	Auto      bool
}

func (c *CompactionPart) PartType() string      { return c.Type }
func (c *CompactionPart) PartID() string        { return c.ID }
func (c *CompactionPart) PartSessionID() string { return c.SessionID }
func (c *CompactionPart) PartMessageID() string { return c.MessageID }

// NewProcessor creates a new session processor.
func NewProcessor(
	providerReg *provider.Registry,
	toolReg *tool.Registry,
	store *storage.Storage,
	permChecker *permission.Checker,
	defaultProviderID string,
	defaultModelID string,
) *Processor {
	// Use reasonable defaults if not specified
	if defaultProviderID == "" {
		defaultProviderID = "anthropic"
	}
	if defaultModelID == "" {
		defaultModelID = "claude-sonnet-4-20250514"
	}
	return &Processor{
		providerRegistry:     providerReg,
		toolRegistry:         toolReg,
		storage:              store,
		permissionChecker:    permChecker,
		authorizer:           authz.New(),
		redactor:             redactor.New(redactor.LevelPII),
		defaultProviderID:    defaultProviderID,
		defaultModelID:       defaultModelID,
		sessions:             make(map[string]*sessionState),
		tokenEstimator:       contextmgr.NewEstimator(0.2),
		reactiveTrimAttempts: make(map[string]int),
		resultStore:          resultstore.New(store.BasePath() + "/resultstore"),
		undoJournals:         make(map[string]*undo.Journal),
	}
}

// journalFor returns (creating and loading if necessary) the undo journal
// for sessionID.
func (p *Processor) journalFor(ctx context.Context, sessionID string) (*undo.Journal, error) {
	p.undoMu.Lock()
	defer p.undoMu.Unlock()

	if j, ok := p.undoJournals[sessionID]; ok {
		return j, nil
	}
	j := undo.New(p.storage, sessionID)
	if err := j.Load(ctx); err != nil {
		return nil, err
	}
	p.undoJournals[sessionID] = j
	return j, nil
}

// Process handles a new user message and generates an assistant response.
// This is the main entry point for the agentic loop.
func (p *Processor) Process(ctx context.Context, sessionID string, agent *Agent, callback ProcessCallback) error {
	p.mu.Lock()

	// Check if session is already processing
	if state, ok := p.sessions[sessionID]; ok {
		// Queue this request
		waiter := make(chan error, 1)
		state.waiters = append(state.waiters, waiter)
		p.mu.Unlock()

		// Wait for current processing to complete
		select {
		case err := <-waiter:
			if err != nil {
				return err
			}
			// Retry processing
			return p.Process(ctx, sessionID, agent, callback)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	// Create new session state. TurnWallClock bounds the whole turn (spec
	// §4.1); Abort() and the existing cancel plumbing both still work since
	// WithTimeout returns an ordinary CancelFunc.
	loopCtx, cancel := context.WithTimeout(ctx, TurnWallClock)
	state := &sessionState{
		ctx:    loopCtx,
		cancel: cancel,
	}
	p.sessions[sessionID] = state
	p.mu.Unlock()

	// Ensure cleanup
	defer func() {
		p.mu.Lock()
		delete(p.sessions, sessionID)

		// Notify waiters
		for _, waiter := range state.waiters {
			waiter <- nil
		}
		p.mu.Unlock()
	}()

	// Run the agentic loop
	return p.runLoop(loopCtx, sessionID, state, agent, callback)
}

// Abort cancels processing for a session.
func (p *Processor) Abort(sessionID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.sessions[sessionID]
	if !ok {
		return fmt.Errorf("session not processing: %s", sessionID)
	}

	state.cancel()
	return nil
}

// IsProcessing returns whether a session is currently processing.
func (p *Processor) IsProcessing(sessionID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.sessions[sessionID]
	return ok
}

// GetActiveState returns the current state for a processing session.
func (p *Processor) GetActiveState(sessionID string) (*types.Message, []types.Part, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	state, ok := p.sessions[sessionID]
	if !ok {
		return nil, nil, false
	}

	return state.message, state.parts, true
}
