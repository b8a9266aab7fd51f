package session

import (
	"context"
	"fmt"
	"time"

	"github.com/clio-agent/clio/internal/event"
	"github.com/clio-agent/clio/internal/logging"
	"github.com/clio-agent/clio/pkg/types"
)

// CurrentSchemaVersion is the session-store layout this build writes and
// reads (spec §4.5 step 2). A session whose SchemaVersion exceeds it was
// written by a newer, incompatible store and must not be loaded.
const CurrentSchemaVersion = 1

// checkSchemaVersion rejects a session written by a store layout newer than
// this build understands. A zero SchemaVersion predates the field and is
// treated as version 1.
func checkSchemaVersion(session *types.Session) error {
	version := session.SchemaVersion
	if version == 0 {
		version = 1
	}
	if version > CurrentSchemaVersion {
		return types.NewCoreError(types.FailSessionCorrupt, "storage",
			fmt.Errorf("session %s has schema version %d, newest understood is %d", session.ID, version, CurrentSchemaVersion))
	}
	return nil
}

// repairSession runs the full load-time repair pass (spec §4.5 step 2):
// reject an unknown schema version, sweep any tool call left mid-flight by a
// crash into a synthesized failure, and demote stray extra in-progress
// todos. It is invoked once per runLoop, after the triggering session and
// its messages are loaded, so every repair observes the same transcript the
// turn is about to continue.
func (p *Processor) repairSession(ctx context.Context, session *types.Session, messages []*types.Message) error {
	if err := checkSchemaVersion(session); err != nil {
		return err
	}
	if err := p.sweepOrphanToolCalls(ctx, session.ID, messages); err != nil {
		logging.Logger.Warn().Err(err).Str("session", session.ID).Msg("orphan tool call sweep failed")
	}
	if err := p.demoteExtraInProgressTodos(ctx, session.ID); err != nil {
		logging.Logger.Warn().Err(err).Str("session", session.ID).Msg("todo repair failed")
	}
	return nil
}

// sweepOrphanToolCalls finds every ToolPart still at status pending/running
// across messages (the only way a tool call can be left mid-flight is a
// crash between dispatch and the part's completed/error save) and finalizes
// it as an abandoned failure, so the transcript fed back to the model never
// contains a tool call with no result.
func (p *Processor) sweepOrphanToolCalls(ctx context.Context, sessionID string, messages []*types.Message) error {
	for _, msg := range messages {
		parts, err := p.loadParts(ctx, msg.ID)
		if err != nil {
			continue
		}
		for _, part := range parts {
			toolPart, ok := part.(*types.ToolPart)
			if !ok {
				continue
			}
			if toolPart.State.Status != "pending" && toolPart.State.Status != "running" {
				continue
			}

			now := time.Now().UnixMilli()
			toolPart.State.Status = "error"
			toolPart.State.Error = string(types.FailAbandoned)
			toolPart.State.Time.End = &now

			if err := p.savePart(ctx, msg.ID, toolPart); err != nil {
				return err
			}
			event.Publish(event.Event{
				Type: event.MessagePartUpdated,
				Data: event.MessagePartUpdatedData{Part: toolPart},
			})
		}
	}
	return nil
}

// demoteExtraInProgressTodos enforces the invariant documented on
// types.Todo: at most one todo per session may be in_progress. A crash
// between marking a new todo in_progress and demoting the previous one can
// leave two, so every one past the first found is reset to pending.
func (p *Processor) demoteExtraInProgressTodos(ctx context.Context, sessionID string) error {
	todos, err := GetTodos(ctx, p.storage, sessionID)
	if err != nil || len(todos) == 0 {
		return err
	}

	seenInProgress := false
	changed := false
	for i := range todos {
		if todos[i].Status != string(types.TodoInProgress) {
			continue
		}
		if !seenInProgress {
			seenInProgress = true
			continue
		}
		todos[i].Status = string(types.TodoPending)
		changed = true
	}

	if !changed {
		return nil
	}
	return UpdateTodos(ctx, p.storage, sessionID, todos)
}
