// Package undo implements the per-turn undo journal from spec §3/§4.3.5:
// before any mutating file tool runs, the pre-mutation content of every
// path it will touch is recorded; writes to the same path within one turn
// only record the pre-turn state once. /undo reverses the most recent
// turn's entries, and supports multi-step undo up to the ring size.
//
// Shell-executed mutations are not tracked, per spec §4.3.5 — the journal
// only ever sees paths a file-mutating tool declares it will write.
package undo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/sergi/go-diff/diffmatchpatch"

	"github.com/clio-agent/clio/internal/storage"
	"github.com/clio-agent/clio/pkg/types"
)

// RingSize bounds the journal to the N most-recent turns, per spec §3.
const RingSize = 20

// ErrNoEntry is returned when Undo is called for a turn with no recorded
// entry, or when the ring has no entries left.
var ErrNoEntry = errors.New("undo: no journal entry for turn")

// Preview is a human-readable unified diff for one file within an
// UndoEntry, computed against the content the undo will restore.
type Preview struct {
	Path      string
	Tombstone bool
	Diff      string
}

// Journal is one session's undo ring buffer, persisted to a sidecar file
// (spec §4.5) so it survives process restarts.
type Journal struct {
	mu        sync.Mutex
	store     *storage.Storage
	sessionID string

	// entries is the ring, oldest first, bounded to RingSize.
	entries []*types.UndoEntry
	// recorded tracks which (turn, path) pairs have already captured their
	// pre-mutation state, enforcing "writes to the same path within one
	// turn record only once".
	recorded map[types.TurnID]map[string]bool
}

// New returns a Journal for sessionID, persisting through store under
// ["undo", sessionID, "journal"]. Call Load to restore any prior state.
func New(store *storage.Storage, sessionID string) *Journal {
	return &Journal{
		store:     store,
		sessionID: sessionID,
		recorded:  make(map[types.TurnID]map[string]bool),
	}
}

type journalDoc struct {
	Entries []*types.UndoEntry `json:"entries"`
}

// Load restores the journal from its sidecar file, if present.
func (j *Journal) Load(ctx context.Context) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	var doc journalDoc
	err := j.store.Get(ctx, []string{"undo", j.sessionID, "journal"}, &doc)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	j.entries = doc.Entries
	for _, e := range j.entries {
		seen := make(map[string]bool, len(e.Files))
		for _, f := range e.Files {
			seen[f.Path] = true
		}
		j.recorded[e.TurnID] = seen
	}
	return nil
}

func (j *Journal) persistLocked(ctx context.Context) error {
	return j.store.Put(ctx, []string{"undo", j.sessionID, "journal"}, journalDoc{Entries: j.entries})
}

// Record captures the pre-mutation state of path for turnID, before the
// mutating tool is allowed to run. currentContent is the content on disk
// right now (or nil if the path does not yet exist, in which case exists
// must be false and the entry is a tombstone). A second Record call for the
// same (turnID, path) is a no-op: the first call already captured the
// pre-turn state, and that is what undo must restore.
func (j *Journal) Record(ctx context.Context, turnID types.TurnID, path string, currentContent []byte, exists bool) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	seen, ok := j.recorded[turnID]
	if !ok {
		seen = make(map[string]bool)
		j.recorded[turnID] = seen
	}
	if seen[path] {
		return nil
	}
	seen[path] = true

	sum := sha256.Sum256(currentContent)
	state := types.UndoFileState{
		Path:      path,
		Tombstone: !exists,
		Hash:      hex.EncodeToString(sum[:]),
	}
	if exists {
		state.PreviousContent = string(currentContent)
	}

	entry := j.entryForTurnLocked(turnID)
	if entry == nil {
		entry = &types.UndoEntry{TurnID: turnID, CreatedAt: time.Now()}
		j.entries = append(j.entries, entry)
		if len(j.entries) > RingSize {
			oldest := j.entries[0]
			delete(j.recorded, oldest.TurnID)
			j.entries = j.entries[1:]
		}
	}
	entry.Files = append(entry.Files, state)

	return j.persistLocked(ctx)
}

func (j *Journal) entryForTurnLocked(turnID types.TurnID) *types.UndoEntry {
	for _, e := range j.entries {
		if e.TurnID == turnID {
			return e
		}
	}
	return nil
}

// Entries returns the current ring, oldest first. Callers must not mutate
// the returned slice.
func (j *Journal) Entries() []*types.UndoEntry {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]*types.UndoEntry, len(j.entries))
	copy(out, j.entries)
	return out
}

// Undo removes and returns the most recent turn's entry, along with a
// unified-diff preview per file (restoring `PreviousContent`, or deleting
// the path if Tombstone is set). The caller — the concrete file tool, which
// owns actual filesystem access — applies the reversal and supplies
// afterContent (the content on disk right now) so Undo can render a diff;
// Undo itself never touches the filesystem.
func (j *Journal) Undo(ctx context.Context, afterContent map[string][]byte) (*types.UndoEntry, []Preview, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	if len(j.entries) == 0 {
		return nil, nil, ErrNoEntry
	}
	last := j.entries[len(j.entries)-1]
	j.entries = j.entries[:len(j.entries)-1]
	delete(j.recorded, last.TurnID)

	if err := j.persistLocked(ctx); err != nil {
		return nil, nil, err
	}

	dmp := diffmatchpatch.New()
	previews := make([]Preview, 0, len(last.Files))
	for _, f := range last.Files {
		after := string(afterContent[f.Path])
		diffs := dmp.DiffMain(after, f.PreviousContent, false)
		previews = append(previews, Preview{
			Path:      f.Path,
			Tombstone: f.Tombstone,
			Diff:      dmp.DiffPrettyText(diffs),
		})
	}
	return last, previews, nil
}

// MarshalEntry is a convenience for callers that want to log/display a raw
// entry without reaching into its JSON tag names directly.
func MarshalEntry(e *types.UndoEntry) ([]byte, error) {
	return json.Marshal(e)
}
