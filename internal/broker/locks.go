package broker

import "time"

// LockMode distinguishes a read lock from a write lock. The mode is
// recorded with the lock, but a file held by one agent is denied to every
// other agent whatever the mode of either request.
type LockMode string

const (
	LockRead  LockMode = "read"
	LockWrite LockMode = "write"
)

// LockID is a monotonic-per-broker identifier assigned to each granted
// lock batch.
type LockID int64

// fileLockEntry records one held file lock. Confined to the broker's single
// event-loop goroutine (spec §5: "all state transitions happen on this
// single loop, making the lock tables free of internal mutual exclusion") —
// no mutex guards these maps; only loop() may touch them.
type fileLockEntry struct {
	owner    string
	mode     LockMode
	lockID   LockID
	lockedAt time.Time
}

// gitLockEntry records the single git-lock holder, if any.
type gitLockEntry struct {
	holder   string
	lockID   LockID
	lockedAt time.Time
}

// lockTables holds the broker's file and git lock state, owned exclusively
// by the event loop goroutine.
type lockTables struct {
	files      map[string]fileLockEntry // canonicalized path -> entry
	git        *gitLockEntry
	nextLockID LockID
}

func newLockTables() *lockTables {
	return &lockTables{files: make(map[string]fileLockEntry)}
}

// requestFileLock checks every requested path against the table. If any
// path is held by a different owner, the whole batch is denied (spec §4.4:
// "If any path is held by a different owner, reply lock_denied"); otherwise
// every path is granted to the requester under one lock id.
func (t *lockTables) requestFileLock(owner string, files []string, mode LockMode, now time.Time) (LockID, []BlockedFile) {
	var blocked []BlockedFile
	for _, f := range files {
		if entry, ok := t.files[f]; ok && entry.owner != owner {
			blocked = append(blocked, BlockedFile{File: f, HeldBy: entry.owner})
		}
	}
	if len(blocked) > 0 {
		return 0, blocked
	}

	t.nextLockID++
	id := t.nextLockID
	for _, f := range files {
		t.files[f] = fileLockEntry{owner: owner, mode: mode, lockID: id, lockedAt: now}
	}
	return id, nil
}

// releaseFileLock drops entries owned by owner among the named files.
func (t *lockTables) releaseFileLock(owner string, files []string) {
	for _, f := range files {
		if entry, ok := t.files[f]; ok && entry.owner == owner {
			delete(t.files, f)
		}
	}
}

// releaseAllFileLocks drops every entry owned by owner, used on disconnect.
func (t *lockTables) releaseAllFileLocks(owner string) {
	for f, entry := range t.files {
		if entry.owner == owner {
			delete(t.files, f)
		}
	}
}

// requestGitLock grants the single-holder exclusive git lock.
func (t *lockTables) requestGitLock(owner string, now time.Time) (LockID, string, bool) {
	if t.git != nil && t.git.holder != owner {
		return 0, t.git.holder, false
	}
	t.nextLockID++
	id := t.nextLockID
	t.git = &gitLockEntry{holder: owner, lockID: id, lockedAt: now}
	return id, "", true
}

func (t *lockTables) releaseGitLock(owner string) {
	if t.git != nil && t.git.holder == owner {
		t.git = nil
	}
}

func (t *lockTables) releaseGitLockIfHeldBy(owner string) {
	t.releaseGitLock(owner)
}
