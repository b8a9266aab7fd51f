// Package resultstore holds tool payloads too large to inline in the
// session transcript (spec §4.3.6). Payloads are content-addressed by
// SHA-256 so an identical result produced by two different tool calls (a
// repeated `grep` on an unchanged file, say) is stored once; the transcript
// only ever carries a short Ref plus a head preview.
package resultstore

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/clio-agent/clio/pkg/types"
)

// InlineThreshold is the largest payload size kept inline in a ToolResult.
// Anything larger is externalized per spec §4.3.6.
const InlineThreshold = 8 * 1024

// PreviewBytes bounds the head preview carried alongside a Ref.
const PreviewBytes = 512

// ErrNotFound is returned when a (session, call) manifest or its blob is
// missing.
var ErrNotFound = errors.New("resultstore: not found")

// Ref is what the in-transcript ToolResult carries in place of the full
// payload: a content hash, its length, a declared content type, and a
// bounded preview of the start of the payload.
type Ref struct {
	Hash        string `json:"hash"`
	ByteLength  int    `json:"byte_length"`
	ContentType string `json:"content_type"`
	HeadPreview string `json:"head_preview"`
}

// ShouldExternalize reports whether a payload of this size must be stored
// externally rather than inlined in the transcript.
func ShouldExternalize(payloadLen int) bool {
	return payloadLen > InlineThreshold
}

// Store is a content-addressed directory of tool payloads, keyed for lookup
// by (session_id, call_id) through a small per-call manifest pointing at
// the shared content-addressed blob.
type Store struct {
	mu      sync.Mutex
	baseDir string
}

// New returns a Store rooted at baseDir (typically a subdirectory of the
// session store's data directory, e.g. "<data>/resultstore").
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

func (s *Store) blobPath(hash string) string {
	return filepath.Join(s.baseDir, "blobs", hash[:2], hash)
}

func (s *Store) manifestPath(sessionID string, callID types.ToolCallID) string {
	return filepath.Join(s.baseDir, "manifests", sessionID, string(callID)+".json")
}

// Put stores payload, returning a Ref for the transcript. If the same
// content has already been stored (by hash) for any call, the blob is not
// rewritten — only the per-call manifest is created, so N identical large
// results cost one blob plus N small manifests.
func (s *Store) Put(sessionID string, callID types.ToolCallID, contentType string, payload []byte) (Ref, error) {
	sum := sha256.Sum256(payload)
	hash := hex.EncodeToString(sum[:])

	preview := payload
	if len(preview) > PreviewBytes {
		preview = preview[:PreviewBytes]
	}
	ref := Ref{
		Hash:        hash,
		ByteLength:  len(payload),
		ContentType: contentType,
		HeadPreview: string(preview),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	blobPath := s.blobPath(hash)
	if _, err := os.Stat(blobPath); os.IsNotExist(err) {
		if err := os.MkdirAll(filepath.Dir(blobPath), 0o755); err != nil {
			return Ref{}, fmt.Errorf("resultstore: create blob dir: %w", err)
		}
		tmp := blobPath + ".tmp"
		if err := os.WriteFile(tmp, payload, 0o644); err != nil {
			return Ref{}, fmt.Errorf("resultstore: write blob: %w", err)
		}
		if err := os.Rename(tmp, blobPath); err != nil {
			os.Remove(tmp)
			return Ref{}, fmt.Errorf("resultstore: rename blob: %w", err)
		}
	}

	manifestPath := s.manifestPath(sessionID, callID)
	if err := os.MkdirAll(filepath.Dir(manifestPath), 0o755); err != nil {
		return Ref{}, fmt.Errorf("resultstore: create manifest dir: %w", err)
	}
	data, err := json.Marshal(ref)
	if err != nil {
		return Ref{}, err
	}
	tmp := manifestPath + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return Ref{}, fmt.Errorf("resultstore: write manifest: %w", err)
	}
	if err := os.Rename(tmp, manifestPath); err != nil {
		os.Remove(tmp)
		return Ref{}, fmt.Errorf("resultstore: rename manifest: %w", err)
	}

	return ref, nil
}

// Get returns the full payload and its Ref for a previously stored
// (session_id, call_id). No built-in tool calls it: the tool registry has
// no `result_fetch` tool, so an externalized payload is not re-fetchable
// by the model.
func (s *Store) Get(sessionID string, callID types.ToolCallID) ([]byte, Ref, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	manifestPath := s.manifestPath(sessionID, callID)
	data, err := os.ReadFile(manifestPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Ref{}, ErrNotFound
		}
		return nil, Ref{}, err
	}
	var ref Ref
	if err := json.Unmarshal(data, &ref); err != nil {
		return nil, Ref{}, err
	}

	payload, err := os.ReadFile(s.blobPath(ref.Hash))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, Ref{}, ErrNotFound
		}
		return nil, Ref{}, err
	}
	return payload, ref, nil
}
