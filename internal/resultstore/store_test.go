package resultstore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clio-agent/clio/pkg/types"
)

func TestShouldExternalize(t *testing.T) {
	require.False(t, ShouldExternalize(InlineThreshold))
	require.True(t, ShouldExternalize(InlineThreshold+1))
}

func TestPutGetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	payload := []byte(strings.Repeat("x", InlineThreshold+10))
	ref, err := s.Put("sess-1", types.ToolCallID("call-1"), "text/plain", payload)
	require.NoError(t, err)
	require.Equal(t, len(payload), ref.ByteLength)
	require.Len(t, ref.HeadPreview, PreviewBytes)

	got, gotRef, err := s.Get("sess-1", types.ToolCallID("call-1"))
	require.NoError(t, err)
	require.Equal(t, payload, got)
	require.Equal(t, ref, gotRef)
}

func TestGetMissingReturnsNotFound(t *testing.T) {
	s := New(t.TempDir())
	_, _, err := s.Get("sess-1", types.ToolCallID("missing"))
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDedupSharesBlobAcrossCalls(t *testing.T) {
	dir := t.TempDir()
	s := New(dir)

	payload := []byte("identical output from two separate tool calls")
	ref1, err := s.Put("sess-1", types.ToolCallID("call-1"), "text/plain", payload)
	require.NoError(t, err)
	ref2, err := s.Put("sess-1", types.ToolCallID("call-2"), "text/plain", payload)
	require.NoError(t, err)

	require.Equal(t, ref1.Hash, ref2.Hash)

	entries, err := os.ReadDir(filepath.Join(dir, "blobs", ref1.Hash[:2]))
	require.NoError(t, err)
	require.Len(t, entries, 1, "identical payloads must not be written twice")
}

func TestPreviewTruncatedForLongPayload(t *testing.T) {
	s := New(t.TempDir())
	payload := []byte(strings.Repeat("a", PreviewBytes*2))
	ref, err := s.Put("sess-1", types.ToolCallID("call-1"), "text/plain", payload)
	require.NoError(t, err)
	require.Len(t, ref.HeadPreview, PreviewBytes)
}
