package session

import (
	"context"
	"encoding/json"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	einotool "github.com/cloudwego/eino/components/tool"
	"github.com/stretchr/testify/assert"

	"github.com/clio-agent/clio/internal/storage"
	"github.com/clio-agent/clio/internal/tool"
	"github.com/clio-agent/clio/pkg/types"
)

// sleepyTool is a fake tool.Tool that blocks for delay before completing,
// so executeToolCalls's concurrent-dispatch behavior can be observed on a
// wall clock instead of having to race real I/O.
type sleepyTool struct {
	id       string
	delay    time.Duration
	running  *int32 // optional: incremented/decremented around the sleep
	maxSeen  *int32 // optional: high-water mark of concurrent sleepyTool calls
}

func (s *sleepyTool) ID() string                  { return s.id }
func (s *sleepyTool) Description() string         { return "test tool" }
func (s *sleepyTool) Parameters() json.RawMessage { return json.RawMessage(`{"type":"object"}`) }
func (s *sleepyTool) EinoTool() einotool.InvokableTool { return nil }
func (s *sleepyTool) Execute(ctx context.Context, input json.RawMessage, toolCtx *tool.Context) (*tool.Result, error) {
	if s.running != nil {
		cur := atomic.AddInt32(s.running, 1)
		defer atomic.AddInt32(s.running, -1)
		for {
			prev := atomic.LoadInt32(s.maxSeen)
			if cur <= prev || atomic.CompareAndSwapInt32(s.maxSeen, prev, cur) {
				break
			}
		}
	}
	time.Sleep(s.delay)
	return &tool.Result{Title: s.id, Output: "ok"}, nil
}

func newRunningToolPart(id, callID, toolID string) *types.ToolPart {
	return &types.ToolPart{
		ID:        id,
		SessionID: "sess1",
		MessageID: "msg1",
		Type:      "tool",
		CallID:    callID,
		Tool:      toolID,
		State: types.ToolState{
			Status: "running",
			Input:  map[string]any{},
			Time:   &types.ToolTime{Start: time.Now().UnixMilli()},
		},
	}
}

func newTestProcessor(t *testing.T, reg *tool.Registry) *Processor {
	t.Helper()
	store := storage.New(t.TempDir())
	return NewProcessor(nil, reg, store, nil, "", "")
}

// TestExecuteToolCalls_ConcurrentDispatch asserts independent tool calls
// from one assistant reply run concurrently rather than one at a time: three
// 100ms calls with no serialization key between them must finish in well
// under their 300ms sequential sum.
func TestExecuteToolCalls_ConcurrentDispatch(t *testing.T) {
	var running, maxSeen int32
	reg := tool.NewRegistry(t.TempDir(), storage.New(t.TempDir()))
	delay := 100 * time.Millisecond
	reg.Register(&sleepyTool{id: "slow1", delay: delay, running: &running, maxSeen: &maxSeen})
	reg.Register(&sleepyTool{id: "slow2", delay: delay, running: &running, maxSeen: &maxSeen})
	reg.Register(&sleepyTool{id: "slow3", delay: delay, running: &running, maxSeen: &maxSeen})

	proc := newTestProcessor(t, reg)

	parts := []types.Part{
		newRunningToolPart("p1", "c1", "slow1"),
		newRunningToolPart("p2", "c2", "slow2"),
		newRunningToolPart("p3", "c3", "slow3"),
	}
	state := &sessionState{
		message: &types.Message{ID: "msg1", SessionID: "sess1"},
		parts:   parts,
	}

	start := time.Now()
	err := proc.executeToolCalls(context.Background(), state, DefaultAgent(), func(*types.Message, []types.Part) {})
	elapsed := time.Since(start)

	assert.NoError(t, err)
	assert.Less(t, elapsed, 250*time.Millisecond, "independent tool calls should run concurrently, not sequentially")
	assert.Equal(t, int32(3), maxSeen, "all three independent calls should have been in flight at once")

	for _, part := range parts {
		tp := part.(*types.ToolPart)
		assert.Equal(t, "completed", tp.State.Status)
		assert.Equal(t, "ok", tp.State.Output)
	}
}

// TestExecuteToolCalls_SerializesSamePathEdits asserts two Write/Edit calls
// targeting the same file path are never in flight at the same time, even
// though they run in a goroutine like everything else.
func TestExecuteToolCalls_SerializesSamePathEdits(t *testing.T) {
	var running, maxSeen int32
	reg := tool.NewRegistry(t.TempDir(), storage.New(t.TempDir()))
	delay := 60 * time.Millisecond
	reg.Register(&sleepyTool{id: "Write", delay: delay, running: &running, maxSeen: &maxSeen})

	proc := newTestProcessor(t, reg)

	mkWrite := func(id, callID string) *types.ToolPart {
		tp := newRunningToolPart(id, callID, "Write")
		tp.State.Input = map[string]any{"filePath": "/repo/shared.go"}
		return tp
	}
	parts := []types.Part{mkWrite("p1", "c1"), mkWrite("p2", "c2"), mkWrite("p3", "c3")}
	state := &sessionState{
		message: &types.Message{ID: "msg1", SessionID: "sess1"},
		parts:   parts,
	}

	err := proc.executeToolCalls(context.Background(), state, DefaultAgent(), func(*types.Message, []types.Part) {})

	assert.NoError(t, err)
	assert.Equal(t, int32(1), maxSeen, "same-path writes must be serialized against each other")
	for _, part := range parts {
		tp := part.(*types.ToolPart)
		assert.Equal(t, "completed", tp.State.Status)
	}
}

// TestSerializationKey covers the concurrent-dispatch partitioning rules
// directly: same-path writes/edits and git-writing bash calls serialize,
// everything else dispatches independently.
func TestSerializationKey(t *testing.T) {
	tests := []struct {
		name string
		part *types.ToolPart
		want string
	}{
		{
			name: "write to a path gets a path key",
			part: &types.ToolPart{Tool: "Write", State: types.ToolState{Input: map[string]any{"filePath": "/a/b.go"}}},
			want: "path:/a/b.go",
		},
		{
			name: "edit to the same path gets the same key as write",
			part: &types.ToolPart{Tool: "edit", State: types.ToolState{Input: map[string]any{"filePath": "/a/b.go"}}},
			want: "path:/a/b.go",
		},
		{
			name: "git commit gets the git key",
			part: &types.ToolPart{Tool: "bash", State: types.ToolState{Input: map[string]any{"command": "git commit -am wip"}}},
			want: "git",
		},
		{
			name: "non-mutating git command has no key",
			part: &types.ToolPart{Tool: "bash", State: types.ToolState{Input: map[string]any{"command": "git status"}}},
			want: "",
		},
		{
			name: "read has no key",
			part: &types.ToolPart{Tool: "read", State: types.ToolState{Input: map[string]any{"filePath": "/a/b.go"}}},
			want: "",
		},
		{
			name: "plain shell command has no key",
			part: &types.ToolPart{Tool: "bash", State: types.ToolState{Input: map[string]any{"command": "ls -la"}}},
			want: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, serializationKey(tt.part))
		})
	}
}

func TestComputeDiff_SingleLineChange(t *testing.T) {
	before := `module github.com/clio-agent/clio

go 1.25

require (
	github.com/example/pkg v1.0.0
)`

	after := `module github.com/clio-agent/clio

go 1.24

require (
	github.com/example/pkg v1.0.0
)`

	diffText, additions, deletions, err := computeDiff(before, after, "go.mod")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The change from "go 1.25" to "go 1.24" should result in 1 addition and 1 deletion
	if additions != 1 {
		t.Errorf("expected 1 addition, got %d", additions)
	}
	if deletions != 1 {
		t.Errorf("expected 1 deletion, got %d", deletions)
	}

	// diffText should not be empty
	if diffText == "" {
		t.Error("expected non-empty diff text")
	}
}

func TestComputeDiff_MultipleLineChanges(t *testing.T) {
	before := `line1
line2
line3`

	after := `line1
modified2
line3
line4`

	_, additions, deletions, err := computeDiff(before, after, "test.txt")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The diff algorithm groups changes differently:
	// - "line2\nline3" gets replaced with "modified2\nline3\nline4"
	// - This results in 3 lines added and 2 lines deleted
	// The important thing is that additions > 0 when there are additions
	if additions == 0 {
		t.Error("expected non-zero additions")
	}
	if deletions == 0 {
		t.Error("expected non-zero deletions")
	}
	// Net change: +1 line (from 3 to 4 lines)
	if additions-deletions != 1 {
		t.Errorf("expected net change of +1, got %d", additions-deletions)
	}
}

func TestComputeDiff_NoChanges(t *testing.T) {
	content := `same content
on multiple lines`

	diffText, additions, deletions, err := computeDiff(content, content, "file.txt")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if additions != 0 {
		t.Errorf("expected 0 additions, got %d", additions)
	}
	if deletions != 0 {
		t.Errorf("expected 0 deletions, got %d", deletions)
	}

	// No changes means empty diff or only headers
	// Either way, additions and deletions should be 0
	_ = diffText
}

func TestComputeDiff_NewFile(t *testing.T) {
	before := ""
	after := `new content
with two lines`

	_, additions, deletions, err := computeDiff(before, after, "new.txt")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// New file with 2 lines = 2 additions
	if additions != 2 {
		t.Errorf("expected 2 additions, got %d", additions)
	}
	if deletions != 0 {
		t.Errorf("expected 0 deletions, got %d", deletions)
	}
}

func TestComputeDiff_DeletedFile(t *testing.T) {
	before := `content to delete
second line`
	after := ""

	_, additions, deletions, err := computeDiff(before, after, "deleted.txt")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if additions != 0 {
		t.Errorf("expected 0 additions, got %d", additions)
	}
	// Deleted file with 2 lines = 2 deletions
	if deletions != 2 {
		t.Errorf("expected 2 deletions, got %d", deletions)
	}
}

func TestComputeDiff_UnifiedDiffFormat(t *testing.T) {
	before := `line1
line2
line3`

	after := `line1
modified2
line3`

	diffText, _, _, err := computeDiff(before, after, "test.txt")

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	t.Logf("Diff output:\n%s", diffText)

	// The diff text should be in proper unified diff format
	// Each deleted line should be prefixed with "-" on its own line
	// Each added line should be prefixed with "+" on its own line

	// Check that diffText contains proper line-by-line format
	// It should NOT have "-line2+modified2" on the same line
	if diffText == "" {
		t.Error("expected non-empty diff text")
	}

	// CRITICAL: The diff should NOT contain URL-encoded characters like %0A
	// The TUI expects raw newlines, not URL-encoded ones
	if strings.Contains(diffText, "%0A") {
		t.Error("diff should not contain URL-encoded newlines (%0A)")
	}
	if strings.Contains(diffText, "%0D") {
		t.Error("diff should not contain URL-encoded carriage returns (%0D)")
	}

	// Verify the diff has proper structure:
	// - Should have "--- test.txt" or "--- a/test.txt" header
	// - Should have "+++ test.txt" or "+++ b/test.txt" header
	// - Should have "-line2" on its own line (not merged with +)
	// - Should have "+modified2" on its own line

	lines := splitLines(diffText)

	hasMinusHeader := false
	hasPlusHeader := false
	foundDeletedLine := false
	foundAddedLine := false

	for _, line := range lines {
		if strings.HasPrefix(line, "--- ") {
			hasMinusHeader = true
		}
		if strings.HasPrefix(line, "+++ ") {
			hasPlusHeader = true
		}
		// Check for proper deleted line format (starts with - but not ---)
		if len(line) > 1 && line[0] == '-' && line[1] != '-' {
			foundDeletedLine = true
			// Verify it's on its own line (doesn't contain + after the content)
			if containsAddedMarker(line) {
				t.Errorf("deleted line should not contain '+' marker: %q", line)
			}
		}
		// Check for proper added line format (starts with + but not +++)
		if len(line) > 1 && line[0] == '+' && line[1] != '+' {
			foundAddedLine = true
		}
	}

	if !hasMinusHeader {
		t.Errorf("diff should have '--- ' header line: %s", diffText)
	}
	if !hasPlusHeader {
		t.Errorf("diff should have '+++ ' header line: %s", diffText)
	}
	if !foundDeletedLine {
		t.Errorf("diff should contain deleted line starting with '-': %s", diffText)
	}
	if !foundAddedLine {
		t.Errorf("diff should contain added line starting with '+': %s", diffText)
	}
}

// splitLines splits text by newlines, similar to strings.Split but handles edge cases
func splitLines(text string) []string {
	if text == "" {
		return nil
	}
	var lines []string
	start := 0
	for i := 0; i < len(text); i++ {
		if text[i] == '\n' {
			lines = append(lines, text[start:i])
			start = i + 1
		}
	}
	if start < len(text) {
		lines = append(lines, text[start:])
	}
	return lines
}

// containsAddedMarker checks if line contains a '+' that's not at the start
func containsAddedMarker(line string) bool {
	for i := 1; i < len(line); i++ {
		if line[i] == '+' {
			return true
		}
	}
	return false
}
