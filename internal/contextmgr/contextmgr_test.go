package contextmgr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clio-agent/clio/pkg/types"
)

func textOfTest(m *types.Message) string {
	if m.System != nil {
		return *m.System
	}
	return m.ID // in these tests, message ID doubles as a stand-in for content length
}

func buildMessages(n int) []*types.Message {
	msgs := make([]*types.Message, 0, n+2)
	msgs = append(msgs, &types.Message{ID: "sys", Role: "system"})
	msgs = append(msgs, &types.Message{ID: "first-user-task-0123456789", Role: "user"})
	for i := 0; i < n; i++ {
		role := "assistant"
		if i%2 == 0 {
			role = "user"
		}
		msgs = append(msgs, &types.Message{ID: fmt.Sprintf("msg-%03d-012345678901234567890123456789", i), Role: role})
	}
	return msgs
}

func TestProactiveTrimNoOpUnderThreshold(t *testing.T) {
	msgs := buildMessages(2)
	est := NewEstimator(0.2)
	result := ProactiveTrim(msgs, textOfTest, 1_000_000, est, "anthropic/claude")
	require.Equal(t, msgs, result.Kept)
	require.Zero(t, result.Dropped)
}

func TestProactiveTrimKeepsSystemAndFirstUserAndLastK(t *testing.T) {
	msgs := buildMessages(200)
	est := NewEstimator(0.2)
	// A small budget forces aggressive dropping.
	result := ProactiveTrim(msgs, textOfTest, 200, est, "anthropic/claude")

	require.Contains(t, result.Kept, msgs[0], "system message must survive trim")
	require.Contains(t, result.Kept, msgs[1], "first user message must survive trim")

	for _, m := range msgs[len(msgs)-KeepLastK:] {
		require.Contains(t, result.Kept, m, "last K messages must survive trim")
	}
}

func TestProactiveTrimEstimateAtOrBelowThreshold(t *testing.T) {
	msgs := buildMessages(500)
	est := NewEstimator(0.2)
	b := 2000
	result := ProactiveTrim(msgs, textOfTest, b, est, "anthropic/claude")
	require.LessOrEqual(t, result.EstimatedTokens, int(float64(b)*ProactiveThresholdFraction)+estimateTotal([]*types.Message{msgs[0]}, textOfTest, est, "anthropic/claude"))
}

func TestValidationTrimInsertsBoundedSummary(t *testing.T) {
	msgs := buildMessages(500)
	est := NewEstimator(0.2)
	b := 50
	result := ValidationTrim(msgs, textOfTest, nil, b, est, "anthropic/claude", "- write tests [in_progress]")
	require.LessOrEqual(t, len(result.DroppedSummary), ValidationSummaryMaxBytes)
	require.Equal(t, msgs[0], result.Kept[0], "system message must remain at the front")

	found := false
	for _, m := range result.Kept {
		if m.IsSummary {
			found = true
		}
	}
	require.True(t, found, "validation trim must insert a synthetic summary when further trimming is needed")
}

func TestValidationTrimNoOpWhenAlreadyUnderBudget(t *testing.T) {
	msgs := buildMessages(2)
	est := NewEstimator(0.2)
	result := ValidationTrim(msgs, textOfTest, nil, 1_000_000, est, "anthropic/claude", "")
	require.Equal(t, msgs, result.Kept)
}

func TestReactiveTrimEscalatesByAttempt(t *testing.T) {
	msgs := buildMessages(100)
	est := NewEstimator(0.2)

	r1 := ReactiveTrim(msgs, textOfTest, nil, est, "anthropic/claude", 1, "")
	r2 := ReactiveTrim(msgs, textOfTest, nil, est, "anthropic/claude", 2, "")
	r3 := ReactiveTrim(msgs, textOfTest, nil, est, "anthropic/claude", 3, "")

	require.Greater(t, r2.Dropped, r1.Dropped, "25% fraction with more candidates dropped than 50% fraction is wrong direction")
	require.LessOrEqual(t, len(r3.Kept), len(r2.Kept), "minimal attempt must keep the fewest messages")
}

func TestReactiveMinimalKeepsSystemFirstUserAndLastTwo(t *testing.T) {
	msgs := buildMessages(50)
	est := NewEstimator(0.2)
	result := ReactiveTrim(msgs, textOfTest, nil, est, "anthropic/claude", 3, "")

	require.Equal(t, msgs[0], result.Kept[0])
	require.Contains(t, result.Kept, msgs[1])
	require.Contains(t, result.Kept, msgs[len(msgs)-1])
	require.Contains(t, result.Kept, msgs[len(msgs)-2])
}

func TestEstimatorCalibratesFromObservations(t *testing.T) {
	est := NewEstimator(1.0) // alpha=1 so one observation fully overrides the default
	before := est.EstimateTokens("anthropic/claude", "abcdefgh") // default ratio
	est.Observe("anthropic/claude", 800, 100)                    // observed ratio 8 chars/token
	after := est.EstimateTokens("anthropic/claude", "abcdefgh")
	require.NotEqual(t, before, after)
	require.Equal(t, 1, after) // 8 chars / 8 chars-per-token = 1 token
}

type stubResolver struct {
	file, folder, codebase, selection, terminal string
	err                                          error
}

func (s stubResolver) ResolveFile(string) (string, error)   { return s.file, s.err }
func (s stubResolver) ResolveFolder(string) (string, error) { return s.folder, s.err }
func (s stubResolver) ResolveCodebase() (string, error)     { return s.codebase, s.err }
func (s stubResolver) ResolveSelection() (string, error)    { return s.selection, s.err }
func (s stubResolver) ResolveTerminalLastCommand() (string, error) {
	return s.terminal, s.err
}

func TestResolveHashtagsBasic(t *testing.T) {
	est := NewEstimator(0.2)
	r := stubResolver{file: "package main", codebase: "whole repo summary"}
	blocks, err := ResolveHashtags("look at #file:main.go and #codebase", r, est, "anthropic/claude")
	require.NoError(t, err)
	require.Len(t, blocks, 2)
	require.Equal(t, "file:main.go", blocks[0].Source)
	require.Equal(t, "codebase", blocks[1].Source)
}

func TestResolveHashtagsTruncatesOverBudget(t *testing.T) {
	HashtagBudgetTokens = 5 // tiny budget for this test
	defer func() { HashtagBudgetTokens = 32000 }()

	est := NewEstimator(0.2)
	big := make([]byte, 1000)
	for i := range big {
		big[i] = 'x'
	}
	r := stubResolver{file: string(big)}
	blocks, err := ResolveHashtags("#file:big.txt", r, est, "anthropic/claude")
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	require.True(t, blocks[0].Truncated)
	require.LessOrEqual(t, est.EstimateTokens("anthropic/claude", blocks[0].Content), HashtagBudgetTokens)
}

func TestResolveHashtagsPropagatesResolverError(t *testing.T) {
	est := NewEstimator(0.2)
	r := stubResolver{err: errors.New("boom")}
	_, err := ResolveHashtags("#file:missing.go", r, est, "anthropic/claude")
	require.Error(t, err)
}

func TestResolveHashtagsNoTokensReturnsNil(t *testing.T) {
	est := NewEstimator(0.2)
	blocks, err := ResolveHashtags("plain text, no hashtags here", stubResolver{}, est, "anthropic/claude")
	require.NoError(t, err)
	require.Nil(t, blocks)
}
