package idgen

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIDsAreUniqueAndSortable(t *testing.T) {
	var ids []string
	for i := 0; i < 100; i++ {
		ids = append(ids, string(NewMessageID()))
	}

	seen := make(map[string]bool, len(ids))
	for i, id := range ids {
		require.False(t, seen[id], "duplicate id generated: %s", id)
		seen[id] = true
		if i > 0 {
			require.Less(t, ids[i-1], id, "ids must sort monotonically by creation order")
		}
	}
}

func TestDistinctGeneratorsProduceDistinctTypes(t *testing.T) {
	require.NotEmpty(t, string(NewSessionID()))
	require.NotEmpty(t, string(NewTurnID()))
	require.NotEmpty(t, string(NewAgentID()))
	require.NotEmpty(t, string(NewLockID()))
	require.NotEmpty(t, string(NewToolCallID()))
}
