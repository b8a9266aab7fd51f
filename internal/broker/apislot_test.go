package broker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRequestSlotWaitsMinDelayBetweenGrants(t *testing.T) {
	t.Parallel()
	s := newAPIState(2, 0.8)
	now := time.Now()

	granted, wait, reason := s.requestSlot(now)
	require.True(t, granted)
	require.Zero(t, wait)
	require.Empty(t, reason)
	require.Equal(t, 1, s.inFlight)

	// minDelay (100ms) hasn't elapsed since the first grant, so the second
	// request must wait even though a parallel slot is still free.
	granted, wait, reason = s.requestSlot(now)
	require.False(t, granted)
	require.Equal(t, "min_delay", reason)
	require.Greater(t, wait, time.Duration(0))
}

func TestRequestSlotDeniedAtMaxParallel(t *testing.T) {
	t.Parallel()
	s := newAPIState(1, 0.8)
	now := time.Now()

	granted, _, _ := s.requestSlot(now)
	require.True(t, granted)

	later := now.Add(time.Second)
	granted, wait, reason := s.requestSlot(later)
	require.False(t, granted)
	require.Equal(t, "max_parallel", reason)
	require.Equal(t, s.minDelay, wait)
}

func TestReleaseSlotDecrementsInFlight(t *testing.T) {
	t.Parallel()
	s := newAPIState(2, 0.8)
	now := time.Now()

	s.requestSlot(now)
	require.Equal(t, 1, s.inFlight)

	s.releaseSlot(now, nil, 200)
	require.Equal(t, 0, s.inFlight)
}

func TestReleaseSlot429SetsRetryUntilFromHeader(t *testing.T) {
	t.Parallel()
	s := newAPIState(2, 0.8)
	now := time.Now()

	s.requestSlot(now)
	s.releaseSlot(now, map[string]string{"retry-after": "3"}, 429)

	require.True(t, s.retryUntil.After(now))

	wait, reason := s.delay(now)
	require.Equal(t, "retry_after", reason)
	require.Greater(t, wait, time.Duration(0))
}

func TestReleaseSlot429WithoutHeaderFallsBackToMinDelayMultiple(t *testing.T) {
	t.Parallel()
	s := newAPIState(2, 0.8)
	now := time.Now()

	s.requestSlot(now)
	s.releaseSlot(now, nil, 429)

	require.Equal(t, now.Add(s.minDelay*10), s.retryUntil)
}

func TestDelayRateLimitWindowWhenRemainingExhausted(t *testing.T) {
	t.Parallel()
	s := newAPIState(5, 0.8)
	now := time.Now()

	// Set up state directly: one slot in flight, no remaining quota in the
	// provider-reported window, window resets in the future, and the
	// min-delay/retry-after gates are already clear.
	s.inFlight = 1
	s.remaining = 1
	s.resetAt = now.Add(10 * time.Second)

	wait, reason := s.delay(now)
	require.Equal(t, "rate_limit_window", reason)
	require.Greater(t, wait, time.Duration(0))
}

func TestQuotaPenaltyZeroBelowTarget(t *testing.T) {
	t.Parallel()
	s := newAPIState(2, 0.8)
	s.quotaUsed = 0.5
	s.quotaTimestamp = time.Now()
	require.Zero(t, s.quotaPenalty(time.Now()))
}

func TestQuotaPenaltyDecaysToZeroAfterWindow(t *testing.T) {
	t.Parallel()
	s := newAPIState(2, 0.8)
	now := time.Now()
	s.quotaUsed = 1.0
	s.quotaTimestamp = now

	require.Greater(t, s.quotaPenalty(now), time.Duration(0))
	require.Zero(t, s.quotaPenalty(now.Add(61*time.Second)))
}

func TestParseIntSafe(t *testing.T) {
	t.Parallel()
	n, err := parseIntSafe("42")
	require.NoError(t, err)
	require.Equal(t, 42, n)

	_, err = parseIntSafe("4x2")
	require.Error(t, err)
}
