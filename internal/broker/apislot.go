package broker

import (
	"time"
)

// apiState tracks the shared outbound-LLM-request budget across every
// connected worker (spec §4.4/§6): a bounded number of requests may be
// in flight at once, and the broker additionally paces requests against
// provider-reported rate-limit headers and a rolling quota target.
//
// Confined to the broker's single event-loop goroutine, same as lockTables.
type apiState struct {
	maxParallel int
	targetQuota float64 // fraction of some provider-defined quota window, e.g. 0.8

	inFlight      int
	lastRequestAt time.Time
	minDelay      time.Duration

	remaining int       // provider-reported requests remaining in window
	resetAt   time.Time // provider-reported window reset
	retryUntil time.Time // set by a 429/Retry-After response

	quotaUsed      float64
	quotaTimestamp time.Time
}

func newAPIState(maxParallel int, targetQuota float64) *apiState {
	if maxParallel <= 0 {
		maxParallel = 2
	}
	if targetQuota <= 0 {
		targetQuota = 0.8
	}
	return &apiState{
		maxParallel: maxParallel,
		targetQuota: targetQuota,
		minDelay:    100 * time.Millisecond,
	}
}

// delay computes how long a newly requesting worker must wait before the
// broker grants it a slot: the largest of every pacing signal the broker
// knows about, reported with the reason of that largest signal. A
// non-positive result means the request may proceed immediately once a
// parallel slot is free.
func (s *apiState) delay(now time.Time) (time.Duration, string) {
	var best time.Duration
	reason := ""
	consider := func(d time.Duration, r string) {
		if d > best {
			best, reason = d, r
		}
	}
	consider(s.retryUntil.Sub(now), "retry_after")
	if s.lastRequestAt.After(time.Time{}) {
		consider(s.minDelay-now.Sub(s.lastRequestAt), "min_delay")
	}
	if s.remaining > 0 && s.remaining <= s.inFlight {
		consider(s.resetAt.Sub(now), "rate_limit_window")
	}
	consider(s.quotaPenalty(now), "quota_penalty")
	return best, reason
}

// quotaPenalty rises linearly once rolling quota usage passes the target
// fraction, caps at 5s, and decays linearly back to zero over a 60s window
// since the last observation — so a burst above target self-paces without
// a hard stop.
func (s *apiState) quotaPenalty(now time.Time) time.Duration {
	if s.quotaUsed <= s.targetQuota {
		return 0
	}
	age := now.Sub(s.quotaTimestamp)
	const decayWindow = 60 * time.Second
	if age >= decayWindow {
		return 0
	}
	over := s.quotaUsed - s.targetQuota
	const capSeconds = 5.0
	penalty := over * capSeconds
	if penalty > capSeconds {
		penalty = capSeconds
	}
	remainingFraction := 1 - float64(age)/float64(decayWindow)
	return time.Duration(penalty*remainingFraction*float64(time.Second))
}

// requestSlot is called when a worker asks for an API slot. It returns
// whether a slot is immediately available (inFlight < maxParallel) along
// with the pacing delay that must additionally be honored.
func (s *apiState) requestSlot(now time.Time) (granted bool, wait time.Duration, reason string) {
	wait, reason = s.delay(now)
	if wait > 0 {
		return false, wait, reason
	}
	if s.inFlight >= s.maxParallel {
		return false, s.minDelay, "max_parallel"
	}
	s.inFlight++
	s.lastRequestAt = now
	return true, 0, ""
}

// releaseSlot is called when a worker's outbound request completes, folding
// in whatever rate-limit headers the provider returned.
func (s *apiState) releaseSlot(now time.Time, headers map[string]string, status int) {
	if s.inFlight > 0 {
		s.inFlight--
	}
	s.quotaUsed = s.quotaUsed*decayFactor(now, s.quotaTimestamp) + 1.0/float64(s.maxParallel)
	s.quotaTimestamp = now

	if status == 429 {
		if ra, ok := headers["retry-after"]; ok {
			if d, err := time.ParseDuration(ra + "s"); err == nil {
				s.retryUntil = now.Add(d)
			}
		} else {
			s.retryUntil = now.Add(s.minDelay * 10)
		}
	}
	if v, ok := headers["x-ratelimit-remaining"]; ok {
		if n, err := parseIntSafe(v); err == nil {
			s.remaining = n
		}
	}
	if v, ok := headers["x-ratelimit-reset"]; ok {
		if n, err := parseIntSafe(v); err == nil {
			s.resetAt = now.Add(time.Duration(n) * time.Second)
		}
	}
}

func decayFactor(now, last time.Time) float64 {
	if last.IsZero() {
		return 0
	}
	elapsed := now.Sub(last)
	if elapsed > 60*time.Second {
		return 0
	}
	return 1 - float64(elapsed)/float64(60*time.Second)
}

func parseIntSafe(s string) (int, error) {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0, errNotInt
		}
		n = n*10 + int(r-'0')
	}
	return n, nil
}

var errNotInt = &parseError{"not an integer"}

type parseError struct{ msg string }

func (e *parseError) Error() string { return e.msg }
