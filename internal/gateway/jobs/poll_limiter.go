package jobs

import (
	"math"
	"sync"
	"time"
)

const pollLimitWindow = 1 * time.Second

// pollLimiter rejects status polls for the same job that arrive faster than
// window. Entries for terminal jobs are dropped by forget.
type pollLimiter struct {
	mu      sync.Mutex
	lastHit map[string]time.Time
	now     func() time.Time
	window  time.Duration
}

func newPollLimiter(window time.Duration, now func() time.Time) *pollLimiter {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = pollLimitWindow
	}
	return &pollLimiter{
		lastHit: make(map[string]time.Time),
		now:     now,
		window:  window,
	}
}

// Allow records a poll and reports whether it is outside the window. When
// it is not, the remaining wait is returned.
func (l *pollLimiter) Allow(principal, jobID string) (bool, time.Duration) {
	if l == nil {
		return true, 0
	}
	key := principal + "|" + jobID
	now := l.now()
	l.mu.Lock()
	defer l.mu.Unlock()
	if last, ok := l.lastHit[key]; ok {
		if elapsed := now.Sub(last); elapsed < l.window {
			return false, l.window - elapsed
		}
	}
	l.lastHit[key] = now
	return true, 0
}

func (l *pollLimiter) forget(principal, jobID string) {
	if l == nil {
		return
	}
	l.mu.Lock()
	delete(l.lastHit, principal+"|"+jobID)
	l.mu.Unlock()
}

func retryAfterSeconds(wait time.Duration) int {
	secs := int(math.Ceil(wait.Seconds()))
	if secs < 1 {
		return 1
	}
	return secs
}
