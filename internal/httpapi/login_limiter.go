package httpapi

import (
	"sync"
	"time"
)

type loginLimiter struct {
	mu      sync.Mutex
	window  time.Duration
	max     int
	entries map[string][]time.Time
}

// newLoginLimiter bounds credential guessing on the auth endpoints, keyed by
// client ip and by login. The caller picks the window: the mobile app retries
// a flaky sign-in a handful of times, so the budget must absorb that burst
// while still cutting off a scripted guess stream.
func newLoginLimiter(window time.Duration, max int) *loginLimiter {
	return &loginLimiter{
		window:  window,
		max:     max,
		entries: make(map[string][]time.Time),
	}
}

func (l *loginLimiter) Allow(key string, now time.Time) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := now.Add(-l.window)
	ts := l.entries[key]

	kept := ts[:0]
	for _, t := range ts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	ts = kept
	if len(ts) >= l.max {
		l.entries[key] = ts
		return false
	}

	ts = append(ts, now)
	l.entries[key] = ts
	return true
}
