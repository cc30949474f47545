package ratelimit

import (
	"sync"
	"time"
)

// Decision is the outcome of one request against a bucket
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// RetryAfter is how long until the oldest request in the window expires.
	// Zero when Allowed.
	RetryAfter time.Duration
}

// Limiter is a sliding-window request limiter keyed by caller identity
type Limiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	maxReqs int
	window  time.Duration
	cleanup *time.Ticker
	done    chan struct{}
	now     func() time.Time
}

type bucket struct {
	requests []time.Time
	lastSeen time.Time
}

// NewLimiter allows maxRequests per window for each key
func NewLimiter(maxRequests int, window time.Duration) *Limiter {
	l := &Limiter{
		buckets: make(map[string]*bucket),
		maxReqs: maxRequests,
		window:  window,
		cleanup: time.NewTicker(5 * time.Minute),
		done:    make(chan struct{}),
		now:     time.Now,
	}
	go l.evictIdle()
	return l
}

// Allow records a request for key and reports whether it is within the limit.
// An empty key is never limited.
func (l *Limiter) Allow(key string) bool {
	return l.Take(key).Allowed
}

// Take is Allow with the bucket state the caller can surface in headers
func (l *Limiter) Take(key string) Decision {
	if key == "" {
		return Decision{Allowed: true, Limit: l.maxReqs, Remaining: l.maxReqs}
	}
	return l.take(key, l.maxReqs, l.window)
}

// TakeStrict uses a separate bucket with its own budget, for sensitive endpoints
func (l *Limiter) TakeStrict(key string, maxReqs int, window time.Duration) Decision {
	return l.take("strict:"+key, maxReqs, window)
}

func (l *Limiter) take(key string, maxReqs int, window time.Duration) Decision {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	b, ok := l.buckets[key]
	if !ok {
		b = &bucket{}
		l.buckets[key] = b
	}
	b.lastSeen = now

	// requests are appended in time order, so expired ones form a prefix
	cutoff := now.Add(-window)
	i := 0
	for i < len(b.requests) && !b.requests[i].After(cutoff) {
		i++
	}
	b.requests = b.requests[i:]

	if len(b.requests) >= maxReqs {
		retry := time.Second
		if len(b.requests) > 0 {
			retry = b.requests[0].Add(window).Sub(now)
		}
		return Decision{Limit: maxReqs, RetryAfter: retry}
	}

	b.requests = append(b.requests, now)
	return Decision{Allowed: true, Limit: maxReqs, Remaining: maxReqs - len(b.requests)}
}

func (l *Limiter) evictIdle() {
	for {
		select {
		case <-l.done:
			return
		case <-l.cleanup.C:
			l.Evict(15 * time.Minute)
		}
	}
}

// Evict drops buckets idle for longer than idle and returns how many went
func (l *Limiter) Evict(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	threshold := l.now().Add(-idle)
	n := 0
	for key, b := range l.buckets {
		if b.lastSeen.Before(threshold) {
			delete(l.buckets, key)
			n++
		}
	}
	return n
}

// Stop ends the eviction loop. Safe to call once.
func (l *Limiter) Stop() {
	l.cleanup.Stop()
	close(l.done)
}
