package security

import (
	"errors"
	"sync"
	"time"
)

// ErrRateLimited is returned when a request exceeds the rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimiterServiceName is the AppContext service holding the *RateLimiter.
const RateLimiterServiceName = "security.ratelimiter"

// Rate limit buckets.
const (
	BucketAuth      = "auth"
	BucketJobCreate = "job_create"
	BucketDownload  = "download"
)

// RateLimitConfig holds per-minute limits for the gateway buckets.
// Zero selects the default; a negative value disables the bucket.
type RateLimitConfig struct {
	AuthPerMin       int `yaml:"auth_per_min"`
	JobCreatesPerMin int `yaml:"job_creates_per_min"`
	DownloadsPerMin  int `yaml:"downloads_per_min"`
}

func rateLimitConfigDefaults() RateLimitConfig {
	return RateLimitConfig{
		AuthPerMin:       120,
		JobCreatesPerMin: 10,
		DownloadsPerMin:  30,
	}
}

// RateLimiter implements sliding window rate limiting. Each bucket keeps
// the timestamps of recent events within its window.
type RateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	now     func() time.Time
}

type bucket struct {
	window time.Duration
	limit  int
	events []time.Time
}

// NewRateLimiter creates a rate limiter with the given config.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	defaults := rateLimitConfigDefaults()
	rl := &RateLimiter{
		now:     time.Now,
		buckets: make(map[string]*bucket, 3),
	}
	rl.addBucket(BucketAuth, cfg.AuthPerMin, defaults.AuthPerMin)
	rl.addBucket(BucketJobCreate, cfg.JobCreatesPerMin, defaults.JobCreatesPerMin)
	rl.addBucket(BucketDownload, cfg.DownloadsPerMin, defaults.DownloadsPerMin)
	return rl
}

func (rl *RateLimiter) addBucket(name string, limit, def int) {
	switch {
	case limit < 0:
		return
	case limit == 0:
		limit = def
	}
	rl.buckets[name] = &bucket{window: time.Minute, limit: limit}
}

// Reconfigure replaces the limits. Events already recorded in buckets
// that stay enabled keep counting against the new limit.
func (rl *RateLimiter) Reconfigure(cfg RateLimitConfig) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	old := rl.buckets
	rl.buckets = make(map[string]*bucket, len(old))
	defaults := rateLimitConfigDefaults()
	rl.addBucket(BucketAuth, cfg.AuthPerMin, defaults.AuthPerMin)
	rl.addBucket(BucketJobCreate, cfg.JobCreatesPerMin, defaults.JobCreatesPerMin)
	rl.addBucket(BucketDownload, cfg.DownloadsPerMin, defaults.DownloadsPerMin)
	for name, b := range rl.buckets {
		if prev, ok := old[name]; ok {
			b.events = prev.events
		}
	}
}

// Allow records one event in bucket kind. It returns ErrRateLimited when
// the bucket is full. Unknown or disabled buckets always allow.
func (rl *RateLimiter) Allow(kind string) error {
	if rl == nil {
		return nil
	}
	rl.mu.Lock()
	defer rl.mu.Unlock()

	b, ok := rl.buckets[kind]
	if !ok {
		return nil
	}

	now := rl.now()
	b.evict(now)
	if len(b.events) >= b.limit {
		return ErrRateLimited
	}
	b.events = append(b.events, now)
	return nil
}

// Limit returns the configured limit for kind, or 0 when the bucket is
// disabled.
func (rl *RateLimiter) Limit(kind string) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	if b, ok := rl.buckets[kind]; ok {
		return b.limit
	}
	return 0
}

// evict drops events outside the sliding window. Events are chronological.
func (b *bucket) evict(now time.Time) {
	cutoff := now.Add(-b.window)
	i := 0
	for i < len(b.events) && b.events[i].Before(cutoff) {
		i++
	}
	if i > 0 {
		b.events = b.events[i:]
	}
}
