// Package ratelimit throttles per-agent LLM dispatch, per spec.md §3's
// Agent.rate_limit field (requests per window). Built on
// golang.org/x/time/rate rather than a hand-rolled token bucket.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config configures one rate limit.
type Config struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	BurstSize         int     `yaml:"burst_size"`
	Enabled           bool    `yaml:"enabled"`
}

// DefaultConfig returns a permissive default.
func DefaultConfig() Config {
	return Config{RequestsPerSecond: 10.0, BurstSize: 20, Enabled: true}
}

// FromRequestsPerWindow converts an Agent.rate_limit declaration
// (N requests per window) into a Config, matching rate.Limit's
// events-per-second unit.
func FromRequestsPerWindow(requests int, window time.Duration) Config {
	if requests <= 0 || window <= 0 {
		return Config{Enabled: false}
	}
	return Config{
		RequestsPerSecond: float64(requests) / window.Seconds(),
		BurstSize:         requests,
		Enabled:           true,
	}
}

// Bucket wraps a single golang.org/x/time/rate.Limiter.
type Bucket struct {
	limiter *rate.Limiter
	enabled bool
}

// NewBucket creates a new token bucket from config.
func NewBucket(config Config) *Bucket {
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = 10.0
	}
	if config.BurstSize <= 0 {
		config.BurstSize = int(config.RequestsPerSecond * 2)
	}
	return &Bucket{
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.BurstSize),
		enabled: config.Enabled,
	}
}

// Allow reports whether a request may proceed now, consuming a token if so.
func (b *Bucket) Allow() bool {
	if !b.enabled {
		return true
	}
	return b.limiter.Allow()
}

// AllowN reports whether n requests may proceed now.
func (b *Bucket) AllowN(n int) bool {
	if !b.enabled || n <= 0 {
		return true
	}
	return b.limiter.AllowN(time.Now(), n)
}

// WaitTime returns how long until the next request would be allowed,
// without consuming a token.
func (b *Bucket) WaitTime() time.Duration {
	if !b.enabled {
		return 0
	}
	reservation := b.limiter.Reserve()
	delay := reservation.Delay()
	reservation.Cancel()
	return delay
}

// available reports whether a request would be allowed right now,
// without consuming a token.
func (b *Bucket) available() bool {
	if !b.enabled {
		return true
	}
	return b.WaitTime() == 0
}

// Limiter manages one Bucket per key (agent id, user id, channel, ...).
type Limiter struct {
	mu      sync.RWMutex
	buckets map[string]*Bucket
	config  Config
	maxKeys int
}

// NewLimiter creates a new rate limiter using config for any key not
// given its own Config via NewLimiterFor.
func NewLimiter(config Config) *Limiter {
	return &Limiter{buckets: make(map[string]*Bucket), config: config, maxKeys: 10000}
}

// Allow checks if a request for the given key should be allowed.
func (l *Limiter) Allow(key string) bool {
	if !l.config.Enabled {
		return true
	}
	return l.getBucket(key).Allow()
}

// AllowN checks if n requests for the given key should be allowed.
func (l *Limiter) AllowN(key string, n int) bool {
	if !l.config.Enabled {
		return true
	}
	return l.getBucket(key).AllowN(n)
}

// AllowWithConfig checks a key against its own Config, creating its
// bucket on first use — for per-agent limits where each agent's
// rate_limit declaration differs from every other agent's.
func (l *Limiter) AllowWithConfig(key string, cfg Config) bool {
	if !cfg.Enabled {
		return true
	}
	return l.getBucketWithConfig(key, cfg).Allow()
}

func (l *Limiter) getBucket(key string) *Bucket {
	return l.getBucketWithConfig(key, l.config)
}

func (l *Limiter) getBucketWithConfig(key string, cfg Config) *Bucket {
	l.mu.RLock()
	bucket, exists := l.buckets[key]
	l.mu.RUnlock()
	if exists {
		return bucket
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if bucket, exists = l.buckets[key]; exists {
		return bucket
	}
	if len(l.buckets) >= l.maxKeys {
		l.prune()
	}
	bucket = NewBucket(cfg)
	l.buckets[key] = bucket
	return bucket
}

// prune removes buckets that are currently available (likely inactive) to
// bound memory when keys are unbounded (e.g. per-session ids).
func (l *Limiter) prune() {
	for key, bucket := range l.buckets {
		if bucket.available() {
			delete(l.buckets, key)
		}
	}
}

// WaitTime returns how long to wait before a request for key would be allowed.
func (l *Limiter) WaitTime(key string) time.Duration {
	if !l.config.Enabled {
		return 0
	}
	return l.getBucket(key).WaitTime()
}

// Reset clears the bucket for a key, restoring it to a fresh limiter on
// next use.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, key)
}

// Status reports a key's current rate limit state.
type Status struct {
	Key        string        `json:"key"`
	AllowedNow bool          `json:"allowed_now"`
	WaitTime   time.Duration `json:"wait_time"`
}

// GetStatus returns the rate limit status for a key, without consuming
// a token.
func (l *Limiter) GetStatus(key string) Status {
	if !l.config.Enabled {
		return Status{Key: key, AllowedNow: true, WaitTime: 0}
	}
	bucket := l.getBucket(key)
	wait := bucket.WaitTime()
	return Status{Key: key, AllowedNow: wait == 0, WaitTime: wait}
}

// CompositeKey joins parts into one rate limit key.
func CompositeKey(parts ...string) string {
	key := ""
	for i, part := range parts {
		if i > 0 {
			key += ":"
		}
		key += part
	}
	return key
}

// MultiLimiter applies several limiters, all of which must allow a
// request for it to pass.
type MultiLimiter struct {
	limiters []*Limiter
}

// NewMultiLimiter creates a limiter that checks multiple limits.
func NewMultiLimiter(limiters ...*Limiter) *MultiLimiter {
	return &MultiLimiter{limiters: limiters}
}

// Allow checks if all limiters allow the request.
func (m *MultiLimiter) Allow(key string) bool {
	for _, l := range m.limiters {
		if !l.Allow(key) {
			return false
		}
	}
	return true
}

// WaitTime returns the maximum wait time across all limiters.
func (m *MultiLimiter) WaitTime(key string) time.Duration {
	var maxWait time.Duration
	for _, l := range m.limiters {
		if wait := l.WaitTime(key); wait > maxWait {
			maxWait = wait
		}
	}
	return maxWait
}
