package ratelimit

import (
	"context"
	"math"
	"sync"
	"time"
)

type bucket struct {
	tokens     float64
	capacity   float64
	refillRate float64 // tokens per second
	last       time.Time
}

// refill adds tokens earned since last and returns the wait until one token is available.
func (b *bucket) refill(now time.Time) time.Duration {
	if elapsed := now.Sub(b.last).Seconds(); elapsed > 0 {
		b.tokens = math.Min(b.capacity, b.tokens+elapsed*b.refillRate)
		b.last = now
	}
	if b.tokens >= 1 {
		return 0
	}
	if b.refillRate <= 0 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration((1 - b.tokens) / b.refillRate * float64(time.Second))
}

// Limiter is a set of token buckets keyed by caller-chosen names, e.g. one per upstream API.
type Limiter struct {
	mu    sync.Mutex
	m     map[string]*bucket
	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New() *Limiter {
	return &Limiter{
		m:     make(map[string]*bucket),
		now:   time.Now,
		sleep: sleepCtx,
	}
}

func (l *Limiter) bucket(key string, capacity, refillPerSec float64, now time.Time) *bucket {
	b, ok := l.m[key]
	if !ok {
		b = &bucket{tokens: capacity, capacity: capacity, refillRate: refillPerSec, last: now}
		l.m[key] = b
	}
	return b
}

// Allow consumes one token for key if one is available.
func (l *Limiter) Allow(key string, capacity, refillPerSec float64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	b := l.bucket(key, capacity, refillPerSec, now)
	if b.refill(now) > 0 {
		return false
	}
	b.tokens--
	return true
}

// Wait blocks until a token for key is available or ctx is done.
func (l *Limiter) Wait(ctx context.Context, key string, capacity, refillPerSec float64) error {
	for {
		l.mu.Lock()
		now := l.now()
		b := l.bucket(key, capacity, refillPerSec, now)
		wait := b.refill(now)
		if wait == 0 {
			b.tokens--
			l.mu.Unlock()
			return nil
		}
		l.mu.Unlock()

		if err := l.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
