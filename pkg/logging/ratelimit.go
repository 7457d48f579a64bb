// Package logging provides structured-logging helpers for the offload
// layer: slog setup and a token-bucket rate limiter for diagnostics that
// can fire per packet or per driver call.
package logging

import (
	"log/slog"
	"sync"

	"golang.org/x/sys/unix"
)

// RateLimiter is a token-bucket limiter for log statements. A limiter
// with rate 100 and burst 5 admits bursts of 5 records and refills at
// 100 records per minute, matching the classic vswitch rate-limit knob.
type RateLimiter struct {
	mu      sync.Mutex
	rate    float64 // tokens per second
	burst   float64
	tokens  float64
	lastSec float64
	dropped uint64
}

// NewRateLimiter creates a limiter admitting perMinute records per
// minute with the given burst.
func NewRateLimiter(perMinute, burst int) *RateLimiter {
	return &RateLimiter{
		rate:    float64(perMinute) / 60,
		burst:   float64(burst),
		tokens:  float64(burst),
		lastSec: monotonicSeconds(),
	}
}

// Allow reports whether one more record may be emitted now.
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := monotonicSeconds()
	rl.tokens += (now - rl.lastSec) * rl.rate
	if rl.tokens > rl.burst {
		rl.tokens = rl.burst
	}
	rl.lastSec = now

	if rl.tokens < 1 {
		rl.dropped++
		return false
	}
	rl.tokens--
	return true
}

// Dropped returns how many records were suppressed so far.
func (rl *RateLimiter) Dropped() uint64 {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.dropped
}

// Error logs at error level if the limiter admits the record.
func (rl *RateLimiter) Error(msg string, args ...any) {
	if rl.Allow() {
		slog.Error(msg, args...)
	}
}

// Warn logs at warn level if the limiter admits the record.
func (rl *RateLimiter) Warn(msg string, args ...any) {
	if rl.Allow() {
		slog.Warn(msg, args...)
	}
}

// monotonicSeconds returns the monotonic clock as fractional seconds, so
// the limiter is immune to wall-clock jumps.
func monotonicSeconds() float64 {
	var ts unix.Timespec
	_ = unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts)
	return float64(ts.Sec) + float64(ts.Nsec)/1e9
}
