package logging

import "testing"

func TestRateLimiterBurst(t *testing.T) {
	rl := NewRateLimiter(60, 3)

	admitted := 0
	for i := 0; i < 10; i++ {
		if rl.Allow() {
			admitted++
		}
	}
	if admitted != 3 {
		t.Errorf("admitted %d records, want burst of 3", admitted)
	}
	if rl.Dropped() != 7 {
		t.Errorf("dropped = %d, want 7", rl.Dropped())
	}
}

func TestRateLimiterRefill(t *testing.T) {
	rl := NewRateLimiter(6000, 1)
	if !rl.Allow() {
		t.Fatal("first record should pass")
	}

	// Refill at 100/s; simulate a clock advance instead of sleeping.
	rl.mu.Lock()
	rl.lastSec -= 1
	rl.mu.Unlock()

	if !rl.Allow() {
		t.Error("record after refill window should pass")
	}
}
