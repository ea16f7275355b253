package lifecycle

import "testing"

// TestShuttingDownFlag verifies the flag round-trips and resets.
func TestShuttingDownFlag(t *testing.T) {
	defer SetShuttingDown(false)

	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true at start, want false")
	}
	SetShuttingDown(true)
	if !IsShuttingDown() {
		t.Error("IsShuttingDown() = false after set, want true")
	}
	SetShuttingDown(false)
	if IsShuttingDown() {
		t.Error("IsShuttingDown() = true after clear, want false")
	}
}
