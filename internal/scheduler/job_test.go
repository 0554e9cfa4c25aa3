package scheduler

import "testing"

func TestClassify(t *testing.T) {
	tests := []struct {
		state string
		want  Class
	}{
		{"success", ClassSucceeded},
		{"Success", ClassSucceeded},
		{"SUCCESS", ClassSucceeded},
		{"Complete", ClassSucceeded},
		{"completed ", ClassSucceeded},
		{" COMPLETED ", ClassSucceeded},
		{"failure", ClassFailed},
		{"FAILED", ClassFailed},
		{"error", ClassFailed},
		{"running", ClassTransient},
		{"queued", ClassTransient},
		{"paused", ClassTransient},
		{"cutover_deferred", ClassTransient}, // unknown vocabulary stays transient
		{"", ClassTransient},
	}
	for _, tc := range tests {
		t.Run(tc.state, func(t *testing.T) {
			if got := Classify(tc.state); got != tc.want {
				t.Errorf("Classify(%q) = %v, want %v", tc.state, got, tc.want)
			}
		})
	}
}

func TestStateTerminal(t *testing.T) {
	terminal := []State{StateSucceeded, StateFailed, StateTimedOut}
	for _, s := range terminal {
		if !s.Terminal() {
			t.Errorf("%s.Terminal() = false, want true", s)
		}
	}
	for _, s := range []State{StateDispatched, StatePolling} {
		if s.Terminal() {
			t.Errorf("%s.Terminal() = true, want false", s)
		}
	}
}
