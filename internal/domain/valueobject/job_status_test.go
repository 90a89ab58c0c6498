package valueobject

import "testing"

func TestNewJobStatus(t *testing.T) {
	for _, valid := range []string{"pending", "running", "completed", "failed", "cancelled"} {
		status, err := NewJobStatus(valid)
		if err != nil {
			t.Errorf("Expected %s to be valid, got error: %v", valid, err)
		}
		if status.String() != valid {
			t.Errorf("Expected status %s, got %s", valid, status)
		}
	}

	if _, err := NewJobStatus("unknown"); err == nil {
		t.Error("Expected error for invalid status")
	}
	if _, err := NewJobStatus(""); err == nil {
		t.Error("Expected error for empty status")
	}
}

func TestJobStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		name    string
		from    JobStatus
		to      JobStatus
		allowed bool
	}{
		{"pending to running", JobStatusPending, JobStatusRunning, true},
		{"pending to failed", JobStatusPending, JobStatusFailed, true},
		{"pending to cancelled", JobStatusPending, JobStatusCancelled, true},
		{"pending to completed skips running", JobStatusPending, JobStatusCompleted, false},
		{"running to completed", JobStatusRunning, JobStatusCompleted, true},
		{"running to failed", JobStatusRunning, JobStatusFailed, true},
		{"running to cancelled", JobStatusRunning, JobStatusCancelled, true},
		{"running back to pending", JobStatusRunning, JobStatusPending, false},
		{"completed is terminal", JobStatusCompleted, JobStatusRunning, false},
		{"completed cannot fail", JobStatusCompleted, JobStatusFailed, false},
		{"failed reopens to running for retry", JobStatusFailed, JobStatusRunning, true},
		{"failed cannot complete directly", JobStatusFailed, JobStatusCompleted, false},
		{"cancelled is terminal", JobStatusCancelled, JobStatusRunning, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.from.CanTransitionTo(tt.to); got != tt.allowed {
				t.Errorf("CanTransitionTo(%s -> %s) = %v, want %v", tt.from, tt.to, got, tt.allowed)
			}
		})
	}
}

func TestJobStatus_IsTerminal(t *testing.T) {
	terminal := map[JobStatus]bool{
		JobStatusPending:   false,
		JobStatusRunning:   false,
		JobStatusCompleted: true,
		JobStatusFailed:    true,
		JobStatusCancelled: true,
	}
	for status, want := range terminal {
		if status.IsTerminal() != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", status, status.IsTerminal(), want)
		}
	}
}
