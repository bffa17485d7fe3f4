package transaction

import "testing"

func TestStatusTerminality(t *testing.T) {
	tests := []struct {
		status          Status
		terminal        bool
		terminalSuccess bool
	}{
		{StatusPending, false, false},
		{StatusSuccessful, true, true},
		{StatusCompleted, true, true},
		{StatusFailed, true, false},
		{StatusRefunded, true, false},
		{StatusCancelled, true, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			if got := tt.status.IsTerminal(); got != tt.terminal {
				t.Fatalf("IsTerminal() = %v, want %v", got, tt.terminal)
			}
			if got := tt.status.IsTerminalSuccess(); got != tt.terminalSuccess {
				t.Fatalf("IsTerminalSuccess() = %v, want %v", got, tt.terminalSuccess)
			}
		})
	}
}
