package types

import "testing"

func TestDirection(t *testing.T) {
	tests := []struct {
		d    Direction
		want string
	}{
		{DirRead, "read"},
		{DirWrite, "write"},
		{Direction(99), "direction(99)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.d.String(); got != tt.want {
				t.Errorf("Direction(%d).String() = %q, want %q", tt.d, got, tt.want)
			}
		})
	}
}

func TestNegotiationState(t *testing.T) {
	tests := []struct {
		s        NegotiationState
		want     string
		terminal bool
	}{
		{NegotiationInit, "INIT", false},
		{NegotiationNegotiating, "NEGOTIATING", false},
		{NegotiationNegotiated, "NEGOTIATED", true},
		{NegotiationFailed, "FAILED", true},
		{NegotiationState(7), "negotiation(7)", false},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("NegotiationState(%d).String() = %q, want %q", tt.s, got, tt.want)
			}
			if got := tt.s.IsTerminal(); got != tt.terminal {
				t.Errorf("NegotiationState(%d).IsTerminal() = %v, want %v", tt.s, got, tt.terminal)
			}
		})
	}
}

func TestShutdownState(t *testing.T) {
	tests := []struct {
		s    ShutdownState
		want string
	}{
		{ShutdownNotStarted, "not-started"},
		{ShutdownReading, "shutting-down-read"},
		{ShutdownWriting, "shutting-down-write"},
		{ShutdownComplete, "complete"},
		{ShutdownState(9), "shutdown(9)"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.s.String(); got != tt.want {
				t.Errorf("ShutdownState(%d).String() = %q, want %q", tt.s, got, tt.want)
			}
		})
	}
}

func TestTLSRoleAndTaskStatus(t *testing.T) {
	if RoleClient.String() != "client" || RoleServer.String() != "server" {
		t.Errorf("TLSRole strings = %q/%q", RoleClient, RoleServer)
	}
	if TaskRunReady.String() != "run-ready" || TaskCanceled.String() != "canceled" {
		t.Errorf("TaskStatus strings = %q/%q", TaskRunReady, TaskCanceled)
	}
}
