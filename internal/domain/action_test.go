package domain

import "testing"

func TestActionKindValid(t *testing.T) {
	valid := []ActionKind{
		ActionNoop, ActionQueryTime, ActionQueryStatus,
		ActionLedOn, ActionLedOff, ActionLedToggle,
		ActionBlinkStart, ActionBlinkStop, ActionQuit,
	}
	for _, k := range valid {
		if !k.Valid() {
			t.Errorf("Valid(%q) = false, want true", k)
		}
	}

	invalid := []ActionKind{"", "led", "blink", "print_time", "LED_ON"}
	for _, k := range invalid {
		if k.Valid() {
			t.Errorf("Valid(%q) = true, want false", k)
		}
	}
}

func TestActionKindTouchesHardware(t *testing.T) {
	tests := []struct {
		kind ActionKind
		want bool
	}{
		{ActionLedOn, true},
		{ActionLedOff, true},
		{ActionLedToggle, true},
		{ActionBlinkStart, true},
		{ActionBlinkStop, true},
		{ActionNoop, false},
		{ActionQueryTime, false},
		{ActionQueryStatus, false},
		{ActionQuit, false},
	}
	for _, tt := range tests {
		if got := tt.kind.TouchesHardware(); got != tt.want {
			t.Errorf("TouchesHardware(%q) = %v, want %v", tt.kind, got, tt.want)
		}
	}
}

func TestLevelString(t *testing.T) {
	if High.String() != "high" {
		t.Errorf("High.String() = %q, want %q", High.String(), "high")
	}
	if Low.String() != "low" {
		t.Errorf("Low.String() = %q, want %q", Low.String(), "low")
	}
}
