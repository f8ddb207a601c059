package domain

// ActionKind identifies one member of the closed action vocabulary.
// Free-form input resolves to exactly one kind; anything the resolver
// cannot map onto this set is unrepresentable.
type ActionKind string

const (
	ActionNoop        ActionKind = "noop"
	ActionQueryTime   ActionKind = "query_time"
	ActionQueryStatus ActionKind = "query_status"
	ActionLedOn       ActionKind = "led_on"
	ActionLedOff      ActionKind = "led_off"
	ActionLedToggle   ActionKind = "led_toggle"
	ActionBlinkStart  ActionKind = "blink_start"
	ActionBlinkStop   ActionKind = "blink_stop"
	ActionQuit        ActionKind = "quit"
)

// Action is a resolved command. Exactly one kind is active per resolved
// input; the parameter fields are meaningful only for the kinds noted.
type Action struct {
	Kind ActionKind

	// Blink parameters, set only for ActionBlinkStart.
	// DurationSeconds of zero means the blink runs until stopped.
	DurationSeconds int
	IntervalMs      int

	// Reply carries conversational text produced by the model when the
	// resolved kind is ActionNoop (the model answered without an action).
	Reply string
}

// Valid reports whether k is a member of the action vocabulary.
func (k ActionKind) Valid() bool {
	switch k {
	case ActionNoop, ActionQueryTime, ActionQueryStatus,
		ActionLedOn, ActionLedOff, ActionLedToggle,
		ActionBlinkStart, ActionBlinkStop, ActionQuit:
		return true
	}
	return false
}

// TouchesHardware reports whether applying k mutates pin state.
func (k ActionKind) TouchesHardware() bool {
	switch k {
	case ActionLedOn, ActionLedOff, ActionLedToggle, ActionBlinkStart, ActionBlinkStop:
		return true
	}
	return false
}
