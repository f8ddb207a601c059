package domain

// ResolutionSource records which path produced an Action from raw text.
type ResolutionSource string

const (
	SourceRules ResolutionSource = "rules"
	SourceModel ResolutionSource = "model"
	SourceNone  ResolutionSource = "none"
)

// CommandResult is the outcome of dispatching one line of input.
// It is transient; the history store persists its own copy.
type CommandResult struct {
	Action  Action
	Message string
	Success bool
	Source  ResolutionSource

	// Quit signals that the caller should terminate its read loop.
	// The dispatcher never exits the process itself.
	Quit bool
}
