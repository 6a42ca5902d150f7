package watcher

import "fmt"

// FailureKind classifies a failed Start.
type FailureKind string

const (
	// PermissionDenied: the static capability check failed; nothing was queried.
	PermissionDenied FailureKind = "PERMISSION_DENIED"
	// PermissionError: the host refused the state query itself.
	PermissionError FailureKind = "PERMISSION_ERROR"
)

// Failure is delivered to a sink when Start cannot begin producing events.
// It is terminal for that attempt only; a later Start retries from scratch.
type Failure struct {
	Kind    FailureKind
	Message string
	Details string
}

func (f *Failure) Error() string {
	if f.Details == "" {
		return fmt.Sprintf("%s: %s", f.Kind, f.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", f.Kind, f.Message, f.Details)
}
