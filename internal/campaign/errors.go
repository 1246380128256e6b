package campaign

import "errors"

var (
	ErrNoSettings          = errors.New("campaign settings not configured")
	ErrNoConnectedChannels = errors.New("no connected channels")
	ErrNoPendingContacts   = errors.New("no pending contacts")
	ErrNoEnabledVariants   = errors.New("no enabled message variants")

	ErrAlreadyRunning = errors.New("campaign already running")
)

// PreconditionError is returned by Start when the campaign cannot begin.
// Nothing is mutated when it is returned.
type PreconditionError struct {
	Reason error
}

func (e *PreconditionError) Error() string { return "cannot start campaign: " + e.Reason.Error() }

func (e *PreconditionError) Unwrap() error { return e.Reason }

func precondition(reason error) error { return &PreconditionError{Reason: reason} }
