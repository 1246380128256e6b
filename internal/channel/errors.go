package channel

import (
	"context"
	"errors"
	"fmt"
)

// FailureKind is the scheduler-facing class of a send failure.
type FailureKind int

const (
	Other FailureKind = iota
	RecipientInvalid
	ChannelUnavailable
)

func (k FailureKind) String() string {
	switch k {
	case RecipientInvalid:
		return "recipient_invalid"
	case ChannelUnavailable:
		return "channel_unavailable"
	default:
		return "other"
	}
}

var (
	ErrRecipientInvalid   = errors.New("recipient invalid")
	ErrChannelUnavailable = errors.New("channel unavailable")
)

// Gateway error codes.
const (
	CodeRecipientInvalid = "recipient_invalid"
	CodeChannelNotReady  = "channel_not_ready"
)

// SendError is returned by the gateway client for every failed call.
type SendError struct {
	Kind      FailureKind
	ChannelID int64
	Status    int // HTTP status, 0 when the request never completed
	Code      string
	Message   string
	Err       error
}

func (e *SendError) Error() string {
	msg := e.Message
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if e.Status != 0 {
		return fmt.Sprintf("channel %d: %s (status=%d code=%s): %s", e.ChannelID, e.Kind, e.Status, e.Code, msg)
	}
	return fmt.Sprintf("channel %d: %s: %s", e.ChannelID, e.Kind, msg)
}

func (e *SendError) Unwrap() error { return e.Err }

func (e *SendError) Is(target error) bool {
	switch target {
	case ErrRecipientInvalid:
		return e.Kind == RecipientInvalid
	case ErrChannelUnavailable:
		return e.Kind == ChannelUnavailable
	}
	return false
}

// Classify maps any send error onto a FailureKind. Timeouts count as the
// channel being unavailable.
func Classify(err error) FailureKind {
	var se *SendError
	switch {
	case err == nil:
		return Other
	case errors.As(err, &se):
		return se.Kind
	case errors.Is(err, ErrRecipientInvalid):
		return RecipientInvalid
	case errors.Is(err, ErrChannelUnavailable), errors.Is(err, context.DeadlineExceeded):
		return ChannelUnavailable
	default:
		return Other
	}
}
