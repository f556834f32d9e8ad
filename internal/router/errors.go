package router

import (
	"context"
	"errors"
)

// Routing failures. Each aborts only the message that caused it.
var (
	ErrUnsupportedMessageType = errors.New("unsupported message type")
	ErrUnknownDestination     = errors.New("unknown destination")
	ErrUnknownOriginalOrder   = errors.New("unknown original order")
	ErrUnknownOrder           = errors.New("unknown order")
	ErrMissingSenderInfo      = errors.New("missing sender info")
)

// reason labels an error for metrics.
func reason(err error) string {
	switch {
	case errors.Is(err, ErrUnsupportedMessageType):
		return "unsupported_message_type"
	case errors.Is(err, ErrUnknownDestination):
		return "unknown_destination"
	case errors.Is(err, ErrUnknownOriginalOrder):
		return "unknown_original_order"
	case errors.Is(err, ErrUnknownOrder):
		return "unknown_order"
	case errors.Is(err, ErrMissingSenderInfo):
		return "missing_sender_info"
	case errors.Is(err, context.DeadlineExceeded):
		return "store_timeout"
	default:
		return "internal"
	}
}
