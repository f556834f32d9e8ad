package oms

import (
	"github.com/quickfixgo/quickfix"
)

// Sender hands a fully rewritten message to the FIX transport.
type Sender interface {
	Send(m *quickfix.Message) error
}

// FIXSender resolves the session from the message header's
// BeginString/SenderCompID/TargetCompID.
type FIXSender struct{}

func (FIXSender) Send(m *quickfix.Message) error {
	return quickfix.Send(m)
}
