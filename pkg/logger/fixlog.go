package logger

import (
	"fmt"

	"github.com/quickfixgo/quickfix"
	"go.uber.org/zap"
)

// FIXLogFactory sends the FIX engine's session logs to zap. Raw message
// traffic is logged at debug, session events at info.
type FIXLogFactory struct {
	log *zap.Logger
}

var _ quickfix.LogFactory = (*FIXLogFactory)(nil)

func NewFIXLogFactory(log *zap.Logger) *FIXLogFactory {
	return &FIXLogFactory{log: log.Named("quickfix")}
}

func (f *FIXLogFactory) Create() (quickfix.Log, error) {
	return &fixLog{log: f.log}, nil
}

func (f *FIXLogFactory) CreateSessionLog(id quickfix.SessionID) (quickfix.Log, error) {
	return &fixLog{log: f.log.With(zap.String("session", id.String()))}, nil
}

type fixLog struct {
	log *zap.Logger
}

func (l *fixLog) OnIncoming(msg []byte) {
	if ce := l.log.Check(zap.DebugLevel, "fix in"); ce != nil {
		ce.Write(zap.String("msg", printable(msg)))
	}
}

func (l *fixLog) OnOutgoing(msg []byte) {
	if ce := l.log.Check(zap.DebugLevel, "fix out"); ce != nil {
		ce.Write(zap.String("msg", printable(msg)))
	}
}

func (l *fixLog) OnEvent(text string) {
	l.log.Info(text)
}

func (l *fixLog) OnEventf(format string, args ...interface{}) {
	l.log.Info(fmt.Sprintf(format, args...))
}

// printable swaps the SOH delimiter for '|'.
func printable(msg []byte) string {
	out := make([]byte, len(msg))
	for i, b := range msg {
		if b == 0x01 {
			b = '|'
		}
		out[i] = b
	}
	return string(out)
}
