package events

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"
)

// Envelope encodes v as a JSON object and adds a "type" member, producing
// the {type, ...fields} frame sent to live subscribers.
func Envelope(kind Event, v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", kind, err)
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("%s payload is not an object: %w", kind, err)
	}
	typ, _ := json.Marshal(string(kind))
	fields["type"] = typ
	return json.Marshal(fields)
}

// Broadcaster publishes entity snapshots to in-process subscribers (raw
// value on the entity topic) and live subscribers (frame on EventBroadcast).
// It never blocks the caller.
type Broadcaster struct {
	bus *Bus
	log *zap.Logger
}

func NewBroadcaster(bus *Bus, log *zap.Logger) *Broadcaster {
	if log == nil {
		log = zap.NewNop()
	}
	return &Broadcaster{bus: bus, log: log}
}

// Broadcast is fire-and-forget: encode failures and slow subscribers are
// logged, never returned.
func (b *Broadcaster) Broadcast(kind Event, v any) {
	b.bus.Publish(kind, v)

	frame, err := Envelope(kind, v)
	if err != nil {
		b.log.Error("broadcast encode failed", zap.String("type", string(kind)), zap.Error(err))
		return
	}
	if drops := b.bus.Publish(EventBroadcast, frame); drops > 0 {
		b.log.Warn("broadcast dropped for slow subscribers",
			zap.String("type", string(kind)),
			zap.Int("subscribers", drops))
	}
}
