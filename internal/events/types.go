package events

// Event enumerates bus topics inside the router.
type Event string

const (
	// EventBroadcast carries encoded frames for live subscribers.
	EventBroadcast Event = "broadcast"

	EventOrder    Event = "order"
	EventPosition Event = "position"
	EventTrade    Event = "trade"
)
