package watch

// Events are how the two external triggers (the daily scheduler and the chat
// transport) reach the single worker loop. Both producers feed one consumer
// channel, so coordinator state transitions are never processed concurrently.

// EventKind discriminates inbound events.
type EventKind int

const (
	// EventCycle asks the loop to run one detect-and-report cycle.
	EventCycle EventKind = iota + 1
	// EventCommand is a chat command such as /check or /hello.
	EventCommand
	// EventCallback is a button press carrying a correlation token.
	EventCallback
)

// Event is one unit of work for the worker loop.
type Event struct {
	Kind EventKind

	// Reason tags cycle triggers for logging: "startup", "schedule", "command".
	Reason string

	// Command is the command name without the leading slash.
	Command string

	// CallbackID is the transport-level callback id, used for the
	// transport ack (distinct from the business-level response).
	CallbackID string

	// Token is the raw callback payload.
	Token string
}
