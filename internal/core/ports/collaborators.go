package ports

import "context"

// Turn is one role-tagged entry in the context sent to the reply generator.
type Turn struct {
	Role string // "user" | "assistant" | "system"
	Text string
}

// Responder is the external generative-AI collaborator. It receives the
// persona prompt plus the conversation history in chronological order and
// returns a reply. It may be slow and may fail; callers recover with a
// fallback reply rather than surfacing the error.
type Responder interface {
	Reply(ctx context.Context, systemPrompt string, history []Turn) (string, error)
}

// Transport delivers outbound messages to the user through the messaging
// provider. Delivery failures are logged, not retried indefinitely.
type Transport interface {
	SendText(ctx context.Context, waID, text string) error
}

// EventSink receives conversation events for live observers (dashboard
// websocket clients). Publish must never block the caller.
type EventSink interface {
	Publish(event any)
}
