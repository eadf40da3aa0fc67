package services

import "time"

// Live event types streamed to dashboard websocket clients.
const (
	EventInboundMessage  = "inbound_message"
	EventOutboundMessage = "outbound_message"
	EventConversion      = "conversion"
)

// ConversationEvent is the wire shape published to the event hub.
type ConversationEvent struct {
	Type           string    `json:"type"`
	ConversationID int64     `json:"conversation_id"`
	Sender         string    `json:"sender,omitempty"`
	Text           string    `json:"text,omitempty"`
	EventType      string    `json:"event_type,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}
