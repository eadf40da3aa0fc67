package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"leadrelay/internal/core/domain"
	"leadrelay/internal/core/ports"
)

// Persona carries the externally supplied priming for the reply generator.
type Persona struct {
	SystemPrompt  string
	BookingLink   string
	FallbackReply string
}

// historyLimit bounds the context window sent to the responder.
const historyLimit = 50

// Orchestrator builds the AI context for an accepted inbound message,
// obtains a reply, records it, and relays it to the user. It runs after the
// inbound message is durable, so every failure here degrades to a fallback
// or a logged loss instead of an HTTP error.
type Orchestrator struct {
	ledger    ports.MessageLedger
	responder ports.Responder
	transport ports.Transport
	stats     ports.StatsRepository
	tracker   *Tracker
	events    ports.EventSink
	persona   Persona
}

var _ ReplyOrchestrator = (*Orchestrator)(nil)

// NewOrchestrator creates the reply orchestrator.
func NewOrchestrator(
	ledger ports.MessageLedger,
	responder ports.Responder,
	transport ports.Transport,
	stats ports.StatsRepository,
	tracker *Tracker,
	events ports.EventSink,
	persona Persona,
) *Orchestrator {
	if persona.FallbackReply == "" {
		persona.FallbackReply = "I'm sorry, I couldn't generate a response at this moment. Please try again."
	}
	return &Orchestrator{
		ledger:    ledger,
		responder: responder,
		transport: transport,
		stats:     stats,
		tracker:   tracker,
		events:    events,
		persona:   persona,
	}
}

// Respond generates and delivers the reply to one inbound message. The
// record-then-relay order guarantees the reply is durably logged even when
// delivery to the user fails afterwards.
func (o *Orchestrator) Respond(ctx context.Context, conv *domain.Conversation, user *domain.User, inbound *domain.Message) error {
	history := o.loadHistory(ctx, conv.ID, inbound)

	reply, err := o.responder.Reply(ctx, o.persona.SystemPrompt, history)
	if err != nil || strings.TrimSpace(reply) == "" {
		if err != nil {
			slog.Error("responder failed, using fallback reply",
				"error", err,
				"conversation_id", conv.ID,
			)
		}
		reply = o.persona.FallbackReply
	}
	reply = NormalizeReply(reply)

	matches := o.tracker.Scan(inbound.Content)
	if containsEvent(matches, EventTypeMeetingRequest) && o.persona.BookingLink != "" &&
		!strings.Contains(reply, o.persona.BookingLink) {
		reply = reply + "\n\n👉 " + o.persona.BookingLink
	}

	outbound := &domain.Message{
		ConversationID: conv.ID,
		SenderType:     domain.SenderTypeBot,
		Kind:           domain.MessageKindText,
		Content:        reply,
		Timestamp:      time.Now().UTC(),
		ResponseToID:   &inbound.ID,
	}
	stored, err := o.ledger.RecordOutbound(ctx, outbound)
	if err != nil {
		// Relaying an unrecorded reply would break the ledger's pairing
		// invariant, so the reply is dropped instead.
		return fmt.Errorf("record outbound message: %w", err)
	}
	if err := o.stats.IncrMessages(ctx, conv.CompanyID, 1); err != nil {
		slog.Warn("failed to increment message counter", "error", err, "company_id", conv.CompanyID)
	}

	if err := o.transport.SendText(ctx, user.WaID, reply); err != nil {
		slog.Error("failed to deliver reply",
			"error", err,
			"conversation_id", conv.ID,
			"message_id", stored.ID,
		)
	}

	o.events.Publish(ConversationEvent{
		Type:           EventOutboundMessage,
		ConversationID: conv.ID,
		Sender:         domain.SenderTypeBot,
		Text:           reply,
		Timestamp:      stored.Timestamp,
	})

	// Conversion scanning is best effort and must never fail the reply path.
	o.tracker.Record(ctx, conv, matches, inbound.Content, reply)

	slog.Info("reply delivered",
		"conversation_id", conv.ID,
		"message_id", stored.ID,
		"response_to", inbound.ID,
	)
	return nil
}

// loadHistory returns the conversation context as role-tagged turns in
// chronological order. On storage failure it degrades to just the current
// message; the inbound is already durable, so a thin context beats no reply.
func (o *Orchestrator) loadHistory(ctx context.Context, conversationID int64, inbound *domain.Message) []ports.Turn {
	msgs, err := o.ledger.History(ctx, conversationID, historyLimit)
	if err != nil {
		slog.Warn("failed to load conversation history",
			"error", err,
			"conversation_id", conversationID,
		)
		return []ports.Turn{{Role: "user", Text: inbound.Content}}
	}

	turns := make([]ports.Turn, 0, len(msgs)+1)
	sawInbound := false
	for _, m := range msgs {
		role := "user"
		if m.SenderType == domain.SenderTypeBot {
			role = "assistant"
		}
		turns = append(turns, ports.Turn{Role: role, Text: m.Content})
		if m.ID == inbound.ID {
			sawInbound = true
		}
	}
	// A racing read may miss the just-committed inbound row.
	if !sawInbound {
		turns = append(turns, ports.Turn{Role: "user", Text: inbound.Content})
	}
	return turns
}

func containsEvent(matches []Match, eventType string) bool {
	for _, m := range matches {
		if m.EventType == eventType {
			return true
		}
	}
	return false
}
