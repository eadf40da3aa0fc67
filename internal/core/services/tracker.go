package services

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"leadrelay/internal/core/domain"
	"leadrelay/internal/core/ports"
)

// Conversion event types detected by the tracker.
const (
	EventTypeMeetingRequest = "meeting_request"
	EventTypeDemoRequest    = "demo_request"
	EventTypePricingInquiry = "pricing_inquiry"
	EventTypeAuditRequest   = "audit_request"
)

// Match pairs a detected event type with the phrase that triggered it.
type Match struct {
	EventType string
	Phrase    string
}

// Tracker detects conversion signals in inbound text by case-insensitive
// substring match and appends ConversionEvent rows. Everything here is best
// effort: a tracker failure never blocks or fails the reply path.
type Tracker struct {
	conversions ports.ConversionRepository
	stats       ports.StatsRepository
	events      ports.EventSink
	keywords    map[string]string // lowercased phrase -> event type
}

// DefaultKeywords is the built-in phrase set; config may replace it.
func DefaultKeywords() map[string]string {
	return map[string]string{
		"book a meeting":     EventTypeMeetingRequest,
		"schedule a meeting": EventTypeMeetingRequest,
		"book a call":        EventTypeMeetingRequest,
		"schedule a call":    EventTypeMeetingRequest,
		"book a demo":        EventTypeDemoRequest,
		"see a demo":         EventTypeDemoRequest,
		"live demo":          EventTypeDemoRequest,
		"pricing":            EventTypePricingInquiry,
		"how much":           EventTypePricingInquiry,
		"free audit":         EventTypeAuditRequest,
	}
}

// NewTracker creates a tracker over the given phrase set. Phrases are
// matched case-insensitively; keys are stored lowercased.
func NewTracker(conversions ports.ConversionRepository, stats ports.StatsRepository, events ports.EventSink, keywords map[string]string) *Tracker {
	normalized := make(map[string]string, len(keywords))
	for phrase, eventType := range keywords {
		normalized[strings.ToLower(phrase)] = eventType
	}
	return &Tracker{
		conversions: conversions,
		stats:       stats,
		events:      events,
		keywords:    normalized,
	}
}

// Scan returns the matches found in text, one per event type. Pure; no side
// effects.
func (t *Tracker) Scan(text string) []Match {
	lowered := strings.ToLower(text)
	seen := make(map[string]bool)
	var matches []Match
	for phrase, eventType := range t.keywords {
		if seen[eventType] {
			continue
		}
		if strings.Contains(lowered, phrase) {
			seen[eventType] = true
			matches = append(matches, Match{EventType: eventType, Phrase: phrase})
		}
	}
	return matches
}

// ScanAndRecord runs Scan and persists the results in one call.
func (t *Tracker) ScanAndRecord(ctx context.Context, conv *domain.Conversation, inboundText, outboundText string) []domain.ConversionEvent {
	return t.Record(ctx, conv, t.Scan(inboundText), inboundText, outboundText)
}

// Record persists previously scanned matches as conversion events, bumps the
// company conversion counter, and notifies live observers. Failures are
// logged and swallowed.
func (t *Tracker) Record(ctx context.Context, conv *domain.Conversation, matches []Match, inboundText, outboundText string) []domain.ConversionEvent {
	var recorded []domain.ConversionEvent
	for _, m := range matches {
		details, err := json.Marshal(map[string]string{
			"matched_phrase": m.Phrase,
			"inbound_text":   inboundText,
			"outbound_text":  outboundText,
		})
		if err != nil {
			slog.Warn("failed to marshal conversion details", "error", err)
			details = nil
		}

		event := domain.ConversionEvent{
			ConversationID: conv.ID,
			EventType:      m.EventType,
			Details:        details,
			Timestamp:      time.Now().UTC(),
		}
		if err := t.conversions.Record(ctx, &event); err != nil {
			slog.Error("failed to record conversion event",
				"error", err,
				"event_type", m.EventType,
				"conversation_id", conv.ID,
			)
			continue
		}
		if err := t.stats.IncrConversions(ctx, conv.CompanyID); err != nil {
			slog.Warn("failed to increment conversion counter", "error", err, "company_id", conv.CompanyID)
		}

		t.events.Publish(ConversationEvent{
			Type:           EventConversion,
			ConversationID: conv.ID,
			EventType:      m.EventType,
			Timestamp:      event.Timestamp,
		})

		slog.Info("conversion event recorded",
			"event_type", m.EventType,
			"conversation_id", conv.ID,
			"phrase", m.Phrase,
		)
		recorded = append(recorded, event)
	}
	return recorded
}
