// Package services contains core business logic.
// Services orchestrate domain logic through ports; adapters stay at the edge.
package services

import (
	"encoding/json"
	"strconv"
	"time"

	"leadrelay/internal/adapters/dto"
	"leadrelay/internal/core/domain"
)

// Event classes produced by Classify.
const (
	ClassMessage     = "message"
	ClassStatus      = "status"
	ClassUnsupported = "unsupported"
)

// InboundEvent is the normalized envelope extracted from one provider
// message: who sent it, its dedup key, when, and the kind-specific payload.
type InboundEvent struct {
	WaID          string
	ProfileName   string
	ProviderMsgID string
	Timestamp     time.Time
	Kind          string
	Text          string // text body, media caption, or interactive reply title
	MediaID       string
	MediaMime     string
}

// Classified is the result of inspecting a raw webhook payload.
type Classified struct {
	Class    string
	Inbound  []InboundEvent
	Statuses int
}

// Classify inspects a raw webhook body and sorts it into message, status, or
// unsupported. It is pure and never fails hard: malformed JSON and missing
// required paths (entry/changes/value/messages) all classify as unsupported.
func Classify(payload []byte) Classified {
	var req dto.WhatsAppWebhookRequest
	if err := json.Unmarshal(payload, &req); err != nil {
		return Classified{Class: ClassUnsupported}
	}
	if req.Object == "" || len(req.Entry) == 0 {
		return Classified{Class: ClassUnsupported}
	}

	var out Classified
	for _, entry := range req.Entry {
		for _, change := range entry.Changes {
			out.Statuses += len(change.Value.Statuses)
			for _, msg := range change.Value.Messages {
				out.Inbound = append(out.Inbound, normalize(msg, change.Value.Contacts))
			}
		}
	}

	switch {
	case len(out.Inbound) > 0:
		out.Class = ClassMessage
	case out.Statuses > 0:
		out.Class = ClassStatus
	default:
		out.Class = ClassUnsupported
	}
	return out
}

// normalize maps one provider message to the internal envelope. Sender name
// is best effort: the contacts block may be absent, in which case a
// placeholder is used.
func normalize(msg dto.WhatsAppMessage, contacts []dto.WhatsAppContact) InboundEvent {
	ev := InboundEvent{
		WaID:          msg.From,
		ProfileName:   "Unknown",
		ProviderMsgID: msg.ID,
		Timestamp:     parseProviderTimestamp(msg.Timestamp),
	}
	for _, c := range contacts {
		if c.WaID == msg.From && c.Profile.Name != "" {
			ev.ProfileName = c.Profile.Name
			break
		}
	}

	switch msg.Type {
	case "text":
		ev.Kind = domain.MessageKindText
		if msg.Text != nil {
			ev.Text = msg.Text.Body
		}
	case "image":
		ev.Kind = domain.MessageKindImage
		ev.applyMedia(msg.Image)
	case "audio":
		ev.Kind = domain.MessageKindAudio
		ev.applyMedia(msg.Audio)
	case "video":
		ev.Kind = domain.MessageKindVideo
		ev.applyMedia(msg.Video)
	case "document":
		ev.Kind = domain.MessageKindDocument
		ev.applyMedia(msg.Document)
	case "sticker":
		ev.Kind = domain.MessageKindSticker
		ev.applyMedia(msg.Sticker)
	case "interactive":
		ev.Kind = domain.MessageKindInteractive
		ev.Text = msg.Interactive.ReplyText()
	default:
		ev.Kind = domain.MessageKindUnknown
	}
	return ev
}

func (ev *InboundEvent) applyMedia(m *dto.WhatsAppMedia) {
	if m == nil {
		return
	}
	ev.MediaID = m.ID
	ev.MediaMime = m.MimeType
	ev.Text = m.Caption
}

// ContentText returns the text to store in the ledger and feed to the
// responder. Media without a caption is represented by a bracketed
// placeholder so history stays readable.
func (ev *InboundEvent) ContentText() string {
	if ev.Text != "" {
		return ev.Text
	}
	if ev.MediaID != "" {
		return "[" + ev.Kind + " " + ev.MediaID + "]"
	}
	return "[" + ev.Kind + "]"
}

// parseProviderTimestamp converts the provider's Unix-seconds string. An
// unparseable value falls back to the arrival time; history ordering sorts
// by timestamp, so a coarse fallback beats dropping the message.
func parseProviderTimestamp(s string) time.Time {
	sec, err := strconv.ParseInt(s, 10, 64)
	if err != nil || sec <= 0 {
		return time.Now().UTC()
	}
	return time.Unix(sec, 0).UTC()
}
