// Package domain contains core business entities.
// These models are infrastructure-agnostic; adapters map them to storage
// and wire formats.
package domain

import (
	"encoding/json"
	"time"
)

// Company is the tenant that owns users, conversations and statistics.
// A single default company is created on first contact when none exists.
type Company struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// User is a messaging-provider contact, keyed by the provider identifier
// (WhatsApp wa_id). Display name follows last-write-wins on later contacts.
type User struct {
	ID         int64     `json:"id" db:"id"`
	WaID       string    `json:"wa_id" db:"wa_id"`
	Name       string    `json:"name" db:"name"`
	CompanyID  int64     `json:"company_id" db:"company_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
	LastSeenAt time.Time `json:"last_seen_at" db:"last_seen_at"`
}

// Conversation is the thread between one user and one company. At most one
// conversation per (user, company) pair is active at a time; a conversation
// stays active until explicitly closed.
type Conversation struct {
	ID        int64      `json:"id" db:"id"`
	UserID    int64      `json:"user_id" db:"user_id"`
	CompanyID int64      `json:"company_id" db:"company_id"`
	Status    string     `json:"status" db:"status"`
	StartedAt time.Time  `json:"started_at" db:"started_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
}

// ConversationStatus constants
const (
	ConversationStatusActive = "active"
	ConversationStatusClosed = "closed"
)

// Message is one entry in a conversation's ledger. ProviderMsgID is present
// only for inbound user messages and is the dedup key: the storage layer
// enforces its global uniqueness. ResponseToID links a bot reply to the user
// message it answers.
type Message struct {
	ID             int64     `json:"id" db:"id"`
	ConversationID int64     `json:"conversation_id" db:"conversation_id"`
	SenderType     string    `json:"sender_type" db:"sender_type"`
	Kind           string    `json:"kind" db:"kind"`
	Content        string    `json:"content" db:"content"`
	Timestamp      time.Time `json:"timestamp" db:"timestamp"`
	ResponseToID   *int64    `json:"response_to_message_id,omitempty" db:"response_to_message_id"`
	ProviderMsgID  *string   `json:"provider_msg_id,omitempty" db:"provider_msg_id"`
}

// SenderType constants
const (
	SenderTypeUser = "user"
	SenderTypeBot  = "bot"
)

// MessageKind is the closed set of inbound payload shapes the classifier
// produces. Unrecognized provider types map to MessageKindUnknown rather
// than failing classification.
const (
	MessageKindText        = "text"
	MessageKindImage       = "image"
	MessageKindAudio       = "audio"
	MessageKindVideo       = "video"
	MessageKindDocument    = "document"
	MessageKindSticker     = "sticker"
	MessageKindInteractive = "interactive"
	MessageKindUnknown     = "unknown"
)

// ConversionEvent is an append-only business signal extracted from
// conversation content (e.g. a meeting request). Never mutated or deleted.
type ConversionEvent struct {
	ID             int64           `json:"id" db:"id"`
	ConversationID int64           `json:"conversation_id" db:"conversation_id"`
	EventType      string          `json:"event_type" db:"event_type"`
	Details        json.RawMessage `json:"details,omitempty" db:"details"`
	Timestamp      time.Time       `json:"timestamp" db:"timestamp"`
}

// CompanyStats holds per-company running counters. These are denormalized
// views updated by single atomic increments; they can be rebuilt from the
// messages and conversion_events tables if corrupted.
type CompanyStats struct {
	CompanyID             int64   `json:"company_id" db:"company_id"`
	TotalMessages         int64   `json:"total_messages" db:"total_messages"`
	NumRecipients         int64   `json:"num_recipients" db:"num_recipients"`
	Conversions           int64   `json:"conversions" db:"conversions"`
	TotalUserResponseTime float64 `json:"total_user_response_time" db:"total_user_response_time"`
	UserResponseCount     int64   `json:"user_response_count" db:"user_response_count"`
}

// AverageUserResponseTime returns the mean seconds a user takes to answer a
// bot message, or 0 when nothing has been measured.
func (s *CompanyStats) AverageUserResponseTime() float64 {
	if s.UserResponseCount > 0 {
		return s.TotalUserResponseTime / float64(s.UserResponseCount)
	}
	return 0
}

// WebhookLog is the audit trail for raw inbound webhook deliveries.
type WebhookLog struct {
	ID          int64           `json:"id" db:"id"`
	Platform    string          `json:"platform" db:"platform"`
	PayloadJSON json.RawMessage `json:"payload_json" db:"payload_json"`
	Status      string          `json:"status" db:"status"`
	RetryCount  int             `json:"retry_count" db:"retry_count"`
	ErrorLog    *string         `json:"error_log,omitempty" db:"error_log"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// WebhookStatus constants for audit log lifecycle
const (
	WebhookStatusPending   = "pending"
	WebhookStatusProcessed = "processed"
	WebhookStatusFailed    = "failed"
)
