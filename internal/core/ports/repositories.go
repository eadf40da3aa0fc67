// Package ports defines interfaces for dependency inversion.
// Core services depend on these contracts; adapters implement them.
package ports

import (
	"context"
	"time"

	"leadrelay/internal/core/domain"
)

// CompanyRepository resolves the tenant that owns an inbound contact.
type CompanyRepository interface {
	// GetOrCreateDefault returns the default company, creating it on first
	// webhook if none exists.
	GetOrCreateDefault(ctx context.Context) (*domain.Company, error)
}

// UserRepository maps provider identifiers to internal users.
type UserRepository interface {
	// GetOrCreate looks a user up by wa_id, creating the row on first
	// contact. Returns created=true when a new user was inserted. When the
	// user exists and the display name differs, the stored name is updated
	// (last write wins) and last_seen_at is refreshed.
	GetOrCreate(ctx context.Context, companyID int64, waID, name string) (user *domain.User, created bool, err error)
}

// ConversationRepository manages conversation threads.
type ConversationRepository interface {
	// GetOrCreateActive returns the active conversation for the pair,
	// creating one when none exists. Must be race-safe: two concurrent
	// first contacts resolve to exactly one conversation.
	GetOrCreateActive(ctx context.Context, userID, companyID int64) (*domain.Conversation, error)

	// Close marks a conversation closed. Closing an already-closed
	// conversation is a no-op.
	Close(ctx context.Context, conversationID int64) error

	// ListByCompany returns recent conversations for the dashboard,
	// newest first.
	ListByCompany(ctx context.Context, companyID int64, limit int) ([]domain.Conversation, error)
}

// MessageLedger records every inbound and outbound message. It is the
// correctness-critical piece: the storage layer's unique constraint on
// provider_msg_id is the authoritative dedup decision for at-least-once
// webhook deliveries.
type MessageLedger interface {
	// RecordInbound inserts an inbound message. When msg.ProviderMsgID is
	// set and a row with that id already exists (including a concurrent
	// insert racing this one), the existing row is returned with
	// duplicate=true and no error.
	RecordInbound(ctx context.Context, msg *domain.Message) (stored *domain.Message, duplicate bool, err error)

	// RecordOutbound inserts a bot message, linked to the inbound message
	// it answers via msg.ResponseToID. No dedup key.
	RecordOutbound(ctx context.Context, msg *domain.Message) (*domain.Message, error)

	// History returns a conversation's messages ordered by timestamp
	// ascending. Explicit timestamp ordering, not insertion order, so the
	// AI context tolerates clock skew and out-of-order commits.
	History(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error)

	// LastBotMessage returns the most recent bot message in a conversation,
	// or nil when the bot has not spoken yet. Used for the user
	// response-time metric.
	LastBotMessage(ctx context.Context, conversationID int64) (*domain.Message, error)

	// ResponsesTo returns the bot messages recorded as answers to the given
	// message id.
	ResponsesTo(ctx context.Context, messageID int64) ([]domain.Message, error)
}

// ConversionRepository appends business events detected in conversations.
type ConversionRepository interface {
	Record(ctx context.Context, event *domain.ConversionEvent) error
}

// StatsRepository updates per-company running counters. Every increment must
// be a single atomic statement (UPDATE ... SET x = x + ?), never a
// read-modify-write pair, so concurrent webhooks cannot lose updates.
type StatsRepository interface {
	IncrMessages(ctx context.Context, companyID int64, delta int64) error
	IncrRecipients(ctx context.Context, companyID int64) error
	IncrConversions(ctx context.Context, companyID int64) error
	AddUserResponseTime(ctx context.Context, companyID int64, seconds float64) error
	Get(ctx context.Context, companyID int64) (*domain.CompanyStats, error)
}

// DedupCache is the fast-path duplicate check in front of the ledger. It is
// an optimization only; the ledger's unique constraint remains authoritative.
type DedupCache interface {
	// Seen reports whether the provider message id was already processed.
	Seen(ctx context.Context, providerMsgID string) (bool, error)

	// Mark records the id with a TTL so late redeliveries short-circuit
	// without touching the database.
	Mark(ctx context.Context, providerMsgID string, ttl time.Duration) error
}

// WebhookRepository persists raw webhook deliveries for audit and replay.
type WebhookRepository interface {
	SaveLog(ctx context.Context, log *domain.WebhookLog) error
	UpdateStatus(ctx context.Context, id int64, status string) error
}
