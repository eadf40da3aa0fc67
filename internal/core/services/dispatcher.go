package services

import (
	"context"
	"log/slog"
	"time"

	"leadrelay/internal/core/domain"
	"leadrelay/internal/core/ports"
)

// Ingest outcomes. The HTTP adapter maps these to status codes: unsupported
// is the only non-2xx outcome; duplicates and status receipts are normal.
const (
	OutcomeProcessed   = "processed"
	OutcomeDuplicate   = "duplicate"
	OutcomeStatusOnly  = "status"
	OutcomeUnsupported = "unsupported"
)

// replyTimeout bounds the detached reply leg so a hung collaborator call
// cannot leak its goroutine.
const replyTimeout = 60 * time.Second

// dedupTTL bounds the fast-path cache. The ledger's unique constraint covers
// redeliveries arriving after expiry.
const dedupTTL = 24 * time.Hour

// ReplyOrchestrator is the seam between ingestion and the reply leg. The
// dispatcher fires it once per accepted inbound message, never for
// duplicates.
type ReplyOrchestrator interface {
	Respond(ctx context.Context, conv *domain.Conversation, user *domain.User, inbound *domain.Message) error
}

// Dispatcher runs the ingestion pipeline for one webhook delivery: classify,
// resolve identity and conversation, record the message with dedup, then hand
// accepted messages to the reply orchestrator in the background.
type Dispatcher struct {
	companies ports.CompanyRepository
	users     ports.UserRepository
	convs     ports.ConversationRepository
	ledger    ports.MessageLedger
	stats     ports.StatsRepository
	dedup     ports.DedupCache
	webhooks  ports.WebhookRepository
	orch      ReplyOrchestrator
	events    ports.EventSink
	autopilot *Autopilot
}

// NewDispatcher creates a dispatcher with all dependencies injected.
func NewDispatcher(
	companies ports.CompanyRepository,
	users ports.UserRepository,
	convs ports.ConversationRepository,
	ledger ports.MessageLedger,
	stats ports.StatsRepository,
	dedup ports.DedupCache,
	webhooks ports.WebhookRepository,
	orch ReplyOrchestrator,
	events ports.EventSink,
	autopilot *Autopilot,
) *Dispatcher {
	return &Dispatcher{
		companies: companies,
		users:     users,
		convs:     convs,
		ledger:    ledger,
		stats:     stats,
		dedup:     dedup,
		webhooks:  webhooks,
		orch:      orch,
		events:    events,
		autopilot: autopilot,
	}
}

// Ingest processes one webhook delivery. A non-nil error means the inbound
// event was NOT durably and uniquely recorded; the HTTP adapter must answer
// non-2xx so the provider redelivers. Everything downstream of durable
// recording is recovered locally and never forces a redelivery.
func (d *Dispatcher) Ingest(ctx context.Context, platform string, payload []byte) (string, error) {
	auditID := d.saveAuditLog(ctx, platform, payload)

	classified := Classify(payload)
	switch classified.Class {
	case ClassStatus:
		d.finishAuditLog(auditID, domain.WebhookStatusProcessed)
		return OutcomeStatusOnly, nil
	case ClassUnsupported:
		slog.Warn("unsupported webhook payload", "platform", platform, "bytes", len(payload))
		d.finishAuditLog(auditID, domain.WebhookStatusFailed)
		return OutcomeUnsupported, nil
	}

	processed := 0
	duplicates := 0
	for i := range classified.Inbound {
		dup, err := d.processMessage(ctx, &classified.Inbound[i])
		if err != nil {
			slog.Error("failed to process inbound message",
				"error", err,
				"provider_msg_id", classified.Inbound[i].ProviderMsgID,
			)
			d.finishAuditLog(auditID, domain.WebhookStatusFailed)
			return "", err
		}
		if dup {
			duplicates++
		} else {
			processed++
		}
	}

	d.finishAuditLog(auditID, domain.WebhookStatusProcessed)
	slog.Info("webhook processed", "accepted", processed, "duplicates", duplicates)

	if processed == 0 && duplicates > 0 {
		return OutcomeDuplicate, nil
	}
	return OutcomeProcessed, nil
}

// processMessage handles a single inbound message end to end. The dedup
// decision happens before any AI or delivery work: a duplicate short-circuits
// with no second reply.
func (d *Dispatcher) processMessage(ctx context.Context, ev *InboundEvent) (duplicate bool, err error) {
	// Fast path: cache hit means a previous delivery already went through
	// the full pipeline. Cache errors degrade to the database check.
	if ev.ProviderMsgID != "" {
		seen, err := d.dedup.Seen(ctx, ev.ProviderMsgID)
		if err != nil {
			slog.Warn("dedup cache check failed, falling through to ledger",
				"error", err,
				"provider_msg_id", ev.ProviderMsgID,
			)
		} else if seen {
			slog.Info("duplicate delivery short-circuited by cache",
				"provider_msg_id", ev.ProviderMsgID,
			)
			return true, nil
		}
	}

	company, err := d.companies.GetOrCreateDefault(ctx)
	if err != nil {
		return false, err
	}

	user, created, err := d.users.GetOrCreate(ctx, company.ID, ev.WaID, ev.ProfileName)
	if err != nil {
		return false, err
	}
	if created {
		if err := d.stats.IncrRecipients(ctx, company.ID); err != nil {
			slog.Warn("failed to increment recipient counter", "error", err, "company_id", company.ID)
		}
	}

	conv, err := d.convs.GetOrCreateActive(ctx, user.ID, company.ID)
	if err != nil {
		return false, err
	}

	// Snapshot the latest bot message before inserting, so the response-time
	// metric pairs this inbound with the reply it answers.
	lastBot, err := d.ledger.LastBotMessage(ctx, conv.ID)
	if err != nil {
		slog.Warn("failed to load last bot message", "error", err, "conversation_id", conv.ID)
		lastBot = nil
	}

	msg := &domain.Message{
		ConversationID: conv.ID,
		SenderType:     domain.SenderTypeUser,
		Kind:           ev.Kind,
		Content:        ev.ContentText(),
		Timestamp:      ev.Timestamp,
	}
	if ev.ProviderMsgID != "" {
		mid := ev.ProviderMsgID
		msg.ProviderMsgID = &mid
	}

	stored, dup, err := d.ledger.RecordInbound(ctx, msg)
	if err != nil {
		return false, err
	}
	if dup {
		// Lost the race against a concurrent delivery; the winner owns the
		// reply. Refresh the cache and stop.
		d.markDedup(ev.ProviderMsgID)
		slog.Info("duplicate delivery rejected by ledger",
			"provider_msg_id", ev.ProviderMsgID,
			"message_id", stored.ID,
		)
		return true, nil
	}

	if err := d.stats.IncrMessages(ctx, company.ID, 1); err != nil {
		slog.Warn("failed to increment message counter", "error", err, "company_id", company.ID)
	}
	if lastBot != nil {
		if delta := stored.Timestamp.Sub(lastBot.Timestamp).Seconds(); delta > 0 {
			if err := d.stats.AddUserResponseTime(ctx, company.ID, delta); err != nil {
				slog.Warn("failed to record user response time", "error", err, "company_id", company.ID)
			}
		}
	}
	d.markDedup(ev.ProviderMsgID)

	d.events.Publish(ConversationEvent{
		Type:           EventInboundMessage,
		ConversationID: conv.ID,
		Sender:         domain.SenderTypeUser,
		Text:           stored.Content,
		Timestamp:      stored.Timestamp,
	})

	slog.Info("inbound message accepted",
		"message_id", stored.ID,
		"conversation_id", conv.ID,
		"provider_msg_id", ev.ProviderMsgID,
		"kind", ev.Kind,
	)

	if d.autopilot != nil && d.autopilot.IsPaused() {
		slog.Warn("autopilot paused, skipping reply", "conversation_id", conv.ID)
		return false, nil
	}

	// The reply leg runs detached so webhook latency stays well under the
	// provider timeout. The inbound message is already durable; anything
	// that fails from here is recovered locally, never via redelivery.
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in reply orchestration", "panic", r, "conversation_id", conv.ID)
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), replyTimeout)
		defer cancel()
		if err := d.orch.Respond(ctx, conv, user, stored); err != nil {
			slog.Error("reply orchestration failed", "error", err, "conversation_id", conv.ID)
		}
	}()

	return false, nil
}

func (d *Dispatcher) markDedup(providerMsgID string) {
	if providerMsgID == "" {
		return
	}
	if err := d.dedup.Mark(context.Background(), providerMsgID, dedupTTL); err != nil {
		slog.Warn("failed to mark dedup cache", "error", err, "provider_msg_id", providerMsgID)
	}
}

// saveAuditLog persists the raw delivery. Best effort: the audit trail is
// supplemental, so its failure never rejects the webhook.
func (d *Dispatcher) saveAuditLog(ctx context.Context, platform string, payload []byte) int64 {
	wl := &domain.WebhookLog{
		Platform:    platform,
		PayloadJSON: payload,
		Status:      domain.WebhookStatusPending,
		CreatedAt:   time.Now().UTC(),
	}
	if err := d.webhooks.SaveLog(ctx, wl); err != nil {
		slog.Warn("failed to save webhook audit log", "error", err, "platform", platform)
		return 0
	}
	return wl.ID
}

func (d *Dispatcher) finishAuditLog(id int64, status string) {
	if id == 0 {
		return
	}
	go func() {
		defer func() {
			if r := recover(); r != nil {
				slog.Error("panic in audit status update", "panic", r)
			}
		}()
		if err := d.webhooks.UpdateStatus(context.Background(), id, status); err != nil {
			slog.Warn("failed to update webhook audit status", "error", err, "webhook_id", id)
		}
	}()
}
