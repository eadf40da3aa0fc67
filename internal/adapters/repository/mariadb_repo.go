// Package repository implements data persistence adapters.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"

	"leadrelay/internal/core/domain"
	"leadrelay/internal/core/ports"
)

// Ensure MariaDBRepository implements the required ports.
var (
	_ ports.CompanyRepository      = (*MariaDBRepository)(nil)
	_ ports.UserRepository         = (*MariaDBRepository)(nil)
	_ ports.ConversationRepository = (*MariaDBRepository)(nil)
	_ ports.MessageLedger          = (*MariaDBRepository)(nil)
	_ ports.ConversionRepository   = (*MariaDBRepository)(nil)
	_ ports.StatsRepository        = (*MariaDBRepository)(nil)
	_ ports.WebhookRepository      = (*MariaDBRepository)(nil)
)

// MariaDBRepository implements all persistence ports on one MariaDB handle.
// Dedup correctness lives here: the unique keys declared in schema.sql are
// the source of truth, and duplicate-key violations (error 1062) are treated
// as normal outcomes, not failures.
type MariaDBRepository struct {
	db                 *sql.DB
	defaultCompanyName string
}

// NewMariaDBRepository creates a repository. defaultCompanyName is the
// tenant created on first webhook when none exists.
func NewMariaDBRepository(db *sql.DB, defaultCompanyName string) *MariaDBRepository {
	if defaultCompanyName == "" {
		defaultCompanyName = "Default Company"
	}
	return &MariaDBRepository{db: db, defaultCompanyName: defaultCompanyName}
}

// isDuplicateKey reports whether err is a MySQL unique-constraint violation.
func isDuplicateKey(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == 1062
}

// ============================================================================
// CompanyRepository
// ============================================================================

// GetOrCreateDefault returns the default company, inserting it on first use.
// A concurrent insert losing the race on uniq_company_name re-selects the
// winner's row.
func (r *MariaDBRepository) GetOrCreateDefault(ctx context.Context) (*domain.Company, error) {
	company, err := r.companyByName(ctx, r.defaultCompanyName)
	if err != nil {
		return nil, err
	}
	if company != nil {
		return company, nil
	}

	result, err := r.db.ExecContext(ctx,
		`INSERT INTO companies (name) VALUES (?)`, r.defaultCompanyName)
	if err != nil {
		if isDuplicateKey(err) {
			return r.companyByNameStrict(ctx, r.defaultCompanyName)
		}
		return nil, fmt.Errorf("create company: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("company insert id: %w", err)
	}
	slog.Info("default company created", "company_id", id, "name", r.defaultCompanyName)
	return &domain.Company{ID: id, Name: r.defaultCompanyName, CreatedAt: time.Now().UTC()}, nil
}

func (r *MariaDBRepository) companyByName(ctx context.Context, name string) (*domain.Company, error) {
	var c domain.Company
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, created_at FROM companies WHERE name = ?`, name).
		Scan(&c.ID, &c.Name, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query company: %w", err)
	}
	return &c, nil
}

func (r *MariaDBRepository) companyByNameStrict(ctx context.Context, name string) (*domain.Company, error) {
	c, err := r.companyByName(ctx, name)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("company %q vanished after duplicate-key insert", name)
	}
	return c, nil
}

// ============================================================================
// UserRepository
// ============================================================================

// GetOrCreate resolves a user by wa_id. Existing users get last_seen_at
// refreshed and the display name updated when it changed (last write wins).
// First contact inserts a row; losing the uniq_wa_id race re-selects.
func (r *MariaDBRepository) GetOrCreate(ctx context.Context, companyID int64, waID, name string) (*domain.User, bool, error) {
	user, err := r.userByWaID(ctx, waID)
	if err != nil {
		return nil, false, err
	}
	if user != nil {
		return r.touchUser(ctx, user, name)
	}

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO users (wa_id, name, company_id, created_at, last_seen_at)
		VALUES (?, ?, ?, ?, ?)
	`, waID, name, companyID, now, now)
	if err != nil {
		if isDuplicateKey(err) {
			// Concurrent first contact; the other delivery created the row.
			user, err := r.userByWaID(ctx, waID)
			if err != nil {
				return nil, false, err
			}
			if user == nil {
				return nil, false, fmt.Errorf("user %q vanished after duplicate-key insert", waID)
			}
			return user, false, nil
		}
		return nil, false, fmt.Errorf("create user: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("user insert id: %w", err)
	}
	slog.Info("new user created", "user_id", id, "wa_id", waID)
	return &domain.User{
		ID:         id,
		WaID:       waID,
		Name:       name,
		CompanyID:  companyID,
		CreatedAt:  now,
		LastSeenAt: now,
	}, true, nil
}

func (r *MariaDBRepository) userByWaID(ctx context.Context, waID string) (*domain.User, error) {
	var u domain.User
	err := r.db.QueryRowContext(ctx, `
		SELECT id, wa_id, name, company_id, created_at, last_seen_at
		FROM users WHERE wa_id = ?
	`, waID).Scan(&u.ID, &u.WaID, &u.Name, &u.CompanyID, &u.CreatedAt, &u.LastSeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

func (r *MariaDBRepository) touchUser(ctx context.Context, user *domain.User, name string) (*domain.User, bool, error) {
	now := time.Now().UTC()
	newName := user.Name
	if name != "" && name != "Unknown" && name != user.Name {
		newName = name
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET name = ?, last_seen_at = ? WHERE id = ?`,
		newName, now, user.ID)
	if err != nil {
		return nil, false, fmt.Errorf("touch user: %w", err)
	}
	user.Name = newName
	user.LastSeenAt = now
	return user, false, nil
}

// ============================================================================
// ConversationRepository
// ============================================================================

// GetOrCreateActive returns the single active conversation for the pair.
// Race safety comes from uniq_active (user_id, company_id, active_flag):
// two concurrent first contacts both try the insert, the loser gets 1062 and
// re-selects the winner's row.
func (r *MariaDBRepository) GetOrCreateActive(ctx context.Context, userID, companyID int64) (*domain.Conversation, error) {
	conv, err := r.activeConversation(ctx, userID, companyID)
	if err != nil {
		return nil, err
	}
	if conv != nil {
		return conv, nil
	}

	now := time.Now().UTC()
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO conversations (user_id, company_id, status, active_flag, started_at)
		VALUES (?, ?, ?, 1, ?)
	`, userID, companyID, domain.ConversationStatusActive, now)
	if err != nil {
		if isDuplicateKey(err) {
			conv, err := r.activeConversation(ctx, userID, companyID)
			if err != nil {
				return nil, err
			}
			if conv == nil {
				return nil, fmt.Errorf("active conversation for user %d vanished after duplicate-key insert", userID)
			}
			return conv, nil
		}
		return nil, fmt.Errorf("create conversation: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("conversation insert id: %w", err)
	}
	slog.Info("new conversation created", "conversation_id", id, "user_id", userID)
	return &domain.Conversation{
		ID:        id,
		UserID:    userID,
		CompanyID: companyID,
		Status:    domain.ConversationStatusActive,
		StartedAt: now,
	}, nil
}

func (r *MariaDBRepository) activeConversation(ctx context.Context, userID, companyID int64) (*domain.Conversation, error) {
	var c domain.Conversation
	err := r.db.QueryRowContext(ctx, `
		SELECT id, user_id, company_id, status, started_at, updated_at
		FROM conversations
		WHERE user_id = ? AND company_id = ? AND status = ?
	`, userID, companyID, domain.ConversationStatusActive).
		Scan(&c.ID, &c.UserID, &c.CompanyID, &c.Status, &c.StartedAt, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query active conversation: %w", err)
	}
	return &c, nil
}

// Close marks a conversation closed and frees the uniq_active slot by
// nulling active_flag. Already-closed conversations are untouched.
func (r *MariaDBRepository) Close(ctx context.Context, conversationID int64) error {
	result, err := r.db.ExecContext(ctx, `
		UPDATE conversations
		SET status = ?, active_flag = NULL, updated_at = ?
		WHERE id = ? AND status = ?
	`, domain.ConversationStatusClosed, time.Now().UTC(), conversationID, domain.ConversationStatusActive)
	if err != nil {
		return fmt.Errorf("close conversation: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows > 0 {
		slog.Info("conversation closed", "conversation_id", conversationID)
	}
	return nil
}

// ListByCompany returns recent conversations, newest first.
func (r *MariaDBRepository) ListByCompany(ctx context.Context, companyID int64, limit int) ([]domain.Conversation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, user_id, company_id, status, started_at, updated_at
		FROM conversations
		WHERE company_id = ?
		ORDER BY started_at DESC
		LIMIT ?
	`, companyID, limit)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var out []domain.Conversation
	for rows.Next() {
		var c domain.Conversation
		if err := rows.Scan(&c.ID, &c.UserID, &c.CompanyID, &c.Status, &c.StartedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// ============================================================================
// MessageLedger
// ============================================================================

// RecordInbound inserts an inbound message, relying on uniq_provider_msg_id
// as the authoritative dedup decision. A duplicate-key violation is the
// expected signature of a concurrent redelivery: the existing row is fetched
// and returned with duplicate=true.
func (r *MariaDBRepository) RecordInbound(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_type, kind, content, timestamp, provider_msg_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ConversationID, msg.SenderType, msg.Kind, msg.Content, msg.Timestamp, msg.ProviderMsgID)
	if err != nil {
		if isDuplicateKey(err) && msg.ProviderMsgID != nil {
			existing, lookupErr := r.messageByProviderID(ctx, *msg.ProviderMsgID)
			if lookupErr != nil {
				return nil, false, lookupErr
			}
			if existing == nil {
				return nil, false, fmt.Errorf("message %q vanished after duplicate-key insert", *msg.ProviderMsgID)
			}
			return existing, true, nil
		}
		return nil, false, fmt.Errorf("record inbound message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, false, fmt.Errorf("message insert id: %w", err)
	}
	stored := *msg
	stored.ID = id
	return &stored, false, nil
}

// RecordOutbound inserts a bot message. No dedup key; always inserts.
func (r *MariaDBRepository) RecordOutbound(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, sender_type, kind, content, timestamp, response_to_message_id)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ConversationID, msg.SenderType, msg.Kind, msg.Content, msg.Timestamp, msg.ResponseToID)
	if err != nil {
		return nil, fmt.Errorf("record outbound message: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("message insert id: %w", err)
	}
	stored := *msg
	stored.ID = id
	return &stored, nil
}

func (r *MariaDBRepository) messageByProviderID(ctx context.Context, providerMsgID string) (*domain.Message, error) {
	var m domain.Message
	err := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_type, kind, content, timestamp, response_to_message_id, provider_msg_id
		FROM messages WHERE provider_msg_id = ?
	`, providerMsgID).Scan(
		&m.ID, &m.ConversationID, &m.SenderType, &m.Kind, &m.Content,
		&m.Timestamp, &m.ResponseToID, &m.ProviderMsgID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query message by provider id: %w", err)
	}
	return &m, nil
}

// History returns messages ordered by timestamp ascending. Explicit
// timestamp ordering (id as tiebreaker) tolerates clock skew and
// out-of-order commits between concurrent writers.
func (r *MariaDBRepository) History(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_type, kind, content, timestamp, response_to_message_id, provider_msg_id
		FROM messages
		WHERE conversation_id = ?
		ORDER BY timestamp ASC, id ASC
		LIMIT ?
	`, conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderType, &m.Kind, &m.Content,
			&m.Timestamp, &m.ResponseToID, &m.ProviderMsgID,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LastBotMessage returns the newest bot message in the conversation, or nil.
func (r *MariaDBRepository) LastBotMessage(ctx context.Context, conversationID int64) (*domain.Message, error) {
	var m domain.Message
	err := r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_type, kind, content, timestamp, response_to_message_id, provider_msg_id
		FROM messages
		WHERE conversation_id = ? AND sender_type = ?
		ORDER BY timestamp DESC, id DESC
		LIMIT 1
	`, conversationID, domain.SenderTypeBot).Scan(
		&m.ID, &m.ConversationID, &m.SenderType, &m.Kind, &m.Content,
		&m.Timestamp, &m.ResponseToID, &m.ProviderMsgID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query last bot message: %w", err)
	}
	return &m, nil
}

// ResponsesTo returns the bot messages linked to the given inbound message.
func (r *MariaDBRepository) ResponsesTo(ctx context.Context, messageID int64) ([]domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_type, kind, content, timestamp, response_to_message_id, provider_msg_id
		FROM messages
		WHERE response_to_message_id = ?
		ORDER BY timestamp ASC, id ASC
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("query responses: %w", err)
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderType, &m.Kind, &m.Content,
			&m.Timestamp, &m.ResponseToID, &m.ProviderMsgID,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// ============================================================================
// ConversionRepository
// ============================================================================

// Record appends a conversion event. Append-only; never updated or deleted.
func (r *MariaDBRepository) Record(ctx context.Context, event *domain.ConversionEvent) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO conversion_events (conversation_id, event_type, details, timestamp)
		VALUES (?, ?, ?, ?)
	`, event.ConversationID, event.EventType, event.Details, event.Timestamp)
	if err != nil {
		return fmt.Errorf("record conversion event: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		event.ID = id
	}
	return nil
}

// ============================================================================
// StatsRepository
// ============================================================================
//
// Every counter update is a single atomic upsert, never a read-modify-write
// pair in application code, so concurrent webhooks cannot lose increments.

func (r *MariaDBRepository) IncrMessages(ctx context.Context, companyID int64, delta int64) error {
	return r.upsertStats(ctx, `
		INSERT INTO company_stats (company_id, total_messages) VALUES (?, ?)
		ON DUPLICATE KEY UPDATE total_messages = total_messages + VALUES(total_messages)
	`, companyID, delta)
}

func (r *MariaDBRepository) IncrRecipients(ctx context.Context, companyID int64) error {
	return r.upsertStats(ctx, `
		INSERT INTO company_stats (company_id, num_recipients) VALUES (?, 1)
		ON DUPLICATE KEY UPDATE num_recipients = num_recipients + 1
	`, companyID)
}

func (r *MariaDBRepository) IncrConversions(ctx context.Context, companyID int64) error {
	return r.upsertStats(ctx, `
		INSERT INTO company_stats (company_id, conversions) VALUES (?, 1)
		ON DUPLICATE KEY UPDATE conversions = conversions + 1
	`, companyID)
}

func (r *MariaDBRepository) AddUserResponseTime(ctx context.Context, companyID int64, seconds float64) error {
	return r.upsertStats(ctx, `
		INSERT INTO company_stats (company_id, total_user_response_time, user_response_count)
		VALUES (?, ?, 1)
		ON DUPLICATE KEY UPDATE
			total_user_response_time = total_user_response_time + VALUES(total_user_response_time),
			user_response_count = user_response_count + 1
	`, companyID, seconds)
}

func (r *MariaDBRepository) upsertStats(ctx context.Context, query string, args ...interface{}) error {
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("update company stats: %w", err)
	}
	return nil
}

// Get returns the current counters, or a zero-valued row when the company
// has no statistics yet.
func (r *MariaDBRepository) Get(ctx context.Context, companyID int64) (*domain.CompanyStats, error) {
	stats := domain.CompanyStats{CompanyID: companyID}
	err := r.db.QueryRowContext(ctx, `
		SELECT total_messages, num_recipients, conversions, total_user_response_time, user_response_count
		FROM company_stats WHERE company_id = ?
	`, companyID).Scan(
		&stats.TotalMessages, &stats.NumRecipients, &stats.Conversions,
		&stats.TotalUserResponseTime, &stats.UserResponseCount,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return &stats, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query company stats: %w", err)
	}
	return &stats, nil
}

// ============================================================================
// WebhookRepository
// ============================================================================

// SaveLog persists a raw webhook delivery and fills in log.ID.
func (r *MariaDBRepository) SaveLog(ctx context.Context, log *domain.WebhookLog) error {
	result, err := r.db.ExecContext(ctx, `
		INSERT INTO webhook_logs (platform, payload_json, status, retry_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, log.Platform, []byte(log.PayloadJSON), log.Status, log.RetryCount, log.CreatedAt)
	if err != nil {
		return fmt.Errorf("save webhook log: %w", err)
	}
	if id, err := result.LastInsertId(); err == nil {
		log.ID = id
	}
	return nil
}

// UpdateStatus moves a webhook log through its lifecycle.
func (r *MariaDBRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE webhook_logs SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update webhook status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		slog.Warn("no webhook log found for status update", "webhook_id", id)
	}
	return nil
}
