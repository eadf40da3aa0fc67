package services

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"leadrelay/internal/core/domain"
	"leadrelay/internal/core/ports"
)

// ============================================================================
// Mock Repositories
// ============================================================================

// MockCompanyRepository mocks CompanyRepository interface
type MockCompanyRepository struct {
	mock.Mock
}

func (m *MockCompanyRepository) GetOrCreateDefault(ctx context.Context) (*domain.Company, error) {
	args := m.Called(ctx)
	if result := args.Get(0); result != nil {
		return result.(*domain.Company), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockUserRepository mocks UserRepository interface
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetOrCreate(ctx context.Context, companyID int64, waID, name string) (*domain.User, bool, error) {
	args := m.Called(ctx, companyID, waID, name)
	if result := args.Get(0); result != nil {
		return result.(*domain.User), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

// MockConversationRepository mocks ConversationRepository interface
type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) GetOrCreateActive(ctx context.Context, userID, companyID int64) (*domain.Conversation, error) {
	args := m.Called(ctx, userID, companyID)
	if result := args.Get(0); result != nil {
		return result.(*domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockConversationRepository) Close(ctx context.Context, conversationID int64) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *MockConversationRepository) ListByCompany(ctx context.Context, companyID int64, limit int) ([]domain.Conversation, error) {
	args := m.Called(ctx, companyID, limit)
	if result := args.Get(0); result != nil {
		return result.([]domain.Conversation), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockMessageLedger mocks MessageLedger interface
type MockMessageLedger struct {
	mock.Mock
}

func (m *MockMessageLedger) RecordInbound(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	args := m.Called(ctx, msg)
	if result := args.Get(0); result != nil {
		return result.(*domain.Message), args.Bool(1), args.Error(2)
	}
	return nil, args.Bool(1), args.Error(2)
}

func (m *MockMessageLedger) RecordOutbound(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	args := m.Called(ctx, msg)
	if result := args.Get(0); result != nil {
		return result.(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageLedger) History(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if result := args.Get(0); result != nil {
		return result.([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageLedger) LastBotMessage(ctx context.Context, conversationID int64) (*domain.Message, error) {
	args := m.Called(ctx, conversationID)
	if result := args.Get(0); result != nil {
		return result.(*domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockMessageLedger) ResponsesTo(ctx context.Context, messageID int64) ([]domain.Message, error) {
	args := m.Called(ctx, messageID)
	if result := args.Get(0); result != nil {
		return result.([]domain.Message), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockConversionRepository mocks ConversionRepository interface
type MockConversionRepository struct {
	mock.Mock
}

func (m *MockConversionRepository) Record(ctx context.Context, event *domain.ConversionEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

// MockStatsRepository mocks StatsRepository interface
type MockStatsRepository struct {
	mock.Mock
}

func (m *MockStatsRepository) IncrMessages(ctx context.Context, companyID, delta int64) error {
	args := m.Called(ctx, companyID, delta)
	return args.Error(0)
}

func (m *MockStatsRepository) IncrRecipients(ctx context.Context, companyID int64) error {
	args := m.Called(ctx, companyID)
	return args.Error(0)
}

func (m *MockStatsRepository) IncrConversions(ctx context.Context, companyID int64) error {
	args := m.Called(ctx, companyID)
	return args.Error(0)
}

func (m *MockStatsRepository) AddUserResponseTime(ctx context.Context, companyID int64, seconds float64) error {
	args := m.Called(ctx, companyID, seconds)
	return args.Error(0)
}

func (m *MockStatsRepository) Get(ctx context.Context, companyID int64) (*domain.CompanyStats, error) {
	args := m.Called(ctx, companyID)
	if result := args.Get(0); result != nil {
		return result.(*domain.CompanyStats), args.Error(1)
	}
	return nil, args.Error(1)
}

// MockDedupCache mocks DedupCache interface
type MockDedupCache struct {
	mock.Mock
}

func (m *MockDedupCache) Seen(ctx context.Context, providerMsgID string) (bool, error) {
	args := m.Called(ctx, providerMsgID)
	return args.Bool(0), args.Error(1)
}

func (m *MockDedupCache) Mark(ctx context.Context, providerMsgID string, ttl time.Duration) error {
	args := m.Called(ctx, providerMsgID, ttl)
	return args.Error(0)
}

// MockWebhookRepository mocks WebhookRepository interface
type MockWebhookRepository struct {
	mock.Mock
}

func (m *MockWebhookRepository) SaveLog(ctx context.Context, log *domain.WebhookLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockWebhookRepository) UpdateStatus(ctx context.Context, id int64, status string) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

// ============================================================================
// Mock Collaborators
// ============================================================================

// MockResponder mocks the AI responder port
type MockResponder struct {
	mock.Mock
}

func (m *MockResponder) Reply(ctx context.Context, systemPrompt string, history []ports.Turn) (string, error) {
	args := m.Called(ctx, systemPrompt, history)
	return args.String(0), args.Error(1)
}

// MockTransport mocks the outbound message transport
type MockTransport struct {
	mock.Mock
}

func (m *MockTransport) SendText(ctx context.Context, waID, text string) error {
	args := m.Called(ctx, waID, text)
	return args.Error(0)
}

// MockOrchestrator mocks the reply orchestrator seam
type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) Respond(ctx context.Context, conv *domain.Conversation, user *domain.User, inbound *domain.Message) error {
	args := m.Called(ctx, conv, user, inbound)
	return args.Error(0)
}

// nopSink discards events; tests that don't assert on broadcasts use it.
type nopSink struct{}

func (nopSink) Publish(event any) {}
