package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"leadrelay/internal/core/domain"
	"leadrelay/internal/core/services"
)

// ============================================================================
// Port Mocks
// ============================================================================

type MockCompanyRepository struct {
	mock.Mock
}

func (m *MockCompanyRepository) GetOrCreateDefault(ctx context.Context) (*domain.Company, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Company), args.Error(1)
}

type MockConversationRepository struct {
	mock.Mock
}

func (m *MockConversationRepository) GetOrCreateActive(ctx context.Context, userID, companyID int64) (*domain.Conversation, error) {
	args := m.Called(ctx, userID, companyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Conversation), args.Error(1)
}

func (m *MockConversationRepository) Close(ctx context.Context, conversationID int64) error {
	args := m.Called(ctx, conversationID)
	return args.Error(0)
}

func (m *MockConversationRepository) ListByCompany(ctx context.Context, companyID int64, limit int) ([]domain.Conversation, error) {
	args := m.Called(ctx, companyID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Conversation), args.Error(1)
}

type MockMessageLedger struct {
	mock.Mock
}

func (m *MockMessageLedger) RecordInbound(ctx context.Context, msg *domain.Message) (*domain.Message, bool, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Bool(1), args.Error(2)
	}
	return args.Get(0).(*domain.Message), args.Bool(1), args.Error(2)
}

func (m *MockMessageLedger) RecordOutbound(ctx context.Context, msg *domain.Message) (*domain.Message, error) {
	args := m.Called(ctx, msg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageLedger) History(ctx context.Context, conversationID int64, limit int) ([]domain.Message, error) {
	args := m.Called(ctx, conversationID, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

func (m *MockMessageLedger) LastBotMessage(ctx context.Context, conversationID int64) (*domain.Message, error) {
	args := m.Called(ctx, conversationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Message), args.Error(1)
}

func (m *MockMessageLedger) ResponsesTo(ctx context.Context, messageID int64) ([]domain.Message, error) {
	args := m.Called(ctx, messageID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Message), args.Error(1)
}

type MockStatsRepository struct {
	mock.Mock
}

func (m *MockStatsRepository) IncrMessages(ctx context.Context, companyID int64, delta int64) error {
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
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.CompanyStats), args.Error(1)
}

// ============================================================================
// Test Helpers
// ============================================================================

type dashboardMocks struct {
	companies *MockCompanyRepository
	convs     *MockConversationRepository
	ledger    *MockMessageLedger
	stats     *MockStatsRepository
}

// createDashboardServer mounts the handler on a chi router so URL params
// resolve the same way they do in production.
func createDashboardServer() (*httptest.Server, *dashboardMocks) {
	m := &dashboardMocks{
		companies: new(MockCompanyRepository),
		convs:     new(MockConversationRepository),
		ledger:    new(MockMessageLedger),
		stats:     new(MockStatsRepository),
	}

	h := NewDashboardHandler(m.companies, m.convs, m.ledger, m.stats, services.NewAutopilot())

	r := chi.NewRouter()
	r.Route("/api", func(r chi.Router) {
		r.Get("/stats", h.GetStats)
		r.Get("/conversations", h.GetConversations)
		r.Get("/conversations/{id}/messages", h.GetConversationMessages)
		r.Post("/conversations/{id}/close", h.CloseConversation)
		r.Get("/messages/{id}/responses", h.GetMessageResponses)
	})

	return httptest.NewServer(r), m
}

func decodeEnvelope(t *testing.T, resp *http.Response, data interface{}) APIResponse {
	t.Helper()
	var envelope APIResponse
	err := json.NewDecoder(resp.Body).Decode(&envelope)
	assert.NoError(t, err)
	if data != nil && envelope.Data != nil {
		raw, err := json.Marshal(envelope.Data)
		assert.NoError(t, err)
		assert.NoError(t, json.Unmarshal(raw, data))
	}
	return envelope
}

func int64Ptr(v int64) *int64 { return &v }

// ============================================================================
// Unit Tests
// ============================================================================

func TestGetMessageResponses_LinkageRoundTrip(t *testing.T) {
	server, m := createDashboardServer()
	defer server.Close()

	// Message 42 has exactly one linked reply; the answer to a different
	// inbound message must not leak into the result.
	m.ledger.On("ResponsesTo", mock.Anything, int64(42)).Return([]domain.Message{
		{
			ID:             101,
			ConversationID: 3,
			SenderType:     domain.SenderTypeBot,
			Kind:           domain.MessageKindText,
			Content:        "Sure, let's set that up.",
			Timestamp:      time.Unix(1700000100, 0).UTC(),
			ResponseToID:   int64Ptr(42),
		},
	}, nil)

	resp, err := http.Get(server.URL + "/api/messages/42/responses")
	assert.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var responses []domain.Message
	decodeEnvelope(t, resp, &responses)

	assert.Len(t, responses, 1)
	assert.Equal(t, int64(101), responses[0].ID)
	assert.Equal(t, domain.SenderTypeBot, responses[0].SenderType)
	assert.Equal(t, int64(42), *responses[0].ResponseToID)

	m.ledger.AssertCalled(t, "ResponsesTo", mock.Anything, int64(42))
}

func TestGetMessageResponses_InvalidID(t *testing.T) {
	server, m := createDashboardServer()
	defer server.Close()

	resp, err := http.Get(server.URL + "/api/messages/not-a-number/responses")
	assert.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	m.ledger.AssertNotCalled(t, "ResponsesTo", mock.Anything, mock.Anything)
}

func TestGetMessageResponses_LedgerError(t *testing.T) {
	server, m := createDashboardServer()
	defer server.Close()

	m.ledger.On("ResponsesTo", mock.Anything, int64(42)).
		Return(nil, errors.New("database gone"))

	resp, err := http.Get(server.URL + "/api/messages/42/responses")
	assert.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestGetStats_ComputesAverageResponseTime(t *testing.T) {
	server, m := createDashboardServer()
	defer server.Close()

	m.companies.On("GetOrCreateDefault", mock.Anything).
		Return(&domain.Company{ID: 1, Name: "Default Company"}, nil)
	m.stats.On("Get", mock.Anything, int64(1)).Return(&domain.CompanyStats{
		CompanyID:             1,
		TotalMessages:         10,
		NumRecipients:         4,
		Conversions:           2,
		TotalUserResponseTime: 90,
		UserResponseCount:     3,
	}, nil)

	resp, err := http.Get(server.URL + "/api/stats")
	assert.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var stats StatsResponse
	decodeEnvelope(t, resp, &stats)

	assert.Equal(t, int64(10), stats.TotalMessages)
	assert.Equal(t, float64(30), stats.AverageUserResponseTime)
}

func TestGetConversationMessages_HistoryOrderPreserved(t *testing.T) {
	server, m := createDashboardServer()
	defer server.Close()

	m.ledger.On("History", mock.Anything, int64(3), 0).Return([]domain.Message{
		{ID: 1, ConversationID: 3, SenderType: domain.SenderTypeUser, Content: "hi"},
		{ID: 2, ConversationID: 3, SenderType: domain.SenderTypeBot, Content: "hello"},
	}, nil)

	resp, err := http.Get(server.URL + "/api/conversations/3/messages")
	assert.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var messages []domain.Message
	decodeEnvelope(t, resp, &messages)

	assert.Len(t, messages, 2)
	assert.Equal(t, int64(1), messages[0].ID)
	assert.Equal(t, int64(2), messages[1].ID)
}

func TestCloseConversation(t *testing.T) {
	server, m := createDashboardServer()
	defer server.Close()

	m.convs.On("Close", mock.Anything, int64(3)).Return(nil)

	resp, err := http.Post(server.URL+"/api/conversations/3/close", "application/json", nil)
	assert.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	m.convs.AssertCalled(t, "Close", mock.Anything, int64(3))
}
