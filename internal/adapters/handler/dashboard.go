// Package handler implements HTTP request handlers for the dashboard
package handler

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"runtime"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"leadrelay/internal/core/ports"
	"leadrelay/internal/core/services"
)

// DashboardHandler handles dashboard API requests
type DashboardHandler struct {
	companies     ports.CompanyRepository
	conversations ports.ConversationRepository
	ledger        ports.MessageLedger
	stats         ports.StatsRepository
	autopilot     *services.Autopilot
}

// NewDashboardHandler creates a new dashboard handler instance
func NewDashboardHandler(
	companies ports.CompanyRepository,
	conversations ports.ConversationRepository,
	ledger ports.MessageLedger,
	stats ports.StatsRepository,
	autopilot *services.Autopilot,
) *DashboardHandler {
	return &DashboardHandler{
		companies:     companies,
		conversations: conversations,
		ledger:        ledger,
		stats:         stats,
		autopilot:     autopilot,
	}
}

// ============================================================================
// Statistics
// ============================================================================

// StatsResponse represents aggregate counters plus the derived average.
type StatsResponse struct {
	CompanyID               int64   `json:"company_id"`
	TotalMessages           int64   `json:"total_messages"`
	NumRecipients           int64   `json:"num_recipients"`
	Conversions             int64   `json:"conversions"`
	AverageUserResponseTime float64 `json:"average_user_response_time_seconds"`
}

// GetStats returns per-company aggregate statistics
// GET /api/stats
func (h *DashboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	company, err := h.companies.GetOrCreateDefault(ctx)
	if err != nil {
		slog.Error("Failed to resolve company", "error", err)
		writeJSON(w, NewErrorResponse(http.StatusInternalServerError, "Failed to load statistics"))
		return
	}

	stats, err := h.stats.Get(ctx, company.ID)
	if err != nil {
		slog.Error("Failed to get company stats", "error", err, "company_id", company.ID)
		writeJSON(w, NewErrorResponse(http.StatusInternalServerError, "Failed to load statistics"))
		return
	}

	writeJSON(w, NewSuccessResponse(StatsResponse{
		CompanyID:               stats.CompanyID,
		TotalMessages:           stats.TotalMessages,
		NumRecipients:           stats.NumRecipients,
		Conversions:             stats.Conversions,
		AverageUserResponseTime: stats.AverageUserResponseTime(),
	}))
}

// ============================================================================
// Conversation Management
// ============================================================================

// GetConversations returns recent conversations for the default company
// GET /api/conversations?limit=N
func (h *DashboardHandler) GetConversations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	company, err := h.companies.GetOrCreateDefault(ctx)
	if err != nil {
		slog.Error("Failed to resolve company", "error", err)
		writeJSON(w, NewErrorResponse(http.StatusInternalServerError, "Failed to load conversations"))
		return
	}

	conversations, err := h.conversations.ListByCompany(ctx, company.ID, limit)
	if err != nil {
		slog.Error("Failed to get conversations", "error", err, "company_id", company.ID)
		writeJSON(w, NewErrorResponse(http.StatusInternalServerError, "Failed to load conversations"))
		return
	}

	writeJSON(w, NewSuccessResponse(conversations))
}

// GetConversationMessages returns message history for a conversation
// GET /api/conversations/{id}/messages
func (h *DashboardHandler) GetConversationMessages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conversationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, NewErrorResponse(http.StatusBadRequest, "Invalid conversation ID"))
		return
	}

	messages, err := h.ledger.History(ctx, conversationID, 0)
	if err != nil {
		slog.Error("Failed to get messages", "error", err, "conversation_id", conversationID)
		writeJSON(w, NewErrorResponse(http.StatusInternalServerError, "Failed to load messages"))
		return
	}

	writeJSON(w, NewSuccessResponse(messages))
}

// GetMessageResponses returns the bot replies linked to an inbound message
// GET /api/messages/{id}/responses
func (h *DashboardHandler) GetMessageResponses(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	messageID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, NewErrorResponse(http.StatusBadRequest, "Invalid message ID"))
		return
	}

	responses, err := h.ledger.ResponsesTo(ctx, messageID)
	if err != nil {
		slog.Error("Failed to get message responses", "error", err, "message_id", messageID)
		writeJSON(w, NewErrorResponse(http.StatusInternalServerError, "Failed to load responses"))
		return
	}

	writeJSON(w, NewSuccessResponse(responses))
}

// CloseConversation marks a conversation closed; the next inbound message
// from the same user opens a fresh one
// POST /api/conversations/{id}/close
func (h *DashboardHandler) CloseConversation(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conversationID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeJSON(w, NewErrorResponse(http.StatusBadRequest, "Invalid conversation ID"))
		return
	}

	if err := h.conversations.Close(ctx, conversationID); err != nil {
		slog.Error("Failed to close conversation", "error", err, "conversation_id", conversationID)
		writeJSON(w, NewErrorResponse(http.StatusInternalServerError, "Failed to close conversation"))
		return
	}

	writeJSON(w, NewSuccessResponse(map[string]interface{}{
		"conversation_id": conversationID,
		"status":          "closed",
	}))
}

// ============================================================================
// Autopilot Control
// ============================================================================

// AutopilotRequest represents the pause/resume payload
type AutopilotRequest struct {
	Reason string `json:"reason"`
	Actor  string `json:"actor"`
}

// PauseAutopilot stops automatic AI replies; inbound messages are still
// recorded while paused
// POST /api/autopilot/pause
func (h *DashboardHandler) PauseAutopilot(w http.ResponseWriter, r *http.Request) {
	var req AutopilotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, NewErrorResponse(http.StatusBadRequest, "Invalid request body"))
		return
	}
	if req.Actor == "" {
		req.Actor = "dashboard"
	}

	h.autopilot.Pause(req.Reason, req.Actor)
	writeJSON(w, NewSuccessResponse(h.autopilot.Status()))
}

// ResumeAutopilot re-enables automatic AI replies
// POST /api/autopilot/resume
func (h *DashboardHandler) ResumeAutopilot(w http.ResponseWriter, r *http.Request) {
	var req AutopilotRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req.Actor = "dashboard"
	}
	if req.Actor == "" {
		req.Actor = "dashboard"
	}

	h.autopilot.Resume(req.Actor)
	writeJSON(w, NewSuccessResponse(h.autopilot.Status()))
}

// GetAutopilotStatus returns the current autopilot state
// GET /api/autopilot/status
func (h *DashboardHandler) GetAutopilotStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, NewSuccessResponse(h.autopilot.Status()))
}

// ============================================================================
// System Health & Metrics
// ============================================================================

// SystemMetricsResponse represents system health data
type SystemMetricsResponse struct {
	CPUPercent        float64 `json:"cpu_percent"`
	RAMUsedGB         float64 `json:"ram_used_gb"`
	RAMTotalGB        float64 `json:"ram_total_gb"`
	RAMPercent        float64 `json:"ram_percent"`
	DiskUsedGB        float64 `json:"disk_used_gb"`
	DiskTotalGB       float64 `json:"disk_total_gb"`
	DiskPercent       float64 `json:"disk_percent"`
	GoroutinesCount   int     `json:"goroutines_count"`
	WatchdogActive    bool    `json:"watchdog_active"`
	WatchdogThreshold float64 `json:"watchdog_threshold"`
	DiskWarningLevel  string  `json:"disk_warning_level"` // "safe" | "warning" | "critical"
	Uptime            string  `json:"uptime"`
}

var appStartTime = time.Now()

// GetSystemMetrics returns current system health metrics
// GET /api/system/metrics
func (h *DashboardHandler) GetSystemMetrics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	// CPU usage (average over 1 second)
	cpuPercents, err := cpu.PercentWithContext(ctx, time.Second, false)
	var cpuPercent float64
	if err == nil && len(cpuPercents) > 0 {
		cpuPercent = cpuPercents[0]
	}

	memStat, err := mem.VirtualMemoryWithContext(ctx)
	var ramUsedGB, ramTotalGB, ramPercent float64
	if err == nil {
		ramUsedGB = float64(memStat.Used) / 1024 / 1024 / 1024
		ramTotalGB = float64(memStat.Total) / 1024 / 1024 / 1024
		ramPercent = memStat.UsedPercent
	}

	diskStat, err := disk.UsageWithContext(ctx, "/")
	var diskUsedGB, diskTotalGB, diskPercent float64
	if err == nil {
		diskUsedGB = float64(diskStat.Used) / 1024 / 1024 / 1024
		diskTotalGB = float64(diskStat.Total) / 1024 / 1024 / 1024
		diskPercent = diskStat.UsedPercent
	}

	watchdogThreshold := 70.0
	watchdogActive := diskPercent > watchdogThreshold

	var diskWarningLevel string
	switch {
	case diskPercent < 70:
		diskWarningLevel = "safe"
	case diskPercent < 80:
		diskWarningLevel = "warning"
	default:
		diskWarningLevel = "critical"
	}

	response := SystemMetricsResponse{
		CPUPercent:        roundTo2Decimals(cpuPercent),
		RAMUsedGB:         roundTo2Decimals(ramUsedGB),
		RAMTotalGB:        roundTo2Decimals(ramTotalGB),
		RAMPercent:        roundTo2Decimals(ramPercent),
		DiskUsedGB:        roundTo2Decimals(diskUsedGB),
		DiskTotalGB:       roundTo2Decimals(diskTotalGB),
		DiskPercent:       roundTo2Decimals(diskPercent),
		GoroutinesCount:   runtime.NumGoroutine(),
		WatchdogActive:    watchdogActive,
		WatchdogThreshold: watchdogThreshold,
		DiskWarningLevel:  diskWarningLevel,
		Uptime:            formatDuration(time.Since(appStartTime)),
	}

	writeJSON(w, NewSuccessResponse(response))
}

// ============================================================================
// Helpers
// ============================================================================

func roundTo2Decimals(val float64) float64 {
	return float64(int(val*100)) / 100
}

func formatDuration(d time.Duration) string {
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 24 {
		days := hours / 24
		hours = hours % 24
		return fmt.Sprintf("%dd %dh %dm", days, hours, minutes)
	}

	return fmt.Sprintf("%dh %dm", hours, minutes)
}
