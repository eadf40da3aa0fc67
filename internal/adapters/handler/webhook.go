// Package handler implements HTTP request handlers
// Following Hexagonal Architecture: Adapters translate HTTP to domain logic
package handler

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"leadrelay/internal/core/services"
)

// WebhookHandler handles WhatsApp webhook verification and delivery.
//
// POST stays synchronous through the durable inbound record: a storage
// failure surfaces as 500 so the provider redelivers; only the reply leg
// runs in the background (inside the dispatcher).
type WebhookHandler struct {
	dispatcher  *services.Dispatcher
	appSecret   string // For HMAC signature validation
	verifyToken string // For webhook verification
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(dispatcher *services.Dispatcher, appSecret, verifyToken string) *WebhookHandler {
	return &WebhookHandler{
		dispatcher:  dispatcher,
		appSecret:   appSecret,
		verifyToken: verifyToken,
	}
}

// ============================================================================
// GET /webhook - Webhook Verification
// ============================================================================

// HandleVerify handles the webhook verification challenge.
// Ref: https://developers.facebook.com/docs/graph-api/webhooks/getting-started#verification-requests
func (h *WebhookHandler) HandleVerify(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("hub.mode")
	token := r.URL.Query().Get("hub.verify_token")
	challenge := r.URL.Query().Get("hub.challenge")

	if mode == "" || token == "" || challenge == "" {
		slog.Warn("Webhook verification request missing parameters")
		http.Error(w, "Bad Request - Missing parameters", http.StatusBadRequest)
		return
	}

	if mode == "subscribe" && token == h.verifyToken {
		slog.Info("Webhook verification successful")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(challenge))
		return
	}

	slog.Warn("Webhook verification failed", "mode", mode)
	http.Error(w, "Forbidden", http.StatusForbidden)
}

// ============================================================================
// POST /webhook - Webhook Events
// ============================================================================

// HandleEvent handles an incoming WhatsApp webhook delivery.
// The HMAC signature is validated before any processing; deliveries
// that fail durable storage get a 500 so the provider retries them.
func (h *WebhookHandler) HandleEvent(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		slog.Error("Failed to read webhook body", "error", err)
		http.Error(w, "Bad Request", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if h.appSecret == "" {
		// Refuse to guess: without a secret no delivery can be authenticated.
		slog.Error("Webhook received but no app secret configured")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if signature == "" {
		slog.Warn("Webhook received without signature header")
		http.Error(w, "Bad Request - No signature", http.StatusBadRequest)
		return
	}

	if !h.validateSignature(body, signature) {
		slog.Warn("Webhook signature validation failed")
		http.Error(w, "Forbidden - Invalid signature", http.StatusForbidden)
		return
	}

	outcome, err := h.dispatcher.Ingest(r.Context(), "whatsapp", body)
	if err != nil {
		slog.Error("Webhook processing failed", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	if outcome == services.OutcomeUnsupported {
		http.Error(w, "Bad Request - Unrecognized payload", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)
	w.Write([]byte("EVENT_RECEIVED"))
}

// ============================================================================
// HMAC Signature Validation
// ============================================================================

// validateSignature validates the HMAC SHA256 signature over the raw body.
// Ref: https://developers.facebook.com/docs/graph-api/webhooks/getting-started#validating-payloads
func (h *WebhookHandler) validateSignature(payload []byte, signatureHeader string) bool {
	// Signature arrives as "sha256=<hex_signature>"
	const prefix = "sha256="
	if !strings.HasPrefix(signatureHeader, prefix) {
		slog.Warn("Invalid signature format - missing sha256= prefix")
		return false
	}

	expectedSignature := strings.TrimPrefix(signatureHeader, prefix)

	mac := hmac.New(sha256.New, []byte(h.appSecret))
	mac.Write(payload)
	computedSignature := hex.EncodeToString(mac.Sum(nil))

	// Constant-time comparison to prevent timing attacks
	return hmac.Equal(
		[]byte(computedSignature),
		[]byte(expectedSignature),
	)
}
