// Package gateway implements external API adapters
// Following Hexagonal Architecture: Outbound adapters for external services
package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"leadrelay/internal/core/ports"
)

// Custom errors for specific WhatsApp Cloud API failures
var (
	// ErrTokenExpired indicates the access token is expired or invalid (code 190)
	ErrTokenExpired = errors.New("whatsapp access token expired or invalid")

	// ErrRateLimited indicates the Graph API rate limit was exceeded (code 4, 17, 32, 613)
	ErrRateLimited = errors.New("whatsapp rate limit exceeded")

	// ErrPermissionDenied indicates missing permissions (code 10, 200, 299)
	ErrPermissionDenied = errors.New("whatsapp permission denied")
)

var _ ports.Transport = (*WhatsAppClient)(nil)

// WhatsAppClient handles outbound communication with the WhatsApp Cloud API.
type WhatsAppClient struct {
	httpClient    *http.Client
	apiVersion    string
	accessToken   string
	phoneNumberID string
}

// NewWhatsAppClient creates a WhatsApp Cloud API client.
// phoneNumberID is the business phone number id messages are sent from.
func NewWhatsAppClient(accessToken, phoneNumberID, apiVersion string) *WhatsAppClient {
	if apiVersion == "" {
		apiVersion = "v18.0"
	}
	return &WhatsAppClient{
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		apiVersion:    apiVersion,
		accessToken:   accessToken,
		phoneNumberID: phoneNumberID,
	}
}

// SendTextRequest represents the Cloud API /messages payload structure
type SendTextRequest struct {
	MessagingProduct string `json:"messaging_product"` // always "whatsapp"
	RecipientType    string `json:"recipient_type"`    // "individual"
	To               string `json:"to"`
	Type             string `json:"type"` // "text"
	Text             struct {
		PreviewURL bool   `json:"preview_url"`
		Body       string `json:"body"`
	} `json:"text"`
}

// SendTextResponse represents the Cloud API's success response
type SendTextResponse struct {
	Messages []struct {
		ID string `json:"id"`
	} `json:"messages"`
}

// GraphError represents an error from the Graph API
type GraphError struct {
	Message      string `json:"message"`
	Type         string `json:"type"`
	Code         int    `json:"code"`
	ErrorSubcode int    `json:"error_subcode"`
	FBTraceID    string `json:"fbtrace_id"`
}

// SendText sends a text message to a WhatsApp user with retry mechanism.
//
// Returns specific errors:
// - ErrTokenExpired: Token invalid/expired (code 190)
// - ErrRateLimited: Rate limit exceeded (not retried here; provider backoff applies)
// - ErrPermissionDenied: Missing permissions
func (c *WhatsAppClient) SendText(ctx context.Context, waID, text string) error {
	const maxRetries = 3

	for attempt := 1; attempt <= maxRetries; attempt++ {
		err := c.sendTextAttempt(ctx, waID, text, attempt)

		if err == nil {
			return nil
		}

		// Don't retry on these specific errors
		if errors.Is(err, ErrTokenExpired) ||
			errors.Is(err, ErrPermissionDenied) ||
			errors.Is(err, ErrRateLimited) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Retry on network errors with backoff
		if attempt < maxRetries {
			backoff := time.Duration(attempt) * 500 * time.Millisecond
			slog.Warn("Retrying WhatsApp API call",
				"attempt", attempt,
				"max_retries", maxRetries,
				"backoff_ms", backoff.Milliseconds(),
				"error", err,
			)
			time.Sleep(backoff)
		}
	}

	return fmt.Errorf("failed after %d attempts", maxRetries)
}

// sendTextAttempt performs a single attempt to send the message
func (c *WhatsAppClient) sendTextAttempt(ctx context.Context, waID, text string, attempt int) error {
	url := fmt.Sprintf("https://graph.facebook.com/%s/%s/messages", c.apiVersion, c.phoneNumberID)

	payload := SendTextRequest{
		MessagingProduct: "whatsapp",
		RecipientType:    "individual",
		To:               waID,
		Type:             "text",
	}
	payload.Text.Body = text

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.accessToken)

	// Log outgoing request (without token)
	slog.Info("Sending message to WhatsApp",
		"wa_id", waID,
		"text_length", len(text),
		"attempt", attempt,
	)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		slog.Error("Failed to send request to WhatsApp",
			"error", err,
			"attempt", attempt,
		)
		return fmt.Errorf("whatsapp api request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiError struct {
			Error GraphError `json:"error"`
		}

		if err := json.Unmarshal(body, &apiError); err != nil {
			slog.Error("WhatsApp API error (unparseable)",
				"status_code", resp.StatusCode,
				"body", string(body),
			)
			return fmt.Errorf("whatsapp api error %d: %s", resp.StatusCode, string(body))
		}

		slog.Error("WhatsApp API error",
			"status_code", resp.StatusCode,
			"error_code", apiError.Error.Code,
			"error_message", apiError.Error.Message,
			"error_subcode", apiError.Error.ErrorSubcode,
			"fbtrace_id", apiError.Error.FBTraceID,
		)

		switch apiError.Error.Code {
		case 190: // Token expired/invalid
			return ErrTokenExpired
		case 4, 17, 32, 613: // Rate limiting
			return ErrRateLimited
		case 10, 200, 299: // Permission errors
			return ErrPermissionDenied
		case 100: // Invalid parameter
			return fmt.Errorf("invalid parameter: %s", apiError.Error.Message)
		default:
			return fmt.Errorf("whatsapp api error (code %d): %s", apiError.Error.Code, apiError.Error.Message)
		}
	}

	var sendResp SendTextResponse
	if err := json.Unmarshal(body, &sendResp); err != nil {
		slog.Warn("Failed to parse success response",
			"error", err,
			"body", string(body),
		)
		// HTTP 200 means the message was accepted
		return nil
	}

	providerID := ""
	if len(sendResp.Messages) > 0 {
		providerID = sendResp.Messages[0].ID
	}
	slog.Info("Message sent successfully",
		"wa_id", waID,
		"message_id", providerID,
		"attempt", attempt,
	)

	return nil
}
