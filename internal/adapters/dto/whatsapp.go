// Package dto contains data transfer objects for external APIs.
// Separating DTOs from handlers prevents import cycles.
package dto

// WhatsAppWebhookRequest is the top-level webhook payload from the WhatsApp
// Business (Cloud API) platform.
// Ref: https://developers.facebook.com/docs/whatsapp/cloud-api/webhooks
type WhatsAppWebhookRequest struct {
	Object string          `json:"object"` // "whatsapp_business_account"
	Entry  []WhatsAppEntry `json:"entry"`
}

// WhatsAppEntry groups the change notifications for one business account.
type WhatsAppEntry struct {
	ID      string           `json:"id"`
	Changes []WhatsAppChange `json:"changes"`
}

// WhatsAppChange wraps one field-level change; messages arrive under the
// "messages" field.
type WhatsAppChange struct {
	Field string        `json:"field"`
	Value WhatsAppValue `json:"value"`
}

// WhatsAppValue carries either inbound messages (with contacts) or delivery/
// read status updates, never both.
type WhatsAppValue struct {
	MessagingProduct string            `json:"messaging_product"`
	Metadata         WhatsAppMetadata  `json:"metadata"`
	Contacts         []WhatsAppContact `json:"contacts,omitempty"`
	Messages         []WhatsAppMessage `json:"messages,omitempty"`
	Statuses         []WhatsAppStatus  `json:"statuses,omitempty"`
}

// WhatsAppMetadata identifies the receiving business phone number.
type WhatsAppMetadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

// WhatsAppContact carries the sender's wa_id and profile name.
type WhatsAppContact struct {
	WaID    string          `json:"wa_id"`
	Profile WhatsAppProfile `json:"profile"`
}

type WhatsAppProfile struct {
	Name string `json:"name"`
}

// WhatsAppMessage is a single inbound message. Exactly one of the payload
// pointers is set, matching Type.
type WhatsAppMessage struct {
	From      string `json:"from"` // sender wa_id
	ID        string `json:"id"`   // provider message id (dedup key)
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"` // "text", "image", "audio", ...

	Text        *WhatsAppText        `json:"text,omitempty"`
	Image       *WhatsAppMedia       `json:"image,omitempty"`
	Audio       *WhatsAppMedia       `json:"audio,omitempty"`
	Video       *WhatsAppMedia       `json:"video,omitempty"`
	Document    *WhatsAppMedia       `json:"document,omitempty"`
	Sticker     *WhatsAppMedia       `json:"sticker,omitempty"`
	Interactive *WhatsAppInteractive `json:"interactive,omitempty"`
}

type WhatsAppText struct {
	Body string `json:"body"`
}

// WhatsAppMedia references an uploaded media object; the binary itself is
// fetched separately and passed through as opaque payload.
type WhatsAppMedia struct {
	ID       string `json:"id"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
	Filename string `json:"filename,omitempty"`
}

// WhatsAppInteractive is a button or list reply.
type WhatsAppInteractive struct {
	Type        string                    `json:"type"`
	ButtonReply *WhatsAppInteractiveReply `json:"button_reply,omitempty"`
	ListReply   *WhatsAppInteractiveReply `json:"list_reply,omitempty"`
}

type WhatsAppInteractiveReply struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// WhatsAppStatus is a delivery/read receipt for a previously sent message.
// These are acknowledged without further processing.
type WhatsAppStatus struct {
	ID          string `json:"id"`
	Status      string `json:"status"` // "sent", "delivered", "read", "failed"
	Timestamp   string `json:"timestamp"`
	RecipientID string `json:"recipient_id"`
}

// ReplyText extracts the human-readable reply title from an interactive
// payload, or "" when absent.
func (i *WhatsAppInteractive) ReplyText() string {
	if i == nil {
		return ""
	}
	if i.ButtonReply != nil {
		return i.ButtonReply.Title
	}
	if i.ListReply != nil {
		return i.ListReply.Title
	}
	return ""
}
