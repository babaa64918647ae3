package service

import "github.com/chatlane/messaging-ingestion-service/internal/model"

// WebhookPayload is the provider delivery format: entries containing
// changes, each carrying either new inbound messages or delivery-status
// updates for previously sent messages.
type WebhookPayload struct {
	Object string  `json:"object"`
	Entry  []Entry `json:"entry"`
}

type Entry struct {
	ID      string   `json:"id"`
	Changes []Change `json:"changes"`
}

type Change struct {
	Field string      `json:"field"`
	Value ChangeValue `json:"value"`
}

type ChangeValue struct {
	Metadata Metadata         `json:"metadata"`
	Contacts []PayloadContact `json:"contacts"`
	Messages []InboundMessage `json:"messages"`
	Statuses []StatusUpdate   `json:"statuses"`
}

type Metadata struct {
	DisplayPhoneNumber string `json:"display_phone_number"`
	PhoneNumberID      string `json:"phone_number_id"`
}

type PayloadContact struct {
	WaID    string  `json:"wa_id"`
	Profile Profile `json:"profile"`
}

type Profile struct {
	Name string `json:"name"`
}

type InboundMessage struct {
	From        string              `json:"from"`
	ID          string              `json:"id"`
	Timestamp   string              `json:"timestamp"`
	Type        string              `json:"type"`
	Text        *TextContent        `json:"text,omitempty"`
	Button      *ButtonContent      `json:"button,omitempty"`
	Interactive *InteractiveContent `json:"interactive,omitempty"`
}

type TextContent struct {
	Body string `json:"body"`
}

type ButtonContent struct {
	Text    string `json:"text"`
	Payload string `json:"payload"`
}

type InteractiveContent struct {
	Type        string        `json:"type"`
	ButtonReply *ReplyContent `json:"button_reply,omitempty"`
	ListReply   *ReplyContent `json:"list_reply,omitempty"`
}

type ReplyContent struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

type StatusUpdate struct {
	ID          string `json:"id"`
	Status      string `json:"status"`
	RecipientID string `json:"recipient_id"`
}

// BodyText extracts the displayable body for the message type. Types
// without a text representation (media and unknown kinds) yield an empty
// body; the message is still ledgered.
func (m *InboundMessage) BodyText() string {
	switch model.MessageType(m.Type) {
	case model.MessageText:
		if m.Text != nil {
			return m.Text.Body
		}
	case model.MessageButton:
		if m.Button != nil {
			return m.Button.Text
		}
	case model.MessageInteractive:
		if m.Interactive == nil {
			return ""
		}
		switch m.Interactive.Type {
		case "button_reply":
			if m.Interactive.ButtonReply != nil {
				return m.Interactive.ButtonReply.Title
			}
		case "list_reply":
			if m.Interactive.ListReply != nil {
				return m.Interactive.ListReply.Title
			}
		}
	}
	return ""
}

// ProfileName returns the display name the provider attached to the
// payload, falling back to empty when absent.
func (v *ChangeValue) ProfileName() string {
	if len(v.Contacts) > 0 {
		return v.Contacts[0].Profile.Name
	}
	return ""
}
