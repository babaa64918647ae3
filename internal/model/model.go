package model

import (
	"time"

	"github.com/google/uuid"
)

// Workspace represents the workspaces table. A workspace is an isolated
// customer account; every other entity is scoped to exactly one workspace.
type Workspace struct {
	ID                uuid.UUID  `json:"id"`
	Name              string     `json:"name"`
	PlanTier          string     `json:"plan_tier"`
	TrialEndsAt       *time.Time `json:"trial_ends_at,omitempty"`
	WhatsappConnected bool       `json:"whatsapp_connected"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// ChannelConnection binds a workspace to a WhatsApp Business number.
// At most one connection exists per workspace. The provider access token
// is encrypted at rest; the plaintext is transient and never serialized.
type ChannelConnection struct {
	ID             uuid.UUID `json:"id"`
	WorkspaceID    uuid.UUID `json:"workspace_id"`
	WabaID         string    `json:"waba_id"`
	PhoneNumberID  string    `json:"phone_number_id"`
	DisplayPhone   string    `json:"display_phone"`
	QualityRating  string    `json:"quality_rating"`
	AccessToken    string    `json:"-"` // plaintext (transient, not stored in DB)
	EncryptedToken []byte    `json:"-"` // stored in DB
	TokenNonce     []byte    `json:"-"` // stored in DB
	Status         string    `json:"status"`
	ConnectedAt    time.Time `json:"connected_at"`
}

// Contact represents the contacts table.
type Contact struct {
	ID          uuid.UUID `json:"id"`
	WorkspaceID uuid.UUID `json:"workspace_id"`
	Phone       string    `json:"phone"`
	Name        string    `json:"name"`
	Tags        []string  `json:"tags"`
	Source      string    `json:"source"`
	CreatedAt   time.Time `json:"created_at"`
	LastSeenAt  time.Time `json:"last_seen_at"`
}

// ConversationStatus is the lifecycle state of a conversation thread.
type ConversationStatus string

const (
	ConversationOpen   ConversationStatus = "open"
	ConversationClosed ConversationStatus = "closed"
)

// Conversation is the single ongoing thread between a workspace and one
// contact. At most one conversation exists per (workspace, contact) pair.
type Conversation struct {
	ID            uuid.UUID          `json:"id"`
	WorkspaceID   uuid.UUID          `json:"workspace_id"`
	ContactID     uuid.UUID          `json:"contact_id"`
	ContactName   string             `json:"contact_name"`
	ContactPhone  string             `json:"contact_phone"`
	Status        ConversationStatus `json:"status"`
	AssignedTo    string             `json:"assigned_to"` // agent id, empty when unassigned
	UnreadCount   int                `json:"unread_count"`
	LastMessage   string             `json:"last_message"`
	LastMessageAt *time.Time         `json:"last_message_at,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}

// Direction of a message relative to the platform.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// MessageType mirrors the provider message types.
type MessageType string

const (
	MessageText        MessageType = "text"
	MessageTemplate    MessageType = "template"
	MessageMedia       MessageType = "media"
	MessageButton      MessageType = "button"
	MessageInteractive MessageType = "interactive"
)

// DeliveryStatus tracks provider delivery reports for outbound messages.
type DeliveryStatus string

const (
	StatusSent      DeliveryStatus = "sent"
	StatusDelivered DeliveryStatus = "delivered"
	StatusRead      DeliveryStatus = "read"
	StatusFailed    DeliveryStatus = "failed"
)

// SenderAutomation marks outbound messages produced by automation rules.
const SenderAutomation = "system_automation"

// Message represents the messages table. Immutable once created except for
// Status, which later delivery-status events update. ExternalID is the
// provider-assigned id; for inbound messages it is the idempotency key.
type Message struct {
	ID             uuid.UUID      `json:"id"`
	ExternalID     string         `json:"external_id,omitempty"`
	ConversationID uuid.UUID      `json:"conversation_id"`
	WorkspaceID    uuid.UUID      `json:"workspace_id"`
	Direction      Direction      `json:"direction"`
	Type           MessageType    `json:"type"`
	Body           string         `json:"body"`
	TemplateID     string         `json:"template_id,omitempty"`
	Status         DeliveryStatus `json:"status,omitempty"` // outbound only
	SenderID       string         `json:"sender_id,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
}

// PreviewLength bounds the conversation last-message snapshot.
const PreviewLength = 50

// Preview truncates body to the snapshot length without splitting runes.
func Preview(body string) string {
	runes := []rune(body)
	if len(runes) <= PreviewLength {
		return body
	}
	return string(runes[:PreviewLength])
}
