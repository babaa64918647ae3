package model

import (
	"time"

	"github.com/google/uuid"
)

// TriggerKind enumerates automation trigger variants. The engine matches
// them exhaustively; adding a kind means extending the switch there.
type TriggerKind string

const (
	// TriggerKeywordMatch fires when the rule keyword is a case-folded
	// substring of the inbound body.
	TriggerKeywordMatch TriggerKind = "keyword_match"
	// TriggerNewContact fires on the first inbound message of a conversation.
	TriggerNewContact TriggerKind = "new_contact"
	// TriggerTagAdded is evaluated from the tag-mutation path, not from the
	// inbound-message path.
	TriggerTagAdded TriggerKind = "tag_added"
)

// ActionKind enumerates automation action variants.
type ActionKind string

const (
	ActionSendMessage  ActionKind = "send_message"
	ActionSendTemplate ActionKind = "send_template"
	ActionAddTag       ActionKind = "add_tag"
	ActionAssignAgent  ActionKind = "assign_agent"
	ActionWebhook      ActionKind = "webhook"
)

// Action is one step of a rule's ordered action list. Value carries the
// reply body, tag, agent id or webhook URL depending on Kind.
type Action struct {
	Kind       ActionKind `json:"type"`
	Value      string     `json:"value"`
	TemplateID string     `json:"template_id,omitempty"`
}

// TriggerConditions holds the per-trigger configuration.
type TriggerConditions struct {
	Keyword string `json:"keyword,omitempty"`
}

// AutomationStatus gates whether a rule is evaluated at all.
type AutomationStatus string

const (
	AutomationActive   AutomationStatus = "active"
	AutomationInactive AutomationStatus = "inactive"
)

// Automation represents the automations table. The ingestion pipeline treats
// rules as read-only except for the Executions counter, which only increases.
type Automation struct {
	ID          uuid.UUID         `json:"id"`
	WorkspaceID uuid.UUID         `json:"workspace_id"`
	Name        string            `json:"name"`
	Trigger     TriggerKind       `json:"trigger"`
	Conditions  TriggerConditions `json:"conditions"`
	Actions     []Action          `json:"actions"`
	Status      AutomationStatus  `json:"status"`
	Executions  int64             `json:"executions"`
	CreatedAt   time.Time         `json:"created_at"`
}

// TriggerEvent is the inbound-message event automations are evaluated
// against. Its JSON form is embedded in the outbound webhook action payload.
type TriggerEvent struct {
	Body           string    `json:"body"`
	ConversationID uuid.UUID `json:"conversation_id"`
	IsFirstMessage bool      `json:"is_first_message"`
}
