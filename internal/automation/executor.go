package automation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatlane/messaging-ingestion-service/internal/model"
	"github.com/chatlane/messaging-ingestion-service/internal/monitoring"
	"github.com/chatlane/messaging-ingestion-service/internal/store"
)

// webhookTimeout bounds the outbound webhook action call.
const webhookTimeout = 5 * time.Second

// Job carries everything needed to execute the rules matched for one
// inbound message. Rule ids are in match order and run sequentially, so a
// later rule sees the effects of an earlier one.
type Job struct {
	WorkspaceID uuid.UUID          `json:"workspace_id"`
	RuleIDs     []uuid.UUID        `json:"rule_ids"`
	Event       model.TriggerEvent `json:"event"`
	ContactID   uuid.UUID          `json:"contact_id"`
}

// webhookBody is the payload POSTed by the webhook action.
type webhookBody struct {
	WorkspaceID    uuid.UUID          `json:"workspace_id"`
	AutomationName string             `json:"automation_name"`
	Message        model.TriggerEvent `json:"message"`
	Contact        *model.Contact     `json:"contact"`
}

// Executor runs automation actions. Side effects are best-effort and not
// transactional: a failing action is logged and the rest of the rule still
// runs, and the executions counter increments exactly once per rule.
type Executor struct {
	contacts      store.ContactRepository
	conversations store.ConversationRepository
	messages      store.MessageRepository
	automations   store.AutomationRepository
	client        *http.Client
}

func NewExecutor(contacts store.ContactRepository, conversations store.ConversationRepository, messages store.MessageRepository, automations store.AutomationRepository) *Executor {
	return &Executor{
		contacts:      contacts,
		conversations: conversations,
		messages:      messages,
		automations:   automations,
		client:        &http.Client{Timeout: webhookTimeout},
	}
}

// ExecuteJob loads the job's contact and rules and executes each rule in
// order. A rule that has been deleted or deactivated since matching is
// skipped. Returns an error only when nothing was executed, so queue
// retries stay safe.
func (e *Executor) ExecuteJob(ctx context.Context, job Job) error {
	contact, err := e.contacts.GetByID(ctx, job.WorkspaceID, job.ContactID)
	if err != nil {
		return fmt.Errorf("load contact %s: %w", job.ContactID, err)
	}
	if contact == nil {
		log.Warn().Str("contact_id", job.ContactID.String()).Msg("Automation job contact no longer exists")
		return nil
	}

	for _, ruleID := range job.RuleIDs {
		rule, err := e.automations.GetByID(ctx, job.WorkspaceID, ruleID)
		if err != nil {
			log.Error().Err(err).Str("automation_id", ruleID.String()).Msg("Failed to load automation rule")
			continue
		}
		if rule == nil {
			continue
		}
		e.Execute(ctx, rule, job.Event, contact)
	}
	return nil
}

// Execute runs the rule's actions sequentially in array order, then
// increments the executions counter regardless of action failures.
func (e *Executor) Execute(ctx context.Context, rule *model.Automation, event model.TriggerEvent, contact *model.Contact) {
	log.Info().Str("automation_id", rule.ID.String()).Str("name", rule.Name).Msg("Executing automation")

	for _, action := range rule.Actions {
		if err := e.runAction(ctx, rule, action, event, contact); err != nil {
			log.Error().Err(err).
				Str("automation_id", rule.ID.String()).
				Str("action", string(action.Kind)).
				Msg("Automation action failed")
		}
	}

	if err := e.automations.IncrementExecutions(ctx, rule.WorkspaceID, rule.ID); err != nil {
		log.Error().Err(err).Str("automation_id", rule.ID.String()).Msg("Failed to increment automation executions")
	}
	monitoring.AutomationRuns.WithLabelValues(string(rule.Trigger)).Inc()
}

// runAction never panics out: a panicking action is converted to an error
// so the remaining actions still run.
func (e *Executor) runAction(ctx context.Context, rule *model.Automation, action model.Action, event model.TriggerEvent, contact *model.Contact) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action panicked: %v", r)
		}
	}()

	switch action.Kind {
	case model.ActionSendMessage, model.ActionSendTemplate:
		return e.sendReply(ctx, rule.WorkspaceID, contact, action)
	case model.ActionAddTag:
		return e.contacts.AddTag(ctx, rule.WorkspaceID, contact.ID, action.Value)
	case model.ActionAssignAgent:
		return e.conversations.Assign(ctx, rule.WorkspaceID, event.ConversationID, action.Value)
	case model.ActionWebhook:
		return e.callWebhook(ctx, action.Value, webhookBody{
			WorkspaceID:    rule.WorkspaceID,
			AutomationName: rule.Name,
			Message:        event,
			Contact:        contact,
		})
	default:
		log.Warn().Str("automation_id", rule.ID.String()).Str("action", string(action.Kind)).Msg("Unknown automation action")
		return nil
	}
}

// sendReply appends an outbound message into the contact's conversation.
// No conversation means nothing to reply into; that is a silent no-op.
func (e *Executor) sendReply(ctx context.Context, workspaceID uuid.UUID, contact *model.Contact, action model.Action) error {
	conv, err := e.conversations.GetByContact(ctx, workspaceID, contact.ID)
	if err != nil {
		return err
	}
	if conv == nil {
		return nil
	}

	msgType := model.MessageText
	if action.TemplateID != "" {
		msgType = model.MessageTemplate
	}
	now := time.Now()
	msg := &model.Message{
		ConversationID: conv.ID,
		WorkspaceID:    workspaceID,
		Direction:      model.DirectionOut,
		Type:           msgType,
		Body:           action.Value,
		TemplateID:     action.TemplateID,
		Status:         model.StatusSent,
		SenderID:       model.SenderAutomation,
		CreatedAt:      now,
	}
	if err := e.messages.Append(ctx, msg); err != nil {
		return err
	}
	return e.conversations.RecordOutbound(ctx, workspaceID, conv.ID, model.Preview(action.Value), now)
}

func (e *Executor) callWebhook(ctx context.Context, url string, body webhookBody) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, webhookTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook %s returned status %d", url, resp.StatusCode)
	}
	return nil
}
