package automation

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatlane/messaging-ingestion-service/internal/model"
	"github.com/chatlane/messaging-ingestion-service/internal/store"
)

// Engine evaluates a workspace's active automation rules against an
// inbound-message event.
type Engine struct {
	automations store.AutomationRepository
}

func NewEngine(automations store.AutomationRepository) *Engine {
	return &Engine{automations: automations}
}

// Match returns every active rule whose trigger fires for the event, in
// storage order. All matches fire; there is no short-circuit after the
// first, so independent automations can react to the same message.
func (e *Engine) Match(ctx context.Context, workspaceID uuid.UUID, event model.TriggerEvent) ([]model.Automation, error) {
	rules, err := e.automations.ListActive(ctx, workspaceID)
	if err != nil {
		return nil, err
	}

	var matched []model.Automation
	for _, rule := range rules {
		if triggerFires(rule, event) {
			matched = append(matched, rule)
		}
	}
	return matched, nil
}

func triggerFires(rule model.Automation, event model.TriggerEvent) bool {
	switch rule.Trigger {
	case model.TriggerKeywordMatch:
		keyword := strings.ToLower(rule.Conditions.Keyword)
		if keyword == "" {
			return false
		}
		return strings.Contains(strings.ToLower(event.Body), keyword)
	case model.TriggerNewContact:
		return event.IsFirstMessage
	case model.TriggerTagAdded:
		// Fired from the tag-mutation path, never from inbound messages.
		return false
	default:
		log.Warn().Str("automation_id", rule.ID.String()).Str("trigger", string(rule.Trigger)).Msg("Unknown automation trigger")
		return false
	}
}
