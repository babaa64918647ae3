package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatlane/messaging-ingestion-service/internal/automation"
	"github.com/chatlane/messaging-ingestion-service/internal/model"
	"github.com/chatlane/messaging-ingestion-service/internal/monitoring"
	"github.com/chatlane/messaging-ingestion-service/internal/store"
)

// Pipeline orchestrates inbound webhook processing: identity resolution,
// conversation tracking, ledger append and automation dispatch. It is
// at-least-once and best-effort: effects of earlier stages are not undone
// when a later stage fails, and every stage is safe to re-run because the
// ledger append deduplicates on the provider message id.
type Pipeline struct {
	identity   *IdentityResolver
	tracker    *ConversationTracker
	messages   store.MessageRepository
	engine     *automation.Engine
	dispatcher automation.Dispatcher
}

func NewPipeline(identity *IdentityResolver, tracker *ConversationTracker, messages store.MessageRepository, engine *automation.Engine, dispatcher automation.Dispatcher) *Pipeline {
	return &Pipeline{
		identity:   identity,
		tracker:    tracker,
		messages:   messages,
		engine:     engine,
		dispatcher: dispatcher,
	}
}

// Process walks every entry and change of a provider payload. Failures are
// contained per message: one bad message never aborts its siblings, and the
// caller always acknowledges the payload.
func (p *Pipeline) Process(ctx context.Context, payload *WebhookPayload) {
	for _, entry := range payload.Entry {
		for _, change := range entry.Changes {
			value := change.Value

			for _, status := range value.Statuses {
				p.applyStatus(ctx, value.Metadata, status)
			}

			for i := range value.Messages {
				if err := p.handleMessage(ctx, &value, &value.Messages[i]); err != nil {
					log.Error().Err(err).Str("external_id", value.Messages[i].ID).Msg("Failed to process inbound message")
				}
			}
		}
	}
}

// applyStatus correlates a delivery-status update with a previously sent
// message. Unknown external ids and unresolvable channels are no-ops; the
// provider may report statuses for messages outside retention.
func (p *Pipeline) applyStatus(ctx context.Context, metadata Metadata, status StatusUpdate) {
	workspaceID, err := p.identity.ResolveWorkspace(ctx, metadata.DisplayPhoneNumber)
	if err != nil {
		if !errors.Is(err, ErrNoWorkspace) {
			log.Error().Err(err).Str("external_id", status.ID).Msg("Failed to resolve workspace for status update")
		}
		return
	}
	if err := p.messages.MarkStatus(ctx, workspaceID, status.ID, model.DeliveryStatus(status.Status)); err != nil {
		log.Error().Err(err).Str("external_id", status.ID).Msg("Failed to apply delivery status")
		return
	}
	monitoring.StatusUpdates.Inc()
}

// handleMessage runs one inbound message through the full pipeline. A panic
// anywhere inside is recovered here so siblings in the same payload keep
// processing.
func (p *Pipeline) handleMessage(ctx context.Context, value *ChangeValue, msg *InboundMessage) (err error) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic processing message: %v", r)
			monitoring.MessagesIngested.WithLabelValues("failed").Inc()
		}
		monitoring.IngestDuration.Observe(time.Since(start).Seconds())
	}()

	workspaceID, err := p.identity.ResolveWorkspace(ctx, value.Metadata.DisplayPhoneNumber)
	if err != nil {
		monitoring.MessagesIngested.WithLabelValues("rejected").Inc()
		return err
	}

	contact, err := p.identity.Resolve(ctx, workspaceID, msg.From, value.ProfileName())
	if err != nil {
		monitoring.MessagesIngested.WithLabelValues("failed").Inc()
		return fmt.Errorf("resolve contact: %w", err)
	}

	conv, isFirstMessage, err := p.tracker.Resolve(ctx, contact)
	if err != nil {
		monitoring.MessagesIngested.WithLabelValues("failed").Inc()
		return fmt.Errorf("resolve conversation: %w", err)
	}

	body := msg.BodyText()
	now := time.Now()
	err = p.messages.Append(ctx, &model.Message{
		ExternalID:     msg.ID,
		ConversationID: conv.ID,
		WorkspaceID:    workspaceID,
		Direction:      model.DirectionIn,
		Type:           model.MessageType(msg.Type),
		Body:           body,
		CreatedAt:      now,
	})
	if errors.Is(err, store.ErrDuplicateMessage) {
		// Provider retry. The message is already ledgered, the unread
		// counter already bumped and automations already dispatched, so the
		// rest of the pipeline is skipped.
		log.Debug().Str("external_id", msg.ID).Msg("Duplicate inbound message skipped")
		monitoring.MessagesIngested.WithLabelValues("duplicate").Inc()
		return nil
	}
	if err != nil {
		monitoring.MessagesIngested.WithLabelValues("failed").Inc()
		return fmt.Errorf("append message: %w", err)
	}

	if err := p.tracker.RecordInbound(ctx, conv, body, now); err != nil {
		monitoring.MessagesIngested.WithLabelValues("failed").Inc()
		return fmt.Errorf("record inbound: %w", err)
	}

	event := model.TriggerEvent{
		Body:           body,
		ConversationID: conv.ID,
		IsFirstMessage: isFirstMessage,
	}
	if err := p.dispatchAutomations(ctx, workspaceID, event, contact.ID); err != nil {
		// Automation problems are observability concerns, not ingestion
		// failures: the message itself is fully applied.
		log.Error().Err(err).Str("external_id", msg.ID).Msg("Failed to dispatch automations")
	}

	monitoring.MessagesIngested.WithLabelValues("ok").Inc()
	return nil
}

func (p *Pipeline) dispatchAutomations(ctx context.Context, workspaceID uuid.UUID, event model.TriggerEvent, contactID uuid.UUID) error {
	matched, err := p.engine.Match(ctx, workspaceID, event)
	if err != nil {
		return fmt.Errorf("match rules: %w", err)
	}
	if len(matched) == 0 {
		return nil
	}

	ruleIDs := make([]uuid.UUID, len(matched))
	for i, rule := range matched {
		ruleIDs[i] = rule.ID
	}
	return p.dispatcher.Dispatch(ctx, automation.Job{
		WorkspaceID: workspaceID,
		RuleIDs:     ruleIDs,
		Event:       event,
		ContactID:   contactID,
	})
}
