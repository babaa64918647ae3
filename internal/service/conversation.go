package service

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/chatlane/messaging-ingestion-service/internal/model"
	"github.com/chatlane/messaging-ingestion-service/internal/store"
)

// ConversationTracker maintains the single active conversation per
// (workspace, contact) pair.
type ConversationTracker struct {
	conversations store.ConversationRepository
}

func NewConversationTracker(conversations store.ConversationRepository) *ConversationTracker {
	return &ConversationTracker{conversations: conversations}
}

// Resolve returns the contact's conversation, creating one on first inbound
// message. The second return value reports whether this call created it,
// which is what makes an inbound message the first of its conversation.
func (t *ConversationTracker) Resolve(ctx context.Context, contact *model.Contact) (*model.Conversation, bool, error) {
	conv, err := t.conversations.GetByContact(ctx, contact.WorkspaceID, contact.ID)
	if err != nil {
		return nil, false, err
	}
	if conv != nil {
		return conv, false, nil
	}

	conv = &model.Conversation{
		WorkspaceID:  contact.WorkspaceID,
		ContactID:    contact.ID,
		ContactName:  contact.Name,
		ContactPhone: contact.Phone,
		Status:       model.ConversationOpen,
	}
	err = t.conversations.Create(ctx, conv)
	if errors.Is(err, store.ErrConversationExists) {
		// Lost the create race to a concurrent inbound message; that
		// message is the first one, not this one.
		conv, err = t.conversations.GetByContact(ctx, contact.WorkspaceID, contact.ID)
		return conv, false, err
	}
	if err != nil {
		return nil, false, err
	}
	log.Info().Str("conversation_id", conv.ID.String()).Str("contact_id", contact.ID.String()).Msg("Opened conversation")
	return conv, true, nil
}

// RecordInbound reopens the conversation, bumps the unread counter and
// refreshes the last-message snapshot, atomically at the storage layer.
func (t *ConversationTracker) RecordInbound(ctx context.Context, conv *model.Conversation, body string, at time.Time) error {
	return t.conversations.RecordInbound(ctx, conv.WorkspaceID, conv.ID, model.Preview(body), at)
}

// RecordOutbound refreshes the last-message snapshot and reopens the
// conversation without touching the unread counter.
func (t *ConversationTracker) RecordOutbound(ctx context.Context, conv *model.Conversation, body string, at time.Time) error {
	return t.conversations.RecordOutbound(ctx, conv.WorkspaceID, conv.ID, model.Preview(body), at)
}
