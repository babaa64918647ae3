package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/chatlane/messaging-ingestion-service/internal/model"
)

// Sentinel errors shared by all repository implementations.
var (
	// ErrDuplicateMessage reports an inbound append whose
	// (workspace, external id) pair is already ledgered. This is the dedup
	// boundary for provider webhook retries, not a failure.
	ErrDuplicateMessage = errors.New("store: duplicate external message id")

	// ErrContactExists reports a create that lost the race for a
	// (workspace, phone) pair. Callers re-read and continue.
	ErrContactExists = errors.New("store: contact already exists")

	// ErrConversationExists reports a create that lost the race for a
	// (workspace, contact) pair. Callers re-read and continue.
	ErrConversationExists = errors.New("store: conversation already exists")
)

// WorkspaceRepository resolves workspaces and their channel connections.
type WorkspaceRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Workspace, error)
	// FindConnectionByDisplayPhone matches a channel connection whose
	// display phone contains the given number. Returns (nil, nil) when no
	// connection matches.
	FindConnectionByDisplayPhone(ctx context.Context, displayPhone string) (*model.ChannelConnection, error)
	// UpsertConnection inserts or replaces the single connection of a
	// workspace, encrypting the access token at rest.
	UpsertConnection(ctx context.Context, conn *model.ChannelConnection) error
}

// ContactRepository persists contacts. Lookups are scoped to one workspace.
type ContactRepository interface {
	GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*model.Contact, error)
	GetByPhone(ctx context.Context, workspaceID uuid.UUID, phone string) (*model.Contact, error)
	Create(ctx context.Context, contact *model.Contact) error
	// AddTag adds tag to the contact's tag set; adding an existing tag is a
	// no-op.
	AddTag(ctx context.Context, workspaceID, contactID uuid.UUID, tag string) error
	TouchLastSeen(ctx context.Context, workspaceID, contactID uuid.UUID, at time.Time) error
}

// ConversationRepository persists conversation threads. All mutations go
// through these narrow methods so the unread-count and status invariants
// stay local to the storage layer.
type ConversationRepository interface {
	GetByContact(ctx context.Context, workspaceID, contactID uuid.UUID) (*model.Conversation, error)
	GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*model.Conversation, error)
	Create(ctx context.Context, conv *model.Conversation) error
	// RecordInbound atomically reopens the conversation, updates the
	// last-message snapshot and increments the unread counter by one.
	// Concurrent calls for the same conversation must not lose increments.
	RecordInbound(ctx context.Context, workspaceID, id uuid.UUID, preview string, at time.Time) error
	// RecordOutbound updates the last-message snapshot and reopens the
	// conversation without touching the unread counter.
	RecordOutbound(ctx context.Context, workspaceID, id uuid.UUID, preview string, at time.Time) error
	Assign(ctx context.Context, workspaceID, id uuid.UUID, agentID string) error
	SetStatus(ctx context.Context, workspaceID, id uuid.UUID, status model.ConversationStatus) error
	// MarkRead resets the unread counter to zero.
	MarkRead(ctx context.Context, workspaceID, id uuid.UUID) error
}

// MessageRepository is the append-only message ledger.
type MessageRepository interface {
	// Append inserts a message. For inbound messages carrying an external
	// id it returns ErrDuplicateMessage when that id is already ledgered
	// for the workspace.
	Append(ctx context.Context, msg *model.Message) error
	// MarkStatus updates the delivery status of the outbound message with
	// the given external id. Unknown ids are a silent no-op.
	MarkStatus(ctx context.Context, workspaceID uuid.UUID, externalID string, status model.DeliveryStatus) error
	// ListRecent returns the most recent limit messages of a conversation
	// in ascending creation order.
	ListRecent(ctx context.Context, workspaceID, conversationID uuid.UUID, limit int) ([]model.Message, error)
}

// AutomationRepository reads automation rules. The pipeline never mutates
// rules except through IncrementExecutions.
type AutomationRepository interface {
	// ListActive returns the active rules of a workspace in storage order.
	ListActive(ctx context.Context, workspaceID uuid.UUID) ([]model.Automation, error)
	GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*model.Automation, error)
	IncrementExecutions(ctx context.Context, workspaceID, id uuid.UUID) error
}
