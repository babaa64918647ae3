package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/chatlane/messaging-ingestion-service/internal/model"
	"github.com/chatlane/messaging-ingestion-service/internal/store"
)

// ErrNoWorkspace reports an inbound message whose channel could not be
// mapped to any workspace and no default workspace is configured.
var ErrNoWorkspace = errors.New("service: no workspace for inbound channel")

// ContactSource is recorded on contacts created by the inbound channel.
const ContactSource = "whatsapp"

// IdentityResolver maps an inbound sender address to a workspace and a
// contact record, creating the contact if absent. Repeated calls with the
// same address return the same contact.
type IdentityResolver struct {
	workspaces store.WorkspaceRepository
	contacts   store.ContactRepository
	// defaultWorkspace is the explicit fallback used when no channel
	// connection matches the inbound display phone. uuid.Nil disables the
	// fallback and such messages are rejected.
	defaultWorkspace uuid.UUID
}

func NewIdentityResolver(workspaces store.WorkspaceRepository, contacts store.ContactRepository, defaultWorkspace uuid.UUID) *IdentityResolver {
	return &IdentityResolver{
		workspaces:       workspaces,
		contacts:         contacts,
		defaultWorkspace: defaultWorkspace,
	}
}

// ResolveWorkspace selects the workspace for an inbound channel: a channel
// connection matching the displayed phone number wins, then the configured
// default workspace.
func (r *IdentityResolver) ResolveWorkspace(ctx context.Context, displayPhone string) (uuid.UUID, error) {
	conn, err := r.workspaces.FindConnectionByDisplayPhone(ctx, displayPhone)
	if err != nil {
		return uuid.Nil, err
	}
	if conn != nil {
		return conn.WorkspaceID, nil
	}
	if r.defaultWorkspace != uuid.Nil {
		return r.defaultWorkspace, nil
	}
	log.Warn().Str("display_phone", displayPhone).Msg("No channel connection matches inbound number and no default workspace is configured")
	return uuid.Nil, ErrNoWorkspace
}

// Resolve returns the contact for (workspace, phone), creating one on first
// contact. Creation and lookup are race-safe: losing the create race falls
// back to the winner's row.
func (r *IdentityResolver) Resolve(ctx context.Context, workspaceID uuid.UUID, phone, displayName string) (*model.Contact, error) {
	contact, err := r.contacts.GetByPhone(ctx, workspaceID, phone)
	if err != nil {
		return nil, err
	}
	if contact != nil {
		if err := r.contacts.TouchLastSeen(ctx, workspaceID, contact.ID, time.Now()); err != nil {
			log.Error().Err(err).Str("contact_id", contact.ID.String()).Msg("Failed to update contact last-seen")
		}
		return contact, nil
	}

	name := displayName
	if name == "" {
		name = phone
	}
	contact = &model.Contact{
		WorkspaceID: workspaceID,
		Phone:       phone,
		Name:        name,
		Tags:        []string{},
		Source:      ContactSource,
	}
	err = r.contacts.Create(ctx, contact)
	if errors.Is(err, store.ErrContactExists) {
		return r.contacts.GetByPhone(ctx, workspaceID, phone)
	}
	if err != nil {
		return nil, err
	}
	log.Info().Str("workspace_id", workspaceID.String()).Str("contact_id", contact.ID.String()).Msg("Created contact from inbound message")
	return contact, nil
}
