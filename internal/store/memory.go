package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/chatlane/messaging-ingestion-service/internal/model"
)

// Memory holds all repositories backed by process memory. It is used by the
// unit tests and by the server when no database is configured. All methods
// return copies so callers never alias stored state.
type Memory struct {
	mu sync.Mutex

	workspaces    map[uuid.UUID]*model.Workspace
	connections   []*model.ChannelConnection
	contacts      map[uuid.UUID]*model.Contact
	conversations map[uuid.UUID]*model.Conversation
	messages      []*model.Message
	automations   []*model.Automation

	Workspaces    *MemoryWorkspaces
	Contacts      *MemoryContacts
	Conversations *MemoryConversations
	Messages      *MemoryMessages
	Automations   *MemoryAutomations
}

func NewMemory() *Memory {
	m := &Memory{
		workspaces:    make(map[uuid.UUID]*model.Workspace),
		contacts:      make(map[uuid.UUID]*model.Contact),
		conversations: make(map[uuid.UUID]*model.Conversation),
	}
	m.Workspaces = &MemoryWorkspaces{m: m}
	m.Contacts = &MemoryContacts{m: m}
	m.Conversations = &MemoryConversations{m: m}
	m.Messages = &MemoryMessages{m: m}
	m.Automations = &MemoryAutomations{m: m}
	return m
}

// SeedWorkspace registers a workspace, assigning an id if absent.
func (m *Memory) SeedWorkspace(ws *model.Workspace) *model.Workspace {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ws.ID == uuid.Nil {
		ws.ID = uuid.New()
	}
	copied := *ws
	m.workspaces[ws.ID] = &copied
	return ws
}

// SeedConnection registers a channel connection.
func (m *Memory) SeedConnection(conn *model.ChannelConnection) *model.ChannelConnection {
	m.mu.Lock()
	defer m.mu.Unlock()
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	copied := *conn
	m.connections = append(m.connections, &copied)
	return conn
}

// SeedAutomation registers an automation rule; insertion order is the
// storage order the engine evaluates in.
func (m *Memory) SeedAutomation(auto *model.Automation) *model.Automation {
	m.mu.Lock()
	defer m.mu.Unlock()
	if auto.ID == uuid.Nil {
		auto.ID = uuid.New()
	}
	copied := *auto
	copied.Actions = append([]model.Action(nil), auto.Actions...)
	m.automations = append(m.automations, &copied)
	return auto
}

func copyContact(c *model.Contact) *model.Contact {
	copied := *c
	copied.Tags = append([]string(nil), c.Tags...)
	return &copied
}

func copyConversation(c *model.Conversation) *model.Conversation {
	copied := *c
	if c.LastMessageAt != nil {
		at := *c.LastMessageAt
		copied.LastMessageAt = &at
	}
	return &copied
}

func copyAutomation(a *model.Automation) *model.Automation {
	copied := *a
	copied.Actions = append([]model.Action(nil), a.Actions...)
	return &copied
}

// MemoryWorkspaces implements WorkspaceRepository.
type MemoryWorkspaces struct{ m *Memory }

func (r *MemoryWorkspaces) GetByID(ctx context.Context, id uuid.UUID) (*model.Workspace, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	ws, ok := r.m.workspaces[id]
	if !ok {
		return nil, nil
	}
	copied := *ws
	return &copied, nil
}

func (r *MemoryWorkspaces) FindConnectionByDisplayPhone(ctx context.Context, displayPhone string) (*model.ChannelConnection, error) {
	if displayPhone == "" {
		return nil, nil
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, conn := range r.m.connections {
		if hasSuffixDigits(conn.DisplayPhone, displayPhone) {
			copied := *conn
			return &copied, nil
		}
	}
	return nil, nil
}

// hasSuffixDigits mirrors the SQL `display_phone LIKE '%' || $1` match.
func hasSuffixDigits(stored, probe string) bool {
	if len(probe) > len(stored) {
		return false
	}
	return stored[len(stored)-len(probe):] == probe
}

func (r *MemoryWorkspaces) UpsertConnection(ctx context.Context, conn *model.ChannelConnection) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	if conn.ConnectedAt.IsZero() {
		conn.ConnectedAt = time.Now()
	}
	copied := *conn
	for i, existing := range r.m.connections {
		if existing.WorkspaceID == conn.WorkspaceID {
			r.m.connections[i] = &copied
			return nil
		}
	}
	r.m.connections = append(r.m.connections, &copied)
	return nil
}

// MemoryContacts implements ContactRepository.
type MemoryContacts struct{ m *Memory }

func (r *MemoryContacts) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*model.Contact, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	contact, ok := r.m.contacts[id]
	if !ok || contact.WorkspaceID != workspaceID {
		return nil, nil
	}
	return copyContact(contact), nil
}

func (r *MemoryContacts) GetByPhone(ctx context.Context, workspaceID uuid.UUID, phone string) (*model.Contact, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, contact := range r.m.contacts {
		if contact.WorkspaceID == workspaceID && contact.Phone == phone {
			return copyContact(contact), nil
		}
	}
	return nil, nil
}

func (r *MemoryContacts) Create(ctx context.Context, contact *model.Contact) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.contacts {
		if existing.WorkspaceID == contact.WorkspaceID && existing.Phone == contact.Phone {
			return ErrContactExists
		}
	}
	if contact.ID == uuid.Nil {
		contact.ID = uuid.New()
	}
	if contact.CreatedAt.IsZero() {
		contact.CreatedAt = time.Now()
	}
	if contact.LastSeenAt.IsZero() {
		contact.LastSeenAt = contact.CreatedAt
	}
	if contact.Tags == nil {
		contact.Tags = []string{}
	}
	r.m.contacts[contact.ID] = copyContact(contact)
	return nil
}

func (r *MemoryContacts) AddTag(ctx context.Context, workspaceID, contactID uuid.UUID, tag string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	contact, ok := r.m.contacts[contactID]
	if !ok || contact.WorkspaceID != workspaceID {
		return nil
	}
	for _, existing := range contact.Tags {
		if existing == tag {
			return nil
		}
	}
	contact.Tags = append(contact.Tags, tag)
	return nil
}

func (r *MemoryContacts) TouchLastSeen(ctx context.Context, workspaceID, contactID uuid.UUID, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if contact, ok := r.m.contacts[contactID]; ok && contact.WorkspaceID == workspaceID {
		contact.LastSeenAt = at
	}
	return nil
}

// MemoryConversations implements ConversationRepository. Mutations run
// under the store mutex, which gives the same lost-update protection the
// SQL implementation gets from in-database arithmetic.
type MemoryConversations struct{ m *Memory }

func (r *MemoryConversations) GetByContact(ctx context.Context, workspaceID, contactID uuid.UUID) (*model.Conversation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, conv := range r.m.conversations {
		if conv.WorkspaceID == workspaceID && conv.ContactID == contactID {
			return copyConversation(conv), nil
		}
	}
	return nil, nil
}

func (r *MemoryConversations) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*model.Conversation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	conv, ok := r.m.conversations[id]
	if !ok || conv.WorkspaceID != workspaceID {
		return nil, nil
	}
	return copyConversation(conv), nil
}

func (r *MemoryConversations) Create(ctx context.Context, conv *model.Conversation) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, existing := range r.m.conversations {
		if existing.WorkspaceID == conv.WorkspaceID && existing.ContactID == conv.ContactID {
			return ErrConversationExists
		}
	}
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	if conv.Status == "" {
		conv.Status = model.ConversationOpen
	}
	r.m.conversations[conv.ID] = copyConversation(conv)
	return nil
}

func (r *MemoryConversations) RecordInbound(ctx context.Context, workspaceID, id uuid.UUID, preview string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if conv, ok := r.m.conversations[id]; ok && conv.WorkspaceID == workspaceID {
		conv.Status = model.ConversationOpen
		conv.UnreadCount++
		conv.LastMessage = preview
		conv.LastMessageAt = &at
	}
	return nil
}

func (r *MemoryConversations) RecordOutbound(ctx context.Context, workspaceID, id uuid.UUID, preview string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if conv, ok := r.m.conversations[id]; ok && conv.WorkspaceID == workspaceID {
		conv.Status = model.ConversationOpen
		conv.LastMessage = preview
		conv.LastMessageAt = &at
	}
	return nil
}

func (r *MemoryConversations) Assign(ctx context.Context, workspaceID, id uuid.UUID, agentID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if conv, ok := r.m.conversations[id]; ok && conv.WorkspaceID == workspaceID {
		conv.AssignedTo = agentID
	}
	return nil
}

func (r *MemoryConversations) SetStatus(ctx context.Context, workspaceID, id uuid.UUID, status model.ConversationStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if conv, ok := r.m.conversations[id]; ok && conv.WorkspaceID == workspaceID {
		conv.Status = status
	}
	return nil
}

func (r *MemoryConversations) MarkRead(ctx context.Context, workspaceID, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if conv, ok := r.m.conversations[id]; ok && conv.WorkspaceID == workspaceID {
		conv.UnreadCount = 0
	}
	return nil
}

// MemoryMessages implements MessageRepository.
type MemoryMessages struct{ m *Memory }

func (r *MemoryMessages) Append(ctx context.Context, msg *model.Message) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if msg.Direction == model.DirectionIn && msg.ExternalID != "" {
		for _, existing := range r.m.messages {
			if existing.Direction == model.DirectionIn &&
				existing.WorkspaceID == msg.WorkspaceID &&
				existing.ExternalID == msg.ExternalID {
				return ErrDuplicateMessage
			}
		}
	}
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}
	copied := *msg
	r.m.messages = append(r.m.messages, &copied)
	return nil
}

func (r *MemoryMessages) MarkStatus(ctx context.Context, workspaceID uuid.UUID, externalID string, status model.DeliveryStatus) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, msg := range r.m.messages {
		if msg.WorkspaceID == workspaceID && msg.ExternalID == externalID && msg.Direction == model.DirectionOut {
			msg.Status = status
		}
	}
	return nil
}

func (r *MemoryMessages) ListRecent(ctx context.Context, workspaceID, conversationID uuid.UUID, limit int) ([]model.Message, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var matched []model.Message
	for _, msg := range r.m.messages {
		if msg.WorkspaceID == workspaceID && msg.ConversationID == conversationID {
			matched = append(matched, *msg)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[len(matched)-limit:]
	}
	return matched, nil
}

// MemoryAutomations implements AutomationRepository.
type MemoryAutomations struct{ m *Memory }

func (r *MemoryAutomations) ListActive(ctx context.Context, workspaceID uuid.UUID) ([]model.Automation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var active []model.Automation
	for _, auto := range r.m.automations {
		if auto.WorkspaceID == workspaceID && auto.Status == model.AutomationActive {
			active = append(active, *copyAutomation(auto))
		}
	}
	return active, nil
}

func (r *MemoryAutomations) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*model.Automation, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, auto := range r.m.automations {
		if auto.WorkspaceID == workspaceID && auto.ID == id {
			return copyAutomation(auto), nil
		}
	}
	return nil, nil
}

func (r *MemoryAutomations) IncrementExecutions(ctx context.Context, workspaceID, id uuid.UUID) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, auto := range r.m.automations {
		if auto.WorkspaceID == workspaceID && auto.ID == id {
			auto.Executions++
		}
	}
	return nil
}
