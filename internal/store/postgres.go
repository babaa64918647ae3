package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatlane/messaging-ingestion-service/internal/crypto"
	"github.com/chatlane/messaging-ingestion-service/internal/model"
)

// Store bundles the PostgreSQL repositories over one connection pool.
type Store struct {
	pool *pgxpool.Pool

	Workspaces    *WorkspaceStore
	Contacts      *ContactStore
	Conversations *ConversationStore
	Messages      *MessageStore
	Automations   *AutomationStore
}

// New opens a connection pool and builds the repositories.
func New(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DSN: %w", err)
	}
	config.MaxConns = 20
	config.MinConns = 5
	config.MaxConnLifetime = 30 * time.Minute
	config.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	return &Store{
		pool:          pool,
		Workspaces:    &WorkspaceStore{pool: pool},
		Contacts:      &ContactStore{pool: pool},
		Conversations: &ConversationStore{pool: pool},
		Messages:      &MessageStore{pool: pool},
		Automations:   &AutomationStore{pool: pool},
	}, nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// WorkspaceStore implements WorkspaceRepository on PostgreSQL.
type WorkspaceStore struct {
	pool *pgxpool.Pool
}

func (r *WorkspaceStore) GetByID(ctx context.Context, id uuid.UUID) (*model.Workspace, error) {
	query := `SELECT id, name, plan_tier, trial_ends_at, whatsapp_connected, created_at, updated_at
              FROM workspaces WHERE id = $1`
	ws := &model.Workspace{}
	err := r.pool.QueryRow(ctx, query, id).Scan(&ws.ID, &ws.Name, &ws.PlanTier, &ws.TrialEndsAt, &ws.WhatsappConnected, &ws.CreatedAt, &ws.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (r *WorkspaceStore) FindConnectionByDisplayPhone(ctx context.Context, displayPhone string) (*model.ChannelConnection, error) {
	if displayPhone == "" {
		return nil, nil
	}
	query := `SELECT id, workspace_id, waba_id, phone_number_id, display_phone, quality_rating, encrypted_token, token_nonce, status, connected_at
              FROM channel_connections WHERE display_phone LIKE '%' || $1 LIMIT 1`
	conn := &model.ChannelConnection{}
	err := r.pool.QueryRow(ctx, query, displayPhone).Scan(&conn.ID, &conn.WorkspaceID, &conn.WabaID, &conn.PhoneNumberID, &conn.DisplayPhone, &conn.QualityRating, &conn.EncryptedToken, &conn.TokenNonce, &conn.Status, &conn.ConnectedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if len(conn.EncryptedToken) > 0 && len(conn.TokenNonce) > 0 {
		token, err := crypto.Decrypt(conn.EncryptedToken, conn.TokenNonce)
		if err != nil {
			return nil, err
		}
		conn.AccessToken = token
	}
	return conn, nil
}

func (r *WorkspaceStore) UpsertConnection(ctx context.Context, conn *model.ChannelConnection) error {
	if conn.ID == uuid.Nil {
		conn.ID = uuid.New()
	}
	if conn.ConnectedAt.IsZero() {
		conn.ConnectedAt = time.Now()
	}

	if conn.AccessToken != "" {
		encrypted, nonce, err := crypto.Encrypt(conn.AccessToken)
		if err != nil {
			return err
		}
		conn.EncryptedToken = encrypted
		conn.TokenNonce = nonce
	}

	query := `INSERT INTO channel_connections (id, workspace_id, waba_id, phone_number_id, display_phone, quality_rating, encrypted_token, token_nonce, status, connected_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
              ON CONFLICT (workspace_id) DO UPDATE SET
                  waba_id = EXCLUDED.waba_id,
                  phone_number_id = EXCLUDED.phone_number_id,
                  display_phone = EXCLUDED.display_phone,
                  quality_rating = EXCLUDED.quality_rating,
                  encrypted_token = EXCLUDED.encrypted_token,
                  token_nonce = EXCLUDED.token_nonce,
                  status = EXCLUDED.status,
                  connected_at = EXCLUDED.connected_at`
	_, err := r.pool.Exec(ctx, query, conn.ID, conn.WorkspaceID, conn.WabaID, conn.PhoneNumberID, conn.DisplayPhone, conn.QualityRating, conn.EncryptedToken, conn.TokenNonce, conn.Status, conn.ConnectedAt)
	return err
}

// ContactStore implements ContactRepository on PostgreSQL.
type ContactStore struct {
	pool *pgxpool.Pool
}

const contactColumns = `id, workspace_id, phone, name, tags, source, created_at, last_seen_at`

func (r *ContactStore) scanContact(row pgx.Row) (*model.Contact, error) {
	contact := &model.Contact{}
	err := row.Scan(&contact.ID, &contact.WorkspaceID, &contact.Phone, &contact.Name, &contact.Tags, &contact.Source, &contact.CreatedAt, &contact.LastSeenAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return contact, nil
}

func (r *ContactStore) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE workspace_id = $1 AND id = $2`
	return r.scanContact(r.pool.QueryRow(ctx, query, workspaceID, id))
}

func (r *ContactStore) GetByPhone(ctx context.Context, workspaceID uuid.UUID, phone string) (*model.Contact, error) {
	query := `SELECT ` + contactColumns + ` FROM contacts WHERE workspace_id = $1 AND phone = $2`
	return r.scanContact(r.pool.QueryRow(ctx, query, workspaceID, phone))
}

func (r *ContactStore) Create(ctx context.Context, contact *model.Contact) error {
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

	query := `INSERT INTO contacts (id, workspace_id, phone, name, tags, source, created_at, last_seen_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
              ON CONFLICT (workspace_id, phone) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, contact.ID, contact.WorkspaceID, contact.Phone, contact.Name, contact.Tags, contact.Source, contact.CreatedAt, contact.LastSeenAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrContactExists
	}
	return nil
}

func (r *ContactStore) AddTag(ctx context.Context, workspaceID, contactID uuid.UUID, tag string) error {
	query := `UPDATE contacts SET tags = array_append(tags, $3)
              WHERE workspace_id = $1 AND id = $2 AND NOT ($3 = ANY(tags))`
	_, err := r.pool.Exec(ctx, query, workspaceID, contactID, tag)
	return err
}

func (r *ContactStore) TouchLastSeen(ctx context.Context, workspaceID, contactID uuid.UUID, at time.Time) error {
	query := `UPDATE contacts SET last_seen_at = $3 WHERE workspace_id = $1 AND id = $2`
	_, err := r.pool.Exec(ctx, query, workspaceID, contactID, at)
	return err
}

// ConversationStore implements ConversationRepository on PostgreSQL. The
// unread counter is only ever changed with in-database arithmetic so
// concurrent inbound messages cannot lose increments.
type ConversationStore struct {
	pool *pgxpool.Pool
}

const conversationColumns = `id, workspace_id, contact_id, contact_name, contact_phone, status, assigned_to, unread_count, last_message, last_message_at, created_at`

func (r *ConversationStore) scanConversation(row pgx.Row) (*model.Conversation, error) {
	conv := &model.Conversation{}
	err := row.Scan(&conv.ID, &conv.WorkspaceID, &conv.ContactID, &conv.ContactName, &conv.ContactPhone, &conv.Status, &conv.AssignedTo, &conv.UnreadCount, &conv.LastMessage, &conv.LastMessageAt, &conv.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (r *ConversationStore) GetByContact(ctx context.Context, workspaceID, contactID uuid.UUID) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE workspace_id = $1 AND contact_id = $2`
	return r.scanConversation(r.pool.QueryRow(ctx, query, workspaceID, contactID))
}

func (r *ConversationStore) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*model.Conversation, error) {
	query := `SELECT ` + conversationColumns + ` FROM conversations WHERE workspace_id = $1 AND id = $2`
	return r.scanConversation(r.pool.QueryRow(ctx, query, workspaceID, id))
}

func (r *ConversationStore) Create(ctx context.Context, conv *model.Conversation) error {
	if conv.ID == uuid.Nil {
		conv.ID = uuid.New()
	}
	if conv.CreatedAt.IsZero() {
		conv.CreatedAt = time.Now()
	}
	if conv.Status == "" {
		conv.Status = model.ConversationOpen
	}

	query := `INSERT INTO conversations (id, workspace_id, contact_id, contact_name, contact_phone, status, assigned_to, unread_count, last_message, last_message_at, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
              ON CONFLICT (workspace_id, contact_id) DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, conv.ID, conv.WorkspaceID, conv.ContactID, conv.ContactName, conv.ContactPhone, conv.Status, conv.AssignedTo, conv.UnreadCount, conv.LastMessage, conv.LastMessageAt, conv.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrConversationExists
	}
	return nil
}

func (r *ConversationStore) RecordInbound(ctx context.Context, workspaceID, id uuid.UUID, preview string, at time.Time) error {
	query := `UPDATE conversations
              SET status = 'open', unread_count = unread_count + 1, last_message = $3, last_message_at = $4
              WHERE workspace_id = $1 AND id = $2`
	_, err := r.pool.Exec(ctx, query, workspaceID, id, preview, at)
	return err
}

func (r *ConversationStore) RecordOutbound(ctx context.Context, workspaceID, id uuid.UUID, preview string, at time.Time) error {
	query := `UPDATE conversations
              SET status = 'open', last_message = $3, last_message_at = $4
              WHERE workspace_id = $1 AND id = $2`
	_, err := r.pool.Exec(ctx, query, workspaceID, id, preview, at)
	return err
}

func (r *ConversationStore) Assign(ctx context.Context, workspaceID, id uuid.UUID, agentID string) error {
	query := `UPDATE conversations SET assigned_to = $3 WHERE workspace_id = $1 AND id = $2`
	_, err := r.pool.Exec(ctx, query, workspaceID, id, agentID)
	return err
}

func (r *ConversationStore) SetStatus(ctx context.Context, workspaceID, id uuid.UUID, status model.ConversationStatus) error {
	query := `UPDATE conversations SET status = $3 WHERE workspace_id = $1 AND id = $2`
	_, err := r.pool.Exec(ctx, query, workspaceID, id, status)
	return err
}

func (r *ConversationStore) MarkRead(ctx context.Context, workspaceID, id uuid.UUID) error {
	query := `UPDATE conversations SET unread_count = 0 WHERE workspace_id = $1 AND id = $2`
	_, err := r.pool.Exec(ctx, query, workspaceID, id)
	return err
}

// MessageStore implements MessageRepository on PostgreSQL. A partial unique
// index on (workspace_id, external_id) for inbound rows is the mutual
// exclusion point for webhook retries.
type MessageStore struct {
	pool *pgxpool.Pool
}

func (r *MessageStore) Append(ctx context.Context, msg *model.Message) error {
	if msg.ID == uuid.Nil {
		msg.ID = uuid.New()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now()
	}

	var externalID any
	if msg.ExternalID != "" {
		externalID = msg.ExternalID
	}

	query := `INSERT INTO messages (id, external_id, conversation_id, workspace_id, direction, type, body, template_id, status, sender_id, created_at)
              VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
              ON CONFLICT (workspace_id, external_id) WHERE direction = 'in' AND external_id IS NOT NULL DO NOTHING`
	tag, err := r.pool.Exec(ctx, query, msg.ID, externalID, msg.ConversationID, msg.WorkspaceID, msg.Direction, msg.Type, msg.Body, msg.TemplateID, msg.Status, msg.SenderID, msg.CreatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDuplicateMessage
	}
	return nil
}

func (r *MessageStore) MarkStatus(ctx context.Context, workspaceID uuid.UUID, externalID string, status model.DeliveryStatus) error {
	// Unknown external ids update zero rows; that is the documented no-op.
	query := `UPDATE messages SET status = $3
              WHERE workspace_id = $1 AND external_id = $2 AND direction = 'out'`
	_, err := r.pool.Exec(ctx, query, workspaceID, externalID, status)
	return err
}

func (r *MessageStore) ListRecent(ctx context.Context, workspaceID, conversationID uuid.UUID, limit int) ([]model.Message, error) {
	query := `SELECT id, COALESCE(external_id, ''), conversation_id, workspace_id, direction, type, body, template_id, status, sender_id, created_at
              FROM (
                  SELECT * FROM messages
                  WHERE workspace_id = $1 AND conversation_id = $2
                  ORDER BY created_at DESC LIMIT $3
              ) recent ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, workspaceID, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var messages []model.Message
	for rows.Next() {
		var msg model.Message
		if err := rows.Scan(&msg.ID, &msg.ExternalID, &msg.ConversationID, &msg.WorkspaceID, &msg.Direction, &msg.Type, &msg.Body, &msg.TemplateID, &msg.Status, &msg.SenderID, &msg.CreatedAt); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// AutomationStore implements AutomationRepository on PostgreSQL. Conditions
// and actions live in jsonb columns.
type AutomationStore struct {
	pool *pgxpool.Pool
}

const automationColumns = `id, workspace_id, name, trigger_type, conditions, actions, status, executions, created_at`

func scanAutomation(row pgx.Row) (*model.Automation, error) {
	auto := &model.Automation{}
	var conditions, actions []byte
	err := row.Scan(&auto.ID, &auto.WorkspaceID, &auto.Name, &auto.Trigger, &conditions, &actions, &auto.Status, &auto.Executions, &auto.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(conditions, &auto.Conditions); err != nil {
		return nil, fmt.Errorf("automation %s: decode conditions: %w", auto.ID, err)
	}
	if err := json.Unmarshal(actions, &auto.Actions); err != nil {
		return nil, fmt.Errorf("automation %s: decode actions: %w", auto.ID, err)
	}
	return auto, nil
}

func (r *AutomationStore) ListActive(ctx context.Context, workspaceID uuid.UUID) ([]model.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations
              WHERE workspace_id = $1 AND status = 'active' ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query, workspaceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var automations []model.Automation
	for rows.Next() {
		auto, err := scanAutomation(rows)
		if err != nil {
			return nil, err
		}
		automations = append(automations, *auto)
	}
	return automations, rows.Err()
}

func (r *AutomationStore) GetByID(ctx context.Context, workspaceID, id uuid.UUID) (*model.Automation, error) {
	query := `SELECT ` + automationColumns + ` FROM automations WHERE workspace_id = $1 AND id = $2`
	return scanAutomation(r.pool.QueryRow(ctx, query, workspaceID, id))
}

func (r *AutomationStore) IncrementExecutions(ctx context.Context, workspaceID, id uuid.UUID) error {
	query := `UPDATE automations SET executions = executions + 1 WHERE workspace_id = $1 AND id = $2`
	_, err := r.pool.Exec(ctx, query, workspaceID, id)
	return err
}
