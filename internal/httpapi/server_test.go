package httpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/chatlane/messaging-ingestion-service/internal/automation"
	"github.com/chatlane/messaging-ingestion-service/internal/model"
	"github.com/chatlane/messaging-ingestion-service/internal/service"
	"github.com/chatlane/messaging-ingestion-service/internal/store"
)

const testVerifyToken = "verify-secret"

type inlineDispatcher struct {
	runner automation.Runner
}

func (d *inlineDispatcher) Dispatch(ctx context.Context, job automation.Job) error {
	return d.runner.ExecuteJob(ctx, job)
}

func setupServer(t *testing.T) (*Server, *store.Memory, uuid.UUID) {
	mem := store.NewMemory()
	workspace := mem.SeedWorkspace(&model.Workspace{Name: "Acme"})
	mem.SeedConnection(&model.ChannelConnection{
		WorkspaceID:  workspace.ID,
		DisplayPhone: "15550001111",
	})

	executor := automation.NewExecutor(mem.Contacts, mem.Conversations, mem.Messages, mem.Automations)
	pipeline := service.NewPipeline(
		service.NewIdentityResolver(mem.Workspaces, mem.Contacts, uuid.Nil),
		service.NewConversationTracker(mem.Conversations),
		mem.Messages,
		automation.NewEngine(mem.Automations),
		&inlineDispatcher{runner: executor},
	)
	return New(pipeline, testVerifyToken), mem, workspace.ID
}

func TestServer_VerifyHandshake(t *testing.T) {
	server, _, _ := setupServer(t)
	router := server.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token="+testVerifyToken+"&hub.challenge=12345", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "12345", w.Body.String())
}

func TestServer_VerifyHandshakeRejectsBadToken(t *testing.T) {
	server, _, _ := setupServer(t)
	router := server.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.NotContains(t, w.Body.String(), "12345")
}

func TestServer_VerifyHandshakeRejectsWrongMode(t *testing.T) {
	server, _, _ := setupServer(t)
	router := server.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet,
		"/webhooks/whatsapp?hub.mode=unsubscribe&hub.verify_token="+testVerifyToken+"&hub.challenge=12345", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestServer_ReceiveWebhookRejectsMalformedJSON(t *testing.T) {
	server, _, _ := setupServer(t)
	router := server.Router()

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader("{not json"))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"detail":"invalid payload"}`, w.Body.String())
}

func TestServer_ReceiveWebhookAcknowledgesAndStoresMessage(t *testing.T) {
	server, mem, workspaceID := setupServer(t)
	router := server.Router()

	body := `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"metadata": {"display_phone_number": "15550001111"},
					"contacts": [{"wa_id": "15559876543", "profile": {"name": "Jordan"}}],
					"messages": [{
						"from": "15559876543",
						"id": "wamid.http.1",
						"type": "text",
						"text": {"body": "hello over http"}
					}]
				}
			}]
		}]
	}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"success"}`, w.Body.String())

	ctx := context.Background()
	contact, err := mem.Contacts.GetByPhone(ctx, workspaceID, "15559876543")
	assert.NoError(t, err)
	assert.NotNil(t, contact)

	conv, err := mem.Conversations.GetByContact(ctx, workspaceID, contact.ID)
	assert.NoError(t, err)
	assert.NotNil(t, conv)
	assert.Equal(t, "hello over http", conv.LastMessage)

	msgs, err := mem.Messages.ListRecent(ctx, workspaceID, conv.ID, 10)
	assert.NoError(t, err)
	assert.Len(t, msgs, 1)
	assert.Equal(t, "wamid.http.1", msgs[0].ExternalID)
}

func TestServer_ReceiveWebhookAcknowledgesUnresolvableChannel(t *testing.T) {
	server, _, _ := setupServer(t)
	router := server.Router()

	body := `{
		"object": "whatsapp_business_account",
		"entry": [{
			"id": "entry-1",
			"changes": [{
				"field": "messages",
				"value": {
					"metadata": {"display_phone_number": "19990000000"},
					"messages": [{"from": "15559876543", "id": "wamid.1", "type": "text", "text": {"body": "hi"}}]
				}
			}]
		}]
	}`

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/whatsapp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	router.ServeHTTP(w, req)

	// The provider is always acknowledged; retrying would not help.
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestServer_Health(t *testing.T) {
	server, _, _ := setupServer(t)
	router := server.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestServer_MetricsExposed(t *testing.T) {
	server, _, _ := setupServer(t)
	router := server.Router()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	assert.Equal(t, http.StatusOK, w.Code)
}
