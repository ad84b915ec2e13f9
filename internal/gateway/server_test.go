package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/NovaClaw/NovaClaw/internal/agent"
	"github.com/NovaClaw/NovaClaw/internal/state"
	"github.com/NovaClaw/NovaClaw/internal/whatsapp"
)

type fakeMessenger struct {
	joinFn func(ctx context.Context, inviteCode, name, description string) (*whatsapp.GroupHandle, error)
	sendFn func(ctx context.Context, groupID, content string) (*whatsapp.SendReceipt, error)
}

func (f *fakeMessenger) JoinGroup(ctx context.Context, inviteCode, name, description string) (*whatsapp.GroupHandle, error) {
	if f.joinFn == nil {
		return &whatsapp.GroupHandle{ID: "resolved-" + inviteCode, Name: name}, nil
	}
	return f.joinFn(ctx, inviteCode, name, description)
}

func (f *fakeMessenger) SendMessage(ctx context.Context, groupID, content string) (*whatsapp.SendReceipt, error) {
	if f.sendFn == nil {
		return &whatsapp.SendReceipt{MessageID: "wamid.test"}, nil
	}
	return f.sendFn(ctx, groupID, content)
}

func newTestServer(t *testing.T, messenger *fakeMessenger, authToken string) (*Server, state.Store) {
	t.Helper()
	store := state.NewMemoryStore(state.DefaultPersona("Nova"))
	runtime := agent.New(agent.Options{
		Store:     store,
		Messenger: messenger,
		AgentName: "Nova",
	})
	return New(store, runtime, "verify-secret", authToken), store
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode request body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestGetStateReturnsSnapshot(t *testing.T) {
	srv, store := newTestServer(t, &fakeMessenger{}, "")
	store.AddGroup("g1", "Ops", "")

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/api/v1/state", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var st state.AgentState
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if st.Persona.Name != "Nova" {
		t.Fatalf("persona name = %q, want Nova", st.Persona.Name)
	}
	if len(st.Groups) != 1 || st.Groups[0].ID != "g1" {
		t.Fatalf("groups = %+v, want one group g1", st.Groups)
	}
}

func TestUpdatePersonaRejectsInvalidTone(t *testing.T) {
	srv, store := newTestServer(t, &fakeMessenger{}, "")

	rec := doJSON(t, srv.Handler(), http.MethodPut, "/api/v1/persona",
		map[string]string{"tone": "sarcastic"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
	if got := store.GetState().Persona.Tone; got != state.ToneFriendly {
		t.Fatalf("tone = %q, persona mutated on rejected patch", got)
	}
}

func TestUpdatePersonaPartialPatch(t *testing.T) {
	srv, store := newTestServer(t, &fakeMessenger{}, "")

	rec := doJSON(t, srv.Handler(), http.MethodPut, "/api/v1/persona",
		map[string]string{"name": "Luna", "tone": "analytical"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	p := store.GetState().Persona
	if p.Name != "Luna" || p.Tone != state.ToneAnalytical {
		t.Fatalf("persona = %+v, want Luna/analytical", p)
	}
	if p.Greeting == "" {
		t.Fatalf("greeting cleared by partial patch")
	}
}

func TestPostGroupsRequiresIdentifier(t *testing.T) {
	srv, _ := newTestServer(t, &fakeMessenger{}, "")

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/groups",
		map[string]string{"name": "No ID"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPostGroupsDryRunSkipsMessenger(t *testing.T) {
	joined := false
	messenger := &fakeMessenger{
		joinFn: func(ctx context.Context, inviteCode, name, description string) (*whatsapp.GroupHandle, error) {
			joined = true
			return nil, &whatsapp.APIError{Message: "should not be called"}
		},
	}
	srv, store := newTestServer(t, messenger, "")

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/groups",
		map[string]any{"inviteCode": "abc123", "dryRun": true}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if joined {
		t.Fatalf("dry-run join reached the messenger")
	}
	groups := store.GetState().Groups
	if len(groups) != 1 || groups[0].Name != "Draft Group" {
		t.Fatalf("groups = %+v, want one Draft Group", groups)
	}
}

func TestPostGroupsLiveJoinFailureMapsToBadGateway(t *testing.T) {
	messenger := &fakeMessenger{
		joinFn: func(ctx context.Context, inviteCode, name, description string) (*whatsapp.GroupHandle, error) {
			return nil, &whatsapp.APIError{Code: 400, Message: "invite expired"}
		},
	}
	srv, store := newTestServer(t, messenger, "")

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/groups",
		map[string]string{"inviteCode": "expired"}, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if len(store.GetState().Groups) != 0 {
		t.Fatalf("failed join registered a group")
	}
}

func TestPostGroupsDirectRegister(t *testing.T) {
	srv, store := newTestServer(t, &fakeMessenger{}, "")

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/groups",
		map[string]string{"groupId": "g-ext", "name": "External"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	groups := store.GetState().Groups
	if len(groups) != 1 || groups[0].ID != "g-ext" || groups[0].Name != "External" {
		t.Fatalf("groups = %+v, want g-ext/External", groups)
	}
}

func TestPostMessagesValidatesBody(t *testing.T) {
	srv, _ := newTestServer(t, &fakeMessenger{}, "")

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/messages",
		map[string]string{"groupId": "g1"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestPostMessagesUnknownGroup(t *testing.T) {
	srv, _ := newTestServer(t, &fakeMessenger{}, "")

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/messages",
		map[string]string{"groupId": "ghost", "content": "hi"}, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404: %s", rec.Code, rec.Body.String())
	}
}

func TestPostMessagesDryRunReturnsSimulated(t *testing.T) {
	sent := false
	messenger := &fakeMessenger{
		sendFn: func(ctx context.Context, groupID, content string) (*whatsapp.SendReceipt, error) {
			sent = true
			return &whatsapp.SendReceipt{MessageID: "wamid.x"}, nil
		},
	}
	srv, store := newTestServer(t, messenger, "")
	store.AddGroup("g1", "Ops", "")

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/messages",
		map[string]any{"groupId": "g1", "content": "draft", "dryRun": true}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	if sent {
		t.Fatalf("dry-run send reached the messenger")
	}
	var resp struct {
		Status  string        `json:"status"`
		Message state.Message `json:"message"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Status != "simulated" {
		t.Fatalf("status field = %q, want simulated", resp.Status)
	}
	if !resp.Message.FromAgent || resp.Message.Content != "draft" {
		t.Fatalf("message = %+v, want agent draft", resp.Message)
	}
}

func TestPostMessagesSendFailureMapsToBadGateway(t *testing.T) {
	messenger := &fakeMessenger{
		sendFn: func(ctx context.Context, groupID, content string) (*whatsapp.SendReceipt, error) {
			return nil, &whatsapp.APIError{Code: 429, Message: "rate limit hit"}
		},
	}
	srv, store := newTestServer(t, messenger, "")
	store.AddGroup("g1", "Ops", "")

	rec := doJSON(t, srv.Handler(), http.MethodPost, "/api/v1/messages",
		map[string]string{"groupId": "g1", "content": "hi"}, nil)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502: %s", rec.Code, rec.Body.String())
	}
	if len(store.GetState().Messages) != 0 {
		t.Fatalf("failed send logged a message")
	}
	if store.GetState().Status.Connected {
		t.Fatalf("failed send left agent connected")
	}
}

func TestWebhookHandshake(t *testing.T) {
	srv, _ := newTestServer(t, &fakeMessenger{}, "")
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=verify-secret&hub.challenge=12345", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Body.String() != "12345" {
		t.Fatalf("body = %q, want challenge echoed", rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet,
		"/webhook?hub.mode=subscribe&hub.verify_token=wrong&hub.challenge=12345", nil, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "Forbidden") {
		t.Fatalf("body = %q, want Forbidden", rec.Body.String())
	}
}

func TestWebhookPostAlwaysAcks(t *testing.T) {
	srv, store := newTestServer(t, &fakeMessenger{}, "")
	h := srv.Handler()

	// Garbage payload: still acked, nothing stored.
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader("not json"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var ack map[string]bool
	if err := json.Unmarshal(rec.Body.Bytes(), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if !ack["received"] {
		t.Fatalf("ack = %v, want received=true", ack)
	}
	if len(store.GetState().Messages) != 0 {
		t.Fatalf("garbage payload stored a message")
	}
}

func TestWebhookPostLogsTrackedGroupMessage(t *testing.T) {
	srv, store := newTestServer(t, &fakeMessenger{}, "")
	store.AddGroup("g1", "Ops", "")
	h := srv.Handler()

	payload := `{"entry":[{"changes":[{"value":{` +
		`"contacts":[{"wa_id":"15550001111","profile":{"name":"Dana"}}],` +
		`"messages":[{"from":"15550001111","group_id":"g1","timestamp":"1700000000",` +
		`"type":"text","text":{"body":"hello"}}]}}]}]}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", strings.NewReader(payload))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	msgs := store.GetState().Messages
	if len(msgs) != 1 {
		t.Fatalf("messages = %d, want 1", len(msgs))
	}
	if msgs[0].Sender != "Dana" || msgs[0].Content != "hello" {
		t.Fatalf("message = %+v, want Dana/hello", msgs[0])
	}
}

func TestBearerAuthGuardsMutations(t *testing.T) {
	srv, store := newTestServer(t, &fakeMessenger{}, "secret-token")
	h := srv.Handler()

	rec := doJSON(t, h, http.MethodPut, "/api/v1/persona",
		map[string]string{"name": "Luna"}, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401 without token", rec.Code)
	}

	rec = doJSON(t, h, http.MethodPut, "/api/v1/persona",
		map[string]string{"name": "Luna"},
		map[string]string{"Authorization": "Bearer secret-token"})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with token: %s", rec.Code, rec.Body.String())
	}
	if store.GetState().Persona.Name != "Luna" {
		t.Fatalf("persona not updated through authorized request")
	}

	// Reads stay open.
	rec = doJSON(t, h, http.MethodGet, "/api/v1/state", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want unauthenticated reads to pass", rec.Code)
	}
}

func TestDashboardServedAtRoot(t *testing.T) {
	srv, _ := newTestServer(t, &fakeMessenger{}, "")

	rec := doJSON(t, srv.Handler(), http.MethodGet, "/", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "NovaClaw") {
		t.Fatalf("dashboard body missing title")
	}
}
