package daemon

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"wabridge/internal/api"
	"wabridge/internal/bus"
	"wabridge/internal/config"
	"wabridge/internal/outbound"
	"wabridge/internal/provider"
	"wabridge/internal/status"
	"wabridge/internal/store"
	"wabridge/internal/syncer"
	"wabridge/internal/webhook"
	"wabridge/internal/ws"
)

// newTestDaemon wires the full HTTP surface against a temp store and a dead
// provider endpoint, mirroring what Module does through fx.
func newTestDaemon(t *testing.T) (*Server, *store.DB) {
	t.Helper()

	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	cfg := &config.Config{
		Server:   config.ServerConfig{Listen: ":0", AuthToken: "token-1"},
		Provider: config.ProviderConfig{BaseURL: "http://127.0.0.1:1", APIKey: "k", Instance: "main", TimeoutSeconds: 1},
	}

	logger := zap.NewNop()
	b := bus.New()
	clients := provider.NewCache(cfg.Provider.Timeout())
	hub := ws.NewHub(logger)
	bridge := ws.NewBridge(b, hub)
	bridge.Start(t.Context())
	t.Cleanup(bridge.Stop)

	proxy := syncer.NewProxy(db, clients, logger)
	dispatcher := outbound.NewDispatcher(db, outbound.NewCacheSender(clients), b, logger)
	router := webhook.NewRouter(db, b, status.NewRegistry(b), cfg.Provider.WebhookKeys, logger)
	apiSrv := api.NewServer(db, proxy, dispatcher, clients, cfg, logger)

	return NewServer(cfg, logger, router, hub, apiSrv), db
}

func TestWebhookToPullRoundTrip(t *testing.T) {
	srv, db := newTestDaemon(t)
	if err := db.UpsertInstance(&store.Instance{Name: "main", BaseURL: "http://127.0.0.1:1", APIKey: "k"}); err != nil {
		t.Fatal(err)
	}
	handler := srv.httpServer.Handler

	envelope := `{
		"event": "messages.upsert",
		"instance": "main",
		"data": {
			"key": {"id": "m1", "remoteJid": "551199@s.whatsapp.net", "fromMe": false},
			"pushName": "Alice",
			"message": {"conversation": "Oi, tudo bem?"},
			"messageTimestamp": 1700000000
		}
	}`
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(envelope))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("webhook status = %d, want 200", w.Code)
	}

	// The delivery must be readable through the pull API with the provider
	// completely unreachable.
	req = httptest.NewRequest(http.MethodGet, "/chats", nil)
	req.Header.Set("Authorization", "Bearer token-1")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("chats status = %d, body: %s", w.Code, w.Body.String())
	}

	var chats struct {
		Chats []map[string]any `json:"chats"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &chats); err != nil {
		t.Fatal(err)
	}
	if len(chats.Chats) != 1 {
		t.Fatalf("got %d chats, want 1", len(chats.Chats))
	}
	if chats.Chats[0]["lastMessagePreview"] != "Oi, tudo bem?" {
		t.Errorf("preview = %v, want webhook body", chats.Chats[0]["lastMessagePreview"])
	}

	req = httptest.NewRequest(http.MethodGet, "/chats/551199@s.whatsapp.net/messages", nil)
	req.Header.Set("Authorization", "Bearer token-1")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("messages status = %d, body: %s", w.Code, w.Body.String())
	}

	var msgs struct {
		Messages []map[string]any `json:"messages"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &msgs); err != nil {
		t.Fatal(err)
	}
	if len(msgs.Messages) != 1 || msgs.Messages[0]["body"] != "Oi, tudo bem?" {
		t.Errorf("messages = %+v, want the webhook delivery", msgs.Messages)
	}
}

func TestWebhookUnauthenticatedPullRejected(t *testing.T) {
	srv, _ := newTestDaemon(t)
	handler := srv.httpServer.Handler

	// Webhook needs no bearer token.
	req := httptest.NewRequest(http.MethodPost, "/webhook", bytes.NewBufferString(`{"event":"x","instance":"main","data":{}}`))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Errorf("webhook status = %d, want 200 without token", w.Code)
	}

	// Pull API does.
	req = httptest.NewRequest(http.MethodGet, "/chats", nil)
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Errorf("chats status = %d, want 401 without token", w.Code)
	}
}

func TestServerGracefulStop(t *testing.T) {
	srv, _ := newTestDaemon(t)

	done := make(chan error, 1)
	go func() { done <- srv.Start() }()

	time.Sleep(50 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	srv.Stop(ctx)

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Start returned %v after Stop, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("server did not stop")
	}
}
