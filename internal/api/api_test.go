package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"wabridge/internal/bus"
	"wabridge/internal/config"
	"wabridge/internal/outbound"
	"wabridge/internal/provider"
	"wabridge/internal/store"
	"wabridge/internal/syncer"
)

func testDB(t *testing.T) *store.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	db, err := store.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newTestServer wires the API against a store and an (optionally dead)
// provider base URL.
func newTestServer(t *testing.T, db *store.DB, providerURL string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Server:   config.ServerConfig{AuthToken: "token-1"},
		Provider: config.ProviderConfig{BaseURL: providerURL, APIKey: "k", Instance: "main", TimeoutSeconds: 1},
	}
	clients := provider.NewCache(time.Second)
	proxy := syncer.NewProxy(db, clients, zap.NewNop())
	dispatcher := outbound.NewDispatcher(db, outbound.NewCacheSender(clients), bus.New(), zap.NewNop())

	engine := gin.New()
	NewServer(db, proxy, dispatcher, clients, cfg, zap.NewNop()).Register(engine)
	return engine
}

func doRequest(engine *gin.Engine, method, path, token string, body []byte) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	engine.ServeHTTP(w, req)
	return w
}

func TestAuthRequired(t *testing.T) {
	engine := newTestServer(t, testDB(t), "http://127.0.0.1:1")

	if w := doRequest(engine, http.MethodGet, "/chats", "", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d, want 401", w.Code)
	}
	if w := doRequest(engine, http.MethodGet, "/chats", "wrong", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("bad token: status = %d, want 401", w.Code)
	}
}

func TestUnknownInstanceIs404(t *testing.T) {
	engine := newTestServer(t, testDB(t), "http://127.0.0.1:1")

	w := doRequest(engine, http.MethodGet, "/chats", "token-1", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404 before first connect", w.Code)
	}
	var resp map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["error"] == "" {
		t.Error("error body missing")
	}
}

func TestMessagesServedFromStoreWhenProviderDown(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertInstance(&store.Instance{Name: "main", BaseURL: "http://127.0.0.1:1", APIKey: "k"}); err != nil {
		t.Fatal(err)
	}
	for _, m := range []store.Message{
		{Instance: "main", MsgID: "m1", ChatID: "c@s", Body: "first", Timestamp: 1000},
		{Instance: "main", MsgID: "m2", ChatID: "c@s", Body: "second", Timestamp: 2000},
	} {
		if _, err := db.InsertMessageIfAbsent(&m); err != nil {
			t.Fatal(err)
		}
	}

	engine := newTestServer(t, db, "http://127.0.0.1:1")
	w := doRequest(engine, http.MethodGet, "/chats/c@s/messages?limit=50", "token-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (graceful degradation), body: %s", w.Code, w.Body.String())
	}

	var resp struct {
		Messages   []map[string]any `json:"messages"`
		NextCursor any              `json:"nextCursor"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if len(resp.Messages) != 2 {
		t.Fatalf("got %d messages, want 2 from store", len(resp.Messages))
	}
	if resp.Messages[0]["body"] != "first" {
		t.Errorf("first message = %v, want ascending order", resp.Messages[0]["body"])
	}
	if resp.NextCursor != nil {
		t.Errorf("nextCursor = %v, want null for short page", resp.NextCursor)
	}
}

func TestSendMessageEndToEnd(t *testing.T) {
	providerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sendText/main" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"key":{"id":"srv-9"}}`))
	}))
	defer providerSrv.Close()

	db := testDB(t)
	if err := db.UpsertInstance(&store.Instance{Name: "main", BaseURL: providerSrv.URL, APIKey: "k"}); err != nil {
		t.Fatal(err)
	}
	engine := newTestServer(t, db, providerSrv.URL)

	body, _ := json.Marshal(map[string]string{"chatId": "c@s", "text": "hello"})
	w := doRequest(engine, http.MethodPost, "/messages/send", "token-1", body)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	var resp map[string]any
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	if resp["messageId"] != "srv-9" {
		t.Errorf("messageId = %v, want srv-9", resp["messageId"])
	}

	msgs, _ := db.ListMessages("main", "c@s", 0, 10)
	if len(msgs) != 1 || msgs[0].SenderType != "support" {
		t.Errorf("stored = %+v, want one support message", msgs)
	}
}

func TestSendMessageProviderFailureIs502(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertInstance(&store.Instance{Name: "main", BaseURL: "http://127.0.0.1:1", APIKey: "k"}); err != nil {
		t.Fatal(err)
	}
	engine := newTestServer(t, db, "http://127.0.0.1:1")

	body, _ := json.Marshal(map[string]string{"chatId": "c@s", "text": "hello"})
	w := doRequest(engine, http.MethodPost, "/messages/send", "token-1", body)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}

	// No fabricated history.
	msgs, _ := db.ListMessages("main", "c@s", 0, 10)
	if len(msgs) != 0 {
		t.Errorf("got %d messages, want 0 after failed send", len(msgs))
	}
}

func TestSendMessageValidation(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertInstance(&store.Instance{Name: "main", BaseURL: "http://p", APIKey: "k"}); err != nil {
		t.Fatal(err)
	}
	engine := newTestServer(t, db, "http://p")

	body, _ := json.Marshal(map[string]string{"chatId": "", "text": ""})
	w := doRequest(engine, http.MethodPost, "/messages/send", "token-1", body)
	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", w.Code)
	}
}

func TestConnectCreatesInstance(t *testing.T) {
	providerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"instance":{"state":"connecting"}}`))
	}))
	defer providerSrv.Close()

	db := testDB(t)
	engine := newTestServer(t, db, providerSrv.URL)

	w := doRequest(engine, http.MethodPost, "/instance/connect", "token-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body: %s", w.Code, w.Body.String())
	}

	inst, err := db.GetInstance("main")
	if err != nil {
		t.Fatal(err)
	}
	if inst == nil {
		t.Fatal("instance not created on first connect")
	}
	if inst.BaseURL != providerSrv.URL {
		t.Errorf("base url = %q, want provider default", inst.BaseURL)
	}
}

func TestLogoutAndDeleteInstance(t *testing.T) {
	var gotPaths []string
	providerSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPaths = append(gotPaths, r.Method+" "+r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"SUCCESS"}`))
	}))
	defer providerSrv.Close()

	db := testDB(t)
	if err := db.UpsertInstance(&store.Instance{Name: "main", BaseURL: providerSrv.URL, APIKey: "k", Status: "connected"}); err != nil {
		t.Fatal(err)
	}
	engine := newTestServer(t, db, providerSrv.URL)

	w := doRequest(engine, http.MethodPost, "/instance/logout", "token-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("logout status = %d, body: %s", w.Code, w.Body.String())
	}
	inst, err := db.GetInstance("main")
	if err != nil {
		t.Fatal(err)
	}
	if inst.Status != "disconnected" {
		t.Errorf("status after logout = %q, want disconnected", inst.Status)
	}

	w = doRequest(engine, http.MethodDelete, "/instance", "token-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("delete status = %d, body: %s", w.Code, w.Body.String())
	}
	inst, err = db.GetInstance("main")
	if err != nil {
		t.Fatal(err)
	}
	if inst.Status != "not_found" {
		t.Errorf("status after delete = %q, want not_found", inst.Status)
	}

	want := []string{"DELETE /logout/main", "DELETE /delete/main"}
	if len(gotPaths) != 2 || gotPaths[0] != want[0] || gotPaths[1] != want[1] {
		t.Errorf("provider calls = %v, want %v", gotPaths, want)
	}
}

func TestLogoutProviderFailureKeepsStatus(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertInstance(&store.Instance{Name: "main", BaseURL: "http://127.0.0.1:1", APIKey: "k", Status: "connected"}); err != nil {
		t.Fatal(err)
	}
	engine := newTestServer(t, db, "http://127.0.0.1:1")

	w := doRequest(engine, http.MethodPost, "/instance/logout", "token-1", nil)
	if w.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", w.Code)
	}
	inst, err := db.GetInstance("main")
	if err != nil {
		t.Fatal(err)
	}
	if inst.Status != "connected" {
		t.Errorf("status = %q, want unchanged connected", inst.Status)
	}
}

func TestStatusCounts(t *testing.T) {
	db := testDB(t)
	if err := db.UpsertInstance(&store.Instance{Name: "main", BaseURL: "http://p", APIKey: "k", Status: "connected"}); err != nil {
		t.Fatal(err)
	}
	if _, err := db.InsertMessageIfAbsent(&store.Message{Instance: "main", MsgID: "m1", ChatID: "c@s", Timestamp: 1}); err != nil {
		t.Fatal(err)
	}
	if err := db.UpsertChat(&store.Chat{Instance: "main", ChatID: "c@s"}); err != nil {
		t.Fatal(err)
	}

	engine := newTestServer(t, db, "http://p")
	w := doRequest(engine, http.MethodGet, "/status", "token-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	var resp struct {
		Status string `json:"status"`
		Counts struct {
			Chats    int64 `json:"chats"`
			Messages int64 `json:"messages"`
		} `json:"counts"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != "connected" {
		t.Errorf("status = %q, want connected", resp.Status)
	}
	if resp.Counts.Chats != 1 || resp.Counts.Messages != 1 {
		t.Errorf("counts = %+v, want 1/1", resp.Counts)
	}
}
