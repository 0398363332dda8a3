package web

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/hearthward/larder/internal/config"
	"github.com/hearthward/larder/internal/docstore"
	"github.com/hearthward/larder/internal/jobs"
	"github.com/hearthward/larder/internal/llm"
)

// stubRunner completes every job immediately with a fixed reply and
// reports each run on done so tests can wait for the goroutine.
type stubRunner struct {
	registry *jobs.Registry
	reply    string
	done     chan string

	mu          sync.Mutex
	lastKind    string
	lastMessage string
}

func (r *stubRunner) Run(_ context.Context, jobID, kind, userMessage string) {
	r.mu.Lock()
	r.lastKind = kind
	r.lastMessage = userMessage
	r.mu.Unlock()
	r.registry.Complete(jobID, r.reply, "<p>"+r.reply+"</p>")
	r.done <- jobID
}

func (r *stubRunner) last() (kind, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastKind, r.lastMessage
}

type testEnv struct {
	server *Server
	store  *docstore.Store
	runner *stubRunner
	ts     *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dir := t.TempDir()
	store, err := docstore.New(dir, nil)
	if err != nil {
		t.Fatal(err)
	}
	registry := jobs.New(nil)
	runner := &stubRunner{registry: registry, reply: "All done.", done: make(chan string, 8)}
	keystore := llm.NewKeystore(dir, "")
	factory := llm.NewFactory(keystore, nil)

	cfg := config.Default()
	cfg.DataDir = dir

	s := New(cfg, store, registry, runner, keystore, factory, Options{})
	ts := httptest.NewServer(s.Router())
	t.Cleanup(ts.Close)
	return &testEnv{server: s, store: store, runner: runner, ts: ts}
}

func (e *testEnv) get(t *testing.T, path string) (*http.Response, map[string]any) {
	t.Helper()
	resp, err := http.Get(e.ts.URL + path)
	if err != nil {
		t.Fatal(err)
	}
	return resp, decodeBody(t, resp)
}

func (e *testEnv) send(t *testing.T, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.ts.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	return resp, decodeBody(t, resp)
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()
	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode response body: %v", err)
	}
	return body
}

func (e *testEnv) awaitJob(t *testing.T) {
	t.Helper()
	select {
	case <-e.runner.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job never ran")
	}
}

func TestHealth(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.get(t, "/api/health")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "ok" {
		t.Errorf("status field = %v", body["status"])
	}
	if body["claude_enabled"] != false {
		t.Errorf("claude_enabled = %v, want false with no key", body["claude_enabled"])
	}
	if body["data_dir"] == "" {
		t.Error("data_dir missing")
	}
}

func TestChat_EmptyMessage(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.send(t, http.MethodPost, "/api/chat", map[string]any{"message": "   "})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["detail"] != "Message required" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestChat_SubmitAndPoll(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.send(t, http.MethodPost, "/api/chat", map[string]any{"message": "plan the week"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["status"] != "pending" {
		t.Errorf("status = %v, want pending", body["status"])
	}
	id, _ := body["response_id"].(string)
	if id == "" {
		t.Fatal("no response_id")
	}

	e.awaitJob(t)

	resp, body = e.get(t, "/api/chat/"+id)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("poll status = %d", resp.StatusCode)
	}
	if body["status"] != "complete" {
		t.Errorf("job status = %v", body["status"])
	}
	if body["claude_response"] != "All done." {
		t.Errorf("claude_response = %v", body["claude_response"])
	}
	if body["claude_response_html"] != "<p>All done.</p>" {
		t.Errorf("claude_response_html = %v", body["claude_response_html"])
	}
}

func TestChatResponse_Unknown(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.get(t, "/api/chat/no-such-id")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body["detail"] != "Response not found" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestAction_Unknown(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.send(t, http.MethodPost, "/api/action", map[string]any{"action": "fly_to_moon"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["detail"] != "Unknown action: fly_to_moon" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestAction_CreateRecipeDefaultsDay(t *testing.T) {
	e := newTestEnv(t)
	resp, _ := e.send(t, http.MethodPost, "/api/action", map[string]any{"action": "create_recipe"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	e.awaitJob(t)

	kind, message := e.runner.last()
	if kind != "action" {
		t.Errorf("kind = %q, want action", kind)
	}
	if !strings.Contains(message, "Create a recipe for today.") {
		t.Errorf("message = %q, want day defaulted to today", message)
	}
}

func TestStatus_Default(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.get(t, "/api/status")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	alerts, ok := body["expiryAlerts"].(map[string]any)
	if !ok {
		t.Fatalf("expiryAlerts missing: %v", body)
	}
	for _, band := range []string{"red", "amber", "green"} {
		if _, ok := alerts[band]; !ok {
			t.Errorf("expiryAlerts missing %q band", band)
		}
	}
}

func TestMeals_NotFound(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.get(t, "/api/meals/tuesday")
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body["detail"] != "No meal for 'tuesday'" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestMeals_MarkCookedConvertsString(t *testing.T) {
	e := newTestEnv(t)
	e.store.Write(docstore.MealPlan, map[string]any{
		"meals": map[string]any{"monday": "Stir fry"},
	})

	resp, body := e.send(t, http.MethodPut, "/api/meals/monday/cooked", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["cooked"] != true {
		t.Errorf("cooked = %v", body["cooked"])
	}

	plan := e.store.Read(docstore.MealPlan, nil)
	meals := plan["meals"].(map[string]any)
	meal, ok := meals["monday"].(map[string]any)
	if !ok {
		t.Fatalf("string meal not converted: %v", meals["monday"])
	}
	if meal["description"] != "Stir fry" || meal["cooked"] != true {
		t.Errorf("converted meal = %v", meal)
	}
}

func TestMeals_Delete(t *testing.T) {
	e := newTestEnv(t)
	e.store.Write(docstore.MealPlan, map[string]any{
		"meals": map[string]any{"friday": map[string]any{"name": "Fish pie"}},
	})

	resp, body := e.send(t, http.MethodDelete, "/api/meals/friday", nil)
	if resp.StatusCode != http.StatusOK || body["status"] != "deleted" {
		t.Fatalf("delete: status=%d body=%v", resp.StatusCode, body)
	}

	resp, _ = e.get(t, "/api/meals/friday")
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("deleted meal still present, status = %d", resp.StatusCode)
	}
}

func TestInventory_AddValidation(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.send(t, http.MethodPost, "/api/inventory", map[string]any{"name": "Milk"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	detail, _ := body["detail"].(string)
	if !strings.Contains(detail, "Missing:") {
		t.Errorf("detail = %q, want missing-fields message", detail)
	}
}

func TestInventory_AddRefreshesAlerts(t *testing.T) {
	e := newTestEnv(t)
	item := map[string]any{
		"name": "Chicken", "amount": "500", "unit": "g", "category": "protein",
		"bestBefore": time.Now().Format("2006-01-02"),
	}
	resp, body := e.send(t, http.MethodPost, "/api/inventory", item)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d: %v", resp.StatusCode, body)
	}
	if body["status"] != "added" {
		t.Errorf("status = %v", body["status"])
	}
	added, _ := body["item"].(map[string]any)
	if added["addedDate"] == nil {
		t.Error("addedDate not defaulted")
	}

	status := e.store.Read(docstore.Status, nil)
	alerts, _ := status["expiryAlerts"].(map[string]any)
	if alerts == nil {
		t.Fatal("expiry alerts not refreshed after add")
	}
	red, _ := alerts["red"].([]any)
	if len(red) != 1 {
		t.Errorf("red alerts = %v, want the chicken", alerts["red"])
	}
}

func TestInventory_IndexBounds(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.send(t, http.MethodDelete, "/api/inventory/5", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
	if body["detail"] != "Index 5 not found" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestShopping_InvalidDelivery(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.send(t, http.MethodPut, "/api/shopping/thursday/0/purchased", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", resp.StatusCode)
	}
	if body["detail"] != "Invalid delivery 'thursday'" {
		t.Errorf("detail = %v", body["detail"])
	}
}

func TestShopping_TogglePurchased(t *testing.T) {
	e := newTestEnv(t)
	e.store.Write(docstore.ShoppingList, map[string]any{
		"deliveries": map[string]any{
			"sunday": map[string]any{"items": []any{
				map[string]any{"name": "Eggs", "amount": "12"},
			}},
		},
	})

	resp, body := e.send(t, http.MethodPut, "/api/shopping/sunday/0/purchased", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["purchased"] != true {
		t.Errorf("purchased = %v, want true", body["purchased"])
	}

	// Toggling again flips it back.
	_, body = e.send(t, http.MethodPut, "/api/shopping/sunday/0/purchased", nil)
	if body["purchased"] != false {
		t.Errorf("second toggle purchased = %v, want false", body["purchased"])
	}
}

func TestShopping_QRPNG(t *testing.T) {
	e := newTestEnv(t)
	resp, err := http.Get(e.ts.URL + "/api/shopping/qr")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type = %q, want image/png", ct)
	}
	buf := make([]byte, 8)
	if n, _ := resp.Body.Read(buf); n == 0 {
		t.Error("empty QR body")
	}
}

func TestSettings_Flow(t *testing.T) {
	e := newTestEnv(t)

	_, body := e.get(t, "/api/settings")
	if body["api_key_set"] != false || body["api_key_preview"] != "" {
		t.Errorf("initial settings = %v, want unset", body)
	}

	resp, body := e.send(t, http.MethodPost, "/api/settings", map[string]any{"anthropic_api_key": "bad-key"})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad key accepted: %d", resp.StatusCode)
	}
	if body["detail"] != "Invalid key format — should start with sk-ant-" {
		t.Errorf("detail = %v", body["detail"])
	}

	resp, body = e.send(t, http.MethodPost, "/api/settings", map[string]any{"anthropic_api_key": ""})
	if resp.StatusCode != http.StatusBadRequest || body["detail"] != "API key required" {
		t.Errorf("empty key: status=%d detail=%v", resp.StatusCode, body["detail"])
	}

	key := "sk-ant-REDACTED"
	resp, body = e.send(t, http.MethodPost, "/api/settings", map[string]any{"anthropic_api_key": key})
	if resp.StatusCode != http.StatusOK || body["status"] != "saved" {
		t.Fatalf("save: status=%d body=%v", resp.StatusCode, body)
	}
	if body["claude_enabled"] != true {
		t.Errorf("claude_enabled = %v after save", body["claude_enabled"])
	}

	_, body = e.get(t, "/api/settings")
	want := key[:10] + "..." + key[len(key)-4:]
	if body["api_key_preview"] != want {
		t.Errorf("preview = %v, want %q", body["api_key_preview"], want)
	}
}

func TestKeyPreview_ShortKey(t *testing.T) {
	if got := keyPreview("sk-ant-xyz"); got != "***" {
		t.Errorf("keyPreview(short) = %q, want ***", got)
	}
	if got := keyPreview(""); got != "" {
		t.Errorf("keyPreview(empty) = %q, want empty", got)
	}
}

func TestPreferences_Merge(t *testing.T) {
	e := newTestEnv(t)
	e.store.Write(docstore.Preferences, map[string]any{
		"servings": 2,
		"dayThemes": map[string]any{
			"monday":  "Asian",
			"tuesday": "Mexican",
		},
	})

	resp, body := e.send(t, http.MethodPut, "/api/preferences", map[string]any{
		"dayThemes": map[string]any{"monday": "Thai"},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	themes := body["dayThemes"].(map[string]any)
	if themes["monday"] != "Thai" {
		t.Errorf("monday = %v, want override", themes["monday"])
	}
	if themes["tuesday"] != "Mexican" {
		t.Errorf("tuesday = %v, want sibling preserved by deep merge", themes["tuesday"])
	}
	if body["servings"] != float64(2) {
		t.Errorf("servings = %v, want preserved", body["servings"])
	}
}

func TestUsage_NoReader(t *testing.T) {
	e := newTestEnv(t)
	resp, body := e.get(t, "/api/usage")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if body["tokens_today"] != float64(0) {
		t.Errorf("tokens_today = %v, want 0 with no ledger", body["tokens_today"])
	}
}

func TestChat_RateLimited(t *testing.T) {
	e := newTestEnv(t)
	var last *http.Response
	var lastBody map[string]any
	for i := 0; i < 11; i++ {
		last, lastBody = e.send(t, http.MethodPost, "/api/chat",
			map[string]any{"message": fmt.Sprintf("request %d", i)})
	}
	if last.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("11th request status = %d, want 429", last.StatusCode)
	}
	if lastBody["detail"] != "Rate limit exceeded — try again in a minute" {
		t.Errorf("detail = %v", lastBody["detail"])
	}
	// Drain the runner goroutines spawned by the accepted requests.
	for i := 0; i < 10; i++ {
		e.awaitJob(t)
	}
}
