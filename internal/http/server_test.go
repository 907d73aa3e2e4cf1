package http

import (
	"context"
	"encoding/json"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"coinlog/internal/config"
	"coinlog/internal/core"
	"coinlog/internal/session"
	"coinlog/internal/store"
	"coinlog/internal/store/memory"
)

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()

	cfg, chain := config.Load("")
	sess := session.New(cfg, chain, store.MemoryOnly, memory.New(), nil, nil)
	if err := sess.Load(context.Background()); err != nil {
		t.Fatalf("session load: %v", err)
	}

	s := NewServer(":0", sess, chain)
	ts := httptest.NewServer(s.Server.Handler)
	t.Cleanup(ts.Close)
	t.Cleanup(func() { s.Shutdown(context.Background()) })

	return s, ts
}

func postJSON(t *testing.T, url, body string) *nethttp.Response {
	t.Helper()

	resp, err := nethttp.Post(url, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func decodeBody[T any](t *testing.T, resp *nethttp.Response) T {
	t.Helper()
	defer resp.Body.Close()

	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthEndpoints(t *testing.T) {
	_, ts := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		resp, err := nethttp.Get(ts.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != nethttp.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, resp.StatusCode)
		}
	}
}

func TestAddRecordEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/records",
		`{"entity":"マレドラ","base":5000,"boost":5150,"five_to_four":true}`)
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("POST /records = %d, want 201", resp.StatusCode)
	}

	body := decodeBody[recordResponse](t, resp)
	if body.Entity != "マレドラ" {
		t.Errorf("entity = %q", body.Entity)
	}
	if body.Record.Final != 3350 {
		t.Errorf("final = %d, want 3350", body.Record.Final)
	}
	if !body.Save.OK {
		t.Errorf("save not ok: %+v", body.Save)
	}
}

func TestAddRecordValidationError(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/records", `{"entity":"","base":1000,"boost":2000}`)
	resp.Body.Close()
	if resp.StatusCode != nethttp.StatusUnprocessableEntity {
		t.Errorf("POST /records = %d, want 422", resp.StatusCode)
	}
}

func TestAddRecordFormPost(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := nethttp.Post(ts.URL+"/records", "application/x-www-form-urlencoded",
		strings.NewReader("entity=Groudon&base=1000&boost=1250"))
	if err != nil {
		t.Fatalf("POST /records: %v", err)
	}
	if resp.StatusCode != nethttp.StatusCreated {
		t.Fatalf("POST /records = %d, want 201", resp.StatusCode)
	}

	body := decodeBody[recordResponse](t, resp)
	if body.Record.Rate != 1.3 {
		t.Errorf("rate = %v, want 1.3", body.Record.Rate)
	}
}

func TestDeleteLastEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	postJSON(t, ts.URL+"/records", `{"entity":"マレドラ","base":1000,"boost":2000}`).Body.Close()

	req, _ := nethttp.NewRequest(nethttp.MethodDelete, ts.URL+"/records/latest?entity=マレドラ", nil)
	resp, err := nethttp.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("DELETE = %d, want 200", resp.StatusCode)
	}

	body := decodeBody[struct {
		Deleted bool `json:"deleted"`
	}](t, resp)
	if !body.Deleted {
		t.Error("deleted = false, want true")
	}

	// A second delete is a no-op.
	req2, _ := nethttp.NewRequest(nethttp.MethodDelete, ts.URL+"/records/latest?entity=マレドラ", nil)
	resp2, err := nethttp.DefaultClient.Do(req2)
	if err != nil {
		t.Fatalf("DELETE: %v", err)
	}
	body2 := decodeBody[struct {
		Deleted bool `json:"deleted"`
	}](t, resp2)
	if body2.Deleted {
		t.Error("second delete reported deleted = true, want false")
	}
}

func TestCollectionEndpointUsesFileEncoding(t *testing.T) {
	_, ts := newTestServer(t)

	postJSON(t, ts.URL+"/records", `{"entity":"マレドラ","base":1000,"boost":2000}`).Body.Close()

	resp, err := nethttp.Get(ts.URL + "/collection")
	if err != nil {
		t.Fatalf("GET /collection: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(raw), "マレドラ") {
		t.Error("collection response escapes non-ASCII entity name")
	}
	if !strings.Contains(string(raw), "\n  \"") {
		t.Error("collection response is not two-space indented")
	}

	col, err := core.DecodeCollection(raw)
	if err != nil {
		t.Fatalf("response does not parse as collection: %v", err)
	}
	if col.TotalRecords() != 1 {
		t.Errorf("records = %d, want 1", col.TotalRecords())
	}
}

func TestStatsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	postJSON(t, ts.URL+"/records", `{"entity":"マレドラ","base":1000,"boost":2000}`).Body.Close()
	postJSON(t, ts.URL+"/records", `{"entity":"マレドラ","base":1000,"boost":1250}`).Body.Close()

	resp, err := nethttp.Get(ts.URL + "/stats?entity=マレドラ")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("GET /stats = %d, want 200", resp.StatusCode)
	}

	stats := decodeBody[core.EntityStats](t, resp)
	if stats.Plays != 2 {
		t.Errorf("plays = %d, want 2", stats.Plays)
	}
	if stats.TotalFinal != 3250 {
		t.Errorf("total final = %d, want 3250", stats.TotalFinal)
	}
}

func TestStatsUnknownEntity(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := nethttp.Get(ts.URL + "/stats?entity=unknown")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != nethttp.StatusNotFound {
		t.Errorf("GET /stats = %d, want 404", resp.StatusCode)
	}
}

func TestSyncSavesToAuthoritativeStore(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/sync", "")
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("POST /sync = %d, want 200", resp.StatusCode)
	}

	body := decodeBody[map[string]string](t, resp)
	if body["source"] != "memory_only" {
		t.Errorf("source = %q, want memory_only", body["source"])
	}
}

func TestStatsTotalsForAllEntities(t *testing.T) {
	_, ts := newTestServer(t)

	postJSON(t, ts.URL+"/records", `{"entity":"マレドラ","base":1000,"boost":2000}`).Body.Close()
	postJSON(t, ts.URL+"/records", `{"entity":"グラードン","base":1000,"boost":1250}`).Body.Close()

	resp, err := nethttp.Get(ts.URL + "/stats")
	if err != nil {
		t.Fatalf("GET /stats: %v", err)
	}
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("GET /stats = %d, want 200", resp.StatusCode)
	}

	body := decodeBody[struct {
		Entities     []core.EntityStats `json:"entities"`
		TotalRecords int                `json:"total_records"`
	}](t, resp)
	if len(body.Entities) != 2 {
		t.Fatalf("entities = %d, want 2", len(body.Entities))
	}
	if body.TotalRecords != 2 {
		t.Errorf("total_records = %d, want 2", body.TotalRecords)
	}
	// Sorted entity order.
	if body.Entities[0].Entity != "グラードン" {
		t.Errorf("entities[0] = %q, want グラードン first", body.Entities[0].Entity)
	}
}

func TestBackupWithoutWebhook(t *testing.T) {
	_, ts := newTestServer(t)

	resp := postJSON(t, ts.URL+"/backup", "")
	resp.Body.Close()
	if resp.StatusCode != nethttp.StatusConflict {
		t.Errorf("POST /backup = %d, want 409", resp.StatusCode)
	}
}

func TestGetConfigRedactsToken(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := nethttp.Get(ts.URL + "/config")
	if err != nil {
		t.Fatalf("GET /config: %v", err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(resp.Body)
	if strings.Contains(strings.ToLower(string(raw)), "token") {
		t.Errorf("config response mentions token: %s", raw)
	}

	var view configView
	if err := json.Unmarshal(raw, &view); err != nil {
		t.Fatalf("decode config view: %v", err)
	}
	if view.Source != "memory_only" {
		t.Errorf("source = %q, want memory_only", view.Source)
	}
}

func TestPutConfigUpdatesToggles(t *testing.T) {
	_, ts := newTestServer(t)

	body := `{"WEBHOOK_URL":"https://example.com/hook","AUTO_NOTIFY":"true"}`
	req, _ := nethttp.NewRequest(nethttp.MethodPut, ts.URL+"/config", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	resp, err := nethttp.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /config: %v", err)
	}
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("PUT /config = %d, want 200", resp.StatusCode)
	}

	view := decodeBody[configView](t, resp)
	if !view.Webhook.Configured || !view.Webhook.AutoNotify {
		t.Errorf("webhook view = %+v, want configured with auto notify", view.Webhook)
	}
}

func TestPutConfigRejectsStartupOnlyKeys(t *testing.T) {
	_, ts := newTestServer(t)

	req, _ := nethttp.NewRequest(nethttp.MethodPut, ts.URL+"/config",
		strings.NewReader(`{"GITHUB_TOKEN":"secret"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := nethttp.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /config: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != nethttp.StatusUnprocessableEntity {
		t.Errorf("PUT /config = %d, want 422", resp.StatusCode)
	}
}

func TestPutConfigRollsBackInvalidUpdate(t *testing.T) {
	_, ts := newTestServer(t)

	// auto_notify without a webhook URL fails validation.
	req, _ := nethttp.NewRequest(nethttp.MethodPut, ts.URL+"/config",
		strings.NewReader(`{"AUTO_NOTIFY":"true"}`))
	req.Header.Set("Content-Type", "application/json")

	resp, err := nethttp.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("PUT /config: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != nethttp.StatusUnprocessableEntity {
		t.Fatalf("PUT /config = %d, want 422", resp.StatusCode)
	}

	get, err := nethttp.Get(ts.URL + "/config")
	if err != nil {
		t.Fatalf("GET /config: %v", err)
	}
	view := decodeBody[configView](t, get)
	if view.Webhook.AutoNotify {
		t.Error("auto_notify still set after rejected update")
	}
}

func TestActivityEndpointWithoutJournal(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := nethttp.Get(ts.URL + "/activity")
	if err != nil {
		t.Fatalf("GET /activity: %v", err)
	}
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("GET /activity = %d, want 200", resp.StatusCode)
	}

	body := decodeBody[struct {
		Entries []any `json:"entries"`
	}](t, resp)
	if body.Entries == nil {
		t.Error("entries = null, want empty array")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	_, ts := newTestServer(t)

	// Touch another endpoint first so the counter has something to show.
	resp, err := nethttp.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()

	resp, err = nethttp.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	if resp.StatusCode != nethttp.StatusOK {
		t.Fatalf("GET /metrics = %d, want 200", resp.StatusCode)
	}

	body := decodeBody[struct {
		TotalRequests  int64 `json:"total_requests"`
		TrackedClients int   `json:"tracked_clients"`
	}](t, resp)
	if body.TotalRequests < 1 {
		t.Errorf("total_requests = %d, want >= 1", body.TotalRequests)
	}
	if body.TrackedClients != 0 {
		t.Errorf("tracked_clients = %d, want 0 for GET-only traffic", body.TrackedClients)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := nethttp.Get(ts.URL + "/records")
	if err != nil {
		t.Fatalf("GET /records: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != nethttp.StatusMethodNotAllowed {
		t.Errorf("GET /records = %d, want 405", resp.StatusCode)
	}
	if allow := resp.Header.Get("Allow"); allow != "POST" {
		t.Errorf("Allow = %q, want POST", allow)
	}
}

func TestSecurityHeadersApplied(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := nethttp.Get(ts.URL + "/healthz")
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if got := resp.Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := resp.Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}
