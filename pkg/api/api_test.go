package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"pulserelay/internal/sweeper"
	"pulserelay/pkg/auth"
	"pulserelay/pkg/mailbox"
	"pulserelay/pkg/models"
	"pulserelay/pkg/store"
	"pulserelay/pkg/telemetry"
	"pulserelay/pkg/wire"
)

func newTestServer(t *testing.T, sec auth.SecConfig) (*httptest.Server, *store.Pebble) {
	t.Helper()
	db, err := store.Open(t.TempDir(), store.Options{})
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	mbx := mailbox.New(db, mailbox.Config{DeviceID: "relay-test"})
	t.Cleanup(mbx.Close)

	srv := &Server{
		Mailbox:   mbx,
		Sweeper:   sweeper.New(db),
		Telemetry: telemetry.NewService(db),
		Ready:     db.Ready,
	}
	ts := httptest.NewServer(srv.Router(sec))
	t.Cleanup(ts.Close)
	return ts, db
}

func doJSON(t *testing.T, method, url string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()
	var out bytes.Buffer
	if _, err := out.ReadFrom(resp.Body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp, out.Bytes()
}

func TestSubmitAndCollectResponse(t *testing.T) {
	ts, db := newTestServer(t, auth.SecConfig{})

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/requests", map[string]any{
		"request_type": "general_query",
		"prompt":       "how is the network",
	}, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("submit: status %d body %s", resp.StatusCode, body)
	}
	var submitted struct {
		ID        string `json:"id"`
		Status    string `json:"status"`
		ExpiresAt string `json:"expires_at"`
	}
	if err := json.Unmarshal(body, &submitted); err != nil {
		t.Fatalf("unmarshal submit reply: %v", err)
	}
	if submitted.ID == "" || submitted.Status != "pending" || submitted.ExpiresAt == "" {
		t.Fatalf("unexpected submit reply %+v", submitted)
	}

	// pending shows it
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/requests/pending", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("pending: status %d", resp.StatusCode)
	}
	var pending struct {
		Requests []models.Request `json:"requests"`
	}
	if err := json.Unmarshal(body, &pending); err != nil {
		t.Fatalf("unmarshal pending: %v", err)
	}
	if len(pending.Requests) != 1 || pending.Requests[0].ID != submitted.ID {
		t.Fatalf("unexpected pending set %+v", pending.Requests)
	}

	// nothing to poll yet
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/requests/"+submitted.ID+"/response?timeout=0", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("poll before response: status %d", resp.StatusCode)
	}

	// worker answers
	answer, _ := json.Marshal(map[string]any{
		"timestamp":  wire.FormatTime(time.Now().UTC()),
		"request_id": submitted.ID,
		"device_id":  "worker-1",
		"response":   "all clear",
		"success":    true,
	})
	if _, err := db.Append(context.Background(), models.ColAIResponses, answer); err != nil {
		t.Fatalf("append response: %v", err)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/requests/"+submitted.ID+"/response?timeout=2s", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("await: status %d body %s", resp.StatusCode, body)
	}
	var got models.Response
	if err := json.Unmarshal(body, &got); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if got.RequestID != submitted.ID || got.Text != "all clear" || !got.Success {
		t.Fatalf("unexpected response %+v", got)
	}
}

func TestSubmitValidation(t *testing.T) {
	ts, _ := newTestServer(t, auth.SecConfig{})

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/requests", map[string]any{
		"request_type": "read_minds", "prompt": "p",
	}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown kind: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/requests", map[string]any{
		"request_type": "general_query", "prompt": "",
	}, nil)
	if resp.StatusCode != http.StatusInternalServerError {
		t.Fatalf("empty prompt: status %d", resp.StatusCode)
	}
}

func TestAwaitTimesOutWith504(t *testing.T) {
	ts, db := newTestServer(t, auth.SecConfig{})

	req := models.NewRequest(models.KindGeneralQuery, "p", "relay-test", time.Minute)
	data, _ := wire.EncodeRequest(req)
	id, err := db.Append(context.Background(), models.ColAIRequests, data)
	if err != nil {
		t.Fatalf("append request: %v", err)
	}

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/requests/"+id+"/response?timeout=100ms", nil, nil)
	if resp.StatusCode != http.StatusGatewayTimeout {
		t.Fatalf("expected 504, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/requests/"+id+"/response?timeout=banana", nil, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad timeout, got %d", resp.StatusCode)
	}
}

func TestCancelEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, auth.SecConfig{})
	resp, _ := doJSON(t, http.MethodDelete, ts.URL+"/v1/requests/whatever", nil, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("cancel: status %d", resp.StatusCode)
	}
}

func TestUpdateStatusEndpoint(t *testing.T) {
	ts, db := newTestServer(t, auth.SecConfig{})

	req := models.NewRequest(models.KindGeneralQuery, "p", "relay-test", time.Minute)
	data, _ := wire.EncodeRequest(req)
	id, err := db.Append(context.Background(), models.ColAIRequests, data)
	if err != nil {
		t.Fatalf("append request: %v", err)
	}

	resp, _ := doJSON(t, http.MethodPost, ts.URL+"/v1/requests/"+id+"/status",
		map[string]string{"status": "processing"}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("processing: status %d", resp.StatusCode)
	}

	// backwards transition is a conflict
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/requests/"+id+"/status",
		map[string]string{"status": "pending"}, nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("backwards: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/requests/"+id+"/status",
		map[string]string{"status": "resting"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("unknown status: status %d", resp.StatusCode)
	}
}

func TestHealingEndpoint(t *testing.T) {
	ts, db := newTestServer(t, auth.SecConfig{})

	raw, _ := json.Marshal(telemetry.Anomaly{
		Timestamp: time.Now().UTC(), DeviceID: "relay-test",
		Kind: telemetry.AnomalyLatencySpike, Severity: telemetry.SeverityWarning,
		Description: "latency creeping up",
	})
	anomalyID, err := db.Append(context.Background(), telemetry.ColAnomalies, raw)
	if err != nil {
		t.Fatalf("append anomaly: %v", err)
	}

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/requests/healing", map[string]string{
		"anomaly_id": anomalyID, "context": "evening peak",
	}, nil)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("healing: status %d body %s", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/requests/healing", map[string]string{
		"anomaly_id": "no-such-anomaly",
	}, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("missing anomaly: status %d", resp.StatusCode)
	}
}

func TestTelemetryEndpoints(t *testing.T) {
	ts, db := newTestServer(t, auth.SecConfig{})
	ctx := context.Background()

	raw, _ := json.Marshal(telemetry.NetworkMetrics{Timestamp: time.Now().UTC(), PingAvg: 12})
	if _, err := db.Append(ctx, telemetry.ColNetworkMetrics, raw); err != nil {
		t.Fatalf("append metrics: %v", err)
	}

	resp, body := doJSON(t, http.MethodGet, ts.URL+"/v1/telemetry/metrics", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("metrics: status %d", resp.StatusCode)
	}
	var metrics struct {
		Metrics []telemetry.NetworkMetrics `json:"metrics"`
	}
	if err := json.Unmarshal(body, &metrics); err != nil {
		t.Fatalf("unmarshal metrics: %v", err)
	}
	if len(metrics.Metrics) != 1 || metrics.Metrics[0].PingAvg != 12 {
		t.Fatalf("unexpected metrics %+v", metrics.Metrics)
	}

	// save an action through the API and read it back
	resp, body = doJSON(t, http.MethodPost, ts.URL+"/v1/telemetry/actions", telemetry.AgentAction{
		Kind: telemetry.ActionCacheFlush, Description: "flushed dns cache", Success: true,
	}, nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("save action: status %d body %s", resp.StatusCode, body)
	}
	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/telemetry/actions", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("actions: status %d", resp.StatusCode)
	}
	var actions struct {
		Actions []telemetry.AgentAction `json:"actions"`
	}
	if err := json.Unmarshal(body, &actions); err != nil {
		t.Fatalf("unmarshal actions: %v", err)
	}
	if len(actions.Actions) != 1 || actions.Actions[0].Kind != telemetry.ActionCacheFlush {
		t.Fatalf("unexpected actions %+v", actions.Actions)
	}

	// resolving an unknown anomaly is a 404
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/telemetry/anomalies/nope/resolve", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("resolve missing: status %d", resp.StatusCode)
	}
}

func TestAgentStateEndpoint(t *testing.T) {
	ts, _ := newTestServer(t, auth.SecConfig{})

	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/v1/telemetry/agent/state", nil, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("unpublished state: status %d", resp.StatusCode)
	}

	resp, body := doJSON(t, http.MethodPut, ts.URL+"/v1/telemetry/agent/state", telemetry.AgentState{
		Status: telemetry.AgentAnalyzing, CurrentTask: "tracing packet loss", ModelVersion: "v2.1",
	}, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("publish state: status %d body %s", resp.StatusCode, body)
	}

	resp, body = doJSON(t, http.MethodGet, ts.URL+"/v1/telemetry/agent/state", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("read state: status %d", resp.StatusCode)
	}
	var st telemetry.AgentState
	if err := json.Unmarshal(body, &st); err != nil {
		t.Fatalf("unmarshal state: %v", err)
	}
	if st.Status != telemetry.AgentAnalyzing || st.CurrentTask != "tracing packet loss" {
		t.Fatalf("unexpected state %+v", st)
	}
	if st.LastActionTimestamp == nil {
		t.Fatal("timestamp was not stamped on publish")
	}

	// status is mandatory
	resp, _ = doJSON(t, http.MethodPut, ts.URL+"/v1/telemetry/agent/state", telemetry.AgentState{ModelVersion: "v2.1"}, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("missing status: status %d", resp.StatusCode)
	}
}

func TestSweepEndpoint(t *testing.T) {
	ts, db := newTestServer(t, auth.SecConfig{})

	req := models.NewRequest(models.KindGeneralQuery, "p", "relay-test", time.Minute)
	req.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	data, _ := wire.EncodeRequest(req)
	if _, err := db.Append(context.Background(), models.ColAIRequests, data); err != nil {
		t.Fatalf("append request: %v", err)
	}

	resp, body := doJSON(t, http.MethodPost, ts.URL+"/v1/admin/sweep", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("sweep: status %d body %s", resp.StatusCode, body)
	}
	var swept struct {
		Swept int `json:"swept"`
	}
	if err := json.Unmarshal(body, &swept); err != nil {
		t.Fatalf("unmarshal sweep: %v", err)
	}
	if swept.Swept != 1 {
		t.Fatalf("expected 1 swept, got %d", swept.Swept)
	}
}

func TestAuthGateway(t *testing.T) {
	sec := auth.SecConfig{
		ClientKeys: map[string]struct{}{"client-key": {}},
		AdminKeys:  map[string]struct{}{"admin-key": {}},
	}
	ts, _ := newTestServer(t, sec)

	// health probes bypass auth
	resp, _ := doJSON(t, http.MethodGet, ts.URL+"/healthz", nil, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("healthz: status %d", resp.StatusCode)
	}

	// no key at all
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/requests/pending", nil, nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("no key: status %d", resp.StatusCode)
	}

	// wrong key
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/requests/pending", nil,
		map[string]string{"X-API-Key": "guess"})
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("wrong key: status %d", resp.StatusCode)
	}

	// client key works on client surface
	resp, _ = doJSON(t, http.MethodGet, ts.URL+"/v1/requests/pending", nil,
		map[string]string{"Authorization": "Bearer client-key"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("client key: status %d", resp.StatusCode)
	}

	// but not on the admin surface
	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/sweep", nil,
		map[string]string{"Authorization": "Bearer client-key"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("client on admin: status %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, http.MethodPost, ts.URL+"/v1/admin/sweep", nil,
		map[string]string{"Authorization": "Bearer admin-key"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("admin key: status %d", resp.StatusCode)
	}
}
