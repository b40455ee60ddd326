package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/Ekorz-boop/ragflow/internal/events"
)

// webhookRecorder collects alert payloads posted to a test server.
func webhookRecorder(t *testing.T) (*httptest.Server, chan AlertPayload) {
	t.Helper()
	got := make(chan AlertPayload, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var p AlertPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("failed to decode alert: %v", err)
		}
		got <- p
	}))
	t.Cleanup(srv.Close)
	return srv, got
}

func waitAlert(t *testing.T, got chan AlertPayload) AlertPayload {
	t.Helper()
	select {
	case p := <-got:
		return p
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for alert")
	}
	return AlertPayload{}
}

func TestInitAlertsEnvOverride(t *testing.T) {
	t.Setenv("RAGFLOW_ALERT_WEBHOOK_URL", "http://env.example/hook")
	InitAlerts("http://config.example/hook")
	defer InitAlerts("")

	if got := GetAlertWebhookURL(); got != "http://env.example/hook" {
		t.Errorf("expected env webhook, got %q", got)
	}
}

func TestRunFailureSendsAlert(t *testing.T) {
	srv, got := webhookRecorder(t)
	t.Setenv("RAGFLOW_ALERT_WEBHOOK_URL", "")
	InitAlerts(srv.URL)
	defer InitAlerts("")
	SetEditorName("alerts-test")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	WatchRuns(ctx)

	events.Emit("error", "pipeline.run_failed", "Error processing ai_model block: model not found", map[string]interface{}{
		"block_id": "ai_model-1",
	})

	p := waitAlert(t, got)
	if p.Event != AlertRunFailed {
		t.Errorf("expected event %q, got %q", AlertRunFailed, p.Event)
	}
	if p.Editor != "alerts-test" {
		t.Errorf("expected editor 'alerts-test', got %q", p.Editor)
	}
	if p.Details["block_id"] != "ai_model-1" {
		t.Errorf("expected block_id detail, got %v", p.Details)
	}
}

func TestRunCompletionRecordsSuccess(t *testing.T) {
	InitMetrics()
	handleRunEvent(events.Event{Name: "pipeline.run_completed"})

	metricsState.mu.RLock()
	ts := metricsState.lastRunOKTime
	metricsState.mu.RUnlock()
	if ts <= 0 {
		t.Errorf("expected last run timestamp to be set, got %d", ts)
	}
}

func TestMQTTAlertAfterDelay(t *testing.T) {
	srv, got := webhookRecorder(t)
	t.Setenv("RAGFLOW_ALERT_WEBHOOK_URL", "")
	t.Setenv("RAGFLOW_MQTT_ALERT_DELAY", "0s")
	InitAlerts(srv.URL)
	defer func() {
		InitAlerts("")
		mqttOutage.delay = 30 * time.Second
	}()

	CheckAndAlertMQTT(false)
	p := waitAlert(t, got)
	if p.Event != AlertMQTTDisconnected || p.Severity != SeverityWarning {
		t.Errorf("unexpected alert %+v", p)
	}

	CheckAndAlertMQTT(true)
	p = waitAlert(t, got)
	if p.Severity != SeverityInfo {
		t.Errorf("expected recovery alert, got %+v", p)
	}
}

func TestOutageAlertsOnceAfterDelay(t *testing.T) {
	srv, got := webhookRecorder(t)
	t.Setenv("RAGFLOW_ALERT_WEBHOOK_URL", srv.URL)
	InitAlerts("")
	defer InitAlerts("")

	o := &outage{event: AlertBackendUnreachable, severity: SeverityWarning, label: "backend", delay: time.Minute}
	o.reset()
	start := time.Now()

	o.check(false, start)
	o.check(false, start.Add(30*time.Second))
	if o.alerted {
		t.Fatal("expected no alert before the delay")
	}

	o.check(false, start.Add(time.Minute))
	p := waitAlert(t, got)
	if p.Event != AlertBackendUnreachable || p.Details["down_seconds"] != float64(60) {
		t.Errorf("unexpected alert %+v", p)
	}

	o.check(false, start.Add(2*time.Minute))
	select {
	case p := <-got:
		t.Errorf("expected a single alert, got %+v", p)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestOutageRecoveryWithoutAlertIsSilent(t *testing.T) {
	o := &outage{event: AlertMQTTDisconnected, delay: time.Minute}
	o.reset()
	now := time.Now()
	o.check(false, now)
	o.check(true, now.Add(time.Second))
	if !o.up || o.alerted || !o.downSince.IsZero() {
		t.Errorf("expected a clean state after recovery, got %+v", o)
	}
}
