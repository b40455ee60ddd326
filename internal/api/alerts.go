package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Ekorz-boop/ragflow/internal/events"
)

// Alert severity levels
const (
	SeverityCritical = "critical"
	SeverityWarning  = "warning"
	SeverityInfo     = "info"
)

// Alert event types
const (
	AlertRunFailed           = "run_failed"
	AlertBackendUnreachable  = "backend_unreachable"
	AlertMQTTDisconnected    = "mqtt_disconnected"
	AlertPostgresUnavailable = "postgres_unavailable"
)

// AlertPayload is the JSON structure sent to the webhook.
type AlertPayload struct {
	Editor    string                 `json:"editor"`
	Event     string                 `json:"event"`
	Timestamp string                 `json:"timestamp"`
	Severity  string                 `json:"severity"`
	Message   string                 `json:"message,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
}

// outage follows one dependency. It alerts once the dependency has been down
// for delay and again when it recovers.
type outage struct {
	event    string
	severity string
	label    string
	delayEnv string
	delay    time.Duration

	up        bool
	downSince time.Time
	alerted   bool
}

func (o *outage) reset() {
	o.up = true
	o.downSince = time.Time{}
	o.alerted = false
}

func (o *outage) check(up bool, now time.Time) {
	if up {
		if !o.up && o.alerted {
			go SendAlert(o.event, SeverityInfo, o.label+" recovered", map[string]interface{}{
				"recovered_at": now.UTC().Format(time.RFC3339),
			})
		}
		o.reset()
		return
	}

	if o.up {
		o.downSince = now
	}
	o.up = false

	down := now.Sub(o.downSince)
	if o.alerted || down < o.delay {
		return
	}
	o.alerted = true
	go SendAlert(o.event, o.severity, o.label+" unavailable", map[string]interface{}{
		"down_since":   o.downSince.UTC().Format(time.RFC3339),
		"down_seconds": int(down.Seconds()),
	})
}

var (
	alertMu         sync.Mutex
	alertWebhookURL string
	alertsReady     bool

	backendOutage = &outage{
		event: AlertBackendUnreachable, severity: SeverityWarning, label: "processing backend",
		delayEnv: "RAGFLOW_BACKEND_ALERT_DELAY", delay: 60 * time.Second,
	}
	mqttOutage = &outage{
		event: AlertMQTTDisconnected, severity: SeverityWarning, label: "MQTT broker",
		delayEnv: "RAGFLOW_MQTT_ALERT_DELAY", delay: 30 * time.Second,
	}
	postgresOutage = &outage{
		event: AlertPostgresUnavailable, severity: SeverityCritical, label: "PostgreSQL",
		delayEnv: "RAGFLOW_POSTGRES_ALERT_DELAY", delay: 5 * time.Second,
	}
	outages = []*outage{backendOutage, mqttOutage, postgresOutage}
)

// InitAlerts initializes the alert system. RAGFLOW_ALERT_WEBHOOK_URL
// overrides the configured webhook and the RAGFLOW_*_ALERT_DELAY variables
// override how long a dependency may be down before an alert.
func InitAlerts(webhookURL string) {
	alertMu.Lock()
	defer alertMu.Unlock()

	alertWebhookURL = webhookURL
	if env := os.Getenv("RAGFLOW_ALERT_WEBHOOK_URL"); env != "" {
		alertWebhookURL = env
	}

	attrs := []any{}
	for _, o := range outages {
		if v := os.Getenv(o.delayEnv); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				o.delay = d
			} else {
				slog.Warn("alerts: ignoring bad delay", "env", o.delayEnv, "value", v)
			}
		}
		o.reset()
		attrs = append(attrs, o.event, o.delay)
	}
	if alertWebhookURL != "" {
		slog.Info("alerts enabled", attrs...)
	}
	alertsReady = true
}

// GetAlertWebhookURL returns the configured webhook URL (for testing).
func GetAlertWebhookURL() string {
	alertMu.Lock()
	defer alertMu.Unlock()
	return alertWebhookURL
}

// SendAlert sends an alert to the configured webhook (best-effort, non-blocking).
func SendAlert(event, severity, message string, details map[string]interface{}) {
	alertMu.Lock()
	webhookURL := alertWebhookURL
	alertMu.Unlock()

	if webhookURL == "" {
		slog.Warn("alert", "event", event, "severity", severity, "msg", message, "details", details)
		return
	}

	editorName := GetEditorName()
	if editorName == "" {
		editorName = "unknown"
	}

	payload := AlertPayload{
		Editor:    editorName,
		Event:     event,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Severity:  severity,
		Message:   message,
		Details:   details,
	}

	go sendWebhook(webhookURL, payload)
}

// sendWebhook performs the actual HTTP POST (runs in goroutine).
func sendWebhook(url string, payload AlertPayload) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("alert: failed to marshal payload", "error", err)
		return
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Post(url, "application/json", bytes.NewReader(body))
	if err != nil {
		slog.Error("alert: webhook POST failed", "error", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		slog.Error("alert: webhook returned non-2xx", "status", resp.StatusCode)
	}
}

// WatchRuns follows the event stream until ctx is done. A failed run sends
// an alert and a completed one updates the last-success metric.
func WatchRuns(ctx context.Context) {
	sub := events.Subscribe()
	go func() {
		defer events.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-sub:
				if !ok {
					return
				}
				handleRunEvent(e)
			}
		}
	}()
}

func handleRunEvent(e events.Event) {
	switch e.Name {
	case "pipeline.run_failed":
		SendAlert(AlertRunFailed, SeverityWarning, e.Message, e.Fields)
	case "pipeline.run_completed":
		SetLastRunSuccess(time.Now())
	}
}

func checkOutage(o *outage, up bool) {
	alertMu.Lock()
	defer alertMu.Unlock()
	if alertsReady {
		o.check(up, time.Now())
	}
}

// CheckAndAlertBackend records one backend probe result.
func CheckAndAlertBackend(reachable bool) { checkOutage(backendOutage, reachable) }

// CheckAndAlertMQTT records the broker connection state.
func CheckAndAlertMQTT(connected bool) { checkOutage(mqttOutage, connected) }

// CheckAndAlertPostgres records the event store connection state.
func CheckAndAlertPostgres(connected bool) { checkOutage(postgresOutage, connected) }

// StartAlertMonitor checks the optional sinks every interval. Sinks that
// are not configured are never alerted on.
func StartAlertMonitor(ctx context.Context, checkInterval time.Duration) {
	go func() {
		ticker := time.NewTicker(checkInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			readiness.mu.RLock()
			backendUp := readiness.backendReachable || readiness.backendOptional
			mqttUp := readiness.mqttConnected || readiness.mqttOptional
			postgresUp := readiness.postgresConnected || readiness.postgresOptional
			readiness.mu.RUnlock()

			CheckAndAlertBackend(backendUp)
			CheckAndAlertMQTT(mqttUp)
			CheckAndAlertPostgres(postgresUp)
		}
	}()
}
