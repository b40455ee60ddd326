package api

import (
	"fmt"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Ekorz-boop/ragflow/internal/events"
	"github.com/Ekorz-boop/ragflow/internal/version"
)

// Metrics state
var (
	metricsState = &MetricsState{}
)

// MetricsState holds runtime metrics for the /metrics endpoint.
type MetricsState struct {
	mu            sync.RWMutex
	startTime     time.Time
	editorName    string
	lastRunOKTime int64 // Unix timestamp, -1 if unknown
}

// InitMetrics initializes the metrics system. Must be called at startup.
func InitMetrics() {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.startTime = time.Now()
	metricsState.lastRunOKTime = -1
}

// SetEditorName sets the editor name used as a metrics and alert label.
func SetEditorName(name string) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.editorName = name
}

// GetEditorName returns the current editor name.
func GetEditorName() string {
	metricsState.mu.RLock()
	defer metricsState.mu.RUnlock()
	return metricsState.editorName
}

// SetLastRunSuccess records when a pipeline run last completed.
func SetLastRunSuccess(ts time.Time) {
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	metricsState.lastRunOKTime = ts.Unix()
}

func boolGauge(b bool) int {
	if b {
		return 1
	}
	return 0
}

// metricsHandler returns Prometheus-compatible metrics in text format.
func metricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	metricsState.mu.RLock()
	startTime := metricsState.startTime
	editorName := metricsState.editorName
	lastRunOK := metricsState.lastRunOKTime
	metricsState.mu.RUnlock()

	uptime := time.Since(startTime).Seconds()
	eventsTotal := events.TotalCount()
	wsClients := events.SubscriberCount()

	readiness.mu.RLock()
	backendReachable := readiness.backendReachable
	mqttConnected := readiness.mqttConnected
	postgresConnected := readiness.postgresConnected
	readiness.mu.RUnlock()

	var blocks, connections int
	ws := currentWorkspace()
	if ws != nil && ws.Session != nil {
		blocks = ws.Session.Len()
		connections = len(ws.Session.Connections())
	}

	hostname, _ := os.Hostname()
	if hostname == "" {
		hostname = "unknown"
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")

	writeMetric := func(name, mtype, help string, value interface{}, labels string) {
		fmt.Fprintf(w, "# HELP %s %s\n", name, help)
		fmt.Fprintf(w, "# TYPE %s %s\n", name, mtype)
		if labels != "" {
			fmt.Fprintf(w, "%s{%s} %v\n", name, labels, value)
		} else {
			fmt.Fprintf(w, "%s %v\n", name, value)
		}
	}

	labels := fmt.Sprintf(`editor="%s",instance="%s",version="%s"`, editorName, hostname, version.Version)

	writeMetric("ragflow_uptime_seconds", "gauge",
		"Number of seconds since the editor started", uptime, labels)
	writeMetric("ragflow_events_total", "counter",
		"Total number of events emitted since startup", eventsTotal, labels)
	writeMetric("ragflow_blocks", "gauge",
		"Number of blocks on the canvas", blocks, labels)
	writeMetric("ragflow_connections", "gauge",
		"Number of connections on the canvas", connections, labels)

	if ws != nil && ws.Session != nil {
		st := ws.Session.Engine().Stats()
		writeMetric("ragflow_blocks_processed_total", "counter",
			"Blocks processed successfully", st.Processed, labels)
		writeMetric("ragflow_blocks_failed_total", "counter",
			"Blocks whose processing failed", st.Failed, labels)
		writeMetric("ragflow_runs_total", "counter",
			"Pipeline runs started", st.Runs, labels)
		writeMetric("ragflow_runs_succeeded_total", "counter",
			"Pipeline runs that completed", st.RunsOK, labels)
		writeMetric("ragflow_processing_pending", "gauge",
			"Blocks waiting on a propagation delay or the backend", st.Pending, labels)
	}

	writeMetric("ragflow_backend_reachable", "gauge",
		"Whether the pipeline server answered its last probe (1) or not (0)", boolGauge(backendReachable), labels)
	writeMetric("ragflow_mqtt_connected", "gauge",
		"Whether MQTT broker is connected (1) or not (0)", boolGauge(mqttConnected), labels)
	writeMetric("ragflow_postgres_connected", "gauge",
		"Whether PostgreSQL is connected (1) or not (0)", boolGauge(postgresConnected), labels)
	writeMetric("ragflow_ws_clients", "gauge",
		"Number of active WebSocket client connections", wsClients, labels)
	writeMetric("ragflow_run_last_success_timestamp", "gauge",
		"Unix timestamp of the last completed pipeline run (-1 if unknown)", lastRunOK, labels)
}
