package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/Ekorz-boop/ragflow/internal/editor"
	"github.com/Ekorz-boop/ragflow/internal/events"
	"github.com/Ekorz-boop/ragflow/internal/synth"
	"github.com/Ekorz-boop/ragflow/internal/template"
)

// Workspace is what the handlers operate on: one editor session and the
// controller that turns pointer events into edits on it.
type Workspace struct {
	Session    *editor.Session
	Controller *editor.Controller

	// Introspector backs custom block creation and template loading.
	Introspector synth.Introspector
	// Validator checks templates on the server before they are applied.
	Validator template.Validator
}

var (
	workspaceMu sync.RWMutex
	workspace   *Workspace
)

// SetWorkspace sets the session served by the editor endpoints. A missing
// controller is created.
func SetWorkspace(w *Workspace) {
	if w != nil && w.Controller == nil && w.Session != nil {
		w.Controller = editor.NewController(w.Session)
	}
	workspaceMu.Lock()
	workspace = w
	workspaceMu.Unlock()
	SetSessionReady(w != nil && w.Session != nil)
}

func currentWorkspace() *Workspace {
	workspaceMu.RLock()
	defer workspaceMu.RUnlock()
	return workspace
}

type HealthResponse struct {
	Status    string `json:"status"`
	Service   string `json:"service"`
	Hostname  string `json:"hostname"`
	Timestamp string `json:"ts"`
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	host, _ := os.Hostname()
	resp := HealthResponse{
		Status:    "ok",
		Service:   "ragflow",
		Hostname:  host,
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func eventsHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if name := r.URL.Query().Get("event"); name != "" {
		_ = json.NewEncoder(w).Encode(events.Filter(name))
		return
	}
	_ = json.NewEncoder(w).Encode(events.Snapshot())
}

// Response is the envelope of every editor endpoint.
type Response struct {
	OK    bool        `json:"ok"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

func respond(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{OK: true, Data: data})
}

func fail(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(Response{OK: false, Error: msg})
}

// decodePost rejects anything but a POST with a JSON body.
func decodePost(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if r.Method != http.MethodPost {
		fail(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		fail(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

// requireWorkspace answers 503 when no session is being served.
func requireWorkspace(w http.ResponseWriter) *Workspace {
	ws := currentWorkspace()
	if ws == nil || ws.Session == nil {
		fail(w, http.StatusServiceUnavailable, "no editor session")
		return nil
	}
	return ws
}

// NewMux builds the router with every endpoint wired to its role.
func NewMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	mux.HandleFunc("/ready", readyHandler)
	mux.HandleFunc("/metrics", metricsHandler)
	mux.HandleFunc("/events", RequireAnyRole(eventsHandler))
	mux.HandleFunc("/ws/events", RequireAnyRole(wsEventsHandler))
	mux.HandleFunc("/", RequireAnyRole(uiHandler))

	mux.HandleFunc("/api/session", RequireAnyRole(sessionHandler))
	mux.HandleFunc("/api/scene", RequireAnyRole(sceneHandler))
	mux.HandleFunc("/api/palette", RequireAnyRole(paletteHandler))
	mux.HandleFunc("/api/validate", RequireAnyRole(validateHandler))
	mux.HandleFunc("/api/snapshot.png", RequireAnyRole(snapshotHandler))
	mux.HandleFunc("/api/templates/export", RequireAnyRole(exportHandler))

	mux.HandleFunc("/api/blocks", RequireEditor(placeHandler))
	mux.HandleFunc("/api/blocks/move", RequireEditor(moveHandler))
	mux.HandleFunc("/api/blocks/remove", RequireEditor(removeHandler))
	mux.HandleFunc("/api/blocks/config", RequireEditor(configHandler))
	mux.HandleFunc("/api/blocks/method", RequireEditor(methodHandler))
	mux.HandleFunc("/api/blocks/process", RequireEditor(processHandler))
	mux.HandleFunc("/api/connections", RequireEditor(connectHandler))
	mux.HandleFunc("/api/connections/remove", RequireEditor(disconnectHandler))
	mux.HandleFunc("/api/connections/click", RequireEditor(edgeClickHandler))
	mux.HandleFunc("/api/pointer", RequireEditor(pointerHandler))
	mux.HandleFunc("/api/viewport", RequireEditor(viewportHandler))
	mux.HandleFunc("/api/run", RequireEditor(runHandler))
	mux.HandleFunc("/api/debug", RequireEditor(debugHandler))
	mux.HandleFunc("/api/clear", RequireEditor(clearHandler))
	mux.HandleFunc("/api/templates/import", RequireEditor(importHandler))
	mux.HandleFunc("/api/custom", RequireEditor(customHandler))
	return mux
}

// ListenAndServe starts the API server on the given port.
// It blocks until the server exits.
func ListenAndServe(port int) error {
	addr := fmt.Sprintf(":%d", port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	if IsTLSEnabled() {
		cfg := LoadTLSConfig()
		if cfg == nil {
			return fmt.Errorf("tls configured but certificate could not be loaded")
		}
		srv.TLSConfig = cfg
		slog.Info("api listening", "addr", addr, "tls", true)
		return srv.ListenAndServeTLS("", "")
	}

	slog.Info("api listening", "addr", addr, "tls", false)
	return srv.ListenAndServe()
}

// Start starts the API server in a goroutine.
// Errors are logged but do not stop the caller.
func Start(port int) {
	go func() {
		if err := ListenAndServe(port); err != nil {
			slog.Error("api server error", "error", err)
		}
	}()
}
