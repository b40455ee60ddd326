package api

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

// readiness tracks the dependencies the /ready endpoint reports on.
// MQTT and Postgres are optional unless configured.
var readiness = struct {
	mu                sync.RWMutex
	sessionReady      bool
	backendReachable  bool
	backendOptional   bool
	mqttConnected     bool
	mqttOptional      bool
	postgresConnected bool
	postgresOptional  bool
}{
	backendOptional:  true,
	mqttOptional:     true,
	postgresOptional: true,
}

// Check is the status of one dependency.
type Check struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type ReadinessResponse struct {
	Ready  bool             `json:"ready"`
	Checks map[string]Check `json:"checks"`
}

func SetSessionReady(ok bool) {
	readiness.mu.Lock()
	readiness.sessionReady = ok
	readiness.mu.Unlock()
}

// SetBackendStatus records whether the processing backend answered its last
// probe. A required backend makes /ready fail while unreachable.
func SetBackendStatus(reachable, required bool) {
	readiness.mu.Lock()
	readiness.backendReachable = reachable
	readiness.backendOptional = !required
	readiness.mu.Unlock()
}

func SetMQTTStatus(connected, required bool) {
	readiness.mu.Lock()
	readiness.mqttConnected = connected
	readiness.mqttOptional = !required
	readiness.mu.Unlock()
}

func SetPostgresStatus(connected, required bool) {
	readiness.mu.Lock()
	readiness.postgresConnected = connected
	readiness.postgresOptional = !required
	readiness.mu.Unlock()
}

func dependencyCheck(ok, optional bool) Check {
	switch {
	case ok:
		return Check{Status: "ok"}
	case optional:
		return Check{Status: "skipped", Detail: "not configured"}
	default:
		return Check{Status: "fail"}
	}
}

func readyHandler(w http.ResponseWriter, r *http.Request) {
	readiness.mu.RLock()
	checks := map[string]Check{
		"session":  dependencyCheck(readiness.sessionReady, false),
		"backend":  dependencyCheck(readiness.backendReachable, readiness.backendOptional),
		"mqtt":     dependencyCheck(readiness.mqttConnected, readiness.mqttOptional),
		"postgres": dependencyCheck(readiness.postgresConnected, readiness.postgresOptional),
	}
	readiness.mu.RUnlock()

	ready := true
	for _, c := range checks {
		if c.Status == "fail" {
			ready = false
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if !ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	_ = json.NewEncoder(w).Encode(ReadinessResponse{Ready: ready, Checks: checks})
}

// StatusProber is the part of the backend client the readiness probe uses.
type StatusProber interface {
	Ping(ctx context.Context) error
}

// StartBackendProbe pings the backend every interval until ctx is done.
func StartBackendProbe(ctx context.Context, p StatusProber, interval time.Duration, required bool) {
	probe := func() {
		pctx, cancel := context.WithTimeout(ctx, interval)
		defer cancel()
		SetBackendStatus(p.Ping(pctx) == nil, required)
	}
	go func() {
		probe()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				probe()
			}
		}
	}()
}
