package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return path
}

func TestLoadYAML(t *testing.T) {
	path := writeFile(t, "ragflow.yaml", `
version: 1
editor:
  name: lab
  grid_size: 20
  propagation_delay: 250ms
  debug_mode: true
backend:
  url: http://backend:5000
  timeout: 30s
network:
  ui_port: 9090
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Editor.Name != "lab" {
		t.Errorf("expected name lab, got %q", cfg.Editor.Name)
	}
	if cfg.Editor.GridSize != 20 {
		t.Errorf("expected grid 20, got %v", cfg.Editor.GridSize)
	}
	if cfg.PropagationDelay() != 250*time.Millisecond {
		t.Errorf("expected 250ms delay, got %v", cfg.PropagationDelay())
	}
	if !cfg.Editor.DebugMode {
		t.Error("expected debug mode on")
	}
	if cfg.BackendTimeout() != 30*time.Second {
		t.Errorf("expected 30s timeout, got %v", cfg.BackendTimeout())
	}
	if cfg.UIPort() != 9090 {
		t.Errorf("expected port 9090, got %d", cfg.UIPort())
	}
	// untouched fields keep defaults
	if cfg.Editor.ZoomMax != 2.0 || cfg.Editor.ZoomStep != 0.1 {
		t.Errorf("expected zoom defaults, got max=%v step=%v", cfg.Editor.ZoomMax, cfg.Editor.ZoomStep)
	}
}

func TestLoadTOML(t *testing.T) {
	path := writeFile(t, "ragflow.toml", `
version = 1

[editor]
grid_size = 40
propagation_delay = "0s"

[mqtt]
url = "tcp://broker:1883"
topic_prefix = "lab"
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PropagationDelay() != 0 {
		t.Errorf("expected zero delay, got %v", cfg.PropagationDelay())
	}
	if cfg.MQTTURL() != "tcp://broker:1883" {
		t.Errorf("unexpected mqtt url %q", cfg.MQTTURL())
	}
	if cfg.MQTT.TopicPrefix != "lab" {
		t.Errorf("unexpected topic prefix %q", cfg.MQTT.TopicPrefix)
	}
}

func TestLoadRejectsVersion(t *testing.T) {
	path := writeFile(t, "ragflow.yaml", "version: 2\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestLoadRejectsMissingVersion(t *testing.T) {
	path := writeFile(t, "ragflow.yaml", "editor:\n  grid_size: 40\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error when version is missing")
	}
}

func TestLoadRejectsBadZoomRange(t *testing.T) {
	path := writeFile(t, "ragflow.yaml", "version: 1\neditor:\n  zoom_min: 3\n  zoom_max: 2\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for inverted zoom range")
	}
}

func TestLoadOrDefaultMissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Editor.GridSize != 40 {
		t.Errorf("expected default grid, got %v", cfg.Editor.GridSize)
	}
}

func TestMQTTURLFallsBackToEnv(t *testing.T) {
	t.Setenv("MQTT_URL", "tcp://env:1883")
	cfg := Default()
	if cfg.MQTTURL() != "tcp://env:1883" {
		t.Errorf("expected env broker, got %q", cfg.MQTTURL())
	}
}
