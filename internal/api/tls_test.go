package api

import (
	"testing"
)

func setTLSEnv(t *testing.T, cert, key string) {
	t.Helper()
	t.Setenv("RAGFLOW_TLS_CERT", cert)
	t.Setenv("RAGFLOW_TLS_KEY", key)
	t.Setenv("RAGFLOW_TLS_CERT_FILE", "")
	t.Setenv("RAGFLOW_TLS_KEY_FILE", "")
	SetTLSConfigForTest(nil)
}

func TestInitTLS_NoEnvVars(t *testing.T) {
	setTLSEnv(t, "", "")

	if err := InitTLS(); err != nil {
		t.Fatalf("InitTLS failed: %v", err)
	}

	if IsTLSEnabled() {
		t.Error("TLS should not be enabled when env vars are not set")
	}
}

func TestInitTLS_OnlyCert(t *testing.T) {
	setTLSEnv(t, "/path/to/cert.pem", "")
	InitTLS()

	if IsTLSEnabled() {
		t.Error("TLS should not be enabled when only cert is set")
	}
}

func TestInitTLS_OnlyKey(t *testing.T) {
	setTLSEnv(t, "", "/path/to/key.pem")
	InitTLS()

	if IsTLSEnabled() {
		t.Error("TLS should not be enabled when only key is set")
	}
}

func TestInitTLS_BothSet(t *testing.T) {
	setTLSEnv(t, "/path/to/cert.pem", "/path/to/key.pem")
	defer SetTLSConfigForTest(nil)

	if err := InitTLS(); err != nil {
		t.Fatalf("InitTLS failed: %v", err)
	}

	if !IsTLSEnabled() {
		t.Error("TLS should be enabled when both cert and key are set")
	}

	cfg := GetTLSConfig()
	if cfg == nil {
		t.Fatal("GetTLSConfig should return non-nil when TLS is enabled")
	}
	if cfg.CertFile != "/path/to/cert.pem" {
		t.Errorf("CertFile = %q, want %q", cfg.CertFile, "/path/to/cert.pem")
	}
	if cfg.KeyFile != "/path/to/key.pem" {
		t.Errorf("KeyFile = %q, want %q", cfg.KeyFile, "/path/to/key.pem")
	}
}

func TestInitTLS_MissingSecretFile(t *testing.T) {
	setTLSEnv(t, "", "")
	t.Setenv("RAGFLOW_TLS_CERT_FILE", "/nonexistent/cert-path")

	if err := InitTLS(); err == nil {
		t.Error("expected error for unreadable *_FILE secret")
	}
}

func TestLoadTLSConfig_NotEnabled(t *testing.T) {
	SetTLSConfigForTest(nil)

	cfg := LoadTLSConfig()
	if cfg != nil {
		t.Error("LoadTLSConfig should return nil when TLS is not enabled")
	}
}

func TestLoadTLSConfig_InvalidFiles(t *testing.T) {
	SetTLSConfigForTest(&TLSConfig{
		CertFile: "/nonexistent/cert.pem",
		KeyFile:  "/nonexistent/key.pem",
	})
	defer SetTLSConfigForTest(nil)

	cfg := LoadTLSConfig()
	if cfg != nil {
		t.Error("LoadTLSConfig should return nil when cert files don't exist")
	}
}
