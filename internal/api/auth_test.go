package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/Ekorz-boop/ragflow/internal/config"
)

func resetAuth() {
	auth = nil
}

func enableTestAuth() {
	auth = &authConfig{
		editor:  config.Credentials{User: "editor", Pass: "secret"},
		viewer:  config.Credentials{User: "viewer", Pass: "viewsecret"},
		enabled: true,
	}
}

// call runs handler with optional basic auth and reports whether it ran.
func call(handler func(http.HandlerFunc) http.HandlerFunc, user, pass string) (bool, int) {
	called := false
	h := handler(func(w http.ResponseWriter, r *http.Request) {
		called = true
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/test", nil)
	if user != "" {
		req.SetBasicAuth(user, pass)
	}
	w := httptest.NewRecorder()
	h(w, req)
	return called, w.Code
}

func TestAuthDisabledWhenNoEnvVars(t *testing.T) {
	resetAuth()
	t.Setenv("RAGFLOW_EDITOR_USER", "")
	t.Setenv("RAGFLOW_EDITOR_PASS", "")
	t.Setenv("RAGFLOW_VIEWER_USER", "")
	t.Setenv("RAGFLOW_VIEWER_PASS", "")

	if err := InitAuth(); err != nil {
		t.Fatalf("InitAuth failed: %v", err)
	}
	defer resetAuth()

	if IsAuthEnabled() {
		t.Error("auth should be disabled when no env vars are set")
	}

	called, code := call(RequireEditor, "", "")
	if !called {
		t.Error("handler should be called when auth is disabled")
	}
	if code != http.StatusOK {
		t.Errorf("expected status 200, got %d", code)
	}
}

func TestInitAuthFromEnv(t *testing.T) {
	resetAuth()
	t.Setenv("RAGFLOW_EDITOR_USER", "ed")
	t.Setenv("RAGFLOW_EDITOR_PASS", "pw")
	t.Setenv("RAGFLOW_VIEWER_USER", "")
	t.Setenv("RAGFLOW_VIEWER_PASS", "")

	if err := InitAuth(); err != nil {
		t.Fatalf("InitAuth failed: %v", err)
	}
	defer resetAuth()

	if !IsAuthEnabled() {
		t.Fatal("auth should be enabled")
	}
	if called, _ := call(RequireEditor, "ed", "pw"); !called {
		t.Error("editor from env should be accepted")
	}
}

func TestAuthEnabledRequiresCredentials(t *testing.T) {
	enableTestAuth()
	defer resetAuth()

	called, code := call(RequireAnyRole, "", "")
	if called {
		t.Error("handler should NOT be called without credentials")
	}
	if code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", code)
	}
}

func TestWWWAuthenticateHeader(t *testing.T) {
	enableTestAuth()
	defer resetAuth()

	h := RequireAnyRole(func(w http.ResponseWriter, r *http.Request) {})
	w := httptest.NewRecorder()
	h(w, httptest.NewRequest("GET", "/test", nil))

	if w.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate header")
	}
}

func TestRoles(t *testing.T) {
	enableTestAuth()
	defer resetAuth()

	tests := []struct {
		name       string
		handler    func(http.HandlerFunc) http.HandlerFunc
		user, pass string
		wantCalled bool
		wantCode   int
	}{
		{"editor reads", RequireAnyRole, "editor", "secret", true, http.StatusOK},
		{"viewer reads", RequireAnyRole, "viewer", "viewsecret", true, http.StatusOK},
		{"editor edits", RequireEditor, "editor", "secret", true, http.StatusOK},
		{"viewer cannot edit", RequireEditor, "viewer", "viewsecret", false, http.StatusForbidden},
		{"wrong password", RequireAnyRole, "editor", "wrong", false, http.StatusUnauthorized},
		{"unknown user", RequireAnyRole, "someone", "secret", false, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		called, code := call(tt.handler, tt.user, tt.pass)
		if called != tt.wantCalled {
			t.Errorf("%s: expected called=%v, got %v", tt.name, tt.wantCalled, called)
		}
		if code != tt.wantCode {
			t.Errorf("%s: expected status %d, got %d", tt.name, tt.wantCode, code)
		}
	}
}

func TestAuthWithOnlyEditorConfigured(t *testing.T) {
	auth = &authConfig{
		editor:  config.Credentials{User: "editor", Pass: "secret"},
		enabled: true,
	}
	defer resetAuth()

	if called, _ := call(RequireAnyRole, "editor", "secret"); !called {
		t.Error("handler should be called with valid editor credentials")
	}

	called, code := call(RequireAnyRole, "", "anything")
	if called {
		t.Error("handler should NOT be called without credentials")
	}
	if code != http.StatusUnauthorized {
		t.Errorf("expected status 401, got %d", code)
	}
}

func TestSecureCompare(t *testing.T) {
	if !secureCompare("test", "test") {
		t.Error("identical strings should match")
	}
	if secureCompare("test", "Test") {
		t.Error("different case should not match")
	}
	if secureCompare("test", "test1") {
		t.Error("different strings should not match")
	}
	if secureCompare("", "test") {
		t.Error("empty vs non-empty should not match")
	}
}
