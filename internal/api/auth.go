package api

import (
	"crypto/subtle"
	"fmt"
	"net/http"

	"github.com/Ekorz-boop/ragflow/internal/config"
)

// Role represents an authorization role.
type Role string

const (
	// RoleEditor may change the session.
	RoleEditor Role = "editor"
	// RoleViewer may only read it.
	RoleViewer Role = "viewer"
)

// authConfig holds credentials loaded from environment variables.
type authConfig struct {
	editor  config.Credentials
	viewer  config.Credentials
	enabled bool
}

var auth *authConfig

// InitAuth loads credentials from RAGFLOW_EDITOR_* and RAGFLOW_VIEWER_*,
// honouring the *_FILE convention. Without editor credentials
// authentication is disabled.
func InitAuth() error {
	editorCreds, err := config.ResolveCredentials(config.EnvEditorUser, config.EnvEditorPass)
	if err != nil {
		return fmt.Errorf("resolving editor credentials: %w", err)
	}
	viewerCreds, err := config.ResolveCredentials(config.EnvViewerUser, config.EnvViewerPass)
	if err != nil {
		return fmt.Errorf("resolving viewer credentials: %w", err)
	}

	auth = &authConfig{
		editor:  editorCreds,
		viewer:  viewerCreds,
		enabled: editorCreds.Set(),
	}
	return nil
}

// IsAuthEnabled returns true if authentication is configured.
func IsAuthEnabled() bool {
	return auth != nil && auth.enabled
}

// authenticate checks basic auth credentials and returns the role if valid.
// Returns empty string if credentials are invalid.
func authenticate(r *http.Request) Role {
	if auth == nil || !auth.enabled {
		return RoleEditor
	}

	user, pass, ok := r.BasicAuth()
	if !ok {
		return ""
	}

	if matches(auth.editor, user, pass) {
		return RoleEditor
	}
	if matches(auth.viewer, user, pass) {
		return RoleViewer
	}
	return ""
}

func matches(c config.Credentials, user, pass string) bool {
	return c.Set() && secureCompare(user, c.User) && secureCompare(pass, c.Pass)
}

// secureCompare performs constant-time string comparison to prevent timing attacks.
func secureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// requireAuth returns 401 Unauthorized with WWW-Authenticate header.
func requireAuth(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="ragflow"`)
	http.Error(w, "Unauthorized", http.StatusUnauthorized)
}

// RequireRole wraps a handler and requires one of the specified roles.
func RequireRole(handler http.HandlerFunc, allowedRoles ...Role) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		role := authenticate(r)
		if role == "" {
			requireAuth(w)
			return
		}

		for _, allowed := range allowedRoles {
			if role == allowed {
				handler(w, r)
				return
			}
		}

		http.Error(w, "Forbidden", http.StatusForbidden)
	}
}

// RequireAnyRole wraps a handler requiring editor OR viewer role.
func RequireAnyRole(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleEditor, RoleViewer)
}

// RequireEditor wraps a handler requiring the editor role.
func RequireEditor(handler http.HandlerFunc) http.HandlerFunc {
	return RequireRole(handler, RoleEditor)
}
