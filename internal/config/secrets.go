package config

import (
	"fmt"
	"os"
	"strings"
)

// Secret environment variables read by the editor.
const (
	EnvBackendToken = "RAGFLOW_BACKEND_TOKEN"
	EnvEditorUser   = "RAGFLOW_EDITOR_USER"
	EnvEditorPass   = "RAGFLOW_EDITOR_PASS"
	EnvViewerUser   = "RAGFLOW_VIEWER_USER"
	EnvViewerPass   = "RAGFLOW_VIEWER_PASS"
	EnvTLSCert      = "RAGFLOW_TLS_CERT"
	EnvTLSKey       = "RAGFLOW_TLS_KEY"
)

// ResolveSecret reads a secret value using the *_FILE convention.
// If envName+"_FILE" is set, the secret is read from that file path.
// Otherwise the value of envName is returned (empty when unset).
func ResolveSecret(envName string) (string, error) {
	fileEnv := envName + "_FILE"
	if filePath := os.Getenv(fileEnv); filePath != "" {
		content, err := os.ReadFile(filePath)
		if err != nil {
			return "", fmt.Errorf("failed to read secret from %s=%s: %w", fileEnv, filePath, err)
		}
		return strings.TrimSpace(string(content)), nil
	}

	return os.Getenv(envName), nil
}

// Credentials is a username/password pair resolved from the environment.
type Credentials struct {
	User string
	Pass string
}

// Set reports whether both halves are present.
func (c Credentials) Set() bool {
	return c.User != "" && c.Pass != ""
}

// ResolveCredentials resolves a user/pass pair with ResolveSecret.
func ResolveCredentials(userEnv, passEnv string) (Credentials, error) {
	user, err := ResolveSecret(userEnv)
	if err != nil {
		return Credentials{}, err
	}
	pass, err := ResolveSecret(passEnv)
	if err != nil {
		return Credentials{}, err
	}
	return Credentials{User: user, Pass: pass}, nil
}
