// Package backend is the HTTP client for the pipeline server that executes
// blocks and introspects component libraries.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/Ekorz-boop/ragflow/internal/editor"
)

const DefaultURL = "http://127.0.0.1:5000"

// Client talks to the pipeline server. It implements editor.Processor.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

var _ editor.Processor = (*Client)(nil)

// New creates a client. A zero timeout leaves requests bounded only by
// their context.
func New(baseURL, token string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: timeout},
	}
}

// BaseURL returns the server address.
func (c *Client) BaseURL() string { return c.baseURL }

// StatusError is a non-2xx answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("non-2xx status %d: %s", e.Code, truncate(e.Body, 300))
}

// doJSON sends an optional JSON body and decodes the JSON answer into T.
func doJSON[T any](ctx context.Context, c *Client, method, path string, query url.Values, body any) (*T, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("error marshaling body: %w", err)
		}
		reader = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reader)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	res, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %w", err)
	}
	defer func(Body io.ReadCloser) {
		if closeErr := Body.Close(); closeErr != nil {
			slog.Warn("failed to close response body", "error", closeErr.Error(), "url", u)
		}
	}(res.Body)

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response body: %w", err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, &StatusError{Code: res.StatusCode, Body: string(raw)}
	}

	var out T
	if len(bytes.TrimSpace(raw)) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("error unmarshaling response (status %d): %w\nResponse preview: %s",
			res.StatusCode, err, truncate(string(raw), 300))
	}
	return &out, nil
}

// Process runs one block on the server. An error status in the body is
// returned as a result, not as an error.
func (c *Client) Process(ctx context.Context, req editor.ProcessRequest) (*editor.ProcessResult, error) {
	body, err := doJSON[map[string]any](ctx, c, http.MethodPost, "/api/blocks/process", nil, req)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			// servers answer 4xx/5xx with a normal error body too
			if res, ok := parseResult([]byte(se.Body)); ok {
				return res, nil
			}
		}
		return nil, err
	}
	return resultFromMap(*body), nil
}

func parseResult(raw []byte) (*editor.ProcessResult, bool) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, false
	}
	if _, ok := m["status"]; !ok {
		return nil, false
	}
	return resultFromMap(m), true
}

func resultFromMap(m map[string]any) *editor.ProcessResult {
	res := &editor.ProcessResult{Fields: map[string]any{}}
	for k, v := range m {
		switch k {
		case "status":
			res.Status, _ = v.(string)
		case "output":
			res.Output = v
		case "message", "error":
			if s, ok := v.(string); ok && res.Message == "" {
				res.Message = s
			}
		default:
			res.Fields[k] = v
		}
	}
	if res.Status == "" {
		res.Status = "success"
	}
	return res
}

// NotifyConnect tells the server about a new edge.
func (c *Client) NotifyConnect(ctx context.Context, source, target string) error {
	_, err := doJSON[map[string]any](ctx, c, http.MethodPost, "/api/blocks/connect", nil, map[string]string{
		"source": source,
		"target": target,
	})
	return err
}

// Export asks the server to generate code for a pipeline.
func (c *Client) Export(ctx context.Context, blocks any, connections []editor.Connection, outputFile string) (string, error) {
	res, err := doJSON[struct {
		Code    string `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	}](ctx, c, http.MethodPost, "/api/blocks/export", nil, map[string]any{
		"blocks":      blocks,
		"connections": connections,
		"output_file": outputFile,
	})
	if err != nil {
		return "", err
	}
	if res.Status == "error" {
		return "", errors.New(res.Message)
	}
	return res.Code, nil
}

// Libraries lists the introspectable component libraries.
func (c *Client) Libraries(ctx context.Context) ([]string, error) {
	return c.list(ctx, "/api/langchain/libraries", nil, "libraries")
}

// Modules lists the modules of a library.
func (c *Client) Modules(ctx context.Context, library string) ([]string, error) {
	return c.list(ctx, "/api/langchain/modules", url.Values{"library": {library}}, "modules")
}

// Classes lists the classes of a module.
func (c *Client) Classes(ctx context.Context, library, module string) ([]string, error) {
	q := url.Values{"module": {module}}
	if library != "" {
		q.Set("library", library)
	}
	return c.list(ctx, "/api/langchain/classes", q, "classes")
}

// ClassDetails fetches doc, component type, constructor parameters and
// methods of a class.
func (c *Client) ClassDetails(ctx context.Context, library, module, class string) (*ClassDetails, error) {
	q := url.Values{"library": {library}, "module": {module}, "class_name": {class}}
	d, err := doJSON[ClassDetails](ctx, c, http.MethodGet, "/api/langchain/class_details", q, nil)
	if err != nil {
		return nil, err
	}
	if d.ClassName == "" {
		d.ClassName = class
	}
	return d, nil
}

// SystemStatus reports whether the local model runtime is available.
func (c *Client) SystemStatus(ctx context.Context) (*SystemStatus, error) {
	m, err := doJSON[map[string]any](ctx, c, http.MethodGet, "/api/system/status", nil, nil)
	if err != nil {
		return nil, err
	}
	st := &SystemStatus{Extra: map[string]any{}}
	for k, v := range *m {
		switch k {
		case "ollama_installed":
			st.OllamaInstalled, _ = v.(bool)
		case "ollama_running":
			st.OllamaRunning, _ = v.(bool)
		case "platform":
			st.Platform, _ = v.(string)
		default:
			st.Extra[k] = v
		}
	}
	return st, nil
}

// Ping checks that the server answers its status endpoint.
func (c *Client) Ping(ctx context.Context) error {
	_, err := doJSON[json.RawMessage](ctx, c, http.MethodGet, "/api/system/status", nil, nil)
	return err
}

// InstallOllama asks the server to install the local model runtime.
func (c *Client) InstallOllama(ctx context.Context) (string, error) {
	res, err := doJSON[struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}](ctx, c, http.MethodPost, "/api/system/install-ollama", nil, map[string]any{})
	if err != nil {
		return "", err
	}
	if res.Status == "error" {
		return "", errors.New(res.Message)
	}
	return res.Message, nil
}

// ListModels lists installed models. The server may answer with names or
// with model objects.
func (c *Client) ListModels(ctx context.Context) ([]Model, error) {
	raw, err := doJSON[json.RawMessage](ctx, c, http.MethodGet, "/api/models/list", nil, nil)
	if err != nil {
		return nil, err
	}
	items, err := unwrapList(*raw, "models")
	if err != nil {
		return nil, err
	}
	out := make([]Model, 0, len(items))
	for _, it := range items {
		var name string
		if json.Unmarshal(it, &name) == nil {
			out = append(out, Model{Name: name})
			continue
		}
		var m Model
		if err := json.Unmarshal(it, &m); err != nil {
			return nil, fmt.Errorf("decoding model: %w", err)
		}
		out = append(out, m)
	}
	return out, nil
}

// ValidateTemplate lets the server check a template before it is applied.
func (c *Client) ValidateTemplate(ctx context.Context, template any) error {
	res, err := doJSON[struct {
		Status  string `json:"status"`
		Message string `json:"message"`
	}](ctx, c, http.MethodPost, "/api/templates/load", nil, map[string]any{"template": template})
	if err != nil {
		return err
	}
	if res.Status == "error" {
		return fmt.Errorf("template rejected: %s", res.Message)
	}
	return nil
}

// list decodes either a bare array of strings or an object holding one
// under key.
func (c *Client) list(ctx context.Context, path string, q url.Values, key string) ([]string, error) {
	raw, err := doJSON[json.RawMessage](ctx, c, http.MethodGet, path, q, nil)
	if err != nil {
		return nil, err
	}
	items, err := unwrapList(*raw, key)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		var s string
		if err := json.Unmarshal(it, &s); err != nil {
			return nil, fmt.Errorf("decoding %s: %w", key, err)
		}
		out = append(out, s)
	}
	return out, nil
}

func unwrapList(raw json.RawMessage, key string) ([]json.RawMessage, error) {
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err == nil {
		return items, nil
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err != nil {
		return nil, fmt.Errorf("unexpected %s response: %w", key, err)
	}
	if msg, ok := obj["error"]; ok {
		var s string
		_ = json.Unmarshal(msg, &s)
		return nil, fmt.Errorf("server error: %s", s)
	}
	inner, ok := obj[key]
	if !ok {
		return nil, fmt.Errorf("response has no %q field", key)
	}
	if err := json.Unmarshal(inner, &items); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	return items, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
