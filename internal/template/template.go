// Package template saves editor sessions to portable JSON documents and
// rebuilds sessions from them.
package template

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/Ekorz-boop/ragflow/internal/editor"
	"github.com/Ekorz-boop/ragflow/internal/events"
)

// FileSuffix is appended to the slug of a template name.
const FileSuffix = "_template.json"

// Config keys holding custom block metadata in a snapshot.
const (
	keyModuleInfo     = "moduleInfo"
	keyMethods        = "methods"
	keySelectedMethod = "selectedMethod"
	keyParameters     = "parameters"
	keyCategory       = "category"
)

// Template is a named snapshot of a whole graph.
type Template struct {
	ID          string                   `json:"id"`
	Name        string                   `json:"name"`
	CreatedAt   string                   `json:"created_at"`
	Blocks      map[string]BlockSnapshot `json:"blocks"`
	Connections []editor.Connection      `json:"connections"`

	// Order is the registration order of the blocks. Documents without it
	// load in natural id order.
	Order []string `json:"order,omitempty"`
}

// BlockSnapshot is the persisted form of a block. Custom blocks carry their
// class metadata inside Config.
type BlockSnapshot struct {
	ID          string         `json:"id"`
	Type        string         `json:"type"`
	Position    editor.Point   `json:"position"`
	InputNodes  []string       `json:"inputNodes"`
	OutputNodes []string       `json:"outputNodes"`
	Custom      bool           `json:"custom"`
	ClassName   string         `json:"className,omitempty"`
	Config      map[string]any `json:"config"`
}

// Save snapshots the session.
func Save(s *editor.Session, name string) *Template {
	now := time.Now().UTC()
	t := &Template{
		ID:          fmt.Sprintf("tpl-%d", now.UnixNano()),
		Name:        name,
		CreatedAt:   now.Format(time.RFC3339),
		Blocks:      make(map[string]BlockSnapshot),
		Connections: s.Connections(),
	}
	if t.Connections == nil {
		t.Connections = []editor.Connection{}
	}

	for _, b := range s.Blocks() {
		snap := BlockSnapshot{
			ID:          b.ID,
			Type:        b.Type,
			Position:    b.Position,
			InputNodes:  b.InputNodes,
			OutputNodes: b.OutputNodes,
			Config:      b.Config,
		}
		if b.Custom != nil {
			snap.Custom = true
			snap.ClassName = b.Custom.ClassName
			snap.Config[keyModuleInfo] = b.Custom.ModuleInfo
			snap.Config[keyMethods] = b.Custom.Methods
			snap.Config[keySelectedMethod] = b.Custom.SelectedMethod
			snap.Config[keyParameters] = b.Custom.Parameters
			if class, ok := s.Palette().Get(b.Custom.ClassName); ok && class.Category != editor.CategoryNone {
				snap.Config[keyCategory] = string(class.Category)
			}
		}
		t.Blocks[b.ID] = snap
		t.Order = append(t.Order, b.ID)
	}

	events.Emit("info", "template.saved", "", map[string]interface{}{
		"session_id":  s.ID(),
		"template_id": t.ID,
		"name":        name,
		"blocks":      len(t.Blocks),
		"connections": len(t.Connections),
	})
	return t
}

// Marshal encodes a template as indented JSON.
func Marshal(t *Template) ([]byte, error) {
	return json.MarshalIndent(t, "", "  ")
}

var slugRe = regexp.MustCompile(`[^a-z0-9]+`)

// Filename returns the download name for a template.
func Filename(name string) string {
	slug := strings.Trim(slugRe.ReplaceAllString(strings.ToLower(name), "_"), "_")
	if slug == "" {
		slug = "pipeline"
	}
	return slug + FileSuffix
}

// blockOrder returns the ids in load order: the saved order first, then any
// remaining ids in natural order.
func (t *Template) blockOrder() []string {
	seen := make(map[string]bool, len(t.Blocks))
	var out []string
	for _, id := range t.Order {
		if _, ok := t.Blocks[id]; ok && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	var rest []string
	for id := range t.Blocks {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Slice(rest, func(i, j int) bool { return naturalLess(rest[i], rest[j]) })
	return append(out, rest...)
}

// naturalLess orders "query-2" before "query-10".
func naturalLess(a, b string) bool {
	pa, na := splitID(a)
	pb, nb := splitID(b)
	if pa != pb {
		return pa < pb
	}
	if na != nb {
		return na < nb
	}
	return a < b
}

func splitID(id string) (string, int) {
	i := strings.LastIndex(id, "-")
	if i < 0 {
		return id, 0
	}
	n, err := strconv.Atoi(id[i+1:])
	if err != nil {
		return id, 0
	}
	return id[:i], n
}
