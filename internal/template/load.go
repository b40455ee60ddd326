package template

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/Ekorz-boop/ragflow/internal/editor"
	"github.com/Ekorz-boop/ragflow/internal/events"
	"github.com/Ekorz-boop/ragflow/internal/synth"
)

// FormatError means an uploaded document is not a usable template. Nothing
// in the session has been touched when it is returned.
type FormatError struct {
	Reason string
}

func (e *FormatError) Error() string {
	return "invalid template format: " + e.Reason
}

// Validator is a remote check run before a template is applied.
type Validator interface {
	ValidateTemplate(ctx context.Context, template any) error
}

// LoadOptions are the optional collaborators of Apply.
type LoadOptions struct {
	// Validator checks the template on the server first.
	Validator Validator
	// Introspector repopulates custom block methods and parameter
	// defaults; without it the saved snapshot is used as is.
	Introspector synth.Introspector
}

// LoadReport describes what Apply rebuilt.
type LoadReport struct {
	Blocks      int                 `json:"blocks"`
	Connections int                 `json:"connections"`
	Skipped     []editor.Connection `json:"skipped,omitempty"`
	Warnings    []string            `json:"warnings,omitempty"`
}

// Decode reads a whole template document from r and parses it.
func Decode(r io.Reader) (*Template, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading template: %w", err)
	}
	return Parse(data)
}

// Parse decodes and shape-checks a template document.
func Parse(data []byte) (*Template, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &FormatError{Reason: "not a JSON object"}
	}

	rawBlocks, ok := raw["blocks"]
	if !ok {
		return nil, &FormatError{Reason: "missing blocks"}
	}
	var blocks map[string]json.RawMessage
	if err := json.Unmarshal(rawBlocks, &blocks); err != nil {
		return nil, &FormatError{Reason: "blocks must be an object"}
	}
	if len(blocks) == 0 {
		return nil, &FormatError{Reason: "no blocks"}
	}

	rawConns, ok := raw["connections"]
	if !ok {
		return nil, &FormatError{Reason: "missing connections"}
	}
	var conns []json.RawMessage
	if err := json.Unmarshal(rawConns, &conns); err != nil || conns == nil {
		return nil, &FormatError{Reason: "connections must be an array"}
	}

	var t Template
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, &FormatError{Reason: err.Error()}
	}
	typed, valid := false, false
	for _, b := range t.Blocks {
		if b.Type != "" {
			typed = true
		}
		if knownType(b) {
			valid = true
			break
		}
	}
	if !typed {
		return nil, &FormatError{Reason: "no block has a type"}
	}
	if !valid {
		return nil, &FormatError{Reason: "no valid block types"}
	}
	return &t, nil
}

// knownType reports whether a snapshot names a built-in kind or a custom
// class.
func knownType(b BlockSnapshot) bool {
	if b.Custom || b.Type == editor.TypeCustom {
		return true
	}
	_, err := editor.LookupKind(b.Type)
	return err == nil
}

// Apply replaces the session graph with the template. Custom classes are
// registered before their blocks are created, custom blocks get their
// methods and parameters populated before they are placed, and connections
// are recreated after every block exists.
func Apply(ctx context.Context, s *editor.Session, t *Template, opts LoadOptions) (*LoadReport, error) {
	if opts.Validator != nil {
		if err := opts.Validator.ValidateTemplate(ctx, t); err != nil {
			loadFailed(s, err)
			return nil, err
		}
	}

	order := t.blockOrder()
	blocks := make([]editor.Block, 0, len(order))
	report := &LoadReport{}
	for _, id := range order {
		snap := t.Blocks[id]
		if snap.Type == "" {
			report.Warnings = append(report.Warnings, fmt.Sprintf("block %s has no type, skipped", id))
			continue
		}
		if !knownType(snap) {
			report.Warnings = append(report.Warnings, fmt.Sprintf("block %s: unknown block type %s, skipped", id, snap.Type))
			continue
		}
		b, warn := fromSnapshot(ctx, id, snap, opts.Introspector)
		if warn != "" {
			report.Warnings = append(report.Warnings, warn)
		}
		if b.Custom != nil && b.Custom.ClassName == "" {
			report.Warnings = append(report.Warnings, fmt.Sprintf("block %s: custom block has no class, skipped", id))
			continue
		}
		blocks = append(blocks, b)
	}
	// the session is only cleared once something can replace it
	if len(blocks) == 0 {
		err := &FormatError{Reason: "no valid block types"}
		loadFailed(s, err)
		return nil, err
	}

	s.Clear()

	// palette first: placing a custom block reads its class
	for _, b := range blocks {
		if b.Custom == nil {
			continue
		}
		category := editor.Category(stringValue(t.Blocks[b.ID].Config[keyCategory]))
		if category == editor.CategoryNone {
			_, _, category = synth.DerivePorts("", b.Custom.ClassName)
		}
		s.Palette().Register(editor.CustomClass{
			ClassName:  b.Custom.ClassName,
			ModuleInfo: b.Custom.ModuleInfo,
			Inputs:     b.InputNodes,
			Outputs:    b.OutputNodes,
			Methods:    b.Custom.Methods,
			Category:   category,
			Parameters: b.Custom.Parameters,
		})
	}
	for _, b := range blocks {
		if _, err := s.RestoreBlock(b); err != nil {
			report.Warnings = append(report.Warnings, fmt.Sprintf("block %s: %v", b.ID, err))
			continue
		}
		report.Blocks++
	}

	for _, c := range t.Connections {
		resolved, ok := resolveConnection(s, c)
		if !ok {
			report.Skipped = append(report.Skipped, c)
			continue
		}
		if err := s.Connect(resolved.Source, resolved.Target, resolved.InputID); err != nil {
			report.Skipped = append(report.Skipped, c)
			continue
		}
		report.Connections++
	}

	events.Emit("info", "template.loaded", "", map[string]interface{}{
		"session_id":  s.ID(),
		"template_id": t.ID,
		"name":        t.Name,
		"blocks":      report.Blocks,
		"connections": report.Connections,
		"skipped":     len(report.Skipped),
	})
	return report, nil
}

// Load parses data and applies it. Format errors leave the session as it
// was.
func Load(ctx context.Context, s *editor.Session, data []byte, opts LoadOptions) (*LoadReport, error) {
	t, err := Parse(data)
	if err != nil {
		loadFailed(s, err)
		return nil, err
	}
	return Apply(ctx, s, t, opts)
}

func loadFailed(s *editor.Session, err error) {
	msg := "Error loading template: " + err.Error()
	var ferr *FormatError
	if errors.As(err, &ferr) {
		msg = "Invalid template format: " + ferr.Reason
	}
	events.Emit("error", "template.load_failed", msg, map[string]interface{}{
		"session_id": s.ID(),
		"error":      err.Error(),
	})
}

// resolveConnection maps a saved edge onto the rebuilt blocks. Input names
// are matched exactly first, then case-insensitively.
func resolveConnection(s *editor.Session, c editor.Connection) (editor.Connection, bool) {
	if _, ok := s.Block(c.Source); !ok {
		return c, false
	}
	dst, ok := s.Block(c.Target)
	if !ok {
		return c, false
	}
	if dst.HasInput(c.InputID) {
		return c, true
	}
	for _, in := range dst.InputNodes {
		if strings.EqualFold(in, c.InputID) {
			c.InputID = in
			return c, true
		}
	}
	return c, false
}

// fromSnapshot builds the block to restore. Custom metadata is populated
// here, before placement, from introspection when it answers and from the
// snapshot otherwise.
func fromSnapshot(ctx context.Context, id string, snap BlockSnapshot, api synth.Introspector) (editor.Block, string) {
	cfg := make(map[string]any, len(snap.Config))
	for k, v := range snap.Config {
		cfg[k] = v
	}
	b := editor.Block{
		ID:          id,
		Type:        snap.Type,
		Position:    snap.Position,
		InputNodes:  snap.InputNodes,
		OutputNodes: snap.OutputNodes,
		Config:      cfg,
	}
	if !snap.Custom && snap.Type != editor.TypeCustom {
		return b, ""
	}

	b.Type = editor.TypeCustom
	info := &editor.CustomInfo{
		ClassName:      snap.ClassName,
		Methods:        stringList(cfg[keyMethods]),
		SelectedMethod: stringValue(cfg[keySelectedMethod]),
		Parameters:     paramMap(cfg[keyParameters]),
	}
	if mi, ok := cfg[keyModuleInfo].(map[string]any); ok {
		info.ModuleInfo = editor.ModuleInfo{Library: stringValue(mi["library"]), Module: stringValue(mi["module"])}
	}
	for _, k := range []string{keyModuleInfo, keyMethods, keySelectedMethod, keyParameters, keyCategory} {
		delete(cfg, k)
	}
	if info.ClassName == "" {
		info.ClassName = stringValue(cfg["className"])
		delete(cfg, "className")
	}

	warn := populate(ctx, api, info)
	b.Custom = info
	return b, warn
}

// populate refreshes a custom block's methods and parameter defaults from
// introspection and then overlays the saved values.
func populate(ctx context.Context, api synth.Introspector, info *editor.CustomInfo) string {
	if api == nil || info.ModuleInfo.Module == "" {
		return ""
	}
	d, err := api.ClassDetails(ctx, info.ModuleInfo.Library, info.ModuleInfo.Module, info.ClassName)
	if err != nil {
		return fmt.Sprintf("%s: using saved methods (%v)", info.ClassName, err)
	}

	available := map[string]bool{editor.ConstructorMethod: true}
	for _, m := range d.Methods {
		available[m] = true
	}
	var methods []string
	var dropped []string
	for _, m := range info.Methods {
		if available[m] {
			methods = append(methods, m)
		} else {
			dropped = append(dropped, m)
		}
	}
	info.Methods = methods

	saved := info.Parameters
	info.Parameters = map[string]map[string]any{}
	for _, m := range append([]string{editor.ConstructorMethod}, methods...) {
		var params []paramDefault
		if m == editor.ConstructorMethod {
			params = defaults(d.InitParams)
		} else if md, ok := d.Method(m); ok {
			params = defaults(md.Params)
		}
		if len(params) == 0 && saved[m] == nil {
			continue
		}
		values := map[string]any{}
		for _, p := range params {
			values[p.name] = p.value
		}
		for k, v := range saved[m] {
			values[k] = v
		}
		info.Parameters[m] = values
	}
	if info.SelectedMethod != "" && !available[info.SelectedMethod] {
		info.SelectedMethod = editor.ConstructorMethod
	}
	if len(dropped) > 0 {
		return fmt.Sprintf("%s: methods no longer available: %s", info.ClassName, strings.Join(dropped, ", "))
	}
	return ""
}
