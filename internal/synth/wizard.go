// Package synth builds custom block classes from introspected library
// classes.
package synth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	htmltomarkdown "github.com/JohannesKaufmann/html-to-markdown/v2"

	"github.com/Ekorz-boop/ragflow/internal/backend"
	"github.com/Ekorz-boop/ragflow/internal/editor"
	"github.com/Ekorz-boop/ragflow/internal/events"
)

// Introspector answers the dependent library → module → class questions.
type Introspector interface {
	Libraries(ctx context.Context) ([]string, error)
	Modules(ctx context.Context, library string) ([]string, error)
	Classes(ctx context.Context, library, module string) ([]string, error)
	ClassDetails(ctx context.Context, library, module, class string) (*backend.ClassDetails, error)
}

var _ Introspector = (*backend.Client)(nil)

// IntrospectionError wraps a failed introspection call. The wizard stays
// usable after one.
type IntrospectionError struct {
	Op  string
	Err error
}

func (e *IntrospectionError) Error() string {
	return fmt.Sprintf("introspection %s failed: %v", e.Op, e.Err)
}

func (e *IntrospectionError) Unwrap() error { return e.Err }

var (
	ErrNoClass = errors.New("select a class first")
	ErrNoPorts = errors.New("add at least one input or output")
)

// ParameterRow is one editable parameter of a selected method.
type ParameterRow struct {
	Method   string `json:"method"`
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Default  any    `json:"default,omitempty"`
	Value    any    `json:"value"`
	Required bool   `json:"required,omitempty"`
}

// Wizard walks through picking a class and shaping its block.
type Wizard struct {
	api Introspector

	library string
	module  string
	class   string
	details *backend.ClassDetails

	inputs   []string
	outputs  []string
	category editor.Category
	methods  []string
	values   map[string]map[string]any

	lastErr error
}

func NewWizard(api Introspector) *Wizard {
	return &Wizard{api: api}
}

func (w *Wizard) introspectionFailed(op string, err error) error {
	ierr := &IntrospectionError{Op: op, Err: err}
	w.lastErr = ierr
	events.Emit("error", "introspection.error", ierr.Error(), map[string]interface{}{
		"op":      op,
		"library": w.library,
		"module":  w.module,
		"class":   w.class,
	})
	return ierr
}

// Err returns the last introspection error, for inline display.
func (w *Wizard) Err() error { return w.lastErr }

func (w *Wizard) Libraries(ctx context.Context) ([]string, error) {
	libs, err := w.api.Libraries(ctx)
	if err != nil {
		return nil, w.introspectionFailed("libraries", err)
	}
	return libs, nil
}

func (w *Wizard) Modules(ctx context.Context, library string) ([]string, error) {
	mods, err := w.api.Modules(ctx, library)
	if err != nil {
		return nil, w.introspectionFailed("modules", err)
	}
	return mods, nil
}

func (w *Wizard) Classes(ctx context.Context, library, module string) ([]string, error) {
	classes, err := w.api.Classes(ctx, library, module)
	if err != nil {
		return nil, w.introspectionFailed("classes", err)
	}
	return classes, nil
}

// SelectClass loads a class and resets ports, methods and parameter values
// to its defaults.
func (w *Wizard) SelectClass(ctx context.Context, library, module, class string) error {
	w.library, w.module, w.class = library, module, class
	w.details = nil
	w.lastErr = nil
	w.values = map[string]map[string]any{}
	w.methods = []string{editor.ConstructorMethod}

	d, err := w.api.ClassDetails(ctx, library, module, class)
	if err != nil {
		// keep the class selectable with constructor-only methods and
		// name-derived ports
		w.details = &backend.ClassDetails{ClassName: class}
		w.inputs, w.outputs, w.category = DerivePorts("", class)
		return w.introspectionFailed("class_details", err)
	}
	w.details = d
	w.inputs, w.outputs, w.category = DerivePorts(d.ComponentType, class)
	return nil
}

// Selected reports whether a class is selected.
func (w *Wizard) Selected() bool { return w.class != "" && w.details != nil }

func (w *Wizard) ClassName() string         { return w.class }
func (w *Wizard) Inputs() []string          { return clone(w.inputs) }
func (w *Wizard) Outputs() []string         { return clone(w.outputs) }
func (w *Wizard) Category() editor.Category { return w.category }

// ComponentType is the introspected component type, if any.
func (w *Wizard) ComponentType() string {
	if w.details == nil {
		return ""
	}
	return w.details.ComponentType
}

// Doc returns the class documentation as Markdown.
func (w *Wizard) Doc() string {
	if w.details == nil {
		return ""
	}
	return DocText(w.details.Doc)
}

// DocText converts HTML documentation to Markdown and passes plain text
// through.
func DocText(doc string) string {
	doc = strings.TrimSpace(doc)
	if !strings.Contains(doc, "<") || !strings.Contains(doc, ">") {
		return doc
	}
	md, err := htmltomarkdown.ConvertString(doc)
	if err != nil {
		return doc
	}
	return strings.TrimSpace(md)
}

// AvailableMethods lists the methods the class offers, constructor first.
func (w *Wizard) AvailableMethods() []string {
	out := []string{editor.ConstructorMethod}
	if w.details == nil {
		return out
	}
	for _, m := range w.details.Methods {
		out = appendUnique(out, m)
	}
	return out
}

// SelectedMethods lists the chosen methods, constructor first.
func (w *Wizard) SelectedMethods() []string { return clone(w.methods) }

// SelectMethod adds a method to the selection.
func (w *Wizard) SelectMethod(name string) error {
	if !w.Selected() {
		return ErrNoClass
	}
	if !contains(w.AvailableMethods(), name) {
		return fmt.Errorf("unknown method %s on %s", name, w.class)
	}
	w.methods = appendUnique(w.methods, name)
	return nil
}

// DeselectMethod removes a method. The constructor cannot be removed.
func (w *Wizard) DeselectMethod(name string) error {
	if name == editor.ConstructorMethod {
		return fmt.Errorf("%s cannot be deselected", editor.ConstructorMethod)
	}
	kept := w.methods[:0]
	for _, m := range w.methods {
		if m != name {
			kept = append(kept, m)
		}
	}
	w.methods = kept
	delete(w.values, name)
	return nil
}

func (w *Wizard) AddInput(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("port name is required")
	}
	if contains(w.inputs, name) {
		return fmt.Errorf("input %s already exists", name)
	}
	w.inputs = append(w.inputs, name)
	return nil
}

func (w *Wizard) AddOutput(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("port name is required")
	}
	if contains(w.outputs, name) {
		return fmt.Errorf("output %s already exists", name)
	}
	w.outputs = append(w.outputs, name)
	return nil
}

func (w *Wizard) RemoveInput(name string) {
	w.inputs = remove(w.inputs, name)
}

func (w *Wizard) RemoveOutput(name string) {
	w.outputs = remove(w.outputs, name)
}

func remove(list []string, name string) []string {
	out := list[:0]
	for _, v := range list {
		if v != name {
			out = append(out, v)
		}
	}
	return out
}

// params returns the signature of a selected method without the receiver.
func (w *Wizard) params(method string) []backend.Param {
	if w.details == nil {
		return nil
	}
	var src []backend.Param
	if method == editor.ConstructorMethod {
		src = w.details.InitParams
	} else if md, ok := w.details.Method(method); ok {
		src = md.Params
	}
	out := make([]backend.Param, 0, len(src))
	for _, p := range src {
		if p.Name == "self" || p.Name == "cls" {
			continue
		}
		out = append(out, p)
	}
	return out
}

// ParameterRows lists the editable parameters of every selected method,
// seeded with their defaults.
func (w *Wizard) ParameterRows() []ParameterRow {
	var rows []ParameterRow
	for _, m := range w.methods {
		for _, p := range w.params(m) {
			row := ParameterRow{
				Method:   m,
				Name:     p.Name,
				Type:     p.Type,
				Default:  p.Default,
				Value:    p.Default,
				Required: p.Required,
			}
			if v, ok := w.values[m][p.Name]; ok {
				row.Value = v
			}
			if row.Value == nil {
				row.Value = ""
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// SetParameter overrides a parameter value of a selected method.
func (w *Wizard) SetParameter(method, name string, value any) error {
	if !contains(w.methods, method) {
		return fmt.Errorf("method %s is not selected", method)
	}
	if w.values == nil {
		w.values = map[string]map[string]any{}
	}
	if w.values[method] == nil {
		w.values[method] = map[string]any{}
	}
	w.values[method][name] = value
	return nil
}

// Validate checks that the class can be created.
func (w *Wizard) Validate() error {
	if !w.Selected() {
		return ErrNoClass
	}
	if len(w.inputs) == 0 && len(w.outputs) == 0 {
		return ErrNoPorts
	}
	return nil
}

// Class returns the palette entry the wizard would create.
func (w *Wizard) Class() (editor.CustomClass, error) {
	if err := w.Validate(); err != nil {
		return editor.CustomClass{}, err
	}
	params := map[string]map[string]any{}
	for _, row := range w.ParameterRows() {
		if params[row.Method] == nil {
			params[row.Method] = map[string]any{}
		}
		params[row.Method][row.Name] = row.Value
	}
	doc := ""
	if w.details != nil {
		doc = DocText(w.details.Doc)
	}
	return editor.CustomClass{
		ClassName:  w.class,
		ModuleInfo: editor.ModuleInfo{Library: w.library, Module: w.module},
		Inputs:     clone(w.inputs),
		Outputs:    clone(w.outputs),
		Methods:    clone(w.methods),
		Category:   w.category,
		Doc:        doc,
		Parameters: params,
	}, nil
}

// Create registers the class on the session palette and places a block of
// it at the given canvas position.
func (w *Wizard) Create(s *editor.Session, x, y float64) (*editor.Block, error) {
	class, err := w.Class()
	if err != nil {
		return nil, err
	}
	s.Palette().Register(class)
	events.Emit("info", "custom.class_registered", "", map[string]interface{}{
		"session_id": s.ID(),
		"class_name": class.ClassName,
		"library":    class.ModuleInfo.Library,
		"module":     class.ModuleInfo.Module,
		"inputs":     class.Inputs,
		"outputs":    class.Outputs,
	})
	return s.PlaceCustom(class.ClassName, x, y)
}
