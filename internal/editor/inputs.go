package editor

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// Inputs maps a block's input port names to the coerced last output of the
// connected source block.
type Inputs map[string]any

// Names returns the connected port names, sorted.
func (in Inputs) Names() []string {
	names := make([]string, 0, len(in))
	for k := range in {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// Values returns a copy suitable for a request body.
func (in Inputs) Values() map[string]any {
	out := make(map[string]any, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// Text returns the textual form of the named input, or "" when the port is
// not connected.
func (in Inputs) Text(name string) string {
	v, ok := in[name]
	if !ok {
		return ""
	}
	return TextOf(v, name)
}

// preferred keys when pulling text out of a structured output
var textKeys = []string{"output", "response", "text", "content", "result", "answer"}

// TextOf renders a value as text. Objects are searched for the port name
// (lowercased) and then for common result keys before falling back to
// their JSON form.
func TextOf(v any, port string) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case map[string]any:
		keys := append([]string{configKey(port)}, textKeys...)
		for _, k := range keys {
			if s, ok := t[k].(string); ok {
				return s
			}
		}
	case fmt.Stringer:
		return t.String()
	}
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(b)
}

// Coerce turns a JSON-looking string into structured data. Near-JSON (single
// quotes, trailing commas, truncated output from a model) is repaired first;
// anything that still does not parse is returned unchanged.
func Coerce(v any) any {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" || (trimmed[0] != '{' && trimmed[0] != '[') {
		return v
	}
	var out any
	if err := json.Unmarshal([]byte(trimmed), &out); err == nil {
		return out
	}
	repaired, err := jsonrepair.JSONRepair(trimmed)
	if err != nil {
		return v
	}
	if err := json.Unmarshal([]byte(repaired), &out); err != nil {
		return v
	}
	return out
}

// Substitute replaces {name} placeholders with the given values. Unknown
// placeholders are left alone.
func Substitute(tmpl string, vars map[string]string) string {
	if tmpl == "" || len(vars) == 0 {
		return tmpl
	}
	pairs := make([]string, 0, len(vars)*2)
	for k, v := range vars {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// configKey maps a port name like "Query" or "Input Text" to a config key.
func configKey(port string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(port)), " ", "_")
}
