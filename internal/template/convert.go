package template

import "github.com/Ekorz-boop/ragflow/internal/backend"

type paramDefault struct {
	name  string
	value any
}

func defaults(params []backend.Param) []paramDefault {
	out := make([]paramDefault, 0, len(params))
	for _, p := range params {
		if p.Name == "self" || p.Name == "cls" {
			continue
		}
		v := p.Default
		if v == nil {
			v = ""
		}
		out = append(out, paramDefault{name: p.Name, value: v})
	}
	return out
}

func stringValue(v any) string {
	s, _ := v.(string)
	return s
}

// stringList accepts the []any a JSON decode produces as well as []string.
func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return append([]string(nil), t...)
	case []any:
		out := make([]string, 0, len(t))
		for _, x := range t {
			if s, ok := x.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func paramMap(v any) map[string]map[string]any {
	out := map[string]map[string]any{}
	switch t := v.(type) {
	case map[string]map[string]any:
		for k, m := range t {
			out[k] = m
		}
	case map[string]any:
		for k, raw := range t {
			if m, ok := raw.(map[string]any); ok {
				out[k] = m
			}
		}
	}
	return out
}
