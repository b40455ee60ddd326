package backend

// Param is one parameter of an introspected signature.
type Param struct {
	Name     string `json:"name"`
	Type     string `json:"type,omitempty"`
	Default  any    `json:"default,omitempty"`
	Required bool   `json:"required,omitempty"`
}

// MethodDetail describes one method of an introspected class.
type MethodDetail struct {
	Name   string  `json:"name"`
	Doc    string  `json:"doc,omitempty"`
	Params []Param `json:"params"`
}

// ClassDetails is the introspection answer for one class.
type ClassDetails struct {
	ClassName     string         `json:"class_name,omitempty"`
	Doc           string         `json:"doc"`
	ComponentType string         `json:"component_type"`
	InitParams    []Param        `json:"init_params"`
	Methods       []string       `json:"methods"`
	MethodDetails []MethodDetail `json:"method_details"`
}

// Method returns the details of the named method.
func (d *ClassDetails) Method(name string) (MethodDetail, bool) {
	for _, m := range d.MethodDetails {
		if m.Name == name {
			return m, true
		}
	}
	return MethodDetail{}, false
}

// Model is an installed model reported by the backend.
type Model struct {
	Name string `json:"name"`
	Size int64  `json:"size,omitempty"`
}

// SystemStatus reports the backend environment.
type SystemStatus struct {
	OllamaInstalled bool           `json:"ollama_installed"`
	OllamaRunning   bool           `json:"ollama_running"`
	Platform        string         `json:"platform,omitempty"`
	Extra           map[string]any `json:"-"`
}
