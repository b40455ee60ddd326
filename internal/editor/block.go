package editor

// ConstructorMethod is the method every custom block carries and that can
// never be deselected.
const ConstructorMethod = "__init__"

// Status is the visual processing state of a block.
type Status string

const (
	StatusIdle       Status = "idle"
	StatusProcessing Status = "processing"
	StatusSuccess    Status = "success"
	StatusError      Status = "error"
)

// ModuleInfo identifies where an introspected class lives.
type ModuleInfo struct {
	Library string `json:"library"`
	Module  string `json:"module"`
}

// CustomInfo is the introspected metadata carried by custom blocks.
type CustomInfo struct {
	ClassName      string                    `json:"className"`
	ModuleInfo     ModuleInfo                `json:"moduleInfo"`
	Methods        []string                  `json:"methods"`
	SelectedMethod string                    `json:"selectedMethod"`
	Parameters     map[string]map[string]any `json:"parameters"`
}

func (c *CustomInfo) clone() *CustomInfo {
	if c == nil {
		return nil
	}
	out := *c
	out.Methods = append([]string(nil), c.Methods...)
	out.Parameters = cloneParams(c.Parameters)
	return &out
}

// ensureConstructor puts the constructor at the front of the method list if
// it is missing.
func (c *CustomInfo) ensureConstructor() {
	for _, m := range c.Methods {
		if m == ConstructorMethod {
			return
		}
	}
	c.Methods = append([]string{ConstructorMethod}, c.Methods...)
}

// Block is one node of the pipeline graph.
type Block struct {
	ID       string         `json:"id"`
	Type     string         `json:"type"`
	Position Point          `json:"position"`
	Config   map[string]any `json:"config"`

	Output    any  `json:"output,omitempty"`
	HasOutput bool `json:"hasOutput"`

	InputNodes  []string `json:"inputNodes"`
	OutputNodes []string `json:"outputNodes"`

	Status Status `json:"status"`
	Error  string `json:"error,omitempty"`

	// Content is what a display block shows; empty means "no input".
	Content string `json:"content,omitempty"`

	Custom *CustomInfo `json:"custom,omitempty"`
}

// IsCustom reports whether the block was synthesized from an introspected class.
func (b *Block) IsCustom() bool { return b.Custom != nil }

// Label is the name used in messages: the class name for custom blocks,
// the type otherwise.
func (b *Block) Label() string {
	if b.Custom != nil && b.Custom.ClassName != "" {
		return b.Custom.ClassName
	}
	return b.Type
}

// HasInput reports whether name is one of the block's declared inputs.
func (b *Block) HasInput(name string) bool {
	for _, n := range b.InputNodes {
		if n == name {
			return true
		}
	}
	return false
}

func (b *Block) clone() *Block {
	out := *b
	out.Config = cloneMap(b.Config)
	out.InputNodes = append([]string(nil), b.InputNodes...)
	out.OutputNodes = append([]string(nil), b.OutputNodes...)
	out.Custom = b.Custom.clone()
	return &out
}

func cloneMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func cloneParams(p map[string]map[string]any) map[string]map[string]any {
	out := make(map[string]map[string]any, len(p))
	for method, params := range p {
		out[method] = cloneMap(params)
	}
	return out
}
