package editor

import (
	"sort"
	"sync"
)

// CustomClass is a synthesized block class available for placement.
type CustomClass struct {
	ClassName  string                    `json:"className"`
	ModuleInfo ModuleInfo                `json:"moduleInfo"`
	Inputs     []string                  `json:"inputs"`
	Outputs    []string                  `json:"outputs"`
	Methods    []string                  `json:"methods"`
	Category   Category                  `json:"category,omitempty"`
	Doc        string                    `json:"doc,omitempty"`
	Parameters map[string]map[string]any `json:"parameters,omitempty"`
}

// Palette holds the custom classes registered in a session, keyed by class
// name. A later registration of the same name replaces the earlier one.
type Palette struct {
	mu      sync.RWMutex
	classes map[string]CustomClass
}

func NewPalette() *Palette {
	return &Palette{classes: make(map[string]CustomClass)}
}

// Register adds or replaces a class. The constructor is added to the method
// list when missing.
func (p *Palette) Register(c CustomClass) {
	info := CustomInfo{Methods: c.Methods}
	info.ensureConstructor()
	c.Methods = append([]string(nil), info.Methods...)
	c.Inputs = append([]string(nil), c.Inputs...)
	c.Outputs = append([]string(nil), c.Outputs...)
	c.Parameters = cloneParams(c.Parameters)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.classes[c.ClassName] = c
}

// Get returns a copy of the named class.
func (p *Palette) Get(name string) (CustomClass, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	c, ok := p.classes[name]
	if !ok {
		return CustomClass{}, false
	}
	c.Inputs = append([]string(nil), c.Inputs...)
	c.Outputs = append([]string(nil), c.Outputs...)
	c.Methods = append([]string(nil), c.Methods...)
	c.Parameters = cloneParams(c.Parameters)
	return c, true
}

// All returns every registered class sorted by name.
func (p *Palette) All() []CustomClass {
	p.mu.RLock()
	names := make([]string, 0, len(p.classes))
	for name := range p.classes {
		names = append(names, name)
	}
	p.mu.RUnlock()

	sort.Strings(names)
	out := make([]CustomClass, 0, len(names))
	for _, name := range names {
		if c, ok := p.Get(name); ok {
			out = append(out, c)
		}
	}
	return out
}

func (p *Palette) Unregister(name string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.classes, name)
}

func (p *Palette) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.classes)
}
