package editor

import "fmt"

// Category groups block kinds for the strict validation rules.
type Category string

const (
	CategoryNone       Category = ""
	CategoryRetrieval  Category = "retrieval"
	CategoryGeneration Category = "generation"
)

// TypeCustom is the type of every synthesized block.
const TypeCustom = "custom"

// Built-in block types.
const (
	TypeQuery          = "query"
	TypeDocumentLoader = "document_loader"
	TypeTextSplitter   = "text_splitter"
	TypeEmbedding      = "embedding"
	TypeVectorStore    = "vector_store"
	TypePromptTemplate = "prompt_template"
	TypeAIModel        = "ai_model"
	TypeDisplay        = "display"
)

// Kind describes the ports, defaults and processing rules of a built-in
// block type.
type Kind struct {
	Type     string
	Title    string
	Inputs   []string
	Outputs  []string
	Defaults map[string]any
	Category Category

	// Local kinds are evaluated in the session and never reach the backend.
	Local bool

	// Prepare merges resolved inputs into the request config.
	Prepare func(cfg map[string]any, in Inputs)
}

var kinds = map[string]Kind{
	TypeQuery: {
		Type:     TypeQuery,
		Title:    "Query",
		Outputs:  []string{"Query"},
		Defaults: map[string]any{"query": ""},
		Prepare:  prepareDefault,
	},
	TypeDocumentLoader: {
		Type:     TypeDocumentLoader,
		Title:    "Document Loader",
		Outputs:  []string{"Documents"},
		Defaults: map[string]any{"file_path": ""},
		Prepare:  prepareDefault,
	},
	TypeTextSplitter: {
		Type:     TypeTextSplitter,
		Title:    "Text Splitter",
		Inputs:   []string{"Documents"},
		Outputs:  []string{"Chunks"},
		Defaults: map[string]any{"chunk_size": 1000, "chunk_overlap": 200},
		Prepare:  prepareDefault,
	},
	TypeEmbedding: {
		Type:     TypeEmbedding,
		Title:    "Embedding",
		Inputs:   []string{"Chunks"},
		Outputs:  []string{"Embeddings"},
		Defaults: map[string]any{"model": "nomic-embed-text"},
		Prepare:  prepareDefault,
	},
	TypeVectorStore: {
		Type:     TypeVectorStore,
		Title:    "Vector Store",
		Outputs:  []string{"Context"},
		Defaults: map[string]any{"collection": "documents", "top_k": 4},
		Category: CategoryRetrieval,
		Prepare:  prepareDefault,
	},
	TypePromptTemplate: {
		Type:     TypePromptTemplate,
		Title:    "Prompt Template",
		Inputs:   []string{"Query", "Context"},
		Outputs:  []string{"Prompt"},
		Defaults: map[string]any{"template": "Answer {query} using {context}"},
		Prepare:  preparePrompt,
	},
	TypeAIModel: {
		Type:     TypeAIModel,
		Title:    "AI Model",
		Inputs:   []string{"Query", "Context"},
		Outputs:  []string{"Response"},
		Defaults: map[string]any{"model": "llama3", "temperature": 0.7},
		Category: CategoryGeneration,
		Prepare:  prepareDefault,
	},
	TypeDisplay: {
		Type:    TypeDisplay,
		Title:   "Display",
		Inputs:  []string{"Input"},
		Local:   true,
		Prepare: prepareDefault,
	},
}

// order is the palette order.
var order = []string{
	TypeQuery, TypeDocumentLoader, TypeTextSplitter, TypeEmbedding,
	TypeVectorStore, TypePromptTemplate, TypeAIModel, TypeDisplay,
}

// LookupKind returns the built-in kind for typ.
func LookupKind(typ string) (Kind, error) {
	k, ok := kinds[typ]
	if !ok {
		return Kind{}, fmt.Errorf("unknown block type: %s", typ)
	}
	return k, nil
}

// KindTypes lists the built-in types in palette order.
func KindTypes() []string {
	return append([]string(nil), order...)
}

// customKind builds the kind of a custom block from its palette entry.
func customKind(class CustomClass) Kind {
	return Kind{
		Type:     TypeCustom,
		Title:    class.ClassName,
		Inputs:   class.Inputs,
		Outputs:  class.Outputs,
		Category: class.Category,
		Prepare:  prepareCustom,
	}
}

func prepareDefault(cfg map[string]any, in Inputs) {
	if len(in) == 0 {
		return
	}
	cfg["inputs"] = in.Values()
	for _, name := range in.Names() {
		cfg[configKey(name)] = in.Text(name)
	}
}

func preparePrompt(cfg map[string]any, in Inputs) {
	prepareDefault(cfg, in)
	tmpl, _ := cfg["template"].(string)
	cfg["prompt"] = Substitute(tmpl, map[string]string{
		"query":   in.Text("Query"),
		"context": in.Text("Context"),
	})
}

func prepareCustom(cfg map[string]any, in Inputs) {
	if len(in) > 0 {
		cfg["inputs"] = in.Values()
	}
}

// categoryOf returns the validation category of b, looking custom classes up
// through their derived category.
func categoryOf(b *Block, palette *Palette) Category {
	if b.Type != TypeCustom {
		return kinds[b.Type].Category
	}
	if b.Custom == nil {
		return CategoryNone
	}
	if class, ok := palette.Get(b.Custom.ClassName); ok {
		return class.Category
	}
	return CategoryNone
}
