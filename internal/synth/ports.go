package synth

import (
	"strings"

	"github.com/Ekorz-boop/ragflow/internal/editor"
)

// portRule is the default port set of a component category.
type portRule struct {
	inputs   []string
	outputs  []string
	category editor.Category
}

var (
	loaderRule    = portRule{outputs: []string{"Documents"}}
	splitterRule  = portRule{inputs: []string{"Documents"}, outputs: []string{"Chunks"}}
	embeddingRule = portRule{inputs: []string{"Text"}, outputs: []string{"Embeddings"}}
	storeRule     = portRule{inputs: []string{"Embeddings", "Query"}, outputs: []string{"Results"}, category: editor.CategoryRetrieval}
	retrieverRule = portRule{inputs: []string{"Query"}, outputs: []string{"Documents"}}
	modelRule     = portRule{inputs: []string{"Prompt"}, outputs: []string{"Completion"}, category: editor.CategoryGeneration}
	chainRule     = portRule{inputs: []string{"Input"}, outputs: []string{"Output"}}
)

// componentRules maps normalized component types to their ports.
var componentRules = map[string]portRule{
	"document_loaders": loaderRule,
	"document_loader":  loaderRule,
	"text_splitters":   splitterRule,
	"text_splitter":    splitterRule,
	"embeddings":       embeddingRule,
	"embedding":        embeddingRule,
	"vectorstores":     storeRule,
	"vectorstore":      storeRule,
	"vector_stores":    storeRule,
	"vector_store":     storeRule,
	"retrievers":       retrieverRule,
	"retriever":        retrieverRule,
	"llms":             modelRule,
	"llm":              modelRule,
	"chat_models":      modelRule,
	"chat_model":       modelRule,
	"chains":           chainRule,
	"chain":            chainRule,
}

// nameRules apply to the lowercased class name when the component type is
// missing or unknown. Every matching rule contributes its ports.
var nameRules = []struct {
	keywords []string
	rule     portRule
}{
	{[]string{"loader", "reader", "parser"}, loaderRule},
	{[]string{"splitter"}, splitterRule},
	{[]string{"embedding"}, embeddingRule},
	{[]string{"vectorstore", "vector_store"}, storeRule},
	{[]string{"llm", "model", "chat"}, modelRule},
	{[]string{"chain"}, chainRule},
}

func normalizeComponent(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	return strings.NewReplacer("-", "_", " ", "_").Replace(t)
}

// DerivePorts returns the default ports and validation category for a
// class.
func DerivePorts(componentType, className string) (inputs, outputs []string, category editor.Category) {
	if rule, ok := componentRules[normalizeComponent(componentType)]; ok {
		return clone(rule.inputs), clone(rule.outputs), rule.category
	}

	name := strings.ToLower(className)
	for _, nr := range nameRules {
		if !containsAny(name, nr.keywords) {
			continue
		}
		inputs = appendUnique(inputs, nr.rule.inputs...)
		outputs = appendUnique(outputs, nr.rule.outputs...)
		if category == editor.CategoryNone {
			category = nr.rule.category
		}
	}
	return inputs, outputs, category
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func appendUnique(list []string, names ...string) []string {
	for _, n := range names {
		if !contains(list, n) {
			list = append(list, n)
		}
	}
	return list
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
