package synth

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/Ekorz-boop/ragflow/internal/backend"
	"github.com/Ekorz-boop/ragflow/internal/editor"
)

type fakeIntrospector struct {
	details map[string]*backend.ClassDetails
	err     error
}

func (f *fakeIntrospector) Libraries(ctx context.Context) ([]string, error) {
	return []string{"langchain_text_splitters"}, f.err
}

func (f *fakeIntrospector) Modules(ctx context.Context, library string) ([]string, error) {
	return []string{library + ".character"}, f.err
}

func (f *fakeIntrospector) Classes(ctx context.Context, library, module string) ([]string, error) {
	var out []string
	for name := range f.details {
		out = append(out, name)
	}
	return out, f.err
}

func (f *fakeIntrospector) ClassDetails(ctx context.Context, library, module, class string) (*backend.ClassDetails, error) {
	if f.err != nil {
		return nil, f.err
	}
	d, ok := f.details[class]
	if !ok {
		return nil, errors.New("class not found")
	}
	return d, nil
}

func splitterAPI() *fakeIntrospector {
	return &fakeIntrospector{details: map[string]*backend.ClassDetails{
		"RecursiveCharacterTextSplitter": {
			Doc:           "<p>Splits text <b>recursively</b>.</p>",
			ComponentType: "text_splitters",
			InitParams: []backend.Param{
				{Name: "self"},
				{Name: "chunk_size", Default: float64(4000)},
				{Name: "chunk_overlap", Default: float64(200)},
			},
			Methods: []string{"split_documents", "split_text"},
			MethodDetails: []backend.MethodDetail{
				{Name: "split_documents", Params: []backend.Param{{Name: "self"}, {Name: "documents", Required: true}}},
				{Name: "split_text", Params: []backend.Param{{Name: "self"}, {Name: "text"}}},
			},
		},
	}}
}

func TestTextSplitterPorts(t *testing.T) {
	w := NewWizard(splitterAPI())
	if err := w.SelectClass(context.Background(), "langchain_text_splitters", "langchain_text_splitters.character", "RecursiveCharacterTextSplitter"); err != nil {
		t.Fatal(err)
	}

	s := editor.NewSession(editor.Options{})
	t.Cleanup(s.Close)
	b, err := w.Create(s, 100, 100)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !reflect.DeepEqual(b.InputNodes, []string{"Documents"}) {
		t.Errorf("expected inputs [Documents], got %v", b.InputNodes)
	}
	if !reflect.DeepEqual(b.OutputNodes, []string{"Chunks"}) {
		t.Errorf("expected outputs [Chunks], got %v", b.OutputNodes)
	}
	if b.Type != editor.TypeCustom || b.Custom.ClassName != "RecursiveCharacterTextSplitter" {
		t.Errorf("unexpected block %+v", b)
	}
	if _, ok := s.Palette().Get("RecursiveCharacterTextSplitter"); !ok {
		t.Error("expected class registered on the palette")
	}
	if b.Custom.Parameters[editor.ConstructorMethod]["chunk_size"] != float64(4000) {
		t.Errorf("expected constructor defaults carried, got %v", b.Custom.Parameters)
	}
}

func TestDerivePortsTable(t *testing.T) {
	tests := []struct {
		component string
		inputs    []string
		outputs   []string
		category  editor.Category
	}{
		{"document_loaders", nil, []string{"Documents"}, editor.CategoryNone},
		{"text_splitters", []string{"Documents"}, []string{"Chunks"}, editor.CategoryNone},
		{"embeddings", []string{"Text"}, []string{"Embeddings"}, editor.CategoryNone},
		{"vectorstores", []string{"Embeddings", "Query"}, []string{"Results"}, editor.CategoryRetrieval},
		{"retrievers", []string{"Query"}, []string{"Documents"}, editor.CategoryNone},
		{"llms", []string{"Prompt"}, []string{"Completion"}, editor.CategoryGeneration},
		{"Chat-Models", []string{"Prompt"}, []string{"Completion"}, editor.CategoryGeneration},
		{"chains", []string{"Input"}, []string{"Output"}, editor.CategoryNone},
	}
	for _, tt := range tests {
		t.Run(tt.component, func(t *testing.T) {
			in, out, cat := DerivePorts(tt.component, "Whatever")
			if !reflect.DeepEqual(in, tt.inputs) && !(len(in) == 0 && len(tt.inputs) == 0) {
				t.Errorf("inputs: got %v, want %v", in, tt.inputs)
			}
			if !reflect.DeepEqual(out, tt.outputs) {
				t.Errorf("outputs: got %v, want %v", out, tt.outputs)
			}
			if cat != tt.category {
				t.Errorf("category: got %q, want %q", cat, tt.category)
			}
		})
	}
}

func TestDerivePortsFromClassName(t *testing.T) {
	in, out, cat := DerivePorts("", "PyPDFLoader")
	if len(in) != 0 || !reflect.DeepEqual(out, []string{"Documents"}) || cat != editor.CategoryNone {
		t.Errorf("loader: got %v %v %q", in, out, cat)
	}

	// embedding and model rules both fire
	in, out, cat = DerivePorts("unknown_kind", "HuggingFaceEmbeddingModel")
	if !reflect.DeepEqual(in, []string{"Text", "Prompt"}) {
		t.Errorf("expected cumulative inputs, got %v", in)
	}
	if !reflect.DeepEqual(out, []string{"Embeddings", "Completion"}) {
		t.Errorf("expected cumulative outputs, got %v", out)
	}
	if cat != editor.CategoryGeneration {
		t.Errorf("expected generation category, got %q", cat)
	}

	if in, out, _ := DerivePorts("", "Calculator"); len(in) != 0 || len(out) != 0 {
		t.Errorf("expected no ports, got %v %v", in, out)
	}
}

func TestConstructorIsPinned(t *testing.T) {
	w := NewWizard(splitterAPI())
	w.SelectClass(context.Background(), "l", "m", "RecursiveCharacterTextSplitter")

	if err := w.DeselectMethod(editor.ConstructorMethod); err == nil {
		t.Error("expected constructor deselect to fail")
	}
	if err := w.SelectMethod("split_documents"); err != nil {
		t.Fatal(err)
	}
	if err := w.SelectMethod("explode"); err == nil {
		t.Error("expected unknown method to fail")
	}
	want := []string{editor.ConstructorMethod, "split_documents"}
	if got := w.SelectedMethods(); !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
	if err := w.DeselectMethod("split_documents"); err != nil {
		t.Fatal(err)
	}
	if got := w.SelectedMethods(); !reflect.DeepEqual(got, []string{editor.ConstructorMethod}) {
		t.Errorf("expected constructor only, got %v", got)
	}
}

func TestParameterRowsSkipReceiver(t *testing.T) {
	w := NewWizard(splitterAPI())
	w.SelectClass(context.Background(), "l", "m", "RecursiveCharacterTextSplitter")
	w.SelectMethod("split_documents")
	if err := w.SetParameter(editor.ConstructorMethod, "chunk_size", 512); err != nil {
		t.Fatal(err)
	}
	if err := w.SetParameter("split_text", "text", "x"); err == nil {
		t.Error("expected error for unselected method")
	}

	rows := w.ParameterRows()
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %+v", rows)
	}
	for _, r := range rows {
		if r.Name == "self" {
			t.Error("self must be excluded")
		}
	}
	if rows[0].Name != "chunk_size" || rows[0].Value != 512 || rows[0].Default != float64(4000) {
		t.Errorf("unexpected first row %+v", rows[0])
	}
	if rows[2].Method != "split_documents" || rows[2].Value != "" || !rows[2].Required {
		t.Errorf("unexpected method row %+v", rows[2])
	}
}

func TestValidateNeedsClassAndPorts(t *testing.T) {
	w := NewWizard(splitterAPI())
	if err := w.Validate(); !errors.Is(err, ErrNoClass) {
		t.Errorf("expected ErrNoClass, got %v", err)
	}
	w.SelectClass(context.Background(), "l", "m", "RecursiveCharacterTextSplitter")
	w.RemoveInput("Documents")
	w.RemoveOutput("Chunks")
	if err := w.Validate(); !errors.Is(err, ErrNoPorts) {
		t.Errorf("expected ErrNoPorts, got %v", err)
	}
	if err := w.AddOutput("Texts"); err != nil {
		t.Fatal(err)
	}
	if err := w.AddOutput("Texts"); err == nil {
		t.Error("expected duplicate port error")
	}
	if err := w.Validate(); err != nil {
		t.Errorf("expected valid wizard, got %v", err)
	}
}

func TestManualPortsAppend(t *testing.T) {
	w := NewWizard(splitterAPI())
	w.SelectClass(context.Background(), "l", "m", "RecursiveCharacterTextSplitter")
	w.AddInput("Separators")
	w.AddOutput("Stats")

	class, err := w.Class()
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(class.Inputs, []string{"Documents", "Separators"}) {
		t.Errorf("unexpected inputs %v", class.Inputs)
	}
	if !reflect.DeepEqual(class.Outputs, []string{"Chunks", "Stats"}) {
		t.Errorf("unexpected outputs %v", class.Outputs)
	}
	if !strings.Contains(class.Doc, "**recursively**") {
		t.Errorf("expected markdown doc, got %q", class.Doc)
	}
}

func TestIntrospectionFailureKeepsWizardUsable(t *testing.T) {
	api := &fakeIntrospector{err: errors.New("connection refused")}
	w := NewWizard(api)

	if _, err := w.Libraries(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	err := w.SelectClass(context.Background(), "langchain_community", "document_loaders", "PyPDFLoader")
	var ierr *IntrospectionError
	if !errors.As(err, &ierr) || ierr.Op != "class_details" {
		t.Fatalf("expected class_details IntrospectionError, got %v", err)
	}
	if w.Err() == nil {
		t.Error("expected error recorded on the wizard")
	}
	if got := w.AvailableMethods(); !reflect.DeepEqual(got, []string{editor.ConstructorMethod}) {
		t.Errorf("expected constructor fallback, got %v", got)
	}
	if !reflect.DeepEqual(w.Outputs(), []string{"Documents"}) {
		t.Errorf("expected name-derived ports, got %v", w.Outputs())
	}
	if err := w.Validate(); err != nil {
		t.Errorf("wizard should still be creatable, got %v", err)
	}
}
