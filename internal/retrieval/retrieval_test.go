package retrieval

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"mathmotion/internal/diagnose"
)

// fakeEngine returns fixed vectors per exact text and a default for
// everything else, so tests control similarity ordering precisely.
type fakeEngine struct {
	vectors map[string][]float32
	def     []float32
}

func (f *fakeEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return f.def, nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return len(f.def) }
func (f *fakeEngine) Name() string    { return "fake" }

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenStore(filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStoreRoundTrip(t *testing.T) {
	s := openTestStore(t)

	id, err := s.AddPassage(Passage{
		SourceURL: "docs/circle.md",
		Title:     "Circle",
		Content:   "Circle creates a circular mobject.",
	}, []float32{1, 0})
	if err != nil {
		t.Fatalf("AddPassage: %v", err)
	}
	if id != 1 {
		t.Errorf("first id = %d, want 1", id)
	}

	n, err := s.Count()
	if err != nil {
		t.Fatalf("Count: %v", err)
	}
	if n != 1 {
		t.Errorf("count = %d, want 1", n)
	}

	passages, vectors, err := s.corpus()
	if err != nil {
		t.Fatalf("corpus: %v", err)
	}
	if len(passages) != 1 || passages[0].Title != "Circle" {
		t.Errorf("passages = %+v", passages)
	}
	if len(vectors) != 1 || vectors[0][0] != 1 {
		t.Errorf("vectors = %v", vectors)
	}
}

func TestRetrieveOrdersBySimilarityThenID(t *testing.T) {
	s := openTestStore(t)
	mustAdd := func(title string, vec []float32) {
		t.Helper()
		if _, err := s.AddPassage(Passage{SourceURL: "u/" + title, Title: title, Content: title}, vec); err != nil {
			t.Fatalf("AddPassage %s: %v", title, err)
		}
	}
	mustAdd("far", []float32{0, 1})
	mustAdd("near-a", []float32{1, 0})
	mustAdd("near-b", []float32{2, 0}) // same direction as near-a, tie

	engine := &fakeEngine{
		vectors: map[string][]float32{"query": {1, 0}},
		def:     []float32{0, 0},
	}
	r := NewRetriever(s, engine, 4)

	for run := 0; run < 3; run++ {
		got, err := r.Retrieve(context.Background(), "query", 2)
		if err != nil {
			t.Fatalf("Retrieve: %v", err)
		}
		if len(got) != 2 {
			t.Fatalf("results = %d, want 2", len(got))
		}
		if got[0].Title != "near-a" || got[1].Title != "near-b" {
			t.Errorf("run %d: order = %s, %s; want near-a, near-b", run, got[0].Title, got[1].Title)
		}
	}
}

func TestRetrieveEmptyIndex(t *testing.T) {
	s := openTestStore(t)
	r := NewRetriever(s, &fakeEngine{def: []float32{1}}, 4)

	got, err := r.Retrieve(context.Background(), "anything", 3)
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if got != nil {
		t.Errorf("results = %v, want nil", got)
	}
}

func TestBuildQueryFromDiagnostics(t *testing.T) {
	diags := []diagnose.Diagnostic{
		{Kind: diagnose.KindRuntimeException, Message: "AttributeError: 'Circle' object has no attribute 'get_cornr'"},
		{Kind: diagnose.KindTimeout, Message: "render exceeded the 5m0s wall-clock limit"},
	}
	source := "from manim import *\nc = manim.Circle()\n"

	q := BuildQuery(diags, source)
	if !strings.Contains(q, "AttributeError") {
		t.Errorf("query missing error phrase: %q", q)
	}
	if !strings.Contains(q, "manim.Circle") {
		t.Errorf("query missing API reference: %q", q)
	}
	if strings.Contains(q, "wall-clock") {
		t.Errorf("timeout text should not leak into query: %q", q)
	}
}

func TestBuildQueryEmptyInputs(t *testing.T) {
	if q := BuildQuery(nil, "print('x')"); q != "" {
		t.Errorf("query = %q, want empty", q)
	}
}

func TestFormatContextDedupsAndTruncates(t *testing.T) {
	long := strings.Repeat("a", 500)
	passages := []Passage{
		{SourceURL: "docs/a", Title: "First", Content: long},
		{SourceURL: "docs/a", Title: "Duplicate", Content: "dropped"},
		{SourceURL: "docs/b", Title: "Second", Content: "kept"},
	}

	out := FormatContext(passages)
	if strings.Contains(out, "Duplicate") {
		t.Error("duplicate source URL was not deduplicated")
	}
	if !strings.Contains(out, "Second") {
		t.Error("distinct source dropped")
	}
	if !strings.Contains(out, strings.Repeat("a", previewLen)+"...") {
		t.Error("long content not truncated to preview")
	}
	if strings.Contains(out, strings.Repeat("a", previewLen+1)) {
		t.Error("preview exceeds limit")
	}
}

func TestFormatContextEmpty(t *testing.T) {
	if out := FormatContext(nil); out != "" {
		t.Errorf("output = %q, want empty", out)
	}
}

func TestChunkTextSplitsOnParagraphs(t *testing.T) {
	para := strings.Repeat("word ", 300) // ~1500 chars
	content := para + "\n\n" + para

	chunks := chunkText(content)
	if len(chunks) != 2 {
		t.Fatalf("chunks = %d, want 2", len(chunks))
	}
	for i, c := range chunks {
		if strings.TrimSpace(c) == "" {
			t.Errorf("chunk %d is blank", i)
		}
	}
}

func TestChunkTextEmpty(t *testing.T) {
	if chunks := chunkText("   \n \n"); chunks != nil {
		t.Errorf("chunks = %v, want nil", chunks)
	}
}

func TestIndexerWritesAllChunks(t *testing.T) {
	s := openTestStore(t)
	ix := NewIndexer(s, &fakeEngine{def: []float32{1, 2}})

	n, err := ix.Index(context.Background(), []Document{
		{SourceURL: "docs/a", Title: "A", Content: "short passage"},
		{SourceURL: "docs/b", Title: "B", Content: "another passage"},
	})
	if err != nil {
		t.Fatalf("Index: %v", err)
	}
	if n != 2 {
		t.Errorf("indexed = %d, want 2", n)
	}
	count, _ := s.Count()
	if count != 2 {
		t.Errorf("stored = %d, want 2", count)
	}
}
