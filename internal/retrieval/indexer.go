package retrieval

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"mathmotion/internal/embedding"
	"mathmotion/internal/logging"
)

// Document is source material for indexing, before chunking.
type Document struct {
	SourceURL string
	Title     string
	Content   string
}

// chunkSize is the approximate passage length in characters. Long passages
// dilute similarity scores; short ones lose context.
const chunkSize = 1200

// indexWorkers bounds concurrent embedding calls during indexing.
const indexWorkers = 4

// Indexer chunks documents, embeds the chunks, and writes them to the store.
type Indexer struct {
	store  *Store
	engine embedding.Engine
}

func NewIndexer(store *Store, engine embedding.Engine) *Indexer {
	return &Indexer{store: store, engine: engine}
}

// Index chunks and embeds every document, writing passages to the store.
// Embedding runs on a bounded worker pool; a failed chunk aborts the whole
// run so the index never ends up partially embedded without the caller
// knowing. Returns the number of passages written.
func (ix *Indexer) Index(ctx context.Context, docs []Document) (int, error) {
	timer := logging.StartTimer(logging.CategoryRetrieval, "Index")
	defer timer.Stop()

	type job struct {
		passage Passage
	}
	var jobs []job
	for _, doc := range docs {
		for i, chunk := range chunkText(doc.Content) {
			title := doc.Title
			if i > 0 {
				title = fmt.Sprintf("%s (part %d)", doc.Title, i+1)
			}
			jobs = append(jobs, job{passage: Passage{
				SourceURL: doc.SourceURL,
				Title:     title,
				Content:   chunk,
			}})
		}
	}
	logging.Retrieval("indexing %d documents as %d passages", len(docs), len(jobs))

	vectors := make([][]float32, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(indexWorkers)
	for i := range jobs {
		g.Go(func() error {
			vec, err := ix.engine.Embed(gctx, jobs[i].passage.Content)
			if err != nil {
				return fmt.Errorf("failed to embed passage %q: %w", jobs[i].passage.Title, err)
			}
			vectors[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	// Insert in job order so passage IDs are stable across runs.
	for i := range jobs {
		if _, err := ix.store.AddPassage(jobs[i].passage, vectors[i]); err != nil {
			return i, err
		}
	}
	return len(jobs), nil
}

// IndexDirectory reads every .md and .txt file under dir and indexes them.
// The relative path doubles as the source URL for local corpora.
func (ix *Indexer) IndexDirectory(ctx context.Context, dir string) (int, error) {
	var docs []Document
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		ext := filepath.Ext(path)
		if ext != ".md" && ext != ".txt" {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", path, err)
		}
		rel, _ := filepath.Rel(dir, path)
		docs = append(docs, Document{
			SourceURL: rel,
			Title:     strings.TrimSuffix(filepath.Base(path), ext),
			Content:   string(content),
		})
		return nil
	})
	if err != nil {
		return 0, err
	}
	return ix.Index(ctx, docs)
}

// chunkText splits content on paragraph boundaries into chunks of roughly
// chunkSize characters. Blank input yields nothing.
func chunkText(content string) []string {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil
	}

	var chunks []string
	var current strings.Builder
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	flush := func() {
		if text := strings.TrimSpace(current.String()); text != "" {
			chunks = append(chunks, text)
		}
		current.Reset()
	}
	for scanner.Scan() {
		line := scanner.Text()
		if current.Len() > 0 {
			current.WriteString("\n")
		}
		current.WriteString(line)
		if line == "" && current.Len() >= chunkSize {
			flush()
		}
	}
	flush()
	return chunks
}
