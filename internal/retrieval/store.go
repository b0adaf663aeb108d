// Package retrieval indexes Manim documentation passages in SQLite and
// serves semantic search over them for grounding repair prompts.
package retrieval

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"mathmotion/internal/logging"
)

// Passage is one indexed chunk of documentation.
type Passage struct {
	ID        int64
	SourceURL string
	Title     string
	Content   string
}

// Store persists passages and their embeddings. Embeddings are stored as
// JSON arrays in a TEXT column and scored in process.
type Store struct {
	db   *sql.DB
	mu   sync.RWMutex
	path string
}

// OpenStore opens (creating if needed) the passage index at path.
func OpenStore(path string) (*Store, error) {
	logging.Store("opening passage index at %s", path)

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create index directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open index: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("failed to set busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("failed to set journal_mode=WAL: %v", err)
	}

	s := &Store{db: db, path: path}
	if err := s.initSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initSchema() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS passages (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			source_url TEXT NOT NULL,
			title      TEXT NOT NULL DEFAULT '',
			content    TEXT NOT NULL,
			embedding  TEXT NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_passages_source ON passages(source_url);
	`)
	if err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// AddPassage stores one passage with its embedding and returns its ID.
func (s *Store) AddPassage(p Passage, vector []float32) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	encoded, err := json.Marshal(vector)
	if err != nil {
		return 0, fmt.Errorf("failed to encode embedding: %w", err)
	}
	res, err := s.db.Exec(
		"INSERT INTO passages (source_url, title, content, embedding) VALUES (?, ?, ?, ?)",
		p.SourceURL, p.Title, p.Content, string(encoded),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert passage: %w", err)
	}
	return res.LastInsertId()
}

// Count reports the number of indexed passages.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM passages").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count passages: %w", err)
	}
	return n, nil
}

// corpus loads every passage with its embedding, ordered by ascending ID so
// similarity ties resolve the same way on every run.
func (s *Store) corpus() ([]Passage, [][]float32, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query("SELECT id, source_url, title, content, embedding FROM passages ORDER BY id ASC")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load corpus: %w", err)
	}
	defer rows.Close()

	var passages []Passage
	var vectors [][]float32
	for rows.Next() {
		var p Passage
		var encoded string
		if err := rows.Scan(&p.ID, &p.SourceURL, &p.Title, &p.Content, &encoded); err != nil {
			return nil, nil, fmt.Errorf("failed to scan passage: %w", err)
		}
		var vec []float32
		if err := json.Unmarshal([]byte(encoded), &vec); err != nil {
			return nil, nil, fmt.Errorf("failed to decode embedding for passage %d: %w", p.ID, err)
		}
		passages = append(passages, p)
		vectors = append(vectors, vec)
	}
	return passages, vectors, rows.Err()
}
