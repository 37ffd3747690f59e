// Package memory provides an in-memory crawl.Sink for tests and dry runs.
package memory

import (
	"context"
	"sync"

	"github.com/civicrag/webharvest/internal/crawl"
	"github.com/civicrag/webharvest/internal/normalize"
	"github.com/civicrag/webharvest/internal/textsplit"
)

// SavedDocument pairs a document with the chunks the engine accepted for it.
type SavedDocument struct {
	RunID    string
	Document normalize.Document
	Chunks   []textsplit.Chunk
}

// Store collects everything the engine persists. Safe for concurrent use.
type Store struct {
	mu   sync.Mutex
	docs []SavedDocument
	runs []crawl.RunRecord
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{}
}

// SaveDocument records the document and its chunks.
func (s *Store) SaveDocument(_ context.Context, runID string, doc normalize.Document, chunks []textsplit.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.docs = append(s.docs, SavedDocument{
		RunID:    runID,
		Document: doc,
		Chunks:   append([]textsplit.Chunk(nil), chunks...),
	})
	return nil
}

// SaveRun records the run record.
func (s *Store) SaveRun(_ context.Context, run crawl.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.runs = append(s.runs, run)
	return nil
}

// Documents returns a copy of everything saved so far.
func (s *Store) Documents() []SavedDocument {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]SavedDocument(nil), s.docs...)
}

// Runs returns the recorded run records.
func (s *Store) Runs() []crawl.RunRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]crawl.RunRecord(nil), s.runs...)
}
