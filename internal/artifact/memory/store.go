// Package memory provides an in-memory artifact store for tests.
package memory

import (
	"context"
	"sync"
)

// Object is one saved artifact.
type Object struct {
	Name        string
	ContentType string
	Data        []byte
}

// Store keeps artifacts in a map keyed by object name. Safe for concurrent
// use.
type Store struct {
	mu      sync.Mutex
	objects map[string]Object
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{objects: make(map[string]Object)}
}

// Save records the payload and returns a mem:// URI.
func (s *Store) Save(_ context.Context, objectName, contentType string, data []byte) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[objectName] = Object{
		Name:        objectName,
		ContentType: contentType,
		Data:        append([]byte(nil), data...),
	}
	return "mem://" + objectName, nil
}

// Get returns a saved object by name.
func (s *Store) Get(objectName string) (Object, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	obj, ok := s.objects[objectName]
	return obj, ok
}

// Len reports how many artifacts have been saved.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}
