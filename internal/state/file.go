package state

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"

	"github.com/agisilaos/farewatch/internal/model"
)

type fileDoc struct {
	Routes map[string]model.DealState `json:"routes"`
}

type FileStore struct {
	Path string

	mu sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load(_ context.Context, route string) (model.DealState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return model.DealState{}, err
	}
	return doc.Routes[route], nil
}

func (s *FileStore) Save(_ context.Context, route string, st model.DealState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	doc.Routes[route] = st
	return s.write(doc)
}

func (s *FileStore) Reset(_ context.Context, route string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, err := s.read()
	if err != nil {
		return err
	}
	delete(doc.Routes, route)
	return s.write(doc)
}

func (s *FileStore) read() (fileDoc, error) {
	var doc fileDoc
	b, err := os.ReadFile(s.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			doc.Routes = map[string]model.DealState{}
			return doc, nil
		}
		return doc, err
	}
	if err := json.Unmarshal(b, &doc); err != nil {
		return doc, err
	}
	if doc.Routes == nil {
		doc.Routes = map[string]model.DealState{}
	}
	return doc, nil
}

func (s *FileStore) write(doc fileDoc) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o755); err != nil {
		return err
	}
	b, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return err
	}
	b = append(b, '\n')
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, b, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.Path)
}

var _ Store = (*FileStore)(nil)
