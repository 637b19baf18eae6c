package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Cookie mirrors the fields the portal session depends on. The on-disk
// format is shared with the desktop app, which clears login state by
// deleting the files.
type Cookie struct {
	Name     string  `json:"name"`
	Value    string  `json:"value"`
	Domain   string  `json:"domain"`
	Path     string  `json:"path"`
	Expires  float64 `json:"expires"`
	Secure   bool    `json:"secure"`
	HTTPOnly bool    `json:"httpOnly"`
}

// SessionArtifacts are the persisted login state: the cookie set plus a
// flat snapshot of the portal's localStorage.
type SessionArtifacts struct {
	Cookies []Cookie          `json:"cookies"`
	Storage map[string]string `json:"storage"`
}

// Store persists session artifacts between runs. Load returns (nil, nil)
// when nothing has been saved yet.
type Store interface {
	Load() (*SessionArtifacts, error)
	Save(*SessionArtifacts) error
	Clear() error
}

// FileStore keeps cookies and storage in two JSON files under one
// directory. Not safe for concurrent writers; at most one automation
// process should use a given directory at a time.
type FileStore struct {
	dir string
}

func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

func (s *FileStore) cookiePath() string  { return filepath.Join(s.dir, "cookies.json") }
func (s *FileStore) storagePath() string { return filepath.Join(s.dir, "storage.json") }

func (s *FileStore) Load() (*SessionArtifacts, error) {
	data, err := os.ReadFile(s.cookiePath())
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read cookie file: %w", err)
	}

	var artifacts SessionArtifacts
	if err := json.Unmarshal(data, &artifacts.Cookies); err != nil {
		return nil, fmt.Errorf("cookie file is not valid JSON: %w", err)
	}

	// The storage snapshot is optional; older runs only saved cookies.
	if data, err := os.ReadFile(s.storagePath()); err == nil {
		if err := json.Unmarshal(data, &artifacts.Storage); err != nil {
			return nil, fmt.Errorf("storage file is not valid JSON: %w", err)
		}
	}

	return &artifacts, nil
}

func (s *FileStore) Save(artifacts *SessionArtifacts) error {
	if err := os.MkdirAll(s.dir, 0755); err != nil {
		return fmt.Errorf("failed to create session dir: %w", err)
	}

	data, err := json.Marshal(artifacts.Cookies)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.cookiePath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write cookie file: %w", err)
	}

	storage := artifacts.Storage
	if storage == nil {
		storage = map[string]string{}
	}
	data, err = json.Marshal(storage)
	if err != nil {
		return err
	}
	if err := os.WriteFile(s.storagePath(), data, 0600); err != nil {
		return fmt.Errorf("failed to write storage file: %w", err)
	}

	return nil
}

func (s *FileStore) Clear() error {
	for _, path := range []string{s.cookiePath(), s.storagePath()} {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return err
		}
	}
	return nil
}

// MemoryStore is the test double for FileStore.
type MemoryStore struct {
	artifacts *SessionArtifacts
}

func NewMemoryStore() *MemoryStore { return &MemoryStore{} }

func (s *MemoryStore) Load() (*SessionArtifacts, error) { return s.artifacts, nil }

func (s *MemoryStore) Save(artifacts *SessionArtifacts) error {
	s.artifacts = artifacts
	return nil
}

func (s *MemoryStore) Clear() error {
	s.artifacts = nil
	return nil
}
