package goasq

import (
	"encoding/json"
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charmbracelet/log"
)

// Storage is the synchronous key-value medium answers are persisted to.
// It mirrors the browser localStorage contract: string in, string out.
type Storage interface {
	Get(key string) (string, bool)
	Set(key, value string) error
	Remove(key string)
}

// MemoryStorage is an in-memory Storage for tests.
type MemoryStorage struct {
	mu      sync.RWMutex
	entries map[string]string

	// FailWrites simulates a full storage medium.
	FailWrites bool
}

// NewMemoryStorage creates an empty in-memory storage.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{entries: make(map[string]string)}
}

func (s *MemoryStorage) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	value, ok := s.entries[key]
	return value, ok
}

func (s *MemoryStorage) Set(key, value string) error {
	if s.FailWrites {
		return fmt.Errorf("storage is full")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = value
	return nil
}

func (s *MemoryStorage) Remove(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

// FileStorage persists each key as one JSON file in a cache directory.
type FileStorage struct {
	dir string
}

// NewFileStorage creates a file-backed storage rooted at dir, creating the
// directory if needed.
func NewFileStorage(dir string) (*FileStorage, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %v", err)
	}
	return &FileStorage{dir: dir}, nil
}

// DefaultStorageDir returns the per-user cache directory for stored answers.
func DefaultStorageDir() (string, error) {
	usr, err := user.Current()
	if err != nil {
		return "", fmt.Errorf("failed to get current user: %v", err)
	}
	return filepath.Join(usr.HomeDir, ".cache", "goasq"), nil
}

func (s *FileStorage) path(key string) string {
	// Keys derive from template paths and may contain separators.
	safe := strings.ReplaceAll(key, string(filepath.Separator), "_")
	return filepath.Join(s.dir, safe+".json")
}

func (s *FileStorage) Get(key string) (string, bool) {
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		return "", false
	}
	return string(data), true
}

func (s *FileStorage) Set(key, value string) error {
	if err := os.WriteFile(s.path(key), []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to write storage file: %v", err)
	}
	return nil
}

func (s *FileStorage) Remove(key string) {
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		log.Warnf("Failed to remove storage file for %s: %v", key, err)
	}
}

// AnswerStore persists one answer mapping per questionnaire identity on top
// of a Storage. All persistence is keyed by the local identity, never the
// remote one.
type AnswerStore struct {
	storage Storage
}

// NewAnswerStore creates an AnswerStore over the given storage medium.
func NewAnswerStore(storage Storage) *AnswerStore {
	return &AnswerStore{storage: storage}
}

// Write shallow-merges data into whatever is already stored under localID.
// Writing with an empty local identity is a silent no-op: nothing may be
// persisted before an identity exists.
func (a *AnswerStore) Write(localID string, data AnswerMap) error {
	if localID == "" {
		return nil
	}
	stored := AnswerMap{}
	if raw, ok := a.storage.Get(localID); ok {
		if err := json.Unmarshal([]byte(raw), &stored); err != nil {
			log.Warnf("Stored answers for %s are not valid JSON, replacing: %v", localID, err)
			stored = AnswerMap{}
		}
	}
	merged := MergeAnswers(stored, data)
	serialized, err := json.Marshal(merged)
	if err != nil {
		return fmt.Errorf("failed to serialize answers: %v", err)
	}
	if err := a.storage.Set(localID, string(serialized)); err != nil {
		return fmt.Errorf("failed to store answers for %s: %v", localID, err)
	}
	return nil
}

// Read returns the stored answer mapping for localID, or absent.
func (a *AnswerStore) Read(localID string) (AnswerMap, bool) {
	if localID == "" {
		return nil, false
	}
	raw, ok := a.storage.Get(localID)
	if !ok {
		return nil, false
	}
	stored := AnswerMap{}
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		log.Warnf("Stored answers for %s are not valid JSON: %v", localID, err)
		return nil, false
	}
	return stored, true
}

// ReadRaw returns the serialized form of the stored answers, as written.
func (a *AnswerStore) ReadRaw(localID string) (string, bool) {
	if localID == "" {
		return "", false
	}
	return a.storage.Get(localID)
}

// Clear removes the entry for localID entirely.
func (a *AnswerStore) Clear(localID string) {
	if localID == "" {
		return
	}
	a.storage.Remove(localID)
}
