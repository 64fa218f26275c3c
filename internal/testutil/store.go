package testutil

import (
	"errors"
	"sync"
)

// ErrStoreUnavailable 由设置了 Fail 的 MemoryStore 返回
var ErrStoreUnavailable = errors.New("store unavailable")

// MemoryStore 是内存中的键值与已处理文件存储
type MemoryStore struct {
	Fail bool

	mu        sync.Mutex
	values    map[string]string
	processed map[string]bool
}

// NewMemoryStore 创建一个空的 MemoryStore
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{values: make(map[string]string), processed: make(map[string]bool)}
}

func (s *MemoryStore) Get(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return "", false, ErrStoreUnavailable
	}
	v, ok := s.values[key]
	return v, ok, nil
}

func (s *MemoryStore) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Fail {
		return ErrStoreUnavailable
	}
	s.values[key] = value
	return nil
}

func (s *MemoryStore) AddProcessedFile(path string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.processed[path] = true
	return nil
}

func (s *MemoryStore) IsFileProcessed(path string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.processed[path], nil
}

func (s *MemoryStore) Close() error { return nil }
