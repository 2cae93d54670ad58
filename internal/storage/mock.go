package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
)

// MockStorage is an in-memory Storage for tests
type MockStorage struct {
	mu       sync.Mutex
	data     map[string][]byte
	metadata map[string]map[string]string
}

// NewMockStorage creates a new mock storage instance
func NewMockStorage() *MockStorage {
	return &MockStorage{
		data:     make(map[string][]byte),
		metadata: make(map[string]map[string]string),
	}
}

// Upload stores data in memory
func (m *MockStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string, metadata map[string]string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}

	meta := make(map[string]string, len(metadata))
	for k, v := range metadata {
		meta[k] = v
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
	m.metadata[key] = meta
	return nil
}

// Download returns stored data
func (m *MockStorage) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	data, ok := m.data[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// Delete removes data from memory
func (m *MockStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	delete(m.metadata, key)
	return nil
}

// Exists checks if data exists
func (m *MockStorage) Exists(ctx context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.data[key]
	return ok, nil
}

// GetMetadata returns the metadata recorded at upload
func (m *MockStorage) GetMetadata(ctx context.Context, key string) (map[string]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.data[key]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return m.metadata[key], nil
}

// ListObjects returns sorted keys with prefix
func (m *MockStorage) ListObjects(ctx context.Context, prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []string
	for key := range m.data {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

// Close does nothing for mock storage
func (m *MockStorage) Close() error {
	return nil
}

// SetData allows tests to pre-populate storage
func (m *MockStorage) SetData(key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = data
}

// GetData allows tests to inspect stored data
func (m *MockStorage) GetData(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[key]
	return data, ok
}

var _ Storage = (*MockStorage)(nil)
