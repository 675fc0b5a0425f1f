package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Memory keeps objects in process memory. It backs local development without
// an object store and the handler tests.
type Memory struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemory constructs an empty store whose URLs start with baseURL.
func NewMemory(baseURL string) *Memory {
	return &Memory{baseURL: strings.TrimSuffix(baseURL, "/"), objects: make(map[string][]byte)}
}

// Put stores the content of r under key.
func (m *Memory) Put(_ context.Context, bucket Bucket, key string, r io.Reader, _ string) (string, error) {
	key = strings.TrimLeft(key, "/")
	if key == "" {
		return "", ErrEmptyKey
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("memory storage read %s: %w", key, err)
	}
	m.mu.Lock()
	m.objects[string(bucket)+"/"+key] = data
	m.mu.Unlock()
	return m.PublicURL(bucket, key), nil
}

// Delete removes objects.
func (m *Memory) Delete(_ context.Context, bucket Bucket, keys ...string) error {
	m.mu.Lock()
	for _, key := range keys {
		delete(m.objects, string(bucket)+"/"+strings.TrimLeft(key, "/"))
	}
	m.mu.Unlock()
	return nil
}

// PresignGet returns the public URL; memory objects have no access control.
func (m *Memory) PresignGet(_ context.Context, bucket Bucket, key string, _ time.Duration) (string, error) {
	return m.PublicURL(bucket, key), nil
}

// PublicURL derives the location of an object.
func (m *Memory) PublicURL(bucket Bucket, key string) string {
	return publicURL(m.baseURL, string(bucket), key)
}

// Get returns a stored object.
func (m *Memory) Get(bucket Bucket, key string) (io.Reader, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	data, ok := m.objects[string(bucket)+"/"+strings.TrimLeft(key, "/")]
	if !ok {
		return nil, false
	}
	return bytes.NewReader(data), true
}

// Len reports the number of stored objects.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects)
}
