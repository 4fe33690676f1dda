// Package cache provides the key-value stores behind the embedding cache.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrKeyNotFound is returned by Get when the key is absent
var ErrKeyNotFound = errors.New("cache: key not found")

// Op names map to the Redis commands for error context
const (
	OpGet  = "GET"
	OpSet  = "SET"
	OpPing = "PING"
)

// Error is a failed key-value operation
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("cache %s: %v", e.Op, e.Err) }
func (e *Error) Unwrap() error { return e.Err }

// Memory is an in-process key-value store
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemory creates an empty in-process store
func NewMemory() *Memory {
	return &Memory{data: make(map[string][]byte)}
}

// Get retrieves a copy of the value stored at key
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.data[key]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return append([]byte(nil), v...), nil
}

// Set stores a copy of value at key
func (m *Memory) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = append([]byte(nil), value...)
	return nil
}

// Len returns the number of stored keys
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
