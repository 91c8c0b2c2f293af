// Package store persists the indicator dataset in a versioned remote blob and
// merges new snapshots into it under optimistic concurrency.
package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotFound means the blob does not exist yet. Callers treat it as an empty dataset.
	ErrNotFound = errors.New("blob not found")
	// ErrVersionConflict means the blob changed since it was read.
	ErrVersionConflict = errors.New("version conflict")
	// ErrTransport wraps any failure to reach or talk to the remote.
	ErrTransport = errors.New("remote transport failure")
)

// BlobStore is a single versioned file. Put succeeds only when expectedVersion
// matches the current version; "" means the blob must not exist yet.
type BlobStore interface {
	Get(ctx context.Context) (data []byte, version string, err error)
	Put(ctx context.Context, data []byte, expectedVersion, message string) (newVersion string, err error)
}

// MemoryBlob is an in-process BlobStore.
type MemoryBlob struct {
	mu      sync.Mutex
	data    []byte
	version int
	exists  bool
	commits []string

	// BeforePut, when set, runs inside Put before the version check.
	// Tests use it to interleave a competing writer.
	BeforePut func()
}

func NewMemoryBlob() *MemoryBlob {
	return &MemoryBlob{}
}

func (m *MemoryBlob) Get(_ context.Context) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.exists {
		return nil, "", ErrNotFound
	}
	out := make([]byte, len(m.data))
	copy(out, m.data)
	return out, m.versionString(), nil
}

func (m *MemoryBlob) Put(_ context.Context, data []byte, expectedVersion, message string) (string, error) {
	if m.BeforePut != nil {
		m.BeforePut()
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	current := ""
	if m.exists {
		current = m.versionString()
	}
	if expectedVersion != current {
		return "", fmt.Errorf("%w: expected %q, have %q", ErrVersionConflict, expectedVersion, current)
	}
	m.data = append([]byte(nil), data...)
	m.version++
	m.exists = true
	m.commits = append(m.commits, message)
	return m.versionString(), nil
}

// Commits returns the messages of every successful Put.
func (m *MemoryBlob) Commits() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.commits...)
}

func (m *MemoryBlob) versionString() string {
	return fmt.Sprintf("v%d", m.version)
}
