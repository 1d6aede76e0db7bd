package archive

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"sabot-go/internal/sabot"
)

// ErrNotFound is returned by Get for a missing snapshot.
var ErrNotFound = errors.New("snapshot not found")

// MemoryArchive keeps snapshots in memory. Safe for concurrent use.
type MemoryArchive struct {
	mu        sync.RWMutex
	snapshots map[string]map[int64][]byte
}

var _ sabot.Archive = (*MemoryArchive)(nil)

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{snapshots: make(map[string]map[int64][]byte)}
}

func (m *MemoryArchive) Put(name string, r io.Reader, size int64, version int64) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	if int64(len(data)) != size {
		return fmt.Errorf("size mismatch: expected %d bytes, got %d", size, len(data))
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snapshots[name] == nil {
		m.snapshots[name] = make(map[int64][]byte)
	}
	m.snapshots[name][version] = data
	return nil
}

func (m *MemoryArchive) Latest(name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var latest int64
	for v := range m.snapshots[name] {
		latest = max(latest, v)
	}
	return latest, nil
}

func (m *MemoryArchive) Get(name string, version int64, w io.Writer) error {
	m.mu.RLock()
	data, ok := m.snapshots[name][version]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("snapshot %s version %d: %w", name, version, ErrNotFound)
	}
	_, err := w.Write(data)
	return err
}

func (m *MemoryArchive) ValidateSetup() error { return nil }
