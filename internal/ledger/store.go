package ledger

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
)

// ledgerStore holds the encoded ledger document. Concurrency is managed by
// the caller (Ledger.mu), so stores need not be safe for concurrent use.
type ledgerStore interface {
	// Load returns the stored document, or nil when nothing is stored yet.
	Load() ([]byte, error)

	// Save replaces the stored document. After an error the previous
	// document must still be loadable.
	Save(data []byte) error
}

// fileStore keeps the document in a single JSON file.
type fileStore struct {
	path string
}

func (s *fileStore) Load() ([]byte, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading ledger file: %w", err)
	}
	return data, nil
}

// Save writes to a temp file in the same directory, syncs it and renames
// it over the ledger file.
func (s *fileStore) Save(data []byte) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating ledger directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".ledger-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing ledger: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing ledger: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replacing ledger file: %w", err)
	}

	success = true
	return nil
}

// memoryStore keeps the document in memory. Useful for tests and dry runs.
type memoryStore struct {
	data []byte
}

func (s *memoryStore) Load() ([]byte, error) { return slices.Clone(s.data), nil }

func (s *memoryStore) Save(data []byte) error {
	s.data = slices.Clone(data)
	return nil
}
