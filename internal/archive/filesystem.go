package archive

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"sabot-go/internal/sabot"
)

const snapshotExt = ".snap"

// FileSystemArchive keeps each version of a snapshot in its own file:
//
//	<root>/<name>/<version>.snap
//
// A snapshot file only appears once it was written in full.
type FileSystemArchive struct {
	root string
}

var _ sabot.Archive = (*FileSystemArchive)(nil)

func NewFileSystemArchive(root string) (*FileSystemArchive, error) {
	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("creating archive root %s: %w", root, err)
	}
	return &FileSystemArchive{root: root}, nil
}

func (a *FileSystemArchive) snapshotPath(name string, version int64) string {
	return filepath.Join(a.root, sabot.SanitizeComponent(name), strconv.FormatInt(version, 10)+snapshotExt)
}

// Put stores version of name, replacing a snapshot already stored under
// the same version. Exactly size bytes must be read from r.
func (a *FileSystemArchive) Put(name string, r io.Reader, size int64, version int64) error {
	if version <= 0 {
		return fmt.Errorf("invalid snapshot version %d", version)
	}
	dest := a.snapshotPath(name, version)
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("creating snapshot directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), ".put-*")
	if err != nil {
		return fmt.Errorf("staging snapshot: %w", err)
	}
	defer os.Remove(tmp.Name())

	n, err := io.Copy(tmp, io.LimitReader(r, size+1))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	switch {
	case err != nil:
		return fmt.Errorf("staging snapshot: %w", err)
	case n != size:
		return fmt.Errorf("snapshot %s version %d: got %d bytes, want %d", name, version, n, size)
	}
	return os.Rename(tmp.Name(), dest)
}

// Latest returns the highest stored version, or 0 if none.
func (a *FileSystemArchive) Latest(name string) (int64, error) {
	entries, err := os.ReadDir(filepath.Join(a.root, sabot.SanitizeComponent(name)))
	if errors.Is(err, fs.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("listing snapshots of %s: %w", name, err)
	}

	var latest int64
	for _, e := range entries {
		base, ok := strings.CutSuffix(e.Name(), snapshotExt)
		if !ok || !e.Type().IsRegular() {
			continue
		}
		if v, err := strconv.ParseInt(base, 10, 64); err == nil {
			latest = max(latest, v)
		}
	}
	return latest, nil
}

func (a *FileSystemArchive) Get(name string, version int64, w io.Writer) error {
	f, err := os.Open(a.snapshotPath(name, version))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("snapshot %s version %d: %w", name, version, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("opening snapshot: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(w, f); err != nil {
		return fmt.Errorf("reading snapshot %s version %d: %w", name, version, err)
	}
	return nil
}

// ValidateSetup checks that the root is still a directory.
func (a *FileSystemArchive) ValidateSetup() error {
	info, err := os.Stat(a.root)
	if err != nil {
		return fmt.Errorf("archive root: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("archive root %s is not a directory", a.root)
	}
	return nil
}
