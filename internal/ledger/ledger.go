package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sort"
	"sync"

	"sabot-go/internal/sabot"
)

// Ledger is the content ledger: seen content ids per platform, stored
// media paths per (platform, account, content id), and the registry of
// accounts ever fetched. Every mutation is written through to the store
// before it becomes visible; a failed write leaves the ledger unchanged.
//
// Ledger is safe for concurrent use. Mutations are serialized.
type Ledger struct {
	mu     sync.RWMutex
	store  ledgerStore
	doc    *document
	seen   map[sabot.Platform]map[string]struct{}
	logger sabot.Logger
}

var _ sabot.Ledger = (*Ledger)(nil)

// NewFileLedger opens the ledger stored at path. A missing file starts an
// empty ledger; an unreadable or malformed one is logged and reset to
// empty rather than failing startup.
func NewFileLedger(path string, logger sabot.Logger) *Ledger {
	return open(&fileStore{path: path}, logger)
}

// NewMemoryLedger creates an empty ledger that is never persisted.
func NewMemoryLedger() *Ledger {
	return open(&memoryStore{}, sabot.NewNopLogger())
}

func open(st ledgerStore, logger sabot.Logger) *Ledger {
	l := &Ledger{store: st, logger: logger}
	l.commit(l.load())
	return l
}

func (l *Ledger) load() *document {
	data, err := l.store.Load()
	if err != nil {
		l.logger.Error("loading ledger failed, starting empty", "error", err)
		return newDocument()
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return newDocument()
	}

	doc := newDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		var se *sectionError
		if errors.As(err, &se) {
			l.logger.Warn("ledger partially malformed", "error", err)
			return doc
		}
		l.logger.Error("ledger malformed, starting empty", "error", err)
		return newDocument()
	}
	return doc
}

// commit installs doc as the current state. Caller holds mu for writing,
// or has exclusive access during open.
func (l *Ledger) commit(doc *document) {
	seen := make(map[sabot.Platform]map[string]struct{}, len(doc.Seen))
	for p, ids := range doc.Seen {
		set := make(map[string]struct{}, len(ids))
		for _, id := range ids {
			set[id] = struct{}{}
		}
		seen[p] = set
	}
	l.doc = doc
	l.seen = seen
}

// mutate applies fn to a copy of the document, saves the copy and then
// makes it current. If fn reports no change nothing is written.
func (l *Ledger) mutate(fn func(d *document) bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	next := l.doc.clone()
	if !fn(next) {
		return nil
	}

	data, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encoding ledger: %w", err)
	}
	if err := l.store.Save(data); err != nil {
		return fmt.Errorf("saving ledger: %w", err)
	}
	l.commit(next)
	return nil
}

// HasSeen reports whether contentID was already delivered on platform.
func (l *Ledger) HasSeen(platform sabot.Platform, contentID string) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.seen[platform][contentID]
	return ok
}

// MarkSeen records contentID as delivered. Idempotent.
func (l *Ledger) MarkSeen(platform sabot.Platform, contentID string) error {
	return l.mutate(func(d *document) bool {
		if _, ok := l.seen[platform][contentID]; ok {
			return false
		}
		d.Seen[platform] = append(d.Seen[platform], contentID)
		return true
	})
}

// RecordMedia sets the stored paths for a content item, replacing any
// previous mapping. Empty paths remove the mapping.
func (l *Ledger) RecordMedia(platform sabot.Platform, account, contentID string, paths []string) error {
	if len(paths) == 0 {
		return l.mutate(func(d *document) bool {
			return d.dropMedia(platform, account, contentID)
		})
	}
	return l.mutate(func(d *document) bool {
		byAccount := d.Media[platform]
		if byAccount == nil {
			byAccount = make(map[string]map[string][]string)
			d.Media[platform] = byAccount
		}
		byID := byAccount[account]
		if byID == nil {
			byID = make(map[string][]string)
			byAccount[account] = byID
		}
		byID[contentID] = slices.Clone(paths)
		return true
	})
}

// MappedMedia returns the recorded paths for a content item as stored,
// whether or not they still exist.
func (l *Ledger) MappedMedia(platform sabot.Platform, account, contentID string) ([]string, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	paths, ok := l.doc.Media[platform][account][contentID]
	return slices.Clone(paths), ok
}

// LookupMedia returns the recorded paths that still exist on disk. Stale
// entries are filtered out, not removed.
func (l *Ledger) LookupMedia(platform sabot.Platform, account, contentID string) []string {
	paths, _ := l.MappedMedia(platform, account, contentID)
	var existing []string
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			existing = append(existing, p)
		}
	}
	return existing
}

// RegisterAccount adds account to the platform's registry. Idempotent.
func (l *Ledger) RegisterAccount(platform sabot.Platform, account string) error {
	if account == "" {
		return nil
	}
	return l.mutate(func(d *document) bool {
		if slices.Contains(d.Accounts[platform], account) {
			return false
		}
		d.Accounts[platform] = append(d.Accounts[platform], account)
		return true
	})
}

// Accounts returns the registered accounts in registration order.
func (l *Ledger) Accounts(platform sabot.Platform) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.doc.Accounts[platform])
}

// SeenIDs returns the platform's seen ids in the order they were marked.
func (l *Ledger) SeenIDs(platform sabot.Platform) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return slices.Clone(l.doc.Seen[platform])
}

// MappedIDs returns ids with a non-empty mapping for the account. Ids
// that were marked seen come first in seen order, the rest follow sorted.
func (l *Ledger) MappedIDs(platform sabot.Platform, account string) []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	byID := l.doc.Media[platform][account]
	if len(byID) == 0 {
		return nil
	}

	var ids []string
	listed := make(map[string]bool, len(byID))
	for _, id := range l.doc.Seen[platform] {
		if len(byID[id]) > 0 {
			ids = append(ids, id)
			listed[id] = true
		}
	}
	var rest []string
	for id, paths := range byID {
		if len(paths) > 0 && !listed[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	return append(ids, rest...)
}

// Purge removes the media mapping for a content item. The item stays seen.
func (l *Ledger) Purge(platform sabot.Platform, account, contentID string) error {
	return l.mutate(func(d *document) bool {
		return d.dropMedia(platform, account, contentID)
	})
}

// ImportSeen marks ids seen on platform in one write. Used to fold in
// seen lists kept by older versions in separate files.
func (l *Ledger) ImportSeen(platform sabot.Platform, ids []string) (int, error) {
	added := 0
	err := l.mutate(func(d *document) bool {
		have := make(map[string]bool, len(d.Seen[platform]))
		for _, id := range d.Seen[platform] {
			have[id] = true
		}
		for _, id := range ids {
			if id == "" || have[id] {
				continue
			}
			have[id] = true
			d.Seen[platform] = append(d.Seen[platform], id)
			added++
		}
		return added > 0
	})
	if err != nil {
		return 0, err
	}
	return added, nil
}

// Snapshot writes the current document to w.
func (l *Ledger) Snapshot(w io.Writer) error {
	l.mu.RLock()
	data, err := json.MarshalIndent(l.doc, "", "  ")
	l.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("encoding ledger snapshot: %w", err)
	}
	if _, err := w.Write(data); err != nil {
		return fmt.Errorf("writing ledger snapshot: %w", err)
	}
	return nil
}

// Restore replaces the ledger with a document previously produced by
// Snapshot. Unlike loading from the store, a malformed snapshot is an
// error and leaves the ledger untouched.
func (l *Ledger) Restore(r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("reading ledger snapshot: %w", err)
	}
	doc := newDocument()
	if err := json.Unmarshal(data, doc); err != nil {
		return fmt.Errorf("decoding ledger snapshot: %w", err)
	}
	return l.mutate(func(d *document) bool {
		*d = *doc
		return true
	})
}
