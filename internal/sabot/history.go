package sabot

import "fmt"

const (
	PostPageSize = 5
	NewsPageSize = 10
)

// History answers browsing queries over the ledger and the media store.
type History struct {
	ledger   Ledger
	store    MediaStore
	defaults map[Platform]string
	logger   Logger
}

// NewHistory creates a History. defaults maps a platform to the account
// offered when nothing else is known about it.
func NewHistory(ledger Ledger, store MediaStore, defaults map[Platform]string, logger Logger) *History {
	return &History{ledger: ledger, store: store, defaults: defaults, logger: logger}
}

// ListAccounts returns the accounts to browse for a platform: registered
// accounts, else account directories found in the media store, else the
// configured default account.
func (h *History) ListAccounts(platform Platform) []string {
	if accounts := h.ledger.Accounts(platform); len(accounts) > 0 {
		return accounts
	}

	scanned, err := h.store.ScanAccounts(platform)
	if err != nil {
		h.logger.Warn("scanning media accounts failed", "platform", platform, "error", err)
	}
	if len(scanned) > 0 {
		return scanned
	}

	if def := h.defaults[platform]; def != "" {
		return []string{def}
	}
	return nil
}

// ListContentIDs returns ids with stored media for the account. When there
// are none it returns every seen id of the platform so older entries can
// still be shown as having no media.
func (h *History) ListContentIDs(platform Platform, account string) []string {
	for _, variant := range AccountVariants(account) {
		if ids := h.ledger.MappedIDs(platform, variant); len(ids) > 0 {
			return ids
		}
	}
	return h.ledger.SeenIDs(platform)
}

// ResolveMedia finds the files stored for a content item. For each
// spelling of the account it tries the ledger mapping and then the
// conventional directory. Returns ErrNoMedia when nothing is found.
func (h *History) ResolveMedia(platform Platform, account, contentID string) ([]string, error) {
	for _, variant := range AccountVariants(account) {
		if paths := h.ledger.LookupMedia(platform, variant, contentID); len(paths) > 0 {
			return paths, nil
		}
		paths, err := h.store.ScanContent(platform, variant, contentID)
		if err != nil {
			h.logger.Debug("scanning content directory failed", "platform", platform, "account", variant, "content_id", contentID, "error", err)
			continue
		}
		if len(paths) > 0 {
			return paths, nil
		}
	}
	return nil, fmt.Errorf("%w for %s/%s/%s", ErrNoMedia, platform, account, contentID)
}

// Repair drops the ledger mapping of a content item whose files are all
// gone from disk. Returns true when a mapping was removed.
func (h *History) Repair(platform Platform, account, contentID string) (bool, error) {
	paths, ok := h.ledger.MappedMedia(platform, account, contentID)
	if !ok {
		return false, nil
	}
	for _, p := range paths {
		if h.store.Exists(p) {
			return false, nil
		}
	}
	if err := h.ledger.Purge(platform, account, contentID); err != nil {
		return false, fmt.Errorf("purging stale mapping: %w", err)
	}
	h.logger.Info("stale media mapping removed", "platform", platform, "account", account, "content_id", contentID)
	return true, nil
}

// Page is one window of a sequence.
type Page[T any] struct {
	Items   []T
	Index   int
	Size    int
	Total   int
	Pages   int
	HasPrev bool
	HasNext bool
}

// Paginate returns page index of items split into pages of size. Indexes
// outside the sequence yield an empty page; navigation never wraps.
func Paginate[T any](items []T, index, size int) Page[T] {
	if size <= 0 {
		size = PostPageSize
	}
	total := len(items)
	pages := (total + size - 1) / size
	p := Page[T]{Index: index, Size: size, Total: total, Pages: pages}

	start := index * size
	if index >= 0 && start < total {
		end := min(start+size, total)
		p.Items = items[start:end]
	}
	p.HasPrev = index > 0 && total > 0
	p.HasNext = index >= 0 && (index+1)*size < total
	return p
}
