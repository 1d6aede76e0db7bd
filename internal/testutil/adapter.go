package testutil

import (
	"context"
	"errors"
	"sync"

	"sabot-go/internal/sabot"
)

// ScriptedAdapter returns canned items per account. Safe for concurrent use.
type ScriptedAdapter struct {
	mu     sync.Mutex
	items  map[string][]sabot.ContentItem
	errs   map[string]error
	links  map[string]string
	panics bool
	calls  []string
}

var _ sabot.LinkAdapter = (*ScriptedAdapter)(nil)

func NewScriptedAdapter() *ScriptedAdapter {
	return &ScriptedAdapter{
		items: make(map[string][]sabot.ContentItem),
		errs:  make(map[string]error),
		links: make(map[string]string),
	}
}

// SetItems sets what Fetch returns for account.
func (a *ScriptedAdapter) SetItems(account string, items ...sabot.ContentItem) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.items[account] = items
}

// SetError makes Fetch fail for account.
func (a *ScriptedAdapter) SetError(account string, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.errs[account] = err
}

// SetLink maps a link to the content id ContentIDFromLink derives.
func (a *ScriptedAdapter) SetLink(link, contentID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.links[link] = contentID
}

// SetPanic makes every Fetch panic.
func (a *ScriptedAdapter) SetPanic(v bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.panics = v
}

func (a *ScriptedAdapter) Fetch(_ context.Context, account string) ([]sabot.ContentItem, error) {
	a.mu.Lock()
	a.calls = append(a.calls, account)
	panics := a.panics
	items, err := a.items[account], a.errs[account]
	a.mu.Unlock()

	if panics {
		panic("scripted adapter panic")
	}
	if err != nil {
		return nil, err
	}
	out := make([]sabot.ContentItem, len(items))
	copy(out, items)
	return out, nil
}

func (a *ScriptedAdapter) ContentIDFromLink(_ context.Context, link string) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	id, ok := a.links[link]
	if !ok {
		return "", errors.New("no content id in link")
	}
	return id, nil
}

// Calls returns the accounts or links Fetch was called with.
func (a *ScriptedAdapter) Calls() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.calls...)
}
