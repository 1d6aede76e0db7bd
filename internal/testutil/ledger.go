package testutil

import (
	"errors"
	"sync"

	"sabot-go/internal/sabot"
)

// ErrLedgerWrite is returned by FailingLedger for failing writes.
var ErrLedgerWrite = errors.New("ledger write failed")

// FailingLedger wraps a Ledger and fails selected writes on demand.
type FailingLedger struct {
	sabot.Ledger

	mu          sync.Mutex
	failRecord  bool
	failMarking bool
}

func NewFailingLedger(inner sabot.Ledger) *FailingLedger {
	return &FailingLedger{Ledger: inner}
}

// FailRecordMedia toggles failure of RecordMedia.
func (l *FailingLedger) FailRecordMedia(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failRecord = v
}

// FailMarkSeen toggles failure of MarkSeen.
func (l *FailingLedger) FailMarkSeen(v bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failMarking = v
}

func (l *FailingLedger) RecordMedia(platform sabot.Platform, account, contentID string, paths []string) error {
	l.mu.Lock()
	fail := l.failRecord
	l.mu.Unlock()
	if fail {
		return ErrLedgerWrite
	}
	return l.Ledger.RecordMedia(platform, account, contentID, paths)
}

func (l *FailingLedger) MarkSeen(platform sabot.Platform, contentID string) error {
	l.mu.Lock()
	fail := l.failMarking
	l.mu.Unlock()
	if fail {
		return ErrLedgerWrite
	}
	return l.Ledger.MarkSeen(platform, contentID)
}
