package sabot

import (
	"fmt"
	"sort"
)

// Service coordinates adapters, the media store, the ledger and the relay
// to run the dedup-and-relay pipeline.
type Service struct {
	ledger   Ledger
	store    MediaStore
	adapters map[Platform]Adapter
	relay    Relay
	runs     RunLog
	metrics  Metrics
	logger   Logger
	clock    Clock
	idgen    IDGenerator
}

// NewService creates a Service. runs and metrics may be nil.
func NewService(ledger Ledger, store MediaStore, adapters map[Platform]Adapter, relay Relay, runs RunLog, metrics Metrics, logger Logger, clock Clock, idgen IDGenerator) *Service {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Service{
		ledger:   ledger,
		store:    store,
		adapters: adapters,
		relay:    relay,
		runs:     runs,
		metrics:  metrics,
		logger:   logger,
		clock:    clock,
		idgen:    idgen,
	}
}

// Platforms returns the platforms that have an adapter, in display order.
func (s *Service) Platforms() []Platform {
	var out []Platform
	for _, p := range Platforms {
		if _, ok := s.adapters[p]; ok {
			out = append(out, p)
		}
	}
	var extra []Platform
	for p := range s.adapters {
		if _, known := platformPrefixes[p]; !known {
			extra = append(extra, p)
		}
	}
	sort.Slice(extra, func(i, j int) bool { return extra[i] < extra[j] })
	return append(out, extra...)
}

// Relay returns the configured relay so callers can send operator notices.
func (s *Service) Relay() Relay { return s.relay }

// Delete removes the stored media for one content item and its mapping.
// The item stays seen so it is not delivered again. Returns the number of
// files removed.
func (s *Service) Delete(platform Platform, account, contentID string) (int, error) {
	paths, _ := s.ledger.MappedMedia(platform, account, contentID)
	if len(paths) == 0 {
		scanned, err := s.store.ScanContent(platform, account, contentID)
		if err != nil {
			return 0, fmt.Errorf("scanning media for %s/%s/%s: %w", platform, account, contentID, err)
		}
		paths = scanned
	}

	removed := 0
	for _, p := range paths {
		if s.store.Exists(p) {
			removed++
		}
	}
	if err := s.store.Cleanup(paths); err != nil {
		return 0, fmt.Errorf("removing media: %w", err)
	}
	if err := s.ledger.Purge(platform, account, contentID); err != nil {
		return removed, fmt.Errorf("purging ledger entry: %w", err)
	}

	s.logger.Info("content purged", "platform", platform, "account", account, "content_id", contentID, "files", removed)
	return removed, nil
}
