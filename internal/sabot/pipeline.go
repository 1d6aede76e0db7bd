package sabot

import (
	"context"
	"errors"
	"fmt"
)

// Fetch runs the pipeline for one account: fetch recent items, skip those
// already seen, download their media, record it, relay each item and mark
// it seen once the relay succeeded. Collaborator failures never escape;
// they end up in the returned report.
func (s *Service) Fetch(ctx context.Context, platform Platform, account string, trigger Trigger) *RunReport {
	report, finish := s.beginRun(platform, account, trigger)
	defer finish()

	if err := s.ledger.RegisterAccount(platform, account); err != nil {
		s.logger.Warn("registering account failed", "platform", platform, "account", account, "error", err)
	}

	adapter, ok := s.adapters[platform]
	if !ok {
		report.Err = fmt.Errorf("%w: %s", ErrNoAdapter, platform)
		return report
	}

	items, err := fetchItems(ctx, adapter, account)
	if err != nil {
		report.Err = fmt.Errorf("fetching %s/%s: %w", platform, account, err)
		s.logger.Error("adapter failed", "platform", platform, "account", account, "error", err)
		return report
	}

	s.processItems(ctx, report, items)
	return report
}

// FetchLink runs the pipeline for a single content link. When the adapter
// can derive the content id from the link and that id was already seen,
// nothing is fetched.
func (s *Service) FetchLink(ctx context.Context, platform Platform, link string, trigger Trigger) *RunReport {
	report, finish := s.beginRun(platform, link, trigger)
	defer finish()

	adapter, ok := s.adapters[platform]
	if !ok {
		report.Err = fmt.Errorf("%w: %s", ErrNoAdapter, platform)
		return report
	}

	if la, ok := adapter.(LinkAdapter); ok {
		id, err := contentIDFromLink(ctx, la, link)
		if err != nil {
			s.logger.Warn("content id not derivable from link", "platform", platform, "link", link, "error", err)
		} else if s.ledger.HasSeen(platform, id) {
			report.Items = append(report.Items, ItemResult{ContentID: id, State: ItemSkipped})
			s.metrics.ItemProcessed(platform, ItemSkipped)
			return report
		}
	}

	items, err := fetchItems(ctx, adapter, link)
	if err != nil {
		report.Err = fmt.Errorf("fetching %s link %s: %w", platform, link, err)
		s.logger.Error("adapter failed", "platform", platform, "link", link, "error", err)
		return report
	}

	registered := make(map[string]bool)
	for _, item := range items {
		if item.Account == "" || registered[item.Account] {
			continue
		}
		registered[item.Account] = true
		if err := s.ledger.RegisterAccount(platform, item.Account); err != nil {
			s.logger.Warn("registering account failed", "platform", platform, "account", item.Account, "error", err)
		}
	}

	s.processItems(ctx, report, items)
	return report
}

func (s *Service) processItems(ctx context.Context, report *RunReport, items []ContentItem) {
	for _, item := range items {
		item.Platform = report.Platform
		if item.Account == "" {
			item.Account = report.Account
		}
		res := s.processItem(ctx, item)
		report.Items = append(report.Items, res)
		s.metrics.ItemProcessed(report.Platform, res.State)
	}
}

func (s *Service) processItem(ctx context.Context, item ContentItem) ItemResult {
	res := ItemResult{ContentID: item.ContentID}
	log := []any{"platform", item.Platform, "account", item.Account, "content_id", item.ContentID}

	if item.ContentID == "" {
		res.State = ItemLedgerFailed
		res.Err = errors.New("item has no content id")
		s.logger.Warn("skipping item without content id", log...)
		return res
	}

	if s.ledger.HasSeen(item.Platform, item.ContentID) {
		res.State = ItemSkipped
		return res
	}

	files := s.downloadMedia(ctx, item)
	res.Files = len(files)
	res.Failed = len(item.Media) - len(files)

	if err := s.ledger.RecordMedia(item.Platform, item.Account, item.ContentID, filePaths(files)); err != nil {
		res.State = ItemLedgerFailed
		res.Err = fmt.Errorf("recording media: %w", err)
		s.logger.Error("recording media failed", append(log, "error", err)...)
		return res
	}

	msg := Message{
		Platform: item.Platform,
		Account:  item.Account,
		Caption:  composeCaption(item),
		Delivery: deliveryFor(item, files),
	}
	if err := deliver(ctx, s.relay, msg); err != nil {
		res.State = ItemDeliveryFailed
		res.Err = fmt.Errorf("relaying: %w", err)
		s.logger.Error("relay failed", append(log, "error", err)...)
		return res
	}

	res.State = ItemDelivered
	if err := s.ledger.MarkSeen(item.Platform, item.ContentID); err != nil {
		res.Err = fmt.Errorf("marking seen: %w", err)
		s.logger.Warn("delivered but not marked seen; may be delivered again", append(log, "error", err)...)
		return res
	}

	s.logger.Info("item delivered", append(log, "files", res.Files, "failed_media", res.Failed)...)
	return res
}

// downloadMedia materializes each ref, reusing files left by earlier runs.
// Failed refs are dropped.
func (s *Service) downloadMedia(ctx context.Context, item ContentItem) []MediaFile {
	var files []MediaFile
	for i, ref := range item.Media {
		name := MediaFilename(item.Platform, item.ContentID, i, ref)
		dest, err := s.store.PathFor(item.Platform, item.Account, item.ContentID, name)
		if err != nil {
			s.logger.Warn("preparing media path failed", "content_id", item.ContentID, "url", ref.URL, "error", err)
			s.metrics.DownloadFailed(item.Platform)
			continue
		}

		if s.store.Exists(dest) {
			s.logger.Debug("media already stored", "path", dest)
			files = append(files, MediaFile{Path: dest, Kind: ref.Kind})
			continue
		}

		if ref.AudioURL != "" {
			err = s.store.DownloadMerged(ctx, ref.URL, ref.AudioURL, dest)
		} else {
			err = s.store.Download(ctx, ref.URL, dest)
		}
		if err != nil {
			s.logger.Warn("media download failed", "content_id", item.ContentID, "url", ref.URL, "error", err)
			s.metrics.DownloadFailed(item.Platform)
			continue
		}
		files = append(files, MediaFile{Path: dest, Kind: ref.Kind})
	}
	return files
}

func deliveryFor(item ContentItem, files []MediaFile) Delivery {
	if len(files) > 0 {
		return Delivered{Files: files}
	}
	if len(item.Media) > 0 {
		return DeliveredNoMedia{Note: MediaUnavailableNote}
	}
	return DeliveredNoMedia{}
}

func composeCaption(item ContentItem) string {
	switch {
	case item.Caption == "":
		return item.SourceURL
	case item.SourceURL == "":
		return item.Caption
	default:
		return item.Caption + "\n\n" + item.SourceURL
	}
}

func filePaths(files []MediaFile) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

func (s *Service) beginRun(platform Platform, account string, trigger Trigger) (*RunReport, func()) {
	report := &RunReport{
		RunID:     s.idgen.New(),
		Platform:  platform,
		Account:   account,
		Trigger:   trigger,
		StartedAt: s.clock.Now(),
	}
	run := &Run{
		ID:        report.RunID,
		Platform:  platform,
		Account:   account,
		Trigger:   trigger,
		Status:    RunRunning,
		StartedAt: report.StartedAt,
	}
	if s.runs != nil {
		if err := s.runs.Begin(run); err != nil {
			s.logger.Warn("recording run start failed", "run_id", run.ID, "error", err)
		}
	}

	return report, func() {
		report.FinishedAt = s.clock.Now()
		s.metrics.RunFinished(platform, trigger, report.FinishedAt.Sub(report.StartedAt), report.Err)
		if s.runs == nil {
			return
		}
		run.FinishedAt = report.FinishedAt
		run.Delivered = report.Count(ItemDelivered)
		run.Skipped = report.Count(ItemSkipped)
		run.Failed = report.Count(ItemDeliveryFailed) + report.Count(ItemLedgerFailed)
		run.Status = RunSuccess
		if report.Err != nil {
			run.Status = RunError
			run.Error = report.Err.Error()
		}
		if err := s.runs.Finish(run); err != nil {
			s.logger.Warn("recording run finish failed", "run_id", run.ID, "error", err)
		}
	}
}

// The helpers below turn collaborator panics into errors.

func fetchItems(ctx context.Context, a Adapter, account string) (items []ContentItem, err error) {
	defer recoverInto(&err)
	return a.Fetch(ctx, account)
}

func contentIDFromLink(ctx context.Context, a LinkAdapter, link string) (id string, err error) {
	defer recoverInto(&err)
	return a.ContentIDFromLink(ctx, link)
}

func deliver(ctx context.Context, r Relay, msg Message) (err error) {
	defer recoverInto(&err)
	return r.Deliver(ctx, msg)
}

func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("panic: %v", r)
	}
}
