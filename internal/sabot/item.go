package sabot

import (
	"fmt"
	"time"
)

// MediaRef points at one remote media object attached to a content item.
// AudioURL is set when a video host serves audio and video as separate
// streams; the store merges them into a single file.
type MediaRef struct {
	URL      string
	Kind     MediaKind
	AudioURL string
}

// ContentItem is one unit of upstream content as produced by an Adapter.
type ContentItem struct {
	Platform  Platform
	Account   string
	ContentID string
	Caption   string
	SourceURL string
	Media     []MediaRef
}

// MediaFile is a media object that has been materialized on local disk.
type MediaFile struct {
	Path string
	Kind MediaKind
}

// Delivery is the closed set of outcomes of the download step that the
// relay branches on. Implemented by Delivered and DeliveredNoMedia.
type Delivery interface {
	delivery()
}

// Delivered carries the media files that were stored locally.
type Delivered struct {
	Files []MediaFile
}

// DeliveredNoMedia is a caption-only delivery. Note is empty when the item
// never had media and set when every download failed.
type DeliveredNoMedia struct {
	Note string
}

func (Delivered) delivery()        {}
func (DeliveredNoMedia) delivery() {}

// MediaUnavailableNote is appended to captions whose media could not be
// downloaded.
const MediaUnavailableNote = "Media unavailable due to download issues"

// Message is what a Relay receives for one content item.
type Message struct {
	Platform Platform
	Account  string
	Caption  string
	Delivery Delivery
}

// Text returns the caption with the no-media note appended, if any.
func (m Message) Text() string {
	if nm, ok := m.Delivery.(DeliveredNoMedia); ok && nm.Note != "" {
		if m.Caption == "" {
			return nm.Note
		}
		return m.Caption + "\n\n" + nm.Note
	}
	return m.Caption
}

// Files returns the delivered media files, or nil for caption-only messages.
func (m Message) Files() []MediaFile {
	if d, ok := m.Delivery.(Delivered); ok {
		return d.Files
	}
	return nil
}

// ItemState is the terminal state of one item within a pipeline run.
type ItemState string

const (
	ItemSkipped        ItemState = "skipped"
	ItemDelivered      ItemState = "delivered"
	ItemDeliveryFailed ItemState = "delivery_failed"
	ItemLedgerFailed   ItemState = "ledger_failed"
)

// ItemResult records what the pipeline did with one item.
type ItemResult struct {
	ContentID string
	State     ItemState
	Files     int
	Failed    int // media refs that could not be downloaded
	Err       error
}

// Trigger names what started a pipeline run.
type Trigger string

const (
	TriggerInteractive Trigger = "interactive"
	TriggerPoller      Trigger = "poller"
)

// RunReport summarizes one pipeline invocation for a (platform, account).
type RunReport struct {
	RunID      string
	Platform   Platform
	Account    string
	Trigger    Trigger
	StartedAt  time.Time
	FinishedAt time.Time
	Items      []ItemResult
	Err        error
}

// Count returns how many items ended in the given state.
func (r *RunReport) Count(state ItemState) int {
	n := 0
	for _, it := range r.Items {
		if it.State == state {
			n++
		}
	}
	return n
}

// Summary renders a one-line human readable status.
func (r *RunReport) Summary() string {
	if r.Err != nil {
		return fmt.Sprintf("fetch %s/%s failed: %v", r.Platform, r.Account, r.Err)
	}
	return fmt.Sprintf("fetch %s/%s: %d delivered, %d skipped, %d failed",
		r.Platform, r.Account,
		r.Count(ItemDelivered), r.Count(ItemSkipped),
		r.Count(ItemDeliveryFailed)+r.Count(ItemLedgerFailed))
}
