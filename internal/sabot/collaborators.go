package sabot

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Logger is the structured logger used across the service layer.
// Args are slog-style alternating key/value pairs.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// NopLogger discards everything.
type NopLogger struct{}

func NewNopLogger() *NopLogger { return &NopLogger{} }

func (*NopLogger) Debug(string, ...any) {}
func (*NopLogger) Info(string, ...any)  {}
func (*NopLogger) Warn(string, ...any)  {}
func (*NopLogger) Error(string, ...any) {}

// Clock abstracts time retrieval so run records are deterministic in tests.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// IDGenerator produces run identifiers.
type IDGenerator interface {
	New() string
}

// UUIDGenerator produces random UUIDs.
type UUIDGenerator struct{}

func (UUIDGenerator) New() string { return uuid.New().String() }

// Adapter turns an account handle into the account's recent content, in
// the order the pipeline should process it. Everything about how the
// upstream is reached is the adapter's business.
type Adapter interface {
	Fetch(ctx context.Context, account string) ([]ContentItem, error)
}

// LinkAdapter is an Adapter that can also work from a single content link.
// ContentIDFromLink must be cheap relative to Fetch: the pipeline calls it
// to skip already-seen links before fetching.
type LinkAdapter interface {
	Adapter
	ContentIDFromLink(ctx context.Context, link string) (string, error)
}

// Relay sends content to the messaging destination.
type Relay interface {
	// Deliver sends one item. Any error means the item was not delivered.
	Deliver(ctx context.Context, msg Message) error

	// Notify sends an operational notice to the operator channel.
	Notify(ctx context.Context, text string) error
}

// Transcoder merges separate video and audio streams into one file at out.
type Transcoder interface {
	Merge(ctx context.Context, videoPath, audioPath, outPath string) error
}

// Ledger is the durable record of seen content, stored media and known
// accounts. Implementations serialize all mutations.
type Ledger interface {
	HasSeen(platform Platform, contentID string) bool
	MarkSeen(platform Platform, contentID string) error

	// RecordMedia replaces the mapping for the key. An empty paths slice
	// removes the mapping.
	RecordMedia(platform Platform, account, contentID string, paths []string) error

	// LookupMedia returns the mapped paths that still exist on disk.
	LookupMedia(platform Platform, account, contentID string) []string

	// MappedMedia returns the mapped paths without checking the disk.
	MappedMedia(platform Platform, account, contentID string) ([]string, bool)

	RegisterAccount(platform Platform, account string) error
	Accounts(platform Platform) []string

	// SeenIDs returns seen content ids in insertion order.
	SeenIDs(platform Platform) []string

	// MappedIDs returns content ids with a non-empty media mapping for the
	// account, in seen order first and then by id.
	MappedIDs(platform Platform, account string) []string

	// Purge removes the media mapping for the key. Seen state is untouched.
	Purge(platform Platform, account, contentID string) error
}

// MediaStore owns the on-disk layout of downloaded media.
type MediaStore interface {
	// PathFor returns the destination for a file, creating parent
	// directories as needed.
	PathFor(platform Platform, account, contentID, filename string) (string, error)
	Exists(path string) bool
	Download(ctx context.Context, url, dest string) error
	DownloadMerged(ctx context.Context, videoURL, audioURL, dest string) error
	Cleanup(paths []string) error
	ScanAccounts(platform Platform) ([]string, error)
	ScanContent(platform Platform, account, contentID string) ([]string, error)
}

// RunStatus is the outcome of a recorded pipeline run.
type RunStatus string

const (
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunError   RunStatus = "error"
)

// Run is the persisted record of one pipeline invocation.
type Run struct {
	ID         string
	Platform   Platform
	Account    string
	Trigger    Trigger
	Status     RunStatus
	StartedAt  time.Time
	FinishedAt time.Time
	Delivered  int
	Skipped    int
	Failed     int
	Error      string
}

// RunLog keeps the history of pipeline invocations.
type RunLog interface {
	Begin(run *Run) error
	Finish(run *Run) error
	Recent(limit int) ([]*Run, error)
}

// Metrics receives pipeline counters.
type Metrics interface {
	ItemProcessed(platform Platform, state ItemState)
	DownloadFailed(platform Platform)
	RunFinished(platform Platform, trigger Trigger, elapsed time.Duration, err error)
}

// NopMetrics drops all observations.
type NopMetrics struct{}

func (NopMetrics) ItemProcessed(Platform, ItemState)                   {}
func (NopMetrics) DownloadFailed(Platform)                             {}
func (NopMetrics) RunFinished(Platform, Trigger, time.Duration, error) {}
