package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"sabot-go/internal/adapter"
	"sabot-go/internal/archive"
	"sabot-go/internal/config"
	"sabot-go/internal/encryption"
	"sabot-go/internal/ledger"
	"sabot-go/internal/media"
	"sabot-go/internal/metrics"
	"sabot-go/internal/relay"
	"sabot-go/internal/runlog"
	"sabot-go/internal/sabot"
	"sabot-go/internal/transcode"
	"sabot-go/internal/web"
)

const (
	adapterTimeout  = 30 * time.Second
	shutdownTimeout = 15 * time.Second
)

// App is the application layer between the CLI and the sabot service.
// It constructs all dependencies from config, exposes high-level operations
// that accept raw strings, and archives the ledger on Close.
type App struct {
	cfg       *config.Config
	secrets   *config.Secrets
	ledger    *ledger.Ledger
	store     *media.Store
	relay     sabot.Relay
	runs      *runlog.SQLiteRunLog
	metrics   *metrics.Metrics
	archive   sabot.Archive
	encryptor sabot.Encryptor
	service   *sabot.Service
	history   *sabot.History
	poller    *sabot.Poller
	clock     sabot.Clock
	op        *Operation
	logger    sabot.Logger
	logFile   *os.File
}

// NewApp creates a fully wired App from the given config.
// operation identifies the CLI command being run (e.g. "Fetch", "Run").
// The caller must call Close when done.
func NewApp(cfg *config.Config, operation string) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	opID := time.Now().UTC().Format("20060102T150405Z")
	level := slog.LevelInfo
	if os.Getenv("SABOT_DEBUG") != "" {
		level = slog.LevelDebug
	}
	slogger, logFile, err := newLogger(cfg.LogDir, opID, level)
	if err != nil {
		return nil, fmt.Errorf("creating logger: %w", err)
	}
	logger := slogLogger{slogger}

	a := &App{
		cfg:     cfg,
		clock:   sabot.RealClock{},
		op:      NewOperation(opID, operation),
		logger:  logger,
		logFile: logFile,
	}
	success := false
	defer func() {
		if !success {
			a.closeResources()
		}
	}()

	secrets, err := config.LoadSecrets(cfg.EnvFile)
	if err != nil {
		return nil, fmt.Errorf("loading secrets: %w", err)
	}
	a.secrets = secrets

	a.ledger, err = ledger.NewLedgerFromConfig(cfg.Ledger, logger)
	if err != nil {
		return nil, fmt.Errorf("creating ledger: %w", err)
	}

	a.store, err = media.NewStore(cfg.Media, transcode.NewFFmpeg(cfg.Media.FFmpegPath), logger)
	if err != nil {
		return nil, fmt.Errorf("creating media store: %w", err)
	}

	adapters, err := adapter.NewAdaptersFromConfig(cfg.Sources, adapter.NewHTTPClient(adapterTimeout))
	if err != nil {
		return nil, fmt.Errorf("creating adapters: %w", err)
	}

	a.relay, err = relay.NewRelayFromConfig(cfg.Relay, secrets, logger)
	if err != nil {
		return nil, fmt.Errorf("creating relay: %w", err)
	}

	a.runs, err = runlog.NewRunLogFromConfig(cfg.RunLog, cfg.InstanceID)
	if err != nil {
		return nil, fmt.Errorf("creating run log: %w", err)
	}
	if err := a.runs.CheckMigrations(); err != nil {
		return nil, fmt.Errorf("run history schema out of date: %w", err)
	}

	a.archive, err = archive.NewArchiveFromConfig(context.Background(), cfg.Archive, secrets)
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}

	a.encryptor, err = encryption.NewEncryptorFromConfig(cfg.Encryption)
	if err != nil {
		return nil, fmt.Errorf("creating encryptor: %w", err)
	}

	defaults, err := parseDefaultAccounts(cfg.History.DefaultAccounts)
	if err != nil {
		return nil, err
	}
	targets, err := parseTargets(cfg.Poller.Targets)
	if err != nil {
		return nil, err
	}

	a.metrics = metrics.New()
	a.service = sabot.NewService(a.ledger, a.store, adapters, a.relay, a.runs, a.metrics, logger, a.clock, sabot.UUIDGenerator{})
	a.history = sabot.NewHistory(a.ledger, a.store, defaults, logger)
	a.poller = sabot.NewPoller(a.service, a.relay, logger, time.Duration(cfg.Poller.IntervalSeconds)*time.Second, targets)
	a.metrics.PollerState(false, a.poller.Interval())

	success = true
	return a, nil
}

func parseDefaultAccounts(raw map[string]string) (map[sabot.Platform]string, error) {
	out := make(map[sabot.Platform]string, len(raw))
	for name, account := range raw {
		p, err := sabot.ParsePlatform(name)
		if err != nil {
			return nil, fmt.Errorf("history default account: %w", err)
		}
		out[p] = account
	}
	return out, nil
}

func parseTargets(raw []string) ([]sabot.Target, error) {
	targets := make([]sabot.Target, 0, len(raw))
	for _, s := range raw {
		t, err := sabot.ParseTarget(s)
		if err != nil {
			return nil, fmt.Errorf("poller target: %w", err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config { return a.cfg }

// Operation returns the operation this App was created for.
func (a *App) Operation() *Operation { return a.op }

// Platforms returns the platforms with a configured source.
func (a *App) Platforms() []sabot.Platform { return a.service.Platforms() }

// isLink reports whether target is a content link rather than an account
// handle.
func isLink(target string) bool {
	return strings.Contains(target, "://") ||
		strings.HasPrefix(target, "www.") ||
		strings.HasPrefix(target, "b23.tv/")
}

// Fetch runs the pipeline for an account, or for a single content link
// when target looks like a URL.
func (a *App) Fetch(ctx context.Context, platformName, target string) (*sabot.RunReport, error) {
	platform, err := sabot.ParsePlatform(platformName)
	if err != nil {
		return nil, err
	}
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, fmt.Errorf("account or link is required")
	}

	a.op.MarkMutating()
	var report *sabot.RunReport
	if isLink(target) {
		report = a.service.FetchLink(ctx, platform, target, sabot.TriggerInteractive)
	} else {
		report = a.service.Fetch(ctx, platform, target, sabot.TriggerInteractive)
	}
	if report.Err != nil {
		a.op.Fail()
	}
	return report, nil
}

// Accounts lists accounts with history for a platform.
func (a *App) Accounts(platformName string) ([]string, error) {
	platform, err := sabot.ParsePlatform(platformName)
	if err != nil {
		return nil, err
	}
	return a.history.ListAccounts(platform), nil
}

// Posts returns one page of an account's content ids.
func (a *App) Posts(platformName, account string, page int) (sabot.Page[string], error) {
	platform, err := sabot.ParsePlatform(platformName)
	if err != nil {
		return sabot.Page[string]{}, err
	}
	ids := a.history.ListContentIDs(platform, account)
	return sabot.Paginate(ids, page, platform.PageSize()), nil
}

// Media returns the stored files for one content item.
func (a *App) Media(platformName, account, contentID string) ([]string, error) {
	platform, err := sabot.ParsePlatform(platformName)
	if err != nil {
		return nil, err
	}
	return a.history.ResolveMedia(platform, account, contentID)
}

// Runs returns the most recent pipeline runs.
func (a *App) Runs(limit int) ([]*sabot.Run, error) {
	return a.runs.Recent(limit)
}

// Purge deletes the stored media for one content item. The item stays
// seen. Returns the number of files removed.
func (a *App) Purge(platformName, account, contentID string) (int, error) {
	platform, err := sabot.ParsePlatform(platformName)
	if err != nil {
		return 0, err
	}
	a.op.MarkMutating()
	n, err := a.service.Delete(platform, account, contentID)
	if err != nil {
		a.op.Fail()
	}
	return n, err
}

// Repair drops a media mapping whose files are all gone.
func (a *App) Repair(platformName, account, contentID string) (bool, error) {
	platform, err := sabot.ParsePlatform(platformName)
	if err != nil {
		return false, err
	}
	a.op.MarkMutating()
	repaired, err := a.history.Repair(platform, account, contentID)
	if err != nil {
		a.op.Fail()
	}
	return repaired, err
}

// Run serves the HTTP API and, when poll is set, runs the poller until ctx
// is cancelled.
func (a *App) Run(ctx context.Context, poll bool) error {
	a.op.MarkMutating()

	if poll {
		if err := a.poller.Start(); err != nil {
			return fmt.Errorf("starting poller: %w", err)
		}
		a.metrics.PollerState(true, a.poller.Interval())
	}

	errCh := make(chan error, 1)
	var srv *web.Server
	if a.cfg.Web.Listen != "" {
		srv = web.NewServer(a.cfg.Web.Listen, web.Deps{
			Service:  a.service,
			History:  a.history,
			Poller:   a.poller,
			Runs:     a.runs,
			Metrics:  a.metrics.Handler(),
			Observer: a.metrics,
		}, a.logger)
		go func() { errCh <- srv.ListenAndServe() }()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutting down")
	case runErr = <-errCh:
	}

	if srv != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			a.logger.Warn("HTTP API shutdown failed", "error", err)
		}
	}
	a.stopPoller()

	if runErr != nil {
		a.op.Fail()
	}
	return runErr
}

func (a *App) stopPoller() {
	if a.poller == nil || !a.poller.Running() {
		return
	}
	if err := a.poller.Stop(); err != nil && !errors.Is(err, sabot.ErrPollerStopped) {
		a.logger.Warn("stopping poller failed", "error", err)
	}
	a.poller.Wait()
	a.metrics.PollerState(false, a.poller.Interval())
}

// SetupKeys generates the archive encryption key pair.
func (a *App) SetupKeys(passphrase string) error {
	return a.encryptor.Setup(passphrase)
}

// ArchiveEncrypted reports whether archived snapshots are encrypted, in
// which case restoring needs the passphrase.
func (a *App) ArchiveEncrypted() bool { return a.cfg.Archive.Encrypt }

func (a *App) archiveName() string {
	if a.cfg.Archive.Name != "" {
		return a.cfg.Archive.Name
	}
	return a.cfg.InstanceID
}

// RestoreArchive replaces the local ledger with the newest archived
// snapshot and returns its version.
func (a *App) RestoreArchive(passphrase string) (int64, error) {
	if a.archive == nil {
		return 0, fmt.Errorf("no archive configured")
	}
	if err := a.archive.ValidateSetup(); err != nil {
		return 0, fmt.Errorf("archive not usable: %w", err)
	}
	name := a.archiveName()
	version, err := a.archive.Latest(name)
	if err != nil {
		return 0, fmt.Errorf("finding latest snapshot: %w", err)
	}
	if version == 0 {
		return 0, fmt.Errorf("no ledger snapshot archived for %q", name)
	}

	var buf bytes.Buffer
	if err := a.archive.Get(name, version, &buf); err != nil {
		return 0, fmt.Errorf("downloading snapshot %d: %w", version, err)
	}

	var snapshot io.Reader = &buf
	if a.cfg.Archive.Encrypt {
		dctx, err := a.encryptor.Unlock(passphrase)
		if err != nil {
			return 0, fmt.Errorf("unlocking private key: %w", err)
		}
		var plain bytes.Buffer
		if err := dctx.Decrypt(&buf, &plain); err != nil {
			return 0, fmt.Errorf("decrypting snapshot %d: %w", version, err)
		}
		snapshot = &plain
	}

	if err := a.ledger.Restore(snapshot); err != nil {
		return 0, err
	}
	a.logger.Info("ledger restored from archive", "name", name, "version", version)
	return version, nil
}

// archiveLedger uploads a snapshot of the ledger.
func (a *App) archiveLedger() error {
	var buf bytes.Buffer
	if err := a.ledger.Snapshot(&buf); err != nil {
		return err
	}
	return a.upload(a.archiveName(), buf.Bytes())
}

// archiveRunLog uploads a copy of the run history database. Only on-disk
// run logs are archived.
func (a *App) archiveRunLog() error {
	if a.cfg.RunLog.Type != "sqlite" {
		return nil
	}
	tmpFile, err := os.CreateTemp("", "sabot-runs-*.db")
	if err != nil {
		return fmt.Errorf("creating temp file for run log backup: %w", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	// VACUUM INTO refuses to overwrite an existing file.
	os.Remove(tmpPath)
	defer os.Remove(tmpPath)

	if err := a.runs.BackupTo(tmpPath); err != nil {
		return fmt.Errorf("backing up run log: %w", err)
	}
	data, err := os.ReadFile(tmpPath)
	if err != nil {
		return fmt.Errorf("reading run log backup: %w", err)
	}
	return a.upload(a.archiveName()+"-runs", data)
}

// upload stores payload under name, encrypting it first when configured.
// Versions are unix seconds, bumped past the newest stored version so they
// stay increasing.
func (a *App) upload(name string, payload []byte) error {
	if a.cfg.Archive.Encrypt {
		if !a.encryptor.IsConfigured() {
			return fmt.Errorf("archive encryption enabled but keys are not set up: run 'sabot keys init'")
		}
		var enc bytes.Buffer
		if err := a.encryptor.Encrypt(bytes.NewReader(payload), &enc); err != nil {
			return fmt.Errorf("encrypting %s snapshot: %w", name, err)
		}
		payload = enc.Bytes()
	}

	version := a.clock.Now().Unix()
	latest, err := a.archive.Latest(name)
	if err != nil {
		return fmt.Errorf("checking archived version of %s: %w", name, err)
	}
	if version <= latest {
		version = latest + 1
	}

	if err := a.archive.Put(name, bytes.NewReader(payload), int64(len(payload)), version); err != nil {
		return fmt.Errorf("uploading %s snapshot: %w", name, err)
	}
	a.logger.Info("snapshot archived", "name", name, "version", version, "size", len(payload))
	return nil
}

// Close finalizes the operation and closes all resources.
// Mutating operations upload a ledger snapshot to the archive first.
func (a *App) Close() error {
	var firstErr error

	a.stopPoller()

	if a.op.Mutating && a.archive != nil {
		if err := a.archiveLedger(); err != nil {
			firstErr = err
			a.logger.Error("archiving ledger failed", "error", err)
		}
		if err := a.archiveRunLog(); err != nil {
			a.logger.Warn("archiving run log failed", "error", err)
		}
	}

	a.logger.Info("operation finished", "operation", a.op.Name, "status", a.op.Status)

	if err := a.closeResources(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (a *App) closeResources() error {
	var firstErr error
	if a.runs != nil {
		if err := a.runs.Close(); err != nil {
			firstErr = fmt.Errorf("closing run log: %w", err)
		}
	}
	if c, ok := a.relay.(io.Closer); ok {
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("closing relay: %w", err)
		}
	}
	if a.logFile != nil {
		a.logFile.Close()
	}
	return firstErr
}
