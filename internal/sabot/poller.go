package sabot

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

const (
	DefaultPollInterval = 900 * time.Second
	MinPollInterval     = 300 * time.Second
)

// Target is one (platform, account) pair polled every cycle.
type Target struct {
	Platform Platform
	Account  string
}

// ParseTarget parses "platform/account".
func ParseTarget(s string) (Target, error) {
	name, account, ok := strings.Cut(s, "/")
	if !ok || account == "" {
		return Target{}, fmt.Errorf("invalid target %q: want platform/account", s)
	}
	p, err := ParsePlatform(name)
	if err != nil {
		return Target{}, err
	}
	return Target{Platform: p, Account: account}, nil
}

func (t Target) String() string { return string(t.Platform) + "/" + t.Account }

// Fetcher runs the pipeline for one account.
type Fetcher interface {
	Fetch(ctx context.Context, platform Platform, account string, trigger Trigger) *RunReport
}

// Poller repeatedly runs the pipeline for a fixed list of targets. One
// cycle runs at a time; a cycle that overruns the interval delays the next.
type Poller struct {
	fetcher  Fetcher
	notifier Relay
	logger   Logger

	mu       sync.Mutex
	interval time.Duration
	targets  []Target
	cron     *cron.Cron
	entry    cron.EntryID
	job      cron.Job
	cancel   context.CancelFunc

	cycleMu sync.Mutex
}

// NewPoller creates a stopped Poller. notifier may be nil.
func NewPoller(fetcher Fetcher, notifier Relay, logger Logger, interval time.Duration, targets []Target) *Poller {
	return &Poller{
		fetcher:  fetcher,
		notifier: notifier,
		logger:   logger,
		interval: ClampInterval(interval),
		targets:  slices.Clone(targets),
	}
}

// ClampInterval applies the default and minimum polling interval.
func ClampInterval(d time.Duration) time.Duration {
	switch {
	case d <= 0:
		return DefaultPollInterval
	case d < MinPollInterval:
		return MinPollInterval
	default:
		return d
	}
}

// Start schedules polling and kicks off a first cycle immediately.
// Returns ErrPollerRunning if already started.
func (p *Poller) Start() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron != nil {
		return ErrPollerRunning
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := cronLogger{p.logger}
	c := cron.New(cron.WithLogger(logger))
	job := cron.NewChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)).
		Then(cron.FuncJob(func() { p.RunOnce(ctx) }))

	p.cron = c
	p.job = job
	p.cancel = cancel
	p.entry = c.Schedule(cron.Every(p.interval), job)
	c.Start()
	go job.Run()

	p.logger.Info("poller started", "interval", p.interval, "targets", len(p.targets))
	return nil
}

// Stop cancels scheduling. A cycle in progress finishes the target it is
// working on and starts no further ones. Returns ErrPollerStopped if the
// poller is not running.
func (p *Poller) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cron == nil {
		return ErrPollerStopped
	}
	p.cancel()
	p.cron.Stop()
	p.cron = nil
	p.job = nil
	p.cancel = nil

	p.logger.Info("poller stopped")
	return nil
}

// Wait blocks until no cycle is in progress.
func (p *Poller) Wait() {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()
}

// Running reports whether the poller is scheduled.
func (p *Poller) Running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.cron != nil
}

// Interval returns the effective polling interval.
func (p *Poller) Interval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interval
}

// SetInterval changes the polling interval and returns the effective value
// after clamping. A running poller is rescheduled; the current cycle is not
// interrupted.
func (p *Poller) SetInterval(d time.Duration) time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.interval = ClampInterval(d)
	if p.cron != nil {
		p.cron.Remove(p.entry)
		p.entry = p.cron.Schedule(cron.Every(p.interval), p.job)
	}
	p.logger.Info("poller interval set", "interval", p.interval)
	return p.interval
}

// Targets returns a copy of the polled targets.
func (p *Poller) Targets() []Target {
	p.mu.Lock()
	defer p.mu.Unlock()
	return slices.Clone(p.targets)
}

// SetTargets replaces the polled targets. Takes effect on the next cycle.
func (p *Poller) SetTargets(targets []Target) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.targets = slices.Clone(targets)
}

// AddTarget adds a target unless it is already polled.
func (p *Poller) AddTarget(t Target) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if slices.Contains(p.targets, t) {
		return false
	}
	p.targets = append(p.targets, t)
	return true
}

// RemoveTarget stops polling a target. Returns false if it was not polled.
func (p *Poller) RemoveTarget(t Target) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := slices.Index(p.targets, t)
	if i < 0 {
		return false
	}
	p.targets = slices.Delete(p.targets, i, i+1)
	return true
}

// RunOnce runs one cycle over the current targets and returns the reports
// of the targets it reached. Cancelling ctx stops the cycle between
// targets; the pipeline run already underway is not interrupted.
func (p *Poller) RunOnce(ctx context.Context) []*RunReport {
	p.cycleMu.Lock()
	defer p.cycleMu.Unlock()

	var reports []*RunReport
	for _, t := range p.Targets() {
		if ctx.Err() != nil {
			p.logger.Info("poll cycle cancelled", "remaining_from", t.String())
			break
		}
		report := p.pollTarget(context.WithoutCancel(ctx), t)
		reports = append(reports, report)
	}
	return reports
}

func (p *Poller) pollTarget(ctx context.Context, t Target) (report *RunReport) {
	defer func() {
		if r := recover(); r != nil {
			report = &RunReport{Platform: t.Platform, Account: t.Account, Trigger: TriggerPoller, Err: fmt.Errorf("panic: %v", r)}
			p.reportFailure(ctx, report)
		}
	}()

	report = p.fetcher.Fetch(ctx, t.Platform, t.Account, TriggerPoller)
	failed := report.Count(ItemDeliveryFailed) + report.Count(ItemLedgerFailed)
	if report.Err != nil || failed > 0 {
		p.reportFailure(ctx, report)
		return report
	}
	p.logger.Debug("poll target done", "target", t.String(), "delivered", report.Count(ItemDelivered))
	return report
}

func (p *Poller) reportFailure(ctx context.Context, report *RunReport) {
	p.logger.Error("poll target failed", "platform", report.Platform, "account", report.Account, "summary", report.Summary())
	if p.notifier == nil {
		return
	}
	if err := deliverNotice(ctx, p.notifier, "Poller: "+report.Summary()); err != nil {
		p.logger.Warn("sending poller notice failed", "error", err)
	}
}

func deliverNotice(ctx context.Context, r Relay, text string) (err error) {
	defer recoverInto(&err)
	return r.Notify(ctx, text)
}

// cronLogger routes cron's own logging into Logger.
type cronLogger struct {
	l Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...any) {
	c.l.Debug("cron: "+msg, keysAndValues...)
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...any) {
	c.l.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
