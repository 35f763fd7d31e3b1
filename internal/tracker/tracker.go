// SPDX-FileCopyrightText: The geotrack authors
//
// SPDX-License-Identifier: MIT

// Package tracker implements the location tracking controller: a two-state machine
// that owns the continuous sample subscription, drives a periodic poll and hands
// every accepted sample to the reporter and the notification bus.
package tracker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-co-op/gocron/v2"
	"github.com/jonboulle/clockwork"

	"github.com/voyago/geotrack/internal/config"
	"github.com/voyago/geotrack/internal/geo"
	"github.com/voyago/geotrack/internal/logger"
	"github.com/voyago/geotrack/internal/notify"
	"github.com/voyago/geotrack/internal/permission"
	"github.com/voyago/geotrack/internal/source"
)

const pollJobName = "position_poll_job"

// User-facing warning messages. These are the msgid keys of the locale catalog.
const (
	msgPermissionDenied = "location permission denied"
	msgUnsupported      = "location tracking is not supported on this platform"
	msgUnavailable      = "failed to acquire position"
	msgTimeout          = "position request timed out"
)

// Status is the lifecycle state of the Tracker.
type Status int

const (
	// StatusIdle is the initial state: no subscription, no poll timer.
	StatusIdle Status = iota
	// StatusTracking is active: a watch subscription and a poll job exist.
	StatusTracking
)

// ReportSink receives accepted samples. It must not block the caller.
type ReportSink interface {
	Report(ctx context.Context, sample geo.Sample)
}

// Localizer translates user-facing messages.
type Localizer interface {
	Get(msgid string) string
}

// Tracker is the location tracking controller. All state mutations happen under a
// single mutex; callbacks from the watch subscription and the poll job carry a
// generation counter so that anything scheduled before Stop is ignored after it.
type Tracker struct {
	conf      *config.Config
	logger    *logger.Logger
	bus       *notify.Bus
	source    source.Source
	perm      permission.Monitor
	reporter  ReportSink
	localizer Localizer
	clock     clockwork.Clock
	scheduler gocron.Scheduler

	mu           sync.Mutex
	status       Status
	initialized  bool
	lastAccepted *geo.Sample
	consent      bool
	generation   uint64
	watchCancel  context.CancelFunc
	pollJob      gocron.Job
}

// Option allows to customize the Tracker.
type Option func(*Tracker)

// WithClock injects the clock used for observation instants and the poll scheduler.
// Tests use a clockwork fake clock to advance virtual time deterministically.
func WithClock(clock clockwork.Clock) Option {
	return func(t *Tracker) {
		t.clock = clock
	}
}

// New returns a new Tracker in the Idle state.
func New(conf *config.Config, src source.Source, perm permission.Monitor, sink ReportSink,
	bus *notify.Bus, localizer Localizer, log *logger.Logger, opts ...Option,
) (*Tracker, error) {
	tracker := &Tracker{
		conf:      conf,
		logger:    log,
		bus:       bus,
		source:    src,
		perm:      perm,
		reporter:  sink,
		localizer: localizer,
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(tracker)
	}

	scheduler, err := gocron.NewScheduler(gocron.WithClock(tracker.clock))
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}
	tracker.scheduler = scheduler

	return tracker, nil
}

// Initialize queries the platform permission state and starts watching for
// permission changes. It succeeds even when the platform exposes no permission
// capability; consent is then discovered lazily on the first location request.
// Initialize is idempotent.
func (t *Tracker) Initialize(ctx context.Context) error {
	t.mu.Lock()
	if t.initialized {
		t.mu.Unlock()
		return nil
	}
	t.initialized = true
	t.mu.Unlock()

	state := t.perm.Query(ctx)
	t.mu.Lock()
	t.consent = state == permission.StateGranted
	t.mu.Unlock()
	t.logger.Debug("initialized location tracker", slog.String("permission", state.String()))

	go t.watchPermission(ctx)
	return nil
}

// Start transitions the tracker into the Tracking state. It requests one immediate
// position, which suspends the caller until the platform responds or times out. On
// success the first sample is reported unconditionally, a continuous watch
// subscription is opened and the periodic poll job is scheduled. On failure the
// tracker stays Idle and the error is surfaced as a warning. Starting an already
// tracking controller is a no-op returning success.
func (t *Tracker) Start(ctx context.Context) error {
	if err := t.Initialize(ctx); err != nil {
		return err
	}

	t.mu.Lock()
	if t.status == StatusTracking {
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	first, err := t.source.Current(ctx, t.options())
	if err != nil {
		t.surfaceError(err)
		return fmt.Errorf("failed to acquire initial position: %w", err)
	}

	t.mu.Lock()
	if t.status == StatusTracking {
		// lost the race against a concurrent Start, exactly one subscription stays
		t.mu.Unlock()
		return nil
	}
	generation := t.generation
	t.lastAccepted = &first
	t.consent = true
	watchCtx, cancel := context.WithCancel(ctx)
	t.watchCancel = cancel
	t.status = StatusTracking
	t.mu.Unlock()

	t.reporter.Report(ctx, first)
	t.bus.PublishPosition(first, t.clock.Now())
	t.logger.Info("location tracking started",
		slog.Float64("lat", first.Latitude), slog.Float64("lon", first.Longitude),
		slog.String("source", t.source.Name()))

	go t.consumeWatch(watchCtx, generation)

	if err = t.schedulePoll(watchCtx, generation); err != nil {
		t.logger.Error("failed to schedule position poll", logger.Err(err))
	}
	t.scheduler.Start()

	return nil
}

// Stop cancels the watch subscription and the poll job and transitions to Idle.
// After Stop returns, no further sample or error notifications are emitted, even
// if a previously scheduled callback still fires. Stopping an Idle tracker is a
// no-op.
func (t *Tracker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked()
}

// stopLocked tears down the subscription and poll handles. Callers must hold t.mu.
func (t *Tracker) stopLocked() {
	if t.status == StatusIdle {
		return
	}
	// fence every callback scheduled under the previous generation
	t.generation++
	if t.watchCancel != nil {
		t.watchCancel()
		t.watchCancel = nil
	}
	if t.pollJob != nil {
		if err := t.scheduler.RemoveJob(t.pollJob.ID()); err != nil {
			t.logger.Error("failed to remove position poll job", logger.Err(err))
		}
		t.pollJob = nil
	}
	t.status = StatusIdle
	t.logger.Info("location tracking stopped")
}

// Close stops tracking and shuts down the poll scheduler.
func (t *Tracker) Close() error {
	t.Stop()
	return t.scheduler.Shutdown()
}

// CurrentPosition performs a one-shot position request, independent of the
// tracking state. The raw sample or the platform error is returned unfiltered.
func (t *Tracker) CurrentPosition(ctx context.Context) (geo.Sample, error) {
	return t.source.Current(ctx, t.options())
}

// Available reports whether a location sample source exists on this platform. It
// has no side effects.
func (t *Tracker) Available() bool {
	return t.source != nil && t.source.Available()
}

// HasPermission reports the last-known consent state. This is advisory only: it
// may be stale relative to the platform-level permission state.
func (t *Tracker) HasPermission() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consent
}

// Status returns the current lifecycle state.
func (t *Tracker) Status() Status {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// LastAccepted returns the last accepted sample, if any.
func (t *Tracker) LastAccepted() (geo.Sample, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lastAccepted == nil {
		return geo.Sample{}, false
	}
	return *t.lastAccepted, true
}

// consumeWatch drains the continuous subscription until its context ends.
func (t *Tracker) consumeWatch(ctx context.Context, generation uint64) {
	updates := t.source.Watch(ctx, t.options())
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Err != nil {
				t.onError(update.Err, generation)
				continue
			}
			t.onSample(ctx, update.Sample, generation)
		}
	}
}

// schedulePoll registers the periodic one-shot poll. The poll compensates for
// platforms whose continuous subscription goes silent while stationary or asleep.
func (t *Tracker) schedulePoll(ctx context.Context, generation uint64) error {
	job, err := t.scheduler.NewJob(
		gocron.DurationJob(t.conf.Tracker.PollInterval),
		gocron.NewTask(func(taskCtx context.Context) {
			t.pollOnce(taskCtx, generation)
		}),
		gocron.WithContext(ctx),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithName(pollJobName),
	)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", pollJobName, err)
	}

	t.mu.Lock()
	if generation == t.generation {
		t.pollJob = job
		t.mu.Unlock()
		return nil
	}
	t.mu.Unlock()

	// the tracker was stopped while the job was being created
	return t.scheduler.RemoveJob(job.ID())
}

// pollOnce issues a single one-shot position request and routes the outcome
// through the regular sample path. It only runs while a last accepted sample
// exists for the current generation.
func (t *Tracker) pollOnce(ctx context.Context, generation uint64) {
	t.mu.Lock()
	if generation != t.generation || t.lastAccepted == nil {
		t.mu.Unlock()
		return
	}
	t.mu.Unlock()

	sample, err := t.source.Current(ctx, t.options())
	if err != nil {
		t.onError(err, generation)
		return
	}
	t.onSample(ctx, sample, generation)
}

// onSample runs the position filter against the last accepted sample. Accepted
// candidates update the tracker state, reach the reporter and are published on the
// notification bus. Rejected candidates leave no observable effect beyond a debug
// trace.
func (t *Tracker) onSample(ctx context.Context, sample geo.Sample, generation uint64) {
	t.mu.Lock()
	if generation != t.generation || t.status != StatusTracking {
		t.mu.Unlock()
		return
	}
	if !geo.ShouldAccept(t.lastAccepted, sample, t.conf.Tracker.MinDistance) {
		t.mu.Unlock()
		t.logger.Debug("sample below movement threshold, skipping",
			slog.Float64("lat", sample.Latitude), slog.Float64("lon", sample.Longitude))
		return
	}
	accepted := sample
	t.lastAccepted = &accepted
	t.mu.Unlock()

	t.reporter.Report(ctx, sample)
	t.bus.PublishPosition(sample, t.clock.Now())
	t.logger.Debug("position update accepted",
		slog.Float64("lat", sample.Latitude), slog.Float64("lon", sample.Longitude))
}

// onError maps a platform error to the warning taxonomy. A permission denial
// clears the consent flag and fully stops tracking; every other error is terminal
// for the single request that produced it but not for the tracker lifecycle.
func (t *Tracker) onError(err error, generation uint64) {
	t.mu.Lock()
	if generation != t.generation {
		t.mu.Unlock()
		return
	}
	if source.CodeOf(err) == source.CodePermissionDenied {
		t.consent = false
		t.stopLocked()
	}
	t.mu.Unlock()

	t.surfaceError(err)
}

// surfaceError logs err and publishes the matching user-facing warning.
func (t *Tracker) surfaceError(err error) {
	t.logger.Warn("location request failed", logger.Err(err))
	t.bus.PublishWarning(t.translate(warningFor(err)))
}

// warningFor picks the user-facing message for a platform error.
func warningFor(err error) string {
	if errors.Is(err, source.ErrUnsupported) {
		return msgUnsupported
	}
	switch source.CodeOf(err) {
	case source.CodePermissionDenied:
		return msgPermissionDenied
	case source.CodeTimeout:
		return msgTimeout
	default:
		return msgUnavailable
	}
}

// watchPermission applies platform permission changes to the tracker: a denial
// while tracking stops it with a warning, a grant starts it when auto-start is
// configured.
func (t *Tracker) watchPermission(ctx context.Context) {
	for state := range t.perm.Watch(ctx) {
		switch state {
		case permission.StateDenied:
			t.mu.Lock()
			t.consent = false
			wasTracking := t.status == StatusTracking
			t.stopLocked()
			t.mu.Unlock()
			if wasTracking {
				t.bus.PublishWarning(t.translate(msgPermissionDenied))
			}
		case permission.StateGranted:
			t.mu.Lock()
			t.consent = true
			shouldStart := t.conf.Tracker.AutoStart && t.status == StatusIdle
			t.mu.Unlock()
			if shouldStart {
				if err := t.Start(ctx); err != nil {
					t.logger.Error("failed to auto-start location tracking", logger.Err(err))
				}
			}
		default:
		}
	}
}

func (t *Tracker) options() source.Options {
	return source.Options{
		HighAccuracy: t.conf.HighAccuracy(),
		Timeout:      t.conf.Tracker.SampleTimeout,
		MaximumAge:   t.conf.Tracker.MaxSampleAge,
	}
}

func (t *Tracker) translate(msg string) string {
	if t.localizer == nil {
		return msg
	}
	return t.localizer.Get(msg)
}
