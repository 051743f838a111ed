package scheduler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/bnema/meeting-alertd/internal/calendar"
	"github.com/bnema/meeting-alertd/internal/config"
	"github.com/bnema/meeting-alertd/internal/logger"
	"github.com/bnema/meeting-alertd/internal/notify"
	"github.com/bnema/meeting-alertd/internal/token"
)

// ConfigProvider is called at the start of every cycle so config edits take
// effect on the next scheduled run without interrupting an in-flight one.
type ConfigProvider func() (*config.Config, error)

// snapshot is the immutable fetched window the alert-check cycle reads.
// Replaced wholesale by an atomic swap; never mutated in place.
type snapshot struct {
	events    []calendar.Event
	fetchedAt time.Time
}

// Scheduler runs the two recurring background tasks: an expensive resync
// (network fetch) and a cheap alert check that recomputes time-relative
// fields against the cached snapshot.
type Scheduler struct {
	tokens     *token.Manager
	source     calendar.Source
	dispatcher *notify.Dispatcher
	cfgFn      ConfigProvider

	cronMu sync.Mutex
	cron   *cron.Cron

	snap     atomic.Pointer[snapshot]
	alerted  *alertedSet
	fetching atomic.Bool

	now func() time.Time
}

func New(tokens *token.Manager, source calendar.Source, dispatcher *notify.Dispatcher, cfgFn ConfigProvider) *Scheduler {
	return &Scheduler{
		tokens:     tokens,
		source:     source,
		dispatcher: dispatcher,
		cfgFn:      cfgFn,
		alerted:    newAlertedSet(),
		now:        time.Now,
	}
}

// Start creates the recurring tasks and kicks off an immediate first fetch.
func (s *Scheduler) Start(ctx context.Context) error {
	cfg, err := s.cfgFn()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	s.cronMu.Lock()
	defer s.cronMu.Unlock()

	if s.cron != nil {
		return fmt.Errorf("scheduler already started")
	}

	c := cron.New()
	if _, err := c.AddFunc(fmt.Sprintf("@every %dm", cfg.Polling.ResyncIntervalMinutes), func() {
		if err := s.RunFetchCycle(ctx); err != nil {
			logger.Error("fetch cycle failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("failed to schedule fetch cycle: %w", err)
	}
	if _, err := c.AddFunc(fmt.Sprintf("@every %ds", cfg.Polling.AlertCheckIntervalSeconds), func() {
		s.RunAlertCycle(ctx)
	}); err != nil {
		return fmt.Errorf("failed to schedule alert-check cycle: %w", err)
	}

	c.Start()
	s.cron = c

	logger.Info("scheduler started",
		"resync_interval_min", cfg.Polling.ResyncIntervalMinutes,
		"check_interval_sec", cfg.Polling.AlertCheckIntervalSeconds)

	go func() {
		if err := s.RunFetchCycle(ctx); err != nil {
			logger.Error("initial fetch failed", "error", err)
		}
	}()

	return nil
}

// Stop halts the recurring tasks, waiting for running jobs to finish.
func (s *Scheduler) Stop() {
	s.cronMu.Lock()
	defer s.cronMu.Unlock()

	if s.cron == nil {
		return
	}
	<-s.cron.Stop().Done()
	s.cron = nil
	logger.Info("scheduler stopped")
}

// Restart tears the recurring tasks down and recreates them. Used after a
// system sleep/wake: a long suspension can leave a fixed-rate timer in an
// undefined catch-up state, so the old tasks are never assumed healthy.
func (s *Scheduler) Restart(ctx context.Context) error {
	s.Stop()
	return s.Start(ctx)
}

// RunFetchCycle ensures a valid credential, pulls the event window, and
// swaps in a fresh snapshot. Overlapping fetches are skipped; the
// alert-check cycle keeps reading the previous snapshot meanwhile.
func (s *Scheduler) RunFetchCycle(ctx context.Context) error {
	if !s.fetching.CompareAndSwap(false, true) {
		logger.Debug("fetch already in flight, skipping")
		return nil
	}
	defer s.fetching.Store(false)

	cfg, err := s.cfgFn()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	outcome, err := s.tokens.Authenticate(ctx)
	if err != nil {
		switch {
		case errors.Is(err, token.ErrAuthExhausted):
			logger.Error("authentication exhausted, skipping cycle", "error", err)
			notify.SystemNotice(ctx, "Calendar alerts degraded",
				"Could not authenticate with the calendar service. Run 'meeting-alertd auth' to sign in again.")
		case errors.Is(err, token.ErrUserCancelled), errors.Is(err, token.ErrAuthInProgress):
			logger.Warn("authentication unavailable, skipping cycle", "error", err)
		default:
			logger.Error("authentication failed, skipping cycle", "error", err)
		}
		return err
	}
	logger.Debug("credential ready", "outcome", outcome.String())

	now := s.now()
	windowEnd := endOfFollowingDay(now)

	events, err := s.source.Fetch(ctx, now, windowEnd)
	if err != nil {
		// Transport failures are not retried within the cycle; the next
		// scheduled resync or a staleness-triggered fetch covers recovery.
		return fmt.Errorf("event fetch failed: %w", err)
	}

	// Cancelled events are dropped at ingestion and never reach
	// classification or alerting.
	kept := events[:0:0]
	for i := range events {
		if events[i].IsCancelled() {
			continue
		}
		kept = append(kept, events[i])
	}

	s.snap.Store(&snapshot{events: kept, fetchedAt: now})

	c := Classify(kept, now,
		time.Duration(cfg.Alerts.LookaheadWindowMinutes)*time.Minute,
		time.Duration(cfg.Alerts.NearDeltaMinutes)*time.Minute)
	logger.Info("snapshot refreshed",
		"fetched", len(events),
		"kept", len(kept),
		"in_progress", len(c.InProgress),
		"upcoming", len(c.Upcoming),
		"next", len(c.Next))

	return nil
}

// RunAlertCycle evaluates the cached snapshot against the current instant
// and dispatches one combined notification for everything crossing the
// threshold. It never performs the expensive fetch itself unless the
// snapshot has gone stale (host slept through a resync).
func (s *Scheduler) RunAlertCycle(ctx context.Context) {
	cfg, err := s.cfgFn()
	if err != nil {
		logger.Error("failed to load config, skipping alert check", "error", err)
		return
	}

	now := s.now()
	staleness := time.Duration(cfg.Polling.StalenessBoundHours) * time.Hour

	snap := s.snap.Load()
	if snap == nil || now.Sub(snap.fetchedAt) > staleness {
		logger.Info("snapshot missing or stale, triggering out-of-band fetch")
		go func() {
			if err := s.RunFetchCycle(ctx); err != nil {
				logger.Error("out-of-band fetch failed", "error", err)
			}
		}()
		return
	}

	var selected []calendar.Event
	for i := range snap.events {
		e := snap.events[i]

		if e.EndedAt(now) {
			s.alerted.Remove(e.ID)
			continue
		}
		if s.alerted.Has(e.ID) {
			continue
		}

		// The -1 floor absorbs scheduler jitter around exact minute
		// boundaries without re-alerting meetings already underway.
		if m := e.MinutesToStart(now); m >= -1 && m <= cfg.Alerts.ThresholdMinutes {
			selected = append(selected, e)
		}
	}

	if len(selected) > 0 {
		for i := range selected {
			s.alerted.Add(selected[i].ID)
		}
		s.dispatcher.Dispatch(ctx, selected, buildMeta(selected, now))
	}

	if s.alerted.ResetIfAbove(cfg.Alerts.DedupHighWater) {
		logger.Info("alerted set passed high-water mark, cleared",
			"high_water", cfg.Alerts.DedupHighWater)
	}
}

// Snapshot exposes the current cached window for one-shot status output.
func (s *Scheduler) Snapshot() ([]calendar.Event, time.Time) {
	snap := s.snap.Load()
	if snap == nil {
		return nil, time.Time{}
	}
	return snap.events, snap.fetchedAt
}

// endOfFollowingDay returns midnight at the close of tomorrow.
func endOfFollowingDay(now time.Time) time.Time {
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	return startOfToday.AddDate(0, 0, 2)
}

// buildMeta composes the shared notification text: one event gets its own
// line, simultaneous meetings share a combined message.
func buildMeta(batch []calendar.Event, now time.Time) notify.Meta {
	if len(batch) == 1 {
		e := batch[0]
		return notify.Meta{
			Title:      titleFor(e.ShortSubject(), e.MinutesToStart(now)),
			Message:    e.TimeRange(),
			BannerText: e.ShortSubject(),
		}
	}

	var lines []string
	for i := range batch {
		e := batch[i]
		lines = append(lines, fmt.Sprintf("%s %s", e.Start.Format("15:04"), e.ShortSubject()))
	}

	closest := batch[0].MinutesToStart(now)
	for i := range batch {
		if m := batch[i].MinutesToStart(now); m < closest {
			closest = m
		}
	}

	return notify.Meta{
		Title:      titleFor(fmt.Sprintf("%d meetings", len(batch)), closest),
		Message:    strings.Join(lines, "\n"),
		BannerText: fmt.Sprintf("%d meetings starting soon", len(batch)),
	}
}

func titleFor(what string, minutes int) string {
	switch {
	case minutes <= 0:
		return fmt.Sprintf("%s starting now", what)
	case minutes == 1:
		return fmt.Sprintf("%s in 1 minute", what)
	default:
		return fmt.Sprintf("%s in %d minutes", what, minutes)
	}
}
