// Package sync keeps subscribed ICS feeds mirrored into the state store.
package sync

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/robfig/cron/v3"

	"calboard/internal/config"
	"calboard/internal/ics"
	appLog "calboard/internal/log"
	"calboard/internal/state"
)

var (
	refreshTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "calboard_refresh_total",
		Help: "Subscription refresh runs by outcome.",
	}, []string{"result"})

	refreshEvents = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "calboard_subscription_events",
		Help: "Events imported from subscriptions by the last refresh.",
	})
)

// Result summarises one refresh run.
type Result struct {
	Sources   int
	Events    int
	Failed    int
	Truncated []string
}

// Syncer fetches the configured feeds and replaces each source's events in
// the store.
type Syncer struct {
	cfg     *config.Config
	store   *state.Store
	fetcher *ics.Fetcher
	now     func() time.Time

	// mu serialises refresh runs.
	mu gosync.Mutex

	cronMu gosync.Mutex
	cron   *cron.Cron
}

// Option customises a Syncer.
type Option func(*Syncer)

// WithFetcher replaces the default fetcher built from cfg.CacheDir.
func WithFetcher(f *ics.Fetcher) Option {
	return func(s *Syncer) { s.fetcher = f }
}

// WithClock overrides time.Now for the expansion window.
func WithClock(now func() time.Time) Option {
	return func(s *Syncer) { s.now = now }
}

func New(cfg *config.Config, store *state.Store, opts ...Option) *Syncer {
	s := &Syncer{
		cfg:   cfg,
		store: store,
		now:   time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.fetcher == nil {
		s.fetcher = ics.NewFetcher(cfg.CacheDir)
	}
	return s
}

// Sources converts the configured subscriptions, skipping entries without
// a URL.
func (s *Syncer) Sources() []ics.Source {
	sources := make([]ics.Source, 0, len(s.cfg.ICS))
	for _, c := range s.cfg.ICS {
		if c.URL == "" {
			continue
		}
		sources = append(sources, ics.Source{ID: c.SourceID(), URL: c.URL})
	}
	return sources
}

// Refresh runs one fetch, parse and expand cycle. A source that fails to
// fetch or parse keeps its previously imported events. Runs are serialised.
func (s *Syncer) Refresh(ctx context.Context) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sources := s.Sources()
	res := Result{Sources: len(sources)}
	if len(sources) == 0 {
		return res, nil
	}

	loc := s.cfg.Location()
	now := s.now().In(loc)
	window := ics.ExpandConfig{
		Location:   loc,
		RangeStart: now.AddDate(0, 0, -s.cfg.BackfillDays),
		RangeEnd:   now.AddDate(0, 0, s.cfg.HorizonDays),
	}

	fetched, errs := s.fetcher.FetchAll(ctx, sources)
	res.Failed = len(errs)

	for _, f := range fetched {
		parsed, err := ics.ParseICS(f.Source, f.Body)
		if err != nil {
			errs = append(errs, fmt.Errorf("parse %s: %w", f.Source.ID, err))
			res.Failed++
			continue
		}
		expanded, err := ics.ExpandOccurrences(parsed, window)
		if err != nil {
			errs = append(errs, fmt.Errorf("expand %s: %w", f.Source.ID, err))
			res.Failed++
			continue
		}
		s.store.ReplaceSource(f.Source.ID, expanded.Events)
		res.Events += len(expanded.Events)
		res.Truncated = append(res.Truncated, expanded.TruncatedEvents...)
	}

	refreshEvents.Set(float64(res.Events))
	if len(errs) > 0 {
		refreshTotal.WithLabelValues(failureLabel(res)).Inc()
		return res, errors.Join(errs...)
	}
	refreshTotal.WithLabelValues("ok").Inc()

	appLog.Info("subscription refresh complete",
		"sources", res.Sources,
		"events", res.Events,
		"truncated", len(res.Truncated),
	)
	return res, nil
}

// Schedule registers Refresh on the configured cron schedule and starts the
// scheduler. It returns once the scheduler is running; ctx cancellation
// stops it.
func (s *Syncer) Schedule(ctx context.Context) error {
	c := cron.New()
	_, err := c.AddFunc(s.cfg.RefreshCron, func() {
		if _, err := s.Refresh(ctx); err != nil {
			appLog.Error("scheduled refresh failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid refresh schedule %q: %w", s.cfg.RefreshCron, err)
	}

	s.cronMu.Lock()
	s.cron = c
	s.cronMu.Unlock()
	c.Start()
	appLog.Info("refresh scheduler started", "schedule", s.cfg.RefreshCron, "sources", len(s.Sources()))

	go func() {
		<-ctx.Done()
		s.Stop()
	}()
	return nil
}

// Start schedules Refresh and then runs it once, blocking until the first
// import is done.
func (s *Syncer) Start(ctx context.Context) error {
	if err := s.Schedule(ctx); err != nil {
		return err
	}
	if _, err := s.Refresh(ctx); err != nil {
		appLog.Error("initial refresh failed", err)
	}
	return nil
}

// Stop halts the scheduler and waits for a running refresh to finish.
func (s *Syncer) Stop() {
	s.cronMu.Lock()
	c := s.cron
	s.cron = nil
	s.cronMu.Unlock()
	if c == nil {
		return
	}
	<-c.Stop().Done()
	appLog.Info("refresh scheduler stopped")
}

// failureLabel is "error" when no source succeeded and "partial" otherwise.
func failureLabel(res Result) string {
	if res.Failed >= res.Sources {
		return "error"
	}
	return "partial"
}
