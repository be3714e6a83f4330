// Package feedsync pulls vendor calendar feeds into event timelines on a
// cron schedule.
package feedsync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"dayline/internal/config"
	"dayline/internal/ics"
	appLog "dayline/internal/log"
	"dayline/internal/model"
)

// FeedFetcher is the part of ics.Fetcher the scheduler needs.
type FeedFetcher interface {
	FetchAll(ctx context.Context, sources []ics.Source) ([]ics.FetchResult, []error)
}

// EntryStore is the part of store.Store the scheduler needs.
type EntryStore interface {
	GetEvent(id string) (model.Event, error)
	ReplaceSourceEntries(eventID, sourceID string, entries []model.RawEntry) (int, error)
}

// Scheduler runs feed syncs. RunOnce may be called directly; Start adds a
// cron job calling it.
type Scheduler struct {
	feeds       []config.FeedConfig
	defaultZone string
	fetcher     FeedFetcher
	store       EntryStore

	// running guards against overlapping runs when a sync outlasts the
	// cron interval.
	running sync.Mutex
}

func NewScheduler(cfg *config.Config, fetcher FeedFetcher, st EntryStore) *Scheduler {
	return &Scheduler{
		feeds:       cfg.Feeds,
		defaultZone: cfg.Timezone,
		fetcher:     fetcher,
		store:       st,
	}
}

// Start schedules RunOnce with the given cron spec and blocks until ctx is
// done.
func (s *Scheduler) Start(ctx context.Context, spec string) error {
	c := cron.New()
	_, err := c.AddFunc(spec, func() {
		if err := s.RunOnce(ctx); err != nil {
			appLog.Error("feedsync: run finished with errors", err)
		}
	})
	if err != nil {
		return fmt.Errorf("feedsync: bad cron spec %q: %w", spec, err)
	}
	appLog.Info("feedsync: scheduler started", "spec", spec, "feeds", len(s.feeds))
	c.Start()

	<-ctx.Done()
	stopCtx := c.Stop()
	<-stopCtx.Done()
	appLog.Info("feedsync: scheduler stopped")
	return nil
}

// RunOnce syncs every feed. A failing feed does not stop the others; all
// failures are joined into the returned error.
func (s *Scheduler) RunOnce(ctx context.Context) error {
	if !s.running.TryLock() {
		appLog.Warn("feedsync: previous run still in progress, skipping")
		return nil
	}
	defer s.running.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	var errs []error
	events := make(map[string]model.Event, len(s.feeds))
	feeds := make(map[string]config.FeedConfig, len(s.feeds))
	sources := make([]ics.Source, 0, len(s.feeds))
	for _, feed := range s.feeds {
		ev, err := s.store.GetEvent(feed.EventID)
		if err != nil {
			appLog.Error("feedsync: feed failed", err, "feed", feed.ID, "event", feed.EventID)
			errs = append(errs, fmt.Errorf("feed %s: %w", feed.ID, err))
			continue
		}
		events[feed.ID] = ev
		feeds[feed.ID] = feed
		sources = append(sources, ics.Source{ID: feed.ID, URL: feed.URL})
	}

	results, fetchErrs := s.fetcher.FetchAll(ctx, sources)
	errs = append(errs, fetchErrs...)

	for _, res := range results {
		feed := feeds[res.Source.ID]
		n, err := s.syncFeed(events[feed.ID], feed, res)
		if err != nil {
			appLog.Error("feedsync: feed failed", err, "feed", feed.ID, "event", feed.EventID)
			errs = append(errs, fmt.Errorf("feed %s: %w", feed.ID, err))
			continue
		}
		appLog.Info("feedsync: feed synced", "feed", feed.ID, "event", feed.EventID, "entries", n, "cached", res.FromCache)
	}
	return errors.Join(errs...)
}

func (s *Scheduler) syncFeed(ev model.Event, feed config.FeedConfig, res ics.FetchResult) (int, error) {
	occs, err := ExpandForEvent(ev, s.defaultZone, res.Source, res.Body)
	if err != nil {
		return 0, err
	}
	entries := ics.ToRawEntries(occs, feed.ID, feed.Color)
	return s.store.ReplaceSourceEntries(ev.ID, feed.ID, entries)
}

// ExpandForEvent parses an ICS body and expands it over the event's days,
// in the event's zone.
func ExpandForEvent(ev model.Event, defaultZone string, src ics.Source, body []byte) ([]model.Occurrence, error) {
	loc := EventLocation(ev, defaultZone)
	first, err := time.ParseInLocation("2006-01-02", ev.StartDate, loc)
	if err != nil {
		return nil, err
	}
	last, err := time.ParseInLocation("2006-01-02", ev.EndDate, loc)
	if err != nil {
		return nil, err
	}
	parsed, err := ics.ParseICS(src, body)
	if err != nil {
		return nil, err
	}
	res, err := ics.ExpandOccurrences(parsed, ics.ExpandConfig{
		DisplayLocation: loc,
		RangeStart:      first,
		RangeEnd:        last.AddDate(0, 0, 1),
	})
	if err != nil {
		return nil, err
	}
	if len(res.TruncatedEvents) > 0 {
		appLog.Warn("feedsync: recurring items truncated", "source", src.ID, "uids", strings.Join(res.TruncatedEvents, ","))
	}
	return res.Occurrences, nil
}

// EventLocation resolves the event's zone, then the configured default,
// then UTC.
func EventLocation(ev model.Event, fallback string) *time.Location {
	for _, name := range []string{ev.Timezone, fallback} {
		if name == "" {
			continue
		}
		loc, err := time.LoadLocation(name)
		if err == nil {
			return loc
		}
		appLog.Warn("feedsync: unknown timezone", "name", name)
	}
	return time.UTC
}
