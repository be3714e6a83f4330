// Package store keeps events and their timeline entries in a single YAML
// document on disk. Every mutation rewrites the file atomically and then
// signals subscribers so views can refetch.
package store

import (
	"crypto/sha256"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"dayline/internal/config"
	appLog "dayline/internal/log"
	"dayline/internal/model"
	"dayline/internal/timeline"
)

const dayLayout = "2006-01-02"

// noFileSum stands for a missing backing file.
var noFileSum [sha256.Size]byte

// Table names carried in model.Change.
const (
	TableEvents  = "events"
	TableEntries = "entries"
)

var (
	ErrNotFound = errors.New("store: not found")
	ErrInvalid  = errors.New("store: invalid record")
)

type document struct {
	Events  []model.Event    `yaml:"events"`
	Entries []model.RawEntry `yaml:"entries"`
}

// Store is safe for concurrent use.
type Store struct {
	path string

	mu  sync.RWMutex
	doc document
	// rev counts successful writes and reloads.
	rev uint64
	// lastSum is the digest of the file content last written or read.
	lastSum [sha256.Size]byte
	loaded  bool

	subsMu  sync.Mutex
	subs    map[int]chan model.Change
	nextSub int

	now func() time.Time
}

// Open loads the store at path. A missing file yields an empty store; the
// file is created on the first write.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("store: path is empty")
	}
	s := &Store{
		path: path,
		subs: make(map[int]chan model.Change),
		now:  time.Now,
	}
	if _, err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the backing file, discarding the in-memory copy. Used
// when the file was changed by another process. It reports false when the
// file still holds what this store last wrote or loaded, which is the case
// for the watcher echo of our own writes.
func (s *Store) Reload() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return false, fmt.Errorf("store: read %s: %w", s.path, err)
		}
		if s.loaded && s.lastSum == noFileSum {
			return false, nil
		}
		s.doc = document{}
		s.lastSum = noFileSum
		s.loaded = true
		s.rev++
		return true, nil
	}

	sum := sha256.Sum256(data)
	if s.loaded && sum == s.lastSum {
		return false, nil
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("store: parse %s: %w", s.path, err)
	}
	s.doc = doc
	s.lastSum = sum
	s.loaded = true
	s.rev++

	appLog.Debug("store loaded", "path", s.path, "events", len(doc.Events), "entries", len(doc.Entries))
	return true, nil
}

// persist writes the document. Caller holds s.mu.
func (s *Store) persist() error {
	data, err := yaml.Marshal(&s.doc)
	if err != nil {
		return fmt.Errorf("store: marshal: %w", err)
	}
	if err := config.WriteFileAtomic(s.path, data, ".dayline-store-*.tmp"); err != nil {
		return fmt.Errorf("store: write %s: %w", s.path, err)
	}
	s.lastSum = sha256.Sum256(data)
	s.loaded = true
	s.rev++
	return nil
}

// Revision changes whenever the stored data may have changed. Callers use
// it to key caches.
func (s *Store) Revision() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rev
}

// Subscribe returns a channel of change signals and a cancel func. Sends
// never block; a subscriber that falls behind misses signals, which is fine
// because every signal only means "refetch".
func (s *Store) Subscribe() (<-chan model.Change, func()) {
	ch := make(chan model.Change, 16)

	s.subsMu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.subsMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.subsMu.Lock()
			delete(s.subs, id)
			s.subsMu.Unlock()
			close(ch)
		})
	}
}

// Publish fans a change out to subscribers.
func (s *Store) Publish(c model.Change) {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- c:
		default:
		}
	}
}

// ---- events ----

// CreateEvent validates ev, assigns ID and CreatedAt, and stores it.
// EndDate defaults to StartDate.
func (s *Store) CreateEvent(ev model.Event) (model.Event, error) {
	ev.Name = strings.TrimSpace(ev.Name)
	if ev.Name == "" {
		return model.Event{}, fmt.Errorf("%w: event name is required", ErrInvalid)
	}
	if ev.EndDate == "" {
		ev.EndDate = ev.StartDate
	}
	start, err := time.Parse(dayLayout, ev.StartDate)
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: start_date %q", ErrInvalid, ev.StartDate)
	}
	end, err := time.Parse(dayLayout, ev.EndDate)
	if err != nil {
		return model.Event{}, fmt.Errorf("%w: end_date %q", ErrInvalid, ev.EndDate)
	}
	if end.Before(start) {
		return model.Event{}, fmt.Errorf("%w: end_date before start_date", ErrInvalid)
	}
	if ev.Timezone != "" {
		if _, err := time.LoadLocation(ev.Timezone); err != nil {
			return model.Event{}, fmt.Errorf("%w: timezone %q", ErrInvalid, ev.Timezone)
		}
	}

	ev.ID = uuid.New().String()
	ev.CreatedAt = s.now().UTC()

	s.mu.Lock()
	s.doc.Events = append(s.doc.Events, ev)
	err = s.persist()
	if err != nil {
		s.doc.Events = s.doc.Events[:len(s.doc.Events)-1]
	}
	s.mu.Unlock()
	if err != nil {
		return model.Event{}, err
	}

	s.Publish(model.Change{Table: TableEvents, Op: model.OpInsert, ID: ev.ID, EventID: ev.ID})
	return ev, nil
}

func (s *Store) GetEvent(id string) (model.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.doc.Events {
		if ev.ID == id {
			return ev, nil
		}
	}
	return model.Event{}, fmt.Errorf("%w: event %s", ErrNotFound, id)
}

// ListEvents returns events ordered by start date, then name.
func (s *Store) ListEvents() []model.Event {
	s.mu.RLock()
	out := make([]model.Event, len(s.doc.Events))
	copy(out, s.doc.Events)
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].StartDate != out[j].StartDate {
			return out[i].StartDate < out[j].StartDate
		}
		return out[i].Name < out[j].Name
	})
	return out
}

// DeleteEvent removes the event and all of its entries.
func (s *Store) DeleteEvent(id string) error {
	s.mu.Lock()
	idx := -1
	for i, ev := range s.doc.Events {
		if ev.ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return fmt.Errorf("%w: event %s", ErrNotFound, id)
	}

	prev := s.doc
	events := make([]model.Event, 0, len(s.doc.Events)-1)
	events = append(events, s.doc.Events[:idx]...)
	events = append(events, s.doc.Events[idx+1:]...)
	entries := make([]model.RawEntry, 0, len(s.doc.Entries))
	for _, e := range s.doc.Entries {
		if e.EventID != id {
			entries = append(entries, e)
		}
	}
	s.doc = document{Events: events, Entries: entries}
	err := s.persist()
	if err != nil {
		s.doc = prev
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.Publish(model.Change{Table: TableEvents, Op: model.OpDelete, ID: id, EventID: id})
	return nil
}

// ---- entries ----

// validateEntry checks e against its event. Caller holds s.mu.
func (s *Store) validateEntry(e model.RawEntry) error {
	var ev *model.Event
	for i := range s.doc.Events {
		if s.doc.Events[i].ID == e.EventID {
			ev = &s.doc.Events[i]
			break
		}
	}
	if ev == nil {
		return fmt.Errorf("%w: event %s", ErrNotFound, e.EventID)
	}
	if strings.TrimSpace(e.Title) == "" {
		return fmt.Errorf("%w: title is required", ErrInvalid)
	}
	if _, err := time.Parse(dayLayout, e.DayKey); err != nil {
		return fmt.Errorf("%w: day %q", ErrInvalid, e.DayKey)
	}
	if e.DayKey < ev.StartDate || e.DayKey > ev.EndDate {
		return fmt.Errorf("%w: day %s outside event %s..%s", ErrInvalid, e.DayKey, ev.StartDate, ev.EndDate)
	}
	if _, err := timeline.ParseClock(e.Start); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if strings.TrimSpace(e.End) != "" {
		if _, err := timeline.ParseClock(e.End); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalid, err)
		}
	}
	return nil
}

// AddEntry validates and stores e, assigning an ID.
func (s *Store) AddEntry(e model.RawEntry) (model.RawEntry, error) {
	e.ID = uuid.New().String()

	s.mu.Lock()
	if err := s.validateEntry(e); err != nil {
		s.mu.Unlock()
		return model.RawEntry{}, err
	}
	s.doc.Entries = append(s.doc.Entries, e)
	err := s.persist()
	if err != nil {
		s.doc.Entries = s.doc.Entries[:len(s.doc.Entries)-1]
	}
	s.mu.Unlock()
	if err != nil {
		return model.RawEntry{}, err
	}

	s.Publish(model.Change{Table: TableEntries, Op: model.OpInsert, ID: e.ID, EventID: e.EventID})
	return e, nil
}

// GetEntry returns the stored entry with the given id.
func (s *Store) GetEntry(id string) (model.RawEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.doc.Entries {
		if e.ID == id {
			return e, nil
		}
	}
	return model.RawEntry{}, fmt.Errorf("%w: entry %s", ErrNotFound, id)
}

// UpdateEntry replaces the stored entry with e.ID. The owning event cannot
// change.
func (s *Store) UpdateEntry(e model.RawEntry) (model.RawEntry, error) {
	s.mu.Lock()
	idx := -1
	for i := range s.doc.Entries {
		if s.doc.Entries[i].ID == e.ID {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return model.RawEntry{}, fmt.Errorf("%w: entry %s", ErrNotFound, e.ID)
	}
	old := s.doc.Entries[idx]
	e.EventID = old.EventID
	if err := s.validateEntry(e); err != nil {
		s.mu.Unlock()
		return model.RawEntry{}, err
	}
	s.doc.Entries[idx] = e
	err := s.persist()
	if err != nil {
		s.doc.Entries[idx] = old
	}
	s.mu.Unlock()
	if err != nil {
		return model.RawEntry{}, err
	}

	s.Publish(model.Change{Table: TableEntries, Op: model.OpUpdate, ID: e.ID, EventID: e.EventID})
	return e, nil
}

func (s *Store) DeleteEntry(id string) error {
	s.mu.Lock()
	idx := -1
	for i := range s.doc.Entries {
		if s.doc.Entries[i].ID == id {
			idx = i
			break
		}
	}
	if idx == -1 {
		s.mu.Unlock()
		return fmt.Errorf("%w: entry %s", ErrNotFound, id)
	}
	old := s.doc.Entries
	removed := old[idx]
	entries := make([]model.RawEntry, 0, len(old)-1)
	entries = append(entries, old[:idx]...)
	entries = append(entries, old[idx+1:]...)
	s.doc.Entries = entries
	err := s.persist()
	if err != nil {
		s.doc.Entries = old
	}
	s.mu.Unlock()
	if err != nil {
		return err
	}

	s.Publish(model.Change{Table: TableEntries, Op: model.OpDelete, ID: id, EventID: removed.EventID})
	return nil
}

// Entries returns the raw entries of an event ordered by day then start.
func (s *Store) Entries(eventID string) ([]model.RawEntry, error) {
	if _, err := s.GetEvent(eventID); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.RawEntry, 0)
	for _, e := range s.doc.Entries {
		if e.EventID == eventID {
			out = append(out, e)
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].DayKey != out[j].DayKey {
			return out[i].DayKey < out[j].DayKey
		}
		return clockOrZero(out[i].Start) < clockOrZero(out[j].Start)
	})
	return out, nil
}

// EntriesForDay returns the normalized entries of one event day, sorted by
// start minute, ready for the layout engine.
func (s *Store) EntriesForDay(eventID, dayKey string) ([]model.TimelineEntry, error) {
	raws, err := s.Entries(eventID)
	if err != nil {
		return nil, err
	}
	day := make([]model.RawEntry, 0, len(raws))
	for _, r := range raws {
		if r.DayKey == dayKey {
			day = append(day, r)
		}
	}
	return timeline.NormalizeAll(day), nil
}

// ReplaceSourceEntries swaps every entry of eventID owned by sourceID for
// entries. Entries keep a non-empty ID (feeds derive stable ones) and get a
// fresh one otherwise. Entries outside the event's days are dropped.
func (s *Store) ReplaceSourceEntries(eventID, sourceID string, entries []model.RawEntry) (int, error) {
	if sourceID == "" {
		return 0, fmt.Errorf("%w: source id is required", ErrInvalid)
	}

	s.mu.Lock()
	prev := s.doc.Entries
	kept := make([]model.RawEntry, 0, len(prev)+len(entries))
	for _, e := range prev {
		if e.EventID == eventID && e.SourceID == sourceID {
			continue
		}
		kept = append(kept, e)
	}
	s.doc.Entries = kept

	added := 0
	for _, e := range entries {
		e.EventID = eventID
		e.SourceID = sourceID
		if e.ID == "" {
			e.ID = uuid.New().String()
		}
		if err := s.validateEntry(e); err != nil {
			if errors.Is(err, ErrNotFound) {
				s.doc.Entries = prev
				s.mu.Unlock()
				return 0, err
			}
			appLog.Debug("store: skipping feed entry", "source", sourceID, "title", e.Title, "day", e.DayKey, "err", err)
			continue
		}
		s.doc.Entries = append(s.doc.Entries, e)
		added++
	}

	err := s.persist()
	if err != nil {
		s.doc.Entries = prev
	}
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}

	s.Publish(model.Change{Table: TableEntries, Op: model.OpUpdate, EventID: eventID})
	return added, nil
}

func clockOrZero(s string) int {
	m, err := timeline.ParseClock(s)
	if err != nil {
		return 0
	}
	return m
}
