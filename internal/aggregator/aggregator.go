package aggregator

import (
	"context"
	"os"
	"slices"
	"sort"
	"sync"
	"time"

	"samsar/server/internal/models"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Loader fetches every record of a category.
type Loader interface {
	FetchCategory(ctx context.Context, section, category string) ([]models.Record, error)
}

type entry struct {
	records   []models.Record
	fetchedAt time.Time
}

// EntryInfo describes one cached category.
type EntryInfo struct {
	Key       string    `json:"key"`
	Records   int       `json:"records"`
	FetchedAt time.Time `json:"fetched_at"`
	Fresh     bool      `json:"fresh"`
}

// Aggregator caches category loads for a freshness window. Entries are
// replaced only by successful loads and never evicted.
type Aggregator struct {
	loader    Loader
	freshness time.Duration
	logger    *logrus.Logger
	now       func() time.Time

	// Bounds a shared fetch, which outlives the caller that started it
	fetchTimeout time.Duration

	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
}

func New(loader Loader, freshness time.Duration, logger *logrus.Logger) *Aggregator {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}
	return &Aggregator{
		loader:    loader,
		freshness: freshness,
		logger:    logger,
		now:       time.Now,
		entries:   make(map[string]entry),

		fetchTimeout: time.Minute,
	}
}

// SetFetchTimeout bounds every shared category fetch. Zero removes the bound.
func (a *Aggregator) SetFetchTimeout(d time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fetchTimeout = d
}

func (a *Aggregator) fetchContext(ctx context.Context) (context.Context, context.CancelFunc) {
	a.mu.RLock()
	timeout := a.fetchTimeout
	a.mu.RUnlock()

	// Waiters share the fetch, so one caller going away must not cancel it.
	detached := context.WithoutCancel(ctx)
	if timeout <= 0 {
		return context.WithCancel(detached)
	}
	return context.WithTimeout(detached, timeout)
}

// SetClock replaces the time source.
func (a *Aggregator) SetClock(now func() time.Time) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.now = now
}

func cacheKey(section, category string) string {
	return section + "/" + category
}

func (a *Aggregator) lookup(key string) ([]models.Record, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[key]
	if !ok || a.now().Sub(e.fetchedAt) >= a.freshness {
		return nil, false
	}
	return e.records, true
}

// Load returns the records of a category in index order, from cache when
// fresh. Concurrent loads of the same category share one fetch; cancelling
// ctx ends only this caller's wait. The returned slice belongs to the caller.
func (a *Aggregator) Load(ctx context.Context, section, category string) ([]models.Record, error) {
	key := cacheKey(section, category)
	if records, ok := a.lookup(key); ok {
		return slices.Clone(records), nil
	}

	ch := a.group.DoChan(key, func() (interface{}, error) {
		if records, ok := a.lookup(key); ok {
			return records, nil
		}

		fetchCtx, cancel := a.fetchContext(ctx)
		defer cancel()
		records, err := a.loader.FetchCategory(fetchCtx, section, category)
		if err != nil {
			return nil, err
		}

		a.mu.Lock()
		a.entries[key] = entry{records: records, fetchedAt: a.now()}
		a.mu.Unlock()
		return records, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			a.logger.WithFields(logrus.Fields{
				"category": key,
				"shared":   res.Shared,
			}).WithError(res.Err).Warn("Category load failed")
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]models.Record)), nil
	}
}

// LoadSorted loads a category, filters it to window and orders it by mode.
func (a *Aggregator) LoadSorted(ctx context.Context, section, category string, mode models.SortMode, window models.DateWindow) ([]models.Record, error) {
	records, err := a.Load(ctx, section, category)
	if err != nil {
		return nil, err
	}
	records = FilterWindow(records, window, a.clock())
	SortRecords(records, mode)
	return records, nil
}

// Fresh reports whether a category would be served from cache.
func (a *Aggregator) Fresh(section, category string) bool {
	_, ok := a.lookup(cacheKey(section, category))
	return ok
}

// Invalidate forgets a category so that the next load refetches it.
func (a *Aggregator) Invalidate(section, category string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.entries, cacheKey(section, category))
}

// FetchedAt returns when a category was last loaded successfully.
func (a *Aggregator) FetchedAt(section, category string) (time.Time, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	e, ok := a.entries[cacheKey(section, category)]
	return e.fetchedAt, ok
}

// Snapshot lists the cache entries sorted by key.
func (a *Aggregator) Snapshot() []EntryInfo {
	a.mu.RLock()
	defer a.mu.RUnlock()

	now := a.now()
	infos := make([]EntryInfo, 0, len(a.entries))
	for key, e := range a.entries {
		infos = append(infos, EntryInfo{
			Key:       key,
			Records:   len(e.records),
			FetchedAt: e.fetchedAt,
			Fresh:     now.Sub(e.fetchedAt) < a.freshness,
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos
}

func (a *Aggregator) clock() time.Time {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.now()
}
