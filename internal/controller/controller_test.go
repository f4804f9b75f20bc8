package controller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"samsar/server/internal/fetcher"
	"samsar/server/internal/models"
	"samsar/server/internal/render"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type loadCall struct {
	category string
	sort     models.SortMode
	window   models.DateWindow
}

// fakeLoader serves canned records. Categories with a gate block until the
// gate is closed; each blocked call is announced on started.
type fakeLoader struct {
	mu          sync.Mutex
	records     map[string][]models.Record
	errs        map[string]error
	gates       map[string]chan struct{}
	fresh       map[string]bool
	calls       []loadCall
	invalidated []string
	started     chan string
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{
		records: map[string][]models.Record{
			"apartments": {
				{Filename: "a.json", ID: "a", Title: "A", Date: "2024-01-01"},
				{Filename: "b.json", ID: "b", Title: "B", Date: "2024-02-01"},
			},
			"shops": {
				{Filename: "s.json", ID: "s", Title: "S"},
			},
		},
		errs:    map[string]error{},
		gates:   map[string]chan struct{}{},
		fresh:   map[string]bool{},
		started: make(chan string, 10),
	}
}

func (f *fakeLoader) LoadSorted(ctx context.Context, section, category string, mode models.SortMode, window models.DateWindow) ([]models.Record, error) {
	f.mu.Lock()
	f.calls = append(f.calls, loadCall{category: category, sort: mode, window: window})
	gate := f.gates[category]
	f.mu.Unlock()

	if gate != nil {
		f.started <- category
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs[category]; err != nil {
		return nil, err
	}
	f.fresh[category] = true
	return append([]models.Record(nil), f.records[category]...), nil
}

func (f *fakeLoader) Fresh(section, category string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.fresh[category]
}

func (f *fakeLoader) Invalidate(section, category string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invalidated = append(f.invalidated, category)
	delete(f.fresh, category)
}

func (f *fakeLoader) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

func (f *fakeLoader) lastCall() loadCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

type stubRenderer struct{}

func (stubRenderer) RenderContainer(view models.View) (string, error) {
	return fmt.Sprintf("%s/%s#%d", view.Category, view.State, view.Generation), nil
}

type staticMarkers map[string]string

func (m staticMarkers) LastViewed(visitorID string) string {
	return m[visitorID]
}

var catalog = []models.CategoryMeta{
	{Key: "apartments", Section: "properties", Label: "شقق للبيع", Kind: models.KindOffer, DetailPage: "details"},
	{Key: "shops", Section: "properties", Label: "محلات", Kind: models.KindOffer, DetailPage: "details"},
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func newTestController(loader *fakeLoader, markers Markers) *Controller {
	return NewController("properties", "visitor-1", catalog, Deps{
		Loader:      loader,
		Renderer:    stubRenderer{},
		Markers:     markers,
		CardOptions: render.CardOptions{DefaultPhone: "201147758857"},
		Logger:      quietLogger(),
	})
}

func TestController_InitialViewIsIdle(t *testing.T) {
	c := newTestController(newFakeLoader(), nil)
	view := c.View()
	assert.Equal(t, models.StateIdle, view.State)
	assert.Equal(t, "", c.Current())
	for _, state := range c.States() {
		assert.Equal(t, models.StateIdle, state)
	}
}

func TestController_SelectLoadsCategory(t *testing.T) {
	loader := newFakeLoader()
	c := newTestController(loader, nil)

	view, err := c.Select(context.Background(), "apartments")
	require.NoError(t, err)

	assert.Equal(t, models.StateLoaded, view.State)
	assert.Equal(t, "apartments", view.Category)
	assert.Equal(t, 2, view.Total)
	assert.Equal(t, "apartments/loaded#1", view.HTML)
	assert.Equal(t, models.StateLoaded, c.States()["apartments"])
	assert.Equal(t, models.SortLatest, loader.lastCall().sort)
	assert.False(t, c.Loading())
}

func TestController_UnknownCategory(t *testing.T) {
	c := newTestController(newFakeLoader(), nil)
	_, err := c.Select(context.Background(), "villas")
	assert.ErrorIs(t, err, ErrUnknownCategory)
	_, err = c.Navigate(context.Background(), "villas")
	assert.ErrorIs(t, err, ErrUnknownCategory)
}

func TestController_ReselectingFreshCategoryIsNoop(t *testing.T) {
	loader := newFakeLoader()
	c := newTestController(loader, nil)

	first, err := c.Select(context.Background(), "apartments")
	require.NoError(t, err)

	second, err := c.Select(context.Background(), "apartments")
	require.NoError(t, err)

	require.NotNil(t, second.Notice)
	assert.Equal(t, models.NoticeInfo, second.Notice.Level)
	assert.Equal(t, first.Generation, second.Generation)
	assert.Equal(t, first.HTML, second.HTML)
	assert.Equal(t, 1, loader.callCount())
	assert.Nil(t, c.View().Notice, "published view is not changed by the notice")
}

func TestController_SelectWhileLoadingIsBusy(t *testing.T) {
	loader := newFakeLoader()
	gate := make(chan struct{})
	loader.gates["apartments"] = gate
	c := newTestController(loader, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Select(context.Background(), "apartments")
		done <- err
	}()
	<-loader.started

	assert.Equal(t, models.StateLoading, c.View().State)
	view, err := c.Select(context.Background(), "shops")
	assert.ErrorIs(t, err, ErrBusy)
	assert.Equal(t, "apartments", view.Category)
	assert.Equal(t, models.StateLoading, view.State)

	_, err = c.SetSort(context.Background(), models.SortOldest)
	assert.ErrorIs(t, err, ErrBusy)

	close(gate)
	require.NoError(t, <-done)
	assert.Equal(t, "apartments", c.View().Category)
	assert.Equal(t, models.StateLoaded, c.View().State)
	assert.Equal(t, 1, loader.callCount())
}

func TestController_NavigateDiscardsSupersededLoad(t *testing.T) {
	loader := newFakeLoader()
	gate := make(chan struct{})
	loader.gates["apartments"] = gate
	c := newTestController(loader, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Navigate(context.Background(), "apartments")
		done <- err
	}()
	<-loader.started

	view, err := c.Navigate(context.Background(), "shops")
	require.NoError(t, err)
	assert.Equal(t, "shops", view.Category)
	assert.Equal(t, uint64(2), view.Generation)

	close(gate)
	assert.ErrorIs(t, <-done, ErrStale)

	final := c.View()
	assert.Equal(t, "shops", final.Category)
	assert.Equal(t, models.StateLoaded, final.State)
	assert.Equal(t, 1, final.Total)
	assert.Equal(t, "shops", c.Current())
	assert.Equal(t, models.StateIdle, c.States()["apartments"], "superseded category goes back to idle")
}

func TestController_StaleErrorDoesNotOverrideView(t *testing.T) {
	loader := newFakeLoader()
	gate := make(chan struct{})
	loader.gates["apartments"] = gate
	loader.errs["apartments"] = errors.New("boom")
	c := newTestController(loader, nil)

	done := make(chan error, 1)
	go func() {
		_, err := c.Navigate(context.Background(), "apartments")
		done <- err
	}()
	<-loader.started

	_, err := c.Navigate(context.Background(), "shops")
	require.NoError(t, err)
	close(gate)

	assert.ErrorIs(t, <-done, ErrStale)
	assert.Equal(t, models.StateLoaded, c.View().State)
	assert.Nil(t, c.View().Notice)
}

func TestController_OfflineError(t *testing.T) {
	loader := newFakeLoader()
	loader.errs["apartments"] = &fetcher.IndexFetchError{Section: "properties", Category: "apartments", Offline: true, Err: errors.New("dial tcp: refused")}
	c := newTestController(loader, nil)

	view, err := c.Select(context.Background(), "apartments")
	require.Error(t, err)
	assert.ErrorIs(t, err, fetcher.ErrOffline)

	assert.Equal(t, models.StateError, view.State)
	assert.True(t, view.Offline)
	require.NotNil(t, view.Notice)
	assert.Equal(t, models.NoticeWarning, view.Notice.Level)
	assert.Equal(t, models.StateError, c.States()["apartments"])
	assert.False(t, c.Loading())
}

func TestController_LoadErrorThenRetry(t *testing.T) {
	loader := newFakeLoader()
	loader.errs["shops"] = &fetcher.IndexFetchError{Section: "properties", Category: "shops", StatusCode: 500}
	c := newTestController(loader, nil)

	view, err := c.Select(context.Background(), "shops")
	require.Error(t, err)
	assert.Equal(t, models.NoticeError, view.Notice.Level)
	assert.False(t, view.Offline)

	loader.mu.Lock()
	delete(loader.errs, "shops")
	loader.mu.Unlock()

	view, err = c.Select(context.Background(), "shops")
	require.NoError(t, err)
	assert.Equal(t, models.StateLoaded, view.State)
}

func TestController_SortAndWindow(t *testing.T) {
	loader := newFakeLoader()
	c := newTestController(loader, nil)

	view, err := c.SetSort(context.Background(), models.SortOldest)
	require.NoError(t, err)
	assert.Equal(t, "apartments", view.Category, "falls back to the default category")
	assert.Equal(t, models.SortOldest, view.Sort)
	assert.Equal(t, models.SortOldest, loader.lastCall().sort)

	view, err = c.SetWindow(context.Background(), models.WindowLastWeek)
	require.NoError(t, err)
	assert.Equal(t, models.WindowLastWeek, view.Window)
	assert.Equal(t, loadCall{category: "apartments", sort: models.SortOldest, window: models.WindowLastWeek}, loader.lastCall())
}

func TestController_PresetAppliesToNextLoad(t *testing.T) {
	loader := newFakeLoader()
	c := newTestController(loader, nil)

	c.Preset(models.SortIndex, "")
	assert.Equal(t, 0, loader.callCount())

	view, err := c.Navigate(context.Background(), "shops")
	require.NoError(t, err)
	assert.Equal(t, models.SortIndex, view.Sort)
	assert.Equal(t, models.WindowAll, view.Window)
	assert.Equal(t, loadCall{category: "shops", sort: models.SortIndex, window: models.WindowAll}, loader.lastCall())
}

func TestController_Refresh(t *testing.T) {
	loader := newFakeLoader()
	c := newTestController(loader, nil)

	_, err := c.Select(context.Background(), "shops")
	require.NoError(t, err)

	view, err := c.Refresh(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"shops"}, loader.invalidated)
	require.NotNil(t, view.Notice)
	assert.Equal(t, models.NoticeSuccess, view.Notice.Level)
	assert.Equal(t, 2, loader.callCount())
}

func TestController_HighlightsLastViewed(t *testing.T) {
	loader := newFakeLoader()
	c := newTestController(loader, staticMarkers{"visitor-1": "b.json"})

	view, err := c.Select(context.Background(), "apartments")
	require.NoError(t, err)

	highlighted := map[string]bool{}
	for _, card := range view.Cards {
		highlighted[card.Filename] = card.Highlighted
	}
	assert.Equal(t, map[string]bool{"a.json": false, "b.json": true}, highlighted)

	next := c.Highlight("a.json")
	assert.True(t, next.Cards[indexOf(next.Cards, "a.json")].Highlighted)
	assert.False(t, next.Cards[indexOf(next.Cards, "b.json")].Highlighted)

	// The earlier view is a separate value and keeps its own highlight.
	assert.True(t, view.Cards[indexOf(view.Cards, "b.json")].Highlighted)
	assert.Equal(t, view.Generation, next.Generation)
}

func TestController_HighlightIgnoredWhenNotLoaded(t *testing.T) {
	c := newTestController(newFakeLoader(), nil)
	view := c.Highlight("a.json")
	assert.Equal(t, models.StateIdle, view.State)
}

func TestController_ConcurrentSelectionsSettle(t *testing.T) {
	loader := newFakeLoader()
	c := newTestController(loader, nil)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			category := catalog[i%2].Key
			if i%3 == 0 {
				c.Navigate(context.Background(), category)
			} else {
				c.Select(context.Background(), category)
			}
		}()
	}
	wg.Wait()

	assert.False(t, c.Loading())
	final := c.View()
	assert.Equal(t, models.StateLoaded, final.State)
	assert.Equal(t, c.Current(), final.Category)
}

func TestRegistry(t *testing.T) {
	loader := newFakeLoader()
	reg := NewRegistry(func(section string) []models.CategoryMeta {
		if section == "properties" {
			return catalog
		}
		return nil
	}, Deps{Loader: loader, Renderer: stubRenderer{}, Logger: quietLogger()})

	a, err := reg.Get("v1", "properties")
	require.NoError(t, err)
	again, err := reg.Get("v1", "properties")
	require.NoError(t, err)
	assert.Same(t, a, again)

	b, err := reg.Get("v2", "properties")
	require.NoError(t, err)
	assert.NotSame(t, a, b)

	_, err = reg.Get("v1", "villas")
	assert.ErrorIs(t, err, ErrUnknownSection)

	found, ok := reg.Lookup("v1", "properties")
	assert.True(t, ok)
	assert.Same(t, a, found)
	_, ok = reg.Lookup("v3", "properties")
	assert.False(t, ok)

	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, 0, reg.Sweep(time.Hour))

	time.Sleep(5 * time.Millisecond)
	assert.Equal(t, 2, reg.Sweep(time.Millisecond))
	assert.Equal(t, 0, reg.Len())
}

func indexOf(cards []models.Card, filename string) int {
	for i, card := range cards {
		if card.Filename == filename {
			return i
		}
	}
	return -1
}
