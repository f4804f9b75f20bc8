package controller

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"samsar/server/internal/fetcher"
	"samsar/server/internal/models"
	"samsar/server/internal/render"

	"github.com/sirupsen/logrus"
)

var (
	// ErrBusy is returned when a selection arrives while a load is running.
	ErrBusy = errors.New("a category is already loading")

	// ErrStale is returned to a load that was superseded by a newer one.
	ErrStale = errors.New("load superseded by a newer selection")

	ErrUnknownCategory = errors.New("unknown category")
)

const (
	msgAlreadyViewing = "أنت تتصفح هذه الفئة بالفعل"
	msgOffline        = "أنت غير متصل بالإنترنت، سيتم عرض البيانات عند عودة الاتصال"
	msgLoadFailed     = "تعذر تحميل البيانات، حاول مرة أخرى"
	msgRefreshed      = "تم تحديث البيانات"
)

// Loader provides sorted, filtered category records.
type Loader interface {
	LoadSorted(ctx context.Context, section, category string, mode models.SortMode, window models.DateWindow) ([]models.Record, error)
	Fresh(section, category string) bool
	Invalidate(section, category string)
}

// ContainerRenderer renders a view to HTML.
type ContainerRenderer interface {
	RenderContainer(view models.View) (string, error)
}

// Markers returns the filename a visitor last interacted with.
type Markers interface {
	LastViewed(visitorID string) string
}

type Deps struct {
	Loader      Loader
	Renderer    ContainerRenderer
	Markers     Markers
	CardOptions render.CardOptions
	Logger      *logrus.Logger
}

// request is the selection a load was started for.
type request struct {
	generation uint64
	meta       models.CategoryMeta
	sort       models.SortMode
	window     models.DateWindow
	notice     *models.Notice
}

// Controller holds one visitor's selection within one section. Every change
// publishes a new View; published views are never modified.
type Controller struct {
	section   string
	visitorID string
	catalog   []models.CategoryMeta
	deps      Deps

	mu         sync.Mutex
	generation uint64
	inflight   bool
	current    string
	sort       models.SortMode
	window     models.DateWindow
	states     map[string]models.LoadState

	view     atomic.Pointer[models.View]
	lastUsed atomic.Int64
}

func NewController(section, visitorID string, catalog []models.CategoryMeta, deps Deps) *Controller {
	if deps.Logger == nil {
		deps.Logger = logrus.New()
		deps.Logger.SetFormatter(&logrus.JSONFormatter{})
		deps.Logger.SetOutput(os.Stdout)
	}

	c := &Controller{
		section:   section,
		visitorID: visitorID,
		catalog:   catalog,
		deps:      deps,
		sort:      models.SortLatest,
		window:    models.WindowAll,
		states:    make(map[string]models.LoadState, len(catalog)),
	}
	for _, meta := range catalog {
		c.states[meta.Key] = models.StateIdle
	}
	c.view.Store(&models.View{Section: section, Sort: c.sort, Window: c.window, State: models.StateIdle})
	c.touch()
	return c
}

func (c *Controller) logger() *logrus.Entry {
	return c.deps.Logger.WithFields(logrus.Fields{
		"section": c.section,
		"visitor": c.visitorID,
	})
}

func (c *Controller) lookup(category string) (models.CategoryMeta, bool) {
	for _, meta := range c.catalog {
		if meta.Key == category {
			return meta, true
		}
	}
	return models.CategoryMeta{}, false
}

// Select handles a category chosen by the visitor. It is ignored with ErrBusy
// while any load is running. Choosing the category already shown, loaded and
// fresh returns the current view with an informational notice.
func (c *Controller) Select(ctx context.Context, category string) (models.View, error) {
	c.touch()
	meta, ok := c.lookup(category)
	if !ok {
		return c.View(), ErrUnknownCategory
	}

	c.mu.Lock()
	if c.inflight {
		c.mu.Unlock()
		return c.View(), ErrBusy
	}
	if c.current == category && c.states[category] == models.StateLoaded && c.deps.Loader.Fresh(c.section, category) {
		c.mu.Unlock()
		return c.View().WithNotice(&models.Notice{Level: models.NoticeInfo, Message: msgAlreadyViewing}), nil
	}
	req := c.begin(meta, nil)
	c.mu.Unlock()

	return c.load(ctx, req)
}

// Navigate shows category regardless of a running load. A running load is
// superseded and its result discarded.
func (c *Controller) Navigate(ctx context.Context, category string) (models.View, error) {
	c.touch()
	meta, ok := c.lookup(category)
	if !ok {
		return c.View(), ErrUnknownCategory
	}

	c.mu.Lock()
	req := c.begin(meta, nil)
	c.mu.Unlock()

	return c.load(ctx, req)
}

// SetSort reorders the current category.
func (c *Controller) SetSort(ctx context.Context, mode models.SortMode) (models.View, error) {
	return c.reload(ctx, func() { c.sort = mode }, false)
}

// SetWindow restricts the current category to a date window.
func (c *Controller) SetWindow(ctx context.Context, window models.DateWindow) (models.View, error) {
	return c.reload(ctx, func() { c.window = window }, false)
}

// Preset changes the sort mode and date window used by the next load without
// starting one. Empty values keep the current setting.
func (c *Controller) Preset(mode models.SortMode, window models.DateWindow) {
	c.touch()
	c.mu.Lock()
	defer c.mu.Unlock()
	if mode != "" {
		c.sort = mode
	}
	if window != "" {
		c.window = window
	}
}

// Refresh drops the cached records of the current category and reloads it.
func (c *Controller) Refresh(ctx context.Context) (models.View, error) {
	return c.reload(ctx, nil, true)
}

func (c *Controller) reload(ctx context.Context, apply func(), refresh bool) (models.View, error) {
	c.touch()
	c.mu.Lock()
	if c.inflight {
		c.mu.Unlock()
		return c.View(), ErrBusy
	}
	if apply != nil {
		apply()
	}

	category := c.current
	if category == "" && len(c.catalog) > 0 {
		category = c.catalog[0].Key
	}
	meta, ok := c.lookup(category)
	if !ok {
		c.mu.Unlock()
		return c.View(), ErrUnknownCategory
	}

	var notice *models.Notice
	if refresh {
		c.deps.Loader.Invalidate(c.section, category)
		notice = &models.Notice{Level: models.NoticeSuccess, Message: msgRefreshed}
	}
	req := c.begin(meta, notice)
	c.mu.Unlock()

	return c.load(ctx, req)
}

// begin starts a new generation and publishes its loading view. c.mu must be held.
func (c *Controller) begin(meta models.CategoryMeta, notice *models.Notice) request {
	if c.inflight && c.current != meta.Key {
		c.states[c.current] = models.StateIdle
	}
	c.generation++
	c.inflight = true
	c.current = meta.Key
	c.states[meta.Key] = models.StateLoading

	req := request{
		generation: c.generation,
		meta:       meta,
		sort:       c.sort,
		window:     c.window,
		notice:     notice,
	}

	c.publish(models.View{
		Section:    c.section,
		Category:   meta.Key,
		Label:      meta.Label,
		Sort:       req.sort,
		Window:     req.window,
		State:      models.StateLoading,
		Generation: req.generation,
	})
	return req
}

func (c *Controller) load(ctx context.Context, req request) (models.View, error) {
	log := c.logger().WithFields(logrus.Fields{
		"category":   req.meta.Key,
		"generation": req.generation,
	})

	records, err := c.deps.Loader.LoadSorted(ctx, c.section, req.meta.Key, req.sort, req.window)
	if !c.isCurrent(req.generation) {
		log.Debug("Discarding superseded load")
		return c.View(), ErrStale
	}

	view := models.View{
		Section:    c.section,
		Category:   req.meta.Key,
		Label:      req.meta.Label,
		Sort:       req.sort,
		Window:     req.window,
		Generation: req.generation,
	}

	if err != nil {
		view.State = models.StateError
		if errors.Is(err, fetcher.ErrOffline) {
			view.Offline = true
			view.Notice = &models.Notice{Level: models.NoticeWarning, Message: msgOffline}
		} else {
			view.Notice = &models.Notice{Level: models.NoticeError, Message: msgLoadFailed}
		}
		log.WithError(err).Warn("Category load failed")
	} else {
		view.State = models.StateLoaded
		view.Notice = req.notice
		view.Cards = c.buildCards(records, req.meta)
		view.Total = len(view.Cards)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if req.generation != c.generation {
		log.Debug("Discarding superseded load")
		return c.View(), ErrStale
	}
	c.inflight = false
	c.states[req.meta.Key] = view.State
	c.publish(view)

	if err == nil {
		log.WithField("cards", view.Total).Info("Category loaded")
	}
	return *c.view.Load(), err
}

func (c *Controller) buildCards(records []models.Record, meta models.CategoryMeta) []models.Card {
	opts := c.deps.CardOptions
	if c.deps.Markers != nil {
		opts.Highlight = c.deps.Markers.LastViewed(c.visitorID)
	}

	cards := make([]models.Card, len(records))
	for i, rec := range records {
		cards[i] = render.BuildCard(rec, meta, opts)
	}
	return cards
}

// Highlight marks the card for filename as last viewed in the current view
// and clears the mark elsewhere. Views that are not loaded are left alone.
func (c *Controller) Highlight(filename string) models.View {
	c.touch()
	c.mu.Lock()
	defer c.mu.Unlock()

	current := *c.view.Load()
	if current.State != models.StateLoaded {
		return current
	}

	next := current
	next.Notice = nil
	next.Cards = make([]models.Card, len(current.Cards))
	for i, card := range current.Cards {
		card.Highlighted = filename != "" && card.Filename == filename
		next.Cards[i] = card
	}
	c.publish(next)
	return *c.view.Load()
}

// publish renders view and swaps it in. c.mu must be held.
func (c *Controller) publish(view models.View) {
	if c.deps.Renderer != nil {
		html, err := c.deps.Renderer.RenderContainer(view)
		if err != nil {
			c.logger().WithError(err).Error("Failed to render view")
		}
		view.HTML = html
	}
	view.RenderedAt = time.Now()
	c.view.Store(&view)
}

func (c *Controller) isCurrent(generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return generation == c.generation
}

// View returns the last published view.
func (c *Controller) View() models.View {
	return *c.view.Load()
}

// Current returns the selected category key, empty before the first selection.
func (c *Controller) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Loading reports whether a load is running.
func (c *Controller) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.inflight
}

// States returns the load state of every category in the catalog.
func (c *Controller) States() map[string]models.LoadState {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]models.LoadState, len(c.states))
	for k, v := range c.states {
		out[k] = v
	}
	return out
}

// Catalog returns the categories this controller selects from.
func (c *Controller) Catalog() []models.CategoryMeta {
	return c.catalog
}

func (c *Controller) touch() {
	c.lastUsed.Store(time.Now().UnixNano())
}

// LastUsed returns when the controller last handled a call.
func (c *Controller) LastUsed() time.Time {
	return time.Unix(0, c.lastUsed.Load())
}
