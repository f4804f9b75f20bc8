package api

import (
	"context"
	"errors"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"samsar/server/config"
	"samsar/server/internal/aggregator"
	"samsar/server/internal/controller"
	"samsar/server/internal/fetcher"
	"samsar/server/internal/models"
	"samsar/server/internal/prefs"
	"samsar/server/internal/render"
)

// RecordSource serves aggregated category records.
type RecordSource interface {
	Load(ctx context.Context, section, category string) ([]models.Record, error)
	Snapshot() []aggregator.EntryInfo
}

// FeaturedScanner picks the home page cards.
type FeaturedScanner interface {
	Scan(ctx context.Context, highlight string) ([]models.Card, error)
}

type Deps struct {
	Registry    *controller.Registry
	Prefs       *prefs.Store
	Records     RecordSource
	Featured    FeaturedScanner
	Renderer    *render.Renderer
	CardOptions render.CardOptions
}

type Handler struct {
	registry    *controller.Registry
	prefs       *prefs.Store
	records     RecordSource
	featured    FeaturedScanner
	renderer    *render.Renderer
	cardOptions render.CardOptions
	logger      *logrus.Logger
}

type CategoryRequest struct {
	Category string `json:"category" binding:"required"`
}

type SortRequest struct {
	Mode string `json:"mode" binding:"required"`
}

type WindowRequest struct {
	Window string `json:"window" binding:"required"`
}

type InteractionRequest struct {
	File string `json:"file" binding:"required"`
}

type categoryStatus struct {
	models.CategoryMeta
	State models.LoadState `json:"state"`
}

func NewHandler(deps Deps, logger *logrus.Logger) *Handler {
	if logger == nil {
		logger = logrus.New()
		logger.SetFormatter(&logrus.JSONFormatter{})
		logger.SetOutput(os.Stdout)
	}

	return &Handler{
		registry:    deps.Registry,
		prefs:       deps.Prefs,
		records:     deps.Records,
		featured:    deps.Featured,
		renderer:    deps.Renderer,
		cardOptions: deps.CardOptions,
		logger:      logger,
	}
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":            "ok",
		"cached_categories": len(h.records.Snapshot()),
		"sessions":          h.registry.Len(),
	})
}

func (h *Handler) CacheSnapshot(c *gin.Context) {
	c.JSON(http.StatusOK, h.records.Snapshot())
}

// controllerFor resolves the visitor's controller of the :section parameter,
// answering 404 itself when the section does not exist.
func (h *Handler) controllerFor(c *gin.Context) (*controller.Controller, bool) {
	ctrl, err := h.registry.Get(visitorID(c), c.Param("section"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown section"})
		return nil, false
	}
	return ctrl, true
}

func (h *Handler) GetCategories(c *gin.Context) {
	ctrl, ok := h.controllerFor(c)
	if !ok {
		return
	}

	states := ctrl.States()
	out := make([]categoryStatus, 0, len(ctrl.Catalog()))
	for _, meta := range ctrl.Catalog() {
		out = append(out, categoryStatus{CategoryMeta: meta, State: states[meta.Key]})
	}
	c.JSON(http.StatusOK, out)
}

func (h *Handler) GetView(c *gin.Context) {
	ctrl, ok := h.controllerFor(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, ctrl.View())
}

func (h *Handler) Select(c *gin.Context) {
	h.chooseCategory(c, (*controller.Controller).Select)
}

func (h *Handler) Navigate(c *gin.Context) {
	h.chooseCategory(c, (*controller.Controller).Navigate)
}

func (h *Handler) chooseCategory(c *gin.Context, choose func(*controller.Controller, context.Context, string) (models.View, error)) {
	ctrl, ok := h.controllerFor(c)
	if !ok {
		return
	}

	var req CategoryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithError(err).Error("Failed to parse category request")
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}

	category := config.NormalizeCategory(req.Category)
	view, err := choose(ctrl, c.Request.Context(), category)
	if err == nil {
		h.rememberCategory(c, view)
	}
	h.respondView(c, view, err)
}

func (h *Handler) SetSort(c *gin.Context) {
	ctrl, ok := h.controllerFor(c)
	if !ok {
		return
	}

	var req SortRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}
	mode, err := models.ParseSortMode(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := ctrl.SetSort(c.Request.Context(), mode)
	h.respondView(c, view, err)
}

func (h *Handler) SetWindow(c *gin.Context) {
	ctrl, ok := h.controllerFor(c)
	if !ok {
		return
	}

	var req WindowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}
	window, err := models.ParseDateWindow(req.Window)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	view, err := ctrl.SetWindow(c.Request.Context(), window)
	h.respondView(c, view, err)
}

func (h *Handler) Refresh(c *gin.Context) {
	ctrl, ok := h.controllerFor(c)
	if !ok {
		return
	}
	view, err := ctrl.Refresh(c.Request.Context())
	h.respondView(c, view, err)
}

// respondView maps controller outcomes to status codes. Failed loads still
// carry the view so the error state and its notice can be shown.
func (h *Handler) respondView(c *gin.Context, view models.View, err error) {
	switch {
	case err == nil:
		c.JSON(http.StatusOK, view)
	case errors.Is(err, controller.ErrUnknownCategory):
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown category"})
	case errors.Is(err, controller.ErrBusy):
		c.JSON(http.StatusConflict, gin.H{"error": "A category is already loading", "view": view})
	case errors.Is(err, controller.ErrStale):
		c.JSON(http.StatusConflict, gin.H{"error": "Superseded by a newer selection", "view": view})
	case errors.Is(err, fetcher.ErrOffline):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Data source unreachable", "view": view})
	default:
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load category", "view": view})
	}
}

func (h *Handler) rememberCategory(c *gin.Context, view models.View) {
	if err := h.prefs.SetLastCategory(visitorID(c), view.Section, view.Category); err != nil {
		h.logger.WithError(err).Warn("Failed to remember category")
	}
}

// RecordInteraction moves the visitor's last-interacted marker and updates
// the highlight in every open section.
func (h *Handler) RecordInteraction(c *gin.Context) {
	var req InteractionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request parameters"})
		return
	}

	visitor := visitorID(c)
	if err := h.prefs.MarkViewed(visitor, req.File); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for _, section := range config.Sections() {
		if ctrl, ok := h.registry.Lookup(visitor, section); ok {
			ctrl.Highlight(h.prefs.LastViewed(visitor))
		}
	}
	c.JSON(http.StatusOK, gin.H{"last_viewed": h.prefs.LastViewed(visitor)})
}

func (h *Handler) GetOnboarding(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"show_welcome": h.prefs.ShouldShowWelcome(visitorID(c))})
}

func (h *Handler) MarkOnboarding(c *gin.Context) {
	if err := h.prefs.MarkWelcomeShown(visitorID(c)); err != nil {
		h.logger.WithError(err).Error("Failed to mark onboarding")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to mark onboarding"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"show_welcome": false})
}

func (h *Handler) GetFeatured(c *gin.Context) {
	cards, err := h.featured.Scan(c.Request.Context(), h.prefs.LastViewed(visitorID(c)))
	if err != nil {
		h.logger.WithError(err).Error("Failed to scan featured sources")
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to load featured listings"})
		return
	}

	html, err := h.renderer.RenderCards(cards)
	if err != nil {
		h.logger.WithError(err).Error("Failed to render featured cards")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to render featured listings"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cards": cards, "html": html})
}

// findRecord loads one record by section, category and id. On failure it
// returns the status code to answer with.
func (h *Handler) findRecord(ctx context.Context, section, category, id string) (models.Record, models.CategoryMeta, int, error) {
	meta := config.GetCategory(section, config.NormalizeCategory(category))
	if meta == nil {
		return models.Record{}, models.CategoryMeta{}, http.StatusNotFound, controller.ErrUnknownCategory
	}

	records, err := h.records.Load(ctx, meta.Section, meta.Key)
	if err != nil {
		if errors.Is(err, fetcher.ErrOffline) {
			return models.Record{}, *meta, http.StatusServiceUnavailable, err
		}
		return models.Record{}, *meta, http.StatusBadGateway, err
	}

	for _, rec := range records {
		if rec.ID == id || rec.Filename == id {
			return rec, *meta, http.StatusOK, nil
		}
	}
	return models.Record{}, *meta, http.StatusNotFound, errRecordNotFound
}

var errRecordNotFound = errors.New("record not found")

func (h *Handler) GetRecord(c *gin.Context) {
	rec, meta, status, err := h.findRecord(c.Request.Context(), c.Param("section"), c.Param("category"), c.Param("id"))
	if err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"section":  c.Param("section"),
			"category": c.Param("category"),
			"id":       c.Param("id"),
		}).Warn("Record lookup failed")
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"record": rec,
		"detail": render.BuildDetail(rec, meta, h.cardOptions),
	})
}
