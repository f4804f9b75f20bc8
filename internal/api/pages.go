package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"samsar/server/config"
	"samsar/server/internal/controller"
	"samsar/server/internal/models"
	"samsar/server/internal/render"
)

const htmlContentType = "text/html; charset=utf-8"

// SectionPage renders the full page of a section. The category comes from
// the query, then the visitor's last category, then the section default.
func (h *Handler) SectionPage(c *gin.Context) {
	section := c.Param("section")
	ctrl, err := h.registry.Get(visitorID(c), section)
	if err != nil {
		c.String(http.StatusNotFound, "القسم غير موجود")
		return
	}

	// Missing sort or window parameters keep the visitor's current setting.
	var mode models.SortMode
	if raw := c.Query("sort"); raw != "" {
		if mode, err = models.ParseSortMode(raw); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
	}
	var window models.DateWindow
	if raw := c.Query("window"); raw != "" {
		if window, err = models.ParseDateWindow(raw); err != nil {
			c.String(http.StatusBadRequest, err.Error())
			return
		}
	}

	category := config.NormalizeCategory(c.Query("category"))
	if category == "" {
		category = h.prefs.LastCategory(visitorID(c), section)
	}
	if config.GetCategory(section, category) == nil {
		category = config.DefaultCategory(section)
	}

	ctrl.Preset(mode, window)
	view, err := ctrl.Navigate(c.Request.Context(), category)
	switch {
	case err == nil:
		h.rememberCategory(c, view)
	case errors.Is(err, controller.ErrStale):
		// A newer navigation from the same visitor owns the container now.
		view = ctrl.View()
	default:
		// The error state is part of the view and rendered like any other.
		h.logger.WithError(err).WithField("section", section).Warn("Section page shows a failed load")
	}

	page := render.NewPage(view, ctrl.Catalog(), ctrl.States(), h.prefs.ShouldShowWelcome(visitorID(c)))
	html, err := h.renderer.RenderPage(page)
	if err != nil {
		h.logger.WithError(err).Error("Failed to render section page")
		c.String(http.StatusInternalServerError, "تعذر عرض الصفحة")
		return
	}
	c.Data(http.StatusOK, htmlContentType, []byte(html))
}

// DetailPage renders the page of one record.
func (h *Handler) DetailPage(c *gin.Context) {
	rec, meta, status, err := h.findRecord(c.Request.Context(), c.Param("section"), c.Param("category"), c.Param("id"))
	if err != nil {
		if status == http.StatusNotFound {
			c.String(status, "العقار غير موجود")
		} else {
			c.String(status, "تعذر تحميل البيانات، حاول مرة أخرى")
		}
		return
	}

	opts := h.cardOptions
	opts.Highlight = h.prefs.LastViewed(visitorID(c))
	html, err := h.renderer.RenderDetail(render.BuildDetail(rec, meta, opts))
	if err != nil {
		h.logger.WithError(err).Error("Failed to render detail page")
		c.String(http.StatusInternalServerError, "تعذر عرض الصفحة")
		return
	}
	c.Data(http.StatusOK, htmlContentType, []byte(html))
}
