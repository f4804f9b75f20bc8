package render

import (
	"net/url"

	"samsar/server/internal/models"
)

// Link is a navigation entry of the filter and sort bars.
type Link struct {
	Label  string
	Icon   string
	URL    string
	Active bool
	State  models.LoadState
}

// Page is the data of a full section page.
type Page struct {
	Title       string
	SiteName    string
	LogoURL     string
	ShowWelcome bool
	Tabs        []Link
	Sorts       []Link
	Windows     []Link
	View        models.View
}

var (
	sortLabels = []struct {
		mode  models.SortMode
		label string
	}{
		{models.SortLatest, "الأحدث"},
		{models.SortOldest, "الأقدم"},
		{models.SortIndex, "الافتراضي"},
	}
	windowLabels = []struct {
		window models.DateWindow
		label  string
	}{
		{models.WindowAll, "كل الفترات"},
		{models.WindowLastWeek, "آخر أسبوع"},
		{models.WindowLastMonth, "آخر شهر"},
	}
)

// NewPage builds the navigation around view. states holds the load state of
// each category key.
func NewPage(view models.View, catalog []models.CategoryMeta, states map[string]models.LoadState, showWelcome bool) Page {
	page := Page{
		Title:       view.Label,
		ShowWelcome: showWelcome,
		View:        view,
	}

	for _, meta := range catalog {
		page.Tabs = append(page.Tabs, Link{
			Label:  meta.Label,
			Icon:   meta.Icon,
			URL:    SectionLink(view.Section, meta.Key, view.Sort, view.Window),
			Active: meta.Key == view.Category,
			State:  states[meta.Key],
		})
	}
	for _, s := range sortLabels {
		page.Sorts = append(page.Sorts, Link{
			Label:  s.label,
			URL:    SectionLink(view.Section, view.Category, s.mode, view.Window),
			Active: s.mode == view.Sort,
		})
	}
	for _, w := range windowLabels {
		page.Windows = append(page.Windows, Link{
			Label:  w.label,
			URL:    SectionLink(view.Section, view.Category, view.Sort, w.window),
			Active: w.window == view.Window,
		})
	}
	return page
}

// SectionLink is the page URL of a section with the given selection.
func SectionLink(section, category string, mode models.SortMode, window models.DateWindow) string {
	query := url.Values{}
	if category != "" {
		query.Set("category", category)
	}
	if mode != "" {
		query.Set("sort", string(mode))
	}
	if window != "" {
		query.Set("window", string(window))
	}
	link := "/sections/" + url.PathEscape(section)
	if encoded := query.Encode(); encoded != "" {
		link += "?" + encoded
	}
	return link
}
