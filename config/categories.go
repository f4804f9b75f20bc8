package config

import (
	"regexp"
	"strings"

	"samsar/server/internal/models"

	"golang.org/x/text/cases"
)

const (
	SectionProperties = "properties"
	SectionRequests   = "requests"
)

// Categories lists, per section, the categories offered in the filter bar.
// The first category of a section is its default.
var Categories = map[string][]models.CategoryMeta{
	SectionProperties: {
		{Key: "apartments", Label: "شقق للبيع", Icon: "🏠", Color: "#00ff88", Description: "شقق سكنية فاخرة"},
		{Key: "apartments-rent", Label: "شقق للإيجار", Icon: "🏡", Color: "#00ccff", Description: "شقق للإيجار الشهري"},
		{Key: "shops", Label: "محلات تجارية", Icon: "🏪", Color: "#ff6b35", Description: "محلات ومساحات تجارية"},
		{Key: "offices", Label: "مكاتب إدارية", Icon: "🏢", Color: "#8b5cf6", Description: "مكاتب ومساحات عمل"},
		{Key: "admin-hq", Label: "مقرات إدارية", Icon: "🏛️", Color: "#f59e0b", Description: "مقرات ومباني إدارية"},
	},
	SectionRequests: {
		{Key: "apartments", Label: "مطلوب شقق شراء", Icon: "🏙️", Color: "#0a84ff", Description: "عملاء يبحثون عن شقق للشراء"},
		{Key: "apartments-rent", Label: "مطلوب شقق إيجار", Icon: "🔑", Color: "#0a84ff", Description: "عملاء يبحثون عن شقق للإيجار"},
		{Key: "shops", Label: "مطلوب محلات", Icon: "🛍️", Color: "#0a84ff", Description: "عملاء يبحثون عن محلات"},
		{Key: "offices", Label: "مطلوب مكاتب", Icon: "💼", Color: "#0a84ff", Description: "عملاء يبحثون عن مكاتب"},
		{Key: "admin-hq", Label: "مطلوب مقرات إدارية", Icon: "🏦", Color: "#0a84ff", Description: "عملاء يبحثون عن مقرات إدارية"},
	},
}

// FeaturedSources are scanned for the home page highlights.
var FeaturedSources = []models.FeaturedSource{
	{Section: SectionProperties, Category: "apartments", Kind: models.KindOffer},
	{Section: SectionProperties, Category: "apartments-rent", Kind: models.KindOffer},
	{Section: SectionProperties, Category: "offices", Kind: models.KindOffer},
	{Section: SectionProperties, Category: "shops", Kind: models.KindOffer},
	{Section: SectionRequests, Category: "apartments", Kind: models.KindRequest},
	{Section: SectionRequests, Category: "offices", Kind: models.KindRequest},
}

// Sections returns the known section names in display order.
func Sections() []string {
	return []string{SectionProperties, SectionRequests}
}

// CategoriesFor returns the catalog of a section with Section, Kind and
// DetailPage filled in. Unknown sections yield nil.
func CategoriesFor(section string) []models.CategoryMeta {
	list, ok := Categories[section]
	if !ok {
		return nil
	}
	out := make([]models.CategoryMeta, len(list))
	for i, meta := range list {
		meta.Section = section
		meta.Kind, meta.DetailPage = kindOf(section, meta.Key)
		out[i] = meta
	}
	return out
}

// GetCategory returns a category by section and key
func GetCategory(section, key string) *models.CategoryMeta {
	for _, meta := range CategoriesFor(section) {
		if meta.Key == key {
			return &meta
		}
	}
	return nil
}

// DefaultCategory returns the category shown when none is selected.
func DefaultCategory(section string) string {
	list := Categories[section]
	if len(list) == 0 {
		return ""
	}
	return list[0].Key
}

func kindOf(section, key string) (models.Kind, string) {
	if section == SectionRequests {
		return models.KindRequest, "request-details"
	}
	if key == "apartments-rent" {
		return models.KindRent, "details"
	}
	return models.KindOffer, "details"
}

var (
	separators = regexp.MustCompile(`[\s_]+`)
	dashes     = regexp.MustCompile(`-{2,}`)
	folder     = cases.Fold()
)

// NormalizeCategory turns user input such as "Apartments Rent" into the
// catalog key "apartments-rent".
func NormalizeCategory(raw string) string {
	s := folder.String(strings.TrimSpace(raw))
	s = strings.NewReplacer("'", "", "’", "").Replace(s)
	s = separators.ReplaceAllString(s, "-")
	s = dashes.ReplaceAllString(s, "-")
	return strings.Trim(s, "-")
}
