package render

import (
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"samsar/server/internal/models"
)

const (
	summaryLimit   = 160
	minPhoneDigits = 8

	noSummary     = "لا يوجد وصف مختصر."
	noDescription = "لا يوجد وصف"
	noDate        = "غير متوفر"
)

// CardOptions carries the site-wide values a card needs.
type CardOptions struct {
	DefaultPhone string
	LogoURL      string
	SiteURL      string

	// Filename of the visitor's last interacted record
	Highlight string
}

// BuildCard maps a record to its card. It never fails; missing values become
// placeholders and the card is flagged malformed.
func BuildCard(rec models.Record, meta models.CategoryMeta, opts CardOptions) models.Card {
	kind := meta.Kind
	if kind == "" {
		kind = models.KindOffer
	}

	card := models.Card{
		ID:            rec.ID,
		Filename:      rec.Filename,
		Section:       meta.Section,
		Category:      meta.Key,
		CategoryLabel: meta.Label,
		CategoryIcon:  meta.Icon,
		AccentColor:   meta.Color,
		LogoURL:       opts.LogoURL,
		Kind:          kind,
		KindLabel:     kindLabel(kind),
		Title:         orPlaceholder(string(rec.Title)),
		Description:   truncate(firstText(noSummary, rec.Summary, rec.Description), summaryLimit),
		DetailURL:     DetailLink(opts.SiteURL, meta.DetailPage, meta.Key, rec.ID),
		Highlighted:   opts.Highlight != "" && rec.Filename == opts.Highlight,
		Malformed:     rec.Malformed(),
	}

	phone := contactPhone(rec.WhatsApp, opts.DefaultPhone)
	if kind == models.KindRequest {
		card.Rows = requestRows(rec)
		card.ActionLabel = "لدي عرض مناسب"
		card.WhatsAppURL = WhatsAppLink(phone, RequestMessage(rec))
	} else {
		card.Rows = offerRows(rec)
		card.ActionLabel = "عرض التفاصيل"
		card.WhatsAppURL = WhatsAppLink(phone, OfferMessage(rec))
	}
	return card
}

func offerRows(rec models.Record) []models.DetailRow {
	rows := []models.DetailRow{
		{Icon: "💰", Label: "السعر", Value: orPlaceholder(rec.DisplayPrice()), Highlight: true},
		{Icon: "📏", Label: "المساحة", Value: orPlaceholder(rec.DisplayArea())},
		{Icon: "📍", Label: "الموقع", Value: orPlaceholder(string(rec.Location))},
	}
	if date := strings.TrimSpace(string(rec.Date)); date != "" {
		rows = append(rows, models.DetailRow{Icon: "📅", Label: "تاريخ الإضافة", Value: date})
	}
	return rows
}

func requestRows(rec models.Record) []models.DetailRow {
	rows := []models.DetailRow{
		{Icon: "💰", Label: "الميزانية", Value: orPlaceholder(string(rec.Budget)), Highlight: true},
		{Icon: "📏", Label: "المساحة", Value: orPlaceholder(rec.DisplayArea())},
	}
	if loc := strings.TrimSpace(string(rec.Location)); loc != "" {
		rows = append(rows, models.DetailRow{Icon: "📍", Label: "الموقع", Value: loc})
	}
	if date := strings.TrimSpace(string(rec.Date)); date != "" {
		rows = append(rows, models.DetailRow{Icon: "📅", Label: "تاريخ الطلب", Value: date})
	}
	return rows
}

// BuildDetail maps a record to its detail page.
func BuildDetail(rec models.Record, meta models.CategoryMeta, opts CardOptions) models.Detail {
	card := BuildCard(rec, meta, opts)
	card.Description = firstText(noDescription, rec.Description, rec.Summary)

	detail := models.Detail{
		Card:        card,
		DisplayID:   rec.DisplayID(),
		MoreDetails: strings.TrimSpace(string(rec.MoreDetails)),
		Date:        firstText(noDate, rec.Date, rec.DateAdded),
		BackURL:     "/sections/" + url.PathEscape(meta.Section) + "?" + url.Values{"category": {meta.Key}}.Encode(),
	}

	if card.Kind == models.KindRequest {
		detail.Facts = []models.DetailRow{
			{Icon: "💰", Label: "ميزانية العميل", Value: orPlaceholder(string(rec.Budget)), Highlight: true},
			{Icon: "📂", Label: "نوع الطلب", Value: orPlaceholder(meta.Label)},
			{Icon: "📏", Label: "المساحة المطلوبة", Value: orPlaceholder(rec.DisplayArea())},
			{Icon: "📍", Label: "الموقع", Value: orPlaceholder(string(rec.Location))},
		}
		return detail
	}

	detail.Facts = []models.DetailRow{
		{Icon: "💰", Label: "السعر", Value: orPlaceholder(rec.DisplayPrice()), Highlight: true},
		{Icon: "📏", Label: "المساحة", Value: orPlaceholder(rec.DisplayArea())},
		{Icon: "🛏️", Label: "عدد الغرف", Value: orPlaceholder(string(rec.Rooms))},
		{Icon: "🛁", Label: "عدد الحمامات", Value: orPlaceholder(string(rec.Bathrooms))},
		{Icon: "🏢", Label: "الدور", Value: orPlaceholder(string(rec.Floor))},
		{Icon: "🛗", Label: "مصعد", Value: yesNo(rec.Elevator, "نعم", "لا")},
		{Icon: "🚗", Label: "جراج", Value: yesNo(rec.Garage, "متوفر", "غير متوفر")},
		{Icon: "🎨", Label: "التشطيب", Value: orPlaceholder(string(rec.Finish))},
		{Icon: "🧭", Label: "الاتجاه", Value: orPlaceholder(string(rec.Direction))},
	}
	return detail
}

// OfferMessage is the prefilled WhatsApp text for an offer.
func OfferMessage(rec models.Record) string {
	return "أريد الاستفسار عن " + strings.TrimSpace(string(rec.Title)) + " - رقم العقار المرجعي: " + rec.DisplayID()
}

// RequestMessage is the prefilled WhatsApp text for a customer request.
func RequestMessage(rec models.Record) string {
	return "مرحبًا، لدي عرض مناسب لهذا الطلب: " + strings.TrimSpace(string(rec.Title))
}

// WhatsAppLink builds a wa.me deep link. Spaces are encoded as %20.
func WhatsAppLink(phone, message string) string {
	return "https://wa.me/" + phone + "?text=" + strings.ReplaceAll(url.QueryEscape(message), "+", "%20")
}

// DetailLink builds {site}/{page}.html?category=C&id=ID.
func DetailLink(siteURL, page, category, id string) string {
	if page == "" {
		page = "details"
	}
	query := url.Values{"category": {category}, "id": {id}}
	return strings.TrimRight(siteURL, "/") + "/" + page + ".html?" + query.Encode()
}

// contactPhone uses the record's number when it has enough digits.
func contactPhone(raw models.FlexString, fallback string) string {
	if digits := onlyDigits(string(raw)); len(digits) >= minPhoneDigits {
		return digits
	}
	return onlyDigits(fallback)
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			b.WriteRune(r)
		case r >= '٠' && r <= '٩':
			b.WriteRune('0' + (r - '٠'))
		}
	}
	return b.String()
}

func kindLabel(kind models.Kind) string {
	switch kind {
	case models.KindRequest:
		return "طلب عميل جاد"
	case models.KindRent:
		return "عرض إيجار"
	default:
		return "عرض بيع"
	}
}

func orPlaceholder(s string) string {
	if s = strings.TrimSpace(s); s == "" {
		return models.Placeholder
	}
	return s
}

func yesNo(v models.FlexString, yes, no string) string {
	if v.Truthy() {
		return yes
	}
	return no
}

func firstText(fallback string, values ...models.FlexString) string {
	for _, v := range values {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return fallback
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	cut := strings.TrimRightFunc(string(runes[:limit]), unicode.IsSpace)
	return cut + "…"
}
