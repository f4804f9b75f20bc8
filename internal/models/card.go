package models

// DetailRow is one labelled line on a card.
type DetailRow struct {
	Icon      string `json:"icon"`
	Label     string `json:"label"`
	Value     string `json:"value"`
	Highlight bool   `json:"highlight,omitempty"`
}

// Card is the renderable description of one record. Values are plain text;
// escaping happens when the card is rendered.
type Card struct {
	ID            string      `json:"id"`
	Filename      string      `json:"filename"`
	Section       string      `json:"section"`
	Category      string      `json:"category"`
	CategoryLabel string      `json:"category_label"`
	CategoryIcon  string      `json:"category_icon"`
	AccentColor   string      `json:"accent_color"`
	LogoURL       string      `json:"logo_url"`
	Kind          Kind        `json:"kind"`
	KindLabel     string      `json:"kind_label"`
	Title         string      `json:"title"`
	Rows          []DetailRow `json:"rows"`
	Description   string      `json:"description"`
	WhatsAppURL   string      `json:"whatsapp_url"`
	DetailURL     string      `json:"detail_url"`
	ActionLabel   string      `json:"action_label"`
	Highlighted   bool        `json:"highlighted"`
	Malformed     bool        `json:"malformed,omitempty"`
}

// Detail is the full page for one record.
type Detail struct {
	Card
	DisplayID   string      `json:"display_id"`
	Facts       []DetailRow `json:"facts"`
	MoreDetails string      `json:"more_details,omitempty"`
	Date        string      `json:"date"`
	BackURL     string      `json:"back_url"`
}
