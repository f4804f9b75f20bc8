package models

// Kind tells offers apart from customer requests.
type Kind string

const (
	KindOffer   Kind = "offer"
	KindRent    Kind = "rent"
	KindRequest Kind = "request"
)

// CategoryMeta describes how one category is labelled and styled.
type CategoryMeta struct {
	Key         string `json:"key"`
	Section     string `json:"section"`
	Label       string `json:"label"`
	Icon        string `json:"icon"`
	Color       string `json:"color"`
	Description string `json:"description"`
	DetailPage  string `json:"detail_page"`
	Kind        Kind   `json:"kind"`
}

// FeaturedSource is one category scanned for the home page.
type FeaturedSource struct {
	Section  string
	Category string
	Kind     Kind
}
