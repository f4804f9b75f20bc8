package models

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"
)

// Placeholder is shown wherever a record leaves a field empty.
const Placeholder = "غير محدد"

// FlexString accepts JSON strings, numbers and booleans. Listing files are
// hand edited, so the same field is a string in one file and a number in the next.
type FlexString string

func (s *FlexString) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*s = ""
		return nil
	}

	switch data[0] {
	case '"':
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = FlexString(str)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*s = FlexString(strconv.FormatBool(b))
	case '{', '[':
		// Nested values are not rendered; keep the field empty.
		*s = ""
	default:
		var n json.Number
		if err := json.Unmarshal(data, &n); err != nil {
			return err
		}
		*s = FlexString(n.String())
	}
	return nil
}

func (s FlexString) String() string {
	return string(s)
}

// Truthy interprets yes/no style values ("true", "1", "نعم", "متوفر").
func (s FlexString) Truthy() bool {
	switch strings.ToLower(strings.TrimSpace(string(s))) {
	case "true", "1", "yes", "نعم", "متوفر", "يوجد":
		return true
	}
	return false
}

// Record is one listing or customer request file. Its identity is Filename;
// two files with identical content are still two records.
type Record struct {
	Section  string `json:"section"`
	Category string `json:"category"`
	Filename string `json:"filename"`
	ID       string `json:"id"`

	Title        FlexString `json:"title"`
	Type         FlexString `json:"type"`
	Price        FlexString `json:"price"`
	PriceDisplay FlexString `json:"price_display"`
	PriceMonthly FlexString `json:"price_monthly"`
	Budget       FlexString `json:"budget"`
	Area         FlexString `json:"area"`
	AreaDisplay  FlexString `json:"area_display"`
	Location     FlexString `json:"location"`
	Description  FlexString `json:"description"`
	Summary      FlexString `json:"summary"`
	MoreDetails  FlexString `json:"more_details"`
	Date         FlexString `json:"date"`
	DateAdded    FlexString `json:"date_added"`
	WhatsApp     FlexString `json:"whatsapp"`
	Direction    FlexString `json:"direction"`
	Floor        FlexString `json:"floor"`
	Rooms        FlexString `json:"rooms"`
	Bathrooms    FlexString `json:"bathrooms"`
	Elevator     FlexString `json:"elevator"`
	Garage       FlexString `json:"garage"`
	Finish       FlexString `json:"finish"`
	RefID        FlexString `json:"ref_id"`

	// Issues lists schema violations found when the file was fetched.
	Issues []string `json:"issues,omitempty"`
}

var dateLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	"2006/01/02",
	"02/01/2006",
	"02-01-2006",
}

// ParsedDate returns the record date, falling back to date_added. Records
// without a parseable date report ok=false.
func (r Record) ParsedDate() (time.Time, bool) {
	for _, raw := range []FlexString{r.Date, r.DateAdded} {
		if t, ok := parseDate(string(raw)); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func parseDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(foldDigits(raw))
	if raw == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// foldDigits maps Arabic-Indic and Eastern Arabic-Indic digits to ASCII.
func foldDigits(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= '٠' && r <= '٩':
			return '0' + (r - '٠')
		case r >= '۰' && r <= '۹':
			return '0' + (r - '۰')
		}
		return r
	}, s)
}

// DisplayPrice is the price shown on an offer card.
func (r Record) DisplayPrice() string {
	return firstNonEmpty(r.PriceDisplay, r.Price, r.PriceMonthly)
}

// DisplayArea is the area shown on a card.
func (r Record) DisplayArea() string {
	return firstNonEmpty(r.AreaDisplay, r.Area)
}

// DisplayID is the reference shown to customers.
func (r Record) DisplayID() string {
	if id := strings.TrimSpace(string(r.RefID)); id != "" {
		return id
	}
	return r.ID
}

// Malformed reports whether the record is missing data a card needs.
func (r Record) Malformed() bool {
	return strings.TrimSpace(string(r.Title)) == "" || len(r.Issues) > 0
}

// Normalize brings every text field to NFC and trims surrounding space.
func (r *Record) Normalize() {
	fields := []*FlexString{
		&r.Title, &r.Type, &r.Price, &r.PriceDisplay, &r.PriceMonthly, &r.Budget,
		&r.Area, &r.AreaDisplay, &r.Location, &r.Description, &r.Summary,
		&r.MoreDetails, &r.Date, &r.DateAdded, &r.WhatsApp, &r.Direction,
		&r.Floor, &r.Rooms, &r.Bathrooms, &r.Elevator, &r.Garage, &r.Finish, &r.RefID,
	}
	for _, f := range fields {
		*f = FlexString(strings.TrimSpace(norm.NFC.String(string(*f))))
	}
}

func firstNonEmpty(values ...FlexString) string {
	for _, v := range values {
		if s := strings.TrimSpace(string(v)); s != "" {
			return s
		}
	}
	return ""
}
