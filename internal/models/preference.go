package models

import "time"

// Preference is the per-visitor state a browser would keep in local storage.
type Preference struct {
	VisitorID      string    `json:"visitor_id" gorm:"primaryKey;size:64"`
	LastViewedFile string    `json:"last_viewed_file"`
	LastSection    string    `json:"last_section"`
	LastCategory   string    `json:"last_category"`
	WelcomeShown   bool      `json:"welcome_shown"`
	UpdatedAt      time.Time `json:"updated_at"`
}
