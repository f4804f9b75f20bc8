package models

import (
	"fmt"
	"time"
)

// LoadState is the per-category state of a controller.
type LoadState int

const (
	StateIdle LoadState = iota
	StateLoading
	StateLoaded
	StateError
)

func (s LoadState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateLoading:
		return "loading"
	case StateLoaded:
		return "loaded"
	case StateError:
		return "error"
	default:
		return "unknown"
	}
}

func (s LoadState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SortMode orders records inside a category.
type SortMode string

const (
	SortLatest SortMode = "latest"
	SortOldest SortMode = "oldest"
	SortIndex  SortMode = "index"
)

// ParseSortMode validates a sort mode coming from a request.
func ParseSortMode(s string) (SortMode, error) {
	switch SortMode(s) {
	case SortLatest, SortOldest, SortIndex:
		return SortMode(s), nil
	case "":
		return SortLatest, nil
	}
	return "", fmt.Errorf("unknown sort mode %q", s)
}

// DateWindow restricts records to a recent period.
type DateWindow string

const (
	WindowAll       DateWindow = "all"
	WindowLastWeek  DateWindow = "last_week"
	WindowLastMonth DateWindow = "last_month"
)

// ParseDateWindow validates a date window coming from a request.
func ParseDateWindow(s string) (DateWindow, error) {
	switch DateWindow(s) {
	case WindowAll, WindowLastWeek, WindowLastMonth:
		return DateWindow(s), nil
	case "":
		return WindowAll, nil
	}
	return "", fmt.Errorf("unknown date window %q", s)
}

// Days returns the length of the window, zero meaning unbounded.
func (w DateWindow) Days() int {
	switch w {
	case WindowLastWeek:
		return 7
	case WindowLastMonth:
		return 30
	}
	return 0
}

// NoticeLevel classifies a user-visible notice.
type NoticeLevel string

const (
	NoticeSuccess NoticeLevel = "success"
	NoticeInfo    NoticeLevel = "info"
	NoticeWarning NoticeLevel = "warning"
	NoticeError   NoticeLevel = "error"
)

// Notice is a transient message shown next to the cards.
type Notice struct {
	Level   NoticeLevel `json:"level"`
	Message string      `json:"message"`
}

// View is everything the page container shows at one moment. A controller
// replaces its View as a whole and never edits a published one.
type View struct {
	Section    string     `json:"section"`
	Category   string     `json:"category"`
	Label      string     `json:"label"`
	Sort       SortMode   `json:"sort"`
	Window     DateWindow `json:"window"`
	State      LoadState  `json:"state"`
	Generation uint64     `json:"generation"`
	Total      int        `json:"total"`
	Cards      []Card     `json:"cards"`
	Notice     *Notice    `json:"notice,omitempty"`
	Offline    bool       `json:"offline,omitempty"`
	HTML       string     `json:"html"`
	RenderedAt time.Time  `json:"rendered_at"`
}

// WithNotice returns a copy of v carrying n.
func (v View) WithNotice(n *Notice) View {
	v.Notice = n
	return v
}
