package domain

import "time"

type WindowKind string

const (
	WindowShort  WindowKind = "short"
	WindowWeekly WindowKind = "weekly"
)

func (k WindowKind) Valid() bool {
	switch k {
	case WindowShort, WindowWeekly:
		return true
	default:
		return false
	}
}

type UsageWindow struct {
	UsedPercent float64
	ResetsAt    time.Time
	CapturedAt  time.Time
}

// UsageSnapshot holds the latest successfully fetched quota windows for one
// account. A failed poll keeps the previous windows and stamps StaleSince
// instead of clearing them.
type UsageSnapshot struct {
	Plan       string
	Short      *UsageWindow
	Weekly     *UsageWindow
	StaleSince time.Time
}

func (s UsageSnapshot) Stale() bool {
	return !s.StaleSince.IsZero()
}

func (s UsageSnapshot) Empty() bool {
	return s.Short == nil && s.Weekly == nil
}

func (s UsageSnapshot) Window(kind WindowKind) *UsageWindow {
	switch kind {
	case WindowShort:
		return s.Short
	case WindowWeekly:
		return s.Weekly
	default:
		return nil
	}
}
