package domain

import (
	"strings"
	"time"
)

// Quote is a single catalog item: the text shown on a card together with
// the background image it is rendered over.
type Quote struct {
	// ID is the upstream page id.
	ID string

	// Content is the quote text.
	Content string

	// Title is the work the quote is taken from.
	Title string

	// Author is who said or wrote the quote.
	Author string

	// ImageURL is the background image location, empty when the page has none.
	ImageURL string

	// ImageExpiry is when ImageURL stops being valid. Nil for URLs that do
	// not expire.
	ImageExpiry *time.Time
}

// SameCard reports whether q and other render the same card. Background
// URLs are compared without their query, which presigned links rotate on
// every read.
func (q *Quote) SameCard(other *Quote) bool {
	return q.Content == other.Content &&
		q.Title == other.Title &&
		q.Author == other.Author &&
		imageKey(q.ImageURL) == imageKey(other.ImageURL)
}

func imageKey(url string) string {
	key, _, _ := strings.Cut(url, "?")
	return key
}

// StaleQuotes returns the ids in before that are gone from after or no
// longer render the same card.
func StaleQuotes(before, after []Quote) []string {
	next := make(map[string]*Quote, len(after))
	for i := range after {
		next[after[i].ID] = &after[i]
	}

	var stale []string

	for i := range before {
		if q, ok := next[before[i].ID]; !ok || !before[i].SameCard(q) {
			stale = append(stale, before[i].ID)
		}
	}

	return stale
}

// ImageExpired reports whether the background URL must be refreshed
// before it can be downloaded.
func (q *Quote) ImageExpired(now time.Time) bool {
	if q.ImageURL == "" {
		return true
	}

	return q.ImageExpiry != nil && !now.Before(*q.ImageExpiry)
}

// UnsetPosition is the position of a client that has never navigated.
const UnsetPosition = -1

// Client is a display device with its own shuffled deck.
type Client struct {
	ID              int64
	Name            string
	CurrentPosition int
	DefaultWidth    int
	DefaultHeight   int
	CreatedAt       time.Time
}

// ClientUpdate is a partial update; nil fields are left unchanged.
type ClientUpdate struct {
	Width    *int
	Height   *int
	Position *int
}

// Empty reports whether the update changes nothing.
func (u ClientUpdate) Empty() bool {
	return u.Width == nil && u.Height == nil && u.Position == nil
}

// Stats summarizes the catalog.
type Stats struct {
	QuoteCount  int `json:"quote_count"`
	ClientCount int `json:"client_count"`
}

// SyncResult reports what a catalog sync changed.
type SyncResult struct {
	Synced   int `json:"synced"`
	Skipped  int `json:"skipped"`
	Deleted  int `json:"deleted"`
	Appended int `json:"appended"`
}

// Direction is a navigation command within a client's deck.
type Direction int

// Navigation directions.
const (
	DirectionCurrent Direction = iota
	DirectionForward
	DirectionReverse
	DirectionRandom
)

// String returns the route name of the direction.
func (d Direction) String() string {
	switch d {
	case DirectionCurrent:
		return "current"
	case DirectionForward:
		return "next"
	case DirectionReverse:
		return "previous"
	case DirectionRandom:
		return "random"
	default:
		return "unknown"
	}
}

// ParseDirection accepts route names (next, previous) as well as the
// sequencer names (forward, reverse), case-insensitively.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "current":
		return DirectionCurrent, nil
	case "next", "forward":
		return DirectionForward, nil
	case "previous", "prev", "reverse":
		return DirectionReverse, nil
	case "random":
		return DirectionRandom, nil
	default:
		return 0, NewInvalidDirectionError(s)
	}
}

// Dimensions is a render target size in pixels.
type Dimensions struct {
	Width  int
	Height int
}
