// Package sequencer implements per-client decks: a shuffled, persistent
// ordering over catalog items that grows by appending shuffled newcomers
// and is navigated with wraparound.
//
// Stored positions are sort keys. After deletions they may be sparse, so
// navigation always works on the logical index of an entry within the deck
// ordered by position, and on the count of surviving entries.
package sequencer

import (
	"errors"
	"math/rand/v2"
	"slices"

	"github.com/ditto-display/ditto/internal/domain"
)

// ErrEmptyDeck is returned when navigating a deck without entries.
var ErrEmptyDeck = errors.New("deck is empty")

// Source supplies randomness. *rand.Rand satisfies it.
type Source interface {
	IntN(n int) int
	Shuffle(n int, swap func(i, j int))
}

type globalSource struct{}

func (globalSource) IntN(n int) int                     { return rand.IntN(n) }
func (globalSource) Shuffle(n int, swap func(i, j int)) { rand.Shuffle(n, swap) }

// DefaultSource draws from the runtime's concurrency-safe generator.
func DefaultSource() Source {
	return globalSource{}
}

// Entry is one item in a client's deck.
type Entry struct {
	QuoteID  string
	Position int
}

// Deck is a client's entries ordered by position ascending.
type Deck []Entry

// NewDeck sorts entries into deck order.
func NewDeck(entries []Entry) Deck {
	d := slices.Clone(entries)
	slices.SortStableFunc(d, func(a, b Entry) int { return a.Position - b.Position })

	return d
}

// Len returns the number of surviving entries.
func (d Deck) Len() int {
	return len(d)
}

// At returns the quote id at logical index i.
func (d Deck) At(i int) string {
	return d[i].QuoteID
}

// MaxPosition returns the largest stored position, or -1 for an empty deck.
func (d Deck) MaxPosition() int {
	if len(d) == 0 {
		return -1
	}

	return d[len(d)-1].Position
}

// IDs returns the quote ids in deck order.
func (d Deck) IDs() []string {
	ids := make([]string, len(d))
	for i, e := range d {
		ids[i] = e.QuoteID
	}

	return ids
}

// Shuffle returns a uniformly shuffled copy of ids.
func Shuffle(ids []string, src Source) []string {
	out := slices.Clone(ids)
	src.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })

	return out
}

// Build lays out a fresh deck for a newly registered client: every id,
// shuffled, at positions 0..n-1.
func Build(ids []string, src Source) []Entry {
	return positioned(Shuffle(ids, src), 0)
}

// AppendNew returns entries for the ids in all that are missing from deck.
// Only the newcomers are shuffled, and they are placed after the deck's
// current maximum position so the existing order is untouched. The result
// is empty when nothing is new.
func AppendNew(deck Deck, all []string, src Source) []Entry {
	known := make(map[string]struct{}, len(deck))
	for _, e := range deck {
		known[e.QuoteID] = struct{}{}
	}

	var fresh []string

	for _, id := range all {
		if _, ok := known[id]; ok {
			continue
		}

		known[id] = struct{}{}
		fresh = append(fresh, id)
	}

	if len(fresh) == 0 {
		return nil
	}

	return positioned(Shuffle(fresh, src), deck.MaxPosition()+1)
}

func positioned(ids []string, start int) []Entry {
	entries := make([]Entry, len(ids))
	for i, id := range ids {
		entries[i] = Entry{QuoteID: id, Position: start + i}
	}

	return entries
}

// Advance computes the logical index a client moves to. position is the
// client's current logical index (or domain.UnsetPosition) and n the deck
// size. A position left beyond the end of a shrunken deck is clamped to
// the last entry before moving.
//
// From an unset position, CURRENT and FORWARD land on 0 and REVERSE on the
// last entry, one step behind where FORWARD starts, rather than the n-2
// that plain (p-1+n) mod n gives for -1.
func Advance(position, n int, dir domain.Direction, src Source) (int, error) {
	if n <= 0 {
		return position, ErrEmptyDeck
	}

	if position >= n {
		position = n - 1
	}

	switch dir {
	case domain.DirectionCurrent:
		if position < 0 {
			return 0, nil
		}

		return position, nil
	case domain.DirectionForward:
		if position < 0 {
			return 0, nil
		}

		return (position + 1) % n, nil
	case domain.DirectionReverse:
		if position < 0 {
			return n - 1, nil
		}

		return (position - 1 + n) % n, nil
	case domain.DirectionRandom:
		return src.IntN(n), nil
	default:
		return position, domain.NewInvalidDirectionError(dir.String())
	}
}
