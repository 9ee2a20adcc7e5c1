// Package layout fits text into pixel boxes: greedy word wrapping, the
// largest-size search for single lines and wrapped blocks, and the
// sentence-boundary truncation used when nothing fits.
//
// The engine never fails. Every fit returns some rendering, degrading the
// font size and then the text itself.
package layout

import (
	"math"
	"strings"
)

// Measurer reports the advance width in pixels of text at an integer pixel
// size. Implementations must measure with the face at exactly that size.
type Measurer interface {
	Measure(text string, size int) int
}

// LineSeparator joins wrapped lines.
const LineSeparator = "\n"

// sentenceBreak is where over-long text is cut.
const sentenceBreak = ". "

// Fitted is the result of fitting text into a box.
type Fitted struct {
	// Text is the wrapped (and possibly truncated) text.
	Text string
	// Size is the resolved font size in pixels.
	Size int
	// Truncations counts sentence cuts applied before the text fit.
	Truncations int
}

// Lines splits the fitted text into its wrapped lines.
func (f Fitted) Lines() []string {
	if f.Text == "" {
		return nil
	}

	return strings.Split(f.Text, LineSeparator)
}

// LineOptions bounds the size search for single-line text.
type LineOptions struct {
	MinSize int
	MaxSize int
	Step    int
}

// DefaultLineOptions matches the title and author fields.
func DefaultLineOptions() LineOptions {
	return LineOptions{MinSize: 24, MaxSize: 38, Step: 1}
}

// BoxOptions bounds the size search for wrapped text.
type BoxOptions struct {
	Spacing int
	MinSize int
	MaxSize int
	Step    int
	// MaxTruncations caps sentence cuts. Zero means DefaultMaxTruncations.
	MaxTruncations int
}

// DefaultMaxTruncations caps how many sentences are dropped before the
// engine gives up and wraps at the minimum size.
const DefaultMaxTruncations = 256

// DefaultBoxOptions matches the quote band.
func DefaultBoxOptions() BoxOptions {
	return BoxOptions{Spacing: 4, MinSize: 24, MaxSize: 96, Step: 2}
}

// WrapGreedy splits text on whitespace and packs words onto lines while the
// measured width at size stays within maxWidth. A word wider than maxWidth
// gets a line of its own; words are never broken. Text without words is
// returned unchanged.
func WrapGreedy(text string, m Measurer, size, maxWidth int) string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return text
	}

	lines := make([]string, 1, len(words))
	lines[0] = words[0]

	for _, word := range words[1:] {
		last := len(lines) - 1
		candidate := lines[last] + " " + word

		if m.Measure(candidate, size) > maxWidth {
			lines = append(lines, word)
			continue
		}

		lines[last] = candidate
	}

	return strings.Join(lines, LineSeparator)
}

// BlockHeight is the height of n wrapped lines at size with spacing below
// every line.
func BlockHeight(lines, size, spacing int) int {
	return lines * (size + spacing)
}

// FitSingleLineWidth returns the largest size in [MinSize, MaxSize] at which
// the unwrapped text fits maxWidth, or MinSize when none does.
func FitSingleLineWidth(text string, m Measurer, maxWidth int, opts LineOptions) int {
	opts.Step = max(opts.Step, 1)

	for size := topSize(opts.MinSize, opts.MaxSize, opts.Step); size >= opts.MinSize; size -= opts.Step {
		if m.Measure(text, size) <= maxWidth {
			return size
		}
	}

	return opts.MinSize
}

// FitMultilineBox returns the largest size at which text, wrapped to
// maxWidth, stacks within maxHeight. The search starts at
// min(MaxSize, maxWidth). When no size fits, the text is cut at its last
// sentence break and the search repeats; with no break left the text is
// wrapped at MinSize regardless of height.
func FitMultilineBox(text string, m Measurer, maxWidth, maxHeight int, opts BoxOptions) Fitted {
	opts.Step = max(opts.Step, 1)
	if opts.MaxTruncations <= 0 {
		opts.MaxTruncations = DefaultMaxTruncations
	}

	top := topSize(opts.MinSize, min(opts.MaxSize, maxWidth), opts.Step)

	for cuts := 0; ; cuts++ {
		for size := top; size >= opts.MinSize; size -= opts.Step {
			wrapped := WrapGreedy(text, m, size, maxWidth)
			lines := strings.Count(wrapped, LineSeparator) + 1

			if BlockHeight(lines, size, opts.Spacing) <= maxHeight {
				return Fitted{Text: wrapped, Size: size, Truncations: cuts}
			}
		}

		shorter, ok := TruncateAtSentence(text)
		if !ok || cuts >= opts.MaxTruncations {
			return Fitted{
				Text:        WrapGreedy(text, m, opts.MinSize, maxWidth),
				Size:        opts.MinSize,
				Truncations: cuts,
			}
		}

		text = shorter
	}
}

// TruncateAtSentence cuts text after the period of its last ". ". It
// reports false when text has no sentence break.
func TruncateAtSentence(text string) (string, bool) {
	idx := strings.LastIndex(text, sentenceBreak)
	if idx < 0 {
		return text, false
	}

	return text[:idx+1], true
}

// topSize is the largest size reachable from minSize in whole steps that
// does not exceed maxSize. It is below minSize when maxSize < minSize.
func topSize(minSize, maxSize, step int) int {
	if maxSize < minSize {
		return minSize - 1
	}

	return minSize + ((maxSize-minSize)/step)*step
}

// Lerp linearly interpolates between a and b. t is not clamped.
func Lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// StrokeOptions maps a font size to an outline width.
type StrokeOptions struct {
	Min      float64
	Max      float64
	Baseline int
}

// DefaultStrokeOptions grows the quote outline from 1px at 24px text.
func DefaultStrokeOptions() StrokeOptions {
	return StrokeOptions{Min: 1, Max: 4, Baseline: 24}
}

// StrokeWidth returns ceil(lerp(Min, Max, (size-Baseline)/Baseline)),
// never negative.
func StrokeWidth(size int, opts StrokeOptions) int {
	if opts.Baseline <= 0 {
		return int(math.Ceil(opts.Min))
	}

	t := float64(size-opts.Baseline) / float64(opts.Baseline)

	return max(int(math.Ceil(Lerp(opts.Min, opts.Max, t))), 0)
}
