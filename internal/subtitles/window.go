package subtitles

import (
	"slices"
	"strings"
)

// DefaultWindowSize is the number of tokens grouped per subtitle line.
const DefaultWindowSize = 10

// Window is the two-line view of a transcript: a frozen line that has
// scrolled out of the edit window and the live line still being updated.
type Window struct {
	LineBreak bool
	Frozen    []string
	Live      []string
}

// Tokenize splits text into words for space separated languages and into
// characters otherwise. An empty text yields no tokens.
func Tokenize(text string, usesSpace bool) []string {
	if text == "" {
		return nil
	}
	if usesSpace {
		return strings.Split(text, " ")
	}
	tokens := make([]string, 0, len(text))
	for _, r := range text {
		tokens = append(tokens, string(r))
	}
	return tokens
}

// Join is the inverse of Tokenize.
func Join(tokens []string, usesSpace bool) string {
	if usesSpace {
		return strings.Join(tokens, " ")
	}
	return strings.Join(tokens, "")
}

// Compute splits tokens into fixed blocks of size tokens. The trailing
// partial (or full) block is live; the block before it is the frozen
// candidate. LineBreak is set only when the candidate differs from
// prevFrozen, so repeated calls with the same input never break twice.
func Compute(tokens, prevFrozen []string, size int) Window {
	if size <= 0 {
		size = DefaultWindowSize
	}

	n := len(tokens)
	if n <= size {
		return Window{Frozen: nil, Live: tokens}
	}

	liveLen := n % size
	if liveLen == 0 {
		liveLen = size
	}
	liveStart := n - liveLen
	live := tokens[liveStart:]

	frozenStart := max(liveStart-size, 0)
	candidate := tokens[frozenStart:liveStart]

	if slices.Equal(candidate, prevFrozen) {
		return Window{Frozen: prevFrozen, Live: live}
	}
	return Window{LineBreak: true, Frozen: slices.Clone(candidate), Live: live}
}
