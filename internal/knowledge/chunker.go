package knowledge

import "fmt"

// Default chunking geometry, in runes.
const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 50
)

// boundaryWindow caps how far a cut backtracks looking for a natural
// break before giving up and cutting mid-token.
const boundaryWindow = 100

// separators are tried in order when snapping a cut: paragraph break,
// line break, sentence end, word gap.
var separators = []string{"\n\n", "\n", ". ", " "}

// Chunk is one window of a split document. IDs derive from the parent
// file identifier plus the chunk ordinal, so re-splitting identical
// content yields identical ids.
type Chunk struct {
	ID      string
	Ordinal int
	Text    string
}

// SplitDocument splits content into ordered overlapping windows of at most
// size runes. Each chunk after the first starts overlap runes before the
// end of the previous one. Cuts snap to the nearest separator within
// boundaryWindow runes of the window edge when one exists.
func SplitDocument(parentID, content string, size, overlap int) []Chunk {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size - 1
	}

	runes := []rune(content)
	if len(runes) == 0 {
		return nil
	}

	var chunks []Chunk
	start := 0
	for ordinal := 0; ; ordinal++ {
		end := start + size
		if end >= len(runes) {
			chunks = append(chunks, newChunk(parentID, ordinal, runes[start:]))
			return chunks
		}
		end = snapToBoundary(runes, start+overlap, end)
		chunks = append(chunks, newChunk(parentID, ordinal, runes[start:end]))
		start = end - overlap
	}
}

func newChunk(parentID string, ordinal int, text []rune) Chunk {
	return Chunk{
		ID:      fmt.Sprintf("%s-%d", parentID, ordinal),
		Ordinal: ordinal,
		Text:    string(text),
	}
}

// snapToBoundary moves end back to just after the nearest separator, never
// to floor or earlier so every chunk advances past the previous overlap.
func snapToBoundary(runes []rune, floor, end int) int {
	lo := end - boundaryWindow
	if lo < floor {
		lo = floor
	}
	for _, sep := range separators {
		if p := lastCutBefore(runes, sep, lo, end); p > 0 {
			return p
		}
	}
	return end
}

// lastCutBefore returns the cut position just after the last occurrence of
// sep ending within (lo, end], or -1 when sep does not occur there.
func lastCutBefore(runes []rune, sep string, lo, end int) int {
	sepRunes := []rune(sep)
	n := len(sepRunes)
	for p := end; p > lo; p-- {
		if p-n < 0 {
			break
		}
		if string(runes[p-n:p]) == sep {
			return p
		}
	}
	return -1
}
