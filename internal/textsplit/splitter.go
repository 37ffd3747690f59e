// Package textsplit segments normalized text into bounded, overlapping
// chunks whose cut points prefer paragraph breaks and whitespace over
// mid-word cuts.
package textsplit

import "strings"

// Options tunes Split.
type Options struct {
	// ChunkSize is the target chunk length in bytes. Values < 1 become 1.
	ChunkSize int
	// Overlap is how many bytes of the previous chunk's tail reappear at
	// the head of the next chunk. Clamped to [0, ChunkSize-1].
	Overlap int
	// BoundaryWindow bounds how far a proposed cut may move to reach a
	// paragraph break or whitespace.
	BoundaryWindow int
	// RespectParagraphs prefers snapping cuts to paragraph starts
	// (offsets following "\n\n") within the look-ahead window.
	RespectParagraphs bool
}

// DefaultOptions mirror the documented chunking defaults.
func DefaultOptions() Options {
	return Options{ChunkSize: 1000, Overlap: 100, BoundaryWindow: 50, RespectParagraphs: true}
}

// Chunk is one ordered segment of a document. Start offsets strictly
// increase across the sequence a Split returns.
type Chunk struct {
	Position int
	Start    int
	End      int
	Text     string
}

// Split cuts text greedily. For each chunk it proposes end = start+size,
// snaps to a nearby paragraph start or whitespace when possible, then
// advances start to end-overlap. The next start is never allowed at or
// before the current one, so splitting terminates for every input.
// Empty text yields an empty sequence.
func Split(text string, opts Options) []Chunk {
	if text == "" {
		return nil
	}
	size := opts.ChunkSize
	if size < 1 {
		size = 1
	}
	overlap := opts.Overlap
	if overlap < 0 {
		overlap = 0
	}
	if overlap > size-1 {
		overlap = size - 1
	}

	var paraStarts map[int]struct{}
	if opts.RespectParagraphs {
		paraStarts = paragraphStarts(text)
	}

	n := len(text)
	chunks := make([]Chunk, 0, n/size+1)
	start := 0
	for start < n {
		tentative := start + size
		if tentative > n {
			tentative = n
		}
		end := findBoundary(text, start, tentative, opts.BoundaryWindow, paraStarts)
		if end <= start {
			// Boundary search went nowhere useful; hard cut.
			end = tentative
			if end <= start {
				break
			}
		}

		chunks = append(chunks, Chunk{
			Position: len(chunks),
			Start:    start,
			End:      end,
			Text:     text[start:end],
		})
		if end >= n {
			break
		}

		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return chunks
}

// paragraphStarts records the offset of the first byte after each "\n\n",
// plus offset 0.
func paragraphStarts(s string) map[int]struct{} {
	starts := map[int]struct{}{0: {}}
	for i := 0; ; {
		j := strings.Index(s[i:], "\n\n")
		if j < 0 {
			break
		}
		starts[i+j+2] = struct{}{}
		i += j + 2
	}
	return starts
}

// findBoundary picks the best cut at or near tentative: a paragraph start
// slightly to the right, else whitespace scanning left then right, else the
// tentative position itself.
func findBoundary(s string, start, tentative, window int, paraStarts map[int]struct{}) int {
	n := len(s)
	if paraStarts != nil {
		for off := 0; off <= window; off++ {
			cand := tentative + off
			if cand > n {
				break
			}
			if _, ok := paraStarts[cand]; ok {
				return cand
			}
		}
	}

	left := tentative - window
	if left < start+1 {
		left = start + 1
	}
	for i := tentative; i >= left; i-- {
		if i > 0 && i <= n && isSpace(s[i-1]) {
			return i
		}
	}

	right := tentative + window
	if right > n {
		right = n
	}
	for i := tentative; i < right; i++ {
		if isSpace(s[i]) {
			return i
		}
	}

	if tentative > n {
		return n
	}
	return tentative
}

func isSpace(b byte) bool {
	switch b {
	case ' ', '\t', '\n', '\r', '\v', '\f':
		return true
	}
	return false
}
