package textsplit

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSplitEmptyText(t *testing.T) {
	t.Parallel()

	require.Empty(t, Split("", DefaultOptions()))
}

func TestSplitShortTextSingleChunk(t *testing.T) {
	t.Parallel()

	text := "short document"
	chunks := Split(text, DefaultOptions())
	require.Len(t, chunks, 1)
	require.Equal(t, text, chunks[0].Text)
	require.Equal(t, 0, chunks[0].Start)
	require.Equal(t, len(text), chunks[0].End)
}

func TestSplitUniformTextChunkStarts(t *testing.T) {
	t.Parallel()

	// No whitespace and no paragraph breaks, so every cut is a hard cut and
	// the arithmetic is exact: starts advance by size minus overlap.
	text := strings.Repeat("a", 1000)
	chunks := Split(text, Options{ChunkSize: 300, Overlap: 50, BoundaryWindow: 20, RespectParagraphs: true})

	starts := make([]int, len(chunks))
	for i, c := range chunks {
		starts[i] = c.Start
	}
	require.Equal(t, []int{0, 250, 500, 750}, starts)
	require.Equal(t, 1000, chunks[len(chunks)-1].End)
}

func TestSplitOverlapCarriesTail(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("b", 900)
	chunks := Split(text, Options{ChunkSize: 300, Overlap: 100})
	require.Greater(t, len(chunks), 1)

	for i := 1; i < len(chunks); i++ {
		prev, cur := chunks[i-1], chunks[i]
		require.Equal(t, prev.End-100, cur.Start, "chunk %d should start overlap bytes before the previous end", i)
		require.Equal(t, text[prev.End-100:prev.End], cur.Text[:100])
	}
}

func TestSplitStartsStrictlyIncrease(t *testing.T) {
	t.Parallel()

	// Overlap equal to size would stall the cursor; it must be clamped so
	// progress is still made.
	text := strings.Repeat("c", 500)
	chunks := Split(text, Options{ChunkSize: 100, Overlap: 100})
	require.NotEmpty(t, chunks)
	for i := 1; i < len(chunks); i++ {
		require.Greater(t, chunks[i].Start, chunks[i-1].Start)
	}
	require.Equal(t, 500, chunks[len(chunks)-1].End)
}

func TestSplitSnapsToParagraphStart(t *testing.T) {
	t.Parallel()

	para1 := strings.Repeat("x", 95)
	para2 := strings.Repeat("y", 200)
	text := para1 + "\n\n" + para2

	chunks := Split(text, Options{ChunkSize: 100, Overlap: 0, BoundaryWindow: 20, RespectParagraphs: true})
	require.GreaterOrEqual(t, len(chunks), 2)
	// The paragraph break at offset 97 is within the look-ahead window of the
	// proposed cut at 100, so the first chunk ends at the paragraph start.
	require.Equal(t, 97, chunks[0].End)
	require.Equal(t, 97, chunks[1].Start)
}

func TestSplitPrefersWhitespaceOverMidWordCut(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("word ", 100)
	chunks := Split(text, Options{ChunkSize: 42, Overlap: 0, BoundaryWindow: 10})
	for _, c := range chunks[:len(chunks)-1] {
		last := c.Text[len(c.Text)-1]
		require.Truef(t, last == ' ' || last == 'd', "chunk should end on a word boundary, got %q", c.Text)
	}
}

func TestSplitPositionsAndCoverage(t *testing.T) {
	t.Parallel()

	text := strings.Repeat("hello world. ", 200)
	chunks := Split(text, Options{ChunkSize: 250, Overlap: 50, BoundaryWindow: 30})

	require.Equal(t, 0, chunks[0].Start)
	require.Equal(t, len(text), chunks[len(chunks)-1].End)
	for i, c := range chunks {
		require.Equal(t, i, c.Position)
		require.Equal(t, text[c.Start:c.End], c.Text)
		if i > 0 {
			// No gaps: every byte is covered by at least one chunk.
			require.LessOrEqual(t, c.Start, chunks[i-1].End)
		}
	}
}
