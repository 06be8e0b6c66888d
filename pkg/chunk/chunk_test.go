package chunk

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSplitterValidates(t *testing.T) {
	_, err := NewSplitter(0, 0.1)
	assert.Error(t, err)

	_, err = NewSplitter(100, 1.0)
	assert.Error(t, err)

	_, err = NewSplitter(100, -0.1)
	assert.Error(t, err)

	_, err = NewSplitter(100, 0.1)
	assert.NoError(t, err)
}

func TestSplitFitsInOneChunk(t *testing.T) {
	s, err := NewSplitter(100, 0.1)
	require.NoError(t, err)

	doc := Document{Text: "short document"}
	chunks := s.Split(doc)
	require.Len(t, chunks, 1)
	assert.Equal(t, doc.Text, chunks[0].Text)
	assert.Equal(t, 0, chunks[0].CharStart)
	assert.Equal(t, len(doc.Text), chunks[0].CharEnd)
}

func TestSplitProducesOverlappingChunks(t *testing.T) {
	s, err := NewSplitter(10, 0.2)
	require.NoError(t, err)

	text := strings.Repeat("a", 25)
	doc := Document{Text: text}
	chunks := s.Split(doc)
	require.Greater(t, len(chunks), 1)

	for i, c := range chunks {
		assert.Equal(t, text[c.CharStart:c.CharEnd], c.Text)
		if i > 0 {
			assert.Less(t, c.CharStart, chunks[i-1].CharEnd, "chunks must overlap")
		}
	}
	assert.Equal(t, len(text), chunks[len(chunks)-1].CharEnd, "last chunk reaches end of document")
}

func TestSplitCoversEntireDocument(t *testing.T) {
	s, err := NewSplitter(7, 0.0)
	require.NoError(t, err)

	text := strings.Repeat("x", 20)
	chunks := s.Split(Document{Text: text})

	var rebuilt strings.Builder
	seen := 0
	for _, c := range chunks {
		if c.CharStart >= seen {
			rebuilt.WriteString(text[seen:c.CharEnd])
			seen = c.CharEnd
		}
	}
	assert.Equal(t, text, rebuilt.String())
}

func TestPageAtTracksBreaks(t *testing.T) {
	doc := Document{Text: "abcdefghij", PageBreaks: []int{3, 7}}
	assert.Equal(t, 1, doc.PageAt(0))
	assert.Equal(t, 1, doc.PageAt(2))
	assert.Equal(t, 2, doc.PageAt(3))
	assert.Equal(t, 2, doc.PageAt(6))
	assert.Equal(t, 3, doc.PageAt(7))
	assert.Equal(t, 3, doc.PageAt(9))
}

func TestSplitAssignsChunkPages(t *testing.T) {
	s, err := NewSplitter(5, 0.0)
	require.NoError(t, err)

	doc := Document{Text: strings.Repeat("y", 15), PageBreaks: []int{5, 10}}
	chunks := s.Split(doc)
	require.Len(t, chunks, 3)
	assert.Equal(t, []int{1}, chunks[0].Pages)
	assert.Equal(t, []int{2}, chunks[1].Pages)
	assert.Equal(t, []int{3}, chunks[2].Pages)
}

func TestNewExtractorPicksByExtension(t *testing.T) {
	assert.IsType(t, CSVExtractor{}, NewExtractor("paper.csv"))
	assert.IsType(t, CSVExtractor{}, NewExtractor("PAPER.CSV"))
	assert.IsType(t, PDFExtractor{}, NewExtractor("paper.pdf"))
}
