// Package chunk splits extracted paper text into overlapping windows sized
// for a particular reviewer component, while preserving page→offset
// bookkeeping so downstream claim provenance can reference positions in the
// original document rather than the chunk.
package chunk

import "fmt"

// Document is the plain-text result of extracting a paper file. PageBreaks
// holds, for each page after the first, the character offset into Text at
// which that page begins. A single-page or pageless source (e.g. CSV) has
// an empty PageBreaks.
type Document struct {
	Text       string
	PageBreaks []int
}

// PageAt returns the 1-based page number containing character offset pos.
func (d Document) PageAt(pos int) int {
	page := 1
	for _, brk := range d.PageBreaks {
		if pos < brk {
			break
		}
		page++
	}
	return page
}

// Chunk is a window of a Document's text, carrying enough positional
// metadata to translate any offset within it back to the original document.
type Chunk struct {
	Text      string
	CharStart int // offset of Text[0] in the original Document
	CharEnd   int // exclusive
	Pages     []int
}

// Splitter divides a Document into Chunks no longer than Threshold
// characters, overlapping consecutive chunks by Overlap (a fraction of
// Threshold, e.g. 0.1 for 10%).
type Splitter struct {
	Threshold int
	Overlap   float64
}

// NewSplitter validates its arguments; Overlap must be in [0, 1).
func NewSplitter(threshold int, overlap float64) (Splitter, error) {
	if threshold <= 0 {
		return Splitter{}, fmt.Errorf("chunk: threshold must be positive, got %d", threshold)
	}
	if overlap < 0 || overlap >= 1 {
		return Splitter{}, fmt.Errorf("chunk: overlap must be in [0,1), got %f", overlap)
	}
	return Splitter{Threshold: threshold, Overlap: overlap}, nil
}

// Split returns one Chunk if doc.Text fits under Threshold, otherwise a
// sequence of overlapping Chunks covering the whole document.
func (s Splitter) Split(doc Document) []Chunk {
	text := doc.Text
	if len(text) <= s.Threshold {
		return []Chunk{s.makeChunk(doc, 0, len(text))}
	}

	step := s.Threshold - int(float64(s.Threshold)*s.Overlap)
	if step <= 0 {
		step = s.Threshold
	}

	var chunks []Chunk
	for start := 0; start < len(text); start += step {
		end := start + s.Threshold
		if end > len(text) {
			end = len(text)
		}
		chunks = append(chunks, s.makeChunk(doc, start, end))
		if end == len(text) {
			break
		}
	}
	return chunks
}

func (s Splitter) makeChunk(doc Document, start, end int) Chunk {
	firstPage := doc.PageAt(start)
	lastPage := doc.PageAt(end - 1)
	pages := make([]int, 0, lastPage-firstPage+1)
	for p := firstPage; p <= lastPage; p++ {
		pages = append(pages, p)
	}
	return Chunk{
		Text:      doc.Text[start:end],
		CharStart: start,
		CharEnd:   end,
		Pages:     pages,
	}
}
