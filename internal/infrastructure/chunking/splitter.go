package chunking

import "strings"

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

// Splitter cuts page text into rune windows of ChunkSize, each starting
// ChunkSize-Overlap runes after the previous one.
type Splitter struct {
	ChunkSize int
	Overlap   int
}

// NewSplitter falls back to DefaultChunkSize for a non-positive size and clamps
// an overlap that would stall the window to a quarter of the size.
func NewSplitter(chunkSize, overlap int) *Splitter {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	overlap = max(overlap, 0)
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &Splitter{ChunkSize: chunkSize, Overlap: overlap}
}

// Split stops at the first window that reaches the end of the text, so the tail
// is not emitted again as a short trailing chunk.
func (s *Splitter) Split(text string) []string {
	runes := []rune(strings.TrimSpace(text))
	if len(runes) == 0 {
		return nil
	}

	step := s.ChunkSize - s.Overlap
	if step <= 0 {
		step = s.ChunkSize
	}

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; ; start += step {
		end := min(start+s.ChunkSize, len(runes))
		if chunk := strings.TrimSpace(string(runes[start:end])); chunk != "" {
			out = append(out, chunk)
		}
		if end == len(runes) {
			return out
		}
	}
}
