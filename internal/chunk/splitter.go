// Package chunk splits normalized text into overlapping fixed-size
// segments for indexing. Splitting is deterministic so re-indexing a
// source always produces the same chunk set.
package chunk

import "fmt"

type Splitter struct {
	size    int
	overlap int
}

// NewSplitter validates the parameters: size must be positive and overlap
// must be non-negative and strictly smaller than size.
func NewSplitter(size, overlap int) (*Splitter, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, size), got %d for size %d", overlap, size)
	}
	return &Splitter{size: size, overlap: overlap}, nil
}

// Split returns the ordered chunk sequence covering text. Empty text
// yields no chunks; text shorter than one chunk yields exactly one chunk
// holding the whole text. Offsets are rune-based so multi-byte text never
// splits mid-character.
func (s *Splitter) Split(text string) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := s.size - s.overlap

	out := make([]string, 0, len(runes)/step+1)
	for start := 0; start < len(runes); start += step {
		end := start + s.size
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}
	}
	return out
}
