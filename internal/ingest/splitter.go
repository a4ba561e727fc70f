package ingest

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// defaultSeparators is the separator hierarchy tried in order: paragraph
// breaks first, then lines, then words, then raw bytes.
var defaultSeparators = []string{"\n\n", "\n", " ", ""}

// Splitter splits text into chunks of at most chunkSize bytes, recursively
// descending a separator hierarchy so related pieces stay together. When
// overlap is configured, each chunk after the first is prefixed with the
// tail of its predecessor, so a chunk may exceed chunkSize by up to
// chunkOverlap bytes.
type Splitter struct {
	chunkSize    int
	chunkOverlap int
	separators   []string
}

// NewSplitter creates a splitter. chunkOverlap must be smaller than
// chunkSize.
func NewSplitter(chunkSize, chunkOverlap int) (*Splitter, error) {
	if chunkSize < 1 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if chunkOverlap < 0 || chunkOverlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, chunkOverlap)
	}
	return &Splitter{
		chunkSize:    chunkSize,
		chunkOverlap: chunkOverlap,
		separators:   defaultSeparators,
	}, nil
}

// Split splits text into chunks. Empty or whitespace-only input yields nil.
func (s *Splitter) Split(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	units := s.split(text, s.separators)
	chunks := s.merge(units)
	return s.applyOverlap(chunks)
}

// split recursively breaks text into units no larger than chunkSize.
func (s *Splitter) split(text string, separators []string) []string {
	if len(text) <= s.chunkSize {
		return []string{text}
	}
	if len(separators) == 0 {
		return s.splitBytes(text)
	}

	sep := separators[0]
	rest := separators[1:]
	if sep == "" {
		return s.splitBytes(text)
	}

	var units []string
	for _, part := range strings.Split(text, sep) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if len(part) <= s.chunkSize {
			units = append(units, part)
			continue
		}
		units = append(units, s.split(part, rest)...)
	}
	return units
}

// splitBytes is the last resort: fixed windows aligned to rune boundaries.
func (s *Splitter) splitBytes(text string) []string {
	var out []string
	for start := 0; start < len(text); {
		end := start + s.chunkSize
		if end >= len(text) {
			out = append(out, text[start:])
			break
		}
		// Never cut a rune in half.
		for end > start && !utf8.RuneStart(text[end]) {
			end--
		}
		if end == start {
			end = start + s.chunkSize
		}
		out = append(out, text[start:end])
		start = end
	}
	return out
}

// merge greedily packs adjacent units into chunks up to chunkSize.
func (s *Splitter) merge(units []string) []string {
	var chunks []string
	var current string

	for _, u := range units {
		if current == "" {
			current = u
			continue
		}
		if len(current)+len("\n\n")+len(u) <= s.chunkSize {
			current += "\n\n" + u
			continue
		}
		chunks = append(chunks, current)
		current = u
	}
	if current != "" {
		chunks = append(chunks, current)
	}
	return chunks
}

// applyOverlap prefixes each chunk after the first with the tail of its
// predecessor.
func (s *Splitter) applyOverlap(chunks []string) []string {
	if s.chunkOverlap == 0 || len(chunks) < 2 {
		return chunks
	}

	out := make([]string, len(chunks))
	out[0] = chunks[0]
	for i := 1; i < len(chunks); i++ {
		tail := runeSafeTail(chunks[i-1], s.chunkOverlap)
		if tail != "" {
			out[i] = tail + "\n" + chunks[i]
		} else {
			out[i] = chunks[i]
		}
	}
	return out
}

// runeSafeTail returns at most n trailing bytes of s without splitting a
// rune.
func runeSafeTail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	start := len(s) - n
	for start < len(s) && !utf8.RuneStart(s[start]) {
		start++
	}
	return s[start:]
}
