// Package ingest normalizes heterogeneous sources (local files, URLs, raw
// text) into Sources ready for chunking and embedding.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
)

// Source type identifiers. These mirror the catalog's document source types.
const (
	SourceTypeUpload = "upload"
	SourceTypeURL    = "url"
	SourceTypeText   = "text"
)

// Source is a normalized ingestion source.
type Source struct {
	ID         string
	Title      string
	Content    string
	SourceType string
	SourceURL  string
	FilePath   string
	Metadata   map[string]string
}

// FromText wraps raw text as a Source with a generated ID.
func FromText(title, content string) Source {
	return Source{
		ID:         "text:" + uuid.NewString(),
		Title:      title,
		Content:    normalizeWhitespace(content),
		SourceType: SourceTypeText,
	}
}

// contentID derives a stable short identifier from a seed string, so the
// same file path or URL always maps to the same document.
func contentID(prefix, seed string) string {
	sum := sha256.Sum256([]byte(seed))
	return prefix + ":" + hex.EncodeToString(sum[:8])
}

// normalizeWhitespace collapses all runs of whitespace into single spaces,
// except that paragraph breaks (blank lines) are preserved so the splitter
// can still find them.
func normalizeWhitespace(s string) string {
	paragraphs := strings.Split(s, "\n\n")
	out := make([]string, 0, len(paragraphs))
	for _, p := range paragraphs {
		p = strings.Join(strings.Fields(p), " ")
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "\n\n")
}
