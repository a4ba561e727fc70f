package ingest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// defaultSupportedExtensions are the file types accepted for upload
// ingestion. Binary formats are out: extraction is plain-text only.
var defaultSupportedExtensions = map[string]bool{
	".txt":  true,
	".md":   true,
	".rst":  true,
	".go":   true,
	".py":   true,
	".js":   true,
	".ts":   true,
	".java": true,
	".rb":   true,
	".sh":   true,
	".yaml": true,
	".yml":  true,
	".json": true,
	".xml":  true,
	".html": true,
	".css":  true,
	".sql":  true,
	".csv":  true,
}

// MaxFileBytes caps the size of a file accepted for ingestion. Larger files
// should be pre-split by the caller.
const MaxFileBytes = 4 * 1024 * 1024 // 4MB

// Loader reads local files into Sources.
type Loader struct {
	supportedExtensions map[string]bool
}

// NewLoader creates a file loader. extensions optionally overrides the
// default allowlist (e.g. []string{".txt", ".md"}).
func NewLoader(extensions []string) *Loader {
	extMap := make(map[string]bool, len(defaultSupportedExtensions))
	if len(extensions) > 0 {
		for _, ext := range extensions {
			extMap[strings.ToLower(ext)] = true
		}
	} else {
		// Copy the defaults so instances never share (and possibly
		// mutate) the same map.
		for k, v := range defaultSupportedExtensions {
			extMap[k] = v
		}
	}
	return &Loader{supportedExtensions: extMap}
}

// Supported reports whether the loader accepts the file extension of path.
func (l *Loader) Supported(path string) bool {
	return l.supportedExtensions[strings.ToLower(filepath.Ext(path))]
}

// LoadFile reads a local file into a Source. The document ID is derived
// from the absolute path, so re-ingesting the same file updates the same
// document.
func (l *Loader) LoadFile(path string) (Source, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return Source{}, fmt.Errorf("resolving path %q: %w", path, err)
	}

	if !l.Supported(abs) {
		return Source{}, fmt.Errorf("unsupported file type %q", filepath.Ext(abs))
	}

	info, err := os.Stat(abs)
	if err != nil {
		return Source{}, fmt.Errorf("stat %q: %w", abs, err)
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("%q is a directory", abs)
	}
	if info.Size() > MaxFileBytes {
		return Source{}, fmt.Errorf("file %q exceeds %d byte limit (%d bytes)", abs, MaxFileBytes, info.Size())
	}

	content, err := os.ReadFile(abs)
	if err != nil {
		return Source{}, fmt.Errorf("reading %q: %w", abs, err)
	}

	return Source{
		ID:         contentID("file", abs),
		Title:      filepath.Base(abs),
		Content:    normalizeWhitespace(string(content)),
		SourceType: SourceTypeUpload,
		FilePath:   abs,
		Metadata:   map[string]string{"extension": strings.ToLower(filepath.Ext(abs))},
	}, nil
}
