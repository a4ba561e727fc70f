package ingest

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoader_Supported(t *testing.T) {
	l := NewLoader(nil)

	tests := []struct {
		path string
		want bool
	}{
		{"notes.txt", true},
		{"README.md", true},
		{"main.go", true},
		{"UPPER.TXT", true},
		{"image.png", false},
		{"archive.tar.gz", false},
		{"noext", false},
	}

	for _, tt := range tests {
		if got := l.Supported(tt.path); got != tt.want {
			t.Errorf("Supported(%q) = %v, want %v", tt.path, got, tt.want)
		}
	}
}

func TestLoader_CustomExtensions(t *testing.T) {
	l := NewLoader([]string{".log"})

	if !l.Supported("server.log") {
		t.Error("custom extension not accepted")
	}
	if l.Supported("notes.txt") {
		t.Error("default extension should not survive an override")
	}
}

func TestLoader_LoadFile(t *testing.T) {
	path := writeTempFile(t, "doc.md", "# Title\n\nSome   body    text\n\nmore")
	l := NewLoader(nil)

	src, err := l.LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile: %v", err)
	}

	if src.SourceType != SourceTypeUpload {
		t.Errorf("SourceType = %q", src.SourceType)
	}
	if src.Title != "doc.md" {
		t.Errorf("Title = %q", src.Title)
	}
	if !strings.HasPrefix(src.ID, "file:") {
		t.Errorf("ID = %q, want file: prefix", src.ID)
	}
	if src.Content != "# Title\n\nSome body text\n\nmore" {
		t.Errorf("Content = %q", src.Content)
	}
	if src.Metadata["extension"] != ".md" {
		t.Errorf("extension metadata = %q", src.Metadata["extension"])
	}
}

func TestLoader_StableID(t *testing.T) {
	path := writeTempFile(t, "doc.txt", "content")
	l := NewLoader(nil)

	first, err := l.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := l.LoadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != second.ID {
		t.Errorf("IDs differ for same path: %q vs %q", first.ID, second.ID)
	}
}

func TestLoader_Errors(t *testing.T) {
	l := NewLoader(nil)

	t.Run("unsupported extension", func(t *testing.T) {
		path := writeTempFile(t, "image.png", "binary")
		if _, err := l.LoadFile(path); err == nil {
			t.Error("expected error for unsupported extension")
		}
	})

	t.Run("missing file", func(t *testing.T) {
		if _, err := l.LoadFile(filepath.Join(t.TempDir(), "missing.txt")); err == nil {
			t.Error("expected error for missing file")
		}
	})

	t.Run("directory", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "dir.txt")
		if err := os.Mkdir(dir, 0o750); err != nil {
			t.Fatal(err)
		}
		if _, err := l.LoadFile(dir); err == nil {
			t.Error("expected error for directory")
		}
	})

	t.Run("oversized file", func(t *testing.T) {
		path := writeTempFile(t, "big.txt", strings.Repeat("a", MaxFileBytes+1))
		if _, err := l.LoadFile(path); err == nil {
			t.Error("expected error for oversized file")
		}
	})
}

func TestFromText(t *testing.T) {
	src := FromText("note", "some   raw\ttext")

	if src.SourceType != SourceTypeText {
		t.Errorf("SourceType = %q", src.SourceType)
	}
	if !strings.HasPrefix(src.ID, "text:") {
		t.Errorf("ID = %q", src.ID)
	}
	if src.Content != "some raw text" {
		t.Errorf("Content = %q", src.Content)
	}

	// Raw text sources get unique IDs; they carry no stable identity.
	if again := FromText("note", "some   raw\ttext"); again.ID == src.ID {
		t.Error("expected unique IDs for text sources")
	}
}

func TestNormalizeWhitespace(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"a  b\tc", "a b c"},
		{"a\n\nb", "a\n\nb"},
		{"  a \n\n\n\n b  ", "a\n\nb"},
		{"", ""},
		{"\n\n\n", ""},
	}

	for _, tt := range tests {
		if got := normalizeWhitespace(tt.in); got != tt.want {
			t.Errorf("normalizeWhitespace(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
