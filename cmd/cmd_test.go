package cmd

import (
	"os"
	"strings"
	"testing"
)

func TestExecute_UnknownCommand(t *testing.T) {
	orig := os.Args
	defer func() { os.Args = orig }()
	os.Args = []string{"forge", "frobnicate"}

	err := Execute()
	if err == nil || !strings.Contains(err.Error(), "unknown command") {
		t.Errorf("error = %v", err)
	}
}

func TestRunIngest_RequiresExactlyOneSource(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"no source", nil},
		{"two sources", []string{"-file", "a.txt", "-url", "http://x"}},
		{"all three", []string{"-file", "a.txt", "-url", "http://x", "-text", "t"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := runIngest(tt.args)
			if err == nil || !strings.Contains(err.Error(), "exactly one") {
				t.Errorf("error = %v", err)
			}
		})
	}
}

func TestRunSearch_RequiresQuery(t *testing.T) {
	err := runSearch(nil)
	if err == nil || !strings.Contains(err.Error(), "usage:") {
		t.Errorf("error = %v", err)
	}
}

func TestRunTasks_RequiresPrompt(t *testing.T) {
	err := runTasks(nil)
	if err == nil || !strings.Contains(err.Error(), "usage:") {
		t.Errorf("error = %v", err)
	}
}

func TestRunKB_RequiresSubcommand(t *testing.T) {
	err := runKB(nil)
	if err == nil || !strings.Contains(err.Error(), "usage:") {
		t.Errorf("error = %v", err)
	}
}

func TestRunRelease_RejectsExtraArgs(t *testing.T) {
	err := runRelease([]string{"test", "extra"})
	if err == nil || !strings.Contains(err.Error(), "usage:") {
		t.Errorf("error = %v", err)
	}
}

func TestSnippet(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"short", 10, "short"},
		{"word  spaced\ttext", 50, "word spaced text"},
		{"abcdefghij", 4, "abcd..."},
	}

	for _, tt := range tests {
		if got := snippet(tt.in, tt.max); got != tt.want {
			t.Errorf("snippet(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}
