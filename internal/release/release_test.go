package release

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// recordingRunner captures the command instead of executing it.
type recordingRunner struct {
	calls    int
	name     string
	args     []string
	env      []string
	exitCode int
	err      error
}

func (r *recordingRunner) Run(_ context.Context, name string, args, env []string, _, _ io.Writer) (int, error) {
	r.calls++
	r.name = name
	r.args = args
	r.env = env
	return r.exitCode, r.err
}

func envValue(env []string, key string) (string, bool) {
	for _, kv := range env {
		if v, ok := strings.CutPrefix(kv, key+"="); ok {
			return v, true
		}
	}
	return "", false
}

// newPublisher wires a Publisher against a temp dist dir with one artifact
// and a fully stubbed environment.
func newPublisher(t *testing.T, mode, stdin string, env map[string]string) (*Publisher, *recordingRunner, *bytes.Buffer) {
	t.Helper()

	distDir := filepath.Join(t.TempDir(), "dist")
	if err := os.MkdirAll(distDir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(distDir, "pkg-0.1.0.tar.gz"), []byte("artifact"), 0o600); err != nil {
		t.Fatal(err)
	}

	runner := &recordingRunner{}
	out := &bytes.Buffer{}
	p := &Publisher{
		Config:    Config{Mode: mode, DistDir: distDir},
		Runner:    runner,
		Stdin:     strings.NewReader(stdin),
		Stdout:    out,
		Stderr:    out,
		LookupEnv: func(key string) (string, bool) { v, ok := env[key]; return v, ok },
		BaseEnv:   func() []string { return []string{"PATH=/usr/bin"} },
	}
	return p, runner, out
}

func TestPublish_DefaultModeIsTest(t *testing.T) {
	p, runner, _ := newPublisher(t, "", "", map[string]string{"TWINE_PASSWORD": "tok"})

	code, err := p.Publish(context.Background())
	if err != nil || code != 0 {
		t.Fatalf("Publish = %d, %v", code, err)
	}
	if runner.calls != 1 {
		t.Fatalf("runner calls = %d", runner.calls)
	}

	// No mode given must behave exactly like test mode: upload to the test
	// index, never production.
	joined := strings.Join(runner.args, " ")
	if !strings.Contains(joined, "--repository-url "+TestRepositoryURL) {
		t.Errorf("args = %v, want test repository URL", runner.args)
	}
}

func TestPublish_TestModeTargetsTestIndex(t *testing.T) {
	p, runner, _ := newPublisher(t, ModeTest, "", map[string]string{"TWINE_PASSWORD": "tok"})

	if code, err := p.Publish(context.Background()); err != nil || code != 0 {
		t.Fatalf("Publish = %d, %v", code, err)
	}

	joined := strings.Join(runner.args, " ")
	if !strings.Contains(joined, TestRepositoryURL) {
		t.Errorf("args = %v", runner.args)
	}
	if runner.name != "twine" || runner.args[0] != "upload" {
		t.Errorf("command = %s %v", runner.name, runner.args)
	}
	for _, flag := range []string{"--skip-existing", "--disable-progress-bar"} {
		if !strings.Contains(joined, flag) {
			t.Errorf("args missing %s: %v", flag, runner.args)
		}
	}
}

func TestPublish_ProdModeOmitsRepositoryURL(t *testing.T) {
	p, runner, _ := newPublisher(t, ModeProd, "y\n", map[string]string{"TWINE_PASSWORD": "tok"})

	if code, err := p.Publish(context.Background()); err != nil || code != 0 {
		t.Fatalf("Publish = %d, %v", code, err)
	}
	if strings.Contains(strings.Join(runner.args, " "), "--repository-url") {
		t.Errorf("prod upload must use the default index: %v", runner.args)
	}
}

func TestPublish_ProdConfirmation(t *testing.T) {
	tests := []struct {
		name      string
		answer    string
		published bool
	}{
		{"lowercase y", "y\n", true},
		{"uppercase Y", "Y\n", true},
		{"n declines", "n\n", false},
		{"empty declines", "\n", false},
		{"yes is not y", "yes\n", false},
		{"eof declines", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, runner, out := newPublisher(t, ModeProd, tt.answer, map[string]string{"TWINE_PASSWORD": "tok"})

			code, err := p.Publish(context.Background())
			if err != nil {
				t.Fatalf("Publish: %v", err)
			}
			// Declining is a clean exit, not an error.
			if code != 0 {
				t.Errorf("exit code = %d, want 0", code)
			}
			if published := runner.calls == 1; published != tt.published {
				t.Errorf("published = %v, want %v", published, tt.published)
			}
			if !tt.published && !strings.Contains(out.String(), "Aborted.") {
				t.Errorf("output = %q", out.String())
			}
		})
	}
}

func TestPublish_InvalidMode(t *testing.T) {
	for _, mode := range []string{"production", "staging", "TEST"} {
		t.Run(mode, func(t *testing.T) {
			p, runner, _ := newPublisher(t, mode, "", map[string]string{"TWINE_PASSWORD": "tok"})

			code, err := p.Publish(context.Background())
			if code != 1 {
				t.Errorf("exit code = %d, want 1", code)
			}
			if !errors.Is(err, ErrInvalidMode) {
				t.Errorf("error = %v", err)
			}
			if runner.calls != 0 {
				t.Error("publish command was invoked for invalid mode")
			}
		})
	}
}

func TestPublish_TokenFromEnvironmentSkipsPrompt(t *testing.T) {
	// Stdin is empty: any prompt attempt would fail the publish.
	p, runner, out := newPublisher(t, ModeTest, "", map[string]string{"TWINE_PASSWORD": "env-token"})

	if code, err := p.Publish(context.Background()); err != nil || code != 0 {
		t.Fatalf("Publish = %d, %v", code, err)
	}
	if strings.Contains(out.String(), "token") {
		t.Errorf("prompt shown despite TWINE_PASSWORD: %q", out.String())
	}
	if v, _ := envValue(runner.env, "TWINE_PASSWORD"); v != "env-token" {
		t.Errorf("TWINE_PASSWORD = %q", v)
	}
}

func TestPublish_PromptsForMissingToken(t *testing.T) {
	p, runner, out := newPublisher(t, ModeTest, "typed-token\n", nil)

	if code, err := p.Publish(context.Background()); err != nil || code != 0 {
		t.Fatalf("Publish = %d, %v", code, err)
	}
	if !strings.Contains(out.String(), "Enter API token") {
		t.Errorf("output = %q", out.String())
	}
	if v, _ := envValue(runner.env, "TWINE_PASSWORD"); v != "typed-token" {
		t.Errorf("TWINE_PASSWORD = %q", v)
	}
}

func TestPublish_EmptyTokenRejected(t *testing.T) {
	p, runner, _ := newPublisher(t, ModeTest, "\n", nil)

	code, err := p.Publish(context.Background())
	if code != 1 || !errors.Is(err, ErrEmptyToken) {
		t.Errorf("Publish = %d, %v", code, err)
	}
	if runner.calls != 0 {
		t.Error("publish command was invoked with empty token")
	}
}

func TestPublish_TokenUsernameFixed(t *testing.T) {
	p, runner, _ := newPublisher(t, ModeTest, "", map[string]string{"TWINE_PASSWORD": "tok"})

	if _, err := p.Publish(context.Background()); err != nil {
		t.Fatal(err)
	}
	if v, _ := envValue(runner.env, "TWINE_USERNAME"); v != "__token__" {
		t.Errorf("TWINE_USERNAME = %q, want __token__", v)
	}
}

func TestPublish_PropagatesUploaderExitCode(t *testing.T) {
	p, runner, _ := newPublisher(t, ModeTest, "", map[string]string{"TWINE_PASSWORD": "tok"})
	runner.exitCode = 2

	code, err := p.Publish(context.Background())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if code != 2 {
		t.Errorf("exit code = %d, want 2", code)
	}
}

func TestPublish_NoArtifacts(t *testing.T) {
	p, runner, _ := newPublisher(t, ModeTest, "", map[string]string{"TWINE_PASSWORD": "tok"})
	p.Config.DistDir = filepath.Join(t.TempDir(), "empty")

	code, err := p.Publish(context.Background())
	if code != 1 || !errors.Is(err, ErrNoArtifacts) {
		t.Errorf("Publish = %d, %v", code, err)
	}
	if runner.calls != 0 {
		t.Error("publish command was invoked without artifacts")
	}
}

func TestPublish_ArtifactsPassedToUploader(t *testing.T) {
	p, runner, _ := newPublisher(t, ModeTest, "", map[string]string{"TWINE_PASSWORD": "tok"})

	if _, err := p.Publish(context.Background()); err != nil {
		t.Fatal(err)
	}
	last := runner.args[len(runner.args)-1]
	if !strings.HasSuffix(last, "pkg-0.1.0.tar.gz") {
		t.Errorf("artifact not in args: %v", runner.args)
	}
}
