// Package release publishes built package artifacts to a package index by
// wrapping the twine uploader. Test mode targets the TestPyPI index;
// production mode targets PyPI proper and demands interactive confirmation
// first.
package release

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Publish modes.
const (
	ModeTest = "test"
	ModeProd = "prod"
)

// TestRepositoryURL is the TestPyPI upload endpoint. Production uploads go
// to the uploader's default index and need no explicit URL.
const TestRepositoryURL = "https://test.pypi.org/legacy/"

// tokenUsername is the fixed username for API token authentication.
const tokenUsername = "__token__"

var (
	// ErrInvalidMode is returned for a mode other than test or prod.
	ErrInvalidMode = errors.New("release: mode must be \"test\" or \"prod\"")
	// ErrNoArtifacts is returned when the dist glob matches nothing.
	ErrNoArtifacts = errors.New("release: no artifacts to publish")
	// ErrEmptyToken is returned when the prompted token is blank.
	ErrEmptyToken = errors.New("release: API token must not be empty")
)

// Runner executes the publishing command. The seam exists so publishing
// can be tested without the uploader installed.
type Runner interface {
	// Run executes name with args and the given environment, wiring the
	// writers to the command's output. Returns the command's exit code.
	Run(ctx context.Context, name string, args, env []string, stdout, stderr io.Writer) (int, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args, env []string, stdout, stderr io.Writer) (int, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode(), nil
	}
	return 1, fmt.Errorf("release: running %s: %w", name, err)
}

// Config parameterizes a publish.
type Config struct {
	// Mode selects the target index; empty means ModeTest.
	Mode string
	// DistDir holds the built artifacts (default "dist").
	DistDir string
}

// Publisher drives one publish run. Stdin, Stdout and Stderr default to the
// process streams; LookupEnv defaults to os.LookupEnv; BaseEnv defaults to
// os.Environ. Overriding them is for tests.
type Publisher struct {
	Config    Config
	Runner    Runner
	Stdin     io.Reader
	Stdout    io.Writer
	Stderr    io.Writer
	LookupEnv func(string) (string, bool)
	BaseEnv   func() []string
	Logger    *slog.Logger
}

// New creates a Publisher with production defaults.
func New(cfg Config, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{
		Config: cfg,
		Runner: ExecRunner{},
		Logger: logger,
	}
}

func (p *Publisher) fill() {
	if p.Runner == nil {
		p.Runner = ExecRunner{}
	}
	if p.Stdin == nil {
		p.Stdin = os.Stdin
	}
	if p.Stdout == nil {
		p.Stdout = os.Stdout
	}
	if p.Stderr == nil {
		p.Stderr = os.Stderr
	}
	if p.LookupEnv == nil {
		p.LookupEnv = os.LookupEnv
	}
	if p.BaseEnv == nil {
		p.BaseEnv = os.Environ
	}
	if p.Logger == nil {
		p.Logger = slog.Default()
	}
	if p.Config.DistDir == "" {
		p.Config.DistDir = "dist"
	}
}

// Publish runs the upload and returns the process exit code: 1 for an
// invalid mode or missing artifacts, 0 when the user declines the
// production confirmation, otherwise the uploader's own exit code. The
// error carries detail for logging; the exit code alone decides the
// process status.
func (p *Publisher) Publish(ctx context.Context) (int, error) {
	p.fill()

	mode := p.Config.Mode
	if mode == "" {
		mode = ModeTest
	}
	if mode != ModeTest && mode != ModeProd {
		fmt.Fprintf(p.Stderr, "invalid mode %q: use test or prod\n", p.Config.Mode)
		return 1, fmt.Errorf("%w: got %q", ErrInvalidMode, p.Config.Mode)
	}

	artifacts, err := filepath.Glob(filepath.Join(p.Config.DistDir, "*"))
	if err != nil {
		return 1, fmt.Errorf("release: listing artifacts: %w", err)
	}
	if len(artifacts) == 0 {
		fmt.Fprintf(p.Stderr, "no artifacts found under %s/\n", p.Config.DistDir)
		return 1, fmt.Errorf("%w: %s", ErrNoArtifacts, p.Config.DistDir)
	}

	reader := bufio.NewReader(p.Stdin)

	if mode == ModeProd {
		fmt.Fprint(p.Stdout, "Publish to the production package index? [y/N]: ")
		answer, err := readLine(reader)
		if err != nil {
			return 1, fmt.Errorf("release: reading confirmation: %w", err)
		}
		if answer != "y" && answer != "Y" {
			fmt.Fprintln(p.Stdout, "Aborted.")
			return 0, nil
		}
	}

	token, ok := p.LookupEnv("TWINE_PASSWORD")
	if !ok {
		fmt.Fprint(p.Stdout, "Enter API token: ")
		token, err = readLine(reader)
		if err != nil {
			return 1, fmt.Errorf("release: reading token: %w", err)
		}
		if strings.TrimSpace(token) == "" {
			return 1, ErrEmptyToken
		}
	}

	args := []string{"upload", "--skip-existing", "--disable-progress-bar"}
	if mode == ModeTest {
		args = append(args, "--repository-url", TestRepositoryURL)
	}
	args = append(args, artifacts...)

	env := append(p.BaseEnv(),
		"TWINE_USERNAME="+tokenUsername,
		"TWINE_PASSWORD="+token,
	)

	p.Logger.Info("publishing artifacts", "mode", mode, "count", len(artifacts))

	code, err := p.Runner.Run(ctx, "twine", args, env, p.Stdout, p.Stderr)
	if err != nil {
		return code, err
	}
	if code == 0 {
		fmt.Fprintln(p.Stdout, "Publish complete.")
	}
	return code, nil
}

// readLine reads one line and strips the trailing newline. EOF reads as an
// empty answer, so a closed stdin declines prompts instead of erroring.
func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}
