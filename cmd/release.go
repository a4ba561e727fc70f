package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/forgeai/forge/internal/release"
)

// runRelease publishes dist/ artifacts. The uploader's exit code (and the
// invalid-mode and no-artifact failures) become the process exit code
// directly; a declined production confirmation exits 0.
func runRelease(args []string) error {
	mode := ""
	if len(args) > 0 {
		mode = args[0]
	}
	if len(args) > 1 {
		return fmt.Errorf("usage: forge release [test|prod]")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	publisher := release.New(release.Config{Mode: mode}, slog.Default())
	code, err := publisher.Publish(ctx)
	if err != nil {
		slog.Debug("publish failed", "error", err)
	}
	if code != 0 {
		os.Exit(code)
	}
	return nil
}
