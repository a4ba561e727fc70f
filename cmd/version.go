package cmd

import (
	"fmt"
	"os"

	"github.com/forgeai/forge/internal/config"
)

// Version information (injected at build time via ldflags)
var (
	AppVersion = "development"
	BuildTime  = "unknown"
	GitCommit  = "unknown"
)

// runVersion prints build and configuration information.
func runVersion() {
	fmt.Printf("Forge %s\n", AppVersion)
	fmt.Printf("Build Time: %s\n", BuildTime)
	fmt.Printf("Git Commit: %s\n", GitCommit)

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("\nConfiguration unavailable: %v\n", err)
		return
	}

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Printf("  Provider:   %s (%s)\n", cfg.Provider, cfg.Model)
	fmt.Printf("  Embedder:   %s (%d dims)\n", cfg.EmbedderModel, cfg.EmbeddingDim)
	fmt.Printf("  Backend:    %s\n", cfg.VectorBackend)
	fmt.Printf("  Data dir:   %s\n", cfg.DataDir)

	for _, key := range []string{"OPENAI_API_KEY", "GEMINI_API_KEY"} {
		v := os.Getenv(key)
		if len(v) >= 8 {
			fmt.Printf("  %s: %s...%s (configured)\n", key, v[:4], v[len(v)-4:])
		} else if v != "" {
			fmt.Printf("  %s: (configured)\n", key)
		} else {
			fmt.Printf("  %s: not set\n", key)
		}
	}
}
