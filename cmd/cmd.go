// Package cmd provides the CLI commands for forge.
//
// Commands:
//   - ingest: add files, URLs or raw text to the knowledge base
//   - search: semantic search over the knowledge base
//   - kb: manage knowledge bases and documents
//   - tasks: run generation tasks through the agent worker pool
//   - release: publish built package artifacts to a package index
//
// Long-running commands install signal handlers and shut down via context
// cancellation.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/forgeai/forge/internal/log"
)

// Execute is the main entry point for the forge CLI.
func Execute() error {
	// Initialize logger once at entry point
	level := slog.LevelInfo
	if os.Getenv("DEBUG") != "" {
		level = slog.LevelDebug
	}
	slog.SetDefault(log.New(log.Config{
		Level: level,
		JSON:  os.Getenv("FORGE_LOG_JSON") != "",
	}))

	if len(os.Args) < 2 {
		runHelp()
		return nil
	}

	args := os.Args[2:]
	switch os.Args[1] {
	case "ingest":
		return runIngest(args)
	case "search":
		return runSearch(args)
	case "kb":
		return runKB(args)
	case "tasks":
		return runTasks(args)
	case "release":
		return runRelease(args)
	case "version", "--version", "-v":
		runVersion()
		return nil
	case "help", "--help", "-h":
		runHelp()
		return nil
	default:
		return fmt.Errorf("unknown command: %s", os.Args[1])
	}
}

// runHelp displays the help message.
func runHelp() {
	fmt.Println("Forge - retrieval-augmented knowledge base and agent runner")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  forge ingest -file <path>      Ingest a local file")
	fmt.Println("  forge ingest -url <url>        Ingest a web page")
	fmt.Println("  forge ingest -text <content>   Ingest raw text (-title optional)")
	fmt.Println("  forge search [-k N] <query>    Semantic search")
	fmt.Println("  forge kb <list|stats|docs|delete|reindex>")
	fmt.Println("                                 Manage the knowledge base")
	fmt.Println("  forge tasks <prompt> [...]     Run prompts through the agent pool")
	fmt.Println("  forge release [test|prod]      Publish dist/ artifacts (default: test)")
	fmt.Println("  forge --version                Show version information")
	fmt.Println("  forge --help                   Show this help")
	fmt.Println()
	fmt.Println("Environment Variables:")
	fmt.Println("  OPENAI_API_KEY     Required for the openai provider")
	fmt.Println("  GEMINI_API_KEY     Required for the gemini provider")
	fmt.Println("  TWINE_PASSWORD     Publish token (skips the release prompt)")
	fmt.Println("  DATABASE_URL       Overrides the pgvector connection settings")
	fmt.Println("  DEBUG              Enable debug logging")
	fmt.Println()
	fmt.Println("Configuration file: ~/.forge/config.yaml")
}
