package cmd

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/forgeai/forge/internal/knowledge"
)

// runSearch performs a semantic search and prints the ranked results.
func runSearch(args []string) error {
	fs := flag.NewFlagSet("search", flag.ContinueOnError)
	topK := fs.Int("k", knowledge.DefaultTopK, "number of results")
	sourceType := fs.String("source", "", "restrict to a source type (upload, url, text)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	query := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if query == "" {
		return fmt.Errorf("usage: forge search [-k N] [-source TYPE] <query>")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	opts := []knowledge.SearchOption{knowledge.WithTopK(*topK)}
	if *sourceType != "" {
		opts = append(opts, knowledge.WithFilter(map[string]string{"source_type": *sourceType}))
	}

	results, err := a.knowledge.Search(ctx, query, opts...)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		fmt.Println("No results.")
		return nil
	}

	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s (%s)\n", i+1, r.Score, r.DocumentTitle, r.ChunkID)
		fmt.Printf("   %s\n", snippet(r.Content, 200))
	}
	return nil
}

// snippet truncates s for single-line display.
func snippet(s string, max int) string {
	s = strings.Join(strings.Fields(s), " ")
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
