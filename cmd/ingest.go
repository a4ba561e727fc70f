package cmd

import (
	"context"
	"flag"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/forgeai/forge/internal/catalog"
)

// runIngest adds one source (file, URL or raw text) to the knowledge base.
func runIngest(args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	file := fs.String("file", "", "path of a local file to ingest")
	url := fs.String("url", "", "URL of a web page to ingest")
	text := fs.String("text", "", "raw text to ingest")
	title := fs.String("title", "note", "title for raw text ingestion")
	if err := fs.Parse(args); err != nil {
		return err
	}

	given := 0
	for _, v := range []string{*file, *url, *text} {
		if v != "" {
			given++
		}
	}
	if given != 1 {
		return fmt.Errorf("exactly one of -file, -url or -text is required")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	var doc catalog.Document
	switch {
	case *file != "":
		doc, err = a.knowledge.AddFile(ctx, *file)
	case *url != "":
		doc, err = a.knowledge.AddURL(ctx, *url)
	default:
		doc, err = a.knowledge.AddText(ctx, *title, *text)
	}
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %q (%s): %d chunks\n", doc.Title, doc.ID, doc.ChunkCount)
	return nil
}
