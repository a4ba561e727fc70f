package cmd

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
)

// runKB manages knowledge bases and their documents.
func runKB(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: forge kb <list|stats|docs|delete|reindex>")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	a, err := setup(ctx)
	if err != nil {
		return err
	}
	defer a.close()

	switch args[0] {
	case "list":
		return kbList(ctx, a)
	case "stats":
		return kbStats(ctx, a)
	case "docs":
		return kbDocs(ctx, a, args[1:])
	case "delete":
		if len(args) < 2 {
			return fmt.Errorf("usage: forge kb delete <document-id>")
		}
		return kbDelete(ctx, a, args[1])
	case "reindex":
		return kbReindex(ctx, a, args[1:])
	default:
		return fmt.Errorf("unknown kb subcommand: %s", args[0])
	}
}

func kbList(ctx context.Context, a *app) error {
	kbs, err := a.catalog.ListKnowledgeBases(ctx)
	if err != nil {
		return err
	}
	if len(kbs) == 0 {
		fmt.Println("No knowledge bases.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tBACKEND\tCOLLECTION\tACTIVE")
	for _, kb := range kbs {
		active := ""
		if kb.Active {
			active = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", kb.Name, kb.Backend, kb.Collection, active)
	}
	return w.Flush()
}

func kbStats(ctx context.Context, a *app) error {
	stats, err := a.knowledge.Stats(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Knowledge base: %s\n", stats.KnowledgeBase)
	fmt.Printf("  Backend:    %s\n", stats.Backend)
	fmt.Printf("  Collection: %s\n", stats.Collection)
	fmt.Printf("  Documents:  %d\n", stats.Documents)
	fmt.Printf("  Chunks:     %d\n", stats.Chunks)
	fmt.Printf("  Dimension:  %d\n", stats.Dim)
	return nil
}

func kbDocs(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("kb docs", flag.ContinueOnError)
	status := fs.String("status", "", "filter by status (pending, processing, completed, failed)")
	limit := fs.Int("limit", 50, "maximum documents to list")
	if err := fs.Parse(args); err != nil {
		return err
	}

	docs, err := a.catalog.ListDocuments(ctx, defaultKnowledgeBase, *status, *limit)
	if err != nil {
		return err
	}
	if len(docs) == 0 {
		fmt.Println("No documents.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tSTATUS\tCHUNKS\tUPDATED")
	for _, d := range docs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\n",
			d.ID, d.Title, d.Status, d.ChunkCount, d.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func kbDelete(ctx context.Context, a *app, docID string) error {
	if err := a.knowledge.Delete(ctx, docID); err != nil {
		return err
	}
	fmt.Printf("Deleted %s\n", docID)
	return nil
}

func kbReindex(ctx context.Context, a *app, args []string) error {
	if len(args) > 0 {
		doc, err := a.knowledge.ReindexDocument(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Reindexed %q (%s): %d chunks\n", doc.Title, doc.ID, doc.ChunkCount)
		return nil
	}

	reindexed, skipped, failed, err := a.knowledge.Reindex(ctx)
	if err != nil {
		return err
	}
	fmt.Printf("Reindexed %d documents (%d skipped, %d failed)\n", reindexed, skipped, failed)
	return nil
}
