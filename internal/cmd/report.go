package cmd

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/littlesearch/littlesearch/internal/report"
	"github.com/littlesearch/littlesearch/internal/storage"
)

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report DATABASE",
		Short: "Render a Markdown report from an exported crawl database",
		Long: `Reads a database written with --database and renders the same Markdown
report a crawl writes with --report. The report goes to stdout unless
--output is given.`,
		Args: cobra.ExactArgs(1),
		RunE: runReport,
	}
	cmd.Flags().StringP("output", "o", "", "Write the report to this file instead of stdout")
	return cmd
}

func runReport(cmd *cobra.Command, args []string) error {
	store, err := storage.NewSQLiteStorage(args[0])
	if err != nil {
		return fmt.Errorf("failed to open database %s: %w", args[0], err)
	}
	defer func() { _ = store.Close() }()

	rc, err := loadReport(store)
	if err != nil {
		return err
	}

	output, _ := cmd.Flags().GetString("output")
	if output != "" {
		if err := writeReportFile(output, rc); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Report written to %s\n", output)
		return nil
	}
	return report.NewMarkdownWriter(cmd.OutOrStdout()).Write(rc)
}

// loadReport rebuilds the report input from an exported crawl
func loadReport(store *storage.SQLiteStorage) (*report.Crawl, error) {
	pages, err := store.LoadPages()
	if err != nil {
		return nil, err
	}
	blocked, err := store.LoadBlockedHosts()
	if err != nil {
		return nil, err
	}
	crawlErrors, err := store.LoadErrors()
	if err != nil {
		return nil, err
	}

	meta := make(map[string]string)
	for _, key := range []string{"start_url", "visited", "started_at", "finished_at", "interrupted"} {
		v, err := store.GetMeta(key)
		if err != nil {
			return nil, err
		}
		meta[key] = v
	}

	rc := &report.Crawl{
		StartURL:     meta["start_url"],
		Pages:        pages,
		BlockedHosts: blocked,
		Errors:       crawlErrors,
	}
	rc.Interrupted, _ = strconv.ParseBool(meta["interrupted"])
	rc.Stats.PagesStored = len(pages)
	rc.Stats.BlockedHosts = len(blocked)
	rc.Stats.ErrorCount = len(crawlErrors)
	rc.Stats.Visited, _ = strconv.Atoi(meta["visited"])

	started, startErr := time.Parse(time.RFC3339, meta["started_at"])
	finished, finishErr := time.Parse(time.RFC3339, meta["finished_at"])
	if startErr == nil {
		rc.Stats.StartTime = started
		if finishErr == nil {
			rc.Stats.Duration = finished.Sub(started)
		}
	}

	return rc, nil
}
