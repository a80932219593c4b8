package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/procurement-cli/internal/config"
	"github.com/sells-group/procurement-cli/internal/ingest"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the ingest run log",
	Long:  "Displays every recorded ingest run, most recent first.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		o, err := openStore(ctx, config.ModeStatus)
		if err != nil {
			return err
		}
		defer o.Close()

		entries, err := ingest.NewRunLog(o).ListAll(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		if len(entries) == 0 {
			zap.L().Info("no ingest runs found, run 'ingest' to load a source")
			return nil
		}

		formatStatusEntries(os.Stdout, entries)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

// formatStatusEntries writes a tabular representation of run entries to w.
func formatStatusEntries(out io.Writer, entries []ingest.RunEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tSOURCE\tSTATUS\tSTARTED\tDURATION\tOK\tSKIPPED\tFAILED\tERROR")
	_, _ = fmt.Fprintln(w, "--\t------\t------\t-------\t--------\t--\t-------\t------\t-----")

	for _, e := range entries {
		dur := "-"
		if e.CompletedAt != nil {
			dur = e.CompletedAt.Sub(e.StartedAt).Round(time.Second).String()
		}

		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%d\t%d\t%d\t%s\n",
			e.ID,
			e.Source,
			e.Status,
			e.StartedAt.Format("2006-01-02 15:04"),
			dur,
			e.UnitsOK,
			e.UnitsSkipped,
			e.UnitsFailed,
			truncate(e.Error, 60),
		)
	}
	_ = w.Flush()
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
