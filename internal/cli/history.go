package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/vietddude/triage/internal/control"
)

var (
	historySession string
	historyLimit   int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent classifications of a session",
	Run:   runHistory,
}

func init() {
	historyCmd.Flags().StringVar(&historySession, "session", "", "session id")
	historyCmd.Flags().IntVar(&historyLimit, "limit", 10, "number of entries")
	_ = historyCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(historyCmd)
}

func runHistory(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)

	ctx := context.Background()
	app, err := control.NewService(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	results, err := app.Engine().History(ctx, historySession, historyLimit)
	if err != nil {
		slog.Error("Failed to query history", "error", err)
		os.Exit(1)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', tabwriter.Debug)
	_, _ = fmt.Fprintln(w, "CLASSIFIED\tID\tSTATUS\tSEVERITY\tSTRATEGY\tESCALATE\tERRORS")
	for _, r := range results {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%t\t%d\n",
			r.ClassifiedAt.Format(time.RFC3339),
			r.ID,
			r.Status,
			r.GlobalSeverity,
			r.RecoveryStrategy,
			r.EscalationRequired,
			len(r.Errors),
		)
	}
	_ = w.Flush()
}
