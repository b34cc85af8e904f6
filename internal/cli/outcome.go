package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/vietddude/triage/internal/control"
	"github.com/vietddude/triage/internal/core/domain"
)

var (
	outcomeClassification string
	outcomeErrorType      string
	outcomeHandler        string
	outcomeDetail         string
)

var outcomeCmd = &cobra.Command{
	Use:   "outcome [session_id] [strategy] [success]",
	Short: "Record the outcome of a recovery attempt",
	Args:  cobra.ExactArgs(3),
	Run:   runOutcome,
}

func init() {
	outcomeCmd.Flags().StringVar(&outcomeClassification, "classification", "", "classification id")
	outcomeCmd.Flags().StringVar(&outcomeErrorType, "error-type", "", "error type the attempt addressed")
	outcomeCmd.Flags().StringVar(&outcomeHandler, "handler", "", "handler id")
	outcomeCmd.Flags().StringVar(&outcomeDetail, "detail", "", "free-form detail")
	rootCmd.AddCommand(outcomeCmd)
}

func runOutcome(cmd *cobra.Command, args []string) {
	strategy, ok := domain.ParseRecoveryStrategy(args[1])
	if !ok {
		fmt.Printf("Invalid strategy: %s\n", args[1])
		os.Exit(1)
	}
	success, err := strconv.ParseBool(args[2])
	if err != nil {
		fmt.Printf("Invalid success flag: %v\n", err)
		os.Exit(1)
	}

	cfg := loadConfig(cmd)
	ctx := context.Background()
	app, err := control.NewService(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	outcome := domain.RecoveryOutcome{
		SessionID:        args[0],
		ClassificationID: outcomeClassification,
		Strategy:         strategy,
		HandlerID:        outcomeHandler,
		Detail:           outcomeDetail,
		Success:          success,
	}
	if outcomeErrorType != "" {
		outcome.ErrorType = domain.ParseErrorType(outcomeErrorType)
	}
	if err := app.Engine().ReportOutcome(ctx, outcome); err != nil {
		slog.Error("Failed to record outcome", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Recorded %s outcome for session %s\n", strategy, args[0])
}
