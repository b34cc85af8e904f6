package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vietddude/triage/internal/classification/engine"
	"github.com/vietddude/triage/internal/control"
	"github.com/vietddude/triage/internal/core/domain"
)

var (
	classifySession  string
	classifySubject  string
	classifyInput    string
	classifyForce    bool
	classifyRegister bool
)

var classifyCmd = &cobra.Command{
	Use:   "classify",
	Short: "Classify one request and print the JSON result",
	Long: `Reads a request (snapshot, context) as JSON from --input or stdin,
classifies it and prints the result. With the in-memory store the session is
registered automatically.`,
	Run: runClassify,
}

func init() {
	classifyCmd.Flags().StringVar(&classifySession, "session", "", "session id (overrides the input)")
	classifyCmd.Flags().StringVar(&classifySubject, "subject", "", "subject id (overrides the input)")
	classifyCmd.Flags().StringVar(&classifyInput, "input", "-", "request JSON file, - for stdin")
	classifyCmd.Flags().BoolVar(&classifyForce, "force", false, "ignore a matching previous classification")
	classifyCmd.Flags().BoolVar(&classifyRegister, "register", false, "register the session before classifying")
	rootCmd.AddCommand(classifyCmd)
}

func runClassify(cmd *cobra.Command, args []string) {
	cfg := loadConfig(cmd)

	req, err := readRequest(classifyInput)
	if err != nil {
		slog.Error("Failed to read request", "error", err)
		os.Exit(1)
	}
	if classifySession != "" {
		req.SessionID = classifySession
	}
	if classifySubject != "" {
		req.SubjectID = classifySubject
	}
	req.ForceReclassification = req.ForceReclassification || classifyForce

	ctx := context.Background()
	app, err := control.NewService(ctx, cfg, slog.Default())
	if err != nil {
		slog.Error("Failed to initialize service", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	if classifyRegister || app.Ephemeral() {
		if err := app.PutSession(ctx, &domain.Session{ID: req.SessionID, SubjectID: req.SubjectID}); err != nil {
			slog.Error("Failed to register session", "error", err)
			os.Exit(1)
		}
	}

	res, classifyErr := app.Engine().Classify(ctx, req)
	if res != nil {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(res); err != nil {
			slog.Error("Failed to encode result", "error", err)
			os.Exit(1)
		}
	}
	if classifyErr != nil {
		slog.Error("Classification failed", "session", req.SessionID, "error", classifyErr)
		os.Exit(1)
	}
}

func readRequest(path string) (engine.Request, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return engine.Request{}, err
		}
		defer func() {
			_ = f.Close()
		}()
		r = f
	}

	var req engine.Request
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return engine.Request{}, fmt.Errorf("invalid request JSON: %w", err)
	}
	return req, nil
}
