package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/yairfalse/ebs-tuner/internal/awsclient"
	"github.com/yairfalse/ebs-tuner/internal/event"
	"github.com/yairfalse/ebs-tuner/internal/telemetry"
	"github.com/yairfalse/ebs-tuner/internal/tuner"
)

var (
	runEventFile  string
	runInstanceID string
	runRegion     string
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one tuning invocation",
	Long: `Run a single invocation, exactly as the Lambda function would.

Without an event, all instances carrying the target tag are tuned.
With an EC2 state-change event (or --instance-id), only that instance is tuned.`,
	Example: `  ebs-tuner run                             # Discover by tag
  ebs-tuner run --instance-id i-0abc123     # Single instance
  ebs-tuner run --event event.json          # Replay an EventBridge event
  cat event.json | ebs-tuner run --event -  # Event from stdin`,
	RunE: runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runEventFile, "event", "e", "", "EventBridge event JSON file ('-' for stdin)")
	runCmd.Flags().StringVarP(&runInstanceID, "instance-id", "i", "", "Tune a single instance")
	runCmd.Flags().StringVarP(&runRegion, "region", "r", "", "AWS region (default: SDK chain)")
	runCmd.MarkFlagsMutuallyExclusive("event", "instance-id")
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if runRegion != "" {
		cfg.AWS.Region = runRegion
	}
	if err := cfg.Validate(); err != nil {
		return respond(cmd.OutOrStdout(), tuner.ErrorResponse(err))
	}

	logger, err := setupLogging(cfg)
	if err != nil {
		return err
	}

	raw, err := readEvent(cmd.InOrStdin(), runEventFile, runInstanceID)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	provider, err := telemetry.NewProvider(ctx, cfg.OTEL)
	if err != nil {
		return fmt.Errorf("create telemetry provider: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = provider.Shutdown(shutdownCtx)
	}()

	client, err := awsclient.NewEC2(ctx, cfg.AWS)
	if err != nil {
		return err
	}

	vt := tuner.New(client, logger, provider, tuner.WithTracer(provider.Tracer()))
	return respond(cmd.OutOrStdout(), vt.Handle(ctx, raw, cfg.Tuning))
}

// respond prints resp and turns a non-200 status into a command error.
func respond(w io.Writer, resp tuner.Response) error {
	if err := writeResponse(w, resp); err != nil {
		return err
	}
	if resp.StatusCode != 200 {
		return fmt.Errorf("invocation rejected: %s", resp.Body)
	}
	return nil
}

func readEvent(stdin io.Reader, path, instanceID string) (json.RawMessage, error) {
	switch {
	case instanceID != "":
		return event.StateChange(instanceID, "running")
	case path == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read event from stdin: %w", err)
		}
		return data, nil
	case path != "":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read event file: %w", err)
		}
		return data, nil
	default:
		return nil, nil
	}
}

func writeResponse(w io.Writer, resp tuner.Response) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}
