// Package commands implements the syllabusctl operations CLI.
package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"syllabussync/internal/bootstrap"
	"syllabussync/internal/config"
)

var configPath string

// NewRootCmd builds the command tree.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "syllabusctl",
		Short:         "Operate the SyllabusSync ingestion pipeline",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if configPath != "" {
				return os.Setenv("CONFIG_FILE", configPath)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $CONFIG_FILE or configs/config.toml)")

	root.AddCommand(
		NewMigrateCmd(),
		NewWorkerCmd(),
		NewIngestCmd(),
		NewStageCmd(),
		NewAskCmd(),
		NewICSCmd(),
	)
	return root
}

func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

// openApp loads the configuration and builds the application. Stages run
// in-process unless the caller asks for the broker.
func openApp(ctx context.Context, opts bootstrap.Options) (*bootstrap.App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	app, err := bootstrap.New(ctx, cfg, opts)
	if err != nil {
		return nil, fmt.Errorf("starting application: %w", err)
	}
	return app, nil
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
