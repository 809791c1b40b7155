package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ohtaman/streamlit-desktop-app/internal/logging"
)

// Version is set at build time via ldflags.
var Version = "0.1.0-dev"

const defaultLogLevel = "info"

func main() {
	var levelVar slog.LevelVar
	levelVar.Set(slog.LevelInfo)

	logger := logging.NewCLI(os.Stderr, &levelVar)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCommand(logger, &levelVar)
	if err := root.ExecuteContext(ctx); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Warn("interrupted", "error", err)
			os.Exit(130)
		}
		logger.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func newRootCommand(logger *slog.Logger, levelVar *slog.LevelVar) *cobra.Command {
	logLevel := defaultLogLevel
	logJSON := false

	root := &cobra.Command{
		Use:           "streamlit-desktop",
		Short:         "Run Streamlit apps as native desktop applications",
		SilenceErrors: true,
		SilenceUsage:  true,
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", defaultLogLevel, "Log verbosity (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&logJSON, "log-json", false, "Emit logs as JSON")
	root.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		level, err := logging.ParseLevel(logLevel)
		if err != nil {
			return err
		}
		levelVar.Set(level)
		if logJSON {
			slog.SetDefault(logging.NewJSON(os.Stderr, levelVar))
		}
		return nil
	}

	root.AddCommand(
		newRunCommand(),
		newExampleCommand(),
		newVersionCommand(),
	)
	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the streamlit-desktop version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmd.Println(Version)
			return nil
		},
	}
}
