package main

import (
	_ "embed"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/ohtaman/streamlit-desktop-app/internal/desktop"
)

//go:embed example.py
var exampleScript []byte

// newExampleCommand runs the bundled demo app, so the tool can be tried
// without writing a script first.
func newExampleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "example",
		Short: "Run the bundled example app in a desktop window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, err := os.MkdirTemp("", "streamlit-desktop-example-")
			if err != nil {
				return err
			}
			defer os.RemoveAll(dir)

			script := filepath.Join(dir, "example.py")
			if err := os.WriteFile(script, exampleScript, 0o644); err != nil {
				return err
			}

			return desktop.StartDesktopApp(cmd.Context(), script,
				desktop.WithTitle("My Streamlit Desktop App"),
				desktop.WithLogger(slog.Default()),
			)
		},
	}
}
