package main

import (
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/ohtaman/streamlit-desktop-app/internal/desktop"
	"github.com/ohtaman/streamlit-desktop-app/internal/launcher"
)

// runFlags collects the run command's flag values.
type runFlags struct {
	title   string
	width   int
	height  int
	runner  string
	profile string
}

func newRunCommand() *cobra.Command {
	flags := runFlags{
		title:  desktop.DefaultTitle,
		width:  desktop.DefaultWidth,
		height: desktop.DefaultHeight,
	}

	cmd := &cobra.Command{
		Use:   "run <script.py> [-- --streamlit.option=value ...]",
		Short: "Run a Streamlit script in a native desktop window",
		Long: "Run starts the given Streamlit script as a local server on a free\n" +
			"loopback port and displays it in a native window. Arguments after --\n" +
			"are passed to Streamlit as configuration options.",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := launcher.ParseArgs(args[1:])
			if err != nil {
				return err
			}
			return runDesktop(cmd, args[0], flags, opts)
		},
	}

	cmd.Flags().StringVar(&flags.title, "title", flags.title, "Window title")
	cmd.Flags().IntVar(&flags.width, "width", flags.width, "Window width in pixels")
	cmd.Flags().IntVar(&flags.height, "height", flags.height, "Window height in pixels")
	cmd.Flags().StringVar(&flags.runner, "runner", "", "Streamlit executable to use (default \"streamlit\")")
	cmd.Flags().StringVar(&flags.profile, "profile", "", "Path to a TOML launch profile")
	return cmd
}

// runDesktop resolves the launch profile against explicit flags and hands
// off to the orchestrator. Precedence: flags set on the command line win
// over the profile, which wins over built-in defaults.
func runDesktop(cmd *cobra.Command, script string, flags runFlags, cliOpts *launcher.Options) error {
	if flags.profile != "" {
		profile, err := desktop.LoadProfile(flags.profile)
		if err != nil {
			return err
		}
		if profile.Title != "" && !cmd.Flags().Changed("title") {
			flags.title = profile.Title
		}
		if profile.Width > 0 && !cmd.Flags().Changed("width") {
			flags.width = profile.Width
		}
		if profile.Height > 0 && !cmd.Flags().Changed("height") {
			flags.height = profile.Height
		}
		if profile.Runner != "" && !cmd.Flags().Changed("runner") {
			flags.runner = profile.Runner
		}
		// TOML tables are unordered; apply profile entries in sorted key
		// order so the child argument list is reproducible. Explicit CLI
		// options win over profile entries.
		keys := make([]string, 0, len(profile.Options))
		for k := range profile.Options {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		merged := launcher.NewOptions()
		for _, k := range keys {
			merged.Set(k, profile.Options[k])
		}
		for _, k := range cliOpts.Keys() {
			v, _ := cliOpts.Get(k)
			merged.Set(k, v)
		}
		cliOpts = merged
	}

	return desktop.StartDesktopApp(cmd.Context(), script,
		desktop.WithTitle(flags.title),
		desktop.WithSize(flags.width, flags.height),
		desktop.WithRunner(flags.runner),
		desktop.WithOptions(cliOpts),
		desktop.WithLogger(slog.Default()),
	)
}
