// Package cli implements the tagstate command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/tagstate/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // optional CUE file unified with the defaults

	cfg    config.Config
	logger *slog.Logger
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the tagstate CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "tagstate",
		Short: "tagstate - tag index over a content chain",
		Long: `tagstate applies blocks of content operations (accounts, posts, votes,
transfers, payouts) and maintains the tag, peer and author indexes that
discussion listings are served from.`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return opts.setup(cmd.ErrOrStderr())
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "CUE configuration file")

	cmd.AddCommand(NewApplyCommand(opts))
	cmd.AddCommand(NewReplayCommand(opts))
	cmd.AddCommand(NewQueryCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	return cmd
}

// setup loads the configuration and installs the logger. Diagnostics go to
// stderr so JSON output on stdout stays parseable.
func (o *RootOptions) setup(stderr io.Writer) error {
	cfg, err := config.Load(o.Config)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	level := cfg.SlogLevel()
	if o.Verbose {
		level = slog.LevelDebug
	}
	o.cfg = cfg
	o.logger = slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: level}))
	return nil
}

// Logger returns the logger installed by setup, or a silent one when a
// subcommand runs without its root.
func (o *RootOptions) Logger() *slog.Logger {
	if o.logger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o.logger
}

// Settings returns the loaded configuration, or the defaults.
func (o *RootOptions) Settings() config.Config {
	if o.logger == nil {
		return config.Default()
	}
	return o.cfg
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}
