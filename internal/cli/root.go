package cli

import (
	"fmt"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"

	"github.com/roach88/plos/internal/config"
	"github.com/roach88/plos/internal/logging"
	"github.com/roach88/plos/internal/replica"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Root    string

	// replicaOpts are appended when opening the replica (tests inject a
	// deterministic clock and ids here).
	replicaOpts []replica.Option
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the plos CLI.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&RootOptions{})
}

func newRootCommand(opts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plos",
		Short: "plos - personal local-first event log",
		Long: `A local-first, multi-writer event store.

Every replica appends to its own log, exchanges events with its peers by
file, and projects the merged log into the same state regardless of the
order the events arrived in. Sealed segments are Merkle-committed, signed
and chained so the history can be verified offline.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Root, "root", ".", "replica root directory")

	cmd.AddCommand(NewCreateCommand(opts))
	cmd.AddCommand(NewUpdateCommand(opts))
	cmd.AddCommand(NewResolveCommand(opts))
	cmd.AddCommand(NewRelateCommand(opts))
	cmd.AddCommand(NewUnrelateCommand(opts))
	cmd.AddCommand(NewMetricCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewConflictsCommand(opts))
	cmd.AddCommand(NewExportCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewWatchCommand(opts))
	cmd.AddCommand(NewExportBundleCommand(opts))
	cmd.AddCommand(NewImportBundleCommand(opts))
	cmd.AddCommand(NewOriginCommand(opts))
	cmd.AddCommand(NewResetCommand(opts))
	cmd.AddCommand(NewSealCommand(opts))
	cmd.AddCommand(NewVerifyCommand(opts))
	cmd.AddCommand(NewKeysCommand(opts))
	cmd.AddCommand(NewIndexCommand(opts))
	cmd.AddCommand(NewTestCommand(opts))

	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})
	wrapArgs(cmd)

	return cmd
}

// wrapArgs makes argument validation failures command errors (exit 2).
func wrapArgs(c *cobra.Command) {
	if validate := c.Args; validate != nil {
		c.Args = func(cmd *cobra.Command, args []string) error {
			if err := validate(cmd, args); err != nil {
				return WrapExitError(ExitCommandError, "invalid arguments", err)
			}
			return nil
		}
	}
	for _, sub := range c.Commands() {
		wrapArgs(sub)
	}
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

// formatter returns the output formatter for cmd.
func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}

// openReplica loads the configuration under --root and opens the replica.
// Logs go to stderr so they never mix with JSON output.
func (o *RootOptions) openReplica(cmd *cobra.Command) (*replica.Replica, error) {
	cfg, err := config.Load(o.Root)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}

	level := logging.ParseLevel(cfg.Log.Level)
	if o.Verbose {
		level = slog.LevelDebug
	}
	logger := logging.New(cmd.ErrOrStderr(), level, cfg.Log.Format)

	opts := append([]replica.Option{replica.WithLogger(logger)}, o.replicaOpts...)
	rep, err := replica.Open(cfg, opts...)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open replica", err)
	}
	return rep, nil
}

// withReplica opens the replica, runs fn and closes it again.
func (o *RootOptions) withReplica(cmd *cobra.Command, fn func(*replica.Replica) error) (err error) {
	rep, err := o.openReplica(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := rep.Close(); closeErr != nil && err == nil {
			err = WrapExitError(ExitCommandError, "failed to close replica", closeErr)
		}
	}()
	return fn(rep)
}
