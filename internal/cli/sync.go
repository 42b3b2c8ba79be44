package cli

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/plos/internal/bundle"
	"github.com/roach88/plos/internal/replica"
)

// mergeResult reports a sync or bundle import.
type mergeResult struct {
	verb string
	replica.MergeResult

	Bundle string `json:"bundle,omitempty"`
	From   string `json:"from,omitempty"`
	Sealed string `json:"sealed,omitempty"`
}

func (r mergeResult) String() string {
	s := fmt.Sprintf("%s %d events received, %d new. Local log now contains %d events.", r.verb, r.Received, r.Added, r.Total)
	if r.Skipped > 0 {
		s += fmt.Sprintf(" %d malformed lines skipped.", r.Skipped)
	}
	if r.Sealed != "" {
		s += fmt.Sprintf(" (sealed %s)", r.Sealed)
	}
	return s
}

func newMergeResult(verb string, res replica.MergeResult) mergeResult {
	out := mergeResult{verb: verb, MergeResult: res}
	if res.Sealed != nil {
		out.Sealed = res.Sealed.Manifest.SegmentID
	}
	return out
}

// fileArg checks that a command's input file exists.
func fileArg(path string) error {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return NewExitError(ExitCommandError, fmt.Sprintf("file not found: %s", path))
		}
		return WrapExitError(ExitCommandError, "cannot read input", err)
	}
	return nil
}

// NewSyncCommand creates the sync command.
func NewSyncCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync <path>",
		Short: "Merge a peer's events.jsonl into this replica",
		Long: `Merge the events of another replica's log file into this one.

Events are unioned by id, the seen map is raised to the highest sequence
per origin, and the buffer is sealed if it reached the threshold. Running
the same sync twice changes nothing.

Example:
  plos sync ../laptop/data/events.jsonl`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := fileArg(args[0]); err != nil {
				return err
			}
			return rootOpts.withReplica(cmd, func(rep *replica.Replica) error {
				res, err := rep.Sync(cmd.Context(), args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "sync failed", err)
				}
				return rootOpts.formatter(cmd).Success(newMergeResult("Synced.", res))
			})
		},
	}
}

// WatchOptions holds flags for the watch command.
type WatchOptions struct {
	*RootOptions
	Interval time.Duration
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &WatchOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "watch <path>",
		Short: "Keep syncing a peer's events.jsonl as it changes",
		Long: `Sync a peer's log once, then again every time the file changes, until
interrupted. Bursts of changes are collapsed to at most one sync per
interval.

Example:
  plos watch /mnt/shared/phone/data/events.jsonl --interval 2s`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(opts, args[0], cmd)
		},
	}

	cmd.Flags().DurationVar(&opts.Interval, "interval", replica.DefaultWatchInterval, "minimum time between two syncs")

	return cmd
}

func runWatch(opts *WatchOptions, path string, cmd *cobra.Command) error {
	if err := fileArg(path); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := opts.formatter(cmd)
	return opts.withReplica(cmd, func(rep *replica.Replica) error {
		err := rep.Watch(ctx, path, replica.WatchOptions{
			Interval: opts.Interval,
			OnSync: func(res replica.MergeResult) {
				if err := out.Success(newMergeResult("Synced.", res)); err != nil {
					out.VerboseLog("write output: %v", err)
				}
				if err := rep.FlushMetrics(); err != nil {
					out.VerboseLog("flush metrics: %v", err)
				}
			},
		})
		if err != nil {
			return WrapExitError(ExitCommandError, "watch failed", err)
		}
		return nil
	})
}

// bundleResult reports an exported bundle.
type bundleResult struct {
	Path     string `json:"path"`
	BundleID string `json:"bundleId"`
	Events   int    `json:"events"`
}

func (r bundleResult) String() string {
	return fmt.Sprintf("Bundle exported: %s (%d events)", r.Path, r.Events)
}

// NewExportBundleCommand creates the export-bundle command.
func NewExportBundleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export-bundle <path>",
		Short: "Write every event to a portable bundle file",
		Long: `Write every sealed and buffered event, in total order, to a bundle
file another replica can import. Use "-" to write the bundle to stdout.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			return rootOpts.withReplica(cmd, func(rep *replica.Replica) error {
				if path == "-" {
					if _, _, err := rep.WriteBundle(cmd.Context(), cmd.OutOrStdout()); err != nil {
						return WrapExitError(ExitCommandError, "export failed", err)
					}
					return nil
				}
				header, n, err := rep.ExportBundle(cmd.Context(), path)
				if err != nil {
					return WrapExitError(ExitCommandError, "export failed", err)
				}
				return rootOpts.formatter(cmd).Success(bundleResult{Path: path, BundleID: header.BundleID, Events: n})
			})
		},
	}
}

// NewImportBundleCommand creates the import-bundle command.
func NewImportBundleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import-bundle <path>",
		Short: "Merge a bundle file into this replica",
		Long: `Merge the events of a bundle file into this replica. The bundle
header must carry bundle version ` + bundle.Version + `.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := fileArg(args[0]); err != nil {
				return err
			}
			return rootOpts.withReplica(cmd, func(rep *replica.Replica) error {
				header, res, err := rep.ImportBundle(cmd.Context(), args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "import failed", err)
				}
				out := newMergeResult("Bundle imported:", res)
				out.Bundle, out.From = header.BundleID, header.Origin
				return rootOpts.formatter(cmd).Success(out)
			})
		},
	}
}
