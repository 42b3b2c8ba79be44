package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/plos/internal/canonical"
	"github.com/roach88/plos/internal/event"
	"github.com/roach88/plos/internal/replica"
)

// NewIndexCommand creates the index command group.
func NewIndexCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Query the SQLite event index",
		Long: `The index is a SQLite cache of every event, rebuilt from the log on
demand. The log stays the source of truth.`,
	}

	cmd.AddCommand(newIndexRebuildCommand(rootOpts))
	cmd.AddCommand(newIndexHistoryCommand(rootOpts))

	return cmd
}

// rebuildResult reports an index rebuild.
type rebuildResult struct {
	Events int    `json:"events"`
	Path   string `json:"path"`
}

func (r rebuildResult) String() string {
	return fmt.Sprintf("Index rebuilt: %d events in %s", r.Events, r.Path)
}

func newIndexRebuildCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "rebuild",
		Short: "Rebuild the index from the log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withReplica(cmd, func(rep *replica.Replica) error {
				n, err := rep.RebuildIndex(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "rebuild failed", err)
				}
				return rootOpts.formatter(cmd).Success(rebuildResult{Events: n, Path: rep.Config().IndexPath()})
			})
		},
	}
}

// historyEntry is one event of an entity's history.
type historyEntry struct {
	Event     event.Event `json:"event"`
	SegmentID string      `json:"segmentId,omitempty"`
}

type history []historyEntry

func (h history) String() string {
	if len(h) == 0 {
		return "No events."
	}
	var b strings.Builder
	for i, entry := range h {
		if i > 0 {
			b.WriteByte('\n')
		}
		e := entry.Event
		payload, err := canonical.String(e.Payload)
		if err != nil {
			payload = "?"
		}
		where := entry.SegmentID
		if where == "" {
			where = "buffer"
		}
		fmt.Fprintf(&b, "%d %s#%d %s %s [%s]", e.Timestamp, e.Origin, e.Seq, e.Type, payload, where)
	}
	return b.String()
}

func newIndexHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <entityId>",
		Short: "Print one entity's events in total order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withReplica(cmd, func(rep *replica.Replica) error {
				rows, err := rep.History(cmd.Context(), args[0])
				if err != nil {
					return WrapExitError(ExitCommandError, "history failed", err)
				}
				out := make(history, 0, len(rows))
				for _, row := range rows {
					out = append(out, historyEntry{Event: row.Event, SegmentID: row.SegmentID})
				}
				return rootOpts.formatter(cmd).Success(out)
			})
		},
	}
}
