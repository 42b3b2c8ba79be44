package cli

import (
	"github.com/spf13/cobra"

	"github.com/roach88/plos/internal/projection"
	"github.com/roach88/plos/internal/replica"
)

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Print the projected state",
		Long: `Rebuild the state from every sealed and buffered event and print it
as JSON: entities keyed by id, then the conflicts found along the way.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withReplica(cmd, func(rep *replica.Replica) error {
				state, err := rep.State(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read events", err)
				}
				return rootOpts.formatter(cmd).Document(state)
			})
		},
	}
}

// ConflictsOptions holds flags for the conflicts command.
type ConflictsOptions struct {
	*RootOptions
	Unresolved bool
}

// NewConflictsCommand creates the conflicts command.
func NewConflictsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ConflictsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "conflicts",
		Short: "List concurrent writes to the same field",
		Long: `List the conflicts of the projected state. Each conflict names the two
candidate events, the default winner, and the resolution if one exists.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withReplica(cmd, func(rep *replica.Replica) error {
				state, err := rep.State(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read events", err)
				}
				conflicts := state.Conflicts
				if opts.Unresolved {
					conflicts = state.Unresolved()
				}
				if conflicts == nil {
					conflicts = []projection.Conflict{}
				}
				return opts.formatter(cmd).Document(conflicts)
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Unresolved, "unresolved", false, "only list conflicts without a resolution")

	return cmd
}

// NewExportCommand creates the export command.
func NewExportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Print every event in total order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withReplica(cmd, func(rep *replica.Replica) error {
				events, err := rep.Events(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read events", err)
				}
				return rootOpts.formatter(cmd).Document(events)
			})
		},
	}
}
