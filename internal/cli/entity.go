package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/plos/internal/replica"
)

// appendResult reports a locally appended event.
type appendResult struct {
	verb string

	EntityID string `json:"entityId"`
	EventID  string `json:"eventId"`
	Seq      int64  `json:"seq"`
	Sealed   string `json:"sealed,omitempty"`
}

func (r appendResult) String() string {
	s := fmt.Sprintf("%s %s", r.verb, r.EntityID)
	if r.Sealed != "" {
		s += fmt.Sprintf(" (sealed %s)", r.Sealed)
	}
	return s
}

func newAppendResult(verb string, a replica.Appended) appendResult {
	res := appendResult{
		verb:     verb,
		EntityID: a.Event.EntityID,
		EventID:  a.Event.ID,
		Seq:      a.Event.Seq,
	}
	if a.Sealed != nil {
		res.Sealed = a.Sealed.Manifest.SegmentID
	}
	return res
}

// appendCommand runs one append against the replica and prints the result.
func appendCommand(opts *RootOptions, cmd *cobra.Command, verb string, do func(*replica.Replica) (replica.Appended, error)) error {
	return opts.withReplica(cmd, func(rep *replica.Replica) error {
		appended, err := do(rep)
		if err != nil {
			return WrapExitError(ExitCommandError, "append failed", err)
		}
		return opts.formatter(cmd).Success(newAppendResult(verb, appended))
	})
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "create <name...>",
		Short: "Create an entity",
		Long: `Create a new entity with the given name and status "active".

All arguments are joined with spaces to form the name.

Example:
  plos create Stabilise finances 2026`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := strings.Join(args, " ")
			return appendCommand(rootOpts, cmd, "Created entity:", func(rep *replica.Replica) (replica.Appended, error) {
				return rep.Create(cmd.Context(), name)
			})
		},
	}
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "update <entityId> <key=value>",
		Short: "Set one field of an entity",
		Long: `Set one field of an entity.

The value is typed: true and false become booleans, numbers become
numbers, anything else is stored as a string.

Example:
  plos update 3f2a... status=paused
  plos update 3f2a... budget=1200`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, v, err := splitPair(args[1])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid update", err)
			}
			return appendCommand(rootOpts, cmd, "Updated", func(rep *replica.Replica) (replica.Appended, error) {
				return rep.Update(cmd.Context(), args[0], field, v)
			})
		},
	}
}

// NewResolveCommand creates the resolve command.
func NewResolveCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <entityId> <field> <chosenEventId>",
		Short: "Settle a conflict by choosing one write",
		Long: `Settle a conflict on an entity field by choosing the event whose value
should win. Use "plos conflicts" to list candidate event ids.`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return appendCommand(rootOpts, cmd, "Conflict resolved:", func(rep *replica.Replica) (replica.Appended, error) {
				return rep.Resolve(cmd.Context(), args[0], args[1], args[2])
			})
		},
	}
}

// NewRelateCommand creates the relate command.
func NewRelateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "relate <entityId> id=<relationId> [key=value...]",
		Short: "Add a relation to an entity",
		Long: `Add a relation to an entity. The relation is built from key=value
pairs and must carry an id.

Example:
  plos relate 3f2a... id=r1 to=9b1c... kind=blocks`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			relation, err := parsePairs(args[1:])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid relation", err)
			}
			return appendCommand(rootOpts, cmd, "Related", func(rep *replica.Replica) (replica.Appended, error) {
				return rep.Relate(cmd.Context(), args[0], relation)
			})
		},
	}
}

// NewUnrelateCommand creates the unrelate command.
func NewUnrelateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "unrelate <entityId> <relationId>",
		Short: "Remove a relation from an entity",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return appendCommand(rootOpts, cmd, "Unrelated", func(rep *replica.Replica) (replica.Appended, error) {
				return rep.Unrelate(cmd.Context(), args[0], args[1])
			})
		},
	}
}

// NewMetricCommand creates the metric command.
func NewMetricCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "metric <entityId> <key=value...>",
		Short: "Record a metric sample on an entity",
		Long: `Record a metric sample on an entity. The sample is built from
key=value pairs.

Example:
  plos metric 3f2a... name=weight value=71.4 unit=kg`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			metric, err := parsePairs(args[1:])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid metric", err)
			}
			return appendCommand(rootOpts, cmd, "Recorded metric for", func(rep *replica.Replica) (replica.Appended, error) {
				return rep.Record(cmd.Context(), args[0], metric)
			})
		},
	}
}
