package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/plos/internal/replica"
)

// originResult reports the replica's origin.
type originResult struct {
	Origin  string `json:"origin"`
	NextSeq int64  `json:"nextSeq,omitempty"`
	set     bool
}

func (r originResult) String() string {
	if r.set {
		return "Origin set to: " + r.Origin
	}
	return fmt.Sprintf("Current origin: %s (next seq %d)", r.Origin, r.NextSeq)
}

// NewOriginCommand creates the origin command.
func NewOriginCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "origin [name]",
		Short: "Show or set this replica's origin name",
		Long: `Without an argument, print the origin name events are stamped with.
With a name, rename the origin. The name is NFC-normalized; events already
written keep their origin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := ""
			if len(args) == 1 {
				name = strings.TrimSpace(args[0])
			}
			return rootOpts.withReplica(cmd, func(rep *replica.Replica) error {
				if name != "" {
					origin, err := rep.SetOrigin(name)
					if err != nil {
						return WrapExitError(ExitCommandError, "invalid origin", err)
					}
					return rootOpts.formatter(cmd).Success(originResult{Origin: origin, set: true})
				}
				m, err := rep.Meta()
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read meta", err)
				}
				return rootOpts.formatter(cmd).Success(originResult{Origin: m.Origin, NextSeq: m.NextSeq})
			})
		},
	}
}

// resetResult reports a reset.
type resetResult struct {
	Origin string `json:"origin"`
}

func (r resetResult) String() string {
	return "Reset done: buffer removed, meta reset for origin " + r.Origin
}

// NewResetCommand creates the reset command.
func NewResetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Drop unsealed events and reset the sequence counter",
		Long: `Remove the local buffer (events not yet sealed) and reset the sequence
counter and seen map. The origin name, sealed segments and keys are kept.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withReplica(cmd, func(rep *replica.Replica) error {
				if err := rep.Reset(cmd.Context()); err != nil {
					return WrapExitError(ExitCommandError, "reset failed", err)
				}
				origin, err := rep.Origin()
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read meta", err)
				}
				return rootOpts.formatter(cmd).Success(resetResult{Origin: origin})
			})
		},
	}
}
