package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/plos/internal/replica"
	"github.com/roach88/plos/internal/segment"
)

// sealResult reports a sealed segment.
type sealResult struct {
	SegmentID string  `json:"segmentId,omitempty"`
	Events    int64   `json:"events"`
	Root      string  `json:"root,omitempty"`
	Prev      *string `json:"prevSegmentRoot,omitempty"`
	KeyID     string  `json:"keyId,omitempty"`
}

func (r sealResult) String() string {
	if r.SegmentID == "" {
		return "Nothing to seal."
	}
	return fmt.Sprintf("Sealed %s: %d events, root %s", r.SegmentID, r.Events, r.Root)
}

// NewSealCommand creates the seal command.
func NewSealCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seal",
		Short: "Seal the buffer into a signed segment",
		Long: `Seal every buffered event into the next segment: the events are
written in total order, committed by a Merkle root, chained to the previous
segment's root and signed with the local Ed25519 key.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withReplica(cmd, func(rep *replica.Replica) error {
				sealed, err := rep.Seal(cmd.Context())
				if errors.Is(err, segment.ErrNothingToSeal) {
					return rootOpts.formatter(cmd).Success(sealResult{})
				}
				if err != nil {
					return WrapExitError(ExitCommandError, "seal failed", err)
				}
				m := sealed.Manifest
				return rootOpts.formatter(cmd).Success(sealResult{
					SegmentID: m.SegmentID,
					Events:    m.Events,
					Root:      m.Root,
					Prev:      m.PrevSegmentRoot,
					KeyID:     m.KeyID,
				})
			})
		},
	}
}

// NewVerifyCommand creates the verify command.
func NewVerifyCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Verify every sealed segment",
		Long: `Verify the segment chain in order: event count, Merkle root, signature,
link to the previous root, and manifest shape. Verification stops at the
first failing segment.

Exit codes:
  0 - The chain verifies
  1 - A segment failed
  2 - Command error`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withReplica(cmd, func(rep *replica.Replica) error {
				report, err := rep.Verify(cmd.Context())
				if err != nil {
					return WrapExitError(ExitCommandError, "verify failed", err)
				}
				return outputReport(rootOpts.formatter(cmd), report)
			})
		},
	}
}

func outputReport(out *OutputFormatter, report segment.Report) error {
	failed, hasFailure := report.Failed()

	if out.Format == "json" {
		if hasFailure {
			if err := out.Error(CodeFailure, "verification failed: "+failed.SegmentID, report); err != nil {
				return err
			}
		} else if err := out.Success(report); err != nil {
			return err
		}
	} else {
		for _, s := range report.Segments {
			fmt.Fprintln(out.Writer, segmentLine(s))
		}
		if hasFailure {
			fmt.Fprintf(out.Writer, "FAIL: chain broken at %s\n", failed.SegmentID)
		} else {
			fmt.Fprintf(out.Writer, "OK: %d segments verified\n", len(report.Segments))
		}
	}

	if hasFailure {
		return NewExitError(ExitFailure, "verification failed at "+failed.SegmentID)
	}
	return nil
}

func segmentLine(s segment.SegmentReport) string {
	status := "ok"
	if !s.OK {
		status = "FAIL"
	}
	if s.Error != "" {
		return fmt.Sprintf("%s %s: %s", status, s.SegmentID, s.Error)
	}

	checks := []string{
		check("events", s.EventsOK),
		check("root", s.RootOK),
		check("sig", s.SigOK),
		check("chain", s.ChainOK),
		check("manifest", s.ManifestOK),
	}
	line := fmt.Sprintf("%s %s (%d events) %s", status, s.SegmentID, s.Events, strings.Join(checks, " "))
	for _, msg := range s.ManifestErrors {
		line += "\n    " + msg
	}
	return line
}

func check(name string, ok bool) string {
	if ok {
		return name + "=ok"
	}
	return name + "=FAIL"
}
