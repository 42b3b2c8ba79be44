package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/plos/internal/replica"
)

// keyList is the output of keys list.
type keyList []replica.KeyInfo

func (l keyList) String() string {
	var b strings.Builder
	for i, k := range l {
		if i > 0 {
			b.WriteByte('\n')
		}
		marker := " "
		if k.Active {
			marker = "*"
		}
		fmt.Fprintf(&b, "%s %s origin=%s alg=%s pub=%s", marker, k.KeyID, k.Origin, k.Alg, k.PubPath)
		if k.Fingerprint != "" {
			fmt.Fprintf(&b, " %s", k.Fingerprint)
		}
		if k.Error != "" {
			fmt.Fprintf(&b, " error=%q", k.Error)
		}
	}
	return b.String()
}

// NewKeysCommand creates the keys command group.
func NewKeysCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage signing keys and the key registry",
		Long: `Manage the key registry used to sign and verify segments.

The local Ed25519 key pair and its registry entry are created on first use.
Register a peer's public key with "keys add" to verify segments it sealed.`,
	}

	cmd.AddCommand(newKeysListCommand(rootOpts))
	cmd.AddCommand(newKeysAddCommand(rootOpts))

	return cmd
}

func newKeysListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.withReplica(cmd, func(rep *replica.Replica) error {
				infos, err := rep.Keys()
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read keys", err)
				}
				return rootOpts.formatter(cmd).Success(keyList(infos))
			})
		},
	}
}

// KeysAddOptions holds flags for keys add.
type KeysAddOptions struct {
	*RootOptions
	Activate bool
}

// keyAdded reports a registered key.
type keyAdded struct {
	KeyID   string `json:"keyId"`
	Origin  string `json:"origin"`
	PubPath string `json:"pubPath"`
	Active  bool   `json:"active"`
}

func (k keyAdded) String() string {
	s := fmt.Sprintf("Key registered: %s (origin %s)", k.KeyID, k.Origin)
	if k.Active {
		s += ", now active"
	}
	return s
}

func newKeysAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &KeysAddOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "add <keyId> <origin> <pubPath>",
		Short: "Register a public key",
		Long: `Register a public key for an origin. pubPath is relative to --root and
may hold a PEM (SPKI) or OpenSSH ed25519 public key.

Example:
  plos keys add phone#ed25519-1 phone keys/phone.pub`,
		Args: cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withReplica(cmd, func(rep *replica.Replica) error {
				if err := rep.AddKey(args[0], args[1], args[2], opts.Activate); err != nil {
					return WrapExitError(ExitCommandError, "failed to add key", err)
				}
				return opts.formatter(cmd).Success(keyAdded{
					KeyID:   args[0],
					Origin:  args[1],
					PubPath: args[2],
					Active:  opts.Activate,
				})
			})
		},
	}

	cmd.Flags().BoolVar(&opts.Activate, "activate", false, "sign new segments with this key")

	return cmd
}
