package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/docstore/internal/store"
)

type initResult struct {
	Driver string `json:"driver"`
	DSN    string `json:"dsn"`
	Table  string `json:"table"`
}

func (r initResult) String() string {
	return fmt.Sprintf("initialized %s (table %q)", r.DSN, r.Table)
}

type purgeResult struct {
	Purged int64 `json:"purged"`
}

func (r purgeResult) String() string {
	return fmt.Sprintf("purged %d expired document(s)", r.Purged)
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create or upgrade the document table",
		Long: `Open the configured database, creating the document table and its
indexes and applying any pending schema upgrades.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			s, cfg, err := rootOpts.openStore(cmd, f)
			if err != nil {
				return err
			}
			defer s.Close()

			return f.Success(initResult{Driver: cfg.Driver, DSN: cfg.DSN, Table: cfg.Table})
		},
	}
	return cmd
}

// NewPurgeCommand creates the purge command.
func NewPurgeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "purge",
		Short:         "Delete expired documents now",
		Long:          "Run one expiry pass, the same pass the background janitor runs on its interval.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			s, _, err := rootOpts.openStore(cmd, f)
			if err != nil {
				return err
			}
			defer s.Close()

			n, err := s.Purge(cmd.Context())
			if err != nil {
				return f.Fail(ExitFailure, ErrCodeGeneric, "purge expired documents", err)
			}
			return f.Success(purgeResult{Purged: n})
		},
	}
	return cmd
}

// NewKeyCommand creates the key command and its compose and split
// subcommands. Neither opens the store.
func NewKeyCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "key",
		Short: "Build and take apart composite ids",
	}

	cmd.AddCommand(&cobra.Command{
		Use:           "compose <part>...",
		Short:         "Join parts into one unambiguous id",
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return rootOpts.formatter(cmd).Success(store.ComposeKey(args...))
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:           "split <id>",
		Short:         "Split a composite id into its parts",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)
			parts, err := store.SplitKey(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeInput, "malformed composite id", err)
			}
			return f.Success(parts)
		},
	})

	return cmd
}
