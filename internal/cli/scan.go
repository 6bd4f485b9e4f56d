package cli

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/docstore/internal/filter"
	"github.com/roach88/docstore/internal/store"
)

// listEntry is one document in list output.
type listEntry struct {
	ID        string          `json:"id"`
	Written   time.Time       `json:"written"`
	ExpiresAt *time.Time      `json:"expires_at,omitempty"`
	Value     json.RawMessage `json:"value"`
}

// NewIDsCommand creates the ids command.
func NewIDsCommand(rootOpts *RootOptions) *cobra.Command {
	var filters map[string]string

	cmd := &cobra.Command{
		Use:           "ids <partition> <keyspace>",
		Short:         "List document ids, oldest write first",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			attrs := filter.Parse(filters)
			if err := attrs.Validate(); err != nil {
				return f.Fail(ExitCommandError, ErrCodeInput, "invalid filter", err)
			}

			s, _, err := rootOpts.openStore(cmd, f)
			if err != nil {
				return err
			}
			defer s.Close()

			return f.Success(s.IDs(cmd.Context(), args[0], args[1], attrs))
		},
	}

	cmd.Flags().StringToStringVarP(&filters, "filter", "f", nil, "filter attribute key=value (repeatable)")
	return cmd
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		filters map[string]string
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "list <partition> <keyspace>",
		Short: "Print documents, oldest write first",
		Long: `Print the visible documents in a keyspace, oldest write first.

Documents that cannot be decoded are skipped and counted; run with
--verbose to see the count.`,
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			attrs := filter.Parse(filters)
			if err := attrs.Validate(); err != nil {
				return f.Fail(ExitCommandError, ErrCodeInput, "invalid filter", err)
			}

			s, _, err := rootOpts.openStore(cmd, f)
			if err != nil {
				return err
			}
			defer s.Close()

			entries := []listEntry{}
			failed := 0
			report := s.Scan(cmd.Context(), args[0], args[1], attrs, func(d store.Doc) bool {
				var value json.RawMessage
				if err := d.Decode(&value); err != nil {
					failed++
					return true
				}
				entry := listEntry{ID: d.ID, Written: d.Timestamp, Value: value}
				if !d.ExpiresAt.IsZero() {
					expires := d.ExpiresAt
					entry.ExpiresAt = &expires
				}
				entries = append(entries, entry)
				return limit <= 0 || len(entries) < limit
			})
			if report.Err != nil {
				return f.Fail(ExitFailure, ErrCodeGeneric, "scan documents", report.Err)
			}

			f.VerboseLog("Fetched %d document(s), %d skipped", report.Rows, failed)
			return f.Success(entries)
		},
	}

	cmd.Flags().StringToStringVarP(&filters, "filter", "f", nil, "filter attribute key=value (repeatable)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "stop after this many documents (0 for all)")
	return cmd
}
