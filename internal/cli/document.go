package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/docstore/internal/filter"
	"github.com/roach88/docstore/internal/store"
)

// keyResult identifies a written or deleted document.
type keyResult struct {
	Partition string `json:"partition"`
	Keyspace  string `json:"keyspace"`
	ID        string `json:"id"`
}

func (k keyResult) String() string {
	return k.ID
}

// NewPutCommand creates the put command.
func NewPutCommand(rootOpts *RootOptions) *cobra.Command {
	var (
		data    string
		ttl     time.Duration
		filters map[string]string
	)

	cmd := &cobra.Command{
		Use:   "put <partition> <keyspace> [id]",
		Short: "Write a JSON document",
		Long: `Write a JSON document, replacing any document under the same key.

The document is read from --data, or from stdin when --data is empty or "-".
Without an id a random UUID is used. Without --ttl the document never
expires.`,
		Args:          cobra.RangeArgs(2, 3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			payload := []byte(data)
			if data == "" || data == "-" {
				in, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return f.Fail(ExitCommandError, ErrCodeInput, "read document", err)
				}
				payload = in
			}
			if !json.Valid(payload) {
				return f.Fail(ExitCommandError, ErrCodeInput, "document is not valid JSON", nil)
			}

			attrs := filter.Parse(filters)
			if err := attrs.Validate(); err != nil {
				return f.Fail(ExitCommandError, ErrCodeInput, "invalid filter", err)
			}

			key := keyResult{Partition: args[0], Keyspace: args[1]}
			if len(args) == 3 {
				key.ID = args[2]
			} else {
				key.ID = uuid.NewString()
			}

			expiry := store.Forever
			if cmd.Flags().Changed("ttl") {
				if ttl < 0 {
					return f.Fail(ExitCommandError, ErrCodeInput, "ttl must not be negative", nil)
				}
				expiry = ttl
			}

			s, _, err := rootOpts.openStore(cmd, f)
			if err != nil {
				return err
			}
			defer s.Close()

			if !s.Put(cmd.Context(), key.Partition, key.Keyspace, key.ID, expiry, attrs, json.RawMessage(payload)) {
				return f.Fail(ExitFailure, ErrCodeWriteFailed, "write not confirmed", nil)
			}
			return f.Success(key)
		},
	}

	cmd.Flags().StringVarP(&data, "data", "d", "", "document JSON (default: read stdin)")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "time until the document expires")
	cmd.Flags().StringToStringVarP(&filters, "filter", "f", nil, "filter attribute key=value (repeatable)")

	return cmd
}

// NewGetCommand creates the get command.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "get <partition> <keyspace> <id>",
		Short:         "Print a document",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			s, _, err := rootOpts.openStore(cmd, f)
			if err != nil {
				return err
			}
			defer s.Close()

			doc, err := store.Lookup[json.RawMessage](cmd.Context(), s, args[0], args[1], args[2])
			switch {
			case errors.Is(err, store.ErrNotFound):
				return f.Fail(ExitFailure, ErrCodeNotFound, fmt.Sprintf("document %s not found", args[2]), nil)
			case store.IsDecodeError(err):
				return f.Fail(ExitFailure, ErrCodeDecode, "document could not be decoded", err)
			case err != nil:
				return f.Fail(ExitFailure, ErrCodeGeneric, "read document", err)
			}
			return f.Success(doc)
		},
	}
	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "delete <partition> <keyspace> <id>",
		Short:         "Delete a document",
		Long:          "Delete a document. Deleting a document that does not exist succeeds.",
		Args:          cobra.ExactArgs(3),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := rootOpts.formatter(cmd)

			s, _, err := rootOpts.openStore(cmd, f)
			if err != nil {
				return err
			}
			defer s.Close()

			if !s.Delete(cmd.Context(), args[0], args[1], args[2]) {
				return f.Fail(ExitFailure, ErrCodeWriteFailed, "delete not confirmed", nil)
			}
			return f.Success(keyResult{Partition: args[0], Keyspace: args[1], ID: args[2]})
		},
	}
	return cmd
}
