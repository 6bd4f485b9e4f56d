package cli

import (
	"fmt"
	"io"
	"log/slog"
	"slices"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/roach88/docstore/internal/config"
	"github.com/roach88/docstore/internal/store"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"

	// v resolves store configuration from --config, DOCSTORE_* variables
	// and the store flags below.
	v *viper.Viper
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the docstore CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{v: config.NewViper()}

	cmd := &cobra.Command{
		Use:   "docstore",
		Short: "docstore - documents on SQLite",
		Long: `Inspect and maintain a docstore database: JSON documents addressed by
partition, keyspace and id, with optional expiry, filter attributes and
encryption at rest.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
			}
			return nil
		},
	}

	// Global flags
	flags := cmd.PersistentFlags()
	flags.BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	flags.StringVar(&opts.Format, "format", "text", "output format (json|text)")

	// Store flags override the config file and environment.
	flags.String(config.KeyConfig, "", "path to a YAML config file")
	flags.String(config.KeyDriver, "", "database/sql driver (sqlite3|sqlite)")
	flags.String(config.KeyDSN, "", "database file or DSN")
	flags.String(config.KeyTable, "", "document table name")
	flags.Int(config.KeyPageSize, 0, "rows fetched per scan page")
	flags.String(config.KeyEncryptionKey, "", "secret for encryption at rest")
	flags.Bool(config.KeyHashFilters, false, "store filter attributes as keyed hashes")
	flags.Bool(config.KeyStrictDecode, false, "reject payloads with unknown fields")
	flags.String(config.KeyLogLevel, "", "log level (debug|info|warn|error)")
	for _, key := range []string{
		config.KeyConfig, config.KeyDriver, config.KeyDSN, config.KeyTable, config.KeyPageSize,
		config.KeyEncryptionKey, config.KeyHashFilters, config.KeyStrictDecode, config.KeyLogLevel,
	} {
		if err := opts.v.BindPFlag(key, flags.Lookup(key)); err != nil {
			panic(err)
		}
	}

	// Add subcommands
	cmd.AddCommand(NewInitCommand(opts))
	cmd.AddCommand(NewPutCommand(opts))
	cmd.AddCommand(NewGetCommand(opts))
	cmd.AddCommand(NewDeleteCommand(opts))
	cmd.AddCommand(NewIDsCommand(opts))
	cmd.AddCommand(NewListCommand(opts))
	cmd.AddCommand(NewPurgeCommand(opts))
	cmd.AddCommand(NewKeyCommand(opts))

	return cmd
}

// isValidFormat checks if the format is one of the allowed values.
func isValidFormat(format string) bool {
	return slices.Contains(ValidFormats, format)
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   o.Verbose,
	}
}

// openStore resolves the configuration and opens the store. Failures are
// reported through f and returned as ExitErrors.
func (o *RootOptions) openStore(cmd *cobra.Command, f *OutputFormatter) (*store.Store, config.Config, error) {
	cfg, err := config.Resolve(o.v)
	if err != nil {
		return nil, config.Config{}, f.Fail(ExitCommandError, ErrCodeConfig, "resolve config", err)
	}
	f.VerboseLog("Using %s database %s (table %q)", cfg.Driver, cfg.DSN, cfg.Table)

	s, err := store.New(cfg, store.WithLogger(newLogger(f.GetErrWriter(), o.Format, cfg.Level())))
	if err != nil {
		return nil, config.Config{}, f.Fail(ExitCommandError, ErrCodeConfig, "create store", err)
	}
	if err := s.Open(cmd.Context()); err != nil {
		return nil, config.Config{}, f.Fail(ExitCommandError, ErrCodeOpen, "open store", err)
	}
	return s, cfg, nil
}

// newLogger writes diagnostics to w, as JSON when the output format is
// JSON.
func newLogger(w io.Writer, format string, level slog.Level) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: level}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}
