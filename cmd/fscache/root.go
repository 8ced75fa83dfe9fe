package main

import (
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/jmgilman/go/fscache"
)

// globalFlags are shared by every subcommand.
type globalFlags struct {
	dir        string
	configPath string
	secret     string
	cipher     string
	codec      string
	defaultTTL string
	debug      bool
}

// defaultTTL applies when neither the config file nor the environment sets
// a default lifetime.
const defaultTTL = "1h"

func newRootCmd() *cobra.Command {
	var flags globalFlags

	cmd := &cobra.Command{
		Use:           "fscache",
		Short:         "Inspect and maintain a filesystem cache",
		Long:          "fscache reads, writes and sweeps a directory of TTL-bound, optionally encrypted cache entries.",
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&flags.dir, "dir", "", "cache directory (overrides config and "+fscache.EnvDir+")")
	pf.StringVar(&flags.configPath, "config", "", "YAML configuration file")
	pf.StringVar(&flags.secret, "secret", "", "encryption secret (overrides "+fscache.EnvSecret+")")
	pf.StringVar(&flags.cipher, "cipher", "", "cipher name (overrides "+fscache.EnvCipher+")")
	pf.StringVar(&flags.codec, "codec", "", "serialization format: json or yaml")
	pf.StringVar(&flags.defaultTTL, "default-ttl", defaultTTL,
		"lifetime of entries written without --ttl, in seconds or as a duration; used when the config and "+fscache.EnvDefaultTTL+" leave it unset")
	pf.BoolVar(&flags.debug, "debug", false, "enable debug logging")

	cmd.AddCommand(
		newGetCmd(&flags),
		newSetCmd(&flags),
		newDeleteCmd(&flags),
		newHasCmd(&flags),
		newClearCmd(&flags),
		newPurgeCmd(&flags),
		newStatsCmd(&flags),
		newJanitorCmd(&flags),
	)
	return cmd
}

const rootCmdExample = `  # Store a JSON value for ten minutes
  fscache --dir /tmp/cache set user-42 '{"name":"ada"}' --ttl 10m

  # Read it back
  fscache --dir /tmp/cache get user-42

  # Remove expired and unreadable entries
  fscache --dir /tmp/cache purge

  # Purge every five minutes until interrupted
  fscache --dir /tmp/cache janitor --schedule "@every 5m"`

// newLogger builds the zerolog console logger used by the CLI.
func newLogger(w io.Writer, debug bool) zerolog.Logger {
	level := zerolog.WarnLevel
	if debug {
		level = zerolog.DebugLevel
	}
	return zerolog.New(zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// openStore resolves the configuration from file, environment and flags and
// opens the cache.
func openStore(cmd *cobra.Command, flags *globalFlags) (*fscache.Store[any], zerolog.Logger, error) {
	logger := newLogger(cmd.ErrOrStderr(), flags.debug)

	cfg, err := fscache.LoadConfig(flags.configPath)
	if err != nil {
		return nil, logger, err
	}

	changed := cmd.Flags().Changed
	if changed("dir") {
		cfg.Dir = flags.dir
	}
	if changed("secret") {
		cfg.Secret = flags.secret
	}
	if changed("cipher") {
		cfg.Cipher = flags.cipher
	}
	if changed("codec") {
		cfg.Codec = flags.codec
	}
	if changed("default-ttl") || cfg.DefaultTTL == 0 {
		seconds, err := fscache.ParseSeconds(flags.defaultTTL)
		if err != nil {
			return nil, logger, fmt.Errorf("invalid --default-ttl: %w", err)
		}
		cfg.DefaultTTL = seconds
	}
	if cfg.Dir == "" {
		return nil, logger, fmt.Errorf("no cache directory: use --dir, --config or %s", fscache.EnvDir)
	}

	logger.Debug().Str("config", cfg.String()).Msg("opening cache")

	store, err := fscache.New[any](cfg, fscache.WithLogger(fscache.NewZerologLogger(logger)))
	if err != nil {
		return nil, logger, err
	}
	return store, logger, nil
}

// withStore opens the store, runs fn and closes the store.
func withStore(flags *globalFlags, fn func(cmd *cobra.Command, store *fscache.Store[any], args []string) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		store, _, err := openStore(cmd, flags)
		if err != nil {
			return err
		}
		defer store.Close()
		return fn(cmd, store, args)
	}
}

// parseValue decodes a command line value as JSON, falling back to the raw
// string.
func parseValue(s string) any {
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil || v == nil {
		return s
	}
	return v
}

// printValue writes v as JSON.
func printValue(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	return enc.Encode(v)
}
