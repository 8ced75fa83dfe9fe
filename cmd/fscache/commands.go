package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/jmgilman/go/fscache"
)

// errMiss is returned by get when the key holds no usable entry.
var errMiss = errors.New("cache miss")

// stopTimeout bounds how long janitor waits for a running purge on exit.
const stopTimeout = 30 * time.Second

func newGetCmd(flags *globalFlags) *cobra.Command {
	var explain bool

	cmd := &cobra.Command{
		Use:   "get KEY",
		Short: "Print the value stored under KEY as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(flags, func(cmd *cobra.Command, store *fscache.Store[any], args []string) error {
			if explain {
				v, err := store.Lookup(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printValue(cmd.OutOrStdout(), v)
			}

			v, err := store.Get(cmd.Context(), args[0], nil)
			if err != nil {
				return err
			}
			if v == nil {
				return fmt.Errorf("%w: %s", errMiss, args[0])
			}
			return printValue(cmd.OutOrStdout(), v)
		}),
	}
	cmd.Flags().BoolVar(&explain, "explain", false, "report why a key is unavailable instead of a plain miss; expired entries are not removed")
	return cmd
}

func newSetCmd(flags *globalFlags) *cobra.Command {
	var ttl string

	cmd := &cobra.Command{
		Use:   "set KEY VALUE",
		Short: "Store VALUE under KEY; VALUE is parsed as JSON, else stored as a string",
		Args:  cobra.ExactArgs(2),
		RunE: withStore(flags, func(cmd *cobra.Command, store *fscache.Store[any], args []string) error {
			t, err := fscache.ParseTTL(ttl)
			if err != nil {
				return err
			}
			ok, err := store.Set(cmd.Context(), args[0], parseValue(args[1]), t)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("failed to store %s (run with --debug for details)", args[0])
			}
			return nil
		}),
	}
	cmd.Flags().StringVar(&ttl, "ttl", "", "lifetime in seconds or as a duration such as 1h30m (default: configured default TTL)")
	return cmd
}

func newDeleteCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "delete KEY...",
		Short: "Remove one or more keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: withStore(flags, func(cmd *cobra.Command, store *fscache.Store[any], args []string) error {
			ok, err := store.DeleteMultiple(cmd.Context(), args)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("failed to delete some keys (run with --debug for details)")
			}
			return nil
		}),
	}
}

func newHasCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "has KEY",
		Short: "Print whether KEY holds an unexpired entry",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(flags, func(cmd *cobra.Command, store *fscache.Store[any], args []string) error {
			ok, err := store.Has(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), ok)
			return err
		}),
	}
}

func newClearCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Remove every cache entry",
		Args:  cobra.NoArgs,
		RunE: withStore(flags, func(cmd *cobra.Command, store *fscache.Store[any], _ []string) error {
			if !store.Clear(cmd.Context()) {
				return fmt.Errorf("failed to remove some entries (run with --debug for details)")
			}
			return nil
		}),
	}
}

func newPurgeCmd(flags *globalFlags) *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "purge",
		Short: "Remove expired and unreadable entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, _, err := openStore(cmd, flags)
			if err != nil {
				return err
			}
			defer store.Close()

			if all {
				derived, err := store.Reconfigure(fscache.WithPurgeAllFiles())
				if err != nil {
					return err
				}
				defer derived.Close()
				store = derived
			}

			res, err := store.PurgeReport(cmd.Context())
			printPurgeResult(cmd, res)
			return err
		},
	}
	cmd.Flags().BoolVar(&all, "all-files", false, "treat every regular file in the directory as a candidate")
	return cmd
}

func printPurgeResult(cmd *cobra.Command, res fscache.PurgeResult) {
	fmt.Fprintf(cmd.OutOrStdout(), "scanned=%d removed_expired=%d removed_corrupt=%d kept=%d failed=%d\n",
		res.Scanned, res.RemovedExpired, res.RemovedCorrupt, res.Kept, res.Failed)
}

func newStatsCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Print the number and total size of entry files",
		Args:  cobra.NoArgs,
		RunE: withStore(flags, func(cmd *cobra.Command, store *fscache.Store[any], _ []string) error {
			count, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			size, err := store.Size(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "dir=%s entries=%d bytes=%d\n", store.Dir(), count, size)
			return nil
		}),
	}
}

func newJanitorCmd(flags *globalFlags) *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "janitor",
		Short: "Purge on a cron schedule until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, logger, err := openStore(cmd, flags)
			if err != nil {
				return err
			}
			defer store.Close()

			j, err := fscache.NewJanitor(store, schedule,
				fscache.WithJanitorLogger(fscache.NewZerologLogger(logger)))
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			res, err := j.RunNow(ctx)
			if err != nil {
				return err
			}
			printPurgeResult(cmd, res)

			j.Start()
			<-ctx.Done()

			stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), stopTimeout)
			defer cancel()
			if err := j.Stop(stopCtx); err != nil {
				return err
			}
			logger.Info().Int("runs", j.Status().Runs).Msg("janitor exited")
			return nil
		},
	}
	cmd.Flags().StringVar(&schedule, "schedule", fscache.DefaultJanitorSchedule,
		"cron spec or descriptor such as @every 5m")
	return cmd
}
