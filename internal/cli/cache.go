package cli

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/weiawesome/fin-dashboard/internal/cache"
)

func newCacheCommand(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect and manage the local response cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "inspect",
		Short: "Show the state of every cached dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.renderInspect(cmd.OutOrStdout())
		},
	})

	cmd.AddCommand(newCacheWatchCommand(a))

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every cached dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a.cache.Clear()
			fmt.Fprintln(cmd.OutOrStdout(), "cache cleared")
			return nil
		},
	})

	keyNames := make([]string, len(cache.Keys))
	for i, k := range cache.Keys {
		keyNames[i] = string(k)
	}
	cmd.AddCommand(&cobra.Command{
		Use:       "invalidate <key>",
		Short:     "Remove one cached dataset",
		Long:      "Remove one cached dataset. Keys: " + strings.Join(keyNames, ", "),
		Args:      cobra.ExactArgs(1),
		ValidArgs: keyNames,
		RunE: func(cmd *cobra.Command, args []string) error {
			key, ok := cache.ParseKey(strings.ToUpper(args[0]))
			if !ok {
				return fmt.Errorf("unknown cache key %q (want one of %s)", args[0], strings.Join(keyNames, ", "))
			}
			a.cache.Invalidate(key)
			fmt.Fprintf(cmd.OutOrStdout(), "invalidated %s\n", key)
			return nil
		},
	})

	return cmd
}

func (a *app) renderInspect(w io.Writer) error {
	statuses := a.cache.Inspect()
	if a.jsonOut {
		return writeJSON(w, statuses)
	}

	tw := newTable(w)
	fmt.Fprintln(tw, "KEY\tSTATE\tEXPIRES IN\tSIZE")
	for _, st := range statuses {
		remaining := "-"
		if st.State == cache.StateValid {
			remaining = st.Remaining.Round(time.Second).String()
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", st.Key, st.State, remaining, st.Size)
	}
	return tw.Flush()
}

// newCacheWatchCommand re-renders the inspection on every tick and, for the
// file store, whenever another process rewrites the cache file.
func newCacheWatchCommand(a *app) *cobra.Command {
	var interval time.Duration

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Continuously show the state of every cached dataset",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var changes <-chan struct{}
			if fs, ok := a.store.(*cache.FileStore); ok {
				ch, err := fs.Watch(ctx)
				if err != nil {
					return err
				}
				changes = ch
			}

			ticker := time.NewTicker(interval)
			defer ticker.Stop()

			out := cmd.OutOrStdout()
			for {
				fmt.Fprintf(out, "-- %s\n", time.Now().Format(time.TimeOnly))
				if err := a.renderInspect(out); err != nil {
					return err
				}
				select {
				case <-ctx.Done():
					return nil
				case <-ticker.C:
				case _, ok := <-changes:
					if !ok {
						changes = nil
					}
				}
			}
		},
	}
	cmd.Flags().DurationVar(&interval, "interval", 5*time.Second, "refresh interval")
	return cmd
}
