package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

func NewCacheCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cache",
		Short: "Inspect or reset the product cache",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Drop every cached entry from memory and durable storage",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *App) error {
				if err := app.Cache.Clear(ctx); err != nil {
					return WrapExitError(ExitCommandError, "failed to clear cache", err)
				}
				return formatter(rootOpts, cmd).Success(map[string]bool{"cleared": true}, func(w io.Writer) {
					fmt.Fprintln(w, "Cache cleared.")
				})
			})
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "stats",
		Short: "Show cache counters for this process",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *App) error {
				stats := app.Cache.Stats()
				return formatter(rootOpts, cmd).Success(stats, func(w io.Writer) {
					fmt.Fprintf(w, "Entries:   %d\n", stats.Entries)
					fmt.Fprintf(w, "Hits:      %d\n", stats.Hits)
					fmt.Fprintf(w, "Misses:    %d\n", stats.Misses)
					fmt.Fprintf(w, "Stale:     %d\n", stats.Stale)
					fmt.Fprintf(w, "Refreshes: %d\n", stats.Refreshes)
					fmt.Fprintf(w, "Errors:    %d\n", stats.Errors)
				})
			})
		},
	})

	return cmd
}

func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Empty the cart and forget every cached product",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, rootOpts, func(ctx context.Context, app *App) error {
				if err := app.Storefront.Logout(ctx); err != nil {
					return WrapExitError(ExitCommandError, "failed to log out", err)
				}
				return formatter(rootOpts, cmd).Success(map[string]bool{"logged_out": true}, func(w io.Writer) {
					fmt.Fprintln(w, "Logged out.")
				})
			})
		},
	}
}
