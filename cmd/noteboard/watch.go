package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"noteboard/api/internal/channel"
	"noteboard/api/internal/wire"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the board every time it changes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		c, err := connect(ctx, func(f wire.ErrorFrame) {
			fmt.Fprintf(os.Stderr, "rejected: %s\n", f.Message)
		})
		if err != nil {
			return err
		}
		defer c.Close()

		me := c.Identity().ID
		render(cmd.OutOrStdout(), c.Latest(), me)
		for {
			select {
			case <-ctx.Done():
				return nil
			case snap, ok := <-c.Snapshots():
				if !ok {
					return nil
				}
				render(cmd.OutOrStdout(), snap, me)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

// render prints notes newest first, marking the ones me may delete.
func render(w io.Writer, snap channel.Snapshot, me string) {
	fmt.Fprintf(w, "--- board v%d ---\n", snap.Version)
	for _, note := range snap.Notes {
		mark := " "
		if note.OwnerID == me {
			mark = "*"
		}
		when := "pending"
		if note.CreatedAt != nil {
			when = note.CreatedAt.Local().Format(time.DateTime)
		}
		fmt.Fprintf(w, "%s %s  %-9s %s  %s\n", mark, note.ID, note.OwnerName, when, note.Text)
	}
	fmt.Fprintf(w, "Total notes: %d\n", len(snap.Notes))
}
