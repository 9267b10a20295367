package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"noteboard/api/internal/channel"
	"noteboard/api/internal/client"
	"noteboard/api/internal/wire"
)

var rmCmd = &cobra.Command{
	Use:   "rm [id]",
	Short: "Delete one of your notes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noteID := args[0]
		rejected := make(chan wire.ErrorFrame, 1)
		c, err := connect(cmd.Context(), func(f wire.ErrorFrame) {
			select {
			case rejected <- f:
			default:
			}
		})
		if err != nil {
			return err
		}
		defer c.Close()

		if !containsNote(c.Latest(), noteID) {
			fmt.Fprintf(cmd.OutOrStdout(), "No such note: %s\n", noteID)
			return nil
		}
		ref, err := c.RequestDelete(noteID)
		if err != nil {
			return err
		}
		if _, err := awaitChange(c, rejected, ref, func(snap channel.Snapshot) (string, bool) {
			return noteID, !containsNote(snap, noteID)
		}); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Note deleted: %s\n", noteID)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(rmCmd)
}

func containsNote(snap channel.Snapshot, noteID string) bool {
	for _, note := range snap.Notes {
		if note.ID == noteID {
			return true
		}
	}
	return false
}

// awaitChange waits until done matches a snapshot or the request with ref
// is rejected.
func awaitChange(c *client.Client, rejected <-chan wire.ErrorFrame, ref string, done func(channel.Snapshot) (string, bool)) (string, error) {
	timer := time.NewTimer(waitTimeout)
	defer timer.Stop()
	for {
		select {
		case snap, ok := <-c.Snapshots():
			if !ok {
				return "", client.ErrClosed
			}
			if id, matched := done(snap); matched {
				return id, nil
			}
		case frame := <-rejected:
			if frame.Ref == ref {
				return "", fmt.Errorf("%s: %s", frame.Code, frame.Message)
			}
		case <-timer.C:
			return "", fmt.Errorf("no confirmation within %s", waitTimeout)
		}
	}
}
