package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"noteboard/api/internal/channel"
	"noteboard/api/internal/wire"
)

var addCmd = &cobra.Command{
	Use:   "add [text]",
	Short: "Add a note to the board",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		text := strings.Join(args, " ")
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

		match := newNoteMatcher(c.Latest(), c.Identity().ID, text)
		ref, err := c.RequestCreate(text)
		if err != nil {
			return err
		}
		note, err := awaitChange(c, rejected, ref, match)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Note added: %s\n", note)
		return nil
	},
}

// newNoteMatcher finds our note with text among notes that were not on the
// board in before, so an older note with the same text is never mistaken for it.
func newNoteMatcher(before channel.Snapshot, ownerID, text string) func(channel.Snapshot) (string, bool) {
	seen := make(map[string]struct{}, len(before.Notes))
	for _, note := range before.Notes {
		seen[note.ID] = struct{}{}
	}
	return func(snap channel.Snapshot) (string, bool) {
		for _, note := range snap.Notes {
			if _, old := seen[note.ID]; old {
				continue
			}
			if note.OwnerID == ownerID && note.Text == text {
				return note.ID, true
			}
		}
		return "", false
	}
}

func init() {
	rootCmd.AddCommand(addCmd)
}
