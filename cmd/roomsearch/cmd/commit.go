package cmd

import (
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/roomsearch/internal/output"
	"github.com/Aman-CERP/roomsearch/pkg/roomindex"
)

func newCommitCmd(a *app) *cobra.Command {
	var room string

	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Force a commit of a room's staged events",
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := output.New(cmd.OutOrStdout())
			ctx := cmd.Context()
			return a.withRoom(ctx, room, func(idx *roomindex.RoomIndex) error {
				stamp, err := idx.ForceCommit(ctx)
				if err != nil {
					return err
				}
				out.Successf("Committed %s", room)
				out.KeyValue("Opstamp", stamp)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&room, "room", "r", "", "Room id (required)")
	_ = cmd.MarkFlagRequired("room")

	return cmd
}
