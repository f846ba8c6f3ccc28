package cmd

import (
	"encoding/json"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/roomsearch/internal/output"
)

// roomEntry is the JSON form of a registered room.
type roomEntry struct {
	Room         string    `json:"room"`
	Dir          string    `json:"dir"`
	CreatedAt    time.Time `json:"created_at"`
	LastOpenedAt time.Time `json:"last_opened_at"`
}

func newRoomsCmd(a *app) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "rooms",
		Short: "List registered rooms",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			cat, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer func() {
				if cerr := cat.Close(ctx); cerr != nil && err == nil {
					err = cerr
				}
			}()

			rooms, err := cat.Rooms(ctx)
			if err != nil {
				return err
			}

			if jsonOutput {
				entries := make([]roomEntry, 0, len(rooms))
				for _, r := range rooms {
					entries = append(entries, roomEntry{
						Room:         r.ID,
						Dir:          r.Dir,
						CreatedAt:    r.CreatedAt.UTC(),
						LastOpenedAt: r.LastOpenedAt.UTC(),
					})
				}
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(entries)
			}

			out := output.New(cmd.OutOrStdout())
			if len(rooms) == 0 {
				out.Status("📭", "No rooms yet. Add an event with 'roomsearch add'.")
				return nil
			}
			out.Header("Rooms")
			for _, r := range rooms {
				out.KeyValue(r.ID, "last opened "+r.LastOpenedAt.Format(time.DateTime))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")

	return cmd
}

func newDropCmd(a *app) *cobra.Command {
	var room string

	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Delete a room and its index",
		RunE: func(cmd *cobra.Command, _ []string) (err error) {
			ctx := cmd.Context()
			cat, err := a.openCatalog()
			if err != nil {
				return err
			}
			defer func() {
				if cerr := cat.Close(ctx); cerr != nil && err == nil {
					err = cerr
				}
			}()

			if err := cat.Drop(ctx, room); err != nil {
				return err
			}
			output.New(cmd.OutOrStdout()).Successf("Dropped %s", room)
			return nil
		},
	}

	cmd.Flags().StringVarP(&room, "room", "r", "", "Room id (required)")
	_ = cmd.MarkFlagRequired("room")

	return cmd
}
