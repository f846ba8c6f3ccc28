package cmd

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/Aman-CERP/roomsearch/internal/output"
	"github.com/Aman-CERP/roomsearch/pkg/roomindex"
)

// addOptions holds CLI flags for add.
type addOptions struct {
	room      string
	id        string
	sender    string
	timestamp uint64
}

func newAddCmd(a *app) *cobra.Command {
	var opts addOptions

	cmd := &cobra.Command{
		Use:   "add <body>",
		Short: "Add an event to a room",
		Long: `Add a chat event to a room's index, creating the room on first use.

The event is committed according to the writer policy; with the default
batch size of one it is durable when the command returns. Staged events
are always flushed before exit.

Examples:
  roomsearch add --room '!whales:example.org' "There is a meeting next week"
  roomsearch add -r '!whales:example.org' --id '$event_id_1' --sender '@alice' "Hello"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAdd(cmd.Context(), cmd, a, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringVarP(&opts.room, "room", "r", "", "Room id (required)")
	cmd.Flags().StringVar(&opts.id, "id", "", "Event id (default: a generated $<uuid>)")
	cmd.Flags().StringVar(&opts.sender, "sender", "@roomsearch", "Sender user id")
	cmd.Flags().Uint64Var(&opts.timestamp, "ts", 0, "Origin timestamp in ms since the epoch (default: now)")
	_ = cmd.MarkFlagRequired("room")

	return cmd
}

func runAdd(ctx context.Context, cmd *cobra.Command, a *app, body string, opts addOptions) error {
	out := output.New(cmd.OutOrStdout())

	id := opts.id
	if id == "" {
		id = "$" + uuid.NewString()
	}
	ts := opts.timestamp
	if ts == 0 {
		ts = uint64(time.Now().UnixMilli())
	}

	return a.withRoom(ctx, opts.room, func(idx *roomindex.RoomIndex) error {
		stamp, err := idx.AddEvent(ctx, roomindex.NewEvent(id, body, opts.sender, ts))
		if err != nil {
			return err
		}
		slog.Info("cli_event_added",
			slog.String("room", opts.room),
			slog.String("event_id", id),
			slog.Uint64("opstamp", uint64(stamp)))

		out.Successf("Added %s to %s", id, opts.room)
		out.KeyValue("Opstamp", stamp)
		return nil
	})
}
