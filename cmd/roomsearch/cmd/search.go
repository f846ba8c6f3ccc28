package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/roomsearch/internal/catalog"
	"github.com/Aman-CERP/roomsearch/internal/output"
)

// searchOptions holds CLI flags for search.
type searchOptions struct {
	rooms  []string
	limit  int
	format string // "text", "json"
}

func newSearchCmd(a *app) *cobra.Command {
	var opts searchOptions

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search one or more rooms",
		Long: `Search message bodies in one or more rooms.

Bare terms match any of them. Quoted phrases, +required and -excluded terms,
and field:value clauses on body or sender are supported. Results from several
rooms are merged by score.

Examples:
  roomsearch search -r '!whales:example.org' week
  roomsearch search -r '!a:example.org' -r '!b:example.org' "whales OR dolphins"
  roomsearch search -r '!a:example.org' 'sender:alice +meeting' --format json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSearch(cmd.Context(), cmd, a, strings.Join(args, " "), opts)
		},
	}

	cmd.Flags().StringSliceVarP(&opts.rooms, "room", "r", nil, "Room id to search (repeatable, required)")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum number of results (default: search.default_limit)")
	cmd.Flags().StringVarP(&opts.format, "format", "f", "text", "Output format: text, json")
	_ = cmd.MarkFlagRequired("room")

	return cmd
}

// searchResult is the JSON form of one hit.
type searchResult struct {
	Room    string  `json:"room"`
	EventID string  `json:"event_id"`
	Score   float64 `json:"score"`
}

func runSearch(ctx context.Context, cmd *cobra.Command, a *app, query string, opts searchOptions) (err error) {
	if opts.format != "text" && opts.format != "json" {
		return fmt.Errorf("unknown format %q: expected text or json", opts.format)
	}

	limit := opts.limit
	if limit <= 0 {
		limit = a.cfg.Search.DefaultLimit
	}

	cat, err := a.openCatalog()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cat.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	slog.Info("search_started",
		slog.String("query", query),
		slog.Int("rooms", len(opts.rooms)),
		slog.Int("limit", limit))

	hits, err := cat.SearchRooms(ctx, opts.rooms, query, limit)
	if err != nil {
		return err
	}

	if opts.format == "json" {
		return writeSearchJSON(cmd, hits)
	}

	out := output.New(cmd.OutOrStdout())
	if len(hits) == 0 {
		out.Warningf("No results for %q", query)
		return nil
	}

	out.Header(fmt.Sprintf("%d result(s) for %q", len(hits), query))
	showRoom := len(opts.rooms) > 1
	for i, h := range hits {
		room := ""
		if showRoom {
			room = h.RoomID
		}
		out.Hit(i+1, h.EventID, h.Score, room)
	}
	return nil
}

func writeSearchJSON(cmd *cobra.Command, hits []catalog.RoomHit) error {
	results := make([]searchResult, 0, len(hits))
	for _, h := range hits {
		results = append(results, searchResult{Room: h.RoomID, EventID: h.EventID, Score: h.Score})
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
