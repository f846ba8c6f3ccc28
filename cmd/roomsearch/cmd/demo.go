package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/roomsearch/internal/output"
	"github.com/Aman-CERP/roomsearch/pkg/roomindex"
)

// demoEvents is the sample conversation indexed by the demo command.
var demoEvents = []roomindex.Event{
	roomindex.NewEvent("$event_id_1", "There is a meeting next week about the whales.", "@user_id_1", 123456701),
	roomindex.NewEvent("$event_id_2", "Dolphins are so much cuter.", "@user_id_1", 123456702),
	roomindex.NewEvent("$event_id_3", "We can go and see them the week after that.", "@user_id_2", 12345673),
}

var demoQueries = []string{"week", "the", "cuter"}

func newDemoCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo [query...]",
		Short: "Index a sample conversation in memory and search it",
		Long: `Index three sample events in an in-memory room and run searches over them.

Without arguments the queries "week", "the" and "cuter" are run. Nothing is
written to the data directory.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			queries := args
			if len(queries) == 0 {
				queries = demoQueries
			}
			return runDemo(cmd.Context(), cmd, a, queries)
		},
	}
	return cmd
}

func runDemo(ctx context.Context, cmd *cobra.Command, a *app, queries []string) (err error) {
	out := output.New(cmd.OutOrStdout())

	opts, err := a.cfg.ToIndexOptions()
	if err != nil {
		return err
	}
	idx, err := roomindex.NewInRAM(opts...)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := idx.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	for _, e := range demoEvents {
		if _, err := idx.AddEvent(ctx, e); err != nil {
			return err
		}
		out.Statusf("📝", "%s %s: %s", e.ID, e.Sender, e.Body)
	}
	if _, err := idx.ForceCommit(ctx); err != nil {
		return err
	}
	if err := idx.Reload(ctx); err != nil {
		return err
	}

	for _, q := range queries {
		hits, err := idx.SearchHits(ctx, q, a.cfg.Search.DefaultLimit)
		if err != nil {
			return err
		}
		out.Newline()
		out.Header(fmt.Sprintf("%q: %d result(s)", q, len(hits)))
		for i, h := range hits {
			out.Hit(i+1, h.ID, h.Score, "")
		}
	}
	return nil
}
