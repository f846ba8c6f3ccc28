package cmd

import (
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/roomsearch/internal/output"
	"github.com/Aman-CERP/roomsearch/pkg/roomindex"
)

// roomInfo is the JSON form of a room's stats.
type roomInfo struct {
	Room         string `json:"room"`
	Path         string `json:"path"`
	Documents    uint64 `json:"documents"`
	Committed    uint64 `json:"committed_opstamp"`
	Searchable   uint64 `json:"searchable_opstamp"`
	Pending      int    `json:"pending"`
	ReloadPolicy string `json:"reload_policy"`
}

func newInfoCmd(a *app) *cobra.Command {
	var (
		room       string
		jsonOutput bool
	)

	cmd := &cobra.Command{
		Use:   "info",
		Short: "Show a room's index statistics",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.withRoom(cmd.Context(), room, func(idx *roomindex.RoomIndex) error {
				st := idx.Stats()
				if jsonOutput {
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					return enc.Encode(roomInfo{
						Room:         room,
						Path:         st.Path,
						Documents:    st.Documents,
						Committed:    uint64(st.Committed),
						Searchable:   uint64(st.Searchable),
						Pending:      st.Pending,
						ReloadPolicy: string(st.ReloadPolicy),
					})
				}

				out := output.New(cmd.OutOrStdout())
				out.Header(room)
				out.KeyValue("Path", st.Path)
				out.KeyValue("Documents", st.Documents)
				out.KeyValue("Committed", st.Committed)
				out.KeyValue("Searchable", st.Searchable)
				out.KeyValue("Pending", st.Pending)
				out.KeyValue("Reload policy", st.ReloadPolicy)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&room, "room", "r", "", "Room id (required)")
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	_ = cmd.MarkFlagRequired("room")

	return cmd
}
