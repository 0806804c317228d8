package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/extent-cli/internal/extent"
)

var staleProjectID string

// staleEntry is one line of the stale command's output.
type staleEntry struct {
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	extent.Staleness
}

var staleCmd = &cobra.Command{
	Use:   "stale",
	Short: "Report which stored EOO/AOO results no longer match their inputs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		ids := []string{staleProjectID}
		if staleProjectID == "" {
			projects, err := st.ListProjects(ctx)
			if err != nil {
				return eris.Wrap(err, "list projects")
			}
			ids = ids[:0]
			for _, p := range projects {
				ids = append(ids, p.ID)
			}
		}

		entries := make([]staleEntry, 0, len(ids))
		for _, id := range ids {
			p, err := st.GetProject(ctx, id)
			if err != nil {
				return eris.Wrap(err, "get project")
			}
			entries = append(entries, staleEntry{
				ProjectID: p.ID,
				Name:      p.Name,
				Staleness: extent.ProjectStaleness(p),
			})
		}
		return writeJSON(cmd.OutOrStdout(), entries)
	},
}

func init() {
	staleCmd.Flags().StringVarP(&staleProjectID, "project", "p", "", "project id (default all projects)")
	rootCmd.AddCommand(staleCmd)
}
