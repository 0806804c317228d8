package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/extent-cli/internal/export"
	"github.com/sells-group/extent-cli/internal/model"
)

var (
	projectCellSize float64
	projectFile     string
)

var projectCmd = &cobra.Command{
	Use:   "project",
	Short: "Manage projects",
}

var projectCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a project",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		size := projectCellSize
		if size == 0 {
			size = cfg.Compute.CellSizeMeters
		}
		p, err := st.CreateProject(ctx, args[0], model.Settings{AooCellSizeMeters: size})
		if err != nil {
			return eris.Wrap(err, "create project")
		}

		zap.L().Info("project created", zap.String("id", p.ID), zap.String("name", p.Name))
		return writeJSON(cmd.OutOrStdout(), p)
	},
}

var projectListCmd = &cobra.Command{
	Use:   "list",
	Short: "List projects",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		projects, err := st.ListProjects(ctx)
		if err != nil {
			return eris.Wrap(err, "list projects")
		}
		return writeJSON(cmd.OutOrStdout(), projects)
	},
}

var projectShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a project with its occurrences and results",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.GetProject(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get project")
		}
		return writeJSON(cmd.OutOrStdout(), p)
	},
}

var projectRenameCmd = &cobra.Command{
	Use:   "rename <id> <name>",
	Short: "Rename a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.RenameProject(ctx, args[0], args[1]); err != nil {
			return eris.Wrap(err, "rename project")
		}
		zap.L().Info("project renamed", zap.String("id", args[0]))
		return nil
	},
}

var projectSetCellSizeCmd = &cobra.Command{
	Use:   "set-cell-size <id> <meters>",
	Short: "Change the AOO grid cell size of a project",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		size, err := parseFloatArg(args[1])
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.UpdateSettings(ctx, args[0], model.Settings{AooCellSizeMeters: size}); err != nil {
			return eris.Wrap(err, "update settings")
		}
		zap.L().Info("cell size updated; AOO is now stale",
			zap.String("id", args[0]),
			zap.Float64("cell_size_meters", size),
		)
		return nil
	},
}

var projectDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a project and everything it holds",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if err := st.DeleteProject(ctx, args[0]); err != nil {
			return eris.Wrap(err, "delete project")
		}
		zap.L().Info("project deleted", zap.String("id", args[0]))
		return nil
	},
}

var projectExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Write a project as a portable JSON envelope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.GetProject(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "get project")
		}

		out, closeOut, err := openOutput(cmd, projectFile)
		if err != nil {
			return err
		}
		defer closeOut()
		return export.WriteProject(out, p, nowFunc())
	},
}

var projectImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Recreate a project from a JSON envelope",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		f, err := os.Open(args[0])
		if err != nil {
			return eris.Wrap(err, "open project file")
		}
		defer f.Close() //nolint:errcheck

		p, err := export.ImportProject(ctx, st, f)
		if err != nil {
			return eris.Wrap(err, "import project")
		}
		zap.L().Info("project imported",
			zap.String("id", p.ID),
			zap.String("name", p.Name),
			zap.Int("occurrences", len(p.Occurrences)),
		)
		return writeJSON(cmd.OutOrStdout(), p)
	},
}

func init() {
	projectCreateCmd.Flags().Float64Var(&projectCellSize, "cell-size", 0, "AOO cell size in meters (default from config)")
	projectExportCmd.Flags().StringVarP(&projectFile, "out", "o", "", "output file (default stdout)")

	projectCmd.AddCommand(
		projectCreateCmd,
		projectListCmd,
		projectShowCmd,
		projectRenameCmd,
		projectSetCellSizeCmd,
		projectDeleteCmd,
		projectExportCmd,
		projectImportCmd,
	)
	rootCmd.AddCommand(projectCmd)
}
