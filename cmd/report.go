package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/extent-cli/internal/export"
	"github.com/sells-group/extent-cli/internal/report"
)

var (
	reportProjectID string
	reportFormat    string
	reportOut       string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the audit report of a project",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.GetProject(ctx, reportProjectID)
		if err != nil {
			return eris.Wrap(err, "get project")
		}
		r := report.Build(p, report.App{Name: export.AppName, Version: export.AppVersion}, nowFunc())

		out, closeOut, err := openOutput(cmd, reportOut)
		if err != nil {
			return err
		}
		defer closeOut()

		switch reportFormat {
		case "json":
			return writeJSON(out, r)
		case "text":
			return report.WriteText(out, r)
		default:
			return eris.Errorf("unknown report format %q (want json or text)", reportFormat)
		}
	},
}

func init() {
	f := reportCmd.Flags()
	f.StringVarP(&reportProjectID, "project", "p", "", "project id (required)")
	f.StringVar(&reportFormat, "format", "json", "json|text")
	f.StringVarP(&reportOut, "out", "o", "", "output file (default stdout)")
	_ = reportCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(reportCmd)
}
