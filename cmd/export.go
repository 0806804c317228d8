package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/extent-cli/internal/export"
)

var (
	exportProjectID string
	exportFormat    string
	exportOut       string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export occurrences and results as GeoJSON, shapefiles or CSV",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		p, err := st.GetProject(ctx, exportProjectID)
		if err != nil {
			return eris.Wrap(err, "get project")
		}
		log := zap.L().With(zap.String("command", "export"), zap.String("project", p.ID))

		switch exportFormat {
		case "geojson", "csv":
			out, closeOut, err := openOutput(cmd, exportOut)
			if err != nil {
				return err
			}
			defer closeOut()
			if exportFormat == "csv" {
				return export.WriteOccurrencesCSV(out, p.Occurrences)
			}
			return export.WriteGeoJSON(out, p)
		case "shp":
			dir := exportOut
			if dir == "" || dir == "-" {
				dir = "."
			}
			paths, err := export.WriteShapefiles(dir, p.ID, p)
			if err != nil {
				return err
			}
			log.Info("shapefiles written", zap.Strings("paths", paths))
			return writeJSON(cmd.OutOrStdout(), paths)
		default:
			return eris.Errorf("unknown export format %q (want geojson, shp or csv)", exportFormat)
		}
	},
}

func init() {
	f := exportCmd.Flags()
	f.StringVarP(&exportProjectID, "project", "p", "", "project id (required)")
	f.StringVar(&exportFormat, "format", "geojson", "geojson|shp|csv")
	f.StringVarP(&exportOut, "out", "o", "", "output file, or directory for shp (default stdout / current dir)")
	_ = exportCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(exportCmd)
}
