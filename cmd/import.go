package main

import (
	"os"
	"time"
	"unicode/utf8"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/extent-cli/internal/ingest"
	"github.com/sells-group/extent-cli/internal/resilience"
)

var (
	importProjectID string
	importFormat    string
	importReplace   bool
	importDelimiter string
	importSheet     string
	importMapping   ingest.Mapping
)

var importCmd = &cobra.Command{
	Use:   "import <file|url>",
	Short: "Import occurrences from CSV, XLSX, JSON/GeoJSON or a point shapefile",
	Long: `Import occurrences from a local file or an http(s) URL. Downloaded ZIP
archives are extracted; a Darwin Core occurrence.txt (GBIF download) is
preferred over other entries.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		log := zap.L().With(zap.String("command", "import"), zap.String("project", importProjectID))

		opts := ingest.FileOptions{
			Format:  importFormat,
			Mapping: importMapping,
			XLSX:    ingest.XLSXOptions{SheetName: importSheet},
		}
		if importDelimiter != "" {
			r, size := utf8.DecodeRuneInString(importDelimiter)
			if size != len(importDelimiter) {
				return eris.Errorf("delimiter must be a single character, got %q", importDelimiter)
			}
			opts.CSV.Delimiter = r
		}

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		// Fail before parsing when the project does not exist.
		if _, err := st.GetProject(ctx, importProjectID); err != nil {
			return eris.Wrap(err, "get project")
		}

		src := args[0]
		if ingest.IsRemote(src) {
			dir, err := os.MkdirTemp("", "extent-import-")
			if err != nil {
				return eris.Wrap(err, "create download dir")
			}
			defer os.RemoveAll(dir) //nolint:errcheck

			r := cfg.Resilience
			retry := resilience.RetryPolicyFrom(r.MaxAttempts, r.InitialBackoffMs)
			retry.OnRetry = resilience.LogRetry("download")
			d := ingest.NewDownloader(time.Duration(cfg.Ingest.DownloadTimeoutSecs)*time.Second, retry)
			if src, err = d.Fetch(ctx, src, dir); err != nil {
				return eris.Wrap(err, "download occurrences")
			}
		}

		res, err := ingest.ImportFile(ctx, src, opts)
		if err != nil {
			return eris.Wrap(err, "read occurrences")
		}

		if importReplace {
			err = st.ReplaceOccurrences(ctx, importProjectID, res.Imported)
		} else {
			err = st.AddOccurrences(ctx, importProjectID, res.Imported)
		}
		if err != nil {
			return eris.Wrap(err, "save occurrences")
		}

		log.Info("import complete",
			zap.String("source", args[0]),
			zap.Int("rows", res.Stats.Rows),
			zap.Int("valid", res.Stats.Valid),
			zap.Int("invalid", res.Stats.Invalid),
			zap.Int("zero_zero", res.Stats.ZeroZero),
			zap.Int("deduped", res.Stats.Deduped),
			zap.Int("reassigned_ids", res.Stats.ReassignedIDs),
		)
		return writeJSON(cmd.OutOrStdout(), struct {
			Stats       ingest.Stats        `json:"stats"`
			InvalidRows []ingest.InvalidRow `json:"invalid_rows"`
		}{res.Stats, res.InvalidRows})
	},
}

func init() {
	f := importCmd.Flags()
	f.StringVarP(&importProjectID, "project", "p", "", "project id (required)")
	f.StringVar(&importFormat, "format", "", "csv|xlsx|json|shp (default from file extension)")
	f.BoolVar(&importReplace, "replace", false, "replace the project's occurrences instead of adding")
	f.StringVar(&importDelimiter, "delimiter", "", "CSV field delimiter (default ',')")
	f.StringVar(&importSheet, "sheet", "", "XLSX sheet name (default first sheet)")
	f.StringVar(&importMapping.LatColumn, "lat-col", "", "latitude column (detected when empty)")
	f.StringVar(&importMapping.LonColumn, "lon-col", "", "longitude column (detected when empty)")
	f.StringVar(&importMapping.IDColumn, "id-col", "", "occurrence id column")
	f.StringVar(&importMapping.LabelColumn, "label-col", "", "label column")
	_ = importCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(importCmd)
}
