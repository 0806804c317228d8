package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/extent-cli/internal/extent"
	"github.com/sells-group/extent-cli/internal/iucn"
	"github.com/sells-group/extent-cli/internal/model"
)

var (
	assessProjectID string
	assessFile      string
)

var assessCmd = &cobra.Command{
	Use:   "assess",
	Short: "Suggest a Criterion B category, optionally saving a YAML assessment first",
	Long: "Reads severe fragmentation, number of locations, continuing decline and extreme " +
		"fluctuations from a YAML file (when --file is given), stores them on the project, " +
		"and prints the Criterion B inference from the stored EOO/AOO.",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		if assessFile != "" {
			a, err := readAssessment(assessFile)
			if err != nil {
				return err
			}
			if err := st.SaveAssessment(ctx, assessProjectID, a); err != nil {
				return eris.Wrap(err, "save assessment")
			}
		}

		p, err := st.GetProject(ctx, assessProjectID)
		if err != nil {
			return eris.Wrap(err, "get project")
		}
		stale := extent.ProjectStaleness(p)
		inf := iucn.InferForProject(p, stale.Eoo, stale.Aoo)

		zap.L().Info("criterion b inference",
			zap.String("project", p.ID),
			zap.String("category", string(inf.SuggestedCategory)),
			zap.String("code", inf.SuggestedCode),
			zap.Bool("needs_recalc", inf.NeedsRecalc),
		)
		return writeJSON(cmd.OutOrStdout(), inf)
	},
}

func init() {
	assessCmd.Flags().StringVarP(&assessProjectID, "project", "p", "", "project id (required)")
	assessCmd.Flags().StringVarP(&assessFile, "file", "f", "", "YAML assessment file")
	_ = assessCmd.MarkFlagRequired("project")
	rootCmd.AddCommand(assessCmd)
}

// readAssessment decodes an assessment file. Unknown keys and unknown
// subcriterion items are rejected.
func readAssessment(path string) (model.Assessment, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.Assessment{}, eris.Wrap(err, "open assessment")
	}
	defer f.Close() //nolint:errcheck
	return decodeAssessment(f)
}

func decodeAssessment(r io.Reader) (model.Assessment, error) {
	var a model.Assessment
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&a); err != nil && err != io.EOF {
		return model.Assessment{}, eris.Wrap(err, "decode assessment")
	}
	for _, flag := range []model.ItemFlag{a.ContinuingDecline, a.ExtremeFluctuations} {
		for _, it := range flag.Items {
			if !it.Valid() {
				return model.Assessment{}, eris.Errorf("unknown subcriterion item %q", it)
			}
		}
	}
	if a.NumberOfLocations != nil && *a.NumberOfLocations < 0 {
		return model.Assessment{}, eris.Errorf("number_of_locations must be >= 0, got %d", *a.NumberOfLocations)
	}
	return a, nil
}
