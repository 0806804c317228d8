package export

import (
	"context"
	"encoding/json"
	"io"
	"math"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/extent-cli/internal/model"
	"github.com/sells-group/extent-cli/internal/store"
)

// AppName identifies files written by this tool.
const AppName = "extent-cli"

// AppVersion is stamped into exported envelopes. Overridden at build time.
var AppVersion = "dev"

// SchemaVersion is the only envelope version ImportProject accepts.
const SchemaVersion = 1

// ImportedPrefix is prepended to the name of an imported project whose
// original id is already taken.
const ImportedPrefix = "Imported - "

// AppInfo names the producer of an envelope.
type AppInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Envelope is a self-contained project export.
type Envelope struct {
	SchemaVersion int            `json:"schema_version"`
	ExportedAt    time.Time      `json:"exported_at"`
	App           AppInfo        `json:"app"`
	Project       *model.Project `json:"project"`
}

// WriteProject encodes p in an Envelope.
func WriteProject(w io.Writer, p *model.Project, now time.Time) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	env := Envelope{
		SchemaVersion: SchemaVersion,
		ExportedAt:    now.UTC(),
		App:           AppInfo{Name: AppName, Version: AppVersion},
		Project:       p,
	}
	if err := enc.Encode(env); err != nil {
		return eris.Wrap(err, "export: encode project")
	}
	return nil
}

// ReadEnvelope decodes and validates an Envelope.
func ReadEnvelope(r io.Reader) (*Envelope, error) {
	var env Envelope
	if err := json.NewDecoder(r).Decode(&env); err != nil {
		return nil, eris.Wrap(err, "export: decode project")
	}
	if err := env.validate(); err != nil {
		return nil, err
	}
	return &env, nil
}

func (e *Envelope) validate() error {
	switch {
	case e.SchemaVersion != SchemaVersion:
		return eris.Errorf("export: unsupported schema version %d", e.SchemaVersion)
	case e.App.Name != AppName:
		return eris.Errorf("export: unexpected app name %q", e.App.Name)
	case e.Project == nil:
		return eris.New("export: project is missing")
	case strings.TrimSpace(e.Project.ID) == "":
		return eris.New("export: project.id is required")
	case strings.TrimSpace(e.Project.Name) == "":
		return eris.New("export: project.name is required")
	case e.Project.Occurrences == nil:
		return eris.New("export: project.occurrences is required")
	}
	size := e.Project.Settings.AooCellSizeMeters
	if math.IsNaN(size) || math.IsInf(size, 0) {
		return eris.New("export: project.settings.aoo_cell_size_meters must be finite")
	}
	return nil
}

// ProjectSink is the subset of store.Store ImportProject writes through.
type ProjectSink interface {
	GetProject(ctx context.Context, id string) (*model.Project, error)
	CreateProject(ctx context.Context, name string, settings model.Settings) (*model.Project, error)
	ReplaceOccurrences(ctx context.Context, projectID string, occurrences []model.Occurrence) error
	SaveEooResult(ctx context.Context, projectID string, res *model.EooResult) error
	SaveAooResult(ctx context.Context, projectID string, res *model.AooResult) error
	SaveAssessment(ctx context.Context, projectID string, a model.Assessment) error
}

// ImportProject recreates an exported project under a new id and returns
// the stored copy. Results keep their input hashes, so they stay fresh as
// long as the occurrences are unchanged.
func ImportProject(ctx context.Context, sink ProjectSink, r io.Reader) (*model.Project, error) {
	env, err := ReadEnvelope(r)
	if err != nil {
		return nil, err
	}
	src := env.Project

	name := src.Name
	_, err = sink.GetProject(ctx, src.ID)
	switch {
	case err == nil:
		name = ImportedPrefix + name
	case !eris.Is(err, store.ErrNotFound):
		return nil, eris.Wrap(err, "export: check existing project")
	}

	created, err := sink.CreateProject(ctx, name, src.Settings)
	if err != nil {
		return nil, eris.Wrap(err, "export: create project")
	}
	id := created.ID

	if err := sink.ReplaceOccurrences(ctx, id, src.Occurrences); err != nil {
		return nil, eris.Wrap(err, "export: import occurrences")
	}
	if src.Results.Eoo != nil {
		if err := sink.SaveEooResult(ctx, id, src.Results.Eoo); err != nil {
			return nil, eris.Wrap(err, "export: import eoo result")
		}
	}
	if src.Results.Aoo != nil {
		if err := sink.SaveAooResult(ctx, id, src.Results.Aoo); err != nil {
			return nil, eris.Wrap(err, "export: import aoo result")
		}
	}
	if err := sink.SaveAssessment(ctx, id, src.Assessment); err != nil {
		return nil, eris.Wrap(err, "export: import assessment")
	}

	return sink.GetProject(ctx, id)
}
