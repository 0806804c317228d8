// Package store persists projects, their occurrences, computed results, and
// assessments.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/extent-cli/internal/geo"
	"github.com/sells-group/extent-cli/internal/model"
)

// ErrNotFound is returned when a project or occurrence does not exist.
var ErrNotFound = eris.New("store: not found")

// ProjectSummary is a project without its occurrences and results.
type ProjectSummary struct {
	ID              string    `json:"id"`
	Name            string    `json:"name"`
	OccurrenceCount int       `json:"occurrence_count"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Store defines the persistence interface for projects.
type Store interface {
	// Projects
	CreateProject(ctx context.Context, name string, settings model.Settings) (*model.Project, error)
	GetProject(ctx context.Context, id string) (*model.Project, error)
	ListProjects(ctx context.Context) ([]ProjectSummary, error)
	RenameProject(ctx context.Context, id, name string) error
	UpdateSettings(ctx context.Context, id string, settings model.Settings) error
	DeleteProject(ctx context.Context, id string) error

	// Occurrences
	AddOccurrences(ctx context.Context, projectID string, occurrences []model.Occurrence) error
	ReplaceOccurrences(ctx context.Context, projectID string, occurrences []model.Occurrence) error
	SetCalcStatus(ctx context.Context, projectID, occurrenceID string, status model.CalcStatus) error
	DeleteOccurrence(ctx context.Context, projectID, occurrenceID string) error

	// Results and assessment
	SaveEooResult(ctx context.Context, projectID string, res *model.EooResult) error
	SaveAooResult(ctx context.Context, projectID string, res *model.AooResult) error
	SaveAssessment(ctx context.Context, projectID string, a model.Assessment) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Open returns the Store selected by driver ("sqlite" or "postgres").
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "postgres":
		s, err := NewPostgres(ctx, dsn, nil)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite", "":
		s, err := NewSQLite(dsn)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, eris.Errorf("store: unknown driver %q", driver)
	}
}

var (
	_ Store = (*SQLiteStore)(nil)
	_ Store = (*PostgresStore)(nil)
)

func notFound(entity, id string) error {
	return eris.Wrapf(ErrNotFound, "%s %s", entity, id)
}

// prepareProject normalizes the name and fills in the default cell size.
func prepareProject(name string, settings model.Settings) (string, model.Settings, error) {
	name, err := model.NormalizeProjectName(name)
	if err != nil {
		return "", settings, err
	}
	if settings.AooCellSizeMeters == 0 {
		settings.AooCellSizeMeters = model.DefaultCellSizeMeters
	}
	if err := geo.ValidateCellSize(settings.AooCellSizeMeters); err != nil {
		return "", settings, err
	}
	return name, settings, nil
}

// checkOccurrence rejects occurrences that were not normalized at ingestion.
func checkOccurrence(o model.Occurrence) error {
	switch {
	case o.ID == "":
		return eris.New("store: occurrence without id")
	case !o.Representable():
		return eris.Errorf("store: occurrence %s has non-finite coordinates", o.ID)
	case !o.CalcStatus.Valid():
		return eris.Errorf("store: occurrence %s has invalid calc status %q", o.ID, o.CalcStatus)
	}
	return nil
}
