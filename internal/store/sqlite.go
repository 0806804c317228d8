package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/extent-cli/internal/geo"
	"github.com/sells-group/extent-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	cell_size_meters REAL NOT NULL DEFAULT 2000,
	assessment       TEXT NOT NULL DEFAULT '{}',
	created_at       DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at       DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS occurrences (
	project_id  TEXT NOT NULL,
	id          TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	lat         REAL NOT NULL,
	lon         REAL NOT NULL,
	label       TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	calc_status TEXT NOT NULL DEFAULT 'enabled',
	PRIMARY KEY (project_id, id)
);

CREATE TABLE IF NOT EXISTS eoo_results (
	project_id  TEXT PRIMARY KEY,
	area_km2    REAL NOT NULL,
	hull        BLOB,
	points_used INTEGER NOT NULL,
	input_hash  TEXT NOT NULL,
	computed_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS aoo_results (
	project_id       TEXT PRIMARY KEY,
	area_km2         REAL NOT NULL,
	cell_count       INTEGER NOT NULL,
	cell_size_meters REAL NOT NULL,
	grid             TEXT NOT NULL,
	points_used      INTEGER NOT NULL,
	input_hash       TEXT NOT NULL,
	computed_at      DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_occurrences_project_seq ON occurrences(project_id, seq);
CREATE INDEX IF NOT EXISTS idx_projects_updated_at ON projects(updated_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// touchSQLite bumps updated_at and reports ErrNotFound for a missing project.
func touchSQLite(ctx context.Context, tx *sql.Tx, id string) error {
	res, err := tx.ExecContext(ctx, `UPDATE projects SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: touch project %s", id)
	}
	return checkRowsAffected(res, "project", id)
}

func (s *SQLiteStore) CreateProject(ctx context.Context, name string, settings model.Settings) (*model.Project, error) {
	name, settings, err := prepareProject(name, settings)
	if err != nil {
		return nil, err
	}
	assessment, err := encodeJSON(model.Assessment{})
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	now := time.Now().UTC()
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO projects (id, name, cell_size_meters, assessment, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, name, settings.AooCellSizeMeters, assessment, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert project")
	}

	return &model.Project{
		ID:          id,
		Name:        name,
		Settings:    settings,
		Occurrences: []model.Occurrence{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func (s *SQLiteStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var (
		p          model.Project
		assessment string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, cell_size_meters, assessment, created_at, updated_at FROM projects WHERE id = ?`, id,
	).Scan(&p.ID, &p.Name, &p.Settings.AooCellSizeMeters, &assessment, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, notFound("project", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get project %s", id)
	}
	if err := decodeJSON(assessment, &p.Assessment); err != nil {
		return nil, err
	}

	if p.Occurrences, err = s.occurrences(ctx, id); err != nil {
		return nil, err
	}
	if p.Results.Eoo, err = s.eooResult(ctx, id); err != nil {
		return nil, err
	}
	if p.Results.Aoo, err = s.aooResult(ctx, id); err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *SQLiteStore) occurrences(ctx context.Context, projectID string) ([]model.Occurrence, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, lat, lon, label, source, calc_status FROM occurrences WHERE project_id = ? ORDER BY seq`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list occurrences")
	}
	defer rows.Close()

	out := []model.Occurrence{}
	for rows.Next() {
		var (
			o      model.Occurrence
			status string
		)
		if err := rows.Scan(&o.ID, &o.Lat, &o.Lon, &o.Label, &o.Source, &status); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan occurrence")
		}
		o.CalcStatus = model.CalcStatus(status)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate occurrences")
}

func (s *SQLiteStore) eooResult(ctx context.Context, projectID string) (*model.EooResult, error) {
	var (
		r    model.EooResult
		hull []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT area_km2, hull, points_used, input_hash, computed_at FROM eoo_results WHERE project_id = ?`,
		projectID,
	).Scan(&r.AreaKm2, &hull, &r.PointsUsed, &r.InputHash, &r.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get eoo result")
	}
	if r.Hull, err = decodeHull(hull); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) aooResult(ctx context.Context, projectID string) (*model.AooResult, error) {
	var (
		r    model.AooResult
		grid string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT area_km2, cell_count, cell_size_meters, grid, points_used, input_hash, computed_at FROM aoo_results WHERE project_id = ?`,
		projectID,
	).Scan(&r.AreaKm2, &r.CellCount, &r.CellSizeMeters, &grid, &r.PointsUsed, &r.InputHash, &r.ComputedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: get aoo result")
	}
	r.Grid = []model.GridCell{}
	if err := decodeJSON(grid, &r.Grid); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *SQLiteStore) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT p.id, p.name, p.created_at, p.updated_at,
			(SELECT COUNT(*) FROM occurrences o WHERE o.project_id = p.id)
		FROM projects p
		ORDER BY p.updated_at DESC, p.id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list projects")
	}
	defer rows.Close()

	var out []ProjectSummary
	for rows.Next() {
		var ps ProjectSummary
		if err := rows.Scan(&ps.ID, &ps.Name, &ps.CreatedAt, &ps.UpdatedAt, &ps.OccurrenceCount); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan project")
		}
		out = append(out, ps)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate projects")
}

func (s *SQLiteStore) RenameProject(ctx context.Context, id, name string) error {
	name, err := model.NormalizeProjectName(name)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET name = ?, updated_at = ? WHERE id = ?`, name, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: rename project %s", id)
	}
	return checkRowsAffected(res, "project", id)
}

func (s *SQLiteStore) UpdateSettings(ctx context.Context, id string, settings model.Settings) error {
	if err := geo.ValidateCellSize(settings.AooCellSizeMeters); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET cell_size_meters = ?, updated_at = ? WHERE id = ?`,
		settings.AooCellSizeMeters, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update settings %s", id)
	}
	return checkRowsAffected(res, "project", id)
}

func (s *SQLiteStore) DeleteProject(ctx context.Context, id string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"occurrences", "eoo_results", "aoo_results"} {
			if _, err := tx.ExecContext(ctx, `DELETE FROM `+table+` WHERE project_id = ?`, id); err != nil {
				return eris.Wrapf(err, "sqlite: delete %s of %s", table, id)
			}
		}
		res, err := tx.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
		if err != nil {
			return eris.Wrapf(err, "sqlite: delete project %s", id)
		}
		return checkRowsAffected(res, "project", id)
	})
}

const sqliteUpsertOccurrence = `
INSERT INTO occurrences (project_id, id, seq, lat, lon, label, source, calc_status)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (project_id, id) DO UPDATE SET
	lat = excluded.lat, lon = excluded.lon, label = excluded.label,
	source = excluded.source, calc_status = excluded.calc_status`

func (s *SQLiteStore) insertOccurrences(ctx context.Context, tx *sql.Tx, projectID string, occurrences []model.Occurrence) error {
	var next int
	if err := tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM occurrences WHERE project_id = ?`, projectID,
	).Scan(&next); err != nil {
		return eris.Wrap(err, "sqlite: next occurrence seq")
	}

	stmt, err := tx.PrepareContext(ctx, sqliteUpsertOccurrence)
	if err != nil {
		return eris.Wrap(err, "sqlite: prepare occurrence upsert")
	}
	defer stmt.Close()

	for i, o := range occurrences {
		if err := checkOccurrence(o); err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx,
			projectID, o.ID, next+i, o.Lat, o.Lon, o.Label, o.Source, string(o.CalcStatus),
		); err != nil {
			return eris.Wrapf(err, "sqlite: upsert occurrence %s", o.ID)
		}
	}
	return nil
}

func (s *SQLiteStore) AddOccurrences(ctx context.Context, projectID string, occurrences []model.Occurrence) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchSQLite(ctx, tx, projectID); err != nil {
			return err
		}
		return s.insertOccurrences(ctx, tx, projectID, occurrences)
	})
}

func (s *SQLiteStore) ReplaceOccurrences(ctx context.Context, projectID string, occurrences []model.Occurrence) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchSQLite(ctx, tx, projectID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM occurrences WHERE project_id = ?`, projectID); err != nil {
			return eris.Wrap(err, "sqlite: clear occurrences")
		}
		return s.insertOccurrences(ctx, tx, projectID, occurrences)
	})
}

func (s *SQLiteStore) SetCalcStatus(ctx context.Context, projectID, occurrenceID string, status model.CalcStatus) error {
	if !status.Valid() {
		return eris.Errorf("store: invalid calc status %q", status)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE occurrences SET calc_status = ? WHERE project_id = ? AND id = ?`,
			string(status), projectID, occurrenceID)
		if err != nil {
			return eris.Wrapf(err, "sqlite: set calc status %s", occurrenceID)
		}
		if err := checkRowsAffected(res, "occurrence", occurrenceID); err != nil {
			return err
		}
		return touchSQLite(ctx, tx, projectID)
	})
}

func (s *SQLiteStore) DeleteOccurrence(ctx context.Context, projectID, occurrenceID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`DELETE FROM occurrences WHERE project_id = ? AND id = ?`, projectID, occurrenceID)
		if err != nil {
			return eris.Wrapf(err, "sqlite: delete occurrence %s", occurrenceID)
		}
		if err := checkRowsAffected(res, "occurrence", occurrenceID); err != nil {
			return err
		}
		return touchSQLite(ctx, tx, projectID)
	})
}

func (s *SQLiteStore) SaveEooResult(ctx context.Context, projectID string, r *model.EooResult) error {
	hull, err := encodeHull(r.Hull)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchSQLite(ctx, tx, projectID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO eoo_results (project_id, area_km2, hull, points_used, input_hash, computed_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (project_id) DO UPDATE SET
				area_km2 = excluded.area_km2, hull = excluded.hull, points_used = excluded.points_used,
				input_hash = excluded.input_hash, computed_at = excluded.computed_at`,
			projectID, r.AreaKm2, hull, r.PointsUsed, r.InputHash, r.ComputedAt.UTC())
		return eris.Wrapf(err, "sqlite: save eoo result %s", projectID)
	})
}

func (s *SQLiteStore) SaveAooResult(ctx context.Context, projectID string, r *model.AooResult) error {
	grid, err := encodeJSON(r.Grid)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		if err := touchSQLite(ctx, tx, projectID); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO aoo_results (project_id, area_km2, cell_count, cell_size_meters, grid, points_used, input_hash, computed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (project_id) DO UPDATE SET
				area_km2 = excluded.area_km2, cell_count = excluded.cell_count,
				cell_size_meters = excluded.cell_size_meters, grid = excluded.grid,
				points_used = excluded.points_used, input_hash = excluded.input_hash,
				computed_at = excluded.computed_at`,
			projectID, r.AreaKm2, r.CellCount, r.CellSizeMeters, grid, r.PointsUsed, r.InputHash, r.ComputedAt.UTC())
		return eris.Wrapf(err, "sqlite: save aoo result %s", projectID)
	})
}

func (s *SQLiteStore) SaveAssessment(ctx context.Context, projectID string, a model.Assessment) error {
	body, err := encodeJSON(a)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE projects SET assessment = ?, updated_at = ? WHERE id = ?`, body, time.Now().UTC(), projectID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: save assessment %s", projectID)
	}
	return checkRowsAffected(res, "project", projectID)
}

func checkRowsAffected(res sql.Result, entity, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return notFound(entity, id)
	}
	return nil
}
