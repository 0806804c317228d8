package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/extent-cli/internal/geo"
	"github.com/sells-group/extent-cli/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 1
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			pgxCfg.MaxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			pgxCfg.MinConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS projects (
	id               TEXT PRIMARY KEY,
	name             TEXT NOT NULL,
	cell_size_meters DOUBLE PRECISION NOT NULL DEFAULT 2000,
	assessment       JSONB NOT NULL DEFAULT '{}',
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS occurrences (
	project_id  TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
	id          TEXT NOT NULL,
	seq         INTEGER NOT NULL,
	lat         DOUBLE PRECISION NOT NULL,
	lon         DOUBLE PRECISION NOT NULL,
	label       TEXT NOT NULL DEFAULT '',
	source      TEXT NOT NULL DEFAULT '',
	calc_status TEXT NOT NULL DEFAULT 'enabled',
	PRIMARY KEY (project_id, id)
);

CREATE TABLE IF NOT EXISTS eoo_results (
	project_id  TEXT PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
	area_km2    DOUBLE PRECISION NOT NULL,
	hull        BYTEA,
	points_used INTEGER NOT NULL,
	input_hash  TEXT NOT NULL,
	computed_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS aoo_results (
	project_id       TEXT PRIMARY KEY REFERENCES projects(id) ON DELETE CASCADE,
	area_km2         DOUBLE PRECISION NOT NULL,
	cell_count       INTEGER NOT NULL,
	cell_size_meters DOUBLE PRECISION NOT NULL,
	grid             JSONB NOT NULL,
	points_used      INTEGER NOT NULL,
	input_hash       TEXT NOT NULL,
	computed_at      TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_occurrences_project_seq ON occurrences(project_id, seq);
CREATE INDEX IF NOT EXISTS idx_projects_updated_at ON projects(updated_at);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit")
}

func touchPostgres(ctx context.Context, tx pgx.Tx, id string) error {
	tag, err := tx.Exec(ctx, `UPDATE projects SET updated_at = $1 WHERE id = $2`, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: touch project %s", id)
	}
	return checkTag(tag, "project", id)
}

func checkTag(tag pgconn.CommandTag, entity, id string) error {
	if tag.RowsAffected() == 0 {
		return notFound(entity, id)
	}
	return nil
}

func (s *PostgresStore) CreateProject(ctx context.Context, name string, settings model.Settings) (*model.Project, error) {
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
	_, err = s.pool.Exec(ctx,
		`INSERT INTO projects (id, name, cell_size_meters, assessment, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, name, settings.AooCellSizeMeters, assessment, now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert project")
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

func (s *PostgresStore) GetProject(ctx context.Context, id string) (*model.Project, error) {
	var (
		p          model.Project
		assessment string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, cell_size_meters, assessment, created_at, updated_at FROM projects WHERE id = $1`, id,
	).Scan(&p.ID, &p.Name, &p.Settings.AooCellSizeMeters, &assessment, &p.CreatedAt, &p.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, notFound("project", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get project %s", id)
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

func (s *PostgresStore) occurrences(ctx context.Context, projectID string) ([]model.Occurrence, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, lat, lon, label, source, calc_status FROM occurrences WHERE project_id = $1 ORDER BY seq`,
		projectID,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list occurrences")
	}
	defer rows.Close()

	out := []model.Occurrence{}
	for rows.Next() {
		var (
			o      model.Occurrence
			status string
		)
		if err := rows.Scan(&o.ID, &o.Lat, &o.Lon, &o.Label, &o.Source, &status); err != nil {
			return nil, eris.Wrap(err, "postgres: scan occurrence")
		}
		o.CalcStatus = model.CalcStatus(status)
		out = append(out, o)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate occurrences")
}

func (s *PostgresStore) eooResult(ctx context.Context, projectID string) (*model.EooResult, error) {
	var (
		r    model.EooResult
		hull []byte
	)
	err := s.pool.QueryRow(ctx,
		`SELECT area_km2, hull, points_used, input_hash, computed_at FROM eoo_results WHERE project_id = $1`,
		projectID,
	).Scan(&r.AreaKm2, &hull, &r.PointsUsed, &r.InputHash, &r.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get eoo result")
	}
	if r.Hull, err = decodeHull(hull); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) aooResult(ctx context.Context, projectID string) (*model.AooResult, error) {
	var (
		r    model.AooResult
		grid string
	)
	err := s.pool.QueryRow(ctx,
		`SELECT area_km2, cell_count, cell_size_meters, grid, points_used, input_hash, computed_at FROM aoo_results WHERE project_id = $1`,
		projectID,
	).Scan(&r.AreaKm2, &r.CellCount, &r.CellSizeMeters, &grid, &r.PointsUsed, &r.InputHash, &r.ComputedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: get aoo result")
	}
	r.Grid = []model.GridCell{}
	if err := decodeJSON(grid, &r.Grid); err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *PostgresStore) ListProjects(ctx context.Context) ([]ProjectSummary, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.id, p.name, p.created_at, p.updated_at, COUNT(o.id)
		FROM projects p
		LEFT JOIN occurrences o ON o.project_id = p.id
		GROUP BY p.id
		ORDER BY p.updated_at DESC, p.id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list projects")
	}
	defer rows.Close()

	var out []ProjectSummary
	for rows.Next() {
		var (
			ps    ProjectSummary
			count int64
		)
		if err := rows.Scan(&ps.ID, &ps.Name, &ps.CreatedAt, &ps.UpdatedAt, &count); err != nil {
			return nil, eris.Wrap(err, "postgres: scan project")
		}
		ps.OccurrenceCount = int(count)
		out = append(out, ps)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate projects")
}

func (s *PostgresStore) RenameProject(ctx context.Context, id, name string) error {
	name, err := model.NormalizeProjectName(name)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET name = $1, updated_at = $2 WHERE id = $3`, name, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: rename project %s", id)
	}
	return checkTag(tag, "project", id)
}

func (s *PostgresStore) UpdateSettings(ctx context.Context, id string, settings model.Settings) error {
	if err := geo.ValidateCellSize(settings.AooCellSizeMeters); err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET cell_size_meters = $1, updated_at = $2 WHERE id = $3`,
		settings.AooCellSizeMeters, time.Now().UTC(), id)
	if err != nil {
		return eris.Wrapf(err, "postgres: update settings %s", id)
	}
	return checkTag(tag, "project", id)
}

// DeleteProject relies on ON DELETE CASCADE for occurrences and results.
func (s *PostgresStore) DeleteProject(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM projects WHERE id = $1`, id)
	if err != nil {
		return eris.Wrapf(err, "postgres: delete project %s", id)
	}
	return checkTag(tag, "project", id)
}

const postgresUpsertOccurrence = `
INSERT INTO occurrences (project_id, id, seq, lat, lon, label, source, calc_status)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (project_id, id) DO UPDATE SET
	lat = EXCLUDED.lat, lon = EXCLUDED.lon, label = EXCLUDED.label,
	source = EXCLUDED.source, calc_status = EXCLUDED.calc_status`

func insertOccurrencesPostgres(ctx context.Context, tx pgx.Tx, projectID string, occurrences []model.Occurrence) error {
	var next int
	if err := tx.QueryRow(ctx,
		`SELECT COALESCE(MAX(seq), -1) + 1 FROM occurrences WHERE project_id = $1`, projectID,
	).Scan(&next); err != nil {
		return eris.Wrap(err, "postgres: next occurrence seq")
	}

	for i, o := range occurrences {
		if err := checkOccurrence(o); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, postgresUpsertOccurrence,
			projectID, o.ID, next+i, o.Lat, o.Lon, o.Label, o.Source, string(o.CalcStatus),
		); err != nil {
			return eris.Wrapf(err, "postgres: upsert occurrence %s", o.ID)
		}
	}
	return nil
}

func (s *PostgresStore) AddOccurrences(ctx context.Context, projectID string, occurrences []model.Occurrence) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := touchPostgres(ctx, tx, projectID); err != nil {
			return err
		}
		return insertOccurrencesPostgres(ctx, tx, projectID, occurrences)
	})
}

func (s *PostgresStore) ReplaceOccurrences(ctx context.Context, projectID string, occurrences []model.Occurrence) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := touchPostgres(ctx, tx, projectID); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `DELETE FROM occurrences WHERE project_id = $1`, projectID); err != nil {
			return eris.Wrap(err, "postgres: clear occurrences")
		}
		return insertOccurrencesPostgres(ctx, tx, projectID, occurrences)
	})
}

func (s *PostgresStore) SetCalcStatus(ctx context.Context, projectID, occurrenceID string, status model.CalcStatus) error {
	if !status.Valid() {
		return eris.Errorf("store: invalid calc status %q", status)
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`UPDATE occurrences SET calc_status = $1 WHERE project_id = $2 AND id = $3`,
			string(status), projectID, occurrenceID)
		if err != nil {
			return eris.Wrapf(err, "postgres: set calc status %s", occurrenceID)
		}
		if err := checkTag(tag, "occurrence", occurrenceID); err != nil {
			return err
		}
		return touchPostgres(ctx, tx, projectID)
	})
}

func (s *PostgresStore) DeleteOccurrence(ctx context.Context, projectID, occurrenceID string) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			`DELETE FROM occurrences WHERE project_id = $1 AND id = $2`, projectID, occurrenceID)
		if err != nil {
			return eris.Wrapf(err, "postgres: delete occurrence %s", occurrenceID)
		}
		if err := checkTag(tag, "occurrence", occurrenceID); err != nil {
			return err
		}
		return touchPostgres(ctx, tx, projectID)
	})
}

func (s *PostgresStore) SaveEooResult(ctx context.Context, projectID string, r *model.EooResult) error {
	hull, err := encodeHull(r.Hull)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := touchPostgres(ctx, tx, projectID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO eoo_results (project_id, area_km2, hull, points_used, input_hash, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (project_id) DO UPDATE SET
				area_km2 = EXCLUDED.area_km2, hull = EXCLUDED.hull, points_used = EXCLUDED.points_used,
				input_hash = EXCLUDED.input_hash, computed_at = EXCLUDED.computed_at`,
			projectID, r.AreaKm2, hull, r.PointsUsed, r.InputHash, r.ComputedAt.UTC())
		return eris.Wrapf(err, "postgres: save eoo result %s", projectID)
	})
}

func (s *PostgresStore) SaveAooResult(ctx context.Context, projectID string, r *model.AooResult) error {
	grid, err := encodeJSON(r.Grid)
	if err != nil {
		return err
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		if err := touchPostgres(ctx, tx, projectID); err != nil {
			return err
		}
		_, err := tx.Exec(ctx, `
			INSERT INTO aoo_results (project_id, area_km2, cell_count, cell_size_meters, grid, points_used, input_hash, computed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (project_id) DO UPDATE SET
				area_km2 = EXCLUDED.area_km2, cell_count = EXCLUDED.cell_count,
				cell_size_meters = EXCLUDED.cell_size_meters, grid = EXCLUDED.grid,
				points_used = EXCLUDED.points_used, input_hash = EXCLUDED.input_hash,
				computed_at = EXCLUDED.computed_at`,
			projectID, r.AreaKm2, r.CellCount, r.CellSizeMeters, grid, r.PointsUsed, r.InputHash, r.ComputedAt.UTC())
		return eris.Wrapf(err, "postgres: save aoo result %s", projectID)
	})
}

func (s *PostgresStore) SaveAssessment(ctx context.Context, projectID string, a model.Assessment) error {
	body, err := encodeJSON(a)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE projects SET assessment = $1, updated_at = $2 WHERE id = $3`, body, time.Now().UTC(), projectID)
	if err != nil {
		return eris.Wrapf(err, "postgres: save assessment %s", projectID)
	}
	return checkTag(tag, "project", projectID)
}
