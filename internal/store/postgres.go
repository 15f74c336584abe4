package store

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/fmatlas/lattes-harvester/internal/db"
	"github.com/fmatlas/lattes-harvester/internal/model"
)

// PostgresStore implements Store on a pgx pool. Postgres handles writer
// concurrency itself, so unlike the SQLite store there is no process-level
// lock; batches still run in one transaction each.
type PostgresStore struct {
	pool db.Pool
}

// NewPostgres connects to Postgres and verifies the connection.
func NewPostgres(ctx context.Context, dsn string) (*PostgresStore, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse dsn")
	}
	if cfg.MaxConns == 0 {
		cfg.MaxConns = 10
	}
	cfg.MinConns = 2
	cfg.MaxConnLifetime = 30 * time.Minute
	cfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
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
CREATE TABLE IF NOT EXISTS researchers (
	id                  BIGSERIAL PRIMARY KEY,
	external_id         TEXT NOT NULL UNIQUE,
	name                TEXT NOT NULL DEFAULT '',
	institution         TEXT NOT NULL DEFAULT '',
	area                TEXT NOT NULL DEFAULT '',
	city                TEXT NOT NULL DEFAULT '',
	state               TEXT NOT NULL DEFAULT '',
	country             TEXT NOT NULL DEFAULT '',
	profile_url         TEXT NOT NULL DEFAULT '',
	search_terms        TEXT NOT NULL DEFAULT '[]',
	last_profile_update TEXT NOT NULL DEFAULT '',
	created_at          TIMESTAMPTZ NOT NULL,
	updated_at          TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id                   TEXT PRIMARY KEY,
	researcher_id        BIGINT NOT NULL REFERENCES researchers(id),
	external_id          TEXT NOT NULL,
	title                TEXT NOT NULL,
	start_date           TEXT NOT NULL DEFAULT '',
	end_date             TEXT NOT NULL DEFAULT '',
	status               TEXT NOT NULL DEFAULT 'unknown',
	description          TEXT NOT NULL DEFAULT '',
	funding_sources      TEXT NOT NULL DEFAULT '',
	coordinator_name     TEXT NOT NULL DEFAULT '',
	team_members         TEXT NOT NULL DEFAULT '',
	industry_cooperation TEXT NOT NULL DEFAULT '',
	concept_tags         TEXT NOT NULL DEFAULT '',
	tool_tags            TEXT NOT NULL DEFAULT '',
	is_formal_methods    BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS failures (
	id          TEXT PRIMARY KEY,
	external_id TEXT NOT NULL,
	stage       TEXT NOT NULL,
	strategy    TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL,
	occurred_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_researchers_institution ON researchers(institution);
CREATE INDEX IF NOT EXISTS idx_projects_external_id ON projects(external_id);
CREATE INDEX IF NOT EXISTS idx_projects_researcher_id ON projects(researcher_id);
CREATE INDEX IF NOT EXISTS idx_failures_external_id ON failures(external_id);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

var projectColumns = []string{
	"id", "researcher_id", "external_id", "title", "start_date", "end_date",
	"status", "description", "funding_sources", "coordinator_name",
	"team_members", "industry_cooperation", "concept_tags", "tool_tags",
	"is_formal_methods",
}

// UpsertBatch writes one batch in a single transaction, mirroring the
// SQLite semantics: coalesce-merge researchers, replace projects wholesale.
func (s *PostgresStore) UpsertBatch(ctx context.Context, researchers []model.Researcher) (model.UpsertCounts, error) {
	var counts model.UpsertCounts
	if len(researchers) == 0 {
		return counts, nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return counts, eris.Wrap(err, "postgres: begin batch")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	now := time.Now().UTC()
	var projectRows [][]any
	for _, r := range researchers {
		rowID, inserted, err := upsertResearcherPostgres(ctx, tx, r, now)
		if err != nil {
			return model.UpsertCounts{}, err
		}
		if inserted {
			counts.Inserted++
		} else {
			counts.Updated++
		}

		if _, err := tx.Exec(ctx,
			`DELETE FROM projects WHERE external_id = $1`, r.ExternalID); err != nil {
			return model.UpsertCounts{}, eris.Wrapf(err, "postgres: clear projects for %s", r.ExternalID)
		}
		for _, p := range r.Projects {
			projectRows = append(projectRows, []any{
				uuid.New().String(), rowID, r.ExternalID, p.Title, p.StartDate,
				p.EndDate, string(p.Status), p.Description, p.FundingSources,
				p.CoordinatorName, p.TeamMembers, p.IndustryCooperation,
				p.ConceptTags, p.ToolTags, p.FormalMethods,
			})
		}
	}

	written, err := db.CopyFrom(ctx, tx, "projects", projectColumns, projectRows)
	if err != nil {
		return model.UpsertCounts{}, err
	}
	counts.ProjectsWritten = int(written)

	if err := tx.Commit(ctx); err != nil {
		return model.UpsertCounts{}, eris.Wrap(err, "postgres: commit batch")
	}
	return counts, nil
}

func upsertResearcherPostgres(ctx context.Context, tx pgx.Tx, r model.Researcher, now time.Time) (rowID int64, inserted bool, err error) {
	existing, err := scanResearcher(tx.QueryRow(ctx,
		selectResearcherSQL+` WHERE external_id = $1`, r.ExternalID))
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		terms, mErr := marshalTerms(r.SearchTerms)
		if mErr != nil {
			return 0, false, mErr
		}
		iErr := tx.QueryRow(ctx,
			`INSERT INTO researchers
			 (external_id, name, institution, area, city, state, country, profile_url, search_terms, last_profile_update, created_at, updated_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
			 RETURNING id`,
			r.ExternalID, r.Name, r.Institution, r.Area, r.City, r.State, r.Country,
			r.ProfileURL, terms, r.LastProfileUpdate, now, now,
		).Scan(&rowID)
		if iErr != nil {
			return 0, false, eris.Wrapf(iErr, "postgres: insert researcher %s", r.ExternalID)
		}
		return rowID, true, nil

	case err != nil:
		return 0, false, eris.Wrapf(err, "postgres: lookup researcher %s", r.ExternalID)
	}

	merged := model.MergeResearcher(*existing, r)
	terms, err := marshalTerms(merged.SearchTerms)
	if err != nil {
		return 0, false, err
	}
	_, err = tx.Exec(ctx,
		`UPDATE researchers SET
		 name = $1, institution = $2, area = $3, city = $4, state = $5, country = $6,
		 profile_url = $7, search_terms = $8, last_profile_update = $9, updated_at = $10
		 WHERE external_id = $11`,
		merged.Name, merged.Institution, merged.Area, merged.City, merged.State,
		merged.Country, merged.ProfileURL, terms, merged.LastProfileUpdate, now,
		r.ExternalID,
	)
	if err != nil {
		return 0, false, eris.Wrapf(err, "postgres: update researcher %s", r.ExternalID)
	}
	return existing.ID, false, nil
}

func (s *PostgresStore) RecordFailure(ctx context.Context, f model.Failure) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO failures (id, external_id, stage, strategy, message, occurred_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		uuid.New().String(), f.ExternalID, f.Stage, f.Strategy, f.Message, f.OccurredAt,
	)
	return eris.Wrapf(err, "postgres: record failure for %s", f.ExternalID)
}

func (s *PostgresStore) GetResearcher(ctx context.Context, externalID string) (*model.Researcher, error) {
	r, err := scanResearcher(s.pool.QueryRow(ctx,
		selectResearcherSQL+` WHERE external_id = $1`, externalID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get researcher %s", externalID)
	}
	r.Projects, err = s.ListProjects(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *PostgresStore) ListResearchers(ctx context.Context, filter Filter) ([]model.Researcher, error) {
	query := selectResearcherSQL
	var (
		where []string
		args  []any
	)
	if filter.SearchTerm != "" {
		args = append(args, `%"`+filter.SearchTerm+`"%`)
		where = append(where, `search_terms LIKE $`+strconv.Itoa(len(args)))
	}
	if filter.Institution != "" {
		args = append(args, "%"+filter.Institution+"%")
		where = append(where, `institution ILIKE $`+strconv.Itoa(len(args)))
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += " LIMIT $" + strconv.Itoa(len(args))
		if filter.Offset > 0 {
			args = append(args, filter.Offset)
			query += " OFFSET $" + strconv.Itoa(len(args))
		}
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list researchers")
	}
	defer rows.Close()

	var out []model.Researcher
	for rows.Next() {
		r, err := scanResearcher(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan researcher")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate researchers")
}

func (s *PostgresStore) ListProjects(ctx context.Context, externalID string) ([]model.Project, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, researcher_id, external_id, title, start_date, end_date, status, description,
		        funding_sources, coordinator_name, team_members, industry_cooperation,
		        concept_tags, tool_tags, is_formal_methods
		 FROM projects WHERE external_id = $1 ORDER BY title`, externalID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list projects for %s", externalID)
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		var (
			p      model.Project
			status string
		)
		if err := rows.Scan(&p.ID, &p.ResearcherID, &p.ExternalID, &p.Title, &p.StartDate,
			&p.EndDate, &status, &p.Description, &p.FundingSources, &p.CoordinatorName,
			&p.TeamMembers, &p.IndustryCooperation, &p.ConceptTags, &p.ToolTags,
			&p.FormalMethods); err != nil {
			return nil, eris.Wrap(err, "postgres: scan project")
		}
		p.Status = model.ProjectStatus(status)
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate projects")
}

func (s *PostgresStore) ListFailures(ctx context.Context, limit int) ([]model.Failure, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx,
		`SELECT external_id, stage, strategy, message, occurred_at
		 FROM failures ORDER BY occurred_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list failures")
	}
	defer rows.Close()

	var out []model.Failure
	for rows.Next() {
		var f model.Failure
		if err := rows.Scan(&f.ExternalID, &f.Stage, &f.Strategy, &f.Message, &f.OccurredAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan failure")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate failures")
}

func (s *PostgresStore) Stats(ctx context.Context) (model.StoreStats, error) {
	var stats model.StoreStats
	row := s.pool.QueryRow(ctx, `
		SELECT
			(SELECT COUNT(*) FROM researchers),
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM projects WHERE is_formal_methods)`)
	if err := row.Scan(&stats.Researchers, &stats.Projects, &stats.FormalMethodsProjects); err != nil {
		return stats, eris.Wrap(err, "postgres: stats counts")
	}

	rows, err := s.pool.Query(ctx,
		`SELECT institution, COUNT(*) AS n FROM researchers
		 WHERE institution <> '' GROUP BY institution ORDER BY n DESC, institution LIMIT 10`)
	if err != nil {
		return stats, eris.Wrap(err, "postgres: stats institutions")
	}
	defer rows.Close()
	for rows.Next() {
		var ic model.InstitutionCount
		if err := rows.Scan(&ic.Institution, &ic.Researchers); err != nil {
			return stats, eris.Wrap(err, "postgres: scan institution count")
		}
		stats.TopInstitutions = append(stats.TopInstitutions, ic)
	}
	return stats, eris.Wrap(rows.Err(), "postgres: iterate institutions")
}
