package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/fmatlas/lattes-harvester/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. A process-wide
// mutex serializes batch writers; SQLite allows only one anyway.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS researchers (
	id                  INTEGER PRIMARY KEY AUTOINCREMENT,
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
	created_at          DATETIME NOT NULL,
	updated_at          DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS projects (
	id                   TEXT PRIMARY KEY,
	researcher_id        INTEGER NOT NULL REFERENCES researchers(id),
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
	is_formal_methods    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS failures (
	id          TEXT PRIMARY KEY,
	external_id TEXT NOT NULL,
	stage       TEXT NOT NULL,
	strategy    TEXT NOT NULL DEFAULT '',
	message     TEXT NOT NULL,
	occurred_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_researchers_external_id ON researchers(external_id);
CREATE INDEX IF NOT EXISTS idx_researchers_institution ON researchers(institution);
CREATE INDEX IF NOT EXISTS idx_projects_external_id ON projects(external_id);
CREATE INDEX IF NOT EXISTS idx_projects_researcher_id ON projects(researcher_id);
CREATE INDEX IF NOT EXISTS idx_failures_external_id ON failures(external_id);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertBatch writes one batch in a single transaction. Researchers merge
// with coalesce-on-null semantics; each researcher's project set is
// replaced wholesale.
func (s *SQLiteStore) UpsertBatch(ctx context.Context, researchers []model.Researcher) (model.UpsertCounts, error) {
	var counts model.UpsertCounts
	if len(researchers) == 0 {
		return counts, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return counts, eris.Wrap(err, "sqlite: begin batch")
	}
	defer tx.Rollback() //nolint:errcheck

	now := time.Now().UTC()
	for _, r := range researchers {
		rowID, inserted, err := upsertResearcherSQLite(ctx, tx, r, now)
		if err != nil {
			return model.UpsertCounts{}, err
		}
		if inserted {
			counts.Inserted++
		} else {
			counts.Updated++
		}

		written, err := replaceProjectsSQLite(ctx, tx, rowID, r.ExternalID, r.Projects)
		if err != nil {
			return model.UpsertCounts{}, err
		}
		counts.ProjectsWritten += written
	}

	if err := tx.Commit(); err != nil {
		return model.UpsertCounts{}, eris.Wrap(err, "sqlite: commit batch")
	}
	return counts, nil
}

func upsertResearcherSQLite(ctx context.Context, tx *sql.Tx, r model.Researcher, now time.Time) (rowID int64, inserted bool, err error) {
	existing, err := scanResearcher(tx.QueryRowContext(ctx,
		selectResearcherSQL+` WHERE external_id = ?`, r.ExternalID))
	switch {
	case errors.Is(err, sql.ErrNoRows):
		terms, mErr := marshalTerms(r.SearchTerms)
		if mErr != nil {
			return 0, false, mErr
		}
		res, iErr := tx.ExecContext(ctx,
			`INSERT INTO researchers
			 (external_id, name, institution, area, city, state, country, profile_url, search_terms, last_profile_update, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			r.ExternalID, r.Name, r.Institution, r.Area, r.City, r.State, r.Country,
			r.ProfileURL, terms, r.LastProfileUpdate, now, now,
		)
		if iErr != nil {
			return 0, false, eris.Wrapf(iErr, "sqlite: insert researcher %s", r.ExternalID)
		}
		rowID, iErr = res.LastInsertId()
		if iErr != nil {
			return 0, false, eris.Wrap(iErr, "sqlite: last insert id")
		}
		return rowID, true, nil

	case err != nil:
		return 0, false, eris.Wrapf(err, "sqlite: lookup researcher %s", r.ExternalID)
	}

	merged := model.MergeResearcher(*existing, r)
	terms, err := marshalTerms(merged.SearchTerms)
	if err != nil {
		return 0, false, err
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE researchers SET
		 name = ?, institution = ?, area = ?, city = ?, state = ?, country = ?,
		 profile_url = ?, search_terms = ?, last_profile_update = ?, updated_at = ?
		 WHERE external_id = ?`,
		merged.Name, merged.Institution, merged.Area, merged.City, merged.State,
		merged.Country, merged.ProfileURL, terms, merged.LastProfileUpdate, now,
		r.ExternalID,
	)
	if err != nil {
		return 0, false, eris.Wrapf(err, "sqlite: update researcher %s", r.ExternalID)
	}
	return existing.ID, false, nil
}

func replaceProjectsSQLite(ctx context.Context, tx *sql.Tx, researcherID int64, externalID string, projects []model.Project) (int, error) {
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM projects WHERE external_id = ?`, externalID); err != nil {
		return 0, eris.Wrapf(err, "sqlite: clear projects for %s", externalID)
	}
	for _, p := range projects {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO projects
			 (id, researcher_id, external_id, title, start_date, end_date, status, description,
			  funding_sources, coordinator_name, team_members, industry_cooperation,
			  concept_tags, tool_tags, is_formal_methods)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			uuid.New().String(), researcherID, externalID, p.Title, p.StartDate, p.EndDate,
			string(p.Status), p.Description, p.FundingSources, p.CoordinatorName,
			p.TeamMembers, p.IndustryCooperation, p.ConceptTags, p.ToolTags,
			boolToInt(p.FormalMethods),
		)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: insert project for %s", externalID)
		}
	}
	return len(projects), nil
}

func (s *SQLiteStore) RecordFailure(ctx context.Context, f model.Failure) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO failures (id, external_id, stage, strategy, message, occurred_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.New().String(), f.ExternalID, f.Stage, f.Strategy, f.Message, f.OccurredAt,
	)
	return eris.Wrapf(err, "sqlite: record failure for %s", f.ExternalID)
}

func (s *SQLiteStore) GetResearcher(ctx context.Context, externalID string) (*model.Researcher, error) {
	r, err := scanResearcher(s.db.QueryRowContext(ctx,
		selectResearcherSQL+` WHERE external_id = ?`, externalID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get researcher %s", externalID)
	}
	r.Projects, err = s.ListProjects(ctx, externalID)
	if err != nil {
		return nil, err
	}
	return r, nil
}

func (s *SQLiteStore) ListResearchers(ctx context.Context, filter Filter) ([]model.Researcher, error) {
	query := selectResearcherSQL
	var (
		where []string
		args  []any
	)
	if filter.SearchTerm != "" {
		where = append(where, `search_terms LIKE ?`)
		args = append(args, `%"`+filter.SearchTerm+`"%`)
	}
	if filter.Institution != "" {
		where = append(where, `institution LIKE ?`)
		args = append(args, "%"+filter.Institution+"%")
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY name"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list researchers")
	}
	defer rows.Close()

	var out []model.Researcher
	for rows.Next() {
		r, err := scanResearcher(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan researcher")
		}
		out = append(out, *r)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate researchers")
}

func (s *SQLiteStore) ListProjects(ctx context.Context, externalID string) ([]model.Project, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, researcher_id, external_id, title, start_date, end_date, status, description,
		        funding_sources, coordinator_name, team_members, industry_cooperation,
		        concept_tags, tool_tags, is_formal_methods
		 FROM projects WHERE external_id = ? ORDER BY title`, externalID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list projects for %s", externalID)
	}
	defer rows.Close()

	var out []model.Project
	for rows.Next() {
		var (
			p      model.Project
			status string
			fm     int
		)
		if err := rows.Scan(&p.ID, &p.ResearcherID, &p.ExternalID, &p.Title, &p.StartDate,
			&p.EndDate, &status, &p.Description, &p.FundingSources, &p.CoordinatorName,
			&p.TeamMembers, &p.IndustryCooperation, &p.ConceptTags, &p.ToolTags, &fm); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan project")
		}
		p.Status = model.ProjectStatus(status)
		p.FormalMethods = fm != 0
		out = append(out, p)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate projects")
}

func (s *SQLiteStore) ListFailures(ctx context.Context, limit int) ([]model.Failure, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT external_id, stage, strategy, message, occurred_at
		 FROM failures ORDER BY occurred_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list failures")
	}
	defer rows.Close()

	var out []model.Failure
	for rows.Next() {
		var f model.Failure
		if err := rows.Scan(&f.ExternalID, &f.Stage, &f.Strategy, &f.Message, &f.OccurredAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan failure")
		}
		out = append(out, f)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate failures")
}

func (s *SQLiteStore) Stats(ctx context.Context) (model.StoreStats, error) {
	var stats model.StoreStats
	row := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM researchers),
			(SELECT COUNT(*) FROM projects),
			(SELECT COUNT(*) FROM projects WHERE is_formal_methods = 1)`)
	if err := row.Scan(&stats.Researchers, &stats.Projects, &stats.FormalMethodsProjects); err != nil {
		return stats, eris.Wrap(err, "sqlite: stats counts")
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT institution, COUNT(*) AS n FROM researchers
		 WHERE institution <> '' GROUP BY institution ORDER BY n DESC, institution LIMIT 10`)
	if err != nil {
		return stats, eris.Wrap(err, "sqlite: stats institutions")
	}
	defer rows.Close()
	for rows.Next() {
		var ic model.InstitutionCount
		if err := rows.Scan(&ic.Institution, &ic.Researchers); err != nil {
			return stats, eris.Wrap(err, "sqlite: scan institution count")
		}
		stats.TopInstitutions = append(stats.TopInstitutions, ic)
	}
	return stats, eris.Wrap(rows.Err(), "sqlite: iterate institutions")
}

const selectResearcherSQL = `
SELECT id, external_id, name, institution, area, city, state, country,
       profile_url, search_terms, last_profile_update, created_at, updated_at
FROM researchers`

type scannable interface {
	Scan(dest ...any) error
}

func scanResearcher(row scannable) (*model.Researcher, error) {
	var (
		r     model.Researcher
		terms string
	)
	err := row.Scan(&r.ID, &r.ExternalID, &r.Name, &r.Institution, &r.Area, &r.City,
		&r.State, &r.Country, &r.ProfileURL, &terms, &r.LastProfileUpdate,
		&r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(terms), &r.SearchTerms); err != nil {
		return nil, eris.Wrapf(err, "store: decode search terms for %s", r.ExternalID)
	}
	return &r, nil
}

func marshalTerms(terms []string) (string, error) {
	if terms == nil {
		terms = []string{}
	}
	b, err := json.Marshal(terms)
	if err != nil {
		return "", eris.Wrap(err, "store: encode search terms")
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
