package store

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fmatlas/lattes-harvester/internal/model"
)

func newMockPostgres(t *testing.T) (*PostgresStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool(pgxmock.QueryMatcherOption(pgxmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return &PostgresStore{pool: mock}, mock
}

var researcherColumns = []string{
	"id", "external_id", "name", "institution", "area", "city", "state",
	"country", "profile_url", "search_terms", "last_profile_update",
	"created_at", "updated_at",
}

func TestPostgresUpsertInsertPath(t *testing.T) {
	s, mock := newMockPostgres(t)
	r := sampleResearcher("K4131", "metodos formais")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, external_id`).
		WithArgs("K4131").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectQuery(`INSERT INTO researchers`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(7)))
	mock.ExpectExec(`DELETE FROM projects`).
		WithArgs("K4131").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"projects"}, projectColumns).
		WillReturnResult(1)
	mock.ExpectCommit()

	counts, err := s.UpsertBatch(context.Background(), []model.Researcher{r})
	require.NoError(t, err)
	assert.Equal(t, 1, counts.Inserted)
	assert.Zero(t, counts.Updated)
	assert.Equal(t, 1, counts.ProjectsWritten)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertUpdatePath(t *testing.T) {
	s, mock := newMockPostgres(t)
	r := sampleResearcher("K4131", "verificacao formal")
	r.Projects = nil

	now := time.Now().UTC()
	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, external_id`).
		WithArgs("K4131").
		WillReturnRows(pgxmock.NewRows(researcherColumns).AddRow(
			int64(7), "K4131", "Ana Cavalcanti", "UFPE", "", "", "", "",
			model.ProfileURL("K4131"), `["metodos formais"]`, "", now, now,
		))
	mock.ExpectExec(`UPDATE researchers`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec(`DELETE FROM projects`).
		WithArgs("K4131").
		WillReturnResult(pgxmock.NewResult("DELETE", 1))
	mock.ExpectCommit()

	counts, err := s.UpsertBatch(context.Background(), []model.Researcher{r})
	require.NoError(t, err)
	assert.Zero(t, counts.Inserted)
	assert.Equal(t, 1, counts.Updated)
	assert.Zero(t, counts.ProjectsWritten)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresUpsertRollsBackOnError(t *testing.T) {
	s, mock := newMockPostgres(t)
	r := sampleResearcher("K4131", "metodos formais")

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT id, external_id`).
		WithArgs("K4131").
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := s.UpsertBatch(context.Background(), []model.Researcher{r})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetResearcher(t *testing.T) {
	s, mock := newMockPostgres(t)
	now := time.Now().UTC()

	mock.ExpectQuery(`SELECT id, external_id`).
		WithArgs("K4131").
		WillReturnRows(pgxmock.NewRows(researcherColumns).AddRow(
			int64(7), "K4131", "Ana Cavalcanti", "UFPE", "Ciência da Computação",
			"Recife", "PE", "Brasil", model.ProfileURL("K4131"),
			`["metodos formais"]`, "2024-05-10", now, now,
		))
	mock.ExpectQuery(`FROM projects WHERE external_id`).
		WithArgs("K4131").
		WillReturnRows(pgxmock.NewRows(projectColumns).AddRow(
			"uuid-1", int64(7), "K4131", "Verificação de Sistemas Concorrentes",
			"2020", "", "ongoing", "", "", "", "", "", "verificação formal", "", true,
		))

	got, err := s.GetResearcher(context.Background(), "K4131")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Ana Cavalcanti", got.Name)
	assert.Equal(t, []string{"metodos formais"}, got.SearchTerms)
	require.Len(t, got.Projects, 1)
	assert.Equal(t, model.StatusOngoing, got.Projects[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresGetResearcherMissing(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectQuery(`SELECT id, external_id`).
		WithArgs("K9999").
		WillReturnError(pgx.ErrNoRows)

	got, err := s.GetResearcher(context.Background(), "K9999")
	require.NoError(t, err)
	assert.Nil(t, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresRecordFailure(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectExec(`INSERT INTO failures`).
		WithArgs(
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	err := s.RecordFailure(context.Background(), model.Failure{
		ExternalID: "K0042",
		Stage:      "challenge",
		Strategy:   "token",
		Message:    "challenge response",
		OccurredAt: time.Now().UTC(),
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresStats(t *testing.T) {
	s, mock := newMockPostgres(t)
	mock.ExpectQuery(`SELECT COUNT\(\*\) FROM researchers`).
		WillReturnRows(pgxmock.NewRows([]string{"r", "p", "fm"}).AddRow(12, 30, 9))
	mock.ExpectQuery(`GROUP BY institution`).
		WillReturnRows(pgxmock.NewRows([]string{"institution", "n"}).
			AddRow("UFPE", 5).
			AddRow("USP", 3))

	stats, err := s.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 12, stats.Researchers)
	assert.Equal(t, 30, stats.Projects)
	assert.Equal(t, 9, stats.FormalMethodsProjects)
	require.Len(t, stats.TopInstitutions, 2)
	assert.Equal(t, "UFPE", stats.TopInstitutions[0].Institution)
	assert.NoError(t, mock.ExpectationsWereMet())
}
